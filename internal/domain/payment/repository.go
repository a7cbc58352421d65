package payment

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines the payment store.
//
// The Mark* operations are conditional updates: they apply the transition in a
// single atomic statement guarded by the current status, never as a
// read-then-write pair. When the precondition does not hold the transition is
// a no-op, the current record is returned and applied is false — a lost race
// or a replayed callback, not an error.
type Repository interface {
	Create(ctx context.Context, p *Payment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Payment, error)
	GetByConversationID(ctx context.Context, conversationID string) (*Payment, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*Payment, error)

	// UpdateMetadata replaces the metadata of a payment without touching
	// its status. Used to attach provider artifacts after initialization.
	UpdateMetadata(ctx context.Context, id uuid.UUID, meta Metadata) error

	// MarkCompleted transitions PENDING -> COMPLETED, setting the provider
	// transaction id and completed_at exactly once.
	MarkCompleted(ctx context.Context, conversationID, transactionID string, meta Metadata) (p *Payment, applied bool, err error)

	// MarkFailed transitions PENDING -> FAILED.
	MarkFailed(ctx context.Context, conversationID string, meta Metadata) (p *Payment, applied bool, err error)

	// MarkRefunded transitions COMPLETED -> REFUNDED, stamping refunded_at,
	// refunded_by and the reason exactly once.
	MarkRefunded(ctx context.Context, id uuid.UUID, refundedBy uuid.UUID, reason string) (p *Payment, applied bool, err error)
}
