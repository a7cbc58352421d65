package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meoacar/squad/internal/domain/payment"
)

const paymentColumns = `
	id, user_id, conversation_id, purpose, amount, currency, status,
	payment_method, provider, transaction_id, metadata, description,
	completed_at, refunded_at, refund_reason, refunded_by, created_at, updated_at
`

// PaymentRepository implements payment.Repository using PostgreSQL. All
// state transitions are single conditional UPDATE statements guarded by the
// expected current status.
type PaymentRepository struct {
	pool *pgxpool.Pool
}

// NewPaymentRepository creates a new payment repository
func NewPaymentRepository(pool *pgxpool.Pool) *PaymentRepository {
	return &PaymentRepository{pool: pool}
}

// Create creates a new payment
func (r *PaymentRepository) Create(ctx context.Context, p *payment.Payment) error {
	metadata, err := json.Marshal(p.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `
		INSERT INTO payments (
			id, user_id, conversation_id, purpose, amount, currency, status,
			payment_method, provider, transaction_id, metadata, description,
			refund_reason, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	_, err = r.pool.Exec(ctx, query,
		p.ID,
		p.UserID,
		p.ConversationID,
		string(p.Purpose),
		p.Amount,
		p.Currency,
		string(p.Status),
		string(p.Method),
		string(p.Provider),
		p.TransactionID,
		metadata,
		p.Description,
		p.RefundReason,
		p.CreatedAt,
		p.UpdatedAt,
	)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return payment.ErrDuplicateConversationID
		}
		return fmt.Errorf("failed to create payment: %w", err)
	}

	return nil
}

// GetByID gets a payment by ID
func (r *PaymentRepository) GetByID(ctx context.Context, id uuid.UUID) (*payment.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`

	return scanPayment(r.pool.QueryRow(ctx, query, id))
}

// GetByConversationID gets a payment by its conversation id
func (r *PaymentRepository) GetByConversationID(ctx context.Context, conversationID string) (*payment.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE conversation_id = $1`

	return scanPayment(r.pool.QueryRow(ctx, query, conversationID))
}

// ListByUser lists a user's payments, newest first
func (r *PaymentRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*payment.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE user_id = $1 ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	defer rows.Close()

	payments := make([]*payment.Payment, 0)
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating payments: %w", err)
	}

	return payments, nil
}

// UpdateMetadata replaces a payment's metadata without touching its status
func (r *PaymentRepository) UpdateMetadata(ctx context.Context, id uuid.UUID, meta payment.Metadata) error {
	metadata, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `UPDATE payments SET metadata = $2, updated_at = NOW() WHERE id = $1`

	result, err := r.pool.Exec(ctx, query, id, metadata)
	if err != nil {
		return fmt.Errorf("failed to update metadata: %w", err)
	}

	if result.RowsAffected() == 0 {
		return payment.ErrNotFound
	}

	return nil
}

// MarkCompleted atomically transitions PENDING -> COMPLETED, setting the
// transaction id and completed_at. A payment that already left PENDING is
// returned unchanged with applied=false.
func (r *PaymentRepository) MarkCompleted(ctx context.Context, conversationID, transactionID string, meta payment.Metadata) (*payment.Payment, bool, error) {
	metadata, err := json.Marshal(meta)
	if err != nil {
		return nil, false, fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `
		UPDATE payments
		SET status = $3, transaction_id = $2, metadata = $4,
		    completed_at = NOW(), updated_at = NOW()
		WHERE conversation_id = $1 AND status = $5
		RETURNING ` + paymentColumns

	p, err := scanPayment(r.pool.QueryRow(ctx, query,
		conversationID,
		transactionID,
		string(payment.StatusCompleted),
		metadata,
		string(payment.StatusPending),
	))
	if err == nil {
		return p, true, nil
	}
	if !errors.Is(err, payment.ErrNotFound) {
		return nil, false, err
	}

	return r.currentByConversationID(ctx, conversationID)
}

// MarkFailed atomically transitions PENDING -> FAILED.
func (r *PaymentRepository) MarkFailed(ctx context.Context, conversationID string, meta payment.Metadata) (*payment.Payment, bool, error) {
	metadata, err := json.Marshal(meta)
	if err != nil {
		return nil, false, fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `
		UPDATE payments
		SET status = $2, metadata = $3, updated_at = NOW()
		WHERE conversation_id = $1 AND status = $4
		RETURNING ` + paymentColumns

	p, err := scanPayment(r.pool.QueryRow(ctx, query,
		conversationID,
		string(payment.StatusFailed),
		metadata,
		string(payment.StatusPending),
	))
	if err == nil {
		return p, true, nil
	}
	if !errors.Is(err, payment.ErrNotFound) {
		return nil, false, err
	}

	return r.currentByConversationID(ctx, conversationID)
}

// MarkRefunded atomically transitions COMPLETED -> REFUNDED, stamping
// refunded_at, refunded_by and the reason.
func (r *PaymentRepository) MarkRefunded(ctx context.Context, id uuid.UUID, refundedBy uuid.UUID, reason string) (*payment.Payment, bool, error) {
	query := `
		UPDATE payments
		SET status = $4, refunded_at = NOW(), refunded_by = $2,
		    refund_reason = $3, updated_at = NOW()
		WHERE id = $1 AND status = $5
		RETURNING ` + paymentColumns

	p, err := scanPayment(r.pool.QueryRow(ctx, query,
		id,
		refundedBy,
		reason,
		string(payment.StatusRefunded),
		string(payment.StatusCompleted),
	))
	if err == nil {
		return p, true, nil
	}
	if !errors.Is(err, payment.ErrNotFound) {
		return nil, false, err
	}

	current, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return current, false, nil
}

// currentByConversationID returns the record after a lost conditional update
func (r *PaymentRepository) currentByConversationID(ctx context.Context, conversationID string) (*payment.Payment, bool, error) {
	current, err := r.GetByConversationID(ctx, conversationID)
	if err != nil {
		return nil, false, err
	}
	return current, false, nil
}

// scanPayment scans a payment from a row
func scanPayment(row pgx.Row) (*payment.Payment, error) {
	var p payment.Payment
	var purposeStr, statusStr, methodStr, providerStr string
	var metadataBytes []byte

	err := row.Scan(
		&p.ID,
		&p.UserID,
		&p.ConversationID,
		&purposeStr,
		&p.Amount,
		&p.Currency,
		&statusStr,
		&methodStr,
		&providerStr,
		&p.TransactionID,
		&metadataBytes,
		&p.Description,
		&p.CompletedAt,
		&p.RefundedAt,
		&p.RefundReason,
		&p.RefundedBy,
		&p.CreatedAt,
		&p.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, payment.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan payment: %w", err)
	}

	p.Purpose = payment.Purpose(purposeStr)
	p.Status = payment.Status(statusStr)
	p.Method = payment.Method(methodStr)
	p.Provider = payment.Provider(providerStr)

	if len(metadataBytes) > 0 {
		if err := json.Unmarshal(metadataBytes, &p.Metadata); err != nil {
			p.Metadata = payment.Metadata{Provider: p.Provider}
		}
	} else {
		p.Metadata = payment.Metadata{Provider: p.Provider}
	}

	return &p, nil
}

// WebhookLogRepository implements payment.WebhookLogRepository using PostgreSQL
type WebhookLogRepository struct {
	pool *pgxpool.Pool
}

// NewWebhookLogRepository creates a new webhook log repository
func NewWebhookLogRepository(pool *pgxpool.Pool) *WebhookLogRepository {
	return &WebhookLogRepository{pool: pool}
}

// Create creates a new webhook log entry
func (r *WebhookLogRepository) Create(ctx context.Context, log *payment.WebhookLog) error {
	query := `
		INSERT INTO webhook_logs (id, provider, conversation_id, raw_payload, signature, ip_address, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.pool.Exec(ctx, query,
		log.ID,
		string(log.Provider),
		log.ConversationID,
		log.RawPayload,
		log.Signature,
		log.IPAddress,
		log.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create webhook log: %w", err)
	}

	return nil
}

// MarkProcessed records the outcome of webhook processing
func (r *WebhookLogRepository) MarkProcessed(ctx context.Context, id uuid.UUID, reason string) error {
	query := `UPDATE webhook_logs SET processed = TRUE, rejection_reason = $2 WHERE id = $1`

	_, err := r.pool.Exec(ctx, query, id, reason)
	if err != nil {
		return fmt.Errorf("failed to mark webhook log as processed: %w", err)
	}

	return nil
}
