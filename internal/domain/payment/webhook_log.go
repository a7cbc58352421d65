package payment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// WebhookLog records every inbound gateway callback for operational audit,
// including ones that fail signature verification. It is written before any
// processing so forged payloads are still visible to alerting.
type WebhookLog struct {
	ID              uuid.UUID `json:"id"`
	Provider        Provider  `json:"provider"`
	ConversationID  string    `json:"conversation_id"`
	RawPayload      []byte    `json:"raw_payload"`
	Signature       string    `json:"signature"`
	IPAddress       string    `json:"ip_address"`
	Processed       bool      `json:"processed"`
	RejectionReason string    `json:"rejection_reason,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// NewWebhookLog creates a webhook log entry
func NewWebhookLog(provider Provider, conversationID string, payload []byte, signature, ip string) *WebhookLog {
	return &WebhookLog{
		ID:             uuid.New(),
		Provider:       provider,
		ConversationID: conversationID,
		RawPayload:     payload,
		Signature:      signature,
		IPAddress:      ip,
		CreatedAt:      time.Now(),
	}
}

// WebhookLogRepository persists webhook log entries.
type WebhookLogRepository interface {
	Create(ctx context.Context, log *WebhookLog) error

	// MarkProcessed records the outcome of processing; reason is empty on
	// success and carries the rejection cause otherwise.
	MarkProcessed(ctx context.Context, id uuid.UUID, reason string) error
}
