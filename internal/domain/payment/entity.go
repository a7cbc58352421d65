package payment

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status represents the lifecycle status of a payment.
//
// Valid transitions: PENDING -> COMPLETED, PENDING -> FAILED,
// COMPLETED -> REFUNDED. FAILED, REFUNDED and CANCELLED are terminal.
// No transition ever re-enters PENDING.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusRefunded  Status = "REFUNDED"
	StatusCancelled Status = "CANCELLED"
)

// Purpose represents what the payment buys.
type Purpose string

const (
	PurposePremium  Purpose = "PREMIUM"
	PurposeBoost    Purpose = "BOOST"
	PurposeFeatured Purpose = "FEATURED"
)

// Method represents the payment method.
type Method string

const (
	MethodCreditCard    Method = "CREDIT_CARD"
	MethodDebitCard     Method = "DEBIT_CARD"
	MethodBankTransfer  Method = "BANK_TRANSFER"
	MethodMobilePayment Method = "MOBILE_PAYMENT"
)

// Provider identifies a payment gateway integration.
type Provider string

const (
	ProviderIyzico Provider = "IYZICO"
	ProviderPayTR  Provider = "PAYTR"
)

// Payment represents a payment record. Amounts are minor units (kurus)
// and, together with the currency, are immutable after creation.
// A payment is a permanent financial record and is never deleted.
type Payment struct {
	ID             uuid.UUID  `json:"id"`
	UserID         uuid.UUID  `json:"user_id"`
	ConversationID string     `json:"conversation_id"`
	Purpose        Purpose    `json:"purpose"`
	Amount         int64      `json:"amount"`
	Currency       string     `json:"currency"`
	Status         Status     `json:"status"`
	Method         Method     `json:"payment_method"`
	Provider       Provider   `json:"provider"`
	TransactionID  string     `json:"transaction_id,omitempty"`
	Metadata       Metadata   `json:"metadata"`
	Description    string     `json:"description,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	RefundedAt     *time.Time `json:"refunded_at,omitempty"`
	RefundReason   string     `json:"refund_reason,omitempty"`
	RefundedBy     *uuid.UUID `json:"refunded_by,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// New creates a new payment in PENDING state with a fresh conversation id.
func New(userID uuid.UUID, purpose Purpose, amount int64, currency string, method Method, provider Provider, description string) *Payment {
	now := time.Now()
	return &Payment{
		ID:             uuid.New(),
		UserID:         userID,
		ConversationID: NewConversationID(userID),
		Purpose:        purpose,
		Amount:         amount,
		Currency:       currency,
		Status:         StatusPending,
		Method:         method,
		Provider:       provider,
		Metadata:       Metadata{Provider: provider},
		Description:    description,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// NewConversationID generates the correlation key passed to the gateway
// and received back from its callbacks. Uniqueness is enforced by the store.
func NewConversationID(userID uuid.UUID) string {
	return fmt.Sprintf("%d-%s", time.Now().UnixMilli(), userID)
}

// IsPending reports whether the payment is still awaiting a completion signal.
func (p *Payment) IsPending() bool {
	return p.Status == StatusPending
}

// IsCompleted reports whether the payment has been completed.
func (p *Payment) IsCompleted() bool {
	return p.Status == StatusCompleted
}

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusFailed, StatusRefunded, StatusCancelled:
		return true
	}
	return false
}

// CanTransition reports whether the state machine permits moving from s to next.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusCompleted || next == StatusFailed
	case StatusCompleted:
		return next == StatusRefunded
	}
	return false
}

// ValidPurpose reports whether s names a known payment purpose.
func ValidPurpose(s string) bool {
	switch Purpose(s) {
	case PurposePremium, PurposeBoost, PurposeFeatured:
		return true
	}
	return false
}

// ValidProvider reports whether s names a known gateway.
func ValidProvider(s string) bool {
	switch Provider(s) {
	case ProviderIyzico, ProviderPayTR:
		return true
	}
	return false
}
