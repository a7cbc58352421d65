package dto

import (
	"time"

	"github.com/google/uuid"

	"github.com/meoacar/squad/internal/domain/payment"
)

// CreatePaymentRequest represents the request to create a payment
type CreatePaymentRequest struct {
	Purpose     string `json:"purpose" validate:"required,oneof=PREMIUM BOOST FEATURED"`
	Amount      int64  `json:"amount" validate:"required,min=1"`
	Currency    string `json:"currency" validate:"omitempty,len=3"`
	Method      string `json:"payment_method" validate:"required,oneof=CREDIT_CARD DEBIT_CARD BANK_TRANSFER MOBILE_PAYMENT"`
	Provider    string `json:"provider" validate:"required,oneof=IYZICO PAYTR"`
	Description string `json:"description,omitempty" validate:"max=500"`
	CallbackURL string `json:"callback_url,omitempty" validate:"omitempty,url,max=2048"`
}

// CreatePaymentResponse represents the response after creating a payment
type CreatePaymentResponse struct {
	Payment    PaymentResponse `json:"payment"`
	PaymentURL string          `json:"payment_url"`
	Token      string          `json:"token,omitempty"`
}

// PaymentResponse represents a payment record
type PaymentResponse struct {
	ID             uuid.UUID  `json:"id"`
	ConversationID string     `json:"conversation_id"`
	Purpose        string     `json:"purpose"`
	Amount         int64      `json:"amount"`
	Currency       string     `json:"currency"`
	Status         string     `json:"status"`
	Method         string     `json:"payment_method"`
	Provider       string     `json:"provider"`
	TransactionID  string     `json:"transaction_id,omitempty"`
	Description    string     `json:"description,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	RefundedAt     *time.Time `json:"refunded_at,omitempty"`
	RefundReason   string     `json:"refund_reason,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// NewPaymentResponse builds a response from a domain payment
func NewPaymentResponse(p *payment.Payment) PaymentResponse {
	return PaymentResponse{
		ID:             p.ID,
		ConversationID: p.ConversationID,
		Purpose:        string(p.Purpose),
		Amount:         p.Amount,
		Currency:       p.Currency,
		Status:         string(p.Status),
		Method:         string(p.Method),
		Provider:       string(p.Provider),
		TransactionID:  p.TransactionID,
		Description:    p.Description,
		CompletedAt:    p.CompletedAt,
		RefundedAt:     p.RefundedAt,
		RefundReason:   p.RefundReason,
		CreatedAt:      p.CreatedAt,
	}
}

// VerifyPaymentResponse represents the result of a pull verification
type VerifyPaymentResponse struct {
	Payment PaymentResponse `json:"payment"`
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
}

// ListPaymentsResponse represents the response for listing payments
type ListPaymentsResponse struct {
	Payments []PaymentResponse `json:"payments"`
	Total    int               `json:"total"`
}

// RefundPaymentRequest represents the request to refund a payment
type RefundPaymentRequest struct {
	Reason string `json:"reason" validate:"required,min=10,max=500"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    string `json:"code,omitempty"`
}

// HealthResponse represents a health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version,omitempty"`
	Timestamp string            `json:"timestamp"`
	Services  map[string]string `json:"services,omitempty"`
}
