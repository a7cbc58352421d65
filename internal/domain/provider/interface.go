package provider

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/meoacar/squad/internal/domain/payment"
)

// ErrPullVerificationUnsupported is returned by gateways whose completion is
// learned only from an inbound webhook and have no synchronous verify path.
var ErrPullVerificationUnsupported = errors.New("provider does not support pull-based verification")

// PaymentRequest holds the request to initialize a payment with a gateway.
type PaymentRequest struct {
	ConversationID string
	Amount         int64 // minor units
	Currency       string
	Description    string
	UserID         string
	UserEmail      string
	UserName       string
	UserPhone      string
	UserIP         string
	CallbackURL    string
}

// CreateResult holds the outcome of payment initialization. Ordinary gateway
// rejections and transport failures are reported with Success=false, never as
// an error; errors are reserved for programmer mistakes such as missing
// credentials.
type CreateResult struct {
	Success      bool
	PaymentURL   string
	Token        string
	ErrorMessage string
	RawResponse  json.RawMessage
}

// Verification holds the outcome of pull-based payment verification.
type Verification struct {
	Success       bool
	Status        payment.Status
	Amount        int64 // minor units, when reported
	Currency      string
	TransactionID string
	ErrorMessage  string
}

// WebhookNotification holds the fields of an inbound gateway callback that
// participate in correlation and signature verification, plus the raw payload
// for audit.
type WebhookNotification struct {
	MerchantOrderID string // the conversation id echoed back by the gateway
	Status          string // gateway status literal, e.g. "success"/"failed"
	TotalAmount     string // minor units as sent by the gateway
	Hash            string // keyed hash supplied by the gateway
	FailedReason    string
	Raw             json.RawMessage
}

// Gateway is the capability contract every payment provider implements.
type Gateway interface {
	// Name returns the provider identifier.
	Name() payment.Provider

	// CreatePayment initializes a payment and returns a redirect URL or
	// token the client can be sent to.
	CreatePayment(ctx context.Context, req PaymentRequest) (*CreateResult, error)

	// VerifyPayment queries the gateway for the outcome of a payment.
	// Callback-only gateways return ErrPullVerificationUnsupported.
	VerifyPayment(ctx context.Context, token, conversationID string) (*Verification, error)

	// RefundPayment asks the gateway to return the given amount for a
	// transaction. Best-effort: false on any rejection, never panics.
	RefundPayment(ctx context.Context, transactionID string, amount int64) bool
}

// WebhookGateway is implemented by gateways that deliver completion through
// signed inbound callbacks.
type WebhookGateway interface {
	Gateway

	// VerifyWebhookSignature recomputes the keyed hash over the
	// notification fields and compares it in constant time. An
	// unsigned or mismatched payload must be treated as forged.
	VerifyWebhookSignature(n WebhookNotification) bool
}
