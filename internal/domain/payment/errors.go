package payment

import "errors"

var (
	// ErrNotFound is returned when no payment matches the given id or
	// conversation id.
	ErrNotFound = errors.New("payment not found")

	// ErrUnknownProvider is returned when a provider identifier does not
	// map to a registered gateway integration.
	ErrUnknownProvider = errors.New("unknown payment provider")

	// ErrInvalidTransition is returned when an operation requires a status
	// the payment is not in, e.g. refunding a non-completed payment.
	ErrInvalidTransition = errors.New("invalid payment state transition")

	// ErrSignatureVerification is returned when a webhook's keyed hash does
	// not match. The payment record is never mutated in that case.
	ErrSignatureVerification = errors.New("webhook signature verification failed")

	// ErrAmountMismatch is returned when a webhook reports a total that
	// differs from the stored payment amount.
	ErrAmountMismatch = errors.New("webhook amount does not match payment")

	// ErrCreationFailed is returned when the gateway rejected payment
	// initialization; the record has already been transitioned to FAILED.
	ErrCreationFailed = errors.New("payment could not be initiated")

	// ErrRefundRejected is returned when the gateway declined a refund;
	// the payment stays COMPLETED.
	ErrRefundRejected = errors.New("refund rejected by provider")

	// ErrDuplicateConversationID is returned when a conversation id collides
	// with an existing record.
	ErrDuplicateConversationID = errors.New("conversation id already exists")
)
