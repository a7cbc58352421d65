package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/meoacar/squad/internal/domain/payment"
	"github.com/meoacar/squad/internal/domain/provider"
	redisRepo "github.com/meoacar/squad/internal/repository/redis"
)

// GatewayResolver resolves provider names to gateway implementations.
type GatewayResolver interface {
	Get(name payment.Provider) (provider.Gateway, error)
	Webhook(name payment.Provider) (provider.WebhookGateway, error)
}

// IdempotencyStore claims one-shot keys with a TTL.
type IdempotencyStore interface {
	SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, key string) error
}

// EventPublisher publishes payment status changes for real-time consumers.
type EventPublisher interface {
	PublishPaymentEvent(ctx context.Context, event *redisRepo.PaymentEvent) error
}

// PaymentService handles payment business logic
type PaymentService struct {
	paymentRepo    payment.Repository
	webhookLogRepo payment.WebhookLogRepository
	gateways       GatewayResolver
	pubsub         EventPublisher
	cache          IdempotencyStore
	logger         *slog.Logger
}

// NewPaymentService creates a new payment service
func NewPaymentService(
	paymentRepo payment.Repository,
	webhookLogRepo payment.WebhookLogRepository,
	gateways GatewayResolver,
	pubsub EventPublisher,
	cache IdempotencyStore,
	logger *slog.Logger,
) *PaymentService {
	return &PaymentService{
		paymentRepo:    paymentRepo,
		webhookLogRepo: webhookLogRepo,
		gateways:       gateways,
		pubsub:         pubsub,
		cache:          cache,
		logger:         logger,
	}
}

// CreatePaymentParams holds parameters for creating a payment
type CreatePaymentParams struct {
	UserID      uuid.UUID
	UserEmail   string
	UserName    string
	UserPhone   string
	UserIP      string
	Purpose     payment.Purpose
	Amount      int64
	Currency    string
	Method      payment.Method
	Provider    payment.Provider
	Description string
	CallbackURL string
}

// CreatePaymentResult holds the result of creating a payment
type CreatePaymentResult struct {
	Payment    *payment.Payment
	PaymentURL string
	Token      string
}

// CreatePayment creates a payment record and initializes it with the gateway.
// The record is persisted as PENDING before the gateway call so that a failed
// initialization still leaves an auditable FAILED record behind.
func (s *PaymentService) CreatePayment(ctx context.Context, params CreatePaymentParams) (*CreatePaymentResult, error) {
	gateway, err := s.gateways.Get(params.Provider)
	if err != nil {
		return nil, err
	}

	pay := payment.New(params.UserID, params.Purpose, params.Amount, params.Currency, params.Method, params.Provider, params.Description)

	if err := s.paymentRepo.Create(ctx, pay); err != nil {
		return nil, fmt.Errorf("failed to create payment: %w", err)
	}

	req := provider.PaymentRequest{
		ConversationID: pay.ConversationID,
		Amount:         pay.Amount,
		Currency:       pay.Currency,
		Description:    pay.Description,
		UserID:         params.UserID.String(),
		UserEmail:      params.UserEmail,
		UserName:       params.UserName,
		UserPhone:      params.UserPhone,
		UserIP:         params.UserIP,
		CallbackURL:    params.CallbackURL,
	}

	result, err := gateway.CreatePayment(ctx, req)
	if err != nil {
		return nil, s.failCreation(ctx, pay, err.Error())
	}
	if !result.Success {
		return nil, s.failCreation(ctx, pay, result.ErrorMessage)
	}

	pay.Metadata.SetProviderArtifacts(result.Token, result.PaymentURL, result.RawResponse)
	if err := s.paymentRepo.UpdateMetadata(ctx, pay.ID, pay.Metadata); err != nil {
		s.logger.Error("failed to store provider artifacts", "payment_id", pay.ID, "error", err)
	}

	s.logger.Info("payment created",
		"payment_id", pay.ID,
		"conversation_id", pay.ConversationID,
		"provider", pay.Provider,
		"amount", pay.Amount,
		"purpose", pay.Purpose,
	)

	return &CreatePaymentResult{
		Payment:    pay,
		PaymentURL: result.PaymentURL,
		Token:      result.Token,
	}, nil
}

// failCreation marks the pending record FAILED and returns a wrapped creation error
func (s *PaymentService) failCreation(ctx context.Context, pay *payment.Payment, reason string) error {
	pay.Metadata.CreateError = reason

	if _, _, err := s.paymentRepo.MarkFailed(ctx, pay.ConversationID, pay.Metadata); err != nil {
		s.logger.Error("failed to mark payment as failed", "payment_id", pay.ID, "error", err)
	}

	s.logger.Warn("payment creation rejected",
		"payment_id", pay.ID,
		"provider", pay.Provider,
		"reason", reason,
	)

	return fmt.Errorf("%w: %s", payment.ErrCreationFailed, reason)
}

// VerifyResult holds the result of a pull-based verification
type VerifyResult struct {
	Payment *payment.Payment
	Success bool
	Message string
}

// VerifyPayment verifies a payment against the gateway after the user returns
// from the hosted payment page. Replays against a settled record are no-ops.
func (s *PaymentService) VerifyPayment(ctx context.Context, prov payment.Provider, token, conversationID string) (*VerifyResult, error) {
	gateway, err := s.gateways.Get(prov)
	if err != nil {
		return nil, err
	}

	pay, err := s.paymentRepo.GetByConversationID(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	if !pay.IsPending() {
		return &VerifyResult{
			Payment: pay,
			Success: pay.IsCompleted(),
			Message: "payment already settled",
		}, nil
	}

	verification, err := gateway.VerifyPayment(ctx, token, conversationID)
	if err != nil {
		if errors.Is(err, provider.ErrPullVerificationUnsupported) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to verify payment: %w", err)
	}

	if verification.Success && verification.Status == payment.StatusCompleted {
		updated, applied, err := s.paymentRepo.MarkCompleted(ctx, conversationID, verification.TransactionID, pay.Metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to complete payment: %w", err)
		}
		if applied {
			s.publishStatusEvent(ctx, updated)
			s.logger.Info("payment completed",
				"payment_id", updated.ID,
				"conversation_id", conversationID,
				"transaction_id", verification.TransactionID,
			)
		}
		return &VerifyResult{Payment: updated, Success: updated.IsCompleted(), Message: "payment completed"}, nil
	}

	pay.Metadata.VerifyError = verification.ErrorMessage
	updated, applied, err := s.paymentRepo.MarkFailed(ctx, conversationID, pay.Metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to mark payment as failed: %w", err)
	}
	if applied {
		s.publishStatusEvent(ctx, updated)
		s.logger.Warn("payment verification failed",
			"payment_id", updated.ID,
			"conversation_id", conversationID,
			"reason", verification.ErrorMessage,
		)
	}

	return &VerifyResult{Payment: updated, Success: updated.IsCompleted(), Message: verification.ErrorMessage}, nil
}

// HandleWebhookParams holds a parsed webhook notification with its envelope
type HandleWebhookParams struct {
	Provider     payment.Provider
	Notification provider.WebhookNotification
	IPAddress    string
}

// HandleWebhook processes a push notification from a gateway. All rejections
// are returned as errors so the handler can log them; the record is only
// mutated when the signature and amount check out.
func (s *PaymentService) HandleWebhook(ctx context.Context, params HandleWebhookParams) error {
	gateway, err := s.gateways.Webhook(params.Provider)
	if err != nil {
		return err
	}

	n := params.Notification

	wlog := payment.NewWebhookLog(params.Provider, n.MerchantOrderID, n.Raw, n.Hash, params.IPAddress)
	if err := s.webhookLogRepo.Create(ctx, wlog); err != nil {
		s.logger.Error("failed to persist webhook log", "error", err)
	}

	if !gateway.VerifyWebhookSignature(n) {
		s.rejectWebhook(ctx, wlog, "invalid signature")
		return fmt.Errorf("%w: provider %s, order %s", payment.ErrSignatureVerification, params.Provider, n.MerchantOrderID)
	}

	dedupKey := redisRepo.WebhookIdempotencyKey(string(params.Provider), n.MerchantOrderID, n.Status)
	set, err := s.cache.SetNX(ctx, dedupKey, "processing", 24*time.Hour)
	if err != nil {
		s.logger.Warn("failed to check webhook idempotency", "error", err)
	}
	if err == nil && !set {
		s.logger.Info("duplicate webhook ignored",
			"provider", params.Provider,
			"conversation_id", n.MerchantOrderID,
			"status", n.Status,
		)
		s.markWebhookProcessed(ctx, wlog, "duplicate")
		return nil
	}
	claimed := err == nil && set

	// The gateway only redelivers if we fail to ack, so a claimed dedup key
	// must not outlive a failed attempt: release it and let the redelivery
	// retry. The store-level conditional update keeps reprocessing safe.
	if err := s.settleFromWebhook(ctx, wlog, n); err != nil {
		if claimed {
			if derr := s.cache.Delete(ctx, dedupKey); derr != nil {
				s.logger.Error("failed to release webhook idempotency key",
					"key", dedupKey,
					"error", derr,
				)
			}
		}
		return err
	}
	return nil
}

// settleFromWebhook applies a signature-verified notification to the payment
// record. Any error leaves the record unsettled.
func (s *PaymentService) settleFromWebhook(ctx context.Context, wlog *payment.WebhookLog, n provider.WebhookNotification) error {
	pay, err := s.paymentRepo.GetByConversationID(ctx, n.MerchantOrderID)
	if err != nil {
		s.rejectWebhook(ctx, wlog, "payment not found")
		return fmt.Errorf("webhook for unknown payment %s: %w", n.MerchantOrderID, err)
	}

	if n.TotalAmount != "" {
		reported, err := strconv.ParseInt(n.TotalAmount, 10, 64)
		if err != nil || reported != pay.Amount {
			s.rejectWebhook(ctx, wlog, "amount mismatch")
			return fmt.Errorf("%w: expected %d, webhook reported %q", payment.ErrAmountMismatch, pay.Amount, n.TotalAmount)
		}
	}

	if !pay.IsPending() {
		s.logger.Info("webhook for settled payment ignored",
			"payment_id", pay.ID,
			"status", pay.Status,
		)
		s.markWebhookProcessed(ctx, wlog, "already settled")
		return nil
	}

	pay.Metadata.SetWebhookPayload(n.Raw)

	if n.Status == "success" {
		updated, applied, err := s.paymentRepo.MarkCompleted(ctx, n.MerchantOrderID, n.MerchantOrderID, pay.Metadata)
		if err != nil {
			return fmt.Errorf("failed to complete payment: %w", err)
		}
		if applied {
			s.publishStatusEvent(ctx, updated)
			s.logger.Info("payment completed via webhook",
				"payment_id", updated.ID,
				"conversation_id", n.MerchantOrderID,
				"amount", updated.Amount,
			)
		}
	} else {
		pay.Metadata.VerifyError = n.FailedReason
		updated, applied, err := s.paymentRepo.MarkFailed(ctx, n.MerchantOrderID, pay.Metadata)
		if err != nil {
			return fmt.Errorf("failed to mark payment as failed: %w", err)
		}
		if applied {
			s.publishStatusEvent(ctx, updated)
			s.logger.Warn("payment failed via webhook",
				"payment_id", updated.ID,
				"conversation_id", n.MerchantOrderID,
				"reason", n.FailedReason,
			)
		}
	}

	s.markWebhookProcessed(ctx, wlog, "")
	return nil
}

// RefundPayment refunds a completed payment through its gateway. The refund
// call goes out first; the transition is applied only after the gateway
// accepts it.
func (s *PaymentService) RefundPayment(ctx context.Context, id uuid.UUID, refundedBy uuid.UUID, reason string) (*payment.Payment, error) {
	pay, err := s.paymentRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if !pay.IsCompleted() {
		return nil, fmt.Errorf("%w: cannot refund payment in status %s", payment.ErrInvalidTransition, pay.Status)
	}

	gateway, err := s.gateways.Get(pay.Provider)
	if err != nil {
		return nil, err
	}

	transactionID := pay.TransactionID
	if transactionID == "" {
		transactionID = pay.ConversationID
	}

	if ok := gateway.RefundPayment(ctx, transactionID, pay.Amount); !ok {
		s.logger.Warn("refund rejected by gateway",
			"payment_id", pay.ID,
			"provider", pay.Provider,
			"amount", pay.Amount,
		)
		return nil, payment.ErrRefundRejected
	}

	updated, applied, err := s.paymentRepo.MarkRefunded(ctx, id, refundedBy, reason)
	if err != nil {
		return nil, fmt.Errorf("failed to mark payment as refunded: %w", err)
	}
	if !applied {
		return nil, fmt.Errorf("%w: payment left COMPLETED during refund", payment.ErrInvalidTransition)
	}

	s.publishStatusEvent(ctx, updated)
	s.logger.Info("payment refunded",
		"payment_id", updated.ID,
		"refunded_by", refundedBy,
		"reason", reason,
	)

	return updated, nil
}

// GetPayment gets a payment by ID
func (s *PaymentService) GetPayment(ctx context.Context, id uuid.UUID) (*payment.Payment, error) {
	return s.paymentRepo.GetByID(ctx, id)
}

// GetUserPayments lists a user's payments
func (s *PaymentService) GetUserPayments(ctx context.Context, userID uuid.UUID) ([]*payment.Payment, error) {
	return s.paymentRepo.ListByUser(ctx, userID)
}

// publishStatusEvent publishes a status change for real-time consumers
func (s *PaymentService) publishStatusEvent(ctx context.Context, pay *payment.Payment) {
	event := &redisRepo.PaymentEvent{
		Type:           "payment_status",
		ID:             pay.ID.String(),
		ConversationID: pay.ConversationID,
		Status:         string(pay.Status),
		Amount:         pay.Amount,
		Purpose:        string(pay.Purpose),
		OccurredAt:     time.Now().UTC().Format(time.RFC3339),
	}

	if err := s.pubsub.PublishPaymentEvent(ctx, event); err != nil {
		s.logger.Error("failed to publish payment event", "payment_id", pay.ID, "error", err)
	}
}

func (s *PaymentService) rejectWebhook(ctx context.Context, wlog *payment.WebhookLog, reason string) {
	if err := s.webhookLogRepo.MarkProcessed(ctx, wlog.ID, reason); err != nil {
		s.logger.Error("failed to update webhook log", "error", err)
	}
}

func (s *PaymentService) markWebhookProcessed(ctx context.Context, wlog *payment.WebhookLog, reason string) {
	if err := s.webhookLogRepo.MarkProcessed(ctx, wlog.ID, reason); err != nil {
		s.logger.Error("failed to update webhook log", "error", err)
	}
}
