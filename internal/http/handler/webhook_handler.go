package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/meoacar/squad/internal/domain/payment"
	"github.com/meoacar/squad/internal/domain/provider"
	"github.com/meoacar/squad/internal/service"
)

// WebhookHandler handles payment provider webhook callbacks
type WebhookHandler struct {
	paymentService *service.PaymentService
	logger         *slog.Logger
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(paymentService *service.PaymentService, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		paymentService: paymentService,
		logger:         logger,
	}
}

// Handle handles POST /api/v1/payments/callback/{provider}.
//
// Gateways retry callbacks that do not get a plain "OK" body back, so every
// syntactically valid notification is acknowledged with 200 even when it is
// rejected; rejections are logged and the payment record is left untouched.
func (h *WebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	providerName := strings.ToUpper(chi.URLParam(r, "provider"))
	if !payment.ValidProvider(providerName) {
		http.Error(w, "unknown provider", http.StatusNotFound)
		return
	}

	if err := r.ParseForm(); err != nil {
		h.logger.Warn("unparsable webhook payload", "provider", providerName, "error", err)
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	merchantOID := r.PostFormValue("merchant_oid")
	status := r.PostFormValue("status")
	totalAmountStr := r.PostFormValue("total_amount")
	hash := r.PostFormValue("hash")
	failedReason := r.PostFormValue("failed_reason_msg")

	if merchantOID == "" || status == "" {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	// Audit the full form so fields we do not correlate on are not lost.
	raw, _ := json.Marshal(r.PostForm)

	err := h.paymentService.HandleWebhook(r.Context(), service.HandleWebhookParams{
		Provider: payment.Provider(providerName),
		Notification: provider.WebhookNotification{
			MerchantOrderID: merchantOID,
			Status:          status,
			TotalAmount:     totalAmountStr,
			Hash:            hash,
			FailedReason:    failedReason,
			Raw:             raw,
		},
		IPAddress: getClientIP(r),
	})
	if err != nil {
		switch {
		case errors.Is(err, payment.ErrSignatureVerification):
			h.logger.Warn("webhook signature verification failed",
				"provider", providerName,
				"conversation_id", merchantOID,
				"ip", getClientIP(r),
			)
		case errors.Is(err, payment.ErrAmountMismatch):
			h.logger.Warn("webhook amount mismatch",
				"provider", providerName,
				"conversation_id", merchantOID,
			)
		default:
			h.logger.Error("failed to process webhook",
				"provider", providerName,
				"conversation_id", merchantOID,
				"error", err,
			)
		}
	}

	// Gateways expect this exact body
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}
