package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/meoacar/squad/internal/domain/payment"
	"github.com/meoacar/squad/internal/domain/provider"
	"github.com/meoacar/squad/internal/http/dto"
	"github.com/meoacar/squad/internal/http/middleware"
	"github.com/meoacar/squad/internal/service"
)

// PaymentHandler handles payment HTTP requests
type PaymentHandler struct {
	paymentService *service.PaymentService
	validator      *validator.Validate
	logger         *slog.Logger
}

// NewPaymentHandler creates a new payment handler
func NewPaymentHandler(
	paymentService *service.PaymentService,
	validator *validator.Validate,
	logger *slog.Logger,
) *PaymentHandler {
	return &PaymentHandler{
		paymentService: paymentService,
		validator:      validator,
		logger:         logger,
	}
}

// Create handles POST /api/v1/payments
func (h *PaymentHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaims(r.Context())
	if claims == nil {
		h.respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing credentials")
		return
	}

	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		h.respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid user ID in token")
		return
	}

	var req dto.CreatePaymentRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		validationErrors := err.(validator.ValidationErrors)
		h.respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", formatValidationErrors(validationErrors))
		return
	}

	currency := req.Currency
	if currency == "" {
		currency = "TRY"
	}

	result, err := h.paymentService.CreatePayment(r.Context(), service.CreatePaymentParams{
		UserID:      userID,
		UserEmail:   claims.Email,
		UserName:    claims.Username,
		UserIP:      getClientIP(r),
		Purpose:     payment.Purpose(req.Purpose),
		Amount:      req.Amount,
		Currency:    currency,
		Method:      payment.Method(req.Method),
		Provider:    payment.Provider(req.Provider),
		Description: req.Description,
		CallbackURL: req.CallbackURL,
	})
	if err != nil {
		switch {
		case errors.Is(err, payment.ErrUnknownProvider):
			h.respondError(w, http.StatusBadRequest, "UNKNOWN_PROVIDER", "Unsupported payment provider")
		case errors.Is(err, payment.ErrDuplicateConversationID):
			h.respondError(w, http.StatusConflict, "DUPLICATE_PAYMENT", "Payment already exists")
		case errors.Is(err, payment.ErrCreationFailed):
			h.respondError(w, http.StatusBadGateway, "CREATE_FAILED", err.Error())
		default:
			h.logger.Error("failed to create payment", "error", err)
			h.respondError(w, http.StatusInternalServerError, "CREATE_FAILED", "Failed to create payment")
		}
		return
	}

	h.respondJSON(w, http.StatusCreated, dto.CreatePaymentResponse{
		Payment:    dto.NewPaymentResponse(result.Payment),
		PaymentURL: result.PaymentURL,
		Token:      result.Token,
	})
}

// Verify handles GET /api/v1/payments/verify
func (h *PaymentHandler) Verify(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	conversationID := r.URL.Query().Get("conversationId")
	prov := r.URL.Query().Get("provider")

	if conversationID == "" || prov == "" {
		h.respondError(w, http.StatusBadRequest, "MISSING_PARAMS", "conversationId and provider are required")
		return
	}

	if !payment.ValidProvider(prov) {
		h.respondError(w, http.StatusBadRequest, "UNKNOWN_PROVIDER", "Unsupported payment provider")
		return
	}

	result, err := h.paymentService.VerifyPayment(r.Context(), payment.Provider(prov), token, conversationID)
	if err != nil {
		switch {
		case errors.Is(err, payment.ErrNotFound):
			h.respondError(w, http.StatusNotFound, "NOT_FOUND", "Payment not found")
		case errors.Is(err, provider.ErrPullVerificationUnsupported):
			h.respondError(w, http.StatusBadRequest, "VERIFY_UNSUPPORTED", "Provider settles via webhook only")
		default:
			h.logger.Error("failed to verify payment", "conversation_id", conversationID, "error", err)
			h.respondError(w, http.StatusInternalServerError, "VERIFY_FAILED", "Failed to verify payment")
		}
		return
	}

	h.respondJSON(w, http.StatusOK, dto.VerifyPaymentResponse{
		Payment: dto.NewPaymentResponse(result.Payment),
		Success: result.Success,
		Message: result.Message,
	})
}

// GetByID handles GET /api/v1/payments/{id}
func (h *PaymentHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaims(r.Context())
	if claims == nil {
		h.respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing credentials")
		return
	}

	idStr := chi.URLParam(r, "id")
	id, err := uuid.Parse(idStr)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "INVALID_ID", "Invalid payment ID")
		return
	}

	pay, err := h.paymentService.GetPayment(r.Context(), id)
	if err != nil {
		h.respondError(w, http.StatusNotFound, "NOT_FOUND", "Payment not found")
		return
	}

	if pay.UserID.String() != claims.UserID && claims.Role != "admin" {
		h.respondError(w, http.StatusForbidden, "FORBIDDEN", "Not your payment")
		return
	}

	h.respondJSON(w, http.StatusOK, dto.NewPaymentResponse(pay))
}

// MyPayments handles GET /api/v1/payments/my-payments
func (h *PaymentHandler) MyPayments(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaims(r.Context())
	if claims == nil {
		h.respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing credentials")
		return
	}

	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		h.respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid user ID in token")
		return
	}

	payments, err := h.paymentService.GetUserPayments(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to list payments", "user_id", userID, "error", err)
		h.respondError(w, http.StatusInternalServerError, "LIST_FAILED", "Failed to list payments")
		return
	}

	responses := make([]dto.PaymentResponse, len(payments))
	for i, p := range payments {
		responses[i] = dto.NewPaymentResponse(p)
	}

	h.respondJSON(w, http.StatusOK, dto.ListPaymentsResponse{
		Payments: responses,
		Total:    len(responses),
	})
}

// Refund handles POST /api/v1/payments/{id}/refund (admin)
func (h *PaymentHandler) Refund(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaims(r.Context())
	if claims == nil {
		h.respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing credentials")
		return
	}

	adminID, err := uuid.Parse(claims.UserID)
	if err != nil {
		h.respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid user ID in token")
		return
	}

	idStr := chi.URLParam(r, "id")
	id, err := uuid.Parse(idStr)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "INVALID_ID", "Invalid payment ID")
		return
	}

	var req dto.RefundPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		validationErrors := err.(validator.ValidationErrors)
		h.respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", formatValidationErrors(validationErrors))
		return
	}

	pay, err := h.paymentService.RefundPayment(r.Context(), id, adminID, req.Reason)
	if err != nil {
		switch {
		case errors.Is(err, payment.ErrNotFound):
			h.respondError(w, http.StatusNotFound, "NOT_FOUND", "Payment not found")
		case errors.Is(err, payment.ErrInvalidTransition):
			h.respondError(w, http.StatusConflict, "INVALID_STATE", "Only completed payments can be refunded")
		case errors.Is(err, payment.ErrRefundRejected):
			h.respondError(w, http.StatusBadGateway, "REFUND_REJECTED", "Gateway rejected the refund")
		default:
			h.logger.Error("failed to refund payment", "payment_id", id, "error", err)
			h.respondError(w, http.StatusInternalServerError, "REFUND_FAILED", "Failed to refund payment")
		}
		return
	}

	h.respondJSON(w, http.StatusOK, dto.NewPaymentResponse(pay))
}

// respondJSON sends JSON response
func (h *PaymentHandler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError sends error response
func (h *PaymentHandler) respondError(w http.ResponseWriter, status int, code, message string) {
	h.respondJSON(w, status, dto.ErrorResponse{
		Error:   code,
		Message: message,
	})
}

// formatValidationErrors formats validation errors
func formatValidationErrors(errs validator.ValidationErrors) string {
	if len(errs) == 0 {
		return "Validation failed"
	}

	messages := make([]string, len(errs))
	for i, err := range errs {
		switch err.Tag() {
		case "required":
			messages[i] = err.Field() + " is required"
		case "min":
			messages[i] = err.Field() + " is below minimum"
		case "max":
			messages[i] = err.Field() + " is above maximum"
		case "oneof":
			messages[i] = err.Field() + " has an unsupported value"
		case "url":
			messages[i] = err.Field() + " must be a valid URL"
		default:
			messages[i] = err.Field() + " is invalid"
		}
	}

	return messages[0]
}

// getClientIP extracts the client IP from the request
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}
