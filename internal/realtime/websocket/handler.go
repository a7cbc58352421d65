package websocket

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/meoacar/squad/internal/http/middleware"
	"github.com/meoacar/squad/internal/service"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// TODO: Implement proper origin check based on config
		return true
	},
}

// Handler handles WebSocket connections
type Handler struct {
	hub            *Hub
	paymentService *service.PaymentService
	logger         *slog.Logger
}

// NewHandler creates a new WebSocket handler
func NewHandler(hub *Hub, paymentService *service.PaymentService, logger *slog.Logger) *Handler {
	return &Handler{
		hub:            hub,
		paymentService: paymentService,
		logger:         logger,
	}
}

// HandlePaymentStream handles GET /ws/payments/{id}. The caller must own the
// payment or hold the admin role.
func (h *Handler) HandlePaymentStream(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaims(r.Context())
	if claims == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Invalid payment ID", http.StatusBadRequest)
		return
	}

	pay, err := h.paymentService.GetPayment(r.Context(), id)
	if err != nil {
		http.Error(w, "Payment not found", http.StatusNotFound)
		return
	}

	if pay.UserID.String() != claims.UserID && claims.Role != "admin" {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("failed to upgrade websocket",
			"error", err,
		)
		return
	}

	channel := PaymentChannel(pay.ID.String())
	client := NewClient(conn, h.hub, channel, claims.UserID, h.logger)

	h.hub.register <- client

	client.SendWelcome()

	h.logger.Info("payment stream client connected",
		"client_id", client.id,
		"payment_id", pay.ID,
		"user_id", claims.UserID,
	)

	go client.WritePump()
	go client.ReadPump()
}
