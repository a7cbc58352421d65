package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	redisRepo "github.com/meoacar/squad/internal/repository/redis"
)

// Hub maintains the set of active clients and broadcasts messages
type Hub struct {
	// Registered clients by channel
	clients map[string]map[*Client]bool

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Broadcast message to specific channel
	broadcast chan *BroadcastMessage

	// Pubsub for receiving events from other instances
	pubsub *redisRepo.PubSub

	logger *slog.Logger

	mu sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
}

// BroadcastMessage represents a message to broadcast
type BroadcastMessage struct {
	Channel string
	Message []byte
}

// PaymentChannel returns the hub channel name for a payment's status stream
func PaymentChannel(paymentID string) string {
	return "payment:" + paymentID
}

// NewHub creates a new Hub
func NewHub(pubsub *redisRepo.PubSub, logger *slog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())

	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		register:   make(chan *Client, 256),
		unregister: make(chan *Client, 256),
		broadcast:  make(chan *BroadcastMessage, 256),
		pubsub:     pubsub,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Run starts the hub
func (h *Hub) Run() {
	go h.subscribeToEvents()

	for {
		select {
		case <-h.ctx.Done():
			h.logger.Info("hub shutting down")
			return

		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case msg := <-h.broadcast:
			h.broadcastToChannel(msg)
		}
	}
}

// Stop gracefully stops the hub
func (h *Hub) Stop() {
	h.cancel()
}

// registerClient adds a client to a channel
func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[client.channel] == nil {
		h.clients[client.channel] = make(map[*Client]bool)
	}
	h.clients[client.channel][client] = true

	h.logger.Debug("client registered",
		"channel", client.channel,
		"client_id", client.id,
		"clients_in_channel", len(h.clients[client.channel]),
	)
}

// unregisterClient removes a client from its channel
func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if clients, ok := h.clients[client.channel]; ok {
		if _, exists := clients[client]; exists {
			delete(clients, client)
			close(client.send)

			if len(clients) == 0 {
				delete(h.clients, client.channel)
			}

			h.logger.Debug("client unregistered",
				"channel", client.channel,
				"client_id", client.id,
			)
		}
	}
}

// broadcastToChannel sends message to all clients in a channel
func (h *Hub) broadcastToChannel(msg *BroadcastMessage) {
	h.mu.RLock()
	clients, ok := h.clients[msg.Channel]
	h.mu.RUnlock()

	if !ok {
		return
	}

	for client := range clients {
		select {
		case client.send <- msg.Message:
		default:
			// Client buffer full, unregister
			h.unregister <- client
		}
	}
}

// BroadcastPaymentEvent broadcasts a status change to the payment's channel
func (h *Hub) BroadcastPaymentEvent(event *redisRepo.PaymentEvent) {
	msg := OutgoingMessage{
		Type:      "payment_status",
		Timestamp: time.Now().Format(time.RFC3339),
		Data: map[string]interface{}{
			"id":              event.ID,
			"conversation_id": event.ConversationID,
			"status":          event.Status,
			"amount":          event.Amount,
			"purpose":         event.Purpose,
			"occurred_at":     event.OccurredAt,
		},
	}

	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("failed to marshal payment event", "error", err)
		return
	}

	h.broadcast <- &BroadcastMessage{
		Channel: PaymentChannel(event.ID),
		Message: data,
	}
}

// subscribeToEvents subscribes to Redis events
func (h *Hub) subscribeToEvents() {
	err := h.pubsub.SubscribePayments(h.ctx, func(event *redisRepo.PaymentEvent) {
		h.BroadcastPaymentEvent(event)
	})

	if err != nil {
		h.logger.Error("failed to subscribe to payment events", "error", err)
	}
}

// GetClientCount returns the number of clients in a channel
func (h *Hub) GetClientCount(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if clients, ok := h.clients[channel]; ok {
		return len(clients)
	}
	return 0
}
