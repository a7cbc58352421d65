package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meoacar/squad/internal/config"
	"github.com/meoacar/squad/internal/http/dto"
	"github.com/meoacar/squad/internal/http/handler"
	"github.com/meoacar/squad/internal/http/middleware"
	"github.com/meoacar/squad/internal/realtime/websocket"
	redisRepo "github.com/meoacar/squad/internal/repository/redis"
	"github.com/meoacar/squad/internal/service"
)

// Server represents the HTTP server
type Server struct {
	router *chi.Mux
	config *config.Config
	logger *slog.Logger
	pool   *pgxpool.Pool
	cache  *redisRepo.Cache
}

// NewServer creates a new HTTP server
func NewServer(
	cfg *config.Config,
	paymentService *service.PaymentService,
	authMiddleware *middleware.Auth,
	cache *redisRepo.Cache,
	pool *pgxpool.Pool,
	wsHandler *websocket.Handler,
	logger *slog.Logger,
) *Server {
	router := chi.NewRouter()
	validator := validator.New()

	server := &Server{
		router: router,
		config: cfg,
		logger: logger,
		pool:   pool,
		cache:  cache,
	}

	paymentHandler := handler.NewPaymentHandler(paymentService, validator, logger)
	webhookHandler := handler.NewWebhookHandler(paymentService, logger)

	rateLimits := middleware.NewRateLimitMiddleware(cache,
		cfg.RateLimit.PaymentPerMinute,
		cfg.RateLimit.APIPerMinute,
		cfg.RateLimit.WebhookPerMinute,
	)

	server.setupMiddleware(cfg, logger)
	server.setupRoutes(paymentHandler, webhookHandler, wsHandler, authMiddleware, rateLimits)

	return server
}

// setupMiddleware configures global middleware
func (s *Server) setupMiddleware(cfg *config.Config, logger *slog.Logger) {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(chimiddleware.Timeout(30 * time.Second))

	s.router.Use(middleware.Logger(logger))

	corsConfig := middleware.DefaultCORSConfig()
	if len(cfg.CORS.AllowedOrigins) > 0 {
		corsConfig.AllowedOrigins = cfg.CORS.AllowedOrigins
	}
	s.router.Use(middleware.CORS(corsConfig))
	s.router.Use(middleware.Security())
}

// setupRoutes configures all routes
func (s *Server) setupRoutes(
	paymentHandler *handler.PaymentHandler,
	webhookHandler *handler.WebhookHandler,
	wsHandler *websocket.Handler,
	authMiddleware *middleware.Auth,
	rateLimits *middleware.RateLimitMiddleware,
) {
	// Health checks (no rate limit)
	s.router.Get("/health", s.healthCheck)
	s.router.Get("/ready", s.readinessCheck)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Route("/payments", func(r chi.Router) {
			// Public routes: the return leg from the hosted payment page and
			// the gateway callback carry no user session
			r.With(rateLimits.API()).Get("/verify", paymentHandler.Verify)
			r.With(rateLimits.Webhook()).Post("/callback/{provider}", webhookHandler.Handle)

			// Authenticated routes
			r.Group(func(r chi.Router) {
				r.Use(authMiddleware.Middleware())
				r.Use(rateLimits.API())

				r.With(rateLimits.Payment()).Post("/", paymentHandler.Create)
				r.Get("/my-payments", paymentHandler.MyPayments)
				r.Get("/{id}", paymentHandler.GetByID)

				r.With(authMiddleware.RequireRole("admin")).Post("/{id}/refund", paymentHandler.Refund)
			})
		})
	})

	// WebSocket routes (JWT auth)
	s.router.Route("/ws", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.Middleware())
			r.Get("/payments/{id}", wsHandler.HandlePaymentStream)
		})
	})
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// healthCheck handles GET /health
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	s.writeHealth(w, http.StatusOK, dto.HealthResponse{
		Status:    "ok",
		Version:   s.config.App.Version,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// readinessCheck handles GET /ready
func (s *Server) readinessCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	services := map[string]string{
		"postgres": "up",
		"redis":    "up",
	}
	status, code := "ready", http.StatusOK
	if err := s.pool.Ping(ctx); err != nil {
		services["postgres"] = "down"
		status, code = "unavailable", http.StatusServiceUnavailable
	}
	if err := s.cache.Ping(ctx); err != nil {
		services["redis"] = "down"
		status, code = "unavailable", http.StatusServiceUnavailable
	}

	s.writeHealth(w, code, dto.HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Services:  services,
	})
}

func (s *Server) writeHealth(w http.ResponseWriter, code int, body dto.HealthResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("failed to encode health response", "error", err)
	}
}
