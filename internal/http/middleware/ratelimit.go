package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/meoacar/squad/internal/repository/redis"
)

// RateLimiter middleware handles rate limiting
type RateLimiter struct {
	cache         *redis.Cache
	requestsLimit int
	windowSize    time.Duration
}

// NewRateLimiter creates a new rate limiter middleware
func NewRateLimiter(cache *redis.Cache, requestsLimit int, windowSize time.Duration) *RateLimiter {
	return &RateLimiter{
		cache:         cache,
		requestsLimit: requestsLimit,
		windowSize:    windowSize,
	}
}

// Limit returns a middleware that rate limits requests per client IP
func (rl *RateLimiter) Limit(endpoint string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := getClientIP(r)
			key := redis.RateLimitKey(ip, endpoint)

			count, err := rl.cache.IncrementWithTTL(r.Context(), key, rl.windowSize)
			if err != nil {
				// If Redis fails, allow the request
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", rl.requestsLimit))
			w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", max(0, int64(rl.requestsLimit)-count)))

			if count > int64(rl.requestsLimit) {
				w.Header().Set("Retry-After", fmt.Sprintf("%d", int(rl.windowSize.Seconds())))
				http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RateLimitMiddleware creates rate limiters for the different endpoint groups
type RateLimitMiddleware struct {
	payment *RateLimiter
	api     *RateLimiter
	webhook *RateLimiter
}

// NewRateLimitMiddleware creates a new rate limit middleware set
func NewRateLimitMiddleware(cache *redis.Cache, paymentLimit, apiLimit, webhookLimit int) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		payment: NewRateLimiter(cache, paymentLimit, time.Minute),
		api:     NewRateLimiter(cache, apiLimit, time.Minute),
		webhook: NewRateLimiter(cache, webhookLimit, time.Minute),
	}
}

// Payment returns the payment creation rate limiter middleware
func (rlm *RateLimitMiddleware) Payment() func(http.Handler) http.Handler {
	return rlm.payment.Limit("payment")
}

// API returns the general API rate limiter middleware
func (rlm *RateLimitMiddleware) API() func(http.Handler) http.Handler {
	return rlm.api.Limit("api")
}

// Webhook returns the webhook rate limiter middleware
func (rlm *RateLimitMiddleware) Webhook() func(http.Handler) http.Handler {
	return rlm.webhook.Limit("webhook")
}

func max(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
