package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meoacar/squad/internal/domain/payment"
	"github.com/meoacar/squad/internal/domain/provider"
	redisRepo "github.com/meoacar/squad/internal/repository/redis"
	"github.com/meoacar/squad/internal/service"
)

// stubRepo is an in-memory payment store with the same conditional update
// semantics as the postgres implementation.
type stubRepo struct {
	mu       sync.Mutex
	payments map[string]*payment.Payment
}

func newStubRepo() *stubRepo {
	return &stubRepo{payments: make(map[string]*payment.Payment)}
}

func (r *stubRepo) Create(ctx context.Context, p *payment.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.payments[p.ConversationID]; ok {
		return payment.ErrDuplicateConversationID
	}
	cp := *p
	r.payments[p.ConversationID] = &cp
	return nil
}

func (r *stubRepo) GetByID(ctx context.Context, id uuid.UUID) (*payment.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.payments {
		if p.ID == id {
			cp := *p
			return &cp, nil
		}
	}
	return nil, payment.ErrNotFound
}

func (r *stubRepo) GetByConversationID(ctx context.Context, conversationID string) (*payment.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[conversationID]
	if !ok {
		return nil, payment.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *stubRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]*payment.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*payment.Payment
	for _, p := range r.payments {
		if p.UserID == userID {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *stubRepo) UpdateMetadata(ctx context.Context, id uuid.UUID, meta payment.Metadata) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.payments {
		if p.ID == id {
			p.Metadata = meta
			return nil
		}
	}
	return payment.ErrNotFound
}

func (r *stubRepo) MarkCompleted(ctx context.Context, conversationID, transactionID string, meta payment.Metadata) (*payment.Payment, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[conversationID]
	if !ok {
		return nil, false, payment.ErrNotFound
	}
	if p.Status != payment.StatusPending {
		cp := *p
		return &cp, false, nil
	}
	now := time.Now()
	p.Status = payment.StatusCompleted
	p.TransactionID = transactionID
	p.Metadata = meta
	p.CompletedAt = &now
	cp := *p
	return &cp, true, nil
}

func (r *stubRepo) MarkFailed(ctx context.Context, conversationID string, meta payment.Metadata) (*payment.Payment, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[conversationID]
	if !ok {
		return nil, false, payment.ErrNotFound
	}
	if p.Status != payment.StatusPending {
		cp := *p
		return &cp, false, nil
	}
	p.Status = payment.StatusFailed
	p.Metadata = meta
	cp := *p
	return &cp, true, nil
}

func (r *stubRepo) MarkRefunded(ctx context.Context, id uuid.UUID, refundedBy uuid.UUID, reason string) (*payment.Payment, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.payments {
		if p.ID == id {
			if p.Status != payment.StatusCompleted {
				cp := *p
				return &cp, false, nil
			}
			now := time.Now()
			p.Status = payment.StatusRefunded
			p.RefundedAt = &now
			p.RefundedBy = &refundedBy
			p.RefundReason = reason
			cp := *p
			return &cp, true, nil
		}
	}
	return nil, false, payment.ErrNotFound
}

type stubWebhookLogRepo struct {
	mu      sync.Mutex
	logs    []*payment.WebhookLog
	reasons map[uuid.UUID]string
}

func newStubWebhookLogRepo() *stubWebhookLogRepo {
	return &stubWebhookLogRepo{reasons: make(map[uuid.UUID]string)}
}

func (r *stubWebhookLogRepo) Create(ctx context.Context, log *payment.WebhookLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, log)
	return nil
}

func (r *stubWebhookLogRepo) MarkProcessed(ctx context.Context, id uuid.UUID, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reasons[id] = reason
	return nil
}

type stubGateway struct {
	name        payment.Provider
	signatureOK bool
}

func (g *stubGateway) Name() payment.Provider { return g.name }

func (g *stubGateway) CreatePayment(ctx context.Context, req provider.PaymentRequest) (*provider.CreateResult, error) {
	return &provider.CreateResult{Success: true, PaymentURL: "https://pay.example", Token: "tok"}, nil
}

func (g *stubGateway) VerifyPayment(ctx context.Context, token, conversationID string) (*provider.Verification, error) {
	return nil, provider.ErrPullVerificationUnsupported
}

func (g *stubGateway) RefundPayment(ctx context.Context, transactionID string, amount int64) bool {
	return true
}

func (g *stubGateway) VerifyWebhookSignature(n provider.WebhookNotification) bool {
	return g.signatureOK
}

type stubResolver struct {
	gateway *stubGateway
}

func (r *stubResolver) Get(name payment.Provider) (provider.Gateway, error) {
	if name != r.gateway.name {
		return nil, payment.ErrUnknownProvider
	}
	return r.gateway, nil
}

func (r *stubResolver) Webhook(name payment.Provider) (provider.WebhookGateway, error) {
	if name != r.gateway.name {
		return nil, payment.ErrUnknownProvider
	}
	return r.gateway, nil
}

type stubCache struct {
	mu   sync.Mutex
	seen map[string]bool
}

func newStubCache() *stubCache {
	return &stubCache{seen: make(map[string]bool)}
}

func (c *stubCache) SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.seen[key] {
		return false, nil
	}
	c.seen[key] = true
	return true, nil
}

func (c *stubCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.seen, key)
	return nil
}

type stubPublisher struct{}

func (p *stubPublisher) PublishPaymentEvent(ctx context.Context, event *redisRepo.PaymentEvent) error {
	return nil
}

type webhookFixture struct {
	router  *chi.Mux
	repo    *stubRepo
	logs    *stubWebhookLogRepo
	gateway *stubGateway
}

func newWebhookFixture() *webhookFixture {
	repo := newStubRepo()
	logs := newStubWebhookLogRepo()
	gateway := &stubGateway{name: payment.ProviderPayTR, signatureOK: true}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	svc := service.NewPaymentService(repo, logs, &stubResolver{gateway: gateway}, &stubPublisher{}, newStubCache(), logger)
	h := NewWebhookHandler(svc, logger)

	router := chi.NewRouter()
	router.Post("/api/v1/payments/callback/{provider}", h.Handle)

	return &webhookFixture{router: router, repo: repo, logs: logs, gateway: gateway}
}

func (f *webhookFixture) seedPending(t *testing.T) *payment.Payment {
	t.Helper()
	p := payment.New(uuid.New(), payment.PurposePremium, 9900, "TRY", payment.MethodCreditCard, payment.ProviderPayTR, "premium upgrade")
	require.NoError(t, f.repo.Create(context.Background(), p))
	return p
}

func postCallback(router *chi.Mux, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func notificationForm(conversationID, status, amount string) string {
	form := url.Values{}
	form.Set("merchant_oid", conversationID)
	form.Set("status", status)
	form.Set("total_amount", amount)
	form.Set("hash", "sig")
	return form.Encode()
}

func TestWebhookHandle(t *testing.T) {
	t.Run("valid notification is acked and settles the payment", func(t *testing.T) {
		f := newWebhookFixture()
		p := f.seedPending(t)

		rec := postCallback(f.router, "/api/v1/payments/callback/paytr", notificationForm(p.ConversationID, "success", "9900"))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "OK", rec.Body.String())

		stored, err := f.repo.GetByConversationID(context.Background(), p.ConversationID)
		require.NoError(t, err)
		assert.Equal(t, payment.StatusCompleted, stored.Status)
	})

	t.Run("forged signature is acked but leaves the record untouched", func(t *testing.T) {
		f := newWebhookFixture()
		p := f.seedPending(t)
		f.gateway.signatureOK = false

		rec := postCallback(f.router, "/api/v1/payments/callback/paytr", notificationForm(p.ConversationID, "success", "9900"))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "OK", rec.Body.String())

		stored, err := f.repo.GetByConversationID(context.Background(), p.ConversationID)
		require.NoError(t, err)
		assert.Equal(t, payment.StatusPending, stored.Status)
	})

	t.Run("amount mismatch is acked without settling", func(t *testing.T) {
		f := newWebhookFixture()
		p := f.seedPending(t)

		rec := postCallback(f.router, "/api/v1/payments/callback/paytr", notificationForm(p.ConversationID, "success", "1"))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "OK", rec.Body.String())

		stored, err := f.repo.GetByConversationID(context.Background(), p.ConversationID)
		require.NoError(t, err)
		assert.Equal(t, payment.StatusPending, stored.Status)
	})

	t.Run("unknown payment is still acked", func(t *testing.T) {
		f := newWebhookFixture()

		rec := postCallback(f.router, "/api/v1/payments/callback/paytr", notificationForm("no-such-order", "success", "9900"))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "OK", rec.Body.String())
	})

	t.Run("unknown provider path", func(t *testing.T) {
		f := newWebhookFixture()

		rec := postCallback(f.router, "/api/v1/payments/callback/stripe", notificationForm("oid", "success", "9900"))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("missing correlation fields", func(t *testing.T) {
		f := newWebhookFixture()

		form := url.Values{}
		form.Set("status", "success")
		rec := postCallback(f.router, "/api/v1/payments/callback/paytr", form.Encode())
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unparsable body", func(t *testing.T) {
		f := newWebhookFixture()

		rec := postCallback(f.router, "/api/v1/payments/callback/paytr", "merchant_oid=%zz")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("audit log captures the full form", func(t *testing.T) {
		f := newWebhookFixture()
		p := f.seedPending(t)

		form := url.Values{}
		form.Set("merchant_oid", p.ConversationID)
		form.Set("status", "success")
		form.Set("total_amount", "9900")
		form.Set("hash", "sig")
		form.Set("test_mode", "1")

		rec := postCallback(f.router, "/api/v1/payments/callback/paytr", form.Encode())
		assert.Equal(t, http.StatusOK, rec.Code)

		require.Len(t, f.logs.logs, 1)
		assert.Contains(t, string(f.logs.logs[0].RawPayload), "test_mode")
	})
}
