package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meoacar/squad/internal/config"
	"github.com/meoacar/squad/internal/domain/payment"
	"github.com/meoacar/squad/internal/provider/iyzico"
	"github.com/meoacar/squad/internal/provider/paytr"
)

func newTestRegistry() *Registry {
	return New(
		iyzico.NewProvider(config.IyzicoConfig{APIKey: "k", SecretKey: "s", BaseURL: "https://sandbox-api.iyzipay.com"}),
		paytr.NewProvider(config.PayTRConfig{MerchantID: "m", MerchantKey: "k", MerchantSalt: "s", BaseURL: "https://www.paytr.com"}),
	)
}

func TestGet(t *testing.T) {
	r := newTestRegistry()

	iyz, err := r.Get(payment.ProviderIyzico)
	require.NoError(t, err)
	assert.Equal(t, payment.ProviderIyzico, iyz.Name())

	pt, err := r.Get(payment.ProviderPayTR)
	require.NoError(t, err)
	assert.Equal(t, payment.ProviderPayTR, pt.Name())
}

func TestGetUnknownProvider(t *testing.T) {
	r := newTestRegistry()

	_, err := r.Get(payment.Provider("STRIPE"))
	assert.ErrorIs(t, err, payment.ErrUnknownProvider)
}

func TestWebhook(t *testing.T) {
	r := newTestRegistry()

	gw, err := r.Webhook(payment.ProviderPayTR)
	require.NoError(t, err)
	assert.Equal(t, payment.ProviderPayTR, gw.Name())
}

func TestWebhookUnsupported(t *testing.T) {
	r := newTestRegistry()

	// iyzico settles via polling, not callbacks
	_, err := r.Webhook(payment.ProviderIyzico)
	assert.Error(t, err)

	_, err = r.Webhook(payment.Provider("STRIPE"))
	assert.ErrorIs(t, err, payment.ErrUnknownProvider)
}
