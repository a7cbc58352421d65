package registry

import (
	"fmt"

	"github.com/meoacar/squad/internal/domain/payment"
	"github.com/meoacar/squad/internal/domain/provider"
	"github.com/meoacar/squad/internal/provider/iyzico"
	"github.com/meoacar/squad/internal/provider/paytr"
)

// Registry resolves provider identifiers to gateway integrations. Dispatch
// is an exhaustive switch over the known providers: adding a gateway forces
// a compile-time update here, and an unknown identifier is always an error,
// never a silent fallback.
type Registry struct {
	iyzico *iyzico.Provider
	paytr  *paytr.Provider
}

// New creates a registry over the two gateway integrations.
func New(iyz *iyzico.Provider, pt *paytr.Provider) *Registry {
	return &Registry{
		iyzico: iyz,
		paytr:  pt,
	}
}

// Get returns the gateway for the given provider identifier.
func (r *Registry) Get(name payment.Provider) (provider.Gateway, error) {
	switch name {
	case payment.ProviderIyzico:
		return r.iyzico, nil
	case payment.ProviderPayTR:
		return r.paytr, nil
	default:
		return nil, fmt.Errorf("%w: %s", payment.ErrUnknownProvider, name)
	}
}

// Webhook returns the gateway for the given provider identifier when it
// accepts signed inbound callbacks.
func (r *Registry) Webhook(name payment.Provider) (provider.WebhookGateway, error) {
	switch name {
	case payment.ProviderPayTR:
		return r.paytr, nil
	case payment.ProviderIyzico:
		return nil, fmt.Errorf("%w: %s has no webhook channel", payment.ErrUnknownProvider, name)
	default:
		return nil, fmt.Errorf("%w: %s", payment.ErrUnknownProvider, name)
	}
}
