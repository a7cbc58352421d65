package payment

import "encoding/json"

// Metadata holds provider artifacts attached to a payment. It is a tagged
// payload: the Provider field selects which variant is populated, so audit
// tooling never has to guess at the shape of an untyped blob.
type Metadata struct {
	Provider Provider `json:"provider"`

	Iyzico *IyzicoMetadata `json:"iyzico,omitempty"`
	PayTR  *PayTRMetadata  `json:"paytr,omitempty"`

	// CreateError records why the gateway rejected payment initialization.
	CreateError string `json:"create_error,omitempty"`
	// VerifyError records why pull-based verification reported failure.
	VerifyError string `json:"verify_error,omitempty"`
}

// IyzicoMetadata holds artifacts of the checkout-form flow.
type IyzicoMetadata struct {
	Token          string          `json:"token,omitempty"`
	PaymentPageURL string          `json:"payment_page_url,omitempty"`
	RawResponse    json.RawMessage `json:"raw_response,omitempty"`
}

// PayTRMetadata holds artifacts of the iframe-token flow.
type PayTRMetadata struct {
	Token          string          `json:"token,omitempty"`
	IFrameURL      string          `json:"iframe_url,omitempty"`
	RawResponse    json.RawMessage `json:"raw_response,omitempty"`
	WebhookPayload json.RawMessage `json:"webhook_payload,omitempty"`
}

// ensureVariant returns the variant matching the metadata's provider,
// allocating it if needed.
func (m *Metadata) ensureIyzico() *IyzicoMetadata {
	if m.Iyzico == nil {
		m.Iyzico = &IyzicoMetadata{}
	}
	return m.Iyzico
}

func (m *Metadata) ensurePayTR() *PayTRMetadata {
	if m.PayTR == nil {
		m.PayTR = &PayTRMetadata{}
	}
	return m.PayTR
}

// SetProviderArtifacts records the token, redirect URL and raw response
// returned by the gateway on successful initialization.
func (m *Metadata) SetProviderArtifacts(token, paymentURL string, raw json.RawMessage) {
	switch m.Provider {
	case ProviderIyzico:
		iz := m.ensureIyzico()
		iz.Token = token
		iz.PaymentPageURL = paymentURL
		iz.RawResponse = raw
	case ProviderPayTR:
		pt := m.ensurePayTR()
		pt.Token = token
		pt.IFrameURL = paymentURL
		pt.RawResponse = raw
	}
}

// SetWebhookPayload records the raw webhook body for audit.
func (m *Metadata) SetWebhookPayload(raw json.RawMessage) {
	if m.Provider == ProviderPayTR {
		m.ensurePayTR().WebhookPayload = raw
	}
}

// Token returns the stored gateway token, whichever variant holds it.
func (m *Metadata) Token() string {
	switch {
	case m.Iyzico != nil:
		return m.Iyzico.Token
	case m.PayTR != nil:
		return m.PayTR.Token
	}
	return ""
}
