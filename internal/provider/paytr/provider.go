package paytr

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/meoacar/squad/internal/config"
	"github.com/meoacar/squad/internal/domain/payment"
	"github.com/meoacar/squad/internal/domain/provider"
)

const (
	getTokenEndpoint = "/odeme/api/get-token"
	refundEndpoint   = "/odeme/iade"
	paymentPagePath  = "/odeme/guvenli/"

	// Markers fixed by the merchant contract; they participate in the
	// token hash in this exact order.
	noInstallment  = "0"
	maxInstallment = "9"
	timeoutLimit   = "30"
)

// Provider implements the PayTR iframe gateway. It is the callback-only
// integration: token issuance opens an embedded checkout, and completion is
// learned exclusively from a signed inbound webhook.
type Provider struct {
	merchantID   string
	merchantKey  string
	merchantSalt string
	baseURL      string
	testMode     bool
	httpClient   *http.Client
}

// NewProvider creates a new PayTR provider
func NewProvider(cfg config.PayTRConfig) *Provider {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Provider{
		merchantID:   cfg.MerchantID,
		merchantKey:  cfg.MerchantKey,
		merchantSalt: cfg.MerchantSalt,
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		testMode:     cfg.TestMode,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Name returns the provider identifier
func (p *Provider) Name() payment.Provider {
	return payment.ProviderPayTR
}

type getTokenResponse struct {
	Status string `json:"status"`
	Token  string `json:"token"`
	Reason string `json:"reason"`
}

// CreatePayment requests a session token and returns the iframe URL built
// from it. The request is authorized by a keyed hash over the merchant id,
// buyer email, conversation id, amount in minor units, the serialized
// basket, the installment/timeout markers and both callback URLs.
func (p *Provider) CreatePayment(ctx context.Context, req provider.PaymentRequest) (*provider.CreateResult, error) {
	if p.merchantID == "" || p.merchantKey == "" || p.merchantSalt == "" {
		return nil, fmt.Errorf("paytr: missing merchant credentials")
	}

	basket, err := encodeBasket(req.Description, req.Amount)
	if err != nil {
		return nil, fmt.Errorf("paytr: failed to encode basket: %w", err)
	}

	amountMinor := strconv.FormatInt(req.Amount, 10)
	token := p.paymentToken(req.ConversationID, req.UserEmail, amountMinor, basket, req.CallbackURL, req.CallbackURL)

	ip := req.UserIP
	if ip == "" {
		ip = "85.34.78.112"
	}
	phone := req.UserPhone
	if phone == "" {
		phone = "5555555555"
	}

	mode := "0"
	if p.testMode {
		mode = "1"
	}

	form := url.Values{
		"merchant_id":       {p.merchantID},
		"user_ip":           {ip},
		"merchant_oid":      {req.ConversationID},
		"email":             {req.UserEmail},
		"payment_amount":    {amountMinor},
		"paytr_token":       {token},
		"user_basket":       {basket},
		"debug_on":          {mode},
		"no_installment":    {noInstallment},
		"max_installment":   {maxInstallment},
		"user_name":         {req.UserName},
		"user_address":      {"Turkiye"},
		"user_phone":        {phone},
		"merchant_ok_url":   {req.CallbackURL},
		"merchant_fail_url": {req.CallbackURL},
		"timeout_limit":     {timeoutLimit},
		"currency":          {mapCurrency(req.Currency)},
		"test_mode":         {mode},
	}

	raw, err := p.postForm(ctx, getTokenEndpoint, form)
	if err != nil {
		return &provider.CreateResult{
			Success:      false,
			ErrorMessage: err.Error(),
		}, nil
	}

	var resp getTokenResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return &provider.CreateResult{
			Success:      false,
			ErrorMessage: fmt.Sprintf("invalid gateway response: %v", err),
			RawResponse:  raw,
		}, nil
	}

	if resp.Status != "success" {
		msg := resp.Reason
		if msg == "" {
			msg = "token issuance failed"
		}
		return &provider.CreateResult{
			Success:      false,
			ErrorMessage: msg,
			RawResponse:  raw,
		}, nil
	}

	return &provider.CreateResult{
		Success:     true,
		PaymentURL:  p.baseURL + paymentPagePath + resp.Token,
		Token:       resp.Token,
		RawResponse: raw,
	}, nil
}

// VerifyPayment always fails: completion for this gateway is learned only
// from the inbound webhook.
func (p *Provider) VerifyPayment(ctx context.Context, token, conversationID string) (*provider.Verification, error) {
	return nil, provider.ErrPullVerificationUnsupported
}

// VerifyWebhookSignature recomputes the keyed hash over
// merchant_oid + salt + status + total_amount and compares it in constant
// time with the hash supplied in the callback.
func (p *Provider) VerifyWebhookSignature(n provider.WebhookNotification) bool {
	if n.Hash == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(p.merchantSalt))
	mac.Write([]byte(n.MerchantOrderID))
	mac.Write([]byte(p.merchantSalt))
	mac.Write([]byte(n.Status))
	mac.Write([]byte(n.TotalAmount))
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(n.Hash))
}

// RefundPayment posts the merchant order id and return amount to the refund
// endpoint. Success is reported by the status field of the response body.
func (p *Provider) RefundPayment(ctx context.Context, transactionID string, amount int64) bool {
	form := url.Values{
		"merchant_id":   {p.merchantID},
		"merchant_oid":  {transactionID},
		"return_amount": {strconv.FormatInt(amount, 10)},
	}

	raw, err := p.postForm(ctx, refundEndpoint, form)
	if err != nil {
		return false
	}

	var resp struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return false
	}

	return resp.Status == "success"
}

// paymentToken computes the keyed hash authorizing token issuance.
func (p *Provider) paymentToken(merchantOid, email, amountMinor, basket, okURL, failURL string) string {
	mac := hmac.New(sha256.New, []byte(p.merchantKey))
	mac.Write([]byte(p.merchantID))
	mac.Write([]byte(email))
	mac.Write([]byte(merchantOid))
	mac.Write([]byte(amountMinor))
	mac.Write([]byte(basket))
	mac.Write([]byte(noInstallment))
	mac.Write([]byte(maxInstallment))
	mac.Write([]byte(timeoutLimit))
	mac.Write([]byte(okURL))
	mac.Write([]byte(failURL))
	mac.Write([]byte(p.merchantSalt))

	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// encodeBasket serializes a single-item basket as base64 JSON:
// [[name, "12.34", 1]].
func encodeBasket(description string, amount int64) (string, error) {
	item := []interface{}{description, fmt.Sprintf("%d.%02d", amount/100, amount%100), 1}

	data, err := json.Marshal([]interface{}{item})
	if err != nil {
		return "", err
	}

	return base64.StdEncoding.EncodeToString(data), nil
}

func mapCurrency(currency string) string {
	if currency == "TRY" {
		return "TL"
	}
	return currency
}

func (p *Provider) postForm(ctx context.Context, endpoint string, form url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return body, nil
}
