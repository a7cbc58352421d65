package iyzico

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/meoacar/squad/internal/config"
	"github.com/meoacar/squad/internal/domain/payment"
	"github.com/meoacar/squad/internal/domain/provider"
)

const (
	checkoutInitEndpoint   = "/payment/iyzipos/checkoutform/initialize/auth/ecom"
	checkoutDetailEndpoint = "/payment/iyzipos/checkoutform/auth/ecom/detail"
	refundEndpoint         = "/payment/refund"
)

// Provider implements the iyzico checkout-form gateway. It is the
// poll/redirect style integration: the hosted checkout URL is returned at
// initialization and completion is learned by a second signed API call —
// there is no webhook.
type Provider struct {
	apiKey     string
	secretKey  string
	baseURL    string
	httpClient *http.Client
}

// NewProvider creates a new iyzico provider
func NewProvider(cfg config.IyzicoConfig) *Provider {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Provider{
		apiKey:    cfg.APIKey,
		secretKey: cfg.SecretKey,
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Name returns the provider identifier
func (p *Provider) Name() payment.Provider {
	return payment.ProviderIyzico
}

type buyer struct {
	ID                  string `json:"id"`
	Name                string `json:"name"`
	Surname             string `json:"surname"`
	Email               string `json:"email"`
	IdentityNumber      string `json:"identityNumber"`
	RegistrationAddress string `json:"registrationAddress"`
	City                string `json:"city"`
	Country             string `json:"country"`
	IP                  string `json:"ip"`
}

type address struct {
	ContactName string `json:"contactName"`
	City        string `json:"city"`
	Country     string `json:"country"`
	Address     string `json:"address"`
}

type basketItem struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Category1 string `json:"category1"`
	ItemType  string `json:"itemType"`
	Price     string `json:"price"`
}

type checkoutInitRequest struct {
	Locale              string       `json:"locale"`
	ConversationID      string       `json:"conversationId"`
	Price               string       `json:"price"`
	PaidPrice           string       `json:"paidPrice"`
	Currency            string       `json:"currency"`
	BasketID            string       `json:"basketId"`
	PaymentGroup        string       `json:"paymentGroup"`
	CallbackURL         string       `json:"callbackUrl"`
	EnabledInstallments []int        `json:"enabledInstallments"`
	Buyer               buyer        `json:"buyer"`
	ShippingAddress     address      `json:"shippingAddress"`
	BillingAddress      address      `json:"billingAddress"`
	BasketItems         []basketItem `json:"basketItems"`
}

type checkoutInitResponse struct {
	Status         string `json:"status"`
	ErrorMessage   string `json:"errorMessage"`
	PaymentPageURL string `json:"paymentPageUrl"`
	Token          string `json:"token"`
}

type checkoutDetailRequest struct {
	Locale         string `json:"locale"`
	ConversationID string `json:"conversationId"`
	Token          string `json:"token"`
}

type checkoutDetailResponse struct {
	Status        string `json:"status"`
	PaymentStatus string `json:"paymentStatus"`
	PaidPrice     string `json:"paidPrice"`
	Currency      string `json:"currency"`
	PaymentID     string `json:"paymentId"`
	ErrorMessage  string `json:"errorMessage"`
}

type refundRequest struct {
	Locale               string `json:"locale"`
	ConversationID       string `json:"conversationId"`
	PaymentTransactionID string `json:"paymentTransactionId"`
	Price                string `json:"price"`
	Currency             string `json:"currency"`
}

type refundResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"errorMessage"`
}

// CreatePayment initializes a checkout form session and returns the hosted
// payment page URL plus an opaque token for later verification.
func (p *Provider) CreatePayment(ctx context.Context, req provider.PaymentRequest) (*provider.CreateResult, error) {
	if p.apiKey == "" || p.secretKey == "" {
		return nil, fmt.Errorf("iyzico: missing api credentials")
	}

	price := formatMajor(req.Amount)
	name, surname := splitName(req.UserName)
	ip := req.UserIP
	if ip == "" {
		ip = "85.34.78.112"
	}

	body := checkoutInitRequest{
		Locale:              "tr",
		ConversationID:      req.ConversationID,
		Price:               price,
		PaidPrice:           price,
		Currency:            req.Currency,
		BasketID:            req.ConversationID,
		PaymentGroup:        "PRODUCT",
		CallbackURL:         req.CallbackURL,
		EnabledInstallments: []int{1, 2, 3, 6, 9},
		Buyer: buyer{
			ID:                  req.UserID,
			Name:                name,
			Surname:             surname,
			Email:               req.UserEmail,
			IdentityNumber:      "11111111111",
			RegistrationAddress: "Turkiye",
			City:                "Istanbul",
			Country:             "Turkey",
			IP:                  ip,
		},
		ShippingAddress: address{
			ContactName: req.UserName,
			City:        "Istanbul",
			Country:     "Turkey",
			Address:     "Turkiye",
		},
		BillingAddress: address{
			ContactName: req.UserName,
			City:        "Istanbul",
			Country:     "Turkey",
			Address:     "Turkiye",
		},
		BasketItems: []basketItem{
			{
				ID:        "1",
				Name:      req.Description,
				Category1: "Premium",
				ItemType:  "VIRTUAL",
				Price:     price,
			},
		},
	}

	raw, err := p.doRequest(ctx, checkoutInitEndpoint, body)
	if err != nil {
		return &provider.CreateResult{
			Success:      false,
			ErrorMessage: err.Error(),
		}, nil
	}

	var resp checkoutInitResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return &provider.CreateResult{
			Success:      false,
			ErrorMessage: fmt.Sprintf("invalid gateway response: %v", err),
			RawResponse:  raw,
		}, nil
	}

	if resp.Status != "success" {
		msg := resp.ErrorMessage
		if msg == "" {
			msg = "checkout form initialization failed"
		}
		return &provider.CreateResult{
			Success:      false,
			ErrorMessage: msg,
			RawResponse:  raw,
		}, nil
	}

	return &provider.CreateResult{
		Success:     true,
		PaymentURL:  resp.PaymentPageURL,
		Token:       resp.Token,
		RawResponse: raw,
	}, nil
}

// VerifyPayment replays the signing scheme against the checkout form detail
// endpoint. This call is the only path to completion for this gateway.
func (p *Provider) VerifyPayment(ctx context.Context, token, conversationID string) (*provider.Verification, error) {
	if p.apiKey == "" || p.secretKey == "" {
		return nil, fmt.Errorf("iyzico: missing api credentials")
	}

	body := checkoutDetailRequest{
		Locale:         "tr",
		ConversationID: conversationID,
		Token:          token,
	}

	raw, err := p.doRequest(ctx, checkoutDetailEndpoint, body)
	if err != nil {
		return &provider.Verification{
			Success:      false,
			Status:       payment.StatusFailed,
			ErrorMessage: err.Error(),
		}, nil
	}

	var resp checkoutDetailResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return &provider.Verification{
			Success:      false,
			Status:       payment.StatusFailed,
			ErrorMessage: fmt.Sprintf("invalid gateway response: %v", err),
		}, nil
	}

	if resp.Status == "success" && resp.PaymentStatus == "SUCCESS" {
		return &provider.Verification{
			Success:       true,
			Status:        payment.StatusCompleted,
			Amount:        parseMajor(resp.PaidPrice),
			Currency:      resp.Currency,
			TransactionID: resp.PaymentID,
		}, nil
	}

	msg := resp.ErrorMessage
	if msg == "" {
		msg = "payment could not be verified"
	}
	return &provider.Verification{
		Success:      false,
		Status:       payment.StatusFailed,
		ErrorMessage: msg,
	}, nil
}

// RefundPayment posts the provider transaction id and amount to the refund
// endpoint. Success is determined by the status field of the response body,
// not by the HTTP status code.
func (p *Provider) RefundPayment(ctx context.Context, transactionID string, amount int64) bool {
	body := refundRequest{
		Locale:               "tr",
		ConversationID:       fmt.Sprintf("refund-%d", time.Now().UnixMilli()),
		PaymentTransactionID: transactionID,
		Price:                formatMajor(amount),
		Currency:             "TRY",
	}

	raw, err := p.doRequest(ctx, refundEndpoint, body)
	if err != nil {
		return false
	}

	var resp refundResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return false
	}

	return resp.Status == "success"
}

// doRequest signs and posts a request body to the given endpoint. The
// authorization header carries an HMAC-SHA256 over a per-request random
// nonce concatenated with the serialized body, keyed by the secret key.
func (p *Provider) doRequest(ctx context.Context, endpoint string, body interface{}) ([]byte, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	nonce := randomNonce()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+endpoint, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", p.authHeader(nonce, jsonBody))
	req.Header.Set("x-iyzi-rnd", nonce)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return respBody, nil
}

// authHeader computes `IYZWS <apiKey>:<base64 hmac>` over nonce+body.
func (p *Provider) authHeader(nonce string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(p.secretKey))
	mac.Write([]byte(nonce))
	mac.Write(body)
	hash := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	return fmt.Sprintf("IYZWS %s:%s", p.apiKey, hash)
}

func randomNonce() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// formatMajor renders minor units as a "12.34" style decimal string.
func formatMajor(minor int64) string {
	return fmt.Sprintf("%d.%02d", minor/100, minor%100)
}

// parseMajor parses a "12.34" style decimal string into minor units.
func parseMajor(s string) int64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}

	whole, frac, _ := strings.Cut(s, ".")

	var major int64
	fmt.Sscanf(whole, "%d", &major)

	var cents int64
	if frac != "" {
		if len(frac) > 2 {
			frac = frac[:2]
		}
		for len(frac) < 2 {
			frac += "0"
		}
		fmt.Sscanf(frac, "%d", &cents)
	}

	return major*100 + cents
}

func splitName(full string) (name, surname string) {
	parts := strings.Fields(full)
	switch len(parts) {
	case 0:
		return "Ad", "Soyad"
	case 1:
		return parts[0], "Soyad"
	default:
		return parts[0], strings.Join(parts[1:], " ")
	}
}
