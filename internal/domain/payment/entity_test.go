package payment

import (
	"encoding/json"
	"strconv"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	userID := uuid.New()

	p := New(userID, PurposePremium, 9900, "TRY", MethodCreditCard, ProviderIyzico, "premium upgrade")

	assert.NotEqual(t, uuid.Nil, p.ID)
	assert.Equal(t, userID, p.UserID)
	assert.Equal(t, StatusPending, p.Status)
	assert.Equal(t, int64(9900), p.Amount)
	assert.Equal(t, ProviderIyzico, p.Provider)
	assert.Equal(t, ProviderIyzico, p.Metadata.Provider)
	assert.True(t, p.IsPending())
	assert.False(t, p.IsCompleted())
}

func TestNewConversationID(t *testing.T) {
	userID := uuid.New()

	id := NewConversationID(userID)

	prefix, suffix, ok := strings.Cut(id, "-")
	require.True(t, ok)
	_, err := strconv.ParseInt(prefix, 10, 64)
	assert.NoError(t, err)
	assert.Equal(t, userID.String(), suffix)
}

func TestStatusCanTransition(t *testing.T) {
	tests := []struct {
		from    Status
		to      Status
		allowed bool
	}{
		{StatusPending, StatusCompleted, true},
		{StatusPending, StatusFailed, true},
		{StatusPending, StatusRefunded, false},
		{StatusPending, StatusCancelled, false},
		{StatusCompleted, StatusRefunded, true},
		{StatusCompleted, StatusFailed, false},
		{StatusCompleted, StatusPending, false},
		{StatusFailed, StatusCompleted, false},
		{StatusFailed, StatusPending, false},
		{StatusRefunded, StatusCompleted, false},
		{StatusCancelled, StatusPending, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"_to_"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.allowed, tt.from.CanTransition(tt.to))
		})
	}
}

func TestStatusIsTerminal(t *testing.T) {
	assert.False(t, StatusPending.IsTerminal())
	assert.False(t, StatusCompleted.IsTerminal())
	assert.True(t, StatusFailed.IsTerminal())
	assert.True(t, StatusRefunded.IsTerminal())
	assert.True(t, StatusCancelled.IsTerminal())
}

func TestValidProvider(t *testing.T) {
	assert.True(t, ValidProvider("IYZICO"))
	assert.True(t, ValidProvider("PAYTR"))
	assert.False(t, ValidProvider("STRIPE"))
	assert.False(t, ValidProvider(""))
	assert.False(t, ValidProvider("paytr"))
}

func TestValidPurpose(t *testing.T) {
	assert.True(t, ValidPurpose("PREMIUM"))
	assert.True(t, ValidPurpose("BOOST"))
	assert.True(t, ValidPurpose("FEATURED"))
	assert.False(t, ValidPurpose("OTHER"))
}

func TestMetadataSetProviderArtifacts(t *testing.T) {
	raw := json.RawMessage(`{"status":"success"}`)

	t.Run("iyzico variant", func(t *testing.T) {
		m := Metadata{Provider: ProviderIyzico}
		m.SetProviderArtifacts("tok-123", "https://pay.example/form", raw)

		require.NotNil(t, m.Iyzico)
		assert.Nil(t, m.PayTR)
		assert.Equal(t, "tok-123", m.Iyzico.Token)
		assert.Equal(t, "https://pay.example/form", m.Iyzico.PaymentPageURL)
		assert.Equal(t, "tok-123", m.Token())
	})

	t.Run("paytr variant", func(t *testing.T) {
		m := Metadata{Provider: ProviderPayTR}
		m.SetProviderArtifacts("tok-456", "https://www.paytr.com/odeme/guvenli/tok-456", raw)

		require.NotNil(t, m.PayTR)
		assert.Nil(t, m.Iyzico)
		assert.Equal(t, "tok-456", m.PayTR.Token)
		assert.Equal(t, "tok-456", m.Token())
	})
}

func TestMetadataSetWebhookPayload(t *testing.T) {
	raw := json.RawMessage(`{"merchant_oid":"x"}`)

	m := Metadata{Provider: ProviderPayTR}
	m.SetWebhookPayload(raw)
	require.NotNil(t, m.PayTR)
	assert.Equal(t, raw, m.PayTR.WebhookPayload)

	// iyzico has no webhook channel; the call is a no-op
	m2 := Metadata{Provider: ProviderIyzico}
	m2.SetWebhookPayload(raw)
	assert.Nil(t, m2.PayTR)
	assert.Nil(t, m2.Iyzico)
}

func TestMetadataJSONRoundTrip(t *testing.T) {
	m := Metadata{Provider: ProviderPayTR}
	m.SetProviderArtifacts("tok", "url", json.RawMessage(`{}`))
	m.CreateError = ""

	data, err := json.Marshal(m)
	require.NoError(t, err)

	var decoded Metadata
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, ProviderPayTR, decoded.Provider)
	require.NotNil(t, decoded.PayTR)
	assert.Equal(t, "tok", decoded.PayTR.Token)
	assert.Nil(t, decoded.Iyzico)
}
