package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.App.Env)
	assert.Equal(t, "8080", cfg.App.Port)
	assert.True(t, cfg.App.Debug)
	assert.False(t, cfg.IsProduction())
	assert.Equal(t, 25, cfg.Database.MaxConns)
	assert.Equal(t, 30*time.Minute, cfg.Database.MaxConnLifetime)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "https://sandbox-api.iyzipay.com", cfg.Iyzico.BaseURL)
	assert.Equal(t, "https://www.paytr.com", cfg.PayTR.BaseURL)
	assert.True(t, cfg.PayTR.TestMode)
	assert.Equal(t, 10, cfg.RateLimit.PaymentPerMinute)
	assert.Equal(t, 1000, cfg.RateLimit.WebhookPerMinute)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("APP_ENV", "production")
	t.Setenv("APP_PORT", "9090")
	t.Setenv("DATABASE_MAX_CONNS", "50")
	t.Setenv("IYZICO_TIMEOUT", "10s")
	t.Setenv("PAYTR_TIMEOUT", "45")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://app.example.com, https://admin.example.com")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.False(t, cfg.App.Debug)
	assert.Equal(t, "9090", cfg.App.Port)
	assert.Equal(t, 50, cfg.Database.MaxConns)
	assert.Equal(t, 10*time.Second, cfg.Iyzico.Timeout)
	assert.Equal(t, 45*time.Second, cfg.PayTR.Timeout, "bare integers are seconds")
	assert.False(t, cfg.PayTR.TestMode)
	assert.Equal(t, []string{"https://app.example.com", "https://admin.example.com"}, cfg.CORS.AllowedOrigins)
}

func TestValidate(t *testing.T) {
	t.Run("short jwt secret", func(t *testing.T) {
		t.Setenv("JWT_SECRET", "too-short")
		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "JWT_SECRET")
	})

	t.Run("missing database url", func(t *testing.T) {
		cfg := &Config{
			JWT: JWTConfig{Secret: testSecret},
		}
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "DATABASE_URL")
	})
}
