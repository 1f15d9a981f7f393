//go:build !integration

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

const minimalDev = `
redis:
  url: localhost:6379
auth:
  jwt_secret: s3cret
security:
  encryption_key: 0123456789abcdef
`

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalDev), true)

	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "sandbox", cfg.Payment.Pesapal.Environment)
	assert.Equal(t, 500*time.Millisecond, cfg.Checkout.RedirectDelay)
	assert.Equal(t, 15*time.Second, cfg.Payment.Pesapal.Timeout)
	assert.Equal(t, "http://localhost:8080/payment/callback", cfg.CallbackURL())
	assert.True(t, cfg.Runtime.Dev)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PESAPAL_CONSUMER_KEY", "env-key")
	t.Setenv("DATABASE_URL", "postgres://env")

	cfg, err := Load(writeConfig(t, minimalDev+`
payment:
  pesapal:
    consumer_key: yaml-key
`), true)

	require.NoError(t, err)
	assert.Equal(t, "env-key", cfg.Payment.Pesapal.ConsumerKey)
	assert.Equal(t, "postgres://env", cfg.Database.URL)
}

func TestLoad_Validation(t *testing.T) {
	t.Run("should require gateway credentials outside dev mode", func(t *testing.T) {
		_, err := Load(writeConfig(t, minimalDev+`
database:
  url: postgres://x
`), false)
		assert.ErrorContains(t, err, "consumer key")
	})

	t.Run("should reject a bad encryption key", func(t *testing.T) {
		_, err := Load(writeConfig(t, `
redis:
  url: localhost:6379
auth:
  jwt_secret: s
security:
  encryption_key: short
`), true)
		assert.ErrorContains(t, err, "encryption_key")
	})

	t.Run("should reject unknown environments", func(t *testing.T) {
		_, err := Load(writeConfig(t, minimalDev+`
payment:
  pesapal:
    environment: staging
`), true)
		assert.Error(t, err)
	})

	t.Run("should fail on a missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), true)
		assert.Error(t, err)
	})
}
