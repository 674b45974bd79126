package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	for _, k := range []string{
		"HTTP_ADDR", "JWT_SECRET", "JWT_ISSUER", "JWT_EXPIRES_IN", "FRONTEND_URL",
		"CONFIRMATION_TOKEN_TTL", "RECOVERY_TOKEN_TTL", "CORS_ORIGIN", "EMAIL_FROM",
		"SMTP_HOST", "SMTP_PORT", "SMTP_USERNAME", "SMTP_PASSWORD", "EMAIL_USER",
		"EMAIL_PASSWORD", "SMTP_SECURE",
	} {
		t.Setenv(k, "")
	}
}

func TestConfigFromEnvDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("JWT_SECRET", "s3cret")

	cfg, err := ConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:8431", cfg.HTTPAddr)
	assert.Equal(t, 30*24*time.Hour, cfg.JWTExpiresIn)
	assert.Equal(t, 24*time.Hour, cfg.ConfirmationTokenTTL)
	assert.Equal(t, time.Hour, cfg.RecoveryTokenTTL)
	assert.Equal(t, "http://localhost:3000", cfg.FrontendURL)
	assert.False(t, cfg.Mail.Enabled())
	assert.Equal(t, 587, cfg.Mail.SMTP.Port)
}

func TestConfigFromEnvMissingSecret(t *testing.T) {
	clearEnv(t)
	_, err := ConfigFromEnv()
	assert.ErrorIs(t, err, ErrMissingJWTSecret)
}

func TestConfigFromEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("JWT_EXPIRES_IN", "7d")
	t.Setenv("RECOVERY_TOKEN_TTL", "0")
	t.Setenv("FRONTEND_URL", "https://app.example.com/")
	t.Setenv("SMTP_HOST", "smtp.example.com")
	t.Setenv("SMTP_PORT", "465")
	t.Setenv("SMTP_SECURE", "true")
	t.Setenv("EMAIL_USER", "mailer")

	cfg, err := ConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, 7*24*time.Hour, cfg.JWTExpiresIn)
	assert.Equal(t, time.Duration(0), cfg.RecoveryTokenTTL)
	assert.Equal(t, "https://app.example.com", cfg.FrontendURL)
	assert.True(t, cfg.Mail.Enabled())
	assert.Equal(t, 465, cfg.Mail.SMTP.Port)
	assert.True(t, cfg.Mail.SMTP.UseTLS)
	assert.Equal(t, "mailer", cfg.Mail.SMTP.Username)
}

func TestConfigFromEnvBadDuration(t *testing.T) {
	clearEnv(t)
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("JWT_EXPIRES_IN", "forever")
	_, err := ConfigFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_EXPIRES_IN")
}

func TestParseDuration(t *testing.T) {
	cases := map[string]time.Duration{
		"30d": 30 * 24 * time.Hour,
		"90m": 90 * time.Minute,
		"0":   0,
	}
	for in, want := range cases {
		got, err := ParseDuration(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseDuration("-1d")
	assert.Error(t, err)
	_, err = ParseDuration("-5m")
	assert.Error(t, err)
}
