// Package config reads service settings from the environment. cmd/api loads
// an optional .env file first, so values there behave like real env vars.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ovaphlow/pitchfork/service-auth-go/pkg/mail"
)

// ErrMissingJWTSecret is returned when JWT_SECRET is unset.
var ErrMissingJWTSecret = errors.New("JWT_SECRET environment variable is required")

type Config struct {
	HTTPAddr             string
	JWTSecret            string
	JWTIssuer            string
	JWTExpiresIn         time.Duration
	FrontendURL          string
	ConfirmationTokenTTL time.Duration
	RecoveryTokenTTL     time.Duration
	CORSOrigin           string
	Mail                 MailConfig
}

type MailConfig struct {
	From string
	SMTP mail.SMTPSettings
}

// Enabled reports whether an SMTP host was configured.
func (m MailConfig) Enabled() bool { return m.SMTP.Host != "" }

// ConfigFromEnv reads the service config. Durations accept Go syntax
// ("90m") or a day count ("30d").
func ConfigFromEnv() (Config, error) {
	cfg := Config{
		HTTPAddr:    getenv("HTTP_ADDR", "0.0.0.0:8431"),
		JWTSecret:   os.Getenv("JWT_SECRET"),
		JWTIssuer:   os.Getenv("JWT_ISSUER"),
		FrontendURL: strings.TrimRight(getenv("FRONTEND_URL", "http://localhost:3000"), "/"),
		CORSOrigin:  getenv("CORS_ORIGIN", "*"),
	}

	var err error
	if cfg.JWTExpiresIn, err = durationEnv("JWT_EXPIRES_IN", 30*24*time.Hour); err != nil {
		return Config{}, err
	}
	if cfg.ConfirmationTokenTTL, err = durationEnv("CONFIRMATION_TOKEN_TTL", 24*time.Hour); err != nil {
		return Config{}, err
	}
	if cfg.RecoveryTokenTTL, err = durationEnv("RECOVERY_TOKEN_TTL", time.Hour); err != nil {
		return Config{}, err
	}

	from := getenv("EMAIL_FROM", "Business Inventory <noreply@businessinventory.com>")
	port := 587
	if v := os.Getenv("SMTP_PORT"); v != "" {
		if port, err = strconv.Atoi(v); err != nil {
			return Config{}, fmt.Errorf("SMTP_PORT: %w", err)
		}
	}
	cfg.Mail = MailConfig{
		From: from,
		SMTP: mail.SMTPSettings{
			Host:     os.Getenv("SMTP_HOST"),
			Port:     port,
			Username: getenv("SMTP_USERNAME", os.Getenv("EMAIL_USER")),
			Password: getenv("SMTP_PASSWORD", os.Getenv("EMAIL_PASSWORD")),
			From:     from,
			UseTLS:   os.Getenv("SMTP_SECURE") == "true",
		},
	}

	if cfg.JWTSecret == "" {
		return cfg, ErrMissingJWTSecret
	}
	return cfg, nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	d, err := ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

// ParseDuration extends time.ParseDuration with a "<n>d" day suffix.
func ParseDuration(s string) (time.Duration, error) {
	if n, ok := strings.CutSuffix(s, "d"); ok {
		days, err := strconv.Atoi(n)
		if err != nil || days < 0 {
			return 0, fmt.Errorf("invalid duration %q", s)
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return d, nil
}
