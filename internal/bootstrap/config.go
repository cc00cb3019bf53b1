package bootstrap

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/target/towertrack-portal/config"
)

// InitLogger initializes the structured logger.
func InitLogger(cfg config.LoggingConfig) *slog.Logger {
	logger := newLogger(os.Stdout, cfg)
	slog.SetDefault(logger)
	return logger
}

func newLogger(w io.Writer, cfg config.LoggingConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.Level}
	if cfg.Format == config.LogFormatText {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (config.AppConfig, error) {
	// Load .env file if it exists (development)
	if err := godotenv.Load(); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return config.AppConfig{}, fmt.Errorf("load .env file: %w", err)
		}
	}

	var cfg config.AppConfig
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}

	cfg.Sanitize()
	return cfg, nil
}

// ValidateConfig reports every setting that would keep the portal from serving.
func ValidateConfig(cfg *config.AppConfig) error {
	if cfg == nil {
		return errors.New("config is required")
	}
	var errs []error
	if u, err := url.Parse(cfg.Backend.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("BACKEND_BASE_URL %q is not an absolute URL", cfg.Backend.BaseURL))
	}
	switch cfg.Auth.Mode {
	case config.AuthModeOAuth:
		if !cfg.Auth.OAuth.IsComplete() {
			errs = append(errs, errors.New(
				"AUTH_MODE=oauth requires OAUTH_CLIENT_ID, OAUTH_CLIENT_SECRET, OAUTH_REDIRECT_URL and OAUTH_DISCOVERY_URL"))
		}
	case config.AuthModeMock:
		if cfg.Auth.DevAuth.Users == "" {
			errs = append(errs, errors.New("AUTH_MODE=mock requires DEV_AUTH_USERS"))
		}
		if len(cfg.Auth.DevAuth.SigningKey) < 16 {
			errs = append(errs, errors.New("DEV_AUTH_SIGNING_KEY must be at least 16 bytes"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown AUTH_MODE %q", cfg.Auth.Mode))
	}
	return errors.Join(errs...)
}
