package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/target/towertrack-portal/config"
	"github.com/target/towertrack-portal/internal/adapters/devauth"
	"github.com/target/towertrack-portal/internal/adapters/oidc"
	"github.com/target/towertrack-portal/internal/ports"
)

// AuthConfig contains configuration for the identity provider.
type AuthConfig struct {
	Auth config.AuthConfig
	// HTTPClient is used for OIDC discovery and token calls (optional).
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// BuildIdentityProvider creates the identity provider for the configured auth mode.
//
//nolint:ireturn // the concrete provider depends on AUTH_MODE.
func BuildIdentityProvider(ctx context.Context, cfg AuthConfig) (ports.IdentityProvider, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	switch cfg.Auth.Mode {
	case config.AuthModeMock:
		return buildDevAuthProvider(ctx, cfg.Auth.DevAuth, logger)
	case config.AuthModeOAuth:
		return buildOIDCProvider(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported auth mode %q", cfg.Auth.Mode)
	}
}

func buildDevAuthProvider(ctx context.Context, cfg config.DevAuthConfig, logger *slog.Logger) (*devauth.Provider, error) {
	users, err := devauth.ParseUsers(cfg.Users)
	if err != nil {
		return nil, err
	}
	prov, err := devauth.NewProvider(devauth.Config{
		Users:           users,
		SigningKey:      []byte(cfg.SigningKey),
		Issuer:          cfg.Issuer,
		SessionDuration: cfg.SessionDuration,
	})
	if err != nil {
		return nil, fmt.Errorf("create dev auth provider: %w", err)
	}
	logger.WarnContext(ctx, "dev auth enabled; do not use in production", "users", len(users))
	return prov, nil
}

func buildOIDCProvider(ctx context.Context, cfg AuthConfig, logger *slog.Logger) (*oidc.Provider, error) {
	oauth := cfg.Auth.OAuth
	if !oauth.IsComplete() {
		logger.ErrorContext(ctx, "AuthModeOAuth selected but required config missing",
			"discovery_url_empty", oauth.DiscoveryURL == "",
			"client_id_empty", oauth.ClientID == "",
			"client_secret_empty", oauth.ClientSecret == "",
			"redirect_url_empty", oauth.RedirectURL == "",
		)
		return nil, errors.New("oauth configuration incomplete")
	}

	prov, err := oidc.NewProvider(ctx, oidc.ProviderConfig{
		ClientID:      oauth.ClientID,
		ClientSecret:  oauth.ClientSecret,
		RedirectURL:   oauth.RedirectURL,
		Scope:         oauth.Scope,
		DiscoveryURL:  oauth.DiscoveryURL,
		PasswordGrant: oauth.PasswordGrant,
		HTTPClient:    cfg.HTTPClient,
	})
	if err != nil {
		return nil, fmt.Errorf("create OIDC provider: %w", err)
	}
	logger.InfoContext(ctx, "OIDC provider ready", "password_grant", oauth.PasswordGrant)
	return prov, nil
}
