package bootstrap

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/target/towertrack-portal/config"
	"github.com/target/towertrack-portal/internal/adapters/authroles"
	"github.com/target/towertrack-portal/internal/adapters/backend"
	redisadapter "github.com/target/towertrack-portal/internal/adapters/redis"
	domainauth "github.com/target/towertrack-portal/internal/domain/auth"
	"github.com/target/towertrack-portal/internal/observability/metrics"
	"github.com/target/towertrack-portal/internal/ports"
	"github.com/target/towertrack-portal/internal/role"
	"github.com/target/towertrack-portal/internal/service"
)

// PortalDeps contains what the portal registry is built from. Sessions and
// RoleCache default to Redis-backed stores when RedisClient is set.
type PortalDeps struct {
	Config      *config.AppConfig
	Provider    ports.IdentityProvider
	RedisClient redis.UniversalClient
	Sessions    ports.SessionStore
	RoleCache   ports.RoleCache
	Metrics     *metrics.Portal
	Logger      *slog.Logger
}

// BuildRegistry wires the process-wide role resolver and the portal registry.
func BuildRegistry(deps PortalDeps) (*service.Registry, error) {
	if deps.Config == nil {
		return nil, errors.New("config is required")
	}
	if deps.Provider == nil {
		return nil, errors.New("identity provider is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := deps.Config

	sessions := deps.Sessions
	if sessions == nil {
		if deps.RedisClient == nil {
			return nil, errors.New("session store requires a redis client")
		}
		sessions = redisadapter.NewSessionStoreWithPrefix(deps.RedisClient, cfg.Redis.SessionPrefix)
	}

	shared := deps.RoleCache
	if shared == nil && cfg.Roles.SharedCache && deps.RedisClient != nil {
		shared = redisadapter.NewRoleCache(deps.RedisClient, cfg.Roles.CachePrefix)
	}

	roleSource, err := staticRoleSource(cfg.Roles)
	if err != nil {
		return nil, err
	}
	if roleSource != nil {
		logger.Warn("static roles replace the backend role endpoint")
	}

	resolver := role.NewResolver(role.ResolverOptions{
		TTL:           cfg.Roles.TTL,
		StaleWindow:   cfg.Roles.StaleWindow,
		FetchTimeout:  cfg.Roles.FetchTimeout,
		LocalCapacity: cfg.Roles.LocalCapacity,
		Shared:        shared,
		Logger:        logger,
		Observer:      deps.Metrics,
	})

	reg, err := service.NewRegistry(service.RegistryOptions{
		Provider:   deps.Provider,
		Sessions:   sessions,
		Resolver:   resolver,
		RoleSource: roleSource,
		Backend:    backendOptions(cfg.Backend, logger),
		Roles: backend.RoleOptions{
			Expression:    cfg.Roles.Expression,
			MissingIsUser: cfg.Roles.MissingIsUser,
		},
		RetryOnceOn401: cfg.Backend.RetryOnceOn401,
		BridgeTimeout:  cfg.Backend.BridgeTimeout,
		GraceWindow:    cfg.Backend.GraceWindow,
		SuperAdmins:    cfg.Auth.SuperAdmins,
		RoleErrorRetry: cfg.Roles.ErrorRetry,
		SessionTTL:     cfg.Auth.SessionTTL,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		EnsureProfile:  cfg.Backend.EnsureProfile,
		ProfileTimeout: cfg.Backend.ProfileTimeout,
		Metrics:        deps.Metrics,
		Logger:         logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build portal registry: %w", err)
	}
	return reg, nil
}

func backendOptions(cfg config.BackendConfig, logger *slog.Logger) service.BackendOptions {
	return service.BackendOptions{
		BaseURL:    cfg.BaseURL,
		Timeout:    cfg.Timeout,
		Credential: backend.CredentialMode(cfg.Credential),
		Breaker: backend.BreakerSettings{
			Name:         "backend",
			MaxRequests:  cfg.Breaker.MaxRequests,
			Interval:     cfg.Breaker.Interval,
			Timeout:      cfg.Breaker.Timeout,
			MinRequests:  cfg.Breaker.MinRequests,
			FailureRatio: cfg.Breaker.FailureRatio,
			Logger:       logger,
		},
	}
}

// staticRoleSource returns nil when roles come from the backend.
//
//nolint:ireturn // nil selects the backend role endpoint.
func staticRoleSource(cfg config.RolesConfig) (ports.RoleSource, error) {
	if !cfg.UsesStaticRoles() {
		return nil, nil
	}
	var def domainauth.Role
	if cfg.StaticDefault != "" {
		r, err := domainauth.ParseRole(cfg.StaticDefault)
		if err != nil {
			return nil, fmt.Errorf("ROLES_STATIC_DEFAULT: %w", err)
		}
		def = r
	}
	src, err := authroles.ParseStaticRoles(cfg.Static, def)
	if err != nil {
		return nil, err
	}
	return src, nil
}
