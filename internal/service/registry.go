package service

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sony/gobreaker"

	"github.com/target/towertrack-portal/internal/adapters/backend"
	domainauth "github.com/target/towertrack-portal/internal/domain/auth"
	"github.com/target/towertrack-portal/internal/domain/guard"
	"github.com/target/towertrack-portal/internal/observability/metrics"
	"github.com/target/towertrack-portal/internal/ports"
	"github.com/target/towertrack-portal/internal/role"
)

// ErrRegistryClosed is returned by Acquire after Close.
var ErrRegistryClosed = errors.New("portal registry closed")

// BackendOptions describes how portals reach the resident REST API.
type BackendOptions struct {
	BaseURL    string
	Timeout    time.Duration
	Transport  http.RoundTripper
	Credential backend.CredentialMode
	Breaker    backend.BreakerSettings
}

// RegistryOptions groups the dependencies shared by every portal.
type RegistryOptions struct {
	Provider ports.IdentityProvider
	Sessions ports.SessionStore
	Resolver *role.Resolver
	// RoleSource overrides the backend role endpoint (static roles in dev).
	RoleSource ports.RoleSource
	// Profiles overrides the backend profile endpoints.
	Profiles ports.ProfileDirectory

	Backend        BackendOptions
	Roles          backend.RoleOptions
	RetryOnceOn401 bool
	BridgeTimeout  time.Duration
	GraceWindow    time.Duration
	SuperAdmins    []string
	// RoleErrorRetry is the minimum wait before a failed role lookup is retried.
	RoleErrorRetry time.Duration

	// SessionTTL applies when the provider gives no expiry.
	SessionTTL time.Duration
	// IdleTimeout evicts in-memory portals that saw no request for this long.
	IdleTimeout    time.Duration
	EnsureProfile  bool
	ProfileTimeout time.Duration

	Metrics   *metrics.Portal
	Logger    *slog.Logger
	Validator *validator.Validate
	Now       func() time.Time
}

// Registry maps portal ids to live portals. Role resolution and the backend
// circuit breaker are process-wide; everything else is per portal.
type Registry struct {
	opts        RegistryOptions
	resolver    *role.Resolver
	breaker     *gobreaker.CircuitBreaker
	superAdmins guard.SuperAdmins
	metrics     *metrics.Portal
	logger      *slog.Logger
	validate    *validator.Validate
	now         func() time.Time

	mu      sync.Mutex
	portals map[string]*Portal
	closed  bool
}

// NewRegistry validates opts and fills defaults.
func NewRegistry(opts RegistryOptions) (*Registry, error) {
	if opts.Provider == nil {
		return nil, errors.New("identity provider is required")
	}
	if opts.Sessions == nil {
		return nil, errors.New("session store is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Validator == nil {
		opts.Validator = NewValidator()
	}
	if opts.Resolver == nil {
		opts.Resolver = role.NewResolver(role.ResolverOptions{Logger: opts.Logger, Observer: opts.Metrics, Now: opts.Now})
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 24 * time.Hour
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = 30 * time.Minute
	}
	if opts.ProfileTimeout <= 0 {
		opts.ProfileTimeout = 10 * time.Second
	}
	if opts.Backend.Breaker.Logger == nil {
		opts.Backend.Breaker.Logger = opts.Logger
	}
	return &Registry{
		opts:        opts,
		resolver:    opts.Resolver,
		breaker:     backend.NewBreaker(opts.Backend.Breaker),
		superAdmins: guard.NewSuperAdmins(opts.SuperAdmins),
		metrics:     opts.Metrics,
		logger:      opts.Logger.With("component", "portal_registry"),
		validate:    opts.Validator,
		now:         opts.Now,
		portals:     make(map[string]*Portal),
	}, nil
}

// Acquire returns the portal for id, creating it when needed. An id that is
// neither live nor persisted is replaced by a fresh one, so callers can never
// pick their own session id. created reports whether the caller must set a new cookie.
func (r *Registry) Acquire(ctx context.Context, id string) (*Portal, bool, error) {
	if p := r.Get(id); p != nil {
		p.touch()
		p.expireIfDue(ctx)
		return p, false, nil
	}

	restore := false
	if id != "" {
		if _, err := r.opts.Sessions.Get(ctx, id); err == nil {
			restore = true
		}
	}
	if !restore {
		id = uuid.NewString()
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, false, ErrRegistryClosed
	}
	if p, ok := r.portals[id]; ok {
		// Another request restored it first.
		r.mu.Unlock()
		p.touch()
		p.expireIfDue(ctx)
		return p, false, nil
	}
	p, err := newPortal(r, id)
	if err != nil {
		r.mu.Unlock()
		return nil, false, err
	}
	r.portals[id] = p
	r.mu.Unlock()

	r.metrics.PortalOpened()
	if restore {
		p.Restore(ctx)
	} else {
		p.ids.Clear()
	}
	return p, !restore, nil
}

// Get returns a live portal, or nil.
func (r *Registry) Get(id string) *Portal {
	if id == "" {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.portals[id]
}

// Len returns the number of live portals.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.portals)
}

// Resolver exposes the process-wide role resolver.
func (r *Registry) Resolver() *role.Resolver { return r.resolver }

// InvalidateRole drops the cached role for an identity key and makes every live
// portal signed in as that key fetch it again.
func (r *Registry) InvalidateRole(ctx context.Context, key string) error {
	key = domainauth.NormalizeKey(key)
	if err := r.resolver.Invalidate(ctx, key); err != nil {
		r.logger.WarnContext(ctx, "shared role cache invalidation failed", "key", key, "error", err)
	}
	n := 0
	for _, p := range r.snapshot() {
		if p.ids.Snapshot().Key() == key {
			p.roles.Refresh()
			n++
		}
	}
	r.logger.InfoContext(ctx, "role invalidated", "key", key, "portals", n)
	return nil
}

// Sweep closes portals idle for longer than IdleTimeout and returns how many it closed.
func (r *Registry) Sweep() int {
	cutoff := r.now().Add(-r.opts.IdleTimeout)
	var idle []*Portal
	r.mu.Lock()
	for id, p := range r.portals {
		if p.idleSince().Before(cutoff) {
			idle = append(idle, p)
			delete(r.portals, id)
		}
	}
	r.mu.Unlock()
	for _, p := range idle {
		p.Close()
	}
	if len(idle) > 0 {
		r.logger.Debug("evicted idle portals", "count", len(idle))
	}
	return len(idle)
}

// ExpireSessions signs out every live portal whose identity is past its expiry,
// revoking its backend session, and returns how many it signed out.
func (r *Registry) ExpireSessions(ctx context.Context) int {
	n := 0
	for _, p := range r.snapshot() {
		if p.expireIfDue(ctx) {
			n++
		}
	}
	if n > 0 {
		r.logger.InfoContext(ctx, "expired portal sessions", "count", n)
	}
	return n
}

// Run sweeps idle portals and expired sessions every interval until ctx ends.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			r.ExpireSessions(ctx)
			r.Sweep()
		}
	}
}

// Close stops every portal. Acquire fails afterwards.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	all := make([]*Portal, 0, len(r.portals))
	for id, p := range r.portals {
		all = append(all, p)
		delete(r.portals, id)
	}
	r.mu.Unlock()
	for _, p := range all {
		p.Close()
	}
}

func (r *Registry) snapshot() []*Portal {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Portal, 0, len(r.portals))
	for _, p := range r.portals {
		out = append(out, p)
	}
	return out
}
