// Package role resolves and tracks the authorization role bound to an identity.
//
// Resolver is process-wide: it deduplicates concurrent lookups for the same identity
// key and caches results in a local LRU backed by an optional shared tier. Tracker is
// per-portal: it owns the RoleState for the portal's current identity and discards
// results that arrive after the identity has moved on.
package role

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	apperrors "github.com/target/towertrack-portal/internal/errors"
	"github.com/target/towertrack-portal/internal/observability/metrics"
	"github.com/target/towertrack-portal/internal/ports"
)

// ErrNoIdentity is returned when a lookup is requested without an identity key.
var ErrNoIdentity = errors.New("role lookup requires an identity key")

// Observer receives resolver and tracker telemetry. *metrics.Portal implements it.
type Observer interface {
	RoleLookup(outcome string)
	RoleFetched(d time.Duration, err error)
	StaleDiscarded()
}

// ResolverOptions configures a Resolver.
type ResolverOptions struct {
	// TTL is how long a fetched role is served without a round trip.
	TTL time.Duration
	// StaleWindow extends TTL: entries younger than TTL+StaleWindow are served
	// immediately while a background revalidation runs. Zero disables it.
	StaleWindow time.Duration
	// FetchTimeout bounds a single backend fetch independently of any caller.
	FetchTimeout time.Duration
	// LocalCapacity caps the in-process tier.
	LocalCapacity int
	// Shared is an optional cross-process tier.
	Shared   ports.RoleCache
	Logger   *slog.Logger
	Observer Observer
	Now      func() time.Time
}

// Resolver performs cached, deduplicated role lookups.
type Resolver struct {
	ttl          time.Duration
	staleWindow  time.Duration
	fetchTimeout time.Duration
	local        *LRU[ports.RoleEntry]
	shared       ports.RoleCache
	logger       *slog.Logger
	obs          Observer
	now          func() time.Time

	group singleflight.Group

	mu     sync.Mutex
	epochs map[string]uint64
}

// NewResolver constructs a Resolver with defaults for unset options.
func NewResolver(opts ResolverOptions) *Resolver {
	if opts.TTL <= 0 {
		opts.TTL = 5 * time.Minute
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 5 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Observer == nil {
		opts.Observer = (*metrics.Portal)(nil)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Resolver{
		ttl:          opts.TTL,
		staleWindow:  opts.StaleWindow,
		fetchTimeout: opts.FetchTimeout,
		local:        NewLRU[ports.RoleEntry](LRUConfig{Capacity: opts.LocalCapacity, Now: opts.Now}),
		shared:       opts.Shared,
		logger:       opts.Logger.With("component", "role_resolver"),
		obs:          opts.Observer,
		now:          opts.Now,
		epochs:       make(map[string]uint64),
	}
}

// Peek returns a fresh locally cached entry without any I/O.
func (r *Resolver) Peek(key string) (ports.RoleEntry, bool) {
	if key == "" {
		return ports.RoleEntry{}, false
	}
	e, ok := r.local.Get(key)
	if !ok || !r.fresh(e) {
		return ports.RoleEntry{}, false
	}
	return e, true
}

// Resolve returns the role for key, fetching it through src on a miss.
// Concurrent callers for the same key share one fetch. The fetch is detached from
// the caller's cancellation so one caller leaving does not fail the others; ctx only
// bounds how long this caller waits.
func (r *Resolver) Resolve(ctx context.Context, key string, src ports.RoleSource) (ports.RoleEntry, error) {
	if key == "" {
		return ports.RoleEntry{}, ErrNoIdentity
	}

	if e, ok := r.local.Get(key); ok {
		switch {
		case r.fresh(e):
			r.obs.RoleLookup(metrics.LookupLocalHit)
			return e, nil
		case r.staleUsable(e):
			// Serve the stale entry and revalidate in the background.
			r.obs.RoleLookup(metrics.LookupStale)
			r.group.DoChan(key, func() (any, error) { return r.fetch(ctx, key, src) })
			return e, nil
		}
	}

	if e, ok := r.sharedGet(ctx, key); ok {
		r.obs.RoleLookup(metrics.LookupSharedHit)
		r.local.Set(key, e, r.localTTL(e))
		return e, nil
	}

	ch := r.group.DoChan(key, func() (any, error) { return r.fetch(ctx, key, src) })
	select {
	case res := <-ch:
		if res.Err != nil {
			r.obs.RoleLookup(metrics.LookupError)
			return ports.RoleEntry{}, res.Err
		}
		r.obs.RoleLookup(metrics.LookupFetched)
		return res.Val.(ports.RoleEntry), nil
	case <-ctx.Done():
		return ports.RoleEntry{}, ctx.Err()
	}
}

func (r *Resolver) fetch(ctx context.Context, key string, src ports.RoleSource) (ports.RoleEntry, error) {
	epoch := r.epoch(key)
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.fetchTimeout)
	defer cancel()

	start := r.now()
	role, err := src.FetchRole(fctx, key)
	r.obs.RoleFetched(r.now().Sub(start), err)
	if err != nil {
		if apperrors.GetCode(err) == "" {
			err = apperrors.Wrap(err, apperrors.ErrCodeRoleFetchFailed, "role lookup failed")
		}
		r.logger.WarnContext(ctx, "role fetch failed", "key", key, "error", err)
		return ports.RoleEntry{}, err
	}
	if !role.Assignable() {
		return ports.RoleEntry{}, apperrors.New(apperrors.ErrCodeRoleFetchFailed, "backend returned unknown role "+role.String())
	}

	entry := ports.RoleEntry{Role: role, FetchedAt: r.now()}
	if r.epoch(key) != epoch {
		// Invalidated while in flight; answer waiting callers but do not repopulate the cache.
		return entry, nil
	}
	r.local.Set(key, entry, r.localTTL(entry))
	if r.shared != nil {
		if err := r.shared.Set(fctx, key, entry, r.ttl); err != nil {
			r.logger.WarnContext(ctx, "shared role cache write failed", "key", key, "error", err)
		}
	}
	return entry, nil
}

// Invalidate drops key from every tier. A fetch already in flight for key will still
// answer its waiters but cannot write its result back into the cache.
func (r *Resolver) Invalidate(ctx context.Context, key string) error {
	if key == "" {
		return ErrNoIdentity
	}
	r.mu.Lock()
	r.epochs[key]++
	r.mu.Unlock()
	r.group.Forget(key)
	r.local.Delete(key)
	if r.shared == nil {
		return nil
	}
	if err := r.shared.Delete(ctx, key); err != nil {
		return apperrors.WrapTransport(err, "invalidate shared role cache")
	}
	return nil
}

// Stats exposes local tier counters.
func (r *Resolver) Stats() LRUStats { return r.local.Stats() }

func (r *Resolver) sharedGet(ctx context.Context, key string) (ports.RoleEntry, bool) {
	if r.shared == nil {
		return ports.RoleEntry{}, false
	}
	e, found, err := r.shared.Get(ctx, key)
	if err != nil {
		r.logger.WarnContext(ctx, "shared role cache read failed", "key", key, "error", err)
		return ports.RoleEntry{}, false
	}
	if !found || !e.Role.Assignable() || !r.fresh(e) {
		return ports.RoleEntry{}, false
	}
	return e, true
}

func (r *Resolver) epoch(key string) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.epochs[key]
}

func (r *Resolver) fresh(e ports.RoleEntry) bool {
	return r.now().Sub(e.FetchedAt) < r.ttl
}

func (r *Resolver) staleUsable(e ports.RoleEntry) bool {
	return r.staleWindow > 0 && r.now().Sub(e.FetchedAt) < r.ttl+r.staleWindow
}

// localTTL keeps entries in the LRU for the stale window beyond their freshness.
func (r *Resolver) localTTL(e ports.RoleEntry) time.Duration {
	remaining := r.ttl + r.staleWindow - r.now().Sub(e.FetchedAt)
	if remaining <= 0 {
		return time.Nanosecond
	}
	return remaining
}
