package role

import (
	"context"
	"log/slog"
	"sync"
	"time"

	domainauth "github.com/target/towertrack-portal/internal/domain/auth"
	"github.com/target/towertrack-portal/internal/observability/metrics"
	"github.com/target/towertrack-portal/internal/ports"
)

// TrackerOptions configures a Tracker.
type TrackerOptions struct {
	Resolver *Resolver
	Source   ports.RoleSource
	// Before runs ahead of every fetch, on the fetch goroutine. The portal uses it to
	// wait for an in-flight backend session exchange before the privileged role call.
	Before   func(ctx context.Context)

	// ErrorRetry is the minimum time between a failed lookup and the next attempt
	// for the same identity. Zero means 5s.
	ErrorRetry time.Duration
	Logger     *slog.Logger
	Observer   Observer
	Now        func() time.Time
}

// Tracker owns the RoleState of one portal. Every identity transition bumps a
// generation counter; a fetch result is applied only if its generation is still
// current, so a late answer for a previous identity can never be observed.
type Tracker struct {
	resolver *Resolver
	src      ports.RoleSource
	before   func(ctx context.Context)
	logger   *slog.Logger
	obs      Observer
	retry    time.Duration
	now      func() time.Time

	base      context.Context
	closeBase context.CancelFunc
	wg        sync.WaitGroup

	mu       sync.Mutex
	gen      uint64
	key      string
	state    domainauth.RoleState
	cancel   context.CancelFunc
	changed  chan struct{}
	failedAt time.Time
	closed   bool
}

// NewTracker returns a tracker in the unresolved state.
func NewTracker(opts TrackerOptions) *Tracker {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Observer == nil {
		opts.Observer = (*metrics.Portal)(nil)
	}
	if opts.ErrorRetry <= 0 {
		opts.ErrorRetry = 5 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	base, cancel := context.WithCancel(context.Background())
	return &Tracker{
		resolver:  opts.Resolver,
		src:       opts.Source,
		before:    opts.Before,
		logger:    opts.Logger,
		obs:       opts.Observer,
		retry:     opts.ErrorRetry,
		now:       opts.Now,
		base:      base,
		closeBase: cancel,
		state:     domainauth.UnresolvedRole(),
		changed:   make(chan struct{}),
	}
}

// Track reacts to an identity snapshot. Lookups are gated: nothing is fetched while
// the identity is initializing or absent.
func (t *Tracker) Track(snap domainauth.IdentitySnapshot) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}

	key := snap.Key()
	if key == "" {
		t.advanceLocked("")
		t.setLocked(domainauth.UnresolvedRole())
		return
	}
	if key == t.key && t.state.For(key) && !t.retryDueLocked() {
		// Same principal re-published; the current lookup or result still applies.
		return
	}

	t.advanceLocked(key)
	if e, ok := t.resolver.Peek(key); ok {
		t.obs.RoleLookup(metrics.LookupLocalHit)
		t.setLocked(resolvedState(key, e))
		return
	}
	t.startLocked(key)
}

// Refresh re-fetches the role for the current identity, bypassing the tracker's
// own state. Callers invalidate the resolver first when the backend role changed.
func (t *Tracker) Refresh() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed || t.key == "" {
		return
	}
	key := t.key
	t.advanceLocked(key)
	t.startLocked(key)
}

// Retry starts a new lookup when the last one failed at least ErrorRetry ago.
// It reports whether a lookup was started.
func (t *Tracker) Retry() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed || t.key == "" || !t.retryDueLocked() {
		return false
	}
	key := t.key
	t.logger.Debug("retrying failed role lookup", "key", key)
	t.advanceLocked(key)
	t.startLocked(key)
	return true
}

// State returns the current role state.
func (t *Tracker) State() domainauth.RoleState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Changed returns a channel that is closed on the next state change.
func (t *Tracker) Changed() <-chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.changed
}

// Wait blocks until no lookup is in flight or ctx ends, and returns the state seen last.
func (t *Tracker) Wait(ctx context.Context) domainauth.RoleState {
	for {
		t.mu.Lock()
		st, ch := t.state, t.changed
		t.mu.Unlock()
		if !st.IsLoading() {
			return st
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return st
		}
	}
}

// Close cancels any in-flight lookup and waits for fetch goroutines to exit.
// No state is written after Close returns.
func (t *Tracker) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
	t.closeBase()
	t.mu.Unlock()
	t.wg.Wait()
}

// caller holds t.mu.
func (t *Tracker) advanceLocked(key string) {
	t.gen++
	t.key = key
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
}

// caller holds t.mu.
func (t *Tracker) startLocked(key string) {
	t.setLocked(domainauth.RoleState{Status: domainauth.RoleStatusLoading, Key: key})
	ctx, cancel := context.WithCancel(t.base)
	t.cancel = cancel
	gen := t.gen
	t.wg.Add(1)
	go t.run(ctx, gen, key)
}

func (t *Tracker) run(ctx context.Context, gen uint64, key string) {
	defer t.wg.Done()
	if t.before != nil {
		t.before(ctx)
	}
	if ctx.Err() != nil {
		t.discard(gen)
		return
	}
	e, err := t.resolver.Resolve(ctx, key, t.src)
	t.apply(gen, key, e, err)
}

func (t *Tracker) apply(gen uint64, key string, e ports.RoleEntry, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed || gen != t.gen {
		t.obs.StaleDiscarded()
		t.logger.Debug("discarded stale role result", "key", key, "generation", gen, "current", t.gen)
		return
	}
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
	if err != nil {
		t.failedAt = t.now()
		t.setLocked(domainauth.RoleState{Status: domainauth.RoleStatusError, Key: key, Err: err})
		return
	}
	t.setLocked(resolvedState(key, e))
}

// caller holds t.mu.
func (t *Tracker) retryDueLocked() bool {
	return t.state.IsError() && !t.now().Before(t.failedAt.Add(t.retry))
}

func (t *Tracker) discard(gen uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if gen != t.gen || t.closed {
		t.obs.StaleDiscarded()
	}
}

// caller holds t.mu.
func (t *Tracker) setLocked(st domainauth.RoleState) {
	t.state = st
	close(t.changed)
	t.changed = make(chan struct{})
}

func resolvedState(key string, e ports.RoleEntry) domainauth.RoleState {
	return domainauth.RoleState{
		Status:    domainauth.RoleStatusResolved,
		Key:       key,
		Role:      e.Role,
		FetchedAt: e.FetchedAt,
	}
}
