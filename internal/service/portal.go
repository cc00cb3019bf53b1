// Package service orchestrates portals: one per browser session, each owning an
// identity store, a role tracker and a backend session bridge.
package service

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/target/towertrack-portal/internal/adapters/backend"
	domainauth "github.com/target/towertrack-portal/internal/domain/auth"
	"github.com/target/towertrack-portal/internal/domain/guard"
	"github.com/target/towertrack-portal/internal/domain/nav"
	"github.com/target/towertrack-portal/internal/identity"
	"github.com/target/towertrack-portal/internal/ports"
	"github.com/target/towertrack-portal/internal/role"
	"github.com/target/towertrack-portal/internal/sessionbridge"
)

// Portal is the single owned state of one browser session. Handlers read
// immutable snapshots from it; only the portal's own components write.
type Portal struct {
	id     string
	reg    *Registry
	logger *slog.Logger

	ids    *identity.Store
	roles  *role.Tracker
	bridge *sessionbridge.Bridge
	client *backend.Client
	api    *backend.API

	// residents serves dashboard data; it is api outside tests.
	residents ports.ResidentAPI

	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	unsub  func()

	mu       sync.Mutex
	token    string // provider token for the current identity
	flow     *federatedFlow
	lastSeen time.Time
	closed   bool
}

type federatedFlow struct {
	state    string
	nonce    string
	returnTo string
	started  time.Time
}

func newPortal(reg *Registry, id string) (*Portal, error) {
	logger := reg.logger.With("portal", shortID(id))
	client, err := backend.NewClient(backend.Options{
		BaseURL:    reg.opts.Backend.BaseURL,
		Timeout:    reg.opts.Backend.Timeout,
		Breaker:    reg.breaker,
		Transport:  reg.opts.Backend.Transport,
		Credential: reg.opts.Backend.Credential,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}

	base, cancel := context.WithCancel(context.Background())
	p := &Portal{
		id:       id,
		reg:      reg,
		logger:   logger,
		ids:      identity.NewStore(),
		client:   client,
		base:     base,
		cancel:   cancel,
		lastSeen: reg.now(),
	}
	p.bridge = sessionbridge.New(sessionbridge.Options{
		Backend:     client,
		Timeout:     reg.opts.BridgeTimeout,
		GraceWindow: reg.opts.GraceWindow,
		Logger:      logger,
		Observer:    reg.metrics,
		Now:         reg.now,
	})

	policy := backend.AuthPolicy{
		RetryOnceOn401: reg.opts.RetryOnceOn401,
		OnAuthFailure: func(ctx context.Context, req *http.Request) {
			logger.WarnContext(ctx, "backend rejected session", "path", req.URL.Path)
		},
	}
	p.api, err = client.API(policy, p.bridge, reg.opts.Roles)
	if err != nil {
		cancel()
		return nil, err
	}

	p.residents = p.api

	var src ports.RoleSource = p.api
	if reg.opts.RoleSource != nil {
		src = reg.opts.RoleSource
	}
	p.roles = role.NewTracker(role.TrackerOptions{
		Resolver: reg.resolver,
		Source:   src,
		Before: func(ctx context.Context) {
			// The privileged role call must not race the cookie exchange.
			_ = p.bridge.Await(ctx)
		},
		ErrorRetry: reg.opts.RoleErrorRetry,
		Logger:     logger,
		Observer:   reg.metrics,
		Now:        reg.now,
	})
	p.unsub = p.ids.Subscribe(p.onIdentity)
	return p, nil
}

// onIdentity runs for every identity transition, in order. The bridge is started
// before the tracker so the role fetch always finds the exchange in flight.
func (p *Portal) onIdentity(snap domainauth.IdentitySnapshot) {
	if snap.IsAuthenticated() {
		p.mu.Lock()
		cred := ports.SessionCredential{Token: p.token, Email: snap.Key()}
		p.mu.Unlock()
		if p.bridge.Start(p.base, snap.Generation, cred) {
			p.logger.Debug("backend session exchange started", "generation", snap.Generation)
		}
	}
	p.roles.Track(snap)
}

// ID returns the portal id carried in the browser cookie.
func (p *Portal) ID() string { return p.id }

// CurrentIdentity returns the identity snapshot.
func (p *Portal) CurrentIdentity() domainauth.IdentitySnapshot { return p.ids.Snapshot() }

// IsInitializing reports whether the first identity event has not happened yet.
func (p *Portal) IsInitializing() bool { return p.ids.Snapshot().IsInitializing() }

// RoleState returns the role snapshot.
func (p *Portal) RoleState() domainauth.RoleState { return p.roles.State() }

// Session returns the backend session bridge snapshot.
func (p *Portal) Session() sessionbridge.State { return p.bridge.State() }

// API exposes the privileged backend client for dashboard pages.
func (p *Portal) API() ports.ResidentAPI { return p.residents }

// Watch streams identity transitions until ctx ends or the portal closes.
func (p *Portal) Watch(ctx context.Context) <-chan domainauth.IdentitySnapshot { return p.ids.Watch(ctx) }

// Evaluate runs g against the current snapshots. The identity is read first so a
// role state for a newer identity is treated as pending, never as a match.
func (p *Portal) Evaluate(g guard.Guard, path string) guard.Outcome {
	in := guard.Input{
		Identity:    p.ids.Snapshot(),
		Role:        p.roles.State(),
		Path:        path,
		SuperAdmins: p.reg.superAdmins,
	}
	out := g.Evaluate(in)
	p.reg.metrics.GuardDecision(g.Name(), out.Decision.String())
	return out
}

// AwaitSettled waits until the identity is known and no role lookup is in flight,
// or ctx ends. A failed lookup is retried first once its retry interval has passed.
// It returns the snapshots seen last.
func (p *Portal) AwaitSettled(ctx context.Context) (domainauth.IdentitySnapshot, domainauth.RoleState) {
	if p.ids.Snapshot().IsInitializing() {
		wctx, cancel := context.WithCancel(ctx)
		for snap := range p.ids.Watch(wctx) {
			if !snap.IsInitializing() {
				break
			}
		}
		cancel()
	}
	p.roles.Retry()
	st := p.roles.Wait(ctx)
	return p.ids.Snapshot(), st
}

// Navigation builds the dashboard menu from the current snapshots.
func (p *Portal) Navigation() []nav.Entry {
	return nav.Build(p.ids.Snapshot(), p.roles.State())
}

// touch records activity for idle eviction.
func (p *Portal) touch() {
	p.mu.Lock()
	p.lastSeen = p.reg.now()
	p.mu.Unlock()
}

func (p *Portal) idleSince() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastSeen
}

// Close stops the portal. In-flight fetches are cancelled and nothing is written
// afterwards. The backend session and the session record are left alone so the
// portal can be restored later.
func (p *Portal) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	p.unsub()
	p.cancel()
	p.roles.Close()
	p.ids.Close()
	p.wg.Wait()
	p.reg.metrics.PortalClosed()
}

func (p *Portal) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// goBackground runs fn on the portal's wait group unless the portal is closed.
func (p *Portal) goBackground(fn func(ctx context.Context)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		fn(p.base)
	}()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
