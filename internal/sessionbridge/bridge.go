// Package sessionbridge exchanges the identity provider's token for a backend
// session and revokes it on sign-out.
//
// Establishment is started synchronously from the identity listener (so callers can
// observe it as in flight immediately) and completed asynchronously. It runs at most
// once per identity generation.
package sessionbridge

import (
	"context"
	"log/slog"
	"sync"
	"time"

	apperrors "github.com/target/towertrack-portal/internal/errors"
	"github.com/target/towertrack-portal/internal/ports"
)

// Observer receives session bridge telemetry. *metrics.Portal implements it.
type Observer interface {
	SessionOp(op string, err error)
}

// Operation names for telemetry.
const (
	OpEstablish = "establish"
	OpRevoke    = "revoke"
)

// Status is where the backend session stands.
type Status string

const (
	StatusNone         Status = "none"
	StatusEstablishing Status = "establishing"
	StatusEstablished  Status = "established"
	StatusFailed       Status = "failed"
)

// State is a snapshot of the bridge.
type State struct {
	Status        Status    `json:"status"`
	Generation    uint64    `json:"generation"`
	EstablishedAt time.Time `json:"established_at,omitzero"`
	Err           error     `json:"-"`
}

// Options configures a Bridge.
type Options struct {
	Backend ports.SessionBackend
	// Timeout bounds one exchange or revoke call.
	Timeout time.Duration
	// GraceWindow is how long after establishment a 401 is considered a cookie race.
	GraceWindow time.Duration
	Logger      *slog.Logger
	Observer    Observer
	Now         func() time.Time
}

// Bridge owns the backend session lifecycle of one portal.
type Bridge struct {
	backend ports.SessionBackend
	timeout time.Duration
	grace   time.Duration
	logger  *slog.Logger
	obs     Observer
	now     func() time.Time

	mu      sync.Mutex
	state   State
	current *attempt
}

// attempt is one establishment. err is written before done is closed.
type attempt struct {
	done chan struct{}
	err  error
}

func finishedAttempt() *attempt {
	a := &attempt{done: make(chan struct{})}
	close(a.done)
	return a
}

type nopObserver struct{}

func (nopObserver) SessionOp(string, error) {}

// New constructs a Bridge.
func New(opts Options) *Bridge {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.GraceWindow <= 0 {
		opts.GraceWindow = 3 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Bridge{
		backend: opts.Backend,
		timeout: opts.Timeout,
		grace:   opts.GraceWindow,
		logger:  opts.Logger.With("component", "session_bridge"),
		obs:     opts.Observer,
		now:     opts.Now,
		state:   State{Status: StatusNone},
		current: finishedAttempt(),
	}
}

// Start begins establishing the backend session for identity generation gen.
// It returns false without doing anything when gen was already started, so
// re-delivering the same transition never re-triggers the exchange.
func (b *Bridge) Start(ctx context.Context, gen uint64, cred ports.SessionCredential) bool {
	b.mu.Lock()
	if b.state.Generation == gen && b.state.Status != StatusNone {
		b.mu.Unlock()
		return false
	}
	a := &attempt{done: make(chan struct{})}
	b.state = State{Status: StatusEstablishing, Generation: gen}
	b.current = a
	b.mu.Unlock()

	go b.establish(context.WithoutCancel(ctx), gen, cred, a)
	return true
}

func (b *Bridge) establish(ctx context.Context, gen uint64, cred ports.SessionCredential, a *attempt) {
	defer close(a.done)
	cctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	err := b.backend.Establish(cctx, cred)
	b.obs.SessionOp(OpEstablish, err)
	if err != nil {
		err = apperrors.Wrap(err, apperrors.ErrCodeSessionEstablish, "backend session exchange failed")
		// Non-fatal: later privileged calls surface their own auth errors.
		b.logger.WarnContext(ctx, "session establish failed", "generation", gen, "error", err)
	}
	a.err = err

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state.Generation != gen {
		return
	}
	if err != nil {
		b.state = State{Status: StatusFailed, Generation: gen, Err: err}
		return
	}
	b.state = State{Status: StatusEstablished, Generation: gen, EstablishedAt: b.now()}
}

// Await blocks until the current establishment (if any) finishes or ctx ends.
// It returns that establishment's error, even when a newer one has started since.
func (b *Bridge) Await(ctx context.Context) error {
	return b.wait(ctx, b.pending())
}

func (b *Bridge) pending() *attempt {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

func (b *Bridge) wait(ctx context.Context, a *attempt) error {
	select {
	case <-a.done:
		return a.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Teardown revokes the backend session. It is best-effort: the bridge always
// returns to StatusNone and the revoke error is handed back as a warning.
func (b *Bridge) Teardown(ctx context.Context, gen uint64) error {
	b.mu.Lock()
	inflight := b.current.done
	b.state = State{Status: StatusNone, Generation: gen}
	b.current = finishedAttempt()
	b.mu.Unlock()

	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.timeout)
	defer cancel()
	// A late exchange would re-set the cookie after logout; let it land first.
	select {
	case <-inflight:
	case <-cctx.Done():
	}
	err := b.backend.Revoke(cctx)
	b.obs.SessionOp(OpRevoke, err)
	if err != nil {
		b.logger.WarnContext(ctx, "session revoke failed", "error", err)
		return apperrors.WrapTransport(err, "backend logout failed")
	}
	return nil
}

// InGracePeriod reports whether a 401 now is plausibly the establishment race:
// the exchange is still in flight or completed within the grace window.
func (b *Bridge) InGracePeriod() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state.Status {
	case StatusEstablishing:
		return true
	case StatusEstablished:
		return b.now().Sub(b.state.EstablishedAt) <= b.grace
	default:
		return false
	}
}

// State returns the current bridge snapshot.
func (b *Bridge) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
