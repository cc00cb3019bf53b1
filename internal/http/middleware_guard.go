package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/target/towertrack-portal/internal/domain/guard"
)

// DefaultSettleWait bounds how long a guarded request waits for identity and role to settle
// before answering with a pending page.
const DefaultSettleWait = 1500 * time.Millisecond

var (
	errSignInRequired = errors.New("sign in required")
	errNotPermitted   = errors.New("not permitted")
	errNotFound       = errors.New("not found")
	errNoPortal       = errors.New("no portal bound to request")
)

// GuardConfig configures guard enforcement.
type GuardConfig struct {
	SettleWait time.Duration
	Renderer   *TemplateRenderer // optional; renders the pending page
	Logger     *slog.Logger
}

func (c GuardConfig) withDefaults() GuardConfig {
	if c.SettleWait <= 0 {
		c.SettleWait = DefaultSettleWait
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// RequireGuard returns a middleware that lets the request through only when g allows it.
func RequireGuard(g guard.Guard, cfg GuardConfig) func(http.Handler) http.Handler {
	cfg = cfg.withDefaults()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if enforceGuard(w, r, g, cfg) {
				next.ServeHTTP(w, r)
			}
		})
	}
}

// enforceGuard evaluates g for the request's portal and writes the denial or pending
// response itself. It returns true when the handler may proceed.
func enforceGuard(w http.ResponseWriter, r *http.Request, g guard.Guard, cfg GuardConfig) bool {
	p, ok := PortalFromContext(r.Context())
	if !ok {
		cfg.Logger.ErrorContext(r.Context(), "guarded route without portal", "guard", g.Name())
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return false
	}

	ctx, cancel := context.WithTimeout(r.Context(), cfg.SettleWait)
	p.AwaitSettled(ctx)
	cancel()

	out := p.Evaluate(g, r.URL.RequestURI())
	switch out.Decision {
	case guard.Allow:
		return true
	case guard.Pending:
		writePending(w, r, out, cfg)
	case guard.DenyToLogin:
		if !IsBrowserRequest(r) {
			WriteError(w, ErrorParams{Code: http.StatusUnauthorized, ErrCode: "UNAUTHENTICATED", Err: errSignInRequired})
			return false
		}
		redirectToLogin(w, r, out.ReturnTo)
	case guard.DenyToUnauthorized:
		cfg.Logger.InfoContext(r.Context(), "guard denied",
			slog.String("guard", g.Name()),
			slog.String("path", r.URL.Path),
			slog.String("reason", out.Reason))
		if !IsBrowserRequest(r) {
			WriteError(w, ErrorParams{Code: http.StatusForbidden, ErrCode: "UNAUTHORIZED", Err: errNotPermitted})
			return false
		}
		redirectTo(w, r, "/unauthorized")
	}
	return false
}

// writePending answers while identity or role is still loading. Browsers get a page that
// polls by reloading; API clients get 202 with the pending decision.
func writePending(w http.ResponseWriter, r *http.Request, out guard.Outcome, cfg GuardConfig) {
	w.Header().Set("Cache-Control", "no-store")
	if !IsBrowserRequest(r) {
		WriteJSON(w, http.StatusAccepted, map[string]any{
			"decision": out.Decision.String(),
			"reason":   out.Reason,
		})
		return
	}
	if cfg.Renderer != nil {
		data := map[string]any{"Title": "Loading", "RetryAfter": 1, "Target": r.URL.RequestURI()}
		if err := cfg.Renderer.RenderPending(w, r, data); err == nil {
			return
		}
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(`<!doctype html><meta http-equiv="refresh" content="1"><p>Loading…</p>`))
}
