package httpx

import (
	"log/slog"
	"net/http"

	"github.com/target/towertrack-portal/internal/service"
)

// DefaultPortalCookieName names the cookie that binds a browser to its portal.
const DefaultPortalCookieName = "portal_session"

// PortalConfig configures the PortalSession middleware.
type PortalConfig struct {
	Registry     *service.Registry
	CookieName   string
	CookieDomain string
	// MaxAge of the portal cookie in seconds. Zero makes it a browser-session cookie.
	MaxAge int
	Logger *slog.Logger
}

// PortalSession binds each request to a portal, creating one (and a fresh cookie) when the
// browser presents no live or persisted portal id.
func PortalSession(cfg PortalConfig) func(http.Handler) http.Handler {
	if cfg.CookieName == "" {
		cfg.CookieName = DefaultPortalCookieName
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var id string
			if c, err := r.Cookie(cfg.CookieName); err == nil {
				id = c.Value
			}

			p, created, err := cfg.Registry.Acquire(r.Context(), id)
			if err != nil {
				cfg.Logger.ErrorContext(r.Context(), "portal acquire failed", "error", err)
				http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
				return
			}
			if created || p.ID() != id {
				http.SetCookie(w, &http.Cookie{
					Name:     cfg.CookieName,
					Value:    p.ID(),
					Path:     "/",
					Domain:   cfg.CookieDomain,
					MaxAge:   cfg.MaxAge,
					HttpOnly: true,
					Secure:   isSecureRequest(r),
					SameSite: http.SameSiteLaxMode,
				})
			}

			next.ServeHTTP(w, r.WithContext(SetPortalInContext(r.Context(), p)))
		})
	}
}
