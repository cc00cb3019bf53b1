package httpx

import (
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"regexp"
	"time"

	portal "github.com/target/towertrack-portal"
	"github.com/target/towertrack-portal/internal/domain/guard"
	"github.com/target/towertrack-portal/internal/observability/metrics"
	"github.com/target/towertrack-portal/internal/service"
)

// RouterServices holds everything the HTTP router needs.
type RouterServices struct {
	Registry *service.Registry
	Metrics  *metrics.Portal
	// MetricsHandler serves /metrics when set (promhttp in production).
	MetricsHandler http.Handler

	CookieDomain string
	// PortalCookieMaxAge in seconds; zero keeps the portal cookie for the browser session.
	PortalCookieMaxAge int
	PaymentKey         string
	SettleWait         time.Duration

	// TemplateFS overrides where templates are read from (tests).
	TemplateFS fs.FS
	IsDev      bool         // Development mode: templates and static files from disk
	Logger     *slog.Logger // Logger for template and HTTP errors (optional)
}

// NewRouter creates and configures the portal HTTP handler.
//
// Health, metrics and static files are served without a portal. Every other route runs
// behind panic recovery, request logging, browser detection, CSRF protection and the
// portal session binding.
func NewRouter(services RouterServices) (http.Handler, error) {
	if services.Registry == nil {
		return nil, fmt.Errorf("router: registry is required")
	}
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}

	tr, err := NewTemplateRenderer(TemplateRendererConfig{
		TemplateFS: templateFS(services),
		DevMode:    services.IsDev,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("router: %w", err)
	}

	pages := &Pages{T: tr, IsDev: services.IsDev, Logger: logger}
	guardCfg := GuardConfig{SettleWait: services.SettleWait, Renderer: tr, Logger: logger}
	authHandlers := &AuthHandlers{Pages: pages}
	dashboard := &DashboardHandlers{Pages: pages, Guard: guardCfg, PaymentKey: services.PaymentKey}

	app := http.NewServeMux()
	app.HandleFunc("GET /{$}", pages.Home)
	registerAuthRoutes(app, authHandlers)
	registerDashboardRoutes(app, dashboard)
	registerResidentRoutes(app, dashboard)
	app.HandleFunc("/", pages.NotFound)

	appChain := Chain(Metrics(services.Metrics)(app),
		Recover(logger),
		Logging(logger),
		BrowserDetection(),
		CSRFProtection(CSRFConfig{CookieDomain: services.CookieDomain, Exempt: isJSONRequest}),
		PortalSession(PortalConfig{
			Registry:     services.Registry,
			CookieDomain: services.CookieDomain,
			MaxAge:       services.PortalCookieMaxAge,
			Logger:       logger,
		}),
	)

	root := http.NewServeMux()
	root.Handle("GET /healthz", healthHandler(services.Registry))
	if services.MetricsHandler != nil {
		root.Handle("GET /metrics", services.MetricsHandler)
	}
	root.Handle("GET /static/", staticHandler(services.IsDev))
	root.Handle("/", appChain)
	return root, nil
}

func registerAuthRoutes(mux *http.ServeMux, h *AuthHandlers) {
	mux.HandleFunc("GET /login", h.LoginPage)
	mux.HandleFunc("POST /login", h.Login)
	mux.HandleFunc("GET /auth/federated", h.Federated)
	mux.HandleFunc("GET /auth/callback", h.Callback)
	mux.HandleFunc("POST /logout", h.Logout)
	mux.HandleFunc("GET /auth/signed-out", h.SignedOut)
	mux.HandleFunc("GET /unauthorized", h.Unauthorized)
	mux.HandleFunc("GET /auth/status", h.Status)
}

func registerDashboardRoutes(mux *http.ServeMux, h *DashboardHandlers) {
	admin := RequireGuard(guard.RequireAdmin, h.Guard)
	mux.Handle("GET /dashboard", RequireGuard(guard.Private, h.Guard)(http.HandlerFunc(h.Index)))
	// Page picks the guard from the slug.
	mux.HandleFunc("GET /dashboard/{page}", h.Page)
	mux.Handle("POST /dashboard/agreement-requests/{id}/accept", admin(http.HandlerFunc(h.AcceptAgreement)))
	mux.Handle("POST /dashboard/make-announcement", admin(http.HandlerFunc(h.MakeAnnouncement)))
	mux.Handle("POST /dashboard/manage-coupons", admin(http.HandlerFunc(h.SaveCoupon)))
	mux.Handle("POST /dashboard/manage-coupons/{id}", admin(http.HandlerFunc(h.SaveCoupon)))
	mux.Handle("PATCH /dashboard/manage-coupons/{id}", admin(http.HandlerFunc(h.SaveCoupon)))
	mux.Handle("POST /dashboard/manage-coupons/{id}/delete", admin(http.HandlerFunc(h.DeleteCoupon)))
	mux.Handle("DELETE /dashboard/manage-coupons/{id}", admin(http.HandlerFunc(h.DeleteCoupon)))
	mux.Handle("POST /dashboard/manage-members/{email}/demote", admin(http.HandlerFunc(h.DemoteMember)))
}

func registerResidentRoutes(mux *http.ServeMux, h *DashboardHandlers) {
	private := RequireGuard(guard.Private, h.Guard)
	member := RequireGuard(guard.RequireMember, h.Guard)
	mux.Handle("GET /apartments", private(http.HandlerFunc(h.Apartments)))
	mux.Handle("POST /apartments/{id}/agreement", private(http.HandlerFunc(h.RequestAgreement)))
	mux.Handle("POST /dashboard/make-payment", member(http.HandlerFunc(h.QuotePayment)))
	mux.Handle("POST /dashboard/make-payment/intent", member(http.HandlerFunc(h.PaymentIntent)))
	mux.Handle("POST /dashboard/make-payment/confirm", member(http.HandlerFunc(h.ConfirmPayment)))
}

func templateFS(services RouterServices) fs.FS {
	if services.TemplateFS != nil {
		return services.TemplateFS
	}
	if services.IsDev {
		return os.DirFS(TemplatePathFromRoot)
	}
	sub, err := fs.Sub(portal.TemplateFS, TemplatePathFromRoot)
	if err != nil {
		return os.DirFS(TemplatePathFromRoot)
	}
	return sub
}

// staticHandler serves /static/* from disk in dev mode and from the embedded FS otherwise.
func staticHandler(isDev bool) http.Handler {
	if isDev {
		return staticWithCacheHeaders(http.StripPrefix("/static/", http.FileServer(http.Dir("frontend/static"))))
	}
	sub, err := fs.Sub(portal.StaticFS, "frontend/static")
	if err != nil {
		return staticWithCacheHeaders(http.StripPrefix("/static/", http.FileServer(http.Dir("frontend/static"))))
	}
	return staticWithCacheHeaders(http.StripPrefix("/static/", http.FileServer(http.FS(sub))))
}

var hashedFilePattern = regexp.MustCompile(`\.[a-f0-9]{8}\.(?:js|css)(?:\.map)?$`)

// staticWithCacheHeaders caches content-hashed assets for a year and everything else not at all.
func staticWithCacheHeaders(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hashedFilePattern.MatchString(r.URL.Path) {
			w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
		} else {
			w.Header().Set("Cache-Control", "no-cache")
		}
		handler.ServeHTTP(w, r)
	})
}
