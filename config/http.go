package config

import "time"

// HTTPConfig contains HTTP server configuration.
type HTTPConfig struct {
	// Addr is the address to bind the HTTP server to.
	Addr string `env:"HTTP_ADDR" envDefault:":8080"`

	// CookieDomain is the domain for portal and CSRF cookies.
	// Leave empty to use the request domain.
	CookieDomain string `env:"APP_COOKIE_DOMAIN" envDefault:""`

	// PortalCookieMaxAge is how long the browser keeps the portal cookie.
	// Zero makes it a browser-session cookie.
	PortalCookieMaxAge time.Duration `env:"PORTAL_COOKIE_MAX_AGE" envDefault:"24h"`

	// IdleTimeout evicts in-memory portals that saw no request for this long.
	IdleTimeout time.Duration `env:"PORTAL_IDLE_TIMEOUT" envDefault:"30m"`
	// SweepInterval is how often idle portals are evicted.
	SweepInterval time.Duration `env:"PORTAL_SWEEP_INTERVAL" envDefault:"1m"`

	// SettleWait is how long a guarded request waits for identity and role to settle
	// before it is answered with the loading page.
	SettleWait time.Duration `env:"GUARD_SETTLE_WAIT" envDefault:"1500ms"`

	// PaymentPublishableKey is handed to the payment widget on the make-payment page.
	PaymentPublishableKey string `env:"PAYMENT_PUBLISHABLE_KEY"`

	ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT"     envDefault:"30s"`
	WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT"    envDefault:"30s"`
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Sanitize applies guardrails to HTTP configuration values.
func (h *HTTPConfig) Sanitize() {
	if h.Addr == "" {
		h.Addr = ":8080"
	}
	if h.PortalCookieMaxAge < 0 {
		h.PortalCookieMaxAge = 0
	}
	if h.IdleTimeout <= 0 {
		h.IdleTimeout = 30 * time.Minute
	}
	if h.SweepInterval <= 0 {
		h.SweepInterval = time.Minute
	}
	if h.SettleWait < 0 {
		h.SettleWait = 0
	}
	if h.ReadTimeout <= 0 {
		h.ReadTimeout = 30 * time.Second
	}
	if h.WriteTimeout <= 0 {
		h.WriteTimeout = 30 * time.Second
	}
	if h.ShutdownTimeout <= 0 {
		h.ShutdownTimeout = 10 * time.Second
	}
}

// PortalCookieSeconds returns the portal cookie max-age in whole seconds.
func (h *HTTPConfig) PortalCookieSeconds() int {
	return int(h.PortalCookieMaxAge / time.Second)
}
