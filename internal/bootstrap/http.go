package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/target/towertrack-portal/config"
	httpx "github.com/target/towertrack-portal/internal/http"
	"github.com/target/towertrack-portal/internal/observability/metrics"
	"github.com/target/towertrack-portal/internal/service"
)

// HTTPServerConfig contains configuration for HTTP server.
type HTTPServerConfig struct {
	Config   *config.AppConfig
	Registry *service.Registry
	Metrics  *metrics.Portal
	// Gatherer backs /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
}

// BuildHTTPHandler assembles the portal router.
func BuildHTTPHandler(cfg *HTTPServerConfig) (http.Handler, error) {
	if cfg == nil || cfg.Registry == nil {
		return nil, errors.New("portal registry is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	appCfg := cfg.Config
	if appCfg == nil {
		appCfg = &config.AppConfig{}
	}

	services := httpx.RouterServices{
		Registry:           cfg.Registry,
		Metrics:            cfg.Metrics,
		CookieDomain:       appCfg.HTTP.CookieDomain,
		PortalCookieMaxAge: appCfg.HTTP.PortalCookieSeconds(),
		PaymentKey:         appCfg.HTTP.PaymentPublishableKey,
		SettleWait:         appCfg.HTTP.SettleWait,
		IsDev:              appCfg.IsDev,
		Logger:             logger,
	}
	if cfg.Gatherer != nil {
		services.MetricsHandler = promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})
	}
	return httpx.NewRouter(services)
}

// StartHTTPServer creates and starts the HTTP server.
// Returns the server instance for graceful shutdown; listen failures go to errCh.
func StartHTTPServer(cfg *HTTPServerConfig, errCh chan<- error) (*http.Server, error) {
	handler, err := BuildHTTPHandler(cfg)
	if err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	httpCfg := config.HTTPConfig{}
	if cfg.Config != nil {
		httpCfg = cfg.Config.HTTP
	}
	httpCfg.Sanitize()

	server := &http.Server{
		Addr:              httpCfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       httpCfg.ReadTimeout,
		WriteTimeout:      httpCfg.WriteTimeout,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logger.Info("starting HTTP server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", "error", err)
			select {
			case errCh <- err:
			default:
			}
		}
	}()

	return server, nil
}

// ShutdownConfig contains dependencies for HTTP server shutdown.
type ShutdownConfig struct {
	Server   *http.Server
	Registry *service.Registry
	Timeout  time.Duration
	Logger   *slog.Logger
}

// ShutdownHTTPServer gracefully shuts down the HTTP server and then closes
// every live portal so no background fetch outlives the process.
func ShutdownHTTPServer(ctx context.Context, cfg ShutdownConfig) error {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	var err error
	if cfg.Server != nil {
		logger.InfoContext(ctx, "shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()
		err = cfg.Server.Shutdown(shutdownCtx)
	}
	if cfg.Registry != nil {
		cfg.Registry.Close()
	}
	if err != nil {
		return err
	}
	logger.InfoContext(ctx, "HTTP server stopped")
	return nil
}
