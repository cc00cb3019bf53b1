package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/target/towertrack-portal/config"
	"github.com/target/towertrack-portal/internal/observability/metrics"
)

// RunConfig contains what Run needs to start the portal.
type RunConfig struct {
	Config *config.AppConfig
	Logger *slog.Logger
}

// Run connects infrastructure, starts the HTTP server and the idle-portal sweeper,
// and blocks until SIGINT/SIGTERM or a fatal server error.
func Run(ctx context.Context, cfg RunConfig) error {
	if cfg.Config == nil {
		return errors.New("run config missing AppConfig")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	appCfg := cfg.Config

	if err := ValidateConfig(appCfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	redisClient, err := ConnectRedis(ctx, RedisConfig{Redis: appCfg.Redis, Logger: logger})
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer func() {
		if cerr := redisClient.Close(); cerr != nil {
			logger.ErrorContext(ctx, "close redis failed", "error", cerr)
		}
	}()

	provider, err := BuildIdentityProvider(ctx, AuthConfig{Auth: appCfg.Auth, Logger: logger})
	if err != nil {
		return err
	}

	var (
		portalMetrics *metrics.Portal
		gatherer      prometheus.Gatherer
	)
	if appCfg.Observability.Metrics.Enabled {
		promReg := prometheus.NewRegistry()
		promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		portalMetrics, err = metrics.New(metrics.Options{Registerer: promReg, Namespace: appCfg.Observability.Metrics.Namespace})
		if err != nil {
			return fmt.Errorf("register metrics: %w", err)
		}
		gatherer = promReg
	}

	registry, err := BuildRegistry(PortalDeps{
		Config:      appCfg,
		Provider:    provider,
		RedisClient: redisClient,
		Metrics:     portalMetrics,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	server, err := StartHTTPServer(&HTTPServerConfig{
		Config:   appCfg,
		Registry: registry,
		Metrics:  portalMetrics,
		Gatherer: gatherer,
		Logger:   logger,
	}, errCh)
	if err != nil {
		registry.Close()
		return err
	}

	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		registry.Run(sigCtx, appCfg.HTTP.SweepInterval)
	}()

	var runErr error
	select {
	case <-sigCtx.Done():
		logger.Info("shutting down portal...")
	case runErr = <-errCh:
		logger.Error("service error", "error", runErr)
		stop()
	}
	<-sweepDone

	if err := ShutdownHTTPServer(ctx, ShutdownConfig{
		Server:   server,
		Registry: registry,
		Timeout:  appCfg.HTTP.ShutdownTimeout,
		Logger:   logger,
	}); err != nil {
		return errors.Join(runErr, fmt.Errorf("graceful stop: %w", err))
	}
	return runErr
}
