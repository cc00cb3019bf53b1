package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/target/towertrack-portal/config"
	"github.com/target/towertrack-portal/internal/bootstrap"
)

func main() {
	ctx := context.Background()
	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		slog.ErrorContext(ctx, "load config", "error", err)
		os.Exit(1) //nolint:forbidigo // Main entrypoint should exit with non-zero status on fatal errors.
	}
	logger := bootstrap.InitLogger(cfg.Observability.Logging)
	if err := run(ctx, logger, &cfg); err != nil {
		logger.ErrorContext(ctx, "fatal error", "error", err)
		os.Exit(1) //nolint:forbidigo // Main entrypoint should exit with non-zero status on fatal errors.
	}
}

func run(ctx context.Context, logger *slog.Logger, cfg *config.AppConfig) error {
	logStartupInfo(ctx, logger, cfg)
	return bootstrap.Run(ctx, bootstrap.RunConfig{Config: cfg, Logger: logger})
}

func logStartupInfo(ctx context.Context, logger *slog.Logger, cfg *config.AppConfig) {
	logger.InfoContext(ctx, "starting towertrack portal",
		"addr", cfg.HTTP.Addr,
		"auth_mode", cfg.Auth.Mode,
		"backend", cfg.Backend.BaseURL,
		"credential", cfg.Backend.Credential,
		"static_roles", cfg.Roles.UsesStaticRoles(),
		"dev", cfg.IsDev)
}
