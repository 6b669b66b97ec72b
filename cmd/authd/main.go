// Authd - real-time card transaction authorization service
package main

import (
	"context"
	"os"

	"github.com/cardcore/authd/internal/config"
	"github.com/cardcore/authd/internal/logging"
	"github.com/cardcore/authd/internal/server"
	"github.com/cardcore/authd/internal/traces"
)

// Build info - set by ldflags
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logging.New("info", "text").Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	logger.Info("starting authd",
		"version", Version,
		"commit", Commit,
		"build_time", BuildTime,
	)

	logger.Info("configuration loaded",
		"env", cfg.Env,
		"velocity_window", cfg.VelocityWindow,
		"daily_amount_cap", cfg.DailyAmountCap.String(),
		"fraud_threshold", cfg.FraudThreshold.String(),
	)

	ctx := context.Background()

	// Tracing is a no-op unless an OTLP endpoint is configured.
	shutdownTraces, err := traces.Init(ctx, cfg.OTLPEndpoint, logger)
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTraces(context.Background()) }()

	// Create and run server
	srv, err := server.New(cfg, server.WithLogger(logger))
	if err != nil {
		logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	if err := srv.Run(ctx); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
