package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/rs/zerolog"

	"github.com/waflens/waflens/internal/config"
	"github.com/waflens/waflens/internal/database"
	"github.com/waflens/waflens/internal/server"
	"github.com/waflens/waflens/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		// LoadConfig logs fatally on its own; this is belt and braces.
		os.Exit(1)
	}

	logger := newLogger(cfg)

	var nrApp *newrelic.Application
	if cfg.APM != nil {
		nrApp, err = newrelic.NewApplication(
			newrelic.ConfigAppName(cfg.APM.AppName),
			newrelic.ConfigLicense(cfg.APM.LicenseKey),
		)
		if err != nil {
			logger.Fatal().Err(err).Msg("new relic init")
		}
		defer nrApp.Shutdown(10 * time.Second)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := database.RunMigrations(ctx, cfg.Database.URL()); err != nil {
		logger.Fatal().Err(err).Msg("migrations")
	}
	pool, err := database.NewPool(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("database pool")
	}
	defer pool.Close()

	blob, err := storage.NewBlobStore(cfg.Storage)
	if err != nil {
		logger.Fatal().Err(err).Msg("blob store")
	}
	if blob != nil {
		if err := blob.EnsureBucket(ctx); err != nil {
			logger.Warn().Err(err).Msg("ensure bucket failed; raw retention may fail")
		}
	} else if cfg.Storage != nil && cfg.Storage.RetainRaw {
		logger.Warn().Msg("raw retention requested but blob store not configured")
	}

	srv := server.New(cfg, pool, blob, logger)
	logger.Info().Str("port", cfg.Server.Port).Msg("starting server")
	if err := srv.Start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("server exited")
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	if cfg.Primary.Env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stderr).With().Timestamp().Str("service", "waflens").Logger()
}
