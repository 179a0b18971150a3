package server

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/waflens/waflens/internal/config"
	"github.com/waflens/waflens/internal/handler"
	"github.com/waflens/waflens/internal/ingest"
	"github.com/waflens/waflens/internal/repository"
	"github.com/waflens/waflens/internal/storage"
)

// Server holds the Echo app and dependencies.
type Server struct {
	Echo   *echo.Echo
	Config *config.Config
}

// New builds the Echo server and registers routes.
// Caller must provide a non-nil pool; blob may be nil when no blob
// store is configured (raw retention and reindex are then unavailable).
func New(cfg *config.Config, pool *pgxpool.Pool, blob *storage.BlobStore, logger zerolog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.JSONSerializer = goJSONSerializer{}
	e.Use(middleware.Recover(), middleware.Logger())
	if len(cfg.Server.CORSAllowedOrigins) > 0 {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: cfg.Server.CORSAllowedOrigins,
		}))
	}
	e.Server.ReadTimeout = time.Duration(cfg.Server.ReadTimeout) * time.Second
	e.Server.WriteTimeout = time.Duration(cfg.Server.WriteTimeout) * time.Second
	e.Server.IdleTimeout = time.Duration(cfg.Server.IdleTimeout) * time.Second

	uploadRepo := repository.NewUploadRepository(pool)
	eventRepo := repository.NewEventRepository(pool)
	rollupRepo := repository.NewRollupRepository(pool)

	var raw ingest.RawStore
	retain := false
	if blob != nil && cfg.Storage != nil {
		raw = blob
		retain = cfg.Storage.RetainRaw
	}
	pipeline := ingest.New(
		uploadRepo,
		eventRepo,
		rollupRepo,
		raw,
		cfg.Ingest.BatchSize,
		cfg.Ingest.MaxErrors,
		retain,
		logger,
	)

	uploads := &handler.UploadHandler{
		Pipeline:     pipeline,
		UploadRepo:   uploadRepo,
		MaxFileBytes: cfg.Ingest.MaxFileBytes,
	}
	stats := &handler.StatsHandler{
		RollupRepo: rollupRepo,
		EventRepo:  eventRepo,
		UploadRepo: uploadRepo,
	}

	api := e.Group("/api")
	api.POST("/uploads", uploads.Upload)
	api.GET("/uploads", uploads.List)
	api.POST("/reindex", uploads.Reindex)
	api.GET("/stats/summary", stats.Summary)
	api.GET("/stats/daily", stats.Daily)
	api.GET("/stats/rules", stats.Rules)
	api.GET("/stats/sources", stats.Sources)
	api.GET("/stats/paths", stats.Paths)
	api.POST("/stats/rebuild", stats.Rebuild)

	e.GET("/healthz", func(c echo.Context) error {
		if err := pool.Ping(c.Request().Context()); err != nil {
			return c.JSON(503, map[string]string{"status": "degraded", "error": err.Error()})
		}
		return c.JSON(200, map[string]string{"status": "ok"})
	})

	return &Server{Echo: e, Config: cfg}
}

// Start starts the HTTP server. Blocks until the context is cancelled
// or the server fails. On context cancel, Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = s.Shutdown(shutdownCtx)
	}()
	addr := ":" + s.Config.Server.Port
	return s.Echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.Echo.Shutdown(ctx)
}
