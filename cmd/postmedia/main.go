package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"postmedia/internal/config"
	"postmedia/internal/handlers"
	"postmedia/internal/middleware"
	"postmedia/internal/router"
	"postmedia/internal/storage"
	"postmedia/internal/storage/sqlite"
	"postmedia/internal/telemetry"
	"postmedia/internal/uploads"
)

type App struct {
	Server    *http.Server
	Logger    *slog.Logger
	Config    *config.Config
	Posts     storage.PostStore
	Blobs     storage.BlobStore
	Telemetry *telemetry.Telemetry
}

func NewApp(cfg *config.Config, logger *slog.Logger, posts storage.PostStore, blobs storage.BlobStore, tel *telemetry.Telemetry, handler http.Handler) *App {
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.Timeouts.Read,
		WriteTimeout: cfg.HTTP.Timeouts.Write,
		IdleTimeout:  cfg.HTTP.Timeouts.Idle,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}

	return &App{
		Server:    server,
		Logger:    logger,
		Config:    cfg,
		Posts:     posts,
		Blobs:     blobs,
		Telemetry: tel,
	}
}

func (a *App) Run(ctx context.Context) error {
	srvErrChan := make(chan error, 1)

	go func() {
		a.Logger.Info("server starting", "addr", a.Server.Addr)
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvErrChan <- err
		}
	}()

	select {
	case err := <-srvErrChan:
		return fmt.Errorf("server startup failed: %w", err)
	case <-ctx.Done():
		a.Logger.Info("shutdown signal received")
	}

	// attempt clean shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.HTTP.Timeouts.Shutdown)
	defer cancel()

	a.Logger.Info("draining connections...")
	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		// graceful shutdown timed out
		if closeErr := a.Server.Close(); closeErr != nil {
			// both failed. Return combined error.
			return fmt.Errorf("graceful shutdown failed: %w", errors.Join(err, closeErr))
		}
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	a.Logger.Info("server stopped")

	a.close(shutdownCtx)
	return nil
}

// close releases the stores once no request can reach them anymore
func (a *App) close(ctx context.Context) {
	if err := a.Posts.Close(); err != nil {
		a.Logger.Error("failed to close post store", "err", err)
	}
	if c, ok := a.Blobs.(io.Closer); ok {
		if err := c.Close(); err != nil {
			a.Logger.Error("failed to close blob store", "err", err)
		}
	}
	a.Telemetry.Shutdown(ctx)
}

func main() {
	cfg := config.LoadWithDefaults()
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("invalid configuration: %v", err))
	}

	stderr := os.Stderr
	logHandler := slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: cfg.Logger.Level})
	logger := slog.New(logHandler).With("app", cfg.App.Name)

	// Add PID
	logger.Info("application starting", "pid", os.Getpid())
	logger.Info("configuration loaded",
		"name", cfg.App.Name,
		"env", cfg.App.Environment,
		"port", cfg.HTTP.Port,
		"db", cfg.DB.Path,
		"storage", cfg.Storage.Backend,
		"images_enabled", cfg.Images.Enabled,
		"preferred_format", cfg.Images.PreferredFormat,
		"keep_original", cfg.Images.KeepOriginal,
		"rate_limit_rps", cfg.Limiter.RPS,
		"trusted_proxy", cfg.Proxy.Trusted,
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tel, err := telemetry.Init(rootCtx, cfg.App.Name, cfg.App.Version, cfg.App.Environment, cfg.Metrics.OtelEndpoint, cfg.Metrics.EnableTelemetry, logger)
	if err != nil {
		logger.Error("could not initialise telemetry", "err", err)
		os.Exit(1)
	}

	metrics, err := telemetry.NewMetrics(tel.Meter)
	if err != nil {
		logger.Error("could not create metrics", "err", err)
		os.Exit(1)
	}

	posts, err := sqlite.NewStore(cfg.DB.Path)
	if err != nil {
		logger.Error("could not open database", "path", cfg.DB.Path, "err", err)
		os.Exit(1)
	}
	if err := posts.Migrate(); err != nil {
		logger.Error("could not migrate database", "err", err)
		os.Exit(1)
	}

	blobs, err := storage.NewBlobStore(rootCtx, cfg.Storage)
	if err != nil {
		logger.Error("could not create blob store", "backend", cfg.Storage.Backend, "err", err)
		os.Exit(1)
	}

	service := uploads.NewService(cfg.Images, posts, blobs, metrics, logger)
	limiter := middleware.NewIPRateLimiter(rootCtx, cfg.Limiter.RPS, cfg.Limiter.Burst, cfg.Proxy.Trusted, metrics)

	var blobHandler *handlers.BlobHandler
	if cfg.Storage.Backend == config.BackendLocal {
		blobHandler = &handlers.BlobHandler{Store: blobs, Tracer: tel.Tracer, Logger: logger}
	}

	router := router.NewRouter(router.RouterDependencies{
		Cfg:               cfg,
		Logger:            logger,
		PostHandler:       handlers.NewPostHandler(service, cfg.HTTP.MaxRequestBytes, logger),
		BlobHandler:       blobHandler,
		Limiter:           limiter,
		Tracer:            tel.Tracer,
		Metrics:           metrics,
		PrometheusHandler: tel.PrometheusHandler,
	})

	app := NewApp(cfg, logger, posts, blobs, tel, router)

	// run the app with context
	if err := app.Run(rootCtx); err != nil {
		logger.Error("server crashed", "err", err)
		os.Exit(1)
	}

	logger.Info("application exited successfully")
	os.Exit(0)
}
