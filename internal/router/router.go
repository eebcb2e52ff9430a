package router

import (
	"log/slog"
	"net/http"

	"postmedia/internal/config"
	"postmedia/internal/handlers"
	"postmedia/internal/middleware"
	"postmedia/internal/telemetry"

	"go.opentelemetry.io/otel/trace"
)

// RouterDependencies holds everything needed to register routes.
type RouterDependencies struct {
	Cfg               *config.Config
	Logger            *slog.Logger
	PostHandler       *handlers.PostHandler
	BlobHandler       *handlers.BlobHandler // nil when the blob backend serves its own public URLs
	Limiter           *middleware.IPRateLimiter
	Tracer            trace.Tracer
	Metrics           *telemetry.Metrics
	PrometheusHandler http.Handler
}

func NewRouter(deps RouterDependencies) http.Handler {
	// routing
	appMux := http.NewServeMux()

	// api
	appMux.Handle("POST /api/posts/with-image", deps.PostHandler.HandleCreateWithImage())
	appMux.Handle("POST /api/posts/{id}/images", deps.PostHandler.HandleAddImages())
	appMux.Handle("GET /api/posts/{id}", deps.PostHandler.HandleGetPost())

	// stored variants
	if deps.BlobHandler != nil {
		appMux.Handle("GET "+deps.Cfg.Storage.PublicPrefix+"/{key...}", deps.BlobHandler)
	}

	middlewareStack := []middleware.Middleware{
		middleware.Recover(deps.Logger),
	}

	if deps.Cfg.Metrics.EnableTelemetry {
		// order matters so don't append
		middlewareStack = append(middlewareStack, middleware.Observability(deps.Tracer, deps.Metrics, deps.Logger))
	}

	middlewareStack = append(middlewareStack, deps.Limiter.Middleware(deps.Logger))

	if !deps.Cfg.Metrics.EnableTelemetry {
		middlewareStack = append(middlewareStack, middleware.Logger(deps.Logger))
	}

	appHandler := middleware.Chain(appMux, middlewareStack...)

	rootMux := http.NewServeMux()

	if deps.PrometheusHandler != nil {
		rootMux.Handle("GET /metrics", deps.PrometheusHandler)
	}
	rootMux.Handle("GET /debug/stats", handlers.HandleStats())

	// lightweight for docker keepalive
	rootMux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	rootMux.Handle("/", appHandler)

	return rootMux
}
