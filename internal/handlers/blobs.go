package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"postmedia/internal/storage"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// BlobHandler serves stored variants under /uploads/ for backends that have no public endpoint of their own.
type BlobHandler struct {
	Store  storage.BlobStore
	Tracer trace.Tracer
	Logger *slog.Logger
}

func (h *BlobHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.Tracer.Start(r.Context(), "BlobHandler.ServeHTTP")
	defer span.End()

	key := r.PathValue("key")
	span.SetAttributes(attribute.String("blob.key", key))

	blob, err := h.Store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrInvalidKey) {
			http.NotFound(w, r)
			return
		}
		span.RecordError(err)
		h.Logger.Error("failed to read blob", "key", key, "err", err)
		http.Error(w, "storage unavailable", http.StatusBadGateway)
		return
	}

	contentType := blob.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	cacheControl := blob.CacheControl
	if cacheControl == "" {
		cacheControl = storage.CacheControlImmutable
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", cacheControl)
	w.Header().Set("Content-Length", strconv.Itoa(len(blob.Data)))
	w.Header().Set("X-Content-Type-Options", "nosniff")

	if r.Method == http.MethodHead {
		return
	}
	if _, err := w.Write(blob.Data); err != nil {
		h.Logger.Warn("stream interrupted", "key", key, "err", err)
	}
}
