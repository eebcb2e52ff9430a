package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"postmedia/internal/media"
	"postmedia/internal/middleware"
	"postmedia/internal/storage"
	"postmedia/internal/uploads"
)

// Problem is an RFC 9457 problem body.
type Problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// publicError is implemented by errors whose message is safe to show to clients
type publicError interface {
	PublicMessage() string
}

func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(Problem{
		Type:   "about:blank",
		Title:  title,
		Status: status,
		Detail: detail,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// classify maps an error to a status code and a short title.
func classify(err error) (int, string) {
	var maxBytes *http.MaxBytesError

	switch {
	case errors.Is(err, uploads.ErrValidation), errors.Is(err, storage.ErrCheckViolation):
		return http.StatusBadRequest, "Invalid request"
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound, "Not found"
	case errors.Is(err, media.ErrPayloadTooLarge), errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge, "Image too large"
	case errors.Is(err, media.ErrUnsupportedContentType):
		return http.StatusUnsupportedMediaType, "Unsupported media type"
	case errors.Is(err, media.ErrDecodeFailure):
		return http.StatusUnprocessableEntity, "Unreadable image"
	case errors.Is(err, uploads.ErrStoreFailure):
		return http.StatusBadGateway, "Storage unavailable"
	default:
		return http.StatusInternalServerError, "Internal Server Error"
	}
}

// writeError logs err and answers with a problem body. Server-side details never reach the client.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status, title := classify(err)
	logger = middleware.LoggerFromContext(r.Context(), logger)

	detail := ""
	var pe publicError
	var maxBytes *http.MaxBytesError
	switch {
	case errors.As(err, &pe):
		detail = pe.PublicMessage()
	case errors.As(err, &maxBytes):
		detail = fmt.Sprintf("Request body exceeds %d bytes.", maxBytes.Limit)
	case status == http.StatusNotFound:
		detail = "The requested resource does not exist."
	}

	switch {
	case errors.Is(err, context.Canceled):
		logger.Info("request cancelled", "path", r.URL.Path)
	case status >= 500:
		logger.Error("request failed", "status", status, "path", r.URL.Path, "err", err)
	default:
		logger.Warn("request rejected", "status", status, "path", r.URL.Path, "err", err)
	}

	writeProblem(w, status, title, detail)
}
