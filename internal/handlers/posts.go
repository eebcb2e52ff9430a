package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"postmedia/internal/storage"
	"postmedia/internal/uploads"
)

const multipartMemory = 32 << 20

type PostService interface {
	CreatePostWithImages(ctx context.Context, userID int64, title, content string, files, thumbnails []uploads.FileUpload) (*storage.Post, error)
	AddImages(ctx context.Context, postID int64, files []uploads.FileUpload) ([]storage.PostImage, error)
	GetPost(ctx context.Context, postID int64) (*storage.Post, error)
}

type PostHandler struct {
	Posts           PostService
	Logger          *slog.Logger
	MaxRequestBytes int64
}

func NewPostHandler(posts PostService, maxRequestBytes int64, logger *slog.Logger) *PostHandler {
	return &PostHandler{
		Posts:           posts,
		Logger:          logger,
		MaxRequestBytes: maxRequestBytes,
	}
}

// HandleCreateWithImage serves POST /api/posts/with-image.
// The caller is identified by X-User-ID, which the auth layer in front of this service sets.
func (h *PostHandler) HandleCreateWithImage() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		form, err := h.parseMultipart(w, r)
		if err != nil {
			writeError(w, r, h.Logger, err)
			return
		}
		defer form.RemoveAll()

		userID, _ := strconv.ParseInt(strings.TrimSpace(r.Header.Get("X-User-ID")), 10, 64)

		post, err := h.Posts.CreatePostWithImages(r.Context(),
			userID,
			firstValue(form, "title"),
			firstValue(form, "content"),
			fileUploads(form.File["images"]),
			fileUploads(form.File["thumbnails"]),
		)
		if err != nil {
			writeError(w, r, h.Logger, err)
			return
		}

		h.Logger.Info("post created", "post_id", post.ID, "user_id", userID, "images", len(post.Images))

		w.Header().Set("Location", "/api/posts/"+strconv.FormatInt(post.ID, 10))
		writeJSON(w, http.StatusCreated, post)
	})
}

// HandleAddImages serves POST /api/posts/{id}/images.
func (h *PostHandler) HandleAddImages() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		postID, ok := h.postID(w, r)
		if !ok {
			return
		}

		form, err := h.parseMultipart(w, r)
		if err != nil {
			writeError(w, r, h.Logger, err)
			return
		}
		defer form.RemoveAll()

		images, err := h.Posts.AddImages(r.Context(), postID, fileUploads(form.File["images"]))
		if err != nil {
			writeError(w, r, h.Logger, err)
			return
		}

		writeJSON(w, http.StatusOK, images)
	})
}

func (h *PostHandler) HandleGetPost() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		postID, ok := h.postID(w, r)
		if !ok {
			return
		}

		post, err := h.Posts.GetPost(r.Context(), postID)
		if err != nil {
			writeError(w, r, h.Logger, err)
			return
		}

		writeJSON(w, http.StatusOK, post)
	})
}

func (h *PostHandler) postID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeProblem(w, http.StatusNotFound, "Not found", "The requested resource does not exist.")
		return 0, false
	}
	return id, true
}

func (h *PostHandler) parseMultipart(w http.ResponseWriter, r *http.Request) (*multipart.Form, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.MaxRequestBytes)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			return nil, err
		}
		return nil, &uploads.ValidationError{Field: "body", Message: "must be multipart/form-data"}
	}
	return r.MultipartForm, nil
}

func firstValue(form *multipart.Form, key string) string {
	if v := form.Value[key]; len(v) > 0 {
		return v[0]
	}
	return ""
}

func fileUploads(headers []*multipart.FileHeader) []uploads.FileUpload {
	files := make([]uploads.FileUpload, 0, len(headers))
	for _, fh := range headers {
		files = append(files, uploads.FileUpload{
			FileName:    fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Size:        fh.Size,
			Open: func() (io.ReadCloser, error) {
				return fh.Open()
			},
		})
	}
	return files
}
