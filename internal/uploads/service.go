package uploads

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"postmedia/internal/config"
	"postmedia/internal/storage"
	"postmedia/internal/telemetry"

	"github.com/gofrs/uuid/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	MaxTitleLength   = 100
	MaxContentLength = 4000

	cleanupTimeout = 30 * time.Second
)

// Service is the upload orchestrator: it runs the configured strategy and attaches the results to posts.
type Service struct {
	posts    storage.PostStore
	blobs    storage.BlobStore
	pipeline *Pipeline
	strategy UploadStrategy
	enabled  bool
	locks    *postLocks
	metrics  *telemetry.Metrics
	logger   *slog.Logger
	tracer   trace.Tracer
}

// NewService picks the strategy once: the image pipeline when enabled, byte copies otherwise.
func NewService(opts config.ImagesOptions, posts storage.PostStore, blobs storage.BlobStore, metrics *telemetry.Metrics, logger *slog.Logger) *Service {
	pipeline := NewPipeline(opts, blobs, metrics, logger)

	var strategy UploadStrategy = pipeline
	if !opts.Enabled {
		strategy = newLegacyStrategy(blobs, logger)
	}

	return &Service{
		posts:    posts,
		blobs:    blobs,
		pipeline: pipeline,
		strategy: strategy,
		enabled:  opts.Enabled,
		locks:    newPostLocks(),
		metrics:  metrics,
		logger:   logger,
		tracer:   otel.Tracer("postmedia/uploads/service"),
	}
}

// ProcessAndStoreUpload runs one upload through the pipeline and returns its variant URLs.
// Nothing is attached to the post.
func (s *Service) ProcessAndStoreUpload(ctx context.Context, postID int64, imageID uuid.UUID, upload FileUpload) (*StoreResult, error) {
	res, written, err := s.pipeline.processAndStore(ctx, postID, imageID, upload)
	if err != nil {
		s.cleanup(ctx, written)
		return nil, err
	}
	return res, nil
}

// CreatePostWithImages creates the post and attaches up to MaxImagesPerPost images.
// Either every kept image is attached or the post is rolled back and no post is visible.
func (s *Service) CreatePostWithImages(ctx context.Context, userID int64, title, content string, files, thumbnails []FileUpload) (*storage.Post, error) {
	ctx, span := s.tracer.Start(ctx, "Service.CreatePostWithImages", trace.WithAttributes(
		attribute.Int64("user.id", userID),
		attribute.Int("images.count", len(files)),
	))
	defer span.End()

	if err := validatePost(userID, title, content); err != nil {
		return nil, err
	}

	files = s.truncate(ctx, 0, files, storage.MaxImagesPerPost)
	if len(thumbnails) > len(files) {
		thumbnails = thumbnails[:len(files)]
	}

	post, err := s.posts.CreatePost(ctx, storage.NewPost(userID, strings.TrimSpace(title), content, nil))
	if err != nil {
		return nil, fmt.Errorf("creating post: %w", err)
	}

	if len(files) == 0 {
		return post, nil
	}

	s.logger.Info("processing uploaded images", "post_id", post.ID, "count", len(files), "pipeline", s.enabled)

	unlock := s.locks.lock(post.ID)
	defer unlock()

	stored, written, err := s.strategy.Store(ctx, post.ID, 0, files, thumbnails)
	if err != nil {
		span.RecordError(err)
		s.rollback(ctx, post.ID, written)
		return nil, err
	}

	images, err := s.attach(ctx, post.ID, stored)
	if err != nil {
		span.RecordError(err)
		s.rollback(ctx, post.ID, written)
		return nil, err
	}

	post.Images = images
	if len(images) > 0 {
		cover := images[0].ImageURL
		post.ImageURL = &cover
	}
	return post, nil
}

// AddImages stores more images for an existing post. Whatever exceeds the remaining quota is dropped without error.
func (s *Service) AddImages(ctx context.Context, postID int64, files []FileUpload) ([]storage.PostImage, error) {
	ctx, span := s.tracer.Start(ctx, "Service.AddImages", trace.WithAttributes(
		attribute.Int64("post.id", postID),
		attribute.Int("images.count", len(files)),
	))
	defer span.End()

	unlock := s.locks.lock(postID)
	defer unlock()

	exists, err := s.posts.PostExists(ctx, postID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("post %d: %w", postID, storage.ErrNotFound)
	}

	count, err := s.posts.GetImageCount(ctx, postID)
	if err != nil {
		return nil, err
	}

	// trimming early saves processing; AppendImages enforces the cap again under its transaction
	files = s.truncate(ctx, postID, files, max(0, storage.MaxImagesPerPost-count))
	if len(files) == 0 {
		return s.currentImages(ctx, postID)
	}

	stored, written, err := s.strategy.Store(ctx, postID, count, files, nil)
	if err != nil {
		span.RecordError(err)
		s.cleanup(ctx, written)
		return nil, err
	}

	all, err := s.attach(ctx, postID, stored)
	if err != nil {
		span.RecordError(err)
		s.cleanup(ctx, written)
		return nil, err
	}
	return all, nil
}

// attach appends stored to the post. Another writer may have filled the post since the count was
// read; the store then keeps only a prefix, and the blobs of the images it left out are removed.
func (s *Service) attach(ctx context.Context, postID int64, stored []StoredImage) ([]storage.PostImage, error) {
	images := make([]storage.PostImage, len(stored))
	for i, st := range stored {
		images[i] = st.Image
	}

	all, err := s.posts.AppendImages(ctx, postID, images)
	if err != nil {
		return nil, err
	}

	attached := make(map[string]struct{}, len(all))
	for _, img := range all {
		attached[img.ImageURL] = struct{}{}
	}

	var orphaned []string
	dropped := 0
	for _, st := range stored {
		if _, ok := attached[st.Image.ImageURL]; ok {
			continue
		}
		dropped++
		orphaned = append(orphaned, st.Keys...)
	}

	if dropped > 0 {
		s.metrics.ImagesDroppedTotal.Add(ctx, int64(dropped))
		s.logger.Info("image quota filled concurrently, extra images removed", "post_id", postID, "dropped", dropped)
		s.cleanup(ctx, orphaned)
	}
	return all, nil
}

func (s *Service) GetPost(ctx context.Context, postID int64) (*storage.Post, error) {
	return s.posts.GetPost(ctx, postID)
}

func (s *Service) currentImages(ctx context.Context, postID int64) ([]storage.PostImage, error) {
	post, err := s.posts.GetPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	return post.Images, nil
}

func (s *Service) truncate(ctx context.Context, postID int64, files []FileUpload, limit int) []FileUpload {
	if len(files) <= limit {
		return files
	}

	dropped := len(files) - limit
	s.metrics.ImagesDroppedTotal.Add(ctx, int64(dropped))
	s.logger.Info("image quota reached, extra images ignored", "post_id", postID, "dropped", dropped)
	return files[:limit]
}

// rollback hides a half-created post and removes whatever blobs were already written.
func (s *Service) rollback(ctx context.Context, postID int64, written []string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	if err := s.posts.DeletePost(ctx, postID); err != nil && !errors.Is(err, storage.ErrNotFound) {
		s.logger.Error("failed to roll back post", "post_id", postID, "err", err)
	}
	s.cleanup(ctx, written)
}

// cleanup is best effort; failures are only logged.
func (s *Service) cleanup(ctx context.Context, keys []string) {
	if len(keys) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	for _, key := range keys {
		if err := s.blobs.Delete(ctx, key); err != nil {
			s.logger.Warn("failed to remove orphaned blob", "key", key, "err", err)
		}
	}
}

func validatePost(userID int64, title, content string) error {
	switch {
	case userID <= 0:
		return &ValidationError{Field: "userId", Message: "is required"}
	case strings.TrimSpace(title) == "":
		return &ValidationError{Field: "title", Message: "is required"}
	case utf8.RuneCountInString(title) > MaxTitleLength:
		return &ValidationError{Field: "title", Message: fmt.Sprintf("must be at most %d characters", MaxTitleLength)}
	case strings.TrimSpace(content) == "":
		return &ValidationError{Field: "content", Message: "is required"}
	case utf8.RuneCountInString(content) > MaxContentLength:
		return &ValidationError{Field: "content", Message: fmt.Sprintf("must be at most %d characters", MaxContentLength)}
	}
	return nil
}
