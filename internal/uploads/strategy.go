package uploads

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"sync"
	"time"

	"postmedia/internal/config"
	"postmedia/internal/media"
	"postmedia/internal/storage"
	"postmedia/internal/telemetry"

	"github.com/gofrs/uuid/v5"
	"golang.org/x/sync/errgroup"
)

// UploadStrategy stores a batch of files for one post and returns the images to attach,
// in submission order. ordinal is the position the first file takes among the post's images.
// Keys written are returned even on failure.
type UploadStrategy interface {
	Store(ctx context.Context, postID int64, ordinal int, files, thumbnails []FileUpload) ([]StoredImage, []string, error)
}

// StoredImage is an image row to attach together with the keys backing it.
type StoredImage struct {
	Image storage.PostImage
	Keys  []string
}

// Pipeline gates, decodes, resizes and re-encodes every upload before storing it.
type Pipeline struct {
	gate      media.Gate
	processor *media.Processor
	writer    *Writer
	workers   int
	metrics   *telemetry.Metrics
	logger    *slog.Logger
}

var _ UploadStrategy = (*Pipeline)(nil)

func NewPipeline(opts config.ImagesOptions, store storage.BlobStore, metrics *telemetry.Metrics, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		gate:      media.NewPipelineGate(opts.MaxUploadBytes),
		processor: media.NewProcessor(opts, logger),
		writer:    NewWriter(store, metrics),
		workers:   max(1, opts.Workers),
		metrics:   metrics,
		logger:    logger,
	}
}

// Store rejects the whole batch before any write when one file fails the gate,
// then processes files with bounded parallelism.
func (p *Pipeline) Store(ctx context.Context, postID int64, _ int, files, _ []FileUpload) ([]StoredImage, []string, error) {
	for _, f := range files {
		if err := p.gate.Check(f.FileName, f.ContentType, f.Size); err != nil {
			p.reject(ctx, f, err)
			return nil, nil, err
		}
	}

	results := make([]StoredImage, len(files))
	var (
		mu      sync.Mutex
		written []string
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)

	for i, f := range files {
		g.Go(func() error {
			imageID, err := uuid.NewV7()
			if err != nil {
				return fmt.Errorf("generating image id: %w", err)
			}

			res, keys, err := p.processAndStore(gctx, postID, imageID, f)

			mu.Lock()
			written = append(written, keys...)
			mu.Unlock()

			if err != nil {
				return err
			}
			img, err := res.PostImage()
			if err != nil {
				return err
			}
			results[i] = StoredImage{Image: img, Keys: keys}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, written, err
	}
	return results, written, nil
}

func (p *Pipeline) processAndStore(ctx context.Context, postID int64, imageID uuid.UUID, f FileUpload) (*StoreResult, []string, error) {
	if err := p.gate.Check(f.FileName, f.ContentType, f.Size); err != nil {
		p.reject(ctx, f, err)
		return nil, nil, err
	}

	rc, err := f.Open()
	if err != nil {
		return nil, nil, fmt.Errorf("opening %q: %w", f.FileName, err)
	}
	defer rc.Close()

	start := time.Now()

	variants, err := p.processor.Process(ctx, rc, f.FileName, f.ContentType)
	if err != nil {
		p.reject(ctx, f, err)
		return nil, nil, err
	}
	elapsed := time.Since(start)
	p.metrics.RecordProcessed(ctx, variants.Max.Extension, elapsed)

	res, keys, err := p.writer.Save(ctx, postID, imageID, variants)
	if err != nil {
		p.reject(ctx, f, err)
		return nil, keys, err
	}

	p.logger.Info("image stored",
		"post_id", postID,
		"image_id", imageID.String(),
		"width", variants.Max.Width,
		"height", variants.Max.Height,
		"format", variants.Max.Extension,
		"elapsed", elapsed,
	)

	return res, keys, nil
}

func (p *Pipeline) reject(ctx context.Context, f FileUpload, err error) {
	reason := rejectReason(err)
	if reason == "" {
		return
	}
	p.metrics.RecordRejected(ctx, reason)

	if reason == "decode_failed" {
		p.logger.Warn("image decode failed", "file", f.FileName, "content_type", f.ContentType, "err", err)
		return
	}
	p.logger.Info("upload rejected", "file", f.FileName, "reason", reason, "err", err)
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, media.ErrPayloadTooLarge):
		return "too_large"
	case errors.Is(err, media.ErrUnsupportedContentType):
		return "unsupported_type"
	case errors.Is(err, media.ErrDecodeFailure):
		return "decode_failed"
	case errors.Is(err, ErrStoreFailure):
		return "store_failed"
	default:
		return ""
	}
}

// legacyStrategy copies uploads byte for byte when the pipeline is switched off.
type legacyStrategy struct {
	store  storage.BlobStore
	gate   media.Gate
	logger *slog.Logger
}

var _ UploadStrategy = (*legacyStrategy)(nil)

func newLegacyStrategy(store storage.BlobStore, logger *slog.Logger) *legacyStrategy {
	return &legacyStrategy{store: store, gate: media.NewLegacyGate(), logger: logger}
}

// LegacyKey is {postID}_{index}_{fileName}.
func LegacyKey(postID int64, index int, fileName string) string {
	return fmt.Sprintf("%d_%d_%s", postID, index, baseName(fileName))
}

// LegacyThumbKey is {postID}_{index}_thumb_{fileName}.
func LegacyThumbKey(postID int64, index int, fileName string) string {
	return fmt.Sprintf("%d_%d_thumb_%s", postID, index, baseName(fileName))
}

func (l *legacyStrategy) Store(ctx context.Context, postID int64, ordinal int, files, thumbnails []FileUpload) ([]StoredImage, []string, error) {
	for _, f := range files {
		if err := l.gate.Check(f.FileName, f.ContentType, f.Size); err != nil {
			return nil, nil, err
		}
	}
	for _, t := range thumbnails {
		if err := l.gate.Check(t.FileName, t.ContentType, t.Size); err != nil {
			return nil, nil, err
		}
	}

	images := make([]StoredImage, 0, len(files))
	var written []string

	// keys continue after the images the post already holds, so an earlier upload is never overwritten
	for i, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, written, err
		}

		key := LegacyKey(postID, ordinal+i, f.FileName)
		url, err := l.copy(ctx, key, f)
		if err != nil {
			return nil, written, err
		}
		written = append(written, key)
		keys := []string{key}

		var thumbURL *string
		if i < len(thumbnails) && thumbnails[i].Size > 0 {
			thumbKey := LegacyThumbKey(postID, ordinal+i, thumbnails[i].FileName)
			u, err := l.copy(ctx, thumbKey, thumbnails[i])
			if err != nil {
				return nil, written, err
			}
			written = append(written, thumbKey)
			keys = append(keys, thumbKey)
			thumbURL = &u
		}

		img, err := storage.NewPostImage(url, thumbURL, nil)
		if err != nil {
			return nil, written, err
		}
		images = append(images, StoredImage{Image: img, Keys: keys})
	}

	l.logger.Info("legacy upload stored", "post_id", postID, "count", len(images))
	return images, written, nil
}

func (l *legacyStrategy) copy(ctx context.Context, key string, f FileUpload) (string, error) {
	rc, err := f.Open()
	if err != nil {
		return "", fmt.Errorf("opening %q: %w", f.FileName, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, l.gate.MaxBytes+1))
	if err != nil {
		return "", fmt.Errorf("reading %q: %w", f.FileName, err)
	}
	if int64(len(data)) > l.gate.MaxBytes {
		return "", &media.ImageTooLargeError{FileName: f.FileName, Length: int64(len(data)), MaxBytes: l.gate.MaxBytes}
	}

	contentType := f.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	url, err := l.store.Put(ctx, key, data, contentType, "")
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrStoreFailure, err)
	}
	return url, nil
}

// baseName drops any client-supplied directory part so the key stays flat.
func baseName(fileName string) string {
	name := path.Base(strings.ReplaceAll(fileName, `\`, "/"))
	switch name {
	case ".", "/", "..", "":
		return "upload"
	}
	return name
}
