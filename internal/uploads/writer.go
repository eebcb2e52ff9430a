package uploads

import (
	"context"
	"fmt"

	"postmedia/internal/media"
	"postmedia/internal/storage"
	"postmedia/internal/telemetry"

	"github.com/gofrs/uuid/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// StoreResult holds the public URLs of one stored image.
type StoreResult struct {
	ImageID     uuid.UUID
	MaxURL      string
	PreviewURL  string
	ThumbURL    string
	OriginalURL *string
}

func (r *StoreResult) PostImage() (storage.PostImage, error) {
	preview, thumb := r.PreviewURL, r.ThumbURL
	return storage.NewPostImage(r.MaxURL, &thumb, &preview)
}

// VariantKey is images/{postID}/{imageID}_{suffix}.{ext}. The same triple always maps to the same key.
func VariantKey(postID int64, imageID uuid.UUID, suffix media.Suffix, extension string) string {
	return fmt.Sprintf("images/%d/%s_%s.%s", postID, imageID, suffix, extension)
}

type Writer struct {
	store   storage.BlobStore
	metrics *telemetry.Metrics
	tracer  trace.Tracer
}

func NewWriter(store storage.BlobStore, metrics *telemetry.Metrics) *Writer {
	return &Writer{
		store:   store,
		metrics: metrics,
		tracer:  otel.Tracer("postmedia/uploads/writer"),
	}
}

// Save writes every variant with the immutable cache hint. Keys written before a failure are
// returned alongside the error so the caller can clean them up.
func (w *Writer) Save(ctx context.Context, postID int64, imageID uuid.UUID, variants *media.Variants) (*StoreResult, []string, error) {
	ctx, span := w.tracer.Start(ctx, "Writer.Save", trace.WithAttributes(
		attribute.Int64("post.id", postID),
		attribute.String("image.id", imageID.String()),
	))
	defer span.End()

	result := &StoreResult{ImageID: imageID}
	var written []string

	for _, nv := range variants.All() {
		if err := ctx.Err(); err != nil {
			return nil, written, err
		}

		key := VariantKey(postID, imageID, nv.Suffix, nv.Variant.Extension)
		url, err := w.store.Put(ctx, key, nv.Variant.Content, nv.Variant.ContentType, storage.CacheControlImmutable)
		if err != nil {
			span.RecordError(err)
			return nil, written, fmt.Errorf("%w: %w", ErrStoreFailure, err)
		}
		written = append(written, key)
		w.metrics.VariantsStoredTotal.Add(ctx, 1)

		switch nv.Suffix {
		case media.SuffixMax:
			result.MaxURL = url
		case media.SuffixPreview:
			result.PreviewURL = url
		case media.SuffixThumb:
			result.ThumbURL = url
		case media.SuffixOriginal:
			result.OriginalURL = &url
		}
	}

	return result, written, nil
}
