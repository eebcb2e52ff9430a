package storage

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"postmedia/internal/config"
)

// CacheControlImmutable is sent with every processed variant: keys embed a fresh image id, so content never changes under a key.
const CacheControlImmutable = "public, max-age=31536000, immutable"

// BlobStore persists encoded bytes under a storage key and reports the public URL they are served from.
// Put overwrites an existing key.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte, contentType, cacheControl string) (string, error)
	Get(ctx context.Context, key string) (*Blob, error)
	Delete(ctx context.Context, key string) error
}

type Blob struct {
	Data         []byte
	ContentType  string
	CacheControl string
}

// NewBlobStore builds the backend selected by cfg.Backend.
func NewBlobStore(ctx context.Context, cfg config.StorageConfig) (BlobStore, error) {
	switch cfg.Backend {
	case config.BackendLocal:
		return NewLocalStore(cfg.LocalPath, cfg.PublicPrefix)
	case config.BackendS3:
		return NewS3Store(ctx, cfg.S3)
	case config.BackendMinio:
		return NewMinioStore(ctx, cfg.Minio)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

func validateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("%w: key cannot be empty", ErrInvalidKey)
	}
	if strings.Contains(key, `\`) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	for segment := range strings.SplitSeq(key, "/") {
		if segment == "" || segment == "." || segment == ".." {
			return fmt.Errorf("%w: %q", ErrInvalidKey, key)
		}
	}
	return nil
}

// publicURL joins base and key, escaping each key segment.
func publicURL(base, key string) string {
	segments := strings.Split(key, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.TrimRight(base, "/") + "/" + strings.Join(segments, "/")
}
