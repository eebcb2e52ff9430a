package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"postmedia/internal/config"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type MinioStore struct {
	client  *minio.Client
	bucket  string
	baseURL string
	tracer  trace.Tracer
}

var _ BlobStore = (*MinioStore)(nil)

// NewMinioStore connects and creates the bucket when it does not exist yet.
func NewMinioStore(ctx context.Context, cfg config.MinioConfig) (*MinioStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("creating minio client: %w", err)
	}

	baseURL := cfg.PublicBaseURL
	if baseURL == "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		baseURL = fmt.Sprintf("%s://%s/%s", scheme, strings.TrimRight(cfg.Endpoint, "/"), cfg.Bucket)
	}

	m := &MinioStore{
		client:  client,
		bucket:  cfg.Bucket,
		baseURL: baseURL,
		tracer:  otel.Tracer("postmedia/storage/minio"),
	}

	if err := m.ensureBucket(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *MinioStore) ensureBucket(ctx context.Context) error {
	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return fmt.Errorf("checking bucket %s: %w", m.bucket, err)
	}
	if exists {
		return nil
	}

	if err := m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{}); err != nil {
		// another instance may have won the race
		if minio.ToErrorResponse(err).Code == "BucketAlreadyOwnedByYou" {
			return nil
		}
		return fmt.Errorf("creating bucket %s: %w", m.bucket, err)
	}
	return nil
}

func (m *MinioStore) Put(ctx context.Context, key string, data []byte, contentType, cacheControl string) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}

	ctx, span := m.tracer.Start(ctx, "Minio.Put", trace.WithAttributes(
		attribute.String("minio.key", key),
		attribute.Int("minio.size", len(data)),
	))
	defer span.End()

	_, err := m.client.PutObject(ctx, m.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType:  contentType,
		CacheControl: cacheControl,
	})
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("put %s: %w", key, err)
	}

	return publicURL(m.baseURL, key), nil
}

func (m *MinioStore) Get(ctx context.Context, key string) (*Blob, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}

	ctx, span := m.tracer.Start(ctx, "Minio.Get", trace.WithAttributes(attribute.String("minio.key", key)))
	defer span.End()

	// GetObject is lazy; errors surface on Stat or Read
	obj, err := m.client.GetObject(ctx, m.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, m.mapErr(span, key, err)
	}
	defer obj.Close()

	info, err := obj.Stat()
	if err != nil {
		return nil, m.mapErr(span, key, err)
	}

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, m.mapErr(span, key, err)
	}

	return &Blob{
		Data:         data,
		ContentType:  info.ContentType,
		CacheControl: info.Metadata.Get("Cache-Control"),
	}, nil
}

func (m *MinioStore) Delete(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}

	ctx, span := m.tracer.Start(ctx, "Minio.Delete", trace.WithAttributes(attribute.String("minio.key", key)))
	defer span.End()

	if err := m.client.RemoveObject(ctx, m.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		span.RecordError(err)
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (m *MinioStore) mapErr(span trace.Span, key string, err error) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return ErrNotFound
	}
	span.RecordError(err)
	return fmt.Errorf("get %s: %w", key, err)
}
