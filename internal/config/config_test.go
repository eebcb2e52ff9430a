package config

import (
	"strings"
	"testing"
)

func TestDefaultConfigIsValid(t *testing.T) {
	t.Parallel()
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config should validate, got %v", err)
	}
}

func TestImagesOptionsValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		mutate  func(o *ImagesOptions)
		wantErr string
	}{
		{
			name:   "nominal",
			mutate: func(o *ImagesOptions) {},
		},
		{
			name:    "quality below range",
			mutate:  func(o *ImagesOptions) { o.Quality = 9 },
			wantErr: "IMAGES_QUALITY",
		},
		{
			name:    "quality above range",
			mutate:  func(o *ImagesOptions) { o.Quality = 101 },
			wantErr: "IMAGES_QUALITY",
		},
		{
			name:   "quality lower bound",
			mutate: func(o *ImagesOptions) { o.Quality = 10 },
		},
		{
			name:    "unknown format",
			mutate:  func(o *ImagesOptions) { o.PreferredFormat = "heic" },
			wantErr: "IMAGES_PREFERRED_FORMAT",
		},
		{
			name:   "jpg alias accepted",
			mutate: func(o *ImagesOptions) { o.PreferredFormat = "JPG" },
		},
		{
			name:    "zero max width",
			mutate:  func(o *ImagesOptions) { o.Max.Width = 0 },
			wantErr: "IMAGES_MAX_WIDTH",
		},
		{
			name:    "preview height too large",
			mutate:  func(o *ImagesOptions) { o.Preview.Height = 8001 },
			wantErr: "IMAGES_PREVIEW_HEIGHT",
		},
		{
			name:   "thumb at upper bound",
			mutate: func(o *ImagesOptions) { o.Thumb = ImageSize{Width: 8000, Height: 8000} },
		},
		{
			name:    "no upload ceiling",
			mutate:  func(o *ImagesOptions) { o.MaxUploadBytes = 0 },
			wantErr: "IMAGES_MAX_UPLOAD_BYTES",
		},
		{
			name:    "no workers",
			mutate:  func(o *ImagesOptions) { o.Workers = 0 },
			wantErr: "IMAGES_WORKERS",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			opts := DefaultConfig().Images
			tt.mutate(&opts)

			err := opts.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error mentioning %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestStorageConfigValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		cfg     StorageConfig
		wantErr bool
	}{
		{
			name: "local",
			cfg:  StorageConfig{Backend: BackendLocal, LocalPath: "./uploads", PublicPrefix: "/uploads"},
		},
		{
			name:    "local relative prefix",
			cfg:     StorageConfig{Backend: BackendLocal, LocalPath: "./uploads", PublicPrefix: "uploads"},
			wantErr: true,
		},
		{
			name: "s3 with ambient credentials",
			cfg:  StorageConfig{Backend: BackendS3, S3: S3Config{Bucket: "b", Region: "eu-west-1"}},
		},
		{
			name:    "s3 half credentials",
			cfg:     StorageConfig{Backend: BackendS3, S3: S3Config{Bucket: "b", Region: "eu-west-1", AccessKey: "a"}},
			wantErr: true,
		},
		{
			name:    "s3 without bucket",
			cfg:     StorageConfig{Backend: BackendS3, S3: S3Config{Region: "eu-west-1"}},
			wantErr: true,
		},
		{
			name: "minio",
			cfg:  StorageConfig{Backend: BackendMinio, Minio: MinioConfig{Endpoint: "minio:9000", Bucket: "b", AccessKey: "a", SecretKey: "s"}},
		},
		{
			name:    "minio without keys",
			cfg:     StorageConfig{Backend: BackendMinio, Minio: MinioConfig{Endpoint: "minio:9000", Bucket: "b"}},
			wantErr: true,
		},
		{
			name:    "unknown backend",
			cfg:     StorageConfig{Backend: "azure"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("got err %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadWithDefaultsReadsImageEnv(t *testing.T) {
	t.Setenv("IMAGES_ENABLED", "false")
	t.Setenv("IMAGES_KEEP_ORIGINAL", "true")
	t.Setenv("IMAGES_QUALITY", "65")
	t.Setenv("IMAGES_PREFERRED_FORMAT", "png")
	t.Setenv("IMAGES_THUMB_WIDTH", "200")
	t.Setenv("STORAGE_BACKEND", "S3")
	t.Setenv("S3_BUCKET", "media")

	cfg := LoadWithDefaults()

	if cfg.Images.Enabled {
		t.Error("expected pipeline disabled")
	}
	if !cfg.Images.KeepOriginal {
		t.Error("expected keep original")
	}
	if cfg.Images.Quality != 65 {
		t.Errorf("quality: got %d, want 65", cfg.Images.Quality)
	}
	if cfg.Images.PreferredFormat != "png" {
		t.Errorf("format: got %q, want png", cfg.Images.PreferredFormat)
	}
	if cfg.Images.Thumb.Width != 200 || cfg.Images.Thumb.Height != 320 {
		t.Errorf("thumb: got %+v", cfg.Images.Thumb)
	}
	if cfg.Storage.Backend != BackendS3 || cfg.Storage.S3.Bucket != "media" {
		t.Errorf("storage: got %+v", cfg.Storage)
	}
}

func TestLoadWithDefaultsMalformedNumberFailsValidation(t *testing.T) {
	t.Setenv("IMAGES_QUALITY", "high")

	cfg := LoadWithDefaults()
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected malformed IMAGES_QUALITY to fail validation")
	}
}
