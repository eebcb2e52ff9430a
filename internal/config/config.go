package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type HTTPTimeoutsConfig struct {
	Read     time.Duration
	Idle     time.Duration
	Write    time.Duration
	Shutdown time.Duration // how long we give the shutdown process to gracefully terminate
}

type HTTPConfig struct {
	Port            int
	Timeouts        HTTPTimeoutsConfig
	MaxRequestBytes int64
}

type RateLimiterConfig struct {
	RPS   int
	Burst int
}

type LoggerConfig struct {
	Level slog.Level
}

type AppConfig struct {
	Name        string
	Environment string // 'dev' | 'prod'
	Version     string
}

type DBConfig struct {
	Path string
}

type ProxyConfig struct {
	Trusted bool
}

type TelemetryConfig struct {
	EnableTelemetry bool
	OtelEndpoint    string
}

// ImageSize is a bounding box a variant is fitted into.
type ImageSize struct {
	Width  int
	Height int
}

// ImagesOptions drives the upload pipeline. Loaded once, read-only afterwards.
type ImagesOptions struct {
	Enabled         bool // false selects the legacy pass-through upload path
	KeepOriginal    bool
	Quality         int
	PreferredFormat string
	Max             ImageSize
	Preview         ImageSize
	Thumb           ImageSize
	MaxUploadBytes  int64
	MaxPixels       int
	Workers         int
}

type S3Config struct {
	Endpoint      string
	Region        string
	AccessKey     string
	SecretKey     string
	Bucket        string
	PublicBaseURL string
}

type MinioConfig struct {
	Endpoint      string
	AccessKey     string
	SecretKey     string
	Bucket        string
	UseSSL        bool
	PublicBaseURL string
}

type StorageConfig struct {
	Backend      string // 'local' | 's3' | 'minio'
	LocalPath    string
	PublicPrefix string
	S3           S3Config
	Minio        MinioConfig
}

type Config struct {
	App     AppConfig
	DB      DBConfig
	Proxy   ProxyConfig
	HTTP    HTTPConfig
	Limiter RateLimiterConfig
	Logger  LoggerConfig
	Metrics TelemetryConfig
	Images  ImagesOptions
	Storage StorageConfig
}

const (
	BackendLocal = "local"
	BackendS3    = "s3"
	BackendMinio = "minio"
)

const (
	minQuality   = 10
	maxQuality   = 100
	minDimension = 1
	maxDimension = 8000
)

func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Name:        "postmedia",
			Environment: "prod",
			Version:     "dev",
		},
		DB: DBConfig{
			Path: "postmedia.db",
		},
		Proxy: ProxyConfig{
			Trusted: true,
		},
		HTTP: HTTPConfig{
			Port: 3000,
			Timeouts: HTTPTimeoutsConfig{
				Read:     30 * time.Second,
				Write:    60 * time.Second,
				Idle:     10 * time.Minute,
				Shutdown: 10 * time.Second,
			},
			// five images at the upload ceiling plus form fields
			MaxRequestBytes: 5*20<<20 + 1<<20,
		},
		Limiter: RateLimiterConfig{
			RPS:   20,
			Burst: 50,
		},
		Logger: LoggerConfig{
			Level: slog.LevelInfo,
		},
		Metrics: TelemetryConfig{
			OtelEndpoint: "localhost:4318",
		},
		Images: ImagesOptions{
			Enabled:         true,
			KeepOriginal:    false,
			Quality:         80,
			PreferredFormat: "webp",
			Max:             ImageSize{Width: 1920, Height: 1080},
			Preview:         ImageSize{Width: 1280, Height: 1280},
			Thumb:           ImageSize{Width: 320, Height: 320},
			MaxUploadBytes:  20 << 20,
			MaxPixels:       50_000_000,
			Workers:         runtime.NumCPU(),
		},
		Storage: StorageConfig{
			Backend:      BackendLocal,
			LocalPath:    "./uploads",
			PublicPrefix: "/uploads",
			S3: S3Config{
				Region: "us-east-1",
			},
		},
	}
}

// LoadWithDefaults reads the environment (and a .env file when present) on top of DefaultConfig.
func LoadWithDefaults() *Config {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "ignoring unreadable .env file: %v\n", err)
	}

	defaults := DefaultConfig()
	return &Config{
		App: AppConfig{
			Name:        getEnv("APP_NAME", defaults.App.Name),
			Environment: getEnv("APP_ENV", defaults.App.Environment),
			Version:     getEnv("APP_VERSION", defaults.App.Version),
		},
		DB: DBConfig{
			Path: getEnv("DB_PATH", defaults.DB.Path),
		},
		Proxy: ProxyConfig{
			Trusted: getEnvAsBool("PROXY_TRUSTED", defaults.Proxy.Trusted),
		},
		HTTP: HTTPConfig{
			Port: getEnvAsInt("HTTP_PORT", defaults.HTTP.Port),
			Timeouts: HTTPTimeoutsConfig{
				Read:     getEnvAsDuration("HTTP_READ_TIMEOUT", defaults.HTTP.Timeouts.Read),
				Write:    getEnvAsDuration("HTTP_WRITE_TIMEOUT", defaults.HTTP.Timeouts.Write),
				Idle:     getEnvAsDuration("HTTP_IDLE_TIMEOUT", defaults.HTTP.Timeouts.Idle),
				Shutdown: getEnvAsDuration("HTTP_SHUTDOWN_DELAY", defaults.HTTP.Timeouts.Shutdown),
			},
			MaxRequestBytes: getEnvAsInt64("HTTP_MAX_REQUEST_BYTES", defaults.HTTP.MaxRequestBytes),
		},
		Limiter: RateLimiterConfig{
			RPS:   getEnvAsInt("LIMITER_RPS", defaults.Limiter.RPS),
			Burst: getEnvAsInt("LIMITER_BURST", defaults.Limiter.Burst),
		},
		Logger: LoggerConfig{
			Level: getEnvAsLogLevel("LOGGER_LEVEL", defaults.Logger.Level),
		},
		Metrics: TelemetryConfig{
			EnableTelemetry: getEnvAsBool("ENABLE_TELEMETRY", false),
			OtelEndpoint:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", defaults.Metrics.OtelEndpoint),
		},
		Images: ImagesOptions{
			Enabled:         getEnvAsBool("IMAGES_ENABLED", defaults.Images.Enabled),
			KeepOriginal:    getEnvAsBool("IMAGES_KEEP_ORIGINAL", defaults.Images.KeepOriginal),
			Quality:         getEnvAsInt("IMAGES_QUALITY", defaults.Images.Quality),
			PreferredFormat: getEnv("IMAGES_PREFERRED_FORMAT", defaults.Images.PreferredFormat),
			Max: ImageSize{
				Width:  getEnvAsInt("IMAGES_MAX_WIDTH", defaults.Images.Max.Width),
				Height: getEnvAsInt("IMAGES_MAX_HEIGHT", defaults.Images.Max.Height),
			},
			Preview: ImageSize{
				Width:  getEnvAsInt("IMAGES_PREVIEW_WIDTH", defaults.Images.Preview.Width),
				Height: getEnvAsInt("IMAGES_PREVIEW_HEIGHT", defaults.Images.Preview.Height),
			},
			Thumb: ImageSize{
				Width:  getEnvAsInt("IMAGES_THUMB_WIDTH", defaults.Images.Thumb.Width),
				Height: getEnvAsInt("IMAGES_THUMB_HEIGHT", defaults.Images.Thumb.Height),
			},
			MaxUploadBytes: getEnvAsInt64("IMAGES_MAX_UPLOAD_BYTES", defaults.Images.MaxUploadBytes),
			MaxPixels:      getEnvAsInt("IMAGES_MAX_PIXELS", defaults.Images.MaxPixels),
			Workers:        getEnvAsInt("IMAGES_WORKERS", defaults.Images.Workers),
		},
		Storage: StorageConfig{
			Backend:      strings.ToLower(getEnv("STORAGE_BACKEND", defaults.Storage.Backend)),
			LocalPath:    getEnv("STORAGE_LOCAL_PATH", defaults.Storage.LocalPath),
			PublicPrefix: getEnv("STORAGE_PUBLIC_PREFIX", defaults.Storage.PublicPrefix),
			S3: S3Config{
				Endpoint:      getEnv("S3_ENDPOINT", defaults.Storage.S3.Endpoint),
				Region:        getEnv("S3_REGION", defaults.Storage.S3.Region),
				AccessKey:     getEnv("S3_ACCESS_KEY", ""),
				SecretKey:     getEnv("S3_SECRET_KEY", ""),
				Bucket:        getEnv("S3_BUCKET", ""),
				PublicBaseURL: getEnv("S3_PUBLIC_BASE_URL", ""),
			},
			Minio: MinioConfig{
				Endpoint:      getEnv("MINIO_ENDPOINT", ""),
				AccessKey:     getEnv("MINIO_ACCESS_KEY", ""),
				SecretKey:     getEnv("MINIO_SECRET_KEY", ""),
				Bucket:        getEnv("MINIO_BUCKET", ""),
				UseSSL:        getEnvAsBool("MINIO_USE_SSL", false),
				PublicBaseURL: getEnv("MINIO_PUBLIC_BASE_URL", ""),
			},
		},
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	valueStr, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return fallback
	}
	return value
}

// getEnvAsInt keeps malformed numbers visible to Validate instead of silently using the default.
func getEnvAsInt(key string, fallback int) int {
	valueStr, ok := os.LookupEnv(key)
	if !ok || valueStr == "" {
		return fallback
	}

	value, err := strconv.Atoi(strings.TrimSpace(valueStr))
	if err != nil {
		return -1
	}
	return value
}

func getEnvAsInt64(key string, fallback int64) int64 {
	valueStr, ok := os.LookupEnv(key)
	if !ok || valueStr == "" {
		return fallback
	}

	value, err := strconv.ParseInt(strings.TrimSpace(valueStr), 10, 64)
	if err != nil {
		return -1
	}
	return value
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return fallback
	}
	return value
}

func getEnvAsLogLevel(key string, fallback slog.Level) slog.Level {
	valueStr, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}

	switch strings.ToLower(valueStr) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warning", "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return fallback
	}
}

func (c *Config) Validate() error {
	if c.App.Name == "" {
		return fmt.Errorf("APP_NAME must not be empty")
	}
	if s := strings.ToLower(c.App.Environment); s != "dev" && s != "prod" {
		return fmt.Errorf(`APP_ENV must be "dev" or "prod"`)
	}
	if c.DB.Path == "" {
		return fmt.Errorf("DB_PATH must not be empty")
	}
	// stay away from well-known ports
	if p := c.HTTP.Port; p < 1024 || p > 65535 {
		return fmt.Errorf("HTTP_PORT must be a positive int between 1024 and 65535, got %d", p)
	}
	if c.HTTP.Timeouts.Read <= 0 {
		return fmt.Errorf("HTTP_READ_TIMEOUT must be positive (e.g., 30s), got %s", c.HTTP.Timeouts.Read)
	}
	if c.HTTP.Timeouts.Write <= 0 {
		return fmt.Errorf("HTTP_WRITE_TIMEOUT must be positive (e.g., 60s), got %s", c.HTTP.Timeouts.Write)
	}
	if c.HTTP.Timeouts.Idle <= 0 {
		return fmt.Errorf("HTTP_IDLE_TIMEOUT must be positive (e.g., 2m), got %s", c.HTTP.Timeouts.Idle)
	}
	if c.HTTP.Timeouts.Shutdown <= 0 {
		return fmt.Errorf("HTTP_SHUTDOWN_DELAY must be positive (e.g., 10s), got %s", c.HTTP.Timeouts.Shutdown)
	}
	if c.HTTP.MaxRequestBytes <= 0 {
		return fmt.Errorf("HTTP_MAX_REQUEST_BYTES must be positive, got %d", c.HTTP.MaxRequestBytes)
	}
	if c.Limiter.RPS <= 0 {
		return fmt.Errorf("LIMITER_RPS must be positive, got %d", c.Limiter.RPS)
	}
	if c.Limiter.Burst <= 0 {
		return fmt.Errorf("LIMITER_BURST must be positive, got %d", c.Limiter.Burst)
	}
	if err := c.Images.Validate(); err != nil {
		return err
	}
	return c.Storage.Validate()
}

// Validate checks the pipeline settings eagerly so a bad value fails at startup, not at first upload.
func (o ImagesOptions) Validate() error {
	if o.Quality < minQuality || o.Quality > maxQuality {
		return fmt.Errorf("IMAGES_QUALITY must be between %d and %d, got %d", minQuality, maxQuality, o.Quality)
	}

	switch strings.ToLower(strings.TrimSpace(o.PreferredFormat)) {
	case "webp", "jpeg", "jpg", "png":
	default:
		return fmt.Errorf(`IMAGES_PREFERRED_FORMAT must be one of "webp", "jpeg", "png", got %q`, o.PreferredFormat)
	}

	sizes := []struct {
		name string
		size ImageSize
	}{
		{"IMAGES_MAX", o.Max},
		{"IMAGES_PREVIEW", o.Preview},
		{"IMAGES_THUMB", o.Thumb},
	}
	for _, s := range sizes {
		if w := s.size.Width; w < minDimension || w > maxDimension {
			return fmt.Errorf("%s_WIDTH must be between %d and %d, got %d", s.name, minDimension, maxDimension, w)
		}
		if h := s.size.Height; h < minDimension || h > maxDimension {
			return fmt.Errorf("%s_HEIGHT must be between %d and %d, got %d", s.name, minDimension, maxDimension, h)
		}
	}

	if o.MaxUploadBytes <= 0 {
		return fmt.Errorf("IMAGES_MAX_UPLOAD_BYTES must be positive, got %d", o.MaxUploadBytes)
	}
	if o.MaxPixels <= 0 {
		return fmt.Errorf("IMAGES_MAX_PIXELS must be positive, got %d", o.MaxPixels)
	}
	if o.Workers <= 0 {
		return fmt.Errorf("IMAGES_WORKERS must be positive, got %d", o.Workers)
	}
	return nil
}

func (s StorageConfig) Validate() error {
	switch s.Backend {
	case BackendLocal:
		if s.LocalPath == "" {
			return fmt.Errorf("STORAGE_LOCAL_PATH must not be empty")
		}
		if !strings.HasPrefix(s.PublicPrefix, "/") {
			return fmt.Errorf("STORAGE_PUBLIC_PREFIX must start with '/', got %q", s.PublicPrefix)
		}
	case BackendS3:
		if s.S3.Bucket == "" {
			return fmt.Errorf("S3_BUCKET must not be empty")
		}
		if s.S3.Region == "" {
			return fmt.Errorf("S3_REGION must not be empty")
		}
		if (s.S3.AccessKey == "") != (s.S3.SecretKey == "") {
			return fmt.Errorf("S3_ACCESS_KEY and S3_SECRET_KEY must be set together")
		}
	case BackendMinio:
		if s.Minio.Endpoint == "" {
			return fmt.Errorf("MINIO_ENDPOINT must not be empty")
		}
		if s.Minio.Bucket == "" {
			return fmt.Errorf("MINIO_BUCKET must not be empty")
		}
		if s.Minio.AccessKey == "" || s.Minio.SecretKey == "" {
			return fmt.Errorf("MINIO_ACCESS_KEY and MINIO_SECRET_KEY must not be empty")
		}
	default:
		return fmt.Errorf(`STORAGE_BACKEND must be "local", "s3" or "minio", got %q`, s.Backend)
	}
	return nil
}
