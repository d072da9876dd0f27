package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/Specifix5/mikushare/internal/db"
)

const mb = 1024 * 1024

// DefaultSQLiteDSN keeps timestamps in a format julianday() understands.
const DefaultSQLiteDSN = "./data/mikushare.db?_time_format=sqlite&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"

type Config struct {
	// Application
	AppName string
	AppEnv  string `validate:"oneof=development production test"`
	Port    string `validate:"required,numeric"`
	BaseURL string `validate:"required,url"`

	// Database (optional driver switch via ENV, default: sqlite)
	DBDriver     string `validate:"oneof=sqlite pgx"`
	DBConnection string `validate:"required"`

	// Uploads
	UploadsDir      string `validate:"required"`
	ShouldRedirect  bool
	ServeUploads    bool
	MaxFileSize     int64 `validate:"gt=0"` // bytes
	MaxTempFileSize int64 `validate:"gt=0"` // bytes
	MaxTTLHours     int   `validate:"gte=1"`
	UploadLimit     int   `validate:"gte=1"` // concurrent uploads per key

	// Expiry sweeper
	InitCleanup   bool
	CleanupPeriod time.Duration `validate:"gte=1m"`

	// Admin
	EnableConsole  bool
	LegacyKeysFile string

	// Observability (optional)
	SentryDSN string

	// Storage: "local" or "s3" (S3-compatible: MinIO, AWS S3, Cloudflare R2, etc.)
	StorageDriver   string `validate:"oneof=local s3"`
	S3Region        string `validate:"required_if=StorageDriver s3"`
	S3Bucket        string `validate:"required_if=StorageDriver s3"`
	S3AccessKey     string
	S3SecretKey     string
	S3Endpoint      string // Optional: for non-AWS providers
	S3PresignExpiry time.Duration

	// Optional: shares the per-key upload limit across replicas
	RedisURL string
}

func Load() *Config {
	// Load .env file if it exists
	err := godotenv.Load()
	if err != nil {
		slog.Info("no .env file found, using environment variables")
	}

	port := envString("PORT", "3000")
	driver := envString("DB_DRIVER", "sqlite")

	cfg := &Config{
		// Application
		AppName: envString("APP_NAME", "mikushare"),
		AppEnv:  envString("APP_ENV", "production"),
		Port:    port,
		BaseURL: envString("BASE_URL", "http://localhost:"+port),

		// Database
		DBDriver:     driver,
		DBConnection: envString("DB_CONNECTION", defaultConnection(driver)),

		// Uploads
		UploadsDir:      envString("UPLOADS_DIRECTORY", "./uploads"),
		ShouldRedirect:  envBool("SHOULD_REDIRECT", true),
		ServeUploads:    envBool("SERVE_UPLOADS", true),
		MaxFileSize:     envInt64("MAX_FILE_SIZE", 64) * mb,
		MaxTempFileSize: envInt64("MAX_TEMP_FILE_SIZE", 512) * mb,
		MaxTTLHours:     int(envInt64("MAX_TTL_HOURS", 168)),
		UploadLimit:     int(envInt64("UPLOAD_CONCURRENCY", 4)),

		// Sweeper
		InitCleanup:   envBool("INIT_CLEANUP", true),
		CleanupPeriod: envDuration("CLEANUP_PERIOD", time.Hour),

		// Admin
		EnableConsole:  envBool("ENABLE_CONSOLE", true),
		LegacyKeysFile: envString("LEGACY_KEYS_FILE", "./keys"),

		// Observability
		SentryDSN: envString("SENTRY_DSN", ""),

		// Storage
		StorageDriver:   envString("STORAGE_DRIVER", "local"),
		S3Region:        envString("S3_REGION", ""),
		S3Bucket:        envString("S3_BUCKET", ""),
		S3AccessKey:     envString("S3_ACCESS_KEY", ""),
		S3SecretKey:     envString("S3_SECRET_KEY", ""),
		S3Endpoint:      envString("S3_ENDPOINT", ""),
		S3PresignExpiry: envDuration("S3_PRESIGN_EXPIRY", time.Hour),

		RedisURL: envString("REDIS_URL", ""),
	}

	err = cfg.Validate()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	return cfg
}

// defaultConnection picks a DSN when DB_CONNECTION is unset. For postgres it
// is assembled from DB_HOST, DB_PORT, DB_USER, DB_PASSWORD and DB_NAME.
func defaultConnection(driver string) string {
	if driver == "pgx" {
		return db.PostgresURL(
			envString("DB_HOST", "localhost"),
			envString("DB_PORT", "5432"),
			envString("DB_USER", "postgres"),
			envString("DB_PASSWORD", ""),
			envString("DB_NAME", "mikushare"),
		)
	}
	return DefaultSQLiteDSN
}

var validate = validator.New()

var ErrRedirectWithoutServe = errors.New("config: SHOULD_REDIRECT with local storage requires SERVE_UPLOADS")

// Validate checks field constraints declared in struct tags. Redirects on
// local storage point at /uploads, so they need SERVE_UPLOADS.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.StorageDriver == "local" && c.ShouldRedirect && !c.ServeUploads {
		return ErrRedirectWithoutServe
	}
	return nil
}

func envString(key, def string) string {
	value := os.Getenv(key)
	if value == "" {
		value = def
	}
	return value
}

func envBool(key string, def bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		slog.Warn("config invalid bool, using default", "key", key, "value", v, "default", def)
		return def
	}
	return b
}

func envInt64(key string, def int64) int64 {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		slog.Warn("config invalid integer, using default", "key", key, "value", v, "default", def)
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("config invalid duration, using default", "key", key, "value", v, "default", def)
		return def
	}
	return d
}

func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// MaxUploadSize is the byte limit for an upload with or without a TTL.
func (c *Config) MaxUploadSize(temp bool) int64 {
	if temp {
		return c.MaxTempFileSize
	}
	return c.MaxFileSize
}

// Sanitized returns a copy of the config with only public/safe fields.
// Safe to expose in ctx and templates.
func (c *Config) Sanitized() *Config {
	return &Config{
		AppName:         c.AppName,
		AppEnv:          c.AppEnv,
		Port:            c.Port,
		BaseURL:         c.BaseURL,
		MaxFileSize:     c.MaxFileSize,
		MaxTempFileSize: c.MaxTempFileSize,
		MaxTTLHours:     c.MaxTTLHours,
		ShouldRedirect:  c.ShouldRedirect,
		ServeUploads:    c.ServeUploads,
		StorageDriver:   c.StorageDriver,
		S3Endpoint:      c.S3Endpoint,
	}
}
