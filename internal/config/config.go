// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes server timeouts,
// logging, persistence, the evaluator, object storage, the user directory,
// notifications, rate limiting and observability.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// DatabaseConfig selects the SQL backend.
type DatabaseConfig struct {
	Driver string // sqlite|postgres
	URL    string // DATABASE_URL (postgres DSN)
	Path   string // DB_PATH (sqlite file)
}

// DSN returns the connection string for the selected driver.
func (d DatabaseConfig) DSN() string {
	if d.Driver == "postgres" {
		return d.URL
	}
	return d.Path
}

// EvaluatorConfig selects and configures the scoring model.
type EvaluatorConfig struct {
	Provider      string // openai|local
	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string
	Timeout       time.Duration
}

// StorageConfig selects the image object store.
type StorageConfig struct {
	Provider        string // gcs|memory
	GCSBucket       string
	GCSPublicBase   string
	GCSCredentials  string
	GCSEndpoint     string
	MemoryPublicURL string
}

// DirectoryConfig points at the external user directory.
type DirectoryConfig struct {
	BaseURL  string        // DIRECTORY_BASE_URL
	Token    string        // DIRECTORY_TOKEN
	File     string        // DIRECTORY_FILE, static JSON used when BaseURL is empty
	Timeout  time.Duration // DIRECTORY_TIMEOUT
	CacheTTL time.Duration // DIRECTORY_CACHE_TTL
}

// RedisConfig enables the shared cache, session lock and alert bus.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// Enabled reports whether an address was configured.
func (r RedisConfig) Enabled() bool { return strings.TrimSpace(r.Addr) != "" }

// NotifyConfig configures notification sinks and the side-effect queue.
type NotifyConfig struct {
	Channel        string // NOTIFY_CHANNEL (redis pub/sub)
	SendGridAPIKey string
	SendGridFrom   string
	SendGridName   string
	QueueSize      int
	Workers        int
	Timeout        time.Duration
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	MaxUploadBytes    int64         // request body cap for image uploads
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	// Domain
	EditWindow        time.Duration // EDIT_WINDOW
	LowScoreThreshold float64       // LOW_SCORE_THRESHOLD in [0,1]
	MaxImages         int           // MAX_IMAGES_PER_SESSION

	Database  DatabaseConfig
	Evaluator EvaluatorConfig
	Storage   StorageConfig
	Directory DirectoryConfig
	Redis     RedisConfig
	Notify    NotifyConfig

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL   time.Duration // how long a given Idempotency-Key is valid
	IdempotencyPurge time.Duration // sweep interval for expired keys

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 60*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		MaxUploadBytes:    int64(getint("MAX_UPLOAD_BYTES", 10<<20)),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		// Domain
		EditWindow:        getdur("EDIT_WINDOW", 24*time.Hour),
		LowScoreThreshold: getfloat("LOW_SCORE_THRESHOLD", 0.45),
		MaxImages:         getint("MAX_IMAGES_PER_SESSION", 3),

		Database: DatabaseConfig{
			Driver: strings.ToLower(getenv("DATABASE_DRIVER", "sqlite")),
			URL:    getenv("DATABASE_URL", ""),
			Path:   getenv("DB_PATH", "app.db"),
		},
		Evaluator: EvaluatorConfig{
			Provider:      strings.ToLower(getenv("EVALUATOR_PROVIDER", "local")),
			OpenAIAPIKey:  getenv("OPENAI_API_KEY", ""),
			OpenAIModel:   getenv("OPENAI_MODEL", "gpt-4o-mini"),
			OpenAIBaseURL: getenv("OPENAI_BASE_URL", ""),
			Timeout:       getdur("EVALUATOR_TIMEOUT", 30*time.Second),
		},
		Storage: StorageConfig{
			Provider:        strings.ToLower(getenv("STORAGE_PROVIDER", "memory")),
			GCSBucket:       getenv("GCS_BUCKET", ""),
			GCSPublicBase:   getenv("GCS_PUBLIC_BASE_URL", ""),
			GCSCredentials:  getenv("GOOGLE_APPLICATION_CREDENTIALS", ""),
			GCSEndpoint:     getenv("GCS_ENDPOINT", ""),
			MemoryPublicURL: getenv("MEMORY_STORAGE_BASE_URL", ""),
		},
		Directory: DirectoryConfig{
			BaseURL:  getenv("DIRECTORY_BASE_URL", ""),
			Token:    getenv("DIRECTORY_TOKEN", ""),
			File:     getenv("DIRECTORY_FILE", "data/directory.json"),
			Timeout:  getdur("DIRECTORY_TIMEOUT", 5*time.Second),
			CacheTTL: getdur("DIRECTORY_CACHE_TTL", time.Minute),
		},
		Redis: RedisConfig{
			Addr:     getenv("REDIS_ADDR", ""),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       getint("REDIS_DB", 0),
			Prefix:   getenv("REDIS_PREFIX", "descriptions:"),
		},
		Notify: NotifyConfig{
			Channel:        getenv("NOTIFY_CHANNEL", "descriptions.notifications"),
			SendGridAPIKey: getenv("SENDGRID_API_KEY", ""),
			SendGridFrom:   getenv("SENDGRID_FROM_EMAIL", ""),
			SendGridName:   getenv("SENDGRID_FROM_NAME", "DoURemember"),
			QueueSize:      getint("NOTIFY_QUEUE_SIZE", 256),
			Workers:        getint("NOTIFY_WORKERS", 2),
			Timeout:        getdur("NOTIFY_TIMEOUT", 10*time.Second),
		},

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Idempotency
		IdempotencyTTL:   getdur("IDEMPOTENCY_TTL", 24*time.Hour),
		IdempotencyPurge: getdur("IDEMPOTENCY_PURGE_INTERVAL", time.Hour),

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-descriptions-backend"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}
	if cfg.Database.Driver == "postgresql" {
		cfg.Database.Driver = "postgres"
	}

	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (cfg Config) validate() error {
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if cfg.MaxUploadBytes <= 0 {
		return errors.New("MAX_UPLOAD_BYTES must be > 0")
	}

	if cfg.EditWindow <= 0 {
		return errors.New("EDIT_WINDOW must be > 0")
	}
	if cfg.LowScoreThreshold < 0 || cfg.LowScoreThreshold > 1 {
		return errors.New("LOW_SCORE_THRESHOLD must be between 0 and 1")
	}
	if cfg.MaxImages < 1 {
		return errors.New("MAX_IMAGES_PER_SESSION must be >= 1")
	}

	switch cfg.Database.Driver {
	case "sqlite":
		if strings.TrimSpace(cfg.Database.Path) == "" {
			return errors.New("DB_PATH must not be empty")
		}
	case "postgres":
		if strings.TrimSpace(cfg.Database.URL) == "" {
			return errors.New("DATABASE_URL is required when DATABASE_DRIVER=postgres")
		}
	default:
		return fmt.Errorf("DATABASE_DRIVER must be sqlite or postgres, got %q", cfg.Database.Driver)
	}

	switch cfg.Evaluator.Provider {
	case "local":
	case "openai":
		if strings.TrimSpace(cfg.Evaluator.OpenAIAPIKey) == "" {
			return errors.New("OPENAI_API_KEY is required when EVALUATOR_PROVIDER=openai")
		}
	default:
		return fmt.Errorf("EVALUATOR_PROVIDER must be openai or local, got %q", cfg.Evaluator.Provider)
	}
	if cfg.Evaluator.Timeout <= 0 {
		return errors.New("EVALUATOR_TIMEOUT must be > 0")
	}

	switch cfg.Storage.Provider {
	case "memory":
	case "gcs":
		if strings.TrimSpace(cfg.Storage.GCSBucket) == "" {
			return errors.New("GCS_BUCKET is required when STORAGE_PROVIDER=gcs")
		}
	default:
		return fmt.Errorf("STORAGE_PROVIDER must be gcs or memory, got %q", cfg.Storage.Provider)
	}

	if cfg.Directory.Timeout <= 0 || cfg.Directory.CacheTTL <= 0 {
		return errors.New("DIRECTORY_TIMEOUT and DIRECTORY_CACHE_TTL must be > 0")
	}

	if cfg.Notify.SendGridAPIKey != "" && cfg.Notify.SendGridFrom == "" {
		return errors.New("SENDGRID_FROM_EMAIL is required when SENDGRID_API_KEY is set")
	}
	if cfg.Notify.QueueSize < 1 || cfg.Notify.Workers < 1 {
		return errors.New("NOTIFY_QUEUE_SIZE and NOTIFY_WORKERS must be >= 1")
	}
	if cfg.Notify.Timeout <= 0 {
		return errors.New("NOTIFY_TIMEOUT must be > 0")
	}

	if cfg.RateRPS < 0 {
		return errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.IdempotencyTTL <= 0 {
		return errors.New("IDEMPOTENCY_TTL must be > 0")
	}
	if cfg.IdempotencyPurge <= 0 {
		return errors.New("IDEMPOTENCY_PURGE_INTERVAL must be > 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}
	return nil
}

// ---- helpers ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
