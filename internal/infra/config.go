package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv    string
	Port      string
	JWTSecret string

	JobStore    string
	DatabaseURL string
	SQLitePath  string
	BrandSource string

	QueueDriver   string
	RedisHost     string
	RedisPort     string
	RedisUsername string
	RedisPassword string
	RedisUseTLS   bool
	NotifyChannel string

	StorageDriver      string
	StoragePath        string
	StorageBaseURL     string
	SupabaseURL        string
	SupabaseServiceKey string
	SupabaseBucket     string

	WorkerConcurrency int
	WorkerMaxAttempts int
	WorkerBackoffBase time.Duration
	WorkerBackoffMax  time.Duration
	WorkerEmbedded    bool
	JobRetention      time.Duration
	JobSweepInterval  time.Duration
	JobStaleAfter     time.Duration

	ImageProviders  []string
	ProviderTimeout time.Duration
	GeminiAPIKey    string
	GeminiModel     string
	QwenAPIKey      string
	QwenBaseURL     string
	QwenModel       string

	CaptureEnabled  bool
	CaptureTimeout  time.Duration
	CaptureSettle   time.Duration
	CaptureEncoding string
	CaptureQuality  int
	ChromePath      string

	TemplateDir   string
	DefaultLocale string
	GeoIPDBPath   string

	CORSAllowedOrigins []string
	RateLimitPerMin    int
	HTTPReadTimeout    time.Duration
	HTTPWriteTimeout   time.Duration
	HTTPIdleTimeout    time.Duration
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	port := getEnv("PORT", "8080")
	cfg := &Config{
		AppEnv:    getEnv("APP_ENV", "development"),
		Port:      port,
		JWTSecret: os.Getenv("JWT_SECRET"),

		JobStore:    strings.ToLower(getEnv("JOB_STORE", "memory")),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		SQLitePath:  getEnv("SQLITE_PATH", "./data/jobs.db"),
		BrandSource: strings.ToLower(getEnv("BRAND_SOURCE", "memory")),

		QueueDriver:   strings.ToLower(getEnv("QUEUE_DRIVER", "memory")),
		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisUsername: os.Getenv("REDIS_USERNAME"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisUseTLS:   getEnvBool("REDIS_USE_TLS", false),
		NotifyChannel: getEnv("NOTIFY_CHANNEL", "creative:events"),

		StorageDriver:      strings.ToLower(getEnv("STORAGE_DRIVER", "filesystem")),
		StoragePath:        getEnv("STORAGE_PATH", "./storage"),
		StorageBaseURL:     getEnv("STORAGE_BASE_URL", "http://localhost:"+port+"/static"),
		SupabaseURL:        os.Getenv("SUPABASE_URL"),
		SupabaseServiceKey: os.Getenv("SUPABASE_SERVICE_KEY"),
		SupabaseBucket:     getEnv("SUPABASE_BUCKET", "creatives"),

		WorkerConcurrency: getEnvInt("WORKER_CONCURRENCY", 5),
		WorkerMaxAttempts: getEnvInt("WORKER_MAX_ATTEMPTS", 3),
		WorkerBackoffBase: getEnvDuration("WORKER_BACKOFF_BASE", 2*time.Second),
		WorkerBackoffMax:  getEnvDuration("WORKER_BACKOFF_MAX", time.Minute),
		WorkerEmbedded:    getEnvBool("WORKER_EMBEDDED", true),
		JobRetention:      getEnvDuration("JOB_RETENTION", 24*time.Hour),
		JobSweepInterval:  getEnvDuration("JOB_SWEEP_INTERVAL", 15*time.Minute),
		JobStaleAfter:     getEnvDuration("JOB_STALE_AFTER", 10*time.Minute),

		ImageProviders:  getEnvList("IMAGE_PROVIDERS", []string{"gemini", "qwen", "synthetic"}),
		ProviderTimeout: getEnvDuration("PROVIDER_TIMEOUT", 45*time.Second),
		GeminiAPIKey:    os.Getenv("GEMINI_API_KEY"),
		GeminiModel:     os.Getenv("GEMINI_MODEL"),
		QwenAPIKey:      os.Getenv("QWEN_API_KEY"),
		QwenBaseURL:     os.Getenv("QWEN_BASE_URL"),
		QwenModel:       os.Getenv("QWEN_MODEL"),

		CaptureEnabled:  getEnvBool("CAPTURE_ENABLED", true),
		CaptureTimeout:  getEnvDuration("CAPTURE_TIMEOUT", 30*time.Second),
		CaptureSettle:   getEnvDuration("CAPTURE_SETTLE", 750*time.Millisecond),
		CaptureEncoding: strings.ToLower(getEnv("CAPTURE_ENCODING", "png")),
		CaptureQuality:  getEnvInt("CAPTURE_QUALITY", 90),
		ChromePath:      os.Getenv("CHROME_PATH"),

		TemplateDir:   os.Getenv("TEMPLATE_DIR"),
		DefaultLocale: getEnv("DEFAULT_LOCALE", "en"),
		GeoIPDBPath:   os.Getenv("GEOIP_DB_PATH"),

		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", nil),
		RateLimitPerMin:    getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		HTTPReadTimeout:    time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:   time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:    time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if err := oneOf("JOB_STORE", cfg.JobStore, "memory", "postgres", "sqlite"); err != nil {
		return nil, err
	}
	if err := oneOf("BRAND_SOURCE", cfg.BrandSource, "memory", "postgres", "supabase"); err != nil {
		return nil, err
	}
	if err := oneOf("QUEUE_DRIVER", cfg.QueueDriver, "memory", "redis"); err != nil {
		return nil, err
	}
	if err := oneOf("STORAGE_DRIVER", cfg.StorageDriver, "filesystem", "supabase"); err != nil {
		return nil, err
	}
	if err := oneOf("CAPTURE_ENCODING", cfg.CaptureEncoding, "png", "webp"); err != nil {
		return nil, err
	}
	if cfg.NeedsPostgres() && cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if (cfg.StorageDriver == "supabase" || cfg.BrandSource == "supabase") &&
		(cfg.SupabaseURL == "" || cfg.SupabaseServiceKey == "") {
		return nil, fmt.Errorf("SUPABASE_URL and SUPABASE_SERVICE_KEY are required")
	}

	return cfg, nil
}

// NeedsPostgres reports whether any component is configured to use Postgres.
func (c *Config) NeedsPostgres() bool {
	return c.JobStore == "postgres" || c.BrandSource == "postgres"
}

// RedisAddr returns host:port for the Redis client.
func (c *Config) RedisAddr() string {
	return c.RedisHost + ":" + c.RedisPort
}

func oneOf(key, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("%s must be one of %s, got %q", key, strings.Join(allowed, "|"), value)
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
