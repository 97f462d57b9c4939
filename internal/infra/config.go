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
	AppEnv      string
	Port        string
	DatabaseURL string

	GenerationBaseURL string
	GenerationAPIKey  string

	BucketBaseURL string
	BucketName    string
	BucketToken   string
	StoragePath   string

	ArtifactInlineThreshold int
	ArtifactChunkThreshold  int
	ArtifactChunkSize       int

	PollInitialDelay time.Duration
	PollMaxDelay     time.Duration
	PollMaxAttempts  int
	PollBudget       time.Duration

	WorkerConcurrency int
	ClaimInterval     time.Duration
	IndexBatchSize    int
	JobStaleAfter     time.Duration
	SweepInterval     time.Duration

	GeoIPDBPath   string
	DefaultLocale string

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int

	// APIJWTSecret enables bearer auth on the job routes when set.
	APIJWTSecret   string
	AllowedOrigins []string
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:      getEnv("APP_ENV", "development"),
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),

		GenerationBaseURL: getEnv("GENERATION_BASE_URL", "https://generation.internal/v1"),
		GenerationAPIKey:  os.Getenv("GENERATION_API_KEY"),

		BucketBaseURL: os.Getenv("BUCKET_BASE_URL"),
		BucketName:    getEnv("BUCKET_NAME", "artifacts"),
		BucketToken:   os.Getenv("BUCKET_TOKEN"),
		StoragePath:   getEnv("STORAGE_PATH", "./storage"),

		ArtifactInlineThreshold: getEnvInt("ARTIFACT_INLINE_THRESHOLD", 16*1024),
		ArtifactChunkThreshold:  getEnvInt("ARTIFACT_CHUNK_THRESHOLD", 100*1024),
		ArtifactChunkSize:       getEnvInt("ARTIFACT_CHUNK_SIZE", 30*1024),

		PollInitialDelay: time.Millisecond * time.Duration(getEnvInt("POLL_INITIAL_DELAY_MS", 500)),
		PollMaxDelay:     time.Millisecond * time.Duration(getEnvInt("POLL_MAX_DELAY_MS", 15000)),
		PollMaxAttempts:  getEnvInt("POLL_MAX_ATTEMPTS", 120),
		PollBudget:       time.Second * time.Duration(getEnvInt("POLL_BUDGET_SECONDS", 600)),

		WorkerConcurrency: getEnvInt("WORKER_CONCURRENCY", 4),
		ClaimInterval:     time.Millisecond * time.Duration(getEnvInt("CLAIM_INTERVAL_MS", 2000)),
		IndexBatchSize:    getEnvInt("INDEX_BATCH_SIZE", 50),
		JobStaleAfter:     time.Second * time.Duration(getEnvInt("JOB_STALE_AFTER_SECONDS", 900)),
		SweepInterval:     time.Second * time.Duration(getEnvInt("SWEEP_INTERVAL_SECONDS", 60)),

		GeoIPDBPath:   os.Getenv("GEOIP_DB_PATH"),
		DefaultLocale: getEnv("DEFAULT_LOCALE", "en"),

		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 30),

		APIJWTSecret:   os.Getenv("API_JWT_SECRET"),
		AllowedOrigins: splitCSV(getEnv("ALLOWED_ORIGINS", "*")),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	// The storage thresholds are tuned against the target datastore's
	// statement size limit; refuse orderings that would make the tier
	// decision ambiguous.
	if cfg.ArtifactInlineThreshold <= 0 || cfg.ArtifactChunkThreshold <= cfg.ArtifactInlineThreshold {
		return nil, fmt.Errorf("ARTIFACT_CHUNK_THRESHOLD must be greater than ARTIFACT_INLINE_THRESHOLD")
	}
	if cfg.ArtifactChunkSize <= 0 || cfg.ArtifactChunkSize > cfg.ArtifactChunkThreshold {
		return nil, fmt.Errorf("ARTIFACT_CHUNK_SIZE must be positive and at most ARTIFACT_CHUNK_THRESHOLD")
	}
	if cfg.PollInitialDelay <= 0 || cfg.PollMaxDelay < cfg.PollInitialDelay {
		return nil, fmt.Errorf("POLL_MAX_DELAY_MS must be at least POLL_INITIAL_DELAY_MS")
	}
	// A job legitimately waiting on the provider may sit in awaiting_external
	// for the whole poll budget; reclaiming it earlier would double-run it.
	if cfg.JobStaleAfter <= cfg.PollBudget {
		return nil, fmt.Errorf("JOB_STALE_AFTER_SECONDS must exceed POLL_BUDGET_SECONDS")
	}

	return cfg, nil
}

func splitCSV(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
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
