package infra

import (
	"os"
	"strconv"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string
	StoragePath string

	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string
	OpenAICost    float64

	AnthropicAPIKey  string
	AnthropicModel   string
	AnthropicBaseURL string
	AnthropicCost    float64

	GeminiAPIKey  string
	GeminiModel   string
	GeminiBaseURL string
	GeminiCost    float64

	WorkerCount         int
	MaxAttempts         int
	JobTimeout          time.Duration
	ProviderTimeout     time.Duration
	QueueLease          time.Duration
	BackoffBase         time.Duration
	BackoffCap          time.Duration
	MaxProviderSwitches int
	FailureThreshold    int
	ProviderCooldown    time.Duration
	ReservationGrace    time.Duration
	ArtifactTTL         time.Duration
	JanitorInterval     time.Duration

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int

	WorkerMetricsPort string
}

// LoadConfig loads configuration from environment variables and applies
// defaults where needed. DATABASE_URL is optional: without it the service
// runs on in-memory stores, which is only suitable for development.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:      getEnv("APP_ENV", "development"),
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		StoragePath: getEnv("STORAGE_PATH", "./storage"),

		OpenAIAPIKey:  os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:   getEnv("OPENAI_MODEL", "gpt-4o"),
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAICost:    getEnvFloat("OPENAI_COST_PER_CALL", 0.25),

		AnthropicAPIKey:  os.Getenv("ANTHROPIC_API_KEY"),
		AnthropicModel:   getEnv("ANTHROPIC_MODEL", "claude-3-5-sonnet-20241022"),
		AnthropicBaseURL: getEnv("ANTHROPIC_BASE_URL", "https://api.anthropic.com"),
		AnthropicCost:    getEnvFloat("ANTHROPIC_COST_PER_CALL", 0.25),

		GeminiAPIKey:  os.Getenv("GEMINI_API_KEY"),
		GeminiModel:   getEnv("GEMINI_MODEL", "gemini-1.5-flash"),
		GeminiBaseURL: getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		GeminiCost:    getEnvFloat("GEMINI_COST_PER_CALL", 0.10),

		WorkerCount:         getEnvInt("WORKER_COUNT", 4),
		MaxAttempts:         getEnvInt("JOB_MAX_ATTEMPTS", 3),
		JobTimeout:          getEnvDuration("JOB_TIMEOUT", 3*time.Minute),
		ProviderTimeout:     getEnvDuration("PROVIDER_TIMEOUT", 60*time.Second),
		QueueLease:          getEnvDuration("QUEUE_LEASE", 5*time.Minute),
		BackoffBase:         getEnvDuration("BACKOFF_BASE", 2*time.Second),
		BackoffCap:          getEnvDuration("BACKOFF_CAP", 60*time.Second),
		MaxProviderSwitches: getEnvInt("MAX_PROVIDER_SWITCHES", 3),
		FailureThreshold:    getEnvInt("PROVIDER_FAILURE_THRESHOLD", 3),
		ProviderCooldown:    getEnvDuration("PROVIDER_COOLDOWN", 2*time.Minute),
		ReservationGrace:    getEnvDuration("RESERVATION_GRACE", 30*time.Minute),
		ArtifactTTL:         getEnvDuration("ARTIFACT_TTL", 72*time.Hour),
		JanitorInterval:     getEnvDuration("JANITOR_INTERVAL", time.Minute),

		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 30),

		WorkerMetricsPort: getEnv("WORKER_METRICS_PORT", "9090"),
	}

	return cfg, nil
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

func getEnvFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
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
