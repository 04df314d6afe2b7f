package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration.
// Values are loaded from environment variables with sensible defaults.
type Config struct {
	// Server
	Port     int
	LogLevel string

	// External services
	MarketplaceAPIURL string // REST collaborator base URL
	RealtimeURL       string // server-push endpoint, reserved for the non-ticker source

	// HTTP client
	HTTPTimeout time.Duration

	// Resilience
	MaxRetries     int
	InitialBackoff time.Duration
	MaxConcurrency int

	// Circuit breaker
	BreakerMinRequests  int
	BreakerFailureRatio float64
	BreakerInterval     time.Duration
	BreakerTimeout      time.Duration

	// Rate limiting
	RateLimitRPS   float64
	RateLimitBurst int

	// Caching / refresh
	CacheTTL    time.Duration
	RefreshSpec string // cron spec for entity cache refresh, "" disables

	// Timers
	NotifyInterval time.Duration // synthetic notification period
	DeliveryTick   time.Duration // carrier progress period per tracking view

	// JWT / Auth
	JWTSecret string
	TokenFile string // durable "remember me" token store

	// Observability
	OTLPEndpoint string
}

// Load reads configuration from environment variables with defaults.
func Load() *Config {
	return &Config{
		Port:     getEnvInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		MarketplaceAPIURL: getEnv("MARKETPLACE_API_URL", "http://localhost:8081"),
		RealtimeURL:       getEnv("REALTIME_URL", "ws://localhost:8081/ws"),

		HTTPTimeout: getEnvDuration("HTTP_TIMEOUT", 10*time.Second),

		MaxRetries:     getEnvInt("MAX_RETRIES", 3),
		InitialBackoff: getEnvDuration("INITIAL_BACKOFF", 100*time.Millisecond),
		MaxConcurrency: getEnvInt("MAX_CONCURRENCY", 50),

		BreakerMinRequests:  getEnvInt("BREAKER_MIN_REQUESTS", 5),
		BreakerFailureRatio: getEnvFloat("BREAKER_FAILURE_RATIO", 0.6),
		BreakerInterval:     getEnvDuration("BREAKER_INTERVAL", 30*time.Second),
		BreakerTimeout:      getEnvDuration("BREAKER_TIMEOUT", 10*time.Second),

		RateLimitRPS:   getEnvFloat("RATE_LIMIT_RPS", 20),
		RateLimitBurst: getEnvInt("RATE_LIMIT_BURST", 40),

		CacheTTL:    getEnvDuration("CACHE_TTL", 5*time.Minute),
		RefreshSpec: getEnv("REFRESH_SPEC", "@every 2m"),

		NotifyInterval: getEnvDuration("NOTIFY_INTERVAL", 45*time.Second),
		DeliveryTick:   getEnvDuration("DELIVERY_TICK", 3*time.Second),

		JWTSecret: getEnv("JWT_SECRET", "surplus-default-dev-secret-change-me"),
		TokenFile: getEnv("TOKEN_FILE", ".tokens.json"),

		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
