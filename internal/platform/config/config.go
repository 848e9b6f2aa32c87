package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config captures everything the composition root needs. Values come from
// the environment with local-development defaults; an empty DatabaseURL,
// RedisURL, or KafkaBrokers selects the in-process fallback for that
// concern.
type Config struct {
	Addr string

	// DatabaseURL selects the Postgres store; empty keeps the in-memory one.
	DatabaseURL string

	// RedisURL backs the intake rate limiter; empty keeps the in-memory one.
	RedisURL string

	// KafkaBrokers enables the analytics producer; empty disables it.
	KafkaBrokers   string
	AnalyticsTopic string

	// IPLookupURL is the best-effort client IP resolver endpoint.
	IPLookupURL string

	IntakeRateLimit  int
	IntakeRateWindow time.Duration
}

// FromEnv builds a Config so main stays lean. A .env file is loaded first
// when present; real environment variables win over it.
func FromEnv() Config {
	_ = godotenv.Load()

	return Config{
		Addr:             getEnv("CONTACTHUB_ADDR", ":8080"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		RedisURL:         os.Getenv("REDIS_URL"),
		KafkaBrokers:     os.Getenv("KAFKA_BROKERS"),
		AnalyticsTopic:   getEnv("ANALYTICS_TOPIC", "contact-form-events"),
		IPLookupURL:      getEnv("IP_LOOKUP_URL", "https://api.ipify.org?format=json"),
		IntakeRateLimit:  getEnvInt("INTAKE_RATE_LIMIT", 5),
		IntakeRateWindow: getEnvDuration("INTAKE_RATE_WINDOW", time.Minute),
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
		if n, err := strconv.Atoi(v); err == nil {
			return n
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
