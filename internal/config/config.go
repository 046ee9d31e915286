package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds application configuration
type Config struct {
	ServerPort       string
	DatabaseType     string
	DatabasePath     string
	DatabaseURL      string
	MigrationsPath   string
	BadgeCatalogPath string

	// Empty secret disables API auth (development mode)
	APISecret string

	AWSRegion    string
	SESFromEmail string
	SESFromName  string
	AppBaseURL   string

	RateLimit  int
	RateWindow time.Duration

	WSThrottle time.Duration
}

// Load reads configuration from environment variables with sensible defaults
func Load() *Config {
	return &Config{
		ServerPort:       getEnv("PORT", "8080"),
		DatabaseType:     getEnv("DB_TYPE", "sqlite"),
		DatabasePath:     getEnv("DB_PATH", "./ecopoints.db"),
		DatabaseURL:      getEnv("DATABASE_URL", ""),
		MigrationsPath:   getEnv("MIGRATIONS_PATH", "./migrations"),
		BadgeCatalogPath: getEnv("BADGE_CATALOG_PATH", "./badges.yaml"),
		APISecret:        getEnv("API_SECRET", ""),
		AWSRegion:        getEnv("AWS_REGION", "us-east-1"),
		SESFromEmail:     getEnv("SES_FROM_EMAIL", ""),
		SESFromName:      getEnv("SES_FROM_NAME", "EcoPoints"),
		AppBaseURL:       getEnv("APP_BASE_URL", "http://localhost:8080"),
		RateLimit:        getEnvInt("RATE_LIMIT", 60),
		RateWindow:       getEnvDuration("RATE_WINDOW", time.Minute),
		WSThrottle:       getEnvDuration("WS_THROTTLE", 250*time.Millisecond),
	}
}

// getEnv reads an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
