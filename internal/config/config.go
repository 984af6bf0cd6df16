package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// DatabaseConfig holds the Postgres connection settings.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// GetDSN builds the lib/pq connection string.
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// RedisConfig holds the Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Config is the full service configuration, loaded from environment
// variables with defaults.
type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig

	// Dedup controls the duplicate-notification window.
	Dedup struct {
		Backend   string        // "memory" or "redis"
		Window    time.Duration // default 5 minutes
		KeyPrefix string        // redis key prefix for marks
	}

	// Reference controls band resolution policy.
	Reference struct {
		// UnknownSexBand picks the sex-split band applied when the subject's
		// sex is unknown: "female" (default, lower thresholds) or "male".
		UnknownSexBand string
	}

	// FHIR holds the upstream FHIR server settings.
	FHIR struct {
		BaseURL     string // e.g. "http://hapi-fhir:8080/fhir"
		CallbackURL string // endpoint the server pushes notifications to
		Subscribe   bool   // register the subscription at startup
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load reads the configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = getEnvInt("DB_PORT", 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "hemogram")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)

	cfg.Dedup.Backend = getEnv("DEDUP_BACKEND", "memory")
	cfg.Dedup.Window = time.Duration(getEnvInt("DEDUP_WINDOW_SECONDS", 300)) * time.Second
	cfg.Dedup.KeyPrefix = getEnv("DEDUP_KEY_PREFIX", "hemogram:processed:")

	cfg.Reference.UnknownSexBand = getEnv("HB_UNKNOWN_SEX_BAND", "female")

	cfg.FHIR.BaseURL = getEnv("FHIR_BASE_URL", "http://localhost:8080/fhir")
	cfg.FHIR.CallbackURL = getEnv("FHIR_CALLBACK_URL", "")
	cfg.FHIR.Subscribe = getEnv("FHIR_SUBSCRIBE", "false") == "true"

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	if cfg.Dedup.Backend != "memory" && cfg.Dedup.Backend != "redis" {
		return nil, fmt.Errorf("invalid DEDUP_BACKEND: %s", cfg.Dedup.Backend)
	}
	if cfg.Reference.UnknownSexBand != "female" && cfg.Reference.UnknownSexBand != "male" {
		return nil, fmt.Errorf("invalid HB_UNKNOWN_SEX_BAND: %s", cfg.Reference.UnknownSexBand)
	}
	if cfg.FHIR.Subscribe && cfg.FHIR.CallbackURL == "" {
		return nil, fmt.Errorf("FHIR_CALLBACK_URL is required when FHIR_SUBSCRIBE=true")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
