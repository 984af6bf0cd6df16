package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultValues(t *testing.T) {
	os.Clearenv()

	cfg, err := Load()
	require.NoError(t, err)
	assert.NotNil(t, cfg)

	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "postgres", cfg.Database.User)
	assert.Equal(t, "postgres", cfg.Database.Password)
	assert.Equal(t, "hemogram", cfg.Database.Database)
	assert.Equal(t, "disable", cfg.Database.SSLMode)

	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "", cfg.Redis.Password)
	assert.Equal(t, 0, cfg.Redis.DB)

	assert.Equal(t, "memory", cfg.Dedup.Backend)
	assert.Equal(t, 5*time.Minute, cfg.Dedup.Window)
	assert.Equal(t, "hemogram:processed:", cfg.Dedup.KeyPrefix)

	assert.Equal(t, "female", cfg.Reference.UnknownSexBand)

	assert.Equal(t, "http://localhost:8080/fhir", cfg.FHIR.BaseURL)
	assert.False(t, cfg.FHIR.Subscribe)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	os.Clearenv()
	os.Setenv("DB_HOST", "test-host")
	os.Setenv("DB_PORT", "5433")
	os.Setenv("DB_USER", "test-user")
	os.Setenv("DB_PASSWORD", "test-password")
	os.Setenv("DB_NAME", "test-db")
	os.Setenv("REDIS_ADDR", "test-redis:6380")
	os.Setenv("DEDUP_BACKEND", "redis")
	os.Setenv("DEDUP_WINDOW_SECONDS", "120")
	os.Setenv("HB_UNKNOWN_SEX_BAND", "male")
	os.Setenv("FHIR_BASE_URL", "http://fhir:8080/fhir")
	os.Setenv("FHIR_SUBSCRIBE", "true")
	os.Setenv("FHIR_CALLBACK_URL", "http://monitor:9090/notify")
	os.Setenv("LOG_LEVEL", "debug")
	os.Setenv("LOG_FORMAT", "console")

	cfg, err := Load()
	require.NoError(t, err)
	assert.NotNil(t, cfg)

	assert.Equal(t, "test-host", cfg.Database.Host)
	assert.Equal(t, 5433, cfg.Database.Port)
	assert.Equal(t, "test-user", cfg.Database.User)
	assert.Equal(t, "test-password", cfg.Database.Password)
	assert.Equal(t, "test-db", cfg.Database.Database)

	assert.Equal(t, "test-redis:6380", cfg.Redis.Addr)

	assert.Equal(t, "redis", cfg.Dedup.Backend)
	assert.Equal(t, 2*time.Minute, cfg.Dedup.Window)

	assert.Equal(t, "male", cfg.Reference.UnknownSexBand)

	assert.Equal(t, "http://fhir:8080/fhir", cfg.FHIR.BaseURL)
	assert.True(t, cfg.FHIR.Subscribe)
	assert.Equal(t, "http://monitor:9090/notify", cfg.FHIR.CallbackURL)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)

	os.Clearenv()
}

func TestLoad_InvalidDedupBackend(t *testing.T) {
	os.Clearenv()
	os.Setenv("DEDUP_BACKEND", "memcached")

	cfg, err := Load()
	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "DEDUP_BACKEND")

	os.Clearenv()
}

func TestLoad_InvalidUnknownSexBand(t *testing.T) {
	os.Clearenv()
	os.Setenv("HB_UNKNOWN_SEX_BAND", "other")

	cfg, err := Load()
	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "HB_UNKNOWN_SEX_BAND")

	os.Clearenv()
}

func TestLoad_SubscribeRequiresCallback(t *testing.T) {
	os.Clearenv()
	os.Setenv("FHIR_SUBSCRIBE", "true")

	cfg, err := Load()
	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "FHIR_CALLBACK_URL")

	os.Clearenv()
}

func TestGetEnv(t *testing.T) {
	os.Clearenv()
	value := getEnv("TEST_KEY", "default-value")
	assert.Equal(t, "default-value", value)

	os.Setenv("TEST_KEY", "env-value")
	value = getEnv("TEST_KEY", "default-value")
	assert.Equal(t, "env-value", value)

	os.Unsetenv("TEST_KEY")
}

func TestGetEnvInt(t *testing.T) {
	os.Clearenv()
	assert.Equal(t, 42, getEnvInt("TEST_INT", 42))

	os.Setenv("TEST_INT", "7")
	assert.Equal(t, 7, getEnvInt("TEST_INT", 42))

	os.Setenv("TEST_INT", "not-a-number")
	assert.Equal(t, 42, getEnvInt("TEST_INT", 42))

	os.Unsetenv("TEST_INT")
}
