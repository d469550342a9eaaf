package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"APP_ENV", "ENV", "LOG_LEVEL", "HTTP_ADDR", "DATABASE_URL", "JWT_SECRET", "JWT_ACCESS_TTL",
		"REQUEST_TIMEOUT", "ALLOWED_ORIGINS", "UPLOADS_DIR", "REDIS_ADDR", "REDIS_PASSWORD", "LOCK_TTL",
		"KAFKA_BROKERS", "KAFKA_TOPIC", "REQUIRE_REJECTION_COMMENT", "SNAPSHOT_CACHE_SIZE",
		"CONFLICT_RETRIES", "RECONCILE_SCHEDULE", "RECONCILE_GRACE", "RECONCILE_ENABLED",
	} {
		t.Setenv(k, "")
	}
}

func TestFromEnv_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "dev", cfg.AppEnv)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, 5*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 24*time.Hour, cfg.JWTAccessTTL)
	assert.True(t, cfg.RequireRejectionComment)
	assert.True(t, cfg.ReconcileEnabled)
	assert.Equal(t, 1024, cfg.SnapshotCacheSize)
	assert.Equal(t, 5, cfg.ConflictRetries)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.False(t, cfg.IsProdLike())
}

func TestFromEnv_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")
	t.Setenv("ALLOWED_ORIGINS", "https://nob.kz")
	t.Setenv("REQUEST_TIMEOUT", "2s")
	t.Setenv("REQUIRE_REJECTION_COMMENT", "no")
	t.Setenv("CONFLICT_RETRIES", "0")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, []string{"https://nob.kz"}, cfg.AllowedOrigins)
	assert.Equal(t, 2*time.Second, cfg.RequestTimeout)
	assert.False(t, cfg.RequireRejectionComment)
	assert.Equal(t, 0, cfg.ConflictRetries)
}

func TestFromEnv_Invalid(t *testing.T) {
	cases := map[string]map[string]string{
		"bad duration":          {"REQUEST_TIMEOUT": "soon"},
		"bad int":               {"SNAPSHOT_CACHE_SIZE": "lots"},
		"zero cache":            {"SNAPSHOT_CACHE_SIZE": "0"},
		"lock shorter than req": {"LOCK_TTL": "1s"},
		"prod default secret":   {"APP_ENV": "production", "DATABASE_URL": "postgres://x"},
		"prod short secret":     {"APP_ENV": "release", "JWT_SECRET": "short", "DATABASE_URL": "postgres://x"},
		"prod sqlite":           {"APP_ENV": "prod", "JWT_SECRET": "0123456789abcdef0123456789abcdef"},
		"negative retries":      {"CONFLICT_RETRIES": "-1"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := FromEnv()
			assert.Error(t, err)
		})
	}
}

func TestFromEnv_ProdAccepted(t *testing.T) {
	clearEnv(t)
	t.Setenv("APP_ENV", "Production")
	t.Setenv("JWT_SECRET", "0123456789abcdef0123456789abcdef")
	t.Setenv("DATABASE_URL", "postgres://nob:nob@db:5432/nob?sslmode=disable")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.True(t, cfg.IsProdLike())
}
