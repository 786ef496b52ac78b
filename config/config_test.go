package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("ARTIFACT_SIMULATE_ON_FAILURE", "")
	cfg := LoadConfig()

	assert.Equal(t, "8080", cfg.AppPort)
	assert.Equal(t, []string{"doc"}, cfg.DoctorWalletMarkers)
	assert.Equal(t, 2*time.Minute, cfg.ListCacheTTL)
	assert.Equal(t, int64(20<<20), cfg.MaxUploadBytes)
	assert.False(t, cfg.SimulateOnFailure)
	assert.True(t, cfg.RateLimitOnErr)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("APP_PORT", "9090")
	t.Setenv("DOCTOR_WALLET_MARKERS", " Doc , clinic,,")
	t.Setenv("ARTIFACT_LIST_CACHE_TTL", "45s")
	t.Setenv("ARTIFACT_CREATE_LIMIT", "5")
	t.Setenv("ARTIFACT_SIMULATE_ON_FAILURE", "true")
	t.Setenv("REDIS_DB", "not-a-number")

	cfg := LoadConfig()

	assert.Equal(t, "9090", cfg.AppPort)
	assert.Equal(t, []string{"Doc", "clinic"}, cfg.DoctorWalletMarkers)
	assert.Equal(t, 45*time.Second, cfg.ListCacheTTL)
	assert.Equal(t, 5, cfg.CreateLimit)
	assert.True(t, cfg.SimulateOnFailure)
	assert.Equal(t, 0, cfg.RedisDB, "unparsable values fall back to the default")
}
