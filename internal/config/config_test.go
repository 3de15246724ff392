package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultValues(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "release", cfg.GinMode)
	assert.Equal(t, "./data", cfg.DataDir)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 10*time.Minute, cfg.CorpusCacheTTL)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
	assert.False(t, cfg.EnableHSTS)
	assert.True(t, cfg.EnableCompression)
	assert.Equal(t, 60, cfg.RateLimitPerMinute)
	assert.True(t, cfg.AllowAllOrigins())
}

func TestLoad_CustomValues(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("CORPUS_URL", "https://example.org/export.json")
	t.Setenv("CORPUS_CACHE_TTL", "90s")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example ,")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 90*time.Second, cfg.CorpusCacheTTL)
	assert.Equal(t, 2, cfg.RedisDB)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Origins())
	assert.False(t, cfg.AllowAllOrigins())
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		value   string
		wantErr string
	}{
		{"gin mode", "GIN_MODE", "prod", "GIN_MODE must be debug, release or test"},
		{"log format", "LOG_FORMAT", "xml", "LOG_FORMAT must be json or text"},
		{"retry policy", "CORPUS_RETRY_POLICY", "eager", "CORPUS_RETRY_POLICY must be fast, standard or slow"},
		{"relative corpus url", "CORPUS_URL", "/export.json", "CORPUS_URL must be an absolute http(s) URL"},
		{"zero ttl", "CORPUS_CACHE_TTL", "0s", "CORPUS_CACHE_TTL must be positive"},
		{"zero rate limit", "RATE_LIMIT_PER_MINUTE", "0", "RATE_LIMIT_PER_MINUTE must be positive"},
		{"empty origins", "ALLOWED_ORIGINS", " , ", "ALLOWED_ORIGINS must list at least one origin"},
		{"negative redis db", "REDIS_DB", "-1", "REDIS_DB must not be negative"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_MalformedDuration(t *testing.T) {
	t.Setenv("REQUEST_TIMEOUT", "soon")
	_, err := Load()
	assert.Error(t, err)
}
