package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("DLRS_CACHE_ENABLED", "false")
	t.Setenv("DLRS_CACHE_BACKEND", "Redis")
	t.Setenv("DLRS_CACHE_TTL", "30")
	t.Setenv("DLRS_CACHE_MAX_SIZE", "50")
	t.Setenv("DLRS_CACHE_REDIS_URL", "redis://cache:6379/1")

	cfg := ConfigFromEnv()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, BackendRedis, cfg.Backend)
	assert.Equal(t, 30*time.Second, cfg.TTL)
	assert.Equal(t, 50, cfg.MaxSize)
	assert.Equal(t, "redis://cache:6379/1", cfg.RedisURL)
}

func TestConfigFromEnv_IgnoresMalformed(t *testing.T) {
	t.Setenv("DLRS_CACHE_TTL", "soon")
	t.Setenv("DLRS_CACHE_MAX_SIZE", "-4")

	cfg := ConfigFromEnv()
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"defaults", DefaultConfig(), false},
		{"disabled ignores backend", Config{Enabled: false, Backend: "memcached"}, false},
		{"redis without url", Config{Enabled: true, Backend: BackendRedis}, true},
		{"redis with url", Config{Enabled: true, Backend: BackendRedis, RedisURL: "redis://x:6379"}, false},
		{"unknown backend", Config{Enabled: true, Backend: "memcached"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
