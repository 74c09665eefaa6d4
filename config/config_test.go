package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv("UPSTREAM_URL", "")
	t.Setenv("HTTP_ADDR", "")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, ":8000", cfg.HTTPAddr)
	assert.Equal(t, "http://localhost:5000", cfg.Upstream.URL)
	assert.Equal(t, 120*time.Second, cfg.Upstream.ChatTimeout)
	assert.Equal(t, 10*time.Second, cfg.Upstream.HealthTimeout)
	assert.True(t, cfg.CORS.AllowCredentials)
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
http_addr: ":9000"
upstream:
  url: "https://example.ngrok.app"
  chat_timeout: 30s
rate_limit:
  backend: redis
  redis:
    addr: "redis:6379"
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.HTTPAddr)
	assert.Equal(t, "https://example.ngrok.app", cfg.Upstream.URL)
	assert.Equal(t, 30*time.Second, cfg.Upstream.ChatTimeout)
	// 未设置的字段保持默认值
	assert.Equal(t, 10*time.Second, cfg.Upstream.HealthTimeout)
	assert.Equal(t, "redis", cfg.RateLimit.Backend)
	assert.Equal(t, "redis:6379", cfg.RateLimit.Redis.Addr)
	assert.Equal(t, 200, cfg.RateLimit.Burst)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("UPSTREAM_URL", "http://colab:8080")
	t.Setenv("HTTP_ADDR", ":7000")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "http://colab:8080", cfg.Upstream.URL)
	assert.Equal(t, ":7000", cfg.HTTPAddr)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("upstream: [unclosed"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"empty upstream url", func(c *Config) { c.Upstream.URL = "" }, true},
		{"zero chat timeout", func(c *Config) { c.Upstream.ChatTimeout = 0 }, true},
		{"unknown backend", func(c *Config) { c.RateLimit.Backend = "memcached" }, true},
		{"unknown backend but disabled", func(c *Config) {
			c.RateLimit.Enabled = false
			c.RateLimit.Backend = "memcached"
		}, false},
		{"zero burst", func(c *Config) { c.RateLimit.Burst = 0 }, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
