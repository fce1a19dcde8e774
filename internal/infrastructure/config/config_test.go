package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	// Run from an empty directory so no portal.toml or .env is picked up.
	t.Chdir(t.TempDir())

	for _, key := range []string{
		"PORTAL_APP_ENV", "PORTAL_APP_ROLE", "PORTAL_API_BASE_URL", "PORTAL_API_TIMEOUT",
		"PORTAL_SESSION_STORE", "PORTAL_SESSION_ENCRYPTION_KEY", "PORTAL_LOG_FORMAT", LegacyBaseURLEnv,
		"PORTAL_TELEMETRY_OTLP_ENDPOINT", "PORTAL_TELEMETRY_SAMPLING_RATIO",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	t.Run("loads default values when env vars not set", func(t *testing.T) {
		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "development", cfg.App.Env)
		assert.Equal(t, "http://localhost:8000/api", cfg.API.BaseURL)
		assert.Equal(t, 10*time.Second, cfg.API.Timeout)
		assert.Equal(t, "portal-client/1.0", cfg.API.UserAgent)
		assert.Equal(t, 1, cfg.API.RateBurst)
		assert.Equal(t, "file", cfg.Session.Store)
		assert.Equal(t, ".portal/credentials.json", cfg.Session.FilePath)
		assert.Equal(t, "localhost:6379", cfg.Redis.RedisAddr())
		assert.Equal(t, "portal:credentials:", cfg.Redis.KeyPrefix)
		assert.Equal(t, "console", cfg.Log.Format)
		assert.Equal(t, "stderr", cfg.Log.Output)
		assert.Equal(t, 30*time.Second, cfg.Poll.Interval)
		assert.Equal(t, ":9464", cfg.Metrics.Addr)
		assert.Empty(t, cfg.Telemetry.OTLPEndpoint)
		assert.Equal(t, 1.0, cfg.Telemetry.SamplingRatio)
		assert.Equal(t, "portalctl", cfg.Telemetry.ServiceName)
	})

	t.Run("loads values from environment variables with PORTAL prefix", func(t *testing.T) {
		t.Setenv("PORTAL_API_BASE_URL", "https://portal.example.edu/api/")
		t.Setenv("PORTAL_API_TIMEOUT", "3s")
		t.Setenv("PORTAL_APP_ROLE", "alumni")
		t.Setenv("PORTAL_SESSION_STORE", "memory")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "https://portal.example.edu/api", cfg.API.BaseURL)
		assert.Equal(t, 3*time.Second, cfg.API.Timeout)
		assert.Equal(t, "alumni", cfg.App.Role)
		assert.Equal(t, "memory", cfg.Session.Store)
	})

	t.Run("falls back to the legacy base URL variable", func(t *testing.T) {
		t.Setenv(LegacyBaseURLEnv, "http://legacy.local:9000/api")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "http://legacy.local:9000/api", cfg.API.BaseURL)
	})

	t.Run("PORTAL_API_BASE_URL wins over the legacy variable", func(t *testing.T) {
		t.Setenv(LegacyBaseURLEnv, "http://legacy.local:9000/api")
		t.Setenv("PORTAL_API_BASE_URL", "http://primary.local/api")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "http://primary.local/api", cfg.API.BaseURL)
	})

	t.Run("rejects an unknown role", func(t *testing.T) {
		t.Setenv("PORTAL_APP_ROLE", "janitor")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Role")
	})

	t.Run("rejects a sampling ratio above one", func(t *testing.T) {
		t.Setenv("PORTAL_TELEMETRY_SAMPLING_RATIO", "1.5")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "SamplingRatio")
	})

	t.Run("rejects an unknown session store", func(t *testing.T) {
		t.Setenv("PORTAL_SESSION_STORE", "cookie")

		_, err := Load()
		require.Error(t, err)
	})
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	os.Unsetenv("PORTAL_API_BASE_URL")
	os.Unsetenv(LegacyBaseURLEnv)

	path := filepath.Join(dir, "portal.toml")
	content := `
[api]
base_url = "https://files.example.edu/api"
timeout = "5s"

[poll]
interval = "1m"

[log]
format = "json"

[telemetry]
otlp_endpoint = "otel-collector:4317"
insecure = true
sampling_ratio = 0.25
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "https://files.example.edu/api", cfg.API.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.API.Timeout)
	assert.Equal(t, time.Minute, cfg.Poll.Interval)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "otel-collector:4317", cfg.Telemetry.OTLPEndpoint)
	assert.True(t, cfg.Telemetry.Insecure)
	assert.Equal(t, 0.25, cfg.Telemetry.SamplingRatio)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("PORTAL_API_BASE_URL", "")
	os.Unsetenv("PORTAL_API_BASE_URL")
	t.Setenv(LegacyBaseURLEnv, "")
	os.Unsetenv(LegacyBaseURLEnv)

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("VITE_API_BASE_URL=http://dotenv.local/api\n"), 0o600))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "http://dotenv.local/api", cfg.API.BaseURL)
}

func TestValidate_Production(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{
			name: "valid production config",
			modify: func(c *Config) {
				c.API.BaseURL = "https://portal.example.edu/api"
				c.Session.EncryptionKey = "correct horse battery staple"
			},
		},
		{
			name: "plain http base url",
			modify: func(c *Config) {
				c.Session.EncryptionKey = "k"
			},
			wantErr: "https",
		},
		{
			name: "unencrypted file store",
			modify: func(c *Config) {
				c.API.BaseURL = "https://portal.example.edu/api"
			},
			wantErr: "encryption_key",
		},
		{
			name: "redis store needs no key",
			modify: func(c *Config) {
				c.API.BaseURL = "https://portal.example.edu/api"
				c.Session.Store = "redis"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{App: AppConfig{Env: "production"}}
			applyDefaults(cfg)
			tt.modify(cfg)

			err := cfg.validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
