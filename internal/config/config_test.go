package config_test

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/Egham-7/support-resilience/internal/config"
	"github.com/Egham-7/support-resilience/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_SubstitutesEnvironment(t *testing.T) {
	t.Setenv("SUPPORT_TEST_PORT", "9090")
	t.Setenv("SUPPORT_TEST_EMPTY", "")

	cfg, err := config.Parse([]byte(`
server:
  port: "${SUPPORT_TEST_PORT:-8080}"
  environment: "${SUPPORT_TEST_EMPTY:-staging}"
  log_level: "${SUPPORT_TEST_UNSET}"
`))
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "staging", cfg.Server.Environment)
	assert.Equal(t, "info", cfg.Server.LogLevel, "an unset variable without default falls back to the built-in default")
}

func TestParse_AppliesDefaults(t *testing.T) {
	t.Setenv(config.EnvRemoteCacheURL, "")
	t.Setenv(config.EnvRemoteCacheToken, "")

	cfg, err := config.Parse([]byte("server:\n  port: \"3000\"\n"))
	require.NoError(t, err)

	assert.Equal(t, "3000", cfg.Server.Port)
	assert.Equal(t, "*", cfg.Server.AllowedOrigins)
	assert.False(t, cfg.IsProduction())
	assert.Equal(t, 300, cfg.Cache.DefaultTTLSeconds)
	assert.Equal(t, 60, cfg.Cache.PromotionTTLSeconds)
	assert.Equal(t, models.DurableBackendFile, cfg.Cache.Durable.Backend)
	assert.Equal(t, 3, cfg.Fallback.CircuitBreaker.FailureThreshold)
	assert.Equal(t, 60000, cfg.Fallback.CircuitBreaker.CooldownMs)
	assert.Equal(t, 0.85, cfg.ResponseCache.SimilarityThreshold)
	assert.Equal(t, []string{"EMERGENCY", "COMPLAINT", "PERSONAL_DATA", "HUMAN_HANDOFF"}, cfg.ResponseCache.BlockedIntents)
	assert.Equal(t, 20, cfg.Conversation.MaxMessages)
	assert.Empty(t, cfg.Cache.Remote.URL)
	assert.Nil(t, cfg.Database)
	assert.NoError(t, cfg.Validate())
}

func TestParse_RemoteCacheFromEnvironment(t *testing.T) {
	t.Setenv(config.EnvRemoteCacheURL, "rediss://cache.internal:6380/0")
	t.Setenv(config.EnvRemoteCacheToken, "s3cret")

	cfg, err := config.Parse([]byte("cache:\n  default_ttl_seconds: 120\n"))
	require.NoError(t, err)
	assert.Equal(t, "rediss://cache.internal:6380/0", cfg.Cache.Remote.URL)
	assert.Equal(t, "s3cret", cfg.Cache.Remote.Token)
	assert.Equal(t, 120, cfg.Cache.DefaultTTLSeconds)

	cfg, err = config.Parse([]byte("cache:\n  remote:\n    url: redis://localhost:6379\n"))
	require.NoError(t, err)
	assert.Equal(t, "redis://localhost:6379", cfg.Cache.Remote.URL, "the file wins over the environment")
}

func TestParse_MalformedYAML(t *testing.T) {
	_, err := config.Parse([]byte("server: [unterminated"))
	assert.Error(t, err)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: \"7070\"\n"), 0o600))
	cfg, err := config.LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "7070", cfg.Server.Port)

	_, err = config.LoadFromFile(filepath.Join(dir, "missing.yaml"))
	assert.True(t, errors.Is(err, fs.ErrNotExist))

	_, err = config.LoadFromFile(filepath.Join(dir, "config.json"))
	assert.ErrorContains(t, err, "only .yaml and .yml")

	_, err = config.LoadFromFile("../outside/config.yaml")
	assert.ErrorContains(t, err, "path traversal")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		missing []string
		invalid []string
	}{
		{
			name:   "defaults are valid",
			mutate: func(*config.Config) {},
		},
		{
			name:    "missing port",
			mutate:  func(c *config.Config) { c.Server.Port = "" },
			missing: []string{"server.port"},
		},
		{
			name:    "negative ttl",
			mutate:  func(c *config.Config) { c.Cache.DefaultTTLSeconds = -1 },
			invalid: []string{"cache.default_ttl_seconds must not be negative"},
		},
		{
			name:    "threshold out of range",
			mutate:  func(c *config.Config) { c.ResponseCache.SimilarityThreshold = 1.5 },
			invalid: []string{"response_cache.similarity_threshold must be within [0, 1]"},
		},
		{
			name: "length bounds inverted",
			mutate: func(c *config.Config) {
				c.ResponseCache.MinMessageLength = 600
			},
			invalid: []string{"response_cache.min_message_length exceeds max_message_length"},
		},
		{
			name:    "database backend without database",
			mutate:  func(c *config.Config) { c.Cache.Durable.Backend = models.DurableBackendDatabase },
			missing: []string{"cache.durable.database"},
		},
		{
			name:    "unknown backend",
			mutate:  func(c *config.Config) { c.Cache.Durable.Backend = "s3" },
			invalid: []string{`cache.durable.backend "s3" is not supported`},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.missing == nil && tt.invalid == nil {
				assert.NoError(t, err)
				return
			}
			var verr *config.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.missing, verr.MissingFields)
			assert.Equal(t, tt.invalid, verr.InvalidFields)
		})
	}
}

func TestDurableDatabase_PrefersCacheSpecific(t *testing.T) {
	cfg := config.Default()
	primary := &models.DatabaseConfig{Type: models.SQLite, FilePath: "support.db"}
	cfg.Database = primary
	assert.Same(t, primary, cfg.DurableDatabase())

	dedicated := &models.DatabaseConfig{Type: models.SQLite, FilePath: "cache.db"}
	cfg.Cache.Durable.Database = dedicated
	assert.Same(t, dedicated, cfg.DurableDatabase())

	cfg.Cache.Durable.Backend = models.DurableBackendDatabase
	assert.NoError(t, cfg.Validate())
}

func TestGetNormalizedLogLevel(t *testing.T) {
	cfg := config.Default()
	cfg.Server.LogLevel = "DEBUG"
	assert.Equal(t, "debug", cfg.GetNormalizedLogLevel())
}
