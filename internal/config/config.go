package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/Egham-7/support-resilience/internal/models"

	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables consulted when the YAML leaves the remote cache unset
const (
	EnvRemoteCacheURL   = "CACHE_REDIS_URL"
	EnvRemoteCacheToken = "CACHE_REDIS_TOKEN"
)

// Config represents the complete application configuration
type Config struct {
	Server        models.ServerConfig        `yaml:"server"`
	Cache         models.TieredCacheConfig   `yaml:"cache"`
	Fallback      models.FallbackConfig      `yaml:"fallback"`
	ResponseCache models.ResponseCacheConfig `yaml:"response_cache"`
	Conversation  models.ConversationConfig  `yaml:"conversation"`
	Database      *models.DatabaseConfig     `yaml:"database,omitempty"`
}

// Default returns a configuration with every default applied and no
// external dependencies configured
func Default() *Config {
	c := &Config{}
	c.ApplyDefaults()
	return c
}

// LoadFromFile loads configuration from a YAML file with environment variable substitution
func LoadFromFile(configPath string) (*Config, error) {
	// Validate and clean the file path to prevent directory traversal
	cleanPath := filepath.Clean(configPath)

	if strings.Contains(cleanPath, "..") {
		return nil, fmt.Errorf("invalid config path: path traversal not allowed")
	}

	ext := filepath.Ext(cleanPath)
	if ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("invalid config file: only .yaml and .yml files are allowed")
	}

	data, err := os.ReadFile(cleanPath) // #nosec G304 - path is validated above
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", cleanPath, err)
	}

	return Parse(data)
}

// Parse decodes YAML content after environment substitution, then applies
// environment fallbacks and defaults
func Parse(data []byte) (*Config, error) {
	content := substituteEnvVars(string(data))

	var config Config
	if err := yaml.Unmarshal([]byte(content), &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	config.ApplyEnv()
	config.ApplyDefaults()
	return &config, nil
}

// LoadEnvFiles loads environment variables from .env files in order of precedence
// Loads files in the order provided (first has highest priority)
func LoadEnvFiles(envFiles []string) {
	for _, envFile := range envFiles {
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Load(envFile); err == nil {
				fiberlog.Infof("Loaded environment variables from %s", envFile)
			}
		}
	}
}

// New creates a new Config instance by loading from the specified config file path
func New(configPath string) (*Config, error) {
	return LoadFromFile(configPath)
}

var envPattern = regexp.MustCompile(`\$\{([^}:]+)(?::(-[^}]*))?\}`)

// substituteEnvVars replaces ${VAR_NAME} and ${VAR_NAME:-default} patterns with environment variables
func substituteEnvVars(content string) string {
	return envPattern.ReplaceAllStringFunc(content, func(match string) string {
		submatches := envPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		varName := submatches[1]
		defaultValue := ""
		if len(submatches) > 2 && submatches[2] != "" {
			// Remove the leading '-' from default value
			defaultValue = strings.TrimPrefix(submatches[2], "-")
		}

		if value := os.Getenv(varName); value != "" {
			return value
		}
		return defaultValue
	})
}

// ApplyEnv fills the remote cache connection from the environment when the
// file does not set it
func (c *Config) ApplyEnv() {
	if c.Cache.Remote.URL == "" {
		c.Cache.Remote.URL = os.Getenv(EnvRemoteCacheURL)
	}
	if c.Cache.Remote.Token == "" {
		c.Cache.Remote.Token = os.Getenv(EnvRemoteCacheToken)
	}
}

// ApplyDefaults fills every unset knob with its default
func (c *Config) ApplyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Server.AllowedOrigins == "" {
		c.Server.AllowedOrigins = "*"
	}
	if c.Server.Environment == "" {
		c.Server.Environment = "development"
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.Server.ShutdownTimeoutSeconds == 0 {
		c.Server.ShutdownTimeoutSeconds = 10
	}

	cacheDefaults := models.DefaultTieredCacheConfig()
	if c.Cache.Remote.KeyPrefix == "" {
		c.Cache.Remote.KeyPrefix = cacheDefaults.Remote.KeyPrefix
	}
	if c.Cache.Remote.PoolSize == 0 {
		c.Cache.Remote.PoolSize = cacheDefaults.Remote.PoolSize
	}
	if c.Cache.Durable.Backend == "" {
		c.Cache.Durable.Backend = cacheDefaults.Durable.Backend
	}
	if c.Cache.Durable.Directory == "" {
		c.Cache.Durable.Directory = cacheDefaults.Durable.Directory
	}
	if c.Cache.DefaultTTLSeconds == 0 {
		c.Cache.DefaultTTLSeconds = cacheDefaults.DefaultTTLSeconds
	}
	if c.Cache.PromotionTTLSeconds == 0 {
		c.Cache.PromotionTTLSeconds = cacheDefaults.PromotionTTLSeconds
	}
	if c.Cache.LayerTimeoutMs == 0 {
		c.Cache.LayerTimeoutMs = cacheDefaults.LayerTimeoutMs
	}
	if c.Cache.CleanupIntervalSeconds == 0 {
		c.Cache.CleanupIntervalSeconds = cacheDefaults.CleanupIntervalSeconds
	}
	if c.Cache.CleanupBatchSize == 0 {
		c.Cache.CleanupBatchSize = cacheDefaults.CleanupBatchSize
	}

	fallbackDefaults := models.DefaultFallbackConfig()
	if c.Fallback.TimeoutMs == 0 {
		c.Fallback.TimeoutMs = fallbackDefaults.TimeoutMs
	}
	if c.Fallback.CacheTTLSeconds == 0 {
		c.Fallback.CacheTTLSeconds = fallbackDefaults.CacheTTLSeconds
	}
	if c.Fallback.CircuitBreaker.FailureThreshold == 0 {
		c.Fallback.CircuitBreaker.FailureThreshold = fallbackDefaults.CircuitBreaker.FailureThreshold
	}
	if c.Fallback.CircuitBreaker.CooldownMs == 0 {
		c.Fallback.CircuitBreaker.CooldownMs = fallbackDefaults.CircuitBreaker.CooldownMs
	}

	rcDefaults := models.DefaultResponseCacheConfig()
	if c.ResponseCache.TTLSeconds == 0 {
		c.ResponseCache.TTLSeconds = rcDefaults.TTLSeconds
	}
	if c.ResponseCache.MaxEntries == 0 {
		c.ResponseCache.MaxEntries = rcDefaults.MaxEntries
	}
	if c.ResponseCache.SimilarityThreshold == 0 {
		c.ResponseCache.SimilarityThreshold = rcDefaults.SimilarityThreshold
	}
	if c.ResponseCache.MinConfidence == 0 {
		c.ResponseCache.MinConfidence = rcDefaults.MinConfidence
	}
	if c.ResponseCache.MinMessageLength == 0 {
		c.ResponseCache.MinMessageLength = rcDefaults.MinMessageLength
	}
	if c.ResponseCache.MaxMessageLength == 0 {
		c.ResponseCache.MaxMessageLength = rcDefaults.MaxMessageLength
	}
	if c.ResponseCache.BlockedIntents == nil {
		c.ResponseCache.BlockedIntents = rcDefaults.BlockedIntents
	}
	if c.ResponseCache.CleanupIntervalSeconds == 0 {
		c.ResponseCache.CleanupIntervalSeconds = rcDefaults.CleanupIntervalSeconds
	}

	convDefaults := models.DefaultConversationConfig()
	if c.Conversation.MaxMessages == 0 {
		c.Conversation.MaxMessages = convDefaults.MaxMessages
	}
	if c.Conversation.TimeoutSeconds == 0 {
		c.Conversation.TimeoutSeconds = convDefaults.TimeoutSeconds
	}
	if c.Conversation.SummaryMaxChars == 0 {
		c.Conversation.SummaryMaxChars = convDefaults.SummaryMaxChars
	}
	if c.Conversation.CleanupIntervalSeconds == 0 {
		c.Conversation.CleanupIntervalSeconds = convDefaults.CleanupIntervalSeconds
	}
}

// GetNormalizedLogLevel returns the log level in lowercase for consistent comparison
func (c *Config) GetNormalizedLogLevel() string {
	return strings.ToLower(c.Server.LogLevel)
}

// IsProduction returns true if the environment is production
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

// DurableDatabase returns the database backing the durable cache table:
// the cache-specific one if set, otherwise the system of record
func (c *Config) DurableDatabase() *models.DatabaseConfig {
	if c.Cache.Durable.Database != nil {
		return c.Cache.Durable.Database
	}
	return c.Database
}

// Validate checks required fields and value ranges
func (c *Config) Validate() error {
	var missing []string
	var invalid []string

	if c.Server.Port == "" {
		missing = append(missing, "server.port")
	}

	nonNegative := []struct {
		name  string
		value int
	}{
		{"server.shutdown_timeout_seconds", c.Server.ShutdownTimeoutSeconds},
		{"cache.default_ttl_seconds", c.Cache.DefaultTTLSeconds},
		{"cache.memory_max_ttl_seconds", c.Cache.MemoryMaxTTLSeconds},
		{"cache.promotion_ttl_seconds", c.Cache.PromotionTTLSeconds},
		{"cache.remote_max_ttl_seconds", c.Cache.RemoteMaxTTLSeconds},
		{"cache.durable_max_ttl_seconds", c.Cache.DurableMaxTTLSeconds},
		{"cache.layer_timeout_ms", c.Cache.LayerTimeoutMs},
		{"cache.cleanup_interval_seconds", c.Cache.CleanupIntervalSeconds},
		{"cache.cleanup_batch_size", c.Cache.CleanupBatchSize},
		{"fallback.timeout_ms", c.Fallback.TimeoutMs},
		{"fallback.cache_ttl_seconds", c.Fallback.CacheTTLSeconds},
		{"fallback.circuit_breaker.cooldown_ms", c.Fallback.CircuitBreaker.CooldownMs},
		{"response_cache.ttl_seconds", c.ResponseCache.TTLSeconds},
		{"response_cache.max_entries", c.ResponseCache.MaxEntries},
		{"conversation.max_messages", c.Conversation.MaxMessages},
		{"conversation.timeout_seconds", c.Conversation.TimeoutSeconds},
		{"fallback.circuit_breaker.failure_threshold", c.Fallback.CircuitBreaker.FailureThreshold},
	}
	for _, f := range nonNegative {
		if f.value < 0 {
			invalid = append(invalid, f.name+" must not be negative")
		}
	}

	if t := c.ResponseCache.SimilarityThreshold; t < 0 || t > 1 {
		invalid = append(invalid, "response_cache.similarity_threshold must be within [0, 1]")
	}
	if t := c.ResponseCache.MinConfidence; t < 0 || t > 1 {
		invalid = append(invalid, "response_cache.min_confidence must be within [0, 1]")
	}
	if c.ResponseCache.MaxMessageLength > 0 && c.ResponseCache.MinMessageLength > c.ResponseCache.MaxMessageLength {
		invalid = append(invalid, "response_cache.min_message_length exceeds max_message_length")
	}

	switch c.Cache.Durable.Backend {
	case "", models.DurableBackendFile, models.DurableBackendNone:
	case models.DurableBackendDatabase:
		if c.DurableDatabase() == nil {
			missing = append(missing, "cache.durable.database")
		}
	default:
		invalid = append(invalid, fmt.Sprintf("cache.durable.backend %q is not supported", c.Cache.Durable.Backend))
	}

	if len(missing) > 0 || len(invalid) > 0 {
		return &ValidationError{MissingFields: missing, InvalidFields: invalid}
	}
	return nil
}

// ValidationError represents configuration validation errors
type ValidationError struct {
	MissingFields []string
	InvalidFields []string
}

func (e *ValidationError) Error() string {
	var parts []string
	if len(e.MissingFields) > 0 {
		parts = append(parts, "missing required configuration fields: "+strings.Join(e.MissingFields, ", "))
	}
	if len(e.InvalidFields) > 0 {
		parts = append(parts, "invalid configuration: "+strings.Join(e.InvalidFields, "; "))
	}
	return strings.Join(parts, "; ")
}
