package models

import "time"

// CacheBackendType represents the type of cache backend to use
type CacheBackendType string

const (
	CacheBackendRedis  CacheBackendType = "redis"
	CacheBackendMemory CacheBackendType = "memory"
)

// DurableBackendType selects where the last cache tier lives
type DurableBackendType string

const (
	DurableBackendFile     DurableBackendType = "file"
	DurableBackendDatabase DurableBackendType = "database"
	DurableBackendNone     DurableBackendType = "none"
)

// RemoteCacheConfig configures the Redis-compatible layer. The layer is
// disabled when URL is empty.
type RemoteCacheConfig struct {
	URL       string `json:"url,omitzero" yaml:"url"`
	Token     string `json:"-" yaml:"token"`
	KeyPrefix string `json:"key_prefix,omitzero" yaml:"key_prefix"`
	PoolSize  int    `json:"pool_size,omitzero" yaml:"pool_size"`
}

// DurableCacheConfig configures the durable fallback layer
type DurableCacheConfig struct {
	Backend   DurableBackendType `json:"backend,omitzero" yaml:"backend"`
	Directory string             `json:"directory,omitzero" yaml:"directory"`
	// Database is used when Backend is "database"; falls back to the
	// top-level database when nil.
	Database *DatabaseConfig `json:"database,omitzero" yaml:"database,omitempty"`
}

// TieredCacheConfig holds configuration for the three-layer cache
type TieredCacheConfig struct {
	Remote  RemoteCacheConfig  `json:"remote" yaml:"remote"`
	Durable DurableCacheConfig `json:"durable" yaml:"durable"`

	DefaultTTLSeconds   int `json:"default_ttl_seconds,omitzero" yaml:"default_ttl_seconds"`
	MemoryMaxTTLSeconds int `json:"memory_max_ttl_seconds,omitzero" yaml:"memory_max_ttl_seconds"`
	// PromotionTTLSeconds caps how long a value promoted from a slower
	// layer lives in memory.
	PromotionTTLSeconds    int `json:"promotion_ttl_seconds,omitzero" yaml:"promotion_ttl_seconds"`
	RemoteMaxTTLSeconds    int `json:"remote_max_ttl_seconds,omitzero" yaml:"remote_max_ttl_seconds"`
	DurableMaxTTLSeconds   int `json:"durable_max_ttl_seconds,omitzero" yaml:"durable_max_ttl_seconds"`
	LayerTimeoutMs         int `json:"layer_timeout_ms,omitzero" yaml:"layer_timeout_ms"`
	CleanupIntervalSeconds int `json:"cleanup_interval_seconds,omitzero" yaml:"cleanup_interval_seconds"`
	CleanupBatchSize       int `json:"cleanup_batch_size,omitzero" yaml:"cleanup_batch_size"`
}

// DefaultTieredCacheConfig returns the defaults used when a field is left unset
func DefaultTieredCacheConfig() TieredCacheConfig {
	return TieredCacheConfig{
		Remote: RemoteCacheConfig{
			KeyPrefix: "support:",
			PoolSize:  20,
		},
		Durable: DurableCacheConfig{
			Backend:   DurableBackendFile,
			Directory: ".cache/fallback",
		},
		DefaultTTLSeconds:      300,
		MemoryMaxTTLSeconds:    0,
		PromotionTTLSeconds:    60,
		RemoteMaxTTLSeconds:    0,
		DurableMaxTTLSeconds:   0,
		LayerTimeoutMs:         1500,
		CleanupIntervalSeconds: 3600,
		CleanupBatchSize:       256,
	}
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

// DefaultTTL returns the TTL applied when a caller passes zero
func (c TieredCacheConfig) DefaultTTL() time.Duration { return seconds(c.DefaultTTLSeconds) }

// MemoryMaxTTL returns the memory layer TTL cap, zero meaning uncapped
func (c TieredCacheConfig) MemoryMaxTTL() time.Duration { return seconds(c.MemoryMaxTTLSeconds) }

// PromotionTTL returns the TTL cap for promoted values
func (c TieredCacheConfig) PromotionTTL() time.Duration { return seconds(c.PromotionTTLSeconds) }

// RemoteMaxTTL returns the remote layer TTL cap, zero meaning uncapped
func (c TieredCacheConfig) RemoteMaxTTL() time.Duration { return seconds(c.RemoteMaxTTLSeconds) }

// DurableMaxTTL returns the durable layer TTL cap, zero meaning uncapped
func (c TieredCacheConfig) DurableMaxTTL() time.Duration { return seconds(c.DurableMaxTTLSeconds) }

// LayerTimeout bounds every remote and durable call
func (c TieredCacheConfig) LayerTimeout() time.Duration {
	return time.Duration(c.LayerTimeoutMs) * time.Millisecond
}

// CleanupInterval returns the sweep period
func (c TieredCacheConfig) CleanupInterval() time.Duration { return seconds(c.CleanupIntervalSeconds) }

// EmbeddingConfig enables the optional embedding-based semantic tier of the
// response cache
type EmbeddingConfig struct {
	Enabled      bool             `json:"enabled,omitzero" yaml:"enabled"`
	Backend      CacheBackendType `json:"backend,omitzero" yaml:"backend"`
	RedisURL     string           `json:"redis_url,omitzero" yaml:"redis_url"`
	Capacity     int              `json:"capacity,omitzero" yaml:"capacity"`
	OpenAIAPIKey string           `json:"-" yaml:"openai_api_key"`
	Model        string           `json:"model,omitzero" yaml:"model"`
	Threshold    float64          `json:"threshold,omitzero" yaml:"threshold"`
}

// ResponseCacheConfig holds configuration for the LLM response cache
type ResponseCacheConfig struct {
	TTLSeconds             int             `json:"ttl_seconds,omitzero" yaml:"ttl_seconds"`
	MaxEntries             int             `json:"max_entries,omitzero" yaml:"max_entries"`
	SimilarityThreshold    float64         `json:"similarity_threshold,omitzero" yaml:"similarity_threshold"`
	MinConfidence          float64         `json:"min_confidence,omitzero" yaml:"min_confidence"`
	MinMessageLength       int             `json:"min_message_length,omitzero" yaml:"min_message_length"`
	MaxMessageLength       int             `json:"max_message_length,omitzero" yaml:"max_message_length"`
	BlockedIntents         []string        `json:"blocked_intents,omitzero" yaml:"blocked_intents"`
	CleanupIntervalSeconds int             `json:"cleanup_interval_seconds,omitzero" yaml:"cleanup_interval_seconds"`
	Embedding              EmbeddingConfig `json:"embedding" yaml:"embedding"`
}

// DefaultResponseCacheConfig returns the response cache defaults
func DefaultResponseCacheConfig() ResponseCacheConfig {
	return ResponseCacheConfig{
		TTLSeconds:             30 * 60,
		MaxEntries:             1000,
		SimilarityThreshold:    0.85,
		MinConfidence:          0.7,
		MinMessageLength:       10,
		MaxMessageLength:       500,
		BlockedIntents:         []string{"EMERGENCY", "COMPLAINT", "PERSONAL_DATA", "HUMAN_HANDOFF"},
		CleanupIntervalSeconds: 5 * 60,
	}
}

// TTL returns the response lifetime
func (c ResponseCacheConfig) TTL() time.Duration { return seconds(c.TTLSeconds) }

// CleanupInterval returns the sweep period
func (c ResponseCacheConfig) CleanupInterval() time.Duration { return seconds(c.CleanupIntervalSeconds) }
