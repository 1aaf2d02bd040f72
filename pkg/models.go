package pkg

import "github.com/Egham-7/support-resilience/internal/models"

type (
	ServerConfig         = models.ServerConfig
	TieredCacheConfig    = models.TieredCacheConfig
	RemoteCacheConfig    = models.RemoteCacheConfig
	DurableCacheConfig   = models.DurableCacheConfig
	FallbackConfig       = models.FallbackConfig
	CircuitBreakerConfig = models.CircuitBreakerConfig
	ResponseCacheConfig  = models.ResponseCacheConfig
	EmbeddingConfig      = models.EmbeddingConfig
	ConversationConfig   = models.ConversationConfig
	DatabaseConfig       = models.DatabaseConfig
	CachedLLMResponse    = models.CachedLLMResponse
	ResponseInput        = models.ResponseInput
	ConversationMessage  = models.ConversationMessage
	CustomerLookup       = models.CustomerLookup
	SubscriptionStatus   = models.SubscriptionStatus
)

const (
	PostgreSQL = models.PostgreSQL
	MySQL      = models.MySQL
	SQLite     = models.SQLite
)
