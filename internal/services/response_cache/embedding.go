package response_cache

import (
	"context"
	"fmt"

	"github.com/Egham-7/support-resilience/internal/models"

	"github.com/botirk38/semanticcache"
	"github.com/botirk38/semanticcache/options"
	fiberlog "github.com/gofiber/fiber/v2/log"
)

const (
	defaultEmbeddingModel     = "text-embedding-3-small"
	defaultEmbeddingThreshold = 0.92
	defaultEmbeddingCapacity  = 1000
)

// EmbeddingIndex maps message text to the key of a cached response by
// vector similarity. It only ever stores keys; the response cache remains
// the owner of the entries.
type EmbeddingIndex interface {
	Lookup(ctx context.Context, text string) (key string, score float64, found bool, err error)
	Add(ctx context.Context, key, text string) error
	Remove(key string)
	Flush(ctx context.Context) error
	Close() error
}

// SemanticEmbeddingIndex is an EmbeddingIndex backed by semanticcache with
// OpenAI embeddings
type SemanticEmbeddingIndex struct {
	cache     *semanticcache.SemanticCache[string, string]
	threshold float32
}

// NewSemanticEmbeddingIndex builds the index. It returns nil, nil when the
// embedding tier is disabled or has no API key.
func NewSemanticEmbeddingIndex(cfg models.EmbeddingConfig) (*SemanticEmbeddingIndex, error) {
	if !cfg.Enabled || cfg.OpenAIAPIKey == "" {
		fiberlog.Info("ResponseCache: embedding tier disabled")
		return nil, nil
	}

	threshold := cfg.Threshold
	if threshold <= 0 || threshold > 1 {
		threshold = defaultEmbeddingThreshold
		fiberlog.Warnf("ResponseCache: invalid embedding threshold %.2f, using default %.2f", cfg.Threshold, threshold)
	}

	model := cfg.Model
	if model == "" {
		model = defaultEmbeddingModel
	}

	backend := cfg.Backend
	if backend == "" {
		backend = models.CacheBackendMemory
	}

	var (
		sc  *semanticcache.SemanticCache[string, string]
		err error
	)
	switch backend {
	case models.CacheBackendMemory:
		capacity := cfg.Capacity
		if capacity <= 0 {
			capacity = defaultEmbeddingCapacity
		}
		fiberlog.Debugf("ResponseCache: embedding tier using in-memory LRU backend with capacity=%d", capacity)
		sc, err = semanticcache.New(
			options.WithOpenAIProvider[string, string](cfg.OpenAIAPIKey, model),
			options.WithLRUBackend[string, string](capacity),
		)
	case models.CacheBackendRedis:
		if cfg.RedisURL == "" {
			return nil, fmt.Errorf("redis URL not set for embedding redis backend")
		}
		fiberlog.Debug("ResponseCache: embedding tier using Redis backend")
		sc, err = semanticcache.New(
			options.WithOpenAIProvider[string, string](cfg.OpenAIAPIKey, model),
			options.WithRedisBackend[string, string](cfg.RedisURL, 0),
		)
	default:
		return nil, fmt.Errorf("unsupported embedding backend: %s (supported: redis, memory)", backend)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create semantic cache: %w", err)
	}

	fiberlog.Infof("ResponseCache: embedding tier initialized (backend=%s, model=%s, threshold=%.2f)", backend, model, threshold)
	return &SemanticEmbeddingIndex{cache: sc, threshold: float32(threshold)}, nil
}

func (idx *SemanticEmbeddingIndex) Lookup(ctx context.Context, text string) (string, float64, bool, error) {
	match, err := idx.cache.Lookup(ctx, text, idx.threshold)
	if err != nil {
		return "", 0, false, fmt.Errorf("embedding lookup: %w", err)
	}
	if match == nil {
		return "", 0, false, nil
	}
	return match.Value, float64(match.Score), true, nil
}

func (idx *SemanticEmbeddingIndex) Add(ctx context.Context, key, text string) error {
	if err := idx.cache.Set(ctx, key, text, key); err != nil {
		return fmt.Errorf("embedding store: %w", err)
	}
	return nil
}

// Remove drops key without waiting for the backend
func (idx *SemanticEmbeddingIndex) Remove(key string) {
	idx.cache.DeleteAsync(context.Background(), key)
}

func (idx *SemanticEmbeddingIndex) Flush(ctx context.Context) error {
	return idx.cache.Flush(ctx)
}

func (idx *SemanticEmbeddingIndex) Close() error {
	return idx.cache.Close()
}
