package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Egham-7/support-resilience/internal/models"
)

// Store is a slower cache tier (remote or durable). Get returns nil, nil on
// a miss; every error is a dependency failure that callers degrade around.
type Store interface {
	Layer() models.CacheLayer
	Get(ctx context.Context, key string) (*models.CacheEnvelope, error)
	Set(ctx context.Context, key string, env *models.CacheEnvelope) error
	Delete(ctx context.Context, key string) error
}

// Sweeper is implemented by stores that need explicit expiry sweeps
type Sweeper interface {
	Sweep(ctx context.Context, now time.Time) (int, error)
}

// Hit is a value found in one of the tiers. Value must be treated as
// read-only; it may be shared between concurrent callers.
type Hit struct {
	Value json.RawMessage
	Layer models.CacheLayer
}

// Decode unmarshals the cached JSON into v
func (h *Hit) Decode(v any) error {
	return json.Unmarshal(h.Value, v)
}
