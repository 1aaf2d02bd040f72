package cache

import (
	"context"
	"time"

	"github.com/Egham-7/support-resilience/internal/models"

	fiberlog "github.com/gofiber/fiber/v2/log"
)

// GetJSON fetches key and decodes it into T. An entry that no longer
// decodes into T is invalidated and reported as a miss.
func GetJSON[T any](ctx context.Context, tc *TieredCache, key string) (T, models.CacheLayer, bool, error) {
	var zero T

	hit, err := tc.Get(ctx, key)
	if err != nil {
		return zero, "", false, err
	}
	if hit == nil {
		return zero, "", false, nil
	}

	var value T
	if err := hit.Decode(&value); err != nil {
		fiberlog.Warnf("TieredCache: discarding undecodable entry %s from %s layer: %v", key, hit.Layer, err)
		_ = tc.Invalidate(ctx, key)
		return zero, "", false, nil
	}
	return value, hit.Layer, true, nil
}

// SetJSON is the typed counterpart of GetJSON
func SetJSON[T any](ctx context.Context, tc *TieredCache, key string, value T, ttl time.Duration) error {
	return tc.Set(ctx, key, value, ttl)
}
