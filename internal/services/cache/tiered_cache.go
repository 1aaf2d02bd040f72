package cache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Egham-7/support-resilience/internal/models"
	"github.com/Egham-7/support-resilience/internal/utils"

	fiberlog "github.com/gofiber/fiber/v2/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const defaultLayerTimeout = 1500 * time.Millisecond

type layerCounters struct {
	hits   atomic.Int64
	errors atomic.Int64
}

// TieredCache memoizes JSON-serializable values across an in-process map,
// an optional remote store and an optional durable store. Only the memory
// layer is required; failures of the other two are logged and absorbed.
type TieredCache struct {
	memory  *memoryLayer
	remote  Store
	durable Store
	config  models.TieredCacheConfig
	clock   utils.Clock
	loads   singleflight.Group
	bg      sync.WaitGroup

	memoryStats  layerCounters
	remoteStats  layerCounters
	durableStats layerCounters
	misses       atomic.Int64
	sets         atomic.Int64
	invalidated  atomic.Int64
}

// Option customizes a TieredCache
type Option func(*TieredCache)

// WithClock replaces the wall clock
func WithClock(clock utils.Clock) Option {
	return func(tc *TieredCache) { tc.clock = clock }
}

// NewTieredCache builds the cache. Pass a nil remote or durable store to run
// without that layer.
func NewTieredCache(config models.TieredCacheConfig, remote, durable Store, opts ...Option) *TieredCache {
	if config.LayerTimeoutMs <= 0 {
		config.LayerTimeoutMs = int(defaultLayerTimeout / time.Millisecond)
	}
	if config.DefaultTTLSeconds <= 0 {
		config.DefaultTTLSeconds = models.DefaultTieredCacheConfig().DefaultTTLSeconds
	}

	tc := &TieredCache{
		memory:  newMemoryLayer(),
		remote:  remote,
		durable: durable,
		config:  config,
		clock:   utils.SystemClock{},
	}
	for _, opt := range opts {
		opt(tc)
	}

	fiberlog.Infof("TieredCache: initialized (remote=%t, durable=%t, layer_timeout=%s)",
		remote != nil, durable != nil, config.LayerTimeout())
	return tc
}

func validateKey(key string) error {
	if key == "" {
		return models.NewValidationError("cache key must not be empty", models.ErrInvalidKey)
	}
	return nil
}

// Get looks the key up in memory, then remote, then durable. A hit in a
// slower layer is promoted into memory before returning. A nil Hit with a
// nil error is a miss; errors are only returned for caller misuse.
func (tc *TieredCache) Get(ctx context.Context, key string) (*Hit, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}

	if value, ok := tc.memory.get(key, tc.clock.Now()); ok {
		tc.memoryStats.hits.Add(1)
		fiberlog.Debugf("TieredCache: memory hit for %s", key)
		return &Hit{Value: value, Layer: models.CacheLayerMemory}, nil
	}

	if tc.remote == nil && tc.durable == nil {
		tc.misses.Add(1)
		fiberlog.Debugf("TieredCache: miss for %s", key)
		return nil, nil
	}

	// Concurrent misses on one key share a single trip to the slow layers.
	// The load outlives the caller that started it; fetch bounds each layer.
	loadCtx := context.WithoutCancel(ctx)
	v, _, _ := tc.loads.Do(key, func() (any, error) {
		return tc.loadSlow(loadCtx, key), nil
	})
	hit, _ := v.(*Hit)
	if hit == nil {
		tc.misses.Add(1)
		fiberlog.Debugf("TieredCache: miss for %s", key)
		return nil, nil
	}
	return &Hit{Value: hit.Value, Layer: hit.Layer}, nil
}

func (tc *TieredCache) loadSlow(ctx context.Context, key string) *Hit {
	if tc.remote != nil {
		if env := tc.fetch(ctx, tc.remote, &tc.remoteStats, key); env != nil {
			now := tc.clock.Now()
			ttl := utils.MinDuration(env.ExpiresAt.Sub(now), tc.config.PromotionTTL())
			tc.memory.set(key, env.Data, now, now.Add(ttl))
			tc.remoteStats.hits.Add(1)
			fiberlog.Debugf("TieredCache: remote hit for %s, promoted to memory for %s", key, ttl)
			return &Hit{Value: env.Data, Layer: models.CacheLayerRemote}
		}
	}

	if tc.durable != nil {
		if env := tc.fetch(ctx, tc.durable, &tc.durableStats, key); env != nil {
			now := tc.clock.Now()
			remaining := env.ExpiresAt.Sub(now)
			ttl := utils.MinDuration(remaining, tc.config.PromotionTTL())
			tc.memory.set(key, env.Data, now, now.Add(ttl))
			tc.durableStats.hits.Add(1)
			fiberlog.Debugf("TieredCache: durable hit for %s, promoted to memory for %s", key, ttl)
			if tc.remote != nil {
				tc.backfillRemote(key, &models.CacheEnvelope{
					Data:      env.Data,
					Timestamp: now,
					ExpiresAt: now.Add(utils.MinDuration(remaining, tc.config.RemoteMaxTTL())),
				})
			}
			return &Hit{Value: env.Data, Layer: models.CacheLayerDurable}
		}
	}

	return nil
}

// fetch reads one slow layer under the layer timeout. Expired envelopes
// are deleted and reported as a miss.
func (tc *TieredCache) fetch(ctx context.Context, store Store, counters *layerCounters, key string) *models.CacheEnvelope {
	layerCtx, cancel := context.WithTimeout(ctx, tc.config.LayerTimeout())
	defer cancel()

	env, err := store.Get(layerCtx, key)
	if err != nil {
		counters.errors.Add(1)
		fiberlog.Warnf("TieredCache: %s layer read failed for %s: %v", store.Layer(), key, err)
		return nil
	}
	if env == nil {
		return nil
	}
	if env.ExpiredAt(tc.clock.Now()) {
		if err := store.Delete(layerCtx, key); err != nil {
			counters.errors.Add(1)
			fiberlog.Warnf("TieredCache: %s layer delete of expired %s failed: %v", store.Layer(), key, err)
		}
		return nil
	}
	return env
}

// backfillRemote copies a durable hit into the remote layer without making
// the reader wait for it
func (tc *TieredCache) backfillRemote(key string, env *models.CacheEnvelope) {
	tc.bg.Add(1)
	go func() {
		defer tc.bg.Done()
		defer func() {
			if r := recover(); r != nil {
				fiberlog.Errorf("TieredCache: panic during remote backfill of %s: %v", key, r)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), tc.config.LayerTimeout())
		defer cancel()
		if err := tc.remote.Set(ctx, key, env); err != nil {
			tc.remoteStats.errors.Add(1)
			fiberlog.Warnf("TieredCache: remote backfill failed for %s: %v", key, err)
		}
	}()
}

// Set serializes value and writes it to every layer. The memory write
// happens first and always succeeds; remote and durable writes run
// concurrently and their failures are logged, not returned. A zero ttl
// means the configured default; a negative ttl is rejected.
func (tc *TieredCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if ttl < 0 {
		return models.NewValidationError(fmt.Sprintf("ttl must not be negative, got %s", ttl), models.ErrInvalidTTL)
	}
	if ttl == 0 {
		ttl = tc.config.DefaultTTL()
	}

	data, err := utils.MarshalJSON(value)
	if err != nil {
		return models.NewValidationError(fmt.Sprintf("value for %s is not serializable", key), err)
	}

	now := tc.clock.Now()
	tc.memory.set(key, data, now, now.Add(utils.MinDuration(ttl, tc.config.MemoryMaxTTL())))
	tc.sets.Add(1)

	var g errgroup.Group
	if tc.remote != nil {
		env := &models.CacheEnvelope{Data: data, Timestamp: now, ExpiresAt: now.Add(utils.MinDuration(ttl, tc.config.RemoteMaxTTL()))}
		g.Go(func() error {
			tc.write(ctx, tc.remote, &tc.remoteStats, key, env)
			return nil
		})
	}
	if tc.durable != nil {
		env := &models.CacheEnvelope{Data: data, Timestamp: now, ExpiresAt: now.Add(utils.MinDuration(ttl, tc.config.DurableMaxTTL()))}
		g.Go(func() error {
			tc.write(ctx, tc.durable, &tc.durableStats, key, env)
			return nil
		})
	}
	_ = g.Wait()

	fiberlog.Debugf("TieredCache: stored %s (ttl=%s)", key, ttl)
	return nil
}

func (tc *TieredCache) write(ctx context.Context, store Store, counters *layerCounters, key string, env *models.CacheEnvelope) {
	layerCtx, cancel := context.WithTimeout(ctx, tc.config.LayerTimeout())
	defer cancel()

	if err := store.Set(layerCtx, key, env); err != nil {
		counters.errors.Add(1)
		fiberlog.Warnf("TieredCache: %s layer write failed for %s: %v", store.Layer(), key, err)
	}
}

// Invalidate removes key from every layer. Slow layer failures are logged.
func (tc *TieredCache) Invalidate(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}

	tc.memory.delete(key)
	tc.invalidated.Add(1)

	var g errgroup.Group
	for _, target := range []struct {
		store    Store
		counters *layerCounters
	}{
		{tc.remote, &tc.remoteStats},
		{tc.durable, &tc.durableStats},
	} {
		if target.store == nil {
			continue
		}
		g.Go(func() error {
			layerCtx, cancel := context.WithTimeout(ctx, tc.config.LayerTimeout())
			defer cancel()
			if err := target.store.Delete(layerCtx, key); err != nil {
				target.counters.errors.Add(1)
				fiberlog.Warnf("TieredCache: %s layer invalidate failed for %s: %v", target.store.Layer(), key, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	fiberlog.Debugf("TieredCache: invalidated %s", key)
	return nil
}

// Cleanup sweeps expired entries from memory and from the durable layer.
// It satisfies the scheduler's Cleaner contract.
func (tc *TieredCache) Cleanup(ctx context.Context) (int, error) {
	now := tc.clock.Now()
	removed := tc.memory.sweep(now, tc.config.CleanupBatchSize)

	if sweeper, ok := tc.durable.(Sweeper); ok {
		n, err := sweeper.Sweep(ctx, now)
		removed += n
		if err != nil {
			tc.durableStats.errors.Add(1)
			return removed, fmt.Errorf("durable sweep: %w", err)
		}
	}

	if removed > 0 {
		fiberlog.Infof("TieredCache: cleanup removed %d expired entries", removed)
	}
	return removed, nil
}

// Stats returns a snapshot of the cache counters
func (tc *TieredCache) Stats() models.TieredCacheStats {
	return models.TieredCacheStats{
		Memory: models.LayerStats{
			Hits:    tc.memoryStats.hits.Load(),
			Errors:  tc.memoryStats.errors.Load(),
			Enabled: true,
		},
		Remote: models.LayerStats{
			Hits:    tc.remoteStats.hits.Load(),
			Errors:  tc.remoteStats.errors.Load(),
			Enabled: tc.remote != nil,
		},
		Durable: models.LayerStats{
			Hits:    tc.durableStats.hits.Load(),
			Errors:  tc.durableStats.errors.Load(),
			Enabled: tc.durable != nil,
		},
		Misses:        tc.misses.Load(),
		Sets:          tc.sets.Load(),
		Invalidations: tc.invalidated.Load(),
		MemoryEntries: tc.memory.len(),
	}
}

// Close waits for in-flight background promotions
func (tc *TieredCache) Close() error {
	tc.bg.Wait()
	return nil
}
