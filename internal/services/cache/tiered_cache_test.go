package cache_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Egham-7/support-resilience/internal/models"
	"github.com/Egham-7/support-resilience/internal/services/cache"
	"github.com/Egham-7/support-resilience/internal/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

// fakeStore is an in-memory Store that counts calls and can be made to fail
type fakeStore struct {
	layer models.CacheLayer

	mu      sync.Mutex
	entries map[string]*models.CacheEnvelope

	gets    atomic.Int64
	sets    atomic.Int64
	deletes atomic.Int64
	failing atomic.Bool

	// gate, when set, blocks Get until closed
	gate    chan struct{}
	entered chan struct{}
}

func newFakeStore(layer models.CacheLayer) *fakeStore {
	return &fakeStore{layer: layer, entries: make(map[string]*models.CacheEnvelope)}
}

var errUnavailable = errors.New("store unavailable")

func (s *fakeStore) Layer() models.CacheLayer { return s.layer }

func (s *fakeStore) Get(ctx context.Context, key string) (*models.CacheEnvelope, error) {
	s.gets.Add(1)
	if s.entered != nil {
		select {
		case s.entered <- struct{}{}:
		default:
		}
	}
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.failing.Load() {
		return nil, errUnavailable
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	env, ok := s.entries[key]
	if !ok {
		return nil, nil
	}
	cp := *env
	return &cp, nil
}

func (s *fakeStore) Set(ctx context.Context, key string, env *models.CacheEnvelope) error {
	s.sets.Add(1)
	if s.failing.Load() {
		return errUnavailable
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *env
	s.entries[key] = &cp
	return nil
}

func (s *fakeStore) Delete(ctx context.Context, key string) error {
	s.deletes.Add(1)
	if s.failing.Load() {
		return errUnavailable
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

func (s *fakeStore) has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[key]
	return ok
}

func (s *fakeStore) put(key, data string, now time.Time, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = &models.CacheEnvelope{Data: []byte(data), Timestamp: now, ExpiresAt: now.Add(ttl)}
}

type plan struct {
	Name  string `json:"name"`
	Price int    `json:"price"`
}

func newTestCache(t *testing.T, remote, durable cache.Store) (*cache.TieredCache, *utils.ManualClock) {
	t.Helper()
	clock := utils.NewManualClock(epoch)
	cfg := models.DefaultTieredCacheConfig()
	cfg.LayerTimeoutMs = 300
	tc := cache.NewTieredCache(cfg, remote, durable, cache.WithClock(clock))
	t.Cleanup(func() { _ = tc.Close() })
	return tc, clock
}

// nilStore keeps the Store interface nil rather than a typed nil pointer
func nilStore() cache.Store { return nil }

func TestTieredCache_SetThenGetServesMemory(t *testing.T) {
	ctx := context.Background()
	remote := newFakeStore(models.CacheLayerRemote)
	durable := newFakeStore(models.CacheLayerDurable)
	tc, _ := newTestCache(t, remote, durable)

	require.NoError(t, tc.Set(ctx, "plan:monthly", plan{Name: "monthly", Price: 99}, time.Minute))

	hit, err := tc.Get(ctx, "plan:monthly")
	require.NoError(t, err)
	require.NotNil(t, hit)
	assert.Equal(t, models.CacheLayerMemory, hit.Layer)

	var got plan
	require.NoError(t, hit.Decode(&got))
	assert.Equal(t, plan{Name: "monthly", Price: 99}, got)

	assert.True(t, remote.has("plan:monthly"))
	assert.True(t, durable.has("plan:monthly"))
	assert.Zero(t, remote.gets.Load())
}

func TestTieredCache_RemoteHitIsPromoted(t *testing.T) {
	ctx := context.Background()
	remote := newFakeStore(models.CacheLayerRemote)
	tc, _ := newTestCache(t, remote, nilStore())

	remote.put("k", `{"name":"annual","price":900}`, epoch, time.Hour)

	hit, err := tc.Get(ctx, "k")
	require.NoError(t, err)
	require.NotNil(t, hit)
	assert.Equal(t, models.CacheLayerRemote, hit.Layer)

	hit, err = tc.Get(ctx, "k")
	require.NoError(t, err)
	require.NotNil(t, hit)
	assert.Equal(t, models.CacheLayerMemory, hit.Layer)
	assert.Equal(t, int64(1), remote.gets.Load())

	stats := tc.Stats()
	assert.Equal(t, int64(1), stats.Remote.Hits)
	assert.Equal(t, int64(1), stats.Memory.Hits)
}

func TestTieredCache_PromotionIsCappedByPromotionTTL(t *testing.T) {
	ctx := context.Background()
	remote := newFakeStore(models.CacheLayerRemote)
	tc, clock := newTestCache(t, remote, nilStore())

	remote.put("k", `"v"`, epoch, time.Hour)

	hit, err := tc.Get(ctx, "k")
	require.NoError(t, err)
	require.NotNil(t, hit)

	// Default promotion TTL is 60s; the remote copy lives an hour.
	clock.Advance(61 * time.Second)

	hit, err = tc.Get(ctx, "k")
	require.NoError(t, err)
	require.NotNil(t, hit)
	assert.Equal(t, models.CacheLayerRemote, hit.Layer)
	assert.Equal(t, int64(2), remote.gets.Load())
}

func TestTieredCache_DurableHitBackfillsRemote(t *testing.T) {
	ctx := context.Background()
	remote := newFakeStore(models.CacheLayerRemote)
	durable := newFakeStore(models.CacheLayerDurable)
	tc, _ := newTestCache(t, remote, durable)

	durable.put("customer:phone:5511999990000", `{"name":"Ana"}`, epoch, time.Hour)

	hit, err := tc.Get(ctx, "customer:phone:5511999990000")
	require.NoError(t, err)
	require.NotNil(t, hit)
	assert.Equal(t, models.CacheLayerDurable, hit.Layer)

	require.NoError(t, tc.Close())
	assert.True(t, remote.has("customer:phone:5511999990000"))
}

func TestTieredCache_RemoteFailureDegradesGracefully(t *testing.T) {
	ctx := context.Background()
	remote := newFakeStore(models.CacheLayerRemote)
	remote.failing.Store(true)
	durable := newFakeStore(models.CacheLayerDurable)
	tc, _ := newTestCache(t, remote, durable)

	require.NoError(t, tc.Set(ctx, "k", "value", time.Minute))
	assert.True(t, durable.has("k"))

	hit, err := tc.Get(ctx, "k")
	require.NoError(t, err)
	require.NotNil(t, hit)
	assert.Equal(t, models.CacheLayerMemory, hit.Layer)

	require.NoError(t, tc.Invalidate(ctx, "k"))

	// Memory empty, remote failing: durable still answers.
	durable.put("k", `"value"`, epoch, time.Minute)
	hit, err = tc.Get(ctx, "k")
	require.NoError(t, err)
	require.NotNil(t, hit)
	assert.Equal(t, models.CacheLayerDurable, hit.Layer)

	assert.Positive(t, tc.Stats().Remote.Errors)
}

func TestTieredCache_UnreachableRedisDegradesGracefully(t *testing.T) {
	ctx := context.Background()
	client, err := cache.NewRedisClient(models.RemoteCacheConfig{URL: "redis://127.0.0.1:1/0"})
	require.NoError(t, err)
	require.NotNil(t, client)
	t.Cleanup(func() { _ = client.Close() })

	tc, _ := newTestCache(t, cache.NewRedisStore(client, "test:"), nilStore())

	require.NoError(t, tc.Set(ctx, "k", 42, time.Minute))
	value, layer, ok, err := cache.GetJSON[int](ctx, tc, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 42, value)
	assert.Equal(t, models.CacheLayerMemory, layer)

	require.NoError(t, tc.Invalidate(ctx, "k"))
	hit, err := tc.Get(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, hit)
	assert.Positive(t, tc.Stats().Remote.Errors)
}

func TestTieredCache_ExpiredEntriesAreMisses(t *testing.T) {
	ctx := context.Background()
	durable := newFakeStore(models.CacheLayerDurable)
	tc, clock := newTestCache(t, nilStore(), durable)

	require.NoError(t, tc.Set(ctx, "k", "v", 10*time.Second))

	clock.Advance(9 * time.Second)
	hit, err := tc.Get(ctx, "k")
	require.NoError(t, err)
	require.NotNil(t, hit)

	clock.Advance(time.Second)
	hit, err = tc.Get(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, hit)
	assert.False(t, durable.has("k"), "expired durable entry should be deleted on read")
	assert.Equal(t, int64(1), tc.Stats().Misses)
}

func TestTieredCache_ZeroTTLUsesDefault(t *testing.T) {
	ctx := context.Background()
	tc, clock := newTestCache(t, nilStore(), nilStore())

	require.NoError(t, tc.Set(ctx, "k", "v", 0))

	clock.Advance(299 * time.Second)
	hit, err := tc.Get(ctx, "k")
	require.NoError(t, err)
	assert.NotNil(t, hit)

	clock.Advance(time.Second)
	hit, err = tc.Get(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, hit)
}

func TestTieredCache_RejectsInvalidInput(t *testing.T) {
	ctx := context.Background()
	tc, _ := newTestCache(t, nilStore(), nilStore())

	_, err := tc.Get(ctx, "")
	assert.True(t, models.IsValidationError(err))
	assert.ErrorIs(t, err, models.ErrInvalidKey)

	err = tc.Set(ctx, "", "v", time.Second)
	assert.ErrorIs(t, err, models.ErrInvalidKey)

	err = tc.Set(ctx, "k", "v", -time.Second)
	assert.ErrorIs(t, err, models.ErrInvalidTTL)

	err = tc.Set(ctx, "k", func() {}, time.Second)
	assert.True(t, models.IsValidationError(err))

	assert.ErrorIs(t, tc.Invalidate(ctx, ""), models.ErrInvalidKey)
}

func TestTieredCache_InvalidateClearsEveryLayer(t *testing.T) {
	ctx := context.Background()
	remote := newFakeStore(models.CacheLayerRemote)
	durable := newFakeStore(models.CacheLayerDurable)
	tc, _ := newTestCache(t, remote, durable)

	require.NoError(t, tc.Set(ctx, "k", "v", time.Minute))
	require.NoError(t, tc.Invalidate(ctx, "k"))

	assert.False(t, remote.has("k"))
	assert.False(t, durable.has("k"))

	hit, err := tc.Get(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, hit)
	assert.Equal(t, int64(1), tc.Stats().Invalidations)
}

func TestTieredCache_ConcurrentMissesShareOneLoad(t *testing.T) {
	ctx := context.Background()
	remote := newFakeStore(models.CacheLayerRemote)
	remote.gate = make(chan struct{})
	remote.entered = make(chan struct{}, 1)
	remote.put("k", `"v"`, epoch, time.Hour)
	tc, _ := newTestCache(t, remote, nilStore())

	const readers = 8
	var wg sync.WaitGroup
	results := make(chan *cache.Hit, readers)
	for range readers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			hit, err := tc.Get(ctx, "k")
			assert.NoError(t, err)
			results <- hit
		}()
	}

	<-remote.entered
	time.Sleep(50 * time.Millisecond)
	close(remote.gate)
	wg.Wait()
	close(results)

	for hit := range results {
		require.NotNil(t, hit)
		assert.Equal(t, models.CacheLayerRemote, hit.Layer)
	}
	assert.Equal(t, int64(1), remote.gets.Load())
}

func TestTieredCache_SharedLoadSurvivesLeaderCancellation(t *testing.T) {
	remote := newFakeStore(models.CacheLayerRemote)
	remote.gate = make(chan struct{})
	remote.entered = make(chan struct{}, 1)
	remote.put("k", `"v"`, epoch, time.Hour)
	tc, _ := newTestCache(t, remote, nilStore())

	leaderCtx, cancel := context.WithCancel(context.Background())
	leaderDone := make(chan struct{})
	go func() {
		defer close(leaderDone)
		_, _ = tc.Get(leaderCtx, "k")
	}()
	<-remote.entered

	follower := make(chan *cache.Hit, 1)
	go func() {
		hit, err := tc.Get(context.Background(), "k")
		assert.NoError(t, err)
		follower <- hit
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	time.Sleep(20 * time.Millisecond)
	close(remote.gate)

	hit := <-follower
	<-leaderDone
	require.NotNil(t, hit, "an unexpired remote entry must be served")
	assert.Equal(t, models.CacheLayerRemote, hit.Layer)
	assert.JSONEq(t, `"v"`, string(hit.Value))
	assert.Zero(t, tc.Stats().Remote.Errors)
	assert.Equal(t, int64(1), remote.gets.Load())
}

func TestTieredCache_CleanupSweepsMemoryAndDurable(t *testing.T) {
	ctx := context.Background()
	durable, err := cache.NewFileStore(t.TempDir())
	require.NoError(t, err)
	tc, clock := newTestCache(t, nilStore(), durable)

	require.NoError(t, tc.Set(ctx, "short", "v", time.Second))
	require.NoError(t, tc.Set(ctx, "long", "v", time.Hour))

	clock.Advance(2 * time.Second)
	removed, err := tc.Cleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, removed, "one memory entry and one durable file")
	assert.Equal(t, 1, tc.Stats().MemoryEntries)

	hit, err := tc.Get(ctx, "long")
	require.NoError(t, err)
	assert.NotNil(t, hit)
}

func TestGetJSON_UndecodableEntryIsDiscarded(t *testing.T) {
	ctx := context.Background()
	durable := newFakeStore(models.CacheLayerDurable)
	tc, _ := newTestCache(t, nilStore(), durable)

	require.NoError(t, cache.SetJSON(ctx, tc, "k", "not a plan", time.Minute))

	_, _, ok, err := cache.GetJSON[plan](ctx, tc, "k")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, durable.has("k"))
}

func TestGetJSON_RoundTrip(t *testing.T) {
	ctx := context.Background()
	tc, _ := newTestCache(t, nilStore(), nilStore())

	want := plan{Name: "monthly", Price: 99}
	require.NoError(t, cache.SetJSON(ctx, tc, "plan", want, time.Minute))

	got, layer, ok, err := cache.GetJSON[plan](ctx, tc, "plan")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, models.CacheLayerMemory, layer)
	assert.Equal(t, want, got)
}
