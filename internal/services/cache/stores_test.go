package cache_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Egham-7/support-resilience/internal/models"
	"github.com/Egham-7/support-resilience/internal/services/cache"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func envelope(data string, ttl time.Duration) *models.CacheEnvelope {
	return &models.CacheEnvelope{Data: []byte(data), Timestamp: epoch, ExpiresAt: epoch.Add(ttl)}
}

func TestEncodeKey(t *testing.T) {
	tests := []struct {
		name string
		key  string
		want string
	}{
		{name: "safe characters pass through", key: "plan-v2.monthly", want: "plan-v2.monthly"},
		{name: "colon is escaped", key: "customer:phone:55", want: "customer_3aphone_3a55"},
		{name: "escape byte is escaped", key: "a_b", want: "a_5fb"},
		{name: "slash is escaped", key: "a/b", want: "a_2fb"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := cache.EncodeKey(tt.key)
			assert.Equal(t, tt.want, got)

			decoded, err := cache.DecodeKey(got)
			require.NoError(t, err)
			assert.Equal(t, tt.key, decoded)
		})
	}
}

func TestEncodeKey_DistinctKeysNeverCollide(t *testing.T) {
	assert.NotEqual(t, cache.EncodeKey("a/b"), cache.EncodeKey("a_2fb"))
	assert.NotEqual(t, cache.EncodeKey("a:b"), cache.EncodeKey("a_3ab"))
}

func TestEncodeKey_LongKeysAreHashed(t *testing.T) {
	long := strings.Repeat("x", 500)
	other := strings.Repeat("x", 499) + "y"

	encoded := cache.EncodeKey(long)
	assert.LessOrEqual(t, len(encoded), 200)
	assert.NotEqual(t, encoded, cache.EncodeKey(other))

	_, err := cache.DecodeKey(encoded)
	assert.ErrorIs(t, err, cache.ErrHashedKey)
}

func TestFileStore_SetGetDelete(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := cache.NewFileStore(dir)
	require.NoError(t, err)
	assert.Equal(t, models.CacheLayerDurable, store.Layer())

	env, err := store.Get(ctx, "customer:phone:55")
	require.NoError(t, err)
	assert.Nil(t, env)

	require.NoError(t, store.Set(ctx, "customer:phone:55", envelope(`{"name":"Ana"}`, time.Hour)))
	_, err = os.Stat(filepath.Join(dir, "customer_3aphone_3a55.json"))
	require.NoError(t, err)

	env, err = store.Get(ctx, "customer:phone:55")
	require.NoError(t, err)
	require.NotNil(t, env)
	assert.JSONEq(t, `{"name":"Ana"}`, string(env.Data))
	assert.True(t, env.ExpiresAt.Equal(epoch.Add(time.Hour)))

	require.NoError(t, store.Delete(ctx, "customer:phone:55"))
	require.NoError(t, store.Delete(ctx, "customer:phone:55"), "deleting a missing key is not an error")

	env, err = store.Get(ctx, "customer:phone:55")
	require.NoError(t, err)
	assert.Nil(t, env)
}

func TestFileStore_CorruptEntryIsAnError(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := cache.NewFileStore(dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, cache.EncodeKey("k")+".json"), []byte("{"), 0o600))

	_, err = store.Get(ctx, "k")
	assert.Error(t, err)
}

func TestFileStore_SweepRemovesExpiredAndCorrupt(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := cache.NewFileStore(dir)
	require.NoError(t, err)

	require.NoError(t, store.Set(ctx, "expired", envelope(`1`, time.Second)))
	require.NoError(t, store.Set(ctx, "fresh", envelope(`2`, time.Hour)))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "corrupt.json"), []byte("not json"), 0o600))

	removed, err := store.Sweep(ctx, epoch.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	env, err := store.Get(ctx, "fresh")
	require.NoError(t, err)
	assert.NotNil(t, env)
}

func TestFileStore_SweepRemovesStaleTempFiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := cache.NewFileStore(dir)
	require.NoError(t, err)

	now := time.Now()
	stale := filepath.Join(dir, ".tmp-123")
	inFlight := filepath.Join(dir, ".tmp-456")
	require.NoError(t, os.WriteFile(stale, []byte(`{"data":`), 0o600))
	require.NoError(t, os.WriteFile(inFlight, []byte(`{"data":`), 0o600))
	require.NoError(t, os.Chtimes(stale, now.Add(-time.Hour), now.Add(-time.Hour)))
	require.NoError(t, store.Set(ctx, "live", &models.CacheEnvelope{Data: []byte(`1`), Timestamp: now, ExpiresAt: now.Add(time.Hour)}))

	removed, err := store.Sweep(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	assert.NoFileExists(t, stale)
	assert.FileExists(t, inFlight, "a recent temp file may belong to a write in progress")
	env, err := store.Get(ctx, "live")
	require.NoError(t, err)
	assert.NotNil(t, env)
}

func TestNewFileStore_RequiresDirectory(t *testing.T) {
	_, err := cache.NewFileStore("")
	assert.True(t, models.IsValidationError(err))
}

func openSQLite(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "cache.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func TestGormStore_UpsertAndSweep(t *testing.T) {
	ctx := context.Background()
	store, err := cache.NewGormStore(openSQLite(t))
	require.NoError(t, err)

	require.NoError(t, store.Set(ctx, "subscription:55", envelope(`{"status":"active"}`, time.Second)))
	require.NoError(t, store.Set(ctx, "subscription:55", envelope(`{"status":"inactive"}`, time.Hour)))
	require.NoError(t, store.Set(ctx, "subscription:66", envelope(`{"status":"active"}`, time.Second)))

	env, err := store.Get(ctx, "subscription:55")
	require.NoError(t, err)
	require.NotNil(t, env)
	assert.JSONEq(t, `{"status":"inactive"}`, string(env.Data))

	removed, err := store.Sweep(ctx, epoch.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	env, err = store.Get(ctx, "subscription:66")
	require.NoError(t, err)
	assert.Nil(t, env)

	require.NoError(t, store.Delete(ctx, "subscription:55"))
	env, err = store.Get(ctx, "subscription:55")
	require.NoError(t, err)
	assert.Nil(t, env)
}

func TestNewGormStore_RequiresHandle(t *testing.T) {
	_, err := cache.NewGormStore(nil)
	assert.True(t, models.IsValidationError(err))
}
