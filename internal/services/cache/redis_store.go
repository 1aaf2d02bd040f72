package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Egham-7/support-resilience/internal/models"

	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
)

// RedisStore is the remote tier backed by a Redis-compatible server
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisStore wraps an existing client
func NewRedisStore(client *redis.Client, keyPrefix string) *RedisStore {
	return &RedisStore{client: client, keyPrefix: keyPrefix}
}

// NewRedisClient builds a client from the remote cache configuration. It
// returns nil, nil when no URL is configured. The token, when present,
// overrides any password carried in the URL.
func NewRedisClient(cfg models.RemoteCacheConfig) (*redis.Client, error) {
	if cfg.URL == "" {
		fiberlog.Info("TieredCache: remote cache URL not configured - running without remote layer")
		return nil, nil
	}

	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	if cfg.Token != "" {
		opt.Password = cfg.Token
	}

	opt.PoolSize = cfg.PoolSize
	if opt.PoolSize <= 0 {
		opt.PoolSize = 20
	}
	opt.MinIdleConns = 2
	opt.PoolTimeout = 2 * time.Second
	opt.ConnMaxIdleTime = 5 * time.Minute
	opt.DialTimeout = 2 * time.Second
	opt.ReadTimeout = 1 * time.Second
	opt.WriteTimeout = 1 * time.Second
	opt.MaxRetries = 1

	fiberlog.Debugf("TieredCache: Redis client configuration: PoolSize=%d, MaxRetries=%d", opt.PoolSize, opt.MaxRetries)
	return redis.NewClient(opt), nil
}

// PingRedis reports whether the server answers within two seconds
func PingRedis(client *redis.Client) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return client.Ping(ctx).Err()
}

func (s *RedisStore) Layer() models.CacheLayer { return models.CacheLayerRemote }

func (s *RedisStore) Get(ctx context.Context, key string) (*models.CacheEnvelope, error) {
	raw, err := s.client.Get(ctx, s.keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %q: %w", key, err)
	}

	var env models.CacheEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("redis decode %q: %w", key, err)
	}
	return &env, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, env *models.CacheEnvelope) error {
	ttl := env.TTL()
	if ttl <= 0 {
		return nil
	}

	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("redis encode %q: %w", key, err)
	}
	if err := s.client.Set(ctx, s.keyPrefix+key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %q: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("redis del %q: %w", key, err)
	}
	return nil
}
