package models

import (
	"encoding/json"
	"time"
)

// CacheLayer names the tier that served a value
type CacheLayer string

const (
	CacheLayerMemory  CacheLayer = "memory"
	CacheLayerRemote  CacheLayer = "remote"
	CacheLayerDurable CacheLayer = "durable"
)

// CacheEntry is a value held by the in-process layer
type CacheEntry struct {
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value"`
	CreatedAt time.Time       `json:"created_at"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// ExpiredAt reports whether the entry is no longer valid at now
func (e *CacheEntry) ExpiredAt(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// CacheEnvelope is the serialized form stored by the remote and durable layers
type CacheEnvelope struct {
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
	ExpiresAt time.Time       `json:"expiresAt"`
}

// ExpiredAt reports whether the envelope is no longer valid at now
func (e *CacheEnvelope) ExpiredAt(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// TTL returns the lifetime the envelope was written with
func (e *CacheEnvelope) TTL() time.Duration {
	return e.ExpiresAt.Sub(e.Timestamp)
}

// LayerStats holds per-layer counters
type LayerStats struct {
	Hits    int64 `json:"hits"`
	Errors  int64 `json:"errors"`
	Enabled bool  `json:"enabled"`
}

// TieredCacheStats reports tiered cache activity
type TieredCacheStats struct {
	Memory        LayerStats `json:"memory"`
	Remote        LayerStats `json:"remote"`
	Durable       LayerStats `json:"durable"`
	Misses        int64      `json:"misses"`
	Sets          int64      `json:"sets"`
	Invalidations int64      `json:"invalidations"`
	MemoryEntries int        `json:"memory_entries"`
}
