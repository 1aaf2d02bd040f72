package cache

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/Egham-7/support-resilience/internal/models"
)

// memoryLayer is the in-process tier. It never fails and never blocks on I/O.
type memoryLayer struct {
	mu      sync.RWMutex
	entries map[string]*models.CacheEntry
}

func newMemoryLayer() *memoryLayer {
	return &memoryLayer{entries: make(map[string]*models.CacheEntry)}
}

// get returns the live value for key, deleting it when expired
func (m *memoryLayer) get(key string, now time.Time) (json.RawMessage, bool) {
	m.mu.RLock()
	entry, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}

	if entry.ExpiredAt(now) {
		m.mu.Lock()
		// Re-check: a concurrent set may have replaced the entry.
		if current, ok := m.entries[key]; ok && current == entry {
			delete(m.entries, key)
		}
		m.mu.Unlock()
		return nil, false
	}
	return entry.Value, true
}

func (m *memoryLayer) set(key string, value json.RawMessage, createdAt, expiresAt time.Time) {
	m.mu.Lock()
	m.entries[key] = &models.CacheEntry{
		Key:       key,
		Value:     value,
		CreatedAt: createdAt,
		ExpiresAt: expiresAt,
	}
	m.mu.Unlock()
}

func (m *memoryLayer) delete(key string) {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
}

func (m *memoryLayer) len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// sweep removes expired entries, holding the write lock for at most
// batchSize deletions at a time
func (m *memoryLayer) sweep(now time.Time, batchSize int) int {
	if batchSize <= 0 {
		batchSize = 256
	}

	m.mu.RLock()
	expired := make([]string, 0)
	for key, entry := range m.entries {
		if entry.ExpiredAt(now) {
			expired = append(expired, key)
		}
	}
	m.mu.RUnlock()

	removed := 0
	for start := 0; start < len(expired); start += batchSize {
		end := min(start+batchSize, len(expired))
		m.mu.Lock()
		for _, key := range expired[start:end] {
			if entry, ok := m.entries[key]; ok && entry.ExpiredAt(now) {
				delete(m.entries, key)
				removed++
			}
		}
		m.mu.Unlock()
	}
	return removed
}
