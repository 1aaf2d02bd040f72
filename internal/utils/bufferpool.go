package utils

import (
	"encoding/json"
	"sync"

	"github.com/valyala/bytebufferpool"
)

// BufferPool hands out reusable byte buffers for JSON encoding on hot paths
// such as stats footprint estimation and durable cache writes
type BufferPool struct {
	pool *bytebufferpool.Pool
}

var (
	globalPool     *BufferPool
	globalPoolOnce sync.Once
)

// NewBufferPool creates a new buffer pool
func NewBufferPool() *BufferPool {
	return &BufferPool{
		pool: &bytebufferpool.Pool{},
	}
}

// Get retrieves a buffer from the pool
func (bp *BufferPool) Get() *bytebufferpool.ByteBuffer {
	return bp.pool.Get()
}

// Put returns a buffer to the pool
func (bp *BufferPool) Put(buf *bytebufferpool.ByteBuffer) {
	bp.pool.Put(buf)
}

// Global returns the process-wide pool
func Global() *BufferPool {
	globalPoolOnce.Do(func() {
		globalPool = NewBufferPool()
	})
	return globalPool
}

// EncodedSize returns the length of v's JSON encoding without keeping the bytes
func EncodedSize(v any) (int, error) {
	buf := Global().Get()
	defer Global().Put(buf)

	if err := json.NewEncoder(buf).Encode(v); err != nil {
		return 0, err
	}
	// Encoder appends a trailing newline.
	return buf.Len() - 1, nil
}

// MarshalJSON encodes v and returns a copy of the bytes detached from the pool
func MarshalJSON(v any) ([]byte, error) {
	buf := Global().Get()
	defer Global().Put(buf)

	if err := json.NewEncoder(buf).Encode(v); err != nil {
		return nil, err
	}
	b := buf.B[:len(buf.B)-1]
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}
