package cache

import (
	"context"
	"sync"
)

// MemoryHistogram is a process-local histogram backend.
type MemoryHistogram struct {
	mu      sync.RWMutex
	buckets map[string]int64
	total   int64
}

// NewMemoryHistogram creates an empty in-memory backend.
func NewMemoryHistogram() *MemoryHistogram {
	return &MemoryHistogram{buckets: make(map[string]int64)}
}

// Increment adds one to bucket and the total.
func (h *MemoryHistogram) Increment(_ context.Context, bucket string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.buckets[bucket]++
	h.total++
	return nil
}

// Buckets returns a copy of the bucket map.
func (h *MemoryHistogram) Buckets(_ context.Context) (map[string]int64, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string]int64, len(h.buckets))
	for k, v := range h.buckets {
		out[k] = v
	}
	return out, nil
}

// Total returns the global counter.
func (h *MemoryHistogram) Total(_ context.Context) (int64, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.total, nil
}

// Replace swaps in a copy of buckets and total.
func (h *MemoryHistogram) Replace(_ context.Context, buckets map[string]int64, total int64) error {
	next := make(map[string]int64, len(buckets))
	for k, v := range buckets {
		next[k] = v
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.buckets = next
	h.total = total
	return nil
}

// Close is a no-op.
func (h *MemoryHistogram) Close() error { return nil }
