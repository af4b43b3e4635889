// Package dedupe suppresses repeat submissions from the same client.
//
// The fast layer is a process-local RecencyCache keyed by client and rounded
// score. The durable layer asks the authoritative store whether the client
// submitted anything inside a longer trailing window.
package dedupe

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/worthrank/pkg/metrics"
)

// Default recency cache bounds.
const (
	DefaultSoftCap     = 1000
	DefaultHardCap     = 50000
	DefaultSweepWindow = 10 * time.Minute
)

// RecencyCache remembers when request keys were last seen.
type RecencyCache interface {
	// Seen reports whether key was recorded less than window ago. It never mutates.
	Seen(ctx context.Context, key string, window time.Duration) bool

	// Record stamps key with the current time, inserting it if absent.
	// Recording past the soft cap sweeps entries older than the sweep window.
	Record(ctx context.Context, key string)

	Size() int64
}

// Entry is one recency record.
type Entry struct {
	Key        string
	LastSeenAt time.Time
}

// node is an element of the recency list, most recent at head.
type node struct {
	entry Entry
	prev  *node
	next  *node
}

func (n *node) reset() {
	n.entry = Entry{}
	n.prev = nil
	n.next = nil
}

// recencyCache keeps entries in a doubly linked list ordered by LastSeenAt so
// stale entries are always found at the tail.
type recencyCache struct {
	mu          sync.Mutex
	entries     map[string]*node
	head        *node
	tail        *node
	softCap     int
	hardCap     int // 0 or negative disables the hard bound
	sweepWindow time.Duration
	now         func() time.Time
	size        atomic.Int64
	nodePool    sync.Pool
}

// NewRecencyCache creates a bounded, time-indexed recency cache.
func NewRecencyCache(opts ...Option) RecencyCache {
	c := &recencyCache{
		softCap:     DefaultSoftCap,
		hardCap:     DefaultHardCap,
		sweepWindow: DefaultSweepWindow,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.entries = make(map[string]*node)
	c.nodePool = sync.Pool{
		New: func() interface{} {
			return &node{}
		},
	}
	return c
}

// Seen reports whether key was recorded within window.
func (c *recencyCache) Seen(_ context.Context, key string, window time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.entries[key]
	if !ok {
		return false
	}
	return c.now().Sub(n.entry.LastSeenAt) < window
}

// Record (re)inserts key at the head of the list.
func (c *recencyCache) Record(_ context.Context, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if n, ok := c.entries[key]; ok {
		n.entry.LastSeenAt = now
		c.moveToFront(n)
		return
	}

	n := c.nodePool.Get().(*node)
	n.entry = Entry{Key: key, LastSeenAt: now}
	c.pushFront(n)
	c.entries[key] = n
	c.size.Add(1)

	evicted := 0
	if len(c.entries) > c.softCap {
		evicted += c.sweep(now)
	}
	if c.hardCap > 0 {
		for len(c.entries) > c.hardCap {
			c.removeTail()
			evicted++
		}
	}
	if evicted > 0 {
		metrics.RecordRecencyEvictions(evicted)
	}
	metrics.UpdateRecencyCacheSize(c.size.Load())
}

// Size returns the number of entries currently held.
func (c *recencyCache) Size() int64 {
	return c.size.Load()
}

// sweep drops every entry older than the sweep window. Must be called with c.mu held.
func (c *recencyCache) sweep(now time.Time) int {
	evicted := 0
	for c.tail != nil && now.Sub(c.tail.entry.LastSeenAt) > c.sweepWindow {
		c.removeTail()
		evicted++
	}
	return evicted
}

func (c *recencyCache) pushFront(n *node) {
	n.prev = nil
	n.next = c.head
	if c.head != nil {
		c.head.prev = n
	}
	c.head = n
	if c.tail == nil {
		c.tail = n
	}
}

func (c *recencyCache) unlink(n *node) {
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		c.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		c.tail = n.prev
	}
	n.prev = nil
	n.next = nil
}

func (c *recencyCache) moveToFront(n *node) {
	if c.head == n {
		return
	}
	c.unlink(n)
	c.pushFront(n)
}

func (c *recencyCache) removeTail() {
	n := c.tail
	if n == nil {
		return
	}
	c.unlink(n)
	delete(c.entries, n.entry.Key)
	n.reset()
	c.nodePool.Put(n)
	c.size.Add(-1)
}
