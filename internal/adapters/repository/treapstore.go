package repository

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/okian/worthrank/internal/domain/dedupe"
	"github.com/okian/worthrank/internal/domain/model"
	"github.com/okian/worthrank/pkg/metrics"
)

// Treap-based, in-memory Store implementation.
//
// Ordering: score ASC, then id ASC. Every node carries its subtree size so
// strict below/above counts are O(log n) expected.

// treap node
type node struct {
	id    string
	score float64
	prio  uint64
	left  *node
	right *node
	size  int64
}

func nsize(n *node) int64 {
	if n == nil {
		return 0
	}
	return n.size
}

func fix(n *node) {
	if n != nil {
		n.size = 1 + nsize(n.left) + nsize(n.right)
	}
}

// less returns true if (aScore, aID) sorts before (bScore, bID).
func less(aScore float64, aID string, bScore float64, bID string) bool {
	if aScore != bScore {
		return aScore < bScore
	}
	return aID < bID
}

func rotateRight(y *node) *node {
	x := y.left
	t2 := x.right
	x.right = y
	y.left = t2
	fix(y)
	fix(x)
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	t2 := y.left
	y.left = x
	x.right = t2
	fix(x)
	fix(y)
	return y
}

func insert(n *node, id string, score float64, prio uint64) *node {
	if n == nil {
		return &node{id: id, score: score, prio: prio, size: 1}
	}
	if less(score, id, n.score, n.id) {
		n.left = insert(n.left, id, score, prio)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, id, score, prio)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

// countBelow counts nodes with a score strictly below score.
func countBelow(n *node, score float64) int64 {
	var c int64
	for n != nil {
		if n.score < score {
			c += nsize(n.left) + 1
			n = n.right
		} else {
			n = n.left
		}
	}
	return c
}

// countAbove counts nodes with a score strictly above score.
func countAbove(n *node, score float64) int64 {
	var c int64
	for n != nil {
		if n.score > score {
			c += nsize(n.right) + 1
			n = n.left
		} else {
			n = n.right
		}
	}
	return c
}

// collectAll appends ids in ascending score order.
func collectAll(n *node, out *[]string) {
	if n == nil {
		return
	}
	collectAll(n.left, out)
	*out = append(*out, n.id)
	collectAll(n.right, out)
}

// TreapStore is an in-memory Store ordered by score.
type TreapStore struct {
	mu       sync.RWMutex
	root     *node
	byID     map[string]model.ScoreSample
	byClient map[string][]string // insertion order
	opts     options

	// Periodic metrics management
	wg       sync.WaitGroup
	stopChan chan struct{}
}

// NewTreapStore constructs a treap store with configuration options.
func NewTreapStore(ctx context.Context, opts ...Option) *TreapStore {
	s := &TreapStore{
		byID:     make(map[string]model.ScoreSample),
		byClient: make(map[string][]string),
		opts:     defaultOptions(),
		stopChan: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(&s.opts)
	}
	s.startMetricsUpdater(ctx)
	return s
}

// Close stops the background metrics goroutine.
func (s *TreapStore) Close() error {
	select {
	case <-s.stopChan:
		// Channel already closed
	default:
		close(s.stopChan)
	}
	s.wg.Wait()
	return nil
}

// Insert implements Store.Insert in O(log n) expected time.
func (s *TreapStore) Insert(_ context.Context, sample model.ScoreSample) (string, error) {
	defer observe(opInsert, time.Now())

	sample, err := prepare(sample, s.opts)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[sample.ID]; ok {
		metrics.RecordStoreError(opInsert)
		return "", fmt.Errorf("%w: duplicate id %s", ErrPersistence, sample.ID)
	}
	s.byID[sample.ID] = sample
	s.byClient[sample.ClientKey] = append(s.byClient[sample.ClientKey], sample.ID)
	s.root = insert(s.root, sample.ID, sample.Score, rand.Uint64())
	return sample.ID, nil
}

// FetchByID returns the sample stored under id.
func (s *TreapStore) FetchByID(_ context.Context, id string) (model.ScoreSample, error) {
	defer observe(opFetch, time.Now())

	s.mu.RLock()
	defer s.mu.RUnlock()
	sample, ok := s.byID[id]
	if !ok {
		return model.ScoreSample{}, ErrNotFound
	}
	return sample, nil
}

// CountTotal returns the number of samples.
func (s *TreapStore) CountTotal(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return nsize(s.root), nil
}

// CountBelow counts samples strictly below score in O(log n).
func (s *TreapStore) CountBelow(_ context.Context, score float64) (int64, error) {
	defer observe(opCount, time.Now())

	s.mu.RLock()
	defer s.mu.RUnlock()
	return countBelow(s.root, score), nil
}

// CountAbove counts samples strictly above score in O(log n).
func (s *TreapStore) CountAbove(_ context.Context, score float64) (int64, error) {
	defer observe(opCount, time.Now())

	s.mu.RLock()
	defer s.mu.RUnlock()
	return countAbove(s.root, score), nil
}

// RecentByClient returns the client's samples at or after since, newest first.
func (s *TreapStore) RecentByClient(_ context.Context, clientKey string, since time.Time) ([]model.ScoreSample, error) {
	defer observe(opRecent, time.Now())

	if !dedupe.KnownClient(clientKey) {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byClient[clientKey]
	var out []model.ScoreSample
	for i := len(ids) - 1; i >= 0; i-- {
		sample := s.byID[ids[i]]
		if !sample.OccurredAt.Before(since) {
			out = append(out, sample)
		}
	}
	return out, nil
}

// Summary tallies every sample into the fixed ranges.
func (s *TreapStore) Summary(_ context.Context) (model.StoreSummary, error) {
	defer observe(opSummary, time.Now())

	sum := model.NewStoreSummary()
	s.mu.RLock()
	for _, sample := range s.byID {
		sum.Add(sample.Score)
	}
	s.mu.RUnlock()
	sum.Finish()
	return sum, nil
}

// Scan visits samples in ascending score order over a point-in-time copy.
func (s *TreapStore) Scan(ctx context.Context, fn func(model.ScoreSample) error) error {
	defer observe(opScan, time.Now())

	s.mu.RLock()
	ids := make([]string, 0, len(s.byID))
	collectAll(s.root, &ids)
	samples := make([]model.ScoreSample, len(ids))
	for i, id := range ids {
		samples[i] = s.byID[id]
	}
	s.mu.RUnlock()

	for _, sample := range samples {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(sample); err != nil {
			return err
		}
	}
	return nil
}

// startMetricsUpdater starts a background goroutine that publishes the sample count.
func (s *TreapStore) startMetricsUpdater(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.opts.metricsUpdateInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				n, _ := s.CountTotal(ctx)
				metrics.UpdateStoreSamples(n)
			}
		}
	}()
}
