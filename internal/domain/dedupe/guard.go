package dedupe

import (
	"context"
	"strings"
	"time"

	"github.com/okian/worthrank/internal/domain/model"
	"github.com/okian/worthrank/internal/domain/ranking"
	"github.com/okian/worthrank/pkg/logger"
	"github.com/okian/worthrank/pkg/metrics"
)

// DefaultDurableWindow is how far back the durable layer looks.
const DefaultDurableWindow = 10 * time.Minute

// UnknownClient is the identity used when none could be extracted.
const UnknownClient = "unknown"

// Layer names the guard layer that flagged a duplicate.
type Layer string

// Guard layers.
const (
	LayerNone    Layer = ""
	LayerFast    Layer = "fast"
	LayerDurable Layer = "durable"
)

// SubmissionLookup is the slice of the authoritative store the durable layer needs.
type SubmissionLookup interface {
	RecentByClient(ctx context.Context, clientKey string, since time.Time) ([]model.ScoreSample, error)
}

// Request describes one guarded call.
type Request struct {
	ClientKey  string
	Score      float64
	FastWindow time.Duration
	Durable    bool
}

// Verdict is the outcome of a guard check.
type Verdict struct {
	Duplicate bool
	Layer     Layer
	PriorID   string // most recent prior submission, durable layer only
}

// Guard applies the fast layer, then the durable layer.
type Guard struct {
	cache         RecencyCache
	lookup        SubmissionLookup
	durableWindow time.Duration
	now           func() time.Time
	log           logger.Logger
}

// NewGuard builds a guard. lookup may be nil, which disables the durable layer.
func NewGuard(cache RecencyCache, lookup SubmissionLookup, opts ...GuardOption) *Guard {
	g := &Guard{
		cache:         cache,
		lookup:        lookup,
		durableWindow: DefaultDurableWindow,
		now:           time.Now,
		log:           logger.Nop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// RequestKey is the fast-layer key: client identity plus the score at two decimals.
func RequestKey(clientKey string, score float64) string {
	return clientKey + "-" + ranking.BucketKey(score)
}

// KnownClient reports whether clientKey identifies a client.
func KnownClient(clientKey string) bool {
	k := strings.TrimSpace(clientKey)
	return k != "" && k != UnknownClient
}

// Check runs both layers without mutating anything.
func (g *Guard) Check(ctx context.Context, req Request) Verdict {
	if ctx == nil {
		ctx = context.Background()
	}

	if req.FastWindow > 0 && g.cache.Seen(ctx, RequestKey(req.ClientKey, req.Score), req.FastWindow) {
		metrics.RecordDuplicate(string(LayerFast))
		return Verdict{Duplicate: true, Layer: LayerFast}
	}

	if !req.Durable || g.lookup == nil || !KnownClient(req.ClientKey) {
		return Verdict{}
	}

	recent, err := g.lookup.RecentByClient(ctx, req.ClientKey, g.now().Add(-g.durableWindow))
	if err != nil {
		metrics.RecordDurableCheckFailure()
		g.log.Warn(ctx, "durable duplicate check failed, allowing request",
			logger.String("client", req.ClientKey),
			logger.Error(err),
		)
		return Verdict{}
	}
	if len(recent) == 0 {
		return Verdict{}
	}

	latest := recent[0]
	for _, s := range recent[1:] {
		if s.OccurredAt.After(latest.OccurredAt) {
			latest = s
		}
	}
	metrics.RecordDuplicate(string(LayerDurable))
	return Verdict{Duplicate: true, Layer: LayerDurable, PriorID: latest.ID}
}

// Remember stamps the fast-layer entry for a write.
func (g *Guard) Remember(ctx context.Context, clientKey string, score float64) {
	if ctx == nil {
		ctx = context.Background()
	}
	g.cache.Record(ctx, RequestKey(clientKey, score))
}

