package trustgate

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/halide-works/aperture-drop/internal/adapter"
	"github.com/halide-works/aperture-drop/internal/logger"
)

const (
	// DefaultThreshold is the number of hard failures that trigger a block.
	DefaultThreshold = 3
	// DefaultBlockDuration is how long a triggered block lasts.
	DefaultBlockDuration = time.Hour
)

// BlockedError reports an active block with the remaining time.
type BlockedError struct {
	RetryAfter time.Duration
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("origin blocked, retry after %s", e.RetryAfter.Round(time.Second))
}

// Gate tracks hard-failure counts per origin and applies time-boxed blocks.
// Records are in-memory and best-effort: losing them on restart degrades
// protection, not correctness.
//
//go:generate mockgen -source=gate.go -destination=../mocks/trustgate.go -package=mocks -mock_names=Gate=MockGate
type Gate interface {
	// Check rejects with a BlockedError while a block is active. Expired
	// blocks are cleared and allowed through.
	Check(origin string) error

	// RecordFailure counts a hard rejection, activating a block at the
	// threshold.
	RecordFailure(origin string)

	// RecordSuccess clears the origin's record entirely.
	RecordSuccess(origin string)

	// Reset removes the record regardless of state (admin surface).
	Reset(origin string)
}

type trustRecord struct {
	failureCount int
	blockedUntil time.Time
}

type gate struct {
	mu        sync.Mutex
	records   map[string]*trustRecord
	threshold int
	blockFor  time.Duration
	clock     adapter.Clock
}

// Option customizes a Gate.
type Option func(*gate)

// WithThreshold overrides the failure threshold.
func WithThreshold(n int) Option {
	return func(g *gate) { g.threshold = n }
}

// WithBlockDuration overrides the block duration.
func WithBlockDuration(d time.Duration) Option {
	return func(g *gate) { g.blockFor = d }
}

// New creates a Gate with the given clock.
func New(clock adapter.Clock, opts ...Option) Gate {
	g := &gate{
		records:   make(map[string]*trustRecord),
		threshold: DefaultThreshold,
		blockFor:  DefaultBlockDuration,
		clock:     clock,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *gate) Check(origin string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	rec, ok := g.records[origin]
	if !ok || rec.blockedUntil.IsZero() {
		return nil
	}

	now := g.clock.Now()
	if now.After(rec.blockedUntil) {
		delete(g.records, origin)
		return nil
	}
	return &BlockedError{RetryAfter: rec.blockedUntil.Sub(now)}
}

func (g *gate) RecordFailure(origin string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	rec, ok := g.records[origin]
	if !ok {
		rec = &trustRecord{}
		g.records[origin] = rec
	}
	rec.failureCount++

	if rec.failureCount >= g.threshold && rec.blockedUntil.IsZero() {
		rec.blockedUntil = g.clock.Now().Add(g.blockFor)
		logger.Warn("Trust gate block activated",
			zap.String("origin", origin),
			zap.Int("failures", rec.failureCount),
			zap.Time("blocked_until", rec.blockedUntil),
		)
	}
}

func (g *gate) RecordSuccess(origin string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.records, origin)
}

func (g *gate) Reset(origin string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.records, origin)
}
