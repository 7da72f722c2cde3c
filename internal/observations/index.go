package observations

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/halide-works/aperture-drop/internal/adapter"
	"github.com/halide-works/aperture-drop/internal/domain"
	"github.com/halide-works/aperture-drop/internal/ledger"
)

// DefaultTTL is how long a replayed snapshot stays fresh without an
// explicit invalidation.
const DefaultTTL = 30 * time.Second

// Index reconstructs the token-to-observation mapping by replaying the
// ledger's append-only event history. Only the first event per token is
// kept, so the one-observation-forever invariant holds even if the
// underlying log ever carried duplicates. The index is a cache, rebuilt
// from the ledger at any time; it holds no authoritative state.
type Index struct {
	source ledger.Reader
	clock  adapter.Clock
	ttl    time.Duration

	mu        sync.Mutex
	byToken   map[domain.TokenID]domain.Observation
	refreshed time.Time
	valid     bool
}

// NewIndex creates an Index over the given event source.
func NewIndex(source ledger.Reader, clock adapter.Clock, ttl time.Duration) *Index {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Index{
		source: source,
		clock:  clock,
		ttl:    ttl,
	}
}

// Get returns the observation for a token, or ok=false when none exists.
func (ix *Index) Get(ctx context.Context, tokenID domain.TokenID) (domain.Observation, bool, error) {
	snapshot, err := ix.snapshot(ctx)
	if err != nil {
		return domain.Observation{}, false, err
	}
	obs, ok := snapshot[tokenID]
	return obs, ok, nil
}

// All returns every recorded observation ordered by token id.
func (ix *Index) All(ctx context.Context) ([]domain.Observation, error) {
	snapshot, err := ix.snapshot(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]domain.Observation, 0, len(snapshot))
	for _, obs := range snapshot {
		out = append(out, obs)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TokenID < out[j].TokenID })
	return out, nil
}

// Invalidate drops the cached snapshot. Called on every successful claim.
func (ix *Index) Invalidate() {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.valid = false
}

// snapshot returns the cached mapping, replaying the event history when the
// cache is stale or invalidated.
func (ix *Index) snapshot(ctx context.Context) (map[domain.TokenID]domain.Observation, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if ix.valid && ix.clock.Since(ix.refreshed) < ix.ttl {
		return ix.byToken, nil
	}

	events, err := ix.source.ObservationEvents(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to replay observation events: %w", err)
	}

	// Replay from genesis in log order; first event per token wins.
	sort.Slice(events, func(i, j int) bool { return events[i].Seq < events[j].Seq })
	byToken := make(map[domain.TokenID]domain.Observation, len(events))
	for _, ev := range events {
		if _, seen := byToken[ev.TokenID]; seen {
			continue
		}
		byToken[ev.TokenID] = domain.Observation{
			TokenID:   ev.TokenID,
			Text:      ev.Text,
			Author:    ev.Author,
			Timestamp: ev.Timestamp,
		}
	}

	ix.byToken = byToken
	ix.refreshed = ix.clock.Now()
	ix.valid = true
	return ix.byToken, nil
}
