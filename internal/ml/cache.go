package ml

import (
	"context"
	"sync"
)

// WeightsSource fetches versioned weight blobs from wherever they live.
type WeightsSource interface {
	LoadConfidenceWeights(ctx context.Context) (*ConfidenceWeights, error)
	LoadTierWeights(ctx context.Context) (*TierWeights, error)
}

type inflight struct {
	done chan struct{}
	err  error
}

// ModelCache caches both weight blobs process-wide. Concurrent demand for an
// uncached blob triggers at most one load; later callers wait on the same
// in-flight load. ForceRefresh bypasses the cache deliberately, and Set/Reset
// exist for tests.
type ModelCache struct {
	mu     sync.Mutex
	source WeightsSource

	confidence     *ConfidenceWeights
	tier           *TierWeights
	confidenceLoad *inflight
	tierLoad       *inflight
}

// NewModelCache wires a cache to a source. A nil source leaves both models
// unavailable until injected.
func NewModelCache(source WeightsSource) *ModelCache {
	return &ModelCache{source: source}
}

// Confidence returns the cached confidence weights, loading them on first
// use. Returns nil without error when no source is configured.
func (c *ModelCache) Confidence(ctx context.Context) (*ConfidenceWeights, error) {
	c.mu.Lock()
	if c.confidence != nil {
		w := c.confidence
		c.mu.Unlock()
		return w, nil
	}
	if c.source == nil {
		c.mu.Unlock()
		return nil, nil
	}

	if c.confidenceLoad == nil {
		load := &inflight{done: make(chan struct{})}
		c.confidenceLoad = load
		c.mu.Unlock()

		w, err := c.source.LoadConfidenceWeights(ctx)

		c.mu.Lock()
		if err == nil {
			c.confidence = w
		}
		load.err = err
		c.confidenceLoad = nil
		close(load.done)
		w = c.confidence
		c.mu.Unlock()
		return w, err
	}

	load := c.confidenceLoad
	c.mu.Unlock()

	select {
	case <-load.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	c.mu.Lock()
	w := c.confidence
	c.mu.Unlock()
	return w, load.err
}

// Tier returns the cached tier weights, loading them on first use.
func (c *ModelCache) Tier(ctx context.Context) (*TierWeights, error) {
	c.mu.Lock()
	if c.tier != nil {
		w := c.tier
		c.mu.Unlock()
		return w, nil
	}
	if c.source == nil {
		c.mu.Unlock()
		return nil, nil
	}

	if c.tierLoad == nil {
		load := &inflight{done: make(chan struct{})}
		c.tierLoad = load
		c.mu.Unlock()

		w, err := c.source.LoadTierWeights(ctx)

		c.mu.Lock()
		if err == nil {
			c.tier = w
		}
		load.err = err
		c.tierLoad = nil
		close(load.done)
		w = c.tier
		c.mu.Unlock()
		return w, err
	}

	load := c.tierLoad
	c.mu.Unlock()

	select {
	case <-load.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	c.mu.Lock()
	w := c.tier
	c.mu.Unlock()
	return w, load.err
}

// ForceRefresh drops both cached blobs and reloads them from the source.
func (c *ModelCache) ForceRefresh(ctx context.Context) error {
	c.mu.Lock()
	c.confidence = nil
	c.tier = nil
	c.mu.Unlock()

	if _, err := c.Confidence(ctx); err != nil {
		return err
	}
	_, err := c.Tier(ctx)
	return err
}

// SetConfidence injects confidence weights, replacing any cached value.
// Intended for tests and administrative overrides.
func (c *ModelCache) SetConfidence(w *ConfidenceWeights) {
	c.mu.Lock()
	c.confidence = w
	c.mu.Unlock()
}

// SetTier injects tier weights, replacing any cached value.
func (c *ModelCache) SetTier(w *TierWeights) {
	c.mu.Lock()
	c.tier = w
	c.mu.Unlock()
}

// Reset drops both cached blobs without reloading.
func (c *ModelCache) Reset() {
	c.mu.Lock()
	c.confidence = nil
	c.tier = nil
	c.mu.Unlock()
}
