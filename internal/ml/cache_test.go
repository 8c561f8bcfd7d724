package ml

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSource struct {
	confidenceLoads atomic.Int32
	tierLoads       atomic.Int32
	delay           time.Duration
	confidenceErr   error
}

func (s *countingSource) LoadConfidenceWeights(context.Context) (*ConfidenceWeights, error) {
	s.confidenceLoads.Add(1)
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if s.confidenceErr != nil {
		return nil, s.confidenceErr
	}
	return DefaultConfidenceModel(), nil
}

func (s *countingSource) LoadTierWeights(context.Context) (*TierWeights, error) {
	s.tierLoads.Add(1)
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	return DefaultTierModel(), nil
}

func TestModelCacheSingleFlight(t *testing.T) {
	source := &countingSource{delay: 20 * time.Millisecond}
	cache := NewModelCache(source)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w, err := cache.Confidence(context.Background())
			assert.NoError(t, err)
			assert.NotNil(t, w)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), source.confidenceLoads.Load())
}

func TestModelCacheCachesAcrossCalls(t *testing.T) {
	source := &countingSource{}
	cache := NewModelCache(source)

	for i := 0; i < 5; i++ {
		_, err := cache.Tier(context.Background())
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), source.tierLoads.Load())
}

func TestModelCacheForceRefresh(t *testing.T) {
	source := &countingSource{}
	cache := NewModelCache(source)

	_, err := cache.Confidence(context.Background())
	require.NoError(t, err)
	_, err = cache.Tier(context.Background())
	require.NoError(t, err)

	require.NoError(t, cache.ForceRefresh(context.Background()))
	assert.Equal(t, int32(2), source.confidenceLoads.Load())
	assert.Equal(t, int32(2), source.tierLoads.Load())
}

func TestModelCacheLoadErrorNotCached(t *testing.T) {
	source := &countingSource{confidenceErr: errors.New("blob store down")}
	cache := NewModelCache(source)

	_, err := cache.Confidence(context.Background())
	require.Error(t, err)

	// a failed load must not poison the cache
	source.confidenceErr = nil
	w, err := cache.Confidence(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, w)
	assert.Equal(t, int32(2), source.confidenceLoads.Load())
}

func TestModelCacheTestInjection(t *testing.T) {
	cache := NewModelCache(nil)

	w, err := cache.Confidence(context.Background())
	require.NoError(t, err)
	assert.Nil(t, w)

	injected := &ConfidenceWeights{Version: "injected", Intercept: 1, Weights: map[string]float64{"flowBias": 1}}
	cache.SetConfidence(injected)
	w, err = cache.Confidence(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "injected", w.Version)

	cache.Reset()
	w, err = cache.Confidence(context.Background())
	require.NoError(t, err)
	assert.Nil(t, w)
}

func TestFileWeightsSourceDefaults(t *testing.T) {
	source := &FileWeightsSource{}

	conf, err := source.LoadConfidenceWeights(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "confidence-default-v1", conf.Version)

	tier, err := source.LoadTierWeights(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tier-default-v1", tier.Version)
}

func TestFileWeightsSourceReadsBlob(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "confidence.json")
	blob, err := json.Marshal(&ConfidenceWeights{
		Version:   "confidence-2025-06",
		Intercept: -0.8,
		Weights:   map[string]float64{"confluenceScore": 0.4},
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, blob, 0o600))

	source := &FileWeightsSource{ConfidencePath: path}
	conf, err := source.LoadConfidenceWeights(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "confidence-2025-06", conf.Version)
	assert.Equal(t, -0.8, conf.Intercept)
}

func TestFileWeightsSourceRejectsMalformedBlob(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tier.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"version":"x"}`), 0o600))

	source := &FileWeightsSource{TierPath: path}
	_, err := source.LoadTierWeights(context.Background())
	assert.Error(t, err)
}
