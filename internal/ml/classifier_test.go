package ml

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spxlabs/command-core/internal/models"
)

func strongVector() *FeatureVector {
	return &FeatureVector{
		ConfluenceScore:        4.5,
		RegimeCompatibility:    1,
		FlowBias:               0.8,
		HistoricalWinRate:      0.9,
		ConfluenceEMAAlignment: 1,
	}
}

func TestPredictConfidenceBoundsAndRounding(t *testing.T) {
	weights := DefaultConfidenceModel()
	got := PredictConfidence(strongVector(), weights)
	require.NotNil(t, got)
	assert.GreaterOrEqual(t, *got, 0.0)
	assert.LessOrEqual(t, *got, 100.0)
	assert.Equal(t, roundTo(*got, 2), *got)
}

func TestPredictConfidenceSkipsUnknownAndInvalidFeatures(t *testing.T) {
	vec := &FeatureVector{ConfluenceScore: 3}
	weights := &ConfidenceWeights{
		Version:   "t",
		Intercept: 0,
		Weights: map[string]float64{
			"confluenceScore": 0.5,
			"retiredFeature":  100, // unknown name must be ignored
			"flowBias":        math.NaN(),
		},
	}
	got := PredictConfidence(vec, weights)
	require.NotNil(t, got)
	want := roundTo(sigmoid(1.5)*100, 2)
	assert.Equal(t, want, *got)
}

func TestPredictConfidenceNilWhenModelUnusable(t *testing.T) {
	assert.Nil(t, PredictConfidence(strongVector(), nil))
	assert.Nil(t, PredictConfidence(strongVector(), &ConfidenceWeights{Version: "empty"}))
	assert.Nil(t, PredictConfidence(nil, DefaultConfidenceModel()))
}

func TestSigmoidStable(t *testing.T) {
	assert.InDelta(t, 0.5, sigmoid(0), 1e-12)
	assert.InDelta(t, 1.0, sigmoid(500), 1e-12)
	assert.InDelta(t, 0.0, sigmoid(-500), 1e-12)
	assert.False(t, math.IsNaN(sigmoid(-1e9)))
}

func TestPredictTierStrongSignal(t *testing.T) {
	setup := &models.Setup{Type: models.SetupORBBreakout}
	tier := PredictTier(strongVector(), setup, DefaultTierModel())
	require.NotNil(t, tier)
	// a maxed-out vector must land on a visible tier
	assert.NotEqual(t, TierSkip, *tier)
}

func TestPredictTierWeakSignalSkips(t *testing.T) {
	vec := &FeatureVector{
		ConfluenceScore:     0.5,
		RegimeCompatibility: 0.15,
		FlowBias:            -0.9,
		HistoricalWinRate:   0.1,
	}
	setup := &models.Setup{Type: models.SetupFadeAtWall}
	tier := PredictTier(vec, setup, DefaultTierModel())
	require.NotNil(t, tier)
	assert.Equal(t, TierSkip, *tier)
}

func TestPredictTierSetupTypeThresholds(t *testing.T) {
	// fade_at_wall demands a stronger winner than orb_breakout for the same
	// probability; verify via a model whose thresholds come from the blob
	model := DefaultTierModel()
	model.ThresholdsBySetup = map[models.SetupType]TierThresholds{
		models.SetupFadeAtWall: {SniperPrimary: 0.99, SniperSecondary: 0.98, Watchlist: 0.97},
	}
	vec := strongVector()
	strict := PredictTier(vec, &models.Setup{Type: models.SetupFadeAtWall}, model)
	loose := PredictTier(vec, &models.Setup{Type: models.SetupORBBreakout}, model)
	require.NotNil(t, strict)
	require.NotNil(t, loose)
	assert.Equal(t, TierSkip, *strict)
	assert.NotEqual(t, TierSkip, *loose)
}

func TestPredictTierNilWhenModelUnusable(t *testing.T) {
	setup := &models.Setup{Type: models.SetupMeanReversion}
	assert.Nil(t, PredictTier(strongVector(), setup, nil))
	assert.Nil(t, PredictTier(strongVector(), setup, &TierWeights{Version: "empty"}))
}

func TestRuleBasedTierBands(t *testing.T) {
	tests := []struct {
		probability float64
		want        Tier
	}{
		{92, TierSniperPrimary},
		{79, TierSniperPrimary},
		{78.9, TierSniperSecondary},
		{73, TierSniperSecondary},
		{72.9, TierWatchlist},
		{61, TierWatchlist},
		{60.9, TierSkip},
		{0, TierSkip},
	}
	for _, tt := range tests {
		setup := &models.Setup{Probability: tt.probability}
		assert.Equal(t, tt.want, RuleBasedTier(setup), "probability %.1f", tt.probability)
	}
}

func TestRuleBasedTierKeepsExistingVisibleTier(t *testing.T) {
	setup := &models.Setup{Probability: 10, Tier: models.TierSniperPrimary}
	assert.Equal(t, TierSniperPrimary, RuleBasedTier(setup))

	setup.Tier = models.TierHidden
	assert.Equal(t, TierSkip, RuleBasedTier(setup))
}

func TestDisplayTier(t *testing.T) {
	assert.Equal(t, models.TierHidden, DisplayTier(TierSkip))
	assert.Equal(t, models.TierSniperPrimary, DisplayTier(TierSniperPrimary))
	assert.Equal(t, models.TierWatchlist, DisplayTier(TierWatchlist))
}

func TestExtractFeaturesRegimeAndFlow(t *testing.T) {
	now := time.Date(2025, 6, 2, 14, 30, 0, 0, time.UTC)
	created := now.Add(-10 * time.Minute)
	setup := &models.Setup{
		ID:              "s1",
		Type:            models.SetupTrendContinuation,
		Direction:       models.DirectionBullish,
		EntryZone:       models.EntryZone{Low: 5890, High: 5894},
		Stop:            5884,
		Target1:         models.PriceTarget{Price: 5904},
		ConfluenceScore: 4,
		Regime:          models.RegimeTrending,
		Status:          models.StatusReady,
		CreatedAt:       created,
		ClusterZone:     &models.ClusterZone{PriceLow: 5888, PriceHigh: 5892},
	}
	ctx := &ExtractionContext{
		Regime: models.RegimeTrending,
		Now:    now,
		FlowEvents: []models.FlowEvent{
			{ID: "f1", Type: models.FlowSweep, Direction: models.DirectionBullish, Size: 120, Timestamp: now.Add(-time.Minute)},
			{ID: "f2", Type: models.FlowBlock, Direction: models.DirectionBearish, Size: 40, Timestamp: now.Add(-3 * time.Minute)},
		},
	}

	vec := ExtractFeatures(setup, ctx)
	assert.Equal(t, 4.0, vec.ConfluenceScore)
	assert.Equal(t, 1.0, vec.RegimeCompatibility)
	assert.Equal(t, 1.0, vec.RegimeType)
	assert.InDelta(t, 10.0, vec.RegimeAge, 1e-9)
	assert.Positive(t, vec.FlowBias) // newest event is aligned
	assert.Equal(t, 1.0, vec.FlowSweepCount)
	assert.InDelta(t, 160.0, vec.FlowVolume, 1e-9)
	assert.InDelta(t, 1.0, vec.FlowRecency, 1e-9)
	assert.InDelta(t, 2.0, vec.DistanceToNearestCluster, 1e-9)
	// inferred ATR14 = |target1-stop|/2 = 10
	assert.InDelta(t, 10.0, vec.ATR14, 1e-9)
	assert.Equal(t, 1.0, vec.ATR714Ratio)
	assert.Equal(t, 50.0, vec.IVRank)
	assert.Equal(t, 1.0, vec.PutCallRatio)
	assert.Equal(t, -1.0, vec.LastTestResult)
	assert.Equal(t, 0.5, vec.HistoricalWinRate)
}

func TestExtractFeaturesNoFlow(t *testing.T) {
	setup := &models.Setup{
		Regime:    models.RegimeRanging,
		Direction: models.DirectionBearish,
		CreatedAt: time.Now(),
	}
	vec := ExtractFeatures(setup, &ExtractionContext{Now: time.Now()})
	assert.Zero(t, vec.FlowBias)
	assert.Equal(t, float64(missingFlowAge), vec.FlowRecency)
	assert.Equal(t, 0.5, vec.RegimeCompatibility) // no active regime
}

func TestRegimeCompatibilityMatrix(t *testing.T) {
	assert.Equal(t, 1.0, RegimeCompatibility(models.RegimeTrending, models.RegimeTrending))
	assert.Equal(t, 0.65, RegimeCompatibility(models.RegimeTrending, models.RegimeBreakout))
	assert.Equal(t, 0.65, RegimeCompatibility(models.RegimeRanging, models.RegimeCompression))
	assert.Equal(t, 0.15, RegimeCompatibility(models.RegimeTrending, models.RegimeRanging))
	assert.Equal(t, 0.15, RegimeCompatibility(models.RegimeBreakout, models.RegimeCompression))
	assert.Equal(t, 0.5, RegimeCompatibility(models.RegimeTrending, ""))
}
