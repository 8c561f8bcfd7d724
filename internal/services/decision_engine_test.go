package services

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spxlabs/command-core/internal/models"
)

func supportiveContext() *DecisionContext {
	events := make([]models.FlowEvent, 0, 10)
	for i := 0; i < 10; i++ {
		events = append(events, models.FlowEvent{
			ID:        string(rune('a' + i)),
			Type:      models.FlowSweep,
			Direction: models.DirectionBullish,
			Premium:   decimal.NewFromInt(50000),
			Timestamp: testBase.Add(time.Duration(-i) * 10 * time.Second),
		})
	}
	return &DecisionContext{
		Regime:     models.RegimeTrending,
		Prediction: &models.PredictionState{Bullish: 72, Bearish: 14, Confidence: 80},
		Basis:      &models.BasisState{Leading: "SPX", Points: 1.2},
		GEX:        &models.GEXProfile{NetGEX: 2.5e9},
		FlowEvents: events,
		Now:        testBase,
	}
}

func TestEvaluateSetupDecisionNeutralContext(t *testing.T) {
	setup := newTestSetup("s1", models.StatusReady, testBase)
	evaluation := EvaluateSetupDecision(&setup, &DecisionContext{Regime: models.RegimeTrending, Now: testBase})

	assert.Len(t, evaluation.AlignmentByTimeframe, 4)
	for tf, score := range evaluation.AlignmentByTimeframe {
		assert.GreaterOrEqual(t, score, 0.0, tf)
		assert.LessOrEqual(t, score, 1.0, tf)
	}
	assert.GreaterOrEqual(t, evaluation.Confidence, 5.0)
	assert.LessOrEqual(t, evaluation.Confidence, 95.0)
	assert.NotEmpty(t, evaluation.Drivers)
	assert.NotEmpty(t, evaluation.Risks)
}

func TestEvaluateSetupDecisionSupportiveContextScoresHigher(t *testing.T) {
	setup := newTestSetup("s1", models.StatusReady, testBase)

	neutral := EvaluateSetupDecision(&setup, &DecisionContext{Regime: models.RegimeTrending, Now: testBase})
	supported := EvaluateSetupDecision(&setup, supportiveContext())

	assert.Greater(t, supported.AlignmentScore, neutral.AlignmentScore)
	assert.Greater(t, supported.Confidence, neutral.Confidence)
	assert.Greater(t, supported.ExpectedValueR, neutral.ExpectedValueR)
}

func TestEvaluateSetupDecisionRegimeMismatchRisk(t *testing.T) {
	setup := newTestSetup("s1", models.StatusReady, testBase)
	setup.Regime = models.RegimeTrending

	ctx := supportiveContext()
	ctx.Regime = models.RegimeRanging // compatibility 0.15, below the penalty line

	evaluation := EvaluateSetupDecision(&setup, ctx)
	require.NotEmpty(t, evaluation.Risks)
	assert.Contains(t, evaluation.Risks[0], "Regime mismatch")
}

func TestEvaluateSetupDecisionDriversCapped(t *testing.T) {
	setup := newTestSetup("s1", models.StatusReady, testBase)
	evaluation := EvaluateSetupDecision(&setup, supportiveContext())

	assert.LessOrEqual(t, len(evaluation.Drivers), 3)
	assert.LessOrEqual(t, len(evaluation.Risks), 3)
}

func TestEvaluateSetupDecisionFreshness(t *testing.T) {
	setup := newTestSetup("s1", models.StatusReady, testBase.Add(-90*time.Second))
	ctx := &DecisionContext{Regime: models.RegimeTrending, Now: testBase}

	evaluation := EvaluateSetupDecision(&setup, ctx)
	assert.Equal(t, int64(90_000), evaluation.FreshnessMs)
}

func TestExpectedValueRDegenerateGeometry(t *testing.T) {
	setup := newTestSetup("s1", models.StatusReady, testBase)
	setup.Stop = setup.EntryZone.Midpoint() // zero risk

	evaluation := EvaluateSetupDecision(&setup, supportiveContext())
	assert.Zero(t, evaluation.ExpectedValueR)
}

func TestEnrichSetupWithDecision(t *testing.T) {
	setup := newTestSetup("s1", models.StatusReady, testBase)

	enriched := EnrichSetupWithDecision(setup, supportiveContext())

	assert.Zero(t, setup.Score, "input is not mutated")
	assert.NotZero(t, enriched.Score)
	assert.NotZero(t, enriched.AlignmentScore)
	require.NotNil(t, enriched.PWinCalibrated)
	assert.Greater(t, *enriched.PWinCalibrated, 0.0)
	assert.Less(t, *enriched.PWinCalibrated, 1.0)
	assert.NotEmpty(t, enriched.ConfidenceTrend)
	assert.NotEmpty(t, enriched.DecisionDrivers)
	assert.NotEmpty(t, enriched.DecisionRisks)
}

func TestTrendFromBaseline(t *testing.T) {
	assert.Equal(t, TrendUp, trendFromBaseline(70, 60))
	assert.Equal(t, TrendDown, trendFromBaseline(50, 60))
	assert.Equal(t, TrendFlat, trendFromBaseline(62, 60))
}
