package services

import (
	"fmt"
	"math"
	"time"

	"github.com/spxlabs/command-core/internal/ml"
	"github.com/spxlabs/command-core/internal/models"
)

// ConfidenceTrend reports how engine confidence compares to the setup's
// baseline probability.
type ConfidenceTrend string

const (
	TrendUp   ConfidenceTrend = "up"
	TrendFlat ConfidenceTrend = "flat"
	TrendDown ConfidenceTrend = "down"
)

// DecisionContext is the market backdrop a setup is evaluated against.
type DecisionContext struct {
	Regime     models.Regime
	Prediction *models.PredictionState
	Basis      *models.BasisState
	GEX        *models.GEXProfile
	FlowEvents []models.FlowEvent
	Now        time.Time
}

// DecisionEvaluation is the blended multi-timeframe read on one setup.
type DecisionEvaluation struct {
	AlignmentByTimeframe map[string]float64 `json:"alignmentByTimeframe"`
	AlignmentScore       float64            `json:"alignmentScore"`
	Confidence           float64            `json:"confidence"`
	ConfidenceTrend      ConfidenceTrend    `json:"confidenceTrend"`
	ExpectedValueR       float64            `json:"expectedValueR"`
	Drivers              []string           `json:"drivers"`
	Risks                []string           `json:"risks"`
	FreshnessMs          int64              `json:"freshnessMs"`
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
func round4(v float64) float64 { return math.Round(v*10000) / 10000 }

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func directionalPredictionScore(direction models.Direction, prediction *models.PredictionState) float64 {
	if prediction == nil {
		return 0.5
	}
	if direction == models.DirectionBullish {
		return clamp(prediction.Bullish/100, 0, 1)
	}
	return clamp(prediction.Bearish/100, 0, 1)
}

// flowAlignmentBias is an undecayed aligned-minus-opposing count over the
// newest 24 events, unlike the decayed feature-extraction bias.
func flowAlignmentBias(direction models.Direction, events []models.FlowEvent) float64 {
	scoped := events
	if len(scoped) > 24 {
		scoped = scoped[:24]
	}
	if len(scoped) == 0 {
		return 0
	}
	var aligned, opposing int
	for _, event := range scoped {
		if event.Direction == direction {
			aligned++
		} else {
			opposing++
		}
	}
	return clamp(float64(aligned-opposing)/float64(len(scoped)), -1, 1)
}

func gexDirectionalSupport(direction models.Direction, gex *models.GEXProfile) float64 {
	if gex == nil || math.IsNaN(gex.NetGEX) || math.IsInf(gex.NetGEX, 0) {
		return 0.5
	}
	if direction == models.DirectionBullish {
		if gex.NetGEX >= 0 {
			return 0.75
		}
		return 0.35
	}
	if gex.NetGEX <= 0 {
		return 0.75
	}
	return 0.35
}

func basisDirectionalSupport(direction models.Direction, basis *models.BasisState) float64 {
	if basis == nil {
		return 0.5
	}
	if basis.Leading == "neutral" {
		return 0.52
	}
	if direction == models.DirectionBullish {
		if basis.Leading == "SPX" {
			return 0.72
		}
		return 0.38
	}
	if basis.Leading == "SPY" {
		return 0.72
	}
	return 0.38
}

func expectedValueR(setup *models.Setup, confidence float64) float64 {
	entryMid := setup.EntryZone.Midpoint()
	risk := math.Abs(entryMid - setup.Stop)
	reward := math.Abs(setup.Target1.Price - entryMid)
	if risk <= 0 || reward <= 0 || math.IsNaN(risk) || math.IsNaN(reward) {
		return 0
	}
	rr := reward / risk
	pWin := clamp(confidence/100, 0, 1)
	return round2(pWin*rr - (1 - pWin))
}

func trendFromBaseline(confidence, baseline float64) ConfidenceTrend {
	delta := confidence - baseline
	if delta >= 5 {
		return TrendUp
	}
	if delta <= -5 {
		return TrendDown
	}
	return TrendFlat
}

func buildDrivers(setup *models.Setup, alignmentScore, flowBias, regimeScore, predictionScore, gexScore float64) []string {
	var drivers []string
	if alignmentScore >= 62 {
		drivers = append(drivers, fmt.Sprintf("Alignment %d%% across 1m/5m/15m/1h", int(math.Round(alignmentScore))))
	}
	if flowBias >= 0.15 {
		drivers = append(drivers, fmt.Sprintf("Flow confirms %s pressure", setup.Direction))
	}
	if regimeScore >= 0.8 {
		drivers = append(drivers, fmt.Sprintf("Regime alignment supports %s", setup.Regime))
	}
	if predictionScore >= 0.58 {
		drivers = append(drivers, fmt.Sprintf("Prediction favors %s continuation", setup.Direction))
	}
	if gexScore >= 0.7 {
		drivers = append(drivers, "Gamma structure supports directional follow-through")
	}
	if len(drivers) == 0 {
		drivers = append(drivers, "Confluence base remains valid but confirmation is mixed")
	}
	if len(drivers) > 3 {
		drivers = drivers[:3]
	}
	return drivers
}

func buildRisks(setup *models.Setup, flowBias, regimeScore, predictionScore float64, trend ConfidenceTrend) []string {
	var risks []string
	if regimeScore < 0.45 {
		risks = append(risks, fmt.Sprintf("Regime mismatch risk vs %s profile", setup.Regime))
	}
	if flowBias <= -0.15 {
		risks = append(risks, "Recent flow is diverging from setup direction")
	}
	if predictionScore < 0.45 {
		risks = append(risks, "Directional prediction confidence is soft")
	}
	if trend == TrendDown {
		risks = append(risks, "Confidence trend is decelerating")
	}
	if len(risks) == 0 {
		risks = append(risks, "No elevated structural risk beyond baseline stop discipline")
	}
	if len(risks) > 3 {
		risks = risks[:3]
	}
	return risks
}

// EvaluateSetupDecision blends regime, prediction, flow, gamma and basis
// support into per-timeframe alignment scores and a bounded confidence read.
func EvaluateSetupDecision(setup *models.Setup, ctx *DecisionContext) DecisionEvaluation {
	regimeScore := ml.RegimeCompatibility(setup.Regime, ctx.Regime)
	predictionScore := directionalPredictionScore(setup.Direction, ctx.Prediction)
	flowBias := flowAlignmentBias(setup.Direction, ctx.FlowEvents)
	flowScore := (flowBias + 1) / 2
	gexScore := gexDirectionalSupport(setup.Direction, ctx.GEX)
	basisScore := basisDirectionalSupport(setup.Direction, ctx.Basis)

	alignment := map[string]float64{
		"1m":  round4(clamp(predictionScore*0.25+flowScore*0.45+gexScore*0.15+basisScore*0.15, 0, 1)),
		"5m":  round4(clamp(regimeScore*0.35+predictionScore*0.25+flowScore*0.2+gexScore*0.1+basisScore*0.1, 0, 1)),
		"15m": round4(clamp(regimeScore*0.5+predictionScore*0.2+flowScore*0.15+basisScore*0.15, 0, 1)),
		"1h":  round4(clamp(regimeScore*0.6+predictionScore*0.15+flowScore*0.1+gexScore*0.15, 0, 1)),
	}
	alignmentScore := round2((alignment["1m"]*0.2 + alignment["5m"]*0.35 + alignment["15m"]*0.25 + alignment["1h"]*0.2) * 100)

	confluenceComponent := (setup.ConfluenceScore / 5) * 22
	probabilityComponent := clamp(setup.Probability, 0, 100) * 0.2
	flowComponent := flowBias * 8
	regimePenalty := 0.0
	if regimeScore < 0.45 {
		regimePenalty = 6
	}

	confidence := round2(clamp(20+alignmentScore*0.55+confluenceComponent+probabilityComponent+flowComponent-regimePenalty, 5, 95))
	trend := trendFromBaseline(confidence, setup.Probability)

	now := ctx.Now
	if now.IsZero() {
		now = time.Now()
	}
	var freshness int64
	if epoch := setup.LifecycleEpoch(); epoch > 0 {
		if f := now.UnixMilli() - epoch; f > 0 {
			freshness = f
		}
	}

	return DecisionEvaluation{
		AlignmentByTimeframe: alignment,
		AlignmentScore:       alignmentScore,
		Confidence:           confidence,
		ConfidenceTrend:      trend,
		ExpectedValueR:       expectedValueR(setup, confidence),
		Drivers:              buildDrivers(setup, alignmentScore, flowBias, regimeScore, predictionScore, gexScore),
		Risks:                buildRisks(setup, flowBias, regimeScore, predictionScore, trend),
		FreshnessMs:          freshness,
	}
}

// EnrichSetupWithDecision attaches the evaluation's score, calibrated win
// probability, expected value and explanation strings to a copy of the setup.
func EnrichSetupWithDecision(setup models.Setup, ctx *DecisionContext) models.Setup {
	evaluation := EvaluateSetupDecision(&setup, ctx)
	pWin := round4(evaluation.Confidence / 100)

	setup.Score = math.Round(evaluation.AlignmentScore*0.45 + evaluation.Confidence*0.55)
	setup.PWinCalibrated = &pWin
	setup.EVR = evaluation.ExpectedValueR
	setup.AlignmentScore = math.Round(evaluation.AlignmentScore)
	setup.ConfidenceTrend = string(evaluation.ConfidenceTrend)
	setup.DecisionDrivers = evaluation.Drivers
	setup.DecisionRisks = evaluation.Risks
	return setup
}
