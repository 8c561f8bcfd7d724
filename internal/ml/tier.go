package ml

import (
	"math"

	"github.com/spxlabs/command-core/internal/models"
)

// Tier is the classifier's internal tier label. Skip maps to the display
// tier "hidden" at the boundary.
type Tier string

const (
	TierSniperPrimary   Tier = "sniper_primary"
	TierSniperSecondary Tier = "sniper_secondary"
	TierWatchlist       Tier = "watchlist"
	TierSkip            Tier = "skip"
)

var allTiers = []Tier{TierSniperPrimary, TierSniperSecondary, TierWatchlist, TierSkip}

// TierThresholds are the decision boundaries applied to the softmax winner.
type TierThresholds struct {
	SniperPrimary   float64 `json:"sniperPrimary"`
	SniperSecondary float64 `json:"sniperSecondary"`
	Watchlist       float64 `json:"watchlist"`
}

// TierWeights is a versioned per-tier coefficient set, optionally carrying
// setup-type-specific thresholds.
type TierWeights struct {
	Version              string                              `json:"version"`
	InterceptByTier      map[Tier]float64                    `json:"interceptByTier"`
	FeatureWeightsByTier map[Tier]map[string]float64         `json:"featureWeightsByTier"`
	ThresholdsBySetup    map[models.SetupType]TierThresholds `json:"thresholdsBySetupType,omitempty"`
}

// Valid reports whether the blob has the structures scoring needs.
func (w *TierWeights) Valid() bool {
	return w != nil && len(w.InterceptByTier) > 0 && len(w.FeatureWeightsByTier) > 0
}

var defaultTierThresholds = TierThresholds{SniperPrimary: 0.74, SniperSecondary: 0.62, Watchlist: 0.5}

// Different setup types get different effective decision boundaries for the
// same weights: a fade at a wall needs materially stronger evidence than an
// opening-range breakout.
var thresholdsBySetupType = map[models.SetupType]TierThresholds{
	models.SetupFadeAtWall:        {SniperPrimary: 0.8, SniperSecondary: 0.69, Watchlist: 0.56},
	models.SetupBreakoutVacuum:    {SniperPrimary: 0.73, SniperSecondary: 0.6, Watchlist: 0.48},
	models.SetupMeanReversion:     {SniperPrimary: 0.75, SniperSecondary: 0.64, Watchlist: 0.5},
	models.SetupTrendContinuation: {SniperPrimary: 0.74, SniperSecondary: 0.62, Watchlist: 0.49},
	models.SetupORBBreakout:       {SniperPrimary: 0.72, SniperSecondary: 0.6, Watchlist: 0.47},
	models.SetupTrendPullback:     {SniperPrimary: 0.76, SniperSecondary: 0.64, Watchlist: 0.51},
	models.SetupFlipReclaim:       {SniperPrimary: 0.75, SniperSecondary: 0.63, Watchlist: 0.5},
	models.SetupVWAPReclaim:       {SniperPrimary: 0.73, SniperSecondary: 0.61, Watchlist: 0.48},
	models.SetupVWAPFadeAtBand:    {SniperPrimary: 0.78, SniperSecondary: 0.66, Watchlist: 0.53},
}

// DefaultTierModel is the built-in fallback used when no weight blob is
// configured.
func DefaultTierModel() *TierWeights {
	return &TierWeights{
		Version: "tier-default-v1",
		InterceptByTier: map[Tier]float64{
			TierSniperPrimary:   -0.4,
			TierSniperSecondary: -0.2,
			TierWatchlist:       0.05,
			TierSkip:            0,
		},
		FeatureWeightsByTier: map[Tier]map[string]float64{
			TierSniperPrimary: {
				"confluenceScore":        0.45,
				"regimeCompatibility":    0.3,
				"flowBias":               0.22,
				"historicalWinRate":      0.28,
				"confluenceEmaAlignment": 0.12,
			},
			TierSniperSecondary: {
				"confluenceScore":        0.34,
				"regimeCompatibility":    0.2,
				"flowBias":               0.16,
				"historicalWinRate":      0.16,
				"confluenceEmaAlignment": 0.08,
			},
			TierWatchlist: {
				"confluenceScore":     0.22,
				"regimeCompatibility": 0.12,
				"flowBias":            0.08,
				"historicalWinRate":   0.1,
			},
			TierSkip: {
				"confluenceScore":     -0.2,
				"regimeCompatibility": -0.16,
				"flowBias":            -0.08,
				"historicalWinRate":   -0.1,
				"distanceToVWAP":      0.08,
			},
		},
	}
}

// normalizeFeature rescales raw feature values into the unit ranges the tier
// weights were fitted against.
func normalizeFeature(name string, value float64) float64 {
	switch name {
	case "confluenceScore":
		return clampFloat(value/5, 0, 1)
	case "regimeCompatibility", "historicalWinRate", "confluenceEmaAlignment":
		return clampFloat(value, 0, 1)
	case "flowBias":
		return clampFloat((value+1)/2, 0, 1)
	case "distanceToVWAP":
		return clampFloat(value/10, 0, 1)
	}
	return clampFloat(value, -1, 1)
}

func scoreTier(tier Tier, vec *FeatureVector, model *TierWeights) float64 {
	score := model.InterceptByTier[tier]
	for name, weight := range model.FeatureWeightsByTier[tier] {
		if math.IsNaN(weight) || math.IsInf(weight, 0) {
			continue
		}
		value, ok := vec.Value(name)
		if !ok {
			continue
		}
		score += normalizeFeature(name, value) * weight
	}
	return score
}

func softmax(scores map[Tier]float64) map[Tier]float64 {
	max := math.Inf(-1)
	for _, s := range scores {
		if s > max {
			max = s
		}
	}

	exps := make(map[Tier]float64, len(allTiers))
	var denom float64
	for _, tier := range allTiers {
		e := math.Exp(scores[tier] - max)
		exps[tier] = e
		denom += e
	}
	if denom <= 0 {
		return map[Tier]float64{TierSniperPrimary: 0, TierSniperSecondary: 0, TierWatchlist: 0, TierSkip: 1}
	}

	out := make(map[Tier]float64, len(allTiers))
	for tier, e := range exps {
		out[tier] = e / denom
	}
	return out
}

func bestTier(probabilities map[Tier]float64) (Tier, float64) {
	winner := TierSkip
	best := math.Inf(-1)
	// iterate in fixed order so ties resolve deterministically
	for _, tier := range allTiers {
		if probabilities[tier] > best {
			winner = tier
			best = probabilities[tier]
		}
	}
	return winner, best
}

func (w *TierWeights) thresholdsFor(setupType models.SetupType) TierThresholds {
	if w != nil {
		if t, ok := w.ThresholdsBySetup[setupType]; ok {
			return t
		}
	}
	if t, ok := thresholdsBySetupType[setupType]; ok {
		return t
	}
	return defaultTierThresholds
}

// PredictTier scores the feature vector against the per-tier weight sets and
// applies the setup-type thresholds, demoting a winner that clears softmax
// but misses its boundary. Returns nil when the model is unusable.
func PredictTier(vec *FeatureVector, setup *models.Setup, model *TierWeights) *Tier {
	if vec == nil || !model.Valid() {
		return nil
	}

	scores := make(map[Tier]float64, len(allTiers))
	for _, tier := range allTiers {
		scores[tier] = scoreTier(tier, vec, model)
	}

	winner, probability := bestTier(softmax(scores))
	thresholds := model.thresholdsFor(setup.Type)

	result := winner
	switch {
	case probability < thresholds.Watchlist:
		result = TierSkip
	case winner == TierSniperPrimary && probability < thresholds.SniperPrimary:
		if probability >= thresholds.SniperSecondary {
			result = TierSniperSecondary
		} else {
			result = TierWatchlist
		}
	case winner == TierSniperSecondary && probability < thresholds.SniperSecondary:
		result = TierWatchlist
	}
	return &result
}

// RuleBasedTier is the degradation path when the ML tier is disabled or has
// no opinion: fixed probability bands on the setup's own probability. A setup
// already carrying a visible tier keeps it.
func RuleBasedTier(setup *models.Setup) Tier {
	switch setup.Tier {
	case models.TierSniperPrimary:
		return TierSniperPrimary
	case models.TierSniperSecondary:
		return TierSniperSecondary
	case models.TierWatchlist:
		return TierWatchlist
	}

	switch {
	case setup.Probability >= 79:
		return TierSniperPrimary
	case setup.Probability >= 73:
		return TierSniperSecondary
	case setup.Probability >= 61:
		return TierWatchlist
	}
	return TierSkip
}

// DisplayTier maps the classifier tier onto the display tier; skip renders
// as hidden.
func DisplayTier(tier Tier) models.SetupTier {
	if tier == TierSkip {
		return models.TierHidden
	}
	return models.SetupTier(tier)
}
