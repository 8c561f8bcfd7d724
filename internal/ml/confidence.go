package ml

import "math"

// ConfidenceWeights is a versioned logistic coefficient set. Replaced
// wholesale on reload, never mutated in place.
type ConfidenceWeights struct {
	Version   string             `json:"version"`
	Intercept float64            `json:"intercept"`
	Weights   map[string]float64 `json:"weights"`
}

// Valid reports whether the blob has the fields scoring needs.
func (w *ConfidenceWeights) Valid() bool {
	return w != nil && len(w.Weights) > 0 && !math.IsNaN(w.Intercept) && !math.IsInf(w.Intercept, 0)
}

// sigmoid is numerically stable for large-magnitude inputs.
func sigmoid(x float64) float64 {
	if x >= 0 {
		return 1 / (1 + math.Exp(-x))
	}
	e := math.Exp(x)
	return e / (1 + e)
}

// PredictConfidence scores a feature vector against a confidence model,
// returning a 0-100 value rounded to two decimals, or nil when the model is
// unusable. Weights naming unknown or non-finite features are skipped, not
// zero-filled. A nil result means "no opinion", never zero confidence.
func PredictConfidence(vec *FeatureVector, weights *ConfidenceWeights) *float64 {
	if vec == nil || !weights.Valid() {
		return nil
	}

	score := weights.Intercept
	for name, weight := range weights.Weights {
		if math.IsNaN(weight) || math.IsInf(weight, 0) {
			continue
		}
		value, ok := vec.Value(name)
		if !ok || math.IsNaN(value) || math.IsInf(value, 0) {
			continue
		}
		score += weight * value
	}

	confidence := roundTo(sigmoid(score)*100, 2)
	return &confidence
}

// DefaultConfidenceModel is the built-in fallback used when no weight blob is
// configured.
func DefaultConfidenceModel() *ConfidenceWeights {
	return &ConfidenceWeights{
		Version:   "confidence-default-v1",
		Intercept: -1.1,
		Weights: map[string]float64{
			"confluenceScore":        0.42,
			"regimeCompatibility":    0.65,
			"flowBias":               0.5,
			"historicalWinRate":      0.8,
			"confluenceEmaAlignment": 0.25,
			"confluenceGexAlignment": 0.2,
		},
	}
}
