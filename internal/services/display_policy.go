package services

import (
	"github.com/spxlabs/command-core/internal/models"
)

const (
	// directionalBiasThreshold is the forecast lead, in points, needed before
	// the forecast alone sets a bias.
	directionalBiasThreshold = 38
	// compressionConflictThreshold is the forecast confidence above which the
	// compression filter engages without a selected setup.
	compressionConflictThreshold = 68
	// DefaultPrimaryLimit caps the primary display bucket.
	DefaultPrimaryLimit = 2
)

// DisplayPolicyInput is everything the policy needs to bucket the live set.
type DisplayPolicyInput struct {
	Setups       []models.Setup
	Regime       models.Regime
	Prediction   *models.PredictionState
	Selected     *models.Setup
	PrimaryLimit int
}

// DisplayPolicy buckets the reconciled live set for presentation.
type DisplayPolicy struct {
	ActionableAll           []models.Setup   `json:"actionableAll"`
	ActionablePrimary       []models.Setup   `json:"actionablePrimary"`
	Forming                 []models.Setup   `json:"forming"`
	HiddenOppositeCount     int              `json:"hiddenOppositeCount"`
	DirectionalBias         models.Direction `json:"directionalBias,omitempty"`
	CompressionFilterActive bool             `json:"compressionFilterActive"`
	ActionableVisibleCount  int              `json:"actionableVisibleCount"`
}

func resolveDirectionalBias(input *DisplayPolicyInput) models.Direction {
	if input.Selected != nil {
		return input.Selected.Direction
	}
	if input.Prediction == nil {
		return ""
	}
	dir, lead := input.Prediction.Lead()
	if dir != "" && lead > directionalBiasThreshold {
		return dir
	}
	return ""
}

// BuildSetupDisplayPolicy filters the live set into actionable-primary,
// forming and hidden buckets. In a compression regime with a confident
// forecast (or an already-selected setup) the opposite-direction actionable
// setups are suppressed and counted rather than shown.
func BuildSetupDisplayPolicy(input DisplayPolicyInput) DisplayPolicy {
	if input.PrimaryLimit <= 0 {
		input.PrimaryLimit = DefaultPrimaryLimit
	}

	bias := resolveDirectionalBias(&input)
	filterActive := input.Regime == models.RegimeCompression &&
		bias != "" &&
		(input.Selected != nil ||
			(input.Prediction != nil && input.Prediction.Confidence > compressionConflictThreshold))

	policy := DisplayPolicy{
		DirectionalBias:         bias,
		CompressionFilterActive: filterActive,
	}

	for _, s := range RankSetups(input.Setups) {
		switch s.Status {
		case models.StatusReady, models.StatusTriggered:
			if s.Tier == models.TierHidden {
				continue
			}
			if filterActive && s.Direction != bias {
				policy.HiddenOppositeCount++
				continue
			}
			policy.ActionableAll = append(policy.ActionableAll, s)
		case models.StatusForming:
			if s.Tier == models.TierHidden {
				continue
			}
			policy.Forming = append(policy.Forming, s)
		}
	}

	policy.ActionableVisibleCount = len(policy.ActionableAll)
	limit := input.PrimaryLimit
	if limit > len(policy.ActionableAll) {
		limit = len(policy.ActionableAll)
	}
	policy.ActionablePrimary = policy.ActionableAll[:limit]
	return policy
}
