package ml

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spxlabs/command-core/internal/utils"
)

// FileWeightsSource loads weight blobs from JSON files on disk. Empty paths
// resolve to the built-in default models; malformed blobs are an error so a
// bad deploy is caught at load time rather than silently scoring garbage.
type FileWeightsSource struct {
	ConfidencePath string
	TierPath       string
}

// LoadConfidenceWeights reads and validates the confidence blob.
func (s *FileWeightsSource) LoadConfidenceWeights(_ context.Context) (*ConfidenceWeights, error) {
	if s.ConfidencePath == "" {
		return DefaultConfidenceModel(), nil
	}
	raw, err := os.ReadFile(s.ConfidencePath)
	if err != nil {
		return nil, fmt.Errorf("read confidence weights: %w", err)
	}
	var weights ConfidenceWeights
	if err := json.Unmarshal(raw, &weights); err != nil {
		return nil, fmt.Errorf("parse confidence weights: %w", err)
	}
	if !weights.Valid() {
		return nil, utils.NewValidationErrorf("confidence weights %q missing coefficients", s.ConfidencePath)
	}
	return &weights, nil
}

// LoadTierWeights reads and validates the tier blob.
func (s *FileWeightsSource) LoadTierWeights(_ context.Context) (*TierWeights, error) {
	if s.TierPath == "" {
		return DefaultTierModel(), nil
	}
	raw, err := os.ReadFile(s.TierPath)
	if err != nil {
		return nil, fmt.Errorf("read tier weights: %w", err)
	}
	var weights TierWeights
	if err := json.Unmarshal(raw, &weights); err != nil {
		return nil, fmt.Errorf("parse tier weights: %w", err)
	}
	if !weights.Valid() {
		return nil, utils.NewValidationErrorf("tier weights %q missing per-tier coefficients", s.TierPath)
	}
	return &weights, nil
}
