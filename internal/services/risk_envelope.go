package services

import (
	"math"

	"github.com/spxlabs/command-core/internal/models"
)

// GateReason is the auditable verdict code of the entry gate.
type GateReason string

const (
	ReasonAllow               GateReason = "allow"
	ReasonNoSetup             GateReason = "no_setup"
	ReasonSetupNotActionable  GateReason = "setup_not_actionable"
	ReasonFeedTrustBlocked    GateReason = "feed_trust_blocked"
	ReasonEntryZoneTooWide    GateReason = "entry_zone_too_wide"
	ReasonStopDistanceTooWide GateReason = "stop_distance_too_wide"
	ReasonLowConfluence       GateReason = "low_confluence"
	ReasonLowAlignment        GateReason = "low_alignment"
	ReasonLowConfidence       GateReason = "low_confidence"
)

const (
	// DefaultMaxEntryZoneWidth caps the entry band, in points.
	DefaultMaxEntryZoneWidth = 8.0
	// DefaultMaxStopDistance caps entry-midpoint-to-stop, in points.
	DefaultMaxStopDistance = 18.0
	// DefaultMinConfluence is the confluence floor for entry.
	DefaultMinConfluence = 3.0
)

// EntryGateInput parameterizes one gate evaluation. Zero caps fall back to
// the defaults; zero floors for alignment/confidence disable those checks.
type EntryGateInput struct {
	Setup                *models.Setup
	FeedTrustBlocked     bool
	MaxEntryZoneWidth    float64
	MaxStopDistance      float64
	MinConfluenceScore   float64
	MinAlignmentScore    float64
	MinConfidencePercent float64
}

// GateMetrics are the measured values behind the verdict, returned on every
// outcome for observability.
type GateMetrics struct {
	EntryZoneWidth    float64 `json:"entryZoneWidth"`
	StopDistance      float64 `json:"stopDistance"`
	ConfluenceScore   float64 `json:"confluenceScore"`
	AlignmentScore    float64 `json:"alignmentScore"`
	ConfidencePercent float64 `json:"confidencePercent"`
}

// EntryGateResult is the gate decision plus its evidence.
type EntryGateResult struct {
	AllowEntry bool        `json:"allowEntry"`
	ReasonCode GateReason  `json:"reasonCode"`
	Metrics    GateMetrics `json:"metrics"`
}

// EvaluateEntryGate runs the fixed-precedence risk checks, short-circuiting
// at the first failure. The order is part of the contract: callers audit
// reason codes, and a setup failing several checks must always report the
// same one.
func EvaluateEntryGate(input EntryGateInput) EntryGateResult {
	if input.MaxEntryZoneWidth <= 0 {
		input.MaxEntryZoneWidth = DefaultMaxEntryZoneWidth
	}
	if input.MaxStopDistance <= 0 {
		input.MaxStopDistance = DefaultMaxStopDistance
	}
	if input.MinConfluenceScore <= 0 {
		input.MinConfluenceScore = DefaultMinConfluence
	}

	if input.Setup == nil {
		return EntryGateResult{ReasonCode: ReasonNoSetup}
	}
	setup := input.Setup

	metrics := GateMetrics{
		EntryZoneWidth:  setup.EntryZone.Width(),
		StopDistance:    math.Abs(setup.EntryZone.Midpoint() - setup.Stop),
		ConfluenceScore: setup.ConfluenceScore,
		AlignmentScore:  setup.AlignmentScore,
	}
	metrics.ConfidencePercent = setup.Probability
	if setup.PWinCalibrated != nil {
		metrics.ConfidencePercent = *setup.PWinCalibrated * 100
	}

	deny := func(reason GateReason) EntryGateResult {
		return EntryGateResult{ReasonCode: reason, Metrics: metrics}
	}

	switch {
	case setup.Status != models.StatusReady && setup.Status != models.StatusTriggered:
		return deny(ReasonSetupNotActionable)
	case input.FeedTrustBlocked:
		return deny(ReasonFeedTrustBlocked)
	case metrics.EntryZoneWidth > input.MaxEntryZoneWidth:
		return deny(ReasonEntryZoneTooWide)
	case metrics.StopDistance > input.MaxStopDistance:
		return deny(ReasonStopDistanceTooWide)
	case metrics.ConfluenceScore < input.MinConfluenceScore:
		return deny(ReasonLowConfluence)
	case input.MinAlignmentScore > 0 && metrics.AlignmentScore < input.MinAlignmentScore:
		return deny(ReasonLowAlignment)
	case input.MinConfidencePercent > 0 && metrics.ConfidencePercent < input.MinConfidencePercent:
		return deny(ReasonLowConfidence)
	}

	return EntryGateResult{AllowEntry: true, ReasonCode: ReasonAllow, Metrics: metrics}
}
