package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// SetupType identifies the detection pattern that produced a setup.
type SetupType string

const (
	SetupFadeAtWall        SetupType = "fade_at_wall"
	SetupBreakoutVacuum    SetupType = "breakout_vacuum"
	SetupMeanReversion     SetupType = "mean_reversion"
	SetupTrendContinuation SetupType = "trend_continuation"
	SetupTrendPullback     SetupType = "trend_pullback"
	SetupORBBreakout       SetupType = "orb_breakout"
	SetupFlipReclaim       SetupType = "flip_reclaim"
	SetupVWAPReclaim       SetupType = "vwap_reclaim"
	SetupVWAPFadeAtBand    SetupType = "vwap_fade_at_band"
)

// Direction is the trade side a setup expresses.
type Direction string

const (
	DirectionBullish Direction = "bullish"
	DirectionBearish Direction = "bearish"
)

// SetupStatus is the lifecycle state of a setup. Invalidated and expired are
// terminal.
type SetupStatus string

const (
	StatusForming     SetupStatus = "forming"
	StatusReady       SetupStatus = "ready"
	StatusTriggered   SetupStatus = "triggered"
	StatusInvalidated SetupStatus = "invalidated"
	StatusExpired     SetupStatus = "expired"
)

// statusPriority ranks lifecycle states; lower means more advanced. Used by
// merge arbitration and display ordering.
var statusPriority = map[SetupStatus]int{
	StatusTriggered:   0,
	StatusReady:       1,
	StatusForming:     2,
	StatusInvalidated: 3,
	StatusExpired:     4,
}

// Priority returns the arbitration rank of a status. Unknown statuses rank
// last so malformed feed values never displace real records.
func (s SetupStatus) Priority() int {
	if p, ok := statusPriority[s]; ok {
		return p
	}
	return len(statusPriority)
}

// IsActionable reports whether a setup in this status can still be traded.
func (s SetupStatus) IsActionable() bool {
	switch s {
	case StatusForming, StatusReady, StatusTriggered:
		return true
	}
	return false
}

// IsTerminal reports whether the status ends the setup lifecycle.
func (s SetupStatus) IsTerminal() bool {
	return s == StatusInvalidated || s == StatusExpired
}

// SetupTier is the display priority assigned by the classifier.
type SetupTier string

const (
	TierSniperPrimary   SetupTier = "sniper_primary"
	TierSniperSecondary SetupTier = "sniper_secondary"
	TierWatchlist       SetupTier = "watchlist"
	TierHidden          SetupTier = "hidden"
)

var tierPriority = map[SetupTier]int{
	TierSniperPrimary:   0,
	TierSniperSecondary: 1,
	TierWatchlist:       2,
	TierHidden:          3,
}

// Priority returns the display rank of a tier; unassigned tiers rank after
// watchlist but before hidden.
func (t SetupTier) Priority() int {
	if p, ok := tierPriority[t]; ok {
		return p
	}
	return tierPriority[TierHidden]
}

// Regime is the prevailing market character.
type Regime string

const (
	RegimeTrending    Regime = "trending"
	RegimeRanging     Regime = "ranging"
	RegimeCompression Regime = "compression"
	RegimeBreakout    Regime = "breakout"
)

// EntryZone is the price band where the setup plans its entry.
type EntryZone struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// Width returns the zone width in points.
func (z EntryZone) Width() float64 {
	return z.High - z.Low
}

// Midpoint returns the centre of the zone.
func (z EntryZone) Midpoint() float64 {
	return (z.Low + z.High) / 2
}

// PriceTarget is a labelled profit target.
type PriceTarget struct {
	Price float64 `json:"price"`
	Label string  `json:"label"`
}

// ClusterZoneType grades how strongly a cluster of levels has defended.
type ClusterZoneType string

const (
	ClusterFortress ClusterZoneType = "fortress"
	ClusterDefended ClusterZoneType = "defended"
	ClusterModerate ClusterZoneType = "moderate"
	ClusterMinor    ClusterZoneType = "minor"
)

// ClusterZone is a price band where independent levels coincide. Read-only
// input; this core never mutates it.
type ClusterZone struct {
	ID             string          `json:"id"`
	PriceLow       float64         `json:"priceLow"`
	PriceHigh      float64         `json:"priceHigh"`
	Score          float64         `json:"score"`
	Type           ClusterZoneType `json:"type"`
	Sources        []string        `json:"sources,omitempty"`
	TestCount      int             `json:"testCount"`
	LastTestAt     *time.Time      `json:"lastTestAt,omitempty"`
	HeldOnLastTest *bool           `json:"heldOnLastTest,omitempty"`
	HoldRatePct    *float64        `json:"holdRatePct,omitempty"`
}

// ContractRecommendation is an optional options-contract suggestion attached
// to a setup by the upstream analytics stage.
type ContractRecommendation struct {
	Type         string           `json:"type"`
	Strike       float64          `json:"strike"`
	Expiry       string           `json:"expiry"`
	DaysToExpiry float64          `json:"daysToExpiry"`
	Bid          decimal.Decimal  `json:"bid"`
	Ask          decimal.Decimal  `json:"ask"`
	Mid          *decimal.Decimal `json:"mid,omitempty"`
	IVVsRealized *float64         `json:"ivVsRealized,omitempty"`
	Description  string           `json:"description,omitempty"`
}

// LevelMemoryContext summarizes how the setup's level behaved historically.
type LevelMemoryContext struct {
	Tests      int      `json:"tests"`
	Wins       int      `json:"wins"`
	Losses     int      `json:"losses"`
	WinRatePct *float64 `json:"winRatePct,omitempty"`
	LastResult string   `json:"lastResult,omitempty"`
}

// ConfluenceBreakdown carries the per-signal components behind the confluence
// score, each in [0, 1].
type ConfluenceBreakdown struct {
	EMA float64 `json:"ema"`
	GEX float64 `json:"gex"`
}

// Setup is a candidate trade opportunity delivered by the detection feed and
// enriched by the decision pipeline.
type Setup struct {
	ID                string                  `json:"id"`
	Type              SetupType               `json:"type"`
	Direction         Direction               `json:"direction"`
	EntryZone         EntryZone               `json:"entryZone"`
	Stop              float64                 `json:"stop"`
	Target1           PriceTarget             `json:"target1"`
	Target2           PriceTarget             `json:"target2"`
	ConfluenceScore   float64                 `json:"confluenceScore"`
	ConfluenceSources []string                `json:"confluenceSources,omitempty"`
	Confluence        *ConfluenceBreakdown    `json:"confluenceBreakdown,omitempty"`
	ClusterZone       *ClusterZone            `json:"clusterZone,omitempty"`
	Regime            Regime                  `json:"regime"`
	Status            SetupStatus             `json:"status"`
	Probability       float64                 `json:"probability"`
	PWinCalibrated    *float64                `json:"pWinCalibrated,omitempty"`
	Tier              SetupTier               `json:"tier,omitempty"`
	Score             float64                 `json:"score,omitempty"`
	EVR               float64                 `json:"evR,omitempty"`
	AlignmentScore    float64                 `json:"alignmentScore,omitempty"`
	ConfidenceTrend   string                  `json:"confidenceTrend,omitempty"`
	DecisionDrivers   []string                `json:"decisionDrivers,omitempty"`
	DecisionRisks     []string                `json:"decisionRisks,omitempty"`
	Contract          *ContractRecommendation `json:"recommendedContract,omitempty"`
	Memory            *LevelMemoryContext     `json:"memoryContext,omitempty"`
	InvalidationNote  string                  `json:"invalidationReason,omitempty"`
	CreatedAt         time.Time               `json:"createdAt"`
	TriggeredAt       *time.Time              `json:"triggeredAt,omitempty"`
	StatusUpdatedAt   *time.Time              `json:"statusUpdatedAt,omitempty"`
}

// LifecycleEpoch returns the most authoritative recency marker for the setup
// in unix milliseconds: the max of statusUpdatedAt, triggeredAt and createdAt.
func (s *Setup) LifecycleEpoch() int64 {
	epoch := s.CreatedAt.UnixMilli()
	if s.CreatedAt.IsZero() {
		epoch = 0
	}
	if s.TriggeredAt != nil && s.TriggeredAt.UnixMilli() > epoch {
		epoch = s.TriggeredAt.UnixMilli()
	}
	if s.StatusUpdatedAt != nil && s.StatusUpdatedAt.UnixMilli() > epoch {
		epoch = s.StatusUpdatedAt.UnixMilli()
	}
	return epoch
}

// RiskPoints returns the distance in points between the entry midpoint and
// the stop.
func (s *Setup) RiskPoints() float64 {
	d := s.EntryZone.Midpoint() - s.Stop
	if d < 0 {
		return -d
	}
	return d
}

// RewardRiskRatio returns target1 distance over stop distance, or 0 when the
// stop distance is degenerate.
func (s *Setup) RewardRiskRatio() float64 {
	risk := s.RiskPoints()
	if risk <= 0 {
		return 0
	}
	reward := s.Target1.Price - s.EntryZone.Midpoint()
	if reward < 0 {
		reward = -reward
	}
	return reward / risk
}

// PredictionState is the upstream directional forecast for the session.
type PredictionState struct {
	Bullish    float64 `json:"bullish"`
	Bearish    float64 `json:"bearish"`
	Neutral    float64 `json:"neutral"`
	Confidence float64 `json:"confidence"`
}

// Lead returns the dominant direction and its lead in points over the other
// side. Direction is empty when the forecast is flat.
func (p PredictionState) Lead() (Direction, float64) {
	if p.Bullish > p.Bearish {
		return DirectionBullish, p.Bullish - p.Bearish
	}
	if p.Bearish > p.Bullish {
		return DirectionBearish, p.Bearish - p.Bullish
	}
	return "", 0
}
