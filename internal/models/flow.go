package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// FlowEventType distinguishes the two order-flow prints the feed reports.
type FlowEventType string

const (
	FlowSweep FlowEventType = "sweep"
	FlowBlock FlowEventType = "block"
)

// FlowEvent is a single options order-flow print.
type FlowEvent struct {
	ID        string          `json:"id"`
	Type      FlowEventType   `json:"type"`
	Symbol    string          `json:"symbol"`
	Strike    float64         `json:"strike"`
	Expiry    string          `json:"expiry"`
	Size      float64         `json:"size"`
	Direction Direction       `json:"direction"`
	Premium   decimal.Decimal `json:"premium"`
	Timestamp time.Time       `json:"timestamp"`
}

// FlowWindowStats is one rolling window of a server-side flow aggregation.
type FlowWindowStats struct {
	EventCount      int             `json:"eventCount"`
	SweepCount      int             `json:"sweepCount"`
	BlockCount      int             `json:"blockCount"`
	BullishPremium  decimal.Decimal `json:"bullishPremium"`
	BearishPremium  decimal.Decimal `json:"bearishPremium"`
}

// FlowAggregation is the precomputed windowed summary delivered alongside raw
// events. Window keys are "1m", "5m", "15m" and "30m".
type FlowAggregation struct {
	Windows     map[string]FlowWindowStats `json:"windows"`
	GeneratedAt time.Time                  `json:"generatedAt"`
}

// FlowSnapshotSource records which input produced a telemetry snapshot.
type FlowSnapshotSource string

const (
	FlowSourceAggregation FlowSnapshotSource = "aggregation"
	FlowSourceEvents      FlowSnapshotSource = "events"
	FlowSourceEmpty       FlowSnapshotSource = "empty"
)

// FlowTelemetrySnapshot is the rolled-up flow view consumed by the classifier
// and the host surface.
type FlowTelemetrySnapshot struct {
	Events1m        int                `json:"events1m"`
	Events5m        int                `json:"events5m"`
	Sweeps5m        int                `json:"sweeps5m"`
	Blocks5m        int                `json:"blocks5m"`
	BullishPremium5m decimal.Decimal   `json:"bullishPremium5m"`
	BearishPremium5m decimal.Decimal   `json:"bearishPremium5m"`
	NetPremium5m    decimal.Decimal    `json:"netPremium5m"`
	LatestEventAt   *time.Time         `json:"latestEventAt,omitempty"`
	Stale           bool               `json:"stale"`
	Source          FlowSnapshotSource `json:"source"`
}
