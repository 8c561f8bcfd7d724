package services

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/spxlabs/command-core/internal/models"
)

const (
	// DefaultFlowStaleAfter flags the snapshot stale when the latest event is
	// older than this.
	DefaultFlowStaleAfter = 60 * time.Second
	// maxFlowEvents caps the in-memory raw event buffer.
	maxFlowEvents = 80
)

// FlowSnapshotInput feeds one telemetry snapshot build.
type FlowSnapshotInput struct {
	Now         time.Time
	Events      []models.FlowEvent
	Aggregation *models.FlowAggregation
	StaleAfter  time.Duration
}

// MergeFlowEvents merges an incoming event batch into the buffer: dedupe by
// id, newest first, capped.
func MergeFlowEvents(existing, incoming []models.FlowEvent) []models.FlowEvent {
	merged := make([]models.FlowEvent, 0, len(existing)+len(incoming))
	seen := make(map[string]bool, len(existing)+len(incoming))
	for _, event := range append(append([]models.FlowEvent{}, incoming...), existing...) {
		if event.ID == "" || seen[event.ID] {
			continue
		}
		seen[event.ID] = true
		merged = append(merged, event)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Timestamp.After(merged[j].Timestamp)
	})
	if len(merged) > maxFlowEvents {
		merged = merged[:maxFlowEvents]
	}
	return merged
}

func aggregationFresh(agg *models.FlowAggregation, now time.Time, staleAfter time.Duration) bool {
	if agg == nil || len(agg.Windows) == 0 {
		return false
	}
	if agg.GeneratedAt.IsZero() {
		return false
	}
	return now.Sub(agg.GeneratedAt) <= staleAfter
}

// BuildFlowTelemetrySnapshot summarizes order flow into the rolling view the
// classifier and host surface consume. A fresh precomputed aggregation wins;
// otherwise the windows are recomputed from raw events. Empty or malformed
// input degrades to a stale zeroed snapshot.
func BuildFlowTelemetrySnapshot(input FlowSnapshotInput) models.FlowTelemetrySnapshot {
	now := input.Now
	if now.IsZero() {
		now = time.Now()
	}
	staleAfter := input.StaleAfter
	if staleAfter <= 0 {
		staleAfter = DefaultFlowStaleAfter
	}

	snapshot := models.FlowTelemetrySnapshot{
		Stale:  true,
		Source: models.FlowSourceEmpty,
	}

	var latest time.Time
	for _, event := range input.Events {
		if event.Timestamp.After(latest) {
			latest = event.Timestamp
		}
	}
	if input.Aggregation != nil && input.Aggregation.GeneratedAt.After(latest) {
		latest = input.Aggregation.GeneratedAt
	}
	if !latest.IsZero() {
		latestCopy := latest
		snapshot.LatestEventAt = &latestCopy
		snapshot.Stale = now.Sub(latest) > staleAfter
	}

	if aggregationFresh(input.Aggregation, now, staleAfter) {
		w5, ok5 := input.Aggregation.Windows["5m"]
		w1, ok1 := input.Aggregation.Windows["1m"]
		if ok5 {
			snapshot.Source = models.FlowSourceAggregation
			snapshot.Events5m = w5.EventCount
			snapshot.Sweeps5m = w5.SweepCount
			snapshot.Blocks5m = w5.BlockCount
			snapshot.BullishPremium5m = w5.BullishPremium
			snapshot.BearishPremium5m = w5.BearishPremium
			snapshot.NetPremium5m = w5.BullishPremium.Sub(w5.BearishPremium)
			if ok1 {
				snapshot.Events1m = w1.EventCount
			}
			return snapshot
		}
	}

	if len(input.Events) == 0 {
		snapshot.BullishPremium5m = decimal.Zero
		snapshot.BearishPremium5m = decimal.Zero
		snapshot.NetPremium5m = decimal.Zero
		return snapshot
	}

	snapshot.Source = models.FlowSourceEvents
	oneMinuteAgo := now.Add(-time.Minute)
	fiveMinutesAgo := now.Add(-5 * time.Minute)
	bullish := decimal.Zero
	bearish := decimal.Zero

	for _, event := range input.Events {
		if event.Timestamp.IsZero() || event.Timestamp.After(now) {
			continue
		}
		if event.Timestamp.Before(fiveMinutesAgo) {
			continue
		}
		snapshot.Events5m++
		if !event.Timestamp.Before(oneMinuteAgo) {
			snapshot.Events1m++
		}
		switch event.Type {
		case models.FlowSweep:
			snapshot.Sweeps5m++
		case models.FlowBlock:
			snapshot.Blocks5m++
		}
		switch event.Direction {
		case models.DirectionBullish:
			bullish = bullish.Add(event.Premium)
		case models.DirectionBearish:
			bearish = bearish.Add(event.Premium)
		}
	}

	snapshot.BullishPremium5m = bullish
	snapshot.BearishPremium5m = bearish
	snapshot.NetPremium5m = bullish.Sub(bearish)
	return snapshot
}
