package services

import (
	"math"
	"time"

	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/volume"

	"github.com/spxlabs/command-core/internal/models"
)

const (
	// DefaultVWAPStaleAfter bounds how old a VWAP state may be before the
	// filter stops trusting it.
	DefaultVWAPStaleAfter = 90 * time.Second
	// vwapMinBars is the warm-up bar count below which the state is marked
	// unreliable.
	vwapMinBars = 5
	// vwapBonusBandRatio is the distance to VWAP, in deviation bands, inside
	// which an aligned setup earns a confluence bonus.
	vwapBonusBandRatio = 0.5
)

// VWAPAlignment is the filter verdict for one setup direction.
type VWAPAlignment struct {
	Filtered        bool    `json:"filtered"`
	Aligned         bool    `json:"aligned"`
	ConfluenceBonus float64 `json:"confluenceBonus"`
	Reason          string  `json:"reason,omitempty"`
}

// EvaluateVWAPAlignment checks whether a direction is consistent with price
// position versus VWAP. Missing, warming-up or stale state passes through
// with a diagnostic reason; the filter never blocks on absent data.
func EvaluateVWAPAlignment(state *models.VWAPState, direction models.Direction, now time.Time) VWAPAlignment {
	if state == nil {
		return VWAPAlignment{Reason: "vwap_unavailable"}
	}
	if !state.Reliable {
		return VWAPAlignment{Reason: "vwap_warming_up"}
	}
	if now.IsZero() {
		now = time.Now()
	}
	if state.UpdatedAt.IsZero() || now.Sub(state.UpdatedAt) > DefaultVWAPStaleAfter {
		return VWAPAlignment{Reason: "vwap_stale"}
	}

	aligned := (direction == models.DirectionBullish && state.Price > state.Value) ||
		(direction == models.DirectionBearish && state.Price < state.Value)
	if !aligned {
		return VWAPAlignment{Filtered: true, Reason: "vwap_misaligned"}
	}

	bonus := 0.0
	if state.StdDev > 0 && math.Abs(state.Price-state.Value) <= vwapBonusBandRatio*state.StdDev {
		bonus = 1
	}
	return VWAPAlignment{Aligned: true, ConfluenceBonus: bonus}
}

// Bar is one intraday price/volume observation feeding the VWAP builder.
type Bar struct {
	Close  float64
	Volume float64
	At     time.Time
}

// BuildVWAPState computes the session VWAP and a volume-weighted deviation
// around it from intraday bars. Fewer than vwapMinBars marks the state
// unreliable so the filter stays in its grace period.
func BuildVWAPState(bars []Bar) *models.VWAPState {
	if len(bars) == 0 {
		return nil
	}

	closings := make([]float64, len(bars))
	volumes := make([]float64, len(bars))
	for i, bar := range bars {
		closings[i] = bar.Close
		volumes[i] = bar.Volume
	}

	vwapIndicator := volume.NewVwapWithPeriod[float64](len(bars))
	values := helper.ChanToSlice(vwapIndicator.Compute(
		helper.SliceToChan(closings),
		helper.SliceToChan(volumes),
	))
	if len(values) == 0 {
		return nil
	}
	vwap := values[len(values)-1]

	var variance, totalVolume float64
	for i, bar := range bars {
		variance += volumes[i] * (bar.Close - vwap) * (bar.Close - vwap)
		totalVolume += volumes[i]
	}
	stdDev := 0.0
	if totalVolume > 0 {
		stdDev = math.Sqrt(variance / totalVolume)
	}

	last := bars[len(bars)-1]
	return &models.VWAPState{
		Value:     vwap,
		StdDev:    stdDev,
		Price:     last.Close,
		BarCount:  len(bars),
		Reliable:  len(bars) >= vwapMinBars,
		UpdatedAt: last.At,
	}
}
