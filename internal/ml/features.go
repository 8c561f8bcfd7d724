package ml

import (
	"math"
	"time"

	"github.com/spxlabs/command-core/internal/models"
)

const (
	flowBiasDecay        = 0.85
	flowBiasWindow       = 24
	sessionOpenMinuteET  = 9*60 + 30
	sessionLengthMinutes = 390
	missingFlowAge       = 9999
)

// FeatureVector is the flat numeric record the classifier consumes. Field
// names double as weight-map keys in the model blobs.
type FeatureVector struct {
	ConfluenceScore        float64 `json:"confluenceScore"`
	ConfluenceFlowAge      float64 `json:"confluenceFlowAge"`
	ConfluenceEMAAlignment float64 `json:"confluenceEmaAlignment"`
	ConfluenceGEXAlignment float64 `json:"confluenceGexAlignment"`

	RegimeType          float64 `json:"regimeType"`
	RegimeCompatibility float64 `json:"regimeCompatibility"`
	RegimeAge           float64 `json:"regimeAge"`

	FlowBias       float64 `json:"flowBias"`
	FlowRecency    float64 `json:"flowRecency"`
	FlowVolume     float64 `json:"flowVolume"`
	FlowSweepCount float64 `json:"flowSweepCount"`

	DistanceToVWAP           float64 `json:"distanceToVWAP"`
	DistanceToNearestCluster float64 `json:"distanceToNearestCluster"`
	ATR14                    float64 `json:"atr14"`
	ATR714Ratio              float64 `json:"atr7_14_ratio"`

	IVRank       float64 `json:"ivRank"`
	IVSkew       float64 `json:"ivSkew"`
	PutCallRatio float64 `json:"putCallRatio"`
	NetGEX       float64 `json:"netGex"`

	MinutesIntoSession float64 `json:"minutesIntoSession"`
	DayOfWeek          float64 `json:"dayOfWeek"`
	DTE                float64 `json:"dte"`

	HistoricalWinRate   float64 `json:"historicalWinRate"`
	HistoricalTestCount float64 `json:"historicalTestCount"`
	LastTestResult      float64 `json:"lastTestResult"`
}

// Value returns the named feature, reporting false for unknown names so
// weight maps referencing retired features are skipped rather than zeroed.
func (v *FeatureVector) Value(name string) (float64, bool) {
	switch name {
	case "confluenceScore":
		return v.ConfluenceScore, true
	case "confluenceFlowAge":
		return v.ConfluenceFlowAge, true
	case "confluenceEmaAlignment":
		return v.ConfluenceEMAAlignment, true
	case "confluenceGexAlignment":
		return v.ConfluenceGEXAlignment, true
	case "regimeType":
		return v.RegimeType, true
	case "regimeCompatibility":
		return v.RegimeCompatibility, true
	case "regimeAge":
		return v.RegimeAge, true
	case "flowBias":
		return v.FlowBias, true
	case "flowRecency":
		return v.FlowRecency, true
	case "flowVolume":
		return v.FlowVolume, true
	case "flowSweepCount":
		return v.FlowSweepCount, true
	case "distanceToVWAP":
		return v.DistanceToVWAP, true
	case "distanceToNearestCluster":
		return v.DistanceToNearestCluster, true
	case "atr14":
		return v.ATR14, true
	case "atr7_14_ratio":
		return v.ATR714Ratio, true
	case "ivRank":
		return v.IVRank, true
	case "ivSkew":
		return v.IVSkew, true
	case "putCallRatio":
		return v.PutCallRatio, true
	case "netGex":
		return v.NetGEX, true
	case "minutesIntoSession":
		return v.MinutesIntoSession, true
	case "dayOfWeek":
		return v.DayOfWeek, true
	case "dte":
		return v.DTE, true
	case "historicalWinRate":
		return v.HistoricalWinRate, true
	case "historicalTestCount":
		return v.HistoricalTestCount, true
	case "lastTestResult":
		return v.LastTestResult, true
	}
	return 0, false
}

// ExtractionContext is the market context surrounding a setup at feature time.
type ExtractionContext struct {
	Regime     models.Regime
	FlowEvents []models.FlowEvent
	Metrics    *models.MarketMetrics
	GEX        *models.GEXProfile
	Now        time.Time
}

func clampFloat(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func roundTo(v float64, decimals int) float64 {
	factor := math.Pow(10, float64(decimals))
	return math.Round(v*factor) / factor
}

func safe(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func regimeCode(regime models.Regime) float64 {
	switch regime {
	case models.RegimeTrending:
		return 1
	case models.RegimeRanging:
		return 2
	case models.RegimeCompression:
		return 3
	case models.RegimeBreakout:
		return 4
	}
	return 0
}

// RegimeCompatibility scores how well a setup's native regime fits the active
// one. Trending pairs with breakout and compression with ranging; directly
// opposed characters score lowest.
func RegimeCompatibility(setupRegime, activeRegime models.Regime) float64 {
	if activeRegime == "" {
		return 0.5
	}
	if setupRegime == activeRegime {
		return 1
	}
	switch {
	case setupRegime == models.RegimeTrending && activeRegime == models.RegimeBreakout,
		setupRegime == models.RegimeBreakout && activeRegime == models.RegimeTrending,
		setupRegime == models.RegimeCompression && activeRegime == models.RegimeRanging,
		setupRegime == models.RegimeRanging && activeRegime == models.RegimeCompression:
		return 0.65
	case setupRegime == models.RegimeTrending && activeRegime == models.RegimeRanging,
		setupRegime == models.RegimeRanging && activeRegime == models.RegimeTrending,
		setupRegime == models.RegimeBreakout && activeRegime == models.RegimeCompression,
		setupRegime == models.RegimeCompression && activeRegime == models.RegimeBreakout:
		return 0.15
	}
	return 0.3
}

// FlowBias returns a [-1, 1] bias of recent flow toward the given direction,
// exponentially decayed so the newest events dominate. Events are expected
// newest first.
func FlowBias(direction models.Direction, events []models.FlowEvent) float64 {
	scoped := events
	if len(scoped) > flowBiasWindow {
		scoped = scoped[:flowBiasWindow]
	}
	if len(scoped) == 0 {
		return 0
	}

	var aligned, opposing, total float64
	weight := 1.0
	for _, event := range scoped {
		total += weight
		if event.Direction == direction {
			aligned += weight
		} else {
			opposing += weight
		}
		weight *= flowBiasDecay
	}
	if total <= 0 {
		return 0
	}
	return clampFloat((aligned-opposing)/total, -1, 1)
}

func latestFlowEvent(events []models.FlowEvent) time.Time {
	var latest time.Time
	for _, event := range events {
		if event.Timestamp.After(latest) {
			latest = event.Timestamp
		}
	}
	return latest
}

func inferPutCallRatio(ctx *ExtractionContext) float64 {
	if ctx.Metrics != nil && ctx.Metrics.PutCallRatio != nil {
		return safe(*ctx.Metrics.PutCallRatio)
	}
	var bullish, bearish int
	for _, event := range ctx.FlowEvents {
		switch event.Direction {
		case models.DirectionBullish:
			bullish++
		case models.DirectionBearish:
			bearish++
		}
	}
	if bullish == 0 && bearish == 0 {
		return 1
	}
	if bullish == 0 {
		return float64(bearish)
	}
	return roundTo(float64(bearish)/float64(bullish), 4)
}

func inferIVRank(setup *models.Setup, ctx *ExtractionContext) float64 {
	if ctx.Metrics != nil && ctx.Metrics.IVRank != nil {
		return clampFloat(safe(*ctx.Metrics.IVRank), 0, 100)
	}
	if setup.Contract != nil && setup.Contract.IVVsRealized != nil {
		return clampFloat(roundTo((*setup.Contract.IVVsRealized+1)*50, 2), 0, 100)
	}
	return 50
}

func inferDTE(setup *models.Setup, ctx *ExtractionContext, now time.Time) float64 {
	if ctx.Metrics != nil && ctx.Metrics.DTE != nil {
		return math.Max(0, safe(*ctx.Metrics.DTE))
	}
	if setup.Contract == nil {
		return 0
	}
	if setup.Contract.DaysToExpiry > 0 {
		return setup.Contract.DaysToExpiry
	}
	expiry, err := time.Parse(time.RFC3339, setup.Contract.Expiry)
	if err != nil {
		if expiry, err = time.Parse("2006-01-02", setup.Contract.Expiry); err != nil {
			return 0
		}
	}
	days := expiry.Sub(now).Hours() / 24
	return math.Max(0, roundTo(days, 4))
}

func inferLastTestResult(setup *models.Setup) float64 {
	memory := setup.Memory
	if memory == nil || memory.Tests <= 0 {
		return -1
	}
	if memory.Wins > memory.Losses {
		return 1
	}
	if memory.Losses > memory.Wins {
		return 0
	}
	if memory.WinRatePct == nil {
		return -1
	}
	if *memory.WinRatePct >= 50 {
		return 1
	}
	return 0
}

var easternTZ = func() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return time.UTC
	}
	return loc
}()

// ExtractFeatures builds the feature vector for one setup. Pure given its
// inputs; ctx.Now must be set by the caller.
func ExtractFeatures(setup *models.Setup, ctx *ExtractionContext) FeatureVector {
	now := ctx.Now
	if now.IsZero() {
		if epoch := setup.LifecycleEpoch(); epoch > 0 {
			now = time.UnixMilli(epoch)
		} else {
			now = time.Now()
		}
	}

	entryMid := setup.EntryZone.Midpoint()
	clusterMid := entryMid
	if setup.ClusterZone != nil {
		clusterMid = (setup.ClusterZone.PriceLow + setup.ClusterZone.PriceHigh) / 2
	}

	inferredATR14 := roundTo(math.Max(math.Abs(setup.Target1.Price-setup.Stop)/2, 0.01), 4)
	atr14 := inferredATR14
	if ctx.Metrics != nil && ctx.Metrics.ATR14 != nil {
		atr14 = math.Max(0.01, safe(*ctx.Metrics.ATR14))
	}
	atr7 := atr14
	if ctx.Metrics != nil && ctx.Metrics.ATR7 != nil {
		atr7 = math.Max(0.01, safe(*ctx.Metrics.ATR7))
	}

	eastern := now.In(easternTZ)
	minuteOfDay := eastern.Hour()*60 + eastern.Minute()

	historicalWinRate := 0.5
	if setup.Memory != nil && setup.Memory.WinRatePct != nil {
		historicalWinRate = clampFloat(*setup.Memory.WinRatePct/100, 0, 1)
	}

	flowAgeMinutes := float64(missingFlowAge)
	if latest := latestFlowEvent(ctx.FlowEvents); !latest.IsZero() {
		flowAgeMinutes = math.Max(0, roundTo(now.Sub(latest).Minutes(), 4))
	}

	var flowVolume float64
	var sweepCount int
	for _, event := range ctx.FlowEvents {
		flowVolume += safe(event.Size)
		if event.Type == models.FlowSweep {
			sweepCount++
		}
	}

	distanceToVWAP := 0.0
	if ctx.Metrics != nil && ctx.Metrics.DistanceToVWAP != nil {
		distanceToVWAP = math.Abs(safe(*ctx.Metrics.DistanceToVWAP))
	}
	ivSkew := 0.0
	if ctx.Metrics != nil && ctx.Metrics.IVSkew != nil {
		ivSkew = safe(*ctx.Metrics.IVSkew)
	}
	netGEX := 0.0
	if ctx.GEX != nil {
		netGEX = safe(ctx.GEX.NetGEX)
	}

	var emaAlignment, gexAlignment float64
	if setup.Confluence != nil {
		emaAlignment = clampFloat(safe(setup.Confluence.EMA), 0, 1)
		gexAlignment = clampFloat(safe(setup.Confluence.GEX), 0, 1)
	}

	tests := 0
	if setup.Memory != nil {
		tests = setup.Memory.Tests
	}
	if tests < 0 {
		tests = 0
	}

	return FeatureVector{
		ConfluenceScore:        roundTo(clampFloat(safe(setup.ConfluenceScore), 0, 5), 4),
		ConfluenceFlowAge:      flowAgeMinutes,
		ConfluenceEMAAlignment: roundTo(emaAlignment, 4),
		ConfluenceGEXAlignment: roundTo(gexAlignment, 4),

		RegimeType:          regimeCode(ctx.Regime),
		RegimeCompatibility: roundTo(RegimeCompatibility(setup.Regime, ctx.Regime), 4),
		RegimeAge:           roundTo(math.Max(now.Sub(setup.CreatedAt).Minutes(), 0), 4),

		FlowBias:       roundTo(FlowBias(setup.Direction, ctx.FlowEvents), 4),
		FlowRecency:    flowAgeMinutes,
		FlowVolume:     roundTo(flowVolume, 2),
		FlowSweepCount: float64(sweepCount),

		DistanceToVWAP:           roundTo(distanceToVWAP, 4),
		DistanceToNearestCluster: roundTo(math.Abs(entryMid-clusterMid), 4),
		ATR14:                    roundTo(atr14, 4),
		ATR714Ratio:              roundTo(clampFloat(atr7/atr14, 0, 5), 4),

		IVRank:       roundTo(inferIVRank(setup, ctx), 4),
		IVSkew:       roundTo(ivSkew, 4),
		PutCallRatio: roundTo(inferPutCallRatio(ctx), 4),
		NetGEX:       roundTo(netGEX, 4),

		MinutesIntoSession: clampFloat(float64(minuteOfDay-sessionOpenMinuteET), 0, sessionLengthMinutes),
		DayOfWeek:          float64(eastern.Weekday()),
		DTE:                roundTo(inferDTE(setup, ctx, now), 4),

		HistoricalWinRate:   roundTo(historicalWinRate, 4),
		HistoricalTestCount: float64(tests),
		LastTestResult:      inferLastTestResult(setup),
	}
}
