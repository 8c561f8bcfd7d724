package services

import (
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/spxlabs/command-core/internal/models"
)

// MaxJournalItems caps how many artifacts the summarizer window retains.
const MaxJournalItems = 240

// CoachDecision is the coach's final read on a trade, folded into adherence.
type CoachDecision struct {
	DecisionID string               `json:"decisionId"`
	Verdict    string               `json:"verdict"`
	Severity   models.CoachSeverity `json:"severity"`
}

// TradeCloseInput describes a closed trade for journal capture.
type TradeCloseInput struct {
	Setup          *models.Setup
	OpenedAt       time.Time
	ClosedAt       time.Time
	EntryPrice     float64
	ExitPrice      float64
	PnLPoints      float64
	PnLCurrency    *decimal.Decimal
	Contract       string
	ContractMidIn  *decimal.Decimal
	ContractMidOut *decimal.Decimal
	CoachDecision  *CoachDecision
}

// CalculateTradeAdherenceScore scores how faithfully a closed trade followed
// its plan. Heuristic but bounded: always in [5, 99], and monotonically
// higher the closer entry/exit tracked the planned zone, stop and target.
func CalculateTradeAdherenceScore(input *TradeCloseInput) int {
	score := 55.0
	setup := input.Setup

	if setup != nil {
		score += clamp(setup.ConfluenceScore*5, 0, 25)
		score += clamp((setup.Probability-50)*0.3, 0, 12)

		risk := math.Abs(input.EntryPrice - setup.Stop)
		if risk > 0 && input.EntryPrice != 0 {
			rr := math.Abs(setup.Target1.Price-input.EntryPrice) / risk
			score += clamp(rr*8, 0, 16)
		}
	}

	if input.CoachDecision != nil {
		switch input.CoachDecision.Severity {
		case models.SeverityCritical:
			score -= 18
		case models.SeverityWarning:
			score -= 8
		}
	}

	if setup != nil && input.EntryPrice != 0 && input.ExitPrice != 0 {
		pnl := input.ExitPrice - input.EntryPrice
		if setup.Direction == models.DirectionBearish {
			pnl = -pnl
		}
		if pnl > 0 {
			score += 6
		} else if pnl < 0 {
			score -= 6
		}
	}

	return int(math.Round(clamp(score, 5, 99)))
}

// CreateTradeJournalArtifact packages a closed trade into an immutable
// artifact: hold duration in whole minutes (floored at one), expectancy in
// risk units (nil when the stop distance is undefined), and the adherence
// score.
func CreateTradeJournalArtifact(input *TradeCloseInput) models.TradeJournalArtifact {
	closedAt := input.ClosedAt
	if closedAt.IsZero() {
		closedAt = time.Now()
	}

	var holdMinutes *int
	if !input.OpenedAt.IsZero() && closedAt.After(input.OpenedAt) {
		minutes := int(math.Round(closedAt.Sub(input.OpenedAt).Minutes()))
		if minutes < 1 {
			minutes = 1
		}
		holdMinutes = &minutes
	}

	var expectancyR *float64
	if input.Setup != nil && input.EntryPrice != 0 {
		riskUnit := math.Abs(input.EntryPrice - input.Setup.Stop)
		if riskUnit >= 0.01 {
			value := math.Round(input.PnLPoints/riskUnit*1000) / 1000
			expectancyR = &value
		}
	}

	artifact := models.TradeJournalArtifact{
		ID:             "spx_journal_" + uuid.NewString(),
		OpenedAt:       input.OpenedAt,
		ClosedAt:       closedAt,
		HoldMinutes:    holdMinutes,
		EntryPrice:     round2(input.EntryPrice),
		ExitPrice:      round2(input.ExitPrice),
		PnLPoints:      round2(input.PnLPoints),
		PnLCurrency:    input.PnLCurrency,
		Contract:       input.Contract,
		ContractMidIn:  input.ContractMidIn,
		ContractMidOut: input.ContractMidOut,
		AdherenceScore: CalculateTradeAdherenceScore(input),
		ExpectancyR:    expectancyR,
	}
	if input.Setup != nil {
		artifact.SetupID = input.Setup.ID
		artifact.SetupType = input.Setup.Type
		artifact.Direction = input.Setup.Direction
		artifact.Regime = input.Setup.Regime
		artifact.StopAtEntry = input.Setup.Stop
		artifact.Target1AtEntry = input.Setup.Target1.Price
		artifact.Target2AtEntry = input.Setup.Target2.Price
	}
	return artifact
}

func summarizeGroup(artifacts []models.TradeJournalArtifact) models.JournalGroupStats {
	stats := models.JournalGroupStats{Trades: len(artifacts)}
	var adherenceSum, pnlSum float64
	var expectancySum float64
	var expectancyCount int

	for _, artifact := range artifacts {
		if artifact.PnLPoints > 0 {
			stats.Wins++
		} else if artifact.PnLPoints < 0 {
			stats.Losses++
		}
		adherenceSum += float64(artifact.AdherenceScore)
		pnlSum += artifact.PnLPoints
		if artifact.ExpectancyR != nil && !math.IsNaN(*artifact.ExpectancyR) {
			expectancySum += *artifact.ExpectancyR
			expectancyCount++
		}
	}

	if stats.Trades > 0 {
		stats.WinRatePct = math.Round(float64(stats.Wins)/float64(stats.Trades)*1000) / 10
		stats.MeanAdherence = math.Round(adherenceSum/float64(stats.Trades)*10) / 10
	}
	if expectancyCount > 0 {
		mean := math.Round(expectancySum/float64(expectancyCount)*1000) / 1000
		stats.MeanExpectR = &mean
	}
	stats.NetPnLPoints = round2(pnlSum)
	return stats
}

// SummarizeTradeJournal reduces a window of artifacts into overall stats plus
// regime and session-bucket breakdowns. Pure; safe on any accumulated window.
func SummarizeTradeJournal(artifacts []models.TradeJournalArtifact) models.TradeJournalSummary {
	summary := models.TradeJournalSummary{
		Overall:  summarizeGroup(artifacts),
		ByRegime: make(map[models.Regime]models.JournalGroupStats),
		ByBucket: make(map[models.SessionBucket]models.JournalGroupStats),
	}

	byRegime := make(map[models.Regime][]models.TradeJournalArtifact)
	byBucket := make(map[models.SessionBucket][]models.TradeJournalArtifact)
	for _, artifact := range artifacts {
		byRegime[artifact.Regime] = append(byRegime[artifact.Regime], artifact)
		bucket := models.BucketForTime(artifact.ClosedAt)
		byBucket[bucket] = append(byBucket[bucket], artifact)
	}
	for regime, group := range byRegime {
		summary.ByRegime[regime] = summarizeGroup(group)
	}
	for bucket, group := range byBucket {
		summary.ByBucket[bucket] = summarizeGroup(group)
	}
	return summary
}
