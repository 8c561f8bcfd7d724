package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeJournalArtifact is produced once per closed trade. Immutable after
// creation; only the summarizer consumes it.
type TradeJournalArtifact struct {
	ID              string           `json:"id"`
	SetupID         string           `json:"setupId"`
	SetupType       SetupType        `json:"setupType"`
	Direction       Direction        `json:"direction"`
	Regime          Regime           `json:"regime"`
	OpenedAt        time.Time        `json:"openedAt"`
	ClosedAt        time.Time        `json:"closedAt"`
	HoldMinutes     *int             `json:"holdMinutes,omitempty"`
	EntryPrice      float64          `json:"entryPrice"`
	ExitPrice       float64          `json:"exitPrice"`
	PnLPoints       float64          `json:"pnlPoints"`
	PnLCurrency     *decimal.Decimal `json:"pnlCurrency,omitempty"`
	Contract        string           `json:"contract,omitempty"`
	ContractMidIn   *decimal.Decimal `json:"contractMidIn,omitempty"`
	ContractMidOut  *decimal.Decimal `json:"contractMidOut,omitempty"`
	AdherenceScore  int              `json:"adherenceScore"`
	ExpectancyR     *float64         `json:"expectancyR,omitempty"`
	StopAtEntry     float64          `json:"stopAtEntry"`
	Target1AtEntry  float64          `json:"target1AtEntry"`
	Target2AtEntry  float64          `json:"target2AtEntry"`
}

// SessionBucket labels the UTC intraday window a trade closed in.
type SessionBucket string

const (
	BucketPreOpen    SessionBucket = "pre_open"
	BucketOpenDrive  SessionBucket = "open_drive"
	BucketMidday     SessionBucket = "midday"
	BucketPowerHour  SessionBucket = "power_hour"
	BucketAfterHours SessionBucket = "after_hours"
)

// BucketForTime maps a close timestamp to its session bucket by UTC hour.
func BucketForTime(t time.Time) SessionBucket {
	switch h := t.UTC().Hour(); {
	case h < 13:
		return BucketPreOpen
	case h < 16:
		return BucketOpenDrive
	case h < 19:
		return BucketMidday
	case h < 21:
		return BucketPowerHour
	default:
		return BucketAfterHours
	}
}

// JournalGroupStats aggregates one slice of the journal.
type JournalGroupStats struct {
	Trades        int      `json:"trades"`
	Wins          int      `json:"wins"`
	Losses        int      `json:"losses"`
	WinRatePct    float64  `json:"winRatePct"`
	MeanExpectR   *float64 `json:"meanExpectancyR,omitempty"`
	MeanAdherence float64  `json:"meanAdherence"`
	NetPnLPoints  float64  `json:"netPnlPoints"`
}

// TradeJournalSummary is the pure reduction over a window of artifacts.
type TradeJournalSummary struct {
	Overall  JournalGroupStats                   `json:"overall"`
	ByRegime map[Regime]JournalGroupStats        `json:"byRegime"`
	ByBucket map[SessionBucket]JournalGroupStats `json:"byBucket"`
}
