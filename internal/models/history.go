package models

import (
	"fmt"
	"time"
)

// TriggeredAlertHistoryItem is an immutable snapshot captured at the moment a
// setup transitions into triggered status.
type TriggeredAlertHistoryItem struct {
	ID              string    `json:"id"`
	SetupID         string    `json:"setupId"`
	SetupType       SetupType `json:"setupType"`
	Direction       Direction `json:"direction"`
	Regime          Regime    `json:"regime"`
	TriggeredAt     time.Time `json:"triggeredAt"`
	EntryLow        float64   `json:"entryLow"`
	EntryHigh       float64   `json:"entryHigh"`
	Stop            float64   `json:"stop"`
	Target1         float64   `json:"target1"`
	Target2         float64   `json:"target2"`
	ConfluenceScore float64   `json:"confluenceScore"`
	Probability     float64   `json:"probability"`
}

// TriggeredAlertID derives the deterministic history id for a trigger event,
// making re-ingestion of the same event idempotent.
func TriggeredAlertID(setupID string, triggeredAt time.Time) string {
	return fmt.Sprintf("%s:%d", setupID, triggeredAt.UnixMilli())
}
