package services

import (
	"encoding/json"
	"math"
	"sort"

	"github.com/spxlabs/command-core/internal/models"
)

// MaxTriggerAlertHistory caps the retained trigger ledger.
const MaxTriggerAlertHistory = 40

// TriggerHistoryState is what the ingest step remembers between ticks: the
// capped ledger plus the last seen status per setup id.
type TriggerHistoryState struct {
	Items          []models.TriggeredAlertHistoryItem `json:"items"`
	PreviousStatus map[string]models.SetupStatus      `json:"previousStatus"`
}

func historyItemFromSetup(setup *models.Setup) models.TriggeredAlertHistoryItem {
	triggeredAt := setup.CreatedAt
	if setup.TriggeredAt != nil {
		triggeredAt = *setup.TriggeredAt
	} else if setup.StatusUpdatedAt != nil {
		triggeredAt = *setup.StatusUpdatedAt
	}
	return models.TriggeredAlertHistoryItem{
		ID:              models.TriggeredAlertID(setup.ID, triggeredAt),
		SetupID:         setup.ID,
		SetupType:       setup.Type,
		Direction:       setup.Direction,
		Regime:          setup.Regime,
		TriggeredAt:     triggeredAt,
		EntryLow:        setup.EntryZone.Low,
		EntryHigh:       setup.EntryZone.High,
		Stop:            setup.Stop,
		Target1:         setup.Target1.Price,
		Target2:         setup.Target2.Price,
		ConfluenceScore: setup.ConfluenceScore,
		Probability:     setup.Probability,
	}
}

// MergeTriggeredAlertHistory merges new items into the ledger: dedupe by the
// deterministic id, newest first by trigger time, capped.
func MergeTriggeredAlertHistory(existing, incoming []models.TriggeredAlertHistoryItem) []models.TriggeredAlertHistoryItem {
	merged := make([]models.TriggeredAlertHistoryItem, 0, len(existing)+len(incoming))
	seen := make(map[string]bool, len(existing)+len(incoming))
	for _, item := range append(append([]models.TriggeredAlertHistoryItem{}, incoming...), existing...) {
		if item.ID == "" || seen[item.ID] {
			continue
		}
		seen[item.ID] = true
		merged = append(merged, item)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].TriggeredAt.After(merged[j].TriggeredAt)
	})
	if len(merged) > MaxTriggerAlertHistory {
		merged = merged[:MaxTriggerAlertHistory]
	}
	return merged
}

// IngestTriggeredAlertSetups detects transitions into triggered status by
// comparing against the remembered previous statuses. A setup first observed
// already triggered also counts, so the ledger survives a restart. Pure:
// returns a new state plus the items created this pass, so callers can
// persist and notify on them directly rather than inferring from ledger
// length, which stays flat once the cap evicts an old item per new one.
func IngestTriggeredAlertSetups(state TriggerHistoryState, setups []models.Setup) (TriggerHistoryState, []models.TriggeredAlertHistoryItem) {
	nextStatus := make(map[string]models.SetupStatus, len(setups))
	var fresh []models.TriggeredAlertHistoryItem

	for i := range setups {
		setup := &setups[i]
		nextStatus[setup.ID] = setup.Status
		if setup.Status != models.StatusTriggered {
			continue
		}
		prev, known := state.PreviousStatus[setup.ID]
		if known && prev == models.StatusTriggered {
			continue
		}
		fresh = append(fresh, historyItemFromSetup(setup))
	}

	return TriggerHistoryState{
		Items:          MergeTriggeredAlertHistory(state.Items, fresh),
		PreviousStatus: nextStatus,
	}, fresh
}

func finiteOrZero(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// SanitizeTriggeredAlertHistory validates persisted ledger JSON item by item,
// silently dropping malformed entries. Legacy items missing confluence or
// probability backfill to zero rather than being dropped.
func SanitizeTriggeredAlertHistory(raw string) []models.TriggeredAlertHistoryItem {
	if raw == "" {
		return nil
	}
	var parsed []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil
	}

	items := make([]models.TriggeredAlertHistoryItem, 0, len(parsed))
	for _, blob := range parsed {
		var item models.TriggeredAlertHistoryItem
		if err := json.Unmarshal(blob, &item); err != nil {
			continue
		}
		if item.ID == "" || item.SetupID == "" || item.TriggeredAt.IsZero() {
			continue
		}
		item.EntryLow = finiteOrZero(item.EntryLow)
		item.EntryHigh = finiteOrZero(item.EntryHigh)
		item.Stop = finiteOrZero(item.Stop)
		item.Target1 = finiteOrZero(item.Target1)
		item.Target2 = finiteOrZero(item.Target2)
		item.ConfluenceScore = finiteOrZero(item.ConfluenceScore)
		item.Probability = finiteOrZero(item.Probability)
		items = append(items, item)
	}
	return MergeTriggeredAlertHistory(nil, items)
}
