package services

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spxlabs/command-core/internal/models"
)

func TestIngestDetectsTriggerTransition(t *testing.T) {
	ready := newTestSetup("s1", models.StatusReady, testBase)
	state, fresh := IngestTriggeredAlertSetups(TriggerHistoryState{}, []models.Setup{ready})
	assert.Empty(t, state.Items)
	assert.Empty(t, fresh)

	triggered := ready
	triggered.Status = models.StatusTriggered
	triggered.TriggeredAt = timePtr(testBase.Add(time.Minute))

	state, fresh = IngestTriggeredAlertSetups(state, []models.Setup{triggered})
	require.Len(t, state.Items, 1)
	require.Len(t, fresh, 1)
	item := state.Items[0]
	assert.Equal(t, models.TriggeredAlertID("s1", testBase.Add(time.Minute)), item.ID)
	assert.Equal(t, "s1", item.SetupID)
	assert.Equal(t, testBase.Add(time.Minute), item.TriggeredAt)
	assert.Equal(t, 5000.0, item.EntryLow)
	assert.Equal(t, item.ID, fresh[0].ID)
}

func TestIngestFirstObservationAlreadyTriggered(t *testing.T) {
	triggered := newTestSetup("s1", models.StatusTriggered, testBase)
	triggered.TriggeredAt = timePtr(testBase)

	state, fresh := IngestTriggeredAlertSetups(TriggerHistoryState{}, []models.Setup{triggered})
	assert.Len(t, state.Items, 1, "a setup first seen triggered still enters the ledger")
	assert.Len(t, fresh, 1)
}

func TestIngestIdempotentOnRepeatedTicks(t *testing.T) {
	triggered := newTestSetup("s1", models.StatusTriggered, testBase)
	triggered.TriggeredAt = timePtr(testBase)

	state, _ := IngestTriggeredAlertSetups(TriggerHistoryState{}, []models.Setup{triggered})
	state, fresh := IngestTriggeredAlertSetups(state, []models.Setup{triggered})
	assert.Empty(t, fresh)
	state, fresh = IngestTriggeredAlertSetups(state, []models.Setup{triggered})
	assert.Empty(t, fresh)

	assert.Len(t, state.Items, 1)
}

func TestIngestRetriggerAfterDowngradeCreatesNewItem(t *testing.T) {
	triggered := newTestSetup("s1", models.StatusTriggered, testBase)
	triggered.TriggeredAt = timePtr(testBase)
	state, _ := IngestTriggeredAlertSetups(TriggerHistoryState{}, []models.Setup{triggered})

	ready := newTestSetup("s1", models.StatusReady, testBase)
	state, _ = IngestTriggeredAlertSetups(state, []models.Setup{ready})

	again := triggered
	again.TriggeredAt = timePtr(testBase.Add(10 * time.Minute))
	state, fresh := IngestTriggeredAlertSetups(state, []models.Setup{again})

	require.Len(t, fresh, 1)
	assert.Len(t, state.Items, 2)
	assert.Equal(t, testBase.Add(10*time.Minute), state.Items[0].TriggeredAt, "newest first")
}

func TestIngestReportsFreshItemsAtCap(t *testing.T) {
	state := TriggerHistoryState{PreviousStatus: map[string]models.SetupStatus{}}
	for i := 0; i < MaxTriggerAlertHistory; i++ {
		at := testBase.Add(time.Duration(i) * time.Minute)
		state.Items = append(state.Items, models.TriggeredAlertHistoryItem{
			ID:          models.TriggeredAlertID(fmt.Sprintf("s%d", i), at),
			SetupID:     fmt.Sprintf("s%d", i),
			TriggeredAt: at,
		})
	}
	state.Items = MergeTriggeredAlertHistory(nil, state.Items)
	require.Len(t, state.Items, MaxTriggerAlertHistory)

	newest := newTestSetup("s-new", models.StatusTriggered, testBase)
	newest.TriggeredAt = timePtr(testBase.Add(time.Hour))
	state, fresh := IngestTriggeredAlertSetups(state, []models.Setup{newest})

	require.Len(t, fresh, 1, "eviction keeps the count flat but the new item is still fresh")
	assert.Equal(t, "s-new", fresh[0].SetupID)
	require.Len(t, state.Items, MaxTriggerAlertHistory)
	assert.Equal(t, "s-new", state.Items[0].SetupID)
	assert.Equal(t, testBase.Add(time.Minute), state.Items[len(state.Items)-1].TriggeredAt, "oldest entry evicted")
}

func TestMergeTriggeredAlertHistoryCap(t *testing.T) {
	var items []models.TriggeredAlertHistoryItem
	for i := 0; i < 60; i++ {
		at := testBase.Add(time.Duration(i) * time.Minute)
		items = append(items, models.TriggeredAlertHistoryItem{
			ID:          models.TriggeredAlertID(fmt.Sprintf("s%d", i), at),
			SetupID:     fmt.Sprintf("s%d", i),
			TriggeredAt: at,
		})
	}

	merged := MergeTriggeredAlertHistory(nil, items)

	require.Len(t, merged, MaxTriggerAlertHistory)
	assert.Equal(t, testBase.Add(59*time.Minute), merged[0].TriggeredAt, "newest survive the cap")
	assert.Equal(t, testBase.Add(20*time.Minute), merged[len(merged)-1].TriggeredAt)
}

func TestSanitizeTriggeredAlertHistory(t *testing.T) {
	raw := `[
		{"id": "s1:100", "setupId": "s1", "triggeredAt": "2026-03-10T14:00:00Z", "entryLow": 5000, "probability": 70},
		{"id": "", "setupId": "s2", "triggeredAt": "2026-03-10T14:00:00Z"},
		{"id": "s3:100", "setupId": "s3", "triggeredAt": "2026-03-10T13:00:00Z"},
		"not an object"
	]`

	items := SanitizeTriggeredAlertHistory(raw)

	require.Len(t, items, 2)
	assert.Equal(t, "s1:100", items[0].ID)
	assert.Equal(t, "s3:100", items[1].ID)
	assert.Zero(t, items[1].Probability, "missing numerics backfill to zero")

	assert.Nil(t, SanitizeTriggeredAlertHistory("[garbage"))
	assert.Nil(t, SanitizeTriggeredAlertHistory(""))
}
