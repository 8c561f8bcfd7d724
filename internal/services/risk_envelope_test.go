package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spxlabs/command-core/internal/models"
)

func gateSetup(status models.SetupStatus) models.Setup {
	s := newTestSetup("g1", status, testBase)
	s.EntryZone = models.EntryZone{Low: 5000, High: 5004} // width 4, mid 5002
	s.Stop = 4992                                         // stop distance 10
	s.ConfluenceScore = 4
	return s
}

func TestEntryGateAllows(t *testing.T) {
	setup := gateSetup(models.StatusReady)
	result := EvaluateEntryGate(EntryGateInput{Setup: &setup})

	assert.True(t, result.AllowEntry)
	assert.Equal(t, ReasonAllow, result.ReasonCode)
	assert.Equal(t, 4.0, result.Metrics.EntryZoneWidth)
	assert.Equal(t, 10.0, result.Metrics.StopDistance)
	assert.Equal(t, 68.0, result.Metrics.ConfidencePercent)
}

func TestEntryGateNoSetup(t *testing.T) {
	result := EvaluateEntryGate(EntryGateInput{})
	assert.False(t, result.AllowEntry)
	assert.Equal(t, ReasonNoSetup, result.ReasonCode)
}

func TestEntryGateNotActionable(t *testing.T) {
	for _, status := range []models.SetupStatus{models.StatusForming, models.StatusInvalidated, models.StatusExpired} {
		setup := gateSetup(status)
		result := EvaluateEntryGate(EntryGateInput{Setup: &setup})
		assert.Equal(t, ReasonSetupNotActionable, result.ReasonCode, "status %s", status)
	}
}

func TestEntryGateFeedTrustOutranksGeometry(t *testing.T) {
	setup := gateSetup(models.StatusReady)
	setup.EntryZone = models.EntryZone{Low: 5000, High: 5020} // would also fail width

	result := EvaluateEntryGate(EntryGateInput{Setup: &setup, FeedTrustBlocked: true})
	assert.Equal(t, ReasonFeedTrustBlocked, result.ReasonCode)
	assert.Equal(t, 20.0, result.Metrics.EntryZoneWidth, "metrics are reported even on denial")
}

func TestEntryGateWidthCheckedBeforeStop(t *testing.T) {
	setup := gateSetup(models.StatusTriggered)
	setup.EntryZone = models.EntryZone{Low: 5000, High: 5012} // width 12 > 8
	setup.Stop = 4950                                         // stop distance 56 > 18, also failing

	result := EvaluateEntryGate(EntryGateInput{Setup: &setup})
	assert.Equal(t, ReasonEntryZoneTooWide, result.ReasonCode)
}

func TestEntryGateStopDistance(t *testing.T) {
	setup := gateSetup(models.StatusReady)
	setup.Stop = 4980 // distance 22 > 18

	result := EvaluateEntryGate(EntryGateInput{Setup: &setup})
	assert.Equal(t, ReasonStopDistanceTooWide, result.ReasonCode)
	assert.Equal(t, 22.0, result.Metrics.StopDistance)
}

func TestEntryGateConfluenceFloor(t *testing.T) {
	setup := gateSetup(models.StatusReady)
	setup.ConfluenceScore = 2.5

	result := EvaluateEntryGate(EntryGateInput{Setup: &setup})
	assert.Equal(t, ReasonLowConfluence, result.ReasonCode)
}

func TestEntryGateOptionalFloorsDisabledAtZero(t *testing.T) {
	setup := gateSetup(models.StatusReady)
	setup.AlignmentScore = 10
	setup.Probability = 30

	result := EvaluateEntryGate(EntryGateInput{Setup: &setup})
	assert.True(t, result.AllowEntry, "alignment and confidence floors are off by default")
}

func TestEntryGateAlignmentFloor(t *testing.T) {
	setup := gateSetup(models.StatusReady)
	setup.AlignmentScore = 40

	result := EvaluateEntryGate(EntryGateInput{Setup: &setup, MinAlignmentScore: 55})
	assert.Equal(t, ReasonLowAlignment, result.ReasonCode)
}

func TestEntryGateConfidencePrefersCalibrated(t *testing.T) {
	setup := gateSetup(models.StatusReady)
	setup.Probability = 90
	pWin := 0.40
	setup.PWinCalibrated = &pWin

	result := EvaluateEntryGate(EntryGateInput{Setup: &setup, MinConfidencePercent: 50})
	require.Equal(t, ReasonLowConfidence, result.ReasonCode)
	assert.Equal(t, 40.0, result.Metrics.ConfidencePercent)
}
