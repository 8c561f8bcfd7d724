package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spxlabs/command-core/internal/api/handlers"
	"github.com/spxlabs/command-core/internal/config"
	"github.com/spxlabs/command-core/internal/models"
	"github.com/spxlabs/command-core/internal/services"
	"github.com/spxlabs/command-core/internal/store"
)

type failingChecker struct{}

func (failingChecker) HealthCheck(context.Context) error { return errors.New("down") }

type okChecker struct{}

func (okChecker) HealthCheck(context.Context) error { return nil }

func newTestRouter(t *testing.T) (*gin.Engine, *services.CommandEngine) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		Stream:   config.StreamConfig{RetentionMs: 30_000, DowngradeGraceMs: 12_000, PrimaryLimit: 2},
		RiskGate: config.RiskGateConfig{MaxEntryZoneWidthPoints: 8, MaxStopDistancePoints: 18, MinConfluenceScore: 3},
		Flow:     config.FlowConfig{StaleAfterMs: 60_000},
	}
	engine := services.NewCommandEngine(cfg, store.NewMemoryKV(), nil, nil)
	router := gin.New()
	SetupRoutes(router, handlers.NewCommandHandler(engine, nil), nil, nil)
	return router, engine
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		blob, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(blob)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)
	return recorder
}

func apiSetup(id string) models.Setup {
	return models.Setup{
		ID:              id,
		Type:            models.SetupFadeAtWall,
		Direction:       models.DirectionBullish,
		EntryZone:       models.EntryZone{Low: 5000, High: 5002},
		Stop:            4995,
		Target1:         models.PriceTarget{Price: 5010},
		Target2:         models.PriceTarget{Price: 5018},
		ConfluenceScore: 3.5,
		Regime:          models.RegimeTrending,
		Status:          models.StatusReady,
		Probability:     68,
		CreatedAt:       time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC),
	}
}

func TestHealthWithoutBackingStores(t *testing.T) {
	router, _ := newTestRouter(t)

	recorder := doJSON(t, router, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	var response HealthResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &response))
	assert.Equal(t, "ok", response.Status)
	assert.Equal(t, "disabled", response.Services.Database)
}

func TestHealthDegraded(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/health", healthCheck(failingChecker{}, okChecker{}))

	recorder := doJSON(t, router, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusServiceUnavailable, recorder.Code)

	var response HealthResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &response))
	assert.Equal(t, "degraded", response.Status)
	assert.Equal(t, "error", response.Services.Database)
	assert.Equal(t, "ok", response.Services.Redis)
}

func TestTickAndSnapshot(t *testing.T) {
	router, _ := newTestRouter(t)

	recorder := doJSON(t, router, http.MethodPost, "/api/v1/stream/tick", gin.H{
		"setups":      []models.Setup{apiSetup("s1")},
		"regime":      models.RegimeTrending,
		"generatedAt": time.Date(2026, 3, 10, 15, 0, 5, 0, time.UTC),
	})
	require.Equal(t, http.StatusOK, recorder.Code)

	var snapshot services.Snapshot
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &snapshot))
	require.Len(t, snapshot.Setups, 1)
	assert.Equal(t, models.TierWatchlist, snapshot.Setups[0].Tier)

	recorder = doJSON(t, router, http.MethodGet, "/api/v1/stream/snapshot", nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &snapshot))
	assert.Len(t, snapshot.Setups, 1)
}

func TestTickRejectsMalformedPayload(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/stream/tick", bytes.NewReader([]byte("{bad")))
	req.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestEntryGateEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	recorder := doJSON(t, router, http.MethodPost, "/api/v1/risk/entry-gate", gin.H{})
	assert.Equal(t, http.StatusBadRequest, recorder.Code)

	recorder = doJSON(t, router, http.MethodPost, "/api/v1/risk/entry-gate", gin.H{"setupId": "missing"})
	require.Equal(t, http.StatusOK, recorder.Code)

	var result services.EntryGateResult
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &result))
	assert.False(t, result.AllowEntry)
	assert.Equal(t, services.ReasonNoSetup, result.ReasonCode)
}

func TestEntryGateAllowsLiveSetup(t *testing.T) {
	router, _ := newTestRouter(t)

	recorder := doJSON(t, router, http.MethodPost, "/api/v1/stream/tick", gin.H{
		"setups": []models.Setup{apiSetup("s1")},
	})
	require.Equal(t, http.StatusOK, recorder.Code)

	recorder = doJSON(t, router, http.MethodPost, "/api/v1/risk/entry-gate", gin.H{"setupId": "s1"})
	require.Equal(t, http.StatusOK, recorder.Code)

	var result services.EntryGateResult
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &result))
	assert.True(t, result.AllowEntry)
}

func TestJournalCloseAndSummary(t *testing.T) {
	router, _ := newTestRouter(t)

	setup := apiSetup("s1")
	recorder := doJSON(t, router, http.MethodPost, "/api/v1/journal/close", gin.H{
		"setup":      setup,
		"openedAt":   time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC),
		"closedAt":   time.Date(2026, 3, 10, 15, 20, 0, 0, time.UTC),
		"entryPrice": 5001,
		"exitPrice":  5009,
		"pnlPoints":  8,
	})
	require.Equal(t, http.StatusCreated, recorder.Code)

	var artifact models.TradeJournalArtifact
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &artifact))
	assert.Contains(t, artifact.ID, "spx_journal_")

	recorder = doJSON(t, router, http.MethodGet, "/api/v1/journal/summary", nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	var summary models.TradeJournalSummary
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &summary))
	assert.Equal(t, 1, summary.Overall.Trades)

	recorder = doJSON(t, router, http.MethodGet, "/api/v1/journal/artifacts", nil)
	require.Equal(t, http.StatusOK, recorder.Code)
}

func TestJournalCloseRequiresSetup(t *testing.T) {
	router, _ := newTestRouter(t)

	recorder := doJSON(t, router, http.MethodPost, "/api/v1/journal/close", gin.H{
		"entryPrice": 5001,
	})
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestAlertLifecycleEndpoints(t *testing.T) {
	router, _ := newTestRouter(t)

	// engine does not know this message id
	recorder := doJSON(t, router, http.MethodPost, "/api/v1/alerts/unknown/seen", nil)
	assert.Equal(t, http.StatusNotFound, recorder.Code)

	recorder = doJSON(t, router, http.MethodPost, "/api/v1/stream/tick", gin.H{
		"coachMessages": []models.CoachMessage{{
			ID:        "m1",
			Type:      models.CoachAlertType,
			Priority:  models.PriorityAlert,
			Content:   "advisory",
			Timestamp: time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC),
		}},
	})
	require.Equal(t, http.StatusOK, recorder.Code)

	recorder = doJSON(t, router, http.MethodPost, "/api/v1/alerts/m1/snooze", gin.H{"durationMs": 60000})
	assert.Equal(t, http.StatusOK, recorder.Code)

	recorder = doJSON(t, router, http.MethodPost, "/api/v1/alerts/m1/mute", gin.H{"durationMs": 60000})
	assert.Equal(t, http.StatusOK, recorder.Code)

	recorder = doJSON(t, router, http.MethodPost, "/api/v1/alerts/m1/seen", nil)
	assert.Equal(t, http.StatusOK, recorder.Code)

	recorder = doJSON(t, router, http.MethodGet, "/api/v1/alerts/history", nil)
	assert.Equal(t, http.StatusOK, recorder.Code)
}

func TestModelRefreshWithoutCache(t *testing.T) {
	router, _ := newTestRouter(t)

	recorder := doJSON(t, router, http.MethodPost, "/api/v1/admin/models/refresh", nil)
	assert.Equal(t, http.StatusOK, recorder.Code)
}
