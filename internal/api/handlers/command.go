package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/spxlabs/command-core/internal/models"
	"github.com/spxlabs/command-core/internal/services"
	"github.com/spxlabs/command-core/internal/utils"
)

// CommandHandler exposes the decision engine over HTTP.
type CommandHandler struct {
	engine *services.CommandEngine
	logger *logrus.Logger
}

func NewCommandHandler(engine *services.CommandEngine, logger *logrus.Logger) *CommandHandler {
	if logger == nil {
		logger = logrus.New()
	}
	return &CommandHandler{engine: engine, logger: logger}
}

// TickRequest is the feed delivery payload.
type TickRequest struct {
	Setups           []models.Setup           `json:"setups"`
	FlowEvents       []models.FlowEvent       `json:"flowEvents"`
	FlowAggregation  *models.FlowAggregation  `json:"flowAggregation"`
	Regime           models.Regime            `json:"regime"`
	Prediction       *models.PredictionState  `json:"prediction"`
	Basis            *models.BasisState       `json:"basis"`
	GEX              *models.GEXProfile       `json:"gex"`
	Metrics          *models.MarketMetrics    `json:"metrics"`
	Bars             []barPayload             `json:"bars"`
	CoachMessages    []models.CoachMessage    `json:"coachMessages"`
	FeedTrustBlocked bool                     `json:"feedTrustBlocked"`
	GeneratedAt      time.Time                `json:"generatedAt"`
}

type barPayload struct {
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
	At     time.Time `json:"at"`
}

// ProcessTick ingests one feed delivery and returns the refreshed snapshot.
func (h *CommandHandler) ProcessTick(c *gin.Context) {
	var req TickRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid tick payload: " + err.Error()})
		return
	}

	bars := make([]services.Bar, len(req.Bars))
	for i, bar := range req.Bars {
		bars[i] = services.Bar{Close: bar.Close, Volume: bar.Volume, At: bar.At}
	}

	snapshot, err := h.engine.ProcessTick(c.Request.Context(), services.TickInput{
		Setups:           req.Setups,
		FlowEvents:       req.FlowEvents,
		FlowAggregation:  req.FlowAggregation,
		Regime:           req.Regime,
		Prediction:       req.Prediction,
		Basis:            req.Basis,
		GEX:              req.GEX,
		Metrics:          req.Metrics,
		Bars:             bars,
		CoachMessages:    req.CoachMessages,
		FeedTrustBlocked: req.FeedTrustBlocked,
		GeneratedAt:      req.GeneratedAt,
	})
	if err != nil {
		h.logger.WithError(err).Error("tick processing failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "tick processing failed"})
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

// GetSnapshot returns the current engine view without processing new input.
func (h *CommandHandler) GetSnapshot(c *gin.Context) {
	c.JSON(http.StatusOK, h.engine.Snapshot(c.Request.Context()))
}

type selectRequest struct {
	SetupID string `json:"setupId"`
}

// SelectSetup records the user's focused setup; an empty id clears it.
func (h *CommandHandler) SelectSetup(c *gin.Context) {
	var req selectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid selection payload"})
		return
	}
	h.engine.SelectSetup(req.SetupID)
	c.JSON(http.StatusOK, gin.H{"selected": req.SetupID})
}

type entryGateRequest struct {
	SetupID string `json:"setupId" binding:"required"`
}

// EvaluateEntryGate runs the risk envelope for one live setup.
func (h *CommandHandler) EvaluateEntryGate(c *gin.Context) {
	var req entryGateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "setupId is required"})
		return
	}
	c.JSON(http.StatusOK, h.engine.EvaluateEntry(req.SetupID))
}

// GetTriggeredHistory returns the capped trigger ledger, newest first.
func (h *CommandHandler) GetTriggeredHistory(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"items": h.engine.TriggeredHistory()})
}

func (h *CommandHandler) alertError(c *gin.Context, err error) {
	var notFound *utils.NotFoundError
	if errors.As(err, &notFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	h.logger.WithError(err).Error("alert lifecycle update failed")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "alert lifecycle update failed"})
}

// MarkAlertSeen acknowledges a coach alert.
func (h *CommandHandler) MarkAlertSeen(c *gin.Context) {
	if err := h.engine.MarkAlertSeen(c.Request.Context(), c.Param("id")); err != nil {
		h.alertError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "seen"})
}

type durationRequest struct {
	DurationMs int64 `json:"durationMs"`
}

func (r durationRequest) duration() time.Duration {
	return time.Duration(r.DurationMs) * time.Millisecond
}

// SnoozeAlert snoozes a coach alert for the requested duration.
func (h *CommandHandler) SnoozeAlert(c *gin.Context) {
	var req durationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid snooze payload"})
		return
	}
	if err := h.engine.SnoozeAlert(c.Request.Context(), c.Param("id"), req.duration()); err != nil {
		h.alertError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "snoozed"})
}

// MuteAlert mutes a coach alert for the requested duration.
func (h *CommandHandler) MuteAlert(c *gin.Context) {
	var req durationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid mute payload"})
		return
	}
	if err := h.engine.MuteAlert(c.Request.Context(), c.Param("id"), req.duration()); err != nil {
		h.alertError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "muted"})
}

// CloseTradeRequest is the journal capture payload for a closed trade.
type CloseTradeRequest struct {
	Setup          *models.Setup           `json:"setup" binding:"required"`
	OpenedAt       time.Time               `json:"openedAt"`
	ClosedAt       time.Time               `json:"closedAt"`
	EntryPrice     float64                 `json:"entryPrice"`
	ExitPrice      float64                 `json:"exitPrice"`
	PnLPoints      float64                 `json:"pnlPoints"`
	PnLCurrency    *decimal.Decimal        `json:"pnlCurrency"`
	Contract       string                  `json:"contract"`
	ContractMidIn  *decimal.Decimal        `json:"contractMidIn"`
	ContractMidOut *decimal.Decimal        `json:"contractMidOut"`
	CoachDecision  *services.CoachDecision `json:"coachDecision"`
}

// CloseTrade captures a closed trade into the journal.
func (h *CommandHandler) CloseTrade(c *gin.Context) {
	var req CloseTradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid close payload: " + err.Error()})
		return
	}

	artifact, err := h.engine.CloseTrade(c.Request.Context(), services.TradeCloseInput{
		Setup:          req.Setup,
		OpenedAt:       req.OpenedAt,
		ClosedAt:       req.ClosedAt,
		EntryPrice:     req.EntryPrice,
		ExitPrice:      req.ExitPrice,
		PnLPoints:      req.PnLPoints,
		PnLCurrency:    req.PnLCurrency,
		Contract:       req.Contract,
		ContractMidIn:  req.ContractMidIn,
		ContractMidOut: req.ContractMidOut,
		CoachDecision:  req.CoachDecision,
	})
	if err != nil {
		h.logger.WithError(err).Error("trade close failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "trade close failed"})
		return
	}
	c.JSON(http.StatusCreated, artifact)
}

// GetJournalSummary reduces the journal window.
func (h *CommandHandler) GetJournalSummary(c *gin.Context) {
	c.JSON(http.StatusOK, h.engine.JournalSummary())
}

// GetJournalArtifacts returns the in-memory journal window, newest first.
func (h *CommandHandler) GetJournalArtifacts(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"items": h.engine.JournalArtifacts()})
}

// RefreshModels forces a classifier weight reload.
func (h *CommandHandler) RefreshModels(c *gin.Context) {
	if err := h.engine.RefreshModels(c.Request.Context()); err != nil {
		h.logger.WithError(err).Error("model refresh failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "model refresh failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "refreshed"})
}
