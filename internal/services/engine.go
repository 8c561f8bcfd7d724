package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/spxlabs/command-core/internal/config"
	"github.com/spxlabs/command-core/internal/ml"
	"github.com/spxlabs/command-core/internal/models"
	"github.com/spxlabs/command-core/internal/store"
	"github.com/spxlabs/command-core/internal/utils"
)

// Notifier pushes outbound alerts. Implementations must tolerate being
// called concurrently.
type Notifier interface {
	NotifyTriggered(ctx context.Context, item models.TriggeredAlertHistoryItem) error
}

// JournalArchiver persists closed-trade artifacts beyond the in-memory
// summarizer window.
type JournalArchiver interface {
	InsertArtifact(ctx context.Context, artifact *models.TradeJournalArtifact) error
	ListArtifacts(ctx context.Context, limit int) ([]models.TradeJournalArtifact, error)
}

// TickInput is one feed delivery: the setup batch plus the market context it
// was computed against.
type TickInput struct {
	Setups           []models.Setup
	FlowEvents       []models.FlowEvent
	FlowAggregation  *models.FlowAggregation
	Regime           models.Regime
	Prediction       *models.PredictionState
	Basis            *models.BasisState
	GEX              *models.GEXProfile
	Metrics          *models.MarketMetrics
	Bars             []Bar
	CoachMessages    []models.CoachMessage
	FeedTrustBlocked bool
	GeneratedAt      time.Time
}

// Snapshot is the engine's externally visible state after a tick.
type Snapshot struct {
	Setups        []models.Setup               `json:"setups"`
	Display       DisplayPolicy                `json:"display"`
	Flow          models.FlowTelemetrySnapshot `json:"flow"`
	TopAlert      *models.CoachMessage         `json:"topAlert,omitempty"`
	History       []models.TriggeredAlertHistoryItem `json:"history"`
	Regime        models.Regime                `json:"regime,omitempty"`
	GeneratedAt   time.Time                    `json:"generatedAt"`
	FeedTrusted   bool                         `json:"feedTrusted"`
}

// CommandEngine owns the live setup view and drives the decision pipeline.
// The pure functions in this package do the work; the engine sequences them,
// holds state between ticks and performs the storage I/O the core never does.
type CommandEngine struct {
	cfg      *config.Config
	logger   *logrus.Logger
	kv       store.KeyValue
	models   *ml.ModelCache
	notifier Notifier
	archiver JournalArchiver
	userID   string

	mu            sync.Mutex
	live          []models.Setup
	flowEvents    []models.FlowEvent
	flowAgg       *models.FlowAggregation
	regime        models.Regime
	prediction    *models.PredictionState
	basis         *models.BasisState
	gex           *models.GEXProfile
	metrics       *models.MarketMetrics
	vwap          *models.VWAPState
	coachMessages []models.CoachMessage
	triggerState  TriggerHistoryState
	journalWindow []models.TradeJournalArtifact
	selectedID    string
	feedBlocked   bool
	lastTick      time.Time
}

// NewCommandEngine wires the engine. cfg must be non-nil; notifier and
// archiver are optional.
func NewCommandEngine(cfg *config.Config, kv store.KeyValue, modelCache *ml.ModelCache, logger *logrus.Logger) *CommandEngine {
	if logger == nil {
		logger = logrus.New()
	}
	if kv == nil {
		kv = store.NewMemoryKV()
	}
	return &CommandEngine{
		cfg:    cfg,
		logger: logger,
		kv:     kv,
		models: modelCache,
		userID: "default",
		triggerState: TriggerHistoryState{
			PreviousStatus: map[string]models.SetupStatus{},
		},
	}
}

// SetNotifier attaches an outbound notifier.
func (e *CommandEngine) SetNotifier(n Notifier) { e.notifier = n }

// SetArchiver attaches a journal archiver.
func (e *CommandEngine) SetArchiver(a JournalArchiver) { e.archiver = a }

// SetUserID sets the rollout identity used for classifier bucketing.
func (e *CommandEngine) SetUserID(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if id != "" {
		e.userID = id
	}
}

// Restore loads persisted trigger history so the ledger survives restarts.
func (e *CommandEngine) Restore(ctx context.Context) error {
	raw, ok, err := e.kv.Get(ctx, store.KeyTriggeredHistory)
	if err != nil {
		return fmt.Errorf("restore trigger history: %w", err)
	}
	if !ok {
		return nil
	}
	items := SanitizeTriggeredAlertHistory(raw)

	e.mu.Lock()
	e.triggerState.Items = items
	e.mu.Unlock()

	e.logger.WithFields(logrus.Fields{
		"items": len(items),
	}).Info("restored triggered alert history")
	return nil
}

func (e *CommandEngine) rolloutFlags() (confidence, tier ml.RolloutFlags) {
	confidence = ml.RolloutFlags{Enabled: e.cfg.ML.ConfidenceEnabled, Percent: e.cfg.ML.ConfidencePercent}
	tier = ml.RolloutFlags{Enabled: e.cfg.ML.TierEnabled, Percent: e.cfg.ML.TierPercent}
	return
}

// classifySetup assigns tier and, when rolled in, ML confidence to one
// enriched setup. A VWAP-misaligned setup never keeps a sniper tier; an
// aligned one near VWAP earns a confluence bonus before scoring.
func (e *CommandEngine) classifySetup(ctx context.Context, setup models.Setup, now time.Time) models.Setup {
	alignment := EvaluateVWAPAlignment(e.vwap, setup.Direction, now)

	scored := setup
	if alignment.ConfluenceBonus > 0 {
		scored.ConfluenceScore = clamp(scored.ConfluenceScore+alignment.ConfluenceBonus, 0, 5)
	}

	features := ml.ExtractFeatures(&scored, &ml.ExtractionContext{
		Regime:     e.regime,
		FlowEvents: e.flowEvents,
		Metrics:    e.metrics,
		GEX:        e.gex,
		Now:        now,
	})

	confidenceFlags, tierFlags := e.rolloutFlags()

	if confidenceFlags.EnabledForUser(e.userID, nil) && e.models != nil {
		if weights, err := e.models.Confidence(ctx); err != nil {
			e.logger.WithError(err).Warn("confidence weights unavailable, keeping engine confidence")
		} else if prediction := ml.PredictConfidence(&features, weights); prediction != nil {
			pWin := *prediction / 100
			scored.PWinCalibrated = &pWin
		}
	}

	var tier *ml.Tier
	if tierFlags.EnabledForUser(e.userID, nil) && e.models != nil {
		weights, err := e.models.Tier(ctx)
		if err != nil {
			e.logger.WithError(err).Warn("tier weights unavailable, falling back to rule-based tier")
		} else {
			tier = ml.PredictTier(&features, &scored, weights)
		}
	}
	if tier == nil {
		fallback := ml.RuleBasedTier(&scored)
		tier = &fallback
	}

	display := ml.DisplayTier(*tier)
	if alignment.Filtered &&
		(display == models.TierSniperPrimary || display == models.TierSniperSecondary) {
		display = models.TierWatchlist
	}
	scored.Tier = display
	return scored
}

// ProcessTick runs one full pipeline pass and returns the fresh snapshot.
func (e *CommandEngine) ProcessTick(ctx context.Context, input TickInput) (*Snapshot, error) {
	now := input.GeneratedAt
	if now.IsZero() {
		now = time.Now()
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.regime = input.Regime
	e.prediction = input.Prediction
	e.basis = input.Basis
	e.gex = input.GEX
	e.metrics = input.Metrics
	e.feedBlocked = input.FeedTrustBlocked
	e.lastTick = now
	if input.CoachMessages != nil {
		e.coachMessages = input.CoachMessages
	}
	if len(input.Bars) > 0 {
		e.vwap = BuildVWAPState(input.Bars)
	}

	e.flowEvents = MergeFlowEvents(e.flowEvents, input.FlowEvents)
	if input.FlowAggregation != nil {
		e.flowAgg = input.FlowAggregation
	}

	decisionCtx := &DecisionContext{
		Regime:     e.regime,
		Prediction: e.prediction,
		Basis:      e.basis,
		GEX:        e.gex,
		FlowEvents: e.flowEvents,
		Now:        now,
	}
	enriched := make([]models.Setup, len(input.Setups))
	for i, setup := range input.Setups {
		enriched[i] = EnrichSetupWithDecision(setup, decisionCtx)
	}

	e.live = MergeActionableSetups(e.live, enriched, MergeOptions{
		Now:            now,
		Retention:      e.cfg.Stream.RetentionDuration(),
		DowngradeGrace: e.cfg.Stream.DowngradeGraceDuration(),
	})

	for i := range e.live {
		e.live[i] = e.classifySetup(ctx, e.live[i], now)
	}
	e.live = RankSetups(e.live)

	var fresh []models.TriggeredAlertHistoryItem
	e.triggerState, fresh = IngestTriggeredAlertSetups(e.triggerState, e.live)
	if len(fresh) > 0 {
		e.persistTriggerHistory(ctx)
		e.notifyNewTriggers(ctx, fresh)
	}

	snapshot := e.buildSnapshotLocked(ctx, now)
	e.logger.WithFields(logrus.Fields{
		"live":      len(e.live),
		"primary":   len(snapshot.Display.ActionablePrimary),
		"triggered": len(snapshot.History),
		"flow5m":    snapshot.Flow.Events5m,
	}).Debug("tick processed")
	return snapshot, nil
}

func (e *CommandEngine) persistTriggerHistory(ctx context.Context) {
	blob, err := json.Marshal(e.triggerState.Items)
	if err != nil {
		e.logger.WithError(err).Error("marshal trigger history")
		return
	}
	if err := e.kv.Set(ctx, store.KeyTriggeredHistory, string(blob)); err != nil {
		e.logger.WithError(err).Error("persist trigger history")
	}
}

func (e *CommandEngine) notifyNewTriggers(ctx context.Context, fresh []models.TriggeredAlertHistoryItem) {
	if e.notifier == nil {
		return
	}
	for _, item := range fresh {
		if err := e.notifier.NotifyTriggered(ctx, item); err != nil {
			e.logger.WithError(err).WithField("setup_id", item.SetupID).Warn("trigger notification failed")
		}
	}
}

func (e *CommandEngine) selectedSetupLocked() *models.Setup {
	if e.selectedID == "" {
		return nil
	}
	for i := range e.live {
		if e.live[i].ID == e.selectedID {
			return &e.live[i]
		}
	}
	return nil
}

func (e *CommandEngine) buildSnapshotLocked(ctx context.Context, now time.Time) *Snapshot {
	display := BuildSetupDisplayPolicy(DisplayPolicyInput{
		Setups:       e.live,
		Regime:       e.regime,
		Prediction:   e.prediction,
		Selected:     e.selectedSetupLocked(),
		PrimaryLimit: e.cfg.Stream.PrimaryLimit,
	})
	flow := BuildFlowTelemetrySnapshot(FlowSnapshotInput{
		Now:         now,
		Events:      e.flowEvents,
		Aggregation: e.flowAgg,
		StaleAfter:  e.cfg.Flow.StaleAfterDuration(),
	})

	alertState := e.loadCoachStateLocked(ctx, now)
	topAlert := FindTopCoachAlert(e.coachMessages, alertState, now)

	setups := make([]models.Setup, len(e.live))
	copy(setups, e.live)
	history := make([]models.TriggeredAlertHistoryItem, len(e.triggerState.Items))
	copy(history, e.triggerState.Items)

	return &Snapshot{
		Setups:      setups,
		Display:     display,
		Flow:        flow,
		TopAlert:    topAlert,
		History:     history,
		Regime:      e.regime,
		GeneratedAt: now,
		FeedTrusted: !e.feedBlocked,
	}
}

// Snapshot returns the current view without processing a tick.
func (e *CommandEngine) Snapshot(ctx context.Context) *Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := e.lastTick
	if now.IsZero() {
		now = time.Now()
	}
	return e.buildSnapshotLocked(ctx, now)
}

// SelectSetup records the user's selected setup id, which biases the display
// policy. An unknown id clears the selection.
func (e *CommandEngine) SelectSetup(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.selectedID = id
}

// EvaluateEntry runs the risk envelope gate for one live setup.
func (e *CommandEngine) EvaluateEntry(setupID string) EntryGateResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	var setup *models.Setup
	for i := range e.live {
		if e.live[i].ID == setupID {
			setup = &e.live[i]
			break
		}
	}

	return EvaluateEntryGate(EntryGateInput{
		Setup:                setup,
		FeedTrustBlocked:     e.feedBlocked,
		MaxEntryZoneWidth:    e.cfg.RiskGate.MaxEntryZoneWidthPoints,
		MaxStopDistance:      e.cfg.RiskGate.MaxStopDistancePoints,
		MinConfluenceScore:   e.cfg.RiskGate.MinConfluenceScore,
		MinAlignmentScore:    e.cfg.RiskGate.MinAlignmentScore,
		MinConfidencePercent: e.cfg.RiskGate.MinConfidencePercent,
	})
}

func (e *CommandEngine) loadCoachStateLocked(ctx context.Context, now time.Time) models.CoachAlertLifecycleState {
	raw, ok, err := e.kv.Get(ctx, store.KeyCoachAlertLifecycle)
	if err != nil {
		e.logger.WithError(err).Warn("load coach alert state")
		return models.CoachAlertLifecycleState{}
	}
	if !ok {
		return models.CoachAlertLifecycleState{}
	}
	return SanitizeCoachAlertState(raw, now)
}

func (e *CommandEngine) saveCoachState(ctx context.Context, state models.CoachAlertLifecycleState) error {
	blob, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal coach alert state: %w", err)
	}
	if err := e.kv.Set(ctx, store.KeyCoachAlertLifecycle, string(blob)); err != nil {
		return fmt.Errorf("persist coach alert state: %w", err)
	}
	return nil
}

func (e *CommandEngine) findCoachMessageLocked(id string) *models.CoachMessage {
	for i := range e.coachMessages {
		if e.coachMessages[i].ID == id {
			return &e.coachMessages[i]
		}
	}
	return nil
}

// coach alert actions: read-sanitize-compute-write against the KV port

func (e *CommandEngine) mutateCoachAlert(ctx context.Context, messageID string,
	apply func(models.CoachAlertLifecycleState, *models.CoachMessage, time.Time) models.CoachAlertLifecycleState) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	message := e.findCoachMessageLocked(messageID)
	if message == nil {
		return utils.NewNotFoundErrorf("unknown coach message %q", messageID)
	}

	now := time.Now()
	state := e.loadCoachStateLocked(ctx, now)
	next := apply(state, message, now)
	return e.saveCoachState(ctx, next)
}

// MarkAlertSeen marks the alert seen; idempotent.
func (e *CommandEngine) MarkAlertSeen(ctx context.Context, messageID string) error {
	return e.mutateCoachAlert(ctx, messageID, MarkCoachAlertSeen)
}

// SnoozeAlert snoozes the alert for the duration.
func (e *CommandEngine) SnoozeAlert(ctx context.Context, messageID string, duration time.Duration) error {
	return e.mutateCoachAlert(ctx, messageID,
		func(state models.CoachAlertLifecycleState, message *models.CoachMessage, now time.Time) models.CoachAlertLifecycleState {
			return SnoozeCoachAlert(state, message, duration, now)
		})
}

// MuteAlert mutes the alert for the duration, superseding any snooze.
func (e *CommandEngine) MuteAlert(ctx context.Context, messageID string, duration time.Duration) error {
	return e.mutateCoachAlert(ctx, messageID,
		func(state models.CoachAlertLifecycleState, message *models.CoachMessage, now time.Time) models.CoachAlertLifecycleState {
			return MuteCoachAlert(state, message, duration, now)
		})
}

// CloseTrade captures a closed trade into the journal window and archives it
// when an archiver is attached.
func (e *CommandEngine) CloseTrade(ctx context.Context, input TradeCloseInput) (*models.TradeJournalArtifact, error) {
	artifact := CreateTradeJournalArtifact(&input)

	e.mu.Lock()
	e.journalWindow = append([]models.TradeJournalArtifact{artifact}, e.journalWindow...)
	if len(e.journalWindow) > MaxJournalItems {
		e.journalWindow = e.journalWindow[:MaxJournalItems]
	}
	e.mu.Unlock()

	if e.archiver != nil {
		if err := e.archiver.InsertArtifact(ctx, &artifact); err != nil {
			e.logger.WithError(err).WithField("artifact_id", artifact.ID).Warn("journal archival failed")
		}
	}

	e.logger.WithFields(logrus.Fields{
		"artifact_id": artifact.ID,
		"setup_id":    artifact.SetupID,
		"adherence":   artifact.AdherenceScore,
	}).Info("trade journaled")
	return &artifact, nil
}

// JournalSummary reduces the current journal window.
func (e *CommandEngine) JournalSummary() models.TradeJournalSummary {
	e.mu.Lock()
	window := make([]models.TradeJournalArtifact, len(e.journalWindow))
	copy(window, e.journalWindow)
	e.mu.Unlock()
	return SummarizeTradeJournal(window)
}

// JournalArtifacts returns the in-memory window, newest first.
func (e *CommandEngine) JournalArtifacts() []models.TradeJournalArtifact {
	e.mu.Lock()
	defer e.mu.Unlock()
	window := make([]models.TradeJournalArtifact, len(e.journalWindow))
	copy(window, e.journalWindow)
	return window
}

// TriggeredHistory returns the capped trigger ledger, newest first.
func (e *CommandEngine) TriggeredHistory() []models.TriggeredAlertHistoryItem {
	e.mu.Lock()
	defer e.mu.Unlock()
	items := make([]models.TriggeredAlertHistoryItem, len(e.triggerState.Items))
	copy(items, e.triggerState.Items)
	return items
}

// RefreshModels forces a reload of both classifier weight blobs.
func (e *CommandEngine) RefreshModels(ctx context.Context) error {
	if e.models == nil {
		return nil
	}
	return e.models.ForceRefresh(ctx)
}
