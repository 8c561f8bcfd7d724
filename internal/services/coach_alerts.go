package services

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/spxlabs/command-core/internal/models"
)

const (
	// coachAlertTTL drops lifecycle records not touched for three days.
	coachAlertTTL = 72 * time.Hour
	// minSnoozeDuration floors snooze/mute windows so a zero duration cannot
	// create an instantly-lapsed record.
	minSnoozeDuration = time.Second
)

// isAlertTone reports whether a message participates in the top-alert pick.
func isAlertTone(message *models.CoachMessage) bool {
	return message.Priority == models.PriorityAlert || message.Priority == models.PrioritySetup
}

func cloneAlertState(state models.CoachAlertLifecycleState) models.CoachAlertLifecycleState {
	next := make(models.CoachAlertLifecycleState, len(state)+1)
	for id, record := range state {
		next[id] = record
	}
	return next
}

// PruneCoachAlertState drops records older than the lifecycle TTL and lapses
// snoozes/mutes whose expiry has passed. Returns a fresh map.
func PruneCoachAlertState(state models.CoachAlertLifecycleState, now time.Time) models.CoachAlertLifecycleState {
	next := make(models.CoachAlertLifecycleState, len(state))
	for _, record := range state {
		if !record.UpdatedAt.IsZero() && now.Sub(record.UpdatedAt) > coachAlertTTL {
			continue
		}
		if record.Status == models.AlertSnoozed && record.SnoozedUntil != nil && !record.SnoozedUntil.After(now) {
			record.Status = models.AlertExpired
			record.UpdatedAt = now
		} else if record.Status == models.AlertMuted && record.MutedUntil != nil && !record.MutedUntil.After(now) {
			record.Status = models.AlertExpired
			record.UpdatedAt = now
		}
		next[record.ID] = record
	}
	return next
}

// SanitizeCoachAlertState validates persisted lifecycle JSON record by
// record, dropping anything malformed, then prunes. Bad JSON yields an empty
// state, never an error.
func SanitizeCoachAlertState(raw string, now time.Time) models.CoachAlertLifecycleState {
	state := models.CoachAlertLifecycleState{}
	if raw == "" {
		return state
	}

	var parsed map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return state
	}
	for id, blob := range parsed {
		var record models.CoachAlertLifecycleRecord
		if err := json.Unmarshal(blob, &record); err != nil {
			continue
		}
		if record.ID == "" {
			record.ID = id
		}
		switch record.Status {
		case models.AlertUnseen, models.AlertSeen, models.AlertSnoozed, models.AlertMuted, models.AlertExpired:
		case "new": // legacy label for unseen
			record.Status = models.AlertUnseen
		default:
			record.Status = models.AlertUnseen
		}
		if record.UpdatedAt.IsZero() {
			record.UpdatedAt = now
		}
		state[record.ID] = record
	}
	return PruneCoachAlertState(state, now)
}

func upsertAlertRecord(state models.CoachAlertLifecycleState, message *models.CoachMessage, now time.Time,
	patch func(*models.CoachAlertLifecycleRecord)) models.CoachAlertLifecycleState {
	next := cloneAlertState(state)
	record, ok := next[message.ID]
	if !ok {
		record = models.CoachAlertLifecycleRecord{ID: message.ID, Status: models.AlertUnseen}
	}
	patch(&record)
	record.UpdatedAt = now
	next[message.ID] = record
	return next
}

// MarkCoachAlertSeen transitions an alert to seen. Idempotent: the seen
// timestamp records the first observation only.
func MarkCoachAlertSeen(state models.CoachAlertLifecycleState, message *models.CoachMessage, now time.Time) models.CoachAlertLifecycleState {
	return upsertAlertRecord(state, message, now, func(record *models.CoachAlertLifecycleRecord) {
		record.Status = models.AlertSeen
		if record.SeenAt == nil {
			seenAt := now
			record.SeenAt = &seenAt
		}
	})
}

// SnoozeCoachAlert stores an absolute snooze expiry. The snooze lapses on its
// own once the expiry passes; readers check the timestamp.
func SnoozeCoachAlert(state models.CoachAlertLifecycleState, message *models.CoachMessage, duration time.Duration, now time.Time) models.CoachAlertLifecycleState {
	if duration < minSnoozeDuration {
		duration = minSnoozeDuration
	}
	return upsertAlertRecord(state, message, now, func(record *models.CoachAlertLifecycleRecord) {
		record.Status = models.AlertSnoozed
		until := now.Add(duration)
		record.SnoozedUntil = &until
	})
}

// MuteCoachAlert stores an absolute mute expiry, superseding any snooze.
func MuteCoachAlert(state models.CoachAlertLifecycleState, message *models.CoachMessage, duration time.Duration, now time.Time) models.CoachAlertLifecycleState {
	if duration < minSnoozeDuration {
		duration = minSnoozeDuration
	}
	return upsertAlertRecord(state, message, now, func(record *models.CoachAlertLifecycleRecord) {
		record.Status = models.AlertMuted
		until := now.Add(duration)
		record.MutedUntil = &until
	})
}

func lifecycleBlocked(record *models.CoachAlertLifecycleRecord, now time.Time) bool {
	if record == nil {
		return false
	}
	if record.Status == models.AlertMuted {
		if record.MutedUntil == nil || record.MutedUntil.After(now) {
			return true
		}
	}
	if record.Status == models.AlertSnoozed {
		if record.SnoozedUntil == nil || record.SnoozedUntil.After(now) {
			return true
		}
	}
	return false
}

// ShouldAutoMarkAlertSeen reports whether a freshly surfaced alert-tone
// message should be auto-acknowledged: non-critical noise is, criticals and
// already-handled records are not.
func ShouldAutoMarkAlertSeen(message *models.CoachMessage, state models.CoachAlertLifecycleState) bool {
	if !isAlertTone(message) {
		return false
	}
	if message.Severity() == models.SeverityCritical {
		return false
	}
	record, ok := state[message.ID]
	if !ok {
		return true
	}
	switch record.Status {
	case models.AlertSeen, models.AlertMuted, models.AlertSnoozed:
		return false
	}
	return true
}

// FindTopCoachAlert selects the single highest-priority currently visible
// alert: severity first, then priority, then recency; muted/snoozed records
// are excluded while unexpired, and seen non-critical alerts never resurface.
func FindTopCoachAlert(messages []models.CoachMessage, state models.CoachAlertLifecycleState, now time.Time) *models.CoachMessage {
	candidates := make([]models.CoachMessage, 0, len(messages))
	for _, message := range messages {
		if isAlertTone(&message) {
			candidates = append(candidates, message)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := &candidates[i], &candidates[j]
		if as, bs := a.Severity().Rank(), b.Severity().Rank(); as != bs {
			return as < bs
		}
		if ap, bp := a.Priority.Rank(), b.Priority.Rank(); ap != bp {
			return ap < bp
		}
		return a.Timestamp.After(b.Timestamp)
	})

	for i := range candidates {
		message := &candidates[i]
		var record *models.CoachAlertLifecycleRecord
		if r, ok := state[message.ID]; ok {
			record = &r
		}
		if lifecycleBlocked(record, now) {
			continue
		}
		if record != nil && record.Status == models.AlertSeen && message.Severity() != models.SeverityCritical {
			continue
		}
		return message
	}
	return nil
}
