package models

import "time"

// CoachMessageType classifies where in the trade lifecycle an advisory sits.
type CoachMessageType string

const (
	CoachPreTrade   CoachMessageType = "pre_trade"
	CoachInTrade    CoachMessageType = "in_trade"
	CoachPostTrade  CoachMessageType = "post_trade"
	CoachBehavioral CoachMessageType = "behavioral"
	CoachAlertType  CoachMessageType = "alert"
)

// CoachPriority orders advisories by urgency class.
type CoachPriority string

const (
	PriorityAlert      CoachPriority = "alert"
	PrioritySetup      CoachPriority = "setup"
	PriorityGuidance   CoachPriority = "guidance"
	PriorityBehavioral CoachPriority = "behavioral"
)

var coachPriorityRank = map[CoachPriority]int{
	PriorityAlert:      0,
	PrioritySetup:      1,
	PriorityGuidance:   2,
	PriorityBehavioral: 3,
}

// Rank returns the urgency rank of a priority; unknown values rank last.
func (p CoachPriority) Rank() int {
	if r, ok := coachPriorityRank[p]; ok {
		return r
	}
	return len(coachPriorityRank)
}

// CoachSeverity is the attention level derived for an advisory.
type CoachSeverity string

const (
	SeverityCritical CoachSeverity = "critical"
	SeverityWarning  CoachSeverity = "warning"
	SeverityRoutine  CoachSeverity = "routine"
)

var coachSeverityRank = map[CoachSeverity]int{
	SeverityCritical: 0,
	SeverityWarning:  1,
	SeverityRoutine:  2,
}

// Rank returns the attention rank of a severity; unknown values rank last.
func (s CoachSeverity) Rank() int {
	if r, ok := coachSeverityRank[s]; ok {
		return r
	}
	return len(coachSeverityRank)
}

// CoachMessage is an advisory emitted by the upstream reasoning component.
// This core consumes it and attaches lifecycle state; it never produces one.
type CoachMessage struct {
	ID             string                 `json:"id"`
	Type           CoachMessageType       `json:"type"`
	Priority       CoachPriority          `json:"priority"`
	SetupID        string                 `json:"setupId,omitempty"`
	Content        string                 `json:"content"`
	StructuredData map[string]interface{} `json:"structuredData,omitempty"`
	Timestamp      time.Time              `json:"timestamp"`
}

// Severity resolves the attention level for the message: an explicit
// structuredData severity wins, alert-priority messages default to warning,
// everything else is routine.
func (m *CoachMessage) Severity() CoachSeverity {
	if m.StructuredData != nil {
		if raw, ok := m.StructuredData["severity"].(string); ok {
			switch CoachSeverity(raw) {
			case SeverityCritical, SeverityWarning, SeverityRoutine:
				return CoachSeverity(raw)
			}
		}
	}
	if m.Priority == PriorityAlert {
		return SeverityWarning
	}
	return SeverityRoutine
}

// CoachAlertStatus is the lifecycle state of one advisory for one user.
type CoachAlertStatus string

const (
	AlertUnseen  CoachAlertStatus = "unseen"
	AlertSeen    CoachAlertStatus = "seen"
	AlertSnoozed CoachAlertStatus = "snoozed"
	AlertMuted   CoachAlertStatus = "muted"
	AlertExpired CoachAlertStatus = "expired"
)

// CoachAlertLifecycleRecord tracks one advisory's lifecycle. Snooze and mute
// lapse implicitly once their expiry passes; readers check the timestamps,
// there is no transition event.
type CoachAlertLifecycleRecord struct {
	ID           string           `json:"id"`
	Status       CoachAlertStatus `json:"status"`
	SeenAt       *time.Time       `json:"seenAt,omitempty"`
	SnoozedUntil *time.Time       `json:"snoozedUntil,omitempty"`
	MutedUntil   *time.Time       `json:"mutedUntil,omitempty"`
	UpdatedAt    time.Time        `json:"updatedAt"`
}

// CoachAlertLifecycleState is the persisted map of advisory id to record.
type CoachAlertLifecycleState map[string]CoachAlertLifecycleRecord
