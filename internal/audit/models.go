package audit

import "time"

// EntityKind names the aggregate an event is about.
type EntityKind string

const (
	EntityFinding EntityKind = "finding"
	EntityAction  EntityKind = "action"
)

// EventName identifies a lifecycle event.
type EventName string

const (
	// Finding events
	EventFindingRegistered         EventName = "finding_registered"
	EventFindingCorrectionPlanned  EventName = "finding_correction_planned"
	EventFindingCorrectionExecuted EventName = "finding_correction_executed"
	EventFindingRootCauseAnalyzed  EventName = "finding_root_cause_analyzed"
	EventFindingVerifiedClosed     EventName = "finding_verified_closed"
	EventFindingReopened           EventName = "finding_reopened"
	EventFindingArchived           EventName = "finding_archived"

	// Action events
	EventActionCreated          EventName = "action_created"
	EventActionStatusChanged    EventName = "action_status_changed"
	EventActionProgressUpdated  EventName = "action_progress_updated"
	EventActionCommentAdded     EventName = "action_comment_added"
	EventActionEffectivenessSet EventName = "action_effectiveness_set"
	EventActionReopened         EventName = "action_reopened"
)

// Event is emitted from domain logic to capture lifecycle actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Timestamp  time.Time  `json:"timestamp"`
	Actor      string     `json:"actor"`
	EntityKind EntityKind `json:"entity_kind"`
	EntityID   string     `json:"entity_id"`
	Action     EventName  `json:"action"`
	Detail     string     `json:"detail,omitempty"`
	RequestID  string     `json:"request_id,omitempty"`
}
