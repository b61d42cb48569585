package models

import (
	dErrors "conforma/pkg/domain-errors"
)

// Status is the workflow state of a corrective action. Unlike the finding
// stage machine there is no fixed ordering; actions move between active
// states until they complete or get cancelled.
type Status string

const (
	StatusPlanned    Status = "planned"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusOnHold     Status = "on_hold"
	StatusCancelled  Status = "cancelled"
)

// statusTransitions is the single transition table for action status.
// Completed and cancelled are terminal; the only way out of completed is
// Reopen, which is modelled separately because it also clears the
// effectiveness verdict.
var statusTransitions = map[Status][]Status{
	StatusPlanned:    {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusCompleted, StatusOnHold, StatusCancelled},
	StatusOnHold:     {StatusInProgress, StatusCancelled},
}

// CanTransitionTo reports whether target is reachable in one step.
func (s Status) CanTransitionTo(target Status) bool {
	for _, t := range statusTransitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

// Active reports whether the action still counts as open work.
func (s Status) Active() bool {
	return s == StatusPlanned || s == StatusInProgress || s == StatusOnHold
}

func (s Status) Valid() bool {
	switch s {
	case StatusPlanned, StatusInProgress, StatusCompleted, StatusOnHold, StatusCancelled:
		return true
	default:
		return false
	}
}

// ParseStatus validates a status value at the trust boundary.
func ParseStatus(s string) (Status, error) {
	status := Status(s)
	if !status.Valid() {
		return "", dErrors.Newf(dErrors.CodeValidation, "status must be one of planned, in_progress, completed, on_hold, cancelled; got %q", s)
	}
	return status, nil
}

// ActionType distinguishes actions that fix the found problem from actions
// that prevent similar ones.
type ActionType string

const (
	TypeCorrective ActionType = "corrective"
	TypePreventive ActionType = "preventive"
)

func ParseActionType(s string) (ActionType, error) {
	switch ActionType(s) {
	case TypeCorrective, TypePreventive:
		return ActionType(s), nil
	default:
		return "", dErrors.Newf(dErrors.CodeValidation, "action type must be corrective or preventive; got %q", s)
	}
}

// Priority ranks how urgently the action should be worked. It carries no
// workflow rules; it exists for planning and reporting.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	default:
		return false
	}
}

// ParsePriority validates a priority value at the trust boundary.
func ParsePriority(s string) (Priority, error) {
	priority := Priority(s)
	if !priority.Valid() {
		return "", dErrors.Newf(dErrors.CodeValidation, "priority must be one of low, medium, high; got %q", s)
	}
	return priority, nil
}
