package models

import (
	dErrors "conforma/pkg/domain-errors"
)

// Stage is the ordered workflow position of a finding. Stages advance one at
// a time through a single transition table; there is no skipping and the only
// backward move is Reopen (verified_closed -> root_cause_analyzed).
type Stage string

const (
	StageRegistered              Stage = "registered"
	StageImmediateActionPlanned  Stage = "immediate_action_planned"
	StageImmediateActionExecuted Stage = "immediate_action_executed"
	StageRootCauseAnalyzed       Stage = "root_cause_analyzed"
	StageVerifiedClosed          Stage = "verified_closed"
)

// stageOrder fixes the workflow ordering for Reached comparisons.
var stageOrder = map[Stage]int{
	StageRegistered:              0,
	StageImmediateActionPlanned:  1,
	StageImmediateActionExecuted: 2,
	StageRootCauseAnalyzed:       3,
	StageVerifiedClosed:          4,
}

// nextStage is the single forward-transition table shared by every entry
// point. An operation may only advance a finding to nextStage[current].
var nextStage = map[Stage]Stage{
	StageRegistered:              StageImmediateActionPlanned,
	StageImmediateActionPlanned:  StageImmediateActionExecuted,
	StageImmediateActionExecuted: StageRootCauseAnalyzed,
	StageRootCauseAnalyzed:       StageVerifiedClosed,
}

// CanTransitionTo reports whether target is the legal next stage.
func (s Stage) CanTransitionTo(target Stage) bool {
	return nextStage[s] == target
}

// Reached reports whether s is at or past other in workflow order.
func (s Stage) Reached(other Stage) bool {
	return stageOrder[s] >= stageOrder[other]
}

func (s Stage) Valid() bool {
	_, ok := stageOrder[s]
	return ok
}

// ISOPhase is an advisory classification for ISO-clause bookkeeping. It is
// reported independently by users and carries no transition rules; it must
// never gate the stage machine.
type ISOPhase string

const (
	PhaseDetection ISOPhase = "detection"
	PhaseTreatment ISOPhase = "treatment"
	PhaseControl   ISOPhase = "control"
)

// ParseISOPhase validates a phase value at the trust boundary.
func ParseISOPhase(s string) (ISOPhase, error) {
	switch ISOPhase(s) {
	case PhaseDetection, PhaseTreatment, PhaseControl:
		return ISOPhase(s), nil
	default:
		return "", dErrors.Newf(dErrors.CodeValidation, "phase must be one of detection, treatment, control; got %q", s)
	}
}

// Status is the open/closed flag derived from the stage machine.
type Status string

const (
	StatusOpen   Status = "open"
	StatusClosed Status = "closed"
)

// Severity classifies how serious the nonconformity is.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

func ParseSeverity(s string) (Severity, error) {
	switch Severity(s) {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return Severity(s), nil
	default:
		return "", dErrors.Newf(dErrors.CodeValidation, "severity must be one of low, medium, high, critical; got %q", s)
	}
}

// RiskLevel classifies the residual risk the nonconformity poses.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

func ParseRiskLevel(s string) (RiskLevel, error) {
	switch RiskLevel(s) {
	case RiskLow, RiskMedium, RiskHigh:
		return RiskLevel(s), nil
	default:
		return "", dErrors.Newf(dErrors.CodeValidation, "risk level must be one of low, medium, high; got %q", s)
	}
}
