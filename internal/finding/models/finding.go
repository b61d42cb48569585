package models

import (
	"time"

	id "conforma/pkg/domain"
	dErrors "conforma/pkg/domain-errors"
)

// Source records where a finding originated (which audit, process review, or
// customer complaint raised it).
type Source struct {
	OriginType string `json:"origin_type"`
	OriginID   string `json:"origin_id"`
}

// ImmediateCorrection is the containment sub-record: what was done right away
// to stop the nonconformity from spreading, before root-cause work begins.
type ImmediateCorrection struct {
	Description    string     `json:"description"`
	Status         string     `json:"status"` // planned | executed
	CommitmentDate *time.Time `json:"commitment_date,omitempty"`
	ExecutionDate  *time.Time `json:"execution_date,omitempty"`
	ExecutionNotes string     `json:"execution_notes,omitempty"`
}

const (
	CorrectionPlanned  = "planned"
	CorrectionExecuted = "executed"
)

// RootCauseAnalysis is the structured determination of the underlying cause.
type RootCauseAnalysis struct {
	Method              string   `json:"method"`
	RootCause           string   `json:"root_cause"`
	ContributingFactors []string `json:"contributing_factors"`
	Analysis            string   `json:"analysis"`
}

// Recurrence is the verdict of the recurrence scan run at root-cause time.
type Recurrence struct {
	IsRecurrent       bool           `json:"is_recurrent"`
	MatchedFindingIDs []id.FindingID `json:"matched_finding_ids"`
	OccurrenceCount   int            `json:"occurrence_count"`
}

// Verification is the closure sub-record: who checked the treatment worked.
type Verification struct {
	VerifiedBy       id.UserID `json:"verified_by"`
	VerificationDate time.Time `json:"verification_date"`
	Evidence         string    `json:"evidence"`
	Comments         string    `json:"comments,omitempty"`
}

// Finding is the aggregate root for a reported nonconformity.
//
// Invariants:
//   - Stage transitions follow the nextStage table only; every mutation goes
//     through a Can*/Apply* pair so out-of-order calls leave the finding
//     untouched.
//   - Progress is non-decreasing, with Reopen as the single sanctioned
//     rollback (it reverses a closure).
//   - Status == closed implies Progress == 100 and Verification is populated.
//   - RootCauseAnalysis must be populated before Recurrence can be set.
//   - ISOPhase is advisory only and never gates the stage machine.
//   - Archived findings accept no further lifecycle operations and are
//     excluded from recurrence scans and stats.
type Finding struct {
	ID       id.FindingID `json:"id"`
	Source   Source       `json:"source"`
	Severity Severity     `json:"severity"`
	Risk     RiskLevel    `json:"risk_level"`
	Category string       `json:"category"`

	Stage    Stage    `json:"stage"`
	ISOPhase ISOPhase `json:"iso_phase"`
	Progress int      `json:"progress"`
	Status   Status   `json:"status"`
	Archived bool     `json:"archived"`

	ImmediateCorrection *ImmediateCorrection `json:"immediate_correction,omitempty"`
	RootCauseAnalysis   *RootCauseAnalysis   `json:"root_cause_analysis,omitempty"`
	Recurrence          *Recurrence          `json:"recurrence,omitempty"`
	Verification        *Verification        `json:"verification,omitempty"`

	CreatedBy id.UserID `json:"created_by"`
	UpdatedBy id.UserID `json:"updated_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Version supports optimistic writes in stores that cannot hold an
	// entity lock across the validate-mutate window.
	Version int `json:"-"`
}

// NewFinding constructs a registered finding with validated classification.
func NewFinding(findingID id.FindingID, source Source, severity Severity, risk RiskLevel, category string, actor id.UserID, now time.Time) (*Finding, error) {
	if source.OriginType == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "source origin_type cannot be empty")
	}
	if source.OriginID == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "source origin_id cannot be empty")
	}
	if category == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "category cannot be empty")
	}
	if actor.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "acting user is required")
	}
	return &Finding{
		ID:        findingID,
		Source:    source,
		Severity:  severity,
		Risk:      risk,
		Category:  category,
		Stage:     StageRegistered,
		ISOPhase:  PhaseDetection,
		Progress:  0,
		Status:    StatusOpen,
		CreatedBy: actor,
		UpdatedBy: actor,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// CanPlanImmediateCorrection checks the transition guard for planning.
func (f *Finding) CanPlanImmediateCorrection() error {
	return f.canAdvanceTo(StageImmediateActionPlanned)
}

// ApplyImmediateCorrectionPlan records the containment plan and advances the
// stage. Call CanPlanImmediateCorrection first.
func (f *Finding) ApplyImmediateCorrectionPlan(description string, commitmentDate *time.Time, checkpoint int, actor id.UserID, now time.Time) {
	f.ImmediateCorrection = &ImmediateCorrection{
		Description:    description,
		Status:         CorrectionPlanned,
		CommitmentDate: commitmentDate,
	}
	f.advanceTo(StageImmediateActionPlanned, checkpoint, actor, now)
}

// CanExecuteImmediateCorrection checks the transition guard for execution.
func (f *Finding) CanExecuteImmediateCorrection() error {
	return f.canAdvanceTo(StageImmediateActionExecuted)
}

// ApplyImmediateCorrectionExecution records containment execution and
// advances the stage. Call CanExecuteImmediateCorrection first.
func (f *Finding) ApplyImmediateCorrectionExecution(executionDate time.Time, notes string, checkpoint int, actor id.UserID, now time.Time) {
	f.ImmediateCorrection.Status = CorrectionExecuted
	f.ImmediateCorrection.ExecutionDate = &executionDate
	f.ImmediateCorrection.ExecutionNotes = notes
	f.advanceTo(StageImmediateActionExecuted, checkpoint, actor, now)
}

// CanAnalyzeRootCause checks the transition guard for root-cause analysis.
func (f *Finding) CanAnalyzeRootCause() error {
	return f.canAdvanceTo(StageRootCauseAnalyzed)
}

// ApplyRootCauseAnalysis stores the analysis and advances the stage. Call
// CanAnalyzeRootCause first. The recurrence verdict is attached separately
// via SetRecurrence once the scan has run.
func (f *Finding) ApplyRootCauseAnalysis(rca RootCauseAnalysis, checkpoint int, actor id.UserID, now time.Time) {
	f.RootCauseAnalysis = &rca
	f.advanceTo(StageRootCauseAnalyzed, checkpoint, actor, now)
}

// SetRecurrence attaches the recurrence verdict. Root-cause analysis must be
// populated first.
func (f *Finding) SetRecurrence(rec Recurrence) error {
	if f.RootCauseAnalysis == nil {
		return dErrors.New(dErrors.CodeInvalidState, "recurrence cannot be evaluated before root-cause analysis")
	}
	f.Recurrence = &rec
	return nil
}

// CanVerify checks the stage guard for closure. The linked-action gate is a
// cross-entity check enforced by the service before calling this.
func (f *Finding) CanVerify() error {
	return f.canAdvanceTo(StageVerifiedClosed)
}

// ApplyVerification closes the finding. Call CanVerify first.
func (f *Finding) ApplyVerification(v Verification, checkpoint int, actor id.UserID, now time.Time) {
	f.Verification = &v
	f.Status = StatusClosed
	f.advanceTo(StageVerifiedClosed, checkpoint, actor, now)
}

// CanReopen checks that the finding is closed. Reopening a finding that is
// already back at root_cause_analyzed is handled as a no-op by the service.
func (f *Finding) CanReopen() error {
	if f.Archived {
		return dErrors.New(dErrors.CodeInvalidState, "finding is archived")
	}
	if f.Stage != StageVerifiedClosed {
		return dErrors.Newf(dErrors.CodeInvalidTransition, "cannot reopen: finding is at stage %s, requires %s", f.Stage, StageVerifiedClosed)
	}
	return nil
}

// ApplyReopen returns the finding to root_cause_analyzed and clears the
// verification record. This is the one place progress rolls back: the reopen
// reverses the closure it undoes.
func (f *Finding) ApplyReopen(checkpoint int, actor id.UserID, now time.Time) {
	f.Stage = StageRootCauseAnalyzed
	f.Status = StatusOpen
	f.Verification = nil
	f.Progress = checkpoint
	f.touch(actor, now)
}

// CanSetPhase guards the advisory ISO phase update. Any value may be set at
// any time on a live finding; the stage machine is not consulted.
func (f *Finding) CanSetPhase() error {
	if f.Archived {
		return dErrors.New(dErrors.CodeInvalidState, "finding is archived")
	}
	return nil
}

// ApplySetPhase records the advisory phase. Call CanSetPhase first.
func (f *Finding) ApplySetPhase(phase ISOPhase, actor id.UserID, now time.Time) {
	f.ISOPhase = phase
	f.touch(actor, now)
}

// CanArchive checks the soft-delete guard. The linked-action guard (no
// active actions) is enforced by the service.
func (f *Finding) CanArchive() error {
	if f.Archived {
		return dErrors.New(dErrors.CodeInvalidState, "finding is already archived")
	}
	return nil
}

// ApplyArchive soft-deletes the finding. Archived findings are excluded from
// recurrence scans and dashboard stats and accept no further operations.
func (f *Finding) ApplyArchive(actor id.UserID, now time.Time) {
	f.Archived = true
	f.touch(actor, now)
}

func (f *Finding) canAdvanceTo(target Stage) error {
	if f.Archived {
		return dErrors.New(dErrors.CodeInvalidState, "finding is archived")
	}
	if !f.Stage.CanTransitionTo(target) {
		return dErrors.Newf(dErrors.CodeInvalidTransition, "cannot advance to %s: finding is at stage %s", target, f.Stage)
	}
	return nil
}

func (f *Finding) advanceTo(target Stage, checkpoint int, actor id.UserID, now time.Time) {
	f.Stage = target
	if checkpoint > f.Progress {
		f.Progress = checkpoint
	}
	f.touch(actor, now)
}

func (f *Finding) touch(actor id.UserID, now time.Time) {
	f.UpdatedBy = actor
	f.UpdatedAt = now
}
