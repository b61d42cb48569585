package models

import (
	"time"

	id "conforma/pkg/domain"
	dErrors "conforma/pkg/domain-errors"
)

// Comment is one entry in an action's append-only progress log.
type Comment struct {
	Author    id.UserID `json:"author"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// EffectivenessVerification is the recorded judgement on whether a completed
// action actually resolved the nonconformity. Method and Criteria say how the
// judgement was made, Result what was observed; CommitmentDate is when the
// verification was promised, VerifiedAt when it was carried out.
type EffectivenessVerification struct {
	Effective      bool       `json:"effective"`
	Method         string     `json:"method"`
	Criteria       string     `json:"criteria"`
	Result         string     `json:"result,omitempty"`
	VerifiedBy     id.UserID  `json:"verified_by"`
	CommitmentDate *time.Time `json:"commitment_date,omitempty"`
	VerifiedAt     time.Time  `json:"verified_at"`
	Evidence       string     `json:"evidence"`
	Comments       string     `json:"comments,omitempty"`
}

// Action is a corrective or preventive measure linked to one finding.
//
// Invariants:
//   - Status changes follow the statusTransitions table; Reopen is the only
//     exit from completed.
//   - Progress is 0..100 and equals 100 exactly when the action is completed.
//   - Comments are append-only.
//   - Effectiveness is recorded at most once per completion and is cleared
//     by Reopen.
type Action struct {
	ID        id.ActionID  `json:"id"`
	FindingID id.FindingID `json:"finding_id"`
	Type      ActionType   `json:"type"`
	Priority  Priority     `json:"priority"`

	Description string     `json:"description"`
	Owner       id.UserID  `json:"owner"`
	OwnerName   string     `json:"owner_name,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty"`

	Status   Status `json:"status"`
	Progress int    `json:"progress"`

	Comments      []Comment                  `json:"comments"`
	Effectiveness *EffectivenessVerification `json:"effectiveness,omitempty"`

	CreatedBy id.UserID `json:"created_by"`
	UpdatedBy id.UserID `json:"updated_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Version supports optimistic writes in stores that cannot hold an
	// entity lock across the validate-mutate window.
	Version int `json:"-"`
}

// NewAction constructs a planned action with validated fields.
func NewAction(actionID id.ActionID, findingID id.FindingID, actionType ActionType, priority Priority, description string, owner id.UserID, ownerName string, dueDate *time.Time, actor id.UserID, now time.Time) (*Action, error) {
	if findingID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "finding id is required")
	}
	if !priority.Valid() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "priority is required")
	}
	if description == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "description cannot be empty")
	}
	if owner.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "owner is required")
	}
	if actor.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "acting user is required")
	}
	return &Action{
		ID:          actionID,
		FindingID:   findingID,
		Type:        actionType,
		Priority:    priority,
		Description: description,
		Owner:       owner,
		OwnerName:   ownerName,
		DueDate:     dueDate,
		Status:      StatusPlanned,
		Progress:    0,
		CreatedBy:   actor,
		UpdatedBy:   actor,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// CanChangeStatus checks the transition guard for a status change.
func (a *Action) CanChangeStatus(target Status) error {
	if !a.Status.CanTransitionTo(target) {
		return dErrors.Newf(dErrors.CodeInvalidTransition, "cannot change status to %s: action is %s", target, a.Status)
	}
	return nil
}

// ApplyStatusChange moves the action to target. Completing forces progress to
// 100. Call CanChangeStatus first.
func (a *Action) ApplyStatusChange(target Status, actor id.UserID, now time.Time) {
	a.Status = target
	if target == StatusCompleted {
		a.Progress = 100
	}
	a.touch(actor, now)
}

// CanUpdateProgress checks that manual progress reporting is allowed. 100 is
// reserved for completion so the progress invariant cannot be bypassed.
func (a *Action) CanUpdateProgress(progress int) error {
	if progress < 0 || progress > 100 {
		return dErrors.Newf(dErrors.CodeValidation, "progress must be between 0 and 100; got %d", progress)
	}
	if progress == 100 {
		return dErrors.New(dErrors.CodeInvalidState, "progress 100 is set by completing the action")
	}
	if !a.Status.Active() {
		return dErrors.Newf(dErrors.CodeInvalidState, "cannot report progress on a %s action", a.Status)
	}
	return nil
}

// ApplyProgress records manual progress. Call CanUpdateProgress first.
func (a *Action) ApplyProgress(progress int, actor id.UserID, now time.Time) {
	a.Progress = progress
	a.touch(actor, now)
}

// CanAddComment checks the comment before anything is written.
func (a *Action) CanAddComment(text string) error {
	if text == "" {
		return dErrors.New(dErrors.CodeValidation, "comment text cannot be empty")
	}
	return nil
}

// ApplyComment appends to the progress log. Call CanAddComment first.
func (a *Action) ApplyComment(author id.UserID, text string, now time.Time) {
	a.Comments = append(a.Comments, Comment{Author: author, Text: text, CreatedAt: now})
	a.touch(author, now)
}

// CanVerifyEffectiveness checks that the action is completed and not yet
// judged.
func (a *Action) CanVerifyEffectiveness() error {
	if a.Status != StatusCompleted {
		return dErrors.Newf(dErrors.CodeInvalidState, "effectiveness can only be verified on a completed action; action is %s", a.Status)
	}
	if a.Effectiveness != nil {
		return dErrors.New(dErrors.CodeInvalidState, "effectiveness has already been verified for this completion")
	}
	return nil
}

// ApplyEffectiveness records the verdict. Call CanVerifyEffectiveness first.
func (a *Action) ApplyEffectiveness(v EffectivenessVerification, actor id.UserID, now time.Time) {
	a.Effectiveness = &v
	a.touch(actor, now)
}

// CanReopen checks that the action is completed. Reopen is the only exit
// from completed.
func (a *Action) CanReopen() error {
	if a.Status != StatusCompleted {
		return dErrors.Newf(dErrors.CodeInvalidTransition, "cannot reopen: action is %s, requires %s", a.Status, StatusCompleted)
	}
	return nil
}

// ApplyReopen puts the action back in progress. The effectiveness verdict is
// cleared and progress resets because the completed work proved insufficient.
func (a *Action) ApplyReopen(actor id.UserID, now time.Time) {
	a.Status = StatusInProgress
	a.Effectiveness = nil
	a.Progress = 0
	a.touch(actor, now)
}

func (a *Action) touch(actor id.UserID, now time.Time) {
	a.UpdatedBy = actor
	a.UpdatedAt = now
}
