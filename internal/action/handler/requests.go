package handler

import (
	"strings"
	"time"

	"conforma/internal/action/models"
	id "conforma/pkg/domain"
	dErrors "conforma/pkg/domain-errors"
)

// CreateActionRequest is the HTTP request body for POST /actions.
type CreateActionRequest struct {
	FindingID   string     `json:"finding_id"`
	Type        string     `json:"type"`
	Priority    string     `json:"priority"`
	Description string     `json:"description"`
	Owner       string     `json:"owner"`
	OwnerName   string     `json:"owner_name,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty"`

	// Parsed values (populated by Validate)
	parsedFindingID id.FindingID
	parsedType      models.ActionType
	parsedPriority  models.Priority
	parsedOwner     id.UserID
}

// Validate validates and parses the request.
// Implements the Validatable interface for httputil.DecodeAndPrepare.
func (r *CreateActionRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}

	findingID, err := id.ParseFindingID(r.FindingID)
	if err != nil {
		return err
	}
	r.parsedFindingID = findingID

	actionType, err := models.ParseActionType(r.Type)
	if err != nil {
		return err
	}
	r.parsedType = actionType

	priority, err := models.ParsePriority(r.Priority)
	if err != nil {
		return err
	}
	r.parsedPriority = priority

	r.Description = strings.TrimSpace(r.Description)
	if r.Description == "" {
		return dErrors.New(dErrors.CodeValidation, "description is required")
	}

	owner, err := id.ParseUserID(r.Owner)
	if err != nil {
		return err
	}
	r.parsedOwner = owner
	r.OwnerName = strings.TrimSpace(r.OwnerName)

	return nil
}

func (r *CreateActionRequest) ParsedFindingID() id.FindingID   { return r.parsedFindingID }
func (r *CreateActionRequest) ParsedType() models.ActionType   { return r.parsedType }
func (r *CreateActionRequest) ParsedPriority() models.Priority { return r.parsedPriority }
func (r *CreateActionRequest) ParsedOwner() id.UserID          { return r.parsedOwner }

// UpdateStatusRequest is the body for PUT /actions/{id}/status.
type UpdateStatusRequest struct {
	Status string `json:"status"`

	parsedStatus models.Status
}

func (r *UpdateStatusRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	status, err := models.ParseStatus(r.Status)
	if err != nil {
		return err
	}
	r.parsedStatus = status
	return nil
}

func (r *UpdateStatusRequest) ParsedStatus() models.Status { return r.parsedStatus }

// UpdateProgressRequest is the body for PUT /actions/{id}/progress.
type UpdateProgressRequest struct {
	Progress *int `json:"progress"`
}

func (r *UpdateProgressRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if r.Progress == nil {
		return dErrors.New(dErrors.CodeValidation, "progress is required")
	}
	// Range and state checks belong to the model; only presence is checked here.
	return nil
}

// AddCommentRequest is the body for POST /actions/{id}/comments.
type AddCommentRequest struct {
	Text string `json:"text"`
}

func (r *AddCommentRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.Text = strings.TrimSpace(r.Text)
	if r.Text == "" {
		return dErrors.New(dErrors.CodeValidation, "text is required")
	}
	return nil
}

// VerifyEffectivenessRequest is the body for POST /actions/{id}/effectiveness.
// verified_by defaults to the acting user and execution_date to the request
// time when omitted.
type VerifyEffectivenessRequest struct {
	Effective      *bool      `json:"effective"`
	Method         string     `json:"method"`
	Criteria       string     `json:"criteria"`
	Result         string     `json:"result,omitempty"`
	VerifiedBy     string     `json:"verified_by,omitempty"`
	CommitmentDate *time.Time `json:"commitment_date,omitempty"`
	ExecutionDate  time.Time  `json:"execution_date,omitempty"`
	Evidence       string     `json:"evidence"`
	Comments       string     `json:"comments,omitempty"`

	parsedVerifiedBy id.UserID
}

func (r *VerifyEffectivenessRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if r.Effective == nil {
		return dErrors.New(dErrors.CodeValidation, "effective is required")
	}
	r.Method = strings.TrimSpace(r.Method)
	if r.Method == "" {
		return dErrors.New(dErrors.CodeValidation, "method is required")
	}
	r.Criteria = strings.TrimSpace(r.Criteria)
	if r.Criteria == "" {
		return dErrors.New(dErrors.CodeValidation, "criteria is required")
	}
	r.Evidence = strings.TrimSpace(r.Evidence)
	if r.Evidence == "" {
		return dErrors.New(dErrors.CodeValidation, "evidence is required")
	}
	r.Result = strings.TrimSpace(r.Result)
	if r.VerifiedBy != "" {
		verifiedBy, err := id.ParseUserID(r.VerifiedBy)
		if err != nil {
			return err
		}
		r.parsedVerifiedBy = verifiedBy
	}
	return nil
}

// ParsedVerifiedBy returns the validated verifier, or the zero id when the
// caller left it to default to the acting user.
func (r *VerifyEffectivenessRequest) ParsedVerifiedBy() id.UserID { return r.parsedVerifiedBy }
