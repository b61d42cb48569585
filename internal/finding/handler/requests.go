package handler

import (
	"strings"
	"time"

	"conforma/internal/finding/models"
	id "conforma/pkg/domain"
	dErrors "conforma/pkg/domain-errors"
	pstrings "conforma/pkg/platform/strings"
)

// RegisterFindingRequest is the HTTP request body for POST /findings.
type RegisterFindingRequest struct {
	Source   SourceRequest `json:"source"`
	Severity string        `json:"severity"`
	Risk     string        `json:"risk_level"`
	Category string        `json:"category"`

	// Parsed values (populated by Validate)
	parsedSeverity models.Severity
	parsedRisk     models.RiskLevel
}

// SourceRequest identifies where the nonconformity was detected.
type SourceRequest struct {
	OriginType string `json:"origin_type"`
	OriginID   string `json:"origin_id"`
}

// Validate validates and parses the request.
// Implements the Validatable interface for httputil.DecodeAndPrepare.
func (r *RegisterFindingRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}

	r.Source.OriginType = strings.TrimSpace(r.Source.OriginType)
	r.Source.OriginID = strings.TrimSpace(r.Source.OriginID)
	r.Category = strings.TrimSpace(r.Category)

	if r.Source.OriginType == "" {
		return dErrors.New(dErrors.CodeValidation, "source.origin_type is required")
	}
	if r.Source.OriginID == "" {
		return dErrors.New(dErrors.CodeValidation, "source.origin_id is required")
	}
	if r.Category == "" {
		return dErrors.New(dErrors.CodeValidation, "category is required")
	}

	severity, err := models.ParseSeverity(r.Severity)
	if err != nil {
		return err
	}
	r.parsedSeverity = severity

	risk, err := models.ParseRiskLevel(r.Risk)
	if err != nil {
		return err
	}
	r.parsedRisk = risk

	return nil
}

// ParsedSeverity returns the validated severity.
func (r *RegisterFindingRequest) ParsedSeverity() models.Severity { return r.parsedSeverity }

// ParsedRisk returns the validated risk level.
func (r *RegisterFindingRequest) ParsedRisk() models.RiskLevel { return r.parsedRisk }

// PlanCorrectionRequest is the body for POST /findings/{id}/immediate-correction/plan.
type PlanCorrectionRequest struct {
	Description    string     `json:"description"`
	CommitmentDate *time.Time `json:"commitment_date,omitempty"`
}

func (r *PlanCorrectionRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.Description = strings.TrimSpace(r.Description)
	if r.Description == "" {
		return dErrors.New(dErrors.CodeValidation, "description is required")
	}
	return nil
}

// ExecuteCorrectionRequest is the body for POST /findings/{id}/immediate-correction/execute.
type ExecuteCorrectionRequest struct {
	ExecutionDate time.Time `json:"execution_date"`
	Notes         string    `json:"notes,omitempty"`
}

func (r *ExecuteCorrectionRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if r.ExecutionDate.IsZero() {
		return dErrors.New(dErrors.CodeValidation, "execution_date is required")
	}
	return nil
}

// AnalyzeRootCauseRequest is the body for POST /findings/{id}/root-cause.
type AnalyzeRootCauseRequest struct {
	Method              string   `json:"method"`
	RootCause           string   `json:"root_cause"`
	ContributingFactors []string `json:"contributing_factors,omitempty"`
	Analysis            string   `json:"analysis,omitempty"`
}

func (r *AnalyzeRootCauseRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.Method = strings.TrimSpace(r.Method)
	r.RootCause = strings.TrimSpace(r.RootCause)
	if r.Method == "" {
		return dErrors.New(dErrors.CodeValidation, "method is required")
	}
	if r.RootCause == "" {
		return dErrors.New(dErrors.CodeValidation, "root_cause is required")
	}
	r.ContributingFactors = pstrings.DedupeAndTrim(r.ContributingFactors)
	return nil
}

// VerifyFindingRequest is the body for POST /findings/{id}/verify.
type VerifyFindingRequest struct {
	VerifiedBy       string    `json:"verified_by,omitempty"`
	VerificationDate time.Time `json:"verification_date"`
	Evidence         string    `json:"evidence"`
	Comments         string    `json:"comments,omitempty"`

	parsedVerifiedBy id.UserID
}

func (r *VerifyFindingRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if r.VerificationDate.IsZero() {
		return dErrors.New(dErrors.CodeValidation, "verification_date is required")
	}
	r.Evidence = strings.TrimSpace(r.Evidence)
	if r.Evidence == "" {
		return dErrors.New(dErrors.CodeValidation, "evidence is required")
	}
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
func (r *VerifyFindingRequest) ParsedVerifiedBy() id.UserID { return r.parsedVerifiedBy }

// SetPhaseRequest is the body for PUT /findings/{id}/phase.
type SetPhaseRequest struct {
	Phase string `json:"phase"`

	parsedPhase models.ISOPhase
}

func (r *SetPhaseRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	phase, err := models.ParseISOPhase(r.Phase)
	if err != nil {
		return err
	}
	r.parsedPhase = phase
	return nil
}

// ParsedPhase returns the validated phase.
func (r *SetPhaseRequest) ParsedPhase() models.ISOPhase { return r.parsedPhase }
