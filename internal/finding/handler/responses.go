package handler

import (
	"time"

	"conforma/internal/finding/models"
)

// FindingResponse is the HTTP representation of a finding.
type FindingResponse struct {
	ID       string         `json:"id"`
	Source   SourceResponse `json:"source"`
	Severity string         `json:"severity"`
	Risk     string         `json:"risk_level"`
	Category string         `json:"category"`

	Stage    string `json:"stage"`
	ISOPhase string `json:"iso_phase"`
	Progress int    `json:"progress"`
	Status   string `json:"status"`
	Archived bool   `json:"archived"`

	ImmediateCorrection *CorrectionResponse   `json:"immediate_correction,omitempty"`
	RootCauseAnalysis   *RootCauseResponse    `json:"root_cause_analysis,omitempty"`
	Recurrence          *RecurrenceResponse   `json:"recurrence,omitempty"`
	Verification        *VerificationResponse `json:"verification,omitempty"`

	CreatedBy string    `json:"created_by"`
	UpdatedBy string    `json:"updated_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type SourceResponse struct {
	OriginType string `json:"origin_type"`
	OriginID   string `json:"origin_id"`
}

type CorrectionResponse struct {
	Description    string     `json:"description"`
	Status         string     `json:"status"`
	CommitmentDate *time.Time `json:"commitment_date,omitempty"`
	ExecutionDate  *time.Time `json:"execution_date,omitempty"`
	ExecutionNotes string     `json:"execution_notes,omitempty"`
}

type RootCauseResponse struct {
	Method              string   `json:"method"`
	RootCause           string   `json:"root_cause"`
	ContributingFactors []string `json:"contributing_factors,omitempty"`
	Analysis            string   `json:"analysis,omitempty"`
}

type RecurrenceResponse struct {
	IsRecurrent       bool     `json:"is_recurrent"`
	MatchedFindingIDs []string `json:"matched_finding_ids"`
	OccurrenceCount   int      `json:"occurrence_count"`
}

type VerificationResponse struct {
	VerifiedBy       string    `json:"verified_by"`
	VerificationDate time.Time `json:"verification_date"`
	Evidence         string    `json:"evidence"`
	Comments         string    `json:"comments,omitempty"`
}

// ListFindingsResponse wraps a finding collection.
type ListFindingsResponse struct {
	Findings []*FindingResponse `json:"findings"`
	Count    int                `json:"count"`
}

// FromFinding converts a domain finding to its HTTP representation.
func FromFinding(f *models.Finding) *FindingResponse {
	resp := &FindingResponse{
		ID:       f.ID.String(),
		Source:   SourceResponse{OriginType: f.Source.OriginType, OriginID: f.Source.OriginID},
		Severity: string(f.Severity),
		Risk:     string(f.Risk),
		Category: f.Category,

		Stage:    string(f.Stage),
		ISOPhase: string(f.ISOPhase),
		Progress: f.Progress,
		Status:   string(f.Status),
		Archived: f.Archived,

		CreatedBy: f.CreatedBy.String(),
		UpdatedBy: f.UpdatedBy.String(),
		CreatedAt: f.CreatedAt,
		UpdatedAt: f.UpdatedAt,
	}
	if f.ImmediateCorrection != nil {
		resp.ImmediateCorrection = &CorrectionResponse{
			Description:    f.ImmediateCorrection.Description,
			Status:         f.ImmediateCorrection.Status,
			CommitmentDate: f.ImmediateCorrection.CommitmentDate,
			ExecutionDate:  f.ImmediateCorrection.ExecutionDate,
			ExecutionNotes: f.ImmediateCorrection.ExecutionNotes,
		}
	}
	if f.RootCauseAnalysis != nil {
		resp.RootCauseAnalysis = &RootCauseResponse{
			Method:              f.RootCauseAnalysis.Method,
			RootCause:           f.RootCauseAnalysis.RootCause,
			ContributingFactors: f.RootCauseAnalysis.ContributingFactors,
			Analysis:            f.RootCauseAnalysis.Analysis,
		}
	}
	if f.Recurrence != nil {
		matched := make([]string, 0, len(f.Recurrence.MatchedFindingIDs))
		for _, m := range f.Recurrence.MatchedFindingIDs {
			matched = append(matched, m.String())
		}
		resp.Recurrence = &RecurrenceResponse{
			IsRecurrent:       f.Recurrence.IsRecurrent,
			MatchedFindingIDs: matched,
			OccurrenceCount:   f.Recurrence.OccurrenceCount,
		}
	}
	if f.Verification != nil {
		resp.Verification = &VerificationResponse{
			VerifiedBy:       f.Verification.VerifiedBy.String(),
			VerificationDate: f.Verification.VerificationDate,
			Evidence:         f.Verification.Evidence,
			Comments:         f.Verification.Comments,
		}
	}
	return resp
}

// FromFindings converts a finding slice to the list response.
func FromFindings(findings []*models.Finding) *ListFindingsResponse {
	out := make([]*FindingResponse, 0, len(findings))
	for _, f := range findings {
		out = append(out, FromFinding(f))
	}
	return &ListFindingsResponse{Findings: out, Count: len(out)}
}
