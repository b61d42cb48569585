package handler

import (
	"time"

	"conforma/internal/action/models"
)

// ActionResponse is the HTTP representation of an action.
type ActionResponse struct {
	ID        string `json:"id"`
	FindingID string `json:"finding_id"`
	Type      string `json:"type"`
	Priority  string `json:"priority"`

	Description string     `json:"description"`
	Owner       string     `json:"owner"`
	OwnerName   string     `json:"owner_name,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty"`

	Status   string `json:"status"`
	Progress int    `json:"progress"`

	Comments      []CommentResponse      `json:"comments"`
	Effectiveness *EffectivenessResponse `json:"effectiveness,omitempty"`

	CreatedBy string    `json:"created_by"`
	UpdatedBy string    `json:"updated_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type CommentResponse struct {
	Author    string    `json:"author"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

type EffectivenessResponse struct {
	Effective      bool       `json:"effective"`
	Method         string     `json:"method"`
	Criteria       string     `json:"criteria"`
	Result         string     `json:"result,omitempty"`
	VerifiedBy     string     `json:"verified_by"`
	CommitmentDate *time.Time `json:"commitment_date,omitempty"`
	VerifiedAt     time.Time  `json:"verified_at"`
	Evidence       string     `json:"evidence"`
	Comments       string     `json:"comments,omitempty"`
}

// VerdictResponse wraps the action after an effectiveness verification.
// RequiresNewAction tells the caller a fresh corrective action must be
// raised; the engine never creates one automatically.
type VerdictResponse struct {
	Action            *ActionResponse `json:"action"`
	RequiresNewAction bool            `json:"requires_new_action"`
}

// ListActionsResponse wraps an action collection.
type ListActionsResponse struct {
	Actions []*ActionResponse `json:"actions"`
	Count   int               `json:"count"`
}

// FromAction converts a domain action to its HTTP representation.
func FromAction(a *models.Action) *ActionResponse {
	comments := make([]CommentResponse, 0, len(a.Comments))
	for _, c := range a.Comments {
		comments = append(comments, CommentResponse{
			Author:    c.Author.String(),
			Text:      c.Text,
			CreatedAt: c.CreatedAt,
		})
	}
	resp := &ActionResponse{
		ID:          a.ID.String(),
		FindingID:   a.FindingID.String(),
		Type:        string(a.Type),
		Priority:    string(a.Priority),
		Description: a.Description,
		Owner:       a.Owner.String(),
		OwnerName:   a.OwnerName,
		DueDate:     a.DueDate,
		Status:      string(a.Status),
		Progress:    a.Progress,
		Comments:    comments,
		CreatedBy:   a.CreatedBy.String(),
		UpdatedBy:   a.UpdatedBy.String(),
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
	}
	if a.Effectiveness != nil {
		resp.Effectiveness = &EffectivenessResponse{
			Effective:      a.Effectiveness.Effective,
			Method:         a.Effectiveness.Method,
			Criteria:       a.Effectiveness.Criteria,
			Result:         a.Effectiveness.Result,
			VerifiedBy:     a.Effectiveness.VerifiedBy.String(),
			CommitmentDate: a.Effectiveness.CommitmentDate,
			VerifiedAt:     a.Effectiveness.VerifiedAt,
			Evidence:       a.Effectiveness.Evidence,
			Comments:       a.Effectiveness.Comments,
		}
	}
	return resp
}

// FromActions converts an action slice to the list response.
func FromActions(actions []*models.Action) *ListActionsResponse {
	out := make([]*ActionResponse, 0, len(actions))
	for _, a := range actions {
		out = append(out, FromAction(a))
	}
	return &ListActionsResponse{Actions: out, Count: len(out)}
}
