// Package adapters bridges the finding vertical to its neighbours without
// introducing an import cycle: the finding service sees only its own port
// types.
package adapters

import (
	"context"

	actionmodels "conforma/internal/action/models"
	findingservice "conforma/internal/finding/service"
	id "conforma/pkg/domain"
)

// ActionStore is the slice of the action store the closure gate reads.
type ActionStore interface {
	ListByFinding(ctx context.Context, findingID id.FindingID) ([]*actionmodels.Action, error)
}

// ActionReader adapts the action store into the finding service's port.
type ActionReader struct {
	actions ActionStore
}

func NewActionReader(actions ActionStore) *ActionReader {
	return &ActionReader{actions: actions}
}

func (r *ActionReader) ListByFinding(ctx context.Context, findingID id.FindingID) ([]findingservice.LinkedAction, error) {
	actions, err := r.actions.ListByFinding(ctx, findingID)
	if err != nil {
		return nil, err
	}
	out := make([]findingservice.LinkedAction, 0, len(actions))
	for _, a := range actions {
		linked := findingservice.LinkedAction{
			ActionID:  a.ID,
			Status:    string(a.Status),
			Completed: a.Status == actionmodels.StatusCompleted,
		}
		if a.Effectiveness != nil {
			linked.Verified = true
			linked.Effective = a.Effectiveness.Effective
		}
		out = append(out, linked)
	}
	return out, nil
}
