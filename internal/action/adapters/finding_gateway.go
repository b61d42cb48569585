// Package adapters bridges the action vertical to the finding vertical
// without an import cycle: the action service sees only its own port types.
package adapters

import (
	"context"

	actionservice "conforma/internal/action/service"
	findingmodels "conforma/internal/finding/models"
	findingservice "conforma/internal/finding/service"
	id "conforma/pkg/domain"
)

// FindingGateway adapts the finding service into the action vertical's
// FindingResolver and FindingReopener ports.
type FindingGateway struct {
	findings *findingservice.Service
}

func NewFindingGateway(findings *findingservice.Service) *FindingGateway {
	return &FindingGateway{findings: findings}
}

func (g *FindingGateway) Resolve(ctx context.Context, findingID id.FindingID) (actionservice.FindingState, error) {
	f, err := g.findings.Get(ctx, findingID)
	if err != nil {
		return actionservice.FindingState{}, err
	}
	return actionservice.FindingState{
		Archived: f.Archived,
		Closed:   f.Status == findingmodels.StatusClosed,
	}, nil
}

func (g *FindingGateway) Reopen(ctx context.Context, findingID id.FindingID) error {
	_, err := g.findings.Reopen(ctx, findingID)
	return err
}
