package store

import (
	"context"
	"sync"

	"conforma/internal/action/models"
	id "conforma/pkg/domain"
	"conforma/pkg/platform/sentinel"
)

// Filter narrows action scans. Zero values mean "any".
type Filter struct {
	FindingID id.FindingID
	Status    models.Status
	Owner     id.UserID
}

// InMemory is a mutex-guarded action store mirroring the finding store's
// Execute semantics.
type InMemory struct {
	mu      sync.RWMutex
	actions map[id.ActionID]*models.Action
}

func NewInMemory() *InMemory {
	return &InMemory{actions: make(map[id.ActionID]*models.Action)}
}

// Create stores a new action. Fails with sentinel.ErrConflict on id reuse.
func (s *InMemory) Create(_ context.Context, a *models.Action) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.actions[a.ID]; exists {
		return sentinel.ErrConflict
	}
	s.actions[a.ID] = clone(a)
	return nil
}

// FindByID returns a copy of the stored action.
func (s *InMemory) FindByID(_ context.Context, actionID id.ActionID) (*models.Action, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.actions[actionID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clone(a), nil
}

// Execute runs a validate-then-mutate transaction against one action while
// holding the store lock, guaranteeing at most one winning writer per
// transition.
func (s *InMemory) Execute(_ context.Context, actionID id.ActionID, validate func(*models.Action) error, mutate func(*models.Action)) (*models.Action, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.actions[actionID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}

	working := clone(current)
	if err := validate(working); err != nil {
		return nil, err
	}
	mutate(working)
	working.Version = current.Version + 1
	s.actions[actionID] = working

	return clone(working), nil
}

// List returns actions matching the filter.
func (s *InMemory) List(_ context.Context, filter Filter) ([]*models.Action, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Action
	for _, a := range s.actions {
		if matches(a, filter) {
			out = append(out, clone(a))
		}
	}
	return out, nil
}

// ListByFinding returns every action linked to one finding.
func (s *InMemory) ListByFinding(ctx context.Context, findingID id.FindingID) ([]*models.Action, error) {
	return s.List(ctx, Filter{FindingID: findingID})
}

func matches(a *models.Action, filter Filter) bool {
	if !filter.FindingID.IsNil() && a.FindingID != filter.FindingID {
		return false
	}
	if filter.Status != "" && a.Status != filter.Status {
		return false
	}
	if !filter.Owner.IsNil() && a.Owner != filter.Owner {
		return false
	}
	return true
}

// clone deep-copies an action so callers never share memory with the store.
func clone(a *models.Action) *models.Action {
	out := *a
	if a.DueDate != nil {
		d := *a.DueDate
		out.DueDate = &d
	}
	out.Comments = append([]models.Comment(nil), a.Comments...)
	if a.Effectiveness != nil {
		v := *a.Effectiveness
		if a.Effectiveness.CommitmentDate != nil {
			d := *a.Effectiveness.CommitmentDate
			v.CommitmentDate = &d
		}
		out.Effectiveness = &v
	}
	return &out
}
