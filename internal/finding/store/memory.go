package store

import (
	"context"
	"sync"
	"time"

	"conforma/internal/finding/models"
	id "conforma/pkg/domain"
	"conforma/pkg/platform/sentinel"
)

// Filter narrows finding scans. Zero values mean "any".
type Filter struct {
	Category        string
	Severity        models.Severity
	Status          models.Status
	Stage           models.Stage
	IncludeArchived bool
}

// InMemory is a mutex-guarded finding store. It is the default backend and
// the workhorse of the test suites; the Postgres store mirrors its semantics.
type InMemory struct {
	mu       sync.RWMutex
	findings map[id.FindingID]*models.Finding
}

func NewInMemory() *InMemory {
	return &InMemory{findings: make(map[id.FindingID]*models.Finding)}
}

// Create stores a new finding. Fails with sentinel.ErrConflict on id reuse.
func (s *InMemory) Create(_ context.Context, f *models.Finding) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.findings[f.ID]; exists {
		return sentinel.ErrConflict
	}
	s.findings[f.ID] = clone(f)
	return nil
}

// FindByID returns a copy of the stored finding.
func (s *InMemory) FindByID(_ context.Context, findingID id.FindingID) (*models.Finding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.findings[findingID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clone(f), nil
}

// Execute runs a validate-then-mutate transaction against one finding while
// holding the store lock, guaranteeing at most one winning writer per
// transition. validate sees the current state; mutate runs only if validate
// returns nil. The updated finding is returned as a copy.
func (s *InMemory) Execute(_ context.Context, findingID id.FindingID, validate func(*models.Finding) error, mutate func(*models.Finding)) (*models.Finding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.findings[findingID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}

	working := clone(current)
	if err := validate(working); err != nil {
		return nil, err
	}
	mutate(working)
	working.Version = current.Version + 1
	s.findings[findingID] = working

	return clone(working), nil
}

// Update persists a finding read earlier via FindByID, conditioned on its
// version being unchanged. Prefer Execute for lifecycle transitions.
func (s *InMemory) Update(_ context.Context, f *models.Finding) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.findings[f.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if current.Version != f.Version {
		return sentinel.ErrConflict
	}
	updated := clone(f)
	updated.Version = current.Version + 1
	s.findings[f.ID] = updated
	return nil
}

// List returns findings matching the filter, excluding archived ones unless
// asked for.
func (s *InMemory) List(_ context.Context, filter Filter) ([]*models.Finding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Finding
	for _, f := range s.findings {
		if matches(f, filter) {
			out = append(out, clone(f))
		}
	}
	return out, nil
}

// ListAnalyzedSince returns non-archived findings whose root cause has been
// analyzed and that were created at or after the cutoff. This is the
// read-only scan the recurrence detector runs; it never mutates matches.
func (s *InMemory) ListAnalyzedSince(_ context.Context, since time.Time) ([]*models.Finding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Finding
	for _, f := range s.findings {
		if f.Archived || f.RootCauseAnalysis == nil {
			continue
		}
		if f.CreatedAt.Before(since) {
			continue
		}
		out = append(out, clone(f))
	}
	return out, nil
}

func matches(f *models.Finding, filter Filter) bool {
	if f.Archived && !filter.IncludeArchived {
		return false
	}
	if filter.Category != "" && f.Category != filter.Category {
		return false
	}
	if filter.Severity != "" && f.Severity != filter.Severity {
		return false
	}
	if filter.Status != "" && f.Status != filter.Status {
		return false
	}
	if filter.Stage != "" && f.Stage != filter.Stage {
		return false
	}
	return true
}

// clone deep-copies a finding so callers never share memory with the store.
func clone(f *models.Finding) *models.Finding {
	out := *f
	if f.ImmediateCorrection != nil {
		ic := *f.ImmediateCorrection
		if f.ImmediateCorrection.CommitmentDate != nil {
			d := *f.ImmediateCorrection.CommitmentDate
			ic.CommitmentDate = &d
		}
		if f.ImmediateCorrection.ExecutionDate != nil {
			d := *f.ImmediateCorrection.ExecutionDate
			ic.ExecutionDate = &d
		}
		out.ImmediateCorrection = &ic
	}
	if f.RootCauseAnalysis != nil {
		rca := *f.RootCauseAnalysis
		rca.ContributingFactors = append([]string(nil), f.RootCauseAnalysis.ContributingFactors...)
		out.RootCauseAnalysis = &rca
	}
	if f.Recurrence != nil {
		rec := *f.Recurrence
		rec.MatchedFindingIDs = append([]id.FindingID(nil), f.Recurrence.MatchedFindingIDs...)
		out.Recurrence = &rec
	}
	if f.Verification != nil {
		v := *f.Verification
		out.Verification = &v
	}
	return &out
}
