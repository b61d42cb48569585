package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"conforma/internal/finding/models"
	id "conforma/pkg/domain"
	dErrors "conforma/pkg/domain-errors"
	"conforma/pkg/platform/sentinel"
)

type FindingStoreSuite struct {
	suite.Suite
	store *InMemory
	ctx   context.Context
}

func (s *FindingStoreSuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
}

func TestFindingStoreSuite(t *testing.T) {
	suite.Run(t, new(FindingStoreSuite))
}

func (s *FindingStoreSuite) newFinding(category string) *models.Finding {
	f, err := models.NewFinding(
		id.NewFindingID(),
		models.Source{OriginType: "audit", OriginID: "AUD-1"},
		models.SeverityMedium,
		models.RiskLow,
		category,
		id.UserID(uuid.New()),
		time.Now(),
	)
	s.Require().NoError(err)
	return f
}

func (s *FindingStoreSuite) TestCreationAndLookups() {
	s.Run("creates and finds finding by id", func() {
		f := s.newFinding("safety")
		s.Require().NoError(s.store.Create(s.ctx, f))

		found, err := s.store.FindByID(s.ctx, f.ID)
		s.Require().NoError(err)
		s.Equal(f.Category, found.Category)
		s.Equal(models.StageRegistered, found.Stage)
	})

	s.Run("returns ErrNotFound for unknown id", func() {
		_, err := s.store.FindByID(s.ctx, id.NewFindingID())
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("rejects duplicate id", func() {
		f := s.newFinding("safety")
		s.Require().NoError(s.store.Create(s.ctx, f))
		s.Require().ErrorIs(s.store.Create(s.ctx, f), sentinel.ErrConflict)
	})

	s.Run("lookups return copies, not shared state", func() {
		f := s.newFinding("safety")
		s.Require().NoError(s.store.Create(s.ctx, f))

		found, err := s.store.FindByID(s.ctx, f.ID)
		s.Require().NoError(err)
		found.Category = "tampered"

		again, err := s.store.FindByID(s.ctx, f.ID)
		s.Require().NoError(err)
		s.Equal("safety", again.Category)
	})
}

func (s *FindingStoreSuite) TestExecute() {
	actor := id.UserID(uuid.New())
	now := time.Now()

	s.Run("applies validate-then-mutate atomically", func() {
		f := s.newFinding("safety")
		s.Require().NoError(s.store.Create(s.ctx, f))

		updated, err := s.store.Execute(s.ctx, f.ID,
			func(f *models.Finding) error { return f.CanPlanImmediateCorrection() },
			func(f *models.Finding) { f.ApplyImmediateCorrectionPlan("contain", nil, 25, actor, now) },
		)
		s.Require().NoError(err)
		s.Equal(models.StageImmediateActionPlanned, updated.Stage)
		s.Equal(25, updated.Progress)
	})

	s.Run("failed validation leaves the finding unchanged", func() {
		f := s.newFinding("safety")
		s.Require().NoError(s.store.Create(s.ctx, f))

		_, err := s.store.Execute(s.ctx, f.ID,
			func(f *models.Finding) error { return f.CanExecuteImmediateCorrection() },
			func(f *models.Finding) { s.Fail("mutate must not run") },
		)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))

		found, err := s.store.FindByID(s.ctx, f.ID)
		s.Require().NoError(err)
		s.Equal(models.StageRegistered, found.Stage)
	})

	s.Run("concurrent transitions have exactly one winner", func() {
		f := s.newFinding("safety")
		s.Require().NoError(s.store.Create(s.ctx, f))

		const goroutines = 20
		var wg sync.WaitGroup
		results := make(chan error, goroutines)
		for i := 0; i < goroutines; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.store.Execute(s.ctx, f.ID,
					func(f *models.Finding) error { return f.CanPlanImmediateCorrection() },
					func(f *models.Finding) { f.ApplyImmediateCorrectionPlan("contain", nil, 25, actor, now) },
				)
				results <- err
			}()
		}
		wg.Wait()
		close(results)

		var wins, losses int
		for err := range results {
			if err == nil {
				wins++
			} else if dErrors.HasCode(err, dErrors.CodeInvalidTransition) {
				losses++
			}
		}
		s.Equal(1, wins, "exactly one transition should win")
		s.Equal(goroutines-1, losses)
	})
}

func (s *FindingStoreSuite) TestOptimisticUpdate() {
	f := s.newFinding("safety")
	s.Require().NoError(s.store.Create(s.ctx, f))

	first, err := s.store.FindByID(s.ctx, f.ID)
	s.Require().NoError(err)
	second, err := s.store.FindByID(s.ctx, f.ID)
	s.Require().NoError(err)

	s.Require().NoError(s.store.Update(s.ctx, first))
	s.Require().ErrorIs(s.store.Update(s.ctx, second), sentinel.ErrConflict)
}

func (s *FindingStoreSuite) TestListFilters() {
	actor := id.UserID(uuid.New())
	now := time.Now()

	safety := s.newFinding("safety")
	quality := s.newFinding("quality")
	archived := s.newFinding("safety")
	archived.ApplyArchive(actor, now)

	s.Require().NoError(s.store.Create(s.ctx, safety))
	s.Require().NoError(s.store.Create(s.ctx, quality))
	s.Require().NoError(s.store.Create(s.ctx, archived))

	s.Run("filters by category and skips archived", func() {
		out, err := s.store.List(s.ctx, Filter{Category: "safety"})
		s.Require().NoError(err)
		s.Len(out, 1)
		s.Equal(safety.ID, out[0].ID)
	})

	s.Run("includes archived when asked", func() {
		out, err := s.store.List(s.ctx, Filter{Category: "safety", IncludeArchived: true})
		s.Require().NoError(err)
		s.Len(out, 2)
	})
}

func (s *FindingStoreSuite) TestListAnalyzedSince() {
	actor := id.UserID(uuid.New())
	now := time.Now()

	analyzed := s.newFinding("safety")
	analyzed.ApplyImmediateCorrectionPlan("contain", nil, 25, actor, now)
	analyzed.ApplyImmediateCorrectionExecution(now, "", 50, actor, now)
	analyzed.ApplyRootCauseAnalysis(models.RootCauseAnalysis{Method: "5-why", RootCause: "x"}, 75, actor, now)

	fresh := s.newFinding("safety")

	old := s.newFinding("safety")
	old.ApplyImmediateCorrectionPlan("contain", nil, 25, actor, now)
	old.ApplyImmediateCorrectionExecution(now, "", 50, actor, now)
	old.ApplyRootCauseAnalysis(models.RootCauseAnalysis{Method: "5-why", RootCause: "x"}, 75, actor, now)
	old.CreatedAt = now.Add(-48 * time.Hour)

	s.Require().NoError(s.store.Create(s.ctx, analyzed))
	s.Require().NoError(s.store.Create(s.ctx, fresh))
	s.Require().NoError(s.store.Create(s.ctx, old))

	out, err := s.store.ListAnalyzedSince(s.ctx, now.Add(-time.Hour))
	s.Require().NoError(err)
	s.Len(out, 1, "only analyzed findings inside the window qualify")
	s.Equal(analyzed.ID, out[0].ID)
}
