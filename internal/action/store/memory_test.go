package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"conforma/internal/action/models"
	id "conforma/pkg/domain"
	dErrors "conforma/pkg/domain-errors"
	"conforma/pkg/platform/sentinel"
)

type ActionStoreSuite struct {
	suite.Suite
	store *InMemory
	ctx   context.Context
	actor id.UserID
	now   time.Time
}

func (s *ActionStoreSuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
	s.actor = id.UserID(uuid.New())
	s.now = time.Now()
}

func TestActionStoreSuite(t *testing.T) {
	suite.Run(t, new(ActionStoreSuite))
}

func (s *ActionStoreSuite) newAction(findingID id.FindingID) *models.Action {
	a, err := models.NewAction(id.NewActionID(), findingID, models.TypeCorrective, models.PriorityMedium, "retrain operators", s.actor, "", nil, s.actor, s.now)
	s.Require().NoError(err)
	return a
}

func (s *ActionStoreSuite) TestCreationAndLookups() {
	findingID := id.NewFindingID()

	s.Run("creates and finds action by id", func() {
		a := s.newAction(findingID)
		s.Require().NoError(s.store.Create(s.ctx, a))

		found, err := s.store.FindByID(s.ctx, a.ID)
		s.Require().NoError(err)
		s.Equal(a.FindingID, found.FindingID)
		s.Equal(models.StatusPlanned, found.Status)
	})

	s.Run("returns ErrNotFound for unknown id", func() {
		_, err := s.store.FindByID(s.ctx, id.NewActionID())
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("rejects duplicate id", func() {
		a := s.newAction(findingID)
		s.Require().NoError(s.store.Create(s.ctx, a))
		s.Require().ErrorIs(s.store.Create(s.ctx, a), sentinel.ErrConflict)
	})

	s.Run("lookups return copies, not shared state", func() {
		a := s.newAction(findingID)
		s.Require().NoError(s.store.Create(s.ctx, a))

		found, err := s.store.FindByID(s.ctx, a.ID)
		s.Require().NoError(err)
		found.ApplyComment(s.actor, "tampered", s.now)

		again, err := s.store.FindByID(s.ctx, a.ID)
		s.Require().NoError(err)
		s.Empty(again.Comments)
	})
}

func (s *ActionStoreSuite) TestExecute() {
	s.Run("applies validate-then-mutate atomically", func() {
		a := s.newAction(id.NewFindingID())
		s.Require().NoError(s.store.Create(s.ctx, a))

		updated, err := s.store.Execute(s.ctx, a.ID,
			func(a *models.Action) error { return a.CanChangeStatus(models.StatusInProgress) },
			func(a *models.Action) { a.ApplyStatusChange(models.StatusInProgress, s.actor, s.now) },
		)
		s.Require().NoError(err)
		s.Equal(models.StatusInProgress, updated.Status)
	})

	s.Run("failed validation leaves the action unchanged", func() {
		a := s.newAction(id.NewFindingID())
		s.Require().NoError(s.store.Create(s.ctx, a))

		_, err := s.store.Execute(s.ctx, a.ID,
			func(a *models.Action) error { return a.CanChangeStatus(models.StatusCompleted) },
			func(a *models.Action) { s.Fail("mutate must not run") },
		)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))

		found, err := s.store.FindByID(s.ctx, a.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusPlanned, found.Status)
	})

	s.Run("concurrent starts have exactly one winner", func() {
		a := s.newAction(id.NewFindingID())
		s.Require().NoError(s.store.Create(s.ctx, a))

		const goroutines = 20
		var wg sync.WaitGroup
		results := make(chan error, goroutines)
		for i := 0; i < goroutines; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.store.Execute(s.ctx, a.ID,
					func(a *models.Action) error { return a.CanChangeStatus(models.StatusInProgress) },
					func(a *models.Action) { a.ApplyStatusChange(models.StatusInProgress, s.actor, s.now) },
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

func (s *ActionStoreSuite) TestListFilters() {
	findingA := id.NewFindingID()
	findingB := id.NewFindingID()

	a1 := s.newAction(findingA)
	a2 := s.newAction(findingA)
	a2.ApplyStatusChange(models.StatusInProgress, s.actor, s.now)
	b1 := s.newAction(findingB)

	s.Require().NoError(s.store.Create(s.ctx, a1))
	s.Require().NoError(s.store.Create(s.ctx, a2))
	s.Require().NoError(s.store.Create(s.ctx, b1))

	s.Run("filters by finding", func() {
		out, err := s.store.ListByFinding(s.ctx, findingA)
		s.Require().NoError(err)
		s.Len(out, 2)
	})

	s.Run("filters by status", func() {
		out, err := s.store.List(s.ctx, Filter{FindingID: findingA, Status: models.StatusInProgress})
		s.Require().NoError(err)
		s.Len(out, 1)
		s.Equal(a2.ID, out[0].ID)
	})

	s.Run("filters by owner", func() {
		out, err := s.store.List(s.ctx, Filter{Owner: s.actor})
		s.Require().NoError(err)
		s.Len(out, 3)

		out, err = s.store.List(s.ctx, Filter{Owner: id.UserID(uuid.New())})
		s.Require().NoError(err)
		s.Empty(out)
	})
}
