//go:build integration

package store_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"conforma/internal/finding/models"
	"conforma/internal/finding/store"
	id "conforma/pkg/domain"
	dErrors "conforma/pkg/domain-errors"
	"conforma/pkg/platform/sentinel"
	"conforma/pkg/testutil/containers"
)

type PostgresFindingStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.Postgres
	ctx      context.Context
}

func TestPostgresFindingStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresFindingStoreSuite))
}

func (s *PostgresFindingStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
	s.ctx = context.Background()
}

func (s *PostgresFindingStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(s.ctx, "actions", "findings"))
}

func (s *PostgresFindingStoreSuite) newFinding(category string) *models.Finding {
	f, err := models.NewFinding(
		id.NewFindingID(),
		models.Source{OriginType: "audit", OriginID: "AUD-1"},
		models.SeverityMedium,
		models.RiskLow,
		category,
		id.UserID(uuid.New()),
		time.Now().UTC(),
	)
	s.Require().NoError(err)
	return f
}

func (s *PostgresFindingStoreSuite) TestRoundTrip() {
	f := s.newFinding("safety")
	f.ApplyImmediateCorrectionPlan("contain the lot", nil, 25, f.CreatedBy, f.CreatedAt)
	s.Require().NoError(s.store.Create(s.ctx, f))

	found, err := s.store.FindByID(s.ctx, f.ID)
	s.Require().NoError(err)
	s.Equal(f.ID, found.ID)
	s.Equal(models.StageImmediateActionPlanned, found.Stage)
	s.Equal(25, found.Progress)
	s.Require().NotNil(found.ImmediateCorrection)
	s.Equal("contain the lot", found.ImmediateCorrection.Description)
}

func (s *PostgresFindingStoreSuite) TestSentinelErrors() {
	_, err := s.store.FindByID(s.ctx, id.NewFindingID())
	s.ErrorIs(err, sentinel.ErrNotFound)

	f := s.newFinding("safety")
	s.Require().NoError(s.store.Create(s.ctx, f))
	s.ErrorIs(s.store.Create(s.ctx, f), sentinel.ErrConflict)
}

func (s *PostgresFindingStoreSuite) TestExecuteHasExactlyOneWinner() {
	f := s.newFinding("safety")
	s.Require().NoError(s.store.Create(s.ctx, f))

	actor := id.UserID(uuid.New())
	now := time.Now().UTC()
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
	s.Equal(1, wins, "exactly one transition should win under the row lock")
	s.Equal(goroutines-1, losses)
}

func (s *PostgresFindingStoreSuite) TestOptimisticUpdate() {
	f := s.newFinding("safety")
	s.Require().NoError(s.store.Create(s.ctx, f))

	first, err := s.store.FindByID(s.ctx, f.ID)
	s.Require().NoError(err)
	second, err := s.store.FindByID(s.ctx, f.ID)
	s.Require().NoError(err)

	s.Require().NoError(s.store.Update(s.ctx, first))
	s.ErrorIs(s.store.Update(s.ctx, second), sentinel.ErrConflict)
}

func (s *PostgresFindingStoreSuite) TestListFilters() {
	actor := id.UserID(uuid.New())
	now := time.Now().UTC()

	safety := s.newFinding("safety")
	quality := s.newFinding("quality")
	archived := s.newFinding("safety")
	archived.ApplyArchive(actor, now)

	s.Require().NoError(s.store.Create(s.ctx, safety))
	s.Require().NoError(s.store.Create(s.ctx, quality))
	s.Require().NoError(s.store.Create(s.ctx, archived))

	out, err := s.store.List(s.ctx, store.Filter{Category: "safety"})
	s.Require().NoError(err)
	s.Require().Len(out, 1)
	s.Equal(safety.ID, out[0].ID)

	out, err = s.store.List(s.ctx, store.Filter{Category: "safety", IncludeArchived: true})
	s.Require().NoError(err)
	s.Len(out, 2)
}

func (s *PostgresFindingStoreSuite) TestListAnalyzedSince() {
	actor := id.UserID(uuid.New())
	now := time.Now().UTC()

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
	s.Require().Len(out, 1, "only analyzed findings inside the window qualify")
	s.Equal(analyzed.ID, out[0].ID)
}
