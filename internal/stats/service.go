// Package stats is the read side of the lifecycle engine. It derives
// dashboard aggregates by scan-and-reduce over the finding and action
// stores and never mutates either entity.
package stats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	actionmodels "conforma/internal/action/models"
	actionstore "conforma/internal/action/store"
	findingmodels "conforma/internal/finding/models"
	findingstore "conforma/internal/finding/store"
	id "conforma/pkg/domain"
	dErrors "conforma/pkg/domain-errors"
)

// FindingSource lists findings matching a filter.
type FindingSource interface {
	List(ctx context.Context, filter findingstore.Filter) ([]*findingmodels.Finding, error)
}

// ActionSource lists actions matching a filter.
type ActionSource interface {
	List(ctx context.Context, filter actionstore.Filter) ([]*actionmodels.Action, error)
}

// Cache stores serialized aggregates under a TTL. Implementations must treat
// a miss as (nil, nil); cache errors are logged and never fail a read.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// FindingStats is the dashboard aggregate over a filtered finding set.
// RequiresActionCount counts findings whose stage has reached
// immediate_action_planned and that still carry at least one active action.
type FindingStats struct {
	Total               int     `json:"total"`
	ClosedCount         int     `json:"closed_count"`
	RequiresActionCount int     `json:"requires_action_count"`
	AverageProgress     float64 `json:"average_progress"`
}

// ActionStats is the dashboard aggregate over a filtered action set,
// partitioned by status.
type ActionStats struct {
	Total           int            `json:"total"`
	ByStatus        map[string]int `json:"by_status"`
	AverageProgress float64        `json:"average_progress"`
}

// Service computes aggregates on demand. Results are always consistent with
// a full recomputation; the cache only bounds how often that recomputation
// runs.
type Service struct {
	findings FindingSource
	actions  ActionSource

	cache  Cache
	ttl    time.Duration
	logger *slog.Logger
	tracer trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithCache serves aggregates from cache for up to ttl. A zero ttl disables
// caching.
func WithCache(cache Cache, ttl time.Duration) Option {
	return func(s *Service) {
		if cache != nil && ttl > 0 {
			s.cache = cache
			s.ttl = ttl
		}
	}
}

// New constructs the stats service.
func New(findings FindingSource, actions ActionSource, opts ...Option) *Service {
	s := &Service{
		findings: findings,
		actions:  actions,
		logger:   slog.Default(),
		tracer:   otel.Tracer("conforma/stats"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FindingStats aggregates the filtered finding set. The finding and action
// scans run in parallel; the action scan is unfiltered because active-action
// lookups need the full linkage regardless of the finding filter.
func (s *Service) FindingStats(ctx context.Context, filter findingstore.Filter) (*FindingStats, error) {
	ctx, span := s.tracer.Start(ctx, "stats.findings")
	defer span.End()

	key := findingStatsKey(filter)
	if cached, ok := s.fromCache(ctx, key); ok {
		var stats FindingStats
		if err := json.Unmarshal(cached, &stats); err == nil {
			return &stats, nil
		}
	}

	var (
		findings []*findingmodels.Finding
		actions  []*actionmodels.Action
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		findings, err = s.findings.List(gctx, filter)
		return err
	})
	g.Go(func() error {
		var err error
		actions, err = s.actions.List(gctx, actionstore.Filter{})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to scan records")
	}

	activeByFinding := make(map[id.FindingID]int)
	for _, a := range actions {
		if a.Status.Active() {
			activeByFinding[a.FindingID]++
		}
	}

	stats := &FindingStats{Total: len(findings)}
	progressSum := 0
	for _, f := range findings {
		progressSum += f.Progress
		if f.Status == findingmodels.StatusClosed {
			stats.ClosedCount++
		}
		if f.Stage.Reached(findingmodels.StageImmediateActionPlanned) && activeByFinding[f.ID] > 0 {
			stats.RequiresActionCount++
		}
	}
	if len(findings) > 0 {
		stats.AverageProgress = float64(progressSum) / float64(len(findings))
	}

	s.toCache(ctx, key, stats)
	return stats, nil
}

// ActionStats aggregates the filtered action set partitioned by status.
func (s *Service) ActionStats(ctx context.Context, filter actionstore.Filter) (*ActionStats, error) {
	ctx, span := s.tracer.Start(ctx, "stats.actions")
	defer span.End()

	key := actionStatsKey(filter)
	if cached, ok := s.fromCache(ctx, key); ok {
		var stats ActionStats
		if err := json.Unmarshal(cached, &stats); err == nil {
			return &stats, nil
		}
	}

	actions, err := s.actions.List(ctx, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to scan actions")
	}

	stats := &ActionStats{Total: len(actions), ByStatus: make(map[string]int)}
	progressSum := 0
	for _, a := range actions {
		stats.ByStatus[string(a.Status)]++
		progressSum += a.Progress
	}
	if len(actions) > 0 {
		stats.AverageProgress = float64(progressSum) / float64(len(actions))
	}

	s.toCache(ctx, key, stats)
	return stats, nil
}

func (s *Service) fromCache(ctx context.Context, key string) ([]byte, bool) {
	if s.cache == nil {
		return nil, false
	}
	data, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.WarnContext(ctx, "stats cache read failed", "key", key, "error", err)
		return nil, false
	}
	return data, data != nil
}

func (s *Service) toCache(ctx context.Context, key string, stats any) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(stats)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, data, s.ttl); err != nil {
		s.logger.WarnContext(ctx, "stats cache write failed", "key", key, "error", err)
	}
}

func findingStatsKey(filter findingstore.Filter) string {
	return fmt.Sprintf("stats:findings:%s|%s|%s|%s|%t",
		filter.Category, filter.Severity, filter.Status, filter.Stage, filter.IncludeArchived)
}

func actionStatsKey(filter actionstore.Filter) string {
	return fmt.Sprintf("stats:actions:%s|%s|%s", filter.FindingID, filter.Status, filter.Owner)
}
