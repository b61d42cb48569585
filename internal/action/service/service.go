package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"conforma/internal/action/metrics"
	"conforma/internal/action/models"
	"conforma/internal/action/store"
	"conforma/internal/audit"
	id "conforma/pkg/domain"
	dErrors "conforma/pkg/domain-errors"
	"conforma/pkg/platform/sentinel"
	"conforma/pkg/requestcontext"
)

// Store is the persistence port for actions.
type Store interface {
	Create(ctx context.Context, a *models.Action) error
	FindByID(ctx context.Context, actionID id.ActionID) (*models.Action, error)
	Execute(ctx context.Context, actionID id.ActionID, validate func(*models.Action) error, mutate func(*models.Action)) (*models.Action, error)
	List(ctx context.Context, filter store.Filter) ([]*models.Action, error)
	ListByFinding(ctx context.Context, findingID id.FindingID) ([]*models.Action, error)
}

// FindingState is the slice of finding state action creation checks.
type FindingState struct {
	Archived bool
	Closed   bool
}

// FindingResolver confirms the target finding can take new actions.
type FindingResolver interface {
	Resolve(ctx context.Context, findingID id.FindingID) (FindingState, error)
}

// AuditPublisher records lifecycle events. Emission failures are logged and
// never abort the business write.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service owns the corrective-action lifecycle: creation against a live
// finding, the status machine, progress reporting, the comment log, and
// reopening.
type Service struct {
	actions  Store
	findings FindingResolver

	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *metrics.Metrics
	tracer         trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) { s.auditPublisher = publisher }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// New constructs the action service.
func New(actions Store, findings FindingResolver, opts ...Option) *Service {
	s := &Service{
		actions:  actions,
		findings: findings,
		logger:   slog.Default(),
		tracer:   otel.Tracer("conforma/action"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateInput carries the validated creation payload.
type CreateInput struct {
	FindingID   id.FindingID
	Type        models.ActionType
	Priority    models.Priority
	Description string
	Owner       id.UserID
	OwnerName   string
	DueDate     *time.Time
}

// Create registers a planned action against a live finding.
func (s *Service) Create(ctx context.Context, input CreateInput) (*models.Action, error) {
	ctx, span := s.tracer.Start(ctx, "action.create")
	defer span.End()

	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)

	state, err := s.findings.Resolve(ctx, input.FindingID)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "finding does not exist")
		}
		return nil, err
	}
	if state.Archived {
		return nil, dErrors.New(dErrors.CodeInvalidState, "cannot add an action to an archived finding")
	}
	if state.Closed {
		return nil, dErrors.New(dErrors.CodeInvalidState, "cannot add an action to a closed finding; reopen it first")
	}

	a, err := models.NewAction(id.NewActionID(), input.FindingID, input.Type, input.Priority, input.Description, input.Owner, input.OwnerName, input.DueDate, actor, now)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			return nil, dErrors.New(dErrors.CodeValidation, err.Error())
		}
		return nil, err
	}
	if err := s.actions.Create(ctx, a); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create action")
	}

	s.metrics.IncrementCreated(string(a.Type))
	s.emitAudit(ctx, audit.EventActionCreated, a.ID.String(), string(a.Status))
	return a, nil
}

// UpdateStatus moves the action through its status machine.
func (s *Service) UpdateStatus(ctx context.Context, actionID id.ActionID, target models.Status) (*models.Action, error) {
	ctx, span := s.tracer.Start(ctx, "action.update_status")
	defer span.End()

	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)

	a, err := s.actions.Execute(ctx, actionID,
		func(a *models.Action) error { return a.CanChangeStatus(target) },
		func(a *models.Action) { a.ApplyStatusChange(target, actor, now) },
	)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvalidTransition) {
			s.metrics.IncrementInvalidTransition(string(target))
		}
		return nil, translateActionErr(err)
	}

	s.metrics.IncrementStatusTransition(string(target))
	s.emitAudit(ctx, audit.EventActionStatusChanged, a.ID.String(), string(a.Status))
	return a, nil
}

// UpdateProgress records manual progress reporting.
func (s *Service) UpdateProgress(ctx context.Context, actionID id.ActionID, progress int) (*models.Action, error) {
	ctx, span := s.tracer.Start(ctx, "action.update_progress")
	defer span.End()

	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)

	a, err := s.actions.Execute(ctx, actionID,
		func(a *models.Action) error { return a.CanUpdateProgress(progress) },
		func(a *models.Action) { a.ApplyProgress(progress, actor, now) },
	)
	if err != nil {
		return nil, translateActionErr(err)
	}
	s.emitAudit(ctx, audit.EventActionProgressUpdated, a.ID.String(), "")
	return a, nil
}

// AddComment appends to the action's progress log.
func (s *Service) AddComment(ctx context.Context, actionID id.ActionID, text string) (*models.Action, error) {
	ctx, span := s.tracer.Start(ctx, "action.add_comment")
	defer span.End()

	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)

	a, err := s.actions.Execute(ctx, actionID,
		func(a *models.Action) error { return a.CanAddComment(text) },
		func(a *models.Action) { a.ApplyComment(actor, text, now) },
	)
	if err != nil {
		return nil, translateActionErr(err)
	}
	s.emitAudit(ctx, audit.EventActionCommentAdded, a.ID.String(), "")
	return a, nil
}

// Reopen puts a completed action back in progress, clearing its verdict.
func (s *Service) Reopen(ctx context.Context, actionID id.ActionID) (*models.Action, error) {
	ctx, span := s.tracer.Start(ctx, "action.reopen")
	defer span.End()

	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)

	a, err := s.actions.Execute(ctx, actionID,
		func(a *models.Action) error { return a.CanReopen() },
		func(a *models.Action) { a.ApplyReopen(actor, now) },
	)
	if err != nil {
		return nil, translateActionErr(err)
	}
	s.emitAudit(ctx, audit.EventActionReopened, a.ID.String(), string(a.Status))
	return a, nil
}

// Get returns a single action.
func (s *Service) Get(ctx context.Context, actionID id.ActionID) (*models.Action, error) {
	a, err := s.actions.FindByID(ctx, actionID)
	if err != nil {
		return nil, translateActionErr(err)
	}
	return a, nil
}

// List returns actions matching the filter.
func (s *Service) List(ctx context.Context, filter store.Filter) ([]*models.Action, error) {
	out, err := s.actions.List(ctx, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list actions")
	}
	return out, nil
}

// ListByFinding returns every action linked to one finding.
func (s *Service) ListByFinding(ctx context.Context, findingID id.FindingID) ([]*models.Action, error) {
	out, err := s.actions.ListByFinding(ctx, findingID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list actions")
	}
	return out, nil
}

func translateActionErr(err error) error {
	var de *dErrors.Error
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "action not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, "action was modified concurrently, retry the operation")
	case errors.As(err, &de):
		return err
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update action")
	}
}

func requireActor(ctx context.Context) (id.UserID, error) {
	actor := requestcontext.ActorID(ctx)
	if actor.IsNil() {
		return id.UserID{}, dErrors.New(dErrors.CodeUnauthorized, "acting user is required")
	}
	return actor, nil
}

func (s *Service) emitAudit(ctx context.Context, action audit.EventName, entityID, detail string) {
	if s.auditPublisher == nil {
		return
	}
	event := audit.Event{
		Timestamp:  requestcontext.Now(ctx),
		Actor:      requestcontext.ActorID(ctx).String(),
		EntityKind: audit.EntityAction,
		EntityID:   entityID,
		Action:     action,
		Detail:     detail,
		RequestID:  requestcontext.RequestID(ctx),
	}
	if err := s.auditPublisher.Emit(ctx, event); err != nil {
		s.logger.ErrorContext(ctx, "failed to emit audit event",
			"request_id", requestcontext.RequestID(ctx),
			"action", action,
			"error", err,
		)
	}
}
