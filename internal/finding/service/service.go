package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"conforma/internal/audit"
	"conforma/internal/finding/metrics"
	"conforma/internal/finding/models"
	"conforma/internal/finding/store"
	id "conforma/pkg/domain"
	dErrors "conforma/pkg/domain-errors"
	"conforma/pkg/platform/sentinel"
	"conforma/pkg/requestcontext"
)

// Store is the persistence port for findings. Execute must run validate and
// mutate while holding the entity lock so concurrent transitions have at
// most one winner.
type Store interface {
	Create(ctx context.Context, f *models.Finding) error
	FindByID(ctx context.Context, findingID id.FindingID) (*models.Finding, error)
	Execute(ctx context.Context, findingID id.FindingID, validate func(*models.Finding) error, mutate func(*models.Finding)) (*models.Finding, error)
	List(ctx context.Context, filter store.Filter) ([]*models.Finding, error)
	ListAnalyzedSince(ctx context.Context, since time.Time) ([]*models.Finding, error)
}

// LinkedAction is the slice of action state the closure gate needs. The
// action vertical adapts its records into this shape.
type LinkedAction struct {
	ActionID  id.ActionID
	Status    string
	Completed bool
	Verified  bool
	Effective bool
}

// ActionReader reports the actions linked to a finding. Reading the action
// set and writing the finding are not atomic across the two entity types;
// closure is a best-effort consistency check (see Verify).
type ActionReader interface {
	ListByFinding(ctx context.Context, findingID id.FindingID) ([]LinkedAction, error)
}

// AuditPublisher records lifecycle events. Emission failures are logged and
// never abort the business write.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Checkpoints is the stage-to-progress table, injected from configuration.
type Checkpoints struct {
	Registered        int
	ImmediatePlanned  int
	ImmediateExecuted int
	RootCauseAnalyzed int
	VerifiedClosed    int
}

// DefaultCheckpoints returns the standard dashboard table.
func DefaultCheckpoints() Checkpoints {
	return Checkpoints{Registered: 0, ImmediatePlanned: 25, ImmediateExecuted: 50, RootCauseAnalyzed: 75, VerifiedClosed: 100}
}

// Service owns the finding lifecycle: registration, immediate correction,
// root-cause analysis (with the recurrence scan), verification/closure,
// reopening, and archival.
type Service struct {
	findings    Store
	actions     ActionReader
	detector    *RecurrenceDetector
	checkpoints Checkpoints

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

// New constructs the finding service.
func New(findings Store, actions ActionReader, detector *RecurrenceDetector, checkpoints Checkpoints, opts ...Option) *Service {
	s := &Service{
		findings:    findings,
		actions:     actions,
		detector:    detector,
		checkpoints: checkpoints,
		logger:      slog.Default(),
		tracer:      otel.Tracer("conforma/finding"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterInput carries the validated registration payload.
type RegisterInput struct {
	Source   models.Source
	Severity models.Severity
	Risk     models.RiskLevel
	Category string
}

// Register creates a finding at the registered stage with progress 0.
func (s *Service) Register(ctx context.Context, input RegisterInput) (*models.Finding, error) {
	ctx, span := s.tracer.Start(ctx, "finding.register")
	defer span.End()

	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}

	f, err := models.NewFinding(id.NewFindingID(), input.Source, input.Severity, input.Risk, input.Category, actor, requestcontext.Now(ctx))
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			return nil, dErrors.New(dErrors.CodeValidation, err.Error())
		}
		return nil, err
	}
	if err := s.findings.Create(ctx, f); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to register finding")
	}

	s.metrics.IncrementRegistered(string(f.Severity))
	s.emitAudit(ctx, audit.EventFindingRegistered, f.ID.String(), string(f.Stage))
	return f, nil
}

// PlanInput carries the immediate correction plan.
type PlanInput struct {
	Description    string
	CommitmentDate *time.Time
}

// PlanImmediateCorrection advances registered -> immediate_action_planned.
func (s *Service) PlanImmediateCorrection(ctx context.Context, findingID id.FindingID, input PlanInput) (*models.Finding, error) {
	ctx, span := s.tracer.Start(ctx, "finding.plan_immediate_correction")
	defer span.End()

	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)

	f, err := s.transition(ctx, findingID, string(models.StageImmediateActionPlanned),
		func(f *models.Finding) error { return f.CanPlanImmediateCorrection() },
		func(f *models.Finding) {
			f.ApplyImmediateCorrectionPlan(input.Description, input.CommitmentDate, s.checkpoints.ImmediatePlanned, actor, now)
		},
	)
	if err != nil {
		return nil, err
	}
	s.emitAudit(ctx, audit.EventFindingCorrectionPlanned, f.ID.String(), string(f.Stage))
	return f, nil
}

// ExecuteInput carries the immediate correction execution record.
type ExecuteInput struct {
	ExecutionDate time.Time
	Notes         string
}

// ExecuteImmediateCorrection advances immediate_action_planned ->
// immediate_action_executed.
func (s *Service) ExecuteImmediateCorrection(ctx context.Context, findingID id.FindingID, input ExecuteInput) (*models.Finding, error) {
	ctx, span := s.tracer.Start(ctx, "finding.execute_immediate_correction")
	defer span.End()

	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)

	f, err := s.transition(ctx, findingID, string(models.StageImmediateActionExecuted),
		func(f *models.Finding) error { return f.CanExecuteImmediateCorrection() },
		func(f *models.Finding) {
			f.ApplyImmediateCorrectionExecution(input.ExecutionDate, input.Notes, s.checkpoints.ImmediateExecuted, actor, now)
		},
	)
	if err != nil {
		return nil, err
	}
	s.emitAudit(ctx, audit.EventFindingCorrectionExecuted, f.ID.String(), string(f.Stage))
	return f, nil
}

// AnalyzeRootCause advances immediate_action_executed -> root_cause_analyzed,
// running the recurrence scan synchronously and storing its verdict on the
// finding before returning.
func (s *Service) AnalyzeRootCause(ctx context.Context, findingID id.FindingID, analysis models.RootCauseAnalysis) (*models.Finding, error) {
	ctx, span := s.tracer.Start(ctx, "finding.analyze_root_cause")
	defer span.End()

	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)

	// The scan is read-only, so it runs before the entity lock is taken.
	// The stage guard is revalidated under the lock, so a concurrent
	// analysis still has exactly one winner.
	subject, err := s.findings.FindByID(ctx, findingID)
	if err != nil {
		return nil, wrapStoreErr(err, "finding")
	}
	verdict, err := s.detector.Evaluate(ctx, subject, analysis.RootCause, now)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "recurrence scan failed")
	}

	f, err := s.transition(ctx, findingID, string(models.StageRootCauseAnalyzed),
		func(f *models.Finding) error { return f.CanAnalyzeRootCause() },
		func(f *models.Finding) {
			f.ApplyRootCauseAnalysis(analysis, s.checkpoints.RootCauseAnalyzed, actor, now)
			_ = f.SetRecurrence(verdict)
		},
	)
	if err != nil {
		return nil, err
	}

	if verdict.IsRecurrent {
		s.metrics.IncrementRecurrenceDetected()
		s.logger.InfoContext(ctx, "recurrent finding detected",
			"request_id", requestcontext.RequestID(ctx),
			"finding_id", f.ID,
			"occurrence_count", verdict.OccurrenceCount,
		)
	}
	s.emitAudit(ctx, audit.EventFindingRootCauseAnalyzed, f.ID.String(), string(f.Stage))
	return f, nil
}

// VerifyInput carries the closure verification record.
type VerifyInput struct {
	VerifiedBy       id.UserID
	VerificationDate time.Time
	Evidence         string
	Comments         string
}

// Verify closes the finding once every linked action is resolved. The action
// set is read first and the finding written second; this is a best-effort
// cross-entity check, not a two-entity transaction.
func (s *Service) Verify(ctx context.Context, findingID id.FindingID, input VerifyInput) (*models.Finding, error) {
	ctx, span := s.tracer.Start(ctx, "finding.verify")
	defer span.End()

	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)

	linked, err := s.actions.ListByFinding(ctx, findingID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load linked actions")
	}
	if err := closureGate(linked); err != nil {
		return nil, err
	}

	verifiedBy := input.VerifiedBy
	if verifiedBy.IsNil() {
		verifiedBy = actor
	}

	f, err := s.transition(ctx, findingID, string(models.StageVerifiedClosed),
		func(f *models.Finding) error { return f.CanVerify() },
		func(f *models.Finding) {
			f.ApplyVerification(models.Verification{
				VerifiedBy:       verifiedBy,
				VerificationDate: input.VerificationDate,
				Evidence:         input.Evidence,
				Comments:         input.Comments,
			}, s.checkpoints.VerifiedClosed, actor, now)
		},
	)
	if err != nil {
		return nil, err
	}
	s.emitAudit(ctx, audit.EventFindingVerifiedClosed, f.ID.String(), string(f.Stage))
	return f, nil
}

// Reopen returns a closed finding to root_cause_analyzed and clears its
// verification. A finding already back at root_cause_analyzed reopens as a
// no-op so the effectiveness feedback loop is idempotent.
func (s *Service) Reopen(ctx context.Context, findingID id.FindingID) (*models.Finding, error) {
	ctx, span := s.tracer.Start(ctx, "finding.reopen")
	defer span.End()

	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)

	current, err := s.findings.FindByID(ctx, findingID)
	if err != nil {
		return nil, wrapStoreErr(err, "finding")
	}
	if current.Stage == models.StageRootCauseAnalyzed && !current.Archived {
		return current, nil
	}

	f, err := s.findings.Execute(ctx, findingID,
		func(f *models.Finding) error { return f.CanReopen() },
		func(f *models.Finding) { f.ApplyReopen(s.checkpoints.RootCauseAnalyzed, actor, now) },
	)
	if err != nil {
		return nil, s.translateTransitionErr(ctx, err, "reopen")
	}

	s.metrics.IncrementReopened()
	s.emitAudit(ctx, audit.EventFindingReopened, f.ID.String(), string(f.Stage))
	return f, nil
}

// SetPhase updates the advisory ISO phase. No stage rules apply.
func (s *Service) SetPhase(ctx context.Context, findingID id.FindingID, phase models.ISOPhase) (*models.Finding, error) {
	ctx, span := s.tracer.Start(ctx, "finding.set_phase")
	defer span.End()

	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)

	f, err := s.findings.Execute(ctx, findingID,
		func(f *models.Finding) error { return f.CanSetPhase() },
		func(f *models.Finding) { f.ApplySetPhase(phase, actor, now) },
	)
	if err != nil {
		return nil, s.translateTransitionErr(ctx, err, "set_phase")
	}
	return f, nil
}

// Archive soft-deletes a finding. Refused while any linked action is still
// active so an action never points at a dead finding mid-flight.
func (s *Service) Archive(ctx context.Context, findingID id.FindingID) (*models.Finding, error) {
	ctx, span := s.tracer.Start(ctx, "finding.archive")
	defer span.End()

	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)

	linked, err := s.actions.ListByFinding(ctx, findingID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load linked actions")
	}
	for _, a := range linked {
		if !a.Completed && a.Status != "cancelled" {
			return nil, dErrors.New(dErrors.CodeInvalidState, "finding has active actions and cannot be archived")
		}
	}

	f, err := s.findings.Execute(ctx, findingID,
		func(f *models.Finding) error { return f.CanArchive() },
		func(f *models.Finding) { f.ApplyArchive(actor, now) },
	)
	if err != nil {
		return nil, s.translateTransitionErr(ctx, err, "archive")
	}
	s.emitAudit(ctx, audit.EventFindingArchived, f.ID.String(), string(f.Stage))
	return f, nil
}

// Get returns a single finding.
func (s *Service) Get(ctx context.Context, findingID id.FindingID) (*models.Finding, error) {
	f, err := s.findings.FindByID(ctx, findingID)
	if err != nil {
		return nil, wrapStoreErr(err, "finding")
	}
	return f, nil
}

// List returns findings matching the filter.
func (s *Service) List(ctx context.Context, filter store.Filter) ([]*models.Finding, error) {
	out, err := s.findings.List(ctx, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list findings")
	}
	return out, nil
}

// transition wraps store.Execute with the shared error translation and
// per-stage metrics for forward transitions.
func (s *Service) transition(ctx context.Context, findingID id.FindingID, target string, validate func(*models.Finding) error, mutate func(*models.Finding)) (*models.Finding, error) {
	f, err := s.findings.Execute(ctx, findingID, validate, mutate)
	if err != nil {
		return nil, s.translateTransitionErr(ctx, err, target)
	}
	s.metrics.IncrementStageTransition(target)
	return f, nil
}

func (s *Service) translateTransitionErr(ctx context.Context, err error, target string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "finding not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, "finding was modified concurrently, retry the operation")
	case dErrors.HasCode(err, dErrors.CodeInvalidTransition):
		s.metrics.IncrementInvalidTransition(target)
		return err
	case dErrors.HasCode(err, dErrors.CodeInvalidState):
		return err
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update finding")
	}
}

// closureGate enforces the linked-action requirement for closure: no action
// may still be executing, every completed action needs a recorded
// effectiveness verdict, and when actions exist at least one of them must
// have been effective. Cancelled actions do not count either way.
func closureGate(actions []LinkedAction) error {
	anyRelevant := false
	anyEffective := false
	for _, a := range actions {
		if a.Status == "cancelled" {
			continue
		}
		anyRelevant = true
		if !a.Completed {
			return dErrors.Newf(dErrors.CodeInvalidState, "action %s is not completed; all corrective actions must complete before closure", a.ActionID)
		}
		if !a.Verified {
			return dErrors.Newf(dErrors.CodeInvalidState, "action %s has no effectiveness verification; verify it before closure", a.ActionID)
		}
		if a.Effective {
			anyEffective = true
		}
	}
	if anyRelevant && !anyEffective {
		return dErrors.New(dErrors.CodeInvalidState, "no effective action on record; a new corrective action is required before closure")
	}
	return nil
}

func requireActor(ctx context.Context) (id.UserID, error) {
	actor := requestcontext.ActorID(ctx)
	if actor.IsNil() {
		return id.UserID{}, dErrors.New(dErrors.CodeUnauthorized, "acting user is required")
	}
	return actor, nil
}

func wrapStoreErr(err error, entity string) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Newf(dErrors.CodeNotFound, "%s not found", entity)
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "store failure")
}

func (s *Service) emitAudit(ctx context.Context, action audit.EventName, entityID, detail string) {
	if s.auditPublisher == nil {
		return
	}
	event := audit.Event{
		Timestamp:  requestcontext.Now(ctx),
		Actor:      requestcontext.ActorID(ctx).String(),
		EntityKind: audit.EntityFinding,
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
