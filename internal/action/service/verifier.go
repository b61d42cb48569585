package service

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"conforma/internal/action/metrics"
	"conforma/internal/action/models"
	"conforma/internal/audit"
	id "conforma/pkg/domain"
	dErrors "conforma/pkg/domain-errors"
	"conforma/pkg/requestcontext"
)

// FindingReopener sends a closed finding back to root-cause analysis. The
// implementation is expected to be idempotent for findings that never closed.
type FindingReopener interface {
	Reopen(ctx context.Context, findingID id.FindingID) error
}

// VerdictInput carries an effectiveness judgement. VerifiedBy defaults to the
// acting user and ExecutionDate to the request time when left zero.
type VerdictInput struct {
	Effective      bool
	Method         string
	Criteria       string
	Result         string
	VerifiedBy     id.UserID
	CommitmentDate *time.Time
	ExecutionDate  time.Time
	Evidence       string
	Comments       string
}

// Verdict is the outcome of an effectiveness verification. RequiresNewAction
// signals that the ineffective action stays on record and a fresh corrective
// action must be raised; the engine never creates one automatically.
type Verdict struct {
	Action            *models.Action
	RequiresNewAction bool
}

// EffectivenessVerifier records whether a completed action worked, and feeds
// the result back into the finding lifecycle: an ineffective verdict reopens
// the linked finding so it cannot stay closed on the strength of a failed
// treatment.
type EffectivenessVerifier struct {
	actions  Store
	findings FindingReopener

	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *metrics.Metrics
	tracer         trace.Tracer
}

type VerifierOption func(*EffectivenessVerifier)

func VerifierWithLogger(logger *slog.Logger) VerifierOption {
	return func(v *EffectivenessVerifier) { v.logger = logger }
}

func VerifierWithAuditPublisher(publisher AuditPublisher) VerifierOption {
	return func(v *EffectivenessVerifier) { v.auditPublisher = publisher }
}

func VerifierWithMetrics(m *metrics.Metrics) VerifierOption {
	return func(v *EffectivenessVerifier) { v.metrics = m }
}

// NewEffectivenessVerifier constructs the verifier.
func NewEffectivenessVerifier(actions Store, findings FindingReopener, opts ...VerifierOption) *EffectivenessVerifier {
	v := &EffectivenessVerifier{
		actions:  actions,
		findings: findings,
		logger:   slog.Default(),
		tracer:   otel.Tracer("conforma/action"),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify records the verdict on a completed action. On an ineffective
// verdict the linked finding is reopened; the action keeps its completed
// status and its negative verdict so the record shows what was tried.
func (v *EffectivenessVerifier) Verify(ctx context.Context, actionID id.ActionID, input VerdictInput) (*Verdict, error) {
	ctx, span := v.tracer.Start(ctx, "action.verify_effectiveness")
	defer span.End()

	actor := requestcontext.ActorID(ctx)
	if actor.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "acting user is required")
	}
	now := requestcontext.Now(ctx)

	verifiedBy := input.VerifiedBy
	if verifiedBy.IsNil() {
		verifiedBy = actor
	}
	verifiedAt := input.ExecutionDate
	if verifiedAt.IsZero() {
		verifiedAt = now
	}

	a, err := v.actions.Execute(ctx, actionID,
		func(a *models.Action) error { return a.CanVerifyEffectiveness() },
		func(a *models.Action) {
			a.ApplyEffectiveness(models.EffectivenessVerification{
				Effective:      input.Effective,
				Method:         input.Method,
				Criteria:       input.Criteria,
				Result:         input.Result,
				VerifiedBy:     verifiedBy,
				CommitmentDate: input.CommitmentDate,
				VerifiedAt:     verifiedAt,
				Evidence:       input.Evidence,
				Comments:       input.Comments,
			}, actor, now)
		},
	)
	if err != nil {
		return nil, translateActionErr(err)
	}

	verdictLabel := "effective"
	if !input.Effective {
		verdictLabel = "ineffective"
	}
	v.metrics.IncrementEffectivenessVerdict(verdictLabel)
	v.emitAudit(ctx, a.ID.String(), verdictLabel)

	verdict := &Verdict{Action: a}
	if !input.Effective {
		verdict.RequiresNewAction = true
		// Reopening is best effort across two aggregates; a failure here
		// leaves the verdict recorded and is surfaced to the caller.
		if err := v.findings.Reopen(ctx, a.FindingID); err != nil {
			v.logger.ErrorContext(ctx, "failed to reopen finding after ineffective verdict",
				"request_id", requestcontext.RequestID(ctx),
				"action_id", a.ID,
				"finding_id", a.FindingID,
				"error", err,
			)
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "verdict recorded but finding could not be reopened")
		}
		v.logger.InfoContext(ctx, "finding reopened after ineffective action",
			"request_id", requestcontext.RequestID(ctx),
			"action_id", a.ID,
			"finding_id", a.FindingID,
		)
	}
	return verdict, nil
}

func (v *EffectivenessVerifier) emitAudit(ctx context.Context, entityID, detail string) {
	if v.auditPublisher == nil {
		return
	}
	event := audit.Event{
		Timestamp:  requestcontext.Now(ctx),
		Actor:      requestcontext.ActorID(ctx).String(),
		EntityKind: audit.EntityAction,
		EntityID:   entityID,
		Action:     audit.EventActionEffectivenessSet,
		Detail:     detail,
		RequestID:  requestcontext.RequestID(ctx),
	}
	if err := v.auditPublisher.Emit(ctx, event); err != nil {
		v.logger.ErrorContext(ctx, "failed to emit audit event",
			"request_id", requestcontext.RequestID(ctx),
			"action", audit.EventActionEffectivenessSet,
			"error", err,
		)
	}
}
