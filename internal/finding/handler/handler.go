package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"conforma/internal/audit"
	"conforma/internal/finding/models"
	"conforma/internal/finding/service"
	"conforma/internal/finding/store"
	id "conforma/pkg/domain"
	dErrors "conforma/pkg/domain-errors"
	"conforma/pkg/platform/httputil"
	"conforma/pkg/requestcontext"
)

// Service defines the interface for finding lifecycle operations.
type Service interface {
	Register(ctx context.Context, input service.RegisterInput) (*models.Finding, error)
	PlanImmediateCorrection(ctx context.Context, findingID id.FindingID, input service.PlanInput) (*models.Finding, error)
	ExecuteImmediateCorrection(ctx context.Context, findingID id.FindingID, input service.ExecuteInput) (*models.Finding, error)
	AnalyzeRootCause(ctx context.Context, findingID id.FindingID, analysis models.RootCauseAnalysis) (*models.Finding, error)
	Verify(ctx context.Context, findingID id.FindingID, input service.VerifyInput) (*models.Finding, error)
	Reopen(ctx context.Context, findingID id.FindingID) (*models.Finding, error)
	SetPhase(ctx context.Context, findingID id.FindingID, phase models.ISOPhase) (*models.Finding, error)
	Archive(ctx context.Context, findingID id.FindingID) (*models.Finding, error)
	Get(ctx context.Context, findingID id.FindingID) (*models.Finding, error)
	List(ctx context.Context, filter store.Filter) ([]*models.Finding, error)
}

// Trail serves the recorded audit events for one finding.
type Trail interface {
	Trail(ctx context.Context, kind audit.EntityKind, entityID string) ([]audit.Event, error)
}

// Handler wires finding endpoints to the finding service.
type Handler struct {
	service Service
	trail   Trail
	logger  *slog.Logger
}

// New constructs a finding handler with its dependencies.
func New(service Service, trail Trail, logger *slog.Logger) *Handler {
	return &Handler{service: service, trail: trail, logger: logger}
}

// Register mounts finding endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/findings", func(r chi.Router) {
		r.Post("/", h.HandleRegister)
		r.Get("/", h.HandleList)
		r.Route("/{findingID}", func(r chi.Router) {
			r.Get("/", h.HandleGet)
			r.Delete("/", h.HandleArchive)
			r.Post("/immediate-correction/plan", h.HandlePlanCorrection)
			r.Post("/immediate-correction/execute", h.HandleExecuteCorrection)
			r.Post("/root-cause", h.HandleAnalyzeRootCause)
			r.Post("/verify", h.HandleVerify)
			r.Post("/reopen", h.HandleReopen)
			r.Put("/phase", h.HandleSetPhase)
			r.Get("/events", h.HandleEvents)
		})
	})
}

// HandleRegister handles POST /findings.
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[RegisterFindingRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	f, err := h.service.Register(ctx, service.RegisterInput{
		Source:   models.Source{OriginType: req.Source.OriginType, OriginID: req.Source.OriginID},
		Severity: req.ParsedSeverity(),
		Risk:     req.ParsedRisk(),
		Category: req.Category,
	})
	if err != nil {
		h.writeServiceError(ctx, w, "failed to register finding", err)
		return
	}

	h.logger.InfoContext(ctx, "finding registered",
		"request_id", requestID,
		"finding_id", f.ID,
		"severity", f.Severity,
		"category", f.Category,
	)
	httputil.WriteJSON(w, http.StatusCreated, FromFinding(f))
}

// HandleList handles GET /findings.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	filter, err := filterFromQuery(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	findings, err := h.service.List(ctx, filter)
	if err != nil {
		h.writeServiceError(ctx, w, "failed to list findings", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromFindings(findings))
}

// HandleGet handles GET /findings/{findingID}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	findingID, ok := h.findingID(w, r)
	if !ok {
		return
	}
	f, err := h.service.Get(ctx, findingID)
	if err != nil {
		h.writeServiceError(ctx, w, "failed to load finding", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromFinding(f))
}

// HandlePlanCorrection handles POST /findings/{findingID}/immediate-correction/plan.
func (h *Handler) HandlePlanCorrection(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	findingID, ok := h.findingID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[PlanCorrectionRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	f, err := h.service.PlanImmediateCorrection(ctx, findingID, service.PlanInput{
		Description:    req.Description,
		CommitmentDate: req.CommitmentDate,
	})
	if err != nil {
		h.writeServiceError(ctx, w, "failed to plan immediate correction", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromFinding(f))
}

// HandleExecuteCorrection handles POST /findings/{findingID}/immediate-correction/execute.
func (h *Handler) HandleExecuteCorrection(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	findingID, ok := h.findingID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[ExecuteCorrectionRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	f, err := h.service.ExecuteImmediateCorrection(ctx, findingID, service.ExecuteInput{
		ExecutionDate: req.ExecutionDate,
		Notes:         req.Notes,
	})
	if err != nil {
		h.writeServiceError(ctx, w, "failed to execute immediate correction", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromFinding(f))
}

// HandleAnalyzeRootCause handles POST /findings/{findingID}/root-cause.
func (h *Handler) HandleAnalyzeRootCause(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	findingID, ok := h.findingID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[AnalyzeRootCauseRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	f, err := h.service.AnalyzeRootCause(ctx, findingID, models.RootCauseAnalysis{
		Method:              req.Method,
		RootCause:           req.RootCause,
		ContributingFactors: req.ContributingFactors,
		Analysis:            req.Analysis,
	})
	if err != nil {
		h.writeServiceError(ctx, w, "failed to analyze root cause", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromFinding(f))
}

// HandleVerify handles POST /findings/{findingID}/verify.
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	findingID, ok := h.findingID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[VerifyFindingRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	f, err := h.service.Verify(ctx, findingID, service.VerifyInput{
		VerifiedBy:       req.ParsedVerifiedBy(),
		VerificationDate: req.VerificationDate,
		Evidence:         req.Evidence,
		Comments:         req.Comments,
	})
	if err != nil {
		h.writeServiceError(ctx, w, "failed to verify finding", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromFinding(f))
}

// HandleReopen handles POST /findings/{findingID}/reopen.
func (h *Handler) HandleReopen(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	findingID, ok := h.findingID(w, r)
	if !ok {
		return
	}
	f, err := h.service.Reopen(ctx, findingID)
	if err != nil {
		h.writeServiceError(ctx, w, "failed to reopen finding", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromFinding(f))
}

// HandleSetPhase handles PUT /findings/{findingID}/phase.
func (h *Handler) HandleSetPhase(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	findingID, ok := h.findingID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[SetPhaseRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	f, err := h.service.SetPhase(ctx, findingID, req.ParsedPhase())
	if err != nil {
		h.writeServiceError(ctx, w, "failed to set phase", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromFinding(f))
}

// HandleArchive handles DELETE /findings/{findingID}.
func (h *Handler) HandleArchive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	findingID, ok := h.findingID(w, r)
	if !ok {
		return
	}
	if _, err := h.service.Archive(ctx, findingID); err != nil {
		h.writeServiceError(ctx, w, "failed to archive finding", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleEvents handles GET /findings/{findingID}/events.
func (h *Handler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	findingID, ok := h.findingID(w, r)
	if !ok {
		return
	}
	if h.trail == nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "audit trail is not enabled"))
		return
	}
	// The finding must exist even when its trail is empty.
	if _, err := h.service.Get(ctx, findingID); err != nil {
		h.writeServiceError(ctx, w, "failed to load finding", err)
		return
	}
	events, err := h.trail.Trail(ctx, audit.EntityFinding, findingID.String())
	if err != nil {
		h.writeServiceError(ctx, w, "failed to load audit trail", err)
		return
	}
	if events == nil {
		events = []audit.Event{}
	}
	httputil.WriteJSON(w, http.StatusOK, events)
}

func (h *Handler) findingID(w http.ResponseWriter, r *http.Request) (id.FindingID, bool) {
	findingID, err := id.ParseFindingID(chi.URLParam(r, "findingID"))
	if err != nil {
		httputil.WriteError(w, err)
		return id.FindingID{}, false
	}
	return findingID, true
}

func (h *Handler) writeServiceError(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	level := slog.LevelWarn
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		level = slog.LevelError
	}
	h.logger.Log(ctx, level, msg,
		"request_id", requestcontext.RequestID(ctx),
		"error", err,
	)
	httputil.WriteError(w, err)
}

func filterFromQuery(r *http.Request) (store.Filter, error) {
	q := r.URL.Query()
	filter := store.Filter{
		Category:        q.Get("category"),
		IncludeArchived: q.Get("include_archived") == "true",
	}
	if v := q.Get("severity"); v != "" {
		severity, err := models.ParseSeverity(v)
		if err != nil {
			return store.Filter{}, err
		}
		filter.Severity = severity
	}
	if v := q.Get("status"); v != "" {
		switch models.Status(v) {
		case models.StatusOpen, models.StatusClosed:
			filter.Status = models.Status(v)
		default:
			return store.Filter{}, dErrors.Newf(dErrors.CodeValidation, "status must be open or closed; got %q", v)
		}
	}
	if v := q.Get("stage"); v != "" {
		stage := models.Stage(v)
		if !stage.Valid() {
			return store.Filter{}, dErrors.Newf(dErrors.CodeValidation, "unknown stage %q", v)
		}
		filter.Stage = stage
	}
	return filter, nil
}
