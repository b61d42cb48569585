package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"conforma/internal/action/models"
	"conforma/internal/action/service"
	"conforma/internal/action/store"
	"conforma/internal/audit"
	id "conforma/pkg/domain"
	dErrors "conforma/pkg/domain-errors"
	"conforma/pkg/platform/httputil"
	"conforma/pkg/requestcontext"
)

// Service defines the interface for action lifecycle operations.
type Service interface {
	Create(ctx context.Context, input service.CreateInput) (*models.Action, error)
	UpdateStatus(ctx context.Context, actionID id.ActionID, target models.Status) (*models.Action, error)
	UpdateProgress(ctx context.Context, actionID id.ActionID, progress int) (*models.Action, error)
	AddComment(ctx context.Context, actionID id.ActionID, text string) (*models.Action, error)
	Reopen(ctx context.Context, actionID id.ActionID) (*models.Action, error)
	Get(ctx context.Context, actionID id.ActionID) (*models.Action, error)
	List(ctx context.Context, filter store.Filter) ([]*models.Action, error)
}

// Verifier defines the effectiveness verification entry point.
type Verifier interface {
	Verify(ctx context.Context, actionID id.ActionID, input service.VerdictInput) (*service.Verdict, error)
}

// Trail serves the recorded audit events for one action.
type Trail interface {
	Trail(ctx context.Context, kind audit.EntityKind, entityID string) ([]audit.Event, error)
}

// Handler wires action endpoints to the action service and verifier.
type Handler struct {
	service  Service
	verifier Verifier
	trail    Trail
	logger   *slog.Logger
}

// New constructs an action handler with its dependencies.
func New(service Service, verifier Verifier, trail Trail, logger *slog.Logger) *Handler {
	return &Handler{service: service, verifier: verifier, trail: trail, logger: logger}
}

// Register mounts action endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/actions", func(r chi.Router) {
		r.Post("/", h.HandleCreate)
		r.Get("/", h.HandleList)
		r.Route("/{actionID}", func(r chi.Router) {
			r.Get("/", h.HandleGet)
			r.Put("/status", h.HandleUpdateStatus)
			r.Put("/progress", h.HandleUpdateProgress)
			r.Post("/comments", h.HandleAddComment)
			r.Get("/comments", h.HandleListComments)
			r.Post("/effectiveness", h.HandleVerifyEffectiveness)
			r.Post("/reopen", h.HandleReopen)
			r.Get("/events", h.HandleEvents)
		})
	})
}

// HandleCreate handles POST /actions.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[CreateActionRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	a, err := h.service.Create(ctx, service.CreateInput{
		FindingID:   req.ParsedFindingID(),
		Type:        req.ParsedType(),
		Priority:    req.ParsedPriority(),
		Description: req.Description,
		Owner:       req.ParsedOwner(),
		OwnerName:   req.OwnerName,
		DueDate:     req.DueDate,
	})
	if err != nil {
		h.writeServiceError(ctx, w, "failed to create action", err)
		return
	}

	h.logger.InfoContext(ctx, "action created",
		"request_id", requestID,
		"action_id", a.ID,
		"finding_id", a.FindingID,
		"type", a.Type,
	)
	httputil.WriteJSON(w, http.StatusCreated, FromAction(a))
}

// HandleList handles GET /actions.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	filter, err := filterFromQuery(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	actions, err := h.service.List(ctx, filter)
	if err != nil {
		h.writeServiceError(ctx, w, "failed to list actions", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromActions(actions))
}

// HandleGet handles GET /actions/{actionID}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	actionID, ok := h.actionID(w, r)
	if !ok {
		return
	}
	a, err := h.service.Get(ctx, actionID)
	if err != nil {
		h.writeServiceError(ctx, w, "failed to load action", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromAction(a))
}

// HandleUpdateStatus handles PUT /actions/{actionID}/status.
func (h *Handler) HandleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	actionID, ok := h.actionID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[UpdateStatusRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	a, err := h.service.UpdateStatus(ctx, actionID, req.ParsedStatus())
	if err != nil {
		h.writeServiceError(ctx, w, "failed to update action status", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromAction(a))
}

// HandleUpdateProgress handles PUT /actions/{actionID}/progress.
func (h *Handler) HandleUpdateProgress(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	actionID, ok := h.actionID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[UpdateProgressRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	a, err := h.service.UpdateProgress(ctx, actionID, *req.Progress)
	if err != nil {
		h.writeServiceError(ctx, w, "failed to update action progress", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromAction(a))
}

// HandleAddComment handles POST /actions/{actionID}/comments.
func (h *Handler) HandleAddComment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	actionID, ok := h.actionID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[AddCommentRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	a, err := h.service.AddComment(ctx, actionID, req.Text)
	if err != nil {
		h.writeServiceError(ctx, w, "failed to add comment", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, FromAction(a))
}

// HandleListComments handles GET /actions/{actionID}/comments.
func (h *Handler) HandleListComments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	actionID, ok := h.actionID(w, r)
	if !ok {
		return
	}
	a, err := h.service.Get(ctx, actionID)
	if err != nil {
		h.writeServiceError(ctx, w, "failed to load action", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromAction(a).Comments)
}

// HandleVerifyEffectiveness handles POST /actions/{actionID}/effectiveness.
func (h *Handler) HandleVerifyEffectiveness(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	actionID, ok := h.actionID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[VerifyEffectivenessRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	verdict, err := h.verifier.Verify(ctx, actionID, service.VerdictInput{
		Effective:      *req.Effective,
		Method:         req.Method,
		Criteria:       req.Criteria,
		Result:         req.Result,
		VerifiedBy:     req.ParsedVerifiedBy(),
		CommitmentDate: req.CommitmentDate,
		ExecutionDate:  req.ExecutionDate,
		Evidence:       req.Evidence,
		Comments:       req.Comments,
	})
	if err != nil {
		h.writeServiceError(ctx, w, "failed to verify effectiveness", err)
		return
	}

	h.logger.InfoContext(ctx, "effectiveness verified",
		"request_id", requestID,
		"action_id", actionID,
		"effective", *req.Effective,
	)
	httputil.WriteJSON(w, http.StatusOK, &VerdictResponse{
		Action:            FromAction(verdict.Action),
		RequiresNewAction: verdict.RequiresNewAction,
	})
}

// HandleReopen handles POST /actions/{actionID}/reopen.
func (h *Handler) HandleReopen(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	actionID, ok := h.actionID(w, r)
	if !ok {
		return
	}
	a, err := h.service.Reopen(ctx, actionID)
	if err != nil {
		h.writeServiceError(ctx, w, "failed to reopen action", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromAction(a))
}

// HandleEvents handles GET /actions/{actionID}/events.
func (h *Handler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	actionID, ok := h.actionID(w, r)
	if !ok {
		return
	}
	if h.trail == nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "audit trail is not enabled"))
		return
	}
	if _, err := h.service.Get(ctx, actionID); err != nil {
		h.writeServiceError(ctx, w, "failed to load action", err)
		return
	}
	events, err := h.trail.Trail(ctx, audit.EntityAction, actionID.String())
	if err != nil {
		h.writeServiceError(ctx, w, "failed to load audit trail", err)
		return
	}
	if events == nil {
		events = []audit.Event{}
	}
	httputil.WriteJSON(w, http.StatusOK, events)
}

func (h *Handler) actionID(w http.ResponseWriter, r *http.Request) (id.ActionID, bool) {
	actionID, err := id.ParseActionID(chi.URLParam(r, "actionID"))
	if err != nil {
		httputil.WriteError(w, err)
		return id.ActionID{}, false
	}
	return actionID, true
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
	var filter store.Filter
	if v := q.Get("finding_id"); v != "" {
		findingID, err := id.ParseFindingID(v)
		if err != nil {
			return store.Filter{}, err
		}
		filter.FindingID = findingID
	}
	if v := q.Get("status"); v != "" {
		status, err := models.ParseStatus(v)
		if err != nil {
			return store.Filter{}, err
		}
		filter.Status = status
	}
	if v := q.Get("owner"); v != "" {
		owner, err := id.ParseUserID(v)
		if err != nil {
			return store.Filter{}, err
		}
		filter.Owner = owner
	}
	return filter, nil
}
