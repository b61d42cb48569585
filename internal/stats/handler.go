package stats

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	actionmodels "conforma/internal/action/models"
	actionstore "conforma/internal/action/store"
	findingmodels "conforma/internal/finding/models"
	findingstore "conforma/internal/finding/store"
	id "conforma/pkg/domain"
	dErrors "conforma/pkg/domain-errors"
	"conforma/pkg/platform/httputil"
	"conforma/pkg/requestcontext"
)

// Handler serves the dashboard aggregate endpoints.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

// NewHandler constructs the stats handler.
func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts stats endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/stats", func(r chi.Router) {
		r.Get("/findings", h.HandleFindingStats)
		r.Get("/actions", h.HandleActionStats)
	})
}

// HandleFindingStats handles GET /stats/findings.
func (h *Handler) HandleFindingStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	filter, err := findingFilterFromQuery(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	stats, err := h.service.FindingStats(ctx, filter)
	if err != nil {
		h.writeServiceError(ctx, w, "failed to aggregate finding stats", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, stats)
}

// HandleActionStats handles GET /stats/actions.
func (h *Handler) HandleActionStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	filter, err := actionFilterFromQuery(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	stats, err := h.service.ActionStats(ctx, filter)
	if err != nil {
		h.writeServiceError(ctx, w, "failed to aggregate action stats", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, stats)
}

func (h *Handler) writeServiceError(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	h.logger.ErrorContext(ctx, msg,
		"request_id", requestcontext.RequestID(ctx),
		"error", err,
	)
	httputil.WriteError(w, err)
}

func findingFilterFromQuery(r *http.Request) (findingstore.Filter, error) {
	q := r.URL.Query()
	filter := findingstore.Filter{
		Category:        q.Get("category"),
		IncludeArchived: q.Get("include_archived") == "true",
	}
	if v := q.Get("severity"); v != "" {
		severity, err := findingmodels.ParseSeverity(v)
		if err != nil {
			return findingstore.Filter{}, err
		}
		filter.Severity = severity
	}
	if v := q.Get("status"); v != "" {
		switch findingmodels.Status(v) {
		case findingmodels.StatusOpen, findingmodels.StatusClosed:
			filter.Status = findingmodels.Status(v)
		default:
			return findingstore.Filter{}, dErrors.Newf(dErrors.CodeValidation, "status must be open or closed; got %q", v)
		}
	}
	if v := q.Get("stage"); v != "" {
		stage := findingmodels.Stage(v)
		if !stage.Valid() {
			return findingstore.Filter{}, dErrors.Newf(dErrors.CodeValidation, "unknown stage %q", v)
		}
		filter.Stage = stage
	}
	return filter, nil
}

func actionFilterFromQuery(r *http.Request) (actionstore.Filter, error) {
	q := r.URL.Query()
	var filter actionstore.Filter
	if v := q.Get("finding_id"); v != "" {
		findingID, err := id.ParseFindingID(v)
		if err != nil {
			return actionstore.Filter{}, err
		}
		filter.FindingID = findingID
	}
	if v := q.Get("status"); v != "" {
		status, err := actionmodels.ParseStatus(v)
		if err != nil {
			return actionstore.Filter{}, err
		}
		filter.Status = status
	}
	if v := q.Get("owner"); v != "" {
		owner, err := id.ParseUserID(v)
		if err != nil {
			return actionstore.Filter{}, err
		}
		filter.Owner = owner
	}
	return filter, nil
}
