package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"conforma/internal/action/adapters"
	actionservice "conforma/internal/action/service"
	actionstore "conforma/internal/action/store"
	"conforma/internal/audit"
	findingadapters "conforma/internal/finding/adapters"
	findingmodels "conforma/internal/finding/models"
	findingservice "conforma/internal/finding/service"
	findingstore "conforma/internal/finding/store"
	id "conforma/pkg/domain"
	"conforma/pkg/requestcontext"
)

// testEnv wires both verticals together the same way cmd/server does, so
// handler tests exercise the real cross-entity behavior.
type testEnv struct {
	router     http.Handler
	findingSvc *findingservice.Service
	actor      id.UserID
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	trail := audit.NewPublisher(audit.NewInMemory())

	findings := findingstore.NewInMemory()
	actions := actionstore.NewInMemory()

	detector := findingservice.NewRecurrenceDetector(findings, findingservice.DefaultRecurrencePolicy())
	findingSvc := findingservice.New(findings, findingadapters.NewActionReader(actions), detector, findingservice.DefaultCheckpoints(),
		findingservice.WithLogger(logger),
		findingservice.WithAuditPublisher(trail),
	)

	gateway := adapters.NewFindingGateway(findingSvc)
	actionSvc := actionservice.New(actions, gateway,
		actionservice.WithLogger(logger),
		actionservice.WithAuditPublisher(trail),
	)
	verifier := actionservice.NewEffectivenessVerifier(actions, gateway,
		actionservice.VerifierWithLogger(logger),
		actionservice.VerifierWithAuditPublisher(trail),
	)

	actor := id.UserID(uuid.New())
	h := New(actionSvc, verifier, trail, logger)
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := requestcontext.WithActorID(req.Context(), actor)
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	h.Register(r)

	return &testEnv{router: r, findingSvc: findingSvc, actor: actor}
}

func (e *testEnv) serviceCtx() context.Context {
	return requestcontext.WithActorID(context.Background(), e.actor)
}

// registerFinding seeds a finding through the finding service directly.
func (e *testEnv) registerFinding(t *testing.T) id.FindingID {
	t.Helper()
	f, err := e.findingSvc.Register(e.serviceCtx(), findingservice.RegisterInput{
		Source:   findingmodels.Source{OriginType: "internal_audit", OriginID: "AUD-2026-04"},
		Severity: findingmodels.SeverityHigh,
		Risk:     findingmodels.RiskMedium,
		Category: "material",
	})
	if err != nil {
		t.Fatalf("failed to seed finding: %v", err)
	}
	return f.ID
}

// advanceToRootCause walks the finding to the root_cause_analyzed stage so
// that an ineffective verdict has something to reopen.
func (e *testEnv) advanceToRootCause(t *testing.T, findingID id.FindingID) {
	t.Helper()
	ctx := e.serviceCtx()
	if _, err := e.findingSvc.PlanImmediateCorrection(ctx, findingID, findingservice.PlanInput{Description: "quarantine the lot"}); err != nil {
		t.Fatalf("failed to plan correction: %v", err)
	}
	if _, err := e.findingSvc.ExecuteImmediateCorrection(ctx, findingID, findingservice.ExecuteInput{ExecutionDate: time.Now().UTC(), Notes: "lot quarantined"}); err != nil {
		t.Fatalf("failed to execute correction: %v", err)
	}
	if _, err := e.findingSvc.AnalyzeRootCause(ctx, findingID, findingmodels.RootCauseAnalysis{
		Method:    "5-why",
		RootCause: "supplier changed alloy without notice",
	}); err != nil {
		t.Fatalf("failed to analyze root cause: %v", err)
	}
}

func (e *testEnv) postJSON(t *testing.T, path string, payload any) *httptest.ResponseRecorder {
	return e.doJSON(t, http.MethodPost, path, payload)
}

func (e *testEnv) putJSON(t *testing.T, path string, payload any) *httptest.ResponseRecorder {
	return e.doJSON(t, http.MethodPut, path, payload)
}

func (e *testEnv) doJSON(t *testing.T, method, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("failed to marshal payload: %v", err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) createAction(t *testing.T, findingID id.FindingID) *ActionResponse {
	t.Helper()
	rec := e.postJSON(t, "/actions", map[string]any{
		"finding_id":  findingID.String(),
		"type":        "corrective",
		"priority":    "high",
		"description": "retrain operators",
		"owner":       uuid.New().String(),
		"owner_name":  "R. Vega",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 creating action, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp ActionResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode action response: %v", err)
	}
	return &resp
}

func (e *testEnv) completeAction(t *testing.T, actionID string) {
	t.Helper()
	for _, status := range []string{"in_progress", "completed"} {
		rec := e.putJSON(t, "/actions/"+actionID+"/status", map[string]string{"status": status})
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200 moving action to %s, got %d: %s", status, rec.Code, rec.Body.String())
		}
	}
}

func TestCreateAction(t *testing.T) {
	env := newTestEnv(t)
	findingID := env.registerFinding(t)

	a := env.createAction(t, findingID)
	if a.Status != "planned" || a.Progress != 0 {
		t.Fatalf("expected planned action at 0, got %q at %d", a.Status, a.Progress)
	}
	if a.Priority != "high" || a.OwnerName != "R. Vega" {
		t.Fatalf("expected priority and owner name echoed back, got %q / %q", a.Priority, a.OwnerName)
	}

	// A well-formed finding_id that resolves to nothing is a 404.
	rec := env.postJSON(t, "/actions", map[string]any{
		"finding_id":  uuid.New().String(),
		"type":        "corrective",
		"priority":    "high",
		"description": "x",
		"owner":       uuid.New().String(),
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown finding, got %d", rec.Code)
	}

	// An out-of-range priority is a validation failure.
	rec = env.postJSON(t, "/actions", map[string]any{
		"finding_id":  findingID.String(),
		"type":        "corrective",
		"priority":    "urgent",
		"description": "x",
		"owner":       uuid.New().String(),
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown priority, got %d", rec.Code)
	}
}

func TestStatusAndProgressViaHandlers(t *testing.T) {
	env := newTestEnv(t)
	findingID := env.registerFinding(t)
	a := env.createAction(t, findingID)

	rec := env.putJSON(t, "/actions/"+a.ID+"/status", map[string]string{"status": "in_progress"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 starting action, got %d", rec.Code)
	}

	rec = env.putJSON(t, "/actions/"+a.ID+"/progress", map[string]int{"progress": 60})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 reporting progress, got %d", rec.Code)
	}
	var updated ActionResponse
	if err := json.NewDecoder(rec.Body).Decode(&updated); err != nil {
		t.Fatalf("failed to decode action: %v", err)
	}
	if updated.Progress != 60 {
		t.Fatalf("expected progress 60, got %d", updated.Progress)
	}

	// Skipping planned -> completed is refused.
	b := env.createAction(t, findingID)
	rec = env.putJSON(t, "/actions/"+b.ID+"/status", map[string]string{"status": "completed"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for illegal transition, got %d", rec.Code)
	}
}

func TestCommentsViaHandlers(t *testing.T) {
	env := newTestEnv(t)
	a := env.createAction(t, env.registerFinding(t))

	rec := env.postJSON(t, "/actions/"+a.ID+"/comments", map[string]string{"text": "ordered parts"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 adding comment, got %d", rec.Code)
	}
	var updated ActionResponse
	if err := json.NewDecoder(rec.Body).Decode(&updated); err != nil {
		t.Fatalf("failed to decode action: %v", err)
	}
	if len(updated.Comments) != 1 || updated.Comments[0].Text != "ordered parts" {
		t.Fatalf("expected one comment, got %+v", updated.Comments)
	}

	rec = env.doJSON(t, http.MethodGet, "/actions/"+a.ID+"/comments", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 listing comments, got %d", rec.Code)
	}
	var comments []CommentResponse
	if err := json.NewDecoder(rec.Body).Decode(&comments); err != nil {
		t.Fatalf("failed to decode comments: %v", err)
	}
	if len(comments) != 1 || comments[0].Text != "ordered parts" {
		t.Fatalf("expected the posted comment back, got %+v", comments)
	}
}

func TestEffectivenessFeedbackLoop(t *testing.T) {
	env := newTestEnv(t)
	findingID := env.registerFinding(t)
	env.advanceToRootCause(t, findingID)
	a := env.createAction(t, findingID)
	env.completeAction(t, a.ID)

	rec := env.postJSON(t, "/actions/"+a.ID+"/effectiveness", map[string]any{
		"effective": false,
		"method":    "follow-up audit",
		"criteria":  "no repeat defects in 30 days",
		"result":    "defect recurred",
		"evidence":  "defect recurred within a week",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 verifying effectiveness, got %d: %s", rec.Code, rec.Body.String())
	}
	var verdict VerdictResponse
	if err := json.NewDecoder(rec.Body).Decode(&verdict); err != nil {
		t.Fatalf("failed to decode verdict: %v", err)
	}
	if !verdict.RequiresNewAction {
		t.Fatalf("expected requires_new_action for ineffective verdict")
	}
	if verdict.Action.Status != "completed" {
		t.Fatalf("expected the failed action to stay completed, got %q", verdict.Action.Status)
	}
	if verdict.Action.Effectiveness == nil || verdict.Action.Effectiveness.Effective {
		t.Fatalf("expected a recorded ineffective verdict")
	}
}

func TestListActionsByFinding(t *testing.T) {
	env := newTestEnv(t)
	findingA := env.registerFinding(t)
	findingB := env.registerFinding(t)
	env.createAction(t, findingA)
	env.createAction(t, findingA)
	env.createAction(t, findingB)

	req := httptest.NewRequest(http.MethodGet, "/actions?finding_id="+findingA.String(), nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 listing actions, got %d", rec.Code)
	}
	var list ListActionsResponse
	if err := json.NewDecoder(rec.Body).Decode(&list); err != nil {
		t.Fatalf("failed to decode list: %v", err)
	}
	if list.Count != 2 {
		t.Fatalf("expected 2 actions for finding, got %d", list.Count)
	}
}
