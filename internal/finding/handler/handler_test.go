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

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"conforma/internal/audit"
	"conforma/internal/finding/service"
	"conforma/internal/finding/store"
	id "conforma/pkg/domain"
	"conforma/pkg/requestcontext"
)

func newFindingRouter(t *testing.T) http.Handler {
	t.Helper()
	findings := store.NewInMemory()
	trail := audit.NewPublisher(audit.NewInMemory())
	detector := service.NewRecurrenceDetector(findings, service.DefaultRecurrencePolicy())
	svc := service.New(findings, noActions{}, detector, service.DefaultCheckpoints(),
		service.WithAuditPublisher(trail),
	)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	h := New(svc, trail, logger)
	r := chi.NewRouter()
	r.Use(withTestActor)
	h.Register(r)
	return r
}

type noActions struct{}

func (noActions) ListByFinding(context.Context, id.FindingID) ([]service.LinkedAction, error) {
	return nil, nil
}

// withTestActor stands in for the auth middleware.
func withTestActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithActorID(r.Context(), id.UserID(uuid.New()))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func postJSON(t *testing.T, router http.Handler, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("failed to marshal payload: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func registerFinding(t *testing.T, router http.Handler) *FindingResponse {
	t.Helper()
	rec := postJSON(t, router, "/findings", map[string]any{
		"source":     map[string]string{"origin_type": "internal_audit", "origin_id": "AUD-2026-04"},
		"severity":   "high",
		"risk_level": "medium",
		"category":   "material",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 registering finding, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp FindingResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode finding response: %v", err)
	}
	return &resp
}

func TestRegisterFinding(t *testing.T) {
	router := newFindingRouter(t)
	resp := registerFinding(t, router)

	if resp.Stage != "registered" {
		t.Fatalf("expected stage registered, got %q", resp.Stage)
	}
	if resp.Progress != 0 {
		t.Fatalf("expected progress 0, got %d", resp.Progress)
	}
	if resp.Status != "open" {
		t.Fatalf("expected status open, got %q", resp.Status)
	}
}

func TestRegisterFindingValidation(t *testing.T) {
	router := newFindingRouter(t)

	rec := postJSON(t, router, "/findings", map[string]any{
		"source":     map[string]string{"origin_type": "internal_audit", "origin_id": "AUD-1"},
		"severity":   "catastrophic",
		"risk_level": "medium",
		"category":   "material",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown severity, got %d", rec.Code)
	}
	var errResp struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&errResp); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	if errResp.Error != "validation_error" {
		t.Fatalf("expected validation_error, got %q", errResp.Error)
	}
}

func TestLifecycleViaHandlers(t *testing.T) {
	router := newFindingRouter(t)
	f := registerFinding(t, router)
	base := "/findings/" + f.ID

	rec := postJSON(t, router, base+"/immediate-correction/plan", map[string]any{
		"description": "quarantine the batch",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 planning correction, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = postJSON(t, router, base+"/immediate-correction/execute", map[string]any{
		"execution_date": "2026-03-10T09:00:00Z",
		"notes":          "batch held",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 executing correction, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = postJSON(t, router, base+"/root-cause", map[string]any{
		"method":     "5-why",
		"root_cause": "supplier changed material without notice",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 analyzing root cause, got %d: %s", rec.Code, rec.Body.String())
	}
	var analyzed FindingResponse
	if err := json.NewDecoder(rec.Body).Decode(&analyzed); err != nil {
		t.Fatalf("failed to decode analyzed finding: %v", err)
	}
	if analyzed.Recurrence == nil {
		t.Fatalf("expected recurrence verdict on analyzed finding")
	}
	if analyzed.Recurrence.IsRecurrent {
		t.Fatalf("first occurrence must not be recurrent")
	}
	if analyzed.Progress != 75 {
		t.Fatalf("expected progress 75, got %d", analyzed.Progress)
	}

	rec = postJSON(t, router, base+"/verify", map[string]any{
		"verification_date": "2026-03-11T09:00:00Z",
		"evidence":          "re-inspection passed",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 verifying finding, got %d: %s", rec.Code, rec.Body.String())
	}
	var closed FindingResponse
	if err := json.NewDecoder(rec.Body).Decode(&closed); err != nil {
		t.Fatalf("failed to decode closed finding: %v", err)
	}
	if closed.Status != "closed" || closed.Progress != 100 {
		t.Fatalf("expected closed at 100, got %q at %d", closed.Status, closed.Progress)
	}
}

func TestStageSkippingReturns409(t *testing.T) {
	router := newFindingRouter(t)
	f := registerFinding(t, router)

	rec := postJSON(t, router, "/findings/"+f.ID+"/root-cause", map[string]any{
		"method":     "5-why",
		"root_cause": "x",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for skipped stage, got %d", rec.Code)
	}
	var errResp struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&errResp); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	if errResp.Error != "invalid_transition" {
		t.Fatalf("expected invalid_transition, got %q", errResp.Error)
	}
}

func TestGetFinding(t *testing.T) {
	router := newFindingRouter(t)
	f := registerFinding(t, router)

	req := httptest.NewRequest(http.MethodGet, "/findings/"+f.ID, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 fetching finding, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/findings/"+uuid.New().String(), nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown finding, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/findings/not-a-uuid", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed id, got %d", rec.Code)
	}
}

func TestListFindingsFilter(t *testing.T) {
	router := newFindingRouter(t)
	registerFinding(t, router)
	registerFinding(t, router)

	req := httptest.NewRequest(http.MethodGet, "/findings?severity=high", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 listing findings, got %d", rec.Code)
	}
	var list ListFindingsResponse
	if err := json.NewDecoder(rec.Body).Decode(&list); err != nil {
		t.Fatalf("failed to decode list response: %v", err)
	}
	if list.Count != 2 {
		t.Fatalf("expected 2 findings, got %d", list.Count)
	}

	req = httptest.NewRequest(http.MethodGet, "/findings?severity=bogus", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad severity filter, got %d", rec.Code)
	}
}

func TestArchiveFinding(t *testing.T) {
	router := newFindingRouter(t)
	f := registerFinding(t, router)

	req := httptest.NewRequest(http.MethodDelete, "/findings/"+f.ID, nil)
	req = req.WithContext(requestcontext.WithActorID(req.Context(), id.UserID(uuid.New())))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 archiving finding, got %d", rec.Code)
	}

	// Archived findings drop out of the default list.
	listReq := httptest.NewRequest(http.MethodGet, "/findings", nil)
	listRec := httptest.NewRecorder()
	router.ServeHTTP(listRec, listReq)
	var list ListFindingsResponse
	if err := json.NewDecoder(listRec.Body).Decode(&list); err != nil {
		t.Fatalf("failed to decode list response: %v", err)
	}
	if list.Count != 0 {
		t.Fatalf("expected archived finding hidden, got %d", list.Count)
	}
}

func TestFindingEvents(t *testing.T) {
	router := newFindingRouter(t)
	f := registerFinding(t, router)

	req := httptest.NewRequest(http.MethodGet, "/findings/"+f.ID+"/events", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 fetching events, got %d", rec.Code)
	}
	var events []audit.Event
	if err := json.NewDecoder(rec.Body).Decode(&events); err != nil {
		t.Fatalf("failed to decode events: %v", err)
	}
	if len(events) != 1 || events[0].Action != audit.EventFindingRegistered {
		t.Fatalf("expected a single registration event, got %+v", events)
	}
}
