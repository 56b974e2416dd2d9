package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/echoreel/moderation/internal/bulkaction"
	"github.com/echoreel/moderation/internal/item"
	"github.com/echoreel/moderation/internal/ratelimit"
	"github.com/echoreel/moderation/internal/scan"
	"github.com/echoreel/moderation/internal/session"
)

type fakeSessions struct {
	sessions map[string]*session.Session
	err      error
	touched  int
}

func (f *fakeSessions) Get(_ context.Context, token string) (*session.Session, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.sessions[token], nil
}

func (f *fakeSessions) Touch(_ context.Context, _ string) error {
	f.touched++
	return nil
}

type fakeItems struct {
	population []item.ModerationItem
	err        error
}

func (f *fakeItems) ListAll(_ context.Context) ([]item.ModerationItem, error) {
	return f.population, f.err
}

type fakeWorkflow struct {
	err      error
	assigned map[string]string
	states   map[string]item.WorkflowState
}

func newFakeWorkflow() *fakeWorkflow {
	return &fakeWorkflow{
		assigned: make(map[string]string),
		states:   make(map[string]item.WorkflowState),
	}
}

func (f *fakeWorkflow) Assign(_ context.Context, itemID, assignee string) error {
	if f.err != nil {
		return f.err
	}
	f.assigned[itemID] = assignee
	return nil
}

func (f *fakeWorkflow) SetNotes(_ context.Context, _, _ string) error { return f.err }

func (f *fakeWorkflow) SetState(_ context.Context, itemID string, next item.WorkflowState, _ string) error {
	if f.err != nil {
		return f.err
	}
	f.states[itemID] = next
	return nil
}

func (f *fakeWorkflow) Resolve(_ context.Context, itemID, _ string) error {
	if f.err != nil {
		return f.err
	}
	f.states[itemID] = item.StateResolved
	return nil
}

type fakeBulk struct {
	err    error
	result *bulkaction.Result
	calls  int
}

func (f *fakeBulk) Execute(_ context.Context, _ bulkaction.Selection, _ item.ClipStatus, _ string) (*bulkaction.Result, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeBulk) ExecuteProfile(_ context.Context, _ string, action bulkaction.ProfileAction, _, _ string) (*bulkaction.ProfileResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &bulkaction.ProfileResult{Action: action}, nil
}

type fakeScanner struct {
	err    error
	status scan.Status
}

func (f *fakeScanner) Trigger() error      { return f.err }
func (f *fakeScanner) Status() scan.Status { return f.status }

// denyAfter allows the first n checks and denies the rest.
type denyAfter struct {
	n     int
	calls int
}

func (d *denyAfter) Allow(_ context.Context, _ string, _ ratelimit.Rule) (bool, error) {
	d.calls++
	return d.calls <= d.n, nil
}

func reviewerSessions() *fakeSessions {
	return &fakeSessions{sessions: map[string]*session.Session{
		"tok-rev": {Token: "tok-rev", ReviewerID: "rev1", Role: session.RoleReviewer},
		"tok-usr": {Token: "tok-usr", ReviewerID: "u1", Role: "listener"},
	}}
}

func newTestServer(deps Deps) *Server {
	if deps.Sessions == nil {
		deps.Sessions = reviewerSessions()
	}
	if deps.Items == nil {
		deps.Items = &fakeItems{}
	}
	if deps.Workflow == nil {
		deps.Workflow = newFakeWorkflow()
	}
	if deps.Bulk == nil {
		deps.Bulk = &fakeBulk{result: &bulkaction.Result{}}
	}
	return NewServer(deps)
}

func dispatch(t *testing.T, s *Server, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/moderation", bytes.NewReader(payload))
	if token != "" {
		req.Header.Set(SessionHeader, token)
	}
	w := httptest.NewRecorder()
	s.Routes().ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var resp struct {
		Error errorBody `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error response: %v (body %s)", err, w.Body.String())
	}
	return resp.Error
}

func TestDispatch_RequiresSession(t *testing.T) {
	s := newTestServer(Deps{})

	cases := []struct {
		name  string
		token string
	}{
		{"no credential", ""},
		{"unknown credential", "tok-nope"},
		{"non-reviewer role", "tok-usr"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := dispatch(t, s, tc.token, map[string]any{"action": ActionList})
			if w.Code != http.StatusForbidden {
				t.Fatalf("status = %d, want 403", w.Code)
			}
			if body := decodeError(t, w); body.Code != "forbidden" {
				t.Errorf("error code = %q, want forbidden", body.Code)
			}
		})
	}
}

func TestDispatch_SessionStoreDownIsTransient(t *testing.T) {
	sessions := &fakeSessions{err: fmt.Errorf("session: get: %w: connection refused", item.ErrTransient)}
	s := newTestServer(Deps{Sessions: sessions})

	w := dispatch(t, s, "tok-rev", map[string]any{"action": ActionList})
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
	if body := decodeError(t, w); body.Code != "transient_error" {
		t.Errorf("error code = %q, want transient_error", body.Code)
	}
}

func TestDispatch_List(t *testing.T) {
	now := time.Now().UTC()
	items := &fakeItems{population: []item.ModerationItem{
		{
			ID: "f1", Kind: item.KindFlag,
			Subject:       item.SubjectRef{Kind: item.SubjectClip, ID: "c1"},
			Risk:          8.2,
			Source:        item.SourceAI,
			WorkflowState: item.StatePending,
			CreatedAt:     now.Add(-time.Hour),
		},
		{
			ID: "r1", Kind: item.KindReport,
			Subject:       item.SubjectRef{Kind: item.SubjectClip, ID: "c2"},
			Risk:          4.0,
			Source:        item.SourceCommunity,
			WorkflowState: item.StatePending,
			CreatedAt:     now.Add(-2 * time.Hour),
		},
	}}
	s := newTestServer(Deps{Items: items})

	w := dispatch(t, s, "tok-rev", map[string]any{"action": ActionList, "sort_by": "priority"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	var resp struct {
		Data struct {
			Flags   []item.ModerationItem `json:"flags"`
			Reports []item.ModerationItem `json:"reports"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Data.Flags) != 1 || len(resp.Data.Reports) != 1 {
		t.Errorf("view = %d flags / %d reports, want 1/1",
			len(resp.Data.Flags), len(resp.Data.Reports))
	}
	if resp.Data.Flags[0].Priority == 0 {
		t.Error("flag priority was not computed on read")
	}
}

func TestDispatch_ErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"not found", item.ErrNotFound, http.StatusNotFound, "not_found"},
		{"conflict", item.ErrConflict, http.StatusConflict, "conflict"},
		{"invalid transition", item.ErrInvalidTransition, http.StatusUnprocessableEntity, "invalid_transition"},
		{"validation", item.ErrValidation, http.StatusBadRequest, "validation_error"},
		{"transient", item.ErrTransient, http.StatusServiceUnavailable, "transient_error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := newTestServer(Deps{Workflow: &fakeWorkflow{err: tc.err}})
			w := dispatch(t, s, "tok-rev", map[string]any{
				"action":  ActionAssignItem,
				"item_id": "f1",
			})
			if w.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tc.wantStatus)
			}
			if body := decodeError(t, w); body.Code != tc.wantCode {
				t.Errorf("error code = %q, want %q", body.Code, tc.wantCode)
			}
		})
	}
}

func TestDispatch_BulkFailureEchoesSelection(t *testing.T) {
	bulk := &fakeBulk{err: &item.BulkFailure{
		FlagIDs:   []string{"f1", "f2"},
		ReportIDs: []string{"r1"},
		Cause:     item.ErrTransient,
	}}
	s := newTestServer(Deps{Bulk: bulk})

	w := dispatch(t, s, "tok-rev", map[string]any{
		"action":   ActionBulkUpdateClips,
		"clip_ids": []string{"c1", "c2"},
		"status":   "removed",
		"flag_ids": []string{"f1", "f2"},
	})
	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", w.Code)
	}
	body := decodeError(t, w)
	if body.Code != "partial_bulk_failure" {
		t.Errorf("error code = %q", body.Code)
	}
	if len(body.FlagIDs) != 2 || len(body.ReportIDs) != 1 {
		t.Errorf("failure ids = %v / %v, want the unmodified selection", body.FlagIDs, body.ReportIDs)
	}
}

func TestDispatch_UpdateClipBuildsSelection(t *testing.T) {
	bulk := &fakeBulk{result: &bulkaction.Result{SubjectsUpdated: 1, ItemsTransitioned: 1}}
	s := newTestServer(Deps{Bulk: bulk})

	w := dispatch(t, s, "tok-rev", map[string]any{
		"action":  ActionUpdateClip,
		"clip_id": "c1",
		"status":  "hidden",
		"flag_id": "f1",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if bulk.calls != 1 {
		t.Errorf("bulk calls = %d, want 1", bulk.calls)
	}
}

func TestDispatch_UpdateClipRequiresClipID(t *testing.T) {
	s := newTestServer(Deps{})
	w := dispatch(t, s, "tok-rev", map[string]any{
		"action": ActionUpdateClip,
		"status": "hidden",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestDispatch_RateLimited(t *testing.T) {
	s := newTestServer(Deps{Limiter: &denyAfter{n: 0}})
	w := dispatch(t, s, "tok-rev", map[string]any{"action": ActionList})
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
	if body := decodeError(t, w); body.Code != "rate_limited" {
		t.Errorf("error code = %q", body.Code)
	}
}

func TestDispatch_BulkRuleAppliesToDestructiveOnly(t *testing.T) {
	// One allowance: the general check passes, the bulk check denies.
	limiter := &denyAfter{n: 1}
	s := newTestServer(Deps{Limiter: limiter})

	w := dispatch(t, s, "tok-rev", map[string]any{
		"action":   ActionBulkUpdateClips,
		"clip_ids": []string{"c1"},
		"status":   "removed",
	})
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429 once the bulk budget is spent", w.Code)
	}
	if limiter.calls != 2 {
		t.Errorf("limiter checks = %d, want 2 (general + bulk)", limiter.calls)
	}
}

func TestDispatch_ScanLifecycle(t *testing.T) {
	scanner := &fakeScanner{status: scan.Status{Scanned: 40, Flagged: 3}}
	s := newTestServer(Deps{Scanner: scanner})

	w := dispatch(t, s, "tok-rev", map[string]any{"action": ActionRunReportScan})
	if w.Code != http.StatusOK {
		t.Fatalf("trigger status = %d, body %s", w.Code, w.Body.String())
	}

	scanner.err = scan.ErrScanRunning
	w = dispatch(t, s, "tok-rev", map[string]any{"action": ActionRunReportScan})
	if w.Code != http.StatusConflict {
		t.Fatalf("second trigger status = %d, want 409", w.Code)
	}
	if body := decodeError(t, w); body.Code != "scan_running" {
		t.Errorf("error code = %q", body.Code)
	}

	w = dispatch(t, s, "tok-rev", map[string]any{"action": ActionGetScanStatus})
	if w.Code != http.StatusOK {
		t.Fatalf("status action = %d", w.Code)
	}
	var resp struct {
		Data scan.Status `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Data.Scanned != 40 || resp.Data.Flagged != 3 {
		t.Errorf("scan status = %+v", resp.Data)
	}
}

func TestDispatch_UnknownAction(t *testing.T) {
	s := newTestServer(Deps{})
	w := dispatch(t, s, "tok-rev", map[string]any{"action": "dropAllTables"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestDispatch_MissingAction(t *testing.T) {
	s := newTestServer(Deps{})
	w := dispatch(t, s, "tok-rev", map[string]any{"clip_id": "c1"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestDispatch_MethodNotAllowed(t *testing.T) {
	s := newTestServer(Deps{})
	req := httptest.NewRequest(http.MethodGet, "/api/moderation", nil)
	w := httptest.NewRecorder()
	s.Routes().ServeHTTP(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", w.Code)
	}
}
