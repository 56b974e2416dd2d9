// Package httpapi exposes the engine's action-dispatch control surface:
// one endpoint accepting { action, ...params } plus a session credential,
// returning { data } or { error }. Authorization runs before any engine
// logic; unauthenticated callers never reach a store.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/echoreel/moderation/internal/bulkaction"
	"github.com/echoreel/moderation/internal/item"
	"github.com/echoreel/moderation/internal/metrics"
	"github.com/echoreel/moderation/internal/profileban"
	"github.com/echoreel/moderation/internal/queue"
	"github.com/echoreel/moderation/internal/ratelimit"
	"github.com/echoreel/moderation/internal/scan"
	"github.com/echoreel/moderation/internal/session"
	"github.com/echoreel/moderation/internal/stats"
)

// SessionHeader carries the opaque reviewer credential.
const SessionHeader = "X-Session-Token"

// Sessions resolves credentials to reviewer sessions.
type Sessions interface {
	Get(ctx context.Context, token string) (*session.Session, error)
	Touch(ctx context.Context, token string) error
}

// Items serves the full item population for queue and statistics reads.
type Items interface {
	ListAll(ctx context.Context) ([]item.ModerationItem, error)
}

// Workflow is the per-item state machine surface.
type Workflow interface {
	Assign(ctx context.Context, itemID, assignee string) error
	SetNotes(ctx context.Context, itemID, notes string) error
	SetState(ctx context.Context, itemID string, next item.WorkflowState, reviewer string) error
	Resolve(ctx context.Context, itemID, reviewer string) error
}

// Bulk is the fan-out surface for clip and profile actions.
type Bulk interface {
	Execute(ctx context.Context, sel bulkaction.Selection, status item.ClipStatus, reviewer string) (*bulkaction.Result, error)
	ExecuteProfile(ctx context.Context, reportID string, action bulkaction.ProfileAction, reason, reviewer string) (*bulkaction.ProfileResult, error)
}

// Scanner triggers and inspects the report rescan job.
type Scanner interface {
	Trigger() error
	Status() scan.Status
}

// AbuseCounters serves the pass-through security counters for getMetrics.
type AbuseCounters interface {
	Counters(ctx context.Context) (profileban.Counters, error)
}

// Limiter throttles per-reviewer action volume.
type Limiter interface {
	Allow(ctx context.Context, identifier string, rule ratelimit.Rule) (bool, error)
}

// Deps collects the engine components behind the dispatch surface.
type Deps struct {
	Sessions Sessions
	Items    Items
	Workflow Workflow
	Bulk     Bulk
	Scanner  Scanner
	Abuse    AbuseCounters
	Limiter  Limiter
	Stats    stats.Config
	Timeout  time.Duration // per-operation store budget
}

// Server dispatches moderation actions.
type Server struct {
	deps Deps
}

// NewServer creates the dispatch server. Limiter, Scanner, and Abuse may
// be nil; the corresponding features degrade gracefully.
func NewServer(deps Deps) *Server {
	if deps.Timeout <= 0 {
		deps.Timeout = 5 * time.Second
	}
	if deps.Stats == (stats.Config{}) {
		deps.Stats = stats.DefaultConfig()
	}
	return &Server{deps: deps}
}

// Routes returns the HTTP mux for the control surface.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/moderation", s.handleDispatch)
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", metrics.Handler())
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleDispatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.deps.Timeout)
	defer cancel()

	sess, err := s.authorize(ctx, r)
	if err != nil {
		writeError(w, "auth", err)
		return
	}

	var env Envelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		writeError(w, "decode", item.ErrValidation)
		return
	}

	if ok := s.allow(ctx, sess.ReviewerID, env.Action); !ok {
		writeRateLimited(w, env.Action)
		return
	}

	data, err := s.dispatch(ctx, sess, env)
	if err != nil {
		metrics.ActionsTotal.WithLabelValues(env.Action, "error").Inc()
		writeError(w, env.Action, err)
		return
	}
	metrics.ActionsTotal.WithLabelValues(env.Action, "ok").Inc()
	writeData(w, data)
}

// authorize resolves the session credential and requires the reviewer
// role. It runs before any engine logic.
func (s *Server) authorize(ctx context.Context, r *http.Request) (*session.Session, error) {
	token := r.Header.Get(SessionHeader)
	if token == "" {
		return nil, item.ErrForbidden
	}
	sess, err := s.deps.Sessions.Get(ctx, token)
	if err != nil {
		return nil, err
	}
	if sess == nil || !sess.IsReviewer() {
		return nil, item.ErrForbidden
	}
	if err := s.deps.Sessions.Touch(ctx, token); err != nil {
		log.Printf("[httpapi] touch session: %v", err)
	}
	return sess, nil
}

// allow applies the per-reviewer rate limits: every action counts against
// the general budget, destructive actions also against the bulk budget.
func (s *Server) allow(ctx context.Context, reviewerID, action string) bool {
	if s.deps.Limiter == nil {
		return true
	}
	ok, _ := s.deps.Limiter.Allow(ctx, reviewerID, ratelimit.RuleAction)
	if !ok {
		return false
	}
	if destructiveActions[action] {
		ok, _ = s.deps.Limiter.Allow(ctx, reviewerID, ratelimit.RuleBulk)
	}
	return ok
}

func (s *Server) dispatch(ctx context.Context, sess *session.Session, env Envelope) (any, error) {
	switch env.Action {
	case ActionList:
		var p ListParams
		if err := decode(env.Raw, &p); err != nil {
			return nil, err
		}
		return s.list(ctx, p)

	case ActionUpdateClip:
		var p UpdateClipParams
		if err := decode(env.Raw, &p); err != nil {
			return nil, err
		}
		if p.ClipID == "" {
			return nil, item.ErrValidation
		}
		return s.bulk(ctx, p.Selection(), p.Status, sess.ReviewerID)

	case ActionBulkUpdateClips:
		var p BulkUpdateClipsParams
		if err := decode(env.Raw, &p); err != nil {
			return nil, err
		}
		sel := bulkaction.Selection{FlagIDs: p.FlagIDs, ReportIDs: p.ReportIDs}
		return s.bulk(ctx, sel, p.Status, sess.ReviewerID)

	case ActionAssignItem:
		var p AssignItemParams
		if err := decode(env.Raw, &p); err != nil {
			return nil, err
		}
		return ack(), s.deps.Workflow.Assign(ctx, p.ItemID, p.AssignedTo)

	case ActionUpdateNotes:
		var p UpdateNotesParams
		if err := decode(env.Raw, &p); err != nil {
			return nil, err
		}
		return ack(), s.deps.Workflow.SetNotes(ctx, p.ItemID, p.Notes)

	case ActionUpdateWorkflow:
		var p UpdateWorkflowParams
		if err := decode(env.Raw, &p); err != nil {
			return nil, err
		}
		return ack(), s.deps.Workflow.SetState(ctx, p.ItemID, p.WorkflowState, sess.ReviewerID)

	case ActionResolveReport:
		var p ResolveReportParams
		if err := decode(env.Raw, &p); err != nil {
			return nil, err
		}
		return ack(), s.deps.Workflow.Resolve(ctx, p.ReportID, sess.ReviewerID)

	case ActionProfileAction:
		var p ProfileActionParams
		if err := decode(env.Raw, &p); err != nil {
			return nil, err
		}
		return s.deps.Bulk.ExecuteProfile(ctx, p.ReportID, p.Action, p.Reason, sess.ReviewerID)

	case ActionGetStatistics:
		return s.statistics(ctx)

	case ActionGetMetrics:
		if s.deps.Abuse == nil {
			return profileban.Counters{}, nil
		}
		return s.deps.Abuse.Counters(ctx)

	case ActionRunReportScan:
		if s.deps.Scanner == nil {
			return nil, item.ErrValidation
		}
		if err := s.deps.Scanner.Trigger(); err != nil {
			return nil, err
		}
		return ack(), nil

	case ActionGetScanStatus:
		if s.deps.Scanner == nil {
			return nil, item.ErrValidation
		}
		return s.deps.Scanner.Status(), nil

	default:
		return nil, item.ErrValidation
	}
}

func (s *Server) list(ctx context.Context, p ListParams) (any, error) {
	population, err := s.deps.Items.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	view := queue.Build(population, p.SortBy, p.Filters, time.Now().UTC())
	// Keep the JSON arrays non-null for empty views.
	if view.Flags == nil {
		view.Flags = []item.ModerationItem{}
	}
	if view.Reports == nil {
		view.Reports = []item.ModerationItem{}
	}
	return view, nil
}

func (s *Server) bulk(ctx context.Context, sel bulkaction.Selection, status item.ClipStatus, reviewer string) (any, error) {
	start := time.Now()
	res, err := s.deps.Bulk.Execute(ctx, sel, status, reviewer)
	metrics.BulkLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	metrics.BulkSubjectsUpdated.Add(float64(res.SubjectsUpdated))
	return res, nil
}

func (s *Server) statistics(ctx context.Context) (any, error) {
	population, err := s.deps.Items.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	snapshot := stats.Compute(population, time.Now().UTC(), s.deps.Stats)
	metrics.OpenBacklog.Set(float64(snapshot.OpenTotal))
	return snapshot, nil
}

func decode(raw json.RawMessage, dst any) error {
	if err := json.Unmarshal(raw, dst); err != nil {
		return item.ErrValidation
	}
	return nil
}

func ack() map[string]bool {
	return map[string]bool{"ok": true}
}

func writeData(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"data": data})
}

func writeRateLimited(w http.ResponseWriter, action string) {
	metrics.ActionsTotal.WithLabelValues(action, "error").Inc()
	writeErrorBody(w, http.StatusTooManyRequests, errorBody{
		Code:    "rate_limited",
		Message: "too many actions, slow down",
	})
}

// writeError maps the engine taxonomy onto HTTP statuses and short
// human-readable messages.
func writeError(w http.ResponseWriter, action string, err error) {
	var bf *item.BulkFailure
	switch {
	case errors.As(err, &bf):
		writeErrorBody(w, http.StatusBadGateway, errorBody{
			Code:      "partial_bulk_failure",
			Message:   "bulk action rolled back, nothing was changed; re-confirm to retry",
			FlagIDs:   bf.FlagIDs,
			ReportIDs: bf.ReportIDs,
		})
	case errors.Is(err, item.ErrForbidden):
		writeErrorBody(w, http.StatusForbidden, errorBody{
			Code: "forbidden", Message: "reviewer authorization required",
		})
	case errors.Is(err, item.ErrNotFound):
		writeErrorBody(w, http.StatusNotFound, errorBody{
			Code: "not_found", Message: "unknown item or subject",
		})
	case errors.Is(err, item.ErrValidation):
		writeErrorBody(w, http.StatusBadRequest, errorBody{
			Code: "validation_error", Message: "missing or malformed field",
		})
	case errors.Is(err, item.ErrInvalidTransition):
		writeErrorBody(w, http.StatusUnprocessableEntity, errorBody{
			Code: "invalid_transition", Message: "workflow transition not allowed",
		})
	case errors.Is(err, item.ErrConflict):
		writeErrorBody(w, http.StatusConflict, errorBody{
			Code: "conflict", Message: "item changed underneath you, reload and retry",
		})
	case errors.Is(err, scan.ErrScanRunning):
		writeErrorBody(w, http.StatusConflict, errorBody{
			Code: "scan_running", Message: "a rescan is already in progress",
		})
	case errors.Is(err, item.ErrTransient):
		writeErrorBody(w, http.StatusServiceUnavailable, errorBody{
			Code: "transient_error", Message: "downstream call failed, try again",
		})
	default:
		log.Printf("[httpapi] action=%s internal error: %v", action, err)
		writeErrorBody(w, http.StatusInternalServerError, errorBody{
			Code: "internal", Message: "internal error",
		})
	}
}

func writeErrorBody(w http.ResponseWriter, status int, body errorBody) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{"error": body})
}
