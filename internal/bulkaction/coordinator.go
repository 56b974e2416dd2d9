// Package bulkaction resolves a set of selected queue items into a
// deduplicated set of content subjects and applies one status transition
// atomically across all of them. A clip referenced by both a selected flag
// and a selected report is updated exactly once; the clip updates and the
// item transitions commit in one store transaction or not at all.
package bulkaction

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/echoreel/moderation/internal/item"
)

// ClipUpdate is one deduplicated clip status change inside a bulk call.
type ClipUpdate struct {
	ClipID string
	Status item.ClipStatus
}

// Transition is one item workflow change committed alongside the clip
// updates. Version carries the optimistic concurrency check into the
// transaction.
type Transition struct {
	ItemID   string
	State    item.WorkflowState
	Reviewer string
	Version  int64
}

// Store is the transactional slice of the item store the coordinator
// needs. ApplyBulk must commit every update and transition as one unit and
// roll everything back on any failure.
type Store interface {
	GetMany(ctx context.Context, ids []string) ([]item.ModerationItem, error)
	ApplyBulk(ctx context.Context, clips []ClipUpdate, transitions []Transition) error
}

// AuditPublisher receives bulk-action audit events, fire-and-forget.
type AuditPublisher interface {
	PublishAudit(data []byte) error
}

// Result summarizes one committed bulk invocation.
type Result struct {
	SubjectsUpdated   int      `json:"updated_count"`
	ItemsTransitioned int      `json:"items_transitioned"`
	ProfileReportIDs  []string `json:"profile_report_ids,omitempty"` // excluded from the clip path
}

// Coordinator fans a single reviewer action out to many clips and items.
type Coordinator struct {
	store Store
	bans  ProfileBans    // may be nil when the profile path is not wired
	audit AuditPublisher // may be nil
}

// NewCoordinator creates a bulk coordinator over the given store. bans
// backs the profile-action path; audit receives fire-and-forget events.
func NewCoordinator(store Store, bans ProfileBans, audit AuditPublisher) *Coordinator {
	return &Coordinator{store: store, bans: bans, audit: audit}
}

// Execute applies the target clip status to every distinct clip referenced
// by the selection and transitions every originating item. Approving with
// ClipLive is a no-op against the content, so the items resolve instead of
// action. Profile-only reports are excluded from the clip path and surfaced
// in the result for the separate profile-action path.
//
// On any failure the whole operation rolls back and the selection is
// returned unmodified inside an *item.BulkFailure.
func (c *Coordinator) Execute(ctx context.Context, sel Selection, status item.ClipStatus, reviewer string) (*Result, error) {
	if sel.Empty() {
		return nil, fmt.Errorf("bulk: empty selection: %w", item.ErrValidation)
	}
	if !status.Valid() {
		return nil, fmt.Errorf("bulk: clip status %q: %w", status, item.ErrValidation)
	}

	// The selection is a set; a repeated id from the caller must not fail
	// the existence check below.
	ids := dedupIDs(sel.FlagIDs, sel.ReportIDs)
	items, err := c.store.GetMany(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("bulk: resolve selection: %w", err)
	}
	if len(items) != len(ids) {
		return nil, fmt.Errorf("bulk: %d of %d selected items unknown: %w",
			len(ids)-len(items), len(ids), item.ErrNotFound)
	}

	// Approval keeps the content live; the signals resolve rather than
	// action.
	targetState := item.StateActioned
	if status == item.ClipLive {
		targetState = item.StateResolved
	}

	var (
		clips       []ClipUpdate
		seen        = make(map[string]bool)
		transitions []Transition
		profileOnly []string
	)
	for _, it := range items {
		switch it.Subject.Kind {
		case item.SubjectClip:
			if !seen[it.Subject.ID] {
				seen[it.Subject.ID] = true
				clips = append(clips, ClipUpdate{ClipID: it.Subject.ID, Status: status})
			}
			transitions = append(transitions, Transition{
				ItemID:   it.ID,
				State:    targetState,
				Reviewer: reviewer,
				Version:  it.Version,
			})
		case item.SubjectProfile:
			profileOnly = append(profileOnly, it.ID)
		}
	}

	if len(clips) > 0 || len(transitions) > 0 {
		if err := c.store.ApplyBulk(ctx, clips, transitions); err != nil {
			return nil, &item.BulkFailure{
				FlagIDs:   sel.FlagIDs,
				ReportIDs: sel.ReportIDs,
				Cause:     err,
			}
		}
	}

	res := &Result{
		SubjectsUpdated:   len(clips),
		ItemsTransitioned: len(transitions),
		ProfileReportIDs:  profileOnly,
	}
	c.publishAudit("bulk_clip_update", reviewer, map[string]any{
		"status":             status,
		"subjects_updated":   res.SubjectsUpdated,
		"items_transitioned": res.ItemsTransitioned,
	})
	log.Printf("[bulk] reviewer=%s status=%s subjects=%d items=%d profile_only=%d",
		reviewer, status, res.SubjectsUpdated, res.ItemsTransitioned, len(profileOnly))
	return res, nil
}

func dedupIDs(lists ...[]string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, list := range lists {
		for _, id := range list {
			if seen[id] {
				continue
			}
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

func (c *Coordinator) publishAudit(action, reviewer string, fields map[string]any) {
	if c.audit == nil {
		return
	}
	event := map[string]any{
		"action":   action,
		"reviewer": reviewer,
		"at":       time.Now().Unix(),
	}
	for k, v := range fields {
		event[k] = v
	}
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("[bulk] marshal audit: %v", err)
		return
	}
	if err := c.audit.PublishAudit(data); err != nil {
		log.Printf("[bulk] publish audit: %v", err)
	}
}
