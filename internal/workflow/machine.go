// Package workflow owns the review lifecycle of moderation items: state,
// assignment, notes, and review metadata. Every operation is a synchronous
// read-modify-write against the item store; the store's optimistic version
// check turns a lost race into ErrConflict instead of a silent overwrite.
package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/echoreel/moderation/internal/item"
)

// ItemStore is the slice of the item store the state machine needs.
// UpdateWorkflow must fail with item.ErrConflict when the stored version no
// longer matches it.Version.
type ItemStore interface {
	Get(ctx context.Context, id string) (*item.ModerationItem, error)
	UpdateWorkflow(ctx context.Context, it *item.ModerationItem) error
}

// AuditPublisher receives audit events for reopen transitions. Publishing
// is fire-and-forget: a publish failure is logged, never surfaced.
type AuditPublisher interface {
	PublishAudit(data []byte) error
}

// legalEdges is the workflow lifecycle graph. Reopening a terminal state is
// always permitted but always audited.
var legalEdges = map[item.WorkflowState][]item.WorkflowState{
	item.StatePending:  {item.StateInReview},
	item.StateInReview: {item.StateResolved, item.StateActioned},
	item.StateResolved: {item.StateInReview},
	item.StateActioned: {item.StateInReview},
}

func edgeLegal(from, to item.WorkflowState) bool {
	for _, next := range legalEdges[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Machine applies workflow operations to individual moderation items.
type Machine struct {
	store ItemStore
	audit AuditPublisher // may be nil
}

// NewMachine creates a state machine over the given store. audit may be nil
// when no event bus is wired (tests, offline tooling).
func NewMachine(store ItemStore, audit AuditPublisher) *Machine {
	return &Machine{store: store, audit: audit}
}

// Assign sets or clears the reviewer assignment. An empty assignee clears
// it. The workflow state is never touched.
func (m *Machine) Assign(ctx context.Context, itemID, assignee string) error {
	it, err := m.store.Get(ctx, itemID)
	if err != nil {
		return fmt.Errorf("workflow: assign %s: %w", itemID, err)
	}
	it.AssignedTo = assignee
	if err := m.store.UpdateWorkflow(ctx, it); err != nil {
		return fmt.Errorf("workflow: assign %s: %w", itemID, err)
	}
	return nil
}

// SetNotes replaces the reviewer notes on an item.
func (m *Machine) SetNotes(ctx context.Context, itemID, notes string) error {
	it, err := m.store.Get(ctx, itemID)
	if err != nil {
		return fmt.Errorf("workflow: set notes %s: %w", itemID, err)
	}
	it.Notes = notes
	if err := m.store.UpdateWorkflow(ctx, it); err != nil {
		return fmt.Errorf("workflow: set notes %s: %w", itemID, err)
	}
	return nil
}

// SetState moves an item along a legal lifecycle edge. Setting the current
// state again is an idempotent no-op. Entering resolved or actioned stamps
// ReviewedAt/ReviewedBy; reopening a terminal state keeps the previous
// review stamp (it records the prior review, not the reopen) and emits an
// audit event naming the reviewer.
func (m *Machine) SetState(ctx context.Context, itemID string, next item.WorkflowState, reviewer string) error {
	if !next.Valid() {
		return fmt.Errorf("workflow: set state %s: state %q: %w", itemID, next, item.ErrValidation)
	}

	it, err := m.store.Get(ctx, itemID)
	if err != nil {
		return fmt.Errorf("workflow: set state %s: %w", itemID, err)
	}

	from := it.WorkflowState
	if from == next {
		return nil
	}
	if !edgeLegal(from, next) {
		return fmt.Errorf("workflow: set state %s: %s -> %s: %w",
			itemID, from, next, item.ErrInvalidTransition)
	}

	it.WorkflowState = next
	if next.Terminal() {
		now := time.Now().UTC()
		it.ReviewedAt = &now
		it.ReviewedBy = reviewer
	}

	if err := m.store.UpdateWorkflow(ctx, it); err != nil {
		return fmt.Errorf("workflow: set state %s: %w", itemID, err)
	}

	if from.Terminal() && next == item.StateInReview {
		m.publishReopen(itemID, from, reviewer)
	}
	return nil
}

// Resolve marks a report as reviewed but not actionable.
func (m *Machine) Resolve(ctx context.Context, itemID, reviewer string) error {
	return m.SetState(ctx, itemID, item.StateResolved, reviewer)
}

// reopenEvent is the audit payload emitted when a terminal item re-enters
// review.
type reopenEvent struct {
	Action   string             `json:"action"`
	ItemID   string             `json:"item_id"`
	From     item.WorkflowState `json:"from"`
	Reviewer string             `json:"reviewer"`
	At       int64              `json:"at"`
}

func (m *Machine) publishReopen(itemID string, from item.WorkflowState, reviewer string) {
	if m.audit == nil {
		return
	}
	data, err := json.Marshal(reopenEvent{
		Action:   "reopen",
		ItemID:   itemID,
		From:     from,
		Reviewer: reviewer,
		At:       time.Now().Unix(),
	})
	if err != nil {
		log.Printf("[workflow] marshal reopen audit: %v", err)
		return
	}
	if err := m.audit.PublishAudit(data); err != nil {
		log.Printf("[workflow] publish reopen audit item=%s: %v", itemID, err)
	}
}
