package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/echoreel/moderation/internal/item"
)

// memStore is an in-memory ItemStore with the same optimistic versioning
// contract as the Postgres store.
type memStore struct {
	items map[string]*item.ModerationItem
}

func newMemStore(items ...item.ModerationItem) *memStore {
	s := &memStore{items: make(map[string]*item.ModerationItem)}
	for i := range items {
		it := items[i]
		s.items[it.ID] = &it
	}
	return s
}

func (s *memStore) Get(_ context.Context, id string) (*item.ModerationItem, error) {
	it, ok := s.items[id]
	if !ok {
		return nil, item.ErrNotFound
	}
	cp := *it
	return &cp, nil
}

func (s *memStore) UpdateWorkflow(_ context.Context, it *item.ModerationItem) error {
	cur, ok := s.items[it.ID]
	if !ok {
		return item.ErrNotFound
	}
	if cur.Version != it.Version {
		return item.ErrConflict
	}
	cp := *it
	cp.Version++
	s.items[it.ID] = &cp
	return nil
}

type captureAudit struct {
	events [][]byte
}

func (a *captureAudit) PublishAudit(data []byte) error {
	a.events = append(a.events, data)
	return nil
}

func pendingItem(id string) item.ModerationItem {
	return item.ModerationItem{
		ID: id, Kind: item.KindReport,
		Subject:       item.SubjectRef{Kind: item.SubjectClip, ID: "c1"},
		Reasons:       []string{"spam"},
		Risk:          4,
		Source:        item.SourceCommunity,
		WorkflowState: item.StatePending,
		CreatedAt:     time.Now().Add(-time.Hour),
	}
}

func TestAssign_SetAndClear(t *testing.T) {
	store := newMemStore(pendingItem("i1"))
	m := NewMachine(store, nil)
	ctx := context.Background()

	if err := m.Assign(ctx, "i1", "r1"); err != nil {
		t.Fatalf("Assign(r1) error: %v", err)
	}
	it, _ := store.Get(ctx, "i1")
	if it.AssignedTo != "r1" {
		t.Errorf("assignedTo = %q, want r1", it.AssignedTo)
	}
	if it.WorkflowState != item.StatePending {
		t.Errorf("workflowState changed to %s on assign", it.WorkflowState)
	}

	if err := m.Assign(ctx, "i1", ""); err != nil {
		t.Fatalf("Assign(clear) error: %v", err)
	}
	it, _ = store.Get(ctx, "i1")
	if it.AssignedTo != "" {
		t.Errorf("assignedTo = %q, want cleared", it.AssignedTo)
	}
	if it.WorkflowState != item.StatePending {
		t.Errorf("workflowState changed to %s on unassign", it.WorkflowState)
	}
}

func TestSetNotes(t *testing.T) {
	store := newMemStore(pendingItem("i1"))
	m := NewMachine(store, nil)

	if err := m.SetNotes(context.Background(), "i1", "checked audio, borderline"); err != nil {
		t.Fatalf("SetNotes error: %v", err)
	}
	it, _ := store.Get(context.Background(), "i1")
	if it.Notes != "checked audio, borderline" {
		t.Errorf("notes = %q", it.Notes)
	}
}

func TestSetState_LegalPath(t *testing.T) {
	store := newMemStore(pendingItem("i1"))
	m := NewMachine(store, nil)
	ctx := context.Background()

	if err := m.SetState(ctx, "i1", item.StateInReview, "r1"); err != nil {
		t.Fatalf("pending -> in_review: %v", err)
	}
	if err := m.SetState(ctx, "i1", item.StateResolved, "r1"); err != nil {
		t.Fatalf("in_review -> resolved: %v", err)
	}
	it, _ := store.Get(ctx, "i1")
	if it.ReviewedAt == nil || it.ReviewedBy != "r1" {
		t.Errorf("terminal transition did not stamp review metadata: %+v", it)
	}
}

func TestSetState_SkippingInReviewRejected(t *testing.T) {
	it := pendingItem("i1")
	it.WorkflowState = item.StateResolved
	store := newMemStore(it)
	m := NewMachine(store, nil)

	err := m.SetState(context.Background(), "i1", item.StatePending, "r1")
	if !errors.Is(err, item.ErrInvalidTransition) {
		t.Fatalf("resolved -> pending: got %v, want ErrInvalidTransition", err)
	}
	got, _ := store.Get(context.Background(), "i1")
	if got.WorkflowState != item.StateResolved {
		t.Errorf("state mutated on rejected transition: %s", got.WorkflowState)
	}
}

func TestSetState_ReopenAndReResolve(t *testing.T) {
	store := newMemStore(pendingItem("i1"))
	audit := &captureAudit{}
	m := NewMachine(store, audit)
	ctx := context.Background()

	steps := []item.WorkflowState{item.StateInReview, item.StateResolved}
	for _, s := range steps {
		if err := m.SetState(ctx, "i1", s, "r1"); err != nil {
			t.Fatalf("transition to %s: %v", s, err)
		}
	}
	first, _ := store.Get(ctx, "i1")
	firstReviewedAt := *first.ReviewedAt

	time.Sleep(5 * time.Millisecond)

	// Reopen, then resolve again: ReviewedAt must move forward.
	if err := m.SetState(ctx, "i1", item.StateInReview, "r2"); err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if len(audit.events) != 1 {
		t.Errorf("reopen published %d audit events, want 1", len(audit.events))
	}
	if err := m.SetState(ctx, "i1", item.StateResolved, "r2"); err != nil {
		t.Fatalf("re-resolve: %v", err)
	}
	second, _ := store.Get(ctx, "i1")
	if !second.ReviewedAt.After(firstReviewedAt) {
		t.Errorf("reviewedAt not updated on second resolution: %v vs %v",
			second.ReviewedAt, firstReviewedAt)
	}
	if second.ReviewedBy != "r2" {
		t.Errorf("reviewedBy = %q, want r2", second.ReviewedBy)
	}
}

func TestSetState_SameStateIsNoOp(t *testing.T) {
	store := newMemStore(pendingItem("i1"))
	m := NewMachine(store, nil)

	if err := m.SetState(context.Background(), "i1", item.StatePending, "r1"); err != nil {
		t.Fatalf("pending -> pending should be a no-op, got %v", err)
	}
	it, _ := store.Get(context.Background(), "i1")
	if it.Version != 0 {
		t.Errorf("no-op transition wrote to the store (version=%d)", it.Version)
	}
}

func TestSetState_UnknownItem(t *testing.T) {
	m := NewMachine(newMemStore(), nil)
	err := m.SetState(context.Background(), "missing", item.StateInReview, "r1")
	if !errors.Is(err, item.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestSetState_UnknownState(t *testing.T) {
	store := newMemStore(pendingItem("i1"))
	m := NewMachine(store, nil)
	err := m.SetState(context.Background(), "i1", "archived", "r1")
	if !errors.Is(err, item.ErrValidation) {
		t.Fatalf("got %v, want ErrValidation", err)
	}
}

// conflictStore makes every update lose the optimistic version race.
type conflictStore struct{ *memStore }

func (s *conflictStore) UpdateWorkflow(_ context.Context, _ *item.ModerationItem) error {
	return item.ErrConflict
}

func TestSetState_ConflictSurfaces(t *testing.T) {
	store := &conflictStore{newMemStore(pendingItem("i1"))}
	m := NewMachine(store, nil)
	err := m.SetState(context.Background(), "i1", item.StateInReview, "r1")
	if !errors.Is(err, item.ErrConflict) {
		t.Fatalf("got %v, want ErrConflict", err)
	}
}

func TestResolve(t *testing.T) {
	it := pendingItem("i1")
	it.WorkflowState = item.StateInReview
	store := newMemStore(it)
	m := NewMachine(store, nil)

	if err := m.Resolve(context.Background(), "i1", "r1"); err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	got, _ := store.Get(context.Background(), "i1")
	if got.WorkflowState != item.StateResolved {
		t.Errorf("state = %s, want resolved", got.WorkflowState)
	}
}
