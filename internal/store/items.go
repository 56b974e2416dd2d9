package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/echoreel/moderation/internal/item"
)

const itemColumns = `id, kind, subject_kind, subject_id, reasons, details, risk, source,
	workflow_state, assigned_to, notes, priority, created_at, reviewed_at, reviewed_by, version`

// Insert persists a freshly normalized item. Re-delivery of the same id is
// a no-op so the ingest pipeline can be replayed safely.
func (s *Store) Insert(ctx context.Context, it *item.ModerationItem) error {
	reasonsJSON, err := json.Marshal(it.Reasons)
	if err != nil {
		return fmt.Errorf("store: marshal reasons: %w", err)
	}

	const query = `
		INSERT INTO moderation_items
			(id, kind, subject_kind, subject_id, reasons, details, risk, source,
			 workflow_state, assigned_to, notes, priority, created_at, reviewed_by, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, '', 0)
		ON CONFLICT (id) DO NOTHING`

	_, err = s.db.ExecContext(ctx, query,
		it.ID, it.Kind, it.Subject.Kind, it.Subject.ID, reasonsJSON, it.Details,
		it.Risk, it.Source, it.WorkflowState, it.AssignedTo, it.Notes,
		it.Priority, it.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("store: insert item %s: %w", it.ID, mapErr(err))
	}
	return nil
}

// Get fetches a single item by id.
func (s *Store) Get(ctx context.Context, id string) (*item.ModerationItem, error) {
	query := `SELECT ` + itemColumns + ` FROM moderation_items WHERE id = $1`
	it, err := scanItem(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("store: get item %s: %w", id, mapErr(err))
	}
	return it, nil
}

// GetMany fetches the items for the given ids. Unknown ids are simply
// absent from the result; callers that need all ids present compare
// lengths.
func (s *Store) GetMany(ctx context.Context, ids []string) ([]item.ModerationItem, error) {
	query := `SELECT ` + itemColumns + ` FROM moderation_items WHERE id = ANY($1)`
	rows, err := s.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("store: get items: %w", mapErr(err))
	}
	defer rows.Close()
	return collectItems(rows)
}

// ListAll returns the full item population, newest first. The queue and
// statistics aggregators recompute their projections from this snapshot on
// every read.
func (s *Store) ListAll(ctx context.Context) ([]item.ModerationItem, error) {
	query := `SELECT ` + itemColumns + ` FROM moderation_items ORDER BY created_at DESC`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("store: list items: %w", mapErr(err))
	}
	defer rows.Close()
	return collectItems(rows)
}

// ListOpenReports returns reports still pending or in review, oldest
// first, for the secondary-analysis scan.
func (s *Store) ListOpenReports(ctx context.Context) ([]item.ModerationItem, error) {
	query := `SELECT ` + itemColumns + ` FROM moderation_items
		WHERE kind = 'report' AND workflow_state IN ('pending', 'in_review')
		ORDER BY created_at ASC`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("store: list open reports: %w", mapErr(err))
	}
	defer rows.Close()
	return collectItems(rows)
}

// UpdateWorkflow writes the mutable workflow fields guarded by the
// optimistic version check. A version mismatch on an existing row returns
// item.ErrConflict.
func (s *Store) UpdateWorkflow(ctx context.Context, it *item.ModerationItem) error {
	const query = `
		UPDATE moderation_items
		SET workflow_state = $1, assigned_to = $2, notes = $3,
		    reviewed_at = $4, reviewed_by = $5, version = version + 1
		WHERE id = $6 AND version = $7`

	res, err := s.db.ExecContext(ctx, query,
		it.WorkflowState, it.AssignedTo, it.Notes,
		nullableTime(it.ReviewedAt), it.ReviewedBy, it.ID, it.Version,
	)
	if err != nil {
		return fmt.Errorf("store: update item %s: %w", it.ID, mapErr(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: update item %s: %w", it.ID, err)
	}
	if n == 0 {
		return s.classifyMiss(ctx, it.ID)
	}
	return nil
}

// SetCachedPriority writes the sort-cache priority column. Priority is
// always recomputed on read; the cache only serves ORDER BY.
func (s *Store) SetCachedPriority(ctx context.Context, id string, priority int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE moderation_items SET priority = $1 WHERE id = $2`, priority, id)
	if err != nil {
		return fmt.Errorf("store: cache priority %s: %w", id, mapErr(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("store: cache priority %s: %w", id, item.ErrNotFound)
	}
	return nil
}

// UpsertClip records a clip known to the engine. Used by the ingest
// pipeline to materialize the subject snapshot that arrived with a batch.
func (s *Store) UpsertClip(ctx context.Context, clipID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO clips (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`, clipID)
	if err != nil {
		return fmt.Errorf("store: upsert clip %s: %w", clipID, mapErr(err))
	}
	return nil
}

// ClipStatus returns the current status of a clip.
func (s *Store) ClipStatus(ctx context.Context, clipID string) (item.ClipStatus, error) {
	var status item.ClipStatus
	err := s.db.QueryRowContext(ctx,
		`SELECT status FROM clips WHERE id = $1`, clipID).Scan(&status)
	if err != nil {
		return "", fmt.Errorf("store: clip status %s: %w", clipID, mapErr(err))
	}
	return status, nil
}

// classifyMiss distinguishes a vanished row from a lost version race.
func (s *Store) classifyMiss(ctx context.Context, id string) error {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM moderation_items WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("store: update item %s: %w", id, mapErr(err))
	}
	if !exists {
		return fmt.Errorf("store: update item %s: %w", id, item.ErrNotFound)
	}
	return fmt.Errorf("store: update item %s: %w", id, item.ErrConflict)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*item.ModerationItem, error) {
	var (
		it          item.ModerationItem
		reasonsJSON []byte
		reviewedAt  sql.NullTime
	)
	err := row.Scan(
		&it.ID, &it.Kind, &it.Subject.Kind, &it.Subject.ID, &reasonsJSON,
		&it.Details, &it.Risk, &it.Source, &it.WorkflowState, &it.AssignedTo,
		&it.Notes, &it.Priority, &it.CreatedAt, &reviewedAt, &it.ReviewedBy,
		&it.Version,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(reasonsJSON, &it.Reasons); err != nil {
		return nil, fmt.Errorf("unmarshal reasons: %w", err)
	}
	if reviewedAt.Valid {
		t := reviewedAt.Time
		it.ReviewedAt = &t
	}
	return &it, nil
}

func collectItems(rows *sql.Rows) ([]item.ModerationItem, error) {
	var out []item.ModerationItem
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan item: %w", err)
		}
		out = append(out, *it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate items: %w", mapErr(err))
	}
	return out, nil
}

func nullableTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// mapErr folds driver errors into the engine taxonomy: a missing row is
// ErrNotFound, a timeout or cancellation is ErrTransient.
func mapErr(err error) error {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return item.ErrNotFound
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return fmt.Errorf("%w: %v", item.ErrTransient, err)
	default:
		return err
	}
}
