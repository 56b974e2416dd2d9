package store

import (
	"context"
	"fmt"
	"time"

	"github.com/echoreel/moderation/internal/bulkaction"
	"github.com/echoreel/moderation/internal/item"
)

// ApplyBulk commits a set of clip status updates and item workflow
// transitions in a single transaction. Any failure, including an unknown
// clip or a lost version race, rolls the whole unit back so no observer
// ever sees only the content updated or only the items updated.
func (s *Store) ApplyBulk(ctx context.Context, clips []bulkaction.ClipUpdate, transitions []bulkaction.Transition) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: bulk begin: %w", mapErr(err))
	}
	defer tx.Rollback()

	for _, cu := range clips {
		res, err := tx.ExecContext(ctx,
			`UPDATE clips SET status = $1, updated_at = NOW() WHERE id = $2`,
			cu.Status, cu.ClipID)
		if err != nil {
			return fmt.Errorf("store: bulk clip %s: %w", cu.ClipID, mapErr(err))
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("store: bulk clip %s: %w", cu.ClipID, item.ErrNotFound)
		}
	}

	now := time.Now().UTC()
	for _, tr := range transitions {
		res, err := tx.ExecContext(ctx, `
			UPDATE moderation_items
			SET workflow_state = $1, reviewed_at = $2, reviewed_by = $3, version = version + 1
			WHERE id = $4 AND version = $5`,
			tr.State, now, tr.Reviewer, tr.ItemID, tr.Version)
		if err != nil {
			return fmt.Errorf("store: bulk item %s: %w", tr.ItemID, mapErr(err))
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("store: bulk item %s: %w", tr.ItemID, item.ErrConflict)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: bulk commit: %w", mapErr(err))
	}
	return nil
}
