package item

import (
	"errors"
	"fmt"
)

// Sentinel errors for the engine's control surface. Components wrap these
// with fmt.Errorf("...: %w", ...) so callers can classify failures with
// errors.Is while still seeing the operation that failed.
var (
	// ErrForbidden means the caller lacks the reviewer role.
	ErrForbidden = errors.New("moderation: forbidden")

	// ErrNotFound means an item or subject id did not resolve.
	ErrNotFound = errors.New("moderation: not found")

	// ErrValidation means a required field is missing or malformed.
	ErrValidation = errors.New("moderation: validation failed")

	// ErrInvalidTransition means the requested workflow edge is not in the
	// lifecycle graph. The item is left untouched.
	ErrInvalidTransition = errors.New("moderation: invalid workflow transition")

	// ErrConflict means a concurrent mutation won the race. The caller
	// should re-read and retry; the engine never retries on its own.
	ErrConflict = errors.New("moderation: concurrent modification")

	// ErrTransient means a downstream call failed or timed out. Retry is
	// the caller's decision.
	ErrTransient = errors.New("moderation: transient downstream failure")
)

// BulkFailure reports a bulk action that was rolled back as a unit. The
// selected id sets are returned unmodified so the caller can re-confirm and
// retry with full context.
type BulkFailure struct {
	FlagIDs   []string
	ReportIDs []string
	Cause     error
}

func (e *BulkFailure) Error() string {
	return fmt.Sprintf("moderation: bulk action rolled back (%d flags, %d reports): %v",
		len(e.FlagIDs), len(e.ReportIDs), e.Cause)
}

func (e *BulkFailure) Unwrap() error { return e.Cause }
