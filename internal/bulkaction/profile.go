package bulkaction

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/echoreel/moderation/internal/item"
)

// ProfileAction is the outcome a reviewer applies to a profile report.
type ProfileAction string

const (
	ActionBan     ProfileAction = "ban"
	ActionWarn    ProfileAction = "warn"
	ActionDismiss ProfileAction = "dismiss"
)

// ProfileBans applies status changes to user profiles. Bans escalate in
// duration with repeat offenses; the Redis-backed implementation lives in
// internal/profileban.
type ProfileBans interface {
	Escalate(ctx context.Context, profileID, reason string) (time.Duration, error)
	Warn(ctx context.Context, profileID string) error
}

// ProfileResult summarizes one profile action.
type ProfileResult struct {
	ProfileID   string        `json:"profile_id,omitempty"`
	Action      ProfileAction `json:"action"`
	BanDuration time.Duration `json:"ban_duration_seconds,omitempty"`
}

// ExecuteProfile applies a ban/warn/dismiss outcome to the profile behind a
// single report. A ban requires a non-empty reason. The report transitions
// to actioned (ban, warn) or resolved (dismiss) through the same atomic
// store path as clip bulk actions.
func (c *Coordinator) ExecuteProfile(ctx context.Context, reportID string, action ProfileAction, reason, reviewer string) (*ProfileResult, error) {
	items, err := c.store.GetMany(ctx, []string{reportID})
	if err != nil {
		return nil, fmt.Errorf("bulk: profile action %s: %w", reportID, err)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("bulk: profile action %s: %w", reportID, item.ErrNotFound)
	}
	rep := items[0]
	if rep.Subject.Kind != item.SubjectProfile {
		return nil, fmt.Errorf("bulk: item %s targets a %s, not a profile: %w",
			reportID, rep.Subject.Kind, item.ErrValidation)
	}

	res := &ProfileResult{ProfileID: rep.Subject.ID, Action: action}
	targetState := item.StateActioned

	switch action {
	case ActionBan:
		if reason == "" {
			return nil, fmt.Errorf("bulk: ban requires a reason: %w", item.ErrValidation)
		}
		if c.bans == nil {
			return nil, fmt.Errorf("bulk: profile ban store not configured: %w", item.ErrTransient)
		}
		duration, err := c.bans.Escalate(ctx, rep.Subject.ID, reason)
		if err != nil {
			return nil, fmt.Errorf("bulk: ban profile %s: %w", rep.Subject.ID, err)
		}
		res.BanDuration = duration
	case ActionWarn:
		if c.bans == nil {
			return nil, fmt.Errorf("bulk: profile ban store not configured: %w", item.ErrTransient)
		}
		if err := c.bans.Warn(ctx, rep.Subject.ID); err != nil {
			return nil, fmt.Errorf("bulk: warn profile %s: %w", rep.Subject.ID, err)
		}
	case ActionDismiss:
		targetState = item.StateResolved
	default:
		return nil, fmt.Errorf("bulk: profile action %q: %w", action, item.ErrValidation)
	}

	transition := Transition{
		ItemID:   rep.ID,
		State:    targetState,
		Reviewer: reviewer,
		Version:  rep.Version,
	}
	if err := c.store.ApplyBulk(ctx, nil, []Transition{transition}); err != nil {
		return nil, fmt.Errorf("bulk: profile action %s: %w", reportID, err)
	}

	c.publishAudit("profile_action", reviewer, map[string]any{
		"profile_id": rep.Subject.ID,
		"outcome":    action,
	})
	log.Printf("[bulk] profile action reviewer=%s profile=%s outcome=%s", reviewer, rep.Subject.ID, action)
	return res, nil
}
