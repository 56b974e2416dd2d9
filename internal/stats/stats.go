// Package stats computes read-only operational projections over the
// current moderation item population. Every call recomputes from scratch;
// the package holds no state besides its inputs.
package stats

import (
	"time"

	"github.com/echoreel/moderation/internal/item"
	"github.com/echoreel/moderation/internal/score"
)

// Config tunes the statistics windows.
type Config struct {
	// Window is the trailing period for ReviewedInWindow.
	Window time.Duration
	// StaleAge is how old an open item must be to count as stale backlog.
	StaleAge time.Duration
}

// DefaultConfig matches the operational dashboards: a 7-day review window
// and a 72-hour staleness threshold.
func DefaultConfig() Config {
	return Config{
		Window:   7 * 24 * time.Hour,
		StaleAge: 72 * time.Hour,
	}
}

// Statistics is one snapshot of the moderation workload.
type Statistics struct {
	ReviewedToday    int                        `json:"reviewed_today"`
	ReviewedInWindow int                        `json:"reviewed_in_window"`
	AvgReviewSeconds float64                    `json:"avg_review_seconds"`
	HighRiskPending  int                        `json:"high_risk_pending"`
	StaleOpen        int                        `json:"stale_open"`
	OpenTotal        int                        `json:"open_total"`
	BySource         map[item.Source]int        `json:"by_source"`
	ByState          map[item.WorkflowState]int `json:"by_state"`
}

// Compute derives a Statistics snapshot from the item population at the
// given instant.
func Compute(population []item.ModerationItem, now time.Time, cfg Config) Statistics {
	s := Statistics{
		BySource: make(map[item.Source]int),
		ByState:  make(map[item.WorkflowState]int),
	}

	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	var reviewTotal time.Duration
	var reviewCount int

	for _, it := range population {
		s.BySource[it.Source]++
		s.ByState[it.WorkflowState]++

		if it.WorkflowState.Terminal() {
			if it.ReviewedAt != nil {
				if !it.ReviewedAt.Before(dayStart) {
					s.ReviewedToday++
				}
				if it.ReviewedAt.After(now.Add(-cfg.Window)) {
					s.ReviewedInWindow++
				}
				if d := it.ReviewedAt.Sub(it.CreatedAt); d > 0 {
					reviewTotal += d
					reviewCount++
				}
			}
			continue
		}

		// Open item (pending or in_review).
		s.OpenTotal++
		if it.WorkflowState == item.StatePending {
			switch score.Level(it.Risk) {
			case score.High, score.Critical:
				s.HighRiskPending++
			}
		}
		if now.Sub(it.CreatedAt) > cfg.StaleAge {
			s.StaleOpen++
		}
	}

	if reviewCount > 0 {
		s.AvgReviewSeconds = reviewTotal.Seconds() / float64(reviewCount)
	}
	return s
}
