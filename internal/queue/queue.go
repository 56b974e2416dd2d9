// Package queue merges normalized flags and reports into one ordered,
// filterable review queue. The aggregator never deduplicates across the
// flag/report boundary: reviewers see provenance distinctly and a clip with
// one flag and one report appears once in each sequence. Acting on shared
// subjects is the bulk coordinator's concern.
package queue

import (
	"sort"
	"strings"
	"time"

	"github.com/echoreel/moderation/internal/item"
	"github.com/echoreel/moderation/internal/score"
)

// SortKey selects the queue ordering.
type SortKey string

const (
	SortPriority SortKey = "priority"
	SortNewest   SortKey = "newest"
	SortOldest   SortKey = "oldest"
)

// Filters narrows the queue. Zero values mean "no constraint". Search is a
// case-insensitive substring match over reason codes and report details.
type Filters struct {
	RiskLevel     score.RiskLevel    `json:"risk_level,omitempty"`
	Source        item.Source        `json:"source,omitempty"`
	SubjectKind   item.SubjectKind   `json:"subject_kind,omitempty"`
	WorkflowState item.WorkflowState `json:"workflow_state,omitempty"`
	Search        string             `json:"search,omitempty"`
}

// View is one aggregation result: both sequences satisfy the filters and
// share the requested ordering.
type View struct {
	Flags   []item.ModerationItem `json:"flags"`
	Reports []item.ModerationItem `json:"reports"`
}

// Build recomputes priorities over the full population, partitions it by
// kind, applies the filters, and sorts each sequence by the requested key
// with ties broken by CreatedAt descending.
func Build(population []item.ModerationItem, key SortKey, f Filters, now time.Time) View {
	// Subject co-occurrence counts come from the whole population, not the
	// filtered slice, so a filtered view still ranks shared subjects first.
	subjectItems := make(map[item.SubjectRef]int, len(population))
	for _, it := range population {
		subjectItems[it.Subject]++
	}

	var view View
	for _, it := range population {
		it.Priority = score.Priority(it, subjectItems[it.Subject], now)
		if !matches(it, f) {
			continue
		}
		switch it.Kind {
		case item.KindFlag:
			view.Flags = append(view.Flags, it)
		case item.KindReport:
			view.Reports = append(view.Reports, it)
		}
	}

	sortItems(view.Flags, key)
	sortItems(view.Reports, key)
	return view
}

func matches(it item.ModerationItem, f Filters) bool {
	if f.RiskLevel != "" && score.Level(it.Risk) != f.RiskLevel {
		return false
	}
	if f.Source != "" && it.Source != f.Source {
		return false
	}
	if f.SubjectKind != "" && it.Subject.Kind != f.SubjectKind {
		return false
	}
	if f.WorkflowState != "" && it.WorkflowState != f.WorkflowState {
		return false
	}
	if f.Search != "" && !matchesSearch(it, f.Search) {
		return false
	}
	return true
}

func matchesSearch(it item.ModerationItem, search string) bool {
	needle := strings.ToLower(search)
	for _, reason := range it.Reasons {
		if strings.Contains(strings.ToLower(reason), needle) {
			return true
		}
	}
	return strings.Contains(strings.ToLower(it.Details), needle)
}

func sortItems(items []item.ModerationItem, key SortKey) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		switch key {
		case SortNewest:
			return a.CreatedAt.After(b.CreatedAt)
		case SortOldest:
			return a.CreatedAt.Before(b.CreatedAt)
		default: // SortPriority
			if a.Priority != b.Priority {
				return a.Priority > b.Priority
			}
			return a.CreatedAt.After(b.CreatedAt)
		}
	})
}
