// Package score derives risk buckets and queue priorities for moderation
// items. Scoring is deterministic and recomputed on every queue read; the
// store only caches priorities for sort performance, never as ground truth.
package score

import (
	"time"

	"github.com/echoreel/moderation/internal/item"
)

// RiskLevel buckets a numeric risk score for filtering and display.
type RiskLevel string

const (
	Low      RiskLevel = "low"
	Medium   RiskLevel = "medium"
	High     RiskLevel = "high"
	Critical RiskLevel = "critical"
)

// Base priority weight per risk bucket.
var levelWeight = map[RiskLevel]int{
	Low:      10,
	Medium:   40,
	High:     70,
	Critical: 100,
}

// communityBonus nudges human-submitted signals above an automated flag of
// equal risk.
const communityBonus = 5

// Level buckets a risk score. Boundaries are inclusive-lower /
// exclusive-upper except the top bucket, which is closed above.
func Level(risk float64) RiskLevel {
	switch {
	case risk < 3:
		return Low
	case risk < 7:
		return Medium
	case risk < 9:
		return High
	default:
		return Critical
	}
}

// Priority computes the queue ordering value for an item. subjectItems is
// the number of items in the population referencing the same subject;
// co-occurrence of independent signals on one subject outranks either
// signal alone. Pending items gain one point per hour of age so old items
// cannot starve behind a stream of fresh high-risk ones.
func Priority(it item.ModerationItem, subjectItems int, now time.Time) int {
	p := levelWeight[Level(it.Risk)]

	if it.Source == item.SourceCommunity {
		p += communityBonus
	}

	if it.WorkflowState == item.StatePending {
		if age := now.Sub(it.CreatedAt); age > 0 {
			p += int(age / time.Hour)
		}
	}

	if subjectItems > 1 {
		p *= subjectItems
	}
	return p
}
