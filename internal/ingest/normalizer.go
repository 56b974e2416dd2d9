// Package ingest converts heterogeneous raw flag and report records into
// canonical ModerationItems. Normalization is pure: it never touches the
// workflow store, and a record whose subject cannot be resolved is dropped
// rather than failing the whole batch.
package ingest

import (
	"time"

	"github.com/google/uuid"

	"github.com/echoreel/moderation/internal/item"
)

// RawFlag is the record emitted by the automated audio classifier. Flags
// always target clips and carry an authoritative risk score in [0,10].
type RawFlag struct {
	ID        string   `json:"id"`
	ClipID    string   `json:"clip_id"`
	Reasons   []string `json:"reasons"`
	Risk      float64  `json:"risk"`
	CreatedAt int64    `json:"created_at"` // unix timestamp
}

// RawReport is a human-submitted complaint. A report targets a profile when
// ProfileID is set, otherwise the clip named by ClipID.
type RawReport struct {
	ID        string `json:"id"`
	ClipID    string `json:"clip_id,omitempty"`
	ProfileID string `json:"profile_id,omitempty"`
	Reason    string `json:"reason"`
	Details   string `json:"details,omitempty"`
	CreatedAt int64  `json:"created_at"`
}

// FlagBatch is the wire payload published on flags.created. ClipIDs is the
// snapshot of clip ids that existed when the batch was assembled; flags
// referencing clips outside it are dropped (content deleted elsewhere).
type FlagBatch struct {
	Flags   []RawFlag `json:"flags"`
	ClipIDs []string  `json:"clip_ids"`
}

// ReportBatch is the wire payload published on reports.created.
type ReportBatch struct {
	Reports    []RawReport `json:"reports"`
	ClipIDs    []string    `json:"clip_ids"`
	ProfileIDs []string    `json:"profile_ids"`
}

// Derived report risk by reason code. Reports carry no classifier score, so
// a coarse default per reason seeds the scorer until a reviewer weighs in.
var reportRisk = map[string]float64{
	"harassment": 6.5,
	"explicit":   6.5,
	"spam":       4.0,
	"other":      5.0,
}

const defaultReportRisk = 5.0

// SetOf builds a membership set from a slice of ids.
func SetOf(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

// NormalizeFlags converts raw classifier flags into ModerationItems. Flags
// whose clip is not in the clips set are silently dropped. Input order is
// preserved for the survivors.
func NormalizeFlags(flags []RawFlag, clips map[string]bool, now time.Time) []item.ModerationItem {
	out := make([]item.ModerationItem, 0, len(flags))
	for _, f := range flags {
		if !clips[f.ClipID] {
			continue
		}
		out = append(out, item.ModerationItem{
			ID:            idOrNew(f.ID),
			Kind:          item.KindFlag,
			Subject:       item.SubjectRef{Kind: item.SubjectClip, ID: f.ClipID},
			Reasons:       defaultReasons(f.Reasons),
			Risk:          clampRisk(f.Risk),
			Source:        item.SourceAI,
			WorkflowState: item.StatePending,
			Priority:      0,
			CreatedAt:     createdAt(f.CreatedAt, now),
		})
	}
	return out
}

// NormalizeReports converts raw reports into ModerationItems. A report that
// carries a profile reference is a profile report and must resolve against
// the profiles set; otherwise it is a clip report and must resolve against
// the clips set. Reports resolving to neither are dropped.
func NormalizeReports(reports []RawReport, clips, profiles map[string]bool, now time.Time) []item.ModerationItem {
	out := make([]item.ModerationItem, 0, len(reports))
	for _, r := range reports {
		var subject item.SubjectRef
		switch {
		case r.ProfileID != "":
			if !profiles[r.ProfileID] {
				continue
			}
			subject = item.SubjectRef{Kind: item.SubjectProfile, ID: r.ProfileID}
		case r.ClipID != "":
			if !clips[r.ClipID] {
				continue
			}
			subject = item.SubjectRef{Kind: item.SubjectClip, ID: r.ClipID}
		default:
			continue
		}

		reasons := []string{}
		if r.Reason != "" {
			reasons = []string{r.Reason}
		}

		out = append(out, item.ModerationItem{
			ID:            idOrNew(r.ID),
			Kind:          item.KindReport,
			Subject:       subject,
			Reasons:       reasons,
			Details:       r.Details,
			Risk:          riskForReason(r.Reason),
			Source:        item.SourceCommunity,
			WorkflowState: item.StatePending,
			Priority:      0,
			CreatedAt:     createdAt(r.CreatedAt, now),
		})
	}
	return out
}

func idOrNew(id string) string {
	if id != "" {
		return id
	}
	return uuid.New().String()
}

func defaultReasons(reasons []string) []string {
	if reasons == nil {
		return []string{}
	}
	return reasons
}

func clampRisk(risk float64) float64 {
	if risk < 0 {
		return 0
	}
	if risk > 10 {
		return 10
	}
	return risk
}

func riskForReason(reason string) float64 {
	if r, ok := reportRisk[reason]; ok {
		return r
	}
	return defaultReportRisk
}

func createdAt(ts int64, now time.Time) time.Time {
	if ts <= 0 {
		return now
	}
	return time.Unix(ts, 0).UTC()
}
