// Package item defines the canonical moderation data model shared by every
// engine component: the ModerationItem record, the subject reference, the
// workflow-state enums, and the error taxonomy returned across the control
// surface.
package item

import "time"

// Kind distinguishes the two moderation signal sources.
type Kind string

const (
	KindFlag   Kind = "flag"   // automated classifier finding
	KindReport Kind = "report" // human-submitted complaint
)

// Source is the provenance tag of a moderation item.
type Source string

const (
	SourceAI        Source = "ai"
	SourceCommunity Source = "community"
)

// SubjectKind identifies which content entity a subject reference points at.
type SubjectKind string

const (
	SubjectClip    SubjectKind = "clip"
	SubjectProfile SubjectKind = "profile"
)

// SubjectRef identifies the content entity a moderation item is about.
// Flags always reference clips; reports may reference a clip or a profile.
// Consumers must switch on Kind exhaustively.
type SubjectRef struct {
	Kind SubjectKind `json:"kind"`
	ID   string      `json:"id"`
}

// WorkflowState is the review lifecycle stage of a moderation item.
type WorkflowState string

const (
	StatePending  WorkflowState = "pending"
	StateInReview WorkflowState = "in_review"
	StateResolved WorkflowState = "resolved"
	StateActioned WorkflowState = "actioned"
)

// Terminal reports whether the state counts as closed for backlog
// statistics. Terminal states can still be reopened to in_review.
func (s WorkflowState) Terminal() bool {
	return s == StateResolved || s == StateActioned
}

// Valid reports whether s is one of the four known workflow states.
func (s WorkflowState) Valid() bool {
	switch s {
	case StatePending, StateInReview, StateResolved, StateActioned:
		return true
	}
	return false
}

// ClipStatus is the engine-visible status of an audio clip.
type ClipStatus string

const (
	ClipLive    ClipStatus = "live"
	ClipHidden  ClipStatus = "hidden"
	ClipRemoved ClipStatus = "removed"
)

// Valid reports whether s is a known clip status.
func (s ClipStatus) Valid() bool {
	switch s {
	case ClipLive, ClipHidden, ClipRemoved:
		return true
	}
	return false
}

// ProfileStatus is the engine-visible status of a user profile.
type ProfileStatus string

const (
	ProfileActive ProfileStatus = "active"
	ProfileBanned ProfileStatus = "banned"
	ProfileWarned ProfileStatus = "warned"
)

// ModerationItem is the unit of review. The identity fields (Kind, Subject,
// Reasons, Details, Risk, Source, CreatedAt) are written once at ingestion
// and never rewritten; only the workflow fields mutate. Version increments
// on every workflow mutation and backs the optimistic concurrency check.
type ModerationItem struct {
	ID            string        `json:"id"`
	Kind          Kind          `json:"kind"`
	Subject       SubjectRef    `json:"subject"`
	Reasons       []string      `json:"reasons"`
	Details       string        `json:"details,omitempty"` // free text from reports
	Risk          float64       `json:"risk"`
	Source        Source        `json:"source"`
	WorkflowState WorkflowState `json:"workflow_state"`
	AssignedTo    string        `json:"assigned_to,omitempty"` // empty = unassigned
	Notes         string        `json:"notes,omitempty"`
	Priority      int           `json:"priority"`
	CreatedAt     time.Time     `json:"created_at"`
	ReviewedAt    *time.Time    `json:"reviewed_at,omitempty"`
	ReviewedBy    string        `json:"reviewed_by,omitempty"`
	Version       int64         `json:"-"`
}
