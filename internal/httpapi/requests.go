package httpapi

import (
	"encoding/json"
	"fmt"

	"github.com/echoreel/moderation/internal/bulkaction"
	"github.com/echoreel/moderation/internal/item"
	"github.com/echoreel/moderation/internal/queue"
)

// Dispatch action names accepted by the control surface.
const (
	ActionList               = "list"
	ActionUpdateClip         = "updateClip"
	ActionBulkUpdateClips    = "bulkUpdateClips"
	ActionAssignItem         = "assignItem"
	ActionUpdateNotes        = "updateNotes"
	ActionUpdateWorkflow     = "updateWorkflowState"
	ActionResolveReport      = "resolveReport"
	ActionProfileAction      = "profileAction"
	ActionGetStatistics      = "getModerationStatistics"
	ActionGetMetrics         = "getMetrics"
	ActionRunReportScan      = "runReportScan"
	ActionGetScanStatus      = "getScanStatus"
)

// destructiveActions carry the tighter bulk rate limit and are expected to
// be re-confirmed by the caller after any failure.
var destructiveActions = map[string]bool{
	ActionUpdateClip:      true,
	ActionBulkUpdateClips: true,
	ActionProfileAction:   true,
}

// Envelope holds the action discriminator and the raw JSON payload for
// deferred parsing into the per-action params struct.
type Envelope struct {
	Action string          `json:"action"`
	Raw    json.RawMessage `json:"-"`
}

// UnmarshalJSON captures the full raw bytes and extracts only the "action"
// field so the rest of the payload can be decoded later.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	e.Raw = make(json.RawMessage, len(data))
	copy(e.Raw, data)

	var partial struct {
		Action string `json:"action"`
	}
	if err := json.Unmarshal(data, &partial); err != nil {
		return fmt.Errorf("httpapi: unmarshal envelope: %w", err)
	}
	if partial.Action == "" {
		return fmt.Errorf("httpapi: missing or empty \"action\" field")
	}
	e.Action = partial.Action
	return nil
}

// ListParams selects and orders the queue view.
type ListParams struct {
	SortBy  queue.SortKey `json:"sort_by"`
	Filters queue.Filters `json:"filters"`
}

// UpdateClipParams applies one status to a single clip and its items.
type UpdateClipParams struct {
	ClipID    string          `json:"clip_id"`
	Status    item.ClipStatus `json:"status"`
	FlagID    string          `json:"flag_id,omitempty"`
	ReportIDs []string        `json:"report_ids,omitempty"`
}

// Selection builds the single-clip selection for the bulk coordinator.
func (p UpdateClipParams) Selection() bulkaction.Selection {
	sel := bulkaction.Selection{ReportIDs: p.ReportIDs}
	if p.FlagID != "" {
		sel.FlagIDs = []string{p.FlagID}
	}
	return sel
}

// BulkUpdateClipsParams applies one status across many clips and items.
type BulkUpdateClipsParams struct {
	ClipIDs   []string        `json:"clip_ids"`
	Status    item.ClipStatus `json:"status"`
	FlagIDs   []string        `json:"flag_ids,omitempty"`
	ReportIDs []string        `json:"report_ids,omitempty"`
}

// AssignItemParams sets or clears an item's reviewer assignment.
type AssignItemParams struct {
	ItemType   item.Kind `json:"item_type"`
	ItemID     string    `json:"item_id"`
	AssignedTo string    `json:"assigned_to"`
}

// UpdateNotesParams replaces an item's reviewer notes.
type UpdateNotesParams struct {
	ItemType item.Kind `json:"item_type"`
	ItemID   string    `json:"item_id"`
	Notes    string    `json:"notes"`
}

// UpdateWorkflowParams moves an item along a lifecycle edge.
type UpdateWorkflowParams struct {
	ItemType      item.Kind          `json:"item_type"`
	ItemID        string             `json:"item_id"`
	WorkflowState item.WorkflowState `json:"workflow_state"`
}

// ResolveReportParams closes a report as not actionable.
type ResolveReportParams struct {
	ReportID string `json:"report_id"`
}

// ProfileActionParams applies a ban/warn/dismiss outcome to the profile
// behind a report.
type ProfileActionParams struct {
	ReportID string                   `json:"report_id"`
	Action   bulkaction.ProfileAction `json:"profile_action"`
	Reason   string                   `json:"reason,omitempty"`
}

// errorBody is the error half of the response envelope. The id sets are
// populated only for rolled-back bulk actions so the caller can retry with
// full context.
type errorBody struct {
	Code      string   `json:"code"`
	Message   string   `json:"message"`
	FlagIDs   []string `json:"flag_ids,omitempty"`
	ReportIDs []string `json:"report_ids,omitempty"`
}
