package bulkaction

// Selection is the caller-assembled set of queue item ids for one bulk
// call. It is a pure value: the With/Without/Toggle helpers return updated
// copies and the engine never retains a Selection between calls.
type Selection struct {
	FlagIDs   []string `json:"flag_ids,omitempty"`
	ReportIDs []string `json:"report_ids,omitempty"`
}

// Empty reports whether nothing is selected.
func (s Selection) Empty() bool {
	return len(s.FlagIDs) == 0 && len(s.ReportIDs) == 0
}

// ToggleFlag returns a copy with the flag id added, or removed if present.
func (s Selection) ToggleFlag(id string) Selection {
	s.FlagIDs = toggle(s.FlagIDs, id)
	return s
}

// ToggleReport returns a copy with the report id added, or removed if
// present.
func (s Selection) ToggleReport(id string) Selection {
	s.ReportIDs = toggle(s.ReportIDs, id)
	return s
}

func toggle(ids []string, id string) []string {
	out := make([]string, 0, len(ids)+1)
	removed := false
	for _, v := range ids {
		if v == id {
			removed = true
			continue
		}
		out = append(out, v)
	}
	if !removed {
		out = append(out, id)
	}
	return out
}
