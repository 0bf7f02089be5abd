package model

import "time"

// ChangeType classifies a changelog entry
type ChangeType string

const (
	ChangeStatus       ChangeType = "status_changed"
	ChangeScoreBand    ChangeType = "score_band_changed"
	ChangeConfirmation ChangeType = "confirmation_changed"
	ChangeConflict     ChangeType = "conflict_detected"
	ChangeOverride     ChangeType = "manual_override"
)

// Tracked field names
const (
	FieldStatus              = "status"
	FieldScoreBand           = "score_band"
	FieldGazetteConfirmed    = "gazette_confirmed"
	FieldActConfirmed        = "act_confirmed"
	FieldParliamentConfirmed = "parliament_confirmed"
)

// ChangelogEntry records one changed field of a scheme's derived state
type ChangelogEntry struct {
	ID         string     `json:"id"`
	SchemeID   string     `json:"scheme_id"`
	Seq        int64      `json:"seq"` // Per-scheme order
	ChangeType ChangeType `json:"change_type"`
	Field      string     `json:"field_changed"`
	OldValue   string     `json:"old_value"`
	NewValue   string     `json:"new_value"`
	Sources    []SourceID `json:"sources,omitempty"`
	RunID      string     `json:"run_id,omitempty"`
	Reason     string     `json:"reason,omitempty"`
	DetectedAt time.Time  `json:"detected_at"`
}
