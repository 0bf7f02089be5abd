package store

import (
	"strconv"

	"github.com/ppiankov/schemetrust/internal/model"
)

// Diff returns one changelog entry per tracked field that differs between prev and next.
// Entries carry no ID, sequence or timestamp; the store assigns them on commit.
func Diff(prev, next model.VerificationStatus) []model.ChangelogEntry {
	var entries []model.ChangelogEntry

	if prev.Status != next.Status {
		ct := model.ChangeStatus
		if next.Status == model.StatusDisputed {
			ct = model.ChangeConflict
		}
		entries = append(entries, change(next.SchemeID, ct, model.FieldStatus, string(prev.Status), string(next.Status)))
	}

	if prev.Band != next.Band {
		entries = append(entries, change(next.SchemeID, model.ChangeScoreBand, model.FieldScoreBand, string(prev.Band), string(next.Band)))
	}

	flags := []struct {
		field    string
		from, to bool
	}{
		{model.FieldGazetteConfirmed, prev.GazetteConfirmed, next.GazetteConfirmed},
		{model.FieldActConfirmed, prev.ActConfirmed, next.ActConfirmed},
		{model.FieldParliamentConfirmed, prev.ParliamentConfirmed, next.ParliamentConfirmed},
	}
	for _, f := range flags {
		if f.from != f.to {
			entries = append(entries, change(next.SchemeID, model.ChangeConfirmation, f.field,
				strconv.FormatBool(f.from), strconv.FormatBool(f.to)))
		}
	}

	return entries
}

func change(schemeID string, ct model.ChangeType, field, oldValue, newValue string) model.ChangelogEntry {
	return model.ChangelogEntry{
		SchemeID:   schemeID,
		ChangeType: ct,
		Field:      field,
		OldValue:   oldValue,
		NewValue:   newValue,
	}
}
