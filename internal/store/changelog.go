package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/Masterminds/squirrel"

	"github.com/ppiankov/schemetrust/internal/model"
)

var changelogColumns = []string{
	"id", "scheme_id", "seq", "change_type", "field", "old_value", "new_value",
	"sources", "run_id", "reason", "detected_at",
}

// Changelog returns up to limit of a scheme's most recent entries in sequence order.
// limit <= 0 returns every entry.
func (s *Store) Changelog(ctx context.Context, schemeID string, limit int) ([]model.ChangelogEntry, error) {
	sel := s.sq.Select(changelogColumns...).
		From("changelog").
		Where(squirrel.Eq{"scheme_id": schemeID}).
		OrderBy("seq DESC")
	if limit > 0 {
		sel = sel.Limit(uint64(limit))
	}

	rows, err := query(ctx, s.db, sel)
	if err != nil {
		return nil, wrap("select changelog", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []model.ChangelogEntry
	for rows.Next() {
		e, err := scanChange(rows)
		if err != nil {
			return nil, wrap("scan changelog", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("select changelog", err)
	}

	// Newest were selected first; return them oldest first
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

func scanChange(rows *sql.Rows) (model.ChangelogEntry, error) {
	var (
		e                   model.ChangelogEntry
		changeType          string
		sources, detectedAt string
	)
	err := rows.Scan(
		&e.ID, &e.SchemeID, &e.Seq, &changeType, &e.Field, &e.OldValue, &e.NewValue,
		&sources, &e.RunID, &e.Reason, &detectedAt,
	)
	if err != nil {
		return e, err
	}
	e.ChangeType = model.ChangeType(changeType)
	if err := json.Unmarshal([]byte(sources), &e.Sources); err != nil {
		return e, fmt.Errorf("decode sources: %w", err)
	}
	if e.DetectedAt, err = parseTime(detectedAt); err != nil {
		return e, err
	}
	return e, nil
}
