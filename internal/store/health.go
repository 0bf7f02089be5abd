package store

import (
	"context"
	"database/sql"

	"github.com/ppiankov/schemetrust/internal/model"
)

var healthColumns = []string{"source", "online", "last_outcome", "last_error", "breaker", "last_checked", "last_success"}

// UpsertSourceHealth records the latest observation of a source.
// An observation older than the stored one is ignored.
func (s *Store) UpsertSourceHealth(ctx context.Context, h model.SourceHealth) error {
	insert := s.sq.Insert("source_health").
		Columns(healthColumns...).
		Values(
			string(h.Source), boolInt(h.Online), string(h.LastOutcome), h.LastError, h.Breaker,
			formatTime(h.LastChecked), formatTimePtr(h.LastSuccess),
		).
		Suffix(`ON CONFLICT (source) DO UPDATE SET
			online       = excluded.online,
			last_outcome = excluded.last_outcome,
			last_error   = excluded.last_error,
			breaker      = excluded.breaker,
			last_checked = excluded.last_checked,
			last_success = COALESCE(excluded.last_success, source_health.last_success)
		WHERE excluded.last_checked >= source_health.last_checked`)

	_, err := exec(ctx, s.db, insert)
	return wrap("upsert source health", err)
}

// SourceHealth returns the last observation of every source, keyed by source
func (s *Store) SourceHealth(ctx context.Context) (map[model.SourceID]model.SourceHealth, error) {
	rows, err := query(ctx, s.db, s.sq.Select(healthColumns...).From("source_health"))
	if err != nil {
		return nil, wrap("select source health", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[model.SourceID]model.SourceHealth)
	for rows.Next() {
		var (
			h               model.SourceHealth
			source, outcome string
			online          int
			lastChecked     string
			lastSuccess     sql.NullString
		)
		if err := rows.Scan(&source, &online, &outcome, &h.LastError, &h.Breaker, &lastChecked, &lastSuccess); err != nil {
			return nil, wrap("scan source health", err)
		}
		h.Source = model.SourceID(source)
		h.Online = online != 0
		h.LastOutcome = model.Outcome(outcome)
		if h.LastChecked, err = parseTime(lastChecked); err != nil {
			return nil, wrap("scan source health", err)
		}
		if h.LastSuccess, err = parseTimePtr(lastSuccess); err != nil {
			return nil, wrap("scan source health", err)
		}
		out[h.Source] = h
	}
	return out, wrap("select source health", rows.Err())
}
