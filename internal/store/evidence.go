package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"

	"github.com/ppiankov/schemetrust/internal/model"
)

var evidenceColumns = []string{
	"id", "scheme_id", "source", "document_id", "title", "excerpt", "url",
	"document_date", "indication", "content_hash", "weight", "first_seen", "last_seen",
}

// AppendEvidence appends rec to its scheme's chain. A record whose content hash is
// already stored for the same scheme and source only refreshes last_seen.
func (s *Store) AppendEvidence(ctx context.Context, rec model.EvidenceRecord) (bool, error) {
	unlock, err := s.lockScheme(ctx, rec.SchemeID)
	if err != nil {
		return false, err
	}
	defer unlock()

	var inserted bool
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		inserted, err = s.appendTx(ctx, tx, rec, s.now())
		return err
	})
	return inserted, err
}

func (s *Store) appendTx(ctx context.Context, tx *sql.Tx, rec model.EvidenceRecord, seen time.Time) (bool, error) {
	if rec.ContentHash == "" {
		rec.ContentHash = model.HashContent(rec.RawEvidence)
	}
	if rec.Weight < 0 || rec.Weight > 1 {
		return false, fmt.Errorf("evidence weight %.2f out of range", rec.Weight)
	}
	ts := formatTime(seen)

	insert := s.sq.Insert("evidence").
		Columns(evidenceColumns[1:]...).
		Values(
			rec.SchemeID, string(rec.Source), rec.DocumentID, rec.Title, rec.Excerpt, rec.URL,
			formatTimePtr(rec.DocumentDate), string(rec.Indication), rec.ContentHash, rec.Weight, ts, ts,
		).
		Suffix("ON CONFLICT (scheme_id, source, content_hash) DO NOTHING")

	res, err := exec(ctx, tx, insert)
	if err != nil {
		return false, wrap("insert evidence", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return true, nil
	}

	refresh := s.sq.Update("evidence").
		Set("last_seen", ts).
		Where(squirrel.Eq{
			"scheme_id":    rec.SchemeID,
			"source":       string(rec.Source),
			"content_hash": rec.ContentHash,
		}).
		Where(squirrel.Lt{"last_seen": ts})
	if _, err := exec(ctx, tx, refresh); err != nil {
		return false, wrap("refresh evidence", err)
	}
	return false, nil
}

// Evidence returns a scheme's evidence chain in append order
func (s *Store) Evidence(ctx context.Context, schemeID string) ([]model.EvidenceRecord, error) {
	return s.chain(ctx, s.db, schemeID)
}

// EvidenceCount returns the length of a scheme's evidence chain
func (s *Store) EvidenceCount(ctx context.Context, schemeID string) (int, error) {
	row, err := queryRow(ctx, s.db, s.sq.Select("COUNT(*)").From("evidence").Where(squirrel.Eq{"scheme_id": schemeID}))
	if err != nil {
		return 0, wrap("count evidence", err)
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, wrap("count evidence", err)
	}
	return n, nil
}

func (s *Store) chain(ctx context.Context, q querier, schemeID string) ([]model.EvidenceRecord, error) {
	sel := s.sq.Select(evidenceColumns...).
		From("evidence").
		Where(squirrel.Eq{"scheme_id": schemeID}).
		OrderBy("id ASC")

	rows, err := query(ctx, q, sel)
	if err != nil {
		return nil, wrap("select evidence", err)
	}
	defer func() { _ = rows.Close() }()

	var records []model.EvidenceRecord
	for rows.Next() {
		rec, err := scanEvidence(rows)
		if err != nil {
			return nil, wrap("scan evidence", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("select evidence", err)
	}
	return records, nil
}

func scanEvidence(rows *sql.Rows) (model.EvidenceRecord, error) {
	var (
		rec                 model.EvidenceRecord
		source, indication  string
		docDate             sql.NullString
		firstSeen, lastSeen string
	)
	err := rows.Scan(
		&rec.ID, &rec.SchemeID, &source, &rec.DocumentID, &rec.Title, &rec.Excerpt, &rec.URL,
		&docDate, &indication, &rec.ContentHash, &rec.Weight, &firstSeen, &lastSeen,
	)
	if err != nil {
		return rec, err
	}
	rec.Source = model.SourceID(source)
	rec.Indication = model.Indication(indication)

	if rec.DocumentDate, err = parseTimePtr(docDate); err != nil {
		return rec, err
	}
	if rec.FirstSeen, err = parseTime(firstSeen); err != nil {
		return rec, err
	}
	if rec.LastSeen, err = parseTime(lastSeen); err != nil {
		return rec, err
	}
	return rec, nil
}
