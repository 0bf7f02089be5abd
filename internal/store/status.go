package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/Masterminds/squirrel"

	"github.com/ppiankov/schemetrust/internal/model"
)

var statusColumns = []string{
	"scheme_id", "status", "trust_score", "score_band",
	"gazette_confirmed", "act_confirmed", "parliament_confirmed",
	"conflict_streak", "sources_checked", "last_verified", "version",
}

// Filter selects statuses for ListStatuses
type Filter struct {
	Status   model.Status
	MinScore float64
	Source   model.SourceID // Schemes with evidence from this source
	Page     int            // 1-based
	PageSize int
}

// Page is one page of statuses
type Page struct {
	Items    []model.VerificationStatus `json:"items"`
	Total    int                        `json:"total"`
	Page     int                        `json:"page"`
	PageSize int                        `json:"page_size"`
}

// Status returns the current status of a scheme
func (s *Store) Status(ctx context.Context, schemeID string) (model.VerificationStatus, error) {
	st, found, err := s.loadStatus(ctx, s.db, schemeID)
	if err != nil {
		return st, err
	}
	if !found {
		return st, fmt.Errorf("status %s: %w", schemeID, ErrNotFound)
	}
	return st, nil
}

// ListStatuses returns statuses matching f, highest score first
func (s *Store) ListStatuses(ctx context.Context, f Filter) (Page, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 || f.PageSize > 500 {
		f.PageSize = 50
	}

	where := squirrel.And{}
	if f.Status != "" {
		where = append(where, squirrel.Eq{"status": string(f.Status)})
	}
	if f.MinScore > 0 {
		where = append(where, squirrel.GtOrEq{"trust_score": f.MinScore})
	}
	if f.Source != "" {
		where = append(where, squirrel.Expr(
			"scheme_id IN (SELECT DISTINCT scheme_id FROM evidence WHERE source = ? AND indication != ?)",
			string(f.Source), string(model.IndicationAbsent),
		))
	}

	page := Page{Page: f.Page, PageSize: f.PageSize, Items: []model.VerificationStatus{}}

	row, err := queryRow(ctx, s.db, s.sq.Select("COUNT(*)").From("verification_status").Where(where))
	if err != nil {
		return page, wrap("count statuses", err)
	}
	if err := row.Scan(&page.Total); err != nil {
		return page, wrap("count statuses", err)
	}

	sel := s.sq.Select(statusColumns...).
		From("verification_status").
		Where(where).
		OrderBy("trust_score DESC", "scheme_id ASC").
		Limit(uint64(f.PageSize)).
		Offset(uint64((f.Page - 1) * f.PageSize))

	rows, err := query(ctx, s.db, sel)
	if err != nil {
		return page, wrap("list statuses", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		st, err := scanStatus(rows)
		if err != nil {
			return page, wrap("scan status", err)
		}
		page.Items = append(page.Items, st)
	}
	return page, wrap("list statuses", rows.Err())
}

// AllStatuses returns every stored status
func (s *Store) AllStatuses(ctx context.Context) ([]model.VerificationStatus, error) {
	rows, err := query(ctx, s.db, s.sq.Select(statusColumns...).From("verification_status").OrderBy("scheme_id ASC"))
	if err != nil {
		return nil, wrap("select statuses", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.VerificationStatus
	for rows.Next() {
		st, err := scanStatus(rows)
		if err != nil {
			return nil, wrap("scan status", err)
		}
		out = append(out, st)
	}
	return out, wrap("select statuses", rows.Err())
}

func (s *Store) loadStatus(ctx context.Context, q querier, schemeID string) (model.VerificationStatus, bool, error) {
	row, err := queryRow(ctx, q, s.sq.Select(statusColumns...).From("verification_status").Where(squirrel.Eq{"scheme_id": schemeID}))
	if err != nil {
		return model.InitialStatus(schemeID), false, wrap("select status", err)
	}
	st, err := scanStatus(row)
	if isNoRows(err) {
		return model.InitialStatus(schemeID), false, nil
	}
	if err != nil {
		return model.InitialStatus(schemeID), false, wrap("scan status", err)
	}
	return st, true, nil
}

// writeStatus stores next if the stored version still equals expected.
// expected is 0 when no status row exists yet.
func (s *Store) writeStatus(ctx context.Context, tx *sql.Tx, next model.VerificationStatus, expected int64) (int64, error) {
	sources, err := json.Marshal(nonNilSources(next.SourcesChecked))
	if err != nil {
		return 0, fmt.Errorf("encode sources: %w", err)
	}
	version := expected + 1

	if expected == 0 {
		insert := s.sq.Insert("verification_status").
			Columns(statusColumns...).
			Values(
				next.SchemeID, string(next.Status), next.TrustScore, string(next.Band),
				boolInt(next.GazetteConfirmed), boolInt(next.ActConfirmed), boolInt(next.ParliamentConfirmed),
				next.ConflictStreak, string(sources), formatTimePtr(next.LastVerified), version,
			).
			Suffix("ON CONFLICT (scheme_id) DO NOTHING")
		res, err := exec(ctx, tx, insert)
		if err != nil {
			return 0, wrap("insert status", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return 0, fmt.Errorf("%w: %s", ErrStaleWrite, next.SchemeID)
		}
		return version, nil
	}

	update := s.sq.Update("verification_status").
		Set("status", string(next.Status)).
		Set("trust_score", next.TrustScore).
		Set("score_band", string(next.Band)).
		Set("gazette_confirmed", boolInt(next.GazetteConfirmed)).
		Set("act_confirmed", boolInt(next.ActConfirmed)).
		Set("parliament_confirmed", boolInt(next.ParliamentConfirmed)).
		Set("conflict_streak", next.ConflictStreak).
		Set("sources_checked", string(sources)).
		Set("last_verified", formatTimePtr(next.LastVerified)).
		Set("version", version).
		Where(squirrel.Eq{"scheme_id": next.SchemeID, "version": expected})

	res, err := exec(ctx, tx, update)
	if err != nil {
		return 0, wrap("update status", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return 0, fmt.Errorf("%w: %s at version %d", ErrStaleWrite, next.SchemeID, expected)
	}
	return version, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStatus(r rowScanner) (model.VerificationStatus, error) {
	var (
		st                   model.VerificationStatus
		status, band         string
		gazette, act, parlia int
		sources              string
		lastVerified         sql.NullString
	)
	err := r.Scan(
		&st.SchemeID, &status, &st.TrustScore, &band,
		&gazette, &act, &parlia,
		&st.ConflictStreak, &sources, &lastVerified, &st.Version,
	)
	if err != nil {
		return st, err
	}
	st.Status = model.Status(status)
	st.Band = model.Band(band)
	st.GazetteConfirmed = gazette != 0
	st.ActConfirmed = act != 0
	st.ParliamentConfirmed = parlia != 0

	if err := json.Unmarshal([]byte(sources), &st.SourcesChecked); err != nil {
		return st, fmt.Errorf("decode sources: %w", err)
	}
	st.SourcesChecked = nonNilSources(st.SourcesChecked)
	if st.LastVerified, err = parseTimePtr(lastVerified); err != nil {
		return st, err
	}
	return st, nil
}

func nonNilSources(ids []model.SourceID) []model.SourceID {
	if ids == nil {
		return []model.SourceID{}
	}
	return ids
}
