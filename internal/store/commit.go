package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/ppiankov/schemetrust/internal/model"
)

// CommitResult describes what one commit changed
type CommitResult struct {
	Inserted int                      `json:"inserted"` // New evidence records
	Previous model.VerificationStatus `json:"previous"`
	Status   model.VerificationStatus `json:"status"`
	Changes  []model.ChangelogEntry   `json:"changes"`
}

// CommitRun appends the observed evidence and recomputes the scheme's status in
// one transaction under the scheme lock. Nothing is written if any step fails.
func (s *Store) CommitRun(ctx context.Context, schemeID, runID string, observed []model.EvidenceRecord, project ProjectFunc) (*CommitResult, error) {
	unlock, err := s.lockScheme(ctx, schemeID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var result *CommitResult
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		now := s.now()
		inserted := 0
		for _, rec := range observed {
			rec.SchemeID = schemeID
			ok, err := s.appendTx(ctx, tx, rec, now)
			if err != nil {
				return err
			}
			if ok {
				inserted++
			}
		}

		var err error
		result, err = s.recomputeTx(ctx, tx, schemeID, runID, project, now)
		if err != nil {
			return err
		}
		result.Inserted = inserted
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// RecomputeAndDiff recomputes a scheme's status from its stored chain and commits
// the status with its changelog entries.
func (s *Store) RecomputeAndDiff(ctx context.Context, schemeID, runID string, project ProjectFunc) (*CommitResult, error) {
	unlock, err := s.lockScheme(ctx, schemeID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var result *CommitResult
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		result, err = s.recomputeTx(ctx, tx, schemeID, runID, project, s.now())
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) recomputeTx(ctx context.Context, tx *sql.Tx, schemeID, runID string, project ProjectFunc, now time.Time) (*CommitResult, error) {
	chain, err := s.chain(ctx, tx, schemeID)
	if err != nil {
		return nil, err
	}
	prev, _, err := s.loadStatus(ctx, tx, schemeID)
	if err != nil {
		return nil, err
	}

	next := project(prev, chain)
	next.SchemeID = schemeID
	next.Version = prev.Version

	changes := Diff(prev, next)
	version, err := s.writeStatus(ctx, tx, next, prev.Version)
	if err != nil {
		return nil, err
	}
	next.Version = version

	for i := range changes {
		changes[i].RunID = runID
		changes[i].Sources = nonNilSources(next.SourcesChecked)
		changes[i].DetectedAt = now
	}
	if err := s.appendChanges(ctx, tx, schemeID, changes); err != nil {
		return nil, err
	}

	return &CommitResult{Previous: prev, Status: next, Changes: changes}, nil
}

// Override sets a scheme's status by hand. It is the only way out of revoked.
func (s *Store) Override(ctx context.Context, schemeID string, to model.Status, reason string) (*CommitResult, error) {
	if !to.Valid() {
		return nil, fmt.Errorf("override: unknown status %q", to)
	}

	unlock, err := s.lockScheme(ctx, schemeID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var result *CommitResult
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		prev, _, err := s.loadStatus(ctx, tx, schemeID)
		if err != nil {
			return err
		}

		next := prev
		next.Status = to
		next.ConflictStreak = 0
		result = &CommitResult{Previous: prev, Status: next}
		if prev.Status == to {
			return nil
		}

		version, err := s.writeStatus(ctx, tx, next, prev.Version)
		if err != nil {
			return err
		}
		result.Status.Version = version

		entry := change(schemeID, model.ChangeOverride, model.FieldStatus, string(prev.Status), string(to))
		entry.Reason = reason
		entry.DetectedAt = s.now()
		entry.Sources = []model.SourceID{}
		result.Changes = []model.ChangelogEntry{entry}
		return s.appendChanges(ctx, tx, schemeID, result.Changes)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// appendChanges assigns IDs and sequence numbers and inserts the entries
func (s *Store) appendChanges(ctx context.Context, tx *sql.Tx, schemeID string, entries []model.ChangelogEntry) error {
	if len(entries) == 0 {
		return nil
	}

	row, err := queryRow(ctx, tx, s.sq.Select("COALESCE(MAX(seq), 0)").From("changelog").Where(squirrel.Eq{"scheme_id": schemeID}))
	if err != nil {
		return wrap("select seq", err)
	}
	var seq int64
	if err := row.Scan(&seq); err != nil {
		return wrap("select seq", err)
	}

	insert := s.sq.Insert("changelog").Columns(changelogColumns...)
	for i := range entries {
		seq++
		e := &entries[i]
		e.ID = uuid.NewString()
		e.Seq = seq
		sources, err := json.Marshal(nonNilSources(e.Sources))
		if err != nil {
			return fmt.Errorf("encode sources: %w", err)
		}
		insert = insert.Values(
			e.ID, schemeID, e.Seq, string(e.ChangeType), e.Field, e.OldValue, e.NewValue,
			string(sources), e.RunID, e.Reason, formatTime(e.DetectedAt),
		)
	}
	if _, err := exec(ctx, tx, insert); err != nil {
		return wrap("insert changelog", err)
	}
	return nil
}
