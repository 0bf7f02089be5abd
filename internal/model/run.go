package model

import "time"

// SourceResult is the outcome of querying one source during a run
type SourceResult struct {
	Source   SourceID      `json:"source"`
	Outcome  Outcome       `json:"outcome"`
	Records  int           `json:"records"`
	Attempts int           `json:"attempts"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration_ns"`
}

// RunResult summarises one verification run of a scheme
type RunResult struct {
	RunID      string              `json:"run_id"`
	SchemeID   string              `json:"scheme_id"`
	StartedAt  time.Time           `json:"started_at"`
	FinishedAt time.Time           `json:"finished_at"`
	Sources    []SourceResult      `json:"sources"`
	Committed  bool                `json:"committed"`
	Inserted   int                 `json:"evidence_inserted"`
	Status     *VerificationStatus `json:"status,omitempty"`
	Changes    []ChangelogEntry    `json:"changes,omitempty"`
	Error      string              `json:"error,omitempty"`
	Err        error               `json:"-"`
}

// Responded returns the sources that answered, with records or a definite not-found
func (r *RunResult) Responded() []SourceID {
	var ids []SourceID
	for _, s := range r.Sources {
		if s.Outcome.Responded() {
			ids = append(ids, s.Source)
		}
	}
	return ids
}
