package model

import "time"

// Outcome is the result of one source fetch within a run
type Outcome string

const (
	OutcomeOK              Outcome = "ok"
	OutcomeNotFound        Outcome = "not_found"
	OutcomeTransient       Outcome = "transient"
	OutcomePolicyViolation Outcome = "policy_violation"
	OutcomeCircuitOpen     Outcome = "circuit_open"
)

// Responded reports whether the source answered, with or without records
func (o Outcome) Responded() bool {
	return o == OutcomeOK || o == OutcomeNotFound
}

// SourceHealth is the last observed condition of a source
type SourceHealth struct {
	Source      SourceID   `json:"source"`
	Online      bool       `json:"online"`
	LastOutcome Outcome    `json:"last_outcome"`
	LastError   string     `json:"last_error,omitempty"`
	Breaker     string     `json:"breaker"` // closed, open or half_open
	LastChecked time.Time  `json:"last_checked"`
	LastSuccess *time.Time `json:"last_success,omitempty"`
}
