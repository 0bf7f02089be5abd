package model

import "time"

// Status is the verification state of a scheme
type Status string

const (
	StatusPending           Status = "pending"
	StatusUnverified        Status = "unverified"
	StatusPartiallyVerified Status = "partially_verified"
	StatusVerified          Status = "verified"
	StatusDisputed          Status = "disputed"
	StatusRevoked           Status = "revoked"
)

// AllStatuses lists every status in display order
var AllStatuses = []Status{
	StatusPending,
	StatusUnverified,
	StatusPartiallyVerified,
	StatusVerified,
	StatusDisputed,
	StatusRevoked,
}

// Valid reports whether s is a known status
func (s Status) Valid() bool {
	for _, known := range AllStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// Band is a coarse bucket of the trust score
type Band string

const (
	BandLow    Band = "low"
	BandMedium Band = "medium"
	BandHigh   Band = "high"
)

// VerificationStatus is the derived state of one scheme
type VerificationStatus struct {
	SchemeID            string     `json:"scheme_id"`
	Status              Status     `json:"status"`
	TrustScore          float64    `json:"trust_score"`
	Band                Band       `json:"score_band"`
	GazetteConfirmed    bool       `json:"gazette_confirmed"`
	ActConfirmed        bool       `json:"act_confirmed"`
	ParliamentConfirmed bool       `json:"parliament_confirmed"`
	ConflictStreak      int        `json:"conflict_streak"` // Consecutive runs that observed a contradiction
	SourcesChecked      []SourceID `json:"sources_checked"`
	LastVerified        *time.Time `json:"last_verified,omitempty"`
	Version             int64      `json:"version"`
}

// InitialStatus returns the status of a scheme that has never been verified
func InitialStatus(schemeID string) VerificationStatus {
	return VerificationStatus{
		SchemeID:       schemeID,
		Status:         StatusPending,
		Band:           BandLow,
		SourcesChecked: []SourceID{},
	}
}

// AuthoritativeConfirmations counts the confirmation flags that are set
func (v VerificationStatus) AuthoritativeConfirmations() int {
	n := 0
	for _, flag := range []bool{v.GazetteConfirmed, v.ActConfirmed, v.ParliamentConfirmed} {
		if flag {
			n++
		}
	}
	return n
}
