package model

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// SourceID identifies an evidence provider
type SourceID string

const (
	SourceGazette   SourceID = "gazette_of_india"  // Official gazette notifications
	SourceIndiaCode SourceID = "india_code"        // Legal-code repository of Acts
	SourceSansad    SourceID = "sansad_parliament" // Parliamentary bills and acts
	SourceMyScheme  SourceID = "myscheme_gov"      // Scheme directory
	SourceDataGovIn SourceID = "data_gov_in"       // Open-data portal
)

// AllSources lists every known source in registration order
var AllSources = []SourceID{SourceGazette, SourceIndiaCode, SourceSansad, SourceMyScheme, SourceDataGovIn}

// AuthoritativeSources are the sources whose confirmation is required for verification
var AuthoritativeSources = []SourceID{SourceGazette, SourceIndiaCode, SourceSansad}

// IsAuthoritative reports whether the source is one of the three authoritative ones
func (s SourceID) IsAuthoritative() bool {
	for _, a := range AuthoritativeSources {
		if s == a {
			return true
		}
	}
	return false
}

// Indication is the status a record asserts about the scheme
type Indication string

const (
	IndicationActive  Indication = "active"
	IndicationAmended Indication = "amended"
	IndicationRevoked Indication = "revoked"
	IndicationAbsent  Indication = "absent" // Negative observation: the source has no record
)

// Affirms reports whether the indication confirms the scheme is in force
func (i Indication) Affirms() bool {
	return i == IndicationActive || i == IndicationAmended
}

// MaxExcerptLen bounds stored excerpts
const MaxExcerptLen = 500

// RawEvidence is a record as returned by a source client
type RawEvidence struct {
	Source       SourceID   `json:"source"`
	DocumentID   string     `json:"document_id,omitempty"` // Provider identifier (notification number, act id, slug)
	Title        string     `json:"title"`
	Excerpt      string     `json:"excerpt,omitempty"`
	URL          string     `json:"url,omitempty"`
	DocumentDate *time.Time `json:"document_date,omitempty"`
	Indication   Indication `json:"indication"`
	ContentHash  string     `json:"content_hash"`
}

// NewRawEvidence builds a RawEvidence with a truncated excerpt and its content hash
func NewRawEvidence(source SourceID, documentID, title, excerpt, url string, date *time.Time, indication Indication) RawEvidence {
	ev := RawEvidence{
		Source:       source,
		DocumentID:   strings.TrimSpace(documentID),
		Title:        strings.TrimSpace(title),
		Excerpt:      TruncateExcerpt(excerpt),
		URL:          strings.TrimSpace(url),
		DocumentDate: date,
		Indication:   indication,
	}
	ev.ContentHash = HashContent(ev)
	return ev
}

// NegativeObservation records that a source was consulted and had nothing for the scheme
func NegativeObservation(source SourceID, schemeID string) RawEvidence {
	return NewRawEvidence(source, "absent:"+schemeID, "no matching record", "", "", nil, IndicationAbsent)
}

// HashContent hashes the content fields of a record.
// Observation timestamps are not part of the hash.
func HashContent(ev RawEvidence) string {
	date := ""
	if ev.DocumentDate != nil {
		date = ev.DocumentDate.UTC().Format("2006-01-02")
	}
	parts := []string{string(ev.Source), ev.DocumentID, ev.Title, ev.Excerpt, ev.URL, date, string(ev.Indication)}
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return hex.EncodeToString(sum[:])
}

// TruncateExcerpt trims whitespace and cuts the text to MaxExcerptLen runes
func TruncateExcerpt(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= MaxExcerptLen {
		return s
	}
	return string(runes[:MaxExcerptLen])
}

// EvidenceRecord is a stored, immutable observation
type EvidenceRecord struct {
	ID       int64   `json:"id"`
	SchemeID string  `json:"scheme_id"`
	Weight   float64 `json:"weight"` // Source weight at the time of append
	RawEvidence
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"` // Refreshed when the same content is observed again
}

// DocumentKey identifies the document a record describes, for supersession
func (r EvidenceRecord) DocumentKey() string {
	switch {
	case r.DocumentID != "":
		return r.DocumentID
	case r.URL != "":
		return r.URL
	default:
		return strings.ToLower(r.Title)
	}
}

// EffectiveDate is the document date when known, else the first observation
func (r EvidenceRecord) EffectiveDate() time.Time {
	if r.DocumentDate != nil {
		return *r.DocumentDate
	}
	return r.FirstSeen
}
