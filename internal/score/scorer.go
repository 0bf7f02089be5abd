package score

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/ppiankov/schemetrust/internal/model"
)

// Claim is the indication a source currently asserts about a scheme
type Claim struct {
	Source     model.SourceID   `json:"source"`
	Indication model.Indication `json:"indication"`
	Weight     float64          `json:"weight"`
	Date       time.Time        `json:"date"`
	RecordID   int64            `json:"record_id"`
}

// Conflict describes sources that disagree on whether a scheme is in force
type Conflict struct {
	Affirming []model.SourceID `json:"affirming"`
	Revoking  []model.SourceID `json:"revoking"`
	Winner    Claim            `json:"winner"`
}

// Assessment is the scored view of an evidence chain
type Assessment struct {
	Score                  float64                    `json:"score"`
	Band                   model.Band                 `json:"band"`
	GazetteConfirmed       bool                       `json:"gazette_confirmed"`
	ActConfirmed           bool                       `json:"act_confirmed"`
	ParliamentConfirmed    bool                       `json:"parliament_confirmed"`
	AuthoritativeConfirmed int                        `json:"authoritative_confirmed"`
	HasPositive            bool                       `json:"has_positive"`
	Claims                 map[model.SourceID]Claim   `json:"claims"`
	Winner                 *Claim                     `json:"winner,omitempty"` // Provisionally authoritative claim
	Conflict               *Conflict                  `json:"conflict,omitempty"`
	Contributions          map[model.SourceID]float64 `json:"contributions"`
	Signals                []Signal                   `json:"signals"`
}

// Scorer computes trust scores from evidence chains
type Scorer struct {
	cfg       model.ScoringConfig
	authority *AuthorityClassifier
}

// NewScorer creates a scorer
func NewScorer(cfg model.ScoringConfig) *Scorer {
	if cfg.HalfLife <= 0 {
		cfg.HalfLife = 180 * 24 * time.Hour
	}
	if cfg.Saturation <= 0 {
		cfg.Saturation = 1.05
	}
	return &Scorer{
		cfg:       cfg,
		authority: NewAuthorityClassifier(cfg.OfficialDomains),
	}
}

// Band buckets a score using the configured thresholds
func (s *Scorer) Band(score float64) model.Band {
	switch {
	case score >= s.cfg.HighThreshold:
		return model.BandHigh
	case score >= s.cfg.LowThreshold:
		return model.BandMedium
	default:
		return model.BandLow
	}
}

// Decay returns the recency multiplier for evidence of the given age
func (s *Scorer) Decay(age time.Duration) float64 {
	if age <= 0 {
		return 1
	}
	return math.Pow(0.5, float64(age)/float64(s.cfg.HalfLife))
}

// Assess scores the current records of a chain at time now
func (s *Scorer) Assess(records []model.EvidenceRecord, now time.Time) Assessment {
	a := Assessment{
		Claims:        make(map[model.SourceID]Claim),
		Contributions: make(map[model.SourceID]float64),
	}

	var sum float64
	for _, rec := range Current(records) {
		if !s.authority.IsOfficial(rec.URL) {
			a.Signals = append(a.Signals, Signal{
				Type:        SignalUnofficial,
				Severity:    SeverityWarning,
				Description: fmt.Sprintf("%s record links outside official domains", rec.Source),
				Data:        map[string]interface{}{"record_id": rec.ID, "url": rec.URL},
			})
			continue
		}

		contribution := rec.Weight * s.Decay(now.Sub(rec.LastSeen))
		if contribution > a.Contributions[rec.Source] {
			a.Contributions[rec.Source] = contribution
		}

		claim := Claim{
			Source:     rec.Source,
			Indication: rec.Indication,
			Weight:     rec.Weight,
			Date:       rec.EffectiveDate(),
			RecordID:   rec.ID,
		}
		if prev, ok := a.Claims[rec.Source]; !ok || newer(claim, prev) {
			a.Claims[rec.Source] = claim
		}
	}

	for _, id := range sortedSources(a.Contributions) {
		c := a.Contributions[id]
		sum += c
		a.Signals = append(a.Signals, Signal{
			Type:        SignalContribution,
			Severity:    SeverityInfo,
			Description: fmt.Sprintf("%s contributes %.3f", id, c),
			Data: map[string]interface{}{
				"source":       string(id),
				"contribution": c,
				"formula":      "weight × 0.5^(age / half_life)",
			},
		})
	}

	a.Score = clamp01(1 - math.Exp(-s.cfg.Saturation*sum))
	a.Band = s.Band(a.Score)
	a.Signals = append(a.Signals, Signal{
		Type:        SignalTrust,
		Severity:    SeverityInfo,
		Description: fmt.Sprintf("trust score %.3f (%s)", a.Score, a.Band),
		Data: map[string]interface{}{
			"sum":        sum,
			"saturation": s.cfg.Saturation,
			"formula":    "1 - exp(-k × Σ best contribution per source)",
		},
	})

	s.resolveClaims(&a)
	return a
}

func (s *Scorer) resolveClaims(a *Assessment) {
	var affirming, revoking []model.SourceID
	var winner *Claim

	for _, id := range sortedClaims(a.Claims) {
		claim := a.Claims[id]
		switch {
		case claim.Indication.Affirms():
			affirming = append(affirming, id)
			a.HasPositive = true
			switch id {
			case model.SourceGazette:
				a.GazetteConfirmed = true
			case model.SourceIndiaCode:
				a.ActConfirmed = true
			case model.SourceSansad:
				a.ParliamentConfirmed = true
			}
		case claim.Indication == model.IndicationRevoked:
			revoking = append(revoking, id)
		}

		if winner == nil || outranks(claim, *winner) {
			c := claim
			winner = &c
		}
	}

	for _, flag := range []bool{a.GazetteConfirmed, a.ActConfirmed, a.ParliamentConfirmed} {
		if flag {
			a.AuthoritativeConfirmed++
		}
	}
	a.Winner = winner

	if len(affirming) == 0 || len(revoking) == 0 {
		return
	}
	a.Conflict = &Conflict{
		Affirming: affirming,
		Revoking:  revoking,
		Winner:    *winner,
	}
	a.Signals = append(a.Signals, Signal{
		Type:        SignalConflict,
		Severity:    SeverityCritical,
		Description: fmt.Sprintf("%d source(s) affirm, %d revoke; %s is provisionally authoritative", len(affirming), len(revoking), winner.Source),
		Data: map[string]interface{}{
			"winner":     string(winner.Source),
			"indication": string(winner.Indication),
		},
	})
}

// Current returns the records that count towards a score: the most recently
// observed record per source and document. A source's latest negative
// observation supersedes every record of that source it was observed after.
// Output is in ID order.
func Current(records []model.EvidenceRecord) []model.EvidenceRecord {
	type docKey struct {
		source model.SourceID
		key    string
	}

	latest := make(map[docKey]model.EvidenceRecord)
	absent := make(map[model.SourceID]model.EvidenceRecord)
	for _, rec := range records {
		k := docKey{rec.Source, rec.DocumentKey()}
		if prev, ok := latest[k]; !ok || observedAfter(rec, prev) {
			latest[k] = rec
		}
		if rec.Indication == model.IndicationAbsent {
			if prev, ok := absent[rec.Source]; !ok || observedAfter(rec, prev) {
				absent[rec.Source] = rec
			}
		}
	}

	current := make([]model.EvidenceRecord, 0, len(latest))
	for _, rec := range latest {
		if rec.Indication == model.IndicationAbsent {
			continue
		}
		if neg, ok := absent[rec.Source]; ok && observedAfter(neg, rec) {
			continue
		}
		current = append(current, rec)
	}
	sort.Slice(current, func(i, j int) bool { return current[i].ID < current[j].ID })
	return current
}

// observedAfter orders records by last observation, then by insertion
func observedAfter(a, b model.EvidenceRecord) bool {
	if !a.LastSeen.Equal(b.LastSeen) {
		return a.LastSeen.After(b.LastSeen)
	}
	return a.ID > b.ID
}

// newer reports whether a is the more recent claim of the same source
func newer(a, b Claim) bool {
	if !a.Date.Equal(b.Date) {
		return a.Date.After(b.Date)
	}
	return a.RecordID > b.RecordID
}

// outranks applies conflict resolution: higher weight wins, then recency
func outranks(a, b Claim) bool {
	if a.Weight != b.Weight {
		return a.Weight > b.Weight
	}
	return newer(a, b)
}

func sortedSources(m map[model.SourceID]float64) []model.SourceID {
	ids := make([]model.SourceID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func sortedClaims(m map[model.SourceID]Claim) []model.SourceID {
	ids := make([]model.SourceID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
