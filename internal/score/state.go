package score

import (
	"time"

	"github.com/ppiankov/schemetrust/internal/model"
)

// StateMachine derives verification status transitions from assessments
type StateMachine struct {
	cfg model.ScoringConfig
}

// NewStateMachine creates a state machine
func NewStateMachine(cfg model.ScoringConfig) *StateMachine {
	if cfg.DisputeAfterRuns < 1 {
		cfg.DisputeAfterRuns = 2
	}
	if cfg.VerifiedMinAuthoritative < 1 {
		cfg.VerifiedMinAuthoritative = len(model.AuthoritativeSources)
	}
	return &StateMachine{cfg: cfg}
}

// NextStreak returns the number of consecutive runs that observed a contradiction
func (m *StateMachine) NextStreak(prev model.VerificationStatus, a Assessment, responded bool) int {
	switch {
	case !responded:
		return prev.ConflictStreak
	case a.Conflict != nil:
		return prev.ConflictStreak + 1
	default:
		return 0
	}
}

// Transition returns the status that follows prev given this run's assessment.
// responded is false when no source produced a result.
func (m *StateMachine) Transition(prev model.VerificationStatus, a Assessment, responded bool) model.Status {
	from := prev.Status
	if from == "" {
		from = model.StatusPending
	}

	if from == model.StatusRevoked || !responded {
		return from
	}

	if m.NextStreak(prev, a, responded) >= m.cfg.DisputeAfterRuns {
		return model.StatusDisputed
	}

	if w := a.Winner; w != nil && w.Indication == model.IndicationRevoked && w.Source.IsAuthoritative() {
		switch from {
		case model.StatusVerified, model.StatusPartiallyVerified:
			return model.StatusRevoked
		default:
			return model.StatusPartiallyVerified
		}
	}

	if !a.HasPositive {
		return model.StatusUnverified
	}

	if a.Score >= m.cfg.HighThreshold && a.AuthoritativeConfirmed >= m.cfg.VerifiedMinAuthoritative {
		return model.StatusVerified
	}

	if a.Score >= m.cfg.LowThreshold || a.AuthoritativeConfirmed > 0 {
		return model.StatusPartiallyVerified
	}

	switch from {
	case model.StatusVerified, model.StatusPartiallyVerified:
		return from
	default:
		return model.StatusUnverified
	}
}

// Run describes the verification run a projection is computed for
type Run struct {
	Responded []model.SourceID // Sources that returned a result or a definite not-found
	At        time.Time
}

// Projector combines scoring and the state machine into the status projection
type Projector struct {
	scorer  *Scorer
	machine *StateMachine
}

// NewProjector creates a projector from the scoring configuration
func NewProjector(cfg model.ScoringConfig) *Projector {
	return &Projector{
		scorer:  NewScorer(cfg),
		machine: NewStateMachine(cfg),
	}
}

// Scorer returns the underlying scorer
func (p *Projector) Scorer() *Scorer {
	return p.scorer
}

// Project computes the next status of a scheme from its full evidence chain.
// The returned status keeps prev's version; the store assigns the next one.
func (p *Projector) Project(prev model.VerificationStatus, chain []model.EvidenceRecord, run Run) model.VerificationStatus {
	responded := len(run.Responded) > 0
	if !responded {
		return prev
	}

	a := p.scorer.Assess(chain, run.At)

	next := prev
	next.Status = p.machine.Transition(prev, a, responded)
	next.ConflictStreak = p.machine.NextStreak(prev, a, responded)
	next.TrustScore = a.Score
	next.Band = a.Band
	next.GazetteConfirmed = a.GazetteConfirmed
	next.ActConfirmed = a.ActConfirmed
	next.ParliamentConfirmed = a.ParliamentConfirmed
	next.SourcesChecked = append([]model.SourceID(nil), run.Responded...)
	at := run.At
	next.LastVerified = &at
	return next
}
