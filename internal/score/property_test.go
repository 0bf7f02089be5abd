package score

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/ppiankov/schemetrust/internal/model"
)

func chainFrom(weights []float64, ages []uint16) []model.EvidenceRecord {
	var chain []model.EvidenceRecord
	for i := 0; i < len(weights) && i < len(ages) && i < len(model.AllSources); i++ {
		seen := testNow.Add(-time.Duration(ages[i]) * 24 * time.Hour)
		chain = append(chain, record(int64(i+1), model.AllSources[i], weights[i], model.IndicationActive, "doc", seen))
	}
	return chain
}

// Property: the score is always within [0,1]
func TestScoreBounded(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)
	s := NewScorer(testConfig())

	properties.Property("score stays in [0,1]", prop.ForAll(
		func(weights []float64, ages []uint16) bool {
			a := s.Assess(chainFrom(weights, ages), testNow)
			return a.Score >= 0 && a.Score <= 1
		},
		gen.SliceOf(gen.Float64Range(0, 1)),
		gen.SliceOf(gen.UInt16()),
	))

	properties.TestingRun(t)
}

// Property: evidence from a further source never lowers the score
func TestScoreMonotonicInSources(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)
	s := NewScorer(testConfig())

	properties.Property("adding a source never lowers the score", prop.ForAll(
		func(weights []float64, ages []uint16) bool {
			chain := chainFrom(weights, ages)
			for n := 1; n < len(chain); n++ {
				before := s.Assess(chain[:n], testNow).Score
				after := s.Assess(chain[:n+1], testNow).Score
				if after < before {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.Float64Range(0, 1)),
		gen.SliceOf(gen.UInt16()),
	))

	properties.TestingRun(t)
}

// Property: three fresh authoritative confirmations above the high threshold verify
func TestFullConfirmationVerifies(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)
	p := NewProjector(testConfig())

	properties.Property("all authoritative sources confirm and score is high", prop.ForAll(
		func(g, a, s float64) bool {
			chain := []model.EvidenceRecord{
				record(1, model.SourceGazette, g, model.IndicationActive, "g", testNow),
				record(2, model.SourceIndiaCode, a, model.IndicationActive, "a", testNow),
				record(3, model.SourceSansad, s, model.IndicationActive, "s", testNow),
			}
			next := p.Project(model.InitialStatus("pm-kisan"), chain, Run{Responded: model.AllSources, At: testNow})
			if next.TrustScore < testConfig().HighThreshold {
				return true
			}
			return next.Status == model.StatusVerified
		},
		gen.Float64Range(0, 1),
		gen.Float64Range(0, 1),
		gen.Float64Range(0, 1),
	))

	properties.TestingRun(t)
}
