// Package portfolio scores candidate hypotheses and selects which may run
// concurrently without overlapping file scopes.
package portfolio

import (
	"math"

	"github.com/odvcencio/northstar/pkg/experiment"
)

// Scoring weights. Impact dominates, with risk, speed, and learning value
// sharing the remainder.
const (
	weightImpact   = 0.35
	weightRisk     = 0.25
	weightSpeed    = 0.20
	weightLearning = 0.20
)

// ScoredCandidate pairs a candidate with its portfolio score.
type ScoredCandidate struct {
	Candidate *experiment.Candidate
	Score     float64
}

// riskMultiplier rewards safer bets. Unknown risk levels score as high risk.
func riskMultiplier(risk experiment.RiskLevel) float64 {
	switch risk {
	case experiment.RiskLow:
		return 1.0
	case experiment.RiskMedium:
		return 0.8
	default:
		return 0.5
	}
}

// Score computes the portfolio value of a candidate.
//
// The impact term uses the magnitude of the expected delta: a large harmful
// effect is as informative a bet as a large beneficial one. The speed bonus
// decays logarithmically with effort, and reversible experiments carry more
// learning value because they can be unwound cheaply.
func Score(c *experiment.Candidate) float64 {
	if c == nil {
		return 0
	}

	impact := math.Abs(c.Prediction.ExpectedDelta) * c.Prediction.Confidence
	speedBonus := 1 / math.Log(c.EffortHours+2)

	learningValue := 0.7
	if c.Reversible {
		learningValue = 1.0
	}

	return impact*weightImpact +
		riskMultiplier(c.Risk)*weightRisk +
		speedBonus*weightSpeed +
		learningValue*weightLearning
}

// ScoreAll validates and scores a batch of candidates. Invalid candidates are
// dropped and reported; the caller decides whether a partial batch is usable.
func ScoreAll(candidates []*experiment.Candidate) ([]ScoredCandidate, []error) {
	scored := make([]ScoredCandidate, 0, len(candidates))
	var rejected []error

	for _, c := range candidates {
		if err := experiment.ValidateCandidate(c); err != nil {
			rejected = append(rejected, err)
			continue
		}
		scored = append(scored, ScoredCandidate{Candidate: c, Score: Score(c)})
	}

	return scored, rejected
}
