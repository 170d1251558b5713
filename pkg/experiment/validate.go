package experiment

import (
	"fmt"
	"strings"

	"github.com/odvcencio/northstar/pkg/errors"
)

// ValidateCandidate checks a candidate produced by the generation
// collaborator before it may be scored. Candidates are untrusted input; every
// rejection names the offending field.
func ValidateCandidate(c *Candidate) error {
	if c == nil {
		return errors.New(errors.ErrCodeCandidateInvalid, "candidate is nil")
	}

	if strings.TrimSpace(c.Title) == "" {
		return invalidField("title", "must not be empty")
	}
	if strings.TrimSpace(c.Hypothesis) == "" {
		return invalidField("hypothesis", "must not be empty")
	}
	if strings.TrimSpace(c.Prediction.Signal) == "" {
		return invalidField("prediction.signal", "must not be empty")
	}
	if c.Prediction.Confidence < 0 || c.Prediction.Confidence > 1 {
		return invalidField("prediction.confidence",
			fmt.Sprintf("must be in [0, 1], got %v", c.Prediction.Confidence))
	}
	if c.Prediction.DeltaLow > c.Prediction.DeltaHigh {
		return invalidField("prediction.delta_range",
			fmt.Sprintf("low %v exceeds high %v", c.Prediction.DeltaLow, c.Prediction.DeltaHigh))
	}

	switch c.Risk {
	case RiskLow, RiskMedium, RiskHigh:
	default:
		return invalidField("risk", fmt.Sprintf("unknown risk level %q", c.Risk))
	}

	if c.EffortHours <= 0 {
		return invalidField("effort_hours", fmt.Sprintf("must be positive, got %v", c.EffortHours))
	}

	plan := c.MeasurementPlan
	if plan.MinSampleSize <= 0 {
		return invalidField("measurement_plan.min_sample_size",
			fmt.Sprintf("must be positive, got %d", plan.MinSampleSize))
	}
	if plan.ConfidenceRequired <= 0 || plan.ConfidenceRequired >= 1 {
		return invalidField("measurement_plan.confidence_required",
			fmt.Sprintf("must be in (0, 1), got %v", plan.ConfidenceRequired))
	}

	for i, path := range c.AffectedFiles {
		if strings.TrimSpace(path) == "" {
			return invalidField(fmt.Sprintf("affected_files[%d]", i), "must not be blank")
		}
	}

	return nil
}

func invalidField(field, reason string) *errors.Error {
	return errors.New(errors.ErrCodeCandidateInvalid, "candidate validation failed").
		WithContext("field", field).
		WithContext("reason", reason).
		WithUserMessage(fmt.Sprintf("candidate field %s: %s", field, reason))
}
