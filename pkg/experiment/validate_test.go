package experiment

import (
	"strings"
	"testing"

	"github.com/odvcencio/northstar/pkg/errors"
)

func validCandidate() *Candidate {
	return &Candidate{
		Title:      "reduce image payload",
		Hypothesis: "smaller images cut page load and lift conversion",
		Prediction: Prediction{
			Signal:        "checkout_conversion",
			ExpectedDelta: 0.03,
			DeltaLow:      0.01,
			DeltaHigh:     0.05,
			Confidence:    0.7,
		},
		Intervention: "serve webp with responsive srcset",
		MeasurementPlan: MeasurementPlan{
			DurationHours:      168,
			MinSampleSize:      500,
			ConfidenceRequired: 0.95,
			SuccessThreshold:   0.02,
			KillThreshold:      -0.05,
		},
		RolloutPlan:   RolloutPlan{Strategy: "percentage", InitialPercent: 5},
		EffortHours:   12,
		Risk:          RiskMedium,
		Reversible:    true,
		AffectedFiles: []string{"web/img/pipeline.go", "web/templates/product.html"},
		SubProblemID:  "sp-assets",
	}
}

func TestValidateCandidate_Valid(t *testing.T) {
	if err := ValidateCandidate(validCandidate()); err != nil {
		t.Fatalf("valid candidate rejected: %v", err)
	}
}

func TestValidateCandidate_Nil(t *testing.T) {
	if err := ValidateCandidate(nil); err == nil {
		t.Fatal("nil candidate should be rejected")
	}
}

func TestValidateCandidate_FieldErrors(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(c *Candidate)
		wantField string
	}{
		{
			name:      "empty title",
			mutate:    func(c *Candidate) { c.Title = "  " },
			wantField: "title",
		},
		{
			name:      "empty hypothesis",
			mutate:    func(c *Candidate) { c.Hypothesis = "" },
			wantField: "hypothesis",
		},
		{
			name:      "empty prediction signal",
			mutate:    func(c *Candidate) { c.Prediction.Signal = "" },
			wantField: "prediction.signal",
		},
		{
			name:      "confidence above one",
			mutate:    func(c *Candidate) { c.Prediction.Confidence = 1.5 },
			wantField: "prediction.confidence",
		},
		{
			name:      "negative confidence",
			mutate:    func(c *Candidate) { c.Prediction.Confidence = -0.1 },
			wantField: "prediction.confidence",
		},
		{
			name: "inverted delta range",
			mutate: func(c *Candidate) {
				c.Prediction.DeltaLow = 0.1
				c.Prediction.DeltaHigh = 0.01
			},
			wantField: "prediction.delta_range",
		},
		{
			name:      "unknown risk",
			mutate:    func(c *Candidate) { c.Risk = "extreme" },
			wantField: "risk",
		},
		{
			name:      "zero effort",
			mutate:    func(c *Candidate) { c.EffortHours = 0 },
			wantField: "effort_hours",
		},
		{
			name:      "negative effort",
			mutate:    func(c *Candidate) { c.EffortHours = -3 },
			wantField: "effort_hours",
		},
		{
			name:      "zero min sample size",
			mutate:    func(c *Candidate) { c.MeasurementPlan.MinSampleSize = 0 },
			wantField: "measurement_plan.min_sample_size",
		},
		{
			name:      "confidence required out of range",
			mutate:    func(c *Candidate) { c.MeasurementPlan.ConfidenceRequired = 1 },
			wantField: "measurement_plan.confidence_required",
		},
		{
			name:      "blank affected file",
			mutate:    func(c *Candidate) { c.AffectedFiles = []string{"ok.go", " "} },
			wantField: "affected_files[1]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validCandidate()
			tt.mutate(c)

			err := ValidateCandidate(c)
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if !errors.IsCode(err, errors.ErrCodeCandidateInvalid) {
				t.Errorf("error code = %v, want CANDIDATE_INVALID", errors.GetCode(err))
			}

			nsErr := err.(*errors.Error)
			field, _ := nsErr.Context["field"].(string)
			if field != tt.wantField {
				t.Errorf("offending field = %q, want %q", field, tt.wantField)
			}
			if !strings.Contains(nsErr.UserMessage, tt.wantField) {
				t.Errorf("user message %q should name field %q", nsErr.UserMessage, tt.wantField)
			}
		})
	}
}

func TestValidateCandidate_NoAffectedFiles(t *testing.T) {
	// Empty file sets are legal; they simply never conflict in scheduling.
	c := validCandidate()
	c.AffectedFiles = nil
	if err := ValidateCandidate(c); err != nil {
		t.Fatalf("candidate without affected files rejected: %v", err)
	}
}
