// Package stats provides the online statistical monitor: sequential
// significance evaluation over measurement streams and the auto-kill check
// that can pre-empt a harmful experiment.
package stats

import "time"

// Variant labels which arm of the experiment a measurement belongs to.
type Variant string

const (
	VariantControl   Variant = "control"
	VariantTreatment Variant = "treatment"
)

// Measurement is one immutable sample. Streams are append-only; the monitor
// never mutates them.
type Measurement struct {
	Value     float64
	Variant   Variant
	Timestamp time.Time
}

// Verdict says whether a significance result carries statistics.
type Verdict string

const (
	// VerdictInsufficientSample means at least one arm is below the plan's
	// minimum sample size; no statistic is computed.
	VerdictInsufficientSample Verdict = "insufficient_sample"

	// VerdictEvaluated means both arms cleared the minimum and the result
	// carries a delta and confidence interval.
	VerdictEvaluated Verdict = "evaluated"
)

// Interval is a two-sided confidence interval around the estimated delta.
type Interval struct {
	Low  float64
	High float64
}

// Width returns the interval's span.
func (i Interval) Width() float64 {
	return i.High - i.Low
}

// Result is the outcome of one significance evaluation.
type Result struct {
	Verdict    Verdict
	ControlN   int
	TreatmentN int

	// EstimatedDelta and Interval are nil when Verdict is
	// insufficient_sample.
	EstimatedDelta *float64
	Interval       *Interval

	MeetsSuccessThreshold bool
	ExceedsKillThreshold  bool
}

// split partitions a measurement stream by variant.
func split(measurements []Measurement) (control, treatment []float64) {
	for _, m := range measurements {
		switch m.Variant {
		case VariantControl:
			control = append(control, m.Value)
		case VariantTreatment:
			treatment = append(treatment, m.Value)
		}
	}
	return control, treatment
}
