package stats

import (
	"math"

	"github.com/odvcencio/northstar/pkg/experiment"
	"github.com/odvcencio/northstar/pkg/outcome"
)

// Evaluate runs one significance pass over a measurement stream against a
// measurement plan. If either arm is below the plan's minimum sample size
// the verdict is insufficient_sample and no statistic is attached.
//
// The delta is treatment mean minus control mean. The confidence interval
// uses the Welch standard error with a normal critical value at the plan's
// required confidence. Threshold checks are direction-aware: for a
// decreasing target the sign of the delta is flipped before comparing, so
// success and kill thresholds always read in "movement toward the target"
// terms.
func Evaluate(measurements []Measurement, plan experiment.MeasurementPlan, direction outcome.Direction) Result {
	control, treatment := split(measurements)

	res := Result{
		ControlN:   len(control),
		TreatmentN: len(treatment),
	}
	if len(control) < plan.MinSampleSize || len(treatment) < plan.MinSampleSize {
		res.Verdict = VerdictInsufficientSample
		return res
	}
	res.Verdict = VerdictEvaluated

	delta := mean(treatment) - mean(control)
	se := math.Sqrt(variance(control)/float64(len(control)) + variance(treatment)/float64(len(treatment)))
	margin := zCritical(plan.ConfidenceRequired) * se

	interval := Interval{Low: delta - margin, High: delta + margin}
	res.EstimatedDelta = &delta
	res.Interval = &interval

	effect := delta
	if direction == outcome.DirectionDecrease {
		effect = -delta
	}
	res.MeetsSuccessThreshold = effect >= plan.SuccessThreshold
	res.ExceedsKillThreshold = effect <= plan.KillThreshold
	return res
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// variance is the unbiased sample variance. Zero for fewer than two points.
func variance(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := mean(xs)
	var ss float64
	for _, x := range xs {
		d := x - m
		ss += d * d
	}
	return ss / float64(len(xs)-1)
}

// zCritical returns the two-sided normal critical value for the given
// confidence level, e.g. ~1.96 at 0.95. Levels outside (0, 1) fall back to
// 0.95.
func zCritical(confidence float64) float64 {
	if confidence <= 0 || confidence >= 1 {
		confidence = 0.95
	}
	return normalQuantile(0.5 + confidence/2)
}

// normalQuantile is Acklam's rational approximation to the inverse standard
// normal CDF. Relative error is below 1.15e-9 over the open unit interval,
// far tighter than anything the monitor needs.
func normalQuantile(p float64) float64 {
	const (
		pLow  = 0.02425
		pHigh = 1 - pLow
	)
	a := [6]float64{-3.969683028665376e+01, 2.209460984245205e+02, -2.759285104469687e+02, 1.383577518672690e+02, -3.066479806614716e+01, 2.506628277459239e+00}
	b := [5]float64{-5.447609879822406e+01, 1.615858368580409e+02, -1.556989798598866e+02, 6.680131188771972e+01, -1.328068155288572e+01}
	c := [6]float64{-7.784894002430293e-03, -3.223964580411365e-01, -2.400758277161838e+00, -2.549732539343734e+00, 4.374664141464968e+00, 2.938163982698783e+00}
	d := [4]float64{7.784695709041462e-03, 3.224671290700398e-01, 2.445134137142996e+00, 3.754408661907416e+00}

	switch {
	case p <= 0:
		return math.Inf(-1)
	case p >= 1:
		return math.Inf(1)
	case p < pLow:
		q := math.Sqrt(-2 * math.Log(p))
		return (((((c[0]*q+c[1])*q+c[2])*q+c[3])*q+c[4])*q + c[5]) /
			((((d[0]*q+d[1])*q+d[2])*q+d[3])*q + 1)
	case p > pHigh:
		q := math.Sqrt(-2 * math.Log(1-p))
		return -(((((c[0]*q+c[1])*q+c[2])*q+c[3])*q+c[4])*q + c[5]) /
			((((d[0]*q+d[1])*q+d[2])*q+d[3])*q + 1)
	default:
		q := p - 0.5
		r := q * q
		return (((((a[0]*r+a[1])*r+a[2])*r+a[3])*r+a[4])*r + a[5]) * q /
			(((((b[0]*r+b[1])*r+b[2])*r+b[3])*r+b[4])*r + 1)
	}
}
