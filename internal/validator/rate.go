package validator

import "math"

// Rating is the qualitative verdict for one metric.
type Rating string

const (
	Good             Rating = "good"
	NeedsImprovement Rating = "needs-improvement"
	Poor             Rating = "poor"
)

// RangeTolerance widens a target window on both sides before a value is rated
// poor.
const RangeTolerance = 0.20

// Thresholds bound a metric. For lower-is-better metrics Good <= Poor; for
// higher-is-better metrics Good >= Poor.
type Thresholds struct {
	Good float64
	Poor float64
}

// Window is an inclusive target range.
type Window struct {
	Min float64
	Max float64
}

// Rate rates a lower-is-better metric: good at or below t.Good, needs
// improvement at or below t.Poor, poor above. NaN is poor.
func Rate(value float64, t Thresholds) Rating {
	switch {
	case math.IsNaN(value):
		return Poor
	case value <= t.Good:
		return Good
	case value <= t.Poor:
		return NeedsImprovement
	default:
		return Poor
	}
}

// RateHigher rates a higher-is-better metric such as a 0-100 audit score.
func RateHigher(value float64, t Thresholds) Rating {
	switch {
	case math.IsNaN(value):
		return Poor
	case value >= t.Good:
		return Good
	case value >= t.Poor:
		return NeedsImprovement
	default:
		return Poor
	}
}

// RateRange rates value against w: good inside the window, needs improvement
// inside the window widened by RangeTolerance, poor otherwise.
func RateRange(value float64, w Window) Rating {
	if math.IsNaN(value) {
		return Poor
	}
	if value >= w.Min && value <= w.Max {
		return Good
	}
	lo := w.Min * (1 - RangeTolerance)
	hi := w.Max * (1 + RangeTolerance)
	if value >= lo && value <= hi {
		return NeedsImprovement
	}
	return Poor
}
