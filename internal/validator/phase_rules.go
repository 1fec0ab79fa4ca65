package validator

import (
	"fmt"
	"unicode/utf8"

	"sitegrade/internal/phase"
	"sitegrade/internal/projector"
	"sitegrade/internal/snapshot"
)

// MetricRating is the verdict for one metric of a projected subset.
type MetricRating struct {
	Metric string  `json:"metric" yaml:"metric"`
	Value  float64 `json:"value" yaml:"value"`
	Rating Rating  `json:"rating" yaml:"rating"`
	Target string  `json:"target" yaml:"target"`
}

type ruleKind int

const (
	lowerBetter ruleKind = iota
	higherBetter
	inWindow
	securityComposite
)

type metricRule struct {
	metric     string
	path       string
	kind       ruleKind
	thresholds Thresholds
	window     Window
	// textPath is measured in characters when path is absent.
	textPath string
}

var auditScore = Thresholds{Good: 90, Poor: 50}

var phaseRules = map[phase.Phase][]metricRule{
	phase.UI: {
		{metric: "accessibility_score", path: projector.PathLighthouseA11y, kind: higherBetter, thresholds: auditScore},
		{metric: "images_without_alt", path: "a11y.img_no_alt", kind: lowerBetter, thresholds: Thresholds{Good: 0, Poor: 3}},
	},
	phase.Functionality: {
		{metric: "best_practices_score", path: projector.PathLighthouseBestPractice, kind: higherBetter, thresholds: auditScore},
		{metric: "broken_links", path: projector.PathBrokenLinks, kind: lowerBetter, thresholds: Thresholds{Good: 0, Poor: 2}},
		{metric: "console_errors", path: projector.PathConsoleErrors, kind: lowerBetter, thresholds: Thresholds{Good: 0, Poor: 5}},
	},
	phase.Performance: {
		{metric: "load_time", path: projector.PathLoadTime, kind: lowerBetter, thresholds: Thresholds{Good: 3000, Poor: 6000}},
		{metric: "first_contentful_paint", path: projector.PathFirstContentfulPaint, kind: lowerBetter, thresholds: Thresholds{Good: 1800, Poor: 3000}},
		{metric: "largest_contentful_paint", path: projector.PathLargestContentful, kind: lowerBetter, thresholds: Thresholds{Good: 2500, Poor: 4000}},
		{metric: "cumulative_layout_shift", path: projector.PathCumulativeLayoutShift, kind: lowerBetter, thresholds: Thresholds{Good: 0.1, Poor: 0.25}},
		{metric: "total_blocking_time", path: projector.PathTotalBlockingTime, kind: lowerBetter, thresholds: Thresholds{Good: 200, Poor: 600}},
		{metric: "time_to_interactive", path: projector.PathTimeToInteractive, kind: lowerBetter, thresholds: Thresholds{Good: 3800, Poor: 7300}},
		{metric: "total_bytes", path: projector.PathTotalBytes, kind: lowerBetter, thresholds: Thresholds{Good: 1_600_000, Poor: 4_000_000}},
		{metric: "request_count", path: projector.PathRequestCount, kind: lowerBetter, thresholds: Thresholds{Good: 50, Poor: 100}},
		{metric: "performance_score", path: projector.PathLighthousePerformance, kind: higherBetter, thresholds: auditScore},
		{metric: "security_headers", path: projector.PathSecurityHeaders, kind: securityComposite},
	},
	phase.SEO: {
		{metric: "title_length", path: projector.PathTitleLength, textPath: projector.PathTitle, kind: inWindow, window: Window{Min: 30, Max: 60}},
		{metric: "meta_description_length", path: projector.PathMetaDescriptionLength, textPath: projector.PathMetaDescription, kind: inWindow, window: Window{Min: 120, Max: 160}},
		{metric: "h1_count", path: projector.PathH1Count, kind: inWindow, window: Window{Min: 1, Max: 1}},
		{metric: "seo_score", path: projector.PathLighthouseSEO, kind: higherBetter, thresholds: auditScore},
	},
}

// RatePhase rates every known metric present in a projected subset. Metrics
// absent from the subset are skipped; phases without rules return nil.
func RatePhase(p phase.Phase, subset snapshot.Value) []MetricRating {
	rules := phaseRules[p]
	if len(rules) == 0 {
		return nil
	}
	out := make([]MetricRating, 0, len(rules))
	for _, rule := range rules {
		if rating, ok := rule.apply(subset); ok {
			out = append(out, rating)
		}
	}
	return out
}

func (r metricRule) apply(subset snapshot.Value) (MetricRating, bool) {
	raw, ok := subset.Lookup(r.path)
	if r.kind == securityComposite {
		if !ok || raw.Kind() != snapshot.KindObject {
			return MetricRating{}, false
		}
		score := ScoreSecurityHeaders(raw)
		return MetricRating{
			Metric: r.metric,
			Value:  projector.Round2(score.Ratio * 100),
			Rating: score.Rating,
			Target: fmt.Sprintf(">= %.0f%% of %.1f", securityGoodRatio*100, score.Max),
		}, true
	}

	value, found := numberAt(subset, r.path)
	if !found && r.textPath != "" {
		if text, ok := subset.Lookup(r.textPath); ok {
			if s, isString := text.Str(); isString {
				value, found = float64(utf8.RuneCountInString(s)), true
			}
		}
	}
	if !found {
		return MetricRating{}, false
	}

	rating := MetricRating{Metric: r.metric, Value: value}
	switch r.kind {
	case lowerBetter:
		rating.Rating = Rate(value, r.thresholds)
		rating.Target = fmt.Sprintf("<= %g", r.thresholds.Good)
	case higherBetter:
		rating.Rating = RateHigher(value, r.thresholds)
		rating.Target = fmt.Sprintf(">= %g", r.thresholds.Good)
	case inWindow:
		rating.Rating = RateRange(value, r.window)
		rating.Target = fmt.Sprintf("%g-%g", r.window.Min, r.window.Max)
	}
	return rating, true
}

func numberAt(v snapshot.Value, path string) (float64, bool) {
	leaf, ok := v.Lookup(path)
	if !ok {
		return 0, false
	}
	return leaf.Float()
}

// Summary counts ratings by verdict.
type Summary struct {
	Good             int `json:"good" yaml:"good"`
	NeedsImprovement int `json:"needs_improvement" yaml:"needs_improvement"`
	Poor             int `json:"poor" yaml:"poor"`
}

// Summarize tallies ratings.
func Summarize(ratings []MetricRating) Summary {
	var s Summary
	for _, r := range ratings {
		switch r.Rating {
		case Good:
			s.Good++
		case NeedsImprovement:
			s.NeedsImprovement++
		case Poor:
			s.Poor++
		}
	}
	return s
}
