package phase

import (
	"fmt"
	"strings"
)

// Phase names one step of an evaluation.
type Phase string

const (
	// None is the state of a session before Vision has run.
	None            Phase = ""
	Vision          Phase = "vision"
	UI              Phase = "ui"
	Functionality   Phase = "functionality"
	Performance     Phase = "performance"
	SEO             Phase = "seo"
	Overall         Phase = "overall"
	Recommendations Phase = "recommendations"
)

var ordered = []Phase{
	Vision,
	UI,
	Functionality,
	Performance,
	SEO,
	Overall,
	Recommendations,
}

var titles = map[Phase]string{
	Vision:          "Vision",
	UI:              "UI",
	Functionality:   "Functionality",
	Performance:     "Performance",
	SEO:             "SEO",
	Overall:         "Overall",
	Recommendations: "Recommendations",
}

// All returns the phases in execution order.
func All() []Phase {
	out := make([]Phase, len(ordered))
	copy(out, ordered)
	return out
}

// Scored returns the phases that produce a numeric score.
func Scored() []Phase {
	out := make([]Phase, 0, len(ordered))
	for _, p := range ordered {
		if p.IsScored() {
			out = append(out, p)
		}
	}
	return out
}

// Parse resolves a phase name case-insensitively.
func Parse(value string) (Phase, error) {
	normalized := Phase(strings.ToLower(strings.TrimSpace(value)))
	for _, p := range ordered {
		if p == normalized {
			return p, nil
		}
	}
	return None, fmt.Errorf("unknown phase %q", value)
}

// Index returns the position of p in the execution order, or -1 for None and
// unknown phases.
func (p Phase) Index() int {
	for i, candidate := range ordered {
		if candidate == p {
			return i
		}
	}
	return -1
}

// Valid reports whether p is one of the known phases.
func (p Phase) Valid() bool {
	return p.Index() >= 0
}

// IsScored reports whether the phase yields a 0-100 score. Overall and
// Recommendations are narrative only.
func (p Phase) IsScored() bool {
	switch p {
	case Vision, UI, Functionality, Performance, SEO:
		return true
	default:
		return false
	}
}

// Next returns the phase that follows current. From None it returns Vision; the
// second return is false once Recommendations has completed.
func Next(current Phase) (Phase, bool) {
	if current == None {
		return ordered[0], true
	}
	idx := current.Index()
	if idx < 0 || idx+1 >= len(ordered) {
		return None, false
	}
	return ordered[idx+1], true
}

// Title returns the display name of the phase.
func (p Phase) Title() string {
	if title, ok := titles[p]; ok {
		return title
	}
	if p == None {
		return "Not started"
	}
	return string(p)
}

func (p Phase) String() string {
	return string(p)
}
