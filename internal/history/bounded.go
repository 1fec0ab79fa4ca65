package history

import "sitegrade/internal/phase"

// Limits bounds the conversation passed to collaborators.
type Limits struct {
	// Max is the total number of turns kept.
	Max int
	// RecentUser is how many of the newest user turns are always kept.
	RecentUser int
}

const (
	DefaultMaxTurns        = 50
	DefaultRecentUserTurns = 5
)

// DefaultLimits returns the standard conversation bounds.
func DefaultLimits() Limits {
	return Limits{Max: DefaultMaxTurns, RecentUser: DefaultRecentUserTurns}
}

// Bound returns at most limits.Max turns in their original order. It keeps,
// in priority order: system turns, turns tagged with current, the newest
// limits.RecentUser user turns, then the most recent remaining turns. Within
// each class newer turns win when capacity runs out.
func Bound(turns []Turn, current phase.Phase, limits Limits) []Turn {
	if limits.Max <= 0 {
		limits.Max = DefaultMaxTurns
	}
	if limits.RecentUser < 0 {
		limits.RecentUser = 0
	}
	if len(turns) <= limits.Max {
		return append([]Turn(nil), turns...)
	}

	keep := make([]bool, len(turns))
	kept := 0
	mark := func(i int) {
		if keep[i] || kept >= limits.Max {
			return
		}
		keep[i] = true
		kept++
	}

	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role == RoleSystem {
			mark(i)
		}
	}
	if current != phase.None {
		for i := len(turns) - 1; i >= 0; i-- {
			if turns[i].Phase == current {
				mark(i)
			}
		}
	}
	users := 0
	for i := len(turns) - 1; i >= 0 && users < limits.RecentUser; i-- {
		if turns[i].Role == RoleUser {
			mark(i)
			users++
		}
	}
	for i := len(turns) - 1; i >= 0 && kept < limits.Max; i-- {
		mark(i)
	}

	out := make([]Turn, 0, kept)
	for i, turn := range turns {
		if keep[i] {
			out = append(out, turn)
		}
	}
	return out
}
