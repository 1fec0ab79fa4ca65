package projector

import "sitegrade/internal/phase"

// allowlists maps each phase to the raw snapshot paths it may see. A path
// selects either a leaf or a whole subtree. Phases without an entry receive an
// empty subset; Vision works from the screenshot alone.
var allowlists = map[phase.Phase][]string{
	phase.UI: {
		"ui",
		"accessibility",
		"lighthouse.accessibility",
	},
	phase.Functionality: {
		"functionality",
		"lighthouse.bestPractices",
	},
	phase.Performance: {
		"performance",
		"securityHeaders",
		"lighthouse.performance",
	},
	phase.SEO: {
		"seo",
		"lighthouse.seo",
	},
}

// Allowlist returns the raw paths projected for p.
func Allowlist(p phase.Phase) []string {
	paths := allowlists[p]
	out := make([]string, len(paths))
	copy(out, paths)
	return out
}
