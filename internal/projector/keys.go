package projector

import (
	"strings"
	"unicode"
)

// compactKeys rewrites well-known snapshot keys into their short form. Keys not
// listed here are canonicalised to lower snake case.
var compactKeys = map[string]string{
	"performance":            "perf",
	"loadTime":               "load_ms",
	"domContentLoaded":       "dcl_ms",
	"firstContentfulPaint":   "fcp_ms",
	"largestContentfulPaint": "lcp_ms",
	"cumulativeLayoutShift":  "cls",
	"totalBlockingTime":      "tbt_ms",
	"timeToInteractive":      "tti_ms",
	"totalBytes":             "bytes",
	"requestCount":           "requests",
	"securityHeaders":        "sec_headers",
	"lighthouse":             "lh",
	"accessibility":          "a11y",
	"functionality":          "func",
	"metaDescription":        "meta_desc",
	"metaDescriptionLength":  "meta_desc_len",
	"titleLength":            "title_len",
	"imagesWithoutAlt":       "img_no_alt",
	"colorScheme":            "color_scheme",
}

// Projected paths read by the validator and the collaborators.
const (
	PathLoadTime               = "perf.load_ms"
	PathFirstContentfulPaint   = "perf.fcp_ms"
	PathLargestContentful      = "perf.lcp_ms"
	PathCumulativeLayoutShift  = "perf.cls"
	PathTotalBlockingTime      = "perf.tbt_ms"
	PathTimeToInteractive      = "perf.tti_ms"
	PathTotalBytes             = "perf.bytes"
	PathRequestCount           = "perf.requests"
	PathSecurityHeaders        = "sec_headers"
	PathLighthousePerformance  = "lh.perf"
	PathLighthouseSEO          = "lh.seo"
	PathLighthouseA11y         = "lh.a11y"
	PathLighthouseBestPractice = "lh.best_practices"
	PathTitle                  = "seo.title"
	PathTitleLength            = "seo.title_len"
	PathMetaDescription        = "seo.meta_desc"
	PathMetaDescriptionLength  = "seo.meta_desc_len"
	PathH1Count                = "seo.h1_count"
	PathBrokenLinks            = "func.broken_links"
	PathConsoleErrors          = "func.console_errors"
)

// CompactKey returns the canonical short form of a raw snapshot key.
func CompactKey(key string) string {
	if short, ok := compactKeys[key]; ok {
		return short
	}
	return canonicalKey(key)
}

func canonicalKey(key string) string {
	var b strings.Builder
	b.Grow(len(key) + 4)
	runes := []rune(strings.TrimSpace(key))
	lastUnderscore := true
	for i, r := range runes {
		switch {
		case unicode.IsUpper(r):
			prevLower := i > 0 && (unicode.IsLower(runes[i-1]) || unicode.IsDigit(runes[i-1]))
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1]) && i > 0 && unicode.IsUpper(runes[i-1])
			if (prevLower || nextLower) && !lastUnderscore {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			lastUnderscore = false
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	return strings.TrimRight(b.String(), "_")
}
