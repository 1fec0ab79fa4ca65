package projector_test

import (
	"errors"
	"math"
	"testing"

	"sitegrade/internal/phase"
	"sitegrade/internal/projector"
	"sitegrade/internal/services"
	"sitegrade/internal/snapshot"
)

const fixture = `{
  "url": "https://example.com",
  "performance": {
    "loadTime": 512.3456,
    "firstContentfulPaint": 900.004,
    "cumulativeLayoutShift": 0.0549
  },
  "securityHeaders": {
    "Content-Security-Policy": "default-src 'self'",
    "Strict-Transport-Security": "max-age=63072000"
  },
  "seo": {
    "title": "Example Domain Home Page",
    "titleLength": 24,
    "metaDescriptionLength": 140,
    "h1Count": 1
  },
  "lighthouse": {
    "performance": 91.456,
    "seo": 88,
    "accessibility": 97,
    "bestPractices": 100
  },
  "ui": {"viewport": "width=device-width", "fonts": ["Inter"]},
  "functionality": {"brokenLinks": 2}
}`

func mustParse(t *testing.T, data string) snapshot.Value {
	t.Helper()
	v, err := snapshot.Parse([]byte(data))
	if err != nil {
		t.Fatalf("parse fixture: %v", err)
	}
	return v
}

func TestProjectPerformanceRoundsAndCompacts(t *testing.T) {
	snap := mustParse(t, fixture)
	subset := projector.Project(phase.Performance, snap)

	load, ok := subset.Lookup(projector.PathLoadTime)
	if !ok {
		t.Fatalf("expected %s in %v", projector.PathLoadTime, subset.Keys())
	}
	if f, _ := load.Float(); f != 512.35 {
		t.Fatalf("load = %v, want 512.35", f)
	}
	if cls, _ := subset.Lookup(projector.PathCumulativeLayoutShift); !cls.Equal(snapshot.Number(0.05)) {
		t.Fatalf("cls = %v", cls.Interface())
	}
	if lh, _ := subset.Lookup(projector.PathLighthousePerformance); !lh.Equal(snapshot.Number(91.46)) {
		t.Fatalf("lighthouse perf = %v", lh.Interface())
	}
	if _, ok := subset.Lookup("sec_headers.content_security_policy"); !ok {
		t.Fatal("expected canonical security header key")
	}
	if _, ok := subset.Get("seo"); ok {
		t.Fatal("performance subset must not contain seo fields")
	}
	if _, ok := subset.Lookup(projector.PathLighthouseSEO); ok {
		t.Fatal("performance subset must not contain lighthouse seo")
	}
}

func TestProjectSEOOnlyContainsSEOFields(t *testing.T) {
	subset := projector.Project(phase.SEO, mustParse(t, fixture))
	keys := subset.Keys()
	if len(keys) != 2 || keys[0] != "lh" || keys[1] != "seo" {
		t.Fatalf("unexpected top-level keys %v", keys)
	}
	lh, _ := subset.Get("lh")
	if got := lh.Keys(); len(got) != 1 || got[0] != "seo" {
		t.Fatalf("unexpected lighthouse keys %v", got)
	}
	if v, _ := subset.Lookup(projector.PathTitleLength); !v.Equal(snapshot.Number(24)) {
		t.Fatalf("title length = %v", v.Interface())
	}
}

func TestProjectUnlistedPhaseIsEmpty(t *testing.T) {
	for _, p := range []phase.Phase{phase.Vision, phase.Overall, phase.Recommendations, phase.Phase("bogus"), phase.None} {
		subset := projector.Project(p, mustParse(t, fixture))
		if subset.Kind() != snapshot.KindObject || subset.Len() != 0 {
			t.Fatalf("%q: expected empty object, got %v", p, subset.Interface())
		}
	}
}

func TestProjectNonObjectSnapshot(t *testing.T) {
	subset := projector.Project(phase.SEO, snapshot.String("oops"))
	if subset.Len() != 0 {
		t.Fatalf("expected empty subset, got %v", subset.Interface())
	}
}

func TestRound2(t *testing.T) {
	tests := []struct{ in, want float64 }{
		{1.005, 1.0},
		{512.3456, 512.35},
		{-1.255, -1.25},
		{0.125, 0.13},
		{100, 100},
	}
	for _, tc := range tests {
		got := projector.Round2(tc.in)
		if math.Abs(got-tc.want) > 1e-9 {
			t.Fatalf("Round2(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
	if !math.IsNaN(projector.Round2(math.NaN())) {
		t.Fatal("expected NaN to pass through")
	}
}

func TestCompactKey(t *testing.T) {
	tests := map[string]string{
		"largestContentfulPaint":  "lcp_ms",
		"Content-Security-Policy": "content_security_policy",
		"h1Count":                 "h1_count",
		"bestPractices":           "best_practices",
		"HTTPServer":              "http_server",
		"x-frame-options":         "x_frame_options",
	}
	for in, want := range tests {
		if got := projector.CompactKey(in); got != want {
			t.Fatalf("CompactKey(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestValidateRejectsNonFinite(t *testing.T) {
	subset := snapshot.Object(map[string]snapshot.Value{
		"perf": snapshot.Object(map[string]snapshot.Value{"load_ms": snapshot.Number(math.NaN())}),
	})
	err := projector.Validate(subset)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if err := projector.Validate(projector.Project(phase.SEO, mustParse(t, fixture))); err != nil {
		t.Fatalf("expected projected subset to validate: %v", err)
	}
	if err := projector.Validate(snapshot.Number(1)); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for non-object, got %v", err)
	}
}

func TestProjectedSubsetIsSmaller(t *testing.T) {
	snap := mustParse(t, fixture)
	full := projector.Size(snap)
	for _, p := range phase.Scored() {
		if size := projector.Size(projector.Project(p, snap)); size >= full {
			t.Fatalf("%s subset (%d bytes) not smaller than snapshot (%d bytes)", p, size, full)
		}
	}
}
