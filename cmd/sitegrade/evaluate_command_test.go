package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"sitegrade/internal/history"
	"sitegrade/internal/phase"
	"sitegrade/internal/services"
	"sitegrade/internal/testsupport"
	"sitegrade/internal/validator"
	"sitegrade/internal/workflow"
)

func newTestManager(t *testing.T, analyzer *testsupport.StubAnalyzer) *workflow.Manager {
	t.Helper()
	cfg := testsupport.NewConfig(t,
		testsupport.WithPricing("1.00", "0.05", "0.50"),
		testsupport.WithStartingBalance("5.00"),
	)
	st := testsupport.MustOpenStore(t, cfg)
	led := testsupport.MustLedger(t, st, cfg)
	return workflow.NewManager(cfg, st, led, workflow.Collaborators{
		Capturer: &testsupport.StubCapturer{Metrics: testsupport.SampleSnapshot(t)},
		Analyzer: analyzer,
		Scorer: &testsupport.StubScorer{Scores: map[phase.Phase]float64{
			phase.Vision:        80,
			phase.UI:            71,
			phase.Functionality: 90,
			phase.Performance:   65,
			phase.SEO:           88,
		}},
		Advisor:     &testsupport.StubAdvisor{},
		Recommender: &testsupport.StubRecommender{Narrative: "Compare against these", Competitors: []string{"https://rival.example"}},
		Fetcher:     &testsupport.StubFetcher{Hang: map[string]bool{}, Errs: map[string]error{}},
	})
}

func TestRunEvaluationThroughRecommendations(t *testing.T) {
	mgr := newTestManager(t, &testsupport.StubAnalyzer{Fail: map[phase.Phase]error{}})
	var out bytes.Buffer

	state, err := runEvaluation(context.Background(), mgr, "alice", "shop.example.com", phase.Recommendations, newEvaluationPrinter(&out, false, false))
	if err != nil {
		t.Fatalf("runEvaluation: %v", err)
	}
	if !state.Complete {
		t.Fatalf("expected complete session, at %s", state.CurrentPhase)
	}
	if state.OverallScore == nil || *state.OverallScore != 79 {
		t.Fatalf("overall = %v, want 79", state.OverallScore)
	}

	text := out.String()
	requireContains(t, text, "Evaluating https://shop.example.com")
	requireContains(t, text, "Vision  80/100")
	requireContains(t, text, "[Good] load_time = 500")
	requireContains(t, text, "Compare against these")
	requireContains(t, text, "captured https://rival.example")
	requireContains(t, text, "recommendations complete")

	table := renderScoreTable(state)
	requireContains(t, table, "Performance")
	requireContains(t, table, "79")
}

func TestRunEvaluationStopsAfterTarget(t *testing.T) {
	mgr := newTestManager(t, &testsupport.StubAnalyzer{Fail: map[phase.Phase]error{}})
	var out bytes.Buffer

	state, err := runEvaluation(context.Background(), mgr, "alice", "https://shop.example.com", phase.UI, newEvaluationPrinter(&out, false, true))
	if err != nil {
		t.Fatalf("runEvaluation: %v", err)
	}
	if state.CurrentPhase != phase.UI || state.Complete {
		t.Fatalf("state at %s complete=%v", state.CurrentPhase, state.Complete)
	}
	if out.Len() != 0 {
		t.Fatalf("quiet printer wrote %q", out.String())
	}
}

func TestRunEvaluationReportsFailedPhase(t *testing.T) {
	analyzer := &testsupport.StubAnalyzer{Fail: map[phase.Phase]error{
		phase.UI: errors.New("model overloaded"),
	}}
	mgr := newTestManager(t, analyzer)
	var out bytes.Buffer

	state, err := runEvaluation(context.Background(), mgr, "alice", "https://shop.example.com", phase.Recommendations, newEvaluationPrinter(&out, false, false))
	if !errors.Is(err, services.ErrCollaborator) {
		t.Fatalf("expected collaborator error, got %v", err)
	}
	if state.CurrentPhase != phase.Vision {
		t.Fatalf("session moved to %s", state.CurrentPhase)
	}
	requireContains(t, out.String(), "failed:")
}

func TestRenderPhaseResult(t *testing.T) {
	score := 72.0
	result := history.PhaseResult{
		Phase:     phase.SEO,
		Narrative: "Titles are tidy.",
		Score:     &score,
		Ratings: []validator.MetricRating{
			{Metric: "title_length", Value: 45, Rating: validator.Good},
			{Metric: "cumulative_layout_shift", Value: 0.125, Rating: validator.NeedsImprovement},
		},
	}

	got := renderPhaseResult(result, false)
	for _, want := range []string{"72/100", "[Good] title_length = 45", "[Needs Improvement] cumulative_layout_shift = 0.13", "Titles are tidy."} {
		if !strings.Contains(got, want) {
			t.Fatalf("render missing %q:\n%s", want, got)
		}
	}

	result.Error = "timeout"
	if got := renderPhaseResult(result, false); !strings.Contains(got, "failed: timeout") {
		t.Fatalf("failed render = %q", got)
	}
}

func TestRatingBadgePlain(t *testing.T) {
	tests := []struct {
		rating validator.Rating
		want   string
	}{
		{validator.Good, "[Good]"},
		{validator.NeedsImprovement, "[Needs Improvement]"},
		{validator.Poor, "[Poor]"},
	}
	for _, tt := range tests {
		if got := ratingBadge(tt.rating, false); got != tt.want {
			t.Fatalf("ratingBadge(%s) = %q, want %q", tt.rating, got, tt.want)
		}
	}
}

func TestTableSpecRender(t *testing.T) {
	out := tableSpec{
		headers: []string{"Phase", "Score"},
		aligns:  []columnAlignment{alignLeft, alignRight},
		rows:    [][]string{{"Vision Analysis", "80"}, {"SEO"}},
		footer:  []string{"Overall", "79"},
	}.render()
	requireContains(t, out, "Vision Analysis")
	requireContains(t, out, "╭")
	requireContains(t, out, "Overall")
	if strings.Contains(out, "OVERALL") {
		t.Fatalf("footer should keep its case, got:\n%s", out)
	}
	if strings.Index(out, "Overall") < strings.Index(out, "SEO") {
		t.Fatalf("footer rendered before rows:\n%s", out)
	}
	if (tableSpec{}).render() != "" {
		t.Fatal("expected empty table without headers")
	}
}

func TestWriteJSONKeepsQueryStrings(t *testing.T) {
	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)
	if err := writeJSON(cmd, map[string]string{"url": "https://shop.example.com/?a=1&b=<2>"}); err != nil {
		t.Fatalf("writeJSON: %v", err)
	}
	requireContains(t, out.String(), "?a=1&b=<2>")
}

func TestRenderMarkdownPlain(t *testing.T) {
	out, err := renderMarkdown("# Report\n\nAll good.", false)
	if err != nil {
		t.Fatalf("renderMarkdown: %v", err)
	}
	requireContains(t, out, "Report")
	requireContains(t, out, "All good.")
}
