package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"sitegrade/internal/daemon"
	"sitegrade/internal/history"
	"sitegrade/internal/phase"
	"sitegrade/internal/recommend"
	"sitegrade/internal/snapshot"
	"sitegrade/internal/workflow"
)

func newEvaluateCommand(ctx *commandContext) *cobra.Command {
	var stopAfter string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "evaluate <url>",
		Short: "Run an evaluation through every phase",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := ctx.userID()
			if err != nil {
				return err
			}
			target := phase.Recommendations
			if strings.TrimSpace(stopAfter) != "" {
				target, err = phase.Parse(stopAfter)
				if err != nil {
					return err
				}
			}
			return ctx.withRuntime(func(rt *daemon.Runtime) error {
				out := cmd.OutOrStdout()
				state, err := runEvaluation(cmd.Context(), rt.Manager, user, args[0], target, newEvaluationPrinter(out, shouldColorize(out), jsonOutput))
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, state)
				}
				fmt.Fprintln(out)
				fmt.Fprintln(out, renderScoreTable(state))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&stopAfter, "until", "", "Stop after this phase (vision, ui, functionality, performance, seo, overall, recommendations)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the final session as JSON")
	return cmd
}

// evaluator is the slice of workflow.Manager the command drives.
type evaluator interface {
	StartSession(ctx context.Context, userID, rawURL string) (string, error)
	Advance(ctx context.Context, id string) (workflow.Outcome, error)
	State(id string) (workflow.SessionState, error)
}

// runEvaluation starts a session and advances it until target is recorded.
// A failed phase stops the run and returns its error.
func runEvaluation(ctx context.Context, ev evaluator, userID, rawURL string, target phase.Phase, printer *evaluationPrinter) (workflow.SessionState, error) {
	id, err := ev.StartSession(ctx, userID, rawURL)
	if err != nil {
		return workflow.SessionState{}, err
	}
	state, err := ev.State(id)
	if err != nil {
		return workflow.SessionState{}, err
	}
	printer.started(state)

	for {
		next, ok := state.NextPhase()
		if !ok || state.CurrentPhase.Index() >= target.Index() {
			return state, nil
		}
		outcome, err := ev.Advance(ctx, id)
		if err != nil {
			var phaseErr *workflow.PhaseError
			if errors.As(err, &phaseErr) {
				printer.phaseResult(phaseErr.Result)
			}
			return state, err
		}
		if outcome.Stream != nil {
			if err := printer.stream(ctx, outcome.Stream); err != nil {
				return state, err
			}
		} else if outcome.Result != nil {
			printer.phaseResult(*outcome.Result)
		}
		state, err = ev.State(id)
		if err != nil {
			return state, err
		}
		if state.CurrentPhase != next {
			return state, fmt.Errorf("phase %s did not complete", next)
		}
	}
}

type evaluationPrinter struct {
	out      io.Writer
	colorize bool
	quiet    bool
}

func newEvaluationPrinter(out io.Writer, colorize, quiet bool) *evaluationPrinter {
	return &evaluationPrinter{out: out, colorize: colorize, quiet: quiet}
}

func (p *evaluationPrinter) started(state workflow.SessionState) {
	if p.quiet {
		return
	}
	fmt.Fprintf(p.out, "Evaluating %s\n", state.URL)
	fmt.Fprintln(p.out, styled(mutedStyle, fmt.Sprintf("session %s · evaluation %s", state.ID, state.EvaluationID), p.colorize))
}

func (p *evaluationPrinter) phaseResult(result history.PhaseResult) {
	if p.quiet {
		return
	}
	fmt.Fprint(p.out, renderPhaseResult(result, p.colorize))
}

func (p *evaluationPrinter) stream(ctx context.Context, relay *workflow.Relay) error {
	if !p.quiet {
		fmt.Fprintln(p.out)
		fmt.Fprintln(p.out, styled(phaseTitleStyle, phase.Recommendations.Title(), p.colorize))
	}
	for event := range relay.Events() {
		if p.quiet {
			continue
		}
		switch e := event.(type) {
		case recommend.Update:
			fmt.Fprintln(p.out, strings.TrimSpace(e.Narrative))
		case recommend.Screenshot:
			fmt.Fprintf(p.out, "  captured %s (%d bytes)\n", e.URL, len(e.Image))
		case recommend.ScreenshotError:
			fmt.Fprintf(p.out, "  skipped %s: %s\n", e.URL, e.Reason)
		case recommend.Done:
			fmt.Fprintln(p.out, styled(mutedStyle, "recommendations complete", p.colorize))
		}
	}
	return relay.Wait(ctx)
}

func renderPhaseResult(result history.PhaseResult, colorize bool) string {
	var b strings.Builder
	b.WriteString("\n")
	title := result.Phase.Title()
	if result.Score != nil {
		title = fmt.Sprintf("%s  %.0f/100", title, *result.Score)
	}
	b.WriteString(styled(phaseTitleStyle, title, colorize))
	b.WriteString("\n")
	if result.Failed() {
		fmt.Fprintf(&b, "failed: %s\n", result.Error)
		return b.String()
	}
	for _, rating := range result.Ratings {
		fmt.Fprintf(&b, "  %s %s = %s\n", ratingBadge(rating.Rating, colorize), rating.Metric, formatMetric(rating.Value))
	}
	if narrative := strings.TrimSpace(result.Narrative); narrative != "" {
		b.WriteString(narrative)
		b.WriteString("\n")
	}
	return b.String()
}

func formatMetric(value float64) string {
	if value == float64(int64(value)) {
		return fmt.Sprintf("%d", int64(value))
	}
	return fmt.Sprintf("%.2f", value)
}

func renderScoreTable(state workflow.SessionState) string {
	spec := tableSpec{
		headers: []string{"Phase", "Score", "Metrics"},
		aligns:  []columnAlignment{alignLeft, alignRight, alignRight},
	}
	for _, result := range state.Results {
		if !result.Phase.IsScored() {
			continue
		}
		spec.rows = append(spec.rows, []string{result.Phase.Title(), formatScore(result.Score), metricCount(result.Metrics)})
	}
	if state.OverallScore != nil {
		spec.footer = []string{phase.Overall.Title(), formatScore(state.OverallScore)}
	}
	return spec.render()
}

func formatScore(score *float64) string {
	if score == nil {
		return "-"
	}
	return fmt.Sprintf("%.0f", *score)
}

func metricCount(v snapshot.Value) string {
	if v.Kind() != snapshot.KindObject {
		return ""
	}
	return fmt.Sprintf("%d", len(v.Keys()))
}
