package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"sitegrade/internal/daemon"
	"sitegrade/internal/history"
	"sitegrade/internal/phase"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "history [evaluation-id]",
		Short: "List past evaluations, or show one evaluation's phase results",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := ctx.userID()
			if err != nil {
				return err
			}
			return ctx.withRuntime(func(rt *daemon.Runtime) error {
				out := cmd.OutOrStdout()
				if len(args) == 1 {
					eval, err := rt.Store.GetEvaluation(cmd.Context(), user, args[0])
					if err != nil {
						return err
					}
					results, err := rt.Store.ListPhaseResults(cmd.Context(), user, eval.ID)
					if err != nil {
						return err
					}
					if jsonOutput {
						return writeJSON(cmd, map[string]any{"evaluation": eval, "results": results})
					}
					fmt.Fprintf(out, "%s  %s\n", eval.URL, eval.CreatedAt.Local().Format("2006-01-02 15:04"))
					colorize := shouldColorize(out)
					for _, result := range results {
						fmt.Fprint(out, renderPhaseResult(result, colorize))
					}
					return nil
				}

				evals, err := rt.Store.ListEvaluations(cmd.Context(), user, limit)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, evals)
				}
				if len(evals) == 0 {
					fmt.Fprintln(out, "No evaluations")
					return nil
				}
				results, err := rt.Store.ListPhaseResultsByUser(cmd.Context(), user)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, renderEvaluations(evals, results))
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum evaluations to list")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

// renderEvaluations lists evaluations with their latest completed phase and
// overall score, derived from the user's recorded phase results.
func renderEvaluations(evals []history.Evaluation, results []history.PhaseResult) string {
	byEval := make(map[string][]history.PhaseResult, len(evals))
	for _, result := range results {
		byEval[result.EvaluationID] = append(byEval[result.EvaluationID], result)
	}

	rows := make([][]string, 0, len(evals))
	for _, eval := range evals {
		completed := history.Completed(byEval[eval.ID])
		reached := phase.None
		if len(completed) > 0 {
			reached = completed[len(completed)-1].Phase
		}
		overall := "-"
		if reached.Index() >= phase.Overall.Index() {
			overall = formatScore(history.OverallScore(history.LatestScores(completed)))
		}
		rows = append(rows, []string{
			shortID(eval.ID),
			eval.URL,
			reached.Title(),
			overall,
			eval.CreatedAt.Local().Format("2006-01-02 15:04"),
		})
	}
	return tableSpec{
		headers: []string{"ID", "URL", "Reached", "Overall", "Created"},
		aligns:  []columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
		rows:    rows,
	}.render()
}
