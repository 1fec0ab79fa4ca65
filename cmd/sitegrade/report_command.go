package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"sitegrade/internal/daemon"
	"sitegrade/internal/report"
)

const renderWidth = 100

func newReportCommand(ctx *commandContext) *cobra.Command {
	var formatFlag string
	var render bool
	cmd := &cobra.Command{
		Use:   "report <evaluation-id>",
		Short: "Generate a billed report for a past evaluation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := ctx.userID()
			if err != nil {
				return err
			}
			format, err := report.ParseFormat(formatFlag)
			if err != nil {
				return err
			}
			return ctx.withRuntime(func(rt *daemon.Runtime) error {
				handle, err := rt.Reports.Generate(cmd.Context(), user, args[0], format)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if !render {
					fmt.Fprintf(out, "Report written to %s (%d bytes)\n", handle.Path, handle.Bytes)
					return nil
				}
				data, err := os.ReadFile(handle.Path)
				if err != nil {
					return fmt.Errorf("read report: %w", err)
				}
				if format != report.FormatMarkdown {
					_, err = out.Write(data)
					return err
				}
				rendered, err := renderMarkdown(string(data), shouldColorize(out))
				if err != nil {
					return err
				}
				fmt.Fprint(out, rendered)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&formatFlag, "format", "f", "markdown", "Report format (markdown, json, yaml)")
	cmd.Flags().BoolVar(&render, "render", false, "Print the report after writing it")
	return cmd
}

// renderMarkdown styles a Markdown report for the terminal. Without a
// terminal the plain ASCII style keeps output free of escape codes.
func renderMarkdown(markdown string, colorize bool) (string, error) {
	style := "dark"
	if !colorize {
		style = "ascii"
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithWordWrap(renderWidth),
		glamour.WithStandardStyle(style),
	)
	if err != nil {
		return "", fmt.Errorf("create markdown renderer: %w", err)
	}
	rendered, err := renderer.Render(markdown)
	if err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return rendered, nil
}
