package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"sitegrade/internal/services"
)

// Format selects the report encoding.
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatJSON     Format = "json"
	FormatYAML     Format = "yaml"
)

// ParseFormat accepts a format name or common file extension. Empty selects
// Markdown.
func ParseFormat(value string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "markdown", "md":
		return FormatMarkdown, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", services.Wrap(services.ErrValidation, "report", "parse format", fmt.Sprintf("unsupported format %q", value), nil)
	}
}

// Extension returns the file extension for f.
func (f Format) Extension() string {
	switch f {
	case FormatJSON:
		return ".json"
	case FormatYAML:
		return ".yaml"
	default:
		return ".md"
	}
}

// Render encodes doc in format f.
func Render(doc Document, f Format) ([]byte, error) {
	switch f {
	case FormatJSON:
		data, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(data, '\n'), nil
	case FormatYAML:
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return nil, err
		}
		if err := enc.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return []byte(renderMarkdown(doc)), nil
	}
}

var titleCaser = cases.Title(language.English)

func renderMarkdown(doc Document) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Website evaluation: %s\n\n", doc.URL)
	fmt.Fprintf(&b, "- Evaluation: `%s`\n", doc.EvaluationID)
	fmt.Fprintf(&b, "- Evaluated: %s\n", doc.EvaluatedAt.Format("2006-01-02 15:04 MST"))
	fmt.Fprintf(&b, "- Overall score: %s\n", formatScore(doc.OverallScore))
	fmt.Fprintf(&b, "- Ratings: %d good, %d needs improvement, %d poor\n\n",
		doc.Summary.Good, doc.Summary.NeedsImprovement, doc.Summary.Poor)

	scores := table.NewWriter()
	scores.AppendHeader(table.Row{"Phase", "Score"})
	for _, section := range doc.Phases {
		if section.Score == nil {
			continue
		}
		scores.AppendRow(table.Row{section.Title, formatScore(section.Score)})
	}
	if scores.Length() > 0 {
		b.WriteString("## Scores\n\n")
		b.WriteString(scores.RenderMarkdown())
		b.WriteString("\n\n")
	}

	for _, section := range doc.Phases {
		fmt.Fprintf(&b, "## %s\n\n", section.Title)
		if section.Score != nil {
			fmt.Fprintf(&b, "**Score:** %s\n\n", formatScore(section.Score))
		}
		if narrative := strings.TrimSpace(section.Narrative); narrative != "" {
			b.WriteString(narrative)
			b.WriteString("\n\n")
		}
		if len(section.Ratings) > 0 {
			b.WriteString(ratingsTable(section))
			b.WriteString("\n\n")
		}
	}
	fmt.Fprintf(&b, "_Generated %s_\n", doc.GeneratedAt.Format("2006-01-02 15:04 MST"))
	return b.String()
}

func ratingsTable(section Section) string {
	tw := table.NewWriter()
	tw.AppendHeader(table.Row{"Metric", "Value", "Rating", "Target"})
	for _, r := range section.Ratings {
		tw.AppendRow(table.Row{r.Metric, strconv.FormatFloat(r.Value, 'f', -1, 64), RatingLabel(string(r.Rating)), r.Target})
	}
	return tw.RenderMarkdown()
}

// RatingLabel turns a rating such as "needs-improvement" into
// "Needs Improvement".
func RatingLabel(rating string) string {
	return titleCaser.String(strings.ReplaceAll(rating, "-", " "))
}

func formatScore(score *float64) string {
	if score == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.0f/100", *score)
}
