package main

import (
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"sitegrade/internal/report"
	"sitegrade/internal/validator"
)

var (
	colorGood  = lipgloss.Color("#9ece6a")
	colorWarn  = lipgloss.Color("#e0af68")
	colorPoor  = lipgloss.Color("#f7768e")
	colorTitle = lipgloss.Color("#7aa2f7")
	colorMuted = lipgloss.Color("#565f89")

	badgeBase = lipgloss.NewStyle().Bold(true).Padding(0, 1)

	ratingStyles = map[validator.Rating]lipgloss.Style{
		validator.Good:             badgeBase.Foreground(lipgloss.Color("#1a1b26")).Background(colorGood),
		validator.NeedsImprovement: badgeBase.Foreground(lipgloss.Color("#1a1b26")).Background(colorWarn),
		validator.Poor:             badgeBase.Foreground(lipgloss.Color("#1a1b26")).Background(colorPoor),
	}

	phaseTitleStyle = lipgloss.NewStyle().Foreground(colorTitle).Bold(true)
	mutedStyle      = lipgloss.NewStyle().Foreground(colorMuted)
)

// ratingBadge renders a rating label, coloured only on a terminal.
func ratingBadge(rating validator.Rating, colorize bool) string {
	label := report.RatingLabel(string(rating))
	if !colorize {
		return "[" + label + "]"
	}
	style, ok := ratingStyles[rating]
	if !ok {
		return label
	}
	return style.Render(label)
}

func styled(style lipgloss.Style, value string, colorize bool) string {
	if !colorize {
		return value
	}
	return style.Render(value)
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
