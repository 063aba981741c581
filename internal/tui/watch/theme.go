// Package watch implements the live delivery tail TUI. It connects to a
// running receiver's SSE /events endpoint and renders accepted payloads
// as they arrive.
package watch

import "github.com/charmbracelet/lipgloss"

// Theme centralizes styling for the watch TUI.
type Theme struct {
	Border    lipgloss.Style
	Title     lipgloss.Style
	Dim       lipgloss.Style
	Highlight lipgloss.Style
	OK        lipgloss.Style
	Failed    lipgloss.Style
}

func NewDefaultTheme() Theme {
	return Theme{
		Border: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#874BFD")),
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Padding(0, 1),
		Dim:       lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")),
		Highlight: lipgloss.NewStyle().Foreground(lipgloss.Color("#E5C07B")),
		OK:        lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00")),
		Failed:    lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000")),
	}
}
