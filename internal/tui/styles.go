package tui

import "github.com/charmbracelet/lipgloss"

var (
	colorAccent = lipgloss.Color("#49EACB")
	colorMuted  = lipgloss.Color("#6B7280")
	colorError  = lipgloss.Color("#E53935")
	colorCursor = lipgloss.Color("#1E2A3D")
)

// Styles groups the lipgloss styles used by the browser.
type Styles struct {
	Title    lipgloss.Style
	Muted    lipgloss.Style
	Selected lipgloss.Style
	Filter   lipgloss.Style
	Cursor   lipgloss.Style
	Error    lipgloss.Style
	Marker   lipgloss.Style
}

// DefaultStyles returns the browser palette.
func DefaultStyles() Styles {
	return Styles{
		Title:    lipgloss.NewStyle().Bold(true).Foreground(colorAccent),
		Muted:    lipgloss.NewStyle().Foreground(colorMuted),
		Selected: lipgloss.NewStyle().Bold(true).Underline(true),
		Filter:   lipgloss.NewStyle().Foreground(colorAccent),
		Cursor:   lipgloss.NewStyle().Background(colorCursor).Bold(true),
		Error:    lipgloss.NewStyle().Foreground(colorError).Bold(true),
		Marker:   lipgloss.NewStyle().Foreground(colorMuted).Italic(true),
	}
}
