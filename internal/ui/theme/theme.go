package theme

import (
	"charm.land/lipgloss/v2"
)

// Color palette
var (
	Primary   = lipgloss.Color("#8B5CF6") // Vivid Purple
	Secondary = lipgloss.Color("#14B8A6") // Teal
	Accent    = lipgloss.Color("#F97316") // Orange
	Success   = lipgloss.Color("#22C55E") // Green
	Warning   = lipgloss.Color("#EAB308") // Amber
	Error     = lipgloss.Color("#F43F5E") // Rose
	Text      = lipgloss.Color("#F8FAFC") // White
	TextDim   = lipgloss.Color("#94A3B8") // Slate
	Border    = lipgloss.Color("#334155") // Slate
)

// Typography
var (
	Title = lipgloss.NewStyle().
		Bold(true).
		Foreground(Primary)

	Subtitle = lipgloss.NewStyle().
			Foreground(TextDim)

	Body = lipgloss.NewStyle().
		Foreground(Text)

	Hint = lipgloss.NewStyle().
		Foreground(TextDim).
		Italic(true)

	Label = lipgloss.NewStyle().
		Bold(true).
		Foreground(Secondary)
)

// Layout
var (
	Card = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(Border).
		Padding(0, 1)
)

// Citations
var (
	Timestamp = lipgloss.NewStyle().
			Foreground(Accent).
			Bold(true)

	Grounded = lipgloss.NewStyle().
			Foreground(Success).
			Bold(true)

	Ungrounded = lipgloss.NewStyle().
			Foreground(Warning).
			Bold(true)
)

// ScoreColor picks a color for a score on a min..max scale.
func ScoreColor(score, lo, hi int) lipgloss.Style {
	s := lipgloss.NewStyle().Bold(true)
	if hi <= lo {
		return s.Foreground(Text)
	}
	switch frac := float64(score-lo) / float64(hi-lo); {
	case frac >= 0.75:
		return s.Foreground(Success)
	case frac >= 0.4:
		return s.Foreground(Warning)
	default:
		return s.Foreground(Error)
	}
}
