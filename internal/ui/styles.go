package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/0xlemi/earnote/internal/note"
)

var (
	// Styles
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			PaddingLeft(2).
			PaddingRight(2).
			MarginBottom(1)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#CCCCCC"))

	promptStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA"))

	successStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#00FF00"))

	failureStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FF5555"))

	starStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFD700"))

	// Note colors
	noteColors = map[note.PitchClass]string{
		note.C: "#E8D6B0", // Beige
		note.D: "#A020F0", // Purple
		note.E: "#FFFF00", // Yellow
		note.F: "#FFA500", // Orange
		note.G: "#00FF00", // Green
		note.A: "#FF0000", // Red
		note.B: "#0000FF", // Blue
	}
)

func noteBlock() lipgloss.Style {
	return lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#FAFAFA")).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#333333")).
		PaddingTop(2).
		PaddingBottom(2)
}

// renderNote draws a pitch class as a colored block. Sharps are split between
// the colors of the two naturals around them.
func renderNote(pc note.PitchClass) string {
	if !pc.Valid() {
		return ""
	}
	if !pc.Sharp() {
		return noteBlock().
			Background(lipgloss.Color(noteColors[pc])).
			PaddingLeft(4).
			PaddingRight(4).
			Render(pc.String())
	}

	base := pc.Natural()
	left := noteBlock().
		Background(lipgloss.Color(noteColors[base])).
		BorderLeft(true).
		BorderTop(true).
		BorderBottom(true).
		BorderRight(false).
		PaddingLeft(2).
		PaddingRight(1)
	right := noteBlock().
		Background(lipgloss.Color(noteColors[pc.Transpose(1)])).
		BorderLeft(false).
		BorderTop(true).
		BorderBottom(true).
		BorderRight(true).
		PaddingLeft(1).
		PaddingRight(2)
	return lipgloss.JoinHorizontal(lipgloss.Top, left.Render(base.String()), right.Render("#"))
}

// renderSmall is the inline form used for progress lines.
func renderSmall(pc note.PitchClass) string {
	color := noteColors[pc.Natural()]
	return lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#111111")).
		Background(lipgloss.Color(color)).
		Padding(0, 1).
		Render(pc.String())
}

// meter renders a dB level between -60 and 0 as a bar.
func meter(db float32, width int) string {
	filled := int((db + 60) / 60 * float32(width))
	if filled < 0 {
		filled = 0
	}
	if filled > width {
		filled = width
	}
	return "[" + strings.Repeat("█", filled) + strings.Repeat(" ", width-filled) + "]"
}

func stars(n int) string {
	if n <= 0 {
		return ""
	}
	return starStyle.Render(strings.Repeat("★", n))
}
