package tui

import "github.com/charmbracelet/lipgloss"

var (
	colorPrimary = lipgloss.Color("#7D56F4")
	colorAccent  = lipgloss.Color("#F4A956")
	colorText    = lipgloss.Color("#FAFAFA")
	colorSubtext = lipgloss.Color("#777777")
	colorGood    = lipgloss.Color("#43BF6D")

	styleTitle = lipgloss.NewStyle().
			Background(colorPrimary).
			Foreground(colorText).
			Bold(true).
			Padding(0, 1)

	styleStat = lipgloss.NewStyle().
			Foreground(colorAccent).
			Bold(true)

	styleLabel = lipgloss.NewStyle().
			Foreground(colorSubtext)

	styleFooter = lipgloss.NewStyle().
			Foreground(colorSubtext).
			MarginTop(1)

	styleStale = lipgloss.NewStyle().Foreground(colorSubtext)
	styleFresh = lipgloss.NewStyle().Foreground(colorGood)
)
