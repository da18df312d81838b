package tui

import "github.com/charmbracelet/lipgloss"

var (
	// Colors
	colorPrimary   = lipgloss.Color("12")  // bright blue
	colorSecondary = lipgloss.Color("10")  // bright green
	colorDim       = lipgloss.Color("240") // gray
	colorHighlight = lipgloss.Color("11")  // bright yellow
	colorError     = lipgloss.Color("9")   // bright red
	colorBorder    = lipgloss.Color("238") // dark gray

	// Header
	styleTitle = lipgloss.NewStyle().
			Foreground(colorPrimary).
			Bold(true)

	styleSummary = lipgloss.NewStyle().
			Foreground(colorDim)

	// Frame panel
	stylePanelBorder = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(colorBorder)

	styleEmpty = lipgloss.NewStyle().
			Foreground(colorDim).
			Italic(true)

	// Scrub bar
	styleTrack = lipgloss.NewStyle().
			Foreground(colorBorder)

	styleInterval = lipgloss.NewStyle().
			Foreground(colorSecondary)

	styleCursor = lipgloss.NewStyle().
			Foreground(colorHighlight).
			Bold(true)

	// Info line
	stylePlaying = lipgloss.NewStyle().
			Foreground(colorSecondary).
			Bold(true)

	styleLabel = lipgloss.NewStyle().
			Foreground(colorDim)

	// Status bar
	styleStatusBar = lipgloss.NewStyle().
			Foreground(colorDim).
			Padding(0, 1)

	styleStatusError = lipgloss.NewStyle().
				Foreground(colorError).
				Padding(0, 1)
)
