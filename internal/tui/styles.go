package tui

import "github.com/charmbracelet/lipgloss"

// Palette uses the standard ANSI colours so it follows the terminal theme.
var (
	colorBorder = lipgloss.ANSIColor(8)
	colorTitle  = lipgloss.ANSIColor(10)
	colorText   = lipgloss.ANSIColor(7)
	colorDim    = lipgloss.ANSIColor(8)
	colorError  = lipgloss.ANSIColor(9)

	// Bar gradient: green -> yellow -> red.
	barLow  = lipgloss.ANSIColor(10)
	barMid  = lipgloss.ANSIColor(11)
	barHigh = lipgloss.ANSIColor(9)
)

var (
	frameStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
			Foreground(colorTitle).
			Bold(true)

	textStyle = lipgloss.NewStyle().Foreground(colorText)
	dimStyle  = lipgloss.NewStyle().Foreground(colorDim)
	errStyle  = lipgloss.NewStyle().Foreground(colorError).Bold(true)

	barLowStyle  = lipgloss.NewStyle().Foreground(barLow)
	barMidStyle  = lipgloss.NewStyle().Foreground(barMid)
	barHighStyle = lipgloss.NewStyle().Foreground(barHigh)
)
