// Package ui provides the Bubble Tea dashboard for the arbitrage service.
package ui

import "github.com/charmbracelet/lipgloss"

// Palette
var (
	ColorPrimary   = lipgloss.Color("#0EA5E9") // sky
	ColorSecondary = lipgloss.Color("#22C55E") // green
	ColorDanger    = lipgloss.Color("#F43F5E") // rose
	ColorWarning   = lipgloss.Color("#EAB308") // yellow
	colorMuted     = lipgloss.Color("#64748B")
	colorBorder    = lipgloss.Color("#334155")
)

var (
	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 1)

	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#F8FAFC")).
			Background(ColorPrimary).
			Padding(0, 2)

	// Chain connection states
	StatusConnected    = lipgloss.NewStyle().Foreground(ColorSecondary).Bold(true)
	StatusDisconnected = lipgloss.NewStyle().Foreground(ColorDanger).Bold(true)
	StatusReconnecting = lipgloss.NewStyle().Foreground(ColorWarning).Bold(true)

	PositiveValue = lipgloss.NewStyle().Foreground(ColorSecondary)
	MutedValue    = lipgloss.NewStyle().Foreground(colorMuted)

	HelpStyle = lipgloss.NewStyle().
			Foreground(colorMuted).
			Padding(0, 1)
)
