// Package components provides reusable TUI components.
package components

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

// Stats holds statistics for display.
type Stats struct {
	Cycles     uint64
	Selected   uint64
	Aborted    uint64
	Candidates uint64
	Rejected   uint64
	Features   int
	Accepted   uint64
	Duplicates uint64
	Invalid    uint64
	AvgCycleMs float64
}

// StatsComponent renders statistics.
type StatsComponent struct {
	stats Stats
}

// NewStatsComponent creates a new stats component.
func NewStatsComponent() *StatsComponent {
	return &StatsComponent{}
}

// Update replaces the statistics.
func (s *StatsComponent) Update(stats Stats) {
	s.stats = stats
}

// Stats returns the current statistics.
func (s *StatsComponent) Stats() Stats {
	return s.stats
}

// View renders the stats component.
func (s *StatsComponent) View() string {
	style := lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
	valueStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFFFF")).Bold(true)
	errorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")).Bold(true)

	selectedRate := float64(0)
	if s.stats.Cycles > 0 {
		selectedRate = float64(s.stats.Selected) / float64(s.stats.Cycles) * 100
	}

	aborted := valueStyle.Render(fmt.Sprintf("%d", s.stats.Aborted))
	if s.stats.Aborted > 0 {
		aborted = errorStyle.Render(fmt.Sprintf("%d", s.stats.Aborted))
	}

	return style.Render("STATS") + "\n" +
		fmt.Sprintf("Cycles: %s  │  Selected: %s (%.1f%%)  │  Aborted: %s  │  Avg cycle: %s\n",
			valueStyle.Render(fmt.Sprintf("%d", s.stats.Cycles)),
			valueStyle.Render(fmt.Sprintf("%d", s.stats.Selected)),
			selectedRate,
			aborted,
			valueStyle.Render(fmt.Sprintf("%.0fms", s.stats.AvgCycleMs)),
		) +
		fmt.Sprintf("Candidates: %s  │  Rejected: %s  │  Features: %s  │  Dup/Invalid: %s",
			valueStyle.Render(fmt.Sprintf("%d", s.stats.Candidates)),
			valueStyle.Render(fmt.Sprintf("%d", s.stats.Rejected)),
			valueStyle.Render(fmt.Sprintf("%d", s.stats.Features)),
			valueStyle.Render(fmt.Sprintf("%d/%d", s.stats.Duplicates, s.stats.Invalid)),
		)
}
