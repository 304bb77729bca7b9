// Package components provides reusable TUI components.
package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// DecisionRow is one cycle that selected a candidate.
type DecisionRow struct {
	Time       string
	Cycle      uint64
	Strategy   string
	Path       string
	NetUSD     float64
	NetBps     float64
	Confidence float64
	Published  bool
}

// DecisionsComponent renders the most recent decisions, newest first.
type DecisionsComponent struct {
	rows    []DecisionRow
	maxRows int
	visible int
	offset  int
}

// NewDecisionsComponent creates a component keeping maxRows decisions and
// showing visible of them at a time.
func NewDecisionsComponent(maxRows, visible int) *DecisionsComponent {
	return &DecisionsComponent{
		rows:    make([]DecisionRow, 0, maxRows),
		maxRows: maxRows,
		visible: visible,
	}
}

// Add prepends a decision.
func (d *DecisionsComponent) Add(row DecisionRow) {
	d.rows = append([]DecisionRow{row}, d.rows...)
	if len(d.rows) > d.maxRows {
		d.rows = d.rows[:d.maxRows]
	}
}

// Len returns the number of stored decisions.
func (d *DecisionsComponent) Len() int {
	return len(d.rows)
}

// Clear clears all decisions.
func (d *DecisionsComponent) Clear() {
	d.rows = d.rows[:0]
	d.offset = 0
}

// ScrollUp moves the window towards newer decisions.
func (d *DecisionsComponent) ScrollUp() {
	if d.offset > 0 {
		d.offset--
	}
}

// ScrollDown moves the window towards older decisions.
func (d *DecisionsComponent) ScrollDown() {
	if d.offset+d.visible < len(d.rows) {
		d.offset++
	}
}

// View renders the decisions component.
func (d *DecisionsComponent) View() string {
	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED"))
	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
	publishedStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981"))
	heldStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B"))

	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf("DECISIONS (%d)", len(d.rows))))
	b.WriteString("\n\n")

	if len(d.rows) == 0 {
		b.WriteString(dimStyle.Render("  No candidate selected yet..."))
		return b.String()
	}

	end := d.offset + d.visible
	if end > len(d.rows) {
		end = len(d.rows)
	}
	for _, row := range d.rows[d.offset:end] {
		status := publishedStyle.Render("✓ sent")
		if !row.Published {
			status = heldStyle.Render("• held")
		}
		b.WriteString(fmt.Sprintf("  %s #%-6d %-10s %9s %8s  c=%.2f  %s\n",
			row.Time,
			row.Cycle,
			row.Strategy,
			fmt.Sprintf("$%.2f", row.NetUSD),
			fmt.Sprintf("%.1fbp", row.NetBps),
			row.Confidence,
			status,
		))
		b.WriteString(dimStyle.Render("      "+row.Path) + "\n")
	}
	if len(d.rows) > d.visible {
		b.WriteString(dimStyle.Render(fmt.Sprintf("  %d-%d of %d", d.offset+1, end, len(d.rows))))
	}
	return b.String()
}
