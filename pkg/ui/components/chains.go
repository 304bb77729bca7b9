// Package components provides reusable TUI components.
package components

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// ChainStatus is the latest known state of one chain.
type ChainStatus struct {
	Name       string
	ID         uint64
	Connected  bool
	Latency    time.Duration
	Head       uint64
	GasGwei    float64
	LastUpdate time.Time
}

// ChainsComponent renders one row per watched chain.
type ChainsComponent struct {
	chains map[uint64]ChainStatus
}

// NewChainsComponent creates a new chains component.
func NewChainsComponent() *ChainsComponent {
	return &ChainsComponent{chains: make(map[uint64]ChainStatus)}
}

// Update replaces a chain's status. A zero head or gas keeps the previous value.
func (c *ChainsComponent) Update(status ChainStatus) {
	if prev, ok := c.chains[status.ID]; ok {
		if status.Head == 0 {
			status.Head = prev.Head
		}
		if status.GasGwei == 0 {
			status.GasGwei = prev.GasGwei
		}
	}
	c.chains[status.ID] = status
}

// Len returns the number of chains seen.
func (c *ChainsComponent) Len() int {
	return len(c.chains)
}

// Connected returns how many chains are connected.
func (c *ChainsComponent) Connected() int {
	n := 0
	for _, s := range c.chains {
		if s.Connected {
			n++
		}
	}
	return n
}

// View renders the chains component.
func (c *ChainsComponent) View() string {
	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED"))
	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
	upStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981"))
	downStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444"))

	var b strings.Builder
	b.WriteString(headerStyle.Render("CHAINS"))
	b.WriteString("\n\n")

	if len(c.chains) == 0 {
		b.WriteString(dimStyle.Render("  Waiting for chain watchers..."))
		return b.String()
	}

	ids := make([]uint64, 0, len(c.chains))
	for id := range c.chains {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	b.WriteString(fmt.Sprintf("  %-10s  %12s  %12s  %10s\n", "Chain", "Head", "Gas (gwei)", "Latency"))
	b.WriteString(dimStyle.Render("  "+strings.Repeat("─", 50)) + "\n")
	for _, id := range ids {
		s := c.chains[id]
		icon, style := "●", upStyle
		if !s.Connected {
			icon, style = "○", downStyle
		}
		latency := "-"
		if s.Connected && s.Latency > 0 {
			latency = s.Latency.Round(time.Millisecond).String()
		}
		b.WriteString(fmt.Sprintf("%s %-10s  %12s  %12s  %10s\n",
			style.Render(icon),
			s.Name,
			fmt.Sprintf("#%d", s.Head),
			fmt.Sprintf("%.3f", s.GasGwei),
			latency,
		))
	}
	return b.String()
}
