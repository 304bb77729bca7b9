// Package components provides reusable TUI components.
package components

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// PriceRow is one reference price.
type PriceRow struct {
	Symbol  string
	USD     float64
	Source  string
	Updated time.Time
}

// CostBreakdown holds the pre-computed costs of the last selected path.
type CostBreakdown struct {
	Strategy     string
	Path         string
	Chains       string
	NotionalUSD  float64
	GrossUSD     float64
	GasUSD       float64
	BridgeFeeUSD float64
	FlashFeeUSD  float64
	NetUSD       float64
	NetBps       float64
	Confidence   float64
	Staleness    time.Duration
}

// PricesComponent renders reference prices and the last decision's costs.
type PricesComponent struct {
	prices        map[string]PriceRow
	costBreakdown *CostBreakdown
}

// NewPricesComponent creates a new prices component.
func NewPricesComponent() *PricesComponent {
	return &PricesComponent{prices: make(map[string]PriceRow)}
}

// Update sets one symbol's price.
func (p *PricesComponent) Update(row PriceRow) {
	p.prices[row.Symbol] = row
}

// SetCostBreakdown sets the costs of the last selected path.
func (p *PricesComponent) SetCostBreakdown(breakdown CostBreakdown) {
	p.costBreakdown = &breakdown
}

// View renders the prices component.
func (p *PricesComponent) View() string {
	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED"))
	positiveStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981"))
	negativeStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444"))
	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
	warnStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B"))

	var b strings.Builder
	b.WriteString(headerStyle.Render("REFERENCE PRICES"))
	b.WriteString("\n\n")

	if len(p.prices) == 0 {
		b.WriteString(dimStyle.Render("  Waiting for price data...") + "\n")
	} else {
		symbols := make([]string, 0, len(p.prices))
		for s := range p.prices {
			symbols = append(symbols, s)
		}
		sort.Strings(symbols)
		for _, s := range symbols {
			row := p.prices[s]
			b.WriteString(fmt.Sprintf("  %-8s %14s  %s\n", s, fmt.Sprintf("$%.4f", row.USD), dimStyle.Render(row.Source)))
		}
	}

	b.WriteString("\n")
	b.WriteString(dimStyle.Render("  "+strings.Repeat("─", 44)) + "\n")

	cb := p.costBreakdown
	if cb == nil {
		b.WriteString(dimStyle.Render("  Waiting for a decision...") + "\n")
		return b.String()
	}

	b.WriteString(headerStyle.Render("  LAST DECISION") + "\n\n")
	b.WriteString(fmt.Sprintf("  Strategy:   %s\n", dimStyle.Render(cb.Strategy)))
	b.WriteString(fmt.Sprintf("  Path:       %s\n", dimStyle.Render(cb.Path)))
	b.WriteString(fmt.Sprintf("  Chains:     %s\n", dimStyle.Render(cb.Chains)))
	b.WriteString(fmt.Sprintf("  Notional:   %s\n", dimStyle.Render(fmt.Sprintf("$%.2f", cb.NotionalUSD))))
	b.WriteString(fmt.Sprintf("  Gross out:  %s\n", warnStyle.Render(fmt.Sprintf("$%.2f", cb.GrossUSD))))
	b.WriteString(fmt.Sprintf("  Gas:        %s\n", negativeStyle.Render(fmt.Sprintf("-$%.2f", cb.GasUSD))))
	if cb.BridgeFeeUSD > 0 {
		b.WriteString(fmt.Sprintf("  Bridge fee: %s\n", negativeStyle.Render(fmt.Sprintf("-$%.2f", cb.BridgeFeeUSD))))
	}
	if cb.FlashFeeUSD > 0 {
		b.WriteString(fmt.Sprintf("  Flash fee:  %s\n", negativeStyle.Render(fmt.Sprintf("-$%.2f", cb.FlashFeeUSD))))
	}
	b.WriteString(fmt.Sprintf("  Net:        %s\n", positiveStyle.Render(fmt.Sprintf("+$%.2f (%.1f bps)", cb.NetUSD, cb.NetBps))))
	b.WriteString(fmt.Sprintf("  Confidence: %s  staleness %s\n",
		dimStyle.Render(fmt.Sprintf("%.2f", cb.Confidence)),
		dimStyle.Render(cb.Staleness.Round(time.Millisecond).String()),
	))
	return b.String()
}
