package main

import (
	"context"
	"fmt"
	"sort"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	blockchainDI "github.com/fd1az/multichain-arb/business/blockchain/di"
	chain "github.com/fd1az/multichain-arb/business/blockchain/domain"
	marketDI "github.com/fd1az/multichain-arb/business/market/di"
	market "github.com/fd1az/multichain-arb/business/market/domain"
	pricingDI "github.com/fd1az/multichain-arb/business/pricing/di"
	"github.com/fd1az/multichain-arb/internal/monolith"
	"github.com/fd1az/multichain-arb/pkg/ui"
)

const dashboardInterval = time.Second

func runTUI(ctx context.Context, cancel context.CancelFunc, mono monolith.Runtime, modules []monolith.Module) error {
	startSignal := make(chan struct{}, 1)
	ui.OnStartModules = func() {
		select {
		case startSignal <- struct{}{}:
		default:
		}
	}

	// Show the welcome screen before any connection is made
	p := tea.NewProgram(ui.New(), tea.WithAltScreen())
	ui.Program = p

	errCh := make(chan error, 1)
	go func() {
		select {
		case <-startSignal:
		case <-ctx.Done():
			errCh <- nil
			return
		}

		ui.Send(ui.StartupMsg{Step: "config", Status: "done"})
		for _, step := range []string{"chains", "market", "pricing"} {
			ui.Send(ui.StartupMsg{Step: step, Status: "connecting"})
		}

		if err := mono.StartModules(ctx, modules...); err != nil {
			err = fmt.Errorf("failed to start modules: %w", err)
			ui.Send(ui.ErrorMsg{Error: err})
			for _, step := range []string{"chains", "market", "pricing", "engine"} {
				ui.Send(ui.StartupMsg{Step: step, Status: "failed", Message: err.Error()})
			}
			errCh <- err
			return
		}
		for _, step := range []string{"chains", "market", "pricing"} {
			ui.Send(ui.StartupMsg{Step: step, Status: "done"})
		}

		feedDashboard(ctx, mono, ui.Send)
		errCh <- nil
	}()

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	// quitting the dashboard stops the service
	cancel()

	select {
	case err := <-errCh:
		return err
	case <-time.After(5 * time.Second):
		return nil
	}
}

// feedDashboard pushes chain, market and price state to the dashboard until
// ctx is done.
func feedDashboard(ctx context.Context, mono monolith.Runtime, send func(tea.Msg)) {
	ticker := time.NewTicker(dashboardInterval)
	defer ticker.Stop()

	for {
		for _, msg := range dashboardMessages(mono, time.Now()) {
			send(msg)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func dashboardMessages(mono monolith.Runtime, now time.Time) []tea.Msg {
	sr := mono.Services()
	state := marketDI.GetMarketState(sr)
	ingestor := marketDI.GetIngestor(sr)

	statuses := make(map[market.ChainID]chain.ConnectionStatus)
	for _, w := range blockchainDI.GetWatchers(sr).All() {
		statuses[w.Chain().ID] = w.Status()
	}

	var msgs []tea.Msg
	for _, c := range marketDI.GetChainRegistry(sr).All() {
		msg := ui.ChainStatusMsg{
			Chain: c.Name,
			ID:    uint64(c.ID),
			Head:  state.Head(c.ID),
		}
		if f, ok := state.Get(c.ID, market.FeatureGas, market.GasKey(c.ID).Identity); ok && f.Gas != nil {
			msg.GasGwei = f.Gas.PriceGwei.InexactFloat64()
		}
		if st, ok := statuses[c.ID]; ok {
			msg.Connected = st.State == chain.StateConnected
			if !st.LastUpdate.IsZero() {
				msg.Latency = now.Sub(st.LastUpdate)
			}
		} else {
			// feed-only chains count as connected once they have a head
			msg.Connected = msg.Head > 0
		}
		msgs = append(msgs, msg)
	}

	stats := ingestor.Stats()
	msgs = append(msgs, ui.MarketMsg{
		Version:    state.Version(),
		Features:   state.Len(),
		Accepted:   stats.Accepted,
		Duplicates: stats.Duplicate,
		Invalid:    stats.Invalid + stats.Malformed,
	})

	prices := pricingDI.GetPriceBook(sr).Prices()
	sort.Slice(prices, func(i, j int) bool { return prices[i].Base < prices[j].Base })
	for _, p := range prices {
		msgs = append(msgs, ui.PriceMsg{Symbol: p.Base, USD: p.Rate.InexactFloat64(), Source: p.Source})
	}
	return msgs
}
