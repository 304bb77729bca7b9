package infra

import (
	"context"
	"fmt"
	"time"

	"github.com/fd1az/multichain-arb/business/arbitrage/app"
	market "github.com/fd1az/multichain-arb/business/market/domain"
	"github.com/fd1az/multichain-arb/pkg/ui"
)

// TUIReporter implements Reporter for the Bubble Tea TUI.
type TUIReporter struct {
	chains *market.ChainRegistry
	send   func(msg any)
}

// NewTUIReporter creates a reporter that sends to the running program.
func NewTUIReporter(chains *market.ChainRegistry) *TUIReporter {
	if chains == nil {
		chains = market.DefaultChains()
	}
	return &TUIReporter{chains: chains, send: func(msg any) { ui.Send(msg) }}
}

// Start marks the engine step as starting.
func (r *TUIReporter) Start(ctx context.Context) error {
	r.send(ui.StartupMsg{Step: "engine", Status: "connecting"})
	return nil
}

// Report sends the cycle to the TUI.
func (r *TUIReporter) Report(rep app.CycleReport) {
	r.send(r.message(rep))
	for name, err := range rep.DetectorFailures {
		r.send(ui.ErrorMsg{Error: fmt.Errorf("detector %s: %w", name, err)})
	}
}

func (r *TUIReporter) message(rep app.CycleReport) ui.CycleMsg {
	msg := ui.CycleMsg{
		Cycle:      rep.Cycle,
		Trigger:    rep.Trigger,
		Version:    rep.SnapshotVersion,
		Duration:   rep.Duration,
		Candidates: rep.Candidates,
		Evaluated:  rep.Evaluated,
		Rejected:   rejectedTotal(rep.Rejected),
		Failures:   len(rep.DetectorFailures),
		Aborted:    rep.Aborted(),
	}
	for _, n := range rep.Filtered {
		msg.Filtered += n
	}
	if rep.Err != nil {
		msg.Err = rep.Err.Error()
	}
	if best := rep.Best; best != nil {
		msg.Block = best.Candidate.BlockNumber
		msg.Best = &ui.DecisionView{
			Strategy:     best.Candidate.Strategy,
			Path:         describePath(best.Candidate, r.chains),
			Chains:       describeChains(best.Candidate, r.chains),
			NotionalUSD:  best.NotionalUSD.InexactFloat64(),
			GrossUSD:     best.GrossOutputUSD.InexactFloat64(),
			GasUSD:       best.Costs.GasUSD.InexactFloat64(),
			BridgeFeeUSD: best.Costs.BridgeFeeUSD.InexactFloat64(),
			FlashFeeUSD:  best.Costs.FlashLoanFeeUSD.InexactFloat64(),
			NetUSD:       best.NetProfitUSD.InexactFloat64(),
			NetBps:       best.NetProfitBps.InexactFloat64(),
			Confidence:   best.Confidence,
			Staleness:    best.Staleness.Round(time.Millisecond),
			Published:    rep.Published,
		}
	}
	return msg
}

// Stop is a no-op; the program is owned by main.
func (r *TUIReporter) Stop() error {
	return nil
}
