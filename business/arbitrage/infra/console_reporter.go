// Package infra contains infrastructure adapters for the arbitrage context.
package infra

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/fd1az/multichain-arb/business/arbitrage/app"
	market "github.com/fd1az/multichain-arb/business/market/domain"
)

// ConsoleReporter implements Reporter for CLI output.
type ConsoleReporter struct {
	out     io.Writer
	chains  *market.ChainRegistry
	verbose bool
	mu      sync.Mutex
}

// NewConsoleReporter creates a reporter writing to stdout. Verbose prints a
// line for cycles that selected nothing.
func NewConsoleReporter(chains *market.ChainRegistry, verbose bool) *ConsoleReporter {
	return NewConsoleReporterTo(os.Stdout, chains, verbose)
}

// NewConsoleReporterTo creates a reporter writing to out.
func NewConsoleReporterTo(out io.Writer, chains *market.ChainRegistry, verbose bool) *ConsoleReporter {
	if chains == nil {
		chains = market.DefaultChains()
	}
	return &ConsoleReporter{out: out, chains: chains, verbose: verbose}
}

// Start prints the banner.
func (r *ConsoleReporter) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(r.out, "Multi-chain Arbitrage Started")
	fmt.Fprintln(r.out, "=============================")
	return nil
}

// Report prints a cycle outcome.
func (r *ConsoleReporter) Report(rep app.CycleReport) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rep.Aborted() {
		fmt.Fprintf(r.out, "[%s] cycle %d aborted after %s: %v\n",
			rep.StartedAt.Format("15:04:05"), rep.Cycle, rep.Duration.Round(time.Millisecond), rep.Err)
		return
	}
	if rep.Best == nil {
		if r.verbose {
			fmt.Fprintf(r.out, "[%s] cycle %d (%s): %d candidates, %d rejected, nothing selected\n",
				rep.StartedAt.Format("15:04:05"), rep.Cycle, rep.Trigger, rep.Candidates, rejectedTotal(rep.Rejected))
		}
		return
	}

	best := rep.Best
	fmt.Fprintln(r.out, "")
	fmt.Fprintln(r.out, "================================================================================")
	fmt.Fprintln(r.out, "ARBITRAGE OPPORTUNITY SELECTED")
	fmt.Fprintln(r.out, "================================================================================")
	fmt.Fprintf(r.out, "Cycle:          #%d (%s, snapshot v%d)\n", rep.Cycle, rep.Trigger, rep.SnapshotVersion)
	fmt.Fprintf(r.out, "Timestamp:      %s\n", rep.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(r.out, "Strategy:       %s (%s)\n", best.Candidate.Strategy, best.Candidate.Detector)
	fmt.Fprintf(r.out, "Candidate:      %s\n", best.Candidate.ID)
	fmt.Fprintf(r.out, "Chains:         %s\n", describeChains(best.Candidate, r.chains))
	fmt.Fprintln(r.out, "--------------------------------------------------------------------------------")
	fmt.Fprintln(r.out, "PATH")
	for i, l := range best.Candidate.Legs {
		fmt.Fprintf(r.out, "  %d. %-10s %s > %s on %s\n", i+1, l.Kind, l.AssetIn, l.AssetOut, r.chains.Name(l.Chain))
	}
	fmt.Fprintln(r.out, "--------------------------------------------------------------------------------")
	fmt.Fprintln(r.out, "COSTS")
	fmt.Fprintf(r.out, "  Notional:       $%s (%s %s)\n", best.NotionalUSD.StringFixed(2), best.AmountIn.String(), best.Candidate.InputAsset())
	fmt.Fprintf(r.out, "  Gross output:   $%s (%s %s)\n", best.GrossOutputUSD.StringFixed(2), best.GrossOutput.StringFixed(6), best.OutputAsset)
	fmt.Fprintf(r.out, "  Gas:            $%s\n", best.Costs.GasUSD.StringFixed(2))
	if best.Costs.BridgeFeeUSD.IsPositive() {
		fmt.Fprintf(r.out, "  Bridge fee:     $%s\n", best.Costs.BridgeFeeUSD.StringFixed(2))
	}
	if best.FlashLoan != nil {
		fmt.Fprintf(r.out, "  Flash loan:     $%s (%s)\n", best.Costs.FlashLoanFeeUSD.StringFixed(2), best.FlashLoan.Provider)
	}
	fmt.Fprintf(r.out, "  Slippage:       %s bps\n", best.Costs.SlippageBps.StringFixed(1))
	fmt.Fprintln(r.out, "--------------------------------------------------------------------------------")
	fmt.Fprintln(r.out, "PROFIT")
	fmt.Fprintf(r.out, "  Net:            $%s (%s bps)\n", best.NetProfitUSD.StringFixed(2), best.NetProfitBps.StringFixed(1))
	fmt.Fprintf(r.out, "  Confidence:     %.2f\n", best.Confidence)
	fmt.Fprintf(r.out, "  Staleness:      %s\n", best.Staleness)
	if len(best.FallbackChains) > 0 {
		fmt.Fprintf(r.out, "  Gas fallback:   %v\n", best.FallbackChains)
	}
	if rep.Intent != nil {
		status := "published"
		if !rep.Published {
			status = "NOT published"
		}
		fmt.Fprintf(r.out, "  Intent:         %s (%s, min out %s)\n", rep.Intent.ID, status, rep.Intent.MinOut.StringFixed(6))
	}
	if len(rep.Filtered) > 0 {
		reasons := make([]string, 0, len(rep.Filtered))
		for reason := range rep.Filtered {
			reasons = append(reasons, string(reason))
		}
		sort.Strings(reasons)
		fmt.Fprintf(r.out, "  Filtered:       ")
		for i, reason := range reasons {
			if i > 0 {
				fmt.Fprint(r.out, ", ")
			}
			fmt.Fprintf(r.out, "%s=%d", reason, rep.Filtered[app.FilterReason(reason)])
		}
		fmt.Fprintln(r.out)
	}
	fmt.Fprintln(r.out, "================================================================================")
}

// Stop is a no-op.
func (r *ConsoleReporter) Stop() error {
	return nil
}
