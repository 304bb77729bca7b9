package infra

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/fd1az/multichain-arb/business/arbitrage/app"
	"github.com/fd1az/multichain-arb/business/arbitrage/domain"
	market "github.com/fd1az/multichain-arb/business/market/domain"
	"github.com/fd1az/multichain-arb/internal/apperror"
	"github.com/fd1az/multichain-arb/pkg/ui"
)

func crossChainReport() app.CycleReport {
	pool := market.AMMKey(market.ChainArbitrum, common.HexToAddress("0x01"))
	legs := []domain.Leg{
		{Kind: domain.LegSwap, Chain: market.ChainArbitrum, AssetIn: "USDC", AssetOut: "WETH", Venue: pool, Notional: decimal.NewFromInt(1000)},
		{Kind: domain.LegBridge, Chain: market.ChainArbitrum, AssetIn: "WETH", AssetOut: "WETH",
			Venue: market.BridgeKey(market.ChainArbitrum, market.ChainEthereum, "WETH")},
	}
	best := domain.EvaluationResult{
		Candidate:      domain.Candidate{ID: "cand-1", Strategy: "arb", Detector: "cross_venue:arb", Legs: legs, BlockNumber: 100},
		AmountIn:       decimal.NewFromInt(1000),
		NotionalUSD:    decimal.NewFromInt(1000),
		GrossOutputUSD: decimal.NewFromInt(1100),
		Costs:          domain.Costs{GasUSD: decimal.NewFromInt(6), BridgeFeeUSD: decimal.NewFromInt(2)},
		NetProfitUSD:   decimal.NewFromInt(92),
		NetProfitBps:   decimal.NewFromInt(920),
		Confidence:     0.9,
		Staleness:      1500 * time.Millisecond,
	}
	return app.CycleReport{
		Cycle:     7,
		Trigger:   app.TriggerHead,
		StartedAt: time.Unix(1_700_000_000, 0),
		Duration:  3 * time.Millisecond,
		Rejected:  map[domain.RejectReason]int{domain.RejectStaleData: 2, domain.RejectUnprofitable: 1},
		Filtered:  map[app.FilterReason]int{app.FilterMinProfitUSD: 1},
		Best:      &best,
		Published: true,
	}
}

func TestConsoleReporter_Selected(t *testing.T) {
	var out bytes.Buffer
	r := NewConsoleReporterTo(&out, nil, false)
	r.Report(crossChainReport())

	got := out.String()
	for _, want := range []string{"OPPORTUNITY SELECTED", "arbitrum, ethereum", "$92.00", "Bridge fee:     $2.00", "below_min_profit_usd=1"} {
		if !strings.Contains(got, want) {
			t.Errorf("output is missing %q:\n%s", want, got)
		}
	}
}

func TestConsoleReporter_QuietWithoutSelection(t *testing.T) {
	var out bytes.Buffer
	r := NewConsoleReporterTo(&out, nil, false)
	r.Report(app.CycleReport{Cycle: 1})
	if out.Len() != 0 {
		t.Errorf("quiet reporter wrote %q", out.String())
	}

	r = NewConsoleReporterTo(&out, nil, true)
	r.Report(app.CycleReport{Cycle: 2, Candidates: 4})
	if !strings.Contains(out.String(), "4 candidates") {
		t.Errorf("verbose output = %q", out.String())
	}
}

func TestConsoleReporter_Aborted(t *testing.T) {
	var out bytes.Buffer
	r := NewConsoleReporterTo(&out, nil, false)
	r.Report(app.CycleReport{Cycle: 3, Err: apperror.New(apperror.CodeCycleAborted, apperror.WithCause(errors.New("deadline")))})
	if !strings.Contains(out.String(), "cycle 3 aborted") {
		t.Errorf("output = %q", out.String())
	}
}

func TestTUIReporter_Message(t *testing.T) {
	var sent []any
	r := NewTUIReporter(nil)
	r.send = func(msg any) { sent = append(sent, msg) }

	rep := crossChainReport()
	rep.DetectorFailures = map[string]error{"triangular:arb": errors.New("boom")}
	r.Report(rep)

	if len(sent) != 2 {
		t.Fatalf("sent %d messages, want cycle + error", len(sent))
	}
	msg, ok := sent[0].(ui.CycleMsg)
	if !ok {
		t.Fatalf("first message = %T", sent[0])
	}
	if msg.Rejected != 3 || msg.Filtered != 1 || msg.Failures != 1 || msg.Block != 100 {
		t.Errorf("msg = %+v", msg)
	}
	if msg.Best == nil || msg.Best.NetUSD != 92 || !msg.Best.Published {
		t.Fatalf("best = %+v", msg.Best)
	}
	if want := "swap USDC>WETH@arbitrum, bridge WETH>WETH@arbitrum>ethereum"; msg.Best.Path != want {
		t.Errorf("path = %q, want %q", msg.Best.Path, want)
	}
	if _, ok := sent[1].(ui.ErrorMsg); !ok {
		t.Errorf("second message = %T", sent[1])
	}
}
