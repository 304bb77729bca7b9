package arbitrage

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fd1az/multichain-arb/business/arbitrage/domain"
	market "github.com/fd1az/multichain-arb/business/market/domain"
	"github.com/fd1az/multichain-arb/internal/apperror"
	"github.com/fd1az/multichain-arb/internal/config"
)

func TestStrategies(t *testing.T) {
	got, err := Strategies([]config.StrategyConfig{{
		Name:              "arb",
		Enabled:           true,
		MinProfitUSD:      5,
		MaxPositionUSD:    50_000,
		ApprovedAssets:    []string{"weth", " usdc "},
		ApprovedChains:    []uint64{1, 42161},
		BlacklistedAssets: []string{"pepe"},
		MaxLegs:           4,
		MaxPathLatency:    time.Hour,
	}})
	if err != nil {
		t.Fatal(err)
	}
	s := got[0]
	if !s.MinProfitUSD.Equal(decimal.NewFromInt(5)) {
		t.Errorf("min profit = %s", s.MinProfitUSD)
	}
	if !s.Tradable("WETH") || !s.Tradable("usdc") || s.Tradable("PEPE") {
		t.Error("asset lists not normalized")
	}
	if !s.ChainApproved(market.ChainArbitrum) || s.ChainApproved(market.ChainBase) {
		t.Error("chain allow-list not applied")
	}
	if s.Risk.MaxLegs != 4 || s.MaxPathLatency != time.Hour {
		t.Errorf("risk = %+v latency = %s", s.Risk, s.MaxPathLatency)
	}
}

func TestStrategies_Invalid(t *testing.T) {
	_, err := Strategies([]config.StrategyConfig{{Name: "arb", MaxPositionUSD: 0}})
	if !apperror.HasCode(err, apperror.CodeInvalidStrategy) {
		t.Errorf("err = %v, want invalid strategy", err)
	}
}

func TestEvaluatorConfig(t *testing.T) {
	cfg := EvaluatorConfig(config.CostsConfig{
		DefaultBridgeFeeBps: 8,
		GasUnits:            map[string]uint64{"swap": 120_000},
		FlashLoanFeeBps:     map[string]float64{"aave_v3": 9},
	}, []config.ChainConfig{
		{ID: 42161, GasUnits: map[string]uint64{"swap": 700_000}},
		{ID: 1},
	})

	tests := []struct {
		op    domain.GasOp
		chain market.ChainID
		want  uint64
	}{
		{domain.GasSwap, market.ChainEthereum, 120_000},
		{domain.GasSwap, market.ChainArbitrum, 700_000},
		{domain.GasBridge, market.ChainEthereum, domain.DefaultGasUnits[domain.GasBridge]},
	}
	for _, tt := range tests {
		if got := cfg.Gas.Units(tt.op, tt.chain); got != tt.want {
			t.Errorf("Units(%s, %d) = %d, want %d", tt.op, tt.chain, got, tt.want)
		}
	}
	if !cfg.DefaultBridgeFeeBps.Equal(decimal.NewFromInt(8)) {
		t.Errorf("bridge fee = %s", cfg.DefaultBridgeFeeBps)
	}
	if !cfg.FlashLoanFees["aave_v3"].Equal(decimal.NewFromInt(9)) {
		t.Errorf("flash fees = %v", cfg.FlashLoanFees)
	}
	if cfg.GasFallbackPenalty != 0.25 {
		t.Errorf("gas penalty = %v, want default", cfg.GasFallbackPenalty)
	}
}

func TestDetectors(t *testing.T) {
	strategies := []domain.StrategyConfig{
		{Name: "a", Enabled: true},
		{Name: "b", Enabled: false},
		{Name: "c", Enabled: true},
	}
	det := config.DetectionConfig{Detectors: []string{DetectorTriangular, DetectorCrossVenue}, MarginBps: 5, NotionalUSD: 1000}

	got, err := Detectors(det, strategies, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 4 {
		t.Fatalf("detectors = %d, want 2 kinds x 2 enabled strategies", len(got))
	}
	if got[0].Name() != "triangular:a" || got[3].Name() != "cross_venue:c" {
		t.Errorf("names = %s, %s", got[0].Name(), got[3].Name())
	}

	det.Detectors = []string{"sandwich"}
	if _, err := Detectors(det, strategies, nil, nil); err == nil {
		t.Error("expected error for unknown detector kind")
	}
}

func TestEngineConfig(t *testing.T) {
	cfg := EngineConfig(
		config.EngineConfig{Interval: time.Second, MaxCyclesPerSec: 2},
		config.IntentsConfig{Enabled: true, SlippageToleranceBps: 30},
	)
	if cfg.Interval != time.Second || cfg.MaxCyclesPerSec != 2 || !cfg.PublishIntents {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.CycleDeadline <= 0 || cfg.EvalConcurrency <= 0 {
		t.Errorf("defaults lost: %+v", cfg)
	}
	if !cfg.SlippageToleranceBps.Equal(decimal.NewFromInt(30)) {
		t.Errorf("slippage = %s", cfg.SlippageToleranceBps)
	}
}
