package domain

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	market "github.com/fd1az/multichain-arb/business/market/domain"
	"github.com/fd1az/multichain-arb/internal/apperror"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestNewGasCost(t *testing.T) {
	tests := []struct {
		name       string
		units      uint64
		priceGwei  string
		nativeUSD  string
		wantNative string
		wantUSD    string
	}{
		{"standard_gas_25gwei_3400eth", 200_000, "25", "3400", "0.005", "17"},
		{"high_gas_100gwei", 200_000, "100", "3400", "0.02", "68"},
		{"low_gas_5gwei", 200_000, "5", "3400", "0.001", "3.4"},
		{"complex_swap_300k_gas", 300_000, "30", "3500", "0.009", "31.5"},
		{"l2_fractional_gwei", 150_000, "0.01", "3000", "0.0000015", "0.0045"},
		{"zero_units", 0, "25", "3400", "0", "0"},
		{"zero_price", 200_000, "0", "3400", "0", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewGasCost(tt.units, d(tt.priceGwei), d(tt.nativeUSD))
			if !got.Native.Equal(d(tt.wantNative)) {
				t.Errorf("Native = %s, want %s", got.Native, tt.wantNative)
			}
			if !got.USD.Equal(d(tt.wantUSD)) {
				t.Errorf("USD = %s, want %s", got.USD, tt.wantUSD)
			}
			if got.Units != tt.units {
				t.Errorf("Units = %d, want %d", got.Units, tt.units)
			}
		})
	}
}

func TestGasTable_Units(t *testing.T) {
	table := GasTable{
		Default:  map[GasOp]uint64{GasSwap: 120_000},
		PerChain: map[market.ChainID]map[GasOp]uint64{market.ChainArbitrum: {GasSwap: 900_000}},
	}
	tests := []struct {
		op    GasOp
		chain market.ChainID
		want  uint64
	}{
		{GasSwap, market.ChainArbitrum, 900_000},
		{GasSwap, market.ChainEthereum, 120_000},
		{GasBridge, market.ChainEthereum, 300_000},
		{GasFlashLoan, market.ChainBase, 200_000},
	}
	for _, tt := range tests {
		if got := table.Units(tt.op, tt.chain); got != tt.want {
			t.Errorf("Units(%s, %d) = %d, want %d", tt.op, tt.chain, got, tt.want)
		}
	}
}

func TestBridgeLatency(t *testing.T) {
	tests := []struct {
		from, to market.Layer
		want     time.Duration
	}{
		{market.LayerL1, market.LayerL2, 600 * time.Second},
		{market.LayerL2, market.LayerL1, 3600 * time.Second},
		{market.LayerL2, market.LayerL2, 300 * time.Second},
		{market.LayerL1, market.LayerL1, 1200 * time.Second},
	}
	for _, tt := range tests {
		if got := BridgeLatency(tt.from, tt.to); got != tt.want {
			t.Errorf("BridgeLatency(%s, %s) = %s, want %s", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestQuoteBridge(t *testing.T) {
	t.Run("route_fee_and_latency", func(t *testing.T) {
		route := &market.BridgePayload{From: 10, To: 8453, Asset: "USDC", FeeBps: d("4"), SettlementLatency: 90 * time.Second}
		q := QuoteBridge(d("10000"), route, market.LayerL2, market.LayerL2, DefaultBridgeFeeBps)
		if !q.Fee.Equal(d("4")) || !q.AmountOut.Equal(d("9996")) {
			t.Errorf("fee = %s out = %s", q.Fee, q.AmountOut)
		}
		if q.Latency != 90*time.Second || q.FeeDefaulted {
			t.Errorf("latency = %s defaulted = %v", q.Latency, q.FeeDefaulted)
		}
	})

	t.Run("default_fee_flagged", func(t *testing.T) {
		q := QuoteBridge(d("10000"), nil, market.LayerL1, market.LayerL2, DefaultBridgeFeeBps)
		if !q.Fee.Equal(d("10")) || !q.FeeDefaulted || q.Latency != LatencyL1ToL2 {
			t.Errorf("quote = %+v", q)
		}
	})
}

func TestSelectFlashLoan(t *testing.T) {
	offers := []market.FlashLoanPayload{
		{Chain: 1, Provider: "aave_v3", Asset: "USDC", AvailableLiquidity: d("1000000"), FeeBps: decimal.NewNullDecimal(d("5"))},
		{Chain: 1, Provider: "balancer", Asset: "USDC", AvailableLiquidity: d("50000")},
		{Chain: 1, Provider: "uniswap_v3", Asset: "USDC", AvailableLiquidity: d("2000000")},
	}

	t.Run("cheapest_with_capacity", func(t *testing.T) {
		plan, err := SelectFlashLoan(d("40000"), offers, nil)
		if err != nil {
			t.Fatal(err)
		}
		if plan.Provider != "balancer" || !plan.Fee.IsZero() {
			t.Errorf("plan = %+v, want free balancer loan", plan)
		}
		if plan.Venue != market.FlashLoanKey(1, "balancer", "USDC") {
			t.Errorf("venue = %s", plan.Venue)
		}
	})

	t.Run("tie_goes_to_deeper_offer", func(t *testing.T) {
		plan, err := SelectFlashLoan(d("100000"), offers, nil)
		if err != nil {
			t.Fatal(err)
		}
		if plan.Provider != "uniswap_v3" || !plan.Fee.Equal(d("50")) {
			t.Errorf("plan = %+v, want uniswap_v3 at 5 bps", plan)
		}
	})

	t.Run("reported_zero_fee_overrides_table", func(t *testing.T) {
		live := []market.FlashLoanPayload{
			{Chain: 1, Provider: "aave_v3", Asset: "USDC", AvailableLiquidity: d("1000000"), FeeBps: decimal.NewNullDecimal(decimal.Zero)},
			{Chain: 1, Provider: "balancer", Asset: "USDC", AvailableLiquidity: d("500000")},
		}
		plan, err := SelectFlashLoan(d("100000"), live, nil)
		if err != nil {
			t.Fatal(err)
		}
		if plan.Provider != "aave_v3" || !plan.Fee.IsZero() || !plan.FeeBps.IsZero() {
			t.Errorf("plan = %+v, want free aave_v3 loan", plan)
		}
	})

	t.Run("none_large_enough", func(t *testing.T) {
		_, err := SelectFlashLoan(d("5000000"), offers, nil)
		if !apperror.HasCode(err, apperror.CodeInsufficientLiquidity) {
			t.Errorf("err = %v, want insufficient liquidity", err)
		}
	})
}

func TestCandidate_Fingerprint(t *testing.T) {
	pool := market.AMMKey(1, common.HexToAddress("0x88e6A0c2dDD26FEEb64F039a2c41296FcB3f5640"))
	legs := []Leg{
		{Kind: LegSwap, Chain: 1, AssetIn: "USDC", AssetOut: "WETH", Venue: pool, Notional: d("1000")},
		{Kind: LegBridge, Chain: 1, AssetIn: "WETH", AssetOut: "WETH", Venue: market.BridgeKey(1, 10, "WETH")},
	}
	a := Candidate{ID: "a", Strategy: "default", Detector: "x", Legs: legs}
	b := Candidate{ID: "b", Strategy: "default", Detector: "y", Legs: append([]Leg(nil), legs...)}
	b.Legs[0].Notional = d("2000")

	if a.Fingerprint() != b.Fingerprint() {
		t.Error("fingerprint should ignore id, detector and notional")
	}

	reversed := Candidate{Strategy: "default", Legs: []Leg{legs[1], legs[0]}}
	if a.Fingerprint() == reversed.Fingerprint() {
		t.Error("fingerprint should depend on leg order")
	}

	other := Candidate{Strategy: "other", Legs: legs}
	if a.Fingerprint() == other.Fingerprint() {
		t.Error("fingerprint should depend on strategy")
	}

	chains := a.Chains()
	if len(chains) != 2 || chains[0] != 1 || chains[1] != 10 {
		t.Errorf("Chains = %v, want [1 10]", chains)
	}
	if !a.CrossChain() || a.InputAsset() != "USDC" {
		t.Errorf("CrossChain = %v InputAsset = %q", a.CrossChain(), a.InputAsset())
	}
}

func TestStrategyConfig(t *testing.T) {
	valid := StrategyConfig{
		Name: "s", Enabled: true,
		MinProfitUSD: d("5"), MinProfitBps: d("10"), MaxPositionUSD: d("50000"),
		ApprovedAssets: SymbolSet("eth", "USDC"),
		Risk:           RiskLimits{MaxLegs: 4, MaxChains: 2, BlacklistedAssets: SymbolSet("SCAM")},
		MinConfidence:  0.5,
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}

	if !valid.AssetApproved("WETH", "ETH") || valid.AssetApproved("WBTC", "BTC") {
		t.Error("allow-list should match any name of the asset")
	}
	if !valid.AssetBlacklisted("scam") || valid.Tradable("SCAM") {
		t.Error("blacklist should be case insensitive")
	}
	if !valid.ChainApproved(42161) {
		t.Error("empty chain set should approve every chain")
	}

	broken := []func(s *StrategyConfig){
		func(s *StrategyConfig) { s.Name = "" },
		func(s *StrategyConfig) { s.MaxPositionUSD = decimal.Zero },
		func(s *StrategyConfig) { s.MinConfidence = 1.5 },
		func(s *StrategyConfig) { s.Risk.BlacklistedAssets = SymbolSet("USDC") },
	}
	for i, mutate := range broken {
		s := valid
		mutate(&s)
		if err := s.Validate(); !apperror.HasCode(err, apperror.CodeInvalidStrategy) {
			t.Errorf("case %d: Validate() = %v, want invalid strategy", i, err)
		}
	}
}

func TestNewTradeIntent(t *testing.T) {
	detected := time.Unix(1_700_000_000, 0)
	ev := EvaluationResult{
		Candidate: Candidate{
			ID: "c1", Strategy: "default", DetectedAt: detected,
			Legs: []Leg{{Kind: LegSwap, Chain: 1, AssetIn: "USDC", AssetOut: "WETH"}},
		},
		AmountIn:     d("1000"),
		GrossOutput:  d("1010"),
		OutputAsset:  "USDC",
		NetProfitUSD: d("7"),
	}

	intent := NewTradeIntent(ev, d("50"), 30*time.Second, detected.Add(time.Second))

	if !intent.MinOut.Equal(d("1004.95")) {
		t.Errorf("MinOut = %s, want 1004.95", intent.MinOut)
	}
	if !intent.ExpiresAt.Equal(detected.Add(30 * time.Second)) {
		t.Errorf("ExpiresAt = %v", intent.ExpiresAt)
	}
	if intent.CandidateID != "c1" || intent.InputAsset != "USDC" || intent.ID == "" {
		t.Errorf("intent = %+v", intent)
	}
	if intent.Expired(detected.Add(29*time.Second)) || !intent.Expired(detected.Add(30*time.Second)) {
		t.Error("expiry boundary is wrong")
	}
}
