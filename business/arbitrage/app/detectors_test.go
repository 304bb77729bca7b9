package app

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/fd1az/multichain-arb/business/arbitrage/domain"
	market "github.com/fd1az/multichain-arb/business/market/domain"
	"github.com/fd1az/multichain-arb/internal/apperror"
)

func detectorConfig(margin string) DetectorConfig {
	return DetectorConfig{Strategy: testStrategy(), MarginBps: d(margin), NotionalUSD: d("1000")}
}

func triangle() *market.Snapshot {
	return snapshot(
		now(pool(market.ChainEthereum, "WETH", "USDC", "100", "200000")),
		now(pool(market.ChainEthereum, "USDC", "DAI", "1000000", "1000000")),
		now(pool(market.ChainEthereum, "WETH", "DAI", "100", "220000")),
	)
}

func TestTriangularDetector(t *testing.T) {
	det := NewTriangularDetector(detectorConfig("10"), testPrices, wrapped{})
	out, err := det.Detect(context.Background(), triangle())
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 {
		t.Fatalf("candidates = %d, want 1", len(out))
	}

	c := out[0]
	path := []string{c.Legs[0].AssetIn}
	for _, l := range c.Legs {
		path = append(path, l.AssetOut)
	}
	if got := strings.Join(path, ">"); got != "DAI>USDC>WETH>DAI" {
		t.Errorf("path = %s", got)
	}
	if !c.Legs[0].Notional.Equal(d("1000")) {
		t.Errorf("notional = %s, want 1000 DAI", c.Legs[0].Notional)
	}
	if c.Strategy != "arb" || c.Detector != "triangular:arb" || c.BlockNumber != 100 {
		t.Errorf("candidate = %+v", c)
	}
}

func TestTriangularDetector_Margin(t *testing.T) {
	det := NewTriangularDetector(detectorConfig("2000"), testPrices, wrapped{})
	out, err := det.Detect(context.Background(), triangle())
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 0 {
		t.Errorf("candidates = %d, want none above a 20%% margin", len(out))
	}
}

func TestTriangularDetector_ApprovedAssetsOnly(t *testing.T) {
	cfg := detectorConfig("10")
	cfg.Strategy.ApprovedAssets = domain.SymbolSet("ETH", "USDC")
	out, _ := NewTriangularDetector(cfg, testPrices, wrapped{}).Detect(context.Background(), triangle())
	if len(out) != 0 {
		t.Errorf("candidates = %d, want none without DAI approved", len(out))
	}
}

func TestCrossVenueDetector_SameChain(t *testing.T) {
	cheap := pool(market.ChainEthereum, "WETH", "USDC", "100", "200000")
	rich := pool(market.ChainEthereum, "WETH", "USDC", "100", "210000")
	snap := snapshot(now(cheap), now(rich))

	out, err := NewCrossVenueDetector(detectorConfig("10"), testPrices, wrapped{}).Detect(context.Background(), snap)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 2 {
		t.Fatalf("candidates = %d, want 2 (one per starting asset)", len(out))
	}
	for _, c := range out {
		if len(c.Legs) != 2 {
			t.Fatalf("legs = %d, want 2", len(c.Legs))
		}
		if c.Legs[0].AssetIn != c.Legs[1].AssetOut {
			t.Errorf("path does not close: %v", c.Legs)
		}
		// the first leg always buys on the venue where the bought asset is cheaper
		if c.Legs[0].AssetOut == "WETH" && c.Legs[0].Venue != cheap.Key() {
			t.Errorf("WETH bought on %s, want %s", c.Legs[0].Venue, cheap.Key())
		}
	}
}

func TestCrossVenueDetector_CrossChainInsertsBridge(t *testing.T) {
	cheap := pool(market.ChainArbitrum, "WETH", "USDC", "100", "200000")
	rich := pool(market.ChainEthereum, "WETH", "USDC", "100", "210000")
	snap := snapshot(now(cheap), now(rich))

	out, err := NewCrossVenueDetector(detectorConfig("10"), testPrices, wrapped{}).Detect(context.Background(), snap)
	if err != nil {
		t.Fatal(err)
	}

	var found bool
	for _, c := range out {
		if c.Legs[0].AssetIn != "USDC" {
			continue
		}
		found = true
		if len(c.Legs) != 3 || c.Legs[1].Kind != domain.LegBridge {
			t.Fatalf("legs = %v", c.Legs)
		}
		want := market.BridgeKey(market.ChainArbitrum, market.ChainEthereum, "WETH")
		if c.Legs[1].Venue != want {
			t.Errorf("bridge venue = %s, want %s", c.Legs[1].Venue, want)
		}
		if !c.CrossChain() {
			t.Error("expected a cross-chain candidate")
		}
	}
	if !found {
		t.Fatal("no USDC round trip found")
	}
}

func TestCrossVenueDetector_BelowMargin(t *testing.T) {
	a := pool(market.ChainEthereum, "WETH", "USDC", "100", "200000")
	b := pool(market.ChainEthereum, "WETH", "USDC", "100", "200100")
	out, _ := NewCrossVenueDetector(detectorConfig("10"), testPrices, wrapped{}).Detect(context.Background(), snapshot(now(a), now(b)))
	if len(out) != 0 {
		t.Errorf("candidates = %d, want none for a 5 bps spread", len(out))
	}
}

func TestCrossVenueDetector_IgnoresStalePools(t *testing.T) {
	a := pool(market.ChainEthereum, "WETH", "USDC", "100", "200000")
	b := pool(market.ChainEthereum, "WETH", "USDC", "100", "210000")
	out, _ := NewCrossVenueDetector(detectorConfig("10"), testPrices, wrapped{}).Detect(context.Background(), snapshot(now(a), aged(b, time.Minute)))
	if len(out) != 0 {
		t.Errorf("candidates = %d, want none with one pool stale", len(out))
	}
}

type stubDetector struct {
	name string
	out  []domain.Candidate
	err  error
	boom bool
	wait time.Duration
}

func (s *stubDetector) Name() string { return s.name }

func (s *stubDetector) Detect(ctx context.Context, _ *market.Snapshot) ([]domain.Candidate, error) {
	if s.boom {
		panic("index out of range")
	}
	if s.wait > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.wait):
		}
	}
	return s.out, s.err
}

func TestDetectorManager_IsolatesFailures(t *testing.T) {
	snap := triangle()
	good, _ := NewTriangularDetector(detectorConfig("10"), testPrices, wrapped{}).Detect(context.Background(), snap)

	m := NewDetectorManager(discard(), 50*time.Millisecond,
		&stubDetector{name: "panics", boom: true},
		&stubDetector{name: "errors", err: errors.New("rpc down")},
		&stubDetector{name: "slow", wait: time.Second},
		&stubDetector{name: "good", out: good},
	)

	rep := m.DetectAll(context.Background(), snap)
	if len(rep.Candidates) != len(good) {
		t.Errorf("candidates = %d, want %d", len(rep.Candidates), len(good))
	}
	if len(rep.Failures) != 3 {
		t.Fatalf("failures = %v, want 3", rep.Failures)
	}
	if !apperror.HasCode(rep.Failures["panics"], apperror.CodeDetectorFailure) {
		t.Errorf("panic error = %v", rep.Failures["panics"])
	}
}

// stuckDetector ignores its context until released.
type stuckDetector struct{ release chan struct{} }

func (s *stuckDetector) Name() string { return "stuck" }

func (s *stuckDetector) Detect(context.Context, *market.Snapshot) ([]domain.Candidate, error) {
	<-s.release
	return []domain.Candidate{{ID: "late"}}, nil
}

func TestDetectorManager_TimeoutIgnoredByDetector(t *testing.T) {
	snap := triangle()
	good, _ := NewTriangularDetector(detectorConfig("10"), testPrices, wrapped{}).Detect(context.Background(), snap)
	stuck := &stuckDetector{release: make(chan struct{})}
	defer close(stuck.release)

	m := NewDetectorManager(discard(), 30*time.Millisecond, stuck, &stubDetector{name: "good", out: good})

	start := time.Now()
	rep := m.DetectAll(context.Background(), snap)
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("DetectAll took %v", elapsed)
	}
	if !apperror.HasCode(rep.Failures["stuck"], apperror.CodeDetectorFailure) {
		t.Errorf("stuck failure = %v", rep.Failures["stuck"])
	}
	if len(rep.Candidates) != len(good) {
		t.Errorf("candidates = %d, want %d", len(rep.Candidates), len(good))
	}
}

func TestDetectorManager_CollapsesDuplicates(t *testing.T) {
	snap := triangle()
	first, _ := NewTriangularDetector(detectorConfig("10"), testPrices, wrapped{}).Detect(context.Background(), snap)
	second, _ := NewTriangularDetector(detectorConfig("10"), testPrices, wrapped{}).Detect(context.Background(), snap)
	if first[0].ID == second[0].ID {
		t.Fatal("expected distinct candidate ids")
	}

	m := NewDetectorManager(discard(), 0,
		&stubDetector{name: "a", out: first},
		&stubDetector{name: "b", out: second},
	)
	rep := m.DetectAll(context.Background(), snap)
	if len(rep.Candidates) != 1 || rep.Duplicates != 1 {
		t.Fatalf("candidates = %d duplicates = %d, want 1 and 1", len(rep.Candidates), rep.Duplicates)
	}
	if rep.Candidates[0].ID != first[0].ID {
		t.Error("expected the first registered detector to win")
	}
}

func TestDetectorManager_SetEnabled(t *testing.T) {
	m := NewDetectorManager(discard(), 0, &stubDetector{name: "a"}, &stubDetector{name: "b"})
	if !m.SetEnabled("a", false) {
		t.Fatal("detector a not found")
	}
	if m.SetEnabled("missing", false) {
		t.Error("unknown detector reported found")
	}
	if names := m.Names(); len(names) != 1 || names[0] != "b" {
		t.Errorf("names = %v", names)
	}
}
