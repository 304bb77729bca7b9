package app

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/fd1az/multichain-arb/business/market/domain"
	"github.com/fd1az/multichain-arb/internal/apperror"
	"github.com/fd1az/multichain-arb/internal/logger"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestState() (*MarketState, *fakeClock) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	return NewMarketState(domain.DefaultChains(), WithClock(clock.Now)), clock
}

func gasFeature(chain domain.ChainID, block uint64, gwei string) domain.Feature {
	return domain.Feature{
		ID:          fmt.Sprintf("gas-%d-%d", chain, block),
		Chain:       chain,
		BlockNumber: block,
		Type:        domain.FeatureGas,
		Gas:         &domain.GasPayload{Chain: chain, PriceGwei: decimal.RequireFromString(gwei)},
	}
}

func poolFeature(block uint64, pool string, r0, r1 string) domain.Feature {
	return domain.Feature{
		ID:          fmt.Sprintf("amm-%s-%d", pool, block),
		Chain:       domain.ChainEthereum,
		BlockNumber: block,
		Type:        domain.FeatureAMM,
		AMM: &domain.AmmPayload{
			Pool:     common.HexToAddress(pool),
			Kind:     domain.PoolConstantProduct,
			Token0:   domain.Token{Symbol: "WETH", Decimals: 18},
			Token1:   domain.Token{Symbol: "USDC", Decimals: 6},
			FeeBps:   decimal.NewFromInt(30),
			Reserve0: decimal.RequireFromString(r0),
			Reserve1: decimal.RequireFromString(r1),
		},
	}
}

func TestMarketState_Monotonic(t *testing.T) {
	m, _ := newTestState()

	tests := []struct {
		block uint64
		want  IngestOutcome
		head  uint64
	}{
		{block: 100, want: Accepted, head: 100},
		{block: 101, want: Accepted, head: 101},
		{block: 99, want: OutOfOrder, head: 101},
		{block: 101, want: Duplicate, head: 101},
		{block: 105, want: Accepted, head: 105},
	}

	for _, tt := range tests {
		got := m.Apply(gasFeature(domain.ChainEthereum, tt.block, "20"))
		if got != tt.want {
			t.Errorf("Apply(block %d) = %s, want %s", tt.block, got, tt.want)
		}
		f, ok := m.Get(domain.ChainEthereum, domain.FeatureGas, "gas")
		if !ok || f.BlockNumber != tt.head {
			t.Errorf("after block %d stored = %d, want %d", tt.block, f.BlockNumber, tt.head)
		}
	}
	if m.Version() != 3 {
		t.Errorf("Version = %d, want 3", m.Version())
	}
}

func TestMarketState_IdenticalReingestBumpsVersionOnce(t *testing.T) {
	m, _ := newTestState()
	f := poolFeature(10, "0xabc", "100", "300000")

	if !m.Ingest(f) {
		t.Fatal("first ingest rejected")
	}
	if m.Ingest(f) {
		t.Error("second ingest of identical feature accepted")
	}
	if m.Version() != 1 {
		t.Errorf("Version = %d, want 1", m.Version())
	}
}

func TestMarketState_RejectsInvalid(t *testing.T) {
	m, _ := newTestState()
	f := poolFeature(10, "0xabc", "-1", "300000")

	if got := m.Apply(f); got != Invalid {
		t.Errorf("Apply = %s, want invalid", got)
	}
	if m.Len() != 0 || m.Version() != 0 {
		t.Errorf("invalid feature mutated state: len=%d version=%d", m.Len(), m.Version())
	}
}

func bridgeFeature(observedOn domain.ChainID, block uint64) domain.Feature {
	return domain.Feature{
		ID:          fmt.Sprintf("bridge-%d-%d", observedOn, block),
		Chain:       observedOn,
		BlockNumber: block,
		Type:        domain.FeatureBridge,
		Bridge: &domain.BridgePayload{
			From:              domain.ChainEthereum,
			To:                domain.ChainArbitrum,
			Asset:             "USDC",
			FeeBps:            decimal.NewFromInt(20),
			SettlementLatency: 15 * time.Minute,
		},
	}
}

func TestMarketState_BridgeObservedOffSourceChain(t *testing.T) {
	m, _ := newTestState()

	if got := m.Apply(bridgeFeature(domain.ChainArbitrum, 250_000_000)); got != Invalid {
		t.Fatalf("Apply(destination-side route) = %s, want invalid", got)
	}
	if got := m.Apply(bridgeFeature(domain.ChainEthereum, 21_000_000)); got != Accepted {
		t.Fatalf("Apply(source-side route) = %s, want accepted", got)
	}

	key := domain.BridgeKey(domain.ChainEthereum, domain.ChainArbitrum, "USDC")
	e, ok := m.Snapshot().Lookup(key)
	if !ok || e.Feature.BlockNumber != 21_000_000 {
		t.Errorf("stored = %+v, %v", e.Feature, ok)
	}
	if m.Head(domain.ChainEthereum) != m.Snapshot().Head(domain.ChainEthereum) {
		t.Errorf("head = %d, snapshot head = %d", m.Head(domain.ChainEthereum), m.Snapshot().Head(domain.ChainEthereum))
	}
	if m.Head(domain.ChainArbitrum) != 0 {
		t.Errorf("arbitrum head = %d, want 0", m.Head(domain.ChainArbitrum))
	}
}

func TestMarketState_SnapshotIsolation(t *testing.T) {
	m, _ := newTestState()
	m.Ingest(poolFeature(10, "0xabc", "100", "300000"))

	snap := m.Snapshot()
	m.Ingest(poolFeature(11, "0xabc", "101", "297000"))
	m.Ingest(gasFeature(domain.ChainArbitrum, 5, "0.1"))

	e, ok := snap.Lookup(domain.AMMKey(domain.ChainEthereum, common.HexToAddress("0xabc")))
	if !ok || e.Feature.BlockNumber != 10 {
		t.Errorf("snapshot sees block %d, want 10", e.Feature.BlockNumber)
	}
	if snap.Len() != 1 {
		t.Errorf("snapshot len = %d, want 1", snap.Len())
	}
	if snap.Version != 1 {
		t.Errorf("snapshot version = %d, want 1", snap.Version)
	}

	if later := m.Snapshot(); later.Version != 3 || later.Len() != 2 {
		t.Errorf("later snapshot version=%d len=%d", later.Version, later.Len())
	}
}

func TestMarketState_SnapshotCachedPerVersion(t *testing.T) {
	m, clock := newTestState()
	m.Ingest(gasFeature(domain.ChainEthereum, 1, "20"))

	a := m.Snapshot()
	clock.Advance(30 * time.Second)
	b := m.Snapshot()

	if a.Version != b.Version {
		t.Fatalf("versions differ: %d vs %d", a.Version, b.Version)
	}
	if !b.TakenAt.After(a.TakenAt) {
		t.Error("cached snapshot kept the old TakenAt")
	}
	if _, ok := b.Fresh(domain.GasKey(domain.ChainEthereum)); ok {
		t.Error("30s old gas feature on ethereum should be stale in the later snapshot")
	}
	if _, ok := a.Fresh(domain.GasKey(domain.ChainEthereum)); !ok {
		t.Error("earlier snapshot should still judge the feature fresh")
	}
}

func TestMarketState_StaleTreatedAsAbsent(t *testing.T) {
	m, clock := newTestState()
	m.Ingest(gasFeature(domain.ChainArbitrum, 1, "0.1"))
	m.Ingest(gasFeature(domain.ChainEthereum, 1, "20"))

	clock.Advance(3 * time.Second)

	if _, ok := m.Get(domain.ChainArbitrum, domain.FeatureGas, "gas"); ok {
		t.Error("arbitrum gas older than 2s should be stale")
	}
	if _, ok := m.Get(domain.ChainEthereum, domain.FeatureGas, "gas"); !ok {
		t.Error("ethereum gas 3s old should be fresh")
	}

	snap := m.Snapshot()
	if got := len(snap.FreshOfType(domain.FeatureGas)); got != 1 {
		t.Errorf("fresh gas entries = %d, want 1", got)
	}
	if snap.Len() != 2 {
		t.Errorf("stale entries must stay stored, len = %d", snap.Len())
	}
}

func TestMarketState_ConcurrentWriters(t *testing.T) {
	m, _ := newTestState()
	chains := []domain.ChainID{domain.ChainEthereum, domain.ChainArbitrum, domain.ChainOptimism, domain.ChainBase}

	var wg sync.WaitGroup
	for _, c := range chains {
		wg.Add(1)
		go func(c domain.ChainID) {
			defer wg.Done()
			for b := uint64(1); b <= 200; b++ {
				m.Ingest(gasFeature(c, b, "1"))
				_ = m.Snapshot()
			}
		}(c)
	}
	wg.Wait()

	if m.Version() != 800 {
		t.Errorf("Version = %d, want 800", m.Version())
	}
	for _, c := range chains {
		if m.Head(c) != 200 {
			t.Errorf("head(%d) = %d", c, m.Head(c))
		}
	}
}

func TestMarketState_OnNewHead(t *testing.T) {
	m, _ := newTestState()
	var heads []uint64
	m.OnNewHead(func(_ domain.ChainID, block uint64) { heads = append(heads, block) })

	m.Ingest(gasFeature(domain.ChainEthereum, 5, "20"))
	m.Ingest(poolFeature(5, "0xabc", "1", "1"))
	m.Ingest(poolFeature(6, "0xabc", "1", "1"))

	if len(heads) != 2 || heads[0] != 5 || heads[1] != 6 {
		t.Errorf("heads = %v, want [5 6]", heads)
	}
}

type sliceSource struct {
	name     string
	features []domain.Feature
	bad      int
}

func (s *sliceSource) Name() string { return s.name }

func (s *sliceSource) Run(ctx context.Context, sink Sink) error {
	for _, f := range s.features {
		sink.Ingest(ctx, s.name, f)
	}
	for i := 0; i < s.bad; i++ {
		sink.Malformed(ctx, s.name, fmt.Errorf("frame %d", i))
	}
	return nil
}

func TestIngestor_CountsOutcomes(t *testing.T) {
	m, _ := newTestState()
	log := logger.New(io.Discard, logger.LevelError, "test", nil)

	ing := NewIngestor(m, log,
		&sliceSource{name: "a", features: []domain.Feature{
			gasFeature(domain.ChainEthereum, 1, "20"),
			gasFeature(domain.ChainEthereum, 1, "20"),
		}},
		&sliceSource{name: "b", features: []domain.Feature{
			gasFeature(domain.ChainBase, 7, "0.01"),
			poolFeature(1, "0x01", "-5", "1"),
		}, bad: 2},
	)
	ing.Start(context.Background())
	ing.Wait()

	got := ing.Stats()
	want := IngestStats{Accepted: 2, Duplicate: 1, Invalid: 1, Malformed: 2}
	if got != want {
		t.Errorf("Stats = %+v, want %+v", got, want)
	}

	f, ok := m.Get(domain.ChainBase, domain.FeatureGas, "gas")
	if !ok || f.Source != "b" {
		t.Errorf("source not stamped: %+v", f)
	}
}

type failingSource struct {
	name  string
	fails int
	err   error
	runs  int
}

func (s *failingSource) Name() string { return s.name }

func (s *failingSource) Run(context.Context, Sink) error {
	s.runs++
	if s.runs <= s.fails {
		return s.err
	}
	return nil
}

func TestIngestor_RestartsTransientFailures(t *testing.T) {
	m, _ := newTestState()
	log := logger.New(io.Discard, logger.LevelError, "test", nil)

	transient := &failingSource{name: "ws", fails: 2, err: apperror.New(apperror.CodeWebSocketClosed)}
	permanent := &failingSource{name: "replay", fails: 5, err: apperror.New(apperror.CodeReplaySourceError)}

	ing := NewIngestor(m, log, transient, permanent)
	ing.RestartDelay = time.Millisecond
	ing.Start(context.Background())
	ing.Wait()

	if transient.runs != 3 {
		t.Errorf("transient source ran %d times, want 3", transient.runs)
	}
	if permanent.runs != 1 {
		t.Errorf("permanent source ran %d times, want 1", permanent.runs)
	}
}

func BenchmarkMarketState_Snapshot(b *testing.B) {
	m, _ := newTestState()
	for i := 0; i < 500; i++ {
		m.Ingest(poolFeature(1, fmt.Sprintf("0x%x", i+1), "100", "100"))
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = m.Snapshot()
	}
}
