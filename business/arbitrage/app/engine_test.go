package app

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fd1az/multichain-arb/business/arbitrage/domain"
	market "github.com/fd1az/multichain-arb/business/market/domain"
	"github.com/fd1az/multichain-arb/internal/apperror"
	"github.com/fd1az/multichain-arb/internal/logger"
)

type fixedState struct{ snap *market.Snapshot }

func (s fixedState) Snapshot() *market.Snapshot { return s.snap }

type recorder struct {
	mu      sync.Mutex
	intents []domain.TradeIntent
	cycles  []uint64
	evals   int
	fail    error
}

func (r *recorder) Publish(_ context.Context, intent domain.TradeIntent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	r.intents = append(r.intents, intent)
	return nil
}

func (r *recorder) Append(_ context.Context, cycle uint64, evals []domain.EvaluationResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cycles = append(r.cycles, cycle)
	r.evals += len(evals)
	return nil
}

func (r *recorder) published() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.intents)
}

func newTestEngine(cfg EngineConfig, snap *market.Snapshot, rec *recorder, detectors ...Detector) *Engine {
	if len(detectors) == 0 {
		detectors = []Detector{NewTriangularDetector(detectorConfig("10"), testPrices, wrapped{})}
	}
	return NewEngine(cfg, discard(), fixedState{snap},
		NewDetectorManager(discard(), 0, detectors...),
		newTestEvaluator(),
		NewDecisionEngine(wrapped{}, testStrategy()),
		WithEvaluationSink(rec),
		WithIntentPublisher(rec),
		WithEngineClock(func() time.Time { return t0 }),
	)
}

func profitableTriangle() *market.Snapshot {
	return snapshot(
		now(pool(market.ChainEthereum, "WETH", "USDC", "100", "200000")),
		now(pool(market.ChainEthereum, "USDC", "DAI", "1000000", "1000000")),
		now(pool(market.ChainEthereum, "WETH", "DAI", "100", "220000")),
		now(gas(market.ChainEthereum, "10")),
	)
}

func TestEngine_RunCycle(t *testing.T) {
	rec := &recorder{}
	e := newTestEngine(DefaultEngineConfig(), profitableTriangle(), rec)

	var hooked []domain.TradeIntent
	e.OnIntent(func(_ context.Context, in domain.TradeIntent) { hooked = append(hooked, in) })

	rep, err := e.RunCycle(context.Background(), TriggerManual)
	if err != nil {
		t.Fatal(err)
	}
	if rep.Best == nil || rep.Intent == nil {
		t.Fatalf("report = %+v, want a selection", rep)
	}
	if rep.Candidates != 1 || rep.Evaluated != 1 {
		t.Errorf("candidates = %d evaluated = %d", rep.Candidates, rep.Evaluated)
	}
	if rep.Intent.CandidateID != rep.Best.Candidate.ID {
		t.Errorf("intent candidate = %s, want %s", rep.Intent.CandidateID, rep.Best.Candidate.ID)
	}
	if !rep.Intent.MinOut.LessThan(rep.Best.GrossOutput) {
		t.Errorf("min out %s not below expected %s", rep.Intent.MinOut, rep.Best.GrossOutput)
	}
	if rec.published() != 1 || len(hooked) != 1 {
		t.Errorf("published = %d hooked = %d", rec.published(), len(hooked))
	}
	if len(rec.cycles) != 1 || rec.cycles[0] != rep.Cycle || rec.evals != 1 {
		t.Errorf("sink cycles = %v evals = %d", rec.cycles, rec.evals)
	}

	stats := e.Stats()
	if stats.Cycles != 1 || stats.Selected != 1 || stats.Aborted != 0 {
		t.Errorf("stats = %+v", stats)
	}
	if len(e.Recent()) != 1 {
		t.Errorf("recent = %d", len(e.Recent()))
	}
}

func TestEngine_NoOpportunity(t *testing.T) {
	rec := &recorder{}
	snap := snapshot(now(pool(market.ChainEthereum, "WETH", "USDC", "100", "200000")))
	e := newTestEngine(DefaultEngineConfig(), snap, rec)

	rep, err := e.RunCycle(context.Background(), TriggerManual)
	if err != nil {
		t.Fatal(err)
	}
	if rep.Best != nil || rec.published() != 0 {
		t.Errorf("unexpected selection %+v", rep.Best)
	}
}

func TestEngine_PublishFailureSkipsHooks(t *testing.T) {
	rec := &recorder{fail: errors.New("redis down")}
	e := newTestEngine(DefaultEngineConfig(), profitableTriangle(), rec)
	var hooked int
	e.OnIntent(func(context.Context, domain.TradeIntent) { hooked++ })

	rep, err := e.RunCycle(context.Background(), TriggerManual)
	if err != nil {
		t.Fatal(err)
	}
	if rep.Intent == nil || rep.Published {
		t.Errorf("intent = %v, published = %v", rep.Intent, rep.Published)
	}
	if hooked != 0 {
		t.Errorf("hooks ran %d times for an unpublished intent", hooked)
	}
}

func TestEngine_DeadlineAbortsWithoutSideEffects(t *testing.T) {
	rec := &recorder{}
	cfg := DefaultEngineConfig()
	cfg.CycleDeadline = 20 * time.Millisecond
	e := newTestEngine(cfg, profitableTriangle(), rec,
		NewTriangularDetector(detectorConfig("10"), testPrices, wrapped{}),
		&stubDetector{name: "slow", wait: time.Second},
	)

	rep, err := e.RunCycle(context.Background(), TriggerManual)
	if !apperror.HasCode(err, apperror.CodeCycleAborted) {
		t.Fatalf("err = %v, want cycle aborted", err)
	}
	if !rep.Aborted() {
		t.Error("report not marked aborted")
	}
	if rec.published() != 0 || len(rec.cycles) != 0 {
		t.Errorf("aborted cycle had side effects: published = %d sink = %v", rec.published(), rec.cycles)
	}
	if e.Stats().Aborted != 1 {
		t.Errorf("aborted = %d", e.Stats().Aborted)
	}
}

func TestEngine_DeadlineAbortsStuckDetector(t *testing.T) {
	stuck := &stuckDetector{release: make(chan struct{})}
	defer close(stuck.release)

	rec := &recorder{}
	cfg := DefaultEngineConfig()
	cfg.CycleDeadline = 30 * time.Millisecond
	e := newTestEngine(cfg, profitableTriangle(), rec, stuck)

	start := time.Now()
	_, err := e.RunCycle(context.Background(), TriggerManual)
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("RunCycle took %v", elapsed)
	}
	if !apperror.HasCode(err, apperror.CodeCycleAborted) {
		t.Fatalf("err = %v, want cycle aborted", err)
	}
	if rec.published() != 0 {
		t.Errorf("published = %d", rec.published())
	}

	// the next trigger is not dropped as overlapping
	if _, err := e.RunCycle(context.Background(), TriggerManual); !apperror.HasCode(err, apperror.CodeCycleAborted) {
		t.Fatalf("second cycle err = %v", err)
	}
	if e.Stats().Dropped != 0 {
		t.Errorf("dropped = %d, want 0", e.Stats().Dropped)
	}
}

func TestEngine_RejectionsLoggedAtInfo(t *testing.T) {
	cheap, _, legs := twoPool(market.ChainEthereum, market.ChainEthereum)
	snap := snapshot(now(cheap), now(gas(market.ChainEthereum, "10")))
	orphan := domain.NewCandidate("arb", "test", legs, snap)

	var buf bytes.Buffer
	e := NewEngine(DefaultEngineConfig(), logger.New(&buf, logger.LevelInfo, "test", nil), fixedState{snap},
		NewDetectorManager(discard(), 0, &stubDetector{name: "orphan", out: []domain.Candidate{orphan}}),
		newTestEvaluator(),
		NewDecisionEngine(wrapped{}, testStrategy()),
		WithEngineClock(func() time.Time { return t0 }),
	)

	rep, err := e.RunCycle(context.Background(), TriggerManual)
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if rep.Rejected[domain.RejectStaleData] != 1 {
		t.Fatalf("rejected = %v", rep.Rejected)
	}
	out := buf.String()
	if !strings.Contains(out, "candidates rejected") || !strings.Contains(out, string(domain.RejectStaleData)) {
		t.Errorf("log = %q", out)
	}
}

type gateDetector struct {
	started chan struct{}
	release chan struct{}
}

func (g *gateDetector) Name() string { return "gate" }

func (g *gateDetector) Detect(context.Context, *market.Snapshot) ([]domain.Candidate, error) {
	close(g.started)
	<-g.release
	return nil, nil
}

func TestEngine_OverlappingCycleDropped(t *testing.T) {
	gate := &gateDetector{started: make(chan struct{}), release: make(chan struct{})}
	cfg := DefaultEngineConfig()
	cfg.CycleDeadline = 0
	e := newTestEngine(cfg, profitableTriangle(), &recorder{}, gate)

	done := make(chan error, 1)
	go func() {
		_, err := e.RunCycle(context.Background(), TriggerHead)
		done <- err
	}()
	<-gate.started

	if _, err := e.RunCycle(context.Background(), TriggerHead); !apperror.HasCode(err, apperror.CodeCycleAborted) {
		t.Errorf("overlapping cycle err = %v", err)
	}
	close(gate.release)
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if s := e.Stats(); s.Dropped != 1 || s.Cycles != 1 {
		t.Errorf("stats = %+v", s)
	}
}

func TestEngine_RunOnTrigger(t *testing.T) {
	cfg := DefaultEngineConfig()
	cfg.Interval = 0
	e := newTestEngine(cfg, profitableTriangle(), &recorder{})

	cycles := make(chan CycleReport, 4)
	e.OnCycle(func(r CycleReport) { cycles <- r })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errc := make(chan error, 1)
	go func() { errc <- e.Run(ctx) }()

	e.Trigger(TriggerHead)
	select {
	case r := <-cycles:
		if r.Trigger != TriggerHead {
			t.Errorf("trigger = %s", r.Trigger)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no cycle after trigger")
	}

	cancel()
	if err := <-errc; !errors.Is(err, context.Canceled) {
		t.Errorf("run err = %v", err)
	}
}
