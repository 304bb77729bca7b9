package app

import (
	"context"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/fd1az/multichain-arb/business/arbitrage/domain"
	"github.com/fd1az/multichain-arb/internal/apperror"
	"github.com/fd1az/multichain-arb/internal/logger"
	"github.com/fd1az/multichain-arb/internal/ratelimit"
)

// Cycle triggers.
const (
	TriggerTimer  = "timer"
	TriggerHead   = "head"
	TriggerManual = "manual"
)

// EngineConfig controls cycle scheduling.
type EngineConfig struct {
	Interval             time.Duration
	CycleDeadline        time.Duration
	MaxCyclesPerSec      float64
	EvalConcurrency      int
	RecentCap            int
	PublishIntents       bool
	SlippageToleranceBps decimal.Decimal
	IntentDeadline       time.Duration
}

// DefaultEngineConfig returns defaults suited to L2 block times.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Interval:             2 * time.Second,
		CycleDeadline:        time.Second,
		MaxCyclesPerSec:      4,
		EvalConcurrency:      8,
		RecentCap:            50,
		PublishIntents:       true,
		SlippageToleranceBps: decimal.NewFromInt(50),
		IntentDeadline:       30 * time.Second,
	}
}

// CycleReport summarizes one decision cycle.
type CycleReport struct {
	Cycle            uint64
	Trigger          string
	SnapshotVersion  uint64
	StartedAt        time.Time
	Duration         time.Duration
	Candidates       int
	Duplicates       int
	DetectorFailures map[string]error
	Evaluated        int
	Rejected         map[domain.RejectReason]int
	Filtered         map[FilterReason]int
	Best             *domain.EvaluationResult
	Intent           *domain.TradeIntent
	Published        bool
	Err              error
}

// Aborted reports whether the cycle was abandoned before deciding.
func (r CycleReport) Aborted() bool {
	return apperror.HasCode(r.Err, apperror.CodeCycleAborted)
}

// EngineStats are cumulative cycle counters.
type EngineStats struct {
	Cycles      uint64
	Selected    uint64
	Aborted     uint64
	Dropped     uint64
	RateLimited uint64
	LastCycle   time.Time
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithEvaluationSink records every evaluation of completed cycles.
func WithEvaluationSink(s EvaluationSink) EngineOption {
	return func(e *Engine) { e.sink = s }
}

// WithIntentPublisher emits the selected decision of each cycle.
func WithIntentPublisher(p IntentPublisher) EngineOption {
	return func(e *Engine) { e.publisher = p }
}

// WithEngineClock overrides the wall clock.
func WithEngineClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// Engine runs detection, evaluation and decision cycles against one
// snapshot each. Cycles never overlap.
type Engine struct {
	cfg       EngineConfig
	log       logger.LoggerInterface
	state     SnapshotSource
	detectors *DetectorManager
	evaluator *Evaluator
	decisions *DecisionEngine
	sink      EvaluationSink
	publisher IntentPublisher
	limiter   *ratelimit.Limiter
	now       func() time.Time

	trigger chan string
	busy    atomic.Bool
	cycle   atomic.Uint64
	stats   struct {
		selected atomic.Uint64
		aborted  atomic.Uint64
		dropped  atomic.Uint64
		last     atomic.Int64
	}

	mu       sync.RWMutex
	onIntent []func(context.Context, domain.TradeIntent)
	onCycle  []func(CycleReport)
	recent   []CycleReport

	tracer  trace.Tracer
	metrics *engineMetrics
}

type engineMetrics struct {
	cycles     metric.Int64Counter
	duration   metric.Float64Histogram
	candidates metric.Int64Counter
	decisions  metric.Int64Counter
}

// NewEngine creates a cycle engine.
func NewEngine(cfg EngineConfig, log logger.LoggerInterface, state SnapshotSource, detectors *DetectorManager, evaluator *Evaluator, decisions *DecisionEngine, opts ...EngineOption) *Engine {
	if cfg.EvalConcurrency < 1 {
		cfg.EvalConcurrency = 1
	}
	if cfg.RecentCap < 1 {
		cfg.RecentCap = 1
	}
	e := &Engine{
		cfg:       cfg,
		log:       log,
		state:     state,
		detectors: detectors,
		evaluator: evaluator,
		decisions: decisions,
		limiter:   ratelimit.New(cfg.MaxCyclesPerSec, 1),
		now:       time.Now,
		trigger:   make(chan string, 1),
		tracer:    otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.metrics = e.initMetrics()
	return e
}

func (e *Engine) initMetrics() *engineMetrics {
	meter := otel.Meter(meterName)
	m := &engineMetrics{}
	m.cycles, _ = meter.Int64Counter("arbitrage_cycles_total",
		metric.WithDescription("Decision cycles by outcome"))
	m.duration, _ = meter.Float64Histogram("arbitrage_cycle_duration_ms",
		metric.WithDescription("Decision cycle duration"),
		metric.WithUnit("ms"))
	m.candidates, _ = meter.Int64Counter("arbitrage_cycle_candidates_total",
		metric.WithDescription("Candidates evaluated per cycle after deduplication"))
	m.decisions, _ = meter.Int64Counter("arbitrage_decisions_total",
		metric.WithDescription("Cycles that selected an opportunity"))
	return m
}

// OnIntent registers a hook called with every published intent.
func (e *Engine) OnIntent(fn func(context.Context, domain.TradeIntent)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onIntent = append(e.onIntent, fn)
}

// OnCycle registers a hook called after every cycle, aborted ones included.
func (e *Engine) OnCycle(fn func(CycleReport)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onCycle = append(e.onCycle, fn)
}

// Trigger requests a cycle without blocking. A request made while one is
// already pending is dropped.
func (e *Engine) Trigger(reason string) {
	select {
	case e.trigger <- reason:
	default:
		e.stats.dropped.Add(1)
	}
}

// Run schedules cycles from the ticker and from Trigger until ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	var tick <-chan time.Time
	if e.cfg.Interval > 0 {
		t := time.NewTicker(e.cfg.Interval)
		defer t.Stop()
		tick = t.C
	}

	for {
		var reason string
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick:
			reason = TriggerTimer
		case reason = <-e.trigger:
		}

		if !e.limiter.Allow() {
			continue
		}
		if _, err := e.RunCycle(ctx, reason); err != nil && !apperror.HasCode(err, apperror.CodeCycleAborted) {
			e.log.Error(ctx, "cycle failed", "error", err)
		}
	}
}

// RunCycle takes one snapshot, detects, evaluates and decides against it.
// A cycle that misses its deadline is abandoned with CodeCycleAborted and
// has no side effects. A call made while another cycle runs is dropped.
func (e *Engine) RunCycle(ctx context.Context, reason string) (CycleReport, error) {
	if !e.busy.CompareAndSwap(false, true) {
		e.stats.dropped.Add(1)
		return CycleReport{Trigger: reason}, apperror.New(apperror.CodeCycleAborted,
			apperror.WithContext("a cycle is already running"))
	}
	defer e.busy.Store(false)

	started := e.now()
	rep := CycleReport{
		Cycle:     e.cycle.Add(1),
		Trigger:   reason,
		StartedAt: started,
		Rejected:  make(map[domain.RejectReason]int),
	}
	e.stats.last.Store(started.UnixNano())

	cycleCtx := ctx
	if e.cfg.CycleDeadline > 0 {
		var cancel context.CancelFunc
		cycleCtx, cancel = context.WithTimeout(ctx, e.cfg.CycleDeadline)
		defer cancel()
	}
	cycleCtx, span := e.tracer.Start(cycleCtx, "arbitrage.cycle",
		trace.WithAttributes(
			attribute.Int64("cycle", int64(rep.Cycle)),
			attribute.String("trigger", reason),
		))
	defer span.End()

	snap := e.state.Snapshot()
	rep.SnapshotVersion = snap.Version

	det := e.detectors.DetectAll(cycleCtx, snap)
	rep.Candidates = len(det.Candidates)
	rep.Duplicates = det.Duplicates
	rep.DetectorFailures = det.Failures
	if err := cycleCtx.Err(); err != nil {
		return e.abort(ctx, rep, err)
	}

	evals := make([]domain.EvaluationResult, len(det.Candidates))
	g, gctx := errgroup.WithContext(cycleCtx)
	g.SetLimit(e.cfg.EvalConcurrency)
	for i, c := range det.Candidates {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			evals[i] = e.evaluator.Evaluate(gctx, snap, c)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return e.abort(ctx, rep, err)
	}
	if err := cycleCtx.Err(); err != nil {
		return e.abort(ctx, rep, err)
	}

	rep.Evaluated = len(evals)
	for _, ev := range evals {
		if ev.Rejected() {
			rep.Rejected[ev.Rejection.Reason]++
			e.log.Debug(ctx, "candidate rejected",
				"candidate", ev.Candidate.ID,
				"detector", ev.Candidate.Detector,
				"reason", ev.Rejection.Reason,
				"detail", ev.Rejection.Detail)
		}
	}
	if len(rep.Rejected) > 0 {
		args := []any{"cycle", rep.Cycle, "evaluated", rep.Evaluated}
		for _, reason := range slices.Sorted(maps.Keys(rep.Rejected)) {
			args = append(args, string(reason), rep.Rejected[reason])
		}
		e.log.Info(ctx, "candidates rejected", args...)
	}

	dec := e.decisions.Decide(evals)
	rep.Filtered = dec.Filtered

	if e.sink != nil && len(evals) > 0 {
		if err := e.sink.Append(ctx, rep.Cycle, evals); err != nil {
			e.log.Warn(ctx, "evaluation sink append failed", "cycle", rep.Cycle, "error", err)
		}
	}

	if dec.Selected {
		best := dec.Best
		rep.Best = &best
		e.stats.selected.Add(1)
		e.metrics.decisions.Add(ctx, 1, metric.WithAttributes(attribute.String("strategy", best.Candidate.Strategy)))

		if e.cfg.PublishIntents {
			intent := domain.NewTradeIntent(best, e.cfg.SlippageToleranceBps, e.cfg.IntentDeadline, e.now())
			rep.Intent = &intent
			rep.Published = e.emit(ctx, intent)
		}
	}

	rep.Duration = e.now().Sub(started)
	e.metrics.candidates.Add(ctx, int64(rep.Candidates))
	e.metrics.cycles.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome(rep))))
	e.metrics.duration.Record(ctx, float64(rep.Duration.Microseconds())/1000)
	span.SetAttributes(
		attribute.Int("candidates", rep.Candidates),
		attribute.Bool("selected", rep.Best != nil),
	)

	if rep.Best != nil {
		e.log.Info(ctx, "opportunity selected",
			"cycle", rep.Cycle,
			"candidate", rep.Best.Candidate.ID,
			"strategy", rep.Best.Candidate.Strategy,
			"net_usd", rep.Best.NetProfitUSD.StringFixed(2),
			"net_bps", rep.Best.NetProfitBps.StringFixed(1),
			"staleness", rep.Best.Staleness)
	}
	e.finish(rep)
	return rep, nil
}

// emit publishes the intent and, once it is out, runs the intent hooks.
func (e *Engine) emit(ctx context.Context, intent domain.TradeIntent) bool {
	if e.publisher != nil {
		if err := e.publisher.Publish(ctx, intent); err != nil {
			e.log.Warn(ctx, "intent publish failed", "intent", intent.ID, "error", err)
			return false
		}
	}
	e.mu.RLock()
	hooks := slices.Clone(e.onIntent)
	e.mu.RUnlock()
	for _, fn := range hooks {
		fn(ctx, intent)
	}
	return true
}

func (e *Engine) abort(ctx context.Context, rep CycleReport, cause error) (CycleReport, error) {
	e.stats.aborted.Add(1)
	rep.Duration = e.now().Sub(rep.StartedAt)
	rep.Err = apperror.New(apperror.CodeCycleAborted,
		apperror.WithCause(cause),
		apperror.WithContext("cycle deadline exceeded"))
	e.metrics.cycles.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "aborted")))
	e.log.Warn(ctx, "cycle aborted", "cycle", rep.Cycle, "candidates", rep.Candidates, "error", cause)
	e.finish(rep)
	return rep, rep.Err
}

func (e *Engine) finish(rep CycleReport) {
	e.mu.Lock()
	e.recent = append(e.recent, rep)
	if over := len(e.recent) - e.cfg.RecentCap; over > 0 {
		e.recent = append(e.recent[:0:0], e.recent[over:]...)
	}
	hooks := slices.Clone(e.onCycle)
	e.mu.Unlock()

	for _, fn := range hooks {
		fn(rep)
	}
}

func outcome(rep CycleReport) string {
	if rep.Best != nil {
		return "selected"
	}
	return "none"
}

// Recent returns the latest cycle reports, oldest first.
func (e *Engine) Recent() []CycleReport {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]CycleReport(nil), e.recent...)
}

// Stats returns cumulative counters.
func (e *Engine) Stats() EngineStats {
	s := EngineStats{
		Cycles:      e.cycle.Load(),
		Selected:    e.stats.selected.Load(),
		Aborted:     e.stats.aborted.Load(),
		Dropped:     e.stats.dropped.Load(),
		RateLimited: e.limiter.Rejected(),
	}
	if ns := e.stats.last.Load(); ns != 0 {
		s.LastCycle = time.Unix(0, ns)
	}
	return s
}
