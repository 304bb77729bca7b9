package app

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	arbitrage "github.com/fd1az/multichain-arb/business/arbitrage/domain"
	"github.com/fd1az/multichain-arb/business/feedback/domain"
	"github.com/fd1az/multichain-arb/internal/apperror"
	"github.com/fd1az/multichain-arb/internal/logger"
)

const meterName = "github.com/fd1az/multichain-arb/business/feedback/app"

// Processor records realized outcomes against tracked intents and keeps a
// calibration per strategy.
type Processor struct {
	store OutcomeStore
	log   logger.LoggerInterface
	now   func() time.Time

	mu     sync.RWMutex
	byName map[string]*domain.Calibration

	outcomes metric.Int64Counter
	errorUSD metric.Float64Histogram
}

// NewProcessor creates a processor backed by store.
func NewProcessor(store OutcomeStore, log logger.LoggerInterface) *Processor {
	p := &Processor{
		store:  store,
		log:    log,
		now:    time.Now,
		byName: make(map[string]*domain.Calibration),
	}
	meter := otel.Meter(meterName)
	p.outcomes, _ = meter.Int64Counter("feedback_outcomes_total",
		metric.WithDescription("Outcomes recorded by strategy and result"))
	p.errorUSD, _ = meter.Float64Histogram("feedback_error_usd",
		metric.WithDescription("Realized minus expected profit"))
	return p
}

// Load rebuilds calibrations from the outcomes already in the store.
func (p *Processor) Load(ctx context.Context) error {
	outcomes, err := p.store.Outcomes(ctx)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.byName = make(map[string]*domain.Calibration)
	for _, o := range outcomes {
		p.calibration(o.Strategy).Add(o)
	}
	return nil
}

// Track records what a published intent expects to make.
func (p *Processor) Track(ctx context.Context, intent arbitrage.TradeIntent) error {
	return p.store.SaveExpectation(ctx, domain.Expectation{
		CandidateID:       intent.CandidateID,
		IntentID:          intent.ID,
		Strategy:          intent.Strategy,
		ExpectedProfitUSD: intent.ExpectedProfitUSD,
		NotionalUSD:       intent.NotionalUSD,
		Confidence:        intent.Confidence,
		TrackedAt:         p.now(),
	})
}

// RecordOutcome settles a tracked candidate. An untracked candidate fails
// with CodeOutcomeNotFound and a second report with
// CodeOutcomeAlreadyRecorded.
func (p *Processor) RecordOutcome(ctx context.Context, candidateID string, realizedPnLUSD decimal.Decimal) (domain.Outcome, error) {
	exp, err := p.store.Expectation(ctx, candidateID)
	if err != nil {
		return domain.Outcome{}, err
	}

	o := domain.NewOutcome(exp, realizedPnLUSD, p.now())
	if err := p.store.SaveOutcome(ctx, o); err != nil {
		return domain.Outcome{}, err
	}

	p.mu.Lock()
	p.calibration(o.Strategy).Add(o)
	p.mu.Unlock()

	result := "loss"
	if o.Win() {
		result = "win"
	}
	attrs := metric.WithAttributes(attribute.String("strategy", o.Strategy))
	p.outcomes.Add(ctx, 1, attrs, metric.WithAttributes(attribute.String("result", result)))
	p.errorUSD.Record(ctx, o.ErrorUSD.InexactFloat64(), attrs)

	p.log.Info(ctx, "outcome recorded",
		"candidate", candidateID,
		"strategy", o.Strategy,
		"expected_usd", o.ExpectedProfitUSD.StringFixed(2),
		"realized_usd", o.RealizedPnLUSD.StringFixed(2),
		"error_usd", o.ErrorUSD.StringFixed(2))
	return o, nil
}

// Stats returns the calibration of strategy.
func (p *Processor) Stats(strategy string) (domain.Calibration, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	c, ok := p.byName[strategy]
	if !ok {
		return domain.Calibration{Strategy: strategy}, false
	}
	return *c, true
}

// Strategies returns the strategies with at least one outcome.
func (p *Processor) Strategies() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	names := make([]string, 0, len(p.byName))
	for n := range p.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// calibration must be called with mu held.
func (p *Processor) calibration(strategy string) *domain.Calibration {
	c, ok := p.byName[strategy]
	if !ok {
		c = &domain.Calibration{Strategy: strategy}
		p.byName[strategy] = c
	}
	return c
}

// NotFound builds the error stores return for an untracked candidate.
func NotFound(candidateID string) error {
	return apperror.New(apperror.CodeOutcomeNotFound, apperror.WithContext("candidate "+candidateID))
}

// AlreadyRecorded builds the error stores return for a duplicate outcome.
func AlreadyRecorded(candidateID string) error {
	return apperror.New(apperror.CodeOutcomeAlreadyRecorded, apperror.WithContext("candidate "+candidateID))
}
