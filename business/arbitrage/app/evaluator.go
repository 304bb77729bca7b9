package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/multichain-arb/business/arbitrage/domain"
	market "github.com/fd1az/multichain-arb/business/market/domain"
	"github.com/fd1az/multichain-arb/internal/asset"
)

// EvaluatorConfig tunes cost defaults and confidence penalties.
type EvaluatorConfig struct {
	Gas                  domain.GasTable
	DefaultBridgeFeeBps  decimal.Decimal
	FlashLoanFees        map[string]decimal.Decimal
	GasFallbackPenalty   float64
	BridgeDefaultPenalty float64
	ApproximatePenalty   float64
}

// DefaultEvaluatorConfig returns the built-in cost table.
func DefaultEvaluatorConfig() EvaluatorConfig {
	return EvaluatorConfig{
		Gas:                  domain.DefaultGasTable(),
		DefaultBridgeFeeBps:  domain.DefaultBridgeFeeBps,
		FlashLoanFees:        domain.DefaultFlashLoanFeeBps,
		GasFallbackPenalty:   0.25,
		BridgeDefaultPenalty: 0.1,
		ApproximatePenalty:   0.1,
	}
}

// Evaluator prices candidates against a snapshot. It never mutates market
// state and is safe for concurrent use.
type Evaluator struct {
	cfg        EvaluatorConfig
	chains     *market.ChainRegistry
	prices     PriceOracle
	canon      Canonicalizer
	strategies map[string]domain.StrategyConfig

	tracer      trace.Tracer
	evaluations metric.Int64Counter
}

// NewEvaluator creates an evaluator. A nil chain registry uses the default
// chains.
func NewEvaluator(cfg EvaluatorConfig, chains *market.ChainRegistry, prices PriceOracle, canon Canonicalizer, strategies []domain.StrategyConfig) *Evaluator {
	if chains == nil {
		chains = market.DefaultChains()
	}
	e := &Evaluator{
		cfg:        cfg,
		chains:     chains,
		prices:     prices,
		canon:      canon,
		strategies: make(map[string]domain.StrategyConfig, len(strategies)),
		tracer:     otel.Tracer(tracerName),
	}
	for _, s := range strategies {
		e.strategies[s.Name] = s
	}
	e.evaluations, _ = otel.Meter(meterName).Int64Counter("arbitrage_evaluations_total",
		metric.WithDescription("Candidate evaluations by outcome"))
	return e
}

// Evaluate threads the candidate's starting amount through its legs and
// prices the result. Failures are reported in the result's Rejection.
func (e *Evaluator) Evaluate(ctx context.Context, snap *market.Snapshot, c domain.Candidate) domain.EvaluationResult {
	ctx, span := e.tracer.Start(ctx, "arbitrage.evaluate",
		trace.WithAttributes(
			attribute.String("candidate", c.ID),
			attribute.String("detector", c.Detector),
			attribute.Int("legs", len(c.Legs)),
		))
	defer span.End()

	r := &evalRun{
		e:    e,
		snap: snap,
		res: domain.EvaluationResult{
			Candidate:   c,
			Confidence:  1,
			EvaluatedAt: snap.TakenAt,
		},
	}
	r.res.Rejection = r.run()
	r.res.Staleness = snap.Staleness(r.consulted...)

	outcome := "accepted"
	if r.res.Rejected() {
		outcome = string(r.res.Rejection.Reason)
		span.SetAttributes(attribute.String("rejection", r.res.Rejection.Detail))
	}
	span.SetAttributes(attribute.String("outcome", outcome))
	e.evaluations.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	return r.res
}

type gasCharge struct {
	chain market.ChainID
	op    domain.GasOp
}

// evalRun is the state of one evaluation.
type evalRun struct {
	e         *Evaluator
	snap      *market.Snapshot
	res       domain.EvaluationResult
	consulted []market.Entry
	gas       []gasCharge
}

func (r *evalRun) consult(e market.Entry) { r.consulted = append(r.consulted, e) }

func stale(format string, args ...any) *domain.Rejection {
	return &domain.Rejection{Reason: domain.RejectStaleData, Detail: fmt.Sprintf(format, args...)}
}

func broken(format string, args ...any) *domain.Rejection {
	return &domain.Rejection{Reason: domain.RejectInternalInvariant, Detail: fmt.Sprintf(format, args...)}
}

func (r *evalRun) run() *domain.Rejection {
	c := r.res.Candidate
	if len(c.Legs) == 0 {
		return broken("candidate has no legs")
	}
	strategy, known := r.e.strategies[c.Strategy]

	for _, ch := range c.Chains() {
		if entry, ok := r.snap.Fresh(market.SequencerKey(ch)); ok && entry.Feature.Sequencer != nil {
			r.consult(entry)
			if !entry.Feature.Sequencer.Healthy {
				return stale("sequencer on chain %s reports unhealthy", ch)
			}
		}
	}

	amount := c.Legs[0].Notional
	symbol := c.Legs[0].AssetIn
	if !amount.IsPositive() {
		return broken("starting notional %s is not positive", amount)
	}
	inPrice, rej := r.price(symbol)
	if rej != nil {
		return rej
	}
	r.res.AmountIn = amount
	r.res.NotionalUSD = inPrice.Value(amount)

	if known && strategy.OwnCapitalUSD.IsPositive() && r.res.NotionalUSD.GreaterThan(strategy.OwnCapitalUSD) {
		if c.CrossChain() {
			return &domain.Rejection{Reason: domain.RejectPolicyViolation,
				Detail: "notional " + r.res.NotionalUSD.StringFixed(2) + " USD exceeds own capital and flash loans cannot span chains"}
		}
		if rej := r.planFlashLoan(c.Legs[0].Chain, symbol, amount, inPrice, nil); rej != nil {
			return rej
		}
	}

	for i, leg := range c.Legs {
		if !strings.EqualFold(leg.AssetIn, symbol) {
			return broken("leg %d consumes %s but the path holds %s", i, leg.AssetIn, symbol)
		}

		var rej *domain.Rejection
		switch leg.Kind {
		case domain.LegSwap:
			amount, rej = r.swap(leg, amount)
		case domain.LegBridge:
			amount, rej = r.bridge(leg, amount)
		case domain.LegFlashLoan:
			rej = r.explicitFlashLoan(leg, amount)
		default:
			rej = broken("leg %d has unknown kind %q", i, leg.Kind)
		}
		if rej != nil {
			return rej
		}
		symbol = leg.AssetOut
	}

	gasUSD, rej := r.gasUSD()
	if rej != nil {
		return rej
	}
	r.res.Costs.GasUSD = gasUSD

	outPrice, rej := r.price(symbol)
	if rej != nil {
		return rej
	}
	r.res.GrossOutput = amount
	r.res.OutputAsset = symbol
	r.res.GrossOutputUSD = outPrice.Value(amount)
	r.res.NetProfitUSD = r.res.GrossOutputUSD.Sub(r.res.Costs.TotalUSD()).Sub(r.res.NotionalUSD)
	if r.res.NotionalUSD.IsPositive() {
		r.res.NetProfitBps = r.res.NetProfitUSD.Div(r.res.NotionalUSD).Mul(bps)
	}
	r.res.Confidence = r.confidence()

	if known && strategy.MaxPathLatency > 0 && r.res.PathLatency > strategy.MaxPathLatency {
		return &domain.Rejection{Reason: domain.RejectPolicyViolation,
			Detail: "path latency " + r.res.PathLatency.String() + " exceeds " + strategy.MaxPathLatency.String()}
	}
	if !r.res.NetProfitUSD.IsPositive() {
		return &domain.Rejection{Reason: domain.RejectUnprofitable,
			Detail: "net " + r.res.NetProfitUSD.StringFixed(2) + " USD"}
	}
	return nil
}

func (r *evalRun) swap(leg domain.Leg, amount decimal.Decimal) (decimal.Decimal, *domain.Rejection) {
	entry, ok := r.snap.Fresh(leg.Venue)
	if !ok || entry.Feature.AMM == nil {
		return decimal.Zero, stale("insufficient data: pool %s missing or stale", leg.Venue)
	}
	r.consult(entry)

	pool := entry.Feature.AMM
	if out, ok := pool.Other(leg.AssetIn); !ok || !strings.EqualFold(out, leg.AssetOut) {
		return decimal.Zero, broken("pool %s does not swap %s for %s", leg.Venue, leg.AssetIn, leg.AssetOut)
	}
	q, err := domain.SimulateSwap(pool, leg.AssetIn, amount)
	if err != nil {
		return decimal.Zero, domain.RejectionFromError(err)
	}
	r.res.Costs.SlippageBps = r.res.Costs.SlippageBps.Add(q.SlippageBps)
	r.res.Approximate = r.res.Approximate || q.Approximate
	r.gas = append(r.gas, gasCharge{chain: leg.Chain, op: domain.GasSwap})
	return q.AmountOut, nil
}

func (r *evalRun) bridge(leg domain.Leg, amount decimal.Decimal) (decimal.Decimal, *domain.Rejection) {
	from, to, ok := leg.BridgeRoute()
	if !ok {
		return decimal.Zero, broken("bridge leg without a route: %s", leg.Venue)
	}

	var route *market.BridgePayload
	if entry, ok := r.bridgeEntry(from, to, leg.AssetIn); ok {
		r.consult(entry)
		route = entry.Feature.Bridge
	}
	q := domain.QuoteBridge(amount, route, r.e.chains.LayerOf(from), r.e.chains.LayerOf(to), r.e.cfg.DefaultBridgeFeeBps)

	price, rej := r.price(leg.AssetIn)
	if rej != nil {
		return decimal.Zero, rej
	}
	r.res.Costs.BridgeFeeUSD = r.res.Costs.BridgeFeeUSD.Add(price.Value(q.Fee))
	r.res.BridgeFeeDefaulted = r.res.BridgeFeeDefaulted || q.FeeDefaulted
	r.res.PathLatency += q.Latency
	r.gas = append(r.gas, gasCharge{chain: from, op: domain.GasBridge})
	// the fee is itemized in Costs so the full amount moves on
	return amount, nil
}

// bridgeEntry finds a fresh route feature by symbol, then by canonical symbol.
func (r *evalRun) bridgeEntry(from, to market.ChainID, symbol string) (market.Entry, bool) {
	names := []string{symbol}
	if r.e.canon != nil {
		if c := r.e.canon.Canonical(symbol); !strings.EqualFold(c, symbol) {
			names = append(names, c)
		}
	}
	for _, n := range names {
		if entry, ok := r.snap.Fresh(market.BridgeKey(from, to, n)); ok && entry.Feature.Bridge != nil {
			return entry, true
		}
	}
	return market.Entry{}, false
}

// planFlashLoan borrows amount of symbol on chain. pinned restricts the
// choice to one offer.
func (r *evalRun) planFlashLoan(chain market.ChainID, symbol string, amount decimal.Decimal, price asset.Price, pinned *market.Entry) *domain.Rejection {
	var offers []market.FlashLoanPayload
	if pinned != nil {
		r.consult(*pinned)
		offers = append(offers, *pinned.Feature.FlashLoan)
	} else {
		var used []market.Entry
		for _, e := range r.snap.FreshOfType(market.FeatureFlashLoan) {
			fl := e.Feature.FlashLoan
			if e.Feature.Chain != chain || fl == nil || !r.sameAsset(fl.Asset, symbol) {
				continue
			}
			offers = append(offers, *fl)
			used = append(used, e)
		}
		if len(offers) == 0 {
			return stale("insufficient data: no fresh flash loan offer for %s on chain %s", symbol, chain)
		}
		r.consulted = append(r.consulted, used...)
	}

	plan, err := domain.SelectFlashLoan(amount, offers, r.e.cfg.FlashLoanFees)
	if err != nil {
		return domain.RejectionFromError(err)
	}
	r.res.FlashLoan = &plan
	r.res.Costs.FlashLoanFeeUSD = r.res.Costs.FlashLoanFeeUSD.Add(price.Value(plan.Fee))
	r.gas = append(r.gas, gasCharge{chain: chain, op: domain.GasFlashLoan})
	return nil
}

func (r *evalRun) explicitFlashLoan(leg domain.Leg, amount decimal.Decimal) *domain.Rejection {
	if r.res.FlashLoan != nil {
		return nil
	}
	entry, ok := r.snap.Fresh(leg.Venue)
	if !ok || entry.Feature.FlashLoan == nil {
		return stale("insufficient data: flash loan offer %s missing or stale", leg.Venue)
	}
	price, rej := r.price(leg.AssetIn)
	if rej != nil {
		return rej
	}
	return r.planFlashLoan(leg.Chain, leg.AssetIn, amount, price, &entry)
}

func (r *evalRun) sameAsset(a, b string) bool {
	if strings.EqualFold(a, b) {
		return true
	}
	return r.e.canon != nil && r.e.canon.Canonical(a) == r.e.canon.Canonical(b)
}

// gasUSD prices every gas charge. Chains without a fresh gas feature use
// their fallback price and are flagged.
func (r *evalRun) gasUSD() (decimal.Decimal, *domain.Rejection) {
	total := decimal.Zero
	fallback := make(map[market.ChainID]struct{})
	for _, g := range r.gas {
		chain, known := r.e.chains.Get(g.chain)

		var gwei decimal.Decimal
		if entry, ok := r.snap.Fresh(market.GasKey(g.chain)); ok && entry.Feature.Gas != nil {
			r.consult(entry)
			gwei = entry.Feature.Gas.PriceGwei
			if entry.Feature.Gas.PredictedGwei.IsPositive() {
				gwei = entry.Feature.Gas.PredictedGwei
			}
		} else {
			if !known || !chain.FallbackGasGwei.IsPositive() {
				return decimal.Zero, stale("insufficient data: no gas price for chain %s", g.chain)
			}
			gwei = chain.FallbackGasGwei
			if _, seen := fallback[g.chain]; !seen {
				fallback[g.chain] = struct{}{}
				r.res.FallbackChains = append(r.res.FallbackChains, g.chain)
			}
			r.res.GasFallback = true
		}

		native := "ETH"
		if known && chain.NativeSymbol != "" {
			native = chain.NativeSymbol
		}
		price, rej := r.price(native)
		if rej != nil {
			return decimal.Zero, rej
		}
		total = total.Add(domain.NewGasCost(r.e.cfg.Gas.Units(g.op, g.chain), gwei, price.Rate).USD)
	}
	return total, nil
}

func (r *evalRun) price(symbol string) (asset.Price, *domain.Rejection) {
	if r.e.prices == nil {
		return asset.Price{}, stale("insufficient data: no price oracle")
	}
	p, err := r.e.prices.USD(symbol)
	if err != nil {
		return asset.Price{}, stale("insufficient data: no USD price for %s: %v", symbol, err)
	}
	return p, nil
}

func (r *evalRun) confidence() float64 {
	c := 1.0
	if r.res.GasFallback {
		c -= r.e.cfg.GasFallbackPenalty
	}
	if r.res.BridgeFeeDefaulted {
		c -= r.e.cfg.BridgeDefaultPenalty
	}
	if r.res.Approximate {
		c -= r.e.cfg.ApproximatePenalty
	}
	return min(max(c, 0), 1)
}
