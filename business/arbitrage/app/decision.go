package app

import (
	"sort"

	"github.com/fd1az/multichain-arb/business/arbitrage/domain"
)

// FilterReason explains why an evaluation did not survive selection.
type FilterReason string

const (
	FilterRejected        FilterReason = "rejected"
	FilterUnknownStrategy FilterReason = "unknown_strategy"
	FilterDisabled        FilterReason = "strategy_disabled"
	FilterMinProfitUSD    FilterReason = "below_min_profit_usd"
	FilterMinProfitBps    FilterReason = "below_min_profit_bps"
	FilterMaxPosition     FilterReason = "over_max_position"
	FilterMaxLegs         FilterReason = "too_many_legs"
	FilterMaxChains       FilterReason = "too_many_chains"
	FilterAsset           FilterReason = "asset_not_allowed"
	FilterChain           FilterReason = "chain_not_allowed"
	FilterConfidence      FilterReason = "low_confidence"
)

// Decision is the outcome of one selection.
type Decision struct {
	Best      domain.EvaluationResult
	Selected  bool
	Survivors int
	Filtered  map[FilterReason]int
}

// DecisionEngine applies strategy risk policy to evaluations and picks the
// best survivor. Strategies are fixed at construction and match the ones
// the Evaluator was built with.
type DecisionEngine struct {
	strategies map[string]domain.StrategyConfig
	canon      Canonicalizer
}

// NewDecisionEngine creates a decision engine. canon may be nil.
func NewDecisionEngine(canon Canonicalizer, strategies ...domain.StrategyConfig) *DecisionEngine {
	d := &DecisionEngine{
		strategies: make(map[string]domain.StrategyConfig, len(strategies)),
		canon:      canon,
	}
	for _, s := range strategies {
		d.strategies[s.Name] = s
	}
	return d
}

// Strategy returns the named strategy.
func (d *DecisionEngine) Strategy(name string) (domain.StrategyConfig, bool) {
	s, ok := d.strategies[name]
	return s, ok
}

// Admit reports whether ev passes its strategy's policy. The reason is empty
// when it does.
func (d *DecisionEngine) Admit(ev domain.EvaluationResult) (bool, FilterReason) {
	if ev.Rejected() {
		return false, FilterRejected
	}
	s, ok := d.Strategy(ev.Candidate.Strategy)
	if !ok {
		return false, FilterUnknownStrategy
	}
	if !s.Enabled {
		return false, FilterDisabled
	}
	if ev.NetProfitUSD.LessThan(s.MinProfitUSD) {
		return false, FilterMinProfitUSD
	}
	if ev.NetProfitBps.LessThan(s.MinProfitBps) {
		return false, FilterMinProfitBps
	}
	if s.MaxPositionUSD.IsPositive() && ev.NotionalUSD.GreaterThan(s.MaxPositionUSD) {
		return false, FilterMaxPosition
	}
	if s.Risk.MaxLegs > 0 && len(ev.Candidate.Legs) > s.Risk.MaxLegs {
		return false, FilterMaxLegs
	}
	chains := ev.Candidate.Chains()
	if s.Risk.MaxChains > 0 && len(chains) > s.Risk.MaxChains {
		return false, FilterMaxChains
	}
	for _, a := range ev.Candidate.Assets() {
		if !s.Tradable(d.names(a)...) {
			return false, FilterAsset
		}
	}
	for _, ch := range chains {
		if !s.ChainApproved(ch) {
			return false, FilterChain
		}
	}
	if ev.Confidence < s.MinConfidence {
		return false, FilterConfidence
	}
	return true, ""
}

// names returns the symbol and its canonical form.
func (d *DecisionEngine) names(symbol string) []string {
	if d.canon == nil {
		return []string{symbol}
	}
	return []string{symbol, d.canon.Canonical(symbol)}
}

// Decide filters evals and selects the best survivor, counting every
// filtered evaluation by reason.
func (d *DecisionEngine) Decide(evals []domain.EvaluationResult) Decision {
	dec := Decision{Filtered: make(map[FilterReason]int)}
	survivors := make([]domain.EvaluationResult, 0, len(evals))
	for _, ev := range evals {
		if ok, reason := d.Admit(ev); !ok {
			dec.Filtered[reason]++
			continue
		}
		survivors = append(survivors, ev)
	}
	dec.Survivors = len(survivors)
	if len(survivors) == 0 {
		return dec
	}
	sort.SliceStable(survivors, func(i, j int) bool { return better(survivors[i], survivors[j]) })
	dec.Best = survivors[0]
	dec.Selected = true
	return dec
}

// SelectBest returns the best evaluation that passes policy. false is the
// normal no-opportunity outcome.
func (d *DecisionEngine) SelectBest(evals []domain.EvaluationResult) (domain.EvaluationResult, bool) {
	dec := d.Decide(evals)
	return dec.Best, dec.Selected
}

// better orders by net profit desc, staleness asc, legs asc and finally
// fingerprint so the choice does not depend on input order.
func better(a, b domain.EvaluationResult) bool {
	if c := a.NetProfitUSD.Cmp(b.NetProfitUSD); c != 0 {
		return c > 0
	}
	if a.Staleness != b.Staleness {
		return a.Staleness < b.Staleness
	}
	if la, lb := len(a.Candidate.Legs), len(b.Candidate.Legs); la != lb {
		return la < lb
	}
	return a.Candidate.Fingerprint() < b.Candidate.Fingerprint()
}
