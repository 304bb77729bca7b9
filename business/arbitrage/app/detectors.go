package app

import (
	"context"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/fd1az/multichain-arb/business/arbitrage/domain"
	market "github.com/fd1az/multichain-arb/business/market/domain"
	pricing "github.com/fd1az/multichain-arb/business/pricing/domain"
)

var bps = decimal.NewFromInt(10_000)

// DetectorConfig tunes a detector for one strategy.
type DetectorConfig struct {
	Strategy      domain.StrategyConfig
	MarginBps     decimal.Decimal
	NotionalUSD   decimal.Decimal
	MaxCandidates int // zero means unlimited
}

// detectorBase holds what both detectors share.
type detectorBase struct {
	cfg    DetectorConfig
	prices PriceOracle
	canon  Canonicalizer
}

func (b detectorBase) canonical(symbol string) string {
	if b.canon != nil {
		return b.canon.Canonical(symbol)
	}
	return strings.ToUpper(symbol)
}

func (b detectorBase) tradable(symbol string) bool {
	return b.cfg.Strategy.Tradable(symbol, b.canonical(symbol))
}

// usablePools returns fresh pools on approved chains whose tokens are both
// tradable under the strategy.
func (b detectorBase) usablePools(snap *market.Snapshot) []market.Entry {
	var out []market.Entry
	for _, e := range snap.FreshOfType(market.FeatureAMM) {
		p := e.Feature.AMM
		if !b.cfg.Strategy.ChainApproved(e.Feature.Chain) {
			continue
		}
		if !b.tradable(p.Token0.Symbol) || !b.tradable(p.Token1.Symbol) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// startAmount converts the configured USD notional into units of symbol.
func (b detectorBase) startAmount(symbol string, cache map[string]decimal.Decimal) (decimal.Decimal, bool) {
	if amt, ok := cache[symbol]; ok {
		return amt, amt.IsPositive()
	}
	amt := decimal.Zero
	if p, err := b.prices.USD(symbol); err == nil && p.Rate.IsPositive() {
		amt = p.Units(b.cfg.NotionalUSD)
	}
	cache[symbol] = amt
	return amt, amt.IsPositive()
}

func (b detectorBase) threshold() decimal.Decimal {
	return one.Add(b.cfg.MarginBps.Div(bps))
}

func (b detectorBase) full(n int) bool {
	return b.cfg.MaxCandidates > 0 && n >= b.cfg.MaxCandidates
}

var one = decimal.NewFromInt(1)

// TriangularDetector finds A>B>C>A cycles over pools on one chain whose
// fee-adjusted mid rates multiply to more than one plus the margin.
type TriangularDetector struct {
	detectorBase
}

// NewTriangularDetector creates a detector for cfg.Strategy.
func NewTriangularDetector(cfg DetectorConfig, prices PriceOracle, canon Canonicalizer) *TriangularDetector {
	return &TriangularDetector{detectorBase{cfg: cfg, prices: prices, canon: canon}}
}

func (d *TriangularDetector) Name() string { return "triangular:" + d.cfg.Strategy.Name }

type edge struct {
	venue market.Key
	to    string
	rate  decimal.Decimal
}

// Detect implements Detector.
func (d *TriangularDetector) Detect(ctx context.Context, snap *market.Snapshot) ([]domain.Candidate, error) {
	byChain := make(map[market.ChainID][]market.Entry)
	for _, e := range d.usablePools(snap) {
		byChain[e.Feature.Chain] = append(byChain[e.Feature.Chain], e)
	}
	chains := make([]market.ChainID, 0, len(byChain))
	for ch := range byChain {
		chains = append(chains, ch)
	}
	sort.Slice(chains, func(i, j int) bool { return chains[i] < chains[j] })

	threshold := d.threshold()
	amounts := make(map[string]decimal.Decimal)
	var out []domain.Candidate

	for _, chain := range chains {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		graph := make(map[string][]edge)
		for _, e := range byChain[chain] {
			p := e.Feature.AMM
			for _, sym := range []string{p.Token0.Symbol, p.Token1.Symbol} {
				rate, ok := p.Rate(sym)
				if !ok {
					continue
				}
				to, _ := p.Other(sym)
				graph[sym] = append(graph[sym], edge{
					venue: e.Feature.Key(),
					to:    to,
					rate:  rate.Mul(domain.FeeMultiplier(p.FeeBps)),
				})
			}
		}
		tokens := make([]string, 0, len(graph))
		for t := range graph {
			tokens = append(tokens, t)
		}
		sort.Strings(tokens)

		// a is the smallest symbol of each cycle so every loop is found once
		// per direction
		for _, a := range tokens {
			for _, e1 := range graph[a] {
				b := e1.to
				if b <= a {
					continue
				}
				for _, e2 := range graph[b] {
					c := e2.to
					if c <= a || c == b || e2.venue == e1.venue {
						continue
					}
					for _, e3 := range graph[c] {
						if e3.to != a || e3.venue == e1.venue || e3.venue == e2.venue {
							continue
						}
						product := e1.rate.Mul(e2.rate).Mul(e3.rate)
						if !product.GreaterThan(threshold) {
							continue
						}
						amount, ok := d.startAmount(a, amounts)
						if !ok {
							continue
						}
						legs := []domain.Leg{
							{Kind: domain.LegSwap, Chain: chain, AssetIn: a, AssetOut: b, Venue: e1.venue, Notional: amount},
							{Kind: domain.LegSwap, Chain: chain, AssetIn: b, AssetOut: c, Venue: e2.venue, Notional: amount.Mul(e1.rate)},
							{Kind: domain.LegSwap, Chain: chain, AssetIn: c, AssetOut: a, Venue: e3.venue, Notional: amount.Mul(e1.rate).Mul(e2.rate)},
						}
						out = append(out, domain.NewCandidate(d.cfg.Strategy.Name, d.Name(), legs, snap))
						if d.full(len(out)) {
							return out, nil
						}
					}
				}
			}
		}
	}
	return out, nil
}

// CrossVenueDetector compares pools of the same pair across venues and
// chains: buy where the asset is cheap, bridge when the venues are on
// different chains, sell where it is rich.
type CrossVenueDetector struct {
	detectorBase
}

// NewCrossVenueDetector creates a detector for cfg.Strategy.
func NewCrossVenueDetector(cfg DetectorConfig, prices PriceOracle, canon Canonicalizer) *CrossVenueDetector {
	return &CrossVenueDetector{detectorBase{cfg: cfg, prices: prices, canon: canon}}
}

func (d *CrossVenueDetector) Name() string { return "cross_venue:" + d.cfg.Strategy.Name }

type venue struct {
	chain market.ChainID
	key   market.Key
	pool  *market.AmmPayload
	// symbols on this venue keyed by canonical symbol
	symbols map[string]string
}

// Detect implements Detector.
func (d *CrossVenueDetector) Detect(ctx context.Context, snap *market.Snapshot) ([]domain.Candidate, error) {
	groups := make(map[string][]venue)
	pairs := make(map[string][2]string)
	for _, e := range d.usablePools(snap) {
		p := e.Feature.AMM
		c0, c1 := d.canonical(p.Token0.Symbol), d.canonical(p.Token1.Symbol)
		if c0 == c1 {
			continue
		}
		lo, hi := c0, c1
		if hi < lo {
			lo, hi = hi, lo
		}
		id := lo + "/" + hi
		pairs[id] = [2]string{lo, hi}
		groups[id] = append(groups[id], venue{
			chain:   e.Feature.Chain,
			key:     e.Feature.Key(),
			pool:    p,
			symbols: map[string]string{c0: p.Token0.Symbol, c1: p.Token1.Symbol},
		})
	}
	ids := make([]string, 0, len(groups))
	for id := range groups {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	amounts := make(map[string]decimal.Decimal)
	var out []domain.Candidate

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		venues := groups[id]
		pair := pairs[id]
		for i, cheap := range venues {
			for j, rich := range venues {
				if i == j {
					continue
				}
				// x is bought on cheap with y and sold on rich for y
				for k, x := range pair {
					y := pair[1-k]
					c, ok := d.candidate(snap, cheap, rich, x, y, amounts)
					if !ok {
						continue
					}
					out = append(out, c)
					if d.full(len(out)) {
						return out, nil
					}
				}
			}
		}
	}
	return out, nil
}

func (d *CrossVenueDetector) candidate(snap *market.Snapshot, cheap, rich venue, x, y string, amounts map[string]decimal.Decimal) (domain.Candidate, bool) {
	xCheap, yCheap := cheap.symbols[x], cheap.symbols[y]
	xRich, yRich := rich.symbols[x], rich.symbols[y]
	sameChain := cheap.chain == rich.chain
	if sameChain && xCheap != xRich {
		return domain.Candidate{}, false
	}

	buy, ok := cheap.pool.Rate(xCheap) // y per x on the cheap venue
	if !ok {
		return domain.Candidate{}, false
	}
	sell, ok := rich.pool.Rate(xRich)
	if !ok {
		return domain.Candidate{}, false
	}
	spread := pricing.CalculateSpread(buy, sell)
	if spread.Direction != pricing.SpreadBuyReference || !spread.BasisPoints.GreaterThan(d.cfg.MarginBps) {
		return domain.Candidate{}, false
	}

	amount, ok := d.startAmount(yCheap, amounts)
	if !ok {
		return domain.Candidate{}, false
	}
	xAmount := amount.Div(buy)

	legs := []domain.Leg{{
		Kind: domain.LegSwap, Chain: cheap.chain, AssetIn: yCheap, AssetOut: xCheap, Venue: cheap.key, Notional: amount,
	}}
	if !sameChain {
		legs = append(legs, domain.Leg{
			Kind: domain.LegBridge, Chain: cheap.chain, AssetIn: xCheap, AssetOut: xRich,
			Venue: market.BridgeKey(cheap.chain, rich.chain, xCheap), Notional: xAmount,
		})
	}
	legs = append(legs, domain.Leg{
		Kind: domain.LegSwap, Chain: rich.chain, AssetIn: xRich, AssetOut: yRich, Venue: rich.key, Notional: xAmount,
	})
	return domain.NewCandidate(d.cfg.Strategy.Name, d.Name(), legs, snap), true
}
