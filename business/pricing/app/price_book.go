package app

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/fd1az/multichain-arb/business/pricing/domain"
	"github.com/fd1az/multichain-arb/internal/apperror"
	"github.com/fd1az/multichain-arb/internal/asset"
)

const meterName = "github.com/fd1az/multichain-arb/business/pricing"

var one = decimal.NewFromInt(1)

const (
	SourcePeg    = "peg"
	SourceStatic = "static"
)

// Canonicalizer maps a token symbol to the symbol it is priced under.
type Canonicalizer interface {
	Canonical(symbol string) string
}

// PriceBook answers USD prices for canonical symbols. Pegged stablecoins
// always price at 1, live tickers win over static prices while fresh, and a
// stale live price with no static fallback is an error.
type PriceBook struct {
	canon      Canonicalizer
	staleAfter time.Duration
	now        func() time.Time

	mu     sync.RWMutex
	pegs   map[string]struct{}
	static map[string]decimal.Decimal
	live   map[string]asset.Price

	updates metric.Int64Counter
	misses  metric.Int64Counter
}

// Option configures a PriceBook.
type Option func(*PriceBook)

// WithClock overrides the clock used for staleness.
func WithClock(now func() time.Time) Option {
	return func(b *PriceBook) { b.now = now }
}

// NewPriceBook creates an empty book. A nil canonicalizer upper-cases symbols.
func NewPriceBook(canon Canonicalizer, staleAfter time.Duration, opts ...Option) *PriceBook {
	b := &PriceBook{
		canon:      canon,
		staleAfter: staleAfter,
		now:        time.Now,
		pegs:       make(map[string]struct{}),
		static:     make(map[string]decimal.Decimal),
		live:       make(map[string]asset.Price),
	}
	for _, o := range opts {
		o(b)
	}

	meter := otel.Meter(meterName)
	b.updates, _ = meter.Int64Counter("pricing_ticker_updates_total",
		metric.WithDescription("Reference tickers applied to the price book"))
	b.misses, _ = meter.Int64Counter("pricing_lookup_misses_total",
		metric.WithDescription("USD lookups that found no usable price"))
	return b
}

func (b *PriceBook) canonical(symbol string) string {
	if b.canon != nil {
		return b.canon.Canonical(symbol)
	}
	return strings.ToUpper(symbol)
}

// Peg fixes symbol at 1 USD.
func (b *PriceBook) Peg(symbol string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pegs[b.canonical(symbol)] = struct{}{}
}

// SetStatic sets a configured fallback price.
func (b *PriceBook) SetStatic(symbol string, usd decimal.Decimal) error {
	if !usd.IsPositive() {
		return apperror.New(apperror.CodeConfigurationError,
			apperror.WithContext("static price for "+symbol+" must be positive"))
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.static[b.canonical(symbol)] = usd
	return nil
}

// Update applies a ticker quoted in a USD stand-in. Other tickers, one-sided
// and crossed books are ignored.
func (b *PriceBook) Update(ctx context.Context, t domain.Ticker) {
	if !t.QuotedInUSD() || t.Crossed() {
		return
	}
	mid := t.Mid()
	if !mid.IsPositive() {
		return
	}
	base := b.canonical(t.Base)
	p, err := asset.NewPrice(base, "USD", mid, t.ObservedAt, t.Source)
	if err != nil {
		return
	}

	b.mu.Lock()
	if prev, ok := b.live[base]; ok && prev.ObservedAt.After(p.ObservedAt) {
		b.mu.Unlock()
		return
	}
	b.live[base] = p
	b.mu.Unlock()

	b.updates.Add(ctx, 1, metric.WithAttributes(attribute.String("symbol", base)))
}

// USD returns the USD price of symbol.
func (b *PriceBook) USD(symbol string) (asset.Price, error) {
	sym := b.canonical(symbol)
	now := b.now()

	if sym == "USD" {
		return asset.Price{Base: sym, Quote: "USD", Rate: one, ObservedAt: now, Source: SourcePeg}, nil
	}

	b.mu.RLock()
	_, pegged := b.pegs[sym]
	live, hasLive := b.live[sym]
	static, hasStatic := b.static[sym]
	b.mu.RUnlock()

	switch {
	case pegged:
		return asset.Price{Base: sym, Quote: "USD", Rate: one, ObservedAt: now, Source: SourcePeg}, nil
	case hasLive && !live.IsStale(now, b.staleAfter):
		return live, nil
	case hasStatic:
		return asset.Price{Base: sym, Quote: "USD", Rate: static, ObservedAt: now, Source: SourceStatic}, nil
	}

	b.misses.Add(context.Background(), 1, metric.WithAttributes(attribute.String("symbol", sym)))
	if hasLive {
		return asset.Price{}, apperror.New(apperror.CodeStaleData,
			apperror.WithContext("reference price for "+sym+" is "+live.Age(now).Round(time.Millisecond).String()+" old"))
	}
	return asset.Price{}, apperror.New(apperror.CodeReferencePriceError,
		apperror.WithContext("no reference price for "+sym))
}

// Prices returns every known live and static price, sorted by symbol.
func (b *PriceBook) Prices() []asset.Price {
	now := b.now()
	b.mu.RLock()
	out := make([]asset.Price, 0, len(b.live)+len(b.static))
	for _, p := range b.live {
		out = append(out, p)
	}
	for sym, rate := range b.static {
		if _, ok := b.live[sym]; ok {
			continue
		}
		out = append(out, asset.Price{Base: sym, Quote: "USD", Rate: rate, ObservedAt: now, Source: SourceStatic})
	}
	b.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Base < out[j].Base })
	return out
}
