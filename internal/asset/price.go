package asset

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Price is a quote of one canonical symbol in another, usually USD.
type Price struct {
	Base       string
	Quote      string
	Rate       decimal.Decimal
	ObservedAt time.Time
	Source     string
}

// NewPrice validates and builds a price.
func NewPrice(base, quote string, rate decimal.Decimal, observedAt time.Time, source string) (Price, error) {
	if base == "" || quote == "" {
		return Price{}, fmt.Errorf("asset: price needs base and quote")
	}
	if !rate.IsPositive() {
		return Price{}, fmt.Errorf("asset: non-positive rate %s for %s/%s", rate, base, quote)
	}
	return Price{Base: base, Quote: quote, Rate: rate, ObservedAt: observedAt, Source: source}, nil
}

// Pair returns e.g. "ETH/USD".
func (p Price) Pair() string {
	return p.Base + "/" + p.Quote
}

// Value converts whole units of Base into Quote.
func (p Price) Value(units decimal.Decimal) decimal.Decimal {
	return units.Mul(p.Rate)
}

// Units converts a Quote value into whole units of Base.
func (p Price) Units(value decimal.Decimal) decimal.Decimal {
	if p.Rate.IsZero() {
		return decimal.Zero
	}
	return value.Div(p.Rate)
}

// Age returns how old the price is at now.
func (p Price) Age(now time.Time) time.Duration {
	return now.Sub(p.ObservedAt)
}

// IsStale reports whether the price is older than maxAge at now. A zero
// maxAge never expires.
func (p Price) IsStale(now time.Time, maxAge time.Duration) bool {
	return maxAge > 0 && p.Age(now) > maxAge
}

func (p Price) String() string {
	return p.Rate.String() + " " + p.Pair()
}
