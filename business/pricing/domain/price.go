// Package domain contains the reference price model.
package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var two = decimal.NewFromInt(2)

// usdQuotes are quote currencies treated as USD at par.
var usdQuotes = []string{"USDT", "USDC", "FDUSD", "BUSD", "USD"}

// Ticker is the best bid and ask of a market at one instant.
type Ticker struct {
	Symbol     string // exchange symbol, e.g. ETHUSDT
	Base       string
	Quote      string
	Bid        decimal.Decimal
	Ask        decimal.Decimal
	ObservedAt time.Time
	Source     string
}

// Mid returns the bid/ask midpoint, zero when either side is missing.
func (t Ticker) Mid() decimal.Decimal {
	if !t.Bid.IsPositive() || !t.Ask.IsPositive() {
		return decimal.Zero
	}
	return t.Bid.Add(t.Ask).Div(two)
}

// SpreadBps returns the bid/ask spread relative to mid.
func (t Ticker) SpreadBps() decimal.Decimal {
	mid := t.Mid()
	if mid.IsZero() {
		return decimal.Zero
	}
	return t.Ask.Sub(t.Bid).Div(mid).Mul(bps)
}

// Crossed reports a book with bid above ask.
func (t Ticker) Crossed() bool {
	return t.Bid.GreaterThan(t.Ask)
}

// QuotedInUSD reports whether the quote currency is a USD stand-in.
func (t Ticker) QuotedInUSD() bool {
	for _, q := range usdQuotes {
		if t.Quote == q {
			return true
		}
	}
	return false
}

// SplitSymbol splits an exchange symbol such as ETHUSDT into base and quote
// using the known USD quotes. It reports false for other quotes.
func SplitSymbol(symbol string) (base, quote string, ok bool) {
	s := strings.ToUpper(symbol)
	for _, q := range usdQuotes {
		if strings.HasSuffix(s, q) && len(s) > len(q) {
			return s[:len(s)-len(q)], q, true
		}
	}
	return "", "", false
}
