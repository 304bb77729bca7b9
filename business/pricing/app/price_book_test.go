package app

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fd1az/multichain-arb/business/pricing/domain"
	"github.com/fd1az/multichain-arb/internal/apperror"
	"github.com/fd1az/multichain-arb/internal/asset"
)

func newBook(now *time.Time) *PriceBook {
	return NewPriceBook(asset.DefaultRegistry(), 30*time.Second, WithClock(func() time.Time { return *now }))
}

func ticker(base, quote, bid, ask string, at time.Time) domain.Ticker {
	return domain.Ticker{
		Symbol: base + quote, Base: base, Quote: quote,
		Bid: decimal.RequireFromString(bid), Ask: decimal.RequireFromString(ask),
		ObservedAt: at, Source: "binance",
	}
}

func TestPriceBook_Precedence(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	b := newBook(&now)
	ctx := context.Background()

	b.Peg("USDC")
	if err := b.SetStatic("ETH", decimal.NewFromInt(2500)); err != nil {
		t.Fatal(err)
	}

	p, err := b.USD("ETH")
	if err != nil || !p.Rate.Equal(decimal.NewFromInt(2500)) || p.Source != SourceStatic {
		t.Fatalf("static ETH = %v, %v", p, err)
	}

	b.Update(ctx, ticker("ETH", "USDT", "2999", "3001", now))
	p, err = b.USD("WETH")
	if err != nil {
		t.Fatal(err)
	}
	if !p.Rate.Equal(decimal.NewFromInt(3000)) || p.Source != "binance" || p.Base != "ETH" {
		t.Errorf("live WETH = %v, want 3000 from binance under ETH", p)
	}

	now = now.Add(time.Minute)
	p, err = b.USD("ETH")
	if err != nil || p.Source != SourceStatic {
		t.Errorf("stale live should fall back to static, got %v, %v", p, err)
	}

	p, err = b.USD("usdc")
	if err != nil || !p.Rate.Equal(decimal.NewFromInt(1)) {
		t.Errorf("pegged USDC = %v, %v", p, err)
	}
}

func TestPriceBook_Errors(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	b := newBook(&now)

	if _, err := b.USD("BTC"); !apperror.HasCode(err, apperror.CodeReferencePriceError) {
		t.Errorf("unknown symbol err = %v", err)
	}

	b.Update(context.Background(), ticker("BTC", "USDT", "60000", "60010", now))
	now = now.Add(time.Minute)
	if _, err := b.USD("WBTC"); !apperror.HasCode(err, apperror.CodeStaleData) {
		t.Errorf("stale live err = %v, want stale data", err)
	}

	if err := b.SetStatic("ETH", decimal.Zero); err == nil {
		t.Error("expected zero static price to be rejected")
	}
}

func TestPriceBook_IgnoresUnusableTickers(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	b := newBook(&now)
	ctx := context.Background()

	b.Update(ctx, ticker("ETH", "BTC", "0.05", "0.051", now))
	b.Update(ctx, ticker("ETH", "USDT", "3002", "3001", now))
	b.Update(ctx, ticker("ETH", "USDT", "0", "3001", now))
	if len(b.Prices()) != 0 {
		t.Errorf("Prices = %v, want none", b.Prices())
	}

	b.Update(ctx, ticker("ETH", "USDT", "2999", "3001", now))
	b.Update(ctx, ticker("ETH", "USDT", "1999", "2001", now.Add(-time.Second)))
	p, _ := b.USD("ETH")
	if !p.Rate.Equal(decimal.NewFromInt(3000)) {
		t.Errorf("older ticker overwrote newer: %s", p.Rate)
	}
}
