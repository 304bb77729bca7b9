// Package pricing implements the reference price context: USD prices for
// valuing notionals, gas and fees.
package pricing

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fd1az/multichain-arb/business/pricing/app"
	pricingDI "github.com/fd1az/multichain-arb/business/pricing/di"
	"github.com/fd1az/multichain-arb/business/pricing/infra/binance"
	"github.com/fd1az/multichain-arb/internal/asset"
	"github.com/fd1az/multichain-arb/internal/config"
	"github.com/fd1az/multichain-arb/internal/di"
	"github.com/fd1az/multichain-arb/internal/logger"
	"github.com/fd1az/multichain-arb/internal/monolith"
)

// Module implements the pricing bounded context.
type Module struct{}

// RegisterServices registers the price book and its live sources.
func (m *Module) RegisterServices(c di.Container) error {
	di.RegisterToken(c, pricingDI.PriceBook, func(sr di.ServiceRegistry) *app.PriceBook {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)
		registry := sr.Get("assetRegistry").(*asset.Registry)

		book := app.NewPriceBook(registry, cfg.Pricing.StaleAfter)
		for _, sym := range cfg.Pricing.Stablecoins {
			book.Peg(sym)
		}
		for sym, usd := range cfg.Pricing.Static {
			if err := book.SetStatic(sym, decimal.NewFromFloat(usd)); err != nil {
				log.Warn(context.Background(), "static price ignored", "symbol", sym, "error", err)
			}
		}
		return book
	})

	di.RegisterToken(c, pricingDI.TickerSources, func(sr di.ServiceRegistry) []app.TickerSource {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		var sources []app.TickerSource
		if cfg.Pricing.Binance.Enabled {
			streamCfg := binance.DefaultStreamConfig(cfg.Pricing.Binance.Symbols)
			if cfg.Pricing.Binance.WebSocketURL != "" {
				streamCfg.BaseURL = cfg.Pricing.Binance.WebSocketURL
			}
			stream, err := binance.NewStream(streamCfg, log)
			if err != nil {
				panic("failed to create binance stream: " + err.Error())
			}
			sources = append(sources, stream)
		}
		return sources
	})

	return nil
}

// Startup runs the live sources in the background. A source that fails is
// retried; static and pegged prices keep serving meanwhile.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	cfg := mono.Config()
	log := mono.Logger()
	book := pricingDI.GetPriceBook(mono.Services())

	if cfg.Pricing.Binance.Enabled {
		seedFromSnapshot(ctx, cfg.Pricing.Binance, book, log)
	}

	for _, src := range pricingDI.GetTickerSources(mono.Services()) {
		go func(src app.TickerSource) {
			for {
				err := src.Run(ctx, book)
				if ctx.Err() != nil {
					return
				}
				log.Warn(ctx, "reference price source stopped, retrying", "source", src.Name(), "error", err)
				select {
				case <-ctx.Done():
					return
				case <-time.After(5 * time.Second):
				}
			}
		}(src)
	}

	log.Info(ctx, "pricing module started", "prices", len(book.Prices()))
	return nil
}

// seedFromSnapshot loads one REST snapshot so detection can value notionals
// before the stream delivers its first update.
func seedFromSnapshot(ctx context.Context, cfg config.BinanceConfig, book *app.PriceBook, log logger.LoggerInterface) {
	snap, err := binance.NewSnapshot(cfg.RESTURL, cfg.Symbols, log)
	if err != nil {
		log.Warn(ctx, "binance snapshot unavailable", "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	n, err := snap.Seed(ctx, book)
	if err != nil {
		log.Warn(ctx, "binance snapshot failed, waiting for stream", "error", err)
		return
	}
	log.Info(ctx, "reference prices seeded", "source", "binance", "tickers", n)
}
