// Package market implements the market state bounded context: normalized
// features, the versioned state they are stored in and the feeds that fill it.
package market

import (
	"context"

	"github.com/fd1az/multichain-arb/business/market/app"
	marketDI "github.com/fd1az/multichain-arb/business/market/di"
	"github.com/fd1az/multichain-arb/business/market/domain"
	"github.com/fd1az/multichain-arb/business/market/infra/redisfeed"
	"github.com/fd1az/multichain-arb/business/market/infra/replay"
	"github.com/fd1az/multichain-arb/business/market/infra/wsfeed"
	"github.com/fd1az/multichain-arb/internal/bus"
	"github.com/fd1az/multichain-arb/internal/config"
	"github.com/fd1az/multichain-arb/internal/di"
	"github.com/fd1az/multichain-arb/internal/logger"
	"github.com/fd1az/multichain-arb/internal/monolith"
	"github.com/fd1az/multichain-arb/internal/wsconn"
)

// Module implements the market bounded context.
type Module struct{}

// ChainRegistry converts the configured chains.
func ChainRegistry(chains []config.ChainConfig) *domain.ChainRegistry {
	out := make([]domain.Chain, 0, len(chains))
	for _, c := range chains {
		out = append(out, domain.Chain{
			ID:              domain.ChainID(c.ID),
			Name:            c.Name,
			Layer:           domain.Layer(c.Layer),
			BlockInterval:   c.BlockInterval,
			StaleAfter:      c.StaleAfter,
			NativeSymbol:    c.NativeSymbol,
			FallbackGasGwei: c.FallbackGasGweiDecimal(),
		})
	}
	return domain.NewChainRegistry(out...)
}

// RegisterServices registers all market services with the DI container.
func (m *Module) RegisterServices(c di.Container) error {
	di.RegisterToken(c, marketDI.ChainRegistry, func(sr di.ServiceRegistry) *domain.ChainRegistry {
		cfg := sr.Get("config").(*config.Config)
		return ChainRegistry(cfg.Chains)
	})

	di.RegisterToken(c, marketDI.MarketState, func(sr di.ServiceRegistry) *app.MarketState {
		return app.NewMarketState(marketDI.GetChainRegistry(sr))
	})

	di.RegisterToken(c, marketDI.Ingestor, func(sr di.ServiceRegistry) *app.Ingestor {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)
		b := sr.Get("bus").(bus.Bus)

		ing := app.NewIngestor(marketDI.GetMarketState(sr), log)
		if cfg.Feeds.Redis.Enabled {
			ing.AddSource(redisfeed.New(b, cfg.Feeds.Redis.Channel))
		}
		if cfg.Feeds.WebSocket.Enabled {
			wsCfg := wsconn.DefaultConfig(cfg.Feeds.WebSocket.URL, "features")
			ing.AddSource(wsfeed.New(wsCfg, []byte(cfg.Feeds.WebSocket.Subscribe), log))
		}
		return ing
	})

	return nil
}

// Startup attaches the replay source, which needs a context to build its S3
// client, and starts every feed.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	cfg := mono.Config()
	log := mono.Logger()
	ing := marketDI.GetIngestor(mono.Services())

	if rc := cfg.Feeds.Replay; rc.Enabled {
		var opener replay.Opener = replay.File(rc.Path)
		if rc.S3.Enabled() {
			obj, err := replay.NewS3Object(ctx, replay.S3Config{
				Bucket:          rc.S3.Bucket,
				Key:             rc.S3.Key,
				Region:          rc.S3.Region,
				Endpoint:        rc.S3.Endpoint,
				AccessKeyID:     rc.S3.AccessKeyID,
				SecretAccessKey: rc.S3.SecretAccessKey,
				UsePathStyle:    rc.S3.UsePathStyle,
			})
			if err != nil {
				return err
			}
			opener = obj
		}
		ing.AddSource(replay.New(opener, replay.Options{Speed: rc.Speed, Restamp: rc.Restamp}))
	}

	ing.Start(ctx)
	log.Info(ctx, "market module started", "sources", ing.Sources())
	return nil
}
