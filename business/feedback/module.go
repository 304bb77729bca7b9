// Package feedback implements the feedback bounded context: it tracks
// published intents and calibrates strategies against realized outcomes.
package feedback

import (
	"context"
	"time"

	arbitrageDI "github.com/fd1az/multichain-arb/business/arbitrage/di"
	arbitrage "github.com/fd1az/multichain-arb/business/arbitrage/domain"
	"github.com/fd1az/multichain-arb/business/feedback/app"
	feedbackDI "github.com/fd1az/multichain-arb/business/feedback/di"
	"github.com/fd1az/multichain-arb/business/feedback/infra/memory"
	"github.com/fd1az/multichain-arb/business/feedback/infra/postgres"
	"github.com/fd1az/multichain-arb/business/feedback/infra/redisinbox"
	"github.com/fd1az/multichain-arb/internal/bus"
	"github.com/fd1az/multichain-arb/internal/config"
	"github.com/fd1az/multichain-arb/internal/di"
	"github.com/fd1az/multichain-arb/internal/logger"
	"github.com/fd1az/multichain-arb/internal/monolith"
)

// Module implements the feedback bounded context.
type Module struct{}

// RegisterServices registers all feedback services with the DI container.
func (m *Module) RegisterServices(c di.Container) error {
	di.RegisterToken(c, feedbackDI.Postgres, func(sr di.ServiceRegistry) *postgres.Store {
		cfg := sr.Get("config").(*config.Config)
		if !cfg.Storage.Postgres.Enabled {
			return nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		store, err := postgres.Open(ctx, cfg.Storage.Postgres.DSN)
		if err != nil {
			panic("failed to open outcome store: " + err.Error())
		}
		return store
	})

	di.RegisterToken(c, feedbackDI.Store, func(sr di.ServiceRegistry) app.OutcomeStore {
		if pg := feedbackDI.GetPostgres(sr); pg != nil {
			return pg
		}
		return memory.New()
	})

	di.RegisterToken(c, feedbackDI.Processor, func(sr di.ServiceRegistry) *app.Processor {
		log := sr.Get("logger").(logger.LoggerInterface)
		return app.NewProcessor(feedbackDI.GetStore(sr), log)
	})

	return nil
}

// Startup restores calibration, tracks published intents and starts the
// outcome inbox.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	cfg := mono.Config()
	log := mono.Logger()
	sr := mono.Services()

	if pg := feedbackDI.GetPostgres(sr); pg != nil {
		if err := pg.Migrate(ctx); err != nil {
			return err
		}
	}

	processor := feedbackDI.GetProcessor(sr)
	if err := processor.Load(ctx); err != nil {
		return err
	}

	arbitrageDI.GetEngine(sr).OnIntent(func(ctx context.Context, intent arbitrage.TradeIntent) {
		if err := processor.Track(ctx, intent); err != nil {
			log.Warn(ctx, "failed to track intent", "intent", intent.ID, "error", err)
		}
	})

	if cfg.Feedback.InboxEnabled {
		inbox := redisinbox.New(sr.Get("bus").(bus.Bus), cfg.Feedback.InboxChannel, processor, log)
		go func() {
			if err := inbox.Run(ctx); err != nil && ctx.Err() == nil {
				log.Error(ctx, "outcome inbox stopped", "error", err)
			}
		}()
	}

	log.Info(ctx, "feedback module started",
		"persistent", feedbackDI.GetPostgres(sr) != nil,
		"inbox", cfg.Feedback.InboxEnabled,
		"strategies", len(processor.Strategies()))
	return nil
}
