// Package arbitrage implements the arbitrage bounded context: detection,
// evaluation and the decision cycle that turns market state into intents.
package arbitrage

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fd1az/multichain-arb/business/arbitrage/app"
	arbitrageDI "github.com/fd1az/multichain-arb/business/arbitrage/di"
	"github.com/fd1az/multichain-arb/business/arbitrage/domain"
	"github.com/fd1az/multichain-arb/business/arbitrage/infra"
	"github.com/fd1az/multichain-arb/business/arbitrage/infra/clickhouse"
	"github.com/fd1az/multichain-arb/business/arbitrage/infra/redisintent"
	marketDI "github.com/fd1az/multichain-arb/business/market/di"
	market "github.com/fd1az/multichain-arb/business/market/domain"
	pricingDI "github.com/fd1az/multichain-arb/business/pricing/di"
	"github.com/fd1az/multichain-arb/internal/asset"
	"github.com/fd1az/multichain-arb/internal/bus"
	"github.com/fd1az/multichain-arb/internal/config"
	"github.com/fd1az/multichain-arb/internal/di"
	"github.com/fd1az/multichain-arb/internal/logger"
	"github.com/fd1az/multichain-arb/internal/monolith"
)

// Detector kinds accepted in detection.detectors.
const (
	DetectorTriangular = "triangular"
	DetectorCrossVenue = "cross_venue"
)

// Module implements the arbitrage bounded context.
type Module struct{}

// Strategies converts and validates the configured strategies.
func Strategies(cfgs []config.StrategyConfig) ([]domain.StrategyConfig, error) {
	out := make([]domain.StrategyConfig, 0, len(cfgs))
	for _, c := range cfgs {
		s := domain.StrategyConfig{
			Name:           c.Name,
			Enabled:        c.Enabled,
			MinProfitUSD:   decimal.NewFromFloat(c.MinProfitUSD),
			MinProfitBps:   decimal.NewFromFloat(c.MinProfitBps),
			MaxPositionUSD: decimal.NewFromFloat(c.MaxPositionUSD),
			OwnCapitalUSD:  decimal.NewFromFloat(c.OwnCapitalUSD),
			ApprovedAssets: domain.SymbolSet(c.ApprovedAssets...),
			ApprovedChains: domain.ChainSet(c.ApprovedChains...),
			Risk: domain.RiskLimits{
				MaxLegs:           c.MaxLegs,
				MaxChains:         c.MaxChains,
				BlacklistedAssets: domain.SymbolSet(c.BlacklistedAssets...),
			},
			MaxPathLatency: c.MaxPathLatency,
			MinConfidence:  c.MinConfidence,
		}
		if err := s.Validate(); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// EvaluatorConfig builds cost settings from the cost and chain sections.
func EvaluatorConfig(costs config.CostsConfig, chains []config.ChainConfig) app.EvaluatorConfig {
	cfg := app.DefaultEvaluatorConfig()

	if len(costs.GasUnits) > 0 {
		cfg.Gas.Default = make(map[domain.GasOp]uint64, len(costs.GasUnits))
		for op, units := range costs.GasUnits {
			cfg.Gas.Default[domain.GasOp(op)] = units
		}
	}
	for _, ch := range chains {
		if len(ch.GasUnits) == 0 {
			continue
		}
		if cfg.Gas.PerChain == nil {
			cfg.Gas.PerChain = make(map[market.ChainID]map[domain.GasOp]uint64)
		}
		units := make(map[domain.GasOp]uint64, len(ch.GasUnits))
		for op, u := range ch.GasUnits {
			units[domain.GasOp(op)] = u
		}
		cfg.Gas.PerChain[market.ChainID(ch.ID)] = units
	}

	if costs.DefaultBridgeFeeBps > 0 {
		cfg.DefaultBridgeFeeBps = decimal.NewFromFloat(costs.DefaultBridgeFeeBps)
	}
	if len(costs.FlashLoanFeeBps) > 0 {
		cfg.FlashLoanFees = make(map[string]decimal.Decimal, len(costs.FlashLoanFeeBps))
		for provider, fee := range costs.FlashLoanFeeBps {
			cfg.FlashLoanFees[provider] = decimal.NewFromFloat(fee)
		}
	}
	if costs.GasFallbackPenalty > 0 {
		cfg.GasFallbackPenalty = costs.GasFallbackPenalty
	}
	if costs.BridgeDefaultPenalty > 0 {
		cfg.BridgeDefaultPenalty = costs.BridgeDefaultPenalty
	}
	return cfg
}

// Detectors builds the configured detector kinds once per enabled strategy.
func Detectors(det config.DetectionConfig, strategies []domain.StrategyConfig, prices app.PriceOracle, canon app.Canonicalizer) ([]app.Detector, error) {
	var out []app.Detector
	for _, s := range strategies {
		if !s.Enabled {
			continue
		}
		dc := app.DetectorConfig{
			Strategy:      s,
			MarginBps:     det.MarginBpsDecimal(),
			NotionalUSD:   det.NotionalUSDDecimal(),
			MaxCandidates: det.MaxPerCycle,
		}
		for _, kind := range det.Detectors {
			switch kind {
			case DetectorTriangular:
				out = append(out, app.NewTriangularDetector(dc, prices, canon))
			case DetectorCrossVenue:
				out = append(out, app.NewCrossVenueDetector(dc, prices, canon))
			default:
				return nil, fmt.Errorf("unknown detector %q", kind)
			}
		}
	}
	return out, nil
}

// EngineConfig converts the engine and intent sections.
func EngineConfig(e config.EngineConfig, in config.IntentsConfig) app.EngineConfig {
	cfg := app.DefaultEngineConfig()
	cfg.Interval = e.Interval
	if e.CycleDeadline > 0 {
		cfg.CycleDeadline = e.CycleDeadline
	}
	cfg.MaxCyclesPerSec = e.MaxCyclesPerSec
	if e.EvalConcurrency > 0 {
		cfg.EvalConcurrency = e.EvalConcurrency
	}
	if e.RecentDecisionCap > 0 {
		cfg.RecentCap = e.RecentDecisionCap
	}
	cfg.PublishIntents = in.Enabled
	if in.SlippageToleranceBps > 0 {
		cfg.SlippageToleranceBps = decimal.NewFromFloat(in.SlippageToleranceBps)
	}
	if in.Deadline > 0 {
		cfg.IntentDeadline = in.Deadline
	}
	return cfg
}

// RegisterServices registers all arbitrage services with the DI container.
func (m *Module) RegisterServices(c di.Container) error {
	di.RegisterToken(c, arbitrageDI.Strategies, func(sr di.ServiceRegistry) []domain.StrategyConfig {
		cfg := sr.Get("config").(*config.Config)
		strategies, err := Strategies(cfg.Strategies)
		if err != nil {
			panic("invalid strategy: " + err.Error())
		}
		return strategies
	})

	di.RegisterToken(c, arbitrageDI.Detectors, func(sr di.ServiceRegistry) *app.DetectorManager {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)
		registry := sr.Get("assetRegistry").(*asset.Registry)

		detectors, err := Detectors(cfg.Detection, arbitrageDI.GetStrategies(sr), pricingDI.GetPriceBook(sr), registry)
		if err != nil {
			panic("failed to build detectors: " + err.Error())
		}
		return app.NewDetectorManager(log, cfg.Engine.DetectorTimeout, detectors...)
	})

	di.RegisterToken(c, arbitrageDI.Evaluator, func(sr di.ServiceRegistry) *app.Evaluator {
		cfg := sr.Get("config").(*config.Config)
		registry := sr.Get("assetRegistry").(*asset.Registry)
		return app.NewEvaluator(
			EvaluatorConfig(cfg.Costs, cfg.Chains),
			marketDI.GetChainRegistry(sr),
			pricingDI.GetPriceBook(sr),
			registry,
			arbitrageDI.GetStrategies(sr),
		)
	})

	di.RegisterToken(c, arbitrageDI.DecisionEngine, func(sr di.ServiceRegistry) *app.DecisionEngine {
		registry := sr.Get("assetRegistry").(*asset.Registry)
		return app.NewDecisionEngine(registry, arbitrageDI.GetStrategies(sr)...)
	})

	di.RegisterToken(c, arbitrageDI.Publisher, func(sr di.ServiceRegistry) *redisintent.Publisher {
		cfg := sr.Get("config").(*config.Config)
		if !cfg.Intents.Enabled {
			return nil
		}
		return redisintent.New(sr.Get("bus").(bus.Bus), cfg.Intents.Channel)
	})

	di.RegisterToken(c, arbitrageDI.AuditSink, func(sr di.ServiceRegistry) *clickhouse.Sink {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)
		ch := cfg.Storage.ClickHouse
		if !ch.Enabled {
			return nil
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		sink, err := clickhouse.Open(ctx, clickhouse.Config{
			Addr:          ch.Addr,
			Database:      ch.Database,
			Username:      ch.Username,
			Password:      ch.Password,
			BatchSize:     ch.BatchSize,
			FlushInterval: ch.Flush,
		}, log)
		if err != nil {
			// the audit trail is optional; decisions keep flowing without it
			log.Error(ctx, "evaluation audit disabled", "error", err)
			return nil
		}
		return sink
	})

	di.RegisterToken(c, arbitrageDI.Reporter, func(sr di.ServiceRegistry) app.Reporter {
		cfg := sr.Get("config").(*config.Config)
		chains := marketDI.GetChainRegistry(sr)
		if cfg.App.TUIMode {
			return infra.NewTUIReporter(chains)
		}
		return infra.NewConsoleReporter(chains, cfg.App.LogLevel == "debug")
	})

	di.RegisterToken(c, arbitrageDI.Engine, func(sr di.ServiceRegistry) *app.Engine {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		var opts []app.EngineOption
		if p := arbitrageDI.GetPublisher(sr); p != nil {
			opts = append(opts, app.WithIntentPublisher(p))
		}
		if s := arbitrageDI.GetAuditSink(sr); s != nil {
			opts = append(opts, app.WithEvaluationSink(s))
		}
		return app.NewEngine(
			EngineConfig(cfg.Engine, cfg.Intents),
			log,
			marketDI.GetMarketState(sr),
			arbitrageDI.GetDetectors(sr),
			arbitrageDI.GetEvaluator(sr),
			arbitrageDI.GetDecisionEngine(sr),
			opts...,
		)
	})

	return nil
}

// Startup wires head triggers and the reporter, then runs the engine.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	cfg := mono.Config()
	log := mono.Logger()
	sr := mono.Services()

	engine := arbitrageDI.GetEngine(sr)
	reporter := arbitrageDI.GetReporter(sr)

	if sink := arbitrageDI.GetAuditSink(sr); sink != nil {
		if err := sink.Migrate(ctx); err != nil {
			return err
		}
		go func() {
			sink.Run(ctx)
			_ = sink.Close()
		}()
	}

	if err := reporter.Start(ctx); err != nil {
		return err
	}
	engine.OnCycle(reporter.Report)

	if cfg.Engine.TriggerOnHeads {
		marketDI.GetMarketState(sr).OnNewHead(func(market.ChainID, uint64) {
			engine.Trigger(app.TriggerHead)
		})
	}

	go func() {
		if err := engine.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error(ctx, "decision engine stopped", "error", err)
		}
		_ = reporter.Stop()
	}()

	log.Info(ctx, "arbitrage module started",
		"strategies", len(arbitrageDI.GetStrategies(sr)),
		"detectors", arbitrageDI.GetDetectors(sr).Names(),
		"intents", cfg.Intents.Enabled)
	return nil
}
