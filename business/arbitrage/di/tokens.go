// Package di contains dependency injection tokens for the arbitrage context.
package di

import (
	"github.com/fd1az/multichain-arb/business/arbitrage/app"
	"github.com/fd1az/multichain-arb/business/arbitrage/domain"
	"github.com/fd1az/multichain-arb/business/arbitrage/infra/clickhouse"
	"github.com/fd1az/multichain-arb/business/arbitrage/infra/redisintent"
	"github.com/fd1az/multichain-arb/internal/di"
)

// Public service tokens - exposed to other modules
var (
	Engine     = di.NewToken[*app.Engine]("arbitrage.Engine")
	Strategies = di.NewToken[[]domain.StrategyConfig]("arbitrage.Strategies")
)

// Private dependency tokens - internal to arbitrage module
var (
	Detectors      = di.NewToken[*app.DetectorManager]("arbitrage:detectors")
	Evaluator      = di.NewToken[*app.Evaluator]("arbitrage:evaluator")
	DecisionEngine = di.NewToken[*app.DecisionEngine]("arbitrage:decisionEngine")
	Publisher      = di.NewToken[*redisintent.Publisher]("arbitrage:publisher")
	AuditSink      = di.NewToken[*clickhouse.Sink]("arbitrage:auditSink")
	Reporter       = di.NewToken[app.Reporter]("arbitrage:reporter")
)

func GetEngine(c di.ServiceRegistry) *app.Engine {
	return di.GetToken(c, Engine)
}

func GetStrategies(c di.ServiceRegistry) []domain.StrategyConfig {
	return di.GetToken(c, Strategies)
}

func GetDetectors(c di.ServiceRegistry) *app.DetectorManager {
	return di.GetToken(c, Detectors)
}

func GetEvaluator(c di.ServiceRegistry) *app.Evaluator {
	return di.GetToken(c, Evaluator)
}

func GetDecisionEngine(c di.ServiceRegistry) *app.DecisionEngine {
	return di.GetToken(c, DecisionEngine)
}

// GetPublisher returns nil when intents are disabled.
func GetPublisher(c di.ServiceRegistry) *redisintent.Publisher {
	return di.GetToken(c, Publisher)
}

// GetAuditSink returns nil when the audit sink is disabled or unreachable.
func GetAuditSink(c di.ServiceRegistry) *clickhouse.Sink {
	return di.GetToken(c, AuditSink)
}

func GetReporter(c di.ServiceRegistry) app.Reporter {
	return di.GetToken(c, Reporter)
}
