// Package app contains the detection, evaluation and decision services of
// the arbitrage context.
package app

import (
	"context"

	"github.com/fd1az/multichain-arb/business/arbitrage/domain"
	market "github.com/fd1az/multichain-arb/business/market/domain"
	"github.com/fd1az/multichain-arb/internal/asset"
)

// PriceOracle values assets in USD.
type PriceOracle interface {
	USD(symbol string) (asset.Price, error)
}

// Canonicalizer maps a token symbol to the symbol it is priced under.
type Canonicalizer interface {
	Canonical(symbol string) string
}

// Detector proposes candidates from one snapshot.
type Detector interface {
	Name() string
	Detect(ctx context.Context, snap *market.Snapshot) ([]domain.Candidate, error)
}

// SnapshotSource is the read side of market state the engine needs.
type SnapshotSource interface {
	Snapshot() *market.Snapshot
}

// IntentPublisher emits the decision of a cycle.
type IntentPublisher interface {
	Publish(ctx context.Context, intent domain.TradeIntent) error
}

// EvaluationSink records every evaluation of a cycle for audit.
type EvaluationSink interface {
	Append(ctx context.Context, cycle uint64, evals []domain.EvaluationResult) error
}

// Reporter renders cycle outcomes.
type Reporter interface {
	Start(ctx context.Context) error
	Report(report CycleReport)
	Stop() error
}
