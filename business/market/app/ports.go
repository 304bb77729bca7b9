// Package app contains the market state and the ingestion pipeline feeding it.
package app

import (
	"context"

	"github.com/fd1az/multichain-arb/business/market/domain"
)

// Sink receives decoded features from a source.
type Sink interface {
	// Ingest offers a feature to market state.
	Ingest(ctx context.Context, source string, f domain.Feature)

	// Malformed reports a frame that could not be decoded.
	Malformed(ctx context.Context, source string, err error)
}

// FeatureSource delivers features until its context is cancelled or its
// input is exhausted.
type FeatureSource interface {
	Name() string
	Run(ctx context.Context, sink Sink) error
}
