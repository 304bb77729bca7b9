// Package app contains the reference price book and its ports.
package app

import (
	"context"

	"github.com/fd1az/multichain-arb/business/pricing/domain"
)

// TickerSink receives reference tickers.
type TickerSink interface {
	Update(ctx context.Context, t domain.Ticker)
}

// TickerSource streams tickers into a sink until ctx is cancelled.
type TickerSource interface {
	Name() string
	Run(ctx context.Context, sink TickerSink) error
}
