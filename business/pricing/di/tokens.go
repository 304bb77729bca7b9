// Package di contains dependency injection tokens for the pricing context.
package di

import (
	"github.com/fd1az/multichain-arb/business/pricing/app"
	"github.com/fd1az/multichain-arb/internal/di"
)

// Public service tokens - exposed to other modules
var (
	PriceBook = di.NewToken[*app.PriceBook]("pricing.PriceBook")
)

// Private dependency tokens - internal to pricing module
var (
	TickerSources = di.NewToken[[]app.TickerSource]("pricing:tickerSources")
)

func GetPriceBook(c di.ServiceRegistry) *app.PriceBook {
	return di.GetToken(c, PriceBook)
}

func GetTickerSources(c di.ServiceRegistry) []app.TickerSource {
	return di.GetToken(c, TickerSources)
}
