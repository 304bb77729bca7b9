// Package di contains dependency injection tokens for the market context.
package di

import (
	"github.com/fd1az/multichain-arb/business/market/app"
	"github.com/fd1az/multichain-arb/business/market/domain"
	"github.com/fd1az/multichain-arb/internal/di"
)

// Public service tokens - exposed to other modules
var (
	MarketState   = di.NewToken[*app.MarketState]("market.MarketState")
	ChainRegistry = di.NewToken[*domain.ChainRegistry]("market.ChainRegistry")
	Ingestor      = di.NewToken[*app.Ingestor]("market.Ingestor")
)

func GetMarketState(c di.ServiceRegistry) *app.MarketState {
	return di.GetToken(c, MarketState)
}

func GetChainRegistry(c di.ServiceRegistry) *domain.ChainRegistry {
	return di.GetToken(c, ChainRegistry)
}

func GetIngestor(c di.ServiceRegistry) *app.Ingestor {
	return di.GetToken(c, Ingestor)
}
