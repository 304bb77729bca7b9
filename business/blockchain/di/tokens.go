// Package di contains dependency injection tokens for the blockchain context.
package di

import (
	"github.com/fd1az/multichain-arb/business/blockchain/app"
	"github.com/fd1az/multichain-arb/internal/di"
)

// Public service tokens - exposed to other modules
var (
	Watchers = di.NewToken[*app.WatcherSet]("blockchain.Watchers")
)

func GetWatchers(c di.ServiceRegistry) *app.WatcherSet {
	return di.GetToken(c, Watchers)
}
