// Package di contains dependency injection tokens for the feedback context.
package di

import (
	"github.com/fd1az/multichain-arb/business/feedback/app"
	"github.com/fd1az/multichain-arb/business/feedback/infra/postgres"
	"github.com/fd1az/multichain-arb/internal/di"
)

// Public service tokens - exposed to other modules
var (
	Processor = di.NewToken[*app.Processor]("feedback.Processor")
	Postgres  = di.NewToken[*postgres.Store]("feedback.Postgres")
)

// Private dependency tokens - internal to feedback module
var (
	Store = di.NewToken[app.OutcomeStore]("feedback:store")
)

func GetProcessor(c di.ServiceRegistry) *app.Processor {
	return di.GetToken(c, Processor)
}

// GetPostgres returns nil when the postgres store is disabled.
func GetPostgres(c di.ServiceRegistry) *postgres.Store {
	return di.GetToken(c, Postgres)
}

func GetStore(c di.ServiceRegistry) app.OutcomeStore {
	return di.GetToken(c, Store)
}
