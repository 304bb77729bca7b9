package main

import (
	"context"
	"fmt"

	feedbackDI "github.com/fd1az/multichain-arb/business/feedback/di"
	marketDI "github.com/fd1az/multichain-arb/business/market/di"
	"github.com/fd1az/multichain-arb/internal/config"
	"github.com/fd1az/multichain-arb/internal/health"
	"github.com/fd1az/multichain-arb/internal/logger"
	"github.com/fd1az/multichain-arb/internal/monolith"
)

func newHealthServer(cfg *config.Config, mono monolith.Runtime, log logger.LoggerInterface) *health.Server {
	s := health.NewServer(cfg.Health.Port, version, log)
	sr := mono.Services()

	state := marketDI.GetMarketState(sr)
	s.RegisterCheck("market", func(context.Context) (bool, string) {
		v := state.Version()
		if v == 0 {
			return false, "no features ingested"
		}
		return true, fmt.Sprintf("version %d, %d features", v, state.Len())
	})

	if rc := mono.Redis(); rc != nil {
		s.RegisterCheck("redis", health.PingCheck(rc.Ping))
	}
	if pg := feedbackDI.GetPostgres(sr); pg != nil {
		s.RegisterCheck("postgres", health.PingCheck(pg.Ping))
	}

	s.RegisterCheck("memory", health.MemoryCheck(cfg.Health.MaxMemPercent))
	s.RegisterCheck("cpu", health.CPUCheck())
	return s
}
