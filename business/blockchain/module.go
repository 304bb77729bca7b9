// Package blockchain implements the chain bounded context: per-chain head
// subscriptions and gas sampling over go-ethereum.
package blockchain

import (
	"context"

	"github.com/fd1az/multichain-arb/business/blockchain/app"
	blockchainDI "github.com/fd1az/multichain-arb/business/blockchain/di"
	"github.com/fd1az/multichain-arb/business/blockchain/infra/ethereum"
	marketDI "github.com/fd1az/multichain-arb/business/market/di"
	market "github.com/fd1az/multichain-arb/business/market/domain"
	"github.com/fd1az/multichain-arb/internal/config"
	"github.com/fd1az/multichain-arb/internal/di"
	"github.com/fd1az/multichain-arb/internal/logger"
	"github.com/fd1az/multichain-arb/internal/monolith"
)

// Module implements the blockchain bounded context.
type Module struct{}

// RegisterServices registers the watcher set. Watchers themselves need the
// RPC clients owned by the monolith and are built at startup.
func (m *Module) RegisterServices(c di.Container) error {
	di.RegisterToken(c, blockchainDI.Watchers, func(di.ServiceRegistry) *app.WatcherSet {
		return &app.WatcherSet{}
	})
	return nil
}

// Startup builds one watcher per chain with a node endpoint and attaches it
// to the market ingestor.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	cfg := mono.Config()
	log := mono.Logger()
	registry := marketDI.GetChainRegistry(mono.Services())
	ingestor := marketDI.GetIngestor(mono.Services())
	set := blockchainDI.GetWatchers(mono.Services())

	for _, cc := range cfg.Chains {
		if !cc.HasRPC() {
			continue
		}
		chain, _ := registry.Get(market.ChainID(cc.ID))
		w, err := newWatcher(ctx, cc, chain, mono, log)
		if err != nil {
			log.Error(ctx, "chain watcher disabled", "chain", cc.Name, "error", err)
			continue
		}
		set.Add(w)
		ingestor.AddSource(w)
	}

	log.Info(ctx, "blockchain module started", "chains", len(set.All()))
	return nil
}

func newWatcher(ctx context.Context, cc config.ChainConfig, chain market.Chain, mono monolith.Monolith, log logger.LoggerInterface) (*app.ChainWatcher, error) {
	subCfg := ethereum.DefaultSubscriberConfig(cc.ID, cc.WebSocketURL, cc.HTTPURL, chain.BlockInterval)
	if cc.GasPollInterval > 0 {
		subCfg.PollInterval = cc.GasPollInterval
	}
	if cc.InitialBackoff > 0 {
		subCfg.ReconnectDelay = cc.InitialBackoff
	}
	sub, err := ethereum.NewSubscriber(subCfg, log)
	if err != nil {
		return nil, err
	}

	var gasClient ethereum.GasClient
	if client, ok := mono.EthClient(cc.ID); ok {
		gasClient = client
	}
	oracle, err := ethereum.NewGasOracle(ethereum.DefaultGasOracleConfig(cc.ID, chain.BlockInterval), gasClient, log)
	if err != nil {
		return nil, err
	}

	go func() {
		<-ctx.Done()
		_ = sub.Close()
		_ = oracle.Close()
	}()

	return app.NewChainWatcher(chain, sub, oracle, log), nil
}
