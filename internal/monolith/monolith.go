// Package monolith provides the application container and module interface.
package monolith

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/fd1az/multichain-arb/internal/asset"
	"github.com/fd1az/multichain-arb/internal/bus"
	"github.com/fd1az/multichain-arb/internal/config"
	"github.com/fd1az/multichain-arb/internal/di"
	"github.com/fd1az/multichain-arb/internal/logger"
)

// Monolith is the main application container providing access to shared infrastructure.
type Monolith interface {
	Config() *config.Config
	Logger() logger.LoggerInterface
	EthClient(chainID uint64) (*ethclient.Client, bool)
	Bus() bus.Bus
	AssetRegistry() *asset.Registry
	Services() di.ServiceRegistry
}

// Runtime is the container as driven by main.
type Runtime interface {
	Monolith
	Redis() *bus.Client
	RegisterModules(modules ...Module) error
	StartModules(ctx context.Context, modules ...Module) error
	Close() error
}

var _ Runtime = (*app)(nil)

// Module represents a bounded context module that can register services and start up.
type Module interface {
	RegisterServices(di.Container) error
	Startup(context.Context, Monolith) error
}

type app struct {
	config        *config.Config
	logger        logger.LoggerInterface
	ethClients    map[uint64]*ethclient.Client
	bus           bus.Bus
	redis         *bus.Client
	assetRegistry *asset.Registry
	container     di.Container
}

// New creates the container. It dials an HTTP RPC client for every chain
// with an http_url and connects to Redis when enabled; otherwise an
// in-process bus is used.
func New(ctx context.Context, cfg *config.Config, log logger.LoggerInterface) (*app, error) {
	clients := make(map[uint64]*ethclient.Client)
	for _, ch := range cfg.Chains {
		if ch.HTTPURL == "" {
			continue
		}
		c, err := ethclient.DialContext(ctx, ch.HTTPURL)
		if err != nil {
			closeClients(clients)
			return nil, fmt.Errorf("dial chain %d: %w", ch.ID, err)
		}
		clients[ch.ID] = c
	}

	a := &app{
		config:        cfg,
		logger:        log,
		ethClients:    clients,
		assetRegistry: asset.DefaultRegistry(),
		container:     di.NewContainer(),
	}

	if cfg.Redis.Enabled {
		rc, err := bus.New(ctx, bus.Config{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			closeClients(clients)
			return nil, err
		}
		a.redis = rc
		a.bus = rc
	} else {
		a.bus = bus.NewMemory()
	}

	// Register global services
	a.container.Register("config", cfg)
	a.container.Register("logger", log)
	a.container.Register("bus", a.bus)
	a.container.Register("assetRegistry", a.assetRegistry)

	return a, nil
}

func closeClients(clients map[uint64]*ethclient.Client) {
	for _, c := range clients {
		c.Close()
	}
}

func (a *app) Config() *config.Config {
	return a.config
}

func (a *app) Logger() logger.LoggerInterface {
	return a.logger
}

func (a *app) EthClient(chainID uint64) (*ethclient.Client, bool) {
	c, ok := a.ethClients[chainID]
	return c, ok
}

func (a *app) Bus() bus.Bus {
	return a.bus
}

// Redis returns the Redis client, nil when Redis is disabled.
func (a *app) Redis() *bus.Client {
	return a.redis
}

func (a *app) AssetRegistry() *asset.Registry {
	return a.assetRegistry
}

func (a *app) Services() di.ServiceRegistry {
	return a.container
}

// Container returns the DI container for module registration.
func (a *app) Container() di.Container {
	return a.container
}

// RegisterModules registers all provided modules.
func (a *app) RegisterModules(modules ...Module) error {
	for _, m := range modules {
		if err := m.RegisterServices(a.container); err != nil {
			return err
		}
	}
	return nil
}

// StartModules starts all provided modules in order.
func (a *app) StartModules(ctx context.Context, modules ...Module) error {
	for _, m := range modules {
		if err := m.Startup(ctx, a); err != nil {
			return err
		}
	}
	return nil
}

// Close closes all resources.
func (a *app) Close() error {
	closeClients(a.ethClients)
	if a.redis != nil {
		return a.redis.Close()
	}
	return nil
}
