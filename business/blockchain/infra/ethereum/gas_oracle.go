package ethereum

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/multichain-arb/business/blockchain/domain"
	"github.com/fd1az/multichain-arb/internal/apperror"
	"github.com/fd1az/multichain-arb/internal/cache"
	"github.com/fd1az/multichain-arb/internal/circuitbreaker"
	"github.com/fd1az/multichain-arb/internal/logger"
)

// GasClient is the part of ethclient.Client the oracle uses.
type GasClient interface {
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
}

// GasOracleConfig holds configuration for the gas oracle.
type GasOracleConfig struct {
	Chain       uint64
	CacheTTL    time.Duration // how long a sampled price is reused
	MaxGasPrice *big.Int      // prices above are clamped
}

// DefaultGasOracleConfig returns defaults for chain. The cache lives for one
// block interval.
func DefaultGasOracleConfig(chain uint64, blockInterval time.Duration) GasOracleConfig {
	maxGas := new(big.Int)
	maxGas.SetString("500000000000", 10) // 500 gwei max

	if blockInterval <= 0 {
		blockInterval = 12 * time.Second
	}
	return GasOracleConfig{
		Chain:       chain,
		CacheTTL:    blockInterval,
		MaxGasPrice: maxGas,
	}
}

type gasOracleMetrics struct {
	gasPriceFetches metric.Int64Counter
	gasPriceGwei    metric.Float64Gauge
	cacheHits       metric.Int64Counter
	cacheMisses     metric.Int64Counter
}

// GasOracle samples gas prices on one chain through a cache and a circuit
// breaker.
type GasOracle struct {
	config GasOracleConfig
	logger logger.LoggerInterface
	client GasClient

	priceCache *cache.Cache[uint64, *domain.GasPrice]
	cb         *circuitbreaker.CircuitBreaker[*big.Int]

	tracer  trace.Tracer
	metrics *gasOracleMetrics
	attrs   metric.MeasurementOption
}

// NewGasOracle creates a gas oracle over client.
func NewGasOracle(cfg GasOracleConfig, client GasClient, log logger.LoggerInterface) (*GasOracle, error) {
	g := &GasOracle{
		config:     cfg,
		logger:     log,
		client:     client,
		priceCache: cache.New[uint64, *domain.GasPrice](5 * time.Minute),
		cb:         circuitbreaker.New[*big.Int](circuitbreaker.DefaultConfig(fmt.Sprintf("gas-oracle-%d", cfg.Chain))),
		tracer:     otel.Tracer(tracerName),
		attrs:      metric.WithAttributes(attribute.Int64("chain_id", int64(cfg.Chain))),
	}

	if err := g.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	return g, nil
}

func (g *GasOracle) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	g.metrics = &gasOracleMetrics{}

	g.metrics.gasPriceFetches, err = meter.Int64Counter(
		"gas_price_fetches_total",
		metric.WithDescription("Total gas price fetch attempts"),
		metric.WithUnit("{fetch}"),
	)
	if err != nil {
		return err
	}

	g.metrics.gasPriceGwei, err = meter.Float64Gauge(
		"gas_price_gwei",
		metric.WithDescription("Current gas price in gwei"),
		metric.WithUnit("gwei"),
	)
	if err != nil {
		return err
	}

	g.metrics.cacheHits, err = meter.Int64Counter(
		"gas_cache_hits_total",
		metric.WithDescription("Gas price cache hits"),
		metric.WithUnit("{hit}"),
	)
	if err != nil {
		return err
	}

	g.metrics.cacheMisses, err = meter.Int64Counter(
		"gas_cache_misses_total",
		metric.WithDescription("Gas price cache misses"),
		metric.WithUnit("{miss}"),
	)
	return err
}

// GasPrice returns the gas price for block, sampling the node at most once
// per block.
func (g *GasOracle) GasPrice(ctx context.Context, block uint64) (*domain.GasPrice, error) {
	ctx, span := g.tracer.Start(ctx, "gas.get_price", trace.WithAttributes(
		attribute.Int64("chain_id", int64(g.config.Chain)),
		attribute.Int64("block", int64(block)),
	))
	defer span.End()

	if price, found := g.priceCache.Get(ctx, block); found {
		g.metrics.cacheHits.Add(ctx, 1, g.attrs)
		span.AddEvent("cache_hit")
		return price, nil
	}

	g.metrics.cacheMisses.Add(ctx, 1, g.attrs)
	g.metrics.gasPriceFetches.Add(ctx, 1, g.attrs)

	if g.client == nil {
		err := apperror.New(apperror.CodeRPCConnectionFailed,
			apperror.WithContext(fmt.Sprintf("gas oracle for chain %d has no client", g.config.Chain)))
		span.RecordError(err)
		return nil, err
	}

	wei, err := g.cb.Execute(func() (*big.Int, error) {
		return g.client.SuggestGasPrice(ctx)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		return nil, apperror.New(apperror.CodeGasPriceUnavailable,
			apperror.WithCause(err),
			apperror.WithContext(fmt.Sprintf("chain %d", g.config.Chain)))
	}

	if g.config.MaxGasPrice != nil && wei.Cmp(g.config.MaxGasPrice) > 0 {
		span.AddEvent("gas_price_exceeded_max",
			trace.WithAttributes(attribute.String("wei", wei.String())))
		g.logger.Warn(ctx, "gas price exceeds max", "chain", g.config.Chain, "wei", wei.String())
		wei = g.config.MaxGasPrice
	}

	price := domain.NewGasPrice(g.config.Chain, wei, time.Now())

	// the tip only sharpens the prediction; a failure is not fatal
	if tip, err := g.client.SuggestGasTipCap(ctx); err == nil {
		price.TipWei = tip
	} else {
		span.AddEvent("tip_cap_unavailable")
	}

	g.priceCache.Set(ctx, block, price, g.config.CacheTTL)

	gwei, _ := price.Gwei().Float64()
	g.metrics.gasPriceGwei.Record(ctx, gwei, g.attrs)

	span.SetAttributes(attribute.Float64("gwei", gwei))
	span.SetStatus(codes.Ok, "fetched")
	return price, nil
}

// Close stops the cache sweeper.
func (g *GasOracle) Close() error {
	g.priceCache.Close()
	return nil
}
