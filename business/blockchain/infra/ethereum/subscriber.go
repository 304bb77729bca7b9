// Package ethereum provides go-ethereum adapters for EVM chain heads and gas.
package ethereum

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/multichain-arb/business/blockchain/domain"
	"github.com/fd1az/multichain-arb/internal/apperror"
	"github.com/fd1az/multichain-arb/internal/circuitbreaker"
	"github.com/fd1az/multichain-arb/internal/logger"
)

const (
	tracerName = "github.com/fd1az/multichain-arb/business/blockchain/infra/ethereum"
	meterName  = "github.com/fd1az/multichain-arb/business/blockchain/infra/ethereum"
)

// SubscriberConfig holds configuration for one chain's head subscriber.
type SubscriberConfig struct {
	Chain          uint64
	WSURL          string        // WebSocket endpoint (primary)
	HTTPURL        string        // HTTP endpoint (fallback)
	PollInterval   time.Duration // Polling interval for HTTP fallback
	ReconnectDelay time.Duration // Delay before reconnecting WS
	BufferSize     int           // Block channel buffer size
}

// DefaultSubscriberConfig returns defaults polling once per block interval.
func DefaultSubscriberConfig(chain uint64, wsURL, httpURL string, blockInterval time.Duration) SubscriberConfig {
	if blockInterval <= 0 {
		blockInterval = 12 * time.Second
	}
	return SubscriberConfig{
		Chain:          chain,
		WSURL:          wsURL,
		HTTPURL:        httpURL,
		PollInterval:   blockInterval,
		ReconnectDelay: 5 * time.Second,
		BufferSize:     16,
	}
}

type subscriberMetrics struct {
	blocksReceived   metric.Int64Counter
	subscribeErrors  metric.Int64Counter
	connectionState  metric.Int64Gauge
	blockLatency     metric.Float64Histogram
	httpFallbackUsed metric.Int64Counter
}

// Subscriber streams new heads of one chain. It uses WebSocket as primary
// with HTTP polling as fallback.
type Subscriber struct {
	config SubscriberConfig
	logger logger.LoggerInterface

	wsClient   *ethclient.Client
	httpClient *ethclient.Client
	clientMu   sync.RWMutex

	state      domain.ConnectionState
	stateMu    sync.RWMutex
	usingHTTP  atomic.Bool
	lastBlock  atomic.Uint64
	reconnects atomic.Int32

	blocks  chan *domain.Block
	done    chan struct{}
	closeMu sync.Mutex
	closed  atomic.Bool

	wsCB   *circuitbreaker.CircuitBreaker[*types.Header]
	httpCB *circuitbreaker.CircuitBreaker[*types.Header]

	tracer  trace.Tracer
	metrics *subscriberMetrics
	attrs   metric.MeasurementOption
}

// NewSubscriber creates a head subscriber.
func NewSubscriber(cfg SubscriberConfig, log logger.LoggerInterface) (*Subscriber, error) {
	s := &Subscriber{
		config: cfg,
		logger: log,
		state:  domain.StateDisconnected,
		blocks: make(chan *domain.Block, cfg.BufferSize),
		done:   make(chan struct{}),
		tracer: otel.Tracer(tracerName),
		attrs:  metric.WithAttributes(attribute.Int64("chain_id", int64(cfg.Chain))),
	}

	if err := s.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	s.initCircuitBreakers()

	return s, nil
}

func (s *Subscriber) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	s.metrics = &subscriberMetrics{}

	s.metrics.blocksReceived, err = meter.Int64Counter(
		"chain_blocks_received_total",
		metric.WithDescription("Total chain heads received"),
		metric.WithUnit("{block}"),
	)
	if err != nil {
		return err
	}

	s.metrics.subscribeErrors, err = meter.Int64Counter(
		"chain_subscribe_errors_total",
		metric.WithDescription("Total head subscription errors"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return err
	}

	s.metrics.connectionState, err = meter.Int64Gauge(
		"chain_connection_state",
		metric.WithDescription("Node connection state (0=disconnected, 1=connecting, 2=connected, 3=reconnecting)"),
		metric.WithUnit("{state}"),
	)
	if err != nil {
		return err
	}

	s.metrics.blockLatency, err = meter.Float64Histogram(
		"chain_block_latency_ms",
		metric.WithDescription("Latency from block timestamp to receipt"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return err
	}

	s.metrics.httpFallbackUsed, err = meter.Int64Counter(
		"chain_http_fallback_total",
		metric.WithDescription("Times HTTP fallback was used"),
		metric.WithUnit("{fallback}"),
	)
	return err
}

func (s *Subscriber) initCircuitBreakers() {
	onChange := func(name string, from, to gobreaker.State) {
		s.logger.Info(context.Background(), "circuit breaker state change",
			"breaker", name, "from", from.String(), "to", to.String())
	}

	wsCfg := circuitbreaker.DefaultConfig(fmt.Sprintf("chain-%d-ws", s.config.Chain))
	wsCfg.OnStateChange = onChange
	s.wsCB = circuitbreaker.New[*types.Header](wsCfg)

	httpCfg := circuitbreaker.DefaultConfig(fmt.Sprintf("chain-%d-http", s.config.Chain))
	httpCfg.OnStateChange = onChange
	s.httpCB = circuitbreaker.New[*types.Header](httpCfg)
}

// Chain returns the chain id this subscriber follows.
func (s *Subscriber) Chain() uint64 { return s.config.Chain }

// Subscribe starts listening for new heads and returns the channel.
func (s *Subscriber) Subscribe(ctx context.Context) (<-chan *domain.Block, error) {
	ctx, span := s.tracer.Start(ctx, "chain.subscribe",
		trace.WithAttributes(
			attribute.Int64("chain_id", int64(s.config.Chain)),
			attribute.Bool("has_ws", s.config.WSURL != ""),
			attribute.Bool("has_http", s.config.HTTPURL != ""),
		),
	)
	defer span.End()

	if s.closed.Load() {
		err := errors.New("subscriber is closed")
		span.RecordError(err)
		return nil, err
	}

	s.setState(domain.StateConnecting)

	if err := s.connectWS(ctx); err != nil {
		s.logger.Warn(ctx, "ws connection failed, trying http fallback", "chain", s.config.Chain, "error", err)
		span.AddEvent("ws_failed_trying_http")

		if err := s.connectHTTP(ctx); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "both connections failed")
			s.setState(domain.StateDisconnected)
			return nil, apperror.New(apperror.CodeRPCConnectionFailed,
				apperror.WithCause(err),
				apperror.WithContext(fmt.Sprintf("chain %d: failed to connect via WS and HTTP", s.config.Chain)))
		}

		s.usingHTTP.Store(true)
		go s.runHTTPPoller(ctx)
	} else {
		go s.runWSSubscription(ctx)
	}

	s.setState(domain.StateConnected)
	span.SetStatus(codes.Ok, "subscribed")

	return s.blocks, nil
}

func (s *Subscriber) connectWS(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, "chain.connect.ws")
	defer span.End()

	if s.config.WSURL == "" {
		return errors.New("ws url not configured")
	}

	client, err := ethclient.DialContext(ctx, s.config.WSURL)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "dial failed")
		return fmt.Errorf("dial ws: %w", err)
	}

	s.clientMu.Lock()
	s.wsClient = client
	s.clientMu.Unlock()

	span.SetStatus(codes.Ok, "connected")
	return nil
}

func (s *Subscriber) connectHTTP(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, "chain.connect.http")
	defer span.End()

	if s.config.HTTPURL == "" {
		return errors.New("http url not configured")
	}

	client, err := ethclient.DialContext(ctx, s.config.HTTPURL)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "dial failed")
		return fmt.Errorf("dial http: %w", err)
	}

	s.clientMu.Lock()
	s.httpClient = client
	s.clientMu.Unlock()

	span.SetStatus(codes.Ok, "connected")
	return nil
}

func (s *Subscriber) runWSSubscription(ctx context.Context) {
	headers := make(chan *types.Header, s.config.BufferSize)

	s.clientMu.RLock()
	client := s.wsClient
	s.clientMu.RUnlock()

	if client == nil {
		s.handleWSDisconnect(ctx)
		return
	}

	sub, err := client.SubscribeNewHead(ctx, headers)
	if err != nil {
		s.logger.Error(ctx, "subscribe new head failed", "chain", s.config.Chain, "error", err)
		s.metrics.subscribeErrors.Add(ctx, 1, s.attrs)
		s.handleWSDisconnect(ctx)
		return
	}

	s.logger.Info(ctx, "subscribed to new heads via ws", "chain", s.config.Chain)

	s.processWSHeaders(ctx, headers, sub)

	sub.Unsubscribe()
	s.handleWSDisconnect(ctx)
}

func (s *Subscriber) processWSHeaders(ctx context.Context, headers <-chan *types.Header, sub interface{ Err() <-chan error }) {
	for {
		select {
		case <-s.done:
			return
		case <-ctx.Done():
			return
		case err := <-sub.Err():
			if err != nil {
				s.logger.Error(ctx, "subscription error", "chain", s.config.Chain, "error", err)
				s.metrics.subscribeErrors.Add(ctx, 1, s.attrs)
			}
			return
		case header := <-headers:
			if header == nil {
				continue
			}
			s.processHeader(ctx, header, false)
		}
	}
}

// handleWSDisconnect retries WS once, then falls back to HTTP polling.
func (s *Subscriber) handleWSDisconnect(ctx context.Context) {
	if s.closed.Load() || ctx.Err() != nil {
		return
	}

	s.setState(domain.StateReconnecting)
	s.reconnects.Add(1)

	select {
	case <-time.After(s.config.ReconnectDelay):
	case <-ctx.Done():
		return
	case <-s.done:
		return
	}

	if err := s.connectWS(ctx); err != nil {
		s.logger.Warn(ctx, "ws reconnect failed, switching to http", "chain", s.config.Chain, "error", err)

		s.clientMu.RLock()
		haveHTTP := s.httpClient != nil
		s.clientMu.RUnlock()
		if !haveHTTP {
			if err := s.connectHTTP(ctx); err != nil {
				s.logger.Error(ctx, "http fallback connection failed", "chain", s.config.Chain, "error", err)
				s.setState(domain.StateDisconnected)
				return
			}
		}

		s.usingHTTP.Store(true)
		s.metrics.httpFallbackUsed.Add(ctx, 1, s.attrs)
		s.setState(domain.StateConnected)
		go s.runHTTPPoller(ctx)
		return
	}

	s.usingHTTP.Store(false)
	s.setState(domain.StateConnected)
	go s.runWSSubscription(ctx)
}

func (s *Subscriber) runHTTPPoller(ctx context.Context) {
	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	s.logger.Info(ctx, "starting http polling fallback", "chain", s.config.Chain, "interval", s.config.PollInterval)

	for {
		select {
		case <-s.done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.pollLatestBlock(ctx)
		}
	}
}

func (s *Subscriber) pollLatestBlock(ctx context.Context) {
	ctx, span := s.tracer.Start(ctx, "chain.poll.block")
	defer span.End()

	s.clientMu.RLock()
	client := s.httpClient
	s.clientMu.RUnlock()

	if client == nil {
		span.AddEvent("no_http_client")
		return
	}

	header, err := s.httpCB.Execute(func() (*types.Header, error) {
		return client.HeaderByNumber(ctx, nil) // nil = latest
	})
	if err != nil {
		span.RecordError(err)
		s.logger.Error(ctx, "http poll failed", "chain", s.config.Chain, "error", err)
		s.metrics.subscribeErrors.Add(ctx, 1, s.attrs)
		return
	}

	if header.Number.Uint64() <= s.lastBlock.Load() {
		span.AddEvent("duplicate_block")
		return
	}

	s.processHeader(ctx, header, true)
	span.SetStatus(codes.Ok, "polled")
}

func (s *Subscriber) processHeader(ctx context.Context, header *types.Header, fromHTTP bool) {
	ctx, span := s.tracer.Start(ctx, "chain.process.header",
		trace.WithAttributes(
			attribute.Int64("chain_id", int64(s.config.Chain)),
			attribute.Int64("block_number", int64(header.Number.Uint64())),
			attribute.Bool("from_http", fromHTTP),
		),
	)
	defer span.End()

	block := s.headerToBlock(header)

	latency := time.Since(block.Timestamp)
	s.metrics.blockLatency.Record(ctx, float64(latency.Milliseconds()), s.attrs)

	s.lastBlock.Store(block.Number)

	select {
	case s.blocks <- block:
		s.metrics.blocksReceived.Add(ctx, 1, s.attrs)
		s.logger.Debug(ctx, "block received",
			"chain", s.config.Chain,
			"number", block.Number,
			"latency_ms", latency.Milliseconds())
	default:
		span.AddEvent("block_dropped_buffer_full")
		s.logger.Warn(ctx, "block dropped, buffer full", "chain", s.config.Chain, "number", block.Number)
	}

	span.SetStatus(codes.Ok, "processed")
}

func (s *Subscriber) headerToBlock(header *types.Header) *domain.Block {
	return &domain.Block{
		Chain:      s.config.Chain,
		Number:     header.Number.Uint64(),
		Hash:       header.Hash(),
		ParentHash: header.ParentHash,
		Timestamp:  time.Unix(int64(header.Time), 0),
		GasLimit:   header.GasLimit,
		GasUsed:    header.GasUsed,
		BaseFee:    header.BaseFee,
	}
}

// LatestBlock retrieves the most recent head.
func (s *Subscriber) LatestBlock(ctx context.Context) (*domain.Block, error) {
	ctx, span := s.tracer.Start(ctx, "chain.latest_block")
	defer span.End()

	s.clientMu.RLock()
	wsClient := s.wsClient
	httpClient := s.httpClient
	s.clientMu.RUnlock()

	var header *types.Header
	var err error

	if wsClient != nil && !s.usingHTTP.Load() {
		header, err = s.wsCB.Execute(func() (*types.Header, error) {
			return wsClient.HeaderByNumber(ctx, nil)
		})
	}

	if header == nil && httpClient != nil {
		header, err = s.httpCB.Execute(func() (*types.Header, error) {
			return httpClient.HeaderByNumber(ctx, nil)
		})
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		return nil, apperror.New(apperror.CodeBlockNotFound,
			apperror.WithCause(err),
			apperror.WithContext(fmt.Sprintf("chain %d: latest block", s.config.Chain)))
	}

	if header == nil {
		return nil, apperror.New(apperror.CodeRPCConnectionFailed,
			apperror.WithContext(fmt.Sprintf("chain %d: no client connected", s.config.Chain)))
	}

	span.SetStatus(codes.Ok, "fetched")
	return s.headerToBlock(header), nil
}

// VerifyChainID checks that the connected node serves the configured chain.
func (s *Subscriber) VerifyChainID(ctx context.Context) error {
	s.clientMu.RLock()
	client := s.wsClient
	if client == nil || s.usingHTTP.Load() {
		client = s.httpClient
	}
	s.clientMu.RUnlock()

	if client == nil {
		return apperror.New(apperror.CodeRPCConnectionFailed,
			apperror.WithContext(fmt.Sprintf("chain %d: no client connected", s.config.Chain)))
	}

	id, err := client.ChainID(ctx)
	if err != nil {
		return apperror.New(apperror.CodeRPCError, apperror.WithCause(err),
			apperror.WithContext(fmt.Sprintf("chain %d: chain id", s.config.Chain)))
	}
	if !id.IsUint64() || id.Uint64() != s.config.Chain {
		return apperror.New(apperror.CodeConfigurationError,
			apperror.WithContext(fmt.Sprintf("node reports chain %s, configured %d", id, s.config.Chain)))
	}
	return nil
}

// State returns the current connection state.
func (s *Subscriber) State() domain.ConnectionState {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

// Status returns detailed connection status.
func (s *Subscriber) Status() domain.ConnectionStatus {
	return domain.ConnectionStatus{
		Chain:      s.config.Chain,
		State:      s.State(),
		LastBlock:  s.lastBlock.Load(),
		LastUpdate: time.Now(),
		Reconnects: int(s.reconnects.Load()),
		UsingHTTP:  s.usingHTTP.Load(),
	}
}

// Close gracefully closes the subscriber.
func (s *Subscriber) Close() error {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()

	if s.closed.Load() {
		return nil
	}

	s.logger.Info(context.Background(), "closing head subscriber", "chain", s.config.Chain)

	s.closed.Store(true)
	close(s.done)

	s.clientMu.Lock()
	if s.wsClient != nil {
		s.wsClient.Close()
		s.wsClient = nil
	}
	if s.httpClient != nil {
		s.httpClient.Close()
		s.httpClient = nil
	}
	s.clientMu.Unlock()

	s.setState(domain.StateDisconnected)

	return nil
}

func (s *Subscriber) setState(state domain.ConnectionState) {
	s.stateMu.Lock()
	s.state = state
	s.stateMu.Unlock()

	var stateValue int64
	switch state {
	case domain.StateConnecting:
		stateValue = 1
	case domain.StateConnected:
		stateValue = 2
	case domain.StateReconnecting:
		stateValue = 3
	}

	s.metrics.connectionState.Record(context.Background(), stateValue, s.attrs)
}
