package binance

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/sugawarayuuta/sonnet"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/multichain-arb/business/pricing/app"
	"github.com/fd1az/multichain-arb/business/pricing/domain"
	"github.com/fd1az/multichain-arb/internal/apperror"
	"github.com/fd1az/multichain-arb/internal/logger"
	"github.com/fd1az/multichain-arb/internal/wsconn"
)

const (
	tracerName = "github.com/fd1az/multichain-arb/business/pricing/infra/binance"
	meterName  = "github.com/fd1az/multichain-arb/business/pricing/infra/binance"

	// Binance WebSocket endpoints
	BaseWSURL   = "wss://stream.binance.com:9443"
	BaseWSURLUS = "wss://stream.binance.us:9443"

	sourceName = "binance"
)

// StreamConfig holds configuration for the ticker stream.
type StreamConfig struct {
	BaseURL      string
	Symbols      []string // e.g. ETHUSDT
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultStreamConfig returns sensible defaults.
func DefaultStreamConfig(symbols []string) StreamConfig {
	return StreamConfig{
		BaseURL:      BaseWSURL,
		Symbols:      symbols,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

type streamMetrics struct {
	messagesReceived metric.Int64Counter
	tickers          metric.Int64Counter
	parseErrors      metric.Int64Counter
}

// Stream is a reference price source over the combined bookTicker streams.
type Stream struct {
	config StreamConfig
	logger logger.LoggerInterface

	tracer  trace.Tracer
	metrics *streamMetrics
	now     func() time.Time
}

var _ app.TickerSource = (*Stream)(nil)

// NewStream creates a stream. It fails when no symbols are configured.
func NewStream(cfg StreamConfig, log logger.LoggerInterface) (*Stream, error) {
	if len(cfg.Symbols) == 0 {
		return nil, apperror.New(apperror.CodeConfigurationError,
			apperror.WithContext("no binance symbols configured"))
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = BaseWSURL
	}
	s := &Stream{
		config: cfg,
		logger: log,
		tracer: otel.Tracer(tracerName),
		now:    time.Now,
	}
	if err := s.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	return s, nil
}

func (s *Stream) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	s.metrics = &streamMetrics{}

	s.metrics.messagesReceived, err = meter.Int64Counter(
		"binance_messages_total",
		metric.WithDescription("Total messages received"),
	)
	if err != nil {
		return err
	}

	s.metrics.tickers, err = meter.Int64Counter(
		"binance_book_tickers_total",
		metric.WithDescription("Book ticker updates delivered"),
	)
	if err != nil {
		return err
	}

	s.metrics.parseErrors, err = meter.Int64Counter(
		"binance_parse_errors_total",
		metric.WithDescription("Message parse errors"),
	)
	return err
}

func (s *Stream) Name() string { return sourceName }

// Run connects with retry and delivers tickers until ctx is cancelled.
func (s *Stream) Run(ctx context.Context, sink app.TickerSink) error {
	ctx, span := s.tracer.Start(ctx, "binance.run",
		trace.WithAttributes(attribute.StringSlice("symbols", s.config.Symbols)))
	defer span.End()

	wsURL, err := s.streamURL()
	if err != nil {
		return err
	}

	wsCfg := wsconn.DefaultConfig(wsURL, sourceName)
	wsCfg.ReadTimeout = s.config.ReadTimeout
	wsCfg.WriteTimeout = s.config.WriteTimeout

	conn, err := wsconn.New(wsCfg)
	if err != nil {
		return apperror.New(apperror.CodeWebSocketConnectionError,
			apperror.WithCause(err),
			apperror.WithContext("failed to create binance connection"))
	}
	defer conn.Close()

	conn.OnMessage(func(ctx context.Context, data []byte) {
		s.handleMessage(ctx, data, sink)
	})
	conn.OnStateChange(func(state wsconn.State, err error) {
		if err != nil {
			s.logger.Warn(ctx, "binance stream state changed", "state", string(state), "error", err)
		}
	})

	if err := conn.ConnectWithRetry(ctx); err != nil {
		return apperror.New(apperror.CodeWebSocketConnectionError,
			apperror.WithCause(err),
			apperror.WithContext("failed to connect to Binance"))
	}

	s.logger.Info(ctx, "binance stream connected", "url", wsURL, "symbols", s.config.Symbols)
	<-ctx.Done()
	return ctx.Err()
}

// streamURL builds /stream?streams=a@bookTicker/b@bookTicker.
func (s *Stream) streamURL() (string, error) {
	streams := make([]string, 0, len(s.config.Symbols))
	for _, sym := range s.config.Symbols {
		streams = append(streams, BookTickerStream(sym))
	}

	u, err := url.Parse(s.config.BaseURL)
	if err != nil {
		return "", apperror.New(apperror.CodeConfigurationError,
			apperror.WithCause(err),
			apperror.WithContext("invalid binance url"))
	}
	u.Path = "/stream"
	u.RawQuery = "streams=" + strings.Join(streams, "/")
	return u.String(), nil
}

func (s *Stream) handleMessage(ctx context.Context, data []byte, sink app.TickerSink) {
	s.metrics.messagesReceived.Add(ctx, 1)

	var event StreamEvent
	if err := sonnet.Unmarshal(data, &event); err != nil || event.Stream == "" {
		var resp WSResponse
		if sonnet.Unmarshal(data, &resp) == nil {
			return
		}
		s.metrics.parseErrors.Add(ctx, 1)
		s.logger.Debug(ctx, "failed to parse message", "error", err, "data", string(data[:min(len(data), 200)]))
		return
	}
	if !strings.HasSuffix(event.Stream, "@bookTicker") {
		return
	}

	t, err := s.parseTicker(event.Data)
	if err != nil {
		s.metrics.parseErrors.Add(ctx, 1)
		s.logger.Debug(ctx, "failed to parse book ticker", "stream", event.Stream, "error", err)
		return
	}
	s.metrics.tickers.Add(ctx, 1, metric.WithAttributes(attribute.String("symbol", t.Symbol)))
	sink.Update(ctx, t)
}

func (s *Stream) parseTicker(raw []byte) (domain.Ticker, error) {
	var ev BookTickerEvent
	if err := sonnet.Unmarshal(raw, &ev); err != nil {
		return domain.Ticker{}, err
	}
	return tickerFrom(ev, s.now())
}

func tickerFrom(ev BookTickerEvent, at time.Time) (domain.Ticker, error) {
	base, quote, ok := domain.SplitSymbol(ev.Symbol)
	if !ok {
		return domain.Ticker{}, fmt.Errorf("unsupported quote in %q", ev.Symbol)
	}
	bid, err := ev.ParseBidPrice()
	if err != nil {
		return domain.Ticker{}, fmt.Errorf("bid: %w", err)
	}
	ask, err := ev.ParseAskPrice()
	if err != nil {
		return domain.Ticker{}, fmt.Errorf("ask: %w", err)
	}
	return domain.Ticker{
		Symbol:     strings.ToUpper(ev.Symbol),
		Base:       base,
		Quote:      quote,
		Bid:        bid,
		Ask:        ask,
		ObservedAt: at,
		Source:     sourceName,
	}, nil
}
