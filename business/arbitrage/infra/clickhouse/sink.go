// Package clickhouse appends every evaluation to a ClickHouse audit table.
package clickhouse

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/shopspring/decimal"

	"github.com/fd1az/multichain-arb/business/arbitrage/app"
	"github.com/fd1az/multichain-arb/business/arbitrage/domain"
	"github.com/fd1az/multichain-arb/internal/apperror"
	"github.com/fd1az/multichain-arb/internal/circuitbreaker"
	"github.com/fd1az/multichain-arb/internal/logger"
)

const schema = `
CREATE TABLE IF NOT EXISTS evaluations (
	cycle             UInt64,
	candidate_id      String,
	strategy          LowCardinality(String),
	detector          LowCardinality(String),
	fingerprint       String,
	legs              UInt8,
	chains            String,
	snapshot_version  UInt64,
	block_number      UInt64,
	notional_usd      Decimal(38, 10),
	gross_output_usd  Decimal(38, 10),
	gas_usd           Decimal(38, 10),
	bridge_fee_usd    Decimal(38, 10),
	flash_loan_fee_usd Decimal(38, 10),
	slippage_bps      Decimal(38, 10),
	net_profit_usd    Decimal(38, 10),
	net_profit_bps    Decimal(38, 10),
	staleness_ms      UInt64,
	path_latency_ms   UInt64,
	gas_fallback      Bool,
	confidence        Float64,
	rejected          Bool,
	reason            LowCardinality(String),
	detail            String,
	evaluated_at      DateTime64(3)
) ENGINE = MergeTree()
ORDER BY (strategy, evaluated_at, candidate_id)
`

// Config locates the ClickHouse server and tunes batching.
type Config struct {
	Addr          string
	Database      string
	Username      string
	Password      string
	BatchSize     int
	FlushInterval time.Duration
}

// Row is one evaluation as stored.
type Row struct {
	Cycle           uint64
	CandidateID     string
	Strategy        string
	Detector        string
	Fingerprint     string
	Legs            uint8
	Chains          string
	SnapshotVersion uint64
	BlockNumber     uint64
	NotionalUSD     decimal.Decimal
	GrossOutputUSD  decimal.Decimal
	GasUSD          decimal.Decimal
	BridgeFeeUSD    decimal.Decimal
	FlashLoanFeeUSD decimal.Decimal
	SlippageBps     decimal.Decimal
	NetProfitUSD    decimal.Decimal
	NetProfitBps    decimal.Decimal
	StalenessMs     uint64
	PathLatencyMs   uint64
	GasFallback     bool
	Confidence      float64
	Rejected        bool
	Reason          string
	Detail          string
	EvaluatedAt     time.Time
}

// NewRow flattens an evaluation.
func NewRow(cycle uint64, ev domain.EvaluationResult) Row {
	c := ev.Candidate
	chains := make([]string, 0, 2)
	for _, ch := range c.Chains() {
		chains = append(chains, strconv.FormatUint(uint64(ch), 10))
	}
	r := Row{
		Cycle:           cycle,
		CandidateID:     c.ID,
		Strategy:        c.Strategy,
		Detector:        c.Detector,
		Fingerprint:     c.Fingerprint(),
		Legs:            uint8(len(c.Legs)),
		Chains:          strings.Join(chains, ","),
		SnapshotVersion: c.SnapshotVersion,
		BlockNumber:     c.BlockNumber,
		NotionalUSD:     ev.NotionalUSD,
		GrossOutputUSD:  ev.GrossOutputUSD,
		GasUSD:          ev.Costs.GasUSD,
		BridgeFeeUSD:    ev.Costs.BridgeFeeUSD,
		FlashLoanFeeUSD: ev.Costs.FlashLoanFeeUSD,
		SlippageBps:     ev.Costs.SlippageBps,
		NetProfitUSD:    ev.NetProfitUSD,
		NetProfitBps:    ev.NetProfitBps,
		StalenessMs:     uint64(ev.Staleness.Milliseconds()),
		PathLatencyMs:   uint64(ev.PathLatency.Milliseconds()),
		GasFallback:     ev.GasFallback,
		Confidence:      ev.Confidence,
		EvaluatedAt:     ev.EvaluatedAt,
	}
	if ev.Rejection != nil {
		r.Rejected = true
		r.Reason = string(ev.Rejection.Reason)
		r.Detail = ev.Rejection.Detail
	}
	return r
}

// Sink buffers evaluations and writes them in batches. Rows that cannot be
// written are kept, up to a bound, and retried on the next flush.
type Sink struct {
	conn    driver.Conn
	cfg     Config
	log     logger.LoggerInterface
	breaker *circuitbreaker.CircuitBreaker[struct{}]

	mu      sync.Mutex
	pending []Row
	dropped uint64
}

var _ app.EvaluationSink = (*Sink)(nil)

// Open connects to ClickHouse and verifies the connection.
func Open(ctx context.Context, cfg Config, log logger.LoggerInterface) (*Sink, error) {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Second
	}

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, apperror.New(apperror.CodeStorageError,
			apperror.WithCause(err), apperror.WithContext("open clickhouse "+cfg.Addr))
	}
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, apperror.New(apperror.CodeStorageError,
			apperror.WithCause(err), apperror.WithContext("ping clickhouse "+cfg.Addr))
	}

	return &Sink{
		conn:    conn,
		cfg:     cfg,
		log:     log,
		breaker: circuitbreaker.New[struct{}](circuitbreaker.DefaultConfig("clickhouse-sink")),
	}, nil
}

// Migrate creates the evaluations table.
func (s *Sink) Migrate(ctx context.Context) error {
	if err := s.conn.Exec(ctx, schema); err != nil {
		return apperror.New(apperror.CodeStorageError, apperror.WithCause(err), apperror.WithContext("create evaluations table"))
	}
	return nil
}

// Append implements app.EvaluationSink. It flushes once a batch is full.
func (s *Sink) Append(ctx context.Context, cycle uint64, evals []domain.EvaluationResult) error {
	s.mu.Lock()
	for _, ev := range evals {
		s.pending = append(s.pending, NewRow(cycle, ev))
	}
	full := len(s.pending) >= s.cfg.BatchSize
	s.mu.Unlock()

	if full {
		return s.Flush(ctx)
	}
	return nil
}

// Flush writes every pending row.
func (s *Sink) Flush(ctx context.Context) error {
	s.mu.Lock()
	rows := s.pending
	s.pending = nil
	s.mu.Unlock()
	if len(rows) == 0 {
		return nil
	}

	_, err := s.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, s.write(ctx, rows)
	})
	if err != nil {
		s.requeue(rows)
		return err
	}
	return nil
}

func (s *Sink) write(ctx context.Context, rows []Row) error {
	batch, err := s.conn.PrepareBatch(ctx, "INSERT INTO evaluations")
	if err != nil {
		return apperror.New(apperror.CodeStorageError, apperror.WithCause(err), apperror.WithContext("prepare batch"))
	}
	for _, r := range rows {
		err := batch.Append(
			r.Cycle, r.CandidateID, r.Strategy, r.Detector, r.Fingerprint, r.Legs, r.Chains,
			r.SnapshotVersion, r.BlockNumber,
			r.NotionalUSD, r.GrossOutputUSD, r.GasUSD, r.BridgeFeeUSD, r.FlashLoanFeeUSD,
			r.SlippageBps, r.NetProfitUSD, r.NetProfitBps,
			r.StalenessMs, r.PathLatencyMs, r.GasFallback, r.Confidence,
			r.Rejected, r.Reason, r.Detail, r.EvaluatedAt,
		)
		if err != nil {
			_ = batch.Abort()
			return apperror.New(apperror.CodeStorageError, apperror.WithCause(err), apperror.WithContext("append row "+r.CandidateID))
		}
	}
	if err := batch.Send(); err != nil {
		return apperror.New(apperror.CodeStorageError, apperror.WithCause(err), apperror.WithContext("send batch"))
	}
	return nil
}

// requeue puts rows back in front of newer ones, dropping the oldest beyond
// ten batches.
func (s *Sink) requeue(rows []Row) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(rows, s.pending...)
	if over := len(s.pending) - 10*s.cfg.BatchSize; over > 0 {
		s.pending = s.pending[over:]
		s.dropped += uint64(over)
	}
}

// Pending returns how many rows wait to be written.
func (s *Sink) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Run flushes on the configured interval until ctx is done, then flushes
// once more.
func (s *Sink) Run(ctx context.Context) {
	t := time.NewTicker(s.cfg.FlushInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := s.Flush(flushCtx); err != nil {
				s.log.Warn(flushCtx, "final evaluation flush failed", "pending", s.Pending(), "error", err)
			}
			cancel()
			return
		case <-t.C:
			if err := s.Flush(ctx); err != nil {
				s.log.Warn(ctx, "evaluation flush failed", "pending", s.Pending(), "error", err)
			}
		}
	}
}

// Ping checks the connection.
func (s *Sink) Ping(ctx context.Context) error {
	return s.conn.Ping(ctx)
}

// Close closes the connection.
func (s *Sink) Close() error {
	return s.conn.Close()
}
