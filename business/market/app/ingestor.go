package app

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/fd1az/multichain-arb/business/market/domain"
	"github.com/fd1az/multichain-arb/internal/apperror"
	"github.com/fd1az/multichain-arb/internal/logger"
)

// DefaultRestartDelay is the wait before a source that failed transiently
// is run again.
const DefaultRestartDelay = 2 * time.Second

// IngestStats counts what the ingestor has seen since start.
type IngestStats struct {
	Accepted   uint64
	Duplicate  uint64
	OutOfOrder uint64
	Invalid    uint64
	Malformed  uint64
}

// Ingestor runs feature sources and funnels their output into market state.
type Ingestor struct {
	state   *MarketState
	log     logger.LoggerInterface
	sources []FeatureSource

	counts  [4]atomic.Uint64
	malform atomic.Uint64

	malformed metric.Int64Counter

	// RestartDelay applies to sources failing with a transient error.
	RestartDelay time.Duration

	mu      sync.Mutex
	runCtx  context.Context
	started bool
	wg      sync.WaitGroup
}

// NewIngestor creates an ingestor writing to state.
func NewIngestor(state *MarketState, log logger.LoggerInterface, sources ...FeatureSource) *Ingestor {
	i := &Ingestor{state: state, log: log, sources: sources, RestartDelay: DefaultRestartDelay}
	i.malformed, _ = otel.Meter(meterName).Int64Counter("market_frames_malformed_total",
		metric.WithDescription("Frames that failed to decode, by source"))
	return i
}

// AddSource registers a source. Sources added after Start run immediately.
func (i *Ingestor) AddSource(s FeatureSource) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.sources = append(i.sources, s)
	if i.started {
		i.run(i.runCtx, s)
	}
}

// Sources returns the registered source names.
func (i *Ingestor) Sources() []string {
	i.mu.Lock()
	defer i.mu.Unlock()
	names := make([]string, len(i.sources))
	for n, s := range i.sources {
		names[n] = s.Name()
	}
	return names
}

// Start launches one goroutine per source. A failing source is logged and
// does not stop the others.
func (i *Ingestor) Start(ctx context.Context) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.started {
		return
	}
	i.started = true
	i.runCtx = ctx
	for _, src := range i.sources {
		i.run(ctx, src)
	}
}

func (i *Ingestor) run(ctx context.Context, src FeatureSource) {
	i.wg.Add(1)
	go func() {
		defer i.wg.Done()
		for {
			i.log.Info(ctx, "feature source started", "source", src.Name())
			err := src.Run(ctx, i)
			switch {
			case err == nil, errors.Is(err, context.Canceled), ctx.Err() != nil:
				i.log.Info(ctx, "feature source stopped", "source", src.Name())
				return
			case !apperror.Transient(err):
				args := []any{"source", src.Name(), "error", err}
				var appErr *apperror.AppError
				if errors.As(err, &appErr) {
					args = append(args, appErr.LogArgs()...)
				}
				i.log.Error(ctx, "feature source failed", args...)
				return
			}

			i.log.Warn(ctx, "feature source failed, restarting", "source", src.Name(), "delay", i.RestartDelay, "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(i.RestartDelay):
			}
		}
	}()
}

// Wait blocks until every source has returned.
func (i *Ingestor) Wait() {
	i.wg.Wait()
}

// Ingest implements Sink.
func (i *Ingestor) Ingest(ctx context.Context, source string, f domain.Feature) {
	if f.Source == "" {
		f.Source = source
	}
	outcome := i.state.Apply(f)
	i.counts[outcome].Add(1)
	if outcome == Invalid {
		i.log.Debug(ctx, "feature rejected", "source", source, "id", f.ID, "error", f.Validate())
	}
}

// Malformed implements Sink.
func (i *Ingestor) Malformed(ctx context.Context, source string, err error) {
	i.malform.Add(1)
	i.malformed.Add(ctx, 1, metric.WithAttributes(attribute.String("source", source)))
	i.log.Warn(ctx, "malformed frame", "source", source, "error", err)
}

// Stats returns the counters.
func (i *Ingestor) Stats() IngestStats {
	return IngestStats{
		Accepted:   i.counts[Accepted].Load(),
		Duplicate:  i.counts[Duplicate].Load(),
		OutOfOrder: i.counts[OutOfOrder].Load(),
		Invalid:    i.counts[Invalid].Load(),
		Malformed:  i.malform.Load(),
	}
}
