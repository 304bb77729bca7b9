package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fd1az/multichain-arb/business/blockchain/domain"
	marketapp "github.com/fd1az/multichain-arb/business/market/app"
	market "github.com/fd1az/multichain-arb/business/market/domain"
	"github.com/fd1az/multichain-arb/internal/logger"
)

// sequencerLagFactor is how many block intervals an L2 head may trail the
// wall clock before its sequencer is reported unhealthy.
const sequencerLagFactor = 10

// ChainWatcher follows one chain's heads and publishes a gas feature per
// head. On L2 chains it also reports sequencer health derived from head lag.
type ChainWatcher struct {
	chain      market.Chain
	subscriber BlockSubscriber
	gasOracle  GasOracle
	log        logger.LoggerInterface
	now        func() time.Time
}

var _ marketapp.FeatureSource = (*ChainWatcher)(nil)

// NewChainWatcher creates a watcher.
func NewChainWatcher(chain market.Chain, subscriber BlockSubscriber, gasOracle GasOracle, log logger.LoggerInterface) *ChainWatcher {
	return &ChainWatcher{chain: chain, subscriber: subscriber, gasOracle: gasOracle, log: log, now: time.Now}
}

func (w *ChainWatcher) Name() string { return "chain:" + w.chain.Name }

// Chain returns the watched chain.
func (w *ChainWatcher) Chain() market.Chain { return w.chain }

// ConnectionState returns the current node connection state.
func (w *ChainWatcher) ConnectionState() domain.ConnectionState {
	return w.subscriber.State()
}

// Status returns detailed node connection information.
func (w *ChainWatcher) Status() domain.ConnectionStatus {
	return w.subscriber.Status()
}

// Run consumes heads until ctx is cancelled.
func (w *ChainWatcher) Run(ctx context.Context, sink marketapp.Sink) error {
	blocks, err := w.subscriber.Subscribe(ctx)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case b, ok := <-blocks:
			if !ok {
				return nil
			}
			w.handle(ctx, b, sink)
		}
	}
}

func (w *ChainWatcher) handle(ctx context.Context, b *domain.Block, sink marketapp.Sink) {
	if f, ok := w.sequencerFeature(b); ok {
		sink.Ingest(ctx, w.Name(), f)
	}

	price, err := w.gasOracle.GasPrice(ctx, b.Number)
	if err != nil {
		// the evaluator falls back to the chain's configured gas price
		w.log.Warn(ctx, "gas sample failed", "chain", w.chain.Name, "block", b.Number, "error", err)
		return
	}
	sink.Ingest(ctx, w.Name(), w.gasFeature(b, price))
}

func (w *ChainWatcher) gasFeature(b *domain.Block, price *domain.GasPrice) market.Feature {
	return market.Feature{
		ID:            fmt.Sprintf("gas:%d:%d", w.chain.ID, b.Number),
		Chain:         w.chain.ID,
		BlockNumber:   b.Number,
		Timestamp:     b.Timestamp,
		Type:          market.FeatureGas,
		SchemaVersion: market.CurrentSchemaVersion,
		Gas: &market.GasPayload{
			Chain:         w.chain.ID,
			PriceGwei:     price.Gwei(),
			PredictedGwei: price.PredictedGwei(b),
		},
	}
}

func (w *ChainWatcher) sequencerFeature(b *domain.Block) (market.Feature, bool) {
	if w.chain.Layer != market.LayerL2 || w.chain.BlockInterval <= 0 {
		return market.Feature{}, false
	}
	healthy := b.Lag(w.now()) < sequencerLagFactor*w.chain.BlockInterval
	return market.Feature{
		ID:            fmt.Sprintf("seq:%d:%d", w.chain.ID, b.Number),
		Chain:         w.chain.ID,
		BlockNumber:   b.Number,
		Timestamp:     b.Timestamp,
		Type:          market.FeatureSequencer,
		SchemaVersion: market.CurrentSchemaVersion,
		Sequencer: &market.SequencerPayload{
			Chain:          w.chain.ID,
			Healthy:        healthy,
			LastBatchBlock: b.Number,
		},
	}, true
}

// WatcherSet holds the running watchers for status reporting.
type WatcherSet struct {
	mu       sync.RWMutex
	watchers []*ChainWatcher
}

// Add appends w.
func (s *WatcherSet) Add(w *ChainWatcher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watchers = append(s.watchers, w)
}

// All returns the watchers in the order they were added.
func (s *WatcherSet) All() []*ChainWatcher {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*ChainWatcher(nil), s.watchers...)
}
