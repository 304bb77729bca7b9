package app

import (
	"context"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/fd1az/multichain-arb/business/market/domain"
)

const meterName = "github.com/fd1az/multichain-arb/business/market"

// IngestOutcome classifies a write attempt.
type IngestOutcome int

const (
	Accepted IngestOutcome = iota
	Duplicate
	OutOfOrder
	Invalid
)

func (o IngestOutcome) String() string {
	switch o {
	case Accepted:
		return "accepted"
	case Duplicate:
		return "duplicate"
	case OutOfOrder:
		return "out_of_order"
	}
	return "invalid"
}

// HeadHandler is called when a chain's highest stored block advances.
type HeadHandler func(chain domain.ChainID, block uint64)

// MarketState is the versioned map of latest features. Writes are accepted
// only for strictly newer blocks per key. Readers take immutable snapshots.
type MarketState struct {
	mu      sync.RWMutex
	entries map[domain.Key]domain.Entry
	heads   map[domain.ChainID]uint64
	version atomic.Uint64

	cached atomic.Pointer[domain.Snapshot]

	policy domain.FreshnessPolicy
	now    func() time.Time

	handlersMu   sync.RWMutex
	headHandlers []HeadHandler

	metrics *stateMetrics
}

type stateMetrics struct {
	ingested metric.Int64Counter
	version  metric.Int64ObservableGauge
}

// Option configures a MarketState.
type Option func(*MarketState)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *MarketState) { m.now = now }
}

// NewMarketState creates an empty state judging freshness with policy.
func NewMarketState(policy domain.FreshnessPolicy, opts ...Option) *MarketState {
	m := &MarketState{
		entries: make(map[domain.Key]domain.Entry),
		heads:   make(map[domain.ChainID]uint64),
		policy:  policy,
		now:     time.Now,
	}
	if m.policy == nil {
		m.policy = domain.DefaultChains()
	}
	for _, opt := range opts {
		opt(m)
	}
	m.metrics = m.initMetrics()
	return m
}

func (m *MarketState) initMetrics() *stateMetrics {
	meter := otel.Meter(meterName)
	sm := &stateMetrics{}

	sm.ingested, _ = meter.Int64Counter("market_features_ingested_total",
		metric.WithDescription("Feature writes by outcome"))
	sm.version, _ = meter.Int64ObservableGauge("market_state_version",
		metric.WithDescription("Current market state version"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(int64(m.version.Load()))
			return nil
		}))
	return sm
}

// OnNewHead registers a handler for head advances.
func (m *MarketState) OnNewHead(h HeadHandler) {
	m.handlersMu.Lock()
	defer m.handlersMu.Unlock()
	m.headHandlers = append(m.headHandlers, h)
}

// Ingest stores f when it is valid and newer than the stored entry for its
// key. It reports whether state changed.
func (m *MarketState) Ingest(f domain.Feature) bool {
	return m.Apply(f) == Accepted
}

// Apply is Ingest reporting why a write was dropped.
func (m *MarketState) Apply(f domain.Feature) IngestOutcome {
	if err := f.Validate(); err != nil {
		m.count(f, Invalid)
		return Invalid
	}

	key := f.Key()
	observed := m.now()

	m.mu.Lock()
	if cur, ok := m.entries[key]; ok {
		switch {
		case f.BlockNumber == cur.Feature.BlockNumber:
			m.mu.Unlock()
			m.count(f, Duplicate)
			return Duplicate
		case f.BlockNumber < cur.Feature.BlockNumber:
			m.mu.Unlock()
			m.count(f, OutOfOrder)
			return OutOfOrder
		}
	}
	m.entries[key] = domain.Entry{Feature: f, ObservedAt: observed}
	m.version.Add(1)
	newHead := f.BlockNumber > m.heads[f.Chain]
	if newHead {
		m.heads[f.Chain] = f.BlockNumber
	}
	m.mu.Unlock()

	m.count(f, Accepted)
	if newHead {
		m.notifyHead(f.Chain, f.BlockNumber)
	}
	return Accepted
}

func (m *MarketState) count(f domain.Feature, o IngestOutcome) {
	m.metrics.ingested.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("type", string(f.Type)),
		attribute.String("outcome", o.String()),
	))
}

func (m *MarketState) notifyHead(chain domain.ChainID, block uint64) {
	m.handlersMu.RLock()
	handlers := m.headHandlers
	m.handlersMu.RUnlock()
	for _, h := range handlers {
		h(chain, block)
	}
}

// Snapshot returns an immutable view of the current state. Snapshots of the
// same version share storage; each carries its own TakenAt.
func (m *MarketState) Snapshot() *domain.Snapshot {
	now := m.now()
	if c := m.cached.Load(); c != nil && c.Version == m.version.Load() {
		return c.At(now)
	}

	m.mu.RLock()
	entries := maps.Clone(m.entries)
	version := m.version.Load()
	m.mu.RUnlock()

	snap := domain.NewSnapshot(version, now, entries, m.policy)
	for {
		c := m.cached.Load()
		if c != nil && c.Version >= version {
			break
		}
		if m.cached.CompareAndSwap(c, snap) {
			break
		}
	}
	return snap
}

// Get returns the latest committed feature at the given slot when fresh.
func (m *MarketState) Get(chain domain.ChainID, t domain.FeatureType, identity string) (domain.Feature, bool) {
	m.mu.RLock()
	e, ok := m.entries[domain.Key{Chain: chain, Type: t, Identity: identity}]
	m.mu.RUnlock()
	if !ok || m.now().Sub(e.ObservedAt) >= m.policy.StaleAfter(chain) {
		return domain.Feature{}, false
	}
	return e.Feature, true
}

// Version returns the number of accepted writes.
func (m *MarketState) Version() uint64 {
	return m.version.Load()
}

// Len returns the number of stored keys.
func (m *MarketState) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Head returns the highest block stored for chain.
func (m *MarketState) Head(chain domain.ChainID) uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.heads[chain]
}
