package domain

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// ChainID is an EVM chain id.
type ChainID uint64

func (c ChainID) String() string {
	return fmt.Sprintf("%d", uint64(c))
}

// Layer classifies a chain for bridge latency purposes.
type Layer string

const (
	LayerL1 Layer = "L1"
	LayerL2 Layer = "L2"
)

// Well-known chain ids.
const (
	ChainEthereum ChainID = 1
	ChainOptimism ChainID = 10
	ChainBase     ChainID = 8453
	ChainArbitrum ChainID = 42161
)

// DefaultStaleAfter applies to chains missing from the registry.
const DefaultStaleAfter = 12 * time.Second

// Chain holds the static facts the pipeline needs about a chain.
type Chain struct {
	ID              ChainID
	Name            string
	Layer           Layer
	BlockInterval   time.Duration
	StaleAfter      time.Duration
	NativeSymbol    string
	FallbackGasGwei decimal.Decimal
}

// FreshnessPolicy decides how long a feature observed on a chain stays usable.
type FreshnessPolicy interface {
	StaleAfter(chain ChainID) time.Duration
}

// ChainRegistry is an immutable set of chains keyed by id.
type ChainRegistry struct {
	chains map[ChainID]Chain
}

// NewChainRegistry builds a registry. A zero StaleAfter defaults to the
// chain's block interval.
func NewChainRegistry(chains ...Chain) *ChainRegistry {
	r := &ChainRegistry{chains: make(map[ChainID]Chain, len(chains))}
	for _, c := range chains {
		if c.StaleAfter <= 0 {
			c.StaleAfter = c.BlockInterval
		}
		if c.StaleAfter <= 0 {
			c.StaleAfter = DefaultStaleAfter
		}
		r.chains[c.ID] = c
	}
	return r
}

// DefaultChains returns mainnet settings for the chains the service knows.
func DefaultChains() *ChainRegistry {
	return NewChainRegistry(
		Chain{ID: ChainEthereum, Name: "ethereum", Layer: LayerL1, BlockInterval: 12 * time.Second,
			NativeSymbol: "ETH", FallbackGasGwei: decimal.NewFromInt(20)},
		Chain{ID: ChainArbitrum, Name: "arbitrum", Layer: LayerL2, BlockInterval: 250 * time.Millisecond,
			StaleAfter: 2 * time.Second, NativeSymbol: "ETH", FallbackGasGwei: decimal.RequireFromString("0.1")},
		Chain{ID: ChainOptimism, Name: "optimism", Layer: LayerL2, BlockInterval: 2 * time.Second,
			NativeSymbol: "ETH", FallbackGasGwei: decimal.RequireFromString("0.01")},
		Chain{ID: ChainBase, Name: "base", Layer: LayerL2, BlockInterval: 2 * time.Second,
			NativeSymbol: "ETH", FallbackGasGwei: decimal.RequireFromString("0.01")},
	)
}

// Get returns the chain with id.
func (r *ChainRegistry) Get(id ChainID) (Chain, bool) {
	c, ok := r.chains[id]
	return c, ok
}

// StaleAfter implements FreshnessPolicy.
func (r *ChainRegistry) StaleAfter(id ChainID) time.Duration {
	if c, ok := r.chains[id]; ok {
		return c.StaleAfter
	}
	return DefaultStaleAfter
}

// LayerOf returns the chain layer. Unknown chains are treated as L1, the
// slower settlement assumption.
func (r *ChainRegistry) LayerOf(id ChainID) Layer {
	if c, ok := r.chains[id]; ok {
		return c.Layer
	}
	return LayerL1
}

// Name returns a display name for id.
func (r *ChainRegistry) Name(id ChainID) string {
	if c, ok := r.chains[id]; ok {
		return c.Name
	}
	return "chain-" + id.String()
}

// All returns chains sorted by id.
func (r *ChainRegistry) All() []Chain {
	out := make([]Chain, 0, len(r.chains))
	for _, c := range r.chains {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
