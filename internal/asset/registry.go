package asset

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

type symbolKey struct {
	chain  uint64
	symbol string
}

// Registry is a thread-safe index of known assets.
type Registry struct {
	mu       sync.RWMutex
	byID     map[ID]*Asset
	bySymbol map[symbolKey]*Asset
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byID:     make(map[ID]*Asset),
		bySymbol: make(map[symbolKey]*Asset),
	}
}

// Register adds a. A second asset with the same id, or the same symbol on the
// same chain, is rejected.
func (r *Registry) Register(a *Asset) error {
	if a == nil {
		return ErrNilAsset
	}
	sk := symbolKey{chain: a.Chain(), symbol: strings.ToUpper(a.Symbol())}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[a.ID()]; ok {
		return fmt.Errorf("asset: %s already registered", a.ID())
	}
	if _, ok := r.bySymbol[sk]; ok {
		return fmt.Errorf("asset: symbol %s already registered on chain %d", a.Symbol(), a.Chain())
	}
	r.byID[a.ID()] = a
	r.bySymbol[sk] = a
	return nil
}

// Get returns the asset with id.
func (r *Registry) Get(id ID) (*Asset, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.byID[id]
	return a, ok
}

// Token returns the token at addr on chain.
func (r *Registry) Token(chain uint64, addr common.Address) (*Asset, bool) {
	return r.Get(TokenID(chain, addr))
}

// BySymbol returns the asset with symbol on chain, case-insensitively.
func (r *Registry) BySymbol(chain uint64, symbol string) (*Asset, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.bySymbol[symbolKey{chain: chain, symbol: strings.ToUpper(symbol)}]
	return a, ok
}

// Canonical maps a symbol to its pricing symbol, e.g. WETH -> ETH. Unknown
// symbols map to themselves.
func (r *Registry) Canonical(symbol string) string {
	up := strings.ToUpper(symbol)

	r.mu.RLock()
	defer r.mu.RUnlock()
	for k, a := range r.bySymbol {
		if k.symbol == up {
			return a.Canonical()
		}
	}
	return up
}

// Chains returns every chain with a registered asset, ascending.
func (r *Registry) Chains() []uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[uint64]struct{})
	for id := range r.byID {
		if !id.IsFiat() {
			seen[id.Chain] = struct{}{}
		}
	}
	out := make([]uint64, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Count returns the number of registered assets.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}
