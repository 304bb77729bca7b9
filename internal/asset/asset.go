// Package asset models on-chain and fiat assets and exact amounts of them.
// Amounts are big.Int base units; decimal.Decimal is used at the wire and
// pricing boundaries.
package asset

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// ChainFiat marks off-chain assets.
const ChainFiat uint64 = 0

// ID identifies an asset by chain and contract. Native coins use the zero
// address. The symbol is display metadata, not identity.
type ID struct {
	Chain   uint64
	Address common.Address
}

// NativeID returns the id of a chain's native coin.
func NativeID(chain uint64) ID {
	return ID{Chain: chain}
}

// TokenID returns the id of an ERC20 token.
func TokenID(chain uint64, addr common.Address) ID {
	return ID{Chain: chain, Address: addr}
}

// FiatID derives a stable off-chain id from a currency code.
func FiatID(code string) ID {
	return ID{Chain: ChainFiat, Address: common.BytesToAddress(common.RightPadBytes([]byte(code), 20))}
}

func (id ID) IsNative() bool { return id.Chain != ChainFiat && id.Address == (common.Address{}) }
func (id ID) IsToken() bool  { return id.Chain != ChainFiat && id.Address != (common.Address{}) }
func (id ID) IsFiat() bool   { return id.Chain == ChainFiat }

func (id ID) String() string {
	switch {
	case id.IsFiat():
		return "fiat:" + id.Address.Hex()[:10]
	case id.IsNative():
		return fmt.Sprintf("chain:%d/native", id.Chain)
	}
	return fmt.Sprintf("chain:%d/%s", id.Chain, id.Address.Hex())
}

// Asset is reference metadata for an asset on one chain.
type Asset struct {
	id       ID
	symbol   string
	name     string
	decimals uint8
	// canonical groups wrapped and bridged variants for pricing, e.g. WETH -> ETH
	canonical string
}

// New creates an asset. It returns an error for an empty symbol or more than
// 30 decimals.
func New(id ID, symbol, name string, decimals uint8) (*Asset, error) {
	if symbol == "" {
		return nil, fmt.Errorf("asset: empty symbol for %s", id)
	}
	if decimals > 30 {
		return nil, fmt.Errorf("asset: %s has %d decimals", symbol, decimals)
	}
	return &Asset{id: id, symbol: symbol, name: name, decimals: decimals, canonical: symbol}, nil
}

func mustNew(id ID, symbol, name string, decimals uint8) *Asset {
	a, err := New(id, symbol, name, decimals)
	if err != nil {
		panic(err)
	}
	return a
}

// WithCanonical returns a copy of a priced under canonical.
func (a *Asset) WithCanonical(canonical string) *Asset {
	c := *a
	c.canonical = canonical
	return &c
}

func (a *Asset) ID() ID                  { return a.id }
func (a *Asset) Symbol() string          { return a.symbol }
func (a *Asset) Decimals() uint8         { return a.decimals }
func (a *Asset) Chain() uint64           { return a.id.Chain }
func (a *Asset) Address() common.Address { return a.id.Address }
func (a *Asset) Canonical() string       { return a.canonical }

// Name returns the display name, falling back to the symbol.
func (a *Asset) Name() string {
	if a.name == "" {
		return a.symbol
	}
	return a.name
}

func (a *Asset) String() string {
	return a.symbol
}
