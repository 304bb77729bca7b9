package domain

import (
	"github.com/shopspring/decimal"

	market "github.com/fd1az/multichain-arb/business/market/domain"
)

var gweiPerNative = decimal.NewFromInt(1_000_000_000)

// GasOp is an on-chain operation with a gas budget.
type GasOp string

const (
	GasSwap      GasOp = "swap"
	GasBridge    GasOp = "bridge"
	GasFlashLoan GasOp = "flash_loan"
)

// DefaultGasUnits is the budget used when no chain override exists.
var DefaultGasUnits = map[GasOp]uint64{
	GasSwap:      150_000,
	GasBridge:    300_000,
	GasFlashLoan: 200_000,
}

// GasTable resolves gas units per operation and chain.
type GasTable struct {
	Default  map[GasOp]uint64
	PerChain map[market.ChainID]map[GasOp]uint64
}

// DefaultGasTable returns the built-in budgets without chain overrides.
func DefaultGasTable() GasTable {
	return GasTable{Default: DefaultGasUnits}
}

// Units returns the gas budget of op on chain.
func (t GasTable) Units(op GasOp, chain market.ChainID) uint64 {
	if units, ok := t.PerChain[chain][op]; ok {
		return units
	}
	if units, ok := t.Default[op]; ok {
		return units
	}
	return DefaultGasUnits[op]
}

// GasCost is the cost of one operation.
type GasCost struct {
	Units     uint64
	PriceGwei decimal.Decimal
	Native    decimal.Decimal // in the chain's native coin
	USD       decimal.Decimal
}

// NewGasCost prices units of gas at priceGwei, valuing the native coin at
// nativeUSD.
func NewGasCost(units uint64, priceGwei, nativeUSD decimal.Decimal) GasCost {
	native := priceGwei.Mul(decimal.NewFromInt(int64(units))).Div(gweiPerNative)
	return GasCost{
		Units:     units,
		PriceGwei: priceGwei,
		Native:    native,
		USD:       native.Mul(nativeUSD),
	}
}
