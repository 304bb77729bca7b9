package domain

import (
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

// GasPrice is a sampled gas price on one chain.
type GasPrice struct {
	Chain     uint64
	Wei       *big.Int
	TipWei    *big.Int // suggested priority fee, may be nil
	Timestamp time.Time
}

// NewGasPrice creates a GasPrice from wei.
func NewGasPrice(chain uint64, wei *big.Int, at time.Time) *GasPrice {
	return &GasPrice{Chain: chain, Wei: wei, Timestamp: at}
}

// Gwei returns the price in gwei.
func (g *GasPrice) Gwei() decimal.Decimal {
	return WeiToGwei(g.Wei)
}

// PredictedGwei estimates the price for inclusion in the block after head:
// the projected base fee plus the tip. It is zero when head has no base fee.
func (g *GasPrice) PredictedGwei(head *Block) decimal.Decimal {
	if head == nil {
		return decimal.Zero
	}
	next := head.NextBaseFee()
	if next == nil {
		return decimal.Zero
	}
	if g.TipWei != nil {
		next.Add(next, g.TipWei)
	}
	return WeiToGwei(next)
}

// WeiToGwei converts wei to gwei.
func WeiToGwei(wei *big.Int) decimal.Decimal {
	if wei == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(wei, -9)
}
