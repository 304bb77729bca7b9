package domain

import (
	"time"

	"github.com/shopspring/decimal"

	market "github.com/fd1az/multichain-arb/business/market/domain"
)

// DefaultBridgeFeeBps applies when no fresh bridge feature covers a route.
var DefaultBridgeFeeBps = decimal.NewFromInt(10)

// Settlement latency by source and destination layer.
const (
	LatencyL1ToL2 = 10 * time.Minute
	LatencyL2ToL1 = time.Hour
	LatencyL2ToL2 = 5 * time.Minute
	LatencyL1ToL1 = 20 * time.Minute
)

// BridgeLatency returns the expected settlement time between layers.
func BridgeLatency(from, to market.Layer) time.Duration {
	switch {
	case from == market.LayerL1 && to == market.LayerL2:
		return LatencyL1ToL2
	case from == market.LayerL2 && to == market.LayerL1:
		return LatencyL2ToL1
	case from == market.LayerL2 && to == market.LayerL2:
		return LatencyL2ToL2
	}
	return LatencyL1ToL1
}

// BridgeQuote is the cost of moving an amount across a route.
type BridgeQuote struct {
	AmountIn  decimal.Decimal
	AmountOut decimal.Decimal
	Fee       decimal.Decimal // in asset units
	FeeBps    decimal.Decimal
	Latency   time.Duration
	// FeeDefaulted is set when no route feature was available.
	FeeDefaulted bool
}

// BridgeFee returns the route fee, falling back to defaultBps when route is
// nil.
func BridgeFee(route *market.BridgePayload, defaultBps decimal.Decimal) (decimal.Decimal, bool) {
	if route == nil {
		return defaultBps, true
	}
	return route.FeeBps, false
}

// QuoteBridge prices a transfer of amount. A route latency above zero
// overrides the layer table.
func QuoteBridge(amount decimal.Decimal, route *market.BridgePayload, from, to market.Layer, defaultBps decimal.Decimal) BridgeQuote {
	feeBps, defaulted := BridgeFee(route, defaultBps)
	fee := amount.Mul(feeBps).Div(bpsDenominator)

	latency := BridgeLatency(from, to)
	if route != nil && route.SettlementLatency > 0 {
		latency = route.SettlementLatency
	}

	return BridgeQuote{
		AmountIn:     amount,
		AmountOut:    amount.Sub(fee),
		Fee:          fee,
		FeeBps:       feeBps,
		Latency:      latency,
		FeeDefaulted: defaulted,
	}
}
