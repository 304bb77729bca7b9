// Package domain contains the pure cost models and value types of the
// arbitrage context.
package domain

import (
	"math"

	"github.com/shopspring/decimal"

	market "github.com/fd1az/multichain-arb/business/market/domain"
	"github.com/fd1az/multichain-arb/internal/apperror"
)

var (
	one            = decimal.NewFromInt(1)
	bpsDenominator = decimal.NewFromInt(10_000)

	maxConstantProductSlippageBps = decimal.NewFromInt(1000)
	maxWeightedSlippageBps        = decimal.NewFromInt(500)
	stableswapSlippageBps         = decimal.NewFromInt(2)
)

// SwapQuote is the simulated result of one swap.
type SwapQuote struct {
	Kind        market.PoolKind
	AmountIn    decimal.Decimal
	AmountOut   decimal.Decimal
	SlippageBps decimal.Decimal
	// Approximate marks models that do not reproduce the pool's exact
	// invariant.
	Approximate bool
}

// FeeMultiplier returns 1 - feeBps/10000.
func FeeMultiplier(feeBps decimal.Decimal) decimal.Decimal {
	return one.Sub(feeBps.Div(bpsDenominator))
}

// SimulateConstantProduct prices a swap against an x*y=k pool.
func SimulateConstantProduct(amountIn, reserveIn, reserveOut, feeBps decimal.Decimal) (SwapQuote, error) {
	if err := checkSwapInputs(amountIn, reserveIn, reserveOut); err != nil {
		return SwapQuote{}, err
	}
	eff := amountIn.Mul(FeeMultiplier(feeBps))
	k := reserveIn.Mul(reserveOut)
	out := reserveOut.Sub(k.Div(reserveIn.Add(eff)))
	if err := checkSwapOutput(out, reserveOut); err != nil {
		return SwapQuote{}, err
	}

	slippage := decimal.Min(amountIn.Div(reserveIn).Mul(bpsDenominator), maxConstantProductSlippageBps)
	return SwapQuote{
		Kind:        market.PoolConstantProduct,
		AmountIn:    amountIn,
		AmountOut:   out,
		SlippageBps: slippage,
	}, nil
}

// SimulateStableswap approximates a curve pool as a fixed-rate swap at the
// virtual price.
func SimulateStableswap(amountIn, reserveOut, feeBps, virtualPrice decimal.Decimal) (SwapQuote, error) {
	if !amountIn.IsPositive() {
		return SwapQuote{}, invariant("swap amount must be positive")
	}
	if !reserveOut.IsPositive() {
		return SwapQuote{}, invariant("pool reserves must be positive")
	}
	if !virtualPrice.IsPositive() {
		virtualPrice = one
	}
	out := amountIn.Mul(FeeMultiplier(feeBps)).Mul(virtualPrice)
	if err := checkSwapOutput(out, reserveOut); err != nil {
		return SwapQuote{}, err
	}
	return SwapQuote{
		Kind:        market.PoolStableswap,
		AmountIn:    amountIn,
		AmountOut:   out,
		SlippageBps: stableswapSlippageBps,
		Approximate: true,
	}, nil
}

// SimulateWeighted prices a swap against a weighted pool using the
// out-given-in form out = rOut * (1 - (rIn/(rIn+eff))^(wIn/wOut)).
func SimulateWeighted(amountIn, reserveIn, reserveOut, weightIn, weightOut, feeBps decimal.Decimal) (SwapQuote, error) {
	if err := checkSwapInputs(amountIn, reserveIn, reserveOut); err != nil {
		return SwapQuote{}, err
	}
	if !weightIn.IsPositive() || !weightOut.IsPositive() {
		return SwapQuote{}, invariant("pool weights must be positive")
	}
	eff := amountIn.Mul(FeeMultiplier(feeBps))
	ratio := reserveIn.Div(reserveIn.Add(eff))
	power := weightIn.Div(weightOut)
	// decimal has no fractional power; float64 is enough for an approximate model
	scaled := decimal.NewFromFloat(math.Pow(ratio.InexactFloat64(), power.InexactFloat64()))
	out := reserveOut.Mul(one.Sub(scaled))
	if err := checkSwapOutput(out, reserveOut); err != nil {
		return SwapQuote{}, err
	}

	slippage := decimal.Min(amountIn.Div(reserveIn).Mul(bpsDenominator).Mul(weightIn), maxWeightedSlippageBps)
	return SwapQuote{
		Kind:        market.PoolWeighted,
		AmountIn:    amountIn,
		AmountOut:   out,
		SlippageBps: slippage,
		Approximate: true,
	}, nil
}

// SimulateSwap routes a swap of amountIn units of symbolIn through the model
// matching the pool kind. When the pool carries a depth curve the reported
// slippage is the larger of the model and the curve.
func SimulateSwap(pool *market.AmmPayload, symbolIn string, amountIn decimal.Decimal) (SwapQuote, error) {
	if pool == nil {
		return SwapQuote{}, invariant("nil pool")
	}
	side, ok := pool.Orient(symbolIn)
	if !ok {
		return SwapQuote{}, invariant("pool " + pool.Pool.Hex() + " does not trade " + symbolIn)
	}

	var (
		q   SwapQuote
		err error
	)
	switch pool.Kind {
	case market.PoolConstantProduct:
		q, err = SimulateConstantProduct(amountIn, side.ReserveIn, side.ReserveOut, pool.FeeBps)
	case market.PoolStableswap:
		q, err = SimulateStableswap(amountIn, side.ReserveOut, pool.FeeBps, pool.VirtualPrice)
	case market.PoolWeighted:
		q, err = SimulateWeighted(amountIn, side.ReserveIn, side.ReserveOut, side.WeightIn, side.WeightOut, pool.FeeBps)
	default:
		return SwapQuote{}, invariant("unknown pool kind " + string(pool.Kind))
	}
	if err != nil {
		return SwapQuote{}, err
	}

	// depth is sampled in token0 units
	size := amountIn
	if symbolIn != pool.Token0.Symbol {
		size = q.AmountOut
	}
	if impact, ok := pool.ImpactAt(size); ok && impact.GreaterThan(q.SlippageBps) {
		q.SlippageBps = impact
	}
	return q, nil
}

func checkSwapInputs(amountIn, reserveIn, reserveOut decimal.Decimal) error {
	if !reserveIn.IsPositive() || !reserveOut.IsPositive() {
		return invariant("pool reserves must be positive")
	}
	if !amountIn.IsPositive() {
		return invariant("swap amount must be positive")
	}
	return nil
}

func checkSwapOutput(out, reserveOut decimal.Decimal) error {
	if !out.IsPositive() || out.GreaterThanOrEqual(reserveOut) {
		return apperror.New(apperror.CodeInsufficientLiquidity,
			apperror.WithContext("swap output "+out.String()+" against reserve "+reserveOut.String()))
	}
	return nil
}

func invariant(msg string) error {
	return apperror.New(apperror.CodeInternalInvariant, apperror.WithContext(msg))
}
