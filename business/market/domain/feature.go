// Package domain contains the normalized market observation model.
package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/fd1az/multichain-arb/internal/apperror"
)

// FeatureType tags the payload a Feature carries.
type FeatureType string

const (
	FeatureAMM       FeatureType = "amm"
	FeatureBridge    FeatureType = "bridge"
	FeatureGas       FeatureType = "gas"
	FeatureFlashLoan FeatureType = "flash_loan"
	FeatureSequencer FeatureType = "sequencer"
)

// PoolKind selects the AMM invariant a pool follows.
type PoolKind string

const (
	PoolConstantProduct PoolKind = "constant_product"
	PoolStableswap      PoolKind = "stableswap"
	PoolWeighted        PoolKind = "weighted"
)

// CurrentSchemaVersion is the feature schema this build understands.
const CurrentSchemaVersion = 1

var bpsDenominator = decimal.NewFromInt(10_000)

// Token identifies one side of a pool.
type Token struct {
	Address  common.Address
	Symbol   string
	Decimals uint8
}

// DepthSample is one point of a pool's size to price-impact curve.
type DepthSample struct {
	Size      decimal.Decimal // in token0 units
	ImpactBps decimal.Decimal
}

// AmmPayload describes a liquidity pool.
type AmmPayload struct {
	Pool         common.Address
	Kind         PoolKind
	Token0       Token
	Token1       Token
	FeeBps       decimal.Decimal
	Reserve0     decimal.Decimal
	Reserve1     decimal.Decimal
	MidPrice     decimal.Decimal // token1 per token0, zero when not supplied
	LiquidityUSD decimal.Decimal
	Depth        []DepthSample
	Volume24hUSD decimal.Decimal
	Fees24hUSD   decimal.Decimal
	Weight0      decimal.Decimal // weighted pools only
	Weight1      decimal.Decimal
	VirtualPrice decimal.Decimal // stableswap only, defaults to 1
}

// Mid returns token1 per token0, derived from reserves when not supplied.
func (p *AmmPayload) Mid() decimal.Decimal {
	if p.MidPrice.IsPositive() {
		return p.MidPrice
	}
	if p.Reserve0.IsPositive() {
		mid := p.Reserve1.Div(p.Reserve0)
		if p.Kind == PoolWeighted && p.Weight0.IsPositive() && p.Weight1.IsPositive() {
			// spot price of a weighted pool: (r1/w1)/(r0/w0)
			mid = mid.Mul(p.Weight0).Div(p.Weight1)
		}
		return mid
	}
	return decimal.Zero
}

// Rate returns how many units of the other token one unit of symbolIn buys
// at mid price, before fees.
func (p *AmmPayload) Rate(symbolIn string) (decimal.Decimal, bool) {
	mid := p.Mid()
	if !mid.IsPositive() {
		return decimal.Zero, false
	}
	switch symbolIn {
	case p.Token0.Symbol:
		return mid, true
	case p.Token1.Symbol:
		return decimal.NewFromInt(1).Div(mid), true
	}
	return decimal.Zero, false
}

// PoolSide is the pool oriented for a swap direction.
type PoolSide struct {
	In, Out               Token
	ReserveIn, ReserveOut decimal.Decimal
	WeightIn, WeightOut   decimal.Decimal
}

// Orient returns the pool seen from symbolIn.
func (p *AmmPayload) Orient(symbolIn string) (PoolSide, bool) {
	switch symbolIn {
	case p.Token0.Symbol:
		return PoolSide{In: p.Token0, Out: p.Token1, ReserveIn: p.Reserve0, ReserveOut: p.Reserve1,
			WeightIn: p.Weight0, WeightOut: p.Weight1}, true
	case p.Token1.Symbol:
		return PoolSide{In: p.Token1, Out: p.Token0, ReserveIn: p.Reserve1, ReserveOut: p.Reserve0,
			WeightIn: p.Weight1, WeightOut: p.Weight0}, true
	}
	return PoolSide{}, false
}

// Other returns the counter token of symbol.
func (p *AmmPayload) Other(symbol string) (string, bool) {
	switch symbol {
	case p.Token0.Symbol:
		return p.Token1.Symbol, true
	case p.Token1.Symbol:
		return p.Token0.Symbol, true
	}
	return "", false
}

// ImpactAt linearly interpolates the depth curve at size. It reports false
// when the pool carries no curve.
func (p *AmmPayload) ImpactAt(size decimal.Decimal) (decimal.Decimal, bool) {
	if len(p.Depth) == 0 {
		return decimal.Zero, false
	}
	prev := DepthSample{Size: decimal.Zero, ImpactBps: decimal.Zero}
	for _, s := range p.Depth {
		if size.LessThanOrEqual(s.Size) {
			span := s.Size.Sub(prev.Size)
			if !span.IsPositive() {
				return s.ImpactBps, true
			}
			frac := size.Sub(prev.Size).Div(span)
			return prev.ImpactBps.Add(s.ImpactBps.Sub(prev.ImpactBps).Mul(frac)), true
		}
		prev = s
	}
	// beyond the sampled range the last sample is a lower bound
	return prev.ImpactBps, true
}

// BridgePayload describes a bridge route for one asset.
type BridgePayload struct {
	From              ChainID
	To                ChainID
	Asset             string
	FeeBps            decimal.Decimal
	SettlementLatency time.Duration
}

// GasPayload is the gas price on a chain, in gwei.
type GasPayload struct {
	Chain         ChainID
	PriceGwei     decimal.Decimal
	PredictedGwei decimal.Decimal
}

// FlashLoanPayload is the flash-loan capacity of a provider for one asset.
type FlashLoanPayload struct {
	Chain              ChainID
	Provider           string
	Asset              string
	AvailableLiquidity decimal.Decimal
	// FeeBps is invalid when the source did not report a fee
	FeeBps             decimal.NullDecimal
}

// SequencerPayload reports rollup sequencer health.
type SequencerPayload struct {
	Chain          ChainID
	Healthy        bool
	LastBatchBlock uint64
}

// Feature is an immutable normalized observation. Exactly one payload field
// is set and it matches Type.
type Feature struct {
	ID            string
	Chain         ChainID
	BlockNumber   uint64
	Timestamp     time.Time
	Type          FeatureType
	Source        string
	SchemaVersion int

	AMM       *AmmPayload
	Bridge    *BridgePayload
	Gas       *GasPayload
	FlashLoan *FlashLoanPayload
	Sequencer *SequencerPayload
}

// Key identifies the slot a feature occupies in market state.
type Key struct {
	Chain    ChainID
	Type     FeatureType
	Identity string
}

func (k Key) String() string {
	return fmt.Sprintf("%d/%s/%s", uint64(k.Chain), k.Type, k.Identity)
}

// AMMKey builds the key of a pool.
func AMMKey(chain ChainID, pool common.Address) Key {
	return Key{Chain: chain, Type: FeatureAMM, Identity: strings.ToLower(pool.Hex())}
}

// BridgeKey builds the key of a bridge route. Bridge features live on the
// source chain and must be observed there.
func BridgeKey(from, to ChainID, asset string) Key {
	return Key{Chain: from, Type: FeatureBridge, Identity: fmt.Sprintf("%d>%d:%s", uint64(from), uint64(to), strings.ToUpper(asset))}
}

// GasKey builds the key of a chain's gas price.
func GasKey(chain ChainID) Key {
	return Key{Chain: chain, Type: FeatureGas, Identity: "gas"}
}

// FlashLoanKey builds the key of a provider's flash-loan offer.
func FlashLoanKey(chain ChainID, provider, asset string) Key {
	return Key{Chain: chain, Type: FeatureFlashLoan, Identity: strings.ToLower(provider) + ":" + strings.ToUpper(asset)}
}

// SequencerKey builds the key of a chain's sequencer status.
func SequencerKey(chain ChainID) Key {
	return Key{Chain: chain, Type: FeatureSequencer, Identity: "sequencer"}
}

// Key returns the state slot for f.
func (f Feature) Key() Key {
	switch f.Type {
	case FeatureAMM:
		if f.AMM != nil {
			return AMMKey(f.Chain, f.AMM.Pool)
		}
	case FeatureBridge:
		if f.Bridge != nil {
			return BridgeKey(f.Bridge.From, f.Bridge.To, f.Bridge.Asset)
		}
	case FeatureGas:
		return GasKey(f.Chain)
	case FeatureFlashLoan:
		if f.FlashLoan != nil {
			return FlashLoanKey(f.Chain, f.FlashLoan.Provider, f.FlashLoan.Asset)
		}
	case FeatureSequencer:
		return SequencerKey(f.Chain)
	}
	return Key{Chain: f.Chain, Type: f.Type}
}

// Validate checks structural invariants of f.
func (f Feature) Validate() error {
	invalid := func(format string, args ...any) error {
		return apperror.New(apperror.CodeInvalidFeature,
			apperror.WithContext(fmt.Sprintf("feature %s: ", f.ID)+fmt.Sprintf(format, args...)))
	}

	if f.ID == "" {
		return invalid("missing id")
	}
	if f.Chain == 0 {
		return invalid("missing chain")
	}
	if f.SchemaVersion > CurrentSchemaVersion {
		return invalid("unsupported schema version %d", f.SchemaVersion)
	}

	set := 0
	for _, p := range []bool{f.AMM != nil, f.Bridge != nil, f.Gas != nil, f.FlashLoan != nil, f.Sequencer != nil} {
		if p {
			set++
		}
	}
	if set != 1 {
		return invalid("expected exactly one payload, got %d", set)
	}

	switch f.Type {
	case FeatureAMM:
		if f.AMM == nil {
			return invalid("type amm without amm payload")
		}
		return validateAMM(f.AMM, invalid)
	case FeatureBridge:
		if f.Bridge == nil {
			return invalid("type bridge without bridge payload")
		}
		if f.Bridge.From == 0 || f.Bridge.To == 0 || f.Bridge.From == f.Bridge.To {
			return invalid("bridge route %d>%d", f.Bridge.From, f.Bridge.To)
		}
		if f.Bridge.From != f.Chain {
			return invalid("bridge route from chain %d observed on chain %d", f.Bridge.From, f.Chain)
		}
		if f.Bridge.Asset == "" {
			return invalid("bridge without asset")
		}
		return validateBps(f.Bridge.FeeBps, "bridge fee", invalid)
	case FeatureGas:
		if f.Gas == nil {
			return invalid("type gas without gas payload")
		}
		if !f.Gas.PriceGwei.IsPositive() {
			return invalid("gas price must be positive")
		}
	case FeatureFlashLoan:
		if f.FlashLoan == nil {
			return invalid("type flash_loan without flash loan payload")
		}
		if f.FlashLoan.Provider == "" || f.FlashLoan.Asset == "" {
			return invalid("flash loan without provider or asset")
		}
		if f.FlashLoan.AvailableLiquidity.IsNegative() {
			return invalid("negative flash loan liquidity")
		}
		if f.FlashLoan.FeeBps.Valid {
			return validateBps(f.FlashLoan.FeeBps.Decimal, "flash loan fee", invalid)
		}
	case FeatureSequencer:
		if f.Sequencer == nil {
			return invalid("type sequencer without sequencer payload")
		}
	default:
		return invalid("unknown type %q", f.Type)
	}
	return nil
}

func validateAMM(p *AmmPayload, invalid func(string, ...any) error) error {
	switch p.Kind {
	case PoolConstantProduct, PoolStableswap:
	case PoolWeighted:
		if !p.Weight0.IsPositive() || !p.Weight1.IsPositive() {
			return invalid("weighted pool needs positive weights")
		}
	default:
		return invalid("unknown pool kind %q", p.Kind)
	}
	if p.Token0.Symbol == "" || p.Token1.Symbol == "" || p.Token0.Symbol == p.Token1.Symbol {
		return invalid("pool tokens %q/%q", p.Token0.Symbol, p.Token1.Symbol)
	}
	if p.Reserve0.IsNegative() || p.Reserve1.IsNegative() {
		return invalid("negative reserve")
	}
	if p.MidPrice.IsNegative() || p.LiquidityUSD.IsNegative() {
		return invalid("negative price or liquidity")
	}
	return validateBps(p.FeeBps, "pool fee", invalid)
}

func validateBps(v decimal.Decimal, what string, invalid func(string, ...any) error) error {
	if v.IsNegative() || v.GreaterThanOrEqual(bpsDenominator) {
		return invalid("%s %s bps out of range", what, v.String())
	}
	return nil
}
