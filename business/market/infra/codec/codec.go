// Package codec maps JSON feature frames onto domain features.
package codec

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sugawarayuuta/sonnet"

	"github.com/fd1az/multichain-arb/business/market/domain"
	"github.com/fd1az/multichain-arb/internal/apperror"
	"github.com/fd1az/multichain-arb/internal/asset"
)

type wireToken struct {
	Address  string `json:"address"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
}

type wireDepth struct {
	Size      decimal.Decimal `json:"size"`
	ImpactBps decimal.Decimal `json:"impact_bps"`
}

type wireAMM struct {
	Pool         string          `json:"pool"`
	Kind         string          `json:"kind"`
	Token0       wireToken       `json:"token0"`
	Token1       wireToken       `json:"token1"`
	FeeBps       decimal.Decimal `json:"fee_bps"`
	Reserve0     decimal.Decimal `json:"reserve0"`
	Reserve1     decimal.Decimal `json:"reserve1"`
	Reserve0Raw  string          `json:"reserve0_raw,omitempty"`
	Reserve1Raw  string          `json:"reserve1_raw,omitempty"`
	MidPrice     decimal.Decimal `json:"mid_price"`
	LiquidityUSD decimal.Decimal `json:"liquidity_usd"`
	Depth        []wireDepth     `json:"depth,omitempty"`
	Volume24hUSD decimal.Decimal `json:"volume_24h_usd"`
	Fees24hUSD   decimal.Decimal `json:"fees_24h_usd"`
	Weight0      decimal.Decimal `json:"weight0"`
	Weight1      decimal.Decimal `json:"weight1"`
	VirtualPrice decimal.Decimal `json:"virtual_price"`
}

type wireBridge struct {
	From          uint64          `json:"from"`
	To            uint64          `json:"to"`
	Asset         string          `json:"asset"`
	FeeBps        decimal.Decimal `json:"fee_bps"`
	LatencySecond int64           `json:"settlement_latency_sec"`
}

type wireGas struct {
	PriceGwei     decimal.Decimal `json:"price_gwei"`
	PredictedGwei decimal.Decimal `json:"predicted_gwei"`
}

type wireFlashLoan struct {
	Provider           string          `json:"provider"`
	Asset              string          `json:"asset"`
	AvailableLiquidity decimal.Decimal     `json:"available_liquidity"`
	FeeBps             decimal.NullDecimal `json:"fee_bps"`
}

type wireSequencer struct {
	Healthy        bool   `json:"healthy"`
	LastBatchBlock uint64 `json:"last_batch_block"`
}

// Frame is the JSON shape of one feature.
type Frame struct {
	ID            string `json:"id"`
	Chain         uint64 `json:"chain_id"`
	BlockNumber   uint64 `json:"block_number"`
	TimestampMs   int64  `json:"timestamp_ms"`
	Type          string `json:"type"`
	Source        string `json:"source,omitempty"`
	SchemaVersion int    `json:"schema_version"`

	AMM       *wireAMM       `json:"amm,omitempty"`
	Bridge    *wireBridge    `json:"bridge,omitempty"`
	Gas       *wireGas       `json:"gas,omitempty"`
	FlashLoan *wireFlashLoan `json:"flash_loan,omitempty"`
	Sequencer *wireSequencer `json:"sequencer,omitempty"`
}

// Decode parses a frame holding one feature object or an array of them.
func Decode(b []byte) ([]domain.Feature, error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return nil, malformed("empty frame", nil)
	}

	var frames []Frame
	if b[0] == '[' {
		if err := sonnet.Unmarshal(b, &frames); err != nil {
			return nil, malformed("decode batch", err)
		}
	} else {
		var f Frame
		if err := sonnet.Unmarshal(b, &f); err != nil {
			return nil, malformed("decode frame", err)
		}
		frames = []Frame{f}
	}

	out := make([]domain.Feature, 0, len(frames))
	for _, fr := range frames {
		f, err := fr.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

// Encode renders f as a frame.
func Encode(f domain.Feature) ([]byte, error) {
	return sonnet.Marshal(fromDomain(f))
}

func malformed(context string, cause error) error {
	opts := []apperror.Option{apperror.WithContext(context)}
	if cause != nil {
		opts = append(opts, apperror.WithCause(cause))
	}
	return apperror.New(apperror.CodeInvalidFeature, opts...)
}

func (fr Frame) toDomain() (domain.Feature, error) {
	chain := domain.ChainID(fr.Chain)
	f := domain.Feature{
		ID:            fr.ID,
		Chain:         chain,
		BlockNumber:   fr.BlockNumber,
		Type:          domain.FeatureType(fr.Type),
		Source:        fr.Source,
		SchemaVersion: fr.SchemaVersion,
	}
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.SchemaVersion == 0 {
		f.SchemaVersion = domain.CurrentSchemaVersion
	}
	if fr.TimestampMs > 0 {
		f.Timestamp = time.UnixMilli(fr.TimestampMs).UTC()
	}

	if fr.AMM != nil {
		p, err := fr.AMM.toDomain(fr.Chain)
		if err != nil {
			return domain.Feature{}, err
		}
		f.AMM = p
	}
	if b := fr.Bridge; b != nil {
		f.Bridge = &domain.BridgePayload{
			From:              domain.ChainID(b.From),
			To:                domain.ChainID(b.To),
			Asset:             strings.ToUpper(b.Asset),
			FeeBps:            b.FeeBps,
			SettlementLatency: time.Duration(b.LatencySecond) * time.Second,
		}
		if f.Bridge.From == 0 {
			f.Bridge.From = chain
		}
	}
	if g := fr.Gas; g != nil {
		f.Gas = &domain.GasPayload{Chain: chain, PriceGwei: g.PriceGwei, PredictedGwei: g.PredictedGwei}
	}
	if l := fr.FlashLoan; l != nil {
		f.FlashLoan = &domain.FlashLoanPayload{
			Chain:              chain,
			Provider:           strings.ToLower(l.Provider),
			Asset:              strings.ToUpper(l.Asset),
			AvailableLiquidity: l.AvailableLiquidity,
			FeeBps:             l.FeeBps,
		}
	}
	if s := fr.Sequencer; s != nil {
		f.Sequencer = &domain.SequencerPayload{Chain: chain, Healthy: s.Healthy, LastBatchBlock: s.LastBatchBlock}
	}
	return f, nil
}

func (w *wireAMM) toDomain(chain uint64) (*domain.AmmPayload, error) {
	if !common.IsHexAddress(w.Pool) {
		return nil, malformed(fmt.Sprintf("pool address %q", w.Pool), nil)
	}
	p := &domain.AmmPayload{
		Pool:         common.HexToAddress(w.Pool),
		Kind:         domain.PoolKind(w.Kind),
		Token0:       w.Token0.toDomain(),
		Token1:       w.Token1.toDomain(),
		FeeBps:       w.FeeBps,
		Reserve0:     w.Reserve0,
		Reserve1:     w.Reserve1,
		MidPrice:     w.MidPrice,
		LiquidityUSD: w.LiquidityUSD,
		Volume24hUSD: w.Volume24hUSD,
		Fees24hUSD:   w.Fees24hUSD,
		Weight0:      w.Weight0,
		Weight1:      w.Weight1,
		VirtualPrice: w.VirtualPrice,
	}
	if p.Kind == "" {
		p.Kind = domain.PoolConstantProduct
	}
	if p.Kind == domain.PoolStableswap && p.VirtualPrice.IsZero() {
		p.VirtualPrice = decimal.NewFromInt(1)
	}

	var err error
	if w.Reserve0Raw != "" {
		if p.Reserve0, err = scaleRaw(chain, p.Token0, w.Reserve0Raw); err != nil {
			return nil, err
		}
	}
	if w.Reserve1Raw != "" {
		if p.Reserve1, err = scaleRaw(chain, p.Token1, w.Reserve1Raw); err != nil {
			return nil, err
		}
	}

	for _, d := range w.Depth {
		p.Depth = append(p.Depth, domain.DepthSample{Size: d.Size, ImpactBps: d.ImpactBps})
	}
	return p, nil
}

// scaleRaw converts a base-unit integer string into token units.
func scaleRaw(chain uint64, t domain.Token, raw string) (decimal.Decimal, error) {
	a, err := asset.New(asset.TokenID(chain, t.Address), t.Symbol, "", t.Decimals)
	if err != nil {
		return decimal.Zero, malformed("reserve token "+t.Symbol, err)
	}
	amt, err := asset.ParseRaw(a, raw)
	if err != nil {
		return decimal.Zero, malformed("reserve of "+t.Symbol, err)
	}
	return amt.Decimal(), nil
}

func (w wireToken) toDomain() domain.Token {
	return domain.Token{
		Address:  common.HexToAddress(w.Address),
		Symbol:   strings.ToUpper(w.Symbol),
		Decimals: w.Decimals,
	}
}

func fromDomain(f domain.Feature) Frame {
	fr := Frame{
		ID:            f.ID,
		Chain:         uint64(f.Chain),
		BlockNumber:   f.BlockNumber,
		Type:          string(f.Type),
		Source:        f.Source,
		SchemaVersion: f.SchemaVersion,
	}
	if !f.Timestamp.IsZero() {
		fr.TimestampMs = f.Timestamp.UnixMilli()
	}
	if p := f.AMM; p != nil {
		w := &wireAMM{
			Pool:         p.Pool.Hex(),
			Kind:         string(p.Kind),
			Token0:       wireToken{Address: p.Token0.Address.Hex(), Symbol: p.Token0.Symbol, Decimals: p.Token0.Decimals},
			Token1:       wireToken{Address: p.Token1.Address.Hex(), Symbol: p.Token1.Symbol, Decimals: p.Token1.Decimals},
			FeeBps:       p.FeeBps,
			Reserve0:     p.Reserve0,
			Reserve1:     p.Reserve1,
			MidPrice:     p.MidPrice,
			LiquidityUSD: p.LiquidityUSD,
			Volume24hUSD: p.Volume24hUSD,
			Fees24hUSD:   p.Fees24hUSD,
			Weight0:      p.Weight0,
			Weight1:      p.Weight1,
			VirtualPrice: p.VirtualPrice,
		}
		for _, d := range p.Depth {
			w.Depth = append(w.Depth, wireDepth{Size: d.Size, ImpactBps: d.ImpactBps})
		}
		fr.AMM = w
	}
	if b := f.Bridge; b != nil {
		fr.Bridge = &wireBridge{From: uint64(b.From), To: uint64(b.To), Asset: b.Asset, FeeBps: b.FeeBps,
			LatencySecond: int64(b.SettlementLatency / time.Second)}
	}
	if g := f.Gas; g != nil {
		fr.Gas = &wireGas{PriceGwei: g.PriceGwei, PredictedGwei: g.PredictedGwei}
	}
	if l := f.FlashLoan; l != nil {
		fr.FlashLoan = &wireFlashLoan{Provider: l.Provider, Asset: l.Asset, AvailableLiquidity: l.AvailableLiquidity, FeeBps: l.FeeBps}
	}
	if s := f.Sequencer; s != nil {
		fr.Sequencer = &wireSequencer{Healthy: s.Healthy, LastBatchBlock: s.LastBatchBlock}
	}
	return fr
}
