package app

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/fd1az/multichain-arb/business/arbitrage/domain"
	market "github.com/fd1az/multichain-arb/business/market/domain"
	"github.com/fd1az/multichain-arb/internal/asset"
	"github.com/fd1az/multichain-arb/internal/logger"
)

var t0 = time.Unix(1_700_000_000, 0)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func discard() logger.LoggerInterface {
	return logger.New(io.Discard, logger.LevelError, "test", nil)
}

type staticPrices map[string]string

func (p staticPrices) USD(symbol string) (asset.Price, error) {
	sym := strings.ToUpper(symbol)
	rate, ok := p[sym]
	if !ok {
		return asset.Price{}, errors.New("no price for " + sym)
	}
	return asset.NewPrice(sym, "USD", d(rate), t0, "test")
}

var testPrices = staticPrices{"ETH": "2000", "WETH": "2000", "USDC": "1", "DAI": "1"}

type wrapped struct{}

func (wrapped) Canonical(symbol string) string {
	up := strings.ToUpper(symbol)
	if up == "WETH" {
		return "ETH"
	}
	return up
}

// observed is a feature and how long before t0 it was stored.
type observed struct {
	f   market.Feature
	age time.Duration
}

func now(f market.Feature) observed { return observed{f: f} }

func aged(f market.Feature, age time.Duration) observed { return observed{f: f, age: age} }

func snapshot(obs ...observed) *market.Snapshot {
	entries := make(map[market.Key]market.Entry, len(obs))
	for _, o := range obs {
		entries[o.f.Key()] = market.Entry{Feature: o.f, ObservedAt: t0.Add(-o.age)}
	}
	return market.NewSnapshot(1, t0, entries, market.DefaultChains())
}

var poolSeq int

func pool(chain market.ChainID, sym0, sym1, r0, r1 string) market.Feature {
	poolSeq++
	addr := fmt.Sprintf("0x%040x", poolSeq)
	return market.Feature{
		ID:          "amm-" + addr,
		Chain:       chain,
		BlockNumber: 100,
		Timestamp:   t0,
		Type:        market.FeatureAMM,
		AMM: &market.AmmPayload{
			Pool:     common.HexToAddress(addr),
			Kind:     market.PoolConstantProduct,
			Token0:   market.Token{Symbol: sym0, Decimals: 18},
			Token1:   market.Token{Symbol: sym1, Decimals: 18},
			FeeBps:   decimal.NewFromInt(30),
			Reserve0: d(r0),
			Reserve1: d(r1),
		},
	}
}

func gas(chain market.ChainID, gwei string) market.Feature {
	return market.Feature{
		ID:          fmt.Sprintf("gas-%d", chain),
		Chain:       chain,
		BlockNumber: 100,
		Type:        market.FeatureGas,
		Gas:         &market.GasPayload{Chain: chain, PriceGwei: d(gwei)},
	}
}

func flashOffer(chain market.ChainID, provider, sym, liquidity, fee string) market.Feature {
	return market.Feature{
		ID:          "fl-" + provider + "-" + sym,
		Chain:       chain,
		BlockNumber: 100,
		Type:        market.FeatureFlashLoan,
		FlashLoan: &market.FlashLoanPayload{
			Chain: chain, Provider: provider, Asset: sym,
			AvailableLiquidity: d(liquidity), FeeBps: decimal.NewNullDecimal(d(fee)),
		},
	}
}

func sequencer(chain market.ChainID, healthy bool) market.Feature {
	return market.Feature{
		ID:          fmt.Sprintf("seq-%d", chain),
		Chain:       chain,
		BlockNumber: 100,
		Type:        market.FeatureSequencer,
		Sequencer:   &market.SequencerPayload{Chain: chain, Healthy: healthy},
	}
}

func testStrategy() domain.StrategyConfig {
	return domain.StrategyConfig{
		Name:           "arb",
		Enabled:        true,
		MinProfitUSD:   d("1"),
		ApprovedAssets: domain.SymbolSet("ETH", "WETH", "USDC", "DAI"),
		Risk:           domain.RiskLimits{MaxLegs: 4, MaxChains: 2},
	}
}

// swapLeg builds a swap leg through the AMM feature f.
func swapLeg(f market.Feature, in, out, notional string) domain.Leg {
	return domain.Leg{Kind: domain.LegSwap, Chain: f.Chain, AssetIn: in, AssetOut: out, Venue: f.Key(), Notional: d(notional)}
}
