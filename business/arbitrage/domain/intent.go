package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TradeIntent is the published decision of a cycle. It is never signed or
// sent on-chain by this service.
type TradeIntent struct {
	ID                string          `json:"id"`
	CandidateID       string          `json:"candidate_id"`
	Fingerprint       string          `json:"fingerprint"`
	Strategy          string          `json:"strategy"`
	Detector          string          `json:"detector"`
	Legs              []IntentLeg     `json:"legs"`
	InputAsset        string          `json:"input_asset"`
	AmountIn          decimal.Decimal `json:"amount_in"`
	OutputAsset       string          `json:"output_asset"`
	ExpectedOut       decimal.Decimal `json:"expected_out"`
	MinOut            decimal.Decimal `json:"min_out"`
	NotionalUSD       decimal.Decimal `json:"notional_usd"`
	ExpectedProfitUSD decimal.Decimal `json:"expected_profit_usd"`
	ExpectedProfitBps decimal.Decimal `json:"expected_profit_bps"`
	Confidence        float64         `json:"confidence"`
	FlashLoan         *IntentLoan     `json:"flash_loan,omitempty"`
	BlockNumber       uint64          `json:"block_number"`
	SnapshotVersion   uint64          `json:"snapshot_version"`
	CreatedAt         time.Time       `json:"created_at"`
	ExpiresAt         time.Time       `json:"expires_at"`
}

// IntentLeg is the wire form of a leg.
type IntentLeg struct {
	Kind     LegKind `json:"kind"`
	Chain    uint64  `json:"chain_id"`
	AssetIn  string  `json:"asset_in"`
	AssetOut string  `json:"asset_out"`
	Venue    string  `json:"venue"`
}

// IntentLoan is the wire form of a flash loan plan.
type IntentLoan struct {
	Chain    uint64          `json:"chain_id"`
	Provider string          `json:"provider"`
	Asset    string          `json:"asset"`
	Amount   decimal.Decimal `json:"amount"`
	FeeBps   decimal.Decimal `json:"fee_bps"`
}

// NewTradeIntent turns an accepted evaluation into an intent. MinOut is the
// expected output less slippageToleranceBps; the intent expires deadline
// after the candidate was detected.
func NewTradeIntent(ev EvaluationResult, slippageToleranceBps decimal.Decimal, deadline time.Duration, now time.Time) TradeIntent {
	c := ev.Candidate
	legs := make([]IntentLeg, len(c.Legs))
	for i, l := range c.Legs {
		legs[i] = IntentLeg{
			Kind:     l.Kind,
			Chain:    uint64(l.Chain),
			AssetIn:  l.AssetIn,
			AssetOut: l.AssetOut,
			Venue:    l.Venue.String(),
		}
	}

	detected := c.DetectedAt
	if detected.IsZero() {
		detected = now
	}

	intent := TradeIntent{
		ID:                uuid.NewString(),
		CandidateID:       c.ID,
		Fingerprint:       c.Fingerprint(),
		Strategy:          c.Strategy,
		Detector:          c.Detector,
		Legs:              legs,
		InputAsset:        c.InputAsset(),
		AmountIn:          ev.AmountIn,
		OutputAsset:       ev.OutputAsset,
		ExpectedOut:       ev.GrossOutput,
		MinOut:            ev.GrossOutput.Mul(FeeMultiplier(slippageToleranceBps)),
		NotionalUSD:       ev.NotionalUSD,
		ExpectedProfitUSD: ev.NetProfitUSD,
		ExpectedProfitBps: ev.NetProfitBps,
		Confidence:        ev.Confidence,
		BlockNumber:       c.BlockNumber,
		SnapshotVersion:   c.SnapshotVersion,
		CreatedAt:         now,
		ExpiresAt:         detected.Add(deadline),
	}
	if fl := ev.FlashLoan; fl != nil {
		intent.FlashLoan = &IntentLoan{
			Chain:    uint64(fl.Chain),
			Provider: fl.Provider,
			Asset:    fl.Asset,
			Amount:   fl.Amount,
			FeeBps:   fl.FeeBps,
		}
	}
	return intent
}

// Expired reports whether the intent is past its deadline at now.
func (t TradeIntent) Expired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && !now.Before(t.ExpiresAt)
}
