package domain

import (
	"time"

	"github.com/shopspring/decimal"

	market "github.com/fd1az/multichain-arb/business/market/domain"
	"github.com/fd1az/multichain-arb/internal/apperror"
)

// RejectReason classifies why an evaluation was rejected.
type RejectReason string

const (
	RejectStaleData             RejectReason = "stale_data"
	RejectInsufficientLiquidity RejectReason = "insufficient_liquidity"
	RejectPolicyViolation       RejectReason = "policy_violation"
	RejectInternalInvariant     RejectReason = "internal_invariant"
	RejectUnprofitable          RejectReason = "unprofitable"
)

// Rejection explains a rejected evaluation.
type Rejection struct {
	Reason RejectReason
	Detail string
}

func (r Rejection) Error() string {
	return string(r.Reason) + ": " + r.Detail
}

// RejectionFromError maps a cost model error onto a rejection.
func RejectionFromError(err error) *Rejection {
	reason := RejectInternalInvariant
	switch apperror.GetCode(err) {
	case apperror.CodeStaleData:
		reason = RejectStaleData
	case apperror.CodeInsufficientLiquidity:
		reason = RejectInsufficientLiquidity
	case apperror.CodePolicyViolation:
		reason = RejectPolicyViolation
	}
	return &Rejection{Reason: reason, Detail: err.Error()}
}

// Costs are the USD costs charged against a path.
type Costs struct {
	GasUSD          decimal.Decimal
	BridgeFeeUSD    decimal.Decimal
	FlashLoanFeeUSD decimal.Decimal
	SlippageBps     decimal.Decimal
}

// TotalUSD sums the USD costs.
func (c Costs) TotalUSD() decimal.Decimal {
	return c.GasUSD.Add(c.BridgeFeeUSD).Add(c.FlashLoanFeeUSD)
}

// EvaluationResult is a priced candidate. It lives for one cycle.
type EvaluationResult struct {
	Candidate      Candidate
	AmountIn       decimal.Decimal
	GrossOutput    decimal.Decimal // final amount in the last leg's AssetOut
	OutputAsset    string
	NotionalUSD    decimal.Decimal
	GrossOutputUSD decimal.Decimal
	Costs          Costs
	NetProfitUSD   decimal.Decimal
	NetProfitBps   decimal.Decimal
	Staleness      time.Duration
	PathLatency    time.Duration

	GasFallback        bool
	FallbackChains     []market.ChainID
	BridgeFeeDefaulted bool
	Approximate        bool
	Confidence         float64
	FlashLoan          *FlashLoanPlan

	Rejection   *Rejection
	EvaluatedAt time.Time
}

// Rejected reports whether the candidate failed evaluation.
func (r EvaluationResult) Rejected() bool {
	return r.Rejection != nil
}

// Reject marks the result rejected with reason.
func (r *EvaluationResult) Reject(reason RejectReason, detail string) {
	r.Rejection = &Rejection{Reason: reason, Detail: detail}
}
