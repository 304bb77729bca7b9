package domain

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	market "github.com/fd1az/multichain-arb/business/market/domain"
	"github.com/fd1az/multichain-arb/internal/apperror"
)

// DefaultFlashLoanFeeBps holds provider fees used when an offer carries none.
var DefaultFlashLoanFeeBps = map[string]decimal.Decimal{
	"aave_v3":    decimal.NewFromInt(5),
	"balancer":   decimal.Zero,
	"uniswap_v3": decimal.NewFromInt(5),
}

// FlashLoanPlan is the chosen loan for a candidate.
type FlashLoanPlan struct {
	Chain    market.ChainID
	Provider string
	Asset    string
	Venue    market.Key
	Amount   decimal.Decimal
	FeeBps   decimal.Decimal
	Fee      decimal.Decimal // in asset units
}

// SelectFlashLoan picks the cheapest offer able to lend needed. Offers that
// report no fee use feeTable for their provider; a reported zero fee stands. Ties go to the
// deeper offer, then the provider name.
func SelectFlashLoan(needed decimal.Decimal, offers []market.FlashLoanPayload, feeTable map[string]decimal.Decimal) (FlashLoanPlan, error) {
	if feeTable == nil {
		feeTable = DefaultFlashLoanFeeBps
	}

	type scored struct {
		offer market.FlashLoanPayload
		fee   decimal.Decimal
	}
	var usable []scored
	for _, o := range offers {
		if o.AvailableLiquidity.LessThan(needed) {
			continue
		}
		fee := o.FeeBps.Decimal
		if !o.FeeBps.Valid {
			if f, ok := feeTable[strings.ToLower(o.Provider)]; ok {
				fee = f
			}
		}
		usable = append(usable, scored{offer: o, fee: fee})
	}
	if len(usable) == 0 {
		return FlashLoanPlan{}, apperror.New(apperror.CodeInsufficientLiquidity,
			apperror.WithContext("no flash loan offer covers "+needed.String()))
	}

	sort.Slice(usable, func(i, j int) bool {
		a, b := usable[i], usable[j]
		if c := a.fee.Cmp(b.fee); c != 0 {
			return c < 0
		}
		if c := a.offer.AvailableLiquidity.Cmp(b.offer.AvailableLiquidity); c != 0 {
			return c > 0
		}
		return a.offer.Provider < b.offer.Provider
	})

	best := usable[0]
	return FlashLoanPlan{
		Chain:    best.offer.Chain,
		Provider: best.offer.Provider,
		Asset:    best.offer.Asset,
		Venue:    market.FlashLoanKey(best.offer.Chain, best.offer.Provider, best.offer.Asset),
		Amount:   needed,
		FeeBps:   best.fee,
		Fee:      needed.Mul(best.fee).Div(bpsDenominator),
	}, nil
}
