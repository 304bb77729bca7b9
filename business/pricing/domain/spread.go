package domain

import "github.com/shopspring/decimal"

var bps = decimal.NewFromInt(10000)

// Spread is the price difference of one asset between two venues.
type Spread struct {
	Reference   decimal.Decimal
	Venue       decimal.Decimal
	Absolute    decimal.Decimal // Venue - Reference
	BasisPoints decimal.Decimal // (Venue - Reference) / Reference * 10000
	Direction   SpreadDirection
}

// SpreadDirection indicates where to buy.
type SpreadDirection string

const (
	SpreadBuyReference SpreadDirection = "BUY_REFERENCE" // buy on reference, sell on venue
	SpreadBuyVenue     SpreadDirection = "BUY_VENUE"     // buy on venue, sell on reference
	SpreadNone         SpreadDirection = "NONE"
)

// CalculateSpread computes the spread of venue over reference.
func CalculateSpread(reference, venue decimal.Decimal) Spread {
	absolute := venue.Sub(reference)
	basis := decimal.Zero
	if !reference.IsZero() {
		basis = absolute.Div(reference).Mul(bps)
	}

	var direction SpreadDirection
	switch {
	case absolute.IsPositive():
		direction = SpreadBuyReference
	case absolute.IsNegative():
		direction = SpreadBuyVenue
	default:
		direction = SpreadNone
	}

	return Spread{
		Reference:   reference,
		Venue:       venue,
		Absolute:    absolute,
		BasisPoints: basis,
		Direction:   direction,
	}
}

// Abs returns the magnitude of the spread in basis points.
func (s Spread) Abs() decimal.Decimal {
	return s.BasisPoints.Abs()
}
