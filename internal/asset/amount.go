package asset

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

var (
	ErrNilAsset        = errors.New("asset: nil asset")
	ErrNegativeAmount  = errors.New("asset: negative amount")
	ErrAssetMismatch   = errors.New("asset: cannot operate on different assets")
	ErrTooManyDecimals = errors.New("asset: too many decimal places for asset")
	ErrInvalidRaw      = errors.New("asset: invalid base-unit integer")
)

// Amount is an immutable non-negative quantity of an asset in base units
// (wei for 18-decimal tokens).
type Amount struct {
	raw   *big.Int
	asset *Asset
}

// NewAmount copies raw into an Amount.
func NewAmount(a *Asset, raw *big.Int) (Amount, error) {
	if a == nil {
		return Amount{}, ErrNilAsset
	}
	if raw == nil || raw.Sign() < 0 {
		return Amount{}, ErrNegativeAmount
	}
	return Amount{raw: new(big.Int).Set(raw), asset: a}, nil
}

// ParseRaw parses a base-10 base-unit integer such as a reserve read from a
// pool contract.
func ParseRaw(a *Asset, s string) (Amount, error) {
	raw, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return Amount{}, fmt.Errorf("%w: %q", ErrInvalidRaw, s)
	}
	return NewAmount(a, raw)
}

// FromDecimal converts a whole-unit decimal into base units. Fractions finer
// than the asset's decimals are rejected.
func FromDecimal(a *Asset, d decimal.Decimal) (Amount, error) {
	if a == nil {
		return Amount{}, ErrNilAsset
	}
	if d.IsNegative() {
		return Amount{}, ErrNegativeAmount
	}
	scaled := d.Shift(int32(a.Decimals()))
	if !scaled.Equal(scaled.Truncate(0)) {
		return Amount{}, fmt.Errorf("%w: %s %s", ErrTooManyDecimals, d.String(), a.Symbol())
	}
	return NewAmount(a, scaled.BigInt())
}

// Raw returns a copy of the base-unit value.
func (a Amount) Raw() *big.Int {
	if a.raw == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(a.raw)
}

func (a Amount) Asset() *Asset { return a.asset }

func (a Amount) IsZero() bool { return a.raw == nil || a.raw.Sign() == 0 }

// Decimal returns the amount in whole units.
func (a Amount) Decimal() decimal.Decimal {
	if a.raw == nil || a.asset == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(a.raw, -int32(a.asset.Decimals()))
}

// Add adds two amounts of the same asset.
func (a Amount) Add(b Amount) (Amount, error) {
	if err := a.sameAsset(b); err != nil {
		return Amount{}, err
	}
	return NewAmount(a.asset, new(big.Int).Add(a.raw, b.raw))
}

// Sub subtracts b from a. A negative result is an error.
func (a Amount) Sub(b Amount) (Amount, error) {
	if err := a.sameAsset(b); err != nil {
		return Amount{}, err
	}
	if a.raw.Cmp(b.raw) < 0 {
		return Amount{}, ErrNegativeAmount
	}
	return NewAmount(a.asset, new(big.Int).Sub(a.raw, b.raw))
}

// Cmp compares two amounts of the same asset.
func (a Amount) Cmp(b Amount) (int, error) {
	if err := a.sameAsset(b); err != nil {
		return 0, err
	}
	return a.raw.Cmp(b.raw), nil
}

func (a Amount) String() string {
	if a.asset == nil {
		return "0 ???"
	}
	return a.Decimal().String() + " " + a.asset.Symbol()
}

func (a Amount) sameAsset(b Amount) error {
	if a.asset == nil || b.asset == nil {
		return ErrNilAsset
	}
	if a.asset.ID() != b.asset.ID() {
		return fmt.Errorf("%w: %s vs %s", ErrAssetMismatch, a.asset.Symbol(), b.asset.Symbol())
	}
	return nil
}
