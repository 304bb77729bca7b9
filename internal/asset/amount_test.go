package asset_test

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/fd1az/multichain-arb/internal/asset"
)

func token(t *testing.T, symbol string, decimals uint8) *asset.Asset {
	t.Helper()
	a, err := asset.New(asset.TokenID(1, common.HexToAddress("0x01")), symbol, "", decimals)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a
}

func TestParseRaw(t *testing.T) {
	usdc := token(t, "USDC", 6)

	tests := []struct {
		raw     string
		want    string
		wantErr bool
	}{
		{raw: "1500000", want: "1.5"},
		{raw: "0", want: "0"},
		{raw: "123456789012345678901234567890", want: "123456789012345678901234.56789"},
		{raw: "-1", wantErr: true},
		{raw: "1e6", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := asset.ParseRaw(usdc, tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseRaw(%q) expected error", tt.raw)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseRaw(%q): %v", tt.raw, err)
			}
			if !got.Decimal().Equal(decimal.RequireFromString(tt.want)) {
				t.Errorf("ParseRaw(%q) = %s, want %s", tt.raw, got.Decimal(), tt.want)
			}
		})
	}
}

func TestFromDecimal_RejectsDust(t *testing.T) {
	usdc := token(t, "USDC", 6)

	if _, err := asset.FromDecimal(usdc, decimal.RequireFromString("1.0000001")); !errors.Is(err, asset.ErrTooManyDecimals) {
		t.Errorf("err = %v, want ErrTooManyDecimals", err)
	}

	a, err := asset.FromDecimal(usdc, decimal.RequireFromString("2.5"))
	if err != nil {
		t.Fatalf("FromDecimal: %v", err)
	}
	if a.Raw().Cmp(big.NewInt(2_500_000)) != 0 {
		t.Errorf("raw = %s, want 2500000", a.Raw())
	}
	if a.String() != "2.5 USDC" {
		t.Errorf("String = %q", a.String())
	}
}

func TestAmount_Arithmetic(t *testing.T) {
	weth := token(t, "WETH", 18)
	one, _ := asset.NewAmount(weth, big.NewInt(1e18))
	two, _ := asset.NewAmount(weth, big.NewInt(2e18))

	sum, err := one.Add(two)
	if err != nil || !sum.Decimal().Equal(decimal.NewFromInt(3)) {
		t.Errorf("Add = %s, %v", sum, err)
	}

	if _, err := one.Sub(two); !errors.Is(err, asset.ErrNegativeAmount) {
		t.Errorf("Sub below zero err = %v", err)
	}

	if c, _ := two.Cmp(one); c != 1 {
		t.Errorf("Cmp = %d, want 1", c)
	}
}

func TestAmount_DifferentAssets(t *testing.T) {
	reg := asset.DefaultRegistry()
	wethEth, _ := reg.BySymbol(asset.ChainEthereum, "WETH")
	wethArb, _ := reg.BySymbol(asset.ChainArbitrum, "WETH")

	a, _ := asset.NewAmount(wethEth, big.NewInt(1))
	b, _ := asset.NewAmount(wethArb, big.NewInt(1))

	if _, err := a.Add(b); !errors.Is(err, asset.ErrAssetMismatch) {
		t.Errorf("err = %v, want ErrAssetMismatch for same symbol on different chains", err)
	}
}
