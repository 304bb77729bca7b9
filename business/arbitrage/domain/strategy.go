package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	market "github.com/fd1az/multichain-arb/business/market/domain"
	"github.com/fd1az/multichain-arb/internal/apperror"
)

// RiskLimits bound the shape of an acceptable path.
type RiskLimits struct {
	MaxLegs           int
	MaxChains         int
	BlacklistedAssets map[string]struct{}
}

// StrategyConfig is a validated trading policy.
type StrategyConfig struct {
	Name           string
	Enabled        bool
	MinProfitUSD   decimal.Decimal
	MinProfitBps   decimal.Decimal
	MaxPositionUSD decimal.Decimal
	// OwnCapitalUSD is the capital available without borrowing. Zero means
	// no limit and disables flash loan planning.
	OwnCapitalUSD  decimal.Decimal
	ApprovedAssets map[string]struct{} // empty means any asset
	ApprovedChains map[market.ChainID]struct{}
	Risk           RiskLimits
	MaxPathLatency time.Duration // zero means unbounded
	MinConfidence  float64
}

// SymbolSet builds an upper-cased set.
func SymbolSet(symbols ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			set[s] = struct{}{}
		}
	}
	return set
}

// ChainSet builds a chain id set.
func ChainSet(ids ...uint64) map[market.ChainID]struct{} {
	set := make(map[market.ChainID]struct{}, len(ids))
	for _, id := range ids {
		set[market.ChainID(id)] = struct{}{}
	}
	return set
}

// Validate checks the policy is internally consistent.
func (s StrategyConfig) Validate() error {
	bad := func(msg string) error {
		return apperror.New(apperror.CodeInvalidStrategy, apperror.WithContext("strategy "+s.Name+": "+msg))
	}
	switch {
	case s.Name == "":
		return bad("name is required")
	case s.MinProfitUSD.IsNegative() || s.MinProfitBps.IsNegative():
		return bad("minimum profit must not be negative")
	case !s.MaxPositionUSD.IsPositive():
		return bad("max position must be positive")
	case s.OwnCapitalUSD.IsNegative():
		return bad("own capital must not be negative")
	case s.Risk.MaxLegs < 0 || s.Risk.MaxChains < 0:
		return bad("risk limits must not be negative")
	case s.MaxPathLatency < 0:
		return bad("max path latency must not be negative")
	case s.MinConfidence < 0 || s.MinConfidence > 1:
		return bad("min confidence must be within [0, 1]")
	}
	for a := range s.ApprovedAssets {
		if _, ok := s.Risk.BlacklistedAssets[a]; ok {
			return bad("asset " + a + " is both approved and blacklisted")
		}
	}
	return nil
}

// AssetApproved reports whether any of the given names of one asset is on
// the allow-list. An empty allow-list approves everything.
func (s StrategyConfig) AssetApproved(names ...string) bool {
	if len(s.ApprovedAssets) == 0 {
		return true
	}
	for _, n := range names {
		if _, ok := s.ApprovedAssets[strings.ToUpper(n)]; ok {
			return true
		}
	}
	return false
}

// AssetBlacklisted reports whether any of the given names is blacklisted.
func (s StrategyConfig) AssetBlacklisted(names ...string) bool {
	for _, n := range names {
		if _, ok := s.Risk.BlacklistedAssets[strings.ToUpper(n)]; ok {
			return true
		}
	}
	return false
}

// ChainApproved reports whether chain may be used. An empty set approves
// every chain.
func (s StrategyConfig) ChainApproved(chain market.ChainID) bool {
	if len(s.ApprovedChains) == 0 {
		return true
	}
	_, ok := s.ApprovedChains[chain]
	return ok
}

// Tradable combines the allow-list and the blacklist.
func (s StrategyConfig) Tradable(names ...string) bool {
	return s.AssetApproved(names...) && !s.AssetBlacklisted(names...)
}
