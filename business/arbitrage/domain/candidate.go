package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	market "github.com/fd1az/multichain-arb/business/market/domain"
)

// LegKind is the action a leg performs.
type LegKind string

const (
	LegSwap      LegKind = "swap"
	LegBridge    LegKind = "bridge"
	LegFlashLoan LegKind = "flash_loan"
)

// Leg is one step of a candidate path.
type Leg struct {
	Kind     LegKind
	Chain    market.ChainID
	AssetIn  string
	AssetOut string
	Venue    market.Key
	// Notional is the expected input of the leg in AssetIn units. The first
	// leg's notional is the amount the path starts with.
	Notional decimal.Decimal
}

func (l Leg) String() string {
	return string(l.Kind) + " " + l.AssetIn + ">" + l.AssetOut + " @" + l.Venue.String()
}

// Candidate is a path proposed by a detector for one cycle.
type Candidate struct {
	ID              string
	Strategy        string
	Detector        string
	Legs            []Leg
	BlockNumber     uint64
	SnapshotVersion uint64
	DetectedAt      time.Time
}

// NewCandidate stamps a new id and the snapshot it was derived from.
func NewCandidate(strategy, detector string, legs []Leg, snap *market.Snapshot) Candidate {
	c := Candidate{
		ID:       uuid.NewString(),
		Strategy: strategy,
		Detector: detector,
		Legs:     legs,
	}
	if snap != nil {
		c.SnapshotVersion = snap.Version
		c.DetectedAt = snap.TakenAt
		for _, ch := range c.Chains() {
			if h := snap.Head(ch); h > c.BlockNumber {
				c.BlockNumber = h
			}
		}
	}
	return c
}

// Fingerprint identifies the path independent of id and detector: the
// strategy plus the ordered legs.
func (c Candidate) Fingerprint() string {
	var b strings.Builder
	b.WriteString(c.Strategy)
	for _, l := range c.Legs {
		b.WriteByte('|')
		b.WriteString(string(l.Kind))
		b.WriteByte(',')
		b.WriteString(strconv.FormatUint(uint64(l.Chain), 10))
		b.WriteByte(',')
		b.WriteString(l.AssetIn)
		b.WriteByte(',')
		b.WriteString(l.AssetOut)
		b.WriteByte(',')
		b.WriteString(l.Venue.String())
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// Chains returns the distinct chains the legs touch, in path order.
func (c Candidate) Chains() []market.ChainID {
	seen := make(map[market.ChainID]struct{}, len(c.Legs))
	var out []market.ChainID
	for _, l := range c.Legs {
		for _, ch := range legChains(l) {
			if _, ok := seen[ch]; ok {
				continue
			}
			seen[ch] = struct{}{}
			out = append(out, ch)
		}
	}
	return out
}

// Assets returns the distinct symbols the legs touch, in path order.
func (c Candidate) Assets() []string {
	seen := make(map[string]struct{}, len(c.Legs)+1)
	var out []string
	for _, l := range c.Legs {
		for _, s := range []string{l.AssetIn, l.AssetOut} {
			if _, ok := seen[s]; ok || s == "" {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}

// InputAsset returns the symbol the path starts with.
func (c Candidate) InputAsset() string {
	if len(c.Legs) == 0 {
		return ""
	}
	return c.Legs[0].AssetIn
}

// CrossChain reports whether the path touches more than one chain.
func (c Candidate) CrossChain() bool {
	return len(c.Chains()) > 1
}

func legChains(l Leg) []market.ChainID {
	if l.Kind == LegBridge && l.Venue.Type == market.FeatureBridge {
		if from, to, ok := parseRoute(l.Venue.Identity); ok {
			return []market.ChainID{from, to}
		}
	}
	return []market.ChainID{l.Chain}
}

// parseRoute reads the from>to part of a bridge identity.
func parseRoute(identity string) (market.ChainID, market.ChainID, bool) {
	route, _, ok := strings.Cut(identity, ":")
	if !ok {
		return 0, 0, false
	}
	fromS, toS, ok := strings.Cut(route, ">")
	if !ok {
		return 0, 0, false
	}
	from, err := strconv.ParseUint(fromS, 10, 64)
	if err != nil {
		return 0, 0, false
	}
	to, err := strconv.ParseUint(toS, 10, 64)
	if err != nil {
		return 0, 0, false
	}
	return market.ChainID(from), market.ChainID(to), true
}

// BridgeRoute returns the source and destination of a bridge leg.
func (l Leg) BridgeRoute() (from, to market.ChainID, ok bool) {
	if l.Kind != LegBridge {
		return 0, 0, false
	}
	return parseRoute(l.Venue.Identity)
}
