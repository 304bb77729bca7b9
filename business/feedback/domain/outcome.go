// Package domain holds the feedback types: what a published intent promised
// and what it realized.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Expectation is the expected result of a published intent.
type Expectation struct {
	CandidateID       string
	IntentID          string
	Strategy          string
	ExpectedProfitUSD decimal.Decimal
	NotionalUSD       decimal.Decimal
	Confidence        float64
	TrackedAt         time.Time
}

// Outcome is a realized result reported against an expectation.
type Outcome struct {
	CandidateID       string
	IntentID          string
	Strategy          string
	ExpectedProfitUSD decimal.Decimal
	RealizedPnLUSD    decimal.Decimal
	// ErrorUSD is realized minus expected.
	ErrorUSD   decimal.Decimal
	RecordedAt time.Time
}

// NewOutcome settles e with the realized PnL.
func NewOutcome(e Expectation, realized decimal.Decimal, at time.Time) Outcome {
	return Outcome{
		CandidateID:       e.CandidateID,
		IntentID:          e.IntentID,
		Strategy:          e.Strategy,
		ExpectedProfitUSD: e.ExpectedProfitUSD,
		RealizedPnLUSD:    realized,
		ErrorUSD:          realized.Sub(e.ExpectedProfitUSD),
		RecordedAt:        at,
	}
}

// Win reports whether the trade made money.
func (o Outcome) Win() bool {
	return o.RealizedPnLUSD.IsPositive()
}

// Calibration aggregates outcomes of one strategy.
type Calibration struct {
	Strategy     string
	Count        int
	Wins         int
	MeanErrorUSD decimal.Decimal
	HitRate      float64

	sumError decimal.Decimal
}

// Add folds o into the aggregate.
func (c *Calibration) Add(o Outcome) {
	c.Count++
	if o.Win() {
		c.Wins++
	}
	c.sumError = c.sumError.Add(o.ErrorUSD)
	c.MeanErrorUSD = c.sumError.Div(decimal.NewFromInt(int64(c.Count)))
	c.HitRate = float64(c.Wins) / float64(c.Count)
}
