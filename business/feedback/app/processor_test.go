package app_test

import (
	"context"
	"io"
	"testing"

	"github.com/shopspring/decimal"

	arbitrage "github.com/fd1az/multichain-arb/business/arbitrage/domain"
	"github.com/fd1az/multichain-arb/business/feedback/app"
	"github.com/fd1az/multichain-arb/business/feedback/infra/memory"
	"github.com/fd1az/multichain-arb/internal/apperror"
	"github.com/fd1az/multichain-arb/internal/logger"
)

func newProcessor() (*app.Processor, *memory.Store) {
	store := memory.New()
	return app.NewProcessor(store, logger.New(io.Discard, logger.LevelError, "test", nil)), store
}

func intent(candidate, strategy, expected string) arbitrage.TradeIntent {
	return arbitrage.TradeIntent{
		ID:                "intent-" + candidate,
		CandidateID:       candidate,
		Strategy:          strategy,
		ExpectedProfitUSD: decimal.RequireFromString(expected),
	}
}

func TestProcessor_RecordOutcome(t *testing.T) {
	ctx := context.Background()
	p, _ := newProcessor()

	if err := p.Track(ctx, intent("c1", "arb", "100")); err != nil {
		t.Fatal(err)
	}
	if err := p.Track(ctx, intent("c2", "arb", "50")); err != nil {
		t.Fatal(err)
	}

	o, err := p.RecordOutcome(ctx, "c1", decimal.RequireFromString("90"))
	if err != nil {
		t.Fatal(err)
	}
	if !o.ErrorUSD.Equal(decimal.NewFromInt(-10)) || o.IntentID != "intent-c1" {
		t.Errorf("outcome = %+v", o)
	}
	if _, err := p.RecordOutcome(ctx, "c2", decimal.RequireFromString("-20")); err != nil {
		t.Fatal(err)
	}

	c, ok := p.Stats("arb")
	if !ok {
		t.Fatal("no calibration for arb")
	}
	if c.Count != 2 || c.Wins != 1 || c.HitRate != 0.5 {
		t.Errorf("calibration = %+v", c)
	}
	// errors: -10 and -70
	if !c.MeanErrorUSD.Equal(decimal.NewFromInt(-40)) {
		t.Errorf("mean error = %s, want -40", c.MeanErrorUSD)
	}
}

func TestProcessor_Errors(t *testing.T) {
	ctx := context.Background()
	p, _ := newProcessor()
	_ = p.Track(ctx, intent("c1", "arb", "10"))

	tests := []struct {
		name      string
		candidate string
		want      apperror.Code
	}{
		{"unknown candidate", "nope", apperror.CodeOutcomeNotFound},
		{"second report", "c1", apperror.CodeOutcomeAlreadyRecorded},
	}
	if _, err := p.RecordOutcome(ctx, "c1", decimal.NewFromInt(5)); err != nil {
		t.Fatal(err)
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.RecordOutcome(ctx, tt.candidate, decimal.NewFromInt(1))
			if !apperror.HasCode(err, tt.want) {
				t.Errorf("err = %v, want %s", err, tt.want)
			}
		})
	}

	c, _ := p.Stats("arb")
	if c.Count != 1 {
		t.Errorf("a rejected report changed the calibration: %+v", c)
	}
}

func TestProcessor_Load(t *testing.T) {
	ctx := context.Background()
	p, store := newProcessor()
	_ = p.Track(ctx, intent("c1", "a", "10"))
	_ = p.Track(ctx, intent("c2", "b", "10"))
	_, _ = p.RecordOutcome(ctx, "c1", decimal.NewFromInt(12))
	_, _ = p.RecordOutcome(ctx, "c2", decimal.NewFromInt(8))

	restarted := app.NewProcessor(store, logger.New(io.Discard, logger.LevelError, "test", nil))
	if err := restarted.Load(ctx); err != nil {
		t.Fatal(err)
	}
	names := restarted.Strategies()
	if len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Errorf("strategies = %v", names)
	}
	if c, _ := restarted.Stats("a"); c.Wins != 1 || !c.MeanErrorUSD.Equal(decimal.NewFromInt(2)) {
		t.Errorf("a = %+v", c)
	}
}

func TestProcessor_StatsUnknown(t *testing.T) {
	p, _ := newProcessor()
	if c, ok := p.Stats("ghost"); ok || c.Count != 0 {
		t.Errorf("Stats(ghost) = %+v, %v", c, ok)
	}
}
