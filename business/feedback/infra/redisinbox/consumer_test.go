package redisinbox

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fd1az/multichain-arb/business/feedback/domain"
	"github.com/fd1az/multichain-arb/internal/bus"
	"github.com/fd1az/multichain-arb/internal/logger"
)

type recorder struct {
	mu   sync.Mutex
	seen map[string]decimal.Decimal
}

func (r *recorder) RecordOutcome(_ context.Context, id string, pnl decimal.Decimal) (domain.Outcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen[id] = pnl
	return domain.Outcome{CandidateID: id, RealizedPnLUSD: pnl}, nil
}

func (r *recorder) get(id string) (decimal.Decimal, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.seen[id]
	return d, ok
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    string
		wantErr bool
	}{
		{"number", `{"candidate_id":"c1","realized_pnl_usd":12.5}`, "12.5", false},
		{"string", `{"candidate_id":"c1","realized_pnl_usd":"-3.25"}`, "-3.25", false},
		{"missing id", `{"realized_pnl_usd":1}`, "", true},
		{"garbage", `nope`, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Decode([]byte(tt.payload))
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && !m.RealizedPnLUSD.Equal(decimal.RequireFromString(tt.want)) {
				t.Errorf("pnl = %s, want %s", m.RealizedPnLUSD, tt.want)
			}
		})
	}
}

func TestConsumer_Run(t *testing.T) {
	b := bus.NewMemory()
	rec := &recorder{seen: make(map[string]decimal.Decimal)}
	c := New(b, "outcomes", rec, logger.New(io.Discard, logger.LevelError, "test", nil))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	// wait for the subscription to register
	deadline := time.Now().Add(2 * time.Second)
	for {
		_ = b.Publish(ctx, "outcomes", []byte(`{"candidate_id":"c1","realized_pnl_usd":"40"}`))
		if _, ok := rec.get("c1"); ok || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	_ = b.Publish(ctx, "outcomes", []byte(`{}`))
	_ = b.Publish(ctx, "outcomes", []byte(`{"candidate_id":"c2","realized_pnl_usd":-5}`))

	deadline = time.Now().Add(2 * time.Second)
	for {
		if _, ok := rec.get("c2"); ok || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	<-done

	if got, ok := rec.get("c1"); !ok || !got.Equal(decimal.NewFromInt(40)) {
		t.Errorf("c1 = %s %v", got, ok)
	}
	if got, ok := rec.get("c2"); !ok || !got.Equal(decimal.NewFromInt(-5)) {
		t.Errorf("c2 = %s %v", got, ok)
	}
}
