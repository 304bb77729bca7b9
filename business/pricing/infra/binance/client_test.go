package binance

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fd1az/multichain-arb/business/pricing/domain"
	"github.com/fd1az/multichain-arb/internal/logger"
)

type tickerSink struct {
	mu      sync.Mutex
	tickers []domain.Ticker
}

func (s *tickerSink) Update(_ context.Context, t domain.Ticker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tickers = append(s.tickers, t)
}

func newTestStream(t *testing.T, symbols ...string) *Stream {
	t.Helper()
	s, err := NewStream(DefaultStreamConfig(symbols), logger.New(io.Discard, logger.LevelError, "test", nil))
	if err != nil {
		t.Fatal(err)
	}
	s.now = func() time.Time { return time.Unix(1_700_000_000, 0) }
	return s
}

func TestStream_HandleBookTicker(t *testing.T) {
	s := newTestStream(t, "ETHUSDT")
	sink := &tickerSink{}

	msg := `{"stream":"ethusdt@bookTicker","data":{"u":400900217,"s":"ETHUSDT","b":"2999.50","B":"31.21","a":"3000.50","A":"40.66"}}`
	s.handleMessage(context.Background(), []byte(msg), sink)

	if len(sink.tickers) != 1 {
		t.Fatalf("tickers = %d, want 1", len(sink.tickers))
	}
	got := sink.tickers[0]
	if got.Base != "ETH" || got.Quote != "USDT" || got.Source != "binance" {
		t.Errorf("ticker = %+v", got)
	}
	if !got.Mid().Equal(decimal.NewFromInt(3000)) {
		t.Errorf("mid = %s, want 3000", got.Mid())
	}
	if !got.ObservedAt.Equal(time.Unix(1_700_000_000, 0)) {
		t.Errorf("observed at = %v", got.ObservedAt)
	}
}

func TestStream_IgnoresControlAndBadFrames(t *testing.T) {
	s := newTestStream(t, "ETHUSDT")
	sink := &tickerSink{}

	for _, msg := range []string{
		`{"result":null,"id":1}`,
		`not json`,
		`{"stream":"ethusdt@aggTrade","data":{}}`,
		`{"stream":"ethbtc@bookTicker","data":{"s":"ETHBTC","b":"0.05","a":"0.051"}}`,
		`{"stream":"ethusdt@bookTicker","data":{"s":"ETHUSDT","b":"x","a":"1"}}`,
	} {
		s.handleMessage(context.Background(), []byte(msg), sink)
	}
	if len(sink.tickers) != 0 {
		t.Errorf("tickers = %v, want none", sink.tickers)
	}
}

func TestStream_URL(t *testing.T) {
	s := newTestStream(t, "ETHUSDT", "BTCUSDT")
	u, err := s.streamURL()
	if err != nil {
		t.Fatal(err)
	}
	want := "wss://stream.binance.com:9443/stream?streams=ethusdt@bookTicker/btcusdt@bookTicker"
	if u != want {
		t.Errorf("url = %s, want %s", u, want)
	}
}

func TestNewStream_RequiresSymbols(t *testing.T) {
	if _, err := NewStream(DefaultStreamConfig(nil), logger.New(io.Discard, logger.LevelError, "test", nil)); err == nil {
		t.Error("expected error without symbols")
	}
}
