package binance

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fd1az/multichain-arb/internal/logger"
)

func TestSnapshot_Seed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != bookTickerPath || r.URL.Query().Get("symbols") != `["ETHUSDT","DOGEXYZ"]` {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`[
			{"symbol":"ETHUSDT","bidPrice":"2999.00","bidQty":"1","askPrice":"3001.00","askQty":"1"},
			{"symbol":"DOGEXYZ","bidPrice":"1","bidQty":"1","askPrice":"1","askQty":"1"}
		]`))
	}))
	defer srv.Close()

	snap, err := NewSnapshot(srv.URL, []string{"ethusdt", "DOGEXYZ"}, logger.New(io.Discard, logger.LevelError, "test", nil))
	if err != nil {
		t.Fatal(err)
	}
	snap.now = func() time.Time { return time.Unix(1_700_000_000, 0) }

	sink := &tickerSink{}
	n, err := snap.Seed(context.Background(), sink)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 || len(sink.tickers) != 1 {
		t.Fatalf("seeded %d tickers, sink has %d, want 1", n, len(sink.tickers))
	}
	if got := sink.tickers[0]; got.Base != "ETH" || !got.Mid().Equal(decimal.NewFromInt(3000)) {
		t.Errorf("ticker = %+v", got)
	}
}

func TestSnapshot_SeedServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	defer srv.Close()

	snap, err := NewSnapshot(srv.URL, []string{"ETHUSDT"}, logger.New(io.Discard, logger.LevelError, "test", nil))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := snap.Seed(context.Background(), &tickerSink{}); err == nil {
		t.Error("expected error for 418 response")
	}
}
