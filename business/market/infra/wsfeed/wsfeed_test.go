package wsfeed

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/fd1az/multichain-arb/business/market/domain"
	"github.com/fd1az/multichain-arb/internal/logger"
	"github.com/fd1az/multichain-arb/internal/wsconn"
)

type recordingSink struct {
	mu       sync.Mutex
	features []domain.Feature
	got      chan struct{}
}

func (r *recordingSink) Ingest(_ context.Context, _ string, f domain.Feature) {
	r.mu.Lock()
	r.features = append(r.features, f)
	r.mu.Unlock()
	select {
	case r.got <- struct{}{}:
	default:
	}
}

func (r *recordingSink) Malformed(context.Context, string, error) {}

func TestSource_SubscribesThenIngests(t *testing.T) {
	subscribed := make(chan string, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")

		ctx := context.Background()
		_, msg, err := conn.Read(ctx)
		if err != nil {
			return
		}
		subscribed <- string(msg)

		frame := `{"id":"g","chain_id":10,"block_number":99,"type":"gas","gas":{"price_gwei":"0.002"}}`
		_ = conn.Write(ctx, websocket.MessageText, []byte(frame))
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	cfg := wsconn.DefaultConfig("ws"+strings.TrimPrefix(server.URL, "http"), "test")
	cfg.PingInterval = 0
	cfg.MaxReconnects = 1

	src := New(cfg, []byte(`{"op":"subscribe","topics":["gas"]}`), logger.New(io.Discard, logger.LevelError, "test", nil))
	sink := &recordingSink{got: make(chan struct{}, 1)}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go func() { _ = src.Run(ctx, sink) }()

	select {
	case msg := <-subscribed:
		if !strings.Contains(msg, `"subscribe"`) {
			t.Errorf("subscribe message = %s", msg)
		}
	case <-ctx.Done():
		t.Fatal("no subscribe message")
	}

	select {
	case <-sink.got:
	case <-ctx.Done():
		t.Fatal("no feature ingested")
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if sink.features[0].Chain != domain.ChainOptimism || sink.features[0].BlockNumber != 99 {
		t.Errorf("feature = %+v", sink.features[0])
	}
}
