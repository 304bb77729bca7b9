package clickhouse

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/fd1az/multichain-arb/business/arbitrage/domain"
	market "github.com/fd1az/multichain-arb/business/market/domain"
	"github.com/fd1az/multichain-arb/internal/logger"
)

func setupSink(t *testing.T, batch int) *Sink {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "clickhouse/clickhouse-server:24.1-alpine",
			ExposedPorts: []string{"9000/tcp"},
			WaitingFor: wait.ForAll(
				wait.ForLog("Ready for connections").WithStartupTimeout(60*time.Second),
				wait.ForListeningPort("9000/tcp"),
			),
			Env: map[string]string{"CLICKHOUSE_DB": "test"},
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "9000")
	require.NoError(t, err)

	sink, err := Open(ctx, Config{
		Addr:      host + ":" + port.Port(),
		Database:  "test",
		Username:  "default",
		BatchSize: batch,
	}, logger.New(io.Discard, logger.LevelError, "test", nil))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sink.Close() })

	require.NoError(t, sink.Migrate(ctx))
	return sink
}

func evaluation(id string, rejected bool) domain.EvaluationResult {
	ev := domain.EvaluationResult{
		Candidate: domain.Candidate{
			ID:       id,
			Strategy: "arb",
			Detector: "triangular:arb",
			Legs: []domain.Leg{{
				Kind: domain.LegSwap, Chain: market.ChainEthereum, AssetIn: "USDC", AssetOut: "WETH",
				Venue: market.Key{Chain: market.ChainEthereum, Type: market.FeatureAMM, Identity: "0x01"},
			}},
		},
		NotionalUSD:  decimal.RequireFromString("1000"),
		NetProfitUSD: decimal.RequireFromString("81.25"),
		Staleness:    3 * time.Second,
		Confidence:   1,
		EvaluatedAt:  time.Unix(1_700_000_000, 0),
	}
	if rejected {
		ev.Reject(domain.RejectStaleData, "insufficient data")
	}
	return ev
}

func TestSink_BatchesAndWrites(t *testing.T) {
	sink := setupSink(t, 2)
	ctx := context.Background()

	require.NoError(t, sink.Append(ctx, 1, []domain.EvaluationResult{evaluation("a", false)}))
	assert.Equal(t, 1, sink.Pending(), "below batch size rows stay buffered")

	require.NoError(t, sink.Append(ctx, 1, []domain.EvaluationResult{evaluation("b", true)}))
	assert.Equal(t, 0, sink.Pending())

	var total, rejected uint64
	require.NoError(t, sink.conn.QueryRow(ctx, "SELECT count(), countIf(rejected) FROM evaluations WHERE cycle = 1").Scan(&total, &rejected))
	assert.Equal(t, uint64(2), total)
	assert.Equal(t, uint64(1), rejected)

	var net decimal.Decimal
	var staleness uint64
	require.NoError(t, sink.conn.QueryRow(ctx, "SELECT net_profit_usd, staleness_ms FROM evaluations WHERE candidate_id = 'a'").Scan(&net, &staleness))
	assert.True(t, net.Equal(decimal.RequireFromString("81.25")), "net = %s", net)
	assert.Equal(t, uint64(3000), staleness)
}

func TestNewRow(t *testing.T) {
	r := NewRow(7, evaluation("a", true))
	if r.Cycle != 7 || !r.Rejected || r.Reason != "stale_data" || r.Chains != "1" || r.Legs != 1 {
		t.Errorf("row = %+v", r)
	}
	if r.StalenessMs != 3000 {
		t.Errorf("staleness = %d", r.StalenessMs)
	}
}
