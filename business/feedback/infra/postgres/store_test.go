package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/fd1az/multichain-arb/business/feedback/domain"
	"github.com/fd1az/multichain-arb/internal/apperror"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}
	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase("feedback"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start postgres container")
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	store, err := Open(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(store.Close)
	require.NoError(t, store.Migrate(ctx))
	return store
}

func TestStore_RoundTrip(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	at := time.Unix(1_700_000_000, 0).UTC()

	exp := domain.Expectation{
		CandidateID:       "c1",
		IntentID:          "i1",
		Strategy:          "arb",
		ExpectedProfitUSD: decimal.RequireFromString("81.25"),
		NotionalUSD:       decimal.RequireFromString("1000"),
		Confidence:        0.75,
		TrackedAt:         at,
	}
	require.NoError(t, store.SaveExpectation(ctx, exp))
	// a second track of the same candidate is ignored
	require.NoError(t, store.SaveExpectation(ctx, exp))

	got, err := store.Expectation(ctx, "c1")
	require.NoError(t, err)
	require.True(t, got.ExpectedProfitUSD.Equal(exp.ExpectedProfitUSD), "expected profit %s", got.ExpectedProfitUSD)
	require.Equal(t, 0.75, got.Confidence)
	require.True(t, got.TrackedAt.Equal(at))

	o := domain.NewOutcome(got, decimal.RequireFromString("70.5"), at.Add(time.Minute))
	require.NoError(t, store.SaveOutcome(ctx, o))

	err = store.SaveOutcome(ctx, o)
	require.True(t, apperror.HasCode(err, apperror.CodeOutcomeAlreadyRecorded), "err = %v", err)

	outcomes, err := store.Outcomes(ctx)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	require.True(t, outcomes[0].ErrorUSD.Equal(decimal.RequireFromString("-10.75")), "error = %s", outcomes[0].ErrorUSD)
}

func TestStore_ExpectationNotFound(t *testing.T) {
	store := setupStore(t)
	_, err := store.Expectation(context.Background(), "missing")
	require.True(t, apperror.HasCode(err, apperror.CodeOutcomeNotFound), "err = %v", err)
}
