// Package postgres persists feedback records in PostgreSQL via pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/fd1az/multichain-arb/business/feedback/app"
	"github.com/fd1az/multichain-arb/business/feedback/domain"
	"github.com/fd1az/multichain-arb/internal/apperror"
)

const schema = `
CREATE TABLE IF NOT EXISTS feedback_expectations (
	candidate_id        TEXT PRIMARY KEY,
	intent_id           TEXT NOT NULL,
	strategy            TEXT NOT NULL,
	expected_profit_usd NUMERIC NOT NULL,
	notional_usd        NUMERIC NOT NULL,
	confidence          DOUBLE PRECISION NOT NULL,
	tracked_at          TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS feedback_outcomes (
	candidate_id        TEXT PRIMARY KEY REFERENCES feedback_expectations (candidate_id),
	intent_id           TEXT NOT NULL,
	strategy            TEXT NOT NULL,
	expected_profit_usd NUMERIC NOT NULL,
	realized_pnl_usd    NUMERIC NOT NULL,
	error_usd           NUMERIC NOT NULL,
	recorded_at         TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS feedback_outcomes_strategy_idx ON feedback_outcomes (strategy, recorded_at);
`

// pgErrUniqueViolation is the SQLSTATE of a unique constraint violation.
const pgErrUniqueViolation = "23505"

// Store implements app.OutcomeStore.
type Store struct {
	pool *pgxpool.Pool
}

var _ app.OutcomeStore = (*Store)(nil)

// Open connects to dsn and verifies the connection.
func Open(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, apperror.New(apperror.CodeStorageError, apperror.WithCause(err), apperror.WithContext("connect to postgres"))
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, apperror.New(apperror.CodeStorageError, apperror.WithCause(err), apperror.WithContext("ping postgres"))
	}
	return &Store{pool: pool}, nil
}

// Migrate creates the tables.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return apperror.New(apperror.CodeStorageError, apperror.WithCause(err), apperror.WithContext("migrate feedback tables"))
	}
	return nil
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// SaveExpectation keeps the first expectation per candidate.
func (s *Store) SaveExpectation(ctx context.Context, e domain.Expectation) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO feedback_expectations (candidate_id, intent_id, strategy, expected_profit_usd, notional_usd, confidence, tracked_at)
		VALUES ($1, $2, $3, $4::numeric, $5::numeric, $6, $7)
		ON CONFLICT (candidate_id) DO NOTHING`,
		e.CandidateID, e.IntentID, e.Strategy,
		e.ExpectedProfitUSD.String(), e.NotionalUSD.String(), e.Confidence, e.TrackedAt,
	)
	if err != nil {
		return storageError(err, "insert expectation "+e.CandidateID)
	}
	return nil
}

func (s *Store) Expectation(ctx context.Context, candidateID string) (domain.Expectation, error) {
	var (
		e                  domain.Expectation
		expected, notional string
	)
	err := s.pool.QueryRow(ctx, `
		SELECT candidate_id, intent_id, strategy, expected_profit_usd::text, notional_usd::text, confidence, tracked_at
		FROM feedback_expectations WHERE candidate_id = $1`,
		candidateID,
	).Scan(&e.CandidateID, &e.IntentID, &e.Strategy, &expected, &notional, &e.Confidence, &e.TrackedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Expectation{}, app.NotFound(candidateID)
		}
		return domain.Expectation{}, storageError(err, "get expectation "+candidateID)
	}
	if e.ExpectedProfitUSD, err = decimal.NewFromString(expected); err != nil {
		return domain.Expectation{}, storageError(err, "decode expected profit")
	}
	if e.NotionalUSD, err = decimal.NewFromString(notional); err != nil {
		return domain.Expectation{}, storageError(err, "decode notional")
	}
	return e, nil
}

func (s *Store) SaveOutcome(ctx context.Context, o domain.Outcome) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO feedback_outcomes (candidate_id, intent_id, strategy, expected_profit_usd, realized_pnl_usd, error_usd, recorded_at)
		VALUES ($1, $2, $3, $4::numeric, $5::numeric, $6::numeric, $7)`,
		o.CandidateID, o.IntentID, o.Strategy,
		o.ExpectedProfitUSD.String(), o.RealizedPnLUSD.String(), o.ErrorUSD.String(), o.RecordedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgErrUniqueViolation {
			return app.AlreadyRecorded(o.CandidateID)
		}
		return storageError(err, "insert outcome "+o.CandidateID)
	}
	return nil
}

// Outcomes returns every outcome ordered by record time.
func (s *Store) Outcomes(ctx context.Context) ([]domain.Outcome, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT candidate_id, intent_id, strategy, expected_profit_usd::text, realized_pnl_usd::text, error_usd::text, recorded_at
		FROM feedback_outcomes ORDER BY recorded_at`)
	if err != nil {
		return nil, storageError(err, "list outcomes")
	}
	defer rows.Close()

	var out []domain.Outcome
	for rows.Next() {
		var (
			o                          domain.Outcome
			expected, realized, errUSD string
		)
		if err := rows.Scan(&o.CandidateID, &o.IntentID, &o.Strategy, &expected, &realized, &errUSD, &o.RecordedAt); err != nil {
			return nil, storageError(err, "scan outcome")
		}
		o.ExpectedProfitUSD, _ = decimal.NewFromString(expected)
		o.RealizedPnLUSD, _ = decimal.NewFromString(realized)
		o.ErrorUSD, _ = decimal.NewFromString(errUSD)
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError(err, "list outcomes")
	}
	return out, nil
}

func storageError(err error, what string) error {
	return apperror.New(apperror.CodeStorageError, apperror.WithCause(err), apperror.WithContext(what))
}
