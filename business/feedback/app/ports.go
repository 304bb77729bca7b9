// Package app tracks published intents and calibrates strategies against
// the outcomes reported for them.
package app

import (
	"context"

	"github.com/fd1az/multichain-arb/business/feedback/domain"
)

// OutcomeStore persists expectations and outcomes.
//
// Expectation returns CodeOutcomeNotFound for an untracked candidate and
// SaveOutcome returns CodeOutcomeAlreadyRecorded for a second outcome.
type OutcomeStore interface {
	SaveExpectation(ctx context.Context, e domain.Expectation) error
	Expectation(ctx context.Context, candidateID string) (domain.Expectation, error)
	SaveOutcome(ctx context.Context, o domain.Outcome) error
	Outcomes(ctx context.Context) ([]domain.Outcome, error)
}
