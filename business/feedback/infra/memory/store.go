// Package memory keeps feedback records in process memory.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/fd1az/multichain-arb/business/feedback/app"
	"github.com/fd1az/multichain-arb/business/feedback/domain"
)

// Store implements app.OutcomeStore.
type Store struct {
	mu           sync.RWMutex
	expectations map[string]domain.Expectation
	outcomes     map[string]domain.Outcome
}

var _ app.OutcomeStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		expectations: make(map[string]domain.Expectation),
		outcomes:     make(map[string]domain.Outcome),
	}
}

// SaveExpectation keeps the first expectation per candidate.
func (s *Store) SaveExpectation(_ context.Context, e domain.Expectation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.expectations[e.CandidateID]; !ok {
		s.expectations[e.CandidateID] = e
	}
	return nil
}

func (s *Store) Expectation(_ context.Context, candidateID string) (domain.Expectation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.expectations[candidateID]
	if !ok {
		return domain.Expectation{}, app.NotFound(candidateID)
	}
	return e, nil
}

func (s *Store) SaveOutcome(_ context.Context, o domain.Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.outcomes[o.CandidateID]; ok {
		return app.AlreadyRecorded(o.CandidateID)
	}
	s.outcomes[o.CandidateID] = o
	return nil
}

// Outcomes returns every outcome ordered by record time.
func (s *Store) Outcomes(_ context.Context) ([]domain.Outcome, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Outcome, 0, len(s.outcomes))
	for _, o := range s.outcomes {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RecordedAt.Before(out[j].RecordedAt) })
	return out, nil
}
