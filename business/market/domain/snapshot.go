package domain

import (
	"sort"
	"time"
)

// Entry is a committed feature and the local time it was stored.
type Entry struct {
	Feature    Feature
	ObservedAt time.Time
}

// Snapshot is an immutable view of market state at one version. Freshness is
// judged against TakenAt so every read within a cycle agrees.
type Snapshot struct {
	Version uint64
	TakenAt time.Time

	entries map[Key]Entry
	heads   map[ChainID]uint64
	policy  FreshnessPolicy
}

// NewSnapshot wraps entries. The map must not be modified afterwards.
func NewSnapshot(version uint64, takenAt time.Time, entries map[Key]Entry, policy FreshnessPolicy) *Snapshot {
	heads := make(map[ChainID]uint64)
	for _, e := range entries {
		if e.Feature.BlockNumber > heads[e.Feature.Chain] {
			heads[e.Feature.Chain] = e.Feature.BlockNumber
		}
	}
	return &Snapshot{Version: version, TakenAt: takenAt, entries: entries, heads: heads, policy: policy}
}

// At returns a copy of s with a new TakenAt, sharing the entries.
func (s *Snapshot) At(takenAt time.Time) *Snapshot {
	cp := *s
	cp.TakenAt = takenAt
	return &cp
}

// Len returns the number of entries, stale ones included.
func (s *Snapshot) Len() int { return len(s.entries) }

// Lookup returns the entry at k regardless of age.
func (s *Snapshot) Lookup(k Key) (Entry, bool) {
	e, ok := s.entries[k]
	return e, ok
}

// IsFresh reports whether e is younger than its chain's stale threshold.
func (s *Snapshot) IsFresh(e Entry) bool {
	return s.TakenAt.Sub(e.ObservedAt) < s.staleAfter(e.Feature.Chain)
}

// Fresh returns the entry at k. Stale entries are reported absent.
func (s *Snapshot) Fresh(k Key) (Entry, bool) {
	e, ok := s.entries[k]
	if !ok || !s.IsFresh(e) {
		return Entry{}, false
	}
	return e, true
}

// FreshOfType returns the fresh entries of type t, ordered by key.
func (s *Snapshot) FreshOfType(t FeatureType) []Entry {
	var out []Entry
	for k, e := range s.entries {
		if k.Type == t && s.IsFresh(e) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Feature.Key().String() < out[j].Feature.Key().String()
	})
	return out
}

// Head returns the highest block number stored for chain.
func (s *Snapshot) Head(chain ChainID) uint64 { return s.heads[chain] }

// Chains returns the chains present in the snapshot, ascending.
func (s *Snapshot) Chains() []ChainID {
	out := make([]ChainID, 0, len(s.heads))
	for c := range s.heads {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Staleness returns the age of the oldest of entries at TakenAt.
func (s *Snapshot) Staleness(entries ...Entry) time.Duration {
	var worst time.Duration
	for _, e := range entries {
		if age := s.TakenAt.Sub(e.ObservedAt); age > worst {
			worst = age
		}
	}
	return worst
}

func (s *Snapshot) staleAfter(chain ChainID) time.Duration {
	if s.policy == nil {
		return DefaultStaleAfter
	}
	return s.policy.StaleAfter(chain)
}
