package advisory

import (
	"context"
	"sort"
	"sync"

	"decleanup-backend/core/dmrv"
)

// MemoryStore holds advisories and decisions in memory. The single RWMutex
// keeps advisory and decision maps consistent when a decision arrives while
// the pending-review list is being read. Used in development and tests.
type MemoryStore struct {
	mu         sync.RWMutex
	advisories map[uint64]dmrv.Advisory
	decisions  map[uint64][]VerifierDecision
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		advisories: make(map[uint64]dmrv.Advisory),
		decisions:  make(map[uint64][]VerifierDecision),
	}
}

func (s *MemoryStore) SaveAdvisory(ctx context.Context, adv dmrv.Advisory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advisories[adv.SubmissionID] = adv
	return nil
}

func (s *MemoryStore) GetAdvisory(ctx context.Context, submissionID uint64) (dmrv.Advisory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	adv, ok := s.advisories[submissionID]
	if !ok {
		return dmrv.Advisory{}, ErrAdvisoryNotFound
	}
	return adv, nil
}

func (s *MemoryStore) ListPendingReview(ctx context.Context, limit int) ([]dmrv.Advisory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var pending []dmrv.Advisory
	for id, adv := range s.advisories {
		if adv.Decision != dmrv.ManualReview {
			continue
		}
		if len(s.decisions[id]) > 0 {
			continue
		}
		pending = append(pending, adv)
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})
	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}
	return pending, nil
}

func (s *MemoryStore) RecordDecision(ctx context.Context, dec VerifierDecision) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decisions[dec.SubmissionID] = append(s.decisions[dec.SubmissionID], dec)
	return nil
}

func (s *MemoryStore) ListDecisions(ctx context.Context, submissionID uint64) ([]VerifierDecision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]VerifierDecision, len(s.decisions[submissionID]))
	copy(out, s.decisions[submissionID])
	return out, nil
}

func (s *MemoryStore) Close() {}
