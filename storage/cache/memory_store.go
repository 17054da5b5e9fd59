package cache

import (
	"context"
	"sync"
)

// MemoryStore keeps the wallet cache in process memory. It backs tests and
// single-instance deployments without Redis.
type MemoryStore struct {
	mu        sync.RWMutex
	pending   map[string]uint64
	claimed   map[string]map[uint64]struct{}
	geo       map[string]Geolocation
	dismissed map[string]map[string]struct{}
}

// NewMemoryStore builds an empty in-memory wallet cache.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		pending:   make(map[string]uint64),
		claimed:   make(map[string]map[uint64]struct{}),
		geo:       make(map[string]Geolocation),
		dismissed: make(map[string]map[string]struct{}),
	}
}

func (s *MemoryStore) PendingSubmissionID(ctx context.Context, owner string) (uint64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.pending[ownerKey(owner)]
	return id, ok, nil
}

func (s *MemoryStore) SetPendingSubmissionID(ctx context.Context, owner string, id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[ownerKey(owner)] = id
	return nil
}

func (s *MemoryStore) ClearPendingSubmissionID(ctx context.Context, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, ownerKey(owner))
	return nil
}

func (s *MemoryStore) IsClaimed(ctx context.Context, owner string, id uint64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set, ok := s.claimed[ownerKey(owner)]
	if !ok {
		return false, nil
	}
	_, claimed := set[id]
	return claimed, nil
}

func (s *MemoryStore) AddClaimed(ctx context.Context, owner string, id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := ownerKey(owner)
	if s.claimed[key] == nil {
		s.claimed[key] = make(map[uint64]struct{})
	}
	s.claimed[key][id] = struct{}{}
	return nil
}

func (s *MemoryStore) RemoveClaimed(ctx context.Context, owner string, id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if set, ok := s.claimed[ownerKey(owner)]; ok {
		delete(set, id)
	}
	return nil
}

// ClaimedSubmissionIDs lists every id this client believes it has claimed.
func (s *MemoryStore) ClaimedSubmissionIDs(ctx context.Context, owner string) ([]uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set := s.claimed[ownerKey(owner)]
	ids := make([]uint64, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *MemoryStore) SetGeolocation(ctx context.Context, owner string, loc Geolocation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.geo[ownerKey(owner)] = loc
	return nil
}

func (s *MemoryStore) Geolocation(ctx context.Context, owner string) (Geolocation, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	loc, ok := s.geo[ownerKey(owner)]
	return loc, ok, nil
}

func (s *MemoryStore) DismissNotification(ctx context.Context, owner, note string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := ownerKey(owner)
	if s.dismissed[key] == nil {
		s.dismissed[key] = make(map[string]struct{})
	}
	s.dismissed[key][note] = struct{}{}
	return nil
}

func (s *MemoryStore) IsNotificationDismissed(ctx context.Context, owner, note string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set, ok := s.dismissed[ownerKey(owner)]
	if !ok {
		return false, nil
	}
	_, dismissed := set[note]
	return dismissed, nil
}
