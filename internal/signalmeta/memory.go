package signalmeta

import (
	"context"
	"sync"
	"time"

	"updown-trader/internal/domain"
)

type entry struct {
	meta      domain.SignalMetadata
	consumed  bool
	expiresAt time.Time
}

// MemoryStore is a bounded in-process Store with per-entry TTL.
type MemoryStore struct {
	mu         sync.Mutex
	entries    map[string]*entry
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
}

func NewMemoryStore(ttl time.Duration, maxEntries int) *MemoryStore {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	if maxEntries <= 0 {
		maxEntries = 10000
	}
	return &MemoryStore{
		entries:    make(map[string]*entry),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

func (s *MemoryStore) Put(_ context.Context, meta domain.SignalMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if e, ok := s.entries[meta.TradeID]; ok && now.Before(e.expiresAt) {
		if e.consumed {
			return ErrAlreadyConsumed
		}
		return ErrAlreadyStored
	}
	if len(s.entries) >= s.maxEntries {
		s.sweepLocked(now)
		if len(s.entries) >= s.maxEntries {
			s.evictOldestLocked()
		}
	}
	s.entries[meta.TradeID] = &entry{meta: meta, expiresAt: now.Add(s.ttl)}
	return nil
}

func (s *MemoryStore) Take(_ context.Context, tradeID string) (domain.SignalMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[tradeID]
	if !ok || !s.now().Before(e.expiresAt) {
		return domain.SignalMetadata{}, ErrNotFound
	}
	if e.consumed {
		return domain.SignalMetadata{}, ErrAlreadyConsumed
	}
	meta := e.meta
	e.consumed = true
	e.meta = domain.SignalMetadata{TradeID: tradeID}
	return meta, nil
}

// Sweep drops expired entries and tombstones.
func (s *MemoryStore) Sweep(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweepLocked(s.now()), nil
}

func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *MemoryStore) sweepLocked(now time.Time) int {
	removed := 0
	for id, e := range s.entries {
		if !now.Before(e.expiresAt) {
			delete(s.entries, id)
			removed++
		}
	}
	return removed
}

func (s *MemoryStore) evictOldestLocked() {
	var oldestID string
	var oldest time.Time
	for id, e := range s.entries {
		if oldestID == "" || e.expiresAt.Before(oldest) {
			oldestID, oldest = id, e.expiresAt
		}
	}
	if oldestID != "" {
		delete(s.entries, oldestID)
	}
}
