package cache

import (
	"context"
	"sync"
	"time"
)

// memoryItem pairs an entry with its eviction deadline.
type memoryItem struct {
	entry     *Entry
	expiresAt time.Time
}

// MemoryStore is a process-local Store backed by a map. Expired items are
// evicted lazily on Get. Contents do not survive a process restart.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]memoryItem

	// now is swappable for tests.
	now func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items: make(map[string]memoryItem),
		now:   time.Now,
	}
}

// Get returns the entry for key, or ErrMiss if absent or past its TTL.
func (s *MemoryStore) Get(_ context.Context, key string) (*Entry, error) {
	s.mu.RLock()
	item, ok := s.items[key]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrMiss
	}
	if s.now().After(item.expiresAt) {
		s.mu.Lock()
		// Re-check under the write lock; a concurrent Set may have
		// replaced the item.
		if cur, ok := s.items[key]; ok && s.now().After(cur.expiresAt) {
			delete(s.items, key)
		}
		s.mu.Unlock()
		return nil, ErrMiss
	}
	return item.entry, nil
}

// Set stores the entry under key for at most ttl. Non-positive TTLs are
// dropped rather than stored already-expired.
func (s *MemoryStore) Set(_ context.Context, key string, entry *Entry, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	s.mu.Lock()
	s.items[key] = memoryItem{entry: entry, expiresAt: s.now().Add(ttl)}
	s.mu.Unlock()
	return nil
}

// Delete removes the entry for key.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.items, key)
	s.mu.Unlock()
	return nil
}

// Len reports the number of stored items, including not-yet-evicted expired
// ones.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}
