// Package cache provides a small in-memory TTL store used to bound external
// query volume for market data. The clock is injectable so expiry behaviour
// is deterministic under test.
package cache

import (
	"sync"
	"time"
)

// Clock abstracts time.Now for tests.
type Clock func() time.Time

type entry struct {
	value     interface{}
	expiresAt time.Time
}

// Store is a key→value store with per-entry TTL eviction. Reads past expiry
// miss; writes always overwrite (last-writer-wins is acceptable, there is no
// single-flight guarantee).
type Store struct {
	mu    sync.RWMutex
	items map[string]entry
	now   Clock
}

// New creates a Store using the real clock.
func New() *Store {
	return NewWithClock(time.Now)
}

// NewWithClock creates a Store with an injected clock.
func NewWithClock(now Clock) *Store {
	return &Store{
		items: make(map[string]entry),
		now:   now,
	}
}

// Set stores a value for the given TTL.
func (s *Store) Set(key string, value interface{}, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = entry{
		value:     value,
		expiresAt: s.now().Add(ttl),
	}
}

// Get returns the stored value and whether it is present and unexpired.
// Expired entries are removed on access.
func (s *Store) Get(key string) (interface{}, bool) {
	s.mu.RLock()
	e, ok := s.items[key]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if s.now().After(e.expiresAt) {
		s.mu.Lock()
		// Re-check under the write lock; another writer may have refreshed.
		if cur, ok := s.items[key]; ok && s.now().After(cur.expiresAt) {
			delete(s.items, key)
		}
		s.mu.Unlock()
		return nil, false
	}
	return e.value, true
}

// Delete removes a key.
func (s *Store) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, key)
}

// Len returns the number of entries, including any not yet evicted.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}
