package cache

import (
	"path"
	"sort"
	"sync"
	"time"
)

type localEntry struct {
	value     []byte
	expiresAt time.Time
}

// LocalStore is the bounded in-process cache tier. Entries carry an
// absolute expiry; overflow eviction purges expired entries first, then
// drops the oldest-expiring fifth of the map.
type LocalStore struct {
	mu         sync.Mutex
	maxEntries int
	entries    map[string]localEntry

	hits      int64
	misses    int64
	evictions int64

	now func() time.Time
}

// NewLocalStore creates a local tier bounded to maxEntries.
func NewLocalStore(maxEntries int) *LocalStore {
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	return &LocalStore{
		maxEntries: maxEntries,
		entries:    make(map[string]localEntry),
		now:        time.Now,
	}
}

// Get returns the cached value when present and not expired.
func (s *LocalStore) Get(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		s.misses++
		return nil, false
	}
	if !s.now().Before(e.expiresAt) {
		delete(s.entries, key)
		s.misses++
		return nil, false
	}
	s.hits++
	return e.value, true
}

// Set stores a value for ttl, evicting if the map would overflow.
func (s *LocalStore) Set(key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[key]; !exists && len(s.entries) >= s.maxEntries {
		s.evict()
	}
	s.entries[key] = localEntry{value: value, expiresAt: s.now().Add(ttl)}
}

// Delete removes keys.
func (s *LocalStore) Delete(keys ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.entries, k)
	}
}

// Exists reports whether key is present and alive.
func (s *LocalStore) Exists(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return false
	}
	if !s.now().Before(e.expiresAt) {
		delete(s.entries, key)
		return false
	}
	return true
}

// DeleteByPattern removes keys matching a glob pattern and returns how
// many were dropped.
func (s *LocalStore) DeleteByPattern(pattern string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for k := range s.entries {
		if ok, _ := path.Match(pattern, k); ok {
			delete(s.entries, k)
			removed++
		}
	}
	return removed
}

// Len returns the live entry count (expired entries may still be counted
// until the next eviction touches them).
func (s *LocalStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Counters returns hits, misses and evictions so far.
func (s *LocalStore) Counters() (hits, misses, evictions int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits, s.misses, s.evictions
}

// evict makes room: purge expired entries, then drop the oldest-expiring
// 20% if the map is still full. Callers hold s.mu.
func (s *LocalStore) evict() {
	now := s.now()
	for k, e := range s.entries {
		if !now.Before(e.expiresAt) {
			delete(s.entries, k)
			s.evictions++
		}
	}
	if len(s.entries) < s.maxEntries {
		return
	}

	type keyed struct {
		key       string
		expiresAt time.Time
	}
	ordered := make([]keyed, 0, len(s.entries))
	for k, e := range s.entries {
		ordered = append(ordered, keyed{k, e.expiresAt})
	}
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].expiresAt.Before(ordered[j].expiresAt)
	})

	drop := len(ordered) / 5
	if drop < 1 {
		drop = 1
	}
	for _, victim := range ordered[:drop] {
		delete(s.entries, victim.key)
		s.evictions++
	}
}
