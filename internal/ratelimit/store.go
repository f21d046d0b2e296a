package ratelimit

import (
	"sync"
	"time"
)

// Key namespaces a counter by client address and route path
type Key struct {
	Addr  string
	Route string
}

func (k Key) String() string { return k.Addr + ":" + k.Route }

// Counter is the state of one key's current window
type Counter struct {
	Count       int
	WindowStart time.Time
}

// Store holds Key -> Counter. Implementations must make every method atomic with respect to
// the others: Update is a get-modify-put that no other call can interleave with.
type Store interface {
	Get(k Key) (Counter, bool)
	Put(k Key, c Counter)
	// Update calls fn with the current counter (ok=false if absent) and stores the result.
	Update(k Key, fn func(c Counter, ok bool) Counter) Counter
	// Sweep removes every counter whose window started more than maxAge before now.
	// Returns the number removed.
	Sweep(maxAge time.Duration, now time.Time) int
	Len() int
}

// MemoryStore is a mutex guarded map, not shared between processes
type MemoryStore struct {
	mu       sync.Mutex
	counters map[Key]Counter
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{counters: make(map[Key]Counter)}
}

func (s *MemoryStore) Get(k Key) (Counter, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.counters[k]
	return c, ok
}

// Put overwrites, no merge
func (s *MemoryStore) Put(k Key, c Counter) {
	s.mu.Lock()
	s.counters[k] = c
	s.mu.Unlock()
}

// Update holds the lock for the whole read-modify-write so concurrent requests for the same
// key cannot both read N and write N+1. fn must not call back into the store.
func (s *MemoryStore) Update(k Key, fn func(c Counter, ok bool) Counter) Counter {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.counters[k]
	next := fn(cur, ok)
	s.counters[k] = next
	return next
}

func (s *MemoryStore) Sweep(maxAge time.Duration, now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for k, c := range s.counters {
		if now.Sub(c.WindowStart) > maxAge {
			delete(s.counters, k)
			removed++
		}
	}
	return removed
}

func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.counters)
}
