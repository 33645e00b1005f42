package session

import "sync"

// Store holds the URLs captured from the page's traffic. Every slot is
// latched: the first value written wins and later writes are ignored.
// Implementations can be in-memory or remote; the Listener only relies on
// the latch contract.
type Store interface {
	// Latch sets slot to value if it is still empty and reports whether it did.
	Latch(slot Slot, value string) bool
	Get(slot Slot) (string, bool)
	Snapshot() map[Slot]string
}

// InMemoryStore is a concurrency-safe in-memory Store.
type InMemoryStore struct {
	mu     sync.RWMutex
	values map[Slot]string
}

// NewInMemoryStore returns a new empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{values: make(map[Slot]string)}
}

// Latch implements Store.Latch.
func (s *InMemoryStore) Latch(slot Slot, value string) bool {
	if value == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.values[slot]; ok {
		return false
	}
	s.values[slot] = value
	return true
}

// Get implements Store.Get.
func (s *InMemoryStore) Get(slot Slot) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[slot]
	return v, ok
}

// Snapshot implements Store.Snapshot.
func (s *InMemoryStore) Snapshot() map[Slot]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[Slot]string, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// Latch is a set-once value.
type Latch[T any] struct {
	mu  sync.RWMutex
	v   T
	set bool
}

// Set stores v if nothing was stored before and reports whether it did.
func (l *Latch[T]) Set(v T) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.set {
		return false
	}
	l.v, l.set = v, true
	return true
}

// Get returns the stored value and whether there is one.
func (l *Latch[T]) Get() (T, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.v, l.set
}
