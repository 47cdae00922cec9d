package shard

import (
	"sync"

	"github.com/spaolacci/murmur3"
)

const (
	// DefaultStripes is the default number of independently locked partitions.
	DefaultStripes = 32
)

// Map is a concurrent map split into murmur3-hashed stripes, each guarded by
// its own lock, so writers to different keys rarely contend.
type Map[V any] struct {
	stripes []*stripe[V]
}

type stripe[V any] struct {
	mu    sync.RWMutex
	items map[string]V
}

// NewMap creates a map with n stripes.
func NewMap[V any](n int) *Map[V] {
	if n <= 0 {
		n = DefaultStripes
	}
	m := &Map[V]{stripes: make([]*stripe[V], n)}
	for i := range m.stripes {
		m.stripes[i] = &stripe[V]{items: make(map[string]V)}
	}
	return m
}

// StripeOf returns the stripe index owning key.
func (m *Map[V]) StripeOf(key string) int {
	return int(murmur3.Sum32([]byte(key)) % uint32(len(m.stripes)))
}

func (m *Map[V]) stripeFor(key string) *stripe[V] {
	return m.stripes[m.StripeOf(key)]
}

// Get returns the value stored under key.
func (m *Map[V]) Get(key string) (V, bool) {
	s := m.stripeFor(key)
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.items[key]
	return v, ok
}

// Set stores v under key.
func (m *Map[V]) Set(key string, v V) {
	s := m.stripeFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = v
}

// SetIfAbsent stores v only when key is missing and reports whether it did.
func (m *Map[V]) SetIfAbsent(key string, v V) bool {
	s := m.stripeFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.items[key]; exists {
		return false
	}
	s.items[key] = v
	return true
}

// Delete removes key and reports whether it was present.
func (m *Map[V]) Delete(key string) bool {
	s := m.stripeFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.items[key]
	delete(s.items, key)
	return ok
}

// Range calls fn for every entry until fn returns false. Each stripe is read-locked
// while it is visited, so fn must not modify the map.
func (m *Map[V]) Range(fn func(key string, v V) bool) {
	for _, s := range m.stripes {
		if !s.rangeLocked(fn) {
			return
		}
	}
}

func (s *stripe[V]) rangeLocked(fn func(string, V) bool) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for k, v := range s.items {
		if !fn(k, v) {
			return false
		}
	}
	return true
}

// Len returns the number of entries.
func (m *Map[V]) Len() int {
	n := 0
	for _, s := range m.stripes {
		s.mu.RLock()
		n += len(s.items)
		s.mu.RUnlock()
	}
	return n
}
