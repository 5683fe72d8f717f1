// Package cache provides the TTL caches used by the matcher and the
// enrichment adapters. Callers depend on the Cache interface so an external
// shared cache can replace the process-local one.
package cache

import (
	"sync"
	"time"
)

// Cache is a keyed store whose entries expire after a TTL.
type Cache[V any] interface {
	Get(key string) (V, bool)
	Set(key string, value V)
	Delete(key string)
}

type entry[V any] struct {
	value     V
	expiresAt time.Time
	storedAt  time.Time
}

// Memory is an in-process Cache. Expired entries are evicted lazily on read
// and when the size bound is hit.
type Memory[V any] struct {
	mu         sync.Mutex
	ttl        time.Duration
	maxEntries int
	entries    map[string]entry[V]
	now        func() time.Time
}

// NewMemory creates an in-memory cache. maxEntries <= 0 means unbounded.
func NewMemory[V any](ttl time.Duration, maxEntries int) *Memory[V] {
	return &Memory[V]{
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    make(map[string]entry[V]),
		now:        time.Now,
	}
}

// WithClock overrides the time source for testing.
func (m *Memory[V]) WithClock(now func() time.Time) *Memory[V] {
	m.now = now
	return m
}

// Get returns the value for key if present and not expired.
func (m *Memory[V]) Get(key string) (V, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var zero V
	e, ok := m.entries[key]
	if !ok {
		return zero, false
	}
	if m.ttl > 0 && !m.now().Before(e.expiresAt) {
		delete(m.entries, key)
		return zero, false
	}
	return e.value, true
}

// Set stores value under key, evicting if the cache is full.
func (m *Memory[V]) Set(key string, value V) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if _, exists := m.entries[key]; !exists && m.maxEntries > 0 && len(m.entries) >= m.maxEntries {
		m.evictLocked(now)
	}
	m.entries[key] = entry[V]{value: value, expiresAt: now.Add(m.ttl), storedAt: now}
}

// Delete removes key.
func (m *Memory[V]) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
}

// Len returns the number of stored entries, including expired ones not yet evicted.
func (m *Memory[V]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// evictLocked drops expired entries, then the oldest one if still full.
func (m *Memory[V]) evictLocked(now time.Time) {
	for k, e := range m.entries {
		if m.ttl > 0 && !now.Before(e.expiresAt) {
			delete(m.entries, k)
		}
	}
	if len(m.entries) < m.maxEntries {
		return
	}
	var oldestKey string
	var oldest time.Time
	for k, e := range m.entries {
		if oldestKey == "" || e.storedAt.Before(oldest) {
			oldestKey, oldest = k, e.storedAt
		}
	}
	delete(m.entries, oldestKey)
}
