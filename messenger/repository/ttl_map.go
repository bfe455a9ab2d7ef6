package repository

import (
	"context"
	"sync"
	"time"
)

type ttlEntry[V any] struct {
	value    V
	expireAt time.Time
}

// ttlMap is a mutex-guarded map whose entries expire. A zero ttl never expires.
type ttlMap[V any] struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]ttlEntry[V]
	now     func() time.Time
}

func newTTLMap[V any](ttl time.Duration) *ttlMap[V] {
	return &ttlMap[V]{
		ttl:     ttl,
		entries: make(map[string]ttlEntry[V]),
		now:     time.Now,
	}
}

func (m *ttlMap[V]) get(key string) (V, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[key]
	if !ok || m.expired(e) {
		var zero V
		return zero, false
	}
	return e.value, true
}

func (m *ttlMap[V]) set(key string, value V) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := ttlEntry[V]{value: value}
	if m.ttl > 0 {
		e.expireAt = m.now().Add(m.ttl)
	}
	m.entries[key] = e
}

func (m *ttlMap[V]) delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
}

func (m *ttlMap[V]) len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func (m *ttlMap[V]) expired(e ttlEntry[V]) bool {
	return !e.expireAt.IsZero() && m.now().After(e.expireAt)
}

// purge drops expired entries and returns how many were removed.
func (m *ttlMap[V]) purge() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for k, e := range m.entries {
		if m.expired(e) {
			delete(m.entries, k)
			removed++
		}
	}
	return removed
}

// runCleanup purges every interval until ctx is done.
func (m *ttlMap[V]) runCleanup(ctx context.Context, interval time.Duration, onPurge func(removed int)) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.purge(); n > 0 && onPurge != nil {
				onPurge(n)
			}
		}
	}
}
