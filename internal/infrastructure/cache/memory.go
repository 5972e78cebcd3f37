// Package cache provides TTL caches for small, frequently read records.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/clock"
)

type entry struct {
	value   []byte
	expires time.Time
}

// Memory is an in-process TTL cache. Expiry is evaluated lazily against the clock.
type Memory struct {
	clock clock.Clock
	mu    sync.Mutex
	items map[string]entry
}

func NewMemory(clk clock.Clock) *Memory {
	return &Memory{clock: clk, items: make(map[string]entry)}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.items[key]
	if !ok {
		return nil, false, nil
	}
	if !m.clock.Now().Before(e.expires) {
		delete(m.items, key)
		return nil, false, nil
	}
	return e.value, true, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	m.mu.Lock()
	m.items[key] = entry{value: value, expires: m.clock.Now().Add(ttl)}
	m.mu.Unlock()
	return nil
}

func (m *Memory) Invalidate(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.items, key)
	m.mu.Unlock()
	return nil
}

// Len counts entries, expired ones included.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}
