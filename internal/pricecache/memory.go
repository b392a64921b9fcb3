// Package pricecache provides result cache backends for the pricing engine.
package pricecache

import (
	"context"
	"sync"
	"time"

	"github.com/borhen68/framatale-sub001/internal/domain/pricing"
)

// entry pairs a cached result with its absolute expiry.
type entry struct {
	result    *pricing.Result
	expiresAt time.Time
}

// Memory is an in-process pricing.Cache. Entries expire by timestamp
// comparison on read; a background sweep reclaims memory from keys that are
// never read again. Safe for concurrent use. Two requests racing on the
// same key may both compute; last write wins, which is acceptable because
// results for identical requests are equivalent within the TTL.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]entry
	now     func() time.Time
	stop    chan struct{}
	once    sync.Once
}

// NewMemory creates a Memory cache sweeping expired entries at the given
// interval. Pass a zero interval to disable sweeping.
func NewMemory(sweepEvery time.Duration) *Memory {
	m := &Memory{
		entries: make(map[string]entry),
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	if sweepEvery > 0 {
		go m.sweep(sweepEvery)
	}
	return m
}

// Get returns the cached result for key if present and not expired.
func (m *Memory) Get(_ context.Context, key string) (*pricing.Result, bool) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok || m.now().After(e.expiresAt) {
		return nil, false
	}
	return e.result, true
}

// Set stores the result under key until expiresAt.
func (m *Memory) Set(_ context.Context, key string, res *pricing.Result, expiresAt time.Time) {
	m.mu.Lock()
	m.entries[key] = entry{result: res, expiresAt: expiresAt}
	m.mu.Unlock()
}

// Close stops the background sweep.
func (m *Memory) Close() {
	m.once.Do(func() { close(m.stop) })
}

func (m *Memory) sweep(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			now := m.now()
			m.mu.Lock()
			for k, e := range m.entries {
				if now.After(e.expiresAt) {
					delete(m.entries, k)
				}
			}
			m.mu.Unlock()
		}
	}
}
