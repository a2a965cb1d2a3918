// Package doicache caches DOI resolutions so repeated previews and commits
// do not hit the network.
package doicache

import (
	"context"
	"sync"
	"time"

	"github.com/matsen/bipcite/internal/reference"
)

// DefaultTTL is how long a resolution stays cached.
const DefaultTTL = 7 * 24 * time.Hour

// Cache stores resolved entries keyed by normalized DOI.
type Cache interface {
	Get(ctx context.Context, doi string) (reference.Entry, bool, error)
	Put(ctx context.Context, doi string, e reference.Entry) error
}

type memoryItem struct {
	entry   reference.Entry
	expires time.Time
}

// Memory is an in-process Cache.
type Memory struct {
	mu    sync.RWMutex
	items map[string]memoryItem
	ttl   time.Duration
	now   func() time.Time
}

// NewMemory creates an in-process cache; ttl <= 0 means DefaultTTL.
func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Memory{items: make(map[string]memoryItem), ttl: ttl, now: time.Now}
}

// Get returns the cached entry for doi, if present and not expired.
func (m *Memory) Get(_ context.Context, doi string) (reference.Entry, bool, error) {
	key := reference.NormalizeDOI(doi)
	m.mu.RLock()
	it, ok := m.items[key]
	m.mu.RUnlock()
	if !ok {
		return reference.Entry{}, false, nil
	}
	if m.now().After(it.expires) {
		m.mu.Lock()
		delete(m.items, key)
		m.mu.Unlock()
		return reference.Entry{}, false, nil
	}
	return it.entry, true, nil
}

// Put stores e under doi.
func (m *Memory) Put(_ context.Context, doi string, e reference.Entry) error {
	key := reference.NormalizeDOI(doi)
	if key == "" {
		return nil
	}
	m.mu.Lock()
	m.items[key] = memoryItem{entry: e, expires: m.now().Add(m.ttl)}
	m.mu.Unlock()
	return nil
}

// Len returns the number of stored items, expired or not.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}
