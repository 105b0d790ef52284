package cache

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

type memoryEntry struct {
	value   []byte
	expires time.Time
}

// Memory is a bounded in-process Store used when no Redis URL is
// configured (degraded operation and tests). Entries carry their own
// deadline so TTLs can differ per write; expired entries are evicted
// lazily on Get.
type Memory struct {
	mu  sync.Mutex
	lru *lru.Cache[string, memoryEntry]
	now func() time.Time
}

// NewMemory returns a Memory store holding at most maxEntries values.
func NewMemory(maxEntries int) (*Memory, error) {
	c, err := lru.New[string, memoryEntry](maxEntries)
	if err != nil {
		return nil, err
	}
	return &Memory{lru: c, now: time.Now}, nil
}

// Get returns the value stored under key, or ErrMiss.
func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.lru.Get(key)
	if !ok {
		return nil, ErrMiss
	}
	if !entry.expires.IsZero() && m.now().After(entry.expires) {
		m.lru.Remove(key)
		return nil, ErrMiss
	}
	return entry.value, nil
}

// Set stores value under key for ttl. A zero ttl keeps the entry until
// the LRU evicts it.
func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	var expires time.Time
	if ttl > 0 {
		expires = m.now().Add(ttl)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lru.Add(key, memoryEntry{value: value, expires: expires})
	return nil
}
