// Package cache stores short-lived flags shared between scan runs, such as
// the rate-limit block set by the static backend.
package cache

import (
	stderrors "errors"
	"sync"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
)

// CacheService is a key/value store with per-key expiry
type CacheService interface {
	// Get returns the value or ErrCacheMiss
	Get(key string) ([]byte, error)

	// Set stores value until expiration elapses; zero keeps it until evicted
	Set(key string, value []byte, expiration time.Duration) error

	// Delete removes key
	Delete(key string) error
}

// ErrCacheMiss is returned by Get when the key is absent or expired
var ErrCacheMiss = memcache.ErrCacheMiss

// IsMiss reports whether err only means the key is absent
func IsMiss(err error) bool {
	return stderrors.Is(err, ErrCacheMiss)
}

type memoryItem struct {
	value   []byte
	expires time.Time
}

// MemoryService is a process-local CacheService for runs without memcached
type MemoryService struct {
	mu    sync.Mutex
	items map[string]memoryItem
	now   func() time.Time
}

// NewMemoryService creates an empty in-process cache
func NewMemoryService() *MemoryService {
	return &MemoryService{items: make(map[string]memoryItem), now: time.Now}
}

// Get implements CacheService
func (m *MemoryService) Get(key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	if !item.expires.IsZero() && !m.now().Before(item.expires) {
		delete(m.items, key)
		return nil, ErrCacheMiss
	}
	return item.value, nil
}

// Set implements CacheService
func (m *MemoryService) Set(key string, value []byte, expiration time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	item := memoryItem{value: value}
	if expiration > 0 {
		item.expires = m.now().Add(expiration)
	}
	m.items[key] = item
	return nil
}

// Delete implements CacheService
func (m *MemoryService) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
	return nil
}
