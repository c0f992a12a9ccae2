package cache

import (
	"time"

	"sjsage522/feedscanner/logger"
	"sjsage522/feedscanner/pkg/errors"

	"github.com/bradfitz/gomemcache/memcache"
)

// MemcacheService implements CacheService on memcached, so a rate-limit block
// survives restarts and is seen by every scanner sharing the server
type MemcacheService struct {
	client *memcache.Client
	log    *logger.Logger
}

// NewMemcacheService creates a memcache-backed cache for serverAddr
func NewMemcacheService(serverAddr string) *MemcacheService {
	client := memcache.New(serverAddr)
	client.Timeout = 500 * time.Millisecond
	return &MemcacheService{
		client: client,
		log:    logger.ForCache().WithField("server", serverAddr),
	}
}

// Ping checks that the server is reachable
func (m *MemcacheService) Ping() error {
	if err := m.client.Ping(); err != nil {
		return errors.NewCache("memcache", "server unreachable", err)
	}
	return nil
}

// Get implements CacheService
func (m *MemcacheService) Get(key string) ([]byte, error) {
	item, err := m.client.Get(key)
	if IsMiss(err) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		m.log.Warn().Err(err).Str("key", key).Msg("Cache read failed")
		return nil, errors.NewCache("memcache", "get "+key, err)
	}
	return item.Value, nil
}

// Set implements CacheService
func (m *MemcacheService) Set(key string, value []byte, expiration time.Duration) error {
	err := m.client.Set(&memcache.Item{
		Key:        key,
		Value:      value,
		Expiration: int32(expiration / time.Second),
	})
	if err != nil {
		return errors.NewCache("memcache", "set "+key, err)
	}
	m.log.Debug().Str("key", key).Dur("expiration", expiration).Msg("Cached value")
	return nil
}

// Delete implements CacheService. Deleting an absent key is not an error.
func (m *MemcacheService) Delete(key string) error {
	if err := m.client.Delete(key); err != nil && !IsMiss(err) {
		return errors.NewCache("memcache", "delete "+key, err)
	}
	return nil
}
