package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrCacheMiss indicates the requested key was not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the cache entry is invalid or corrupted
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// Config holds cache manager configuration.
type Config struct {
	// TTL is how long results stay cached.
	TTL time.Duration

	// MemoryEntries bounds the in-process layer.
	MemoryEntries int

	// Redis is an optional shared second layer.
	Redis *redis.Client
}

// DefaultConfig returns the default cache configuration (memory only).
func DefaultConfig() Config {
	return Config{
		TTL:           5 * time.Minute,
		MemoryEntries: 128,
	}
}

// Manager caches search results in memory and, when configured, in Redis.
type Manager struct {
	memory *expirable.LRU[string, *Entry]
	redis  *redis.Client
	ttl    time.Duration
}

// NewManager creates a new cache manager.
func NewManager(cfg Config) *Manager {
	defaults := DefaultConfig()
	if cfg.TTL <= 0 {
		cfg.TTL = defaults.TTL
	}
	if cfg.MemoryEntries <= 0 {
		cfg.MemoryEntries = defaults.MemoryEntries
	}

	onEvict := func(string, *Entry) { CacheEntries.Dec() }
	return &Manager{
		memory: expirable.NewLRU[string, *Entry](cfg.MemoryEntries, onEvict, cfg.TTL),
		redis:  cfg.Redis,
		ttl:    cfg.TTL,
	}
}

// Get retrieves a cache entry by key.
// Returns ErrCacheMiss if the key doesn't exist or entry is expired.
func (m *Manager) Get(ctx context.Context, key Key) (*Entry, error) {
	cacheKey := key.String()

	if entry, ok := m.memory.Get(cacheKey); ok && !entry.IsExpired() {
		CacheHits.WithLabelValues("memory").Inc()
		return entry, nil
	}

	if m.redis == nil {
		CacheMisses.Inc()
		return nil, ErrCacheMiss
	}

	data, err := m.redis.Get(ctx, cacheKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			CacheMisses.Inc()
			return nil, ErrCacheMiss
		}
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	if entry.IsExpired() {
		_ = m.Delete(ctx, key)
		CacheMisses.Inc()
		return nil, ErrCacheMiss
	}

	CacheHits.WithLabelValues("redis").Inc()
	m.remember(cacheKey, &entry)
	return &entry, nil
}

// Set stores records under key for the configured TTL.
func (m *Manager) Set(ctx context.Context, key Key, records []map[string]any) error {
	now := time.Now()
	entry := &Entry{
		Records:  records,
		CachedAt: now,
		Expires:  now.Add(m.ttl),
	}

	cacheKey := key.String()
	m.remember(cacheKey, entry)

	if m.redis == nil {
		return nil
	}

	data, err := json.Marshal(entry)
	if err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("marshal cache entry: %w", err)
	}
	if err := m.redis.Set(ctx, cacheKey, data, m.ttl).Err(); err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete removes a cache entry from both layers.
func (m *Manager) Delete(ctx context.Context, key Key) error {
	cacheKey := key.String()
	m.memory.Remove(cacheKey)

	if m.redis == nil {
		return nil
	}
	if err := m.redis.Del(ctx, cacheKey).Err(); err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Len returns the number of entries held in memory.
func (m *Manager) Len() int {
	return m.memory.Len()
}

// remember stores entry in memory and resyncs the entry gauge. Evictions
// decrement the gauge from inside the LRU lock, so only Add may read Len.
func (m *Manager) remember(cacheKey string, entry *Entry) {
	m.memory.Add(cacheKey, entry)
	CacheEntries.Set(float64(m.memory.Len()))
}
