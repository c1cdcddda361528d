package redis

import (
	"bytes"
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// CleanupInterval is the interval between expired item cleanup runs.
	CleanupInterval = 5 * time.Minute
)

// ErrStoreClosed is returned by MemoryStore operations after Close.
var ErrStoreClosed = errors.New("store closed")

// MemoryStore is an in-memory implementation of the Store interface.
// It provides the same functionality as the Redis store but without persistence.
// All data is stored in memory with TTL support via background cleanup goroutines.
// Every operation runs under a single mutex, so the compare operations are
// atomic with respect to each other.
type MemoryStore struct {
	items         map[string]*expiringItem[[]byte]
	logger        *logrus.Logger
	mu            sync.RWMutex
	now           func() time.Time
	cleanupTicker *time.Ticker
	stopCleanup   chan struct{}
	closeOnce     sync.Once
	closed        bool
}

// expiringItem wraps data with expiration time for TTL support.
// A zero ExpiresAt never expires.
type expiringItem[T any] struct {
	Data      T
	ExpiresAt time.Time
}

// isExpiredAt checks if the item has expired.
func (e *expiringItem[T]) isExpiredAt(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && now.After(e.ExpiresAt)
}

// NewMemoryStore creates a new in-memory store with TTL cleanup.
func NewMemoryStore(logger *logrus.Logger) *MemoryStore {
	store := &MemoryStore{
		items:         make(map[string]*expiringItem[[]byte]),
		logger:        logger,
		now:           time.Now,
		cleanupTicker: time.NewTicker(CleanupInterval),
		stopCleanup:   make(chan struct{}),
	}

	// Start cleanup goroutine
	go store.cleanupExpiredItems()

	logger.Info("In-memory store initialized with TTL cleanup")
	return store
}

// cleanupExpiredItems runs periodically to remove expired items.
func (m *MemoryStore) cleanupExpiredItems() {
	defer m.cleanupTicker.Stop()

	for {
		select {
		case <-m.cleanupTicker.C:
			m.performCleanup()
		case <-m.stopCleanup:
			return
		}
	}
}

// performCleanup removes expired items.
func (m *MemoryStore) performCleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	expired := 0
	for key, item := range m.items {
		if item.isExpiredAt(now) {
			delete(m.items, key)
			expired++
		}
	}

	if expired > 0 {
		m.logger.WithField("expired_items", expired).Debug("Cleaned up expired items from memory store")
	}
}

func (m *MemoryStore) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return m.now().Add(ttl)
}

// live returns the unexpired item at key. Callers must hold the lock.
func (m *MemoryStore) live(key string) (*expiringItem[[]byte], bool) {
	item, ok := m.items[key]
	if !ok || item.isExpiredAt(m.now()) {
		return nil, false
	}
	return item, true
}

func cloneBytes(b []byte) []byte {
	return append([]byte(nil), b...)
}

// Get returns a copy of the value stored at key.
func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}
	item, ok := m.live(key)
	if !ok {
		return nil, ErrCacheMiss
	}
	return cloneBytes(item.Data), nil
}

// Put stores a copy of value at key.
func (m *MemoryStore) Put(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}
	m.items[key] = &expiringItem[[]byte]{Data: cloneBytes(value), ExpiresAt: m.expiry(ttl)}
	return nil
}

// PutIfAbsent stores value only if key holds no live value.
func (m *MemoryStore) PutIfAbsent(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return false, ErrStoreClosed
	}
	if _, ok := m.live(key); ok {
		return false, nil
	}
	m.items[key] = &expiringItem[[]byte]{Data: cloneBytes(value), ExpiresAt: m.expiry(ttl)}
	return true, nil
}

// Delete removes key.
func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}
	delete(m.items, key)
	return nil
}

// CompareAndDelete removes key if it still holds expected.
func (m *MemoryStore) CompareAndDelete(_ context.Context, key string, expected []byte) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return false, ErrStoreClosed
	}
	item, ok := m.live(key)
	if !ok || !bytes.Equal(item.Data, expected) {
		return false, nil
	}
	delete(m.items, key)
	return true, nil
}

// CompareAndSwap replaces the value at key if it still holds expected.
func (m *MemoryStore) CompareAndSwap(
	_ context.Context, key string, expected, value []byte, ttl time.Duration,
) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return false, ErrStoreClosed
	}
	item, ok := m.live(key)
	if !ok || !bytes.Equal(item.Data, expected) {
		return false, nil
	}
	m.items[key] = &expiringItem[[]byte]{Data: cloneBytes(value), ExpiresAt: m.expiry(ttl)}
	return true, nil
}

// Scan returns the sorted live keys starting with prefix.
func (m *MemoryStore) Scan(_ context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}
	now := m.now()
	var keys []string
	for key, item := range m.items {
		if strings.HasPrefix(key, prefix) && !item.isExpiredAt(now) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Ping always succeeds while the store is open.
func (m *MemoryStore) Ping(_ context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return ErrStoreClosed
	}
	return nil
}

// Close stops the cleanup goroutine. It is safe to call more than once.
func (m *MemoryStore) Close() error {
	m.closeOnce.Do(func() {
		close(m.stopCleanup)
		m.mu.Lock()
		m.closed = true
		m.items = make(map[string]*expiringItem[[]byte])
		m.mu.Unlock()
		m.logger.Info("In-memory store closed")
	})
	return nil
}
