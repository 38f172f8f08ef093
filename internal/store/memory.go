package store

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/decred/dcrd/container/lru"
)

// ErrClosed is returned by a memory backend after Close.
var ErrClosed = errors.New("store: backend closed")

// MemoryBackend keeps snapshots in a bounded LRU map for sessions without
// redis. Each key carries its own TTL; once maxKeys is reached the least
// recently read or written snapshot is evicted.
type MemoryBackend struct {
	snapshots *lru.Map[string, []byte]
	closed    atomic.Bool
}

// NewMemoryBackend holds at most maxKeys snapshots.
func NewMemoryBackend(maxKeys int) *MemoryBackend {
	if maxKeys < 1 {
		maxKeys = 1
	}
	return &MemoryBackend{snapshots: lru.NewMap[string, []byte](uint32(maxKeys))}
}

func (m *MemoryBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if m.closed.Load() {
		return nil, false, ErrClosed
	}
	value, ok := m.snapshots.Get(key)
	return value, ok, nil
}

// Set stores a private copy of value; ttl 0 keeps it until evicted.
func (m *MemoryBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if m.closed.Load() {
		return ErrClosed
	}
	m.snapshots.PutWithTTL(key, append([]byte(nil), value...), max(ttl, 0))
	return nil
}

func (m *MemoryBackend) Delete(ctx context.Context, key string) error {
	if m.closed.Load() {
		return ErrClosed
	}
	m.snapshots.Delete(key)
	return nil
}

func (m *MemoryBackend) GetMultiple(ctx context.Context, keys []string) (map[string][]byte, error) {
	if m.closed.Load() {
		return nil, ErrClosed
	}
	found := make(map[string][]byte, len(keys))
	for _, key := range keys {
		if value, ok := m.snapshots.Get(key); ok {
			found[key] = value
		}
	}
	return found, nil
}

func (m *MemoryBackend) SetMultiple(ctx context.Context, items map[string][]byte, ttl time.Duration) error {
	for key, value := range items {
		if err := m.Set(ctx, key, value, ttl); err != nil {
			return err
		}
	}
	return nil
}

// Len reports the live snapshot count after dropping expired ones.
func (m *MemoryBackend) Len() int {
	m.snapshots.EvictExpiredNow()
	return int(m.snapshots.Len())
}

// Close drops every snapshot. Closing twice is a no-op.
func (m *MemoryBackend) Close() error {
	if m.closed.CompareAndSwap(false, true) {
		m.snapshots.Clear()
	}
	return nil
}
