// Package cache provides the capacity-bounded caches behind the feed engine.
// A Bounded cache never rejects an insert; Evict trims it back under a
// ceiling while keeping protected entries, so it can overflow by at most
// the size of the protected set.
package cache

import (
	"cmp"
	"slices"
)

type entry[V any] struct {
	value     V
	createdAt int64
}

// Bounded is a map whose entries carry a creation timestamp used for
// recency-ordered eviction. It is not safe for concurrent use.
type Bounded[K cmp.Ordered, V any] struct {
	entries map[K]entry[V]
}

// NewBounded creates an empty cache
func NewBounded[K cmp.Ordered, V any]() *Bounded[K, V] {
	return &Bounded[K, V]{entries: make(map[K]entry[V])}
}

// Add stores v under key if absent. Returns false if key was already present
// (first arrival wins).
func (b *Bounded[K, V]) Add(key K, v V, createdAt int64) bool {
	if _, ok := b.entries[key]; ok {
		return false
	}
	b.entries[key] = entry[V]{value: v, createdAt: createdAt}
	return true
}

// Put stores v under key, replacing any existing entry.
func (b *Bounded[K, V]) Put(key K, v V, createdAt int64) {
	b.entries[key] = entry[V]{value: v, createdAt: createdAt}
}

func (b *Bounded[K, V]) Get(key K) (V, bool) {
	e, ok := b.entries[key]
	return e.value, ok
}

func (b *Bounded[K, V]) Has(key K) bool {
	_, ok := b.entries[key]
	return ok
}

// CreatedAt returns the timestamp key was stored with
func (b *Bounded[K, V]) CreatedAt(key K) (int64, bool) {
	e, ok := b.entries[key]
	return e.createdAt, ok
}

func (b *Bounded[K, V]) Delete(key K) {
	delete(b.entries, key)
}

func (b *Bounded[K, V]) Len() int {
	return len(b.entries)
}

// Keys returns all keys oldest first, ties broken by key.
func (b *Bounded[K, V]) Keys() []K {
	keys := make([]K, 0, len(b.entries))
	for k := range b.entries {
		keys = append(keys, k)
	}
	b.sortOldestFirst(keys)
	return keys
}

func (b *Bounded[K, V]) sortOldestFirst(keys []K) {
	slices.SortFunc(keys, func(x, y K) int {
		if c := cmp.Compare(b.entries[x].createdAt, b.entries[y].createdAt); c != 0 {
			return c
		}
		return cmp.Compare(x, y)
	})
}

// Evict keeps every protected entry plus the newest max(0, ceiling-|protected|)
// unprotected ones and deletes the rest. Evicted keys are returned oldest first.
// protected may be nil.
func (b *Bounded[K, V]) Evict(ceiling int, protected func(K) bool) []K {
	if len(b.entries) <= ceiling {
		return nil
	}

	var unprotected []K
	protectedCount := 0
	for k := range b.entries {
		if protected != nil && protected(k) {
			protectedCount++
			continue
		}
		unprotected = append(unprotected, k)
	}

	keep := ceiling - protectedCount
	if keep < 0 {
		keep = 0
	}
	if len(unprotected) <= keep {
		return nil
	}

	b.sortOldestFirst(unprotected)
	evicted := unprotected[:len(unprotected)-keep]
	for _, k := range evicted {
		delete(b.entries, k)
	}
	return evicted
}
