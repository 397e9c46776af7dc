// Package registry provides a thread-safe keyed map used as the base
// storage primitive for the graph store.
//
// C2 (graph store) needs reads that never block writers to other keys,
// writes to distinct keys that proceed in parallel rather than
// serializing on one lock, and a consistent snapshot list. Registry
// factors that out so the store does not hand-roll its own locking. The
// trace buffer (C3) does not use it; it keeps its own maps and
// per-trace locks.
package registry

import (
	"fmt"
	"hash/fnv"
	"sync"
)

// shardCount is the number of stripes the key space is split across.
// Writes to keys landing in different shards proceed fully in parallel;
// only writes to the same shard (almost always the same key, for the
// graph-id/trace-id cardinalities this registry sees) serialize.
const shardCount = 32

type shard[K comparable, V any] struct {
	mu      sync.RWMutex
	entries map[K]V
}

// Registry is a thread-safe map keyed by K, holding values of type V,
// striped across shardCount independent shards so that cross-key writes
// never contend on a single lock.
type Registry[K comparable, V any] struct {
	shards [shardCount]*shard[K, V]
}

// New creates an empty registry.
func New[K comparable, V any]() *Registry[K, V] {
	r := &Registry[K, V]{}
	for i := range r.shards {
		r.shards[i] = &shard[K, V]{entries: make(map[K]V)}
	}
	return r
}

// shardFor picks the stripe key belongs to. Keys are hashed via their
// fmt.Sprintf("%v", ...) form rather than a type-specific hash, since K
// is only constrained to comparable; every caller in this module keys
// by string (graph-id, trace-id), so this costs one allocation per call
// and is not on a hot loop.
func (r *Registry[K, V]) shardFor(key K) *shard[K, V] {
	h := fnv.New32a()
	fmt.Fprintf(h, "%v", key)
	return r.shards[h.Sum32()%shardCount]
}

// Set stores or replaces the value for key.
func (r *Registry[K, V]) Set(key K, value V) {
	s := r.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = value
}

// Get returns the value for key and whether it was present.
func (r *Registry[K, V]) Get(key K) (V, bool) {
	s := r.shardFor(key)
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.entries[key]
	return v, ok
}

// Has reports whether key is present.
func (r *Registry[K, V]) Has(key K) bool {
	s := r.shardFor(key)
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entries[key]
	return ok
}

// Delete removes key, reporting whether it was present.
func (r *Registry[K, V]) Delete(key K) bool {
	s := r.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[key]
	delete(s.entries, key)
	return ok
}

// Len returns the number of entries across every shard.
func (r *Registry[K, V]) Len() int {
	n := 0
	for _, s := range r.shards {
		s.mu.RLock()
		n += len(s.entries)
		s.mu.RUnlock()
	}
	return n
}

// Keys returns a snapshot of all keys. Order is not guaranteed.
func (r *Registry[K, V]) Keys() []K {
	var keys []K
	for _, s := range r.shards {
		s.mu.RLock()
		for k := range s.entries {
			keys = append(keys, k)
		}
		s.mu.RUnlock()
	}
	return keys
}

// Snapshot returns a copy of all entries, safe to range over without
// holding any shard's lock.
func (r *Registry[K, V]) Snapshot() map[K]V {
	out := make(map[K]V)
	for _, s := range r.shards {
		s.mu.RLock()
		for k, v := range s.entries {
			out[k] = v
		}
		s.mu.RUnlock()
	}
	return out
}

// Update atomically loads the current value for key (zero value if
// absent) and replaces it with the result of fn. fn runs under the
// owning shard's write lock, so it must not call back into the
// registry, but it never blocks on unrelated keys.
func (r *Registry[K, V]) Update(key K, fn func(V, bool) V) V {
	s := r.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.entries[key]
	next := fn(cur, ok)
	s.entries[key] = next
	return next
}

// GetOrCreate returns the existing value for key, or creates it with
// factory if absent. factory runs at most once per key even under
// concurrent callers of the same key; it never blocks on unrelated keys.
func (r *Registry[K, V]) GetOrCreate(key K, factory func() V) V {
	s := r.shardFor(key)

	s.mu.RLock()
	v, ok := s.entries[key]
	s.mu.RUnlock()
	if ok {
		return v
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.entries[key]; ok {
		return v
	}
	v = factory()
	s.entries[key] = v
	return v
}

// CompareAndSwap replaces the value for key with next only if the
// current value's identity matches old under eq. Used by the graph
// store to detect the optimistic-concurrency conflict described in the
// merge engine's retry loop. Returns false (no-op) if key is absent or
// the current value no longer matches old.
func (r *Registry[K, V]) CompareAndSwap(key K, old, next V, eq func(a, b V) bool) bool {
	s := r.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.entries[key]
	if !ok || !eq(cur, old) {
		return false
	}
	s.entries[key] = next
	return true
}

// Range iterates a snapshot of the entries, stopping early if fn
// returns false. Mutating the registry during Range is safe.
func (r *Registry[K, V]) Range(fn func(K, V) bool) {
	snap := r.Snapshot()
	for k, v := range snap {
		if !fn(k, v) {
			return
		}
	}
}
