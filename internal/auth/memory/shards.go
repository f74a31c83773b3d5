// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bagbot Contributors

// Package memory provides in-process implementations of the auth stores.
//
// Every store partitions its keys over a fixed set of mutex-guarded shards,
// so contention is limited to keys that hash to the same shard and no
// operation locks the whole store.
package memory

import (
	"hash/maphash"
	"sync"
)

const shardCount = 32

type shard[V any] struct {
	mu sync.Mutex
	m  map[string]V
}

// shardedMap is a string-keyed map split over shardCount independently
// locked shards. Callers operate on a shard through with, which holds its
// lock for the duration of fn.
type shardedMap[V any] struct {
	seed   maphash.Seed
	shards [shardCount]*shard[V]
}

func newShardedMap[V any]() *shardedMap[V] {
	sm := &shardedMap[V]{seed: maphash.MakeSeed()}
	for i := range sm.shards {
		sm.shards[i] = &shard[V]{m: make(map[string]V)}
	}
	return sm
}

func (sm *shardedMap[V]) shardFor(key string) *shard[V] {
	return sm.shards[maphash.String(sm.seed, key)%shardCount]
}

// with runs fn with exclusive access to the shard map that owns key.
func (sm *shardedMap[V]) with(key string, fn func(m map[string]V)) {
	s := sm.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.m)
}

// each runs fn on every shard in turn, one lock at a time.
func (sm *shardedMap[V]) each(fn func(m map[string]V)) {
	for _, s := range sm.shards {
		s.mu.Lock()
		fn(s.m)
		s.mu.Unlock()
	}
}

func (sm *shardedMap[V]) len() int {
	n := 0
	sm.each(func(m map[string]V) { n += len(m) })
	return n
}
