// Package txnlock provides the sharded mutex registry that serializes
// access to a single Transaction's cross-worker state (phase, locked rows,
// budget remaining). Row-sharding in package workerpool keeps per-row work
// serialized for free, but a single transaction spans many rows routed to
// many different workers, so its Transaction value still needs protection
// from concurrent mutation.
package txnlock

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

// DefaultShards is the shard count used when a Registry is not given an
// explicit size.
const DefaultShards = 256

// Registry hands out a stable *sync.Mutex for any transaction id, without
// ever allocating one lock per id: transaction ids hash into a fixed-size
// array of shards, so memory use is constant regardless of how many
// transactions have ever been registered.
type Registry struct {
	shards []sync.Mutex
}

// New creates a Registry with the given shard count. shardCount <= 0 falls
// back to DefaultShards.
func New(shardCount int) *Registry {
	if shardCount <= 0 {
		shardCount = DefaultShards
	}
	return &Registry{shards: make([]sync.Mutex, shardCount)}
}

// Lock returns the mutex for txID, already locked. Callers must call Unlock
// on the returned mutex (or use the With helper) to release it.
func (r *Registry) Lock(txID uint64) *sync.Mutex {
	mu := r.mutexFor(txID)
	mu.Lock()
	return mu
}

// With runs fn while holding the mutex for txID.
func (r *Registry) With(txID uint64, fn func()) {
	mu := r.mutexFor(txID)
	mu.Lock()
	defer mu.Unlock()
	fn()
}

func (r *Registry) mutexFor(txID uint64) *sync.Mutex {
	var buf [8]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(txID >> (8 * i))
	}
	shard := xxhash.Sum64(buf[:]) % uint64(len(r.shards))
	return &r.shards[shard]
}
