// Package locktable provides the concurrent LockTable and TransactionTable
// maps: linearizable get/put-if-absent/remove keyed by row-id and
// transaction-id respectively, backed by a lock-free concurrent map.
package locktable

import "github.com/puzpuzpuz/xsync/v3"

// Table is a linearizable concurrent map from K to V. Single-key operations
// (Get, PutIfAbsent, Remove) are individually linearizable; callers needing
// "pin a row's Lock for one job's duration" get that for free from the
// sharded routing in package workerpool, which guarantees only one
// goroutine ever touches a given key's value at a time — Table itself only
// needs to be safe for concurrent registration/diagnostic reads from other
// goroutines.
type Table[K comparable, V any] struct {
	m *xsync.MapOf[K, V]
}

// New creates an empty Table. sizeHint corresponds to a configured initial
// size; xsync.MapOf grows its bucket array on demand, so the hint is
// accepted for interface symmetry with the config record but does not
// change behavior.
func New[K comparable, V any](sizeHint int) *Table[K, V] {
	_ = sizeHint
	return &Table[K, V]{m: xsync.NewMapOf[K, V]()}
}

// Get returns the value stored for key, if any.
func (t *Table[K, V]) Get(key K) (V, bool) {
	return t.m.Load(key)
}

// PutIfAbsent stores value under key only if key is not already present.
// It returns the value now stored (either the existing one or value) and
// whether value was the one stored.
func (t *Table[K, V]) PutIfAbsent(key K, value V) (V, bool) {
	actual, loaded := t.m.LoadOrStore(key, value)
	return actual, !loaded
}

// Put unconditionally stores value under key.
func (t *Table[K, V]) Put(key K, value V) {
	t.m.Store(key, value)
}

// Remove deletes key, if present.
func (t *Table[K, V]) Remove(key K) {
	t.m.Delete(key)
}

// RemoveIf deletes key only if the currently stored value satisfies pred.
// It reports whether a deletion occurred. Used to evict a Lock only if it
// is still Free at the moment of deletion. Because row routing guarantees
// a single row is only ever mutated by its one owning worker, the
// Load-then-Delete here races only against registration/diagnostic
// readers, never against another mutator of the same key.
func (t *Table[K, V]) RemoveIf(key K, pred func(V) bool) bool {
	value, ok := t.m.Load(key)
	if !ok || !pred(value) {
		return false
	}
	t.m.Delete(key)
	return true
}

// Len returns the current number of entries.
func (t *Table[K, V]) Len() int {
	n := 0
	t.m.Range(func(K, V) bool {
		n++
		return true
	})
	return n
}

// Range calls fn for every entry until fn returns false.
func (t *Table[K, V]) Range(fn func(key K, value V) bool) {
	t.m.Range(fn)
}
