// Package retain provides the bounded caches the tick engine keeps across
// ticks (spec.md §6.5).
//
// Cache is recency-bounded — "keep the last N, admission-policy evict the
// rest" — and backed by ristretto's cost-aware admission cache (SPEC_FULL.md
// §C) instead of a hand-rolled list+map LRU; the engine uses it for the
// intent-id dedup record and the commit-hash → tick index. Window is
// strictly tick-ordered instead: eviction must drop the oldest tick, never
// whatever ristretto's sampled-LFU policy happens to deem coldest, so the
// engine's patch (provenance), receipt, snapshot, emissions-digest and
// checkpoint windows are Windows over the standard library.
package retain

import (
	"sync"

	"github.com/dgraph-io/ristretto/v2"
)

// Cache is a cost-bounded cache over a fixed entry budget, grounded on
// ristretto.Cache (dgraph-io/ristretto/v2, promoted from the teacher's
// indirect pebble dependency per SPEC_FULL.md §C). The engine uses it for
// the intent-id dedup record and the commit-hash → tick index.
type Cache[K comparable, V any] struct {
	c      *ristretto.Cache[K, V]
	sizeOf func(V) int64
}

// NewCache builds a Cache admitting at most capEntries resident values,
// each costed at 1 unless sizeOf is non-nil.
func NewCache[K comparable, V any](capEntries int, sizeOf func(V) int64) (*Cache[K, V], error) {
	if capEntries <= 0 {
		capEntries = 1
	}
	if sizeOf == nil {
		sizeOf = func(V) int64 { return 1 }
	}
	c, err := ristretto.NewCache(&ristretto.Config[K, V]{
		NumCounters: int64(capEntries) * 10,
		MaxCost:     int64(capEntries),
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Cache[K, V]{c: c, sizeOf: sizeOf}, nil
}

// Put admits v under its computed cost. Admission is probabilistic under
// ristretto's policy: a Put is not guaranteed to make v immediately visible
// to Get until Wait returns, which Put calls before returning.
func (c *Cache[K, V]) Put(k K, v V) {
	c.c.Set(k, v, c.sizeOf(v))
	c.c.Wait()
}

func (c *Cache[K, V]) Get(k K) (V, bool) {
	return c.c.Get(k)
}

func (c *Cache[K, V]) Delete(k K) {
	c.c.Del(k)
}

func (c *Cache[K, V]) Close() {
	c.c.Close()
}

// Window is a fixed-depth FIFO ring keyed by monotonically increasing tick
// numbers — the shape of the provenance window (spec.md §6.5 "1000-tick
// provenance window") and the engine's other per-tick windows: entries age
// out strictly by tick order, never by access recency, so Window does not
// reuse LRU's promote-on-Get semantics.
type Window[V any] struct {
	mu      sync.Mutex
	depth   int
	entries map[uint64]V
	order   []uint64 // ascending tick order, oldest first
}

// NewWindow builds a Window retaining at most depth ticks (minimum 1).
func NewWindow[V any](depth int) *Window[V] {
	if depth <= 0 {
		depth = 1
	}
	return &Window[V]{
		depth:   depth,
		entries: make(map[uint64]V, depth),
	}
}

// Put records v at tick, evicting the oldest tick(s) if depth is exceeded.
// Callers must insert ticks in non-decreasing order; Put panics otherwise,
// since an out-of-order insert would silently corrupt the eviction window.
func (w *Window[V]) Put(tick uint64, v V) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if n := len(w.order); n > 0 && tick < w.order[n-1] {
		panic("retain: Window.Put called with a tick older than the last inserted tick")
	}
	if _, exists := w.entries[tick]; !exists {
		w.order = append(w.order, tick)
	}
	w.entries[tick] = v
	for len(w.order) > w.depth {
		oldest := w.order[0]
		w.order = w.order[1:]
		delete(w.entries, oldest)
	}
}

func (w *Window[V]) Get(tick uint64) (V, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	v, ok := w.entries[tick]
	return v, ok
}

// Oldest returns the smallest tick still resident, and false if empty.
func (w *Window[V]) Oldest() (uint64, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.order) == 0 {
		return 0, false
	}
	return w.order[0], true
}

func (w *Window[V]) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.order)
}
