// Package boaw implements the Bag-Of-Active-Workers parallel execution
// model (spec.md §4.5): admitted rewrites are partitioned into 256 fixed
// virtual shards, workers claim shards via an atomic counter, and each
// worker accumulates its effects into a thread-local delta and emitter —
// no shared mutable state, no locks held across shard boundaries.
//
// Grounded on the teacher's worker-pool dispatch in engine/dag (goroutines
// draining a work queue under golang.org/x/sync/errgroup) generalized from
// "drain a channel of blocks to verify" to "atomically claim a fixed shard
// index and drain it sequentially," which is what lets admission stay
// independent of worker count (spec.md §4.5 "Scheduling guarantees").
package boaw

import (
	"encoding/binary"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/luxfi/warp/footprint"
	"github.com/luxfi/warp/graph"
	"github.com/luxfi/warp/guard"
	"github.com/luxfi/warp/hash"
	"github.com/luxfi/warp/matbus"
	"github.com/luxfi/warp/rule"
	"github.com/luxfi/warp/warpop"
)

// NumShards is the frozen protocol constant (spec.md §4.5): changing it
// changes shard_of's output and therefore every digest ever produced.
const NumShards = 256

// ShardOf computes the shard a scope belongs to: the low 64 bits of its
// hash, little-endian, masked to 8 bits.
func ShardOf(scopeHash hash.Hash) uint8 {
	v := binary.LittleEndian.Uint64(scopeHash[0:8])
	return uint8(v & 0xff)
}

// ExecItem is one admitted rewrite ready to run (spec.md §4.5). Origin
// carries the stable tie-breaking identity the merge step needs.
type ExecItem struct {
	Rule      *rule.Rule
	Scope     rule.MatchScope
	Payload   any
	Footprint footprint.Footprint
	Origin    warpop.OpOrigin
}

// PoisonedDelta records a rule panic captured during execution (spec.md
// §4.5): any ops the rule had already emitted before panicking are
// discarded, never merged.
type PoisonedDelta struct {
	Origin warpop.OpOrigin
	Scope  rule.MatchScope
	Panic  any
}

// MissingStoreReport records an ExecItem whose target warp instance was
// absent from the universe at execution time.
type MissingStoreReport struct {
	Origin warpop.OpOrigin
	WarpID hash.WarpID
}

// WorkerOutput is one worker's complete accumulated effect across every
// shard it claimed.
type WorkerOutput struct {
	Delta   *warpop.Delta
	Emitter *matbus.Emitter
}

// Result is the full output of one Run call. Workers, Poisoned, and
// Missing feed directly into the merge step (spec.md §4.6).
type Result struct {
	Workers  []WorkerOutput
	Poisoned []PoisonedDelta
	Missing  []MissingStoreReport
}

// Run partitions items into NumShards shards by ShardOf(scope_hash),
// dispatches min(workers, NumShards) goroutines that atomically claim
// shards and drain them sequentially, and returns every worker's
// accumulated output (spec.md §4.5, §4.9 step 5-6).
//
// universe must be an immutable, already-cloned snapshot: Run never
// mutates it, and every ExecItem observes it only through a per-item
// guard.View scoped to that item's declared Footprint.
func Run(universe *graph.Universe, items []ExecItem, workers int, guardMode guard.Mode) Result {
	shards := make([][]ExecItem, NumShards)
	for _, item := range items {
		s := ShardOf(item.Scope.ScopeHash())
		shards[s] = append(shards[s], item)
	}

	if workers < 1 {
		workers = 1
	}
	if workers > NumShards {
		workers = NumShards
	}

	var nextShard atomic.Int64
	outputs := make([]WorkerOutput, workers)
	poisoned := make([][]PoisonedDelta, workers)
	missing := make([][]MissingStoreReport, workers)

	var g errgroup.Group
	for w := 0; w < workers; w++ {
		w := w
		g.Go(func() error {
			delta := &warpop.Delta{}
			emitter := &matbus.Emitter{}
			for {
				idx := nextShard.Add(1) - 1
				if idx >= NumShards {
					break
				}
				for _, item := range shards[idx] {
					runItem(universe, item, guardMode, delta, emitter, &poisoned[w], &missing[w])
				}
			}
			outputs[w] = WorkerOutput{Delta: delta, Emitter: emitter}
			return nil
		})
	}
	_ = g.Wait() // worker goroutines never return a non-nil error; panics are recovered per item

	var res Result
	res.Workers = outputs
	for _, p := range poisoned {
		res.Poisoned = append(res.Poisoned, p...)
	}
	for _, m := range missing {
		res.Missing = append(res.Missing, m...)
	}
	return res
}

// runItem executes one item into a call-scoped local delta/emitter so that
// a panic or error partway through can discard exactly this item's
// not-yet-committed ops (spec.md §4.5 "any ops emitted are discarded")
// without touching anything the worker has already accumulated from prior
// items in its claimed shards.
func runItem(universe *graph.Universe, item ExecItem, guardMode guard.Mode, delta *warpop.Delta, emitter *matbus.Emitter, poisoned *[]PoisonedDelta, missing *[]MissingStoreReport) {
	if _, ok := universe.Store(item.Scope.WarpID); !ok {
		*missing = append(*missing, MissingStoreReport{Origin: item.Origin, WarpID: item.Scope.WarpID})
		return
	}

	local := &warpop.Delta{}
	localEmitter := &matbus.Emitter{}

	if p, isPoisoned := execItem(universe, item, guardMode, local, localEmitter); isPoisoned {
		*poisoned = append(*poisoned, PoisonedDelta{Origin: item.Origin, Scope: item.Scope, Panic: p})
		return
	}
	delta.Ops = append(delta.Ops, local.Ops...)
	emitter.Emissions = append(emitter.Emissions, localEmitter.Emissions...)
}

// execItem runs one rule's execute_fn, recovering a panic into the same
// poisoned-result shape as an execute_fn error return (spec.md §7 lists
// only PoisonedDelta and MissingStore as execution failures).
func execItem(universe *graph.Universe, item ExecItem, guardMode guard.Mode, local *warpop.Delta, localEmitter *matbus.Emitter) (panicValue any, isPoisoned bool) {
	defer func() {
		if r := recover(); r != nil {
			panicValue, isPoisoned = r, true
		}
	}()
	view := guard.NewView(universe, guardMode, item.Footprint)
	sink := guard.NewSink(local, guardMode, item.Footprint, item.Origin)
	if err := item.Rule.Execute(view, item.Scope, item.Payload, sink, localEmitter); err != nil {
		return err, true
	}
	return nil, false
}
