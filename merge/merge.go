// Package merge implements the canonical merge step (spec.md §4.6): it
// combines every worker's thread-local delta into one ordered, conflict-
// free patch, enforcing that instances opened empty this tick are not
// written to in the same tick.
//
// Grounded on the teacher's vertex-conflict-set resolution in
// engine/dag/consensus_real.go (collect candidate votes, then a single
// deterministic pass decides acceptance), generalized from "majority vote
// over one vertex" to "canonical sort plus exact-duplicate dedup over the
// whole op set."
package merge

import (
	"fmt"
	"slices"

	"github.com/luxfi/warp/boaw"
	"github.com/luxfi/warp/hash"
	"github.com/luxfi/warp/warpop"
)

// MergeConflict is raised when two ops share a WarpOpKey but carry
// different payloads: the footprints that admitted them lied about being
// independent (spec.md §4.6 step 5).
type MergeConflict struct {
	Key warpop.WarpOpKey
}

func (e *MergeConflict) Error() string {
	return fmt.Sprintf("merge: conflicting ops at key %+v", e.Key)
}

// WriteToNewWarp is raised when an op other than the OpenPortal/
// UpsertWarpInstance pair targets a warp instance opened Empty in the same
// tick (spec.md §4.6 step 2): new instances are created empty, so a
// same-tick write would make the result depend on merge order.
type WriteToNewWarp struct {
	WarpID hash.WarpID
	Origin warpop.OpOrigin
	Kind   warpop.Kind
}

func (e *WriteToNewWarp) Error() string {
	return fmt.Sprintf("merge: op kind %d from origin %+v writes to warp %s opened Empty this tick", e.Kind, e.Origin, e.WarpID)
}

// ForwardedPoison wraps the tick's PoisonedDelta reports: a poisoned
// worker always aborts the merge before any sort/dedup work, per spec.md
// §4.6 outcome list.
type ForwardedPoison struct {
	Poisoned []boaw.PoisonedDelta
}

func (e *ForwardedPoison) Error() string {
	return fmt.Sprintf("merge: %d poisoned delta(s) forwarded from execution", len(e.Poisoned))
}

// Patch is the canonical, deduplicated, conflict-free op sequence produced
// by one successful merge.
type Patch struct {
	Ops []warpop.TaggedOp
}

// Merge runs the five-step algorithm of spec.md §4.6 over workers' deltas.
// A non-empty poisoned list short-circuits immediately: the tick is
// already doomed and no sort/dedup work is meaningful.
func Merge(workers []boaw.WorkerOutput, poisoned []boaw.PoisonedDelta) (Patch, error) {
	if len(poisoned) > 0 {
		return Patch{}, &ForwardedPoison{Poisoned: poisoned}
	}

	var all []warpop.TaggedOp
	for _, w := range workers {
		if w.Delta == nil {
			continue
		}
		all = append(all, w.Delta.Ops...)
	}

	if err := validateNoWritesToEmptyPortals(all); err != nil {
		return Patch{}, err
	}

	slices.SortFunc(all, func(a, b warpop.TaggedOp) int {
		if c := a.Op.Key().Compare(b.Op.Key()); c != 0 {
			return c
		}
		return a.Origin.Compare(b.Origin)
	})

	out, err := dedupeAndDetectConflicts(all)
	if err != nil {
		return Patch{}, err
	}
	return Patch{Ops: out}, nil
}

func validateNoWritesToEmptyPortals(all []warpop.TaggedOp) error {
	emptyChildren := make(map[hash.WarpID]struct{})
	for _, t := range all {
		if op, ok := t.Op.(warpop.OpenPortalOp); ok && op.Init.Mode == warpop.InitEmpty {
			emptyChildren[op.ChildWarp] = struct{}{}
		}
	}
	if len(emptyChildren) == 0 {
		return nil
	}
	for _, t := range all {
		warpID := t.Op.Key().WarpID
		if _, isNew := emptyChildren[warpID]; !isNew {
			continue
		}
		switch t.Op.(type) {
		case warpop.OpenPortalOp, warpop.UpsertWarpInstanceOp:
			continue // the portal's own companion ops are expected
		default:
			return &WriteToNewWarp{WarpID: warpID, Origin: t.Origin, Kind: t.Op.Key().Kind}
		}
	}
	return nil
}

// dedupeAndDetectConflicts walks the sorted ops grouped by WarpOpKey:
// identical payloads across a group collapse to one representative;
// divergent payloads are a MergeConflict.
func dedupeAndDetectConflicts(sorted []warpop.TaggedOp) ([]warpop.TaggedOp, error) {
	out := make([]warpop.TaggedOp, 0, len(sorted))
	i := 0
	for i < len(sorted) {
		j := i + 1
		for j < len(sorted) && sorted[j].Op.Key().Compare(sorted[i].Op.Key()) == 0 {
			j++
		}
		group := sorted[i:j]
		for k := 1; k < len(group); k++ {
			if !group[0].Op.Equal(group[k].Op) {
				return nil, &MergeConflict{Key: group[0].Op.Key()}
			}
		}
		out = append(out, group[0])
		i = j
	}
	return out, nil
}
