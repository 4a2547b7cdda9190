package warpop

import "github.com/luxfi/warp/hash"

// OpOrigin identifies which admitted rewrite produced an op: its rule
// identity, its compact registry handle, and its position in the tick's
// canonical admission order (spec.md §4.5 ExecItem.origin). Origin is the
// tie-breaker component of the merge sort key (WarpOpKey, OpOrigin) and is
// how the merge step can tell two identical-key ops from different origins
// apart for dedup versus conflict detection (spec.md §4.6 step 3).
type OpOrigin struct {
	RuleFamily    hash.RuleFamilyID
	CompactRuleID hash.CompactRuleID
	AdmissionIdx  uint32
}

// Compare orders two origins ascending by admission index, then compact
// rule id, then family hash. Admission index dominates because it is what
// makes merge sort stable across otherwise-identical (rule, key) pairs.
func (o OpOrigin) Compare(p OpOrigin) int {
	if o.AdmissionIdx != p.AdmissionIdx {
		if o.AdmissionIdx < p.AdmissionIdx {
			return -1
		}
		return 1
	}
	if o.CompactRuleID != p.CompactRuleID {
		if o.CompactRuleID < p.CompactRuleID {
			return -1
		}
		return 1
	}
	return o.RuleFamily.Hash().Compare(p.RuleFamily.Hash())
}

// TaggedOp pairs a WarpOp with the origin that produced it.
type TaggedOp struct {
	Op     WarpOp
	Origin OpOrigin
}

// Delta is the append-only, thread-local sequence of WarpOps produced by
// one worker's execution of its claimed shards (spec.md §3.4, §4.5). A
// worker owns its Delta for the duration of execution; ownership transfers
// to the merge step once the worker returns it.
type Delta struct {
	Ops []TaggedOp
}

// Emit appends op, tagged with origin, to the delta.
func (d *Delta) Emit(op WarpOp, origin OpOrigin) {
	d.Ops = append(d.Ops, TaggedOp{Op: op, Origin: origin})
}
