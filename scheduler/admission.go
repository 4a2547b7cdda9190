package scheduler

import (
	"fmt"

	"github.com/luxfi/warp/footprint"
	"github.com/luxfi/warp/rule"
)

// DecisionKind classifies what happened to one candidate during admission.
type DecisionKind uint8

const (
	Admitted DecisionKind = iota
	Deferred
	Dropped
)

// Decision records one candidate's admission outcome, suitable for
// attaching to a TickReceipt (spec.md §4.9 step 4 "Record in TickReceipt").
// BlockedBy indexes into the same Decisions slice Admit returns, naming the
// earlier (lower-index) admitted candidates this one's footprint collided
// with — the causality witness behind spec.md §3.7's blocked_by field and
// the engine's Conflicts(candidateKey) introspection.
type Decision struct {
	Candidate Candidate
	Kind      DecisionKind
	BlockedBy []int
}

// RejectedError is returned from Admit when a candidate with
// rule.PolicyReject conflicts with an already-admitted resource; per
// spec.md §4.4 this aborts the whole tick rather than producing a partial
// admitted set.
type RejectedError struct {
	Candidate Candidate
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("scheduler: candidate %x rejected on footprint conflict (PolicyReject)", e.Candidate.Key)
}

// Result is the outcome of one tick's admission pass.
type Result struct {
	Admitted []Candidate
	Deferred []Candidate
	Dropped  []Candidate
}

// Admit runs the canonical admission algorithm (spec.md §4.4, §4.9 step 4):
// drain candidates in canonical order, test each against active, mark on
// success, and apply the candidate's conflict policy on failure. Admit
// never calls active.Advance(); a caller that reuses one ActiveFootprints
// across ticks calls it between them (the engine instead builds a fresh
// one for every tick).
func Admit(pending *PendingSet, active *ActiveFootprints) (Result, error) {
	decisions, err := AdmitDecisions(pending, active)
	var res Result
	for _, d := range decisions {
		switch d.Kind {
		case Admitted:
			res.Admitted = append(res.Admitted, d.Candidate)
		case Deferred:
			res.Deferred = append(res.Deferred, d.Candidate)
		case Dropped:
			res.Dropped = append(res.Dropped, d.Candidate)
		}
	}
	return res, err
}

// AdmitDecisions runs the same algorithm as Admit but returns one Decision
// per candidate in canonical order, each carrying the indices of the
// already-admitted decisions (within the returned slice) that its
// footprint collided with. A PolicyReject abort still returns every
// decision made up to and including the rejecting candidate.
func AdmitDecisions(pending *PendingSet, active *ActiveFootprints) ([]Decision, error) {
	ordered := pending.Drain()
	decisions := make([]Decision, 0, len(ordered))
	var admittedIdx []int // indices into decisions of Admitted entries, in order

	for _, c := range ordered {
		if active.Independent(c.Footprint) {
			active.Mark(c.Footprint)
			idx := len(decisions)
			decisions = append(decisions, Decision{Candidate: c, Kind: Admitted})
			admittedIdx = append(admittedIdx, idx)
			continue
		}

		blockedBy := blockers(c, decisions, admittedIdx)
		switch c.ConflictPolicy {
		case rule.PolicyRetryNextTick:
			decisions = append(decisions, Decision{Candidate: c, Kind: Deferred, BlockedBy: blockedBy})
		case rule.PolicyDropWithReport:
			decisions = append(decisions, Decision{Candidate: c, Kind: Dropped, BlockedBy: blockedBy})
		case rule.PolicyReject:
			decisions = append(decisions, Decision{Candidate: c, Kind: Dropped, BlockedBy: blockedBy})
			return decisions, &RejectedError{Candidate: c}
		default:
			return decisions, fmt.Errorf("scheduler: unknown conflict policy %d", c.ConflictPolicy)
		}
	}
	return decisions, nil
}

// blockers finds which already-admitted decisions (by index into decisions)
// conflict with c's footprint, re-running the pairwise independence test
// directly (footprint.Independent) since ActiveFootprints itself only
// tracks the union, not which member caused a given overlap.
func blockers(c Candidate, decisions []Decision, admittedIdx []int) []int {
	var out []int
	for _, idx := range admittedIdx {
		if !footprint.Independent(c.Footprint, decisions[idx].Candidate.Footprint) {
			out = append(out, idx)
		}
	}
	return out
}
