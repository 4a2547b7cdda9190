// Package rule defines the RewriteRule bundle (spec.md §3.5): a rule family
// identity, a match function that proposes candidate scopes, a footprint
// function that declares the resources a match will touch, an execute
// function that performs the rewrite, and the conflict policy the
// scheduler applies when the rule's footprint collides with another
// candidate's.
//
// Grounded on the teacher's engine/dag vertex-transition model (a vertex's
// Accept/Reject decision is itself a small match/execute pair keyed by
// vertex id) generalized from "one fixed transition" to "an open registry
// of user-supplied match/footprint/execute triples."
package rule

import (
	"github.com/luxfi/warp/footprint"
	"github.com/luxfi/warp/guard"
	"github.com/luxfi/warp/hash"
	"github.com/luxfi/warp/matbus"
)

// ConflictPolicy selects what the scheduler does when a rule's declared
// footprint conflicts with an already-admitted candidate in the same tick
// (spec.md §4.4 step 2.3).
type ConflictPolicy uint8

const (
	// PolicyRetryNextTick defers the candidate; it is re-proposed by
	// matching on the following tick.
	PolicyRetryNextTick ConflictPolicy = iota
	// PolicyDropWithReport discards the candidate permanently and records
	// it in the TickReceipt as a dropped scheduling decision.
	PolicyDropWithReport
	// PolicyReject aborts the whole tick; used by rules whose authors
	// consider any footprint conflict a correctness bug upstream.
	PolicyReject
)

// MatchScope is the opaque scope a match_fn proposes a rewrite for — in
// practice a node, edge, or attachment identity the rule is keyed on. The
// engine only ever hashes and compares it; rules interpret their own scope
// type.
type MatchScope struct {
	WarpID hash.WarpID
	Node   hash.NodeID
}

// ScopeHash derives the 40-byte candidate key's leading scope_hash
// component (spec.md §4.4).
func (s MatchScope) ScopeHash() hash.Hash {
	return hash.Derive("warp.rule.Scope\x00", s.WarpID.Hash().Bytes(), s.Node.Hash().Bytes())
}

// MatchFn inspects the read-only view at one candidate scope and reports
// whether this rule's family could rewrite there. Returning false means
// "no match at this scope."
type MatchFn func(view *guard.View, scope MatchScope) (matched bool, payload any, err error)

// FootprintFn declares the full read/write resource set a rewrite at scope
// with the given match payload will touch. It must be called before
// execute_fn and must not itself mutate anything.
type FootprintFn func(view *guard.View, scope MatchScope, payload any) (footprint.Footprint, error)

// ExecuteFn performs the rewrite: it reads only through view, and every
// mutation it wants to make is appended through sink (and, when the rule
// also emits materialization entries, through emit).
type ExecuteFn func(view *guard.View, scope MatchScope, payload any, sink *guard.Sink, emit *matbus.Emitter) error

// Rule is one registered rewrite rule (spec.md §3.5).
type Rule struct {
	FamilyID       hash.RuleFamilyID
	CompactID      hash.CompactRuleID
	Match          MatchFn
	Footprint      FootprintFn
	Execute        ExecuteFn
	ConflictPolicy ConflictPolicy
}

// PendingRewrite is the output of matching: a proposed rewrite at a scope,
// with its declared footprint already computed, awaiting scheduling
// (spec.md §4.9 step 2).
type PendingRewrite struct {
	Rule      *Rule
	Scope     MatchScope
	Payload   any
	Footprint footprint.Footprint
}
