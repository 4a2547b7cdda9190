// Package scheduler implements canonical admission ordering and O(1)
// per-resource conflict detection (spec.md §4.4): a radix sort over a
// fixed 40-byte candidate key, and a generation-stamped active-footprint
// set that clears in O(1) between ticks.
//
// Grounded on the teacher's Frontier()/tips bookkeeping in
// engine/dag/consensus_real.go (deterministic ascending order regardless
// of insertion order) and on the generation-counter idiom common in the
// pack's cache implementations (dgraph-io/ristretto's admission policy),
// generalized here into an explicit GenSet so that "clear all marks"
// never has to walk the underlying maps.
package scheduler

import (
	"encoding/binary"

	"github.com/luxfi/warp/footprint"
	"github.com/luxfi/warp/hash"
	"github.com/luxfi/warp/rule"
)

// CandidateKey is the 40-byte canonical ordering key: scope_hash[32] ||
// rule_id[4] little-endian || nonce[4] little-endian (spec.md §4.4). Byte-
// lexicographic order over this key is the tick's canonical admission
// order.
type CandidateKey [40]byte

// NewCandidateKey packs a candidate's ordering key.
func NewCandidateKey(scopeHash hash.Hash, ruleID uint32, nonce uint32) CandidateKey {
	var k CandidateKey
	copy(k[0:32], scopeHash[:])
	binary.LittleEndian.PutUint32(k[32:36], ruleID)
	binary.LittleEndian.PutUint32(k[36:40], nonce)
	return k
}

// Compare orders two keys byte-lexicographically ascending.
func (k CandidateKey) Compare(o CandidateKey) int {
	for i := range k {
		if k[i] != o[i] {
			if k[i] < o[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// pendingID is the dedup key of the scheduler's pending set: (scope_hash,
// compact_rule), last-wins (spec.md §4.4 "Pending set").
type pendingID struct {
	ScopeHash hash.Hash
	CompactID hash.CompactRuleID
}

// Candidate is one proposed rewrite awaiting admission.
type Candidate struct {
	Key           CandidateKey
	ScopeHash     hash.Hash
	RuleID        uint32
	CompactRuleID hash.CompactRuleID
	Nonce         uint32
	Footprint     footprint.Footprint
	ConflictPolicy rule.ConflictPolicy
	// Payload is opaque to the scheduler; it threads through to the
	// admitted-set output so the tick engine can recover the
	// rule.PendingRewrite a Candidate was built from.
	Payload any
}

// PendingSet collects candidates keyed by (scope_hash, compact_rule) with
// last-wins deduplication; iteration order is never observed, candidates
// always drain through Sort before admission.
type PendingSet struct {
	byID map[pendingID]Candidate
}

// NewPendingSet returns an empty PendingSet.
func NewPendingSet() *PendingSet {
	return &PendingSet{byID: make(map[pendingID]Candidate)}
}

// Add inserts or replaces (last-wins) the candidate for its (scope,
// compact rule) identity.
func (p *PendingSet) Add(c Candidate) {
	p.byID[pendingID{ScopeHash: c.ScopeHash, CompactID: c.CompactRuleID}] = c
}

// Len returns the number of distinct pending candidates.
func (p *PendingSet) Len() int {
	return len(p.byID)
}

// Drain returns every candidate in canonical (CandidateKey-ascending)
// order, using the radix sort for large batches and a comparison sort
// fallback below the threshold (spec.md §4.4).
func (p *PendingSet) Drain() []Candidate {
	out := make([]Candidate, 0, len(p.byID))
	for _, c := range p.byID {
		out = append(out, c)
	}
	p.byID = make(map[pendingID]Candidate)
	Sort(out)
	return out
}

// radixThreshold is the candidate count below which the comparison sort
// fallback is used instead of the 20-pass LSD radix sort (spec.md §4.4).
const radixThreshold = 1024

// Sort orders candidates ascending by CandidateKey in place.
func Sort(candidates []Candidate) {
	if len(candidates) < radixThreshold {
		comparisonSort(candidates)
		return
	}
	radixSort(candidates)
}

func comparisonSort(candidates []Candidate) {
	// insertion sort is adequate below the radix threshold and keeps this
	// package free of a second sort algorithm's worth of bugs; candidate
	// batches this small are not a throughput concern.
	for i := 1; i < len(candidates); i++ {
		for j := i; j > 0 && candidates[j].Key.Compare(candidates[j-1].Key) < 0; j-- {
			candidates[j], candidates[j-1] = candidates[j-1], candidates[j]
		}
	}
}

// radixSort performs a 20-pass LSD radix sort with 16-bit digits
// (65,536 buckets per pass) over the 40-byte CandidateKey, processing
// least-significant digit first so the final pass leaves the slice in
// ascending byte-lexicographic order (spec.md §4.4).
func radixSort(candidates []Candidate) {
	const passes = 20
	const buckets = 1 << 16

	src := candidates
	dst := make([]Candidate, len(candidates))

	var counts [buckets]int
	for pass := 0; pass < passes; pass++ {
		byteOff := 40 - 2*(pass+1)
		for i := range counts {
			counts[i] = 0
		}
		for _, c := range src {
			d := digit16(c.Key, byteOff)
			counts[d]++
		}
		sum := 0
		for i := 0; i < buckets; i++ {
			c := counts[i]
			counts[i] = sum
			sum += c
		}
		for _, c := range src {
			d := digit16(c.Key, byteOff)
			dst[counts[d]] = c
			counts[d]++
		}
		src, dst = dst, src
	}
	if passes%2 == 1 {
		copy(candidates, src)
	}
}

// digit16 reads the 16-bit big-endian digit starting at byte offset off
// within a CandidateKey, treating the key as one big big-endian integer so
// that ascending digit order matches ascending byte-lexicographic order.
func digit16(k CandidateKey, off int) int {
	return int(k[off])<<8 | int(k[off+1])
}
