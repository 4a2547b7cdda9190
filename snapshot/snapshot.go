// Package snapshot implements per-tick commitment (spec.md §3.7, §4.7): the
// Snapshot and TickReceipt records, their digests, and the columnar
// on-disk format (columnar.go).
//
// Grounded on the teacher's block-commitment pattern in dag/dag.go (a
// block's hash commits to its parents plus its payload) generalized from
// "one block hash" to "a family of digests — state root, patch digest,
// commit hash, receipt digest — each domain-tagged so they can never be
// confused for one another even though all are 32-byte BLAKE3 outputs."
package snapshot

import (
	"github.com/luxfi/warp/graph"
	"github.com/luxfi/warp/hash"
	"github.com/luxfi/warp/internal/canon"
	"github.com/luxfi/warp/merge"
)

const versionTag = "warp.snapshot.v1\x00"

// Snapshot records one committed tick's linkage and digests (spec.md
// §3.7).
type Snapshot struct {
	Root           hash.NodeID
	Hash           hash.Hash
	StateRoot      hash.Hash
	Parents        []hash.Hash
	PlanDigest     hash.Hash
	DecisionDigest hash.Hash
	RewritesDigest hash.Hash
	PatchDigest    hash.Hash
	PolicyID       uint32
	Tx             uint64
	CommitHash     hash.Hash
}

// PatchDigest computes the versioned, byte-deterministic encoding of a
// merged patch plus tick metadata (spec.md §4.7).
func PatchDigest(tick uint64, patch merge.Patch) hash.Hash {
	w := canon.NewWriter()
	w.Tag(versionTag)
	w.U64(tick)
	w.U64(uint64(len(patch.Ops)))
	for _, t := range patch.Ops {
		t.Op.Encode(w)
	}
	return hash.Derive(hash.Tags.PatchDigest, w.Bytes())
}

// CommitHash implements spec.md §4.7's exact formula:
// H(version_tag || u32_le(parents_len) || parents... || state_root ||
// patch_digest || u32_le(policy_id)).
func CommitHash(parents []hash.Hash, stateRoot, patchDigest hash.Hash, policyID uint32) hash.Hash {
	w := canon.NewWriter()
	w.Tag(versionTag)
	w.U32(uint32(len(parents)))
	for _, p := range parents {
		w.Raw(p.Bytes())
	}
	w.Raw(stateRoot.Bytes())
	w.Raw(patchDigest.Bytes())
	w.U32(policyID)
	return hash.Derive(hash.Tags.CommitHash, w.Bytes())
}

// DigestSequence hashes an ordered sequence of opaque byte blobs under a
// label-derived domain tag. It backs plan_digest/decision_digest/
// rewrites_digest, each of which commits to a different stage's ordered
// output but shares this same canonical-sequence shape.
func DigestSequence(label string, items [][]byte) hash.Hash {
	w := canon.NewWriter()
	w.U64(uint64(len(items)))
	for _, it := range items {
		w.Blob(it)
	}
	return hash.Derive("warp.hash."+label+"V1\x00", w.Bytes())
}

// Build assembles a Snapshot for the tick that produced patch, given the
// post-patch universe and the prior commit's hash(es) as parents.
func Build(universe *graph.Universe, rootWarpID hash.WarpID, parents []hash.Hash, tick uint64, patch merge.Patch, policyID uint32, tx uint64, planDigest, decisionDigest, rewritesDigest hash.Hash) (Snapshot, error) {
	stateRoot, err := graph.CanonicalStateHash(universe, rootWarpID)
	if err != nil {
		return Snapshot{}, err
	}
	patchDigest := PatchDigest(tick, patch)
	commitHash := CommitHash(parents, stateRoot, patchDigest, policyID)

	root := hash.NodeID{}
	if inst, ok := universe.Instance(rootWarpID); ok {
		root = inst.Root
	}

	return Snapshot{
		Root:           root,
		StateRoot:      stateRoot,
		Parents:        parents,
		PlanDigest:     planDigest,
		DecisionDigest: decisionDigest,
		RewritesDigest: rewritesDigest,
		PatchDigest:    patchDigest,
		PolicyID:       policyID,
		Tx:             tx,
		CommitHash:     commitHash,
	}, nil
}

// ReceiptEntry is one admitted rewrite's record within a TickReceipt,
// listed in canonical plan order.
type ReceiptEntry struct {
	ScopeHash     hash.Hash
	RuleID        uint32
	CompactRuleID hash.CompactRuleID
	// BlockedBy lists the indices of prior entries that conflicted with
	// this one (the causality witness). It is diagnostic metadata only:
	// Digest never reads it, so attaching or omitting witnesses never
	// changes commit identity (spec.md §3.7, §4.7).
	BlockedBy []int
}

// TickReceipt records, for each admitted rewrite in canonical plan order,
// its blocked_by witnesses (spec.md §3.7).
type TickReceipt struct {
	Entries []ReceiptEntry
}

// Digest commits only to the ordered entries' identity (scope, rule,
// compact rule id) — never to BlockedBy.
func (r TickReceipt) Digest() hash.Hash {
	w := canon.NewWriter()
	w.U64(uint64(len(r.Entries)))
	for _, e := range r.Entries {
		w.Raw(e.ScopeHash.Bytes())
		w.U32(e.RuleID)
		w.U32(uint32(e.CompactRuleID))
	}
	return hash.Derive(hash.Tags.ReceiptDigest, w.Bytes())
}
