// Package hash provides the fixed 32-byte BLAKE3 digests and the strongly
// typed identifier wrappers (NodeID, EdgeID, WarpID, TypeID) used throughout
// the engine. Every content-derived identifier except IntentID (a plain
// BLAKE3 of the intent bytes) is constructed through Derive, which mixes a
// fixed ASCII domain-separation tag ahead of the caller's parts so that, for
// example, NodeID("foo") and TypeID("foo") can never collide.
//
// Grounded on the teacher's ID-handling conventions in utils/ids and the
// sorted-comparison idiom in engine/dag/consensus_real.go's Frontier(),
// generalized from a single opaque ids.ID to the engine's family of typed
// digests.
package hash

import (
	"encoding/hex"
	"encoding/binary"

	"github.com/zeebo/blake3"
)

// Size is the length in bytes of every digest in the engine.
const Size = 32

// Hash is a 32-byte BLAKE3 digest.
type Hash [Size]byte

// Zero is the all-zero digest, used as a sentinel for "no value" (e.g. a
// root instance's parent attachment key).
var Zero Hash

// IsZero reports whether h is the all-zero digest.
func (h Hash) IsZero() bool {
	return h == Zero
}

// Bytes returns h as a byte slice sharing no backing array with h.
func (h Hash) Bytes() []byte {
	out := make([]byte, Size)
	copy(out, h[:])
	return out
}

// String returns the lowercase hex encoding of h.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Compare returns -1, 0, or 1 according to the byte-lexicographic order of
// h and o. Ascending order under Compare is load-bearing for every
// deterministic iteration in the engine.
func (h Hash) Compare(o Hash) int {
	for i := range h {
		if h[i] != o[i] {
			if h[i] < o[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// Less reports whether h sorts before o.
func (h Hash) Less(o Hash) bool {
	return h.Compare(o) < 0
}

// FromBytes copies the first Size bytes of b into a Hash. It never panics:
// if b is shorter than Size the missing trailing bytes stay zero, so
// callers at trust boundaries (wire decoding) must check length first.
func FromBytes(b []byte) Hash {
	var h Hash
	copy(h[:], b)
	return h
}

// domain-separation tags. Each ends in a NUL byte so that a tag can never be
// a prefix of another (e.g. "warp.Node" is not a prefix of "warp.Node2").
const (
	tagNodeID         = "warp.id.Node\x00"
	tagEdgeID         = "warp.id.Edge\x00"
	tagWarpID         = "warp.id.Warp\x00"
	tagTypeID         = "warp.id.Type\x00"
	tagAttachmentKey  = "warp.id.AttachmentKey\x00"
	tagRuleFamily     = "warp.id.RuleFamily\x00"
	tagIntentID       = "warp.id.Intent\x00"
	tagStateRoot      = "warp.hash.StateRootV2\x00"
	tagPatchDigest    = "warp.hash.PatchDigestV1\x00"
	tagCommitHash     = "warp.hash.CommitHashV1\x00"
	tagReceiptDigest  = "warp.hash.ReceiptDigestV1\x00"
	tagChannelDigest  = "warp.hash.ChannelDigestV1\x00"
)

// Derive computes BLAKE3(tag || len(parts[0]) || parts[0] || len(parts[1]) ||
// parts[1] || ...). Each part is length-prefixed with a little-endian u64 so
// that concatenation is unambiguous (no "foo"+"bar" == "fo"+"obar" collision).
func Derive(tag string, parts ...[]byte) Hash {
	h := blake3.New()
	_, _ = h.Write([]byte(tag))
	var lenBuf [8]byte
	for _, p := range parts {
		binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(p)))
		_, _ = h.Write(lenBuf[:])
		_, _ = h.Write(p)
	}
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

// NodeID identifies a node, scoped to a WarpID by convention of the caller
// (the skeleton plane always pairs a NodeID with the WarpID of its store).
type NodeID Hash

func NewNodeID(s string) NodeID { return NodeID(Derive(tagNodeID, []byte(s))) }
func (id NodeID) Hash() Hash     { return Hash(id) }
func (id NodeID) String() string { return Hash(id).String() }
func (id NodeID) Compare(o NodeID) int { return Hash(id).Compare(Hash(o)) }
func (id NodeID) IsZero() bool   { return Hash(id).IsZero() }

// EdgeID identifies an edge.
type EdgeID Hash

func NewEdgeID(s string) EdgeID { return EdgeID(Derive(tagEdgeID, []byte(s))) }
func (id EdgeID) Hash() Hash     { return Hash(id) }
func (id EdgeID) String() string { return Hash(id).String() }
func (id EdgeID) Compare(o EdgeID) int { return Hash(id).Compare(Hash(o)) }

// WarpID identifies one WARP instance (a skeleton+attachment store scoped to
// it, per spec.md §3.2).
type WarpID Hash

func NewWarpID(s string) WarpID { return WarpID(Derive(tagWarpID, []byte(s))) }
func (id WarpID) Hash() Hash     { return Hash(id) }
func (id WarpID) String() string { return Hash(id).String() }
func (id WarpID) Compare(o WarpID) int { return Hash(id).Compare(Hash(o)) }
func (id WarpID) IsZero() bool   { return Hash(id).IsZero() }

// TypeID identifies the declared type of a node, edge, or attachment atom.
type TypeID Hash

func NewTypeID(s string) TypeID { return TypeID(Derive(tagTypeID, []byte(s))) }
func (id TypeID) Hash() Hash     { return Hash(id) }
func (id TypeID) String() string { return Hash(id).String() }
func (id TypeID) Compare(o TypeID) int { return Hash(id).Compare(Hash(o)) }

// RuleFamilyID is the stable identity of a rewrite rule family across
// recompilations (spec.md §3.5 family_id).
type RuleFamilyID Hash

func NewRuleFamilyID(s string) RuleFamilyID {
	return RuleFamilyID(Derive(tagRuleFamily, []byte(s)))
}
func (id RuleFamilyID) Hash() Hash     { return Hash(id) }
func (id RuleFamilyID) String() string { return Hash(id).String() }

// IntentID is the content address of an ingested intent payload
// (spec.md §6.1: intent_id = BLAKE3(bytes)).
type IntentID Hash

func NewIntentID(payload []byte) IntentID {
	return IntentID(blake3.Sum256(payload))
}
func (id IntentID) Hash() Hash     { return Hash(id) }
func (id IntentID) String() string { return Hash(id).String() }

// CompactRuleID is the cache-friendly 32-bit handle assigned to a rule at
// registration time (spec.md §3.1). Unlike every other identifier in this
// package it is not content-derived: it is an index into the engine's rule
// registry, chosen at register_rule time and stable only for the lifetime
// of that registry.
type CompactRuleID uint32

// Tags exposes the domain-separation tags used for the top-level hashed
// structures (state root, patch digest, commit hash, receipt digest, channel
// digest) so that snapshot/merge/matbus code shares one source of truth.
var Tags = struct {
	StateRoot     string
	PatchDigest   string
	CommitHash    string
	ReceiptDigest string
	ChannelDigest string
}{
	StateRoot:     tagStateRoot,
	PatchDigest:   tagPatchDigest,
	CommitHash:    tagCommitHash,
	ReceiptDigest: tagReceiptDigest,
	ChannelDigest: tagChannelDigest,
}
