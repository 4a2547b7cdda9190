// Package footprint implements the warp-scoped read/write resource sets a
// rule declares for a match (spec.md §3.6) and the independence test the
// scheduler uses to admit non-conflicting candidates concurrently
// (spec.md §4.2).
//
// Grounded on the teacher's set/set.go generic Set (Overlaps is exactly the
// "do these two resource sets conflict" primitive) and on
// engine/dag/consensus_real.go's conflict-set bookkeeping, generalized from
// "vertices conflict over a shared UTXO" to "footprints conflict over a
// shared node/edge/attachment/port".
package footprint

import (
	"github.com/luxfi/warp/hash"
	"github.com/luxfi/warp/set"
)

// WarpNode pairs a WarpID with a NodeID so identical local ids in
// different instances never collide as a resource identity.
type WarpNode struct {
	Warp hash.WarpID
	Node hash.NodeID
}

// WarpEdge pairs a WarpID with an EdgeID.
type WarpEdge struct {
	Warp hash.WarpID
	Edge hash.EdgeID
}

// WarpAttachment pairs a WarpID with an AttachmentKey.
type WarpAttachment struct {
	Warp hash.WarpID
	Key  hash.AttachmentKey
}

// PortDirection is the direction bit packed into a boundary port key.
type PortDirection uint8

const (
	PortOut PortDirection = 0
	PortIn  PortDirection = 1
)

// PortKey packs (first 32 bits of node hash, port_id: u30, direction: 1 bit)
// into 64 bits, per spec.md §3.6.
type PortKey uint64

// NewPortKey derives a boundary port key from a node identity, a 30-bit
// port id, and a direction.
func NewPortKey(node hash.NodeID, portID uint32, dir PortDirection) PortKey {
	nodeHash := node.Hash()
	hi := uint64(nodeHash[0])<<24 | uint64(nodeHash[1])<<16 | uint64(nodeHash[2])<<8 | uint64(nodeHash[3])
	lo := uint64(portID&0x3fffffff)<<1 | uint64(dir&1)
	return PortKey(hi<<32 | lo)
}

// Footprint is the warp-scoped resource set a rule declares for one match
// (spec.md §3.6).
type Footprint struct {
	NRead, NWrite set.Set[WarpNode]
	ERead, EWrite set.Set[WarpEdge]
	ARead, AWrite set.Set[WarpAttachment]
	BIn, BOut     set.Set[PortKey]
	FactorMask    uint64
}

// New returns an empty Footprint with all sets initialized.
func New() Footprint {
	return Footprint{
		NRead:  set.Set[WarpNode]{},
		NWrite: set.Set[WarpNode]{},
		ERead:  set.Set[WarpEdge]{},
		EWrite: set.Set[WarpEdge]{},
		ARead:  set.Set[WarpAttachment]{},
		AWrite: set.Set[WarpAttachment]{},
		BIn:    set.Set[PortKey]{},
		BOut:   set.Set[PortKey]{},
	}
}

// Independent implements the early-exit algorithm of spec.md §4.2. It is
// symmetric in a and b by construction (every step is a symmetric
// intersection test), which is exactly property P2 (§8.1).
func Independent(a, b Footprint) bool {
	if a.FactorMask&b.FactorMask == 0 {
		return true
	}
	if a.BIn.Overlaps(b.BIn) || a.BIn.Overlaps(b.BOut) ||
		a.BOut.Overlaps(b.BIn) || a.BOut.Overlaps(b.BOut) {
		return false
	}
	if a.EWrite.Overlaps(b.EWrite) || a.EWrite.Overlaps(b.ERead) || b.EWrite.Overlaps(a.ERead) {
		return false
	}
	if a.AWrite.Overlaps(b.AWrite) || a.AWrite.Overlaps(b.ARead) || b.AWrite.Overlaps(a.ARead) {
		return false
	}
	if a.NWrite.Overlaps(b.NWrite) || a.NWrite.Overlaps(b.NRead) || b.NWrite.Overlaps(a.NRead) {
		return false
	}
	return true
}
