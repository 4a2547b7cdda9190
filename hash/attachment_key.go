package hash

import "github.com/luxfi/warp/internal/canon"

// Plane distinguishes the two attachment planes a value can live in
// (spec.md §3.3).
type Plane uint8

const (
	PlaneAlpha Plane = iota
	PlaneBeta
)

func (p Plane) String() string {
	if p == PlaneBeta {
		return "beta"
	}
	return "alpha"
}

// OwnerKind distinguishes whether an AttachmentKey's owner is a node or an
// edge.
type OwnerKind uint8

const (
	OwnerNode OwnerKind = iota
	OwnerEdge
)

// AttachmentKey identifies one attachment slot: an owner (node or edge) and
// a plane (spec.md §3.3). It is itself content-addressed so it can be used
// as a map key, a footprint resource id, and a WarpOp's primary id.
type AttachmentKey struct {
	Owner     OwnerKind
	NodeOwner NodeID // valid iff Owner == OwnerNode
	EdgeOwner EdgeID // valid iff Owner == OwnerEdge
	Plane     Plane
}

// NodeAttachmentKey builds an AttachmentKey owned by a node.
func NodeAttachmentKey(n NodeID, plane Plane) AttachmentKey {
	return AttachmentKey{Owner: OwnerNode, NodeOwner: n, Plane: plane}
}

// EdgeAttachmentKey builds an AttachmentKey owned by an edge.
func EdgeAttachmentKey(e EdgeID, plane Plane) AttachmentKey {
	return AttachmentKey{Owner: OwnerEdge, EdgeOwner: e, Plane: plane}
}

// IsZero reports whether k is the zero key, used as the
// "no parent attachment" sentinel for root instances (spec.md §4.1 step 2).
func (k AttachmentKey) IsZero() bool {
	return k == AttachmentKey{}
}

// Hash derives a stable 32-byte digest for k through the same
// domain-separated-tag mechanism as every other identifier, so an
// AttachmentKey can be used directly as a GenSet/scheduler resource id.
func (k AttachmentKey) Hash() Hash {
	w := canon.NewWriter()
	w.U8(uint8(k.Owner))
	w.U8(uint8(k.Plane))
	w.Raw(k.NodeOwner.Hash().Bytes())
	w.Raw(k.EdgeOwner.Hash().Bytes())
	return Derive(tagAttachmentKey, w.Bytes())
}

// Compare orders two AttachmentKeys by their derived hash, ascending.
func (k AttachmentKey) Compare(o AttachmentKey) int {
	return k.Hash().Compare(o.Hash())
}

// String renders a short diagnostic form; never used in any hashed path.
func (k AttachmentKey) String() string {
	switch k.Owner {
	case OwnerEdge:
		return "edge:" + k.EdgeOwner.String() + "/" + k.Plane.String()
	default:
		return "node:" + k.NodeOwner.String() + "/" + k.Plane.String()
	}
}
