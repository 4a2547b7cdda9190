package graph

import "github.com/luxfi/warp/hash"

// AttachmentValue is one of Atom or Descend (spec.md §3.3). It is a closed
// sum type: the only two concrete implementations live in this file.
type AttachmentValue interface {
	isAttachmentValue()
}

// Atom is a typed byte blob attached to a node or edge. TypeID participates
// in every hash that includes the bytes; H(bytes) alone is never used, so a
// TypeID change always changes the state root even if Bytes is unchanged.
type Atom struct {
	TypeID hash.TypeID
	Bytes  []byte
}

func (Atom) isAttachmentValue() {}

// Descend is the only sanctioned way to link a parent instance to a child
// WARP instance. Arbitrary cross-instance edges are forbidden; the only
// path from a parent's skeleton plane into a child instance's graph is
// through a Descend attachment value.
type Descend struct {
	ChildWarp hash.WarpID
}

func (Descend) isAttachmentValue() {}
