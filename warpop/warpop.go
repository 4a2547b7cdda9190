// Package warpop implements the eight WarpOp variants that cover every
// legal state mutation (spec.md §3.4) and the WarpOpKey canonical merge
// ordering key that ties each op to a deterministic slot.
package warpop

import (
	"github.com/luxfi/warp/graph"
	"github.com/luxfi/warp/hash"
	"github.com/luxfi/warp/internal/canon"
)

// Kind discriminates the eight WarpOp variants. Its ordinal value is the
// first component of WarpOpKey, so reordering these constants changes
// every commit hash ever produced; they are effectively a wire format.
type Kind uint8

const (
	KindOpenPortal Kind = iota
	KindUpsertWarpInstance
	KindDeleteWarpInstance
	KindUpsertNode
	KindDeleteNode
	KindUpsertEdge
	KindDeleteEdge
	KindSetAttachment
)

// InitMode describes how OpenPortal initializes its child instance.
type InitMode uint8

const (
	// InitEmpty creates a child instance with no nodes/edges/attachments.
	// Per spec.md §4.6 step 2 and §8.1 P8, no op in the same tick may write
	// to a child opened this way.
	InitEmpty InitMode = iota
	// InitSeeded creates a child instance pre-populated from Seed, an
	// opaque payload the rule's execute_fn produced; the core never
	// decodes it.
	InitSeeded
)

// PortalInit is the `init` field of OpenPortal.
type PortalInit struct {
	Mode InitMode
	Seed []byte
}

// WarpOpKey is the canonical merge-ordering key for one op: (discriminant,
// warp_id, primary_local_id, secondary_local_id), per spec.md §3.4.
type WarpOpKey struct {
	Kind      Kind
	WarpID    hash.WarpID
	Primary   hash.Hash
	Secondary hash.Hash
}

// Compare orders two keys ascending: discriminant, then warp, then primary,
// then secondary id.
func (k WarpOpKey) Compare(o WarpOpKey) int {
	if k.Kind != o.Kind {
		if k.Kind < o.Kind {
			return -1
		}
		return 1
	}
	if c := k.WarpID.Hash().Compare(o.WarpID.Hash()); c != 0 {
		return c
	}
	if c := k.Primary.Compare(o.Primary); c != 0 {
		return c
	}
	return k.Secondary.Compare(o.Secondary)
}

// WarpOp is one of the eight variants. It is a closed interface: the only
// implementations live in this file.
type WarpOp interface {
	Key() WarpOpKey
	// Encode appends this op's canonical byte representation (used by the
	// patch digest, spec.md §4.7) to w: its Kind tag followed by every
	// field of the op, including the ones that make up its WarpOpKey. The
	// op's OpOrigin is not part of the op and is never written, so
	// identical ops from different origins encode identically (required
	// for the merge step's dedup-by-bytes, spec.md §4.6 step 4).
	Encode(w *canon.Writer)
	// Equal reports whether two ops with the same WarpOpKey carry the same
	// payload. Differing payloads under the same key is a MergeConflict
	// (spec.md §4.6 step 5).
	Equal(other WarpOp) bool
}

// OpenPortalOp atomically creates a child instance and installs the
// Descend link in the parent instance's store at Key_.
type OpenPortalOp struct {
	ParentWarp hash.WarpID
	Key_       hash.AttachmentKey
	ChildWarp  hash.WarpID
	ChildRoot  hash.NodeID
	Init       PortalInit
}

func (o OpenPortalOp) Key() WarpOpKey {
	return WarpOpKey{Kind: KindOpenPortal, WarpID: o.ChildWarp, Primary: o.Key_.Hash()}
}

func (o OpenPortalOp) Encode(w *canon.Writer) {
	w.U8(uint8(KindOpenPortal))
	w.Raw(o.ParentWarp.Hash().Bytes())
	w.Raw(o.Key_.Hash().Bytes())
	w.Raw(o.ChildWarp.Hash().Bytes())
	w.Raw(o.ChildRoot.Hash().Bytes())
	w.U8(uint8(o.Init.Mode))
	w.Blob(o.Init.Seed)
}

func (o OpenPortalOp) Equal(other WarpOp) bool {
	p, ok := other.(OpenPortalOp)
	if !ok {
		return false
	}
	return o.ParentWarp == p.ParentWarp && o.Key_ == p.Key_ && o.ChildWarp == p.ChildWarp && o.ChildRoot == p.ChildRoot &&
		o.Init.Mode == p.Init.Mode && string(o.Init.Seed) == string(p.Init.Seed)
}

// UpsertWarpInstanceOp declares new instance metadata.
type UpsertWarpInstanceOp struct {
	Instance graph.Instance
}

func (o UpsertWarpInstanceOp) Key() WarpOpKey {
	return WarpOpKey{Kind: KindUpsertWarpInstance, WarpID: o.Instance.WarpID, Primary: o.Instance.WarpID.Hash()}
}

func (o UpsertWarpInstanceOp) Encode(w *canon.Writer) {
	w.U8(uint8(KindUpsertWarpInstance))
	w.Raw(o.Instance.WarpID.Hash().Bytes())
	w.Raw(o.Instance.Root.Hash().Bytes())
	w.Raw(o.Instance.ParentKey.Hash().Bytes())
}

func (o UpsertWarpInstanceOp) Equal(other WarpOp) bool {
	p, ok := other.(UpsertWarpInstanceOp)
	return ok && o.Instance == p.Instance
}

// DeleteWarpInstanceOp removes an instance.
type DeleteWarpInstanceOp struct {
	WarpID hash.WarpID
}

func (o DeleteWarpInstanceOp) Key() WarpOpKey {
	return WarpOpKey{Kind: KindDeleteWarpInstance, WarpID: o.WarpID, Primary: o.WarpID.Hash()}
}

func (o DeleteWarpInstanceOp) Encode(w *canon.Writer) {
	w.U8(uint8(KindDeleteWarpInstance))
	w.Raw(o.WarpID.Hash().Bytes())
}

func (o DeleteWarpInstanceOp) Equal(other WarpOp) bool {
	p, ok := other.(DeleteWarpInstanceOp)
	return ok && o.WarpID == p.WarpID
}

// UpsertNodeOp inserts or replaces a node record.
type UpsertNodeOp struct {
	WarpID hash.WarpID
	Node   hash.NodeID
	Record graph.NodeRecord
}

func (o UpsertNodeOp) Key() WarpOpKey {
	return WarpOpKey{Kind: KindUpsertNode, WarpID: o.WarpID, Primary: o.Node.Hash()}
}

func (o UpsertNodeOp) Encode(w *canon.Writer) {
	w.U8(uint8(KindUpsertNode))
	w.Raw(o.WarpID.Hash().Bytes())
	w.Raw(o.Node.Hash().Bytes())
	w.Raw(o.Record.TypeID.Hash().Bytes())
}

func (o UpsertNodeOp) Equal(other WarpOp) bool {
	p, ok := other.(UpsertNodeOp)
	return ok && o.WarpID == p.WarpID && o.Node == p.Node && o.Record == p.Record
}

// DeleteNodeOp removes a node record.
type DeleteNodeOp struct {
	WarpID hash.WarpID
	Node   hash.NodeID
}

func (o DeleteNodeOp) Key() WarpOpKey {
	return WarpOpKey{Kind: KindDeleteNode, WarpID: o.WarpID, Primary: o.Node.Hash()}
}

func (o DeleteNodeOp) Encode(w *canon.Writer) {
	w.U8(uint8(KindDeleteNode))
	w.Raw(o.WarpID.Hash().Bytes())
	w.Raw(o.Node.Hash().Bytes())
}

func (o DeleteNodeOp) Equal(other WarpOp) bool {
	p, ok := other.(DeleteNodeOp)
	return ok && o.WarpID == p.WarpID && o.Node == p.Node
}

// UpsertEdgeOp inserts or replaces an edge record.
type UpsertEdgeOp struct {
	WarpID hash.WarpID
	From   hash.NodeID
	Record graph.EdgeRecord
}

func (o UpsertEdgeOp) Key() WarpOpKey {
	return WarpOpKey{Kind: KindUpsertEdge, WarpID: o.WarpID, Primary: o.Record.ID.Hash(), Secondary: o.From.Hash()}
}

func (o UpsertEdgeOp) Encode(w *canon.Writer) {
	w.U8(uint8(KindUpsertEdge))
	w.Raw(o.WarpID.Hash().Bytes())
	w.Raw(o.From.Hash().Bytes())
	w.Raw(o.Record.ID.Hash().Bytes())
	w.Raw(o.Record.To.Hash().Bytes())
	w.Raw(o.Record.TypeID.Hash().Bytes())
}

func (o UpsertEdgeOp) Equal(other WarpOp) bool {
	p, ok := other.(UpsertEdgeOp)
	return ok && o.WarpID == p.WarpID && o.From == p.From && o.Record == p.Record
}

// DeleteEdgeOp removes an edge record.
type DeleteEdgeOp struct {
	WarpID hash.WarpID
	From   hash.NodeID
	EdgeID hash.EdgeID
}

func (o DeleteEdgeOp) Key() WarpOpKey {
	return WarpOpKey{Kind: KindDeleteEdge, WarpID: o.WarpID, Primary: o.EdgeID.Hash(), Secondary: o.From.Hash()}
}

func (o DeleteEdgeOp) Encode(w *canon.Writer) {
	w.U8(uint8(KindDeleteEdge))
	w.Raw(o.WarpID.Hash().Bytes())
	w.Raw(o.From.Hash().Bytes())
	w.Raw(o.EdgeID.Hash().Bytes())
}

func (o DeleteEdgeOp) Equal(other WarpOp) bool {
	p, ok := other.(DeleteEdgeOp)
	return ok && o.WarpID == p.WarpID && o.From == p.From && o.EdgeID == p.EdgeID
}

// SetAttachmentOp installs or clears (Value == nil) an attachment value.
type SetAttachmentOp struct {
	WarpID hash.WarpID
	AttKey hash.AttachmentKey
	Value  graph.AttachmentValue
}

func (o SetAttachmentOp) Key() WarpOpKey {
	return WarpOpKey{Kind: KindSetAttachment, WarpID: o.WarpID, Primary: o.AttKey.Hash()}
}

func (o SetAttachmentOp) Encode(w *canon.Writer) {
	w.U8(uint8(KindSetAttachment))
	w.Raw(o.WarpID.Hash().Bytes())
	w.Raw(o.AttKey.Hash().Bytes())
	switch v := o.Value.(type) {
	case nil:
		w.U8(2)
	case graph.Atom:
		w.U8(0)
		w.Raw(v.TypeID.Hash().Bytes())
		w.Blob(v.Bytes)
	case graph.Descend:
		w.U8(1)
		w.Raw(v.ChildWarp.Hash().Bytes())
	}
}

func (o SetAttachmentOp) Equal(other WarpOp) bool {
	p, ok := other.(SetAttachmentOp)
	if !ok || o.WarpID != p.WarpID || o.AttKey != p.AttKey {
		return false
	}
	switch v := o.Value.(type) {
	case nil:
		return p.Value == nil
	case graph.Atom:
		pv, ok := p.Value.(graph.Atom)
		return ok && v.TypeID == pv.TypeID && string(v.Bytes) == string(pv.Bytes)
	case graph.Descend:
		pv, ok := p.Value.(graph.Descend)
		return ok && v.ChildWarp == pv.ChildWarp
	}
	return false
}
