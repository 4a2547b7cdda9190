// Package guard implements the footprint guard (spec.md §4.8): the runtime
// enforcement layer that checks every GraphView read and every emitted
// WarpOp's write against a rule's declared Footprint.
//
// Grounded on the teacher's read/write mutex discipline in dag/dag.go
// (RLock for reads, Lock for writes) generalized from "protect shared
// memory" to "prove a footprint declaration was honest" — the guard adds
// no locking of its own (GraphView wraps an already-immutable snapshot,
// per spec.md §9.6) but borrows the same read/write vocabulary to decide
// which declared set a given access must appear in.
package guard

import (
	"fmt"

	"github.com/luxfi/warp/footprint"
	"github.com/luxfi/warp/graph"
	"github.com/luxfi/warp/hash"
	"github.com/luxfi/warp/warpop"
)

// Mode selects whether the guard is active.
type Mode uint8

const (
	// Off skips all checks; used in trusted/performance-critical release
	// builds once a rule's footprint declarations are considered proven.
	Off Mode = iota
	// Enforced runs every check in this package, converting any violation
	// into a typed *Violation error (spec.md §4.8: "or typed error in
	// release-with-enforcement").
	Enforced
)

// ViolationKind enumerates the nine variants of spec.md §4.8.
type ViolationKind string

const (
	NodeReadNotDeclared        ViolationKind = "NodeReadNotDeclared"
	EdgeReadNotDeclared        ViolationKind = "EdgeReadNotDeclared"
	AttachmentReadNotDeclared  ViolationKind = "AttachmentReadNotDeclared"
	NodeWriteNotDeclared       ViolationKind = "NodeWriteNotDeclared"
	EdgeWriteNotDeclared       ViolationKind = "EdgeWriteNotDeclared"
	AttachmentWriteNotDeclared ViolationKind = "AttachmentWriteNotDeclared"
	CrossWarpEmission          ViolationKind = "CrossWarpEmission"
	UnauthorizedInstanceOp     ViolationKind = "UnauthorizedInstanceOp"
	OpWarpUnknown              ViolationKind = "OpWarpUnknown"
)

// Violation is the typed error raised when a rule's executor reads or
// writes a resource it did not declare in its Footprint.
type Violation struct {
	Kind   ViolationKind
	WarpID hash.WarpID
	Detail string
}

func (v *Violation) Error() string {
	return fmt.Sprintf("footprint guard: %s (warp=%s) %s", v.Kind, v.WarpID, v.Detail)
}

// View is a read-only projection over a graph.Universe, scoped to one
// rule's declared Footprint when the guard is Enforced (spec.md §4.5,
// §9.6). Workers never see the real mutable universe; a View always wraps
// an already-cloned, pre-tick-immutable snapshot.
type View struct {
	universe *graph.Universe
	mode     Mode
	fp       footprint.Footprint
}

// NewView returns a View over u, enforcing fp's read sets iff mode ==
// Enforced.
func NewView(u *graph.Universe, mode Mode, fp footprint.Footprint) *View {
	return &View{universe: u, mode: mode, fp: fp}
}

// GetNode reads a node record, checking n_read when enforced.
func (v *View) GetNode(warpID hash.WarpID, id hash.NodeID) (graph.NodeRecord, bool, error) {
	if v.mode == Enforced {
		if !v.fp.NRead.Contains(footprint.WarpNode{Warp: warpID, Node: id}) &&
			!v.fp.NWrite.Contains(footprint.WarpNode{Warp: warpID, Node: id}) {
			return graph.NodeRecord{}, false, &Violation{Kind: NodeReadNotDeclared, WarpID: warpID, Detail: id.String()}
		}
	}
	store, ok := v.universe.Store(warpID)
	if !ok {
		return graph.NodeRecord{}, false, nil
	}
	rec, ok := store.GetNode(id)
	return rec, ok, nil
}

// OutEdges reads a node's outgoing edges, checking e_read per edge when
// enforced.
func (v *View) OutEdges(warpID hash.WarpID, id hash.NodeID) ([]graph.EdgeRecord, error) {
	store, ok := v.universe.Store(warpID)
	if !ok {
		return nil, nil
	}
	edges := store.OutEdges(id)
	if v.mode == Enforced {
		for _, e := range edges {
			we := footprint.WarpEdge{Warp: warpID, Edge: e.ID}
			if !v.fp.ERead.Contains(we) && !v.fp.EWrite.Contains(we) {
				return nil, &Violation{Kind: EdgeReadNotDeclared, WarpID: warpID, Detail: e.ID.String()}
			}
		}
	}
	return edges, nil
}

// GetAttachment reads an attachment value, checking a_read when enforced.
func (v *View) GetAttachment(warpID hash.WarpID, key hash.AttachmentKey) (graph.AttachmentValue, bool, error) {
	if v.mode == Enforced {
		wa := footprint.WarpAttachment{Warp: warpID, Key: key}
		if !v.fp.ARead.Contains(wa) && !v.fp.AWrite.Contains(wa) {
			return nil, false, &Violation{Kind: AttachmentReadNotDeclared, WarpID: warpID, Detail: key.String()}
		}
	}
	store, ok := v.universe.Store(warpID)
	if !ok {
		return nil, false, nil
	}
	val, ok := store.GetAttachment(key)
	return val, ok, nil
}

// Sink wraps a warpop.Delta, validating every emitted op's write targets
// against the declaring rule's Footprint before appending (spec.md §4.8
// "Emitted ops check writes...").
type Sink struct {
	delta  *warpop.Delta
	mode   Mode
	fp     footprint.Footprint
	origin warpop.OpOrigin
}

// NewSink returns a Sink that appends validated ops to delta, tagged with
// origin.
func NewSink(delta *warpop.Delta, mode Mode, fp footprint.Footprint, origin warpop.OpOrigin) *Sink {
	return &Sink{delta: delta, mode: mode, fp: fp, origin: origin}
}

// Emit validates op (if enforced) and appends it to the underlying delta.
func (s *Sink) Emit(op warpop.WarpOp) error {
	if s.mode == Enforced {
		if err := s.checkWrite(op); err != nil {
			return err
		}
	}
	s.delta.Emit(op, s.origin)
	return nil
}

func (s *Sink) checkWrite(op warpop.WarpOp) error {
	switch o := op.(type) {
	case warpop.UpsertNodeOp:
		return s.requireNodeWrite(o.WarpID, o.Node)
	case warpop.DeleteNodeOp:
		return s.requireNodeWrite(o.WarpID, o.Node)
	case warpop.UpsertEdgeOp:
		return s.requireEdgeWrite(o.WarpID, o.Record.ID)
	case warpop.DeleteEdgeOp:
		return s.requireEdgeWrite(o.WarpID, o.EdgeID)
	case warpop.SetAttachmentOp:
		return s.requireAttachmentWrite(o.WarpID, o.AttKey)
	case warpop.OpenPortalOp:
		// OpenPortal's key is the parent attachment slot (the Descend
		// link it installs); the rule must have declared that slot as a
		// write regardless of which warp owns it.
		for wa := range s.fp.AWrite {
			if wa.Key == o.Key_ {
				return nil
			}
		}
		return &Violation{Kind: AttachmentWriteNotDeclared, WarpID: o.ChildWarp, Detail: o.Key_.String()}
	case warpop.UpsertWarpInstanceOp:
		return s.requireInstanceAuthorization(o.Instance.WarpID)
	case warpop.DeleteWarpInstanceOp:
		return s.requireInstanceAuthorization(o.WarpID)
	default:
		return &Violation{Kind: OpWarpUnknown, Detail: fmt.Sprintf("%T", op)}
	}
}

// requireInstanceAuthorization implements the instance-op authorization
// rule: UpsertWarpInstanceOp/DeleteWarpInstanceOp are authorized only
// alongside an OpenPortalOp for the same warp emitted earlier in the same
// delta (the portal creates the instance, so its authorization carries
// over), or when the rule's footprint declares the warp as both read and
// write (reopening an existing instance is out of this core's scope; see
// spec.md §9.9).
func (s *Sink) requireInstanceAuthorization(warpID hash.WarpID) error {
	if s.warpOpenedEarlier(warpID) || s.warpDeclaredReadAndWrite(warpID) {
		return nil
	}
	return &Violation{Kind: UnauthorizedInstanceOp, WarpID: warpID, Detail: "no preceding OpenPortal and warp not declared as both read and write"}
}

func (s *Sink) warpOpenedEarlier(warpID hash.WarpID) bool {
	for _, tagged := range s.delta.Ops {
		if op, ok := tagged.Op.(warpop.OpenPortalOp); ok && op.ChildWarp == warpID {
			return true
		}
	}
	return false
}

func (s *Sink) warpDeclaredReadAndWrite(warpID hash.WarpID) bool {
	read := false
	for wn := range s.fp.NRead {
		if wn.Warp == warpID {
			read = true
			break
		}
	}
	if !read {
		return false
	}
	for wn := range s.fp.NWrite {
		if wn.Warp == warpID {
			return true
		}
	}
	return false
}

func (s *Sink) requireNodeWrite(warpID hash.WarpID, id hash.NodeID) error {
	if !s.fp.NWrite.Contains(footprint.WarpNode{Warp: warpID, Node: id}) {
		return &Violation{Kind: NodeWriteNotDeclared, WarpID: warpID, Detail: id.String()}
	}
	return nil
}

func (s *Sink) requireEdgeWrite(warpID hash.WarpID, id hash.EdgeID) error {
	if !s.fp.EWrite.Contains(footprint.WarpEdge{Warp: warpID, Edge: id}) {
		return &Violation{Kind: EdgeWriteNotDeclared, WarpID: warpID, Detail: id.String()}
	}
	return nil
}

func (s *Sink) requireAttachmentWrite(warpID hash.WarpID, key hash.AttachmentKey) error {
	if !s.fp.AWrite.Contains(footprint.WarpAttachment{Warp: warpID, Key: key}) {
		return &Violation{Kind: AttachmentWriteNotDeclared, WarpID: warpID, Detail: key.String()}
	}
	return nil
}
