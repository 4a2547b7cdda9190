package engine

import (
	"fmt"

	"github.com/luxfi/warp/graph"
	"github.com/luxfi/warp/merge"
	"github.com/luxfi/warp/warpop"
)

// applyPatch materializes a merged, conflict-free Patch onto u (spec.md
// §4.9 step 8). It is the one place in the engine that turns the abstract
// WarpOp algebra back into concrete Universe/Store mutations; every other
// package only ever produces or reasons about WarpOps.
func applyPatch(u *graph.Universe, patch merge.Patch) error {
	for _, t := range patch.Ops {
		if err := applyOp(u, t.Op); err != nil {
			return err
		}
	}
	return nil
}

func applyOp(u *graph.Universe, op warpop.WarpOp) error {
	switch o := op.(type) {
	case warpop.OpenPortalOp:
		u.UpsertInstance(graph.Instance{WarpID: o.ChildWarp, Root: o.ChildRoot, ParentKey: o.Key_})
		parent, ok := u.Store(o.ParentWarp)
		if !ok {
			return fmt.Errorf("engine: apply OpenPortal: parent warp %s has no store", o.ParentWarp)
		}
		parent.SetAttachment(o.Key_, graph.Descend{ChildWarp: o.ChildWarp})
		return nil

	case warpop.UpsertWarpInstanceOp:
		u.UpsertInstance(o.Instance)
		return nil

	case warpop.DeleteWarpInstanceOp:
		u.DeleteInstance(o.WarpID)
		return nil

	case warpop.UpsertNodeOp:
		store, ok := u.Store(o.WarpID)
		if !ok {
			return fmt.Errorf("engine: apply UpsertNode: warp %s has no store", o.WarpID)
		}
		store.UpsertNode(o.Node, o.Record)
		return nil

	case warpop.DeleteNodeOp:
		store, ok := u.Store(o.WarpID)
		if !ok {
			return fmt.Errorf("engine: apply DeleteNode: warp %s has no store", o.WarpID)
		}
		store.DeleteNode(o.Node)
		return nil

	case warpop.UpsertEdgeOp:
		store, ok := u.Store(o.WarpID)
		if !ok {
			return fmt.Errorf("engine: apply UpsertEdge: warp %s has no store", o.WarpID)
		}
		// InsertEdge rejects a reused EdgeID; UpsertEdgeOp replaces, so clear
		// any prior record first. Absence is not an error here.
		_ = store.DeleteEdge(o.From, o.Record.ID)
		if err := store.InsertEdge(o.From, o.Record); err != nil {
			return fmt.Errorf("engine: apply UpsertEdge: %w", err)
		}
		return nil

	case warpop.DeleteEdgeOp:
		store, ok := u.Store(o.WarpID)
		if !ok {
			return fmt.Errorf("engine: apply DeleteEdge: warp %s has no store", o.WarpID)
		}
		if err := store.DeleteEdge(o.From, o.EdgeID); err != nil {
			return fmt.Errorf("engine: apply DeleteEdge: %w", err)
		}
		return nil

	case warpop.SetAttachmentOp:
		store, ok := u.Store(o.WarpID)
		if !ok {
			return fmt.Errorf("engine: apply SetAttachment: warp %s has no store", o.WarpID)
		}
		store.SetAttachment(o.AttKey, o.Value)
		return nil

	default:
		return fmt.Errorf("engine: apply: unhandled WarpOp %T", op)
	}
}
