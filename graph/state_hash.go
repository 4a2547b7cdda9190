package graph

import (
	"fmt"

	"github.com/luxfi/warp/hash"
	"github.com/luxfi/warp/internal/canon"
)

// stateHashHeader is the fixed header tag emitted once at the start of
// every canonical state hash (spec.md §4.1 step 1).
const stateHashHeader = "DIND_STATE_HASH_V2\x00"

// CanonicalStateHash computes the 32-byte digest over the subgraph reachable
// from root by BFS across Descend attachments (spec.md §4.1, §8.1 P7).
//
// Traversal order: instances are visited in BFS discovery order starting
// from root. Within one instance, its own (warp_id, root, parent_key)
// header, node table, edge table, and attachment table are emitted before
// moving to the next queued instance; a Descend attachment enqueues its
// child instance at the point it is encountered during the ascending
// attachment-key scan, so the traversal order is a pure function of
// reachable structure, never of map iteration. A reachable child with no
// Instance metadata or Store in the universe makes the hash fail with an
// error.
func CanonicalStateHash(u *Universe, root hash.WarpID) (hash.Hash, error) {
	w := canon.NewWriter()
	w.Tag(stateHashHeader)

	visited := map[hash.WarpID]struct{}{root: {}}
	queue := []hash.WarpID{root}

	for len(queue) > 0 {
		warpID := queue[0]
		queue = queue[1:]

		inst, ok := u.Instance(warpID)
		if !ok {
			return hash.Zero, fmt.Errorf("graph: reachable instance %s has no metadata", warpID)
		}
		store, ok := u.Store(warpID)
		if !ok {
			return hash.Zero, fmt.Errorf("graph: reachable instance %s has no store", warpID)
		}

		w.Raw(inst.WarpID.Hash().Bytes())
		w.Raw(inst.Root.Hash().Bytes())
		if inst.ParentKey.IsZero() {
			w.Raw(hash.Zero.Bytes())
		} else {
			w.Raw(inst.ParentKey.Hash().Bytes())
		}

		nodes := store.Nodes()
		w.U64(uint64(len(nodes)))
		for _, id := range nodes {
			rec, _ := store.GetNode(id)
			w.Raw(id.Hash().Bytes())
			w.Raw(rec.TypeID.Hash().Bytes())
		}

		for _, id := range nodes {
			edges := store.OutEdges(id)
			for _, e := range edges {
				if _, ok := store.GetNode(e.To); !ok {
					continue // restricted to reachable targets (§4.1 step 4)
				}
				w.Raw(e.ID.Hash().Bytes())
				w.Raw(id.Hash().Bytes())
				w.Raw(e.To.Hash().Bytes())
				w.Raw(e.TypeID.Hash().Bytes())
			}
		}

		for _, key := range store.AttachmentKeys() {
			val, _ := store.GetAttachment(key)
			switch v := val.(type) {
			case Atom:
				w.U8(0)
				w.Raw(v.TypeID.Hash().Bytes())
				w.Blob(v.Bytes)
			case Descend:
				w.U8(1)
				w.Raw(v.ChildWarp.Hash().Bytes())
				if _, already := visited[v.ChildWarp]; !already {
					visited[v.ChildWarp] = struct{}{}
					queue = append(queue, v.ChildWarp)
				}
			default:
				return hash.Zero, fmt.Errorf("graph: unknown attachment value type %T", val)
			}
		}
	}

	return hash.Derive(hash.Tags.StateRoot, w.Bytes()), nil
}
