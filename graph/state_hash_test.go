package graph_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/warp/graph"
	"github.com/luxfi/warp/hash"
)

func buildUniverse(nodeOrder []int) *graph.Universe {
	u := graph.NewUniverse()
	root := hash.NewWarpID("root")
	rootNode := hash.NewNodeID("root-node")
	u.UpsertInstance(graph.Instance{WarpID: root, Root: rootNode})

	store, _ := u.Store(root)
	typeA := hash.NewTypeID("A")

	ids := make([]hash.NodeID, len(nodeOrder)+1)
	ids[0] = rootNode
	for i := 1; i <= len(nodeOrder); i++ {
		ids[i] = hash.NewNodeID("n")
		// Force distinct ids by mixing in the index.
		ids[i] = hash.NewNodeID(hash.Derive("x", []byte{byte(i)}).String())
	}

	for _, idx := range nodeOrder {
		store.UpsertNode(ids[idx], graph.NodeRecord{TypeID: typeA})
	}
	store.UpsertNode(rootNode, graph.NodeRecord{TypeID: typeA})
	return u
}

func TestCanonicalStateHash_OrderIndependent(t *testing.T) {
	root := hash.NewWarpID("root")

	forward := buildUniverse([]int{1, 2, 3})
	backward := buildUniverse([]int{3, 2, 1})

	h1, err := graph.CanonicalStateHash(forward, root)
	require.NoError(t, err)
	h2, err := graph.CanonicalStateHash(backward, root)
	require.NoError(t, err)

	require.Equal(t, h1, h2)
	require.False(t, h1.IsZero())
}

func TestCanonicalStateHash_DescendReachesChild(t *testing.T) {
	u := graph.NewUniverse()
	root := hash.NewWarpID("root")
	rootNode := hash.NewNodeID("root-node")
	u.UpsertInstance(graph.Instance{WarpID: root, Root: rootNode})
	rs, _ := u.Store(root)
	rs.UpsertNode(rootNode, graph.NodeRecord{TypeID: hash.NewTypeID("A")})

	child := hash.NewWarpID("child")
	childRoot := hash.NewNodeID("child-root")
	key := hash.NodeAttachmentKey(rootNode, hash.PlaneAlpha)
	u.UpsertInstance(graph.Instance{WarpID: child, Root: childRoot, ParentKey: key})
	cs, _ := u.Store(child)
	cs.UpsertNode(childRoot, graph.NodeRecord{TypeID: hash.NewTypeID("B")})

	rs.SetAttachment(key, graph.Descend{ChildWarp: child})

	h, err := graph.CanonicalStateHash(u, root)
	require.NoError(t, err)
	require.False(t, h.IsZero())

	// Removing the child's only node must change the digest.
	cs.DeleteNode(childRoot)
	h2, err := graph.CanonicalStateHash(u, root)
	require.NoError(t, err)
	require.NotEqual(t, h, h2)
}

func TestStore_DeleteNodeDoesNotCascadeEdges(t *testing.T) {
	store := graph.NewStore(hash.NewWarpID("w"))
	a := hash.NewNodeID("a")
	b := hash.NewNodeID("b")
	e := hash.NewEdgeID("e")
	store.UpsertNode(a, graph.NodeRecord{})
	store.UpsertNode(b, graph.NodeRecord{})
	require.NoError(t, store.InsertEdge(a, graph.EdgeRecord{ID: e, To: b}))

	store.DeleteNode(b)

	_, stillThere := store.EdgeSource(e)
	require.True(t, stillThere, "dangling edge must remain until explicitly removed")
}
