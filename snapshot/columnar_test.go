package snapshot_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/warp/graph"
	"github.com/luxfi/warp/hash"
	"github.com/luxfi/warp/snapshot"
)

func buildUniverse() (*graph.Universe, hash.WarpID) {
	wid := hash.NewWarpID("w")
	root := hash.NewNodeID("root")
	u := graph.NewUniverse()
	u.UpsertInstance(graph.Instance{WarpID: wid, Root: root})
	store := u.MustStore(wid)

	typeA := hash.NewTypeID("A")
	nA := hash.NewNodeID("a")
	nB := hash.NewNodeID("b")
	store.UpsertNode(root, graph.NodeRecord{TypeID: typeA})
	store.UpsertNode(nA, graph.NodeRecord{TypeID: typeA})
	store.UpsertNode(nB, graph.NodeRecord{TypeID: typeA})

	e1 := hash.NewEdgeID("e1")
	e2 := hash.NewEdgeID("e2")
	mustInsert := func(err error) {
		if err != nil {
			panic(err)
		}
	}
	mustInsert(store.InsertEdge(root, graph.EdgeRecord{ID: e1, To: nA, TypeID: typeA}))
	mustInsert(store.InsertEdge(root, graph.EdgeRecord{ID: e2, To: nB, TypeID: typeA}))

	store.SetAttachment(hash.NodeAttachmentKey(nA, hash.PlaneAlpha), graph.Atom{TypeID: typeA, Bytes: []byte("hello")})

	childWarp := hash.NewWarpID("child")
	childRoot := hash.NewNodeID("child-root")
	u.UpsertInstance(graph.Instance{WarpID: childWarp, Root: childRoot, ParentKey: hash.NodeAttachmentKey(nB, hash.PlaneBeta)})
	u.MustStore(childWarp).UpsertNode(childRoot, graph.NodeRecord{TypeID: typeA})
	store.SetAttachment(hash.NodeAttachmentKey(nB, hash.PlaneBeta), graph.Descend{ChildWarp: childWarp})

	return u, wid
}

func TestColumnar_RoundTrip(t *testing.T) {
	u, wid := buildUniverse()
	schemaHash := hash.NewTypeID("schema").Hash()

	data, err := snapshot.EncodeUniverse(u, schemaHash, 42)
	require.NoError(t, err)

	decoded, gotSchema, gotTick, err := snapshot.DecodeUniverse(data)
	require.NoError(t, err)
	require.Equal(t, schemaHash, gotSchema)
	require.Equal(t, uint64(42), gotTick)

	wantHash, err := graph.CanonicalStateHash(u, wid)
	require.NoError(t, err)
	gotHash, err := graph.CanonicalStateHash(decoded, wid)
	require.NoError(t, err)
	require.Equal(t, wantHash, gotHash)

	origStore := u.MustStore(wid)
	gotStore := decoded.MustStore(wid)
	require.Equal(t, origStore.Nodes(), gotStore.Nodes())
}

func TestColumnar_RejectsShortFile(t *testing.T) {
	_, _, _, err := snapshot.DecodeUniverse([]byte("too short"))
	require.Error(t, err)
}

func TestColumnar_RejectsBadMagic(t *testing.T) {
	u, _ := buildUniverse()
	data, err := snapshot.EncodeUniverse(u, hash.Hash{}, 1)
	require.NoError(t, err)
	corrupt := append([]byte(nil), data...)
	corrupt[0] = 'X'
	_, _, _, err = snapshot.DecodeUniverse(corrupt)
	require.Error(t, err)
}

func TestColumnar_RejectsTruncatedBody(t *testing.T) {
	u, _ := buildUniverse()
	data, err := snapshot.EncodeUniverse(u, hash.Hash{}, 1)
	require.NoError(t, err)
	truncated := data[:len(data)-16]
	_, _, _, err = snapshot.DecodeUniverse(truncated)
	require.Error(t, err)
}

func TestColumnar_RejectsMissingRoot(t *testing.T) {
	wid := hash.NewWarpID("w")
	wrongRoot := hash.NewNodeID("nonexistent")
	u := graph.NewUniverse()
	u.UpsertInstance(graph.Instance{WarpID: wid, Root: wrongRoot})
	store := u.MustStore(wid)
	store.UpsertNode(hash.NewNodeID("other"), graph.NodeRecord{TypeID: hash.NewTypeID("A")})

	data, err := snapshot.EncodeUniverse(u, hash.Hash{}, 1)
	require.NoError(t, err)
	_, _, _, err = snapshot.DecodeUniverse(data)
	require.Error(t, err)
}

func TestColumnar_EmptyUniverseRoundTrips(t *testing.T) {
	u := graph.NewUniverse()
	data, err := snapshot.EncodeUniverse(u, hash.Hash{}, 0)
	require.NoError(t, err)

	decoded, _, tick, err := snapshot.DecodeUniverse(data)
	require.NoError(t, err)
	require.Equal(t, uint64(0), tick)
	require.Empty(t, decoded.WarpIDs())
}
