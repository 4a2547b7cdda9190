package warpop_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/warp/graph"
	"github.com/luxfi/warp/hash"
	"github.com/luxfi/warp/internal/canon"
	"github.com/luxfi/warp/warpop"
)

func TestWarpOpKey_Ordering(t *testing.T) {
	w := hash.NewWarpID("w")
	n1 := hash.NewNodeID("n1")
	n2 := hash.NewNodeID("n2")

	opA := warpop.UpsertNodeOp{WarpID: w, Node: n1}
	opB := warpop.UpsertNodeOp{WarpID: w, Node: n2}

	ka, kb := opA.Key(), opB.Key()
	if n1.Compare(n2) < 0 {
		require.Negative(t, ka.Compare(kb))
	} else {
		require.Positive(t, ka.Compare(kb))
	}
	require.Zero(t, ka.Compare(ka))
}

func TestWarpOp_EqualDetectsConflict(t *testing.T) {
	w := hash.NewWarpID("w")
	n := hash.NewNodeID("n")
	t1 := hash.NewTypeID("t1")
	t2 := hash.NewTypeID("t2")

	opA := warpop.UpsertNodeOp{WarpID: w, Node: n, Record: graph.NodeRecord{TypeID: t1}}
	opB := warpop.UpsertNodeOp{WarpID: w, Node: n, Record: graph.NodeRecord{TypeID: t2}}
	opC := warpop.UpsertNodeOp{WarpID: w, Node: n, Record: graph.NodeRecord{TypeID: t1}}

	require.True(t, opA.Key().Compare(opB.Key()) == 0, "same key expected")
	require.False(t, opA.Equal(opB), "divergent payload under same key must not be Equal")
	require.True(t, opA.Equal(opC), "identical payload under same key must dedup")
}

func TestOpenPortalOp_EncodeDeterministic(t *testing.T) {
	op := warpop.OpenPortalOp{
		ParentWarp: hash.NewWarpID("parent"),
		Key_:       hash.NodeAttachmentKey(hash.NewNodeID("p"), hash.PlaneAlpha),
		ChildWarp:  hash.NewWarpID("child"),
		ChildRoot:  hash.NewNodeID("child-root"),
		Init:       warpop.PortalInit{Mode: warpop.InitEmpty},
	}
	w1 := canon.NewWriter()
	op.Encode(w1)
	w2 := canon.NewWriter()
	op.Encode(w2)
	require.Equal(t, w1.Bytes(), w2.Bytes())
}
