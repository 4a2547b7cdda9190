package merge_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/warp/boaw"
	"github.com/luxfi/warp/graph"
	"github.com/luxfi/warp/hash"
	"github.com/luxfi/warp/merge"
	"github.com/luxfi/warp/warpop"
)

func delta(ops ...warpop.TaggedOp) *warpop.Delta {
	return &warpop.Delta{Ops: ops}
}

func TestMerge_DedupesIdenticalOpsFromDifferentOrigins(t *testing.T) {
	w := hash.NewWarpID("w")
	n := hash.NewNodeID("n")
	t1 := hash.NewTypeID("t")
	op := warpop.UpsertNodeOp{WarpID: w, Node: n, Record: graph.NodeRecord{TypeID: t1}}

	workers := []boaw.WorkerOutput{
		{Delta: delta(warpop.TaggedOp{Op: op, Origin: warpop.OpOrigin{AdmissionIdx: 0}})},
		{Delta: delta(warpop.TaggedOp{Op: op, Origin: warpop.OpOrigin{AdmissionIdx: 1}})},
	}
	patch, err := merge.Merge(workers, nil)
	require.NoError(t, err)
	require.Len(t, patch.Ops, 1)
}

func TestMerge_ConflictingPayloadsSameKeyIsError(t *testing.T) {
	w := hash.NewWarpID("w")
	n := hash.NewNodeID("n")
	opA := warpop.UpsertNodeOp{WarpID: w, Node: n, Record: graph.NodeRecord{TypeID: hash.NewTypeID("a")}}
	opB := warpop.UpsertNodeOp{WarpID: w, Node: n, Record: graph.NodeRecord{TypeID: hash.NewTypeID("b")}}

	workers := []boaw.WorkerOutput{
		{Delta: delta(warpop.TaggedOp{Op: opA, Origin: warpop.OpOrigin{AdmissionIdx: 0}})},
		{Delta: delta(warpop.TaggedOp{Op: opB, Origin: warpop.OpOrigin{AdmissionIdx: 1}})},
	}
	_, err := merge.Merge(workers, nil)
	require.Error(t, err)
	var conflict *merge.MergeConflict
	require.ErrorAs(t, err, &conflict)
}

func TestMerge_WriteToEmptyOpenedWarpIsRejected(t *testing.T) {
	child := hash.NewWarpID("child")
	parentKey := hash.NodeAttachmentKey(hash.NewNodeID("p"), hash.PlaneAlpha)

	openOp := warpop.OpenPortalOp{Key_: parentKey, ChildWarp: child, ChildRoot: hash.NewNodeID("root"), Init: warpop.PortalInit{Mode: warpop.InitEmpty}}
	writeOp := warpop.UpsertNodeOp{WarpID: child, Node: hash.NewNodeID("illegal")}

	workers := []boaw.WorkerOutput{
		{Delta: delta(
			warpop.TaggedOp{Op: openOp, Origin: warpop.OpOrigin{AdmissionIdx: 0}},
			warpop.TaggedOp{Op: writeOp, Origin: warpop.OpOrigin{AdmissionIdx: 1}},
		)},
	}
	_, err := merge.Merge(workers, nil)
	require.Error(t, err)
	var wtn *merge.WriteToNewWarp
	require.ErrorAs(t, err, &wtn)
}

func TestMerge_SeededPortalAllowsSameTickWrites(t *testing.T) {
	child := hash.NewWarpID("child")
	parentKey := hash.NodeAttachmentKey(hash.NewNodeID("p"), hash.PlaneAlpha)

	openOp := warpop.OpenPortalOp{Key_: parentKey, ChildWarp: child, ChildRoot: hash.NewNodeID("root"), Init: warpop.PortalInit{Mode: warpop.InitSeeded, Seed: []byte("seed")}}
	writeOp := warpop.UpsertNodeOp{WarpID: child, Node: hash.NewNodeID("ok")}

	workers := []boaw.WorkerOutput{
		{Delta: delta(
			warpop.TaggedOp{Op: openOp, Origin: warpop.OpOrigin{AdmissionIdx: 0}},
			warpop.TaggedOp{Op: writeOp, Origin: warpop.OpOrigin{AdmissionIdx: 1}},
		)},
	}
	patch, err := merge.Merge(workers, nil)
	require.NoError(t, err)
	require.Len(t, patch.Ops, 2)
}

func TestMerge_PoisonedShortCircuits(t *testing.T) {
	_, err := merge.Merge(nil, []boaw.PoisonedDelta{{Panic: "boom"}})
	require.Error(t, err)
	var fp *merge.ForwardedPoison
	require.ErrorAs(t, err, &fp)
}
