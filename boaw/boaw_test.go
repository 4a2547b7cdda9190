package boaw_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/warp/boaw"
	"github.com/luxfi/warp/footprint"
	"github.com/luxfi/warp/graph"
	"github.com/luxfi/warp/guard"
	"github.com/luxfi/warp/hash"
	"github.com/luxfi/warp/matbus"
	"github.com/luxfi/warp/rule"
	"github.com/luxfi/warp/warpop"
)

func newUniverseWithNode(warpID hash.WarpID, node hash.NodeID) *graph.Universe {
	u := graph.NewUniverse()
	u.UpsertInstance(graph.Instance{WarpID: warpID, Root: node})
	u.MustStore(warpID).UpsertNode(node, graph.NodeRecord{TypeID: hash.NewTypeID("t")})
	return u
}

func TestRun_ShardOfIsDeterministic(t *testing.T) {
	h := hash.NewNodeID("x").Hash()
	require.Equal(t, boaw.ShardOf(h), boaw.ShardOf(h))
}

func TestRun_SuccessfulExecutionProducesOps(t *testing.T) {
	warpID := hash.NewWarpID("w")
	node := hash.NewNodeID("n")
	u := newUniverseWithNode(warpID, node)

	fp := footprint.New()
	fp.NWrite.Add(footprint.WarpNode{Warp: warpID, Node: node})
	fp.FactorMask = 1

	r := &rule.Rule{
		Execute: func(view *guard.View, scope rule.MatchScope, payload any, sink *guard.Sink, emit *matbus.Emitter) error {
			return sink.Emit(warpop.UpsertNodeOp{WarpID: warpID, Node: node, Record: graph.NodeRecord{TypeID: hash.NewTypeID("t2")}})
		},
	}
	item := boaw.ExecItem{Rule: r, Scope: rule.MatchScope{WarpID: warpID, Node: node}, Footprint: fp}

	res := boaw.Run(u, []boaw.ExecItem{item}, 4, guard.Enforced)
	require.Empty(t, res.Poisoned)
	require.Empty(t, res.Missing)

	total := 0
	for _, w := range res.Workers {
		total += len(w.Delta.Ops)
	}
	require.Equal(t, 1, total)
}

func TestRun_PanicIsCapturedAsPoisonedAndOpsDiscarded(t *testing.T) {
	warpID := hash.NewWarpID("w")
	node := hash.NewNodeID("n")
	u := newUniverseWithNode(warpID, node)

	fp := footprint.New()
	fp.NWrite.Add(footprint.WarpNode{Warp: warpID, Node: node})
	fp.FactorMask = 1

	r := &rule.Rule{
		Execute: func(view *guard.View, scope rule.MatchScope, payload any, sink *guard.Sink, emit *matbus.Emitter) error {
			_ = sink.Emit(warpop.UpsertNodeOp{WarpID: warpID, Node: node})
			panic("boom")
		},
	}
	item := boaw.ExecItem{Rule: r, Scope: rule.MatchScope{WarpID: warpID, Node: node}, Footprint: fp}

	res := boaw.Run(u, []boaw.ExecItem{item}, 2, guard.Off)
	require.Len(t, res.Poisoned, 1)
	for _, w := range res.Workers {
		require.Empty(t, w.Delta.Ops)
	}
}

func TestRun_MissingStoreReported(t *testing.T) {
	u := graph.NewUniverse()
	absentWarp := hash.NewWarpID("absent")
	item := boaw.ExecItem{
		Rule:  &rule.Rule{Execute: func(*guard.View, rule.MatchScope, any, *guard.Sink, *matbus.Emitter) error { return nil }},
		Scope: rule.MatchScope{WarpID: absentWarp, Node: hash.NewNodeID("n")},
	}
	res := boaw.Run(u, []boaw.ExecItem{item}, 1, guard.Off)
	require.Len(t, res.Missing, 1)
	require.Equal(t, absentWarp, res.Missing[0].WarpID)
}

func TestRun_GuardRejectsUndeclaredWrite(t *testing.T) {
	warpID := hash.NewWarpID("w")
	node := hash.NewNodeID("n")
	u := newUniverseWithNode(warpID, node)

	fp := footprint.New() // no NWrite declared
	r := &rule.Rule{
		Execute: func(view *guard.View, scope rule.MatchScope, payload any, sink *guard.Sink, emit *matbus.Emitter) error {
			err := sink.Emit(warpop.UpsertNodeOp{WarpID: warpID, Node: node})
			if err == nil {
				return errors.New("expected guard violation")
			}
			return err
		},
	}
	item := boaw.ExecItem{Rule: r, Scope: rule.MatchScope{WarpID: warpID, Node: node}, Footprint: fp}

	res := boaw.Run(u, []boaw.ExecItem{item}, 1, guard.Enforced)
	require.Len(t, res.Poisoned, 1)
}
