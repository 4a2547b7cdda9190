package matbus_test

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/warp/hash"
	"github.com/luxfi/warp/matbus"
)

func u64Bytes(v uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return b
}

func TestFinalize_LogOrdersByEmitKeyRegardlessOfEmitterOrder(t *testing.T) {
	bus := matbus.NewBus()
	require.NoError(t, bus.Register("events", matbus.ChannelPolicy{Kind: matbus.PolicyLog}))

	k1 := matbus.EmitKey{ScopeHash: hash.NewNodeID("a").Hash(), RuleID: 1}
	k2 := matbus.EmitKey{ScopeHash: hash.NewNodeID("b").Hash(), RuleID: 1}

	e1 := &matbus.Emitter{}
	e1.Emit("events", k2, []byte("second"))
	e2 := &matbus.Emitter{}
	e2.Emit("events", k1, []byte("first"))

	resA, err := bus.Finalize([]*matbus.Emitter{e1, e2})
	require.NoError(t, err)
	resB, err := bus.Finalize([]*matbus.Emitter{e2, e1})
	require.NoError(t, err)
	require.Equal(t, resA["events"].Stream, resB["events"].Stream)
	require.Equal(t, resA["events"].Digest, resB["events"].Digest)
}

func TestFinalize_DuplicateIdenticalKeyDedupes(t *testing.T) {
	bus := matbus.NewBus()
	require.NoError(t, bus.Register("events", matbus.ChannelPolicy{Kind: matbus.PolicyLog}))

	k := matbus.EmitKey{ScopeHash: hash.NewNodeID("a").Hash(), RuleID: 1}
	e := &matbus.Emitter{}
	e.Emit("events", k, []byte("x"))
	e.Emit("events", k, []byte("x"))

	res, err := bus.Finalize([]*matbus.Emitter{e})
	require.NoError(t, err)
	// A Log stream starts with its u64 entry count.
	require.Equal(t, uint64(1), binary.LittleEndian.Uint64(res["events"].Stream[:8]))
}

func TestFinalize_DivergentBytesSameKeyConflicts(t *testing.T) {
	bus := matbus.NewBus()
	require.NoError(t, bus.Register("events", matbus.ChannelPolicy{Kind: matbus.PolicyLog}))

	k := matbus.EmitKey{ScopeHash: hash.NewNodeID("a").Hash(), RuleID: 1}
	e := &matbus.Emitter{}
	e.Emit("events", k, []byte("x"))
	e.Emit("events", k, []byte("y"))

	_, err := bus.Finalize([]*matbus.Emitter{e})
	require.Error(t, err)
	var conflict *matbus.EmissionConflict
	require.ErrorAs(t, err, &conflict)
}

func TestFinalize_StrictSingleRejectsMultiple(t *testing.T) {
	bus := matbus.NewBus()
	require.NoError(t, bus.Register("result", matbus.ChannelPolicy{Kind: matbus.PolicyStrictSingle}))

	e := &matbus.Emitter{}
	e.Emit("result", matbus.EmitKey{ScopeHash: hash.NewNodeID("a").Hash()}, []byte("1"))
	e.Emit("result", matbus.EmitKey{ScopeHash: hash.NewNodeID("b").Hash()}, []byte("2"))

	_, err := bus.Finalize([]*matbus.Emitter{e})
	require.Error(t, err)
	var violation *matbus.StrictSingleViolation
	require.ErrorAs(t, err, &violation)
}

func TestFinalize_ReduceSumIsOrderIndependent(t *testing.T) {
	bus := matbus.NewBus()
	require.NoError(t, bus.Register("total", matbus.ChannelPolicy{Kind: matbus.PolicyReduce, Reduce: matbus.ReduceSum}))

	e1 := &matbus.Emitter{}
	e1.Emit("total", matbus.EmitKey{ScopeHash: hash.NewNodeID("a").Hash()}, u64Bytes(3))
	e1.Emit("total", matbus.EmitKey{ScopeHash: hash.NewNodeID("b").Hash()}, u64Bytes(4))

	res, err := bus.Finalize([]*matbus.Emitter{e1})
	require.NoError(t, err)
	require.Equal(t, uint64(7), binary.LittleEndian.Uint64(res["total"].Stream))
}
