// Package matbus implements the materialization bus (spec.md §4.3):
// order-independent emission of per-channel outputs during tick execution,
// finalized into a deterministic byte stream and digest at commit time.
//
// Grounded on the teacher's thread-local-then-drained accumulation pattern
// in warpop.Delta (itself grounded on the teacher's per-worker vertex
// batching in engine/dag/consensus_real.go), generalized from "a sequence
// of WarpOps" to "a sequence of opaque, channel-scoped emissions that must
// be reduced or deduplicated deterministically regardless of which worker
// produced them."
package matbus

import (
	"encoding/binary"
	"fmt"
	"slices"

	"github.com/luxfi/warp/hash"
	"github.com/luxfi/warp/internal/canon"
	"github.com/luxfi/warp/utils/wrappers"
)

// EmitKey identifies one emission within a channel (spec.md §4.3): the
// scope it was produced for, the rule that produced it, and a subkey a
// rule uses when it emits more than one entry per scope.
type EmitKey struct {
	ScopeHash hash.Hash
	RuleID    uint32
	Subkey    uint32
}

// Compare orders two keys ascending: scope hash, then rule id, then
// subkey. Finalization always iterates in this order.
func (k EmitKey) Compare(o EmitKey) int {
	if c := k.ScopeHash.Compare(o.ScopeHash); c != 0 {
		return c
	}
	if k.RuleID != o.RuleID {
		if k.RuleID < o.RuleID {
			return -1
		}
		return 1
	}
	if k.Subkey != o.Subkey {
		if k.Subkey < o.Subkey {
			return -1
		}
		return 1
	}
	return 0
}

// PolicyKind selects how a channel's entries combine at finalization.
type PolicyKind uint8

const (
	PolicyLog PolicyKind = iota
	PolicyStrictSingle
	PolicyReduce
)

// ReduceOp is the associative/commutative operation a Reduce-policy channel
// folds its entries with. Sum/Max/Min interpret every entry as an 8-byte
// little-endian u64; First/Last/Concat treat entries as opaque bytes.
type ReduceOp uint8

const (
	ReduceSum ReduceOp = iota
	ReduceMax
	ReduceMin
	ReduceFirst
	ReduceLast
	ReduceConcat
)

// ChannelPolicy configures one channel's finalization behavior.
type ChannelPolicy struct {
	Kind   PolicyKind
	Reduce ReduceOp // meaningful iff Kind == PolicyReduce
}

// Emission is one opaque entry a rule's executor produced for a channel,
// pending merge into the bus.
type Emission struct {
	Channel string
	Key     EmitKey
	Bytes   []byte
}

// Emitter is the thread-local sink a worker's execute_fn writes into
// (spec.md §4.3, §4.5): "workers write through their scoped emitters into
// thread-local buffers that are drained by the bus at merge." A worker
// owns its Emitter for the duration of execution.
type Emitter struct {
	Emissions []Emission
}

// Emit records one opaque entry for channel under key.
func (e *Emitter) Emit(channel string, key EmitKey, bytes []byte) {
	e.Emissions = append(e.Emissions, Emission{Channel: channel, Key: key, Bytes: bytes})
}

// Bus owns channel policy registration and performs merge-time
// finalization. It holds no per-tick emission state of its own; callers
// pass the tick's collected Emitters directly to Finalize.
type Bus struct {
	policies map[string]ChannelPolicy
}

// NewBus returns an empty Bus.
func NewBus() *Bus {
	return &Bus{policies: make(map[string]ChannelPolicy)}
}

// Register declares channel's policy. Registering the same channel twice
// with a different policy is a configuration error (the policy is fixed
// for the lifetime of the engine, per spec.md §4.3).
func (b *Bus) Register(channel string, policy ChannelPolicy) error {
	if existing, ok := b.policies[channel]; ok && existing != policy {
		return fmt.Errorf("matbus: channel %q already registered with a different policy", channel)
	}
	b.policies[channel] = policy
	return nil
}

// ChannelResult is one channel's finalized output.
type ChannelResult struct {
	Channel string
	Stream  []byte
	Digest  hash.Hash
}

// StrictSingleViolation reports a StrictSingle channel that received more
// than one distinct entry in a tick.
type StrictSingleViolation struct {
	Channel string
	Count   int
}

func (e *StrictSingleViolation) Error() string {
	return fmt.Sprintf("matbus: channel %q is StrictSingle but received %d entries", e.Channel, e.Count)
}

// ReduceDomainMismatch reports an entry whose bytes are not valid input for
// its channel's declared reduce operation (e.g. a non-8-byte value under
// ReduceSum).
type ReduceDomainMismatch struct {
	Channel string
	Key     EmitKey
	Detail  string
}

func (e *ReduceDomainMismatch) Error() string {
	return fmt.Sprintf("matbus: channel %q reduce domain mismatch at key %+v: %s", e.Channel, e.Key, e.Detail)
}

// EmissionConflict reports two entries at the same (channel, EmitKey) with
// divergent bytes.
type EmissionConflict struct {
	Channel string
	Key     EmitKey
}

func (e *EmissionConflict) Error() string {
	return fmt.Sprintf("matbus: channel %q has conflicting emissions at key %+v", e.Channel, e.Key)
}

// Finalize flattens every emitter's emissions, dedupes/conflict-checks
// identical-key entries, applies each channel's policy, and returns one
// ChannelResult per channel that received at least one entry (spec.md
// §4.9 step 10).
//
// Every channel is finalized even after one fails, and every failure is
// accumulated (teacher-style: utils/wrappers.Errs, an "accumulate many,
// report all" shutdown path) so an aborted tick's error names every
// violating channel at once rather than just the first encountered in
// sorted-channel order.
func (b *Bus) Finalize(emitters []*Emitter) (map[string]ChannelResult, error) {
	byChannel := make(map[string][]Emission)
	for _, e := range emitters {
		if e == nil {
			continue
		}
		for _, em := range e.Emissions {
			byChannel[em.Channel] = append(byChannel[em.Channel], em)
		}
	}

	results := make(map[string]ChannelResult, len(byChannel))
	channels := make([]string, 0, len(byChannel))
	for ch := range byChannel {
		channels = append(channels, ch)
	}
	slices.Sort(channels)

	var errs wrappers.Errs
	for _, channel := range channels {
		entries, err := dedupe(channel, byChannel[channel])
		if err != nil {
			errs.Add(err)
			continue
		}
		policy := b.policies[channel]
		stream, err := finalizeChannel(channel, policy, entries)
		if err != nil {
			errs.Add(err)
			continue
		}
		w := canon.NewWriter()
		w.Tag("matbus.channel")
		w.Blob([]byte(channel))
		w.Blob(stream)
		results[channel] = ChannelResult{
			Channel: channel,
			Stream:  stream,
			Digest:  hash.Derive(hash.Tags.ChannelDigest, w.Bytes()),
		}
	}
	if errs.Errored() {
		return nil, errs.Err()
	}
	return results, nil
}

// dedupe collapses identical (key, bytes) duplicates and returns entries
// sorted ascending by EmitKey, erroring on divergent bytes under the same
// key (spec.md §4.3 finalization rule, independent of channel policy).
func dedupe(channel string, emissions []Emission) ([]Emission, error) {
	byKey := make(map[EmitKey][]byte, len(emissions))
	order := make([]EmitKey, 0, len(emissions))
	for _, em := range emissions {
		existing, ok := byKey[em.Key]
		if !ok {
			byKey[em.Key] = em.Bytes
			order = append(order, em.Key)
			continue
		}
		if string(existing) != string(em.Bytes) {
			return nil, &EmissionConflict{Channel: channel, Key: em.Key}
		}
	}
	slices.SortFunc(order, func(a, b EmitKey) int { return a.Compare(b) })
	out := make([]Emission, 0, len(order))
	for _, k := range order {
		out = append(out, Emission{Channel: channel, Key: k, Bytes: byKey[k]})
	}
	return out, nil
}

func finalizeChannel(channel string, policy ChannelPolicy, entries []Emission) ([]byte, error) {
	switch policy.Kind {
	case PolicyStrictSingle:
		if len(entries) > 1 {
			return nil, &StrictSingleViolation{Channel: channel, Count: len(entries)}
		}
		if len(entries) == 0 {
			return nil, nil
		}
		return entries[0].Bytes, nil
	case PolicyReduce:
		return reduceFold(channel, policy.Reduce, entries)
	default: // PolicyLog
		w := canon.NewWriter()
		w.U64(uint64(len(entries)))
		for _, e := range entries {
			w.Raw(e.Key.ScopeHash.Bytes())
			w.U32(e.Key.RuleID)
			w.U32(e.Key.Subkey)
			w.Blob(e.Bytes)
		}
		return w.Bytes(), nil
	}
}

func reduceFold(channel string, op ReduceOp, entries []Emission) ([]byte, error) {
	switch op {
	case ReduceFirst:
		if len(entries) == 0 {
			return nil, nil
		}
		return entries[0].Bytes, nil
	case ReduceLast:
		if len(entries) == 0 {
			return nil, nil
		}
		return entries[len(entries)-1].Bytes, nil
	case ReduceConcat:
		w := canon.NewWriter()
		for _, e := range entries {
			w.Blob(e.Bytes)
		}
		return w.Bytes(), nil
	case ReduceSum, ReduceMax, ReduceMin:
		var acc uint64
		for i, e := range entries {
			if len(e.Bytes) != 8 {
				return nil, &ReduceDomainMismatch{Channel: channel, Key: e.Key, Detail: "expected an 8-byte little-endian u64"}
			}
			n := binary.LittleEndian.Uint64(e.Bytes)
			switch {
			case op == ReduceSum:
				acc += n
			case i == 0:
				acc = n
			case op == ReduceMax && n > acc:
				acc = n
			case op == ReduceMin && n < acc:
				acc = n
			}
		}
		out := make([]byte, 8)
		binary.LittleEndian.PutUint64(out, acc)
		return out, nil
	default:
		return nil, fmt.Errorf("matbus: unknown reduce op %d", op)
	}
}
