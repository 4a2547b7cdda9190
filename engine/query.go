package engine

import (
	"fmt"

	cockroacherrors "github.com/cockroachdb/errors"

	"github.com/luxfi/warp/graph"
	"github.com/luxfi/warp/hash"
	safemath "github.com/luxfi/warp/utils/math"
)

// QueryKind selects what a Query asks for.
type QueryKind uint8

const (
	QueryNode QueryKind = iota
	QueryOutEdges
	QueryAttachment
)

// Query is one query_state request (spec.md §6.1). WarpID+Node name the
// scope; which other fields matter depends on Kind.
type Query struct {
	Kind       QueryKind
	WarpID     hash.WarpID
	Node       hash.NodeID
	Attachment hash.AttachmentKey
}

// QueryResult is query_state's read-only answer.
type QueryResult struct {
	Node            graph.NodeRecord
	NodeFound       bool
	Edges           []graph.EdgeRecord
	Attachment      graph.AttachmentValue
	AttachmentFound bool
}

// QueryState answers a read-only query against the graph as it stood at
// commitHash (spec.md §6.1 query_state, and the time-travel debugging
// purpose of spec.md §1): the current committed state if commitHash is the
// engine's latest commit, or a reconstruction — nearest resident checkpoint
// plus replayed patches — for any earlier commit still inside the
// provenance and checkpoint retention windows (spec.md §6.5).
func (e *Engine) QueryState(commitHash hash.Hash, q Query) (QueryResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	universe, err := e.universeAt(commitHash)
	if err != nil {
		return QueryResult{}, err
	}

	store, ok := universe.Store(q.WarpID)
	if !ok {
		return QueryResult{}, fmt.Errorf("engine: query_state: warp %s not present at commit %s", q.WarpID, commitHash)
	}

	switch q.Kind {
	case QueryNode:
		rec, found := store.GetNode(q.Node)
		return QueryResult{Node: rec, NodeFound: found}, nil
	case QueryOutEdges:
		return QueryResult{Edges: store.OutEdges(q.Node)}, nil
	case QueryAttachment:
		val, found := store.GetAttachment(q.Attachment)
		return QueryResult{Attachment: val, AttachmentFound: found}, nil
	default:
		return QueryResult{}, fmt.Errorf("engine: query_state: unknown query kind %d", q.Kind)
	}
}

// universeAt reconstructs the universe as of commitHash. The current
// committed universe answers itself directly; any other commit is rebuilt
// from the nearest resident checkpoint by replaying provenance-window
// patches forward.
func (e *Engine) universeAt(commitHash hash.Hash) (*graph.Universe, error) {
	if commitHash == e.lastCommit {
		return e.universe, nil
	}

	targetTick, ok := e.commitIndex.Get(commitHash)
	if !ok {
		return nil, fmt.Errorf("engine: query_state: commit %s is not resident (outside retention)", commitHash)
	}

	checkpointTick, checkpointUniverse, ok := e.nearestCheckpoint(targetTick)
	if !ok {
		return nil, fmt.Errorf("engine: query_state: no checkpoint available to reconstruct commit %s", commitHash)
	}

	working := checkpointUniverse.Clone()
	for t := checkpointTick + 1; t <= targetTick; t++ {
		patch, ok := e.patches.Get(t)
		if !ok {
			return nil, fmt.Errorf("engine: query_state: patch for tick %d evicted from provenance window", t)
		}
		if err := applyPatch(working, patch); err != nil {
			return nil, cockroacherrors.Mark(&CommitError{Detail: err.Error()}, markCommit)
		}
	}
	return working, nil
}

// nearestCheckpoint walks backward from targetTick in steps of
// CheckpointInterval until it finds a resident checkpoint. Stepping via
// Sub64 rather than bare subtraction ends the walk on Sub64's underflow
// error once t would drop below zero, so t never wraps around. The
// checkpoint window is bounded, so the tick-0 checkpoint seeded at
// construction can be evicted; when no checkpoint at or below targetTick
// is resident, nearestCheckpoint returns false.
func (e *Engine) nearestCheckpoint(targetTick uint64) (uint64, *graph.Universe, bool) {
	interval := uint64(e.cfg.CheckpointInterval)
	if interval == 0 {
		interval = 1
	}
	for t := (targetTick / interval) * interval; ; {
		if u, ok := e.checkpoints.Get(t); ok {
			return t, u, true
		}
		next, err := safemath.Sub64(t, interval)
		if err != nil {
			break
		}
		t = next
	}
	return 0, nil, false
}
