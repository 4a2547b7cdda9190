// Package graph implements the single-instance skeleton plane (nodes, edges,
// reverse indices) and attachment plane (typed per-node/per-edge values)
// described in spec.md §3.2–§3.3 and §4.1, plus the BFS canonical state hash
// that ties a whole reachable instance graph to one 32-byte digest.
//
// Grounded on the teacher's dag/dag.go (a mutex-guarded map-backed block
// DAG with a tips set) generalized from "one flat block map" to "skeleton +
// attachment planes scoped per WarpID, with deterministic ascending
// iteration everywhere" — the teacher's own Frontier()/GetTips() sorting
// fix in engine/dag/consensus_real.go is the direct precedent for why every
// iteration method here returns pre-sorted slices instead of raw map
// ranges.
package graph

import (
	"fmt"
	"sync"

	"github.com/luxfi/warp/hash"
	"github.com/luxfi/warp/set"
)

// NodeRecord is the skeleton-plane record for one node (spec.md §3.2).
type NodeRecord struct {
	TypeID hash.TypeID
}

// EdgeRecord is the skeleton-plane record for one outgoing edge (spec.md
// §3.2).
type EdgeRecord struct {
	ID     hash.EdgeID
	To     hash.NodeID
	TypeID hash.TypeID
}

// Store is a single-instance skeleton + attachment plane, scoped to one
// WarpID. All exported iteration methods return ascending-key order; this
// is load-bearing for canonical hashing (spec.md §3.2 invariant).
type Store struct {
	warpID hash.WarpID

	mu sync.RWMutex

	nodes       map[hash.NodeID]NodeRecord
	edgesFrom   map[hash.NodeID]map[hash.EdgeID]EdgeRecord
	edgesTo     map[hash.NodeID]map[hash.EdgeID]struct{}
	edgeIndex   map[hash.EdgeID]hash.NodeID // edge -> from
	edgeToIndex map[hash.EdgeID]hash.NodeID // edge -> to

	attachments map[hash.AttachmentKey]AttachmentValue
}

// NewStore returns an empty Store scoped to warpID.
func NewStore(warpID hash.WarpID) *Store {
	return &Store{
		warpID:      warpID,
		nodes:       make(map[hash.NodeID]NodeRecord),
		edgesFrom:   make(map[hash.NodeID]map[hash.EdgeID]EdgeRecord),
		edgesTo:     make(map[hash.NodeID]map[hash.EdgeID]struct{}),
		edgeIndex:   make(map[hash.EdgeID]hash.NodeID),
		edgeToIndex: make(map[hash.EdgeID]hash.NodeID),
		attachments: make(map[hash.AttachmentKey]AttachmentValue),
	}
}

// WarpID returns the instance this store is scoped to.
func (s *Store) WarpID() hash.WarpID { return s.warpID }

// UpsertNode inserts or replaces a node record.
func (s *Store) UpsertNode(id hash.NodeID, rec NodeRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes[id] = rec
}

// DeleteNode removes a node record. Per spec.md §3.2, this does not cascade
// to edges referencing it; dangling edges remain until explicitly removed.
func (s *Store) DeleteNode(id hash.NodeID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.nodes, id)
}

// GetNode returns the record for id, if present.
func (s *Store) GetNode(id hash.NodeID) (NodeRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.nodes[id]
	return rec, ok
}

// Nodes returns every node id in ascending order.
func (s *Store) Nodes() []hash.NodeID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make(set.Set[hash.NodeID], len(s.nodes))
	for id := range s.nodes {
		ids.Add(id)
	}
	return set.SortedList(ids, func(a, b hash.NodeID) bool { return a.Compare(b) < 0 })
}

// InsertEdge adds an edge from->to. It is an error to reuse an EdgeID
// already present in the store (edge ids are unique within a warp).
func (s *Store) InsertEdge(from hash.NodeID, rec EdgeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.edgeIndex[rec.ID]; exists {
		return fmt.Errorf("graph: edge %s already exists", rec.ID)
	}
	if s.edgesFrom[from] == nil {
		s.edgesFrom[from] = make(map[hash.EdgeID]EdgeRecord)
	}
	s.edgesFrom[from][rec.ID] = rec
	if s.edgesTo[rec.To] == nil {
		s.edgesTo[rec.To] = make(map[hash.EdgeID]struct{})
	}
	s.edgesTo[rec.To][rec.ID] = struct{}{}
	s.edgeIndex[rec.ID] = from
	s.edgeToIndex[rec.ID] = rec.To
	return nil
}

// DeleteEdge removes edgeID, which must currently originate at from.
func (s *Store) DeleteEdge(from hash.NodeID, edgeID hash.EdgeID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	to, ok := s.edgeToIndex[edgeID]
	if !ok {
		return fmt.Errorf("graph: edge %s not found", edgeID)
	}
	delete(s.edgesFrom[from], edgeID)
	delete(s.edgesTo[to], edgeID)
	delete(s.edgeIndex, edgeID)
	delete(s.edgeToIndex, edgeID)
	return nil
}

// OutEdges returns the outgoing edges of node in ascending EdgeID order.
func (s *Store) OutEdges(node hash.NodeID) []EdgeRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m := s.edgesFrom[node]
	byID := make(set.Set[hash.EdgeID], len(m))
	recs := make(map[hash.EdgeID]EdgeRecord, len(m))
	for id, rec := range m {
		byID.Add(id)
		recs[id] = rec
	}
	ids := set.SortedList(byID, func(a, b hash.EdgeID) bool { return a.Compare(b) < 0 })
	out := make([]EdgeRecord, len(ids))
	for i, id := range ids {
		out[i] = recs[id]
	}
	return out
}

// InEdges returns the incoming edge ids of node in ascending order.
func (s *Store) InEdges(node hash.NodeID) []hash.EdgeID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m := s.edgesTo[node]
	ids := make(set.Set[hash.EdgeID], len(m))
	for id := range m {
		ids.Add(id)
	}
	return set.SortedList(ids, func(a, b hash.EdgeID) bool { return a.Compare(b) < 0 })
}

// EdgeSource returns the node an edge originates from.
func (s *Store) EdgeSource(edgeID hash.EdgeID) (hash.NodeID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.edgeIndex[edgeID]
	return n, ok
}

// SetAttachment installs or clears (value == nil) an attachment value.
func (s *Store) SetAttachment(key hash.AttachmentKey, value AttachmentValue) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if value == nil {
		delete(s.attachments, key)
		return
	}
	s.attachments[key] = value
}

// GetAttachment returns the value at key, if present.
func (s *Store) GetAttachment(key hash.AttachmentKey) (AttachmentValue, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.attachments[key]
	return v, ok
}

// AttachmentKeys returns every populated attachment key in ascending
// (derived-hash) order.
func (s *Store) AttachmentKeys() []hash.AttachmentKey {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make(set.Set[hash.AttachmentKey], len(s.attachments))
	for k := range s.attachments {
		keys.Add(k)
	}
	return set.SortedList(keys, func(a, b hash.AttachmentKey) bool { return a.Compare(b) < 0 })
}
