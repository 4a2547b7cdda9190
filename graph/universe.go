package graph

import (
	"fmt"
	"slices"
	"sync"

	"github.com/luxfi/warp/hash"
)

// Instance records one WARP instance's metadata: its root node and, for all
// but the top-level instance, the parent attachment key whose Descend value
// created it (spec.md §3.7 Snapshot.root / §4.1 step 2).
type Instance struct {
	WarpID    hash.WarpID
	Root      hash.NodeID
	ParentKey hash.AttachmentKey // zero value for the top-level instance
}

// Universe owns every instance's Store plus its Instance metadata. It is
// the engine's single point of ownership for graph state (spec.md §9.6).
type Universe struct {
	mu        sync.RWMutex
	instances map[hash.WarpID]*Instance
	stores    map[hash.WarpID]*Store
}

// NewUniverse returns an empty Universe.
func NewUniverse() *Universe {
	return &Universe{
		instances: make(map[hash.WarpID]*Instance),
		stores:    make(map[hash.WarpID]*Store),
	}
}

// UpsertInstance declares or replaces an instance's metadata and ensures a
// backing Store exists for it.
func (u *Universe) UpsertInstance(inst Instance) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.instances[inst.WarpID] = &inst
	if _, ok := u.stores[inst.WarpID]; !ok {
		u.stores[inst.WarpID] = NewStore(inst.WarpID)
	}
}

// DeleteInstance removes an instance and its store entirely.
func (u *Universe) DeleteInstance(id hash.WarpID) {
	u.mu.Lock()
	defer u.mu.Unlock()
	delete(u.instances, id)
	delete(u.stores, id)
}

// Instance returns the metadata for a WarpID.
func (u *Universe) Instance(id hash.WarpID) (Instance, bool) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	inst, ok := u.instances[id]
	if !ok {
		return Instance{}, false
	}
	return *inst, true
}

// Store returns the Store for a WarpID, or (nil, false) if there is none;
// it never creates one (UpsertInstance does). A missing
// store for a WarpID that has no Instance metadata is a caller error; the
// tick engine always calls UpsertInstance before touching a store.
func (u *Universe) Store(id hash.WarpID) (*Store, bool) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	s, ok := u.stores[id]
	return s, ok
}

// WarpIDs returns every instance id in the universe, ascending. Used by the
// columnar snapshot encoder (spec.md §6.2) to serialize warps in a stable
// order.
func (u *Universe) WarpIDs() []hash.WarpID {
	u.mu.RLock()
	defer u.mu.RUnlock()
	out := make([]hash.WarpID, 0, len(u.instances))
	for id := range u.instances {
		out = append(out, id)
	}
	slices.SortFunc(out, func(a, b hash.WarpID) int { return a.Hash().Compare(b.Hash()) })
	return out
}

// MustStore is Store but panics on a missing instance; used in paths that
// have already validated the WarpID exists (e.g. the columnar snapshot
// decoder, right after its UpsertInstance call).
func (u *Universe) MustStore(id hash.WarpID) *Store {
	s, ok := u.Store(id)
	if !ok {
		panic(fmt.Sprintf("graph: no store for warp %s", id))
	}
	return s
}

// Clone returns a deep, independent copy of the universe. The tick engine
// clones the prior committed universe once per tick to build the immutable
// read view workers observe through GraphView (spec.md §9.6): readers never
// see partially-applied state because they never see the real mutable
// universe at all.
func (u *Universe) Clone() *Universe {
	u.mu.RLock()
	defer u.mu.RUnlock()

	out := NewUniverse()
	for id, inst := range u.instances {
		cp := *inst
		out.instances[id] = &cp
	}
	for id, store := range u.stores {
		out.stores[id] = store.clone()
	}
	return out
}

func (s *Store) clone() *Store {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := NewStore(s.warpID)
	for id, rec := range s.nodes {
		out.nodes[id] = rec
	}
	for from, edges := range s.edgesFrom {
		m := make(map[hash.EdgeID]EdgeRecord, len(edges))
		for id, rec := range edges {
			m[id] = rec
		}
		out.edgesFrom[from] = m
	}
	for to, edges := range s.edgesTo {
		m := make(map[hash.EdgeID]struct{}, len(edges))
		for id := range edges {
			m[id] = struct{}{}
		}
		out.edgesTo[to] = m
	}
	for id, from := range s.edgeIndex {
		out.edgeIndex[id] = from
	}
	for id, to := range s.edgeToIndex {
		out.edgeToIndex[id] = to
	}
	for k, v := range s.attachments {
		out.attachments[k] = v
	}
	return out
}
