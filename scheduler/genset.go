package scheduler

import (
	"github.com/luxfi/warp/footprint"
	"github.com/luxfi/warp/set"
)

// GenSet is a generation-stamped membership set (spec.md §4.4): a key is
// considered marked iff its stored stamp equals the current generation.
// Advancing the generation logically clears every mark in O(1) without
// touching the underlying storage, at the cost of stamps from old
// generations lingering (harmlessly) in the map until overwritten.
type GenSet[T comparable] struct {
	gen   uint64
	stamp map[T]uint64
}

// NewGenSet returns an empty GenSet at generation 1 (0 is reserved so a
// zero-value stamp map entry is never mistaken for "marked").
func NewGenSet[T comparable]() *GenSet[T] {
	return &GenSet[T]{gen: 1, stamp: make(map[T]uint64)}
}

// Mark stamps key with the current generation.
func (g *GenSet[T]) Mark(key T) {
	g.stamp[key] = g.gen
}

// MarkAll stamps every element of s with the current generation.
func (g *GenSet[T]) MarkAll(s set.Set[T]) {
	for k := range s {
		g.Mark(k)
	}
}

// Contains reports whether key is marked in the current generation.
func (g *GenSet[T]) Contains(key T) bool {
	return g.stamp[key] == g.gen
}

// OverlapsSet reports whether any element of s is marked in the current
// generation. Cost is O(len(s)), one map lookup per element — the "O(1)
// per resource" of spec.md §4.4.
func (g *GenSet[T]) OverlapsSet(s set.Set[T]) bool {
	for k := range s {
		if g.Contains(k) {
			return true
		}
	}
	return false
}

// Advance moves to the next generation, clearing every mark in O(1).
func (g *GenSet[T]) Advance() {
	g.gen++
}

// ActiveFootprints tracks, for the current tick, the union of resources
// claimed by already-admitted candidates, using one GenSet per resource
// kind (spec.md §4.4). Advance clears every mark so one instance can be
// reused for the next tick; the engine does not reuse one: it builds a
// fresh ActiveFootprints for each tick's admission pass and never calls
// Advance.
type ActiveFootprints struct {
	nodeWrite *GenSet[footprint.WarpNode]
	nodeRead  *GenSet[footprint.WarpNode]
	edgeWrite *GenSet[footprint.WarpEdge]
	edgeRead  *GenSet[footprint.WarpEdge]
	attWrite  *GenSet[footprint.WarpAttachment]
	attRead   *GenSet[footprint.WarpAttachment]
	portIn    *GenSet[footprint.PortKey]
	portOut   *GenSet[footprint.PortKey]

	factorMask    uint64
	factorMaskGen uint64
	curGen        uint64
}

// NewActiveFootprints returns an empty ActiveFootprints.
func NewActiveFootprints() *ActiveFootprints {
	return &ActiveFootprints{
		nodeWrite: NewGenSet[footprint.WarpNode](),
		nodeRead:  NewGenSet[footprint.WarpNode](),
		edgeWrite: NewGenSet[footprint.WarpEdge](),
		edgeRead:  NewGenSet[footprint.WarpEdge](),
		attWrite:  NewGenSet[footprint.WarpAttachment](),
		attRead:   NewGenSet[footprint.WarpAttachment](),
		portIn:    NewGenSet[footprint.PortKey](),
		portOut:   NewGenSet[footprint.PortKey](),
		curGen:    1,
	}
}

// Independent tests fp against every resource already admitted this tick,
// using the same early-exit order as footprint.Independent (spec.md §4.2,
// §4.4): factor mask, boundary ports, edges, attachments, nodes.
func (a *ActiveFootprints) Independent(fp footprint.Footprint) bool {
	if fp.FactorMask&a.factorMask == 0 {
		return true
	}
	if a.portIn.OverlapsSet(fp.BIn) || a.portOut.OverlapsSet(fp.BIn) ||
		a.portIn.OverlapsSet(fp.BOut) || a.portOut.OverlapsSet(fp.BOut) {
		return false
	}
	if a.edgeWrite.OverlapsSet(fp.EWrite) || a.edgeWrite.OverlapsSet(fp.ERead) || a.edgeRead.OverlapsSet(fp.EWrite) {
		return false
	}
	if a.attWrite.OverlapsSet(fp.AWrite) || a.attWrite.OverlapsSet(fp.ARead) || a.attRead.OverlapsSet(fp.AWrite) {
		return false
	}
	if a.nodeWrite.OverlapsSet(fp.NWrite) || a.nodeWrite.OverlapsSet(fp.NRead) || a.nodeRead.OverlapsSet(fp.NWrite) {
		return false
	}
	return true
}

// Mark atomically (from the scheduler's single-threaded admission loop's
// point of view) claims every resource fp declares.
func (a *ActiveFootprints) Mark(fp footprint.Footprint) {
	a.nodeWrite.MarkAll(fp.NWrite)
	a.nodeRead.MarkAll(fp.NRead)
	a.edgeWrite.MarkAll(fp.EWrite)
	a.edgeRead.MarkAll(fp.ERead)
	a.attWrite.MarkAll(fp.AWrite)
	a.attRead.MarkAll(fp.ARead)
	a.portIn.MarkAll(fp.BIn)
	a.portOut.MarkAll(fp.BOut)
	a.factorMask |= fp.FactorMask
}

// Advance clears every mark for the next tick (spec.md §4.9 step 11).
func (a *ActiveFootprints) Advance() {
	a.nodeWrite.Advance()
	a.nodeRead.Advance()
	a.edgeWrite.Advance()
	a.edgeRead.Advance()
	a.attWrite.Advance()
	a.attRead.Advance()
	a.portIn.Advance()
	a.portOut.Advance()
	a.factorMask = 0
}
