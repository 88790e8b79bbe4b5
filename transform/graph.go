// Package transform maintains the scene transform hierarchy and its
// shader-visible matrix arena.
//
// Local transforms are cheap to edit many times per frame; world matrices
// are re-derived in one top-down pass by UpdateWorld, which also writes
// every changed matrix into a slot arena sized for the sync protocol in
// package gpu. Nodes are addressed by generational keys, so handles to
// removed nodes fail lookups instead of aliasing reused slots.
package transform

import (
	"errors"
	"fmt"

	"github.com/dakom/awsm-renderer-sub001/alloc"
	"github.com/dakom/awsm-renderer-sub001/key"
	"github.com/dakom/awsm-renderer-sub001/math32"
)

// SlotSize is the arena slot size in bytes: one 4x4 float matrix.
const SlotSize = math32.Mat4SizeBytes

// Structural errors.
var (
	// ErrRootImmutable is returned when mutating or moving the root.
	// The root stays an identity anchor for the graph's lifetime.
	ErrRootImmutable = errors.New("transform: root is immutable")

	// ErrRootRemoval is returned when removing the root.
	ErrRootRemoval = errors.New("transform: root cannot be removed")

	// ErrWouldCycle is returned when a reparent would make a node its
	// own ancestor.
	ErrWouldCycle = errors.New("transform: reparent would create a cycle")
)

// node is arena state addressed by key index. Parent and children edges
// are keys, never pointers, so reparenting and removal stay O(children).
type node struct {
	local    math32.TRS
	world    math32.Mat4
	parent   key.Key
	children []key.Key
	dirty    bool
}

// Graph is the transform hierarchy. The zero value is not usable; call
// New. Not safe for concurrent mutation.
type Graph struct {
	mint  *key.Mint
	slots *alloc.Slots[key.Key]

	root  key.Key
	nodes []node

	dirtyMeshes []key.Key
}

// New creates a graph with capacity for capacityHint nodes before the
// arena's first growth. The root occupies the first slot with an
// identity matrix.
func New(capacityHint int) *Graph {
	g := &Graph{
		mint:  key.NewMint(),
		slots: alloc.NewSlots[key.Key](SlotSize, capacityHint),
	}
	g.root = g.mint.Next()
	g.ensure(g.root.Index())
	g.nodes[g.root.Index()] = node{
		local:  math32.IdentityTRS(),
		world:  math32.Identity(),
		parent: key.NoKey,
	}
	g.slots.UpdateWith(g.root, func(slot []byte) {
		math32.Identity().PutBytes(slot)
	})
	return g
}

// Root returns the root key. The root is always alive, holds the
// identity transform and cannot be mutated, moved or removed.
func (g *Graph) Root() key.Key { return g.root }

// Len returns the number of live nodes, including the root.
func (g *Graph) Len() int { return g.mint.Len() }

// Alive reports whether k refers to a live node.
func (g *Graph) Alive(k key.Key) bool { return g.mint.Alive(k) }

func (g *Graph) ensure(idx int) {
	for len(g.nodes) <= idx {
		g.nodes = append(g.nodes, node{})
	}
}

func (g *Graph) node(k key.Key) *node { return &g.nodes[k.Index()] }

// Insert adds a node under parent with the given local transform. A zero
// parent key attaches to the root. The initial world matrix treats the
// parent as identity; the next UpdateWorld corrects it. The node starts
// dirty.
func (g *Graph) Insert(local math32.TRS, parent key.Key) (key.Key, error) {
	p := parent
	if !p.Valid() {
		p = g.root
	}
	if !g.mint.Alive(p) {
		return key.NoKey, fmt.Errorf("transform: parent %v: %w", p, key.ErrNotFound)
	}
	k := g.mint.Next()
	g.ensure(k.Index())
	world := local.Mat4()
	g.nodes[k.Index()] = node{local: local, world: world, parent: p, dirty: true}
	pn := g.node(p)
	pn.children = append(pn.children, k)
	g.slots.UpdateWith(k, func(slot []byte) {
		world.PutBytes(slot)
	})
	return k, nil
}

// SetLocal replaces a node's local transform and marks it dirty. World
// matrices are not recomputed until UpdateWorld, so repeated edits per
// frame stay O(1) each.
func (g *Graph) SetLocal(k key.Key, local math32.TRS) error {
	if k == g.root {
		return ErrRootImmutable
	}
	if !g.mint.Alive(k) {
		return fmt.Errorf("transform: node %v: %w", k, key.ErrNotFound)
	}
	n := g.node(k)
	n.local = local
	n.dirty = true
	return nil
}

// Local returns a node's local transform.
func (g *Graph) Local(k key.Key) (math32.TRS, error) {
	if !g.mint.Alive(k) {
		return math32.TRS{}, fmt.Errorf("transform: node %v: %w", k, key.ErrNotFound)
	}
	return g.node(k).local, nil
}

// World returns a node's world matrix as of the last UpdateWorld, or its
// insertion-time matrix if no pass ran since.
func (g *Graph) World(k key.Key) (math32.Mat4, error) {
	if !g.mint.Alive(k) {
		return math32.Mat4{}, fmt.Errorf("transform: node %v: %w", k, key.ErrNotFound)
	}
	return g.node(k).world, nil
}

// Parent returns a node's parent key. The root has no parent and returns
// the zero key.
func (g *Graph) Parent(k key.Key) (key.Key, error) {
	if !g.mint.Alive(k) {
		return key.NoKey, fmt.Errorf("transform: node %v: %w", k, key.ErrNotFound)
	}
	return g.node(k).parent, nil
}

// Children returns a copy of a node's child keys in attachment order.
func (g *Graph) Children(k key.Key) ([]key.Key, error) {
	if !g.mint.Alive(k) {
		return nil, fmt.Errorf("transform: node %v: %w", k, key.ErrNotFound)
	}
	n := g.node(k)
	if len(n.children) == 0 {
		return nil, nil
	}
	out := make([]key.Key, len(n.children))
	copy(out, n.children)
	return out, nil
}

// SetParent moves child under newParent, where the zero key means the
// root. No-op when the parent is unchanged. The child keeps its local
// transform and is marked dirty; its world matrix re-derives from the
// new parent on the next UpdateWorld, not immediately.
func (g *Graph) SetParent(child, newParent key.Key) error {
	if child == g.root {
		return ErrRootImmutable
	}
	if !g.mint.Alive(child) {
		return fmt.Errorf("transform: node %v: %w", child, key.ErrNotFound)
	}
	p := newParent
	if !p.Valid() {
		p = g.root
	}
	if !g.mint.Alive(p) {
		return fmt.Errorf("transform: parent %v: %w", p, key.ErrNotFound)
	}
	n := g.node(child)
	if n.parent == p {
		return nil
	}
	// Walking ancestor edges from p catches child == p and deeper
	// cycles alike.
	for a := p; a.Valid(); a = g.node(a).parent {
		if a == child {
			return ErrWouldCycle
		}
	}
	g.detach(child)
	n.parent = p
	g.node(p).children = append(g.node(p).children, child)
	n.dirty = true
	return nil
}

// detach removes k from its parent's child list. The node's own parent
// edge is left for the caller to rewrite.
func (g *Graph) detach(k key.Key) {
	p := g.node(k).parent
	if !p.Valid() {
		return
	}
	pn := g.node(p)
	for i, c := range pn.children {
		if c == k {
			pn.children = append(pn.children[:i], pn.children[i+1:]...)
			break
		}
	}
}

// Remove deletes a node, releasing its key and slot. Children are
// reparented to the removed node's parent with their local transforms
// intact, and marked dirty so their worlds re-derive from the new parent
// on the next UpdateWorld.
func (g *Graph) Remove(k key.Key) error {
	if k == g.root {
		return ErrRootRemoval
	}
	if !g.mint.Alive(k) {
		return fmt.Errorf("transform: node %v: %w", k, key.ErrNotFound)
	}
	n := g.node(k)
	parent := n.parent
	g.detach(k)
	pn := g.node(parent)
	for _, c := range n.children {
		cn := g.node(c)
		cn.parent = parent
		cn.dirty = true
		pn.children = append(pn.children, c)
	}
	g.slots.Remove(k)
	g.mint.Release(k)
	g.nodes[k.Index()] = node{}
	return nil
}

// UpdateWorld re-derives world matrices in one top-down pass. A node
// recomputes iff it or an ancestor was marked dirty since the last pass,
// and every recompute reads the parent world computed in this same pass.
// Each recomputed matrix is written to the node's slot and the key is
// recorded for TakeDirtyMeshes. A pass with nothing dirty writes nothing,
// leaving the arena clean.
func (g *Graph) UpdateWorld() {
	for _, c := range g.node(g.root).children {
		g.updateSubtree(c, false)
	}
}

func (g *Graph) updateSubtree(k key.Key, inherited bool) {
	n := g.node(k)
	effective := n.dirty || inherited
	if effective {
		world := g.node(n.parent).world.Mul(n.local.Mat4())
		n.world = world
		g.slots.UpdateWith(k, func(slot []byte) {
			world.PutBytes(slot)
		})
		g.dirtyMeshes = append(g.dirtyMeshes, k)
		n.dirty = false
	}
	for _, c := range n.children {
		g.updateSubtree(c, effective)
	}
}

// TakeDirtyMeshes drains the keys whose world matrices changed in prior
// UpdateWorld passes. Keys removed since a pass may be stale; check
// Alive before use.
func (g *Graph) TakeDirtyMeshes() []key.Key {
	out := g.dirtyMeshes
	g.dirtyMeshes = nil
	return out
}

// Offset returns the byte offset of a node's matrix in the staging
// arena, for dynamic-binding computation.
func (g *Graph) Offset(k key.Key) (int, error) {
	if !g.mint.Alive(k) {
		return 0, fmt.Errorf("transform: node %v: %w", k, key.ErrNotFound)
	}
	off, ok := g.slots.Offset(k)
	if !ok {
		panic("transform: live node has no slot")
	}
	return off, nil
}

// Stats returns the underlying arena counters.
func (g *Graph) Stats() alloc.SlotsStats { return g.slots.Stats() }

// Bytes exposes the staging arena. Together with TakeResize and
// TakeDirty the graph is a staging source for gpu.SyncedBuffer.
func (g *Graph) Bytes() []byte { return g.slots.Bytes() }

// TakeResize reports an arena capacity change exactly once.
func (g *Graph) TakeResize() (int, bool) { return g.slots.TakeResize() }

// TakeDirty reports pending arena writes exactly once.
func (g *Graph) TakeDirty() bool { return g.slots.TakeDirty() }
