package unirender

import "fmt"

// Tree is the arena that owns every RenderNode. Links between nodes are ids
// resolved through the tree's map.
type Tree struct {
	nodes    map[NodeID]*RenderNode
	displays []NodeID

	// Drawables of destroyed nodes, released at the next sync.
	retired []*RenderNodeDrawable
}

// NewTree creates an empty tree.
func NewTree() *Tree {
	return &Tree{nodes: make(map[NodeID]*RenderNode)}
}

// Len returns the number of live nodes.
func (t *Tree) Len() int { return len(t.nodes) }

// Get returns the node with the given id.
func (t *Tree) Get(id NodeID) (*RenderNode, bool) {
	n, ok := t.nodes[id]
	return n, ok
}

// Node returns the node with the given id, or nil.
func (t *Tree) Node(id NodeID) *RenderNode {
	return t.nodes[id]
}

// Lookup returns the node with the given id, or an error wrapping
// ErrNodeNotFound.
func (t *Tree) Lookup(id NodeID) (*RenderNode, error) {
	n, ok := t.nodes[id]
	if !ok {
		return nil, fmt.Errorf("lookup %v: %w", id, ErrNodeNotFound)
	}
	return n, nil
}

// Displays returns the ids of all display nodes in creation order.
func (t *Tree) Displays() []NodeID { return t.displays }

// Create adds a detached node of the given kind. Panics if id is zero or
// already in use. Use CreateSurface and CreateDisplay for those kinds.
func (t *Tree) Create(kind NodeType, id NodeID) *RenderNode {
	if id == InvalidNodeID {
		panic("unirender: node id must be non-zero")
	}
	if _, dup := t.nodes[id]; dup {
		panic(fmt.Sprintf("unirender: duplicate node id %v", id))
	}
	n := &RenderNode{
		id:           id,
		kind:         kind,
		tree:         t,
		props:        defaultProperties(),
		dirty:        true,
		geoDirty:     true,
		cacheChanged: true,
		globalAlpha:  1,
	}
	switch kind {
	case NodeTypeSurface:
		n.surface = newSurfaceData(SurfaceAppWindow)
	case NodeTypeDisplay:
		n.display = newDisplayData()
		t.displays = append(t.displays, id)
	}
	t.nodes[id] = n
	return n
}

// CreateSurface adds a detached surface node.
func (t *Tree) CreateSurface(id NodeID, name string, st SurfaceType) *RenderNode {
	n := t.Create(NodeTypeSurface, id)
	n.Name = name
	n.surface.Type = st
	return n
}

// CreateDisplay adds a display node for a w×h screen.
func (t *Tree) CreateDisplay(id NodeID, screenID uint64, w, h int) *RenderNode {
	n := t.Create(NodeTypeDisplay, id)
	n.Name = fmt.Sprintf("display-%d", screenID)
	n.display.ScreenID = screenID
	n.display.Width = w
	n.display.Height = h
	n.SetBounds(0, 0, float64(w), float64(h))
	return n
}

// AddChild inserts child under parent at index. A negative index appends.
// If child already has a parent it is removed from that parent first.
// Panics on unknown ids, on cycles, and when child is a display.
func (t *Tree) AddChild(parentID, childID NodeID, index int) {
	parent := t.mustGet(parentID, "AddChild (parent)")
	child := t.mustGet(childID, "AddChild (child)")
	if parent == child {
		panic("unirender: cannot add a node to itself")
	}
	if child.kind == NodeTypeDisplay {
		panic("unirender: a display cannot be a child")
	}
	if isAncestor(child, parent) {
		panic("unirender: adding child would create a cycle")
	}
	if index > len(parent.children) {
		panic("unirender: child index out of range")
	}
	if old := child.Parent(); old != nil {
		t.RemoveChild(old.id, child.id)
	}
	child.parent = parent.id
	if index < 0 || index == len(parent.children) {
		parent.children = append(parent.children, child.id)
	} else {
		parent.children = append(parent.children, InvalidNodeID)
		copy(parent.children[index+1:], parent.children[index:])
		parent.children[index] = child.id
	}
	markSubtreeGeoDirty(child)
	child.SetDirty()
	if globalDebug {
		debugCheckTreeDepth(child)
		debugCheckChildCount(parent)
	}
}

// RemoveChild detaches child from parent. The child's last drawn footprint is
// recorded on the parent and merged into the dirty region by the next
// prepare. The child stays in the tree and can be re-added.
// Panics if child is not a child of parent.
func (t *Tree) RemoveChild(parentID, childID NodeID) {
	parent := t.mustGet(parentID, "RemoveChild (parent)")
	child := t.mustGet(childID, "RemoveChild (child)")
	if child.parent != parent.id {
		panic("unirender: child's parent is not this node")
	}
	parent.removeChildByID(child.id)
	parent.removedChildDirty = parent.removedChildDirty.JoinRect(subtreeOldDirty(t, child))
	forgetFootprint(t, child)
	child.parent = InvalidNodeID
	parent.subTreeDirty = true
	parent.markParentSubTreeDirty()
}

// Remove detaches the node and destroys it with its whole subtree. Clear
// callbacks run for every destroyed node. Unknown ids are ignored.
func (t *Tree) Remove(id NodeID) {
	n, ok := t.nodes[id]
	if !ok {
		return
	}
	if p := n.Parent(); p != nil {
		t.RemoveChild(p.id, n.id)
	}
	t.destroy(n)
}

func (t *Tree) destroy(n *RenderNode) {
	for _, cid := range n.children {
		if c, ok := t.nodes[cid]; ok {
			c.parent = InvalidNodeID
			t.destroy(c)
		}
	}
	for _, fn := range n.clearCallbacks {
		fn()
	}
	if n.kind == NodeTypeDisplay {
		for i, d := range t.displays {
			if d == n.id {
				t.displays = append(t.displays[:i], t.displays[i+1:]...)
				break
			}
		}
	}
	delete(t.nodes, n.id)
	n.children = nil
	n.clearCallbacks = nil
	n.drawable = nil
	n.tree = nil
	n.disposed = true
}

// Walk calls fn for id and every descendant in paint order (pre-order).
// Returning false from fn skips that node's children.
func (t *Tree) Walk(id NodeID, fn func(n *RenderNode) bool) {
	n, ok := t.nodes[id]
	if !ok {
		return
	}
	if !fn(n) {
		return
	}
	for _, cid := range n.children {
		t.Walk(cid, fn)
	}
}

func (t *Tree) mustGet(id NodeID, op string) *RenderNode {
	n, ok := t.nodes[id]
	if !ok {
		panic(fmt.Sprintf("unirender: %s: node %v not found", op, id))
	}
	return n
}

func (n *RenderNode) removeChildByID(id NodeID) {
	for i, c := range n.children {
		if c == id {
			copy(n.children[i:], n.children[i+1:])
			n.children[len(n.children)-1] = InvalidNodeID
			n.children = n.children[:len(n.children)-1]
			return
		}
	}
}

// isAncestor reports whether candidate is an ancestor of node (or node itself).
func isAncestor(candidate, node *RenderNode) bool {
	for p := node; p != nil; p = p.Parent() {
		if p == candidate {
			return true
		}
	}
	return false
}

// markSubtreeGeoDirty flags geometry dirty on n and every descendant.
func markSubtreeGeoDirty(n *RenderNode) {
	n.geoDirty = true
	for _, cid := range n.children {
		if c := n.tree.nodes[cid]; c != nil {
			markSubtreeGeoDirty(c)
		}
	}
}

// subtreeOldDirty returns the union of the last drawn footprints in n's subtree.
func subtreeOldDirty(t *Tree, n *RenderNode) RectI {
	r := RectI{}
	if n.wasPainted {
		r = n.oldDirty
	}
	r = r.JoinRect(n.oldChildrenRect)
	for _, cid := range n.children {
		if c := t.nodes[cid]; c != nil {
			r = r.JoinRect(subtreeOldDirty(t, c))
		}
	}
	return r
}

// forgetFootprint clears painted state in a detached subtree so a later
// re-attach does not merge stale rects twice.
func forgetFootprint(t *Tree, n *RenderNode) {
	n.wasPainted = false
	n.oldDirty = RectI{}
	n.oldDirtyInSurface = RectI{}
	n.oldChildrenRect = RectI{}
	for _, cid := range n.children {
		if c := t.nodes[cid]; c != nil {
			forgetFootprint(t, c)
		}
	}
}

func (t *Tree) retire(d *RenderNodeDrawable) {
	t.retired = append(t.retired, d)
}

// ReleaseRetired frees the caches of drawables whose nodes were destroyed.
// It must not run while the render goroutine is drawing.
func (t *Tree) ReleaseRetired() {
	for i, d := range t.retired {
		d.releaseCaches()
		t.retired[i] = nil
	}
	t.retired = t.retired[:0]
}
