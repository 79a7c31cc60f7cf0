package unirender

import "fmt"

// --- Node ---

// RenderNode is one element of the render tree. A single flat struct is used
// for every NodeType; per-kind data lives in the surface and display pointers,
// which are nil for other kinds.
//
// Nodes are owned by a Tree. Parent and child links are NodeIDs resolved
// through the tree, never pointers.
type RenderNode struct {
	id   NodeID
	kind NodeType
	Name string
	tree *Tree

	parent   NodeID
	children []NodeID

	props    Properties
	frameSet bool
	geo      Geometry

	dirty        bool
	geoDirty     bool
	contentDirty bool
	subTreeDirty bool
	forcePrepare bool

	// Footprint bookkeeping for merge-old-then-new.
	wasPainted        bool
	oldDirty          RectI
	oldDirtyInSurface RectI
	removedChildDirty RectI
	childrenRect      RectI
	oldChildrenRect   RectI
	childHasFilter    bool

	// Traversal results of the last prepare.
	globalAlpha  float64
	prepareOrder int

	content      []DrawOp
	cachePolicy  DrawingCacheType
	cacheChanged bool

	surface *SurfaceData
	display *DisplayData

	clearCallbacks []func()
	disposed       bool

	staging  RenderParams
	drawable *RenderNodeDrawable
}

// ID returns the node id.
func (n *RenderNode) ID() NodeID { return n.id }

// Type returns the node kind.
func (n *RenderNode) Type() NodeType { return n.kind }

// Properties returns the node's render properties. The returned value MUST
// NOT be mutated; use the setters.
func (n *RenderNode) Properties() *Properties { return &n.props }

// Geometry returns the node's transform state.
func (n *RenderNode) Geometry() *Geometry { return &n.geo }

// Surface returns the surface data, or nil if n is not a surface.
func (n *RenderNode) Surface() *SurfaceData { return n.surface }

// Display returns the display data, or nil if n is not a display.
func (n *RenderNode) Display() *DisplayData { return n.display }

// Parent returns the parent node, or nil for a detached node or a display.
func (n *RenderNode) Parent() *RenderNode {
	if n.parent == InvalidNodeID || n.tree == nil {
		return nil
	}
	return n.tree.nodes[n.parent]
}

// Children returns the child ids in paint order. The returned slice MUST NOT
// be mutated by the caller.
func (n *RenderNode) Children() []NodeID { return n.children }

// NumChildren returns the number of children.
func (n *RenderNode) NumChildren() int { return len(n.children) }

// IsDisposed reports whether the node was removed from its tree.
func (n *RenderNode) IsDisposed() bool { return n.disposed }

// ShouldPaint reports whether the node draws anything on its own.
func (n *RenderNode) ShouldPaint() bool {
	return n.props.Visible && n.props.Alpha > 0
}

// GlobalAlpha returns the alpha accumulated from the display down to this
// node during the last prepare.
func (n *RenderNode) GlobalAlpha() float64 { return n.globalAlpha }

func (n *RenderNode) String() string {
	return fmt.Sprintf("%s %q (%v)", n.kind, n.Name, n.id)
}

// --- Dirty state ---

// SetDirty marks the node's properties changed and flags every ancestor as
// having a dirty subtree.
func (n *RenderNode) SetDirty() {
	if globalDebug {
		debugCheckDisposed(n, "SetDirty")
	}
	n.dirty = true
	n.markParentSubTreeDirty()
}

// SetContentDirty marks the node's drawing content changed.
func (n *RenderNode) SetContentDirty() {
	n.contentDirty = true
	n.cacheChanged = true
	n.SetDirty()
}

// SetForcePrepare makes the next prepare visit this node's subtree even when
// nothing in it changed.
func (n *RenderNode) SetForcePrepare(on bool) {
	n.forcePrepare = on
	if on {
		n.markParentSubTreeDirty()
	}
}

// IsDirty reports whether the node has unprocessed property changes.
func (n *RenderNode) IsDirty() bool { return n.dirty || n.geoDirty }

// IsContentDirty reports whether the node's content changed.
func (n *RenderNode) IsContentDirty() bool { return n.contentDirty }

// IsSubTreeDirty reports whether any descendant changed.
func (n *RenderNode) IsSubTreeDirty() bool { return n.subTreeDirty }

// SetClean clears the per-frame dirty flags.
func (n *RenderNode) SetClean() {
	n.dirty = false
	n.geoDirty = false
	n.contentDirty = false
}

// OldDirty returns the device-space footprint drawn in the last frame.
func (n *RenderNode) OldDirty() RectI { return n.oldDirty }

// OldDirtyInSurface returns OldDirty clipped to the owning surface.
func (n *RenderNode) OldDirtyInSurface() RectI { return n.oldDirtyInSurface }

func (n *RenderNode) markParentSubTreeDirty() {
	for p := n.Parent(); p != nil; p = p.Parent() {
		p.subTreeDirty = true
	}
}

// markGeoDirty flags a geometry change.
func (n *RenderNode) markGeoDirty() {
	n.geoDirty = true
	n.SetDirty()
}

// RegisterClearCallback registers fn to run when the node is destroyed. Used
// by drawables to tear down their caches.
func (n *RenderNode) RegisterClearCallback(fn func()) {
	if fn != nil {
		n.clearCallbacks = append(n.clearCallbacks, fn)
	}
}

// --- Property setters ---

// SetBounds sets the node rect in parent space. If no frame was set, the
// frame follows the bounds size.
func (n *RenderNode) SetBounds(x, y, w, h float64) {
	n.props.Bounds = RectF{x, y, w, h}
	if !n.frameSet {
		n.props.Frame = RectF{0, 0, w, h}
	}
	n.cacheChanged = true
	n.markGeoDirty()
}

// SetFrame sets the content rect in local space.
func (n *RenderNode) SetFrame(r RectF) {
	n.props.Frame = r
	n.frameSet = true
	n.cacheChanged = true
	n.markGeoDirty()
}

// SetTranslate sets the translation applied after layout.
func (n *RenderNode) SetTranslate(x, y float64) {
	n.props.TranslateX = x
	n.props.TranslateY = y
	n.markGeoDirty()
}

// SetScale sets the scale about the pivot.
func (n *RenderNode) SetScale(sx, sy float64) {
	n.props.ScaleX = sx
	n.props.ScaleY = sy
	n.markGeoDirty()
}

// SetRotation sets the clockwise rotation about the pivot, in degrees.
func (n *RenderNode) SetRotation(deg float64) {
	n.props.Rotation = deg
	n.markGeoDirty()
}

// SetSkew sets the skew angles in degrees.
func (n *RenderNode) SetSkew(sx, sy float64) {
	n.props.SkewX = sx
	n.props.SkewY = sy
	n.markGeoDirty()
}

// SetPivot sets the pivot as a fraction of the bounds.
func (n *RenderNode) SetPivot(px, py float64) {
	n.props.PivotX = px
	n.props.PivotY = py
	n.markGeoDirty()
}

// SetPersp marks the node as carrying a 3D transform.
func (n *RenderNode) SetPersp(on bool) {
	n.props.Persp = on
	n.markGeoDirty()
}

// SetSandbox sets an extra offset for a sandboxed surface. Pass nil to clear.
func (n *RenderNode) SetSandbox(offset *Vec2) {
	if offset == nil {
		n.props.Sandbox = nil
		n.geo.SetContextMatrix(nil)
	} else {
		o := *offset
		n.props.Sandbox = &o
		m := TranslateMatrix(o.X, o.Y)
		n.geo.SetContextMatrix(&m)
	}
	n.markGeoDirty()
}

// SetAlpha sets the node alpha.
func (n *RenderNode) SetAlpha(a float64) {
	n.props.Alpha = a
	n.SetDirty()
}

// SetVisible shows or hides the node.
func (n *RenderNode) SetVisible(v bool) {
	n.props.Visible = v
	n.SetDirty()
}

// SetClipToBounds clips children to the node bounds.
func (n *RenderNode) SetClipToBounds(on bool) {
	n.props.ClipToBounds = on
	n.SetDirty()
}

// SetBackgroundColor sets the background fill.
func (n *RenderNode) SetBackgroundColor(c Color) {
	n.props.BackgroundColor = c
	n.cacheChanged = true
	n.SetDirty()
}

// SetCornerRadius sets the four corner radii.
func (n *RenderNode) SetCornerRadius(r CornerRadius) {
	n.props.CornerRadius = r
	n.SetDirty()
}

// SetShadow sets the drop shadow.
func (n *RenderNode) SetShadow(s Shadow) {
	n.props.Shadow = s
	n.SetDirty()
}

// SetPixelStretch sets the pixel stretch insets.
func (n *RenderNode) SetPixelStretch(in Insets) {
	n.props.PixelStretch = in
	n.SetDirty()
}

// SetBackgroundFilter sets the filter applied to content below the node.
func (n *RenderNode) SetBackgroundFilter(f Filter) {
	n.props.BackgroundFilter = f
	n.SetDirty()
}

// SetForegroundFilter sets the filter applied to the node's own content.
func (n *RenderNode) SetForegroundFilter(f Filter) {
	n.props.ForegroundFilter = f
	n.SetDirty()
}

// SetContent replaces the node's recorded draw ops.
func (n *RenderNode) SetContent(ops ...DrawOp) {
	n.content = append(n.content[:0], ops...)
	n.SetContentDirty()
}

// Content returns the recorded draw ops. The returned slice MUST NOT be
// mutated by the caller.
func (n *RenderNode) Content() []DrawOp { return n.content }

// SetDrawingCacheType sets the content cache policy. Setting any policy
// resets a demotion caused by too many cache updates.
func (n *RenderNode) SetDrawingCacheType(t DrawingCacheType) {
	n.cachePolicy = t
	n.cacheChanged = true
	if n.drawable != nil {
		n.drawable.resetUpdateTimes()
	}
	n.SetDirty()
}

// DrawingCacheType returns the content cache policy.
func (n *RenderNode) DrawingCacheType() DrawingCacheType { return n.cachePolicy }

// opListUnion returns the union of the content op rects, and false when the
// node has no content.
func (n *RenderNode) opListUnion() (RectF, bool) {
	var u RectF
	for _, op := range n.content {
		u = u.JoinRect(op.Rect)
	}
	return u, !u.IsEmpty()
}
