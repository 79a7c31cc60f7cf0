package unirender

import "time"

// prepareContext is the traversal state inherited from the ancestors of the
// node being prepared. It is passed by value so each level sees its own copy.
type prepareContext struct {
	display     *RenderNode
	dm          *DirtyRegionManager
	appWindow   *RenderNode
	alpha       float64
	clip        RectI
	parentDirty bool
	screen      RectI
}

// filterEntry is a filter rect registered during the walk.
type filterEntry struct {
	node    NodeID
	surface NodeID
	rect    RectI
	order   int
}

// FilterEntry is a filter node and the area it samples and paints.
type FilterEntry struct {
	Node NodeID
	Rect RectI
}

// Visitor runs the per-frame prepare pass over a display: geometry, dirty
// regions, occlusion and hardware composer eligibility. It is used from a
// single goroutine and must not be re-entered.
type Visitor struct {
	tree         *Tree
	cfg          Config
	prevalidator Prevalidator
	onVisibility VisibilityCallback

	vsync     uint64
	bufferAge int

	order        int
	filters      []filterEntry
	visitedDirty []RectI
	hwcDisabled  []HwcDisabledNode

	transparentCleanFilter map[NodeID][]FilterEntry
	transparentDirtyFilter map[NodeID][]FilterEntry

	// Last emitted visibility map per display.
	lastVisibility map[NodeID]map[NodeID]VisibleLevel
	stats          frameStats
}

// NewVisitor creates a visitor for tree.
func NewVisitor(tree *Tree, cfg Config) *Visitor {
	return &Visitor{
		tree:           tree,
		cfg:            cfg,
		bufferAge:      1,
		lastVisibility: make(map[NodeID]map[NodeID]VisibleLevel),
	}
}

// SetPrevalidator sets the backend consulted for hwc prevalidation. Nil
// skips prevalidation.
func (v *Visitor) SetPrevalidator(p Prevalidator) { v.prevalidator = p }

// SetVisibilityCallback sets the receiver of window visibility changes.
func (v *Visitor) SetVisibilityCallback(cb VisibilityCallback) { v.onVisibility = cb }

// SetFrameInfo sets the vsync id and target buffer age for the next prepare.
func (v *Visitor) SetFrameInfo(vsync uint64, bufferAge int) {
	v.vsync = vsync
	v.bufferAge = bufferAge
}

// TransparentCleanFilter returns, per window, the filters whose cached
// result is still valid this frame.
func (v *Visitor) TransparentCleanFilter() map[NodeID][]FilterEntry { return v.transparentCleanFilter }

// TransparentDirtyFilter returns, per window, the filters that must be
// redrawn this frame.
func (v *Visitor) TransparentDirtyFilter() map[NodeID][]FilterEntry { return v.transparentDirtyFilter }

func (v *Visitor) resetFrame() {
	v.order = 0
	v.filters = v.filters[:0]
	v.visitedDirty = v.visitedDirty[:0]
	v.hwcDisabled = v.hwcDisabled[:0]
	v.stats = frameStats{}
}

// QuickPrepare runs the prepare pass for the display node displayID. Reports
// false when displayID does not name a display.
//
// The walk is depth-first. Transform, alpha and clip flow down before a
// node's dirty rect is computed; dirty and filter flags flow up after its
// children. After the walk the display's surfaces go through occlusion (front
// to back), hwc eligibility, display dirty aggregation and the filter
// fixed point, in that order.
func (v *Visitor) QuickPrepare(displayID NodeID) bool {
	d := v.tree.nodes[displayID]
	if d == nil || d.display == nil {
		Logger().Warn("quick prepare without display node", "node", displayID)
		return false
	}
	dd := d.display
	start := time.Now()
	v.resetFrame()

	ctx, fullDirty := v.prepareDisplay(d)
	v.prepareChildren(d, ctx)
	v.postPrepare(d)
	v.stats.prepareTime = time.Since(start)

	post := time.Now()
	v.collectSurfaces(d)
	v.calcOcclusion(d)
	v.updateHwcNodeEnable(d)
	v.calcDirtyDisplayRegion(d)
	v.addContainerDirtyToGlobalDirty(d)
	if fullDirty || !v.cfg.Dirty.PartialRender {
		dd.dm.ResetDirtyAsSurfaceSize()
	}
	v.calcDirtyFilterRegion(d)
	v.setSurfaceGlobalDirtyRegion(d)
	v.updateUIFirstStates(d)
	dd.dm.SetBufferAge(v.bufferAge)
	dd.dm.UpdateDirty(v.cfg.Dirty.Aligned)
	v.emitVisibility(d)
	dd.finishFrame()
	v.stats.postTime = time.Since(post)
	v.stats.dirtyArea = dd.dm.DirtyRegion().Area()
	v.stats.log(v.vsync)
	return true
}

// prepareDisplay resets the display's dirty state and returns the root
// traversal context. The second result reports whether the whole screen must
// be redrawn.
func (v *Visitor) prepareDisplay(d *RenderNode) (prepareContext, bool) {
	dd := d.display
	if dd.dm == nil {
		dd.dm = NewDirtyRegionManager(v.cfg.Dirty)
	}
	dd.dm.Clear()
	dd.dm.SetSurfaceSize(dd.Width, dd.Height)
	screen := dd.ScreenRect()

	d.geo.UpdateMatrix(&d.props, nil, Vec2{}, nil)
	fullDirty := d.IsDirty() || dd.IsRotationChanged() || !dd.prepared
	d.globalAlpha = d.props.Alpha
	d.prepareOrder = 0
	d.MergeRemovedChildDirtyRegion(dd.dm)
	dd.hwcForcedDisabled = !v.cfg.Hwc.Enabled || d.geo.IsNeedClientCompose()
	d.SetClean()

	return prepareContext{
		display:     d,
		dm:          dd.dm,
		alpha:       d.globalAlpha,
		clip:        screen,
		parentDirty: fullDirty,
		screen:      screen,
	}, fullDirty
}

// quickPrepareNode dispatches on the node kind.
func (v *Visitor) quickPrepareNode(n *RenderNode, ctx prepareContext) {
	v.order++
	n.prepareOrder = v.order
	v.stats.visited++
	switch n.kind {
	case NodeTypeSurface:
		v.quickPrepareSurface(n, ctx)
	case NodeTypeDisplay:
		Logger().Warn("display node inside a display", "node", n.id)
	default:
		v.quickPrepareCanvas(n, ctx)
	}
}

func (v *Visitor) prepareChildren(n *RenderNode, ctx prepareContext) {
	for _, cid := range n.children {
		if c := v.tree.nodes[cid]; c != nil {
			v.quickPrepareNode(c, ctx)
		}
	}
}

// quickPrepareCanvas prepares canvas, root and effect nodes.
func (v *Visitor) quickPrepareCanvas(n *RenderNode, ctx prepareContext) {
	n.globalAlpha = ctx.alpha * n.props.Alpha
	if !n.ShouldPaint() {
		v.prepareInvisible(n, ctx)
		return
	}
	n.MergeRemovedChildDirtyRegion(ctx.dm)
	dirty := n.Update(ctx.dm, n.Parent(), ctx.parentDirty, true, ctx.clip)
	v.registerFilter(n, ctx)

	childCtx := v.childContext(n, ctx, dirty)
	if v.isSubTreeNeedPrepare(n, dirty) {
		v.prepareChildren(n, childCtx)
	} else {
		v.subTreeSkipPrepare(n, childCtx)
	}
	v.postPrepare(n)
}

// quickPrepareSurface prepares a surface node. Leash and main windows switch
// the traversal to their own dirty manager; a static main window skips its
// subtree entirely.
func (v *Visitor) quickPrepareSurface(n *RenderNode, ctx prepareContext) {
	sd := n.surface
	n.globalAlpha = ctx.alpha * n.props.Alpha
	if !n.ShouldPaint() {
		v.prepareInvisible(n, ctx)
		return
	}

	dm := ctx.dm
	childCtx := ctx
	if sd.hasOwnDirtyManager() {
		v.ensureDirtyManager(sd)
		if sd.Type.IsMainWindow() && v.checkIfSurfaceRenderNodeStatic(n, ctx) {
			v.prepareStaticSurface(n, ctx)
			return
		}
		sd.dm.Clear()
		sd.dm.SetSurfaceRect(ctx.screen)
		dm = sd.dm
		childCtx.dm = sd.dm
		if sd.Type.IsMainWindow() {
			childCtx.appWindow = n
			sd.resetChildCollections()
		}
	}

	n.MergeRemovedChildDirtyRegion(dm)
	dirty := n.Update(dm, n.Parent(), ctx.parentDirty, true, ctx.clip)
	v.updateSurfaceRects(n, ctx)
	if sd.hasOwnDirtyManager() {
		ctx.display.display.curFrameSurfacePos[n.id] = sd.dstRect
	}
	if sd.Type.IsMainWindow() {
		n.CheckAndUpdateOpaqueRegion(ctx.screen, ctx.display.display.rotation)
	}
	if sd.Type == SurfaceSelfDrawing {
		v.registerHwcNode(n, ctx)
	}
	v.registerFilter(n, ctx)

	childCtx = v.childContext(n, childCtx, dirty)
	if v.isSubTreeNeedPrepare(n, dirty) {
		v.prepareChildren(n, childCtx)
	} else {
		v.subTreeSkipPrepare(n, childCtx)
	}
	v.postPrepare(n)
	if sd.dm != nil && sd.dm.IsCurrentFrameDirty() {
		v.visitedDirty = append(v.visitedDirty, sd.dm.CurrentFrameDirtyRegion())
	}
}

func (v *Visitor) ensureDirtyManager(sd *SurfaceData) {
	if sd.dm == nil {
		sd.dm = NewDirtyRegionManager(v.cfg.Dirty)
	}
}

func (sd *SurfaceData) resetChildCollections() {
	sd.childHwcNodes = sd.childHwcNodes[:0]
	sd.childrenFilterRects = sd.childrenFilterRects[:0]
	sd.childrenFilterNodes = sd.childrenFilterNodes[:0]
}

// checkIfSurfaceRenderNodeStatic reports whether a main window and its whole
// subtree are unchanged since the last frame, so its prepare can be skipped.
func (v *Visitor) checkIfSurfaceRenderNodeStatic(n *RenderNode, ctx prepareContext) bool {
	if !v.cfg.Dirty.PartialRender || ctx.parentDirty {
		return false
	}
	sd := n.surface
	if n.IsDirty() || n.contentDirty || n.subTreeDirty || n.forcePrepare || sd.animating {
		return false
	}
	if !n.wasPainted || sd.shadowValidLastFrame != n.props.Shadow.IsValid() {
		return false
	}
	_, seen := ctx.display.display.lastFrameSurfacePos[n.id]
	return seen
}

// prepareStaticSurface keeps a static main window's geometry, occlusion
// inputs and position from last frame. A transparent window still picks up
// the dirty of windows below it.
func (v *Visitor) prepareStaticSurface(n *RenderNode, ctx prepareContext) {
	sd := n.surface
	sd.dm.Clear()
	sd.dm.SetSurfaceRect(ctx.screen)
	if sd.IsTransparent(n.globalAlpha) {
		sd.dm.UpdateVisitedDirtyRects(v.visitedDirty)
		sd.dm.MergeDirtyRect(sd.dm.IntersectedVisitedDirtyRect(n.geo.absRect))
	}
	ctx.display.display.curFrameSurfacePos[n.id] = sd.dstRect
	sd.resetChildCollections()

	childCtx := ctx
	childCtx.dm = sd.dm
	childCtx.appWindow = n
	childCtx.alpha = n.globalAlpha
	v.subTreeSkipPrepare(n, childCtx)
	n.subTreeDirty = false
}

// updateSurfaceRects computes the on-screen destination and the matching
// source rect. Self-drawing surfaces are also clipped by their ancestors.
func (v *Visitor) updateSurfaceRects(n *RenderNode, ctx prepareContext) {
	sd := n.surface
	abs := n.geo.absRect
	dst := abs.IntersectRect(ctx.screen)
	if sd.Type == SurfaceSelfDrawing {
		dst = dst.IntersectRect(ctx.clip)
	}
	sd.dstRect = dst
	sd.srcRect = dst.Offset(-abs.Left, -abs.Top)
	if dst.IsEmpty() {
		sd.srcRect = RectI{}
	}
}

// registerHwcNode links a self-drawing surface to the window hosting it.
func (v *Visitor) registerHwcNode(n *RenderNode, ctx prepareContext) {
	sd := n.surface
	sd.globalCornerRadius = n.props.CornerRadius
	sd.ownerApp = InvalidNodeID
	if app := ctx.appWindow; app != nil {
		sd.ownerApp = app.id
		app.surface.childHwcNodes = append(app.surface.childHwcNodes, n.id)
		if sd.globalCornerRadius.IsZero() {
			sd.globalCornerRadius = app.props.CornerRadius
		}
	}
}

// registerFilter records the area of a painted node carrying a filter.
func (v *Visitor) registerFilter(n *RenderNode, ctx prepareContext) {
	if !n.props.HasFilter() || !n.wasPainted {
		return
	}
	e := filterEntry{node: n.id, rect: n.oldDirty, order: n.prepareOrder}
	if app := ctx.appWindow; app != nil {
		e.surface = app.id
		app.surface.childrenFilterRects = append(app.surface.childrenFilterRects, n.oldDirty)
		app.surface.childrenFilterNodes = append(app.surface.childrenFilterNodes, n.id)
	}
	v.filters = append(v.filters, e)
}

// childContext derives the context for n's children.
func (v *Visitor) childContext(n *RenderNode, ctx prepareContext, dirty bool) prepareContext {
	ctx.alpha = n.globalAlpha
	ctx.parentDirty = ctx.parentDirty || dirty
	if n.props.ClipToBounds {
		ctx.clip = ctx.clip.IntersectRect(n.geo.absRect)
	}
	return ctx
}

// isSubTreeNeedPrepare reports whether n's children must be walked.
func (v *Visitor) isSubTreeNeedPrepare(n *RenderNode, dirty bool) bool {
	return dirty || n.subTreeDirty || n.forcePrepare
}

// subTreeSkipPrepare handles a static subtree without updating it. The
// subtree's walk order, filter rects, hwc registrations and window dirty
// managers are refreshed so the passes after the walk see the same state as
// a full prepare.
func (v *Visitor) subTreeSkipPrepare(n *RenderNode, ctx prepareContext) {
	v.stats.skipped++
	n.MergeRemovedChildDirtyRegion(ctx.dm)
	for _, cid := range n.children {
		if c := v.tree.nodes[cid]; c != nil && c.ShouldPaint() {
			v.skipNode(c, ctx)
		}
	}
	n.childrenRect = n.oldChildrenRect
}

func (v *Visitor) skipNode(n *RenderNode, ctx prepareContext) {
	v.order++
	n.prepareOrder = v.order
	n.globalAlpha = ctx.alpha * n.props.Alpha

	childCtx := ctx
	childCtx.alpha = n.globalAlpha
	if sd := n.surface; sd != nil {
		if sd.hasOwnDirtyManager() {
			v.ensureDirtyManager(sd)
			sd.dm.Clear()
			sd.dm.SetSurfaceRect(ctx.screen)
			ctx.display.display.curFrameSurfacePos[n.id] = sd.dstRect
			childCtx.dm = sd.dm
			if sd.Type.IsMainWindow() {
				childCtx.appWindow = n
				sd.resetChildCollections()
			}
		}
		if sd.Type == SurfaceSelfDrawing {
			v.registerHwcNode(n, ctx)
		}
	}
	v.registerFilter(n, ctx)
	for _, cid := range n.children {
		if c := v.tree.nodes[cid]; c != nil && c.ShouldPaint() {
			v.skipNode(c, childCtx)
		}
	}
}

// prepareInvisible handles a node that does not paint this frame: its old
// footprint and its children's are merged once, then forgotten.
func (v *Visitor) prepareInvisible(n *RenderNode, ctx prepareContext) {
	n.MergeRemovedChildDirtyRegion(ctx.dm)
	n.Update(ctx.dm, n.Parent(), ctx.parentDirty, true, ctx.clip)
	if !n.oldChildrenRect.IsEmpty() {
		ctx.dm.MergeDirtyRect(n.oldChildrenRect)
	}
	for _, cid := range n.children {
		if c := v.tree.nodes[cid]; c != nil {
			forgetFootprint(v.tree, c)
		}
	}
	n.childrenRect = RectI{}
	n.oldChildrenRect = RectI{}
	n.subTreeDirty = false
	n.stageRenderParams()
}

// postPrepare aggregates child footprints and filter flags into n and stages
// its render params.
func (v *Visitor) postPrepare(n *RenderNode) {
	var r RectI
	hasFilter := false
	for _, cid := range n.children {
		c := v.tree.nodes[cid]
		if c == nil {
			continue
		}
		if c.wasPainted {
			r = r.JoinRect(c.oldDirty)
		}
		r = r.JoinRect(c.oldChildrenRect)
		hasFilter = hasFilter || c.props.HasFilter() || c.childHasFilter
	}
	n.childrenRect = r
	n.oldChildrenRect = r
	n.childHasFilter = hasFilter
	n.subTreeDirty = false
	if n.surface != nil {
		n.surface.shadowValidLastFrame = n.props.Shadow.IsValid()
	}
	n.stageRenderParams()
}

// collectSurfaces lists the painted surfaces of d in paint order and updates
// their z-order.
func (v *Visitor) collectSurfaces(d *RenderNode) {
	dd := d.display
	dd.curAllSurfaces = dd.curAllSurfaces[:0]
	v.tree.Walk(d.id, func(n *RenderNode) bool {
		if n != d && !n.ShouldPaint() {
			return false
		}
		if n.surface != nil {
			dd.curAllSurfaces = append(dd.curAllSurfaces, n.id)
		}
		return true
	})
	for i, id := range dd.curAllSurfaces {
		sd := v.tree.nodes[id].surface
		sd.lastZOrder = sd.zOrder
		sd.zOrder = i
		sd.zorderChanged = sd.lastZOrder >= 0 && sd.lastZOrder != i
	}
	v.stats.surfaces = len(dd.curAllSurfaces)
}
