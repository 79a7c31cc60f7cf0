package unirender

// Update recomputes the node's absolute geometry from parent and merges its
// dirty footprint into dm.
//
// When the node or anything it inherits changed, the footprint drawn last
// frame is merged first and the new footprint second, so both the vacated and
// the newly covered pixels are redrawn. A node that stops painting merges
// only its old footprint; a node that never painted merges nothing.
//
// The new footprint is the content rect joined with the shadow and the
// pixel-stretch extents, grown by the filter padding, and clipped to clipRect
// when needClip is set. Reports whether the node was dirty.
func (n *RenderNode) Update(dm *DirtyRegionManager, parent *RenderNode, parentDirty, needClip bool, clipRect RectI) bool {
	if dm == nil {
		Logger().Warn("update without dirty manager", "node", n.id)
		return false
	}
	if !n.ShouldPaint() {
		if n.wasPainted {
			dm.MergeDirtyRect(n.oldDirty)
			dm.UpdateDirtyRegionInfoForDfx(n.id, DirtyTypeUpdate, n.oldDirty)
		}
		n.wasPainted = false
		n.oldDirty = RectI{}
		n.oldDirtyInSurface = RectI{}
		n.SetClean()
		return false
	}

	var parentAbs *Matrix
	var offset Vec2
	if parent != nil {
		m := parent.geo.absMatrix
		parentAbs = &m
		offset = parent.props.frameOffset()
	}
	moved := n.geo.UpdateMatrix(&n.props, parentAbs, offset, nil)

	dirty := n.dirty || n.geoDirty || n.contentDirty || parentDirty || moved
	if dirty {
		if n.wasPainted {
			dm.MergeDirtyRect(n.oldDirty)
		}
		r := n.drawRect()
		if needClip {
			r = r.IntersectRect(clipRect)
		}
		dm.MergeDirtyRect(r)
		dm.UpdateDirtyRegionInfoForDfx(n.id, DirtyTypeUpdate, r)
		n.oldDirty = r
		n.oldDirtyInSurface = r.IntersectRect(dm.SurfaceRect())
		if dm.SurfaceRect().IsEmpty() {
			n.oldDirtyInSurface = r
		}
		n.wasPainted = !r.IsEmpty()
	}
	n.SetClean()
	return dirty
}

// drawRect returns the device-space extent the node paints: its bounds and
// content ops, plus shadow, pixel stretch and filter padding.
func (n *RenderNode) drawRect() RectI {
	local := n.props.localBounds()
	if u, ok := n.opListUnion(); ok {
		local = local.JoinRect(u)
	}
	if n.props.Shadow.IsValid() {
		local = local.JoinRect(n.props.shadowRect())
	}
	if !n.props.PixelStretch.IsZero() {
		local = local.JoinRect(n.props.pixelStretchRect())
	}
	r := n.geo.MapAbsRect(local)
	if pad := n.props.filterPadding(); pad > 0 {
		r = r.Outset(pad)
	}
	return r
}

// MergeRemovedChildDirtyRegion merges the footprints of children removed
// since the last prepare into dm and forgets them.
func (n *RenderNode) MergeRemovedChildDirtyRegion(dm *DirtyRegionManager) {
	if n.removedChildDirty.IsEmpty() {
		return
	}
	if dm == nil {
		Logger().Warn("removed child dirty without dirty manager", "node", n.id)
		return
	}
	dm.MergeDirtyRect(n.removedChildDirty)
	dm.UpdateDirtyRegionInfoForDfx(n.id, DirtyTypeRemoveChild, n.removedChildDirty)
	n.removedChildDirty = RectI{}
}
