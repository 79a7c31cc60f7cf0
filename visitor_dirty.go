package unirender

import "slices"

// calcDirtyDisplayRegion merges the dirty of every window into the display
// dirty manager. Main windows only contribute their visible part. Windows
// that moved, changed z-order or started animating contribute both their old
// and new positions, and windows that left the display their old one.
func (v *Visitor) calcDirtyDisplayRegion(d *RenderNode) {
	dd := d.display
	ddm := dd.dm
	dd.surfaceChangedRects = dd.surfaceChangedRects[:0]

	for _, id := range dd.curAllSurfaces {
		n := v.tree.nodes[id]
		sd := n.surface
		if sd.dm == nil || !sd.hasOwnDirtyManager() {
			continue
		}
		if sd.Type.IsMainWindow() {
			for _, r := range sd.dm.CurrentFrameDirtyRects() {
				for _, vis := range sd.visibleRegion.AndRect(r).Rects() {
					ddm.MergeDirtyRect(vis)
				}
			}
		} else {
			for _, r := range sd.dm.CurrentFrameDirtyRects() {
				ddm.MergeDirtyRect(r)
			}
		}

		last, seen := dd.lastFrameSurfacePos[id]
		cur := dd.curFrameSurfacePos[id]
		if seen && (last != cur || sd.zorderChanged || sd.animating) {
			ddm.MergeDirtyRect(last)
			ddm.MergeDirtyRect(cur)
			ddm.UpdateDirtyRegionInfoForDfx(id, DirtyTypePreparation, last.JoinRect(cur))
			dd.surfaceChangedRects = append(dd.surfaceChangedRects, last)
		}
	}

	// Surfaces gone from the display since last frame.
	var gone []NodeID
	for id := range dd.lastFrameSurfacePos {
		if _, ok := dd.curFrameSurfacePos[id]; !ok {
			gone = append(gone, id)
		}
	}
	slices.Sort(gone)
	for _, id := range gone {
		r := dd.lastFrameSurfacePos[id]
		ddm.MergeDirtyRect(r)
		ddm.UpdateDirtyRegionInfoForDfx(id, DirtyTypeRemoveChild, r)
		dd.surfaceChangedRects = append(dd.surfaceChangedRects, r)
	}
}

// addContainerDirtyToGlobalDirty redraws the container frame of a window
// whose own dirty touches it.
func (v *Visitor) addContainerDirtyToGlobalDirty(d *RenderNode) {
	ddm := d.display.dm
	for _, id := range d.display.curAllSurfaces {
		sd := v.tree.nodes[id].surface
		if !sd.hasContainerWindow || sd.dm == nil || sd.containerRegion.IsEmpty() {
			continue
		}
		var hit Region
		for _, r := range sd.dm.CurrentFrameDirtyRects() {
			hit = hit.Or(sd.containerRegion.AndRect(r))
		}
		if !hit.IsEmpty() {
			ddm.MergeDirtyRect(hit.Bound())
		}
	}
}

// calcDirtyFilterRegion splits the registered filters into clean and dirty
// sets. A filter whose rect intersects the display dirty must be redrawn in
// full, so its rect is merged into the display and its window. Merging can
// make further filters dirty; the scan restarts until a pass merges nothing.
func (v *Visitor) calcDirtyFilterRegion(d *RenderNode) {
	ddm := d.display.dm
	v.transparentCleanFilter = make(map[NodeID][]FilterEntry)
	v.transparentDirtyFilter = make(map[NodeID][]FilterEntry)

	pending := slices.Clone(v.filters)
	for merged := true; merged && len(pending) > 0; {
		v.stats.filterPasses++
		merged = false
		keep := pending[:0]
		for _, f := range pending {
			if !intersectsAny(f.rect, ddm.CurrentFrameDirtyRects()) {
				keep = append(keep, f)
				continue
			}
			merged = true
			v.transparentDirtyFilter[f.surface] = append(v.transparentDirtyFilter[f.surface],
				FilterEntry{Node: f.node, Rect: f.rect})
			ddm.MergeDirtyRect(f.rect)
			ddm.UpdateDirtyRegionInfoForDfx(f.node, DirtyTypeFilter, f.rect)
			if app := v.tree.nodes[f.surface]; app != nil && app.surface != nil && app.surface.dm != nil {
				app.surface.dm.MergeDirtyRect(f.rect)
			}
		}
		pending = keep
	}
	for _, f := range pending {
		v.transparentCleanFilter[f.surface] = append(v.transparentCleanFilter[f.surface],
			FilterEntry{Node: f.node, Rect: f.rect})
	}
}

func intersectsAny(r RectI, rects []RectI) bool {
	for _, o := range rects {
		if r.Intersect(o) {
			return true
		}
	}
	return false
}

// setSurfaceGlobalDirtyRegion gives every main window the part of the display
// dirty it must redraw. Transparent windows also redraw what changed beneath
// them.
func (v *Visitor) setSurfaceGlobalDirtyRegion(d *RenderNode) {
	dd := d.display
	var displayDirty Region
	for _, r := range dd.dm.CurrentFrameDirtyRects() {
		displayDirty = displayDirty.OrRect(r)
	}
	var below Region
	for _, id := range dd.curAllSurfaces {
		n := v.tree.nodes[id]
		sd := n.surface
		if !sd.Type.IsMainWindow() {
			continue
		}
		sd.globalDirty = displayDirty.And(sd.visibleRegion)
		sd.dirtyBelowCurrentLayer = Region{}
		if sd.IsTransparent(n.globalAlpha) {
			sd.dirtyBelowCurrentLayer = below.And(sd.transparentRegion)
			if sd.dm != nil {
				for _, r := range sd.dirtyBelowCurrentLayer.Rects() {
					sd.dm.MergeDirtyRect(r)
				}
			}
		}
		below = below.Or(sd.globalDirty)
	}
}

// Stats returns traversal counters of the last prepare: visited nodes,
// skipped subtrees and filter scan passes.
func (v *Visitor) Stats() (visited, skipped, filterPasses int) {
	return v.stats.visited, v.stats.skipped, v.stats.filterPasses
}
