package unirender

import "maps"

// VisibleLevel is the visibility of a window reported to the window manager.
type VisibleLevel uint8

const (
	// VisibleInvisible means no pixel of the window is on screen.
	VisibleInvisible VisibleLevel = iota
	// VisibleAll means the whole window is visible.
	VisibleAll
	// VisibleSemiDefault means only a small part of the window is visible.
	VisibleSemiDefault
	// VisibleSemiNonDefault means the window is partly covered but a large
	// part is visible.
	VisibleSemiNonDefault
)

func (l VisibleLevel) String() string {
	switch l {
	case VisibleInvisible:
		return "invisible"
	case VisibleAll:
		return "all-visible"
	case VisibleSemiDefault:
		return "semi-visible-default"
	case VisibleSemiNonDefault:
		return "semi-visible-nondefault"
	default:
		return "unknown"
	}
}

// VisibilityCallback receives the window visibility map of one display. It
// is called at most once per display and frame, and only when the map
// differs from the one last sent for that display. The map is owned by the
// callee.
type VisibilityCallback func(levels map[NodeID]VisibleLevel)

// visibleLevelOf classifies visible against self area. A window is
// semi-visible-default when less than 1/2^shift of it shows.
func visibleLevelOf(visibleArea, selfArea, shift int) VisibleLevel {
	switch {
	case visibleArea <= 0:
		return VisibleInvisible
	case visibleArea >= selfArea:
		return VisibleAll
	case visibleArea < selfArea>>shift:
		return VisibleSemiDefault
	default:
		return VisibleSemiNonDefault
	}
}

// calcOcclusion walks the display's surfaces front to back. Each main window
// gets visibleRegion = self rect minus the opaque area of everything already
// visited, then adds its own opaque area to the occluder set.
func (v *Visitor) calcOcclusion(d *RenderNode) {
	dd := d.display
	screen := dd.ScreenRect()
	var occluded Region
	for i := len(dd.curAllSurfaces) - 1; i >= 0; i-- {
		n := v.tree.nodes[dd.curAllSurfaces[i]]
		if n == nil {
			continue
		}
		sd := n.surface
		self := NewRegion(n.geo.absRect.IntersectRect(screen))
		switch {
		case sd.Type.IsMainWindow():
			if v.cfg.Occlusion.Enabled {
				sd.visibleRegion = self.Sub(occluded)
				occluded = occluded.Or(sd.opaqueRegion)
			} else {
				sd.visibleRegion = self
			}
			sd.visibleLevel = visibleLevelOf(sd.visibleRegion.Area(), self.Area(), v.cfg.Occlusion.SemiVisibleShift)
		case sd.Type == SurfaceSelfDrawing:
			dst := NewRegion(sd.dstRect)
			if v.cfg.Occlusion.Enabled {
				sd.visibleRegion = dst.Sub(occluded)
			} else {
				sd.visibleRegion = dst
			}
		default:
			sd.visibleRegion = self
		}
	}
}

// collectVisibility builds the window visibility map: every main window
// attached under d, with windows outside the painted chain reported as
// invisible.
func (v *Visitor) collectVisibility(d *RenderNode) map[NodeID]VisibleLevel {
	levels := make(map[NodeID]VisibleLevel)
	painted := make(map[NodeID]bool, len(d.display.curAllSurfaces))
	for _, id := range d.display.curAllSurfaces {
		painted[id] = true
	}
	v.tree.Walk(d.id, func(n *RenderNode) bool {
		if n.surface == nil || !n.surface.Type.IsMainWindow() {
			return true
		}
		if painted[n.id] {
			levels[n.id] = n.surface.visibleLevel
		} else {
			n.surface.visibleLevel = VisibleInvisible
			levels[n.id] = VisibleInvisible
		}
		return true
	})
	return levels
}

// emitVisibility calls the visibility callback when the display's map changed
// since its last emission. Each display is tracked on its own.
func (v *Visitor) emitVisibility(d *RenderNode) {
	levels := v.collectVisibility(d)
	if last, ok := v.lastVisibility[d.id]; ok && maps.Equal(levels, last) {
		return
	}
	maps.DeleteFunc(v.lastVisibility, func(id NodeID, _ map[NodeID]VisibleLevel) bool {
		return v.tree.nodes[id] == nil
	})
	v.lastVisibility[d.id] = levels
	if v.onVisibility != nil {
		v.onVisibility(maps.Clone(levels))
	}
}
