package unirender

import "math"

// opaqueBaseInfo is the input of the last opaque-region computation. The
// regions are recomputed only when it changes.
type opaqueBaseInfo struct {
	valid        bool
	screen       RectI
	absRect      RectI
	rotation     ScreenRotation
	focused      bool
	transparent  bool
	radius       CornerRadius
	hasContainer bool
	inset        int
}

// CheckAndUpdateOpaqueRegion recomputes the opaque, transparent and container
// regions of a surface node when any of their inputs changed. Reports whether
// a recomputation happened.
//
// A transparent surface claims no opaque area. Otherwise the opaque area is
// the on-screen rect minus its rounded corners. For a focused window with a
// container frame, only the inner content rect is opaque.
func (n *RenderNode) CheckAndUpdateOpaqueRegion(screen RectI, rotation ScreenRotation) bool {
	sd := n.surface
	if sd == nil {
		return false
	}
	base := opaqueBaseInfo{
		valid:        true,
		screen:       screen,
		absRect:      n.geo.absRect,
		rotation:     rotation,
		focused:      sd.focused,
		transparent:  sd.IsTransparent(n.globalAlpha),
		radius:       n.props.CornerRadius,
		hasContainer: sd.hasContainerWindow,
		inset:        sd.containerInset,
	}
	if sd.opaqueBase == base {
		return false
	}
	sd.opaqueBase = base

	abs := base.absRect.IntersectRect(screen)
	sd.containerRegion = Region{}
	inner := abs
	if base.hasContainer && base.inset > 0 {
		inner = base.absRect.Outset(-base.inset).IntersectRect(screen)
		sd.containerRegion = NewRegion(abs).SubRect(inner)
	}

	if base.transparent {
		sd.opaqueRegion = Region{}
		sd.transparentRegion = NewRegion(abs)
		return true
	}

	opaqueRect := abs
	if base.hasContainer && base.focused {
		opaqueRect = inner
	}
	radius := rotateCorners(base.radius, rotation)
	sd.opaqueRegion = NewRegion(opaqueRect)
	for _, c := range cornerSquares(opaqueRect, radius) {
		sd.opaqueRegion = sd.opaqueRegion.SubRect(c)
	}
	sd.transparentRegion = NewRegion(abs).Sub(sd.opaqueRegion)
	return true
}

// rotateCorners maps logical corner radii (clockwise from top-left) to the
// physical corners of a screen rotated by rot.
func rotateCorners(r CornerRadius, rot ScreenRotation) CornerRadius {
	k := rot.Degrees() / 90
	var out CornerRadius
	for i := range out {
		out[(i+k)%4] = r[i]
	}
	return out
}

// cornerSquares returns the square covering each rounded corner of r.
func cornerSquares(r RectI, radius CornerRadius) []RectI {
	var out []RectI
	for i, rad := range radius {
		s := int(math.Ceil(rad))
		if s <= 0 {
			continue
		}
		switch i {
		case 0:
			out = append(out, RectI{r.Left, r.Top, s, s})
		case 1:
			out = append(out, RectI{r.Right() - s, r.Top, s, s})
		case 2:
			out = append(out, RectI{r.Right() - s, r.Bottom() - s, s, s})
		case 3:
			out = append(out, RectI{r.Left, r.Bottom() - s, s, s})
		}
	}
	return out
}
