package unirender

// DisplayData is the per-kind data of a display node.
type DisplayData struct {
	ScreenID      uint64
	Width, Height int

	offsetX, offsetY int
	rotation         ScreenRotation
	lastRotation     ScreenRotation
	prepared         bool

	dm *DirtyRegionManager

	curAllSurfaces      []NodeID
	lastFrameSurfacePos map[NodeID]RectI
	curFrameSurfacePos  map[NodeID]RectI
	surfaceChangedRects []RectI

	hwcForcedDisabled bool
}

func newDisplayData() *DisplayData {
	return &DisplayData{
		lastFrameSurfacePos: make(map[NodeID]RectI),
		curFrameSurfacePos:  make(map[NodeID]RectI),
	}
}

// DirtyManager returns the display dirty manager. It is nil until the first
// prepare.
func (d *DisplayData) DirtyManager() *DirtyRegionManager { return d.dm }

// ScreenRect returns (0, 0, Width, Height).
func (d *DisplayData) ScreenRect() RectI { return RectI{0, 0, d.Width, d.Height} }

// Offset returns the display offset subtracted from surface dst rects.
func (d *DisplayData) Offset() (x, y int) { return d.offsetX, d.offsetY }

// Rotation returns the screen rotation.
func (d *DisplayData) Rotation() ScreenRotation { return d.rotation }

// IsRotationChanged reports whether the rotation changed since the last
// prepared frame.
func (d *DisplayData) IsRotationChanged() bool {
	return d.prepared && d.rotation != d.lastRotation
}

// CurAllSurfaces returns the surfaces of the last frame in paint order
// (back to front). The returned slice MUST NOT be mutated.
func (d *DisplayData) CurAllSurfaces() []NodeID { return d.curAllSurfaces }

// SurfaceChangedRects returns the last-frame rects of surfaces that moved,
// changed z-order, or left the display this frame.
func (d *DisplayData) SurfaceChangedRects() []RectI { return d.surfaceChangedRects }

// IsHwcForcedDisabled reports whether every layer was GPU composed this frame.
func (d *DisplayData) IsHwcForcedDisabled() bool { return d.hwcForcedDisabled }

// finishFrame rolls the per-frame position maps and rotation.
func (d *DisplayData) finishFrame() {
	d.lastFrameSurfacePos, d.curFrameSurfacePos = d.curFrameSurfacePos, d.lastFrameSurfacePos
	clear(d.curFrameSurfacePos)
	d.lastRotation = d.rotation
	d.prepared = true
}

// SetScreenRotation sets the rotation of a display node. A change redraws
// the whole screen on the next frame.
func (n *RenderNode) SetScreenRotation(r ScreenRotation) {
	if n.display == nil {
		return
	}
	n.display.rotation = r
	n.SetDirty()
}

// SetScreenOffset sets the offset of a display node within the composed
// output.
func (n *RenderNode) SetScreenOffset(x, y int) {
	if n.display == nil {
		return
	}
	n.display.offsetX = x
	n.display.offsetY = y
	n.SetDirty()
}
