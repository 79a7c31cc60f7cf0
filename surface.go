package unirender

// Gravity controls how a producer buffer is fitted to its destination rect.
type Gravity uint8

const (
	// GravityResize stretches the buffer to the destination.
	GravityResize Gravity = iota
	// GravityScaleCrop keeps the aspect ratio and crops the buffer to fill the
	// destination.
	GravityScaleCrop
)

// Buffer is a producer frame attached to a self-drawing surface. Color is the
// uniform content the renderer paints when the buffer is GPU composed.
type Buffer struct {
	Width, Height int
	Seq           uint64
	Color         Color
	Gravity       Gravity
}

// SurfaceData is the per-kind data of a surface node.
type SurfaceData struct {
	Type SurfaceType

	dm *DirtyRegionManager

	dstRect RectI
	srcRect RectI

	visibleRegion     Region
	opaqueRegion      Region
	transparentRegion Region
	containerRegion   Region
	visibleLevel      VisibleLevel

	hasContainerWindow bool
	containerInset     int
	backgroundAlpha    float64
	focused            bool
	opaqueBase         opaqueBaseInfo

	ForceDirect   bool
	ForceHardware bool

	buffer              *Buffer
	bufferPendingUpdate bool
	consumedSeq         uint64
	updateVsyncs        []uint64
	lastUpdateVsync     uint64

	hwcDisabled         bool
	hwcDisableReason    HwcDisableReason
	lastFrameHwcEnabled bool
	hwcDisabledByFilter bool

	zOrder        int
	lastZOrder    int
	zorderChanged bool
	animating     bool

	ownerApp            NodeID
	childHwcNodes       []NodeID
	childrenFilterRects []RectI
	childrenFilterNodes []NodeID
	globalCornerRadius  CornerRadius

	shadowValidLastFrame bool

	globalDirty            Region
	dirtyBelowCurrentLayer Region

	uifirstEnabled bool
}

func newSurfaceData(st SurfaceType) *SurfaceData {
	return &SurfaceData{
		Type:            st,
		backgroundAlpha: 1,
		zOrder:          -1,
		lastZOrder:      -1,
	}
}

// hasOwnDirtyManager reports whether this surface type tracks its own dirty
// region. Self-drawing and ability surfaces merge into their owner's.
func (s *SurfaceData) hasOwnDirtyManager() bool {
	return s.Type.IsLeashOrMainWindow()
}

// DirtyManager returns the surface's dirty manager, or nil for types that
// merge into their owner's.
func (s *SurfaceData) DirtyManager() *DirtyRegionManager { return s.dm }

// DstRect returns the on-screen destination rect computed by the last prepare.
func (s *SurfaceData) DstRect() RectI { return s.dstRect }

// SrcRect returns the part of the surface (in device pixels relative to its
// own origin) that is visible on screen.
func (s *SurfaceData) SrcRect() RectI { return s.srcRect }

// VisibleRegion returns the area not covered by opaque surfaces in front.
func (s *SurfaceData) VisibleRegion() Region { return s.visibleRegion }

// OpaqueRegion returns the area this surface occludes.
func (s *SurfaceData) OpaqueRegion() Region { return s.opaqueRegion }

// TransparentRegion returns the area through which surfaces below show.
func (s *SurfaceData) TransparentRegion() Region { return s.transparentRegion }

// ContainerRegion returns the window decoration area around the content.
func (s *SurfaceData) ContainerRegion() Region { return s.containerRegion }

// VisibleLevel returns the visibility level reported for the last frame.
func (s *SurfaceData) VisibleLevel() VisibleLevel { return s.visibleLevel }

// GlobalDirty returns the part of the display dirty that falls inside this
// surface's visible region.
func (s *SurfaceData) GlobalDirty() Region { return s.globalDirty }

// DirtyBelowCurrentLayer returns dirty from lower surfaces that shows
// through this surface's transparent region.
func (s *SurfaceData) DirtyBelowCurrentLayer() Region { return s.dirtyBelowCurrentLayer }

// Buffer returns the attached producer buffer, or nil.
func (s *SurfaceData) Buffer() *Buffer { return s.buffer }

// IsBufferPendingUpdate reports whether a new buffer arrived since the last
// hwc pass.
func (s *SurfaceData) IsBufferPendingUpdate() bool { return s.bufferPendingUpdate }

// BufferConsumed reports whether the current buffer has been consumed by a
// frame.
func (s *SurfaceData) BufferConsumed() bool {
	return s.buffer != nil && s.consumedSeq == s.buffer.Seq && !s.bufferPendingUpdate
}

// IsHwcEnabled reports whether the surface is composed by an overlay plane
// this frame.
func (s *SurfaceData) IsHwcEnabled() bool {
	return s.Type == SurfaceSelfDrawing && !s.hwcDisabled
}

// HwcDisableReason returns why hwc was disabled this frame, or HwcDisableNone.
func (s *SurfaceData) HwcDisableReason() HwcDisableReason { return s.hwcDisableReason }

// IsHwcDisabledByFilter reports whether a filter above forced GPU composition.
func (s *SurfaceData) IsHwcDisabledByFilter() bool { return s.hwcDisabledByFilter }

// LastFrameHwcEnabled reports the hwc state of the previous frame.
func (s *SurfaceData) LastFrameHwcEnabled() bool { return s.lastFrameHwcEnabled }

// ZOrder returns the paint index among the display's surfaces.
func (s *SurfaceData) ZOrder() int { return s.zOrder }

// IsZOrderChanged reports whether the paint index moved since last frame.
func (s *SurfaceData) IsZOrderChanged() bool { return s.zorderChanged }

// ChildHwcNodes returns the self-drawing surfaces hosted by this window.
func (s *SurfaceData) ChildHwcNodes() []NodeID { return s.childHwcNodes }

// ChildrenFilterRects returns the filter rects registered under this window.
func (s *SurfaceData) ChildrenFilterRects() []RectI { return s.childrenFilterRects }

// GlobalCornerRadius returns the corner radius applied to the surface on
// screen, inherited from its app window when it has none of its own.
func (s *SurfaceData) GlobalCornerRadius() CornerRadius { return s.globalCornerRadius }

// IsTransparent reports whether surfaces below show through.
func (s *SurfaceData) IsTransparent(globalAlpha float64) bool {
	return globalAlpha < 1 || s.backgroundAlpha < 1
}

// --- Surface setters on RenderNode ---

// SetBuffer attaches a new producer buffer to a surface node and flags it
// pending for the next hwc pass. The buffer does not dirty the GPU region by
// itself; the hwc pass decides where its area is merged. No-op on other node
// kinds.
func (n *RenderNode) SetBuffer(b *Buffer) {
	sd := n.surface
	if sd == nil {
		return
	}
	if b == nil {
		sd.buffer = nil
		sd.bufferPendingUpdate = false
		n.SetDirty()
		return
	}
	cp := *b
	sd.buffer = &cp
	sd.bufferPendingUpdate = true
	n.markParentSubTreeDirty()
}

// SetBackgroundAlpha sets the alpha of the window background. Values below 1
// make the surface translucent.
func (n *RenderNode) SetBackgroundAlpha(a float64) {
	if n.surface == nil {
		return
	}
	n.surface.backgroundAlpha = a
	n.SetDirty()
}

// SetFocused marks the window as holding input focus.
func (n *RenderNode) SetFocused(on bool) {
	if n.surface == nil {
		return
	}
	n.surface.focused = on
	n.SetDirty()
}

// SetContainerWindow gives the window a decoration frame of the given inset.
func (n *RenderNode) SetContainerWindow(on bool, inset int) {
	if n.surface == nil {
		return
	}
	n.surface.hasContainerWindow = on
	n.surface.containerInset = inset
	n.SetDirty()
}

// SetUIFirstEnabled marks a leash window for sub-thread caching.
func (n *RenderNode) SetUIFirstEnabled(on bool) {
	if n.surface == nil {
		return
	}
	n.surface.uifirstEnabled = on
	if !on && n.drawable != nil && n.drawable.uifirst != nil {
		n.drawable.uifirst.Reset()
	}
	n.SetDirty()
}

// SetAnimating marks the surface as moving under an animation. Animating
// surfaces have their old and new positions merged into the display dirty.
func (n *RenderNode) SetAnimating(on bool) {
	if n.surface == nil {
		return
	}
	n.surface.animating = on
	n.SetDirty()
}
