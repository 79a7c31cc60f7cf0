package unirender

import (
	"maps"
	"slices"
	"time"
)

// RenderParams is the snapshot of one node consumed by the draw phase. The
// prepare pass fills a staging copy on the node; Sync commits it to the
// node's drawable. The render goroutine only reads committed copies.
type RenderParams struct {
	ID   NodeID
	Kind NodeType

	AbsMatrix    Matrix
	AbsRect      RectI
	Bounds       RectF
	ChildrenRect RectI
	Alpha        float64
	ShouldPaint  bool
	ClipToBounds bool
	HasFilter    bool

	Background   Color
	CornerRadius CornerRadius
	Content      []DrawOp
	Children     []NodeID

	CachePolicy  DrawingCacheType
	CacheChanged bool

	// Surface only.
	DstRect        RectI
	VisibleRegion  Region
	HwcEnabled     bool
	Buffer         *Buffer
	UIFirstEnabled bool

	needSync bool
}

// stageRenderParams copies the prepared state of n into its staging params.
func (n *RenderNode) stageRenderParams() {
	p := &n.staging
	p.ID = n.id
	p.Kind = n.kind
	p.AbsMatrix = n.geo.absMatrix
	p.AbsRect = n.geo.absRect
	p.Bounds = n.props.localBounds()
	p.ChildrenRect = n.oldChildrenRect
	p.HasFilter = n.props.HasFilter()
	p.Alpha = n.globalAlpha
	p.ShouldPaint = n.ShouldPaint()
	p.ClipToBounds = n.props.ClipToBounds
	p.Background = n.props.BackgroundColor
	p.CornerRadius = n.props.CornerRadius
	p.Content = n.content
	p.Children = n.children
	p.CachePolicy = n.cachePolicy
	p.CacheChanged = p.CacheChanged || n.cacheChanged
	n.cacheChanged = false
	p.needSync = true
}

// NeedSync reports whether the staging params changed since the last Sync.
func (p *RenderParams) NeedSync() bool { return p.needSync }

// Clone returns a deep copy of p.
func (p *RenderParams) Clone() *RenderParams {
	cp := *p
	cp.Content = slices.Clone(p.Content)
	cp.Children = slices.Clone(p.Children)
	cp.VisibleRegion = p.VisibleRegion.clone()
	if p.Buffer != nil {
		b := *p.Buffer
		cp.Buffer = &b
	}
	cp.needSync = false
	return &cp
}

// syncSurfaceParams refreshes the surface fields decided after the walk.
func (n *RenderNode) syncSurfaceParams() {
	sd := n.surface
	if sd == nil {
		return
	}
	p := &n.staging
	p.DstRect = sd.dstRect
	p.VisibleRegion = sd.visibleRegion
	p.HwcEnabled = sd.IsHwcEnabled()
	p.Buffer = sd.buffer
	p.UIFirstEnabled = sd.uifirstEnabled
	p.needSync = true
}

// SyncRenderParams commits the staging params of every node under root to
// its drawable, creating drawables on first use. It must not run while the
// render goroutine is drawing.
func SyncRenderParams(t *Tree, root NodeID) {
	t.ReleaseRetired()
	t.Walk(root, func(n *RenderNode) bool {
		n.syncSurfaceParams()
		d := OnGenerate(n)
		if n.staging.needSync {
			d.syncParams(n.staging.Clone())
			n.staging.needSync = false
			n.staging.CacheChanged = false
		}
		return true
	})
	t.Walk(root, func(n *RenderNode) bool {
		d := n.drawable
		d.children = d.children[:0]
		for _, cid := range d.params.Children {
			if c := t.nodes[cid]; c != nil && c.drawable != nil {
				d.children = append(d.children, c.drawable)
			}
		}
		return true
	})
}

// RenderThreadParams is the per-frame state handed to the render goroutine.
type RenderThreadParams struct {
	Vsync     uint64
	Timestamp time.Time

	DisplayID     NodeID
	Width, Height int
	Rotation      ScreenRotation

	DirtyRects  []RectI
	MirrorDirty RectI
	HwcDirty    RectI

	PartialRenderEnabled bool
	OpDropped            bool

	HwcNodes         []NodeID
	SelfDrawingNodes []NodeID
	Visibility       map[NodeID]VisibleLevel
	UIFirstNodes     []NodeID

	Layers   []LayerInfo
	Captures []string

	Root *RenderNodeDrawable
}

// Sync returns a deep copy of p. Drawables are shared: they are only
// mutated between frames.
func (p *RenderThreadParams) Sync() *RenderThreadParams {
	cp := *p
	cp.DirtyRects = slices.Clone(p.DirtyRects)
	cp.HwcNodes = slices.Clone(p.HwcNodes)
	cp.SelfDrawingNodes = slices.Clone(p.SelfDrawingNodes)
	cp.Visibility = maps.Clone(p.Visibility)
	cp.UIFirstNodes = slices.Clone(p.UIFirstNodes)
	cp.Captures = slices.Clone(p.Captures)
	cp.Layers = make([]LayerInfo, len(p.Layers))
	for i, l := range p.Layers {
		l.VisibleRects = slices.Clone(l.VisibleRects)
		cp.Layers[i] = l
	}
	return &cp
}

// IsDirty reports whether r must be redrawn this frame.
func (p *RenderThreadParams) IsDirty(r RectI) bool {
	if !p.PartialRenderEnabled {
		return true
	}
	for _, d := range p.DirtyRects {
		if d.Intersect(r) {
			return true
		}
	}
	return false
}

// buildRenderThreadParams collects the frame state of display d after a
// prepare.
func (v *Visitor) buildRenderThreadParams(d *RenderNode, now time.Time) *RenderThreadParams {
	dd := d.display
	p := &RenderThreadParams{
		Vsync:                v.vsync,
		Timestamp:            now,
		DisplayID:            d.id,
		Width:                dd.Width,
		Height:               dd.Height,
		Rotation:             dd.rotation,
		DirtyRects:           dd.dm.DirtyRects(),
		MirrorDirty:          dd.dm.MirrorDirtyRegion(),
		HwcDirty:             dd.dm.HwcDirtyRegion(),
		PartialRenderEnabled: v.cfg.Dirty.PartialRender,
		OpDropped:            v.cfg.Dirty.PartialRender,
		Visibility:           maps.Clone(v.lastVisibility[d.id]),
		Root:                 d.drawable,
	}
	for _, id := range dd.curAllSurfaces {
		sd := v.tree.nodes[id].surface
		if sd.Type == SurfaceSelfDrawing {
			p.SelfDrawingNodes = append(p.SelfDrawingNodes, id)
			if sd.IsHwcEnabled() {
				p.HwcNodes = append(p.HwcNodes, id)
			}
		}
		if sd.uifirstEnabled && sd.Type.IsLeashOrMainWindow() {
			p.UIFirstNodes = append(p.UIFirstNodes, id)
		}
	}
	return p
}
