package unirender

import (
	"math"

	"github.com/gogpu/gputypes"
)

// CompositionType says who composes a layer.
type CompositionType uint8

const (
	// CompositionDevice composes the layer on a hardware overlay plane.
	CompositionDevice CompositionType = iota
	// CompositionClient composes the layer on the GPU.
	CompositionClient
)

func (c CompositionType) String() string {
	if c == CompositionDevice {
		return "device"
	}
	return "client"
}

// ComposeInfo is one surface's contribution to the layer list of a frame.
// It is built fresh every frame.
type ComposeInfo struct {
	ID           NodeID
	SrcRect      RectI
	DstRect      RectI
	VisibleRects []RectI
	ZOrder       int
	Alpha        uint8
	Blend        gputypes.CompositeAlphaMode
	Transform    ScreenRotation
	Gravity      Gravity
	Buffer       *Buffer
}

// LayerInfo is a ComposeInfo with its composition type, as submitted to the
// backend.
type LayerInfo struct {
	ComposeInfo
	Type CompositionType
}

// Composer turns the hwc-enabled surfaces of a display into a layer list.
type Composer struct {
	width, height    int
	offsetX, offsetY int
	rotation         ScreenRotation
	alphaMode        gputypes.CompositeAlphaMode
}

// NewComposer creates a composer for the display's current screen state.
// Translucent layers blend with mode.
func NewComposer(d *DisplayData, mode gputypes.CompositeAlphaMode) *Composer {
	return &Composer{
		width:     d.Width,
		height:    d.Height,
		offsetX:   d.offsetX,
		offsetY:   d.offsetY,
		rotation:  d.rotation,
		alphaMode: mode,
	}
}

// BuildComposeInfo describes a surface node as a layer. The source rect is
// the visible part of the node scaled to buffer pixels. Reports false when
// the node has no buffer.
func (c *Composer) BuildComposeInfo(n *RenderNode) (ComposeInfo, bool) {
	sd := n.surface
	if sd == nil || sd.buffer == nil {
		return ComposeInfo{}, false
	}
	b := sd.buffer
	abs := n.geo.absRect
	src := sd.srcRect
	if abs.Width > 0 && abs.Height > 0 {
		sx := float64(b.Width) / float64(abs.Width)
		sy := float64(b.Height) / float64(abs.Height)
		src = RectI{
			Left:   int(math.Round(float64(src.Left) * sx)),
			Top:    int(math.Round(float64(src.Top) * sy)),
			Width:  int(math.Round(float64(src.Width) * sx)),
			Height: int(math.Round(float64(src.Height) * sy)),
		}
	}
	blend := gputypes.CompositeAlphaModeOpaque
	if sd.IsTransparent(n.globalAlpha) {
		blend = c.alphaMode
	}
	info := ComposeInfo{
		ID:        n.id,
		SrcRect:   src,
		DstRect:   sd.dstRect.Offset(-c.offsetX, -c.offsetY),
		ZOrder:    sd.zOrder,
		Alpha:     uint8(math.Round(clamp01(n.globalAlpha) * 255)),
		Blend:     blend,
		Transform: c.rotation,
		Gravity:   b.Gravity,
		Buffer:    b,
	}
	for _, r := range sd.visibleRegion.Rects() {
		info.VisibleRects = append(info.VisibleRects, r.Offset(-c.offsetX, -c.offsetY))
	}
	return info, true
}

// IsOutOfScreenRegion reports whether info's destination lies entirely off
// the screen.
func (c *Composer) IsOutOfScreenRegion(info ComposeInfo) bool {
	d := info.DstRect
	return d.Right() <= 0 || d.Left >= c.width || d.Bottom() <= 0 || d.Top >= c.height
}

// LayerCrop clips the destination to the screen and shrinks the source by
// the same proportion.
func (c *Composer) LayerCrop(info *ComposeInfo) {
	dst := info.DstRect
	src := info.SrcRect
	res := dst.IntersectRect(RectI{0, 0, c.width, c.height})
	if res == dst {
		return
	}
	info.DstRect = res
	if res.IsEmpty() || dst.Width == 0 || dst.Height == 0 {
		info.SrcRect = RectI{src.Left, src.Top, 0, 0}
		return
	}
	info.SrcRect = RectI{
		Left:   src.Left + (res.Left-dst.Left)*src.Width/dst.Width,
		Top:    src.Top + (res.Top-dst.Top)*src.Height/dst.Height,
		Width:  src.Width * res.Width / dst.Width,
		Height: src.Height * res.Height / dst.Height,
	}
}

// LayerScaleDown crops the source of a scale-crop layer to the destination
// aspect ratio, keeping it centered. Resize layers are left alone.
func LayerScaleDown(info *ComposeInfo) {
	if info.Gravity != GravityScaleCrop {
		return
	}
	src := info.SrcRect
	dst := info.DstRect
	if dst.Width <= 0 || dst.Height <= 0 || src.IsEmpty() {
		return
	}
	w, h := src.Width, src.Height
	switch {
	case w*dst.Height > h*dst.Width:
		w = dst.Width * h / dst.Height
	case w*dst.Height < h*dst.Width:
		h = dst.Height * w / dst.Width
	}
	if w < src.Width {
		src.Left += (src.Width - w) / 2
		src.Width = w
	}
	if h < src.Height {
		src.Top += (src.Height - h) / 2
		src.Height = h
	}
	info.SrcRect = src
}

// LayerRotate maps the destination from screen space to the panel's native
// orientation.
func (c *Composer) LayerRotate(info *ComposeInfo) {
	r := info.DstRect
	w, h := c.width, c.height
	switch c.rotation {
	case Rotation90:
		info.DstRect = RectI{r.Top, w - r.Left - r.Width, r.Height, r.Width}
	case Rotation180:
		info.DstRect = RectI{w - r.Left - r.Width, h - r.Top - r.Height, r.Width, r.Height}
	case Rotation270:
		info.DstRect = RectI{h - r.Top - r.Height, r.Left, r.Height, r.Width}
	}
	info.Transform = c.rotation
}

// CreateLayer builds the device layer for a hwc-enabled node. Reports false
// when the node has no buffer or is off screen.
func (c *Composer) CreateLayer(n *RenderNode) (LayerInfo, bool) {
	info, ok := c.BuildComposeInfo(n)
	if !ok || c.IsOutOfScreenRegion(info) {
		return LayerInfo{}, false
	}
	c.fitLayer(&info)
	return LayerInfo{ComposeInfo: info, Type: CompositionDevice}, true
}

// fitLayer crops info to the screen, fits a scale-crop source to what is
// left of the destination and maps it to the panel orientation.
func (c *Composer) fitLayer(info *ComposeInfo) {
	c.LayerCrop(info)
	LayerScaleDown(info)
	c.LayerRotate(info)
}

// ClientLayer returns the layer carrying the GPU-composed frame of display d.
func (c *Composer) ClientLayer(d *RenderNode) LayerInfo {
	info := ComposeInfo{
		ID:        d.id,
		SrcRect:   RectI{0, 0, c.width, c.height},
		DstRect:   RectI{0, 0, c.width, c.height},
		ZOrder:    -1,
		Alpha:     255,
		Blend:     c.alphaMode,
		Transform: c.rotation,
	}
	c.LayerRotate(&info)
	return LayerInfo{ComposeInfo: info, Type: CompositionClient}
}

// BuildLayers returns the client layer of d followed by a device layer per
// hwc-enabled surface in z order.
func (c *Composer) BuildLayers(t *Tree, d *RenderNode) []LayerInfo {
	layers := []LayerInfo{c.ClientLayer(d)}
	for _, id := range d.display.curAllSurfaces {
		n := t.nodes[id]
		if n == nil || !n.surface.IsHwcEnabled() {
			continue
		}
		if l, ok := c.CreateLayer(n); ok {
			layers = append(layers, l)
		}
	}
	return layers
}
