package unirender

import (
	"fmt"
	"image"
	"sync/atomic"

	"github.com/gogpu/gputypes"
)

// GPUContext allocates offscreen surfaces and snapshots them. A context is
// owned by one render goroutine; images carry the id of the context that
// produced them so a consumer on another context can detect the mismatch.
type GPUContext interface {
	ID() uint64
	AllocateSurface(w, h int, format gputypes.TextureFormat) (Surface, error)
	Snapshot(s Surface) (Image, error)
	Release(s Surface)
}

// Surface is a drawable offscreen target.
type Surface interface {
	Width() int
	Height() int
	Canvas() Canvas
	ContextID() uint64
}

// Image is an immutable snapshot of a surface.
type Image interface {
	Width() int
	Height() int
	ContextID() uint64
	RGBA() *image.RGBA
}

// Canvas is the drawing API used by drawables. Coordinates are in pixels of
// the target.
type Canvas interface {
	Width() int
	Height() int
	Clear(c Color)
	// ClearRect sets r to transparent, ignoring blending.
	ClearRect(r RectI)
	FillRect(r RectI, c Color)
	DrawImage(img Image, x, y int, alpha float64)
}

var nextContextID atomic.Uint64

func newContextID() uint64 { return nextContextID.Add(1) }

// checkSurfaceRequest validates an allocation against a context's limits.
func checkSurfaceRequest(w, h, maxPixels int, format gputypes.TextureFormat) error {
	if w <= 0 || h <= 0 {
		return fmt.Errorf("allocate %dx%d: %w", w, h, ErrSurfaceAlloc)
	}
	if maxPixels > 0 && w*h > maxPixels {
		return fmt.Errorf("allocate %dx%d over %d pixel limit: %w", w, h, maxPixels, ErrSurfaceAlloc)
	}
	switch format {
	case gputypes.TextureFormatRGBA8Unorm, gputypes.TextureFormatBGRA8Unorm,
		gputypes.TextureFormatRGB10A2Unorm, gputypes.TextureFormatRGBA16Float:
		return nil
	}
	return fmt.Errorf("allocate format %v: %w", format, ErrSurfaceAlloc)
}

// rgbaImage is an Image over a CPU pixel buffer.
type rgbaImage struct {
	ctx uint64
	img *image.RGBA
}

func (i *rgbaImage) Width() int        { return i.img.Bounds().Dx() }
func (i *rgbaImage) Height() int       { return i.img.Bounds().Dy() }
func (i *rgbaImage) ContextID() uint64 { return i.ctx }
func (i *rgbaImage) RGBA() *image.RGBA { return i.img }

// RewrapImage returns img as an image owned by ctx. The pixels are shared.
func RewrapImage(img Image, ctx GPUContext) Image {
	if img == nil || img.ContextID() == ctx.ID() {
		return img
	}
	return &rgbaImage{ctx: ctx.ID(), img: img.RGBA()}
}

// --- Translated canvas ---

// offsetCanvas shifts every draw by (dx, dy). Drawables paint in screen
// space; a cache surface shifts them back to the node's origin.
type offsetCanvas struct {
	Canvas
	dx, dy int
}

// OffsetCanvas returns c with all drawing translated by (dx, dy).
func OffsetCanvas(c Canvas, dx, dy int) Canvas {
	if dx == 0 && dy == 0 {
		return c
	}
	if oc, ok := c.(*offsetCanvas); ok {
		return &offsetCanvas{Canvas: oc.Canvas, dx: oc.dx + dx, dy: oc.dy + dy}
	}
	return &offsetCanvas{Canvas: c, dx: dx, dy: dy}
}

func (c *offsetCanvas) ClearRect(r RectI) {
	c.Canvas.ClearRect(r.Offset(c.dx, c.dy))
}

func (c *offsetCanvas) FillRect(r RectI, col Color) {
	c.Canvas.FillRect(r.Offset(c.dx, c.dy), col)
}

func (c *offsetCanvas) DrawImage(img Image, x, y int, alpha float64) {
	c.Canvas.DrawImage(img, x+c.dx, y+c.dy, alpha)
}
