package unirender

import (
	"fmt"
	"image"
	"image/draw"
	"sync"

	"github.com/gogpu/gg/surface"
	"github.com/gogpu/gputypes"
)

// SoftwareContext is a CPU GPUContext backed by gg image surfaces. It is safe
// for concurrent use; each surface must be drawn from one goroutine at a time.
type SoftwareContext struct {
	id        uint64
	maxPixels int

	mu       sync.Mutex
	live     int
	failNext int
}

// NewSoftwareContext creates a software context. maxPixels limits a single
// allocation; zero means unlimited.
func NewSoftwareContext(maxPixels int) *SoftwareContext {
	return &SoftwareContext{id: newContextID(), maxPixels: maxPixels}
}

// ID implements GPUContext.
func (c *SoftwareContext) ID() uint64 { return c.id }

// FailAllocations makes the next n allocations fail with ErrSurfaceAlloc.
func (c *SoftwareContext) FailAllocations(n int) {
	c.mu.Lock()
	c.failNext = n
	c.mu.Unlock()
}

// Live returns the number of surfaces allocated and not yet released.
func (c *SoftwareContext) Live() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.live
}

// AllocateSurface implements GPUContext.
func (c *SoftwareContext) AllocateSurface(w, h int, format gputypes.TextureFormat) (Surface, error) {
	if err := checkSurfaceRequest(w, h, c.maxPixels, format); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failNext > 0 {
		c.failNext--
		return nil, fmt.Errorf("allocate %dx%d: injected failure: %w", w, h, ErrSurfaceAlloc)
	}
	c.live++
	return &softwareSurface{ctx: c.id, s: surface.NewImageSurface(w, h)}, nil
}

// Snapshot implements GPUContext.
func (c *SoftwareContext) Snapshot(s Surface) (Image, error) {
	ss, ok := s.(*softwareSurface)
	if !ok || ss.ctx != c.id {
		return nil, fmt.Errorf("snapshot: surface not owned by context %d: %w", c.id, ErrContextLost)
	}
	img := ss.s.Snapshot()
	if img == nil {
		return nil, fmt.Errorf("snapshot: surface closed: %w", ErrContextLost)
	}
	return &rgbaImage{ctx: c.id, img: img}, nil
}

// Release implements GPUContext.
func (c *SoftwareContext) Release(s Surface) {
	ss, ok := s.(*softwareSurface)
	if !ok || ss.closed {
		return
	}
	ss.closed = true
	_ = ss.s.Close()
	c.mu.Lock()
	c.live--
	c.mu.Unlock()
}

// softwareSurface is both the Surface and its Canvas.
type softwareSurface struct {
	ctx    uint64
	s      *surface.ImageSurface
	closed bool
}

func (s *softwareSurface) Width() int        { return s.s.Width() }
func (s *softwareSurface) Height() int       { return s.s.Height() }
func (s *softwareSurface) ContextID() uint64 { return s.ctx }
func (s *softwareSurface) Canvas() Canvas    { return s }

func (s *softwareSurface) Clear(c Color) {
	s.s.Clear(c.RGBA())
}

func (s *softwareSurface) ClearRect(r RectI) {
	if r.IsEmpty() {
		return
	}
	img := s.s.Image()
	rect := image.Rect(r.Left, r.Top, r.Right(), r.Bottom())
	draw.Draw(img, rect, image.Transparent, image.Point{}, draw.Src)
}

func (s *softwareSurface) FillRect(r RectI, c Color) {
	if r.IsEmpty() || c.A <= 0 {
		return
	}
	p := surface.NewPath()
	p.Rectangle(float64(r.Left), float64(r.Top), float64(r.Width), float64(r.Height))
	s.s.Fill(p, surface.FillStyle{Color: c.RGBA(), Rule: surface.FillRuleNonZero})
}

func (s *softwareSurface) DrawImage(img Image, x, y int, alpha float64) {
	if img == nil || alpha <= 0 {
		return
	}
	s.s.DrawImage(img.RGBA(), surface.Pt(float64(x), float64(y)), &surface.DrawImageOptions{Alpha: clamp01(alpha)})
}
