package unirender

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/hajimehoshi/ebiten/v2"
)

// --- Render texture pool ---

// texturePool manages reusable offscreen ebiten.Images keyed by
// power-of-two dimensions. After warmup, Acquire/Release are zero-alloc.
type texturePool struct {
	buckets map[uint64][]*ebiten.Image
}

// poolKey packs power-of-two width and height into a single uint64.
func poolKey(w, h int) uint64 {
	return uint64(w)<<32 | uint64(h)
}

// Acquire returns a cleared offscreen image with at least (w, h) pixels.
// Dimensions are rounded up to the next power of two.
func (p *texturePool) Acquire(w, h int) *ebiten.Image {
	pw := nextPowerOfTwo(w)
	ph := nextPowerOfTwo(h)
	key := poolKey(pw, ph)

	if p.buckets != nil {
		if stack := p.buckets[key]; len(stack) > 0 {
			img := stack[len(stack)-1]
			p.buckets[key] = stack[:len(stack)-1]
			img.Clear()
			return img
		}
	}

	return ebiten.NewImageWithOptions(
		image.Rect(0, 0, pw, ph),
		&ebiten.NewImageOptions{Unmanaged: true},
	)
}

// Release returns an image to the pool for reuse. The image is cleared on
// next Acquire, not here.
func (p *texturePool) Release(img *ebiten.Image) {
	if img == nil {
		return
	}
	b := img.Bounds()
	key := poolKey(b.Dx(), b.Dy())

	if p.buckets == nil {
		p.buckets = make(map[uint64][]*ebiten.Image)
	}
	p.buckets[key] = append(p.buckets[key], img)
}

// Pooled returns the number of idle images held by the pool.
func (p *texturePool) Pooled() int {
	n := 0
	for _, stack := range p.buckets {
		n += len(stack)
	}
	return n
}

// nextPowerOfTwo returns the smallest power of two >= n (minimum 1).
func nextPowerOfTwo(n int) int {
	if n <= 1 {
		return 1
	}
	return 1 << int(math.Ceil(math.Log2(float64(n))))
}

// --- EbitenContext ---

// EbitenContext is a GPUContext backed by ebiten offscreen images. Surfaces
// come from a power-of-two pool and go back to it on Release.
type EbitenContext struct {
	id        uint64
	maxPixels int

	mu   sync.Mutex
	pool texturePool
}

// NewEbitenContext creates an ebiten-backed context. maxPixels limits a
// single allocation; zero means unlimited.
func NewEbitenContext(maxPixels int) *EbitenContext {
	return &EbitenContext{id: newContextID(), maxPixels: maxPixels}
}

// ID implements GPUContext.
func (c *EbitenContext) ID() uint64 { return c.id }

// AllocateSurface implements GPUContext.
func (c *EbitenContext) AllocateSurface(w, h int, format gputypes.TextureFormat) (Surface, error) {
	if err := checkSurfaceRequest(w, h, c.maxPixels, format); err != nil {
		return nil, err
	}
	c.mu.Lock()
	backing := c.pool.Acquire(w, h)
	c.mu.Unlock()
	view := backing.SubImage(image.Rect(0, 0, w, h)).(*ebiten.Image)
	return &ebitenSurface{ctx: c.id, backing: backing, img: view, w: w, h: h}, nil
}

// Snapshot implements GPUContext. The pixels are copied into a new image.
func (c *EbitenContext) Snapshot(s Surface) (Image, error) {
	es, ok := s.(*ebitenSurface)
	if !ok || es.ctx != c.id {
		return nil, fmt.Errorf("snapshot: surface not owned by context %d: %w", c.id, ErrContextLost)
	}
	if es.released {
		return nil, fmt.Errorf("snapshot: surface released: %w", ErrContextLost)
	}
	cp := ebiten.NewImage(es.w, es.h)
	cp.DrawImage(es.img, nil)
	return &ebitenImage{ctx: c.id, img: cp}, nil
}

// Release implements GPUContext.
func (c *EbitenContext) Release(s Surface) {
	es, ok := s.(*ebitenSurface)
	if !ok || es.released {
		return
	}
	es.released = true
	c.mu.Lock()
	c.pool.Release(es.backing)
	c.mu.Unlock()
}

// Pooled returns the number of idle pooled textures.
func (c *EbitenContext) Pooled() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pool.Pooled()
}

type ebitenSurface struct {
	ctx      uint64
	backing  *ebiten.Image
	img      *ebiten.Image
	w, h     int
	released bool
}

func (s *ebitenSurface) Width() int        { return s.w }
func (s *ebitenSurface) Height() int       { return s.h }
func (s *ebitenSurface) ContextID() uint64 { return s.ctx }
func (s *ebitenSurface) Canvas() Canvas    { return &ebitenCanvas{ctx: s.ctx, dst: s.img} }

// Image returns the underlying ebiten image, for presenting to the screen.
func (s *ebitenSurface) Image() *ebiten.Image { return s.img }

// ebitenImage is an Image over an ebiten texture. RGBA reads the pixels
// back lazily.
type ebitenImage struct {
	ctx uint64
	img *ebiten.Image

	once sync.Once
	rgba *image.RGBA
}

func (i *ebitenImage) Width() int        { return i.img.Bounds().Dx() }
func (i *ebitenImage) Height() int       { return i.img.Bounds().Dy() }
func (i *ebitenImage) ContextID() uint64 { return i.ctx }

// Release frees the texture. The image must not be drawn afterwards.
func (i *ebitenImage) Release() { i.img.Deallocate() }

func (i *ebitenImage) RGBA() *image.RGBA {
	i.once.Do(func() {
		b := i.img.Bounds()
		i.rgba = image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		i.img.ReadPixels(i.rgba.Pix)
	})
	return i.rgba
}

var whitePixelImage *ebiten.Image

// ensureWhitePixel returns a lazily-initialized 1x1 white pixel image.
func ensureWhitePixel() *ebiten.Image {
	if whitePixelImage == nil {
		whitePixelImage = ebiten.NewImage(1, 1)
		whitePixelImage.Fill(color.RGBA{R: 255, G: 255, B: 255, A: 255})
	}
	return whitePixelImage
}

// ebitenCanvas draws onto an ebiten image.
type ebitenCanvas struct {
	ctx uint64
	dst *ebiten.Image
}

// NewEbitenCanvas returns a Canvas drawing onto dst, such as the screen
// passed to ebiten's Draw.
func NewEbitenCanvas(dst *ebiten.Image) Canvas {
	return &ebitenCanvas{dst: dst}
}

func (c *ebitenCanvas) Width() int  { return c.dst.Bounds().Dx() }
func (c *ebitenCanvas) Height() int { return c.dst.Bounds().Dy() }

func (c *ebitenCanvas) Clear(col Color) {
	c.dst.Fill(col.RGBA())
}

func (c *ebitenCanvas) ClearRect(r RectI) {
	if r.IsEmpty() {
		return
	}
	b := c.dst.Bounds()
	rect := image.Rect(b.Min.X+r.Left, b.Min.Y+r.Top, b.Min.X+r.Right(), b.Min.Y+r.Bottom()).Intersect(b)
	if rect.Empty() {
		return
	}
	c.dst.SubImage(rect).(*ebiten.Image).Clear()
}

func (c *ebitenCanvas) FillRect(r RectI, col Color) {
	if r.IsEmpty() || col.A <= 0 {
		return
	}
	var op ebiten.DrawImageOptions
	op.GeoM.Scale(float64(r.Width), float64(r.Height))
	op.GeoM.Translate(float64(r.Left), float64(r.Top))
	op.ColorScale.ScaleWithColor(col.RGBA())
	c.dst.DrawImage(ensureWhitePixel(), &op)
}

func (c *ebitenCanvas) DrawImage(img Image, x, y int, alpha float64) {
	if img == nil || alpha <= 0 {
		return
	}
	src, ok := img.(*ebitenImage)
	var tex *ebiten.Image
	if ok && (c.ctx == 0 || src.ctx == c.ctx) {
		tex = src.img
	} else {
		tex = ebiten.NewImageFromImage(img.RGBA())
		defer tex.Deallocate()
	}
	var op ebiten.DrawImageOptions
	op.GeoM.Translate(float64(x), float64(y))
	op.ColorScale.ScaleAlpha(float32(clamp01(alpha)))
	c.dst.DrawImage(tex, &op)
}
