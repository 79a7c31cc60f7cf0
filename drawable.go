package unirender

import (
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/gogpu/gputypes"
)

// DrawingCacheType is the caching policy requested for a node.
type DrawingCacheType uint8

const (
	// DrawingCacheDisabled never caches.
	DrawingCacheDisabled DrawingCacheType = iota
	// DrawingCacheTargeted caches until the content has been re-rendered
	// more than the configured number of times, then gives up.
	DrawingCacheTargeted
	// DrawingCacheForced always caches.
	DrawingCacheForced
)

func (t DrawingCacheType) String() string {
	switch t {
	case DrawingCacheDisabled:
		return "disabled"
	case DrawingCacheTargeted:
		return "targeted"
	case DrawingCacheForced:
		return "forced"
	default:
		return fmt.Sprintf("DrawingCacheType(%d)", t)
	}
}

// CacheType is what a drawable's cache currently holds.
type CacheType uint8

const (
	CacheNone CacheType = iota
	CacheContent
	CacheAnimateProperty
)

func (t CacheType) String() string {
	switch t {
	case CacheNone:
		return "none"
	case CacheContent:
		return "content"
	case CacheAnimateProperty:
		return "animate-property"
	default:
		return fmt.Sprintf("CacheType(%d)", t)
	}
}

// --- Registrar ---

// DrawableGenerator creates the drawable of a node.
type DrawableGenerator func(n *RenderNode) *RenderNodeDrawable

var (
	generatorsMu sync.RWMutex
	generators   = map[NodeType]DrawableGenerator{}
)

// RegisterDrawable installs the constructor used for nodes of kind. A later
// registration replaces an earlier one.
func RegisterDrawable(kind NodeType, gen DrawableGenerator) {
	generatorsMu.Lock()
	generators[kind] = gen
	generatorsMu.Unlock()
}

func init() {
	for _, k := range []NodeType{NodeTypeCanvas, NodeTypeRoot, NodeTypeEffect, NodeTypeDisplay} {
		RegisterDrawable(k, newRenderNodeDrawable)
	}
	RegisterDrawable(NodeTypeSurface, newSurfaceDrawable)
}

// OnGenerate returns the drawable of n, creating it on first use. A node
// keeps the same drawable for its whole life. When the node is destroyed the
// drawable is retired and its caches are freed at the next sync.
func OnGenerate(n *RenderNode) *RenderNodeDrawable {
	if n.drawable != nil {
		return n.drawable
	}
	generatorsMu.RLock()
	gen := generators[n.kind]
	generatorsMu.RUnlock()
	if gen == nil {
		gen = newRenderNodeDrawable
	}
	d := gen(n)
	n.drawable = d
	if t := n.tree; t != nil {
		n.RegisterClearCallback(func() { t.retire(d) })
	}
	return d
}

// --- DrawContext ---

// DrawContext carries the per-traversal draw state.
type DrawContext struct {
	Canvas   Canvas
	GPU      GPUContext
	Releaser *ReleaseDispatcher
	Frame    *RenderThreadParams

	Format          gputypes.TextureFormat
	MaxCacheUpdates int
	UIFirstTimeout  time.Duration

	// ProcessedNodeCount counts nodes drawn in this traversal.
	ProcessedNodeCount int
	// DrawBlurForCache is set while a subtree renders into a cache. Nested
	// caches are then bypassed so filtered content lands in the outer one.
	DrawBlurForCache bool
	// IsOpDropped skips subtrees that do not touch the frame's dirty rects.
	IsOpDropped bool
}

func (ctx *DrawContext) with(c Canvas) *DrawContext {
	cp := *ctx
	cp.Canvas = c
	return &cp
}

func (ctx *DrawContext) post(task func()) {
	if ctx.Releaser == nil {
		task()
		return
	}
	ctx.Releaser.Post(task)
}

// --- RenderNodeDrawable ---

// RenderNodeDrawable draws one node on the render goroutine from its
// committed RenderParams.
type RenderNodeDrawable struct {
	id       NodeID
	kind     NodeType
	params   *RenderParams
	children []*RenderNodeDrawable

	mu            sync.Mutex
	policy        DrawingCacheType
	policyReset   bool
	cacheType     CacheType
	cacheChanged  bool
	cacheRect     RectI
	cachedSurface Surface
	cachedImage   Image
	updateTimes   int

	// Where the cache was allocated, for teardown outside a draw.
	cacheGPU      GPUContext
	cacheReleaser *ReleaseDispatcher

	uifirst *UIFirstState
}

func newRenderNodeDrawable(n *RenderNode) *RenderNodeDrawable {
	return &RenderNodeDrawable{
		id:          n.id,
		kind:        n.kind,
		params:      &RenderParams{ID: n.id, Kind: n.kind},
		policy:      n.cachePolicy,
		policyReset: true,
	}
}

// ID returns the id of the drawn node.
func (d *RenderNodeDrawable) ID() NodeID { return d.id }

// Params returns the committed params.
func (d *RenderNodeDrawable) Params() *RenderParams { return d.params }

// Children returns the child drawables in paint order.
func (d *RenderNodeDrawable) Children() []*RenderNodeDrawable { return d.children }

// UIFirst returns the sub-thread cache state, or nil when the node cannot
// be cached off the render goroutine.
func (d *RenderNodeDrawable) UIFirst() *UIFirstState { return d.uifirst }

func (d *RenderNodeDrawable) syncParams(p *RenderParams) {
	d.mu.Lock()
	if d.policyReset || p.CachePolicy != d.params.CachePolicy {
		d.policy = p.CachePolicy
		d.policyReset = false
	}
	d.cacheChanged = d.cacheChanged || p.CacheChanged
	d.params = p
	dropContent := d.policy == DrawingCacheDisabled && (d.cachedSurface != nil || d.cachedImage != nil)
	ctx := d.releaseContext()
	d.mu.Unlock()

	if dropContent {
		d.ClearCachedSurface(ctx)
	}
	if !p.UIFirstEnabled {
		d.dropUIFirstCache(ctx)
	}
}

// releaseContext returns a context that frees resources on the GPU context
// and dispatcher the cache was created with. d.mu must be held.
func (d *RenderNodeDrawable) releaseContext() *DrawContext {
	return &DrawContext{GPU: d.cacheGPU, Releaser: d.cacheReleaser}
}

// releaseCaches frees the content cache and the sub-thread cache. It must
// not run while the render goroutine draws d.
func (d *RenderNodeDrawable) releaseCaches() {
	d.mu.Lock()
	ctx := d.releaseContext()
	held := d.cachedSurface != nil || d.cachedImage != nil
	d.mu.Unlock()
	if held {
		d.ClearCachedSurface(ctx)
	}
	d.dropUIFirstCache(ctx)
}

// dropUIFirstCache invalidates the sub-thread cache and frees its image.
func (d *RenderNodeDrawable) dropUIFirstCache(ctx *DrawContext) {
	if d.uifirst == nil {
		return
	}
	old := d.uifirst.setCache(nil, RectI{})
	if old == nil {
		return
	}
	d.uifirst.Reset()
	ctx.post(func() { releaseImage(old) })
}

// resetUpdateTimes lets a new cache policy start counting again.
func (d *RenderNodeDrawable) resetUpdateTimes() {
	d.mu.Lock()
	d.updateTimes = 0
	d.policyReset = true
	d.mu.Unlock()
}

// Policy returns the effective cache policy.
func (d *RenderNodeDrawable) Policy() DrawingCacheType {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.policy
}

// CacheType returns what the cache holds.
func (d *RenderNodeDrawable) CacheType() CacheType {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cacheType
}

// UpdateTimes returns how often the cache was rendered under the current
// policy.
func (d *RenderNodeDrawable) UpdateTimes() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.updateTimes
}

// Draw draws the node and its subtree. The capture flag is read once, so a
// capture starting mid-draw does not mix the two paths in one traversal.
func (d *RenderNodeDrawable) Draw(ctx *DrawContext) {
	if IsCapturing() {
		d.OnCapture(ctx)
		return
	}
	d.OnDraw(ctx)
}

// OnDraw is the on-screen draw path.
func (d *RenderNodeDrawable) OnDraw(ctx *DrawContext) {
	p := d.params
	if !p.ShouldPaint {
		return
	}
	if ctx.IsOpDropped && ctx.Frame != nil && !ctx.Frame.IsDirty(p.AbsRect.JoinRect(p.ChildrenRect)) {
		return
	}
	ctx.ProcessedNodeCount++

	switch d.kind {
	case NodeTypeSurface:
		if d.drawSurface(ctx) {
			return
		}
	case NodeTypeDisplay:
		d.drawChildren(ctx, false)
		return
	}

	if d.drawFromCache(ctx) {
		return
	}
	d.drawContent(ctx.Canvas)
	d.drawChildren(ctx, false)
}

// OnCapture is the screenshot path. Caches are bypassed and hardware layers
// are drawn from their buffers, so the capture holds the fully composed
// frame.
func (d *RenderNodeDrawable) OnCapture(ctx *DrawContext) {
	p := d.params
	if !p.ShouldPaint {
		return
	}
	ctx.ProcessedNodeCount++
	if d.kind == NodeTypeSurface && p.Buffer != nil {
		ctx.Canvas.FillRect(p.DstRect, p.Buffer.Color.WithAlpha(p.Alpha))
	}
	if d.kind != NodeTypeDisplay {
		d.drawContent(ctx.Canvas)
	}
	d.drawChildren(ctx, true)
}

// drawSurface handles the surface-specific cases. Reports true when the
// surface was fully drawn.
func (d *RenderNodeDrawable) drawSurface(ctx *DrawContext) bool {
	p := d.params
	if p.Buffer != nil {
		if p.HwcEnabled {
			// Composed on an overlay plane; leave a hole for it.
			ctx.Canvas.ClearRect(p.DstRect)
			return true
		}
		ctx.Canvas.FillRect(p.DstRect, p.Buffer.Color.WithAlpha(p.Alpha))
	}
	if d.uifirst != nil && p.UIFirstEnabled {
		return d.drawUIFirstCache(ctx)
	}
	return false
}

func (d *RenderNodeDrawable) drawChildren(ctx *DrawContext, capture bool) {
	for _, c := range d.children {
		if capture {
			c.OnCapture(ctx)
		} else {
			c.OnDraw(ctx)
		}
	}
}

// drawContent paints the node's own background and draw ops.
func (d *RenderNodeDrawable) drawContent(c Canvas) {
	p := d.params
	if p.Background.A > 0 {
		c.FillRect(mapRect(p.AbsMatrix, p.Bounds), p.Background.WithAlpha(p.Alpha))
	}
	for _, op := range p.Content {
		c.FillRect(mapRect(p.AbsMatrix, op.Rect), op.Color.WithAlpha(p.Alpha))
	}
}

func mapRect(m Matrix, r RectF) RectI {
	g := Geometry{absMatrix: m}
	return g.MapAbsRect(r)
}

// --- Content cache ---

// contentRect returns the screen rect a cache of the node covers. A node
// painting only draw ops is sized to their union, anything else to its
// bounds. The area of its children is always included.
func (d *RenderNodeDrawable) contentRect() RectI {
	p := d.params
	own := p.Bounds
	if p.Background.A <= 0 && len(p.Content) > 0 {
		own = RectF{}
		for _, op := range p.Content {
			own = own.JoinRect(op.Rect)
		}
	}
	return mapRect(p.AbsMatrix, own).JoinRect(p.ChildrenRect)
}

func (d *RenderNodeDrawable) drawFromCache(ctx *DrawContext) bool {
	if ctx.DrawBlurForCache || ctx.GPU == nil || d.Policy() == DrawingCacheDisabled {
		return false
	}
	if d.CheckIfNeedUpdateCache(ctx) && !d.UpdateCacheSurface(ctx) {
		return false
	}
	img := d.GetCachedImage(ctx)
	if img == nil {
		return false
	}
	d.mu.Lock()
	at := d.cacheRect
	d.mu.Unlock()
	ctx.Canvas.DrawImage(img, at.Left, at.Top, 1)
	return true
}

// CheckIfNeedUpdateCache reports whether the cache must be re-rendered
// before use. A targeted cache that was re-rendered too often is disabled
// and dropped.
func (d *RenderNodeDrawable) CheckIfNeedUpdateCache(ctx *DrawContext) bool {
	want := d.contentRect()
	d.mu.Lock()
	if d.policy == DrawingCacheTargeted && ctx.MaxCacheUpdates > 0 && d.updateTimes >= ctx.MaxCacheUpdates {
		d.policy = DrawingCacheDisabled
		d.mu.Unlock()
		Logger().Debug("drawing cache disabled", "node", d.id, "updates", ctx.MaxCacheUpdates)
		d.ClearCachedSurface(ctx)
		return false
	}
	if d.policy == DrawingCacheDisabled {
		d.mu.Unlock()
		return false
	}
	sizeChanged := d.cachedSurface != nil &&
		(d.cacheRect.Width != want.Width || d.cacheRect.Height != want.Height)
	if sizeChanged {
		d.mu.Unlock()
		d.ClearCachedSurface(ctx)
		return true
	}
	need := d.updateTimes == 0 || d.cacheChanged || d.cachedImage == nil || d.cacheRect != want
	d.cacheChanged = false
	d.mu.Unlock()
	return need
}

// UpdateCacheSurface renders the node and its subtree into a new cache
// surface. On failure the cache is dropped and false is returned.
func (d *RenderNodeDrawable) UpdateCacheSurface(ctx *DrawContext) bool {
	rect := d.contentRect()
	format := ctx.Format
	if format == gputypes.TextureFormatUndefined {
		format = gputypes.TextureFormatRGBA8Unorm
	}
	surf, err := ctx.GPU.AllocateSurface(rect.Width, rect.Height, format)
	if err != nil {
		Logger().Warn("cache surface allocation failed", "node", d.id, "err", err)
		d.ClearCachedSurface(ctx)
		return false
	}

	sub := ctx.with(OffsetCanvas(surf.Canvas(), -rect.Left, -rect.Top))
	sub.DrawBlurForCache = true
	sub.IsOpDropped = false
	d.drawContent(sub.Canvas)
	d.drawChildren(sub, false)
	ctx.ProcessedNodeCount = sub.ProcessedNodeCount

	img, err := ctx.GPU.Snapshot(surf)
	if err != nil {
		Logger().Warn("cache snapshot failed", "node", d.id, "err", err)
		ctx.GPU.Release(surf)
		d.ClearCachedSurface(ctx)
		return false
	}

	d.mu.Lock()
	oldSurf, oldImg := d.cachedSurface, d.cachedImage
	d.cachedSurface = surf
	d.cachedImage = img
	d.cacheRect = rect
	d.cacheType = CacheContent
	d.updateTimes++
	d.cacheGPU = ctx.GPU
	d.cacheReleaser = ctx.Releaser
	d.mu.Unlock()

	if oldSurf != nil || oldImg != nil {
		gpu := ctx.GPU
		ctx.post(func() {
			if oldSurf != nil {
				gpu.Release(oldSurf)
			}
			releaseImage(oldImg)
		})
	}
	return true
}

// ClearCachedSurface drops the cache from any state. A release task is
// always posted, even when nothing was held.
func (d *RenderNodeDrawable) ClearCachedSurface(ctx *DrawContext) {
	d.mu.Lock()
	surf, img := d.cachedSurface, d.cachedImage
	d.cachedSurface = nil
	d.cachedImage = nil
	d.cacheRect = RectI{}
	d.cacheType = CacheNone
	d.mu.Unlock()

	gpu := ctx.GPU
	ctx.post(func() {
		if surf != nil && gpu != nil {
			gpu.Release(surf)
		}
		releaseImage(img)
	})
}

// GetCachedImage returns the cached image usable on ctx's GPU context. An
// image from another context is re-wrapped and the old handle released.
func (d *RenderNodeDrawable) GetCachedImage(ctx *DrawContext) Image {
	d.mu.Lock()
	img := d.cachedImage
	if img == nil || ctx.GPU == nil || img.ContextID() == ctx.GPU.ID() {
		d.mu.Unlock()
		return img
	}
	re := RewrapImage(img, ctx.GPU)
	d.cachedImage = re
	d.mu.Unlock()
	ctx.post(func() { releaseImage(img) })
	return re
}

// imageReleaser is implemented by images holding GPU memory.
type imageReleaser interface {
	Release()
}

func releaseImage(img Image) {
	if r, ok := img.(imageReleaser); ok {
		r.Release()
	}
}

// --- Clipped canvas ---

// clipCanvas drops everything outside clip.
type clipCanvas struct {
	Canvas
	clip RectI
}

// ClipCanvas returns c restricted to clip.
func ClipCanvas(c Canvas, clip RectI) Canvas {
	return &clipCanvas{Canvas: c, clip: clip}
}

func (c *clipCanvas) ClearRect(r RectI) {
	c.Canvas.ClearRect(r.IntersectRect(c.clip))
}

func (c *clipCanvas) FillRect(r RectI, col Color) {
	c.Canvas.FillRect(r.IntersectRect(c.clip), col)
}

func (c *clipCanvas) DrawImage(img Image, x, y int, alpha float64) {
	if img == nil {
		return
	}
	dst := RectI{x, y, img.Width(), img.Height()}
	vis := dst.IntersectRect(c.clip)
	if vis.IsEmpty() {
		return
	}
	if vis == dst {
		c.Canvas.DrawImage(img, x, y, alpha)
		return
	}
	src := img.RGBA()
	b := src.Bounds()
	sub := src.SubImage(image.Rect(
		b.Min.X+vis.Left-x, b.Min.Y+vis.Top-y,
		b.Min.X+vis.Right()-x, b.Min.Y+vis.Bottom()-y,
	)).(*image.RGBA)
	c.Canvas.DrawImage(&rgbaImage{ctx: img.ContextID(), img: sub}, vis.Left, vis.Top, alpha)
}
