package unirender

import (
	"image"
	"image/color"
	"testing"
)

// cacheScene builds a 100x100 display with canvas 2 at (10, 10, 20, 20)
// under the given cache policy, prepared and synced.
func cacheScene(t *testing.T, policy DrawingCacheType) (*Tree, *Visitor, *RenderNode) {
	t.Helper()
	tree := NewTree()
	tree.CreateDisplay(1, 0, 100, 100)
	n := tree.Create(NodeTypeCanvas, 2)
	n.SetBounds(10, 10, 20, 20)
	n.SetBackgroundColor(Color{1, 0, 0, 1})
	n.SetDrawingCacheType(policy)
	tree.AddChild(1, 2, -1)

	v := NewVisitor(tree, DefaultConfig())
	prepareFrame(t, v, tree, 1)
	return tree, v, n
}

// prepareFrame runs one prepare and sync of display 1.
func prepareFrame(t *testing.T, v *Visitor, tree *Tree, vsync uint64) {
	t.Helper()
	v.SetFrameInfo(vsync, 1)
	if !v.QuickPrepare(1) {
		t.Fatal("QuickPrepare failed")
	}
	SyncRenderParams(tree, 1)
}

// drawOnce draws the node's drawable onto a fresh 100x100 target and returns
// the pixel at (x, y).
func drawOnce(t *testing.T, gpu *SoftwareContext, d *RenderNodeDrawable, maxUpdates, x, y int) color.RGBA {
	t.Helper()
	target, err := gpu.AllocateSurface(100, 100, DefaultConfig().Cache.Format())
	if err != nil {
		t.Fatal(err)
	}
	defer gpu.Release(target)
	d.OnDraw(&DrawContext{Canvas: target.Canvas(), GPU: gpu, MaxCacheUpdates: maxUpdates})
	img, err := gpu.Snapshot(target)
	if err != nil {
		t.Fatal(err)
	}
	return img.RGBA().RGBAAt(x, y)
}

func TestOnGenerateKeepsDrawable(t *testing.T) {
	tree := NewTree()
	n := tree.Create(NodeTypeCanvas, 1)
	d := OnGenerate(n)
	if OnGenerate(n) != d {
		t.Error("OnGenerate should return the same drawable for a node")
	}
	if d.ID() != 1 {
		t.Errorf("drawable id = %v, want 1", d.ID())
	}

	video := tree.CreateSurface(2, "video", SurfaceSelfDrawing)
	if OnGenerate(video).UIFirst() != nil {
		t.Error("self-drawing surfaces should not carry a uifirst state")
	}
	leash := tree.CreateSurface(3, "leash", SurfaceLeashWindow)
	if OnGenerate(leash).UIFirst() == nil {
		t.Error("leash windows should carry a uifirst state")
	}
}

func TestRegisterDrawableReplacesGenerator(t *testing.T) {
	called := 0
	RegisterDrawable(NodeTypeEffect, func(n *RenderNode) *RenderNodeDrawable {
		called++
		return newRenderNodeDrawable(n)
	})
	defer RegisterDrawable(NodeTypeEffect, newRenderNodeDrawable)

	tree := NewTree()
	OnGenerate(tree.Create(NodeTypeEffect, 1))
	if called != 1 {
		t.Errorf("custom generator called %d times, want 1", called)
	}
}

func TestContentCacheDrawsCachedImage(t *testing.T) {
	_, _, n := cacheScene(t, DrawingCacheForced)
	gpu := NewSoftwareContext(0)
	d := n.drawable

	if got := drawOnce(t, gpu, d, 3, 15, 15); got != (color.RGBA{255, 0, 0, 255}) {
		t.Errorf("pixel = %v, want opaque red", got)
	}
	if d.CacheType() != CacheContent || d.UpdateTimes() != 1 {
		t.Fatalf("cache type %v, updates %d; want content, 1", d.CacheType(), d.UpdateTimes())
	}

	// Unchanged content reuses the cache.
	if got := drawOnce(t, gpu, d, 3, 15, 15); got != (color.RGBA{255, 0, 0, 255}) {
		t.Errorf("cached pixel = %v, want opaque red", got)
	}
	if d.UpdateTimes() != 1 {
		t.Errorf("UpdateTimes = %d, want 1", d.UpdateTimes())
	}
	if gpu.Live() != 1 {
		t.Errorf("Live = %d, want 1 (the cache surface)", gpu.Live())
	}
}

func TestTargetedCacheDemotesAfterMaxUpdates(t *testing.T) {
	tree, v, n := cacheScene(t, DrawingCacheTargeted)
	gpu := NewSoftwareContext(0)
	d := n.drawable

	colors := []Color{{1, 0, 0, 1}, {0, 1, 0, 1}, {0, 0, 1, 1}, {1, 1, 0, 1}}
	for i, c := range colors {
		if i > 0 {
			n.SetBackgroundColor(c)
			prepareFrame(t, v, tree, uint64(i+1))
		}
		drawOnce(t, gpu, d, 3, 15, 15)
	}

	if d.Policy() != DrawingCacheDisabled {
		t.Errorf("Policy = %v, want disabled after 3 updates", d.Policy())
	}
	if d.CacheType() != CacheNone {
		t.Errorf("CacheType = %v, want none", d.CacheType())
	}
	if d.UpdateTimes() != 3 {
		t.Errorf("UpdateTimes = %d, want 3", d.UpdateTimes())
	}
	if gpu.Live() != 0 {
		t.Errorf("Live = %d, want 0 after the cache was dropped", gpu.Live())
	}

	// Drawing still works without the cache.
	if got := drawOnce(t, gpu, d, 3, 15, 15); got != (color.RGBA{255, 255, 0, 255}) {
		t.Errorf("pixel = %v, want opaque yellow", got)
	}

	// A new policy starts counting again.
	n.SetDrawingCacheType(DrawingCacheTargeted)
	prepareFrame(t, v, tree, 10)
	if d.Policy() != DrawingCacheTargeted || d.UpdateTimes() != 0 {
		t.Errorf("after reset: policy %v, updates %d; want targeted, 0", d.Policy(), d.UpdateTimes())
	}
}

func TestCacheAllocationFailureDegradesToNone(t *testing.T) {
	_, _, n := cacheScene(t, DrawingCacheForced)
	gpu := NewSoftwareContext(0)
	d := n.drawable
	target, err := gpu.AllocateSurface(100, 100, DefaultConfig().Cache.Format())
	if err != nil {
		t.Fatal(err)
	}
	defer gpu.Release(target)

	gpu.FailAllocations(1)
	ctx := &DrawContext{Canvas: target.Canvas(), GPU: gpu, MaxCacheUpdates: 3}
	d.OnDraw(ctx)
	if d.CacheType() != CacheNone {
		t.Errorf("CacheType = %v, want none after a failed allocation", d.CacheType())
	}
	img, _ := gpu.Snapshot(target)
	if got := img.RGBA().RGBAAt(15, 15); got != (color.RGBA{255, 0, 0, 255}) {
		t.Errorf("pixel = %v, want opaque red drawn without the cache", got)
	}

	// The next frame caches normally.
	d.OnDraw(ctx)
	if d.CacheType() != CacheContent {
		t.Errorf("CacheType = %v, want content", d.CacheType())
	}
}

func TestRemovedNodeReleasesCache(t *testing.T) {
	tree, v, n := cacheScene(t, DrawingCacheForced)
	gpu := NewSoftwareContext(0)
	d := n.drawable
	drawOnce(t, gpu, d, 3, 15, 15)
	if gpu.Live() != 1 {
		t.Fatalf("Live = %d, want 1 (the cache surface)", gpu.Live())
	}

	tree.Remove(2)
	// Freed at the next sync, once the render goroutine is idle.
	prepareFrame(t, v, tree, 2)
	if d.CacheType() != CacheNone {
		t.Errorf("CacheType = %v, want none after removal", d.CacheType())
	}
	if gpu.Live() != 0 {
		t.Errorf("Live = %d, want 0 after removal", gpu.Live())
	}
}

func TestRetiredCachesReleasedThroughDispatcher(t *testing.T) {
	tree, _, n := cacheScene(t, DrawingCacheForced)
	gpu := NewSoftwareContext(0)
	r := NewReleaseDispatcher()
	target, err := gpu.AllocateSurface(100, 100, DefaultConfig().Cache.Format())
	if err != nil {
		t.Fatal(err)
	}
	defer gpu.Release(target)
	n.drawable.OnDraw(&DrawContext{Canvas: target.Canvas(), GPU: gpu, Releaser: r})

	tree.Remove(2)
	tree.ReleaseRetired()
	if r.Pending() != 1 {
		t.Errorf("Pending = %d, want 1 release task", r.Pending())
	}
	r.Drain()
	if gpu.Live() != 1 {
		t.Errorf("Live = %d, want 1 (only the target)", gpu.Live())
	}
}

func TestDisabledPolicyReleasesCache(t *testing.T) {
	tree, v, n := cacheScene(t, DrawingCacheForced)
	gpu := NewSoftwareContext(0)
	d := n.drawable
	drawOnce(t, gpu, d, 3, 15, 15)

	n.SetDrawingCacheType(DrawingCacheDisabled)
	prepareFrame(t, v, tree, 2)
	if d.Policy() != DrawingCacheDisabled {
		t.Fatalf("Policy = %v, want disabled", d.Policy())
	}
	if d.CacheType() != CacheNone {
		t.Errorf("CacheType = %v, want none", d.CacheType())
	}
	if gpu.Live() != 0 {
		t.Errorf("Live = %d, want 0", gpu.Live())
	}
}

func TestUIFirstDisabledDropsImage(t *testing.T) {
	tree := NewTree()
	tree.CreateDisplay(1, 0, 100, 100)
	leash := tree.CreateSurface(2, "leash", SurfaceLeashWindow)
	leash.SetBounds(0, 0, 100, 100)
	leash.SetUIFirstEnabled(true)
	tree.AddChild(1, 2, -1)
	v := NewVisitor(tree, DefaultConfig())
	prepareFrame(t, v, tree, 1)

	s := leash.drawable.UIFirst()
	img := &rgbaImage{img: image.NewRGBA(image.Rect(0, 0, 100, 100))}
	s.setCache(img, RectI{0, 0, 100, 100})
	if !s.TryClaim(0) || !s.MarkDone() {
		t.Fatal("could not publish the cache")
	}

	leash.SetUIFirstEnabled(false)
	prepareFrame(t, v, tree, 2)
	if got, _ := s.Cache(); got != nil {
		t.Error("image kept after uifirst was disabled")
	}
	if s.Status() != CacheWaiting {
		t.Errorf("Status = %v, want waiting", s.Status())
	}
}

func TestCacheSizedToDrawOps(t *testing.T) {
	tree := NewTree()
	tree.CreateDisplay(1, 0, 100, 100)
	n := tree.Create(NodeTypeCanvas, 2)
	n.SetBounds(10, 10, 40, 40)
	n.SetContent(DrawOp{Rect: RectF{5, 5, 10, 10}, Color: Color{1, 0, 0, 1}})
	n.SetDrawingCacheType(DrawingCacheForced)
	tree.AddChild(1, 2, -1)
	v := NewVisitor(tree, DefaultConfig())
	prepareFrame(t, v, tree, 1)

	gpu := NewSoftwareContext(0)
	d := n.drawable
	if got := drawOnce(t, gpu, d, 3, 20, 20); got != (color.RGBA{255, 0, 0, 255}) {
		t.Errorf("pixel = %v, want opaque red", got)
	}
	if got := drawOnce(t, gpu, d, 3, 12, 12); got.A != 0 {
		t.Errorf("pixel outside the ops = %v, want transparent", got)
	}
	if d.cachedSurface == nil {
		t.Fatal("no cache surface")
	}
	if w, h := d.cachedSurface.Width(), d.cachedSurface.Height(); w != 10 || h != 10 {
		t.Errorf("cache surface = %dx%d, want 10x10", w, h)
	}

	// A background makes the cache cover the bounds.
	n.SetBackgroundColor(ColorWhite)
	prepareFrame(t, v, tree, 2)
	drawOnce(t, gpu, d, 3, 20, 20)
	if w, h := d.cachedSurface.Width(), d.cachedSurface.Height(); w != 40 || h != 40 {
		t.Errorf("cache surface with background = %dx%d, want 40x40", w, h)
	}
}

func TestClearCachedSurfaceAlwaysPostsRelease(t *testing.T) {
	_, _, n := cacheScene(t, DrawingCacheForced)
	r := NewReleaseDispatcher()
	d := n.drawable

	d.ClearCachedSurface(&DrawContext{Releaser: r})
	if r.Pending() != 1 {
		t.Errorf("Pending = %d, want 1 even with nothing cached", r.Pending())
	}
	r.Drain()
}

func TestGetCachedImageRewrapsForeignContext(t *testing.T) {
	_, _, n := cacheScene(t, DrawingCacheForced)
	a := NewSoftwareContext(0)
	b := NewSoftwareContext(0)
	d := n.drawable
	drawOnce(t, a, d, 3, 0, 0)

	img := d.GetCachedImage(&DrawContext{GPU: b})
	if img == nil || img.ContextID() != b.ID() {
		t.Fatalf("image = %v, want one owned by context %d", img, b.ID())
	}
	if again := d.GetCachedImage(&DrawContext{GPU: b}); again != img {
		t.Error("a rewrapped image should be kept for later frames")
	}
}

func TestOpDroppedSkipsCleanNodes(t *testing.T) {
	tree := NewTree()
	tree.CreateDisplay(1, 0, 100, 100)
	for i, x := range []float64{0, 60} {
		id := NodeID(i + 2)
		c := tree.Create(NodeTypeCanvas, id)
		c.SetBounds(x, 0, 20, 20)
		c.SetBackgroundColor(ColorWhite)
		tree.AddChild(1, id, -1)
	}
	v := NewVisitor(tree, DefaultConfig())
	prepareFrame(t, v, tree, 1)

	frame := &RenderThreadParams{
		PartialRenderEnabled: true,
		DirtyRects:           []RectI{{0, 0, 30, 30}},
	}
	gpu := NewSoftwareContext(0)
	target, _ := gpu.AllocateSurface(100, 100, DefaultConfig().Cache.Format())
	defer gpu.Release(target)
	ctx := &DrawContext{Canvas: target.Canvas(), GPU: gpu, Frame: frame, IsOpDropped: true}
	tree.Node(1).drawable.Draw(ctx)

	// Display and the node under the dirty rect.
	if ctx.ProcessedNodeCount != 2 {
		t.Errorf("ProcessedNodeCount = %d, want 2", ctx.ProcessedNodeCount)
	}
}

// hwcDrawScene builds a display with an app window and a hwc-enabled
// self-drawing child whose buffer is red.
func hwcDrawScene(t *testing.T) *Tree {
	t.Helper()
	tree := NewTree()
	tree.CreateDisplay(1, 0, 100, 100)
	win := tree.CreateSurface(2, "app", SurfaceAppWindow)
	win.SetBounds(0, 0, 100, 100)
	win.SetBackgroundColor(ColorWhite)
	tree.AddChild(1, 2, -1)
	video := tree.CreateSurface(3, "video", SurfaceSelfDrawing)
	video.SetBounds(20, 20, 40, 40)
	video.SetBuffer(&Buffer{Width: 40, Height: 40, Seq: 1, Color: Color{1, 0, 0, 1}})
	tree.AddChild(2, 3, -1)

	v := NewVisitor(tree, DefaultConfig())
	prepareFrame(t, v, tree, 1)
	if !video.Surface().IsHwcEnabled() {
		t.Fatalf("video should be hwc enabled, reason %v", video.Surface().HwcDisableReason())
	}
	return tree
}

func TestHwcSurfaceLeavesHole(t *testing.T) {
	tree := hwcDrawScene(t)
	gpu := NewSoftwareContext(0)
	target, _ := gpu.AllocateSurface(100, 100, DefaultConfig().Cache.Format())
	defer gpu.Release(target)

	tree.Node(1).drawable.Draw(&DrawContext{Canvas: target.Canvas(), GPU: gpu})
	img, _ := gpu.Snapshot(target)
	px := img.RGBA()
	if got := px.RGBAAt(40, 40); got.A != 0 {
		t.Errorf("overlay area = %v, want transparent", got)
	}
	if got := px.RGBAAt(5, 5); got != (color.RGBA{255, 255, 255, 255}) {
		t.Errorf("window area = %v, want white", got)
	}
}

func TestCaptureDrawsHwcBuffers(t *testing.T) {
	tree := hwcDrawScene(t)
	gpu := NewSoftwareContext(0)

	img, err := captureFrame(tree.Node(1).drawable, gpu, 100, 100)
	if err != nil {
		t.Fatalf("captureFrame: %v", err)
	}
	if IsCapturing() {
		t.Error("capture flag should be cleared after the capture")
	}
	if got := img.RGBAAt(40, 40); got != (color.RGBA{255, 0, 0, 255}) {
		t.Errorf("overlay area = %v, want the red buffer", got)
	}
	if got := img.RGBAAt(5, 5); got != (color.RGBA{255, 255, 255, 255}) {
		t.Errorf("window area = %v, want white", got)
	}
	if gpu.Live() != 0 {
		t.Errorf("Live = %d, want 0", gpu.Live())
	}
}
