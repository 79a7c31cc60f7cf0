package unirender

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogpu/gputypes"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// CacheProcessStatus is the progress of a window's sub-thread cache.
type CacheProcessStatus int32

const (
	// CacheWaiting: no valid cache and no worker assigned.
	CacheWaiting CacheProcessStatus = iota
	// CacheDoing: a worker is rendering the cache.
	CacheDoing
	// CacheDone: the cache is valid.
	CacheDone
)

func (s CacheProcessStatus) String() string {
	switch s {
	case CacheWaiting:
		return "waiting"
	case CacheDoing:
		return "doing"
	case CacheDone:
		return "done"
	default:
		return fmt.Sprintf("CacheProcessStatus(%d)", int32(s))
	}
}

// uifirstPollInterval is how often WaitDone rechecks the status.
const uifirstPollInterval = time.Millisecond

// UIFirstState tracks a window rendered off the render goroutine. Status
// changes only through the named transitions, each a single compare-and-swap.
type UIFirstState struct {
	status         atomic.Int32
	needSubmit     atomic.Bool
	submittedIndex atomic.Int32

	mu    sync.Mutex
	image Image
	rect  RectI
}

// newUIFirstState returns a state with no cache that asks for a worker.
func newUIFirstState() *UIFirstState {
	s := &UIFirstState{}
	s.needSubmit.Store(true)
	return s
}

// Status returns the current status.
func (s *UIFirstState) Status() CacheProcessStatus {
	return CacheProcessStatus(s.status.Load())
}

// TryClaim moves WAITING to DOING for worker thread. Reports false from any
// other status.
func (s *UIFirstState) TryClaim(thread int) bool {
	if !s.status.CompareAndSwap(int32(CacheWaiting), int32(CacheDoing)) {
		return false
	}
	s.submittedIndex.Store(int32(thread))
	s.needSubmit.Store(false)
	return true
}

// MarkDone moves DOING to DONE. It fails when the state was reset while the
// worker ran, so a stale result is never published as valid.
func (s *UIFirstState) MarkDone() bool {
	return s.status.CompareAndSwap(int32(CacheDoing), int32(CacheDone))
}

// Skip moves DOING back to WAITING after a worker failure. The cache is
// resubmitted on the next frame.
func (s *UIFirstState) Skip() bool {
	if !s.status.CompareAndSwap(int32(CacheDoing), int32(CacheWaiting)) {
		return false
	}
	s.needSubmit.Store(true)
	return true
}

// Reset invalidates the cache from any status.
func (s *UIFirstState) Reset() {
	s.status.Store(int32(CacheWaiting))
	s.needSubmit.Store(true)
}

// NeedSubmit reports whether the cache was invalidated since the last claim.
func (s *UIFirstState) NeedSubmit() bool { return s.needSubmit.Load() }

// SubmittedIndex returns the worker that last claimed the state.
func (s *UIFirstState) SubmittedIndex() int { return int(s.submittedIndex.Load()) }

// WaitDone polls until the status is DONE or timeout elapses. It returns
// at once when no worker holds the state.
func (s *UIFirstState) WaitDone(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		switch s.Status() {
		case CacheDone:
			return true
		case CacheWaiting:
			return false
		}
		if !time.Now().Before(deadline) {
			Logger().Warn("uifirst wait timed out", "timeout", timeout)
			return false
		}
		time.Sleep(uifirstPollInterval)
	}
}

func (s *UIFirstState) setCache(img Image, rect RectI) (old Image) {
	s.mu.Lock()
	defer s.mu.Unlock()
	old = s.image
	s.image = img
	s.rect = rect
	return old
}

// Cache returns the cached image and its screen rect.
func (s *UIFirstState) Cache() (Image, RectI) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.image, s.rect
}

// newSurfaceDrawable creates the drawable of a surface node. Leash and main
// windows can be cached off the render goroutine.
func newSurfaceDrawable(n *RenderNode) *RenderNodeDrawable {
	d := newRenderNodeDrawable(n)
	if n.surface != nil && n.surface.Type.IsLeashOrMainWindow() {
		d.uifirst = newUIFirstState()
	}
	return d
}

// drawUIFirstCache draws the sub-thread cache, waiting a bounded time for a
// worker still rendering it. Reports false when the caller must draw the
// window itself.
func (d *RenderNodeDrawable) drawUIFirstCache(ctx *DrawContext) bool {
	s := d.uifirst
	if s.Status() == CacheDoing {
		timeout := ctx.UIFirstTimeout
		if timeout <= 0 {
			timeout = defaultWaitTimeout
		}
		s.WaitDone(timeout)
	}
	if s.Status() != CacheDone {
		return false
	}
	img, rect := s.Cache()
	if img == nil {
		return false
	}
	ctx.Canvas.DrawImage(img, rect.Left, rect.Top, 1)
	return true
}

// updateUIFirstStates invalidates the sub-thread cache of every window
// touched by this frame's dirty.
func (v *Visitor) updateUIFirstStates(d *RenderNode) {
	dirty := d.display.dm.CurrentFrameDirtyRects()
	for _, id := range d.display.curAllSurfaces {
		n := v.tree.nodes[id]
		if n.drawable == nil || n.drawable.uifirst == nil {
			continue
		}
		s := n.drawable.uifirst
		if !n.surface.uifirstEnabled {
			continue
		}
		if intersectsAny(n.surface.dstRect, dirty) || n.surface.zorderChanged {
			s.Reset()
		}
	}
}

// --- SubThreadManager ---

// SubThreadManager renders window caches on a bounded pool of workers.
type SubThreadManager struct {
	gpu     GPUContext
	format  gputypes.TextureFormat
	sem     *semaphore.Weighted
	workers int
	next    atomic.Int32

	mu    sync.Mutex
	group *errgroup.Group
	gctx  context.Context
	base  context.Context
}

// NewSubThreadManager creates a manager with the given number of workers.
// Caches are allocated on gpu.
func NewSubThreadManager(ctx context.Context, workers int, gpu GPUContext, format gputypes.TextureFormat) *SubThreadManager {
	if workers < 1 {
		workers = 1
	}
	m := &SubThreadManager{
		gpu:     gpu,
		format:  format,
		sem:     semaphore.NewWeighted(int64(workers)),
		workers: workers,
		base:    ctx,
	}
	m.group, m.gctx = errgroup.WithContext(ctx)
	return m
}

// Submit claims d's cache and renders it on a worker. Reports false when
// the drawable has no sub-thread cache or it is not WAITING.
func (m *SubThreadManager) Submit(d *RenderNodeDrawable) bool {
	s := d.uifirst
	if s == nil {
		return false
	}
	thread := int(m.next.Add(1)-1) % m.workers
	if !s.TryClaim(thread) {
		return false
	}
	m.mu.Lock()
	g, gctx := m.group, m.gctx
	m.mu.Unlock()

	g.Go(func() error {
		if err := m.sem.Acquire(gctx, 1); err != nil {
			s.Skip()
			return err
		}
		defer m.sem.Release(1)
		if err := m.render(d); err != nil {
			Logger().Warn("uifirst render failed", "node", d.id, "err", err)
			s.Skip()
			return nil
		}
		s.MarkDone()
		return nil
	})
	return true
}

// render draws d's subtree into a new image and publishes it.
func (m *SubThreadManager) render(d *RenderNodeDrawable) error {
	rect := d.contentRect()
	surf, err := m.gpu.AllocateSurface(rect.Width, rect.Height, m.format)
	if err != nil {
		return fmt.Errorf("uifirst %v: %w", d.id, err)
	}
	defer m.gpu.Release(surf)

	dc := &DrawContext{
		Canvas:           OffsetCanvas(surf.Canvas(), -rect.Left, -rect.Top),
		GPU:              m.gpu,
		Format:           m.format,
		DrawBlurForCache: true,
	}
	d.drawContent(dc.Canvas)
	d.drawChildren(dc, false)

	img, err := m.gpu.Snapshot(surf)
	if err != nil {
		return fmt.Errorf("uifirst %v: %w", d.id, err)
	}
	releaseImage(d.uifirst.setCache(img, rect))
	return nil
}

// Wait blocks until every submitted task finished and prepares the manager
// for the next batch. It returns the first worker error.
func (m *SubThreadManager) Wait() error {
	m.mu.Lock()
	g := m.group
	m.group, m.gctx = errgroup.WithContext(m.base)
	m.mu.Unlock()
	return g.Wait()
}
