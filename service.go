package unirender

import (
	"context"
	"errors"
	"image"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// Service is the top-level compositor. It owns the node tree and runs the
// frame pipeline: RunFrame prepares every display on the calling goroutine
// and hands the frame to the render goroutine, which draws it and submits
// the layer list to the backend.
type Service struct {
	cfg        Config
	tree       *Tree
	visitor    *Visitor
	backend    Backend
	gpu        GPUContext
	releaser   *ReleaseDispatcher
	subThreads *SubThreadManager
	animator   PropertyAnimator

	// CaptureDir is the directory capture PNGs are written to.
	CaptureDir string

	frames   atomic.Uint64
	vsync    uint64
	lastTick time.Time

	mu           sync.Mutex
	captureQueue []string
	captured     []string
	lastFrames   map[NodeID]*image.RGBA

	// Owned by the render goroutine.
	targets map[NodeID]Surface
	carry   map[NodeID][]RectI

	frameCh chan []*RenderThreadParams
	busy    sync.WaitGroup
	group   *errgroup.Group
	started bool
}

// NewService creates a service that draws tree on gpu and submits to
// backend. The tree may already hold displays and windows.
func NewService(cfg Config, tree *Tree, backend Backend, gpu GPUContext) *Service {
	s := &Service{
		cfg:        cfg,
		tree:       tree,
		visitor:    NewVisitor(tree, cfg),
		backend:    backend,
		gpu:        gpu,
		releaser:   NewReleaseDispatcher(),
		CaptureDir: "screenshots",
		lastFrames: make(map[NodeID]*image.RGBA),
		targets:    make(map[NodeID]Surface),
		carry:      make(map[NodeID][]RectI),
	}
	s.visitor.SetPrevalidator(backend)
	if cfg.UIFirst.Enabled {
		s.subThreads = NewSubThreadManager(context.Background(), cfg.UIFirst.Workers, gpu, cfg.Cache.Format())
	}
	return s
}

// Tree returns the service's node tree.
func (s *Service) Tree() *Tree { return s.tree }

// Visitor returns the prepare visitor.
func (s *Service) Visitor() *Visitor { return s.visitor }

// Animator returns the property animator advanced by RunFrame.
func (s *Service) Animator() *PropertyAnimator { return &s.animator }

// Releaser returns the dispatcher that frees GPU resources off the render
// goroutine.
func (s *Service) Releaser() *ReleaseDispatcher { return s.releaser }

// SetVisibilityCallback sets the receiver of window visibility changes.
func (s *Service) SetVisibilityCallback(cb VisibilityCallback) {
	s.visitor.SetVisibilityCallback(cb)
}

// Frames returns the number of frames prepared so far.
func (s *Service) Frames() uint64 { return s.frames.Load() }

// Capture queues a screenshot of the next rendered frame. The PNG is
// written to CaptureDir with label in its file name.
func (s *Service) Capture(label string) {
	s.mu.Lock()
	s.captureQueue = append(s.captureQueue, label)
	s.mu.Unlock()
}

// Captured returns the paths of every capture written so far.
func (s *Service) Captured() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.captured)
}

// LastFrame returns a copy of the last image rendered for the display, or
// nil if none was rendered yet.
func (s *Service) LastFrame(display NodeID) *image.RGBA {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastFrames[display]
}

// Start launches the render goroutine and the release dispatcher. Without
// Start, RunFrame renders inline.
func (s *Service) Start(ctx context.Context) {
	if s.started {
		return
	}
	s.started = true
	s.releaser.Start()
	s.frameCh = make(chan []*RenderThreadParams, 1)
	g, gctx := errgroup.WithContext(ctx)
	s.group = g
	g.Go(func() error {
		for frame := range s.frameCh {
			s.renderFrame(gctx, frame)
			s.busy.Done()
		}
		return nil
	})
	Logger().Info("service started", "displays", len(s.tree.Displays()))
}

// Stop waits for the in-flight frame, stops the render goroutine and drains
// pending releases.
func (s *Service) Stop() error {
	var err error
	if s.started {
		close(s.frameCh)
		err = s.group.Wait()
		s.started = false
	}
	for id, t := range s.targets {
		s.gpu.Release(t)
		delete(s.targets, id)
	}
	s.tree.ReleaseRetired()
	s.releaser.Close()
	Logger().Info("service stopped", "frames", s.frames.Load())
	return err
}

// RunFrame advances animations, prepares every display and hands the frame
// to the render goroutine. Render params are synced only after the previous
// frame finished drawing.
func (s *Service) RunFrame(now time.Time) error {
	var dt float32
	if !s.lastTick.IsZero() {
		dt = float32(now.Sub(s.lastTick).Seconds())
	}
	s.lastTick = now
	s.animator.Update(dt)

	s.vsync++
	s.visitor.SetFrameInfo(s.vsync, s.backend.BufferAge())
	captures := s.takeCaptures()

	var prepared []NodeID
	for _, id := range s.tree.Displays() {
		if s.visitor.QuickPrepare(id) {
			prepared = append(prepared, id)
		}
	}
	if len(prepared) == 0 {
		return ErrNoDisplay
	}

	s.busy.Wait()
	frame := make([]*RenderThreadParams, 0, len(prepared))
	for _, id := range prepared {
		d := s.tree.nodes[id]
		SyncRenderParams(s.tree, id)
		rp := s.visitor.buildRenderThreadParams(d, now)
		rp.Layers = NewComposer(d.display, s.cfg.Backend.Mode()).BuildLayers(s.tree, d)
		rp.Captures, captures = captures, nil
		s.submitUIFirst(rp)
		frame = append(frame, rp.Sync())
	}
	s.frames.Add(1)

	if !s.started {
		s.renderFrame(context.Background(), frame)
		s.releaser.Drain()
		return nil
	}
	s.busy.Add(1)
	s.frameCh <- frame
	return nil
}

func (s *Service) takeCaptures() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := s.captureQueue
	s.captureQueue = nil
	return q
}

// submitUIFirst hands the window caches of the frame to the sub-thread
// workers.
func (s *Service) submitUIFirst(rp *RenderThreadParams) {
	if s.subThreads == nil {
		return
	}
	for _, id := range rp.UIFirstNodes {
		n := s.tree.nodes[id]
		if n == nil || n.drawable == nil || n.drawable.uifirst == nil {
			continue
		}
		if n.drawable.uifirst.NeedSubmit() {
			s.subThreads.Submit(n.drawable)
		}
	}
}

// renderFrame draws and submits one frame. It runs on the render goroutine.
func (s *Service) renderFrame(ctx context.Context, frame []*RenderThreadParams) {
	for _, rp := range frame {
		s.renderDisplay(ctx, rp)
	}
	if s.subThreads != nil {
		if err := s.subThreads.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			Logger().Warn("uifirst workers failed", "err", err)
		}
	}
}

func (s *Service) renderDisplay(ctx context.Context, rp *RenderThreadParams) {
	if carried := s.carry[rp.DisplayID]; len(carried) > 0 {
		rp.DirtyRects = append(rp.DirtyRects, carried...)
		delete(s.carry, rp.DisplayID)
	}

	if _, err := AcquireReadyBuffer(ctx, s.backend, s.cfg.Backend.Timeout()); err != nil {
		Logger().Warn("frame dropped", "vsync", rp.Vsync, "display", rp.DisplayID, "err", err)
		s.carry[rp.DisplayID] = rp.DirtyRects
		s.serveCaptures(rp)
		return
	}

	target, err := s.target(rp)
	if err != nil {
		Logger().Warn("render target unavailable", "display", rp.DisplayID, "err", err)
		s.carry[rp.DisplayID] = rp.DirtyRects
		return
	}

	dc := &DrawContext{
		GPU:             s.gpu,
		Releaser:        s.releaser,
		Frame:           rp,
		Format:          s.cfg.Cache.Format(),
		MaxCacheUpdates: s.cfg.Cache.MaxUpdateTimes,
		UIFirstTimeout:  s.cfg.UIFirst.Timeout(),
		IsOpDropped:     rp.OpDropped,
	}
	canvas := target.Canvas()
	if rp.PartialRenderEnabled {
		for _, r := range rp.DirtyRects {
			dc.Canvas = ClipCanvas(canvas, r)
			dc.Canvas.ClearRect(r)
			rp.Root.Draw(dc)
		}
	} else {
		canvas.Clear(ColorTransparent)
		dc.Canvas = canvas
		rp.Root.Draw(dc)
	}
	Logger().Debug("frame rendered",
		"vsync", rp.Vsync,
		"display", rp.DisplayID,
		"dirty_rects", len(rp.DirtyRects),
		"processed_nodes", dc.ProcessedNodeCount,
		"layers", len(rp.Layers),
	)

	s.serveCaptures(rp)

	if img, err := s.gpu.Snapshot(target); err == nil {
		s.mu.Lock()
		s.lastFrames[rp.DisplayID] = img.RGBA()
		s.mu.Unlock()
		releaseImage(img)
	}

	if err := s.backend.Submit(rp.Layers); err != nil {
		Logger().Warn("submit failed", "vsync", rp.Vsync, "err", err)
	}
}

// target returns the display's render target, reallocating it when the
// display size changed.
func (s *Service) target(rp *RenderThreadParams) (Surface, error) {
	t := s.targets[rp.DisplayID]
	if t != nil && t.Width() == rp.Width && t.Height() == rp.Height {
		return t, nil
	}
	nt, err := s.gpu.AllocateSurface(rp.Width, rp.Height, s.cfg.Cache.Format())
	if err != nil {
		return nil, err
	}
	if t != nil {
		gpu := s.gpu
		s.releaser.Post(func() { gpu.Release(t) })
	}
	s.targets[rp.DisplayID] = nt
	// A new target holds nothing; draw it whole.
	rp.DirtyRects = []RectI{{0, 0, rp.Width, rp.Height}}
	return nt, nil
}

// serveCaptures writes the captures requested for this frame.
func (s *Service) serveCaptures(rp *RenderThreadParams) {
	if len(rp.Captures) == 0 || rp.Root == nil {
		return
	}
	img, err := captureFrame(rp.Root, s.gpu, rp.Width, rp.Height)
	if err != nil {
		Logger().Warn("capture failed", "err", err)
		return
	}
	paths, err := writeCaptures(s.CaptureDir, rp.Captures, img)
	if err != nil {
		Logger().Warn("capture write failed", "err", err)
	}
	s.mu.Lock()
	s.captured = append(s.captured, paths...)
	s.mu.Unlock()
}
