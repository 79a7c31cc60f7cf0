// Package unirender is the core of a unified render service: a compositor
// that turns a tree of render nodes into composed frames for one or more
// displays.
//
// # Quick start
//
// Build a tree, wrap it in a [Service] and drive it one frame at a time:
//
//	tree := unirender.NewTree()
//	tree.CreateDisplay(1, 0, 1080, 1920)
//	win := tree.CreateSurface(2, "app", unirender.SurfaceAppWindow)
//	win.SetBounds(0, 0, 1080, 1920)
//	win.SetBackgroundColor(unirender.ColorWhite)
//	tree.AddChild(1, 2, -1)
//
//	svc := unirender.NewService(unirender.DefaultConfig(), tree,
//		unirender.NewMemoryBackend(1080, 1920), unirender.NewSoftwareContext(0))
//	svc.Start(ctx)
//	defer svc.Stop()
//	svc.RunFrame(time.Now())
//
// # Frame pipeline
//
// [Visitor.QuickPrepare] walks a display's subtree on the main goroutine. It
// computes geometry and per-window dirty regions, runs occlusion front to
// back, decides which self-drawing layers go to a hardware overlay, and
// aggregates the display dirty region, including background filters that
// must be redrawn because something below them changed.
//
// [SyncRenderParams] then commits each node's prepared state to its
// [RenderNodeDrawable]. The render goroutine only ever reads drawables, so
// the two goroutines share nothing while a frame draws.
//
// The render goroutine draws the dirty rects through the drawables, using
// per-node content caches and window caches rendered by sub-thread workers,
// and submits the layer list built by the [Composer] to the [Backend].
//
// # Configuration
//
// [LoadConfig] reads a TOML file. [DefaultConfig] returns the built-in
// values; zero fields in a file keep them.
//
// # Logging
//
// The package logs through log/slog. It is silent until [SetLogger] is
// called.
package unirender
