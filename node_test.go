package unirender

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func expectPanic(t *testing.T, substr string, fn func()) {
	t.Helper()
	defer func() {
		t.Helper()
		r := recover()
		if r == nil {
			t.Fatalf("expected panic containing %q, got none", substr)
		}
		if msg := fmt.Sprint(r); !strings.Contains(msg, substr) {
			t.Errorf("panic %q does not contain %q", msg, substr)
		}
	}()
	fn()
}

// --- Tree construction ---

func TestCreateDefaults(t *testing.T) {
	tree := NewTree()
	n := tree.Create(NodeTypeCanvas, 7)
	if n.ID() != 7 || n.Type() != NodeTypeCanvas {
		t.Errorf("node = %v", n)
	}
	if !n.IsDirty() {
		t.Error("new node should be dirty")
	}
	if !n.ShouldPaint() {
		t.Error("new node should paint")
	}
	if n.Parent() != nil {
		t.Error("new node should be detached")
	}
	if n.Surface() != nil || n.Display() != nil {
		t.Error("canvas node should carry no per-kind data")
	}
	if tree.Len() != 1 {
		t.Errorf("Len = %d, want 1", tree.Len())
	}
}

func TestCreateInvalidIDPanics(t *testing.T) {
	tree := NewTree()
	expectPanic(t, "non-zero", func() { tree.Create(NodeTypeCanvas, InvalidNodeID) })
}

func TestCreateDuplicateIDPanics(t *testing.T) {
	tree := NewTree()
	tree.Create(NodeTypeCanvas, 1)
	expectPanic(t, "duplicate", func() { tree.Create(NodeTypeCanvas, 1) })
}

func TestCreateSurfaceAndDisplay(t *testing.T) {
	tree := NewTree()
	d := tree.CreateDisplay(1, 3, 1080, 1920)
	s := tree.CreateSurface(2, "app", SurfaceSelfDrawing)
	if d.Display() == nil || d.Display().ScreenRect() != (RectI{0, 0, 1080, 1920}) {
		t.Errorf("display data = %+v", d.Display())
	}
	if s.Surface() == nil || s.Surface().Type != SurfaceSelfDrawing {
		t.Errorf("surface data = %+v", s.Surface())
	}
	if got := tree.Displays(); len(got) != 1 || got[0] != 1 {
		t.Errorf("Displays = %v, want [1]", got)
	}
}

func TestLookupUnknown(t *testing.T) {
	tree := NewTree()
	if _, err := tree.Lookup(42); !errors.Is(err, ErrNodeNotFound) {
		t.Errorf("Lookup error = %v, want ErrNodeNotFound", err)
	}
	if tree.Node(42) != nil {
		t.Error("Node should return nil for unknown ids")
	}
}

// --- AddChild / RemoveChild ---

func TestAddChildBasic(t *testing.T) {
	tree := NewTree()
	tree.Create(NodeTypeCanvas, 1)
	c := tree.Create(NodeTypeCanvas, 2)
	tree.AddChild(1, 2, -1)
	if c.Parent() == nil || c.Parent().ID() != 1 {
		t.Errorf("parent = %v, want node 1", c.Parent())
	}
	if got := tree.Node(1).Children(); len(got) != 1 || got[0] != 2 {
		t.Errorf("children = %v, want [2]", got)
	}
}

func TestAddChildAtIndex(t *testing.T) {
	tree := NewTree()
	tree.Create(NodeTypeCanvas, 1)
	for id := NodeID(2); id <= 4; id++ {
		tree.Create(NodeTypeCanvas, id)
	}
	tree.AddChild(1, 2, -1)
	tree.AddChild(1, 3, -1)
	tree.AddChild(1, 4, 1)
	want := []NodeID{2, 4, 3}
	got := tree.Node(1).Children()
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("children = %v, want %v", got, want)
		}
	}
	tree.Create(NodeTypeCanvas, 5)
	expectPanic(t, "out of range", func() { tree.AddChild(1, 5, 9) })
}

func TestAddChildReparent(t *testing.T) {
	tree := NewTree()
	tree.Create(NodeTypeCanvas, 1)
	tree.Create(NodeTypeCanvas, 2)
	tree.Create(NodeTypeCanvas, 3)
	tree.AddChild(1, 3, -1)
	tree.AddChild(2, 3, -1)
	if tree.Node(1).NumChildren() != 0 {
		t.Error("old parent should lose the child")
	}
	if tree.Node(3).Parent().ID() != 2 {
		t.Error("child should move to the new parent")
	}
}

func TestAddChildSelfPanic(t *testing.T) {
	tree := NewTree()
	tree.Create(NodeTypeCanvas, 1)
	expectPanic(t, "itself", func() { tree.AddChild(1, 1, -1) })
}

func TestAddChildCyclePanic(t *testing.T) {
	tree := NewTree()
	tree.Create(NodeTypeCanvas, 1)
	tree.Create(NodeTypeCanvas, 2)
	tree.Create(NodeTypeCanvas, 3)
	tree.AddChild(1, 2, -1)
	tree.AddChild(2, 3, -1)
	expectPanic(t, "cycle", func() { tree.AddChild(3, 1, -1) })
}

func TestAddChildDisplayPanic(t *testing.T) {
	tree := NewTree()
	tree.Create(NodeTypeCanvas, 1)
	tree.CreateDisplay(2, 0, 10, 10)
	expectPanic(t, "display", func() { tree.AddChild(1, 2, -1) })
}

func TestAddChildUnknownPanic(t *testing.T) {
	tree := NewTree()
	tree.Create(NodeTypeCanvas, 1)
	expectPanic(t, "not found", func() { tree.AddChild(1, 99, -1) })
}

func TestRemoveChildWrongParentPanic(t *testing.T) {
	tree := NewTree()
	tree.Create(NodeTypeCanvas, 1)
	tree.Create(NodeTypeCanvas, 2)
	tree.Create(NodeTypeCanvas, 3)
	tree.AddChild(1, 2, -1)
	expectPanic(t, "not this node", func() { tree.RemoveChild(3, 2) })
}

func TestRemoveChildRecordsFootprint(t *testing.T) {
	tree := NewTree()
	p := tree.Create(NodeTypeCanvas, 1)
	c := tree.Create(NodeTypeCanvas, 2)
	tree.AddChild(1, 2, -1)
	c.SetBounds(10, 10, 20, 20)

	dm := newTestDirtyManager(100, 100)
	p.Update(dm, nil, false, false, RectI{})
	c.Update(dm, p, false, false, RectI{})

	tree.RemoveChild(1, 2)
	if c.Parent() != nil {
		t.Error("removed child should be detached")
	}
	if !p.IsSubTreeDirty() {
		t.Error("parent should have a dirty subtree")
	}

	dm.Clear()
	p.MergeRemovedChildDirtyRegion(dm)
	if got := dm.CurrentFrameDirtyRegion(); got != (RectI{10, 10, 20, 20}) {
		t.Errorf("removed child dirty = %v, want [10 10 20 20]", got)
	}

	// Merged once only.
	dm.Clear()
	p.MergeRemovedChildDirtyRegion(dm)
	if dm.IsCurrentFrameDirty() {
		t.Error("removed child dirty merged twice")
	}

	// Re-attaching does not replay the old footprint.
	tree.AddChild(1, 2, -1)
	if c.OldDirty() != (RectI{}) {
		t.Errorf("re-attached child OldDirty = %v, want empty", c.OldDirty())
	}
}

func TestRemoveDestroysSubtree(t *testing.T) {
	tree := NewTree()
	tree.Create(NodeTypeCanvas, 1)
	mid := tree.Create(NodeTypeCanvas, 2)
	leaf := tree.Create(NodeTypeCanvas, 3)
	tree.AddChild(1, 2, -1)
	tree.AddChild(2, 3, -1)

	var cleared []NodeID
	mid.RegisterClearCallback(func() { cleared = append(cleared, 2) })
	leaf.RegisterClearCallback(func() { cleared = append(cleared, 3) })

	tree.Remove(2)
	if !mid.IsDisposed() || !leaf.IsDisposed() {
		t.Error("removed subtree should be disposed")
	}
	if tree.Len() != 1 {
		t.Errorf("Len = %d, want 1", tree.Len())
	}
	if len(cleared) != 2 || cleared[0] != 3 || cleared[1] != 2 {
		t.Errorf("clear callbacks = %v, want [3 2]", cleared)
	}
	tree.Remove(2) // unknown ids are ignored
}

func TestRemoveRetiresDrawables(t *testing.T) {
	tree := NewTree()
	tree.Create(NodeTypeCanvas, 1)
	mid := tree.Create(NodeTypeCanvas, 2)
	tree.Create(NodeTypeCanvas, 3)
	tree.AddChild(1, 2, -1)
	tree.AddChild(2, 3, -1)
	SyncRenderParams(tree, 1)
	d := mid.drawable

	tree.Remove(2)
	if mid.drawable != nil {
		t.Error("destroyed node should drop its drawable")
	}
	if len(tree.retired) != 2 || tree.retired[1] != d {
		t.Fatalf("retired = %d drawables, want the leaf then the removed node", len(tree.retired))
	}
	tree.ReleaseRetired()
	if len(tree.retired) != 0 {
		t.Errorf("retired = %d after release, want 0", len(tree.retired))
	}
}

func TestRemoveDisplay(t *testing.T) {
	tree := NewTree()
	tree.CreateDisplay(1, 0, 10, 10)
	tree.CreateDisplay(2, 1, 10, 10)
	tree.Remove(1)
	if got := tree.Displays(); len(got) != 1 || got[0] != 2 {
		t.Errorf("Displays = %v, want [2]", got)
	}
}

func TestWalkPreOrder(t *testing.T) {
	tree := NewTree()
	for id := NodeID(1); id <= 5; id++ {
		tree.Create(NodeTypeCanvas, id)
	}
	tree.AddChild(1, 2, -1)
	tree.AddChild(2, 3, -1)
	tree.AddChild(1, 4, -1)
	tree.AddChild(4, 5, -1)

	var order []NodeID
	tree.Walk(1, func(n *RenderNode) bool {
		order = append(order, n.ID())
		return n.ID() != 4 // skip 4's children
	})
	want := []NodeID{1, 2, 3, 4}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

// --- Dirty flags ---

func TestDirtyPropagationOnAddChild(t *testing.T) {
	tree := NewTree()
	root := tree.Create(NodeTypeCanvas, 1)
	mid := tree.Create(NodeTypeCanvas, 2)
	tree.Create(NodeTypeCanvas, 3)
	tree.AddChild(1, 2, -1)
	root.subTreeDirty = false
	mid.subTreeDirty = false

	tree.AddChild(2, 3, -1)
	if !root.IsSubTreeDirty() || !mid.IsSubTreeDirty() {
		t.Error("ancestors should have a dirty subtree")
	}
}

func TestSettersMarkDirty(t *testing.T) {
	tests := []struct {
		name    string
		set     func(n *RenderNode)
		geo     bool
		content bool
	}{
		{"bounds", func(n *RenderNode) { n.SetBounds(1, 2, 3, 4) }, true, false},
		{"translate", func(n *RenderNode) { n.SetTranslate(1, 2) }, true, false},
		{"scale", func(n *RenderNode) { n.SetScale(2, 2) }, true, false},
		{"rotation", func(n *RenderNode) { n.SetRotation(30) }, true, false},
		{"alpha", func(n *RenderNode) { n.SetAlpha(0.5) }, false, false},
		{"visible", func(n *RenderNode) { n.SetVisible(false) }, false, false},
		{"background", func(n *RenderNode) { n.SetBackgroundColor(ColorWhite) }, false, false},
		{"content", func(n *RenderNode) { n.SetContent(DrawOp{Rect: RectF{0, 0, 1, 1}}) }, false, true},
		{"filter", func(n *RenderNode) { n.SetBackgroundFilter(NewBlurFilter(4)) }, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree := NewTree()
			p := tree.Create(NodeTypeCanvas, 1)
			n := tree.Create(NodeTypeCanvas, 2)
			tree.AddChild(1, 2, -1)
			n.SetClean()
			p.subTreeDirty = false

			tt.set(n)
			if !n.IsDirty() {
				t.Error("node should be dirty")
			}
			if n.geoDirty != tt.geo {
				t.Errorf("geoDirty = %v, want %v", n.geoDirty, tt.geo)
			}
			if n.IsContentDirty() != tt.content {
				t.Errorf("contentDirty = %v, want %v", n.IsContentDirty(), tt.content)
			}
			if !p.IsSubTreeDirty() {
				t.Error("parent should have a dirty subtree")
			}
		})
	}
}

func TestShouldPaint(t *testing.T) {
	tree := NewTree()
	n := tree.Create(NodeTypeCanvas, 1)
	n.SetAlpha(0)
	if n.ShouldPaint() {
		t.Error("alpha 0 should not paint")
	}
	n.SetAlpha(1)
	n.SetVisible(false)
	if n.ShouldPaint() {
		t.Error("hidden node should not paint")
	}
}

// --- Update (merge old then new) ---

func TestUpdateFirstFrameMergesNewOnly(t *testing.T) {
	tree := NewTree()
	n := tree.Create(NodeTypeCanvas, 1)
	n.SetBounds(10, 10, 20, 20)
	dm := newTestDirtyManager(100, 100)

	if !n.Update(dm, nil, false, false, RectI{}) {
		t.Error("first Update should report dirty")
	}
	if got := dm.CurrentFrameDirtyRegion(); got != (RectI{10, 10, 20, 20}) {
		t.Errorf("dirty = %v, want [10 10 20 20]", got)
	}
	if got := n.OldDirty(); got != (RectI{10, 10, 20, 20}) {
		t.Errorf("OldDirty = %v", got)
	}
}

func TestUpdateMoveMergesOldThenNew(t *testing.T) {
	tree := NewTree()
	n := tree.Create(NodeTypeCanvas, 1)
	n.SetBounds(10, 10, 20, 20)
	dm := newTestDirtyManager(100, 100)
	n.Update(dm, nil, false, false, RectI{})

	dm.Clear()
	n.SetBounds(50, 50, 20, 20)
	n.Update(dm, nil, false, false, RectI{})
	if got := dm.CurrentFrameDirtyRegion(); got != (RectI{10, 10, 60, 60}) {
		t.Errorf("dirty = %v, want [10 10 60 60]", got)
	}
	rects := dm.CurrentFrameDirtyRects()
	if !intersectsAny(RectI{10, 10, 1, 1}, rects) || !intersectsAny(RectI{69, 69, 1, 1}, rects) {
		t.Errorf("dirty rects %v should cover both old and new footprints", rects)
	}
}

func TestUpdateSandboxOffset(t *testing.T) {
	tree := NewTree()
	n := tree.CreateSurface(1, "sandboxed", SurfaceAppWindow)
	n.SetBounds(10, 10, 100, 100)
	n.SetSandbox(&Vec2{50, 20})
	dm := newTestDirtyManager(400, 400)
	n.Update(dm, nil, false, false, RectI{})
	if got := n.Geometry().AbsRect(); got != (RectI{60, 30, 100, 100}) {
		t.Errorf("AbsRect = %v, want [60 30 100 100]", got)
	}
	if p := n.Properties().Sandbox; p == nil || *p != (Vec2{50, 20}) {
		t.Errorf("Sandbox = %v, want {50 20}", p)
	}

	dm.Clear()
	n.SetSandbox(nil)
	n.Update(dm, nil, false, false, RectI{})
	if got := n.Geometry().AbsRect(); got != (RectI{10, 10, 100, 100}) {
		t.Errorf("AbsRect after clear = %v, want [10 10 100 100]", got)
	}
	if got := dm.CurrentFrameDirtyRegion(); got != (RectI{10, 10, 150, 120}) {
		t.Errorf("dirty = %v, want old and new footprints [10 10 150 120]", got)
	}
}

func TestUpdateCleanNodeMergesNothing(t *testing.T) {
	tree := NewTree()
	n := tree.Create(NodeTypeCanvas, 1)
	n.SetBounds(10, 10, 20, 20)
	dm := newTestDirtyManager(100, 100)
	n.Update(dm, nil, false, false, RectI{})

	dm.Clear()
	if n.Update(dm, nil, false, false, RectI{}) {
		t.Error("clean Update should report not dirty")
	}
	if dm.IsCurrentFrameDirty() {
		t.Errorf("clean node merged %v", dm.CurrentFrameDirtyRegion())
	}

	// A dirty parent forces a merge of the unchanged footprint.
	n.Update(dm, nil, true, false, RectI{})
	if got := dm.CurrentFrameDirtyRegion(); got != (RectI{10, 10, 20, 20}) {
		t.Errorf("parent dirty merge = %v", got)
	}
}

func TestUpdateHiddenMergesOldOnly(t *testing.T) {
	tree := NewTree()
	n := tree.Create(NodeTypeCanvas, 1)
	n.SetBounds(10, 10, 20, 20)
	dm := newTestDirtyManager(100, 100)
	n.Update(dm, nil, false, false, RectI{})

	dm.Clear()
	n.SetBounds(60, 60, 20, 20)
	n.SetVisible(false)
	if n.Update(dm, nil, false, false, RectI{}) {
		t.Error("hidden node should report not dirty")
	}
	if got := dm.CurrentFrameDirtyRegion(); got != (RectI{10, 10, 20, 20}) {
		t.Errorf("dirty = %v, want old footprint [10 10 20 20]", got)
	}

	// Hidden again: nothing left to merge.
	dm.Clear()
	n.SetDirty()
	n.Update(dm, nil, false, false, RectI{})
	if dm.IsCurrentFrameDirty() {
		t.Errorf("never-painted node merged %v", dm.CurrentFrameDirtyRegion())
	}
}

func TestUpdateFilterPaddingAndClip(t *testing.T) {
	tree := NewTree()
	n := tree.Create(NodeTypeCanvas, 1)
	n.SetBounds(20, 20, 10, 10)
	n.SetForegroundFilter(NewBlurFilter(5))
	dm := newTestDirtyManager(100, 100)

	n.Update(dm, nil, false, false, RectI{})
	if got := dm.CurrentFrameDirtyRegion(); got != (RectI{15, 15, 20, 20}) {
		t.Errorf("padded dirty = %v, want [15 15 20 20]", got)
	}

	clipped := tree.Create(NodeTypeCanvas, 2)
	clipped.SetBounds(20, 20, 10, 10)
	clipped.SetForegroundFilter(NewBlurFilter(5))
	dm = newTestDirtyManager(100, 100)
	clipped.Update(dm, nil, false, true, RectI{0, 0, 25, 100})
	if got := dm.CurrentFrameDirtyRegion(); got != (RectI{15, 15, 10, 20}) {
		t.Errorf("clipped dirty = %v, want [15 15 10 20]", got)
	}
}

func TestUpdateChildFollowsParentFrame(t *testing.T) {
	tree := NewTree()
	p := tree.Create(NodeTypeCanvas, 1)
	c := tree.Create(NodeTypeCanvas, 2)
	tree.AddChild(1, 2, -1)
	p.SetBounds(100, 100, 50, 50)
	p.SetFrame(RectF{5, 5, 40, 40})
	c.SetBounds(0, 0, 10, 10)
	dm := newTestDirtyManager(400, 400)

	p.Update(dm, nil, false, false, RectI{})
	c.Update(dm, p, true, false, RectI{})
	if got := c.Geometry().AbsRect(); got != (RectI{105, 105, 10, 10}) {
		t.Errorf("child AbsRect = %v, want [105 105 10 10]", got)
	}
}

func TestUpdateWithoutDirtyManager(t *testing.T) {
	tree := NewTree()
	n := tree.Create(NodeTypeCanvas, 1)
	if n.Update(nil, nil, false, false, RectI{}) {
		t.Error("Update without dirty manager should report false")
	}
}
