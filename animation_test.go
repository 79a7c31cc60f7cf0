package unirender

import (
	"math"
	"testing"

	"github.com/tanema/gween/ease"
)

// animTree returns a tree with a window 2 under display 1 and a canvas 3
// under the window.
func animTree() (*Tree, *RenderNode, *RenderNode) {
	tree := NewTree()
	tree.CreateDisplay(1, 0, 200, 200)
	win := tree.CreateSurface(2, "win", SurfaceAppWindow)
	win.SetBounds(0, 0, 100, 100)
	tree.AddChild(1, 2, -1)
	c := tree.Create(NodeTypeCanvas, 3)
	c.SetBounds(10, 10, 20, 20)
	tree.AddChild(2, 3, -1)
	return tree, win, c
}

func TestTweenTranslateReachesTarget(t *testing.T) {
	_, _, node := animTree()
	node.SetTranslate(10, 20)

	g := TweenTranslate(node, 100, 200, 1.0, ease.Linear)

	// Run for full duration using exact halves to avoid float32 accumulation drift.
	g.Update(0.5)
	g.Update(0.5)

	if !g.Done {
		t.Fatal("expected Done after full duration")
	}
	p := node.Properties()
	if math.Abs(p.TranslateX-100) > 0.5 {
		t.Errorf("TranslateX = %f, want ~100", p.TranslateX)
	}
	if math.Abs(p.TranslateY-200) > 0.5 {
		t.Errorf("TranslateY = %f, want ~200", p.TranslateY)
	}
}

func TestTweenScaleReachesTarget(t *testing.T) {
	_, _, node := animTree()

	g := TweenScale(node, 2.0, 3.0, 0.5, ease.Linear)

	g.Update(0.25)
	g.Update(0.25)

	if !g.Done {
		t.Fatal("expected Done after full duration")
	}
	p := node.Properties()
	if math.Abs(p.ScaleX-2.0) > 0.01 {
		t.Errorf("ScaleX = %f, want ~2.0", p.ScaleX)
	}
	if math.Abs(p.ScaleY-3.0) > 0.01 {
		t.Errorf("ScaleY = %f, want ~3.0", p.ScaleY)
	}
}

func TestTweenAlphaInterpolates(t *testing.T) {
	_, _, node := animTree()

	tw := TweenAlpha(node, 0.0, 1.0, ease.Linear)

	// Halfway through.
	tw.Update(0.5)
	if tw.Done {
		t.Fatal("should not be done at halfway")
	}
	if math.Abs(node.Properties().Alpha-0.5) > 0.05 {
		t.Errorf("Alpha = %f, want ~0.5 at halfway", node.Properties().Alpha)
	}

	tw.Update(0.5)
	if !tw.Done {
		t.Fatal("should be done after full duration")
	}
	if math.Abs(node.Properties().Alpha) > 0.01 {
		t.Errorf("Alpha = %f, want ~0.0", node.Properties().Alpha)
	}
}

func TestTweenRotationReachesTarget(t *testing.T) {
	_, _, node := animTree()

	tw := TweenRotation(node, 90, 1.0, ease.Linear)

	tw.Update(0.5)
	tw.Update(0.5)

	if !tw.Done {
		t.Fatal("expected done after full duration")
	}
	if math.Abs(node.Properties().Rotation-90) > 0.05 {
		t.Errorf("Rotation = %f, want ~90", node.Properties().Rotation)
	}
}

func TestTweenGroupDoneFlagTransition(t *testing.T) {
	_, _, node := animTree()
	g := TweenTranslate(node, 50, 50, 0.5, ease.Linear)

	if g.Done {
		t.Fatal("should not be Done at start")
	}

	g.Update(0.25)
	if g.Done {
		t.Fatal("should not be Done partway through")
	}

	g.Update(0.25)
	if !g.Done {
		t.Fatal("should be Done after full duration")
	}

	// Update after done is a no-op.
	g.Update(0.1)
	if !g.Done {
		t.Fatal("should remain Done")
	}
}

func TestTweenGroupMarksDirty(t *testing.T) {
	_, win, node := animTree()
	node.SetClean()
	win.subTreeDirty = false

	g := TweenTranslate(node, 100, 100, 1.0, ease.Linear)
	g.Update(0.1)

	if !node.IsDirty() {
		t.Fatal("expected node to be marked dirty after TweenGroup update")
	}
	if !win.IsSubTreeDirty() {
		t.Fatal("expected the hosting window to see a dirty subtree")
	}
}

func TestTweenGroupFlagsOwningSurface(t *testing.T) {
	_, win, node := animTree()

	g := TweenAlpha(node, 0.5, 0.5, ease.Linear)
	if !win.Surface().animating {
		t.Fatal("window should be animating while a child tweens")
	}
	g.Update(0.5)
	if !g.Done {
		t.Fatal("expected Done")
	}
	if win.Surface().animating {
		t.Error("window should stop animating when the tween ends")
	}
}

func TestTweenGroupDisposedNode(t *testing.T) {
	tree, _, node := animTree()
	node.SetTranslate(10, 20)

	g := TweenTranslate(node, 100, 200, 1.0, ease.Linear)

	tree.Remove(3)
	g.Update(0.1)

	if !g.Done {
		t.Fatal("expected Done after disposed node detected")
	}
	p := node.Properties()
	if p.TranslateX != 10 || p.TranslateY != 20 {
		t.Errorf("translate changed to (%f, %f) on disposed node", p.TranslateX, p.TranslateY)
	}
}

func TestTweenGroupDisposedMidAnimation(t *testing.T) {
	tree, win, node := animTree()

	g := TweenTranslate(node, 100, 100, 1.0, ease.Linear)

	g.Update(0.1)
	g.Update(0.1)
	if g.Done {
		t.Fatal("should not be Done yet")
	}

	tree.Remove(3)
	saved := *node.Properties()

	g.Update(0.1)
	if !g.Done {
		t.Fatal("expected Done after node disposed mid-animation")
	}
	if p := node.Properties(); p.TranslateX != saved.TranslateX || p.TranslateY != saved.TranslateY {
		t.Error("node fields should not change after disposal")
	}
	if win.Surface().animating {
		t.Error("window should stop animating when its child is disposed")
	}
}

func TestTweenEasingFunctionsProduceDifferentCurves(t *testing.T) {
	_, _, nodeL := animTree()
	_, _, nodeC := animTree()

	gL := TweenTranslate(nodeL, 100, 0, 1.0, ease.Linear)
	gC := TweenTranslate(nodeC, 100, 0, 1.0, ease.OutCubic)

	gL.Update(0.5)
	gC.Update(0.5)

	// OutCubic should be ahead of linear at midpoint.
	xl, xc := nodeL.Properties().TranslateX, nodeC.Properties().TranslateX
	if math.Abs(xl-xc) < 1.0 {
		t.Errorf("easing curves should produce different values at midpoint: linear=%f cubic=%f", xl, xc)
	}
}

func TestPropertyAnimatorDropsFinishedGroups(t *testing.T) {
	_, win, node := animTree()

	var a PropertyAnimator
	a.Add(TweenAlpha(node, 0.5, 0.5, ease.Linear))
	a.Add(TweenTranslate(win, 40, 0, 1.0, ease.Linear))
	a.Add(nil)
	if a.Len() != 2 {
		t.Fatalf("Len = %d, want 2", a.Len())
	}

	a.Update(0.5)
	if a.Len() != 1 {
		t.Fatalf("Len after first group ends = %d, want 1", a.Len())
	}
	a.Update(0.5)
	if a.Len() != 0 {
		t.Fatalf("Len after both end = %d, want 0", a.Len())
	}
	if math.Abs(win.Properties().TranslateX-40) > 0.5 {
		t.Errorf("TranslateX = %f, want ~40", win.Properties().TranslateX)
	}
}

func TestTweenGroupUpdateZeroAlloc(t *testing.T) {
	_, _, node := animTree()
	g := TweenTranslate(node, 100, 100, 1.0, ease.Linear)

	// Warm up; first call might differ.
	g.Update(0.01)

	result := testing.AllocsPerRun(100, func() {
		g.Update(0.001)
	})
	if result > 0 {
		t.Errorf("TweenGroup.Update allocated %f times per run, want 0", result)
	}
}
