package unirender

import (
	"github.com/tanema/gween"
	"github.com/tanema/gween/ease"
)

// TweenGroup animates up to 4 properties of a node simultaneously. Create
// one via the constructors (TweenTranslate, TweenScale, TweenAlpha,
// TweenRotation) and call Update(dt) each frame, or hand it to a
// PropertyAnimator. Values go through the node setters so the node is
// marked dirty. While running, the surface hosting the node is flagged as
// animating.
type TweenGroup struct {
	tweens [4]*gween.Tween
	count  int
	apply  func(n *RenderNode, v [4]float64)
	target *RenderNode
	owner  *RenderNode
	Done   bool
}

func newTweenGroup(n *RenderNode, apply func(*RenderNode, [4]float64), duration float32, fn ease.TweenFunc, pairs ...[2]float64) *TweenGroup {
	g := &TweenGroup{count: len(pairs), apply: apply, target: n, owner: owningSurface(n)}
	for i, p := range pairs {
		g.tweens[i] = gween.New(float32(p[0]), float32(p[1]), duration, fn)
	}
	if g.owner != nil {
		g.owner.SetAnimating(true)
	}
	return g
}

// owningSurface returns n itself when it is a surface, else its nearest
// surface ancestor.
func owningSurface(n *RenderNode) *RenderNode {
	for p := n; p != nil; p = p.Parent() {
		if p.surface != nil {
			return p
		}
	}
	return nil
}

// Update advances all tweens by dt seconds and applies the values. If the
// target node has been disposed, Done is set and nothing is written.
func (g *TweenGroup) Update(dt float32) {
	if g.Done {
		return
	}
	if g.target.IsDisposed() {
		g.finish()
		return
	}

	var vals [4]float64
	allDone := true
	for i := 0; i < g.count; i++ {
		val, finished := g.tweens[i].Update(dt)
		vals[i] = float64(val)
		if !finished {
			allDone = false
		}
	}
	g.apply(g.target, vals)
	if allDone {
		g.finish()
	}
}

func (g *TweenGroup) finish() {
	g.Done = true
	if g.owner != nil && !g.owner.IsDisposed() {
		g.owner.SetAnimating(false)
	}
}

// TweenTranslate animates the node translation to (toX, toY).
func TweenTranslate(n *RenderNode, toX, toY float64, duration float32, fn ease.TweenFunc) *TweenGroup {
	p := &n.props
	return newTweenGroup(n, func(n *RenderNode, v [4]float64) { n.SetTranslate(v[0], v[1]) },
		duration, fn, [2]float64{p.TranslateX, toX}, [2]float64{p.TranslateY, toY})
}

// TweenScale animates the node scale to (toSX, toSY).
func TweenScale(n *RenderNode, toSX, toSY float64, duration float32, fn ease.TweenFunc) *TweenGroup {
	p := &n.props
	return newTweenGroup(n, func(n *RenderNode, v [4]float64) { n.SetScale(v[0], v[1]) },
		duration, fn, [2]float64{p.ScaleX, toSX}, [2]float64{p.ScaleY, toSY})
}

// TweenAlpha animates the node alpha to the target value.
func TweenAlpha(n *RenderNode, to float64, duration float32, fn ease.TweenFunc) *TweenGroup {
	return newTweenGroup(n, func(n *RenderNode, v [4]float64) { n.SetAlpha(v[0]) },
		duration, fn, [2]float64{n.props.Alpha, to})
}

// TweenRotation animates the node rotation, in degrees, to the target value.
func TweenRotation(n *RenderNode, to float64, duration float32, fn ease.TweenFunc) *TweenGroup {
	return newTweenGroup(n, func(n *RenderNode, v [4]float64) { n.SetRotation(v[0]) },
		duration, fn, [2]float64{n.props.Rotation, to})
}

// PropertyAnimator runs a set of tween groups, dropping each when it
// completes. It is driven from the prepare goroutine.
type PropertyAnimator struct {
	groups []*TweenGroup
}

// Add starts running g.
func (a *PropertyAnimator) Add(g *TweenGroup) {
	if g != nil && !g.Done {
		a.groups = append(a.groups, g)
	}
}

// Update advances every running group by dt seconds.
func (a *PropertyAnimator) Update(dt float32) {
	keep := a.groups[:0]
	for _, g := range a.groups {
		g.Update(dt)
		if !g.Done {
			keep = append(keep, g)
		}
	}
	clear(a.groups[len(keep):])
	a.groups = keep
}

// Len returns the number of running groups.
func (a *PropertyAnimator) Len() int { return len(a.groups) }
