package unirender

import (
	"fmt"
	"math"
)

// RectI is an integer device-space rectangle. The origin is the top-left,
// with Y increasing downward. A rectangle with a non-positive width or height
// is empty.
type RectI struct {
	Left, Top, Width, Height int
}

// IsEmpty reports whether r covers no pixels.
func (r RectI) IsEmpty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Right returns the exclusive right edge.
func (r RectI) Right() int { return r.Left + r.Width }

// Bottom returns the exclusive bottom edge.
func (r RectI) Bottom() int { return r.Top + r.Height }

// Area returns the number of pixels covered by r.
func (r RectI) Area() int {
	if r.IsEmpty() {
		return 0
	}
	return r.Width * r.Height
}

// IntersectRect returns the overlap of r and o, or the zero rect when they do
// not overlap.
func (r RectI) IntersectRect(o RectI) RectI {
	l := max(r.Left, o.Left)
	t := max(r.Top, o.Top)
	rr := min(r.Right(), o.Right())
	b := min(r.Bottom(), o.Bottom())
	if rr <= l || b <= t {
		return RectI{}
	}
	return RectI{l, t, rr - l, b - t}
}

// Intersect reports whether r and o share at least one pixel. Rectangles that
// only touch along an edge do not intersect.
func (r RectI) Intersect(o RectI) bool {
	return !r.IntersectRect(o).IsEmpty()
}

// JoinRect returns the smallest rectangle containing r and o. Empty operands
// are ignored.
func (r RectI) JoinRect(o RectI) RectI {
	if r.IsEmpty() {
		return o
	}
	if o.IsEmpty() {
		return r
	}
	l := min(r.Left, o.Left)
	t := min(r.Top, o.Top)
	rr := max(r.Right(), o.Right())
	b := max(r.Bottom(), o.Bottom())
	return RectI{l, t, rr - l, b - t}
}

// IsInsideOf reports whether r lies entirely within o.
func (r RectI) IsInsideOf(o RectI) bool {
	return r.Left >= o.Left && r.Top >= o.Top &&
		r.Right() <= o.Right() && r.Bottom() <= o.Bottom()
}

// Offset returns r translated by (dx, dy).
func (r RectI) Offset(dx, dy int) RectI {
	r.Left += dx
	r.Top += dy
	return r
}

// Outset returns r grown by d pixels on every side.
func (r RectI) Outset(d int) RectI {
	if r.IsEmpty() || d == 0 {
		return r
	}
	return RectI{r.Left - d, r.Top - d, r.Width + 2*d, r.Height + 2*d}
}

// ToRectF converts r to floating point.
func (r RectI) ToRectF() RectF {
	return RectF{float64(r.Left), float64(r.Top), float64(r.Width), float64(r.Height)}
}

func (r RectI) String() string {
	return fmt.Sprintf("[%d %d %d %d]", r.Left, r.Top, r.Width, r.Height)
}

// RectF is a floating point rectangle used for local-space bounds and frames.
type RectF struct {
	Left, Top, Width, Height float64
}

// IsEmpty reports whether r has no area.
func (r RectF) IsEmpty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Right returns the right edge.
func (r RectF) Right() float64 { return r.Left + r.Width }

// Bottom returns the bottom edge.
func (r RectF) Bottom() float64 { return r.Top + r.Height }

// IntersectRect returns the overlap of r and o.
func (r RectF) IntersectRect(o RectF) RectF {
	l := math.Max(r.Left, o.Left)
	t := math.Max(r.Top, o.Top)
	rr := math.Min(r.Right(), o.Right())
	b := math.Min(r.Bottom(), o.Bottom())
	if rr <= l || b <= t {
		return RectF{}
	}
	return RectF{l, t, rr - l, b - t}
}

// JoinRect returns the smallest rectangle containing r and o.
func (r RectF) JoinRect(o RectF) RectF {
	if r.IsEmpty() {
		return o
	}
	if o.IsEmpty() {
		return r
	}
	l := math.Min(r.Left, o.Left)
	t := math.Min(r.Top, o.Top)
	rr := math.Max(r.Right(), o.Right())
	b := math.Max(r.Bottom(), o.Bottom())
	return RectF{l, t, rr - l, b - t}
}

// Offset returns r translated by (dx, dy).
func (r RectF) Offset(dx, dy float64) RectF {
	r.Left += dx
	r.Top += dy
	return r
}

// Outset returns r grown by the given amounts on each side.
func (r RectF) Outset(left, top, right, bottom float64) RectF {
	return RectF{r.Left - left, r.Top - top, r.Width + left + right, r.Height + top + bottom}
}

// RoundOut returns the smallest integer rectangle enclosing r.
func (r RectF) RoundOut() RectI {
	if r.IsEmpty() {
		return RectI{}
	}
	l := int(math.Floor(r.Left + roundEpsilon))
	t := int(math.Floor(r.Top + roundEpsilon))
	rr := int(math.Ceil(r.Right() - roundEpsilon))
	b := int(math.Ceil(r.Bottom() - roundEpsilon))
	return RectI{l, t, rr - l, b - t}
}

func (r RectF) String() string {
	return fmt.Sprintf("[%.2f %.2f %.2f %.2f]", r.Left, r.Top, r.Width, r.Height)
}

// roundEpsilon absorbs float noise (e.g. cos(90°) != 0) before floor/ceil.
const roundEpsilon = 1e-4
