package unirender

import "strings"

// Region is a set of pairwise disjoint rectangles with a tight bounding rect.
// Regions are values: every operation returns a new Region and leaves its
// operands untouched.
type Region struct {
	rects []RectI
	bound RectI
}

// NewRegion returns a region covering r. An empty r yields an empty region.
func NewRegion(r RectI) Region {
	if r.IsEmpty() {
		return Region{}
	}
	return Region{rects: []RectI{r}, bound: r}
}

// IsEmpty reports whether the region covers no pixels.
func (g Region) IsEmpty() bool {
	return len(g.rects) == 0
}

// Bound returns the tight bounding rectangle.
func (g Region) Bound() RectI {
	return g.bound
}

// Rects returns a copy of the disjoint rectangles that make up the region.
func (g Region) Rects() []RectI {
	out := make([]RectI, len(g.rects))
	copy(out, g.rects)
	return out
}

// Area returns the number of pixels covered.
func (g Region) Area() int {
	a := 0
	for _, r := range g.rects {
		a += r.Area()
	}
	return a
}

// Or returns the union of g and o.
func (g Region) Or(o Region) Region {
	if g.IsEmpty() {
		return o.clone()
	}
	if o.IsEmpty() {
		return g.clone()
	}
	out := make([]RectI, len(g.rects), len(g.rects)+len(o.rects))
	copy(out, g.rects)
	for _, r := range o.rects {
		pieces := []RectI{r}
		for _, e := range g.rects {
			pieces = subtractAll(pieces, e)
			if len(pieces) == 0 {
				break
			}
		}
		out = append(out, pieces...)
	}
	return makeRegion(out)
}

// And returns the intersection of g and o.
func (g Region) And(o Region) Region {
	if g.IsEmpty() || o.IsEmpty() || !g.bound.Intersect(o.bound) {
		return Region{}
	}
	var out []RectI
	for _, a := range g.rects {
		for _, b := range o.rects {
			if r := a.IntersectRect(b); !r.IsEmpty() {
				out = append(out, r)
			}
		}
	}
	return makeRegion(out)
}

// Sub returns the part of g not covered by o.
func (g Region) Sub(o Region) Region {
	if g.IsEmpty() || o.IsEmpty() || !g.bound.Intersect(o.bound) {
		return g.clone()
	}
	var out []RectI
	for _, a := range g.rects {
		pieces := []RectI{a}
		for _, b := range o.rects {
			pieces = subtractAll(pieces, b)
			if len(pieces) == 0 {
				break
			}
		}
		out = append(out, pieces...)
	}
	return makeRegion(out)
}

// Xor returns the area covered by exactly one of g and o.
func (g Region) Xor(o Region) Region {
	return g.Sub(o).Or(o.Sub(g))
}

// OrRect is shorthand for g.Or(NewRegion(r)).
func (g Region) OrRect(r RectI) Region { return g.Or(NewRegion(r)) }

// AndRect is shorthand for g.And(NewRegion(r)).
func (g Region) AndRect(r RectI) Region { return g.And(NewRegion(r)) }

// SubRect is shorthand for g.Sub(NewRegion(r)).
func (g Region) SubRect(r RectI) Region { return g.Sub(NewRegion(r)) }

// IsIntersectWith reports whether any rectangle of g overlaps r.
func (g Region) IsIntersectWith(r RectI) bool {
	if !g.bound.Intersect(r) {
		return false
	}
	for _, e := range g.rects {
		if e.Intersect(r) {
			return true
		}
	}
	return false
}

// ContainsRect reports whether r is fully covered by g.
func (g Region) ContainsRect(r RectI) bool {
	if r.IsEmpty() {
		return true
	}
	return NewRegion(r).Sub(g).IsEmpty()
}

// Equal reports whether g and o cover exactly the same pixels.
func (g Region) Equal(o Region) bool {
	if g.bound != o.bound || g.Area() != o.Area() {
		return false
	}
	return g.Xor(o).IsEmpty()
}

func (g Region) String() string {
	if g.IsEmpty() {
		return "Region{}"
	}
	var b strings.Builder
	b.WriteString("Region{")
	for i, r := range g.rects {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(r.String())
	}
	b.WriteByte('}')
	return b.String()
}

func (g Region) clone() Region {
	if g.IsEmpty() {
		return Region{}
	}
	return Region{rects: g.Rects(), bound: g.bound}
}

// makeRegion builds a region from disjoint rects, dropping empties and
// recomputing the bound.
func makeRegion(rects []RectI) Region {
	out := rects[:0]
	var bound RectI
	for _, r := range rects {
		if r.IsEmpty() {
			continue
		}
		out = append(out, r)
		bound = bound.JoinRect(r)
	}
	if len(out) == 0 {
		return Region{}
	}
	return Region{rects: out, bound: bound}
}

// subtractAll removes cut from every rect in pieces.
func subtractAll(pieces []RectI, cut RectI) []RectI {
	var out []RectI
	for _, p := range pieces {
		out = append(out, subtractRect(p, cut)...)
	}
	return out
}

// subtractRect splits a into at most four rects covering a minus b: a full
// width band above, a full width band below, then left and right slivers of
// the middle band.
func subtractRect(a, b RectI) []RectI {
	in := a.IntersectRect(b)
	if in.IsEmpty() {
		return []RectI{a}
	}
	var out []RectI
	if in.Top > a.Top {
		out = append(out, RectI{a.Left, a.Top, a.Width, in.Top - a.Top})
	}
	if in.Bottom() < a.Bottom() {
		out = append(out, RectI{a.Left, in.Bottom(), a.Width, a.Bottom() - in.Bottom()})
	}
	if in.Left > a.Left {
		out = append(out, RectI{a.Left, in.Top, in.Left - a.Left, in.Height})
	}
	if in.Right() < a.Right() {
		out = append(out, RectI{in.Right(), in.Top, a.Right() - in.Right(), in.Height})
	}
	return out
}
