package unirender

import "math"

// identityTransform is the identity affine matrix.
var identityTransform = [6]float64{1, 0, 0, 1, 0, 0}

// Matrix is a 2D affine transform [a, b, c, d, tx, ty]. Persp marks content
// that carries a 3D or perspective component the affine part cannot express.
//
//	| a  c  tx |
//	| b  d  ty |
//	| 0  0   1 |
type Matrix struct {
	Affine [6]float64
	Persp  bool
}

// IdentityMatrix is the identity transform.
var IdentityMatrix = Matrix{Affine: identityTransform}

// TranslateMatrix returns a pure translation.
func TranslateMatrix(x, y float64) Matrix {
	return Matrix{Affine: [6]float64{1, 0, 0, 1, x, y}}
}

// Concat returns m * c (c applied first).
func (m Matrix) Concat(c Matrix) Matrix {
	return Matrix{Affine: multiplyAffine(m.Affine, c.Affine), Persp: m.Persp || c.Persp}
}

// MapPoint applies m to (x, y).
func (m Matrix) MapPoint(x, y float64) (float64, float64) {
	return transformPoint(m.Affine, x, y)
}

// IsIdentity reports whether m is the identity.
func (m Matrix) IsIdentity() bool {
	return !m.Persp && m.Affine == identityTransform
}

// HasSkewOrNegativeScale reports whether m cannot be mapped with a plain
// scale and translate. Rotation also lands here since it fills b and c.
func (m Matrix) HasSkewOrNegativeScale() bool {
	a := m.Affine
	return math.Abs(a[1]) > roundEpsilon || math.Abs(a[2]) > roundEpsilon || a[0] < 0 || a[3] < 0
}

// RotationDegrees returns the rotation encoded in m, in degrees.
func (m Matrix) RotationDegrees() float64 {
	return math.Atan2(m.Affine[1], m.Affine[0]) * 180 / math.Pi
}

// computeLocalTransform computes the local affine matrix from the node's
// properties. The pivot is a fraction of the bounds size.
//
// Composition order:
//
//	Translate(-pivot) -> Scale -> Skew -> Rotate -> Translate(bounds.xy + translate + pivot)
func computeLocalTransform(p *Properties) [6]float64 {
	sx := p.ScaleX
	sy := p.ScaleY

	sin, cos := math.Sincos(p.Rotation * math.Pi / 180)

	var tanSkewX, tanSkewY float64
	if p.SkewX != 0 {
		tanSkewX = math.Tan(p.SkewX * math.Pi / 180)
	}
	if p.SkewY != 0 {
		tanSkewY = math.Tan(p.SkewY * math.Pi / 180)
	}

	// After Scale * Translate(-pivot):
	//   a=sx, b=0, c=0, d=sy, tx=-px*sx, ty=-py*sy
	//
	// After Skew:
	a := sx
	b := tanSkewY * sx
	c := tanSkewX * sy
	d := sy

	px := p.PivotX * p.Bounds.Width
	py := p.PivotY * p.Bounds.Height
	preTx := -px*sx - tanSkewX*py*sy
	preTy := -tanSkewY*px*sx - py*sy

	// After Rotate:
	ra := cos*a - sin*b
	rb := sin*a + cos*b
	rc := cos*c - sin*d
	rd := sin*c + cos*d
	rtx := cos*preTx - sin*preTy
	rty := sin*preTx + cos*preTy

	// After the final translate back to the pivot in parent space:
	x := p.Bounds.Left + p.TranslateX + px
	y := p.Bounds.Top + p.TranslateY + py
	return [6]float64{ra, rb, rc, rd, rtx + x, rty + y}
}

// multiplyAffine multiplies two 2D affine matrices: result = parent * child.
func multiplyAffine(p, c [6]float64) [6]float64 {
	return [6]float64{
		p[0]*c[0] + p[2]*c[1],
		p[1]*c[0] + p[3]*c[1],
		p[0]*c[2] + p[2]*c[3],
		p[1]*c[2] + p[3]*c[3],
		p[0]*c[4] + p[2]*c[5] + p[4],
		p[1]*c[4] + p[3]*c[5] + p[5],
	}
}

// transformPoint applies an affine matrix to a point.
func transformPoint(m [6]float64, x, y float64) (float64, float64) {
	return m[0]*x + m[2]*y + m[4], m[1]*x + m[3]*y + m[5]
}

// --- Geometry ---

// Geometry holds a node's local and absolute transforms and its device-space
// rect. UpdateMatrix must run on a parent before any child.
type Geometry struct {
	matrix        Matrix
	absMatrix     Matrix
	contextMatrix *Matrix
	absRect       RectI
	width, height float64
}

// Matrix returns the local transform.
func (g *Geometry) Matrix() Matrix { return g.matrix }

// AbsMatrix returns the absolute (device-space) transform.
func (g *Geometry) AbsMatrix() Matrix { return g.absMatrix }

// AbsRect returns the device-space bounding rect computed by the last
// UpdateMatrix.
func (g *Geometry) AbsRect() RectI { return g.absRect }

// SetContextMatrix sets an extra transform applied between the parent and
// the local matrix. Surfaces use it for sandbox and leash transforms. Pass nil
// to clear it.
func (g *Geometry) SetContextMatrix(m *Matrix) {
	if m == nil {
		g.contextMatrix = nil
		return
	}
	cm := *m
	g.contextMatrix = &cm
}

// UpdateMatrix recomputes the local and absolute transforms from p.
// absolute = parent * Translate(offset) * context * local. The abs rect is
// the mapped bounds, clipped to clipRect when one is given. Reports whether
// the absolute rect changed.
func (g *Geometry) UpdateMatrix(p *Properties, parent *Matrix, offset Vec2, clipRect *RectI) bool {
	prev := g.absRect
	g.width = p.Bounds.Width
	g.height = p.Bounds.Height
	g.matrix = Matrix{Affine: computeLocalTransform(p), Persp: p.Persp}

	abs := IdentityMatrix
	if parent != nil {
		abs = *parent
	}
	if offset.X != 0 || offset.Y != 0 {
		abs = abs.Concat(TranslateMatrix(offset.X, offset.Y))
	}
	if g.contextMatrix != nil {
		abs = abs.Concat(*g.contextMatrix)
	}
	g.absMatrix = abs.Concat(g.matrix)

	g.absRect = g.MapAbsRect(RectF{0, 0, g.width, g.height})
	if clipRect != nil {
		g.absRect = g.absRect.IntersectRect(*clipRect)
	}
	return prev != g.absRect
}

// MapAbsRect maps a local-space rect to an integer device-space bounding
// rect. A non-empty input never maps to a zero width or height.
func (g *Geometry) MapAbsRect(r RectF) RectI {
	if r.IsEmpty() {
		return RectI{}
	}
	m := g.absMatrix
	var left, top, right, bottom float64
	if m.HasSkewOrNegativeScale() {
		xs := [4]float64{}
		ys := [4]float64{}
		xs[0], ys[0] = m.MapPoint(r.Left, r.Top)
		xs[1], ys[1] = m.MapPoint(r.Right(), r.Top)
		xs[2], ys[2] = m.MapPoint(r.Right(), r.Bottom())
		xs[3], ys[3] = m.MapPoint(r.Left, r.Bottom())
		left, right = xs[0], xs[0]
		top, bottom = ys[0], ys[0]
		for i := 1; i < 4; i++ {
			left = math.Min(left, xs[i])
			right = math.Max(right, xs[i])
			top = math.Min(top, ys[i])
			bottom = math.Max(bottom, ys[i])
		}
	} else {
		a := m.Affine
		left = r.Left*a[0] + a[4]
		top = r.Top*a[3] + a[5]
		right = r.Right()*a[0] + a[4]
		bottom = r.Bottom()*a[3] + a[5]
	}
	l := int(math.Floor(left + roundEpsilon))
	t := int(math.Floor(top + roundEpsilon))
	w := int(math.Ceil(right-roundEpsilon)) - l
	h := int(math.Ceil(bottom-roundEpsilon)) - t
	if w <= 0 {
		w = 1
	}
	if h <= 0 {
		h = 1
	}
	return RectI{l, t, w, h}
}

// IsNeedClientCompose reports whether the content must be composed by the
// GPU: its net rotation is not a multiple of 90 degrees, or it is 3D.
func (g *Geometry) IsNeedClientCompose() bool {
	if g.absMatrix.Persp {
		return true
	}
	r := math.Mod(math.Abs(g.absMatrix.RotationDegrees()), 90)
	return r > rotationEpsilon && 90-r > rotationEpsilon
}

// RotationDegree returns the net rotation rounded to whole degrees in [0, 360).
func (g *Geometry) RotationDegree() int {
	d := int(math.Round(g.absMatrix.RotationDegrees())) % 360
	if d < 0 {
		d += 360
	}
	return d
}

const rotationEpsilon = 1e-3
