package unirender

// Shadow describes a drop shadow drawn behind a node.
type Shadow struct {
	OffsetX, OffsetY float64
	Radius           float64
	Color            Color
}

// IsValid reports whether the shadow paints anything.
func (s Shadow) IsValid() bool {
	return s.Color.A > 0 && (s.Radius > 0 || s.OffsetX != 0 || s.OffsetY != 0)
}

// Insets is a per-edge distance, used for pixel stretch.
type Insets struct {
	Left, Top, Right, Bottom float64
}

// IsZero reports whether all insets are zero.
func (i Insets) IsZero() bool {
	return i == Insets{}
}

// CornerRadius holds the four corner radii, clockwise from top-left.
type CornerRadius [4]float64

// Max returns the largest of the four radii.
func (c CornerRadius) Max() float64 {
	m := c[0]
	for _, r := range c[1:] {
		if r > m {
			m = r
		}
	}
	return m
}

// IsZero reports whether every corner is square.
func (c CornerRadius) IsZero() bool {
	return c == CornerRadius{}
}

// DrawOp is one recorded draw command in a node's content: a solid fill.
type DrawOp struct {
	Rect  RectF
	Color Color
}

// Properties are the render properties of a node. Mutate them through the
// RenderNode setters so the node is marked dirty.
type Properties struct {
	// Bounds is the node rect in its parent's space.
	Bounds RectF
	// Frame is the content rect in the node's local space.
	Frame RectF

	TranslateX, TranslateY float64
	ScaleX, ScaleY         float64
	Rotation               float64 // degrees, clockwise
	SkewX, SkewY           float64 // degrees
	PivotX, PivotY         float64 // fraction of bounds
	Persp                  bool

	Alpha           float64
	Visible         bool
	ClipToBounds    bool
	BackgroundColor Color
	CornerRadius    CornerRadius
	Shadow          Shadow
	PixelStretch    Insets

	BackgroundFilter Filter
	ForegroundFilter Filter

	// Sandbox is an extra offset applied to surfaces hosted in a sandbox.
	Sandbox *Vec2
}

func defaultProperties() Properties {
	return Properties{
		ScaleX:  1,
		ScaleY:  1,
		PivotX:  0.5,
		PivotY:  0.5,
		Alpha:   1,
		Visible: true,
	}
}

// HasFilter reports whether a background or foreground filter is set.
func (p *Properties) HasFilter() bool {
	return p.BackgroundFilter != nil || p.ForegroundFilter != nil
}

// filterPadding returns the extra pixels the filters draw around the bounds.
func (p *Properties) filterPadding() int {
	return filterChainPadding([]Filter{p.BackgroundFilter, p.ForegroundFilter})
}

// shadowRect returns the local-space shadow extent.
func (p *Properties) shadowRect() RectF {
	r := p.Shadow.Radius
	return RectF{
		Left:   p.Shadow.OffsetX - r,
		Top:    p.Shadow.OffsetY - r,
		Width:  p.Bounds.Width + 2*r,
		Height: p.Bounds.Height + 2*r,
	}
}

// pixelStretchRect returns the local-space extent grown by the stretch insets.
func (p *Properties) pixelStretchRect() RectF {
	s := p.PixelStretch
	return RectF{0, 0, p.Bounds.Width, p.Bounds.Height}.Outset(s.Left, s.Top, s.Right, s.Bottom)
}

// localBounds returns (0, 0, w, h).
func (p *Properties) localBounds() RectF {
	return RectF{0, 0, p.Bounds.Width, p.Bounds.Height}
}

// frameOffset returns the frame origin relative to the bounds origin. It is
// passed to children as the offset of their parent's content.
func (p *Properties) frameOffset() Vec2 {
	return Vec2{p.Frame.Left, p.Frame.Top}
}
