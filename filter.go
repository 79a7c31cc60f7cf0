package unirender

import "fmt"

// Filter is a visual effect attached to a node's background or foreground.
// The compositor only needs the extent a filter samples and paints. The
// filter math itself runs in the renderer.
type Filter interface {
	// Padding returns the extra pixels needed around the node to accommodate
	// the effect (e.g. blur radius). Zero means no padding.
	Padding() int
}

// BlurFilter is a Gaussian blur of the content beneath a node.
type BlurFilter struct {
	Radius int
}

// NewBlurFilter creates a blur filter with the given radius.
func NewBlurFilter(radius int) *BlurFilter {
	return &BlurFilter{Radius: radius}
}

// Padding returns the blur radius.
func (f *BlurFilter) Padding() int { return max(f.Radius, 0) }

func (f *BlurFilter) String() string { return fmt.Sprintf("blur(%d)", f.Radius) }

// MaterialFilter is a blur combined with a saturation boost and a mask
// color, as used by frosted-glass panels.
type MaterialFilter struct {
	Radius     int
	Saturation float64
	MaskColor  Color
}

// Padding returns the blur radius.
func (f *MaterialFilter) Padding() int { return max(f.Radius, 0) }

// filterChainPadding returns the total padding of a chain of filters. Nil
// entries are skipped.
func filterChainPadding(filters []Filter) int {
	total := 0
	for _, f := range filters {
		if f != nil {
			total += f.Padding()
		}
	}
	return total
}
