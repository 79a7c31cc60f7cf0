package unirender

import "testing"

func opaqueNode(t *testing.T, abs RectI, alpha float64) *RenderNode {
	t.Helper()
	tree := NewTree()
	n := tree.CreateSurface(2, "win", SurfaceAppWindow)
	n.geo.absRect = abs
	n.globalAlpha = alpha
	return n
}

func TestCheckAndUpdateOpaqueRegion(t *testing.T) {
	screen := RectI{0, 0, 200, 200}
	tests := []struct {
		name            string
		abs             RectI
		alpha           float64
		radius          CornerRadius
		focused         bool
		inset           int
		wantOpaque      int
		wantTransparent int
		wantContainer   int
	}{
		{"plain", RectI{0, 0, 100, 100}, 1, CornerRadius{}, false, 0, 10000, 0, 0},
		{"rounded", RectI{0, 0, 100, 100}, 1, CornerRadius{10, 10, 10, 10}, false, 0, 9600, 400, 0},
		{"translucent", RectI{0, 0, 100, 100}, 0.5, CornerRadius{}, false, 0, 0, 10000, 0},
		{"clipped", RectI{-50, 0, 100, 100}, 1, CornerRadius{}, false, 0, 5000, 0, 0},
		{"focused container", RectI{0, 0, 100, 100}, 1, CornerRadius{}, true, 5, 8100, 1900, 1900},
		{"unfocused container", RectI{0, 0, 100, 100}, 1, CornerRadius{}, false, 5, 10000, 0, 1900},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := opaqueNode(t, tt.abs, tt.alpha)
			n.props.CornerRadius = tt.radius
			if tt.inset > 0 {
				n.SetContainerWindow(true, tt.inset)
			}
			n.SetFocused(tt.focused)

			if !n.CheckAndUpdateOpaqueRegion(screen, Rotation0) {
				t.Fatal("first call did not recompute")
			}
			sd := n.Surface()
			if got := sd.OpaqueRegion().Area(); got != tt.wantOpaque {
				t.Errorf("opaque area = %d, want %d", got, tt.wantOpaque)
			}
			if got := sd.TransparentRegion().Area(); got != tt.wantTransparent {
				t.Errorf("transparent area = %d, want %d", got, tt.wantTransparent)
			}
			if got := sd.ContainerRegion().Area(); got != tt.wantContainer {
				t.Errorf("container area = %d, want %d", got, tt.wantContainer)
			}
		})
	}
}

func TestCheckAndUpdateOpaqueRegionCachesInput(t *testing.T) {
	n := opaqueNode(t, RectI{0, 0, 100, 100}, 1)
	screen := RectI{0, 0, 200, 200}
	if !n.CheckAndUpdateOpaqueRegion(screen, Rotation0) {
		t.Fatal("first call did not recompute")
	}
	if n.CheckAndUpdateOpaqueRegion(screen, Rotation0) {
		t.Error("unchanged input recomputed")
	}
	if !n.CheckAndUpdateOpaqueRegion(screen, Rotation90) {
		t.Error("rotation change did not recompute")
	}
	n.geo.absRect = RectI{10, 0, 100, 100}
	if !n.CheckAndUpdateOpaqueRegion(screen, Rotation90) {
		t.Error("moved window did not recompute")
	}
}

func TestRotateCorners(t *testing.T) {
	r := CornerRadius{1, 2, 3, 4}
	tests := []struct {
		rot  ScreenRotation
		want CornerRadius
	}{
		{Rotation0, CornerRadius{1, 2, 3, 4}},
		{Rotation90, CornerRadius{4, 1, 2, 3}},
		{Rotation180, CornerRadius{3, 4, 1, 2}},
		{Rotation270, CornerRadius{2, 3, 4, 1}},
	}
	for _, tt := range tests {
		if got := rotateCorners(r, tt.rot); got != tt.want {
			t.Errorf("rotateCorners(%v, %d) = %v, want %v", r, tt.rot.Degrees(), got, tt.want)
		}
	}
}

func TestCornerSquares(t *testing.T) {
	r := RectI{10, 20, 100, 50}
	got := cornerSquares(r, CornerRadius{4, 0, 2.5, 0})
	want := []RectI{{10, 20, 4, 4}, {107, 67, 3, 3}}
	if len(got) != len(want) {
		t.Fatalf("got %d squares, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("square %d = %v, want %v", i, got[i], want[i])
		}
	}
}
