package unirender

import (
	"image"
	"image/color"
	"testing"
)

func TestSanitizeLabel(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"hello", "hello"},
		{"my label", "my_label"},
		{"a/b\\c", "a_b_c"},
		{"ok-name.v2", "ok-name.v2"},
		{"", "unlabeled"},
		{"   ", "unlabeled"},
		{"special!@#$%", "special_____"},
	}
	for _, tt := range tests {
		got := sanitizeLabel(tt.input)
		if got != tt.want {
			t.Errorf("sanitizeLabel(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestToNRGBAUnpremultiplies(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 2, 1))
	src.SetRGBA(0, 0, color.RGBA{128, 0, 0, 128})
	src.SetRGBA(1, 0, color.RGBA{0, 0, 255, 255})

	out := toNRGBA(src)
	if got := out.NRGBAAt(0, 0); got != (color.NRGBA{255, 0, 0, 128}) {
		t.Errorf("half red = %v, want {255 0 0 128}", got)
	}
	if got := out.NRGBAAt(1, 0); got != (color.NRGBA{0, 0, 255, 255}) {
		t.Errorf("blue = %v, want {0 0 255 255}", got)
	}
}
