package unirender

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"
)

// capturing is set while a screenshot traversal runs.
var capturing atomic.Bool

// IsCapturing reports whether a screenshot traversal is in progress.
// Drawables read it once per Draw.
func IsCapturing() bool { return capturing.Load() }

// captureFrame draws root through the capture path into a new w×h image.
func captureFrame(root *RenderNodeDrawable, gpu GPUContext, w, h int) (*image.RGBA, error) {
	surf, err := gpu.AllocateSurface(w, h, DefaultConfig().Cache.Format())
	if err != nil {
		return nil, fmt.Errorf("capture: %w", err)
	}
	defer gpu.Release(surf)

	capturing.Store(true)
	root.Draw(&DrawContext{Canvas: surf.Canvas(), GPU: gpu})
	capturing.Store(false)

	img, err := gpu.Snapshot(surf)
	if err != nil {
		return nil, fmt.Errorf("capture: %w", err)
	}
	return img.RGBA(), nil
}

// writeCaptures writes img once per label into dir and returns the paths
// written.
func writeCaptures(dir string, labels []string, img *image.RGBA) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("capture: mkdir %s: %w", dir, err)
	}
	out := toNRGBA(img)
	stamp := time.Now().Format("20060102_150405")
	var paths []string
	for _, label := range labels {
		path := filepath.Join(dir, fmt.Sprintf("%s_%s.png", stamp, sanitizeLabel(label)))
		if err := writePNG(path, out); err != nil {
			return paths, fmt.Errorf("capture: %w", err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// toNRGBA converts premultiplied RGBA to straight-alpha NRGBA.
func toNRGBA(src *image.RGBA) *image.NRGBA {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		si := src.PixOffset(b.Min.X, b.Min.Y+y)
		di := img.PixOffset(0, y)
		for x := 0; x < w*4; x += 4 {
			r, g, bl, a := src.Pix[si+x], src.Pix[si+x+1], src.Pix[si+x+2], src.Pix[si+x+3]
			if a > 0 && a < 255 {
				r = uint8(min(int(r)*255/int(a), 255))
				g = uint8(min(int(g)*255/int(a), 255))
				bl = uint8(min(int(bl)*255/int(a), 255))
			}
			img.Pix[di+x] = r
			img.Pix[di+x+1] = g
			img.Pix[di+x+2] = bl
			img.Pix[di+x+3] = a
		}
	}
	return img
}

// writePNG encodes an image to a PNG file at the given path.
func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return f.Close()
}

// sanitizeLabel replaces characters that are unsafe in file names with
// underscores and falls back to "unlabeled" for empty strings.
func sanitizeLabel(label string) string {
	label = strings.TrimSpace(label)
	if label == "" {
		return "unlabeled"
	}
	var b strings.Builder
	b.Grow(len(label))
	for _, r := range label {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z',
			r >= '0' && r <= '9', r == '-', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
