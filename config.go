package unirender

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/pelletier/go-toml/v2"
)

// Config is the compositor configuration, usually loaded from a TOML file.
type Config struct {
	Dirty     DirtyConfig     `toml:"dirty"`
	Hwc       HwcConfig       `toml:"hwc"`
	Cache     CacheConfig     `toml:"cache"`
	UIFirst   UIFirstConfig   `toml:"uifirst"`
	Backend   BackendConfig   `toml:"backend"`
	Occlusion OcclusionConfig `toml:"occlusion"`
}

// DirtyConfig controls dirty region tracking.
type DirtyConfig struct {
	MaxDirtyRects int  `toml:"max_dirty_rects"`
	HistorySize   int  `toml:"history_size"`
	AlignSize     int  `toml:"align_size"`
	Aligned       bool `toml:"aligned"`
	PartialRender bool `toml:"partial_render"`
	DFX           bool `toml:"dfx"`
}

// HwcConfig controls hardware composer eligibility.
type HwcConfig struct {
	Enabled                    bool     `toml:"enabled"`
	AllowTranslucentBackground bool     `toml:"allow_translucent_background"`
	MaxLayers                  int      `toml:"max_layers"`
	IdleVsyncCount             int      `toml:"idle_vsync_count"`
	WhiteList                  []string `toml:"white_list"`
	PhoneMode                  bool     `toml:"phone_mode"`
}

// CacheConfig controls per-node content caches.
type CacheConfig struct {
	MaxUpdateTimes int    `toml:"max_update_times"`
	ColorFormat    string `toml:"color_format"`

	format gputypes.TextureFormat
}

// Format returns the parsed cache color format.
func (c CacheConfig) Format() gputypes.TextureFormat {
	if c.format == gputypes.TextureFormatUndefined {
		return gputypes.TextureFormatRGBA8Unorm
	}
	return c.format
}

// UIFirstConfig controls off-main-thread window caching.
type UIFirstConfig struct {
	Enabled     bool   `toml:"enabled"`
	Workers     int    `toml:"workers"`
	WaitTimeout string `toml:"wait_timeout"`

	waitTimeout time.Duration
}

// Timeout returns the bounded wait for a sub-thread cache.
func (c UIFirstConfig) Timeout() time.Duration {
	if c.waitTimeout <= 0 {
		return defaultWaitTimeout
	}
	return c.waitTimeout
}

// BackendConfig controls buffer acquisition and layer blending.
type BackendConfig struct {
	FenceTimeout string `toml:"fence_timeout"`
	AlphaMode    string `toml:"alpha_mode"`

	fenceTimeout time.Duration
	alphaMode    gputypes.CompositeAlphaMode
}

// Timeout returns the fence wait timeout.
func (c BackendConfig) Timeout() time.Duration {
	if c.fenceTimeout <= 0 {
		return defaultWaitTimeout
	}
	return c.fenceTimeout
}

// Mode returns the parsed composite alpha mode.
func (c BackendConfig) Mode() gputypes.CompositeAlphaMode {
	if c.alphaMode == gputypes.CompositeAlphaModeAuto {
		return gputypes.CompositeAlphaModePremultiplied
	}
	return c.alphaMode
}

// OcclusionConfig controls occlusion culling and visibility reporting.
type OcclusionConfig struct {
	Enabled          bool `toml:"enabled"`
	SemiVisibleShift int  `toml:"semi_visible_shift"`
}

const defaultWaitTimeout = 3000 * time.Millisecond

// DefaultConfig returns the configuration used when no file is supplied.
func DefaultConfig() Config {
	return Config{
		Dirty: DirtyConfig{
			MaxDirtyRects: 3,
			HistorySize:   5,
			AlignSize:     32,
			PartialRender: true,
		},
		Hwc: HwcConfig{
			Enabled:        true,
			MaxLayers:      8,
			IdleVsyncCount: 100,
			WhiteList:      []string{"pointer window"},
			PhoneMode:      true,
		},
		Cache: CacheConfig{
			MaxUpdateTimes: 3,
			ColorFormat:    "rgba8unorm",
			format:         gputypes.TextureFormatRGBA8Unorm,
		},
		UIFirst: UIFirstConfig{
			Enabled:     true,
			Workers:     2,
			WaitTimeout: "3000ms",
			waitTimeout: defaultWaitTimeout,
		},
		Backend: BackendConfig{
			FenceTimeout: "3000ms",
			AlphaMode:    "premultiplied",
			fenceTimeout: defaultWaitTimeout,
			alphaMode:    gputypes.CompositeAlphaModePremultiplied,
		},
		Occlusion: OcclusionConfig{
			Enabled:          true,
			SemiVisibleShift: 3,
		},
	}
}

// LoadConfig reads and parses a TOML configuration file. Keys missing from
// the file keep their DefaultConfig values.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return DefaultConfig(), fmt.Errorf("config: read %s: %w", path, err)
	}
	return ParseConfig(data)
}

// ParseConfig parses a TOML document on top of DefaultConfig. Unknown keys
// are rejected.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return DefaultConfig(), fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.resolve(); err != nil {
		return DefaultConfig(), err
	}
	return cfg, nil
}

// resolve parses the string-typed fields and validates ranges.
func (c *Config) resolve() error {
	d, err := time.ParseDuration(c.UIFirst.WaitTimeout)
	if err != nil {
		return fmt.Errorf("config: uifirst.wait_timeout: %w", err)
	}
	c.UIFirst.waitTimeout = d

	d, err = time.ParseDuration(c.Backend.FenceTimeout)
	if err != nil {
		return fmt.Errorf("config: backend.fence_timeout: %w", err)
	}
	c.Backend.fenceTimeout = d

	f, err := parseTextureFormat(c.Cache.ColorFormat)
	if err != nil {
		return fmt.Errorf("config: cache.color_format: %w", err)
	}
	c.Cache.format = f

	m, err := parseAlphaMode(c.Backend.AlphaMode)
	if err != nil {
		return fmt.Errorf("config: backend.alpha_mode: %w", err)
	}
	c.Backend.alphaMode = m

	switch {
	case c.Dirty.MaxDirtyRects < 1:
		return fmt.Errorf("config: dirty.max_dirty_rects: %w", errOutOfRange(c.Dirty.MaxDirtyRects))
	case c.Dirty.HistorySize < 1:
		return fmt.Errorf("config: dirty.history_size: %w", errOutOfRange(c.Dirty.HistorySize))
	case c.Dirty.AlignSize < 1:
		return fmt.Errorf("config: dirty.align_size: %w", errOutOfRange(c.Dirty.AlignSize))
	case c.Hwc.MaxLayers < 1:
		return fmt.Errorf("config: hwc.max_layers: %w", errOutOfRange(c.Hwc.MaxLayers))
	case c.Cache.MaxUpdateTimes < 1:
		return fmt.Errorf("config: cache.max_update_times: %w", errOutOfRange(c.Cache.MaxUpdateTimes))
	case c.UIFirst.Workers < 1:
		return fmt.Errorf("config: uifirst.workers: %w", errOutOfRange(c.UIFirst.Workers))
	case c.Occlusion.SemiVisibleShift < 0 || c.Occlusion.SemiVisibleShift > 16:
		return fmt.Errorf("config: occlusion.semi_visible_shift: %w", errOutOfRange(c.Occlusion.SemiVisibleShift))
	}
	return nil
}

type rangeError int

func (e rangeError) Error() string { return fmt.Sprintf("value %d out of range", int(e)) }

func errOutOfRange(v int) error { return rangeError(v) }

func parseTextureFormat(s string) (gputypes.TextureFormat, error) {
	switch strings.ToLower(s) {
	case "rgba8unorm", "":
		return gputypes.TextureFormatRGBA8Unorm, nil
	case "bgra8unorm":
		return gputypes.TextureFormatBGRA8Unorm, nil
	case "rgb10a2unorm":
		return gputypes.TextureFormatRGB10A2Unorm, nil
	case "rgba16float":
		return gputypes.TextureFormatRGBA16Float, nil
	}
	return gputypes.TextureFormatUndefined, fmt.Errorf("unknown format %q", s)
}

func parseAlphaMode(s string) (gputypes.CompositeAlphaMode, error) {
	switch strings.ToLower(s) {
	case "premultiplied", "":
		return gputypes.CompositeAlphaModePremultiplied, nil
	case "opaque":
		return gputypes.CompositeAlphaModeOpaque, nil
	case "unpremultiplied":
		return gputypes.CompositeAlphaModeUnpremultiplied, nil
	case "inherit":
		return gputypes.CompositeAlphaModeInherit, nil
	}
	return gputypes.CompositeAlphaModeAuto, fmt.Errorf("unknown alpha mode %q", s)
}
