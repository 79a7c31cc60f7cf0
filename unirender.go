package unirender

import (
	"errors"
	"fmt"
	"image/color"
)

// Color represents an RGBA color with components in [0, 1]. Not premultiplied.
// Premultiplication occurs when a canvas submits the fill.
type Color struct {
	R, G, B, A float64
}

// ColorWhite is the default content color.
var ColorWhite = Color{1, 1, 1, 1}

// ColorTransparent is the zero color. A background of this color is treated
// as "no background".
var ColorTransparent = Color{}

// RGBA converts c to a premultiplied 8-bit color.
func (c Color) RGBA() color.RGBA {
	a := clamp01(c.A)
	return color.RGBA{
		R: uint8(clamp01(c.R)*a*255 + 0.5),
		G: uint8(clamp01(c.G)*a*255 + 0.5),
		B: uint8(clamp01(c.B)*a*255 + 0.5),
		A: uint8(a*255 + 0.5),
	}
}

// WithAlpha returns c with its alpha multiplied by a.
func (c Color) WithAlpha(a float64) Color {
	c.A *= a
	return c
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Vec2 is a 2D vector used for offsets, sizes and pivots.
type Vec2 struct {
	X, Y float64
}

// --- Node identity ---

// NodeID identifies a render node. The high 32 bits encode the id of the
// process that owns the node.
type NodeID uint64

// InvalidNodeID is the zero id. No node may use it.
const InvalidNodeID NodeID = 0

// MakeNodeID packs an owning process id and a per-process sequence number.
func MakeNodeID(pid uint32, seq uint32) NodeID {
	return NodeID(uint64(pid)<<32 | uint64(seq))
}

// Pid returns the owning process id.
func (id NodeID) Pid() uint32 {
	return uint32(uint64(id) >> 32)
}

func (id NodeID) String() string {
	return fmt.Sprintf("%d:%d", id.Pid(), uint32(id))
}

// NodeType is the closed set of render node kinds. Per-kind behavior is
// dispatched with a single switch on this value.
type NodeType uint8

const (
	NodeTypeCanvas  NodeType = iota // generic drawing node
	NodeTypeSurface                 // window or self-drawing layer with its own buffer
	NodeTypeRoot                    // root canvas of an application window
	NodeTypeEffect                  // node whose background filter is shared by its subtree
	NodeTypeDisplay                 // one physical or virtual screen
)

func (t NodeType) String() string {
	switch t {
	case NodeTypeCanvas:
		return "canvas"
	case NodeTypeSurface:
		return "surface"
	case NodeTypeRoot:
		return "root"
	case NodeTypeEffect:
		return "effect"
	case NodeTypeDisplay:
		return "display"
	default:
		return fmt.Sprintf("NodeType(%d)", uint8(t))
	}
}

// SurfaceType distinguishes the roles a surface node can play.
type SurfaceType uint8

const (
	SurfaceAppWindow        SurfaceType = iota // main application window
	SurfaceLeashWindow                         // animation wrapper around an app window
	SurfaceSelfDrawing                         // producer-driven layer such as video or camera
	SurfaceAbilityComponent                    // embedded component window
	SurfaceStartingWindow                      // splash shown before the app draws
)

func (t SurfaceType) String() string {
	switch t {
	case SurfaceAppWindow:
		return "app"
	case SurfaceLeashWindow:
		return "leash"
	case SurfaceSelfDrawing:
		return "self-drawing"
	case SurfaceAbilityComponent:
		return "ability-component"
	case SurfaceStartingWindow:
		return "starting"
	default:
		return fmt.Sprintf("SurfaceType(%d)", uint8(t))
	}
}

// IsMainWindow reports whether surfaces of this type own a dirty manager and
// contribute opaque area to occlusion.
func (t SurfaceType) IsMainWindow() bool {
	return t == SurfaceAppWindow || t == SurfaceStartingWindow
}

// IsLeashOrMainWindow reports whether t is a leash or main window.
func (t SurfaceType) IsLeashOrMainWindow() bool {
	return t == SurfaceLeashWindow || t.IsMainWindow()
}

// ScreenRotation is the counter-clockwise rotation of a display.
type ScreenRotation uint8

const (
	Rotation0 ScreenRotation = iota
	Rotation90
	Rotation180
	Rotation270
)

// Degrees returns the rotation in degrees.
func (r ScreenRotation) Degrees() int {
	return int(r%4) * 90
}

// --- Errors ---

var (
	// ErrNoBuffer is returned when a producer has no buffer to present.
	ErrNoBuffer = errors.New("unirender: no buffer available")
	// ErrFenceTimeout is returned when a fence does not signal within its timeout.
	ErrFenceTimeout = errors.New("unirender: fence wait timed out")
	// ErrSurfaceAlloc is returned when a GPU context cannot allocate a surface.
	ErrSurfaceAlloc = errors.New("unirender: surface allocation failed")
	// ErrContextLost is returned when a GPU context was closed.
	ErrContextLost = errors.New("unirender: gpu context lost")
	// ErrNodeNotFound is returned when an id does not name a node in the tree.
	ErrNodeNotFound = errors.New("unirender: node not found")
	// ErrNoDisplay is returned when a frame has no display to prepare.
	ErrNoDisplay = errors.New("unirender: no display")
)
