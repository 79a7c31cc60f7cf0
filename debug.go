package unirender

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// globalDebug enables the tree-operation checks below. Set with SetDebugMode.
var globalDebug bool

// SetDebugMode enables or disables debug checks: panics when a disposed node
// is mutated and warnings for deep trees and very wide nodes.
func SetDebugMode(on bool) { globalDebug = on }

// frameStats holds per-frame timing and traversal metrics.
type frameStats struct {
	prepareTime  time.Duration
	postTime     time.Duration
	drawTime     time.Duration
	visited      int
	skipped      int
	surfaces     int
	hwcEnabled   int
	hwcDisabled  int
	dirtyArea    int
	filterPasses int
}

// log writes the stats at Debug level.
func (s frameStats) log(vsync uint64) {
	l := Logger()
	if !l.Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	l.Debug("frame stats",
		"vsync", vsync,
		"prepare", s.prepareTime,
		"post", s.postTime,
		"draw", s.drawTime,
		"visited", s.visited,
		"skipped", s.skipped,
		"surfaces", s.surfaces,
		"hwc_enabled", s.hwcEnabled,
		"hwc_disabled", s.hwcDisabled,
		"dirty_area", s.dirtyArea,
		"filter_passes", s.filterPasses,
	)
}

// debugCheckDisposed panics with a descriptive message when a disposed node is
// used in a tree operation.
func debugCheckDisposed(n *RenderNode, op string) {
	if n.disposed {
		panic(fmt.Sprintf("unirender debug: %s on disposed node %q (ID was %v)", op, n.Name, n.id))
	}
}

// debugCheckTreeDepth warns if tree depth exceeds the threshold.
const debugMaxTreeDepth = 32

func debugCheckTreeDepth(n *RenderNode) {
	depth := 0
	for p := n; p != nil; p = p.Parent() {
		depth++
	}
	if depth > debugMaxTreeDepth {
		Logger().Warn("tree depth exceeds threshold",
			"depth", depth, "threshold", debugMaxTreeDepth, "node", n.Name)
	}
}

// debugCheckChildCount warns if a node has more than 1000 children.
const debugMaxChildCount = 1000

func debugCheckChildCount(n *RenderNode) {
	if len(n.children) > debugMaxChildCount {
		Logger().Warn("child count exceeds threshold",
			"node", n.Name, "children", len(n.children), "threshold", debugMaxChildCount)
	}
}
