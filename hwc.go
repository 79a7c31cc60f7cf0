package unirender

import "math"

// HwcDisableReason records why a self-drawing surface was moved from a
// hardware overlay plane to GPU composition. Reasons 1 through 9 are checked
// in declaration order and the first match wins.
type HwcDisableReason uint8

const (
	HwcDisableNone HwcDisableReason = iota
	// HwcDisableNoBuffer: no buffer, or a pending buffer with nothing visible.
	HwcDisableNoBuffer
	// HwcDisableAlpha: accumulated alpha is not 1.
	HwcDisableAlpha
	// HwcDisableRotation: rotation is not a multiple of 90 degrees, or 3D.
	HwcDisableRotation
	// HwcDisableOverlap: overlaps a hwc node above that is not force-direct.
	HwcDisableOverlap
	// HwcDisableCornerOverlap: rounded corners over another hwc node.
	HwcDisableCornerOverlap
	// HwcDisableTranslucentBackground: background alpha below 1.
	HwcDisableTranslucentBackground
	// HwcDisableBufferSize: buffer smaller than the on-screen size.
	HwcDisableBufferSize
	// HwcDisableFilter: under a filter painted above it.
	HwcDisableFilter
	// HwcDisablePrevalidate: the backend asked for client composition.
	HwcDisablePrevalidate
	// HwcDisableDisplay: the whole display is GPU composed this frame.
	HwcDisableDisplay
	// HwcDisableBudget: more candidates than overlay planes.
	HwcDisableBudget
)

var hwcDisableReasonNames = [...]string{
	HwcDisableNone:                  "none",
	HwcDisableNoBuffer:              "no-buffer",
	HwcDisableAlpha:                 "alpha",
	HwcDisableRotation:              "rotation",
	HwcDisableOverlap:               "overlap",
	HwcDisableCornerOverlap:         "corner-overlap",
	HwcDisableTranslucentBackground: "translucent-background",
	HwcDisableBufferSize:            "buffer-size",
	HwcDisableFilter:                "filter",
	HwcDisablePrevalidate:           "prevalidate",
	HwcDisableDisplay:               "display",
	HwcDisableBudget:                "budget",
}

func (r HwcDisableReason) String() string {
	if int(r) < len(hwcDisableReasonNames) {
		return hwcDisableReasonNames[r]
	}
	return "unknown"
}

// HwcDisabledNode is a diagnostics entry: a node and the reason it lost its
// overlay plane this frame.
type HwcDisabledNode struct {
	ID     NodeID
	Reason HwcDisableReason
}

const alphaEpsilon = 1e-6

// disableHwcNode disables n for this frame. A node already disabled keeps
// its first reason.
func (v *Visitor) disableHwcNode(n *RenderNode, reason HwcDisableReason) {
	sd := n.surface
	if sd.hwcDisabled {
		return
	}
	sd.hwcDisabled = true
	sd.hwcDisableReason = reason
	if reason == HwcDisableFilter {
		sd.hwcDisabledByFilter = true
	}
	v.hwcDisabled = append(v.hwcDisabled, HwcDisabledNode{ID: n.id, Reason: reason})
	Logger().Debug("hwc disabled", "node", n.id, "reason", reason)
}

// hwcCandidates returns the self-drawing surfaces of d in paint order, with
// their per-frame hwc state reset.
func (v *Visitor) hwcCandidates(d *RenderNode) []*RenderNode {
	var out []*RenderNode
	for _, id := range d.display.curAllSurfaces {
		n := v.tree.nodes[id]
		if n == nil || n.surface.Type != SurfaceSelfDrawing {
			continue
		}
		sd := n.surface
		sd.hwcDisabled = false
		sd.hwcDisableReason = HwcDisableNone
		sd.hwcDisabledByFilter = false
		out = append(out, n)
	}
	return out
}

// updateHwcNodeEnable decides hardware or GPU composition for every
// self-drawing surface of d, then merges the area of nodes whose composition
// or buffer changed into the right dirty managers.
func (v *Visitor) updateHwcNodeEnable(d *RenderNode) {
	dd := d.display
	cands := v.hwcCandidates(d)
	if len(cands) == 0 {
		return
	}

	// Front to back, so "placed" holds the enabled nodes above the current one.
	var placed []*RenderNode
	for i := len(cands) - 1; i >= 0; i-- {
		n := cands[i]
		if reason := v.hwcDisableReasonFor(n, placed, cands[:i]); reason != HwcDisableNone {
			v.disableHwcNode(n, reason)
			continue
		}
		placed = append(placed, n)
	}

	v.prevalidateHwcNodes(cands)

	if dd.hwcForcedDisabled {
		for _, n := range cands {
			v.disableHwcNode(n, HwcDisableDisplay)
		}
	}
	v.recordBufferUpdates(cands)
	v.applyHwcBudget(cands)

	for _, n := range cands {
		v.commitHwcState(n, dd)
	}
}

// hwcDisableReasonFor evaluates reasons 1 through 8 for n. above holds the
// enabled nodes in front of n, below every candidate behind it.
func (v *Visitor) hwcDisableReasonFor(n *RenderNode, above, below []*RenderNode) HwcDisableReason {
	sd := n.surface
	dst := sd.dstRect
	switch {
	case sd.buffer == nil || (sd.bufferPendingUpdate && sd.visibleRegion.IsEmpty()):
		return HwcDisableNoBuffer
	case math.Abs(n.globalAlpha-1) > alphaEpsilon:
		return HwcDisableAlpha
	case n.geo.IsNeedClientCompose():
		return HwcDisableRotation
	}
	for _, a := range above {
		if !a.surface.ForceDirect && a.surface.dstRect.Intersect(dst) {
			return HwcDisableOverlap
		}
	}
	if sd.globalCornerRadius.Max() > 0 {
		for _, b := range below {
			if b.surface.dstRect.Intersect(dst) {
				return HwcDisableCornerOverlap
			}
		}
	}
	if sd.backgroundAlpha < 1 && !v.cfg.Hwc.AllowTranslucentBackground {
		return HwcDisableTranslucentBackground
	}
	if isBufferTooSmall(n) {
		return HwcDisableBufferSize
	}
	for _, f := range v.filters {
		if f.order > n.prepareOrder && f.rect.Intersect(dst) {
			return HwcDisableFilter
		}
	}
	return HwcDisableNone
}

// isBufferTooSmall reports whether showing the buffer would need upscaling.
// The on-screen size is swapped for 90 and 270 degree content.
func isBufferTooSmall(n *RenderNode) bool {
	b := n.surface.buffer
	w, h := n.geo.absRect.Width, n.geo.absRect.Height
	if deg := n.geo.RotationDegree(); deg == 90 || deg == 270 {
		w, h = h, w
	}
	return b.Width < w || b.Height < h
}

// prevalidateHwcNodes asks the backend about every node still enabled. A
// failing backend leaves the decision unchanged.
func (v *Visitor) prevalidateHwcNodes(cands []*RenderNode) {
	if v.prevalidator == nil {
		return
	}
	var reqs []LayerRequest
	for _, n := range cands {
		if n.surface.hwcDisabled {
			continue
		}
		reqs = append(reqs, LayerRequest{
			ID:     n.id,
			Dst:    n.surface.dstRect,
			ZOrder: n.surface.zOrder,
			Type:   CompositionDevice,
		})
	}
	if len(reqs) == 0 {
		return
	}
	verdicts, err := v.prevalidator.Prevalidate(reqs)
	if err != nil {
		Logger().Warn("hwc prevalidate failed", "err", err)
		return
	}
	for _, n := range cands {
		if t, ok := verdicts[n.id]; ok && t == CompositionClient {
			v.disableHwcNode(n, HwcDisablePrevalidate)
		}
	}
}

// commitHwcState merges the dirty caused by n's composition this frame and
// rolls its per-frame hwc state.
//
// A change between overlay and GPU composition dirties the destination on the
// display, and on the owning window when the GPU takes over. A new buffer
// dirties the hwc region when on an overlay and the owning window otherwise.
func (v *Visitor) commitHwcState(n *RenderNode, dd *DisplayData) {
	sd := n.surface
	enabled := !sd.hwcDisabled
	owner := v.ownerDirtyManager(n, dd)
	if enabled != sd.lastFrameHwcEnabled {
		if !enabled {
			owner.MergeDirtyRect(sd.dstRect)
		}
		dd.dm.MergeDirtyRect(sd.dstRect)
		dd.dm.UpdateDirtyRegionInfoForDfx(n.id, DirtyTypeOverlay, sd.dstRect)
	}
	if sd.bufferPendingUpdate {
		if enabled {
			dd.dm.MergeHwcDirtyRect(sd.dstRect)
		} else {
			owner.MergeDirtyRect(sd.dstRect)
		}
		sd.consumedSeq = sd.buffer.Seq
		sd.bufferPendingUpdate = false
	}
	sd.lastFrameHwcEnabled = enabled
	if enabled {
		v.stats.hwcEnabled++
	} else {
		v.stats.hwcDisabled++
	}
	n.staging.HwcEnabled = enabled
}

// ownerDirtyManager returns the dirty manager of the window hosting n, or the
// display's when n has none.
func (v *Visitor) ownerDirtyManager(n *RenderNode, dd *DisplayData) *DirtyRegionManager {
	if app := v.tree.nodes[n.surface.ownerApp]; app != nil && app.surface != nil && app.surface.dm != nil {
		return app.surface.dm
	}
	return dd.dm
}

// HwcDisabledNodes returns the nodes disabled in the last frame with their
// reasons, in the order they were disabled.
func (v *Visitor) HwcDisabledNodes() []HwcDisabledNode {
	out := make([]HwcDisabledNode, len(v.hwcDisabled))
	copy(out, v.hwcDisabled)
	return out
}
