package unirender

import (
	"slices"
	"sort"
)

// budgetWindow is the number of recent vsyncs used to rank update frequency.
const budgetWindow = 10

// recordBufferUpdates notes the vsync of every pending buffer update and
// drops entries older than the ranking window.
func (v *Visitor) recordBufferUpdates(cands []*RenderNode) {
	for _, n := range cands {
		sd := n.surface
		if sd.bufferPendingUpdate {
			sd.updateVsyncs = append(sd.updateVsyncs, v.vsync)
			sd.lastUpdateVsync = v.vsync
		}
		keep := sd.updateVsyncs[:0]
		for _, vs := range sd.updateVsyncs {
			if vs+budgetWindow > v.vsync {
				keep = append(keep, vs)
			}
		}
		sd.updateVsyncs = keep
	}
}

type budgetRank struct {
	n           *RenderNode
	whitelisted bool
	idle        bool
	freq        int
}

// applyHwcBudget keeps at most MaxLayers enabled nodes. White-listed windows
// rank first, idle producers last, and the rest by buffer update frequency.
// The limit holds even for white-listed windows. The losers are disabled
// with HwcDisableBudget.
func (v *Visitor) applyHwcBudget(cands []*RenderNode) {
	limit := v.cfg.Hwc.MaxLayers
	if limit <= 0 {
		return
	}
	var ranks []budgetRank
	for _, n := range cands {
		sd := n.surface
		if sd.hwcDisabled {
			continue
		}
		ranks = append(ranks, budgetRank{
			n:           n,
			whitelisted: slices.Contains(v.cfg.Hwc.WhiteList, n.Name),
			idle:        v.vsync-sd.lastUpdateVsync > uint64(v.cfg.Hwc.IdleVsyncCount),
			freq:        len(sd.updateVsyncs),
		})
	}
	if len(ranks) <= limit {
		return
	}
	sort.SliceStable(ranks, func(i, j int) bool {
		a, b := ranks[i], ranks[j]
		if a.whitelisted != b.whitelisted {
			return a.whitelisted
		}
		if a.idle != b.idle {
			return !a.idle
		}
		if a.freq != b.freq {
			return a.freq > b.freq
		}
		return a.n.surface.zOrder > b.n.surface.zOrder
	})
	for _, r := range ranks[limit:] {
		v.disableHwcNode(r.n, HwcDisableBudget)
	}
}
