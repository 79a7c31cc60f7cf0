package unirender

import "math"

// DirtyRegionType tags a DFX dirty record with the reason it was produced.
type DirtyRegionType uint8

const (
	DirtyTypeUpdate      DirtyRegionType = iota // node property or content change
	DirtyTypeOverlay                            // hwc layer transitions
	DirtyTypeFilter                             // filter region pulled in by dirty below it
	DirtyTypeShadow                             // shadow extent
	DirtyTypePreparation                        // surface position or z-order change
	DirtyTypeRemoveChild                        // footprint of a removed child
	DirtyTypeSubtreeSkip                        // dirty re-applied for a skipped subtree
)

// dirtyRects is a short list of separate dirty rectangles. A new rect joins
// the first rect it intersects. When the list is full it joins the closest
// rect by center distance.
type dirtyRects []RectI

func (d dirtyRects) merge(r RectI, limit int) dirtyRects {
	if r.IsEmpty() {
		return d
	}
	if len(d) == 0 {
		return append(d, r)
	}
	minIdx, minDist := 0, math.MaxInt
	for i, e := range d {
		if e.Intersect(r) {
			d[i] = e.JoinRect(r)
			return d
		}
		if dist := roughDistance(e, r); dist < minDist {
			minIdx, minDist = i, dist
		}
	}
	if len(d) < limit {
		return append(d, r)
	}
	d[minIdx] = d[minIdx].JoinRect(r)
	return d
}

func (d dirtyRects) bound() RectI {
	var b RectI
	for _, r := range d {
		b = b.JoinRect(r)
	}
	return b
}

func (d dirtyRects) intersect(clip RectI) dirtyRects {
	out := d[:0]
	for _, r := range d {
		if c := r.IntersectRect(clip); !c.IsEmpty() {
			out = append(out, c)
		}
	}
	return out
}

func roughDistance(a, b RectI) int {
	dx := a.Left + a.Width/2 - b.Left - b.Width/2
	dy := a.Top + a.Height/2 - b.Top - b.Height/2
	if dx < 0 {
		dx = -dx
	}
	if dy < 0 {
		dy = -dy
	}
	return dx + dy
}

// DirtyRegionManager accumulates the area of a surface or display that must
// be redrawn in the current frame. Call Clear at the start of every frame
// before merging.
//
// All merged rects are clamped to the surface rect when one is set, so the
// accumulated region never grows outside the surface. Within one frame the
// region only grows.
type DirtyRegionManager struct {
	surfaceRect RectI

	currentFrameDirty RectI
	currentRects      dirtyRects
	dirtyRegion       RectI
	dirtyRegionRects  dirtyRects
	hwcDirty          RectI
	isDirty           bool

	maxRects  int
	alignSize int
	aligned   bool

	history      []dirtyRects
	historyHead  int
	historyCount int
	bufferAge    int

	visitedDirty []RectI

	dfxEnabled bool
	dfx        map[DirtyRegionType]map[NodeID]RectI
}

// NewDirtyRegionManager creates a manager using the limits in cfg. Zero
// fields fall back to the defaults.
func NewDirtyRegionManager(cfg DirtyConfig) *DirtyRegionManager {
	def := DefaultConfig().Dirty
	if cfg.MaxDirtyRects <= 0 {
		cfg.MaxDirtyRects = def.MaxDirtyRects
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = def.HistorySize
	}
	if cfg.AlignSize <= 0 {
		cfg.AlignSize = def.AlignSize
	}
	return &DirtyRegionManager{
		maxRects:   cfg.MaxDirtyRects,
		alignSize:  cfg.AlignSize,
		history:    make([]dirtyRects, cfg.HistorySize),
		bufferAge:  1,
		dfxEnabled: cfg.DFX,
	}
}

// Clear resets the current-frame dirty state. History and the surface rect
// are kept.
func (m *DirtyRegionManager) Clear() {
	m.currentFrameDirty = RectI{}
	m.currentRects = m.currentRects[:0]
	m.dirtyRegion = RectI{}
	m.dirtyRegionRects = nil
	m.hwcDirty = RectI{}
	m.isDirty = false
	m.aligned = false
	m.visitedDirty = m.visitedDirty[:0]
	if m.dfx != nil {
		clear(m.dfx)
	}
}

// SetSurfaceRect sets the clamping rect for all subsequent merges.
func (m *DirtyRegionManager) SetSurfaceRect(r RectI) {
	m.surfaceRect = r
}

// SetSurfaceSize sets the clamping rect to (0, 0, w, h). Negative sizes are
// rejected.
func (m *DirtyRegionManager) SetSurfaceSize(w, h int) bool {
	if w < 0 || h < 0 {
		return false
	}
	m.surfaceRect = RectI{0, 0, w, h}
	return true
}

// SurfaceRect returns the clamping rect.
func (m *DirtyRegionManager) SurfaceRect() RectI {
	return m.surfaceRect
}

// SetBufferAge records how many frames old the next target buffer is. A
// negative age resets to 0 (full redraw) and returns false.
func (m *DirtyRegionManager) SetBufferAge(age int) bool {
	if age < 0 {
		m.bufferAge = 0
		return false
	}
	m.bufferAge = age
	return true
}

// BufferAge returns the recorded buffer age.
func (m *DirtyRegionManager) BufferAge() int {
	return m.bufferAge
}

// clamp restricts r to the surface rect when one is set.
func (m *DirtyRegionManager) clamp(r RectI) RectI {
	if m.surfaceRect.IsEmpty() {
		return r
	}
	return r.IntersectRect(m.surfaceRect)
}

// MergeDirtyRect adds r to the current-frame dirty region. Empty rects, and
// rects entirely outside the surface, are ignored.
func (m *DirtyRegionManager) MergeDirtyRect(r RectI) {
	r = m.clamp(r)
	if r.IsEmpty() {
		return
	}
	m.currentFrameDirty = m.currentFrameDirty.JoinRect(r)
	m.currentRects = m.currentRects.merge(r, m.maxRects)
	m.isDirty = true
}

// MergeDirtyRectIfIntersect merges r only when it overlaps the current dirty
// region. Reports whether a merge happened.
func (m *DirtyRegionManager) MergeDirtyRectIfIntersect(r RectI) bool {
	if !m.currentFrameDirty.Intersect(r) {
		return false
	}
	m.MergeDirtyRect(r)
	return true
}

// MergeHwcDirtyRect records area changed by hardware-composed layers. It is
// kept apart from the GPU dirty so a mirrored screen still sees it.
func (m *DirtyRegionManager) MergeHwcDirtyRect(r RectI) {
	r = m.clamp(r)
	if r.IsEmpty() {
		return
	}
	m.hwcDirty = m.hwcDirty.JoinRect(r)
}

// HwcDirtyRegion returns the hardware-layer dirty accumulated this frame.
func (m *DirtyRegionManager) HwcDirtyRegion() RectI {
	return m.hwcDirty
}

// IntersectDirtyRect clips the current-frame dirty to r.
func (m *DirtyRegionManager) IntersectDirtyRect(r RectI) {
	m.currentFrameDirty = m.currentFrameDirty.IntersectRect(r)
	m.currentRects = m.currentRects.intersect(r)
}

// ResetDirtyAsSurfaceSize marks the whole surface dirty.
func (m *DirtyRegionManager) ResetDirtyAsSurfaceSize() {
	m.currentFrameDirty = m.surfaceRect
	m.currentRects = append(m.currentRects[:0], m.surfaceRect)
	m.dirtyRegion = m.surfaceRect
	m.dirtyRegionRects = dirtyRects{m.surfaceRect}
	m.isDirty = !m.surfaceRect.IsEmpty()
}

// IsCurrentFrameDirty reports whether anything was merged since Clear.
func (m *DirtyRegionManager) IsCurrentFrameDirty() bool {
	return m.isDirty
}

// CurrentFrameDirtyRegion returns the bound of this frame's merges, before
// buffer-age history is applied.
func (m *DirtyRegionManager) CurrentFrameDirtyRegion() RectI {
	return m.currentFrameDirty
}

// CurrentFrameDirtyRects returns the separate rects merged this frame.
func (m *DirtyRegionManager) CurrentFrameDirtyRects() []RectI {
	out := make([]RectI, len(m.currentRects))
	copy(out, m.currentRects)
	return out
}

// DirtyRegion returns the region to redraw after UpdateDirty.
func (m *DirtyRegionManager) DirtyRegion() RectI {
	return m.dirtyRegion
}

// DirtyRects returns the separate rects that make up DirtyRegion.
func (m *DirtyRegionManager) DirtyRects() []RectI {
	out := make([]RectI, len(m.dirtyRegionRects))
	copy(out, m.dirtyRegionRects)
	return out
}

// MirrorDirtyRegion returns the GPU dirty joined with the hwc dirty, which is
// what a mirrored virtual screen must redraw.
func (m *DirtyRegionManager) MirrorDirtyRegion() RectI {
	return m.dirtyRegion.JoinRect(m.hwcDirty)
}

// UpdateDirty finalizes the frame: pushes the current dirty into history and
// unions the previous bufferAge-1 frames. An age of 0, or an age older than
// the recorded history, yields the full surface. With useAligned the result
// is expanded to align-size multiples and clamped to the surface.
func (m *DirtyRegionManager) UpdateDirty(useAligned bool) {
	cur := make(dirtyRects, len(m.currentRects))
	copy(cur, m.currentRects)
	m.pushHistory(cur)
	m.dirtyRegionRects = m.mergeHistory(m.bufferAge, cur)
	m.dirtyRegion = m.dirtyRegionRects.bound()
	m.aligned = useAligned
	if useAligned {
		m.dirtyRegion = m.alignRect(m.dirtyRegion)
		for i, r := range m.dirtyRegionRects {
			m.dirtyRegionRects[i] = m.alignRect(r)
		}
	}
}

func (m *DirtyRegionManager) pushHistory(r dirtyRects) {
	m.historyHead = (m.historyHead + 1) % len(m.history)
	m.history[m.historyHead] = r
	if m.historyCount < len(m.history) {
		m.historyCount++
	}
}

// historyAt returns the frame i steps before the newest one.
func (m *DirtyRegionManager) historyAt(i int) dirtyRects {
	idx := (m.historyHead - i + len(m.history)) % len(m.history)
	return m.history[idx]
}

func (m *DirtyRegionManager) mergeHistory(age int, cur dirtyRects) dirtyRects {
	if age == 0 || age > m.historyCount {
		if m.surfaceRect.IsEmpty() {
			return append(dirtyRects(nil), cur...)
		}
		return dirtyRects{m.surfaceRect}
	}
	out := make(dirtyRects, len(cur), m.maxRects)
	copy(out, cur)
	for i := 1; i < age; i++ {
		for _, r := range m.historyAt(i) {
			out = out.merge(r, m.maxRects)
		}
	}
	return out
}

// alignRect expands r outward to multiples of the align size, then clamps it
// to the surface.
func (m *DirtyRegionManager) alignRect(r RectI) RectI {
	if r.IsEmpty() || m.alignSize <= 1 {
		return r
	}
	a := m.alignSize
	l := floorDiv(r.Left, a) * a
	t := floorDiv(r.Top, a) * a
	rr := ceilDiv(r.Right(), a) * a
	b := ceilDiv(r.Bottom(), a) * a
	return m.clamp(RectI{l, t, rr - l, b - t})
}

func floorDiv(v, a int) int {
	q := v / a
	if v%a != 0 && v < 0 {
		q--
	}
	return q
}

func ceilDiv(v, a int) int {
	q := v / a
	if v%a != 0 && v > 0 {
		q++
	}
	return q
}

// DirtyRegionFlipWithinSurface returns DirtyRects converted to a bottom-left
// origin, as GL damage APIs expect.
func (m *DirtyRegionManager) DirtyRegionFlipWithinSurface() []RectI {
	out := make([]RectI, 0, len(m.dirtyRegionRects))
	for _, r := range m.dirtyRegionRects {
		r.Top = m.surfaceRect.Height - r.Top - r.Height
		out = append(out, r)
	}
	return out
}

// UpdateVisitedDirtyRects records the dirty of surfaces already visited this
// frame (those painted below the owner of this manager).
func (m *DirtyRegionManager) UpdateVisitedDirtyRects(rects []RectI) {
	m.visitedDirty = append(m.visitedDirty[:0], rects...)
}

// IntersectedVisitedDirtyRect returns the current dirty joined with the part
// of every visited dirty rect that falls inside absRect.
func (m *DirtyRegionManager) IntersectedVisitedDirtyRect(absRect RectI) RectI {
	below := m.currentFrameDirty
	for _, r := range m.visitedDirty {
		if absRect.IsInsideOf(below) {
			break
		}
		below = below.JoinRect(r.IntersectRect(absRect))
	}
	return below
}

// UpdateDirtyRegionInfoForDfx records r under id and typ when DFX is enabled.
func (m *DirtyRegionManager) UpdateDirtyRegionInfoForDfx(id NodeID, typ DirtyRegionType, r RectI) {
	if !m.dfxEnabled || r.IsEmpty() {
		return
	}
	if m.dfx == nil {
		m.dfx = make(map[DirtyRegionType]map[NodeID]RectI)
	}
	byNode := m.dfx[typ]
	if byNode == nil {
		byNode = make(map[NodeID]RectI)
		m.dfx[typ] = byNode
	}
	byNode[id] = r
}

// DirtyRegionInfo returns a copy of the DFX records of type typ.
func (m *DirtyRegionManager) DirtyRegionInfo(typ DirtyRegionType) map[NodeID]RectI {
	out := make(map[NodeID]RectI, len(m.dfx[typ]))
	for id, r := range m.dfx[typ] {
		out[id] = r
	}
	return out
}

