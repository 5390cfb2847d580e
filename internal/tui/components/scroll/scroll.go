// Package scroll keeps the selected suggestion inside the visible part of
// the overlay's scroll region.
package scroll

import "github.com/charmbracelet/bubbles/viewport"

type Section int

const (
	Presets Section = iota
	Dynamic
)

func (s Section) String() string {
	if s == Presets {
		return "presets"
	}
	return "dynamic"
}

// Target addresses a rendered item by section and 1-based child position.
type Target struct {
	Section Section
	Child   int
}

// TargetFor maps a selection index over the merged list to the element that
// renders it. Presets come first, so a selection past them lands on child
// selection-presets+1 of the dynamic section.
func TargetFor(selection, presets int) Target {
	if selection < presets {
		return Target{Section: Presets, Child: selection + 1}
	}
	return Target{Section: Dynamic, Child: selection - presets + 1}
}

// Layout locates rendered children, in rows of the scroll region's content.
type Layout interface {
	Child(section Section, n int) (top, height int, ok bool)
}

// Region is a scrollable window over the content.
type Region interface {
	YOffset() int
	Height() int
	SetYOffset(n int)
}

// mounter is implemented by regions that can exist before their backing
// container does.
type mounter interface {
	Mounted() bool
}

type span struct {
	top, height int
}

// Rows is a Layout recorded while rendering.
type Rows struct {
	sections [2][]span
}

// Add records the next child of section at the given row.
func (r *Rows) Add(section Section, top, height int) {
	r.sections[section] = append(r.sections[section], span{top: top, height: height})
}

func (r *Rows) Reset() {
	r.sections[Presets] = r.sections[Presets][:0]
	r.sections[Dynamic] = r.sections[Dynamic][:0]
}

func (r *Rows) Len(section Section) int {
	if r == nil {
		return 0
	}
	return len(r.sections[section])
}

func (r *Rows) Child(section Section, n int) (int, int, bool) {
	if r == nil {
		return 0, 0, false
	}
	children := r.sections[section]
	if n < 1 || n > len(children) {
		return 0, 0, false
	}
	s := children[n-1]
	return s.top, s.height, true
}

// IntoNearestEdge returns the offset that brings [top, top+size) into a
// view of viewHeight rows, moving as little as possible. An element that is
// already fully visible leaves the offset unchanged.
func IntoNearestEdge(offset, viewHeight, top, size int) int {
	switch {
	case top < offset:
		return top
	case top+size > offset+viewHeight:
		if size >= viewHeight {
			return top
		}
		return top + size - viewHeight
	default:
		return offset
	}
}

// Synchronizer scrolls once per selection change.
type Synchronizer struct {
	last   int
	synced bool
}

// Invalidate forces the next Sync to run, as after the content changed.
func (s *Synchronizer) Invalidate() {
	s.synced = false
}

// Sync brings the element rendering selection into view. It does nothing
// when the selection is unchanged since the last sync or when there is no
// region or rendered element to scroll to.
func (s *Synchronizer) Sync(region Region, layout Layout, selection, presets int) bool {
	if region == nil || layout == nil {
		return false
	}
	if m, ok := region.(mounter); ok && !m.Mounted() {
		return false
	}
	if s.synced && s.last == selection {
		return false
	}
	t := TargetFor(selection, presets)
	top, height, ok := layout.Child(t.Section, t.Child)
	if !ok {
		return false
	}
	s.last = selection
	s.synced = true

	offset := IntoNearestEdge(region.YOffset(), region.Height(), top, height)
	if offset != region.YOffset() {
		region.SetYOffset(offset)
	}
	return true
}

// Viewport adapts a bubbles viewport to Region.
type Viewport struct {
	vp *viewport.Model
}

func NewViewport(vp *viewport.Model) Viewport {
	return Viewport{vp: vp}
}

// Mounted reports whether the adapter wraps a viewport.
func (v Viewport) Mounted() bool {
	return v.vp != nil
}

func (v Viewport) YOffset() int {
	if v.vp == nil {
		return 0
	}
	return v.vp.YOffset
}

func (v Viewport) Height() int {
	if v.vp == nil {
		return 0
	}
	return v.vp.Height
}

func (v Viewport) SetYOffset(n int) {
	if v.vp == nil {
		return
	}
	v.vp.SetYOffset(n)
}
