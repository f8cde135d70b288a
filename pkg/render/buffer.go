// Package render provides the cell grid that component trees draw into.
package render

import (
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/odvcencio/componentkit/pkg/layout"
)

// Buffer is a 2D grid of runes. Components draw into it, then the host
// flushes it. Wide runes occupy two cells; the second holds 0.
// Supports dirty tracking so a host can redraw only what changed.
type Buffer struct {
	cells  []rune
	width  int
	height int

	dirty      []bool
	dirtyCount int
	dirtyRect  layout.Rect
}

// NewBuffer creates a buffer with the given dimensions, filled with spaces.
func NewBuffer(w, h int) *Buffer {
	b := &Buffer{
		cells:  make([]rune, w*h),
		dirty:  make([]bool, w*h),
		width:  w,
		height: h,
	}
	for i := range b.cells {
		b.cells[i] = ' '
	}
	return b
}

// Size returns the buffer dimensions.
func (b *Buffer) Size() (w, h int) {
	return b.width, b.height
}

// Resize changes the buffer dimensions, preserving content where possible.
func (b *Buffer) Resize(w, h int) {
	if w == b.width && h == b.height {
		return
	}
	newCells := make([]rune, w*h)
	for i := range newCells {
		newCells[i] = ' '
	}
	for y := 0; y < min(h, b.height); y++ {
		for x := 0; x < min(w, b.width); x++ {
			newCells[y*w+x] = b.cells[y*b.width+x]
		}
	}
	b.cells = newCells
	b.dirty = make([]bool, w*h)
	b.width = w
	b.height = h
	b.MarkAllDirty()
}

// Clear fills the buffer with spaces.
func (b *Buffer) Clear() {
	b.Fill(layout.Rect{Width: b.width, Height: b.height}, ' ')
}

// Get returns the rune at position (x, y), or a space if out of bounds.
func (b *Buffer) Get(x, y int) rune {
	if x < 0 || x >= b.width || y < 0 || y >= b.height {
		return ' '
	}
	return b.cells[y*b.width+x]
}

// Set writes a rune at (x, y). No-op if out of bounds.
func (b *Buffer) Set(x, y int, r rune) {
	if x < 0 || x >= b.width || y < 0 || y >= b.height {
		return
	}
	idx := y*b.width + x
	if b.cells[idx] != r {
		b.cells[idx] = r
		b.markCellDirty(x, y, idx)
	}
}

// SetString writes s starting at (x, y), advancing by display width and
// clipping at the right edge. It returns the number of cells written.
func (b *Buffer) SetString(x, y int, s string) int {
	return b.setStringClipped(x, y, s, layout.Rect{Width: b.width, Height: b.height})
}

func (b *Buffer) setStringClipped(x, y int, s string, clip layout.Rect) int {
	if y < clip.Y || y >= clip.Y+clip.Height {
		return 0
	}
	right := clip.X + clip.Width
	px := x
	for _, r := range s {
		w := runewidth.RuneWidth(r)
		if w == 0 {
			continue
		}
		if px+w > right {
			break
		}
		if px >= clip.X {
			b.Set(px, y, r)
			if w == 2 {
				b.Set(px+1, y, 0)
			}
		}
		px += w
	}
	return px - x
}

// Fill fills a rectangular region with a rune.
func (b *Buffer) Fill(r layout.Rect, ch rune) {
	x0 := max(0, r.X)
	y0 := max(0, r.Y)
	x1 := min(b.width, r.X+r.Width)
	y1 := min(b.height, r.Y+r.Height)

	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			idx := y*b.width + x
			if b.cells[idx] != ch {
				b.cells[idx] = ch
				b.markCellDirty(x, y, idx)
			}
		}
	}
}

// DrawBox draws a border around a rect using box-drawing characters.
func (b *Buffer) DrawBox(r layout.Rect) {
	if r.Width < 2 || r.Height < 2 {
		return
	}

	b.Set(r.X, r.Y, '┌')
	b.Set(r.X+r.Width-1, r.Y, '┐')
	b.Set(r.X, r.Y+r.Height-1, '└')
	b.Set(r.X+r.Width-1, r.Y+r.Height-1, '┘')

	for x := r.X + 1; x < r.X+r.Width-1; x++ {
		b.Set(x, r.Y, '─')
		b.Set(x, r.Y+r.Height-1, '─')
	}

	for y := r.Y + 1; y < r.Y+r.Height-1; y++ {
		b.Set(r.X, y, '│')
		b.Set(r.X+r.Width-1, y, '│')
	}
}

// Line returns row y as a string with trailing spaces trimmed.
func (b *Buffer) Line(y int) string {
	if y < 0 || y >= b.height {
		return ""
	}
	var sb strings.Builder
	for _, r := range b.cells[y*b.width : (y+1)*b.width] {
		if r == 0 {
			continue
		}
		sb.WriteRune(r)
	}
	return strings.TrimRight(sb.String(), " ")
}

// Lines returns every row, see Line.
func (b *Buffer) Lines() []string {
	lines := make([]string, b.height)
	for y := range lines {
		lines[y] = b.Line(y)
	}
	return lines
}

// String joins Lines with newlines.
func (b *Buffer) String() string {
	return strings.Join(b.Lines(), "\n")
}

// SubBuffer is a view into a rectangular region of a Buffer.
// Writes are translated and clipped to the region.
type SubBuffer struct {
	parent *Buffer
	bounds layout.Rect
}

// Sub creates a SubBuffer for the given region, clipped to the buffer.
func (b *Buffer) Sub(r layout.Rect) *SubBuffer {
	return &SubBuffer{parent: b, bounds: r.Intersection(layout.Rect{Width: b.width, Height: b.height})}
}

// Size returns the sub-buffer dimensions.
func (s *SubBuffer) Size() (w, h int) {
	return s.bounds.Width, s.bounds.Height
}

// Set writes a rune at a position relative to the sub-buffer.
func (s *SubBuffer) Set(x, y int, r rune) {
	if x < 0 || x >= s.bounds.Width || y < 0 || y >= s.bounds.Height {
		return
	}
	s.parent.Set(s.bounds.X+x, s.bounds.Y+y, r)
}

// SetString writes a string at a position relative to the sub-buffer.
func (s *SubBuffer) SetString(x, y int, str string) int {
	return s.parent.setStringClipped(s.bounds.X+x, s.bounds.Y+y, str, s.bounds)
}

// Clear fills the sub-buffer region with spaces.
func (s *SubBuffer) Clear() {
	s.parent.Fill(s.bounds, ' ')
}

// Canvas is the drawing surface components render into.
type Canvas interface {
	Size() (w, h int)
	Set(x, y int, r rune)
	SetString(x, y int, s string) int
}

var (
	_ Canvas = (*Buffer)(nil)
	_ Canvas = (*SubBuffer)(nil)
)

func (b *Buffer) markCellDirty(x, y, idx int) {
	if b.dirty[idx] {
		return
	}
	b.dirty[idx] = true
	b.dirtyCount++

	if b.dirtyCount == 1 {
		b.dirtyRect = layout.Rect{X: x, Y: y, Width: 1, Height: 1}
		return
	}
	if x < b.dirtyRect.X {
		b.dirtyRect.Width += b.dirtyRect.X - x
		b.dirtyRect.X = x
	} else if x >= b.dirtyRect.X+b.dirtyRect.Width {
		b.dirtyRect.Width = x - b.dirtyRect.X + 1
	}
	if y < b.dirtyRect.Y {
		b.dirtyRect.Height += b.dirtyRect.Y - y
		b.dirtyRect.Y = y
	} else if y >= b.dirtyRect.Y+b.dirtyRect.Height {
		b.dirtyRect.Height = y - b.dirtyRect.Y + 1
	}
}

// MarkAllDirty marks the entire buffer as dirty.
func (b *Buffer) MarkAllDirty() {
	for i := range b.dirty {
		b.dirty[i] = true
	}
	b.dirtyCount = len(b.dirty)
	b.dirtyRect = layout.Rect{Width: b.width, Height: b.height}
}

// ClearDirty resets all dirty flags.
func (b *Buffer) ClearDirty() {
	clear(b.dirty)
	b.dirtyCount = 0
	b.dirtyRect = layout.Rect{}
}

// IsDirty returns true if any cells have changed.
func (b *Buffer) IsDirty() bool {
	return b.dirtyCount > 0
}

// DirtyCount returns the number of dirty cells.
func (b *Buffer) DirtyCount() int {
	return b.dirtyCount
}

// DirtyRect returns the bounding box of dirty cells.
func (b *Buffer) DirtyRect() layout.Rect {
	return b.dirtyRect
}

// DirtyRows returns the indices of rows holding at least one dirty cell.
func (b *Buffer) DirtyRows() []int {
	if b.dirtyCount == 0 {
		return nil
	}
	var rows []int
	for y := b.dirtyRect.Y; y < b.dirtyRect.Y+b.dirtyRect.Height && y < b.height; y++ {
		for x := b.dirtyRect.X; x < b.dirtyRect.X+b.dirtyRect.Width && x < b.width; x++ {
			if b.dirty[y*b.width+x] {
				rows = append(rows, y)
				break
			}
		}
	}
	return rows
}
