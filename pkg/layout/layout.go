// Package layout provides the sizing primitives and the immutable layout tree
// produced when a component tree is measured against constraints.
// Units are terminal cells.
package layout

// Constraints define the min/max space available to a component during layout.
type Constraints struct {
	MinWidth, MaxWidth   int
	MinHeight, MaxHeight int
}

// Tight returns constraints that force an exact size.
func Tight(w, h int) Constraints {
	return Constraints{
		MinWidth:  w,
		MaxWidth:  w,
		MinHeight: h,
		MaxHeight: h,
	}
}

// TightWidth returns constraints with exact width, flexible height.
// This is the usual row constraint for a table cell.
func TightWidth(w int) Constraints {
	return Constraints{
		MinWidth:  w,
		MaxWidth:  w,
		MinHeight: 0,
		MaxHeight: Infinite,
	}
}

// Loose returns constraints with only max bounds (min = 0).
func Loose(w, h int) Constraints {
	return Constraints{
		MinWidth:  0,
		MaxWidth:  w,
		MinHeight: 0,
		MaxHeight: h,
	}
}

// Unbounded returns constraints with no limits.
func Unbounded() Constraints {
	return Constraints{
		MinWidth:  0,
		MaxWidth:  Infinite,
		MinHeight: 0,
		MaxHeight: Infinite,
	}
}

// Constrain clamps a size to fit within these constraints.
func (c Constraints) Constrain(s Size) Size {
	return Size{
		Width:  clamp(s.Width, c.MinWidth, c.MaxWidth),
		Height: clamp(s.Height, c.MinHeight, c.MaxHeight),
	}
}

// IsTight returns true if min equals max for both dimensions.
func (c Constraints) IsTight() bool {
	return c.MinWidth == c.MaxWidth && c.MinHeight == c.MaxHeight
}

// MaxSize returns the maximum size allowed by constraints.
func (c Constraints) MaxSize() Size {
	return Size{Width: c.MaxWidth, Height: c.MaxHeight}
}

// MinSize returns the minimum size required by constraints.
func (c Constraints) MinSize() Size {
	return Size{Width: c.MinWidth, Height: c.MinHeight}
}

// Valid reports whether the bounds are non-negative and ordered.
func (c Constraints) Valid() bool {
	return c.MinWidth >= 0 && c.MinHeight >= 0 &&
		c.MinWidth <= c.MaxWidth && c.MinHeight <= c.MaxHeight
}

// Deflate shrinks the constraints by fixed horizontal and vertical amounts,
// as needed when laying out a child inside padding.
func (c Constraints) Deflate(dw, dh int) Constraints {
	return Constraints{
		MinWidth:  max(0, c.MinWidth-dw),
		MaxWidth:  max(0, sub(c.MaxWidth, dw)),
		MinHeight: max(0, c.MinHeight-dh),
		MaxHeight: max(0, sub(c.MaxHeight, dh)),
	}
}

// Size is a component's measured dimensions.
type Size struct {
	Width, Height int
}

// Zero returns true if both dimensions are zero.
func (s Size) Zero() bool {
	return s.Width == 0 && s.Height == 0
}

// Point is a position relative to a parent layout's origin.
type Point struct {
	X, Y int
}

// Add offsets p by o.
func (p Point) Add(o Point) Point {
	return Point{X: p.X + o.X, Y: p.Y + o.Y}
}

// Rect is a positioned rectangle.
type Rect struct {
	X, Y, Width, Height int
}

// NewRect creates a rect from position and size.
func NewRect(x, y, w, h int) Rect {
	return Rect{X: x, Y: y, Width: w, Height: h}
}

// Size returns the rect's dimensions as a Size.
func (r Rect) Size() Size {
	return Size{Width: r.Width, Height: r.Height}
}

// Contains returns true if the point is inside the rect.
func (r Rect) Contains(x, y int) bool {
	return x >= r.X && x < r.X+r.Width && y >= r.Y && y < r.Y+r.Height
}

// Intersection returns the overlapping area of two rects.
func (r Rect) Intersection(other Rect) Rect {
	x := max(r.X, other.X)
	y := max(r.Y, other.Y)
	x2 := min(r.X+r.Width, other.X+other.Width)
	y2 := min(r.Y+r.Height, other.Y+other.Height)
	if x2 <= x || y2 <= y {
		return Rect{}
	}
	return Rect{X: x, Y: y, Width: x2 - x, Height: y2 - y}
}

// Node is anything that can compute its own layout. Components implement it.
type Node interface {
	// Layout returns the node's layout for the constraints. Implementations
	// must not retain or mutate the returned value afterwards.
	Layout(c Constraints) *Layout
}

// Layout is an immutable, computed layout for one node: its final size and
// the positioned layouts of its children.
type Layout struct {
	Node     Node
	Size     Size
	Children []Child
}

// Child is a child layout positioned within its parent.
type Child struct {
	Position Point
	Layout   *Layout
}

// Compute lays out n against c and clamps the result into c, so a node that
// asks for more than it is allowed never escapes its constraints.
func Compute(n Node, c Constraints) *Layout {
	if n == nil {
		return &Layout{Size: c.MinSize()}
	}
	l := n.Layout(c)
	if l == nil {
		return &Layout{Node: n, Size: c.MinSize()}
	}
	constrained := c.Constrain(l.Size)
	if constrained != l.Size {
		l = &Layout{Node: l.Node, Size: constrained, Children: l.Children}
	}
	return l
}

// Walk visits l and its descendants depth first with their absolute origin.
// Returning false from fn skips the node's children.
func Walk(l *Layout, origin Point, fn func(l *Layout, origin Point) bool) {
	if l == nil {
		return
	}
	if !fn(l, origin) {
		return
	}
	for _, child := range l.Children {
		Walk(child.Layout, origin.Add(child.Position), fn)
	}
}

// Infinite marks an unbounded dimension.
const Infinite = int(^uint(0) >> 1)

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// sub subtracts without disturbing an Infinite bound.
func sub(v, d int) int {
	if v == Infinite {
		return Infinite
	}
	return v - d
}
