package component

import (
	"github.com/odvcencio/componentkit/pkg/layout"
	"github.com/odvcencio/componentkit/pkg/render"
)

// Insets are padding amounts in cells.
type Insets struct {
	Top, Right, Bottom, Left int
}

// Uniform returns equal insets on every side.
func Uniform(n int) Insets {
	return Insets{Top: n, Right: n, Bottom: n, Left: n}
}

// Inset pads a child component.
type Inset struct {
	insets Insets
	child  Component
}

// NewInset wraps child with padding.
func NewInset(insets Insets, child Component) Inset {
	return Inset{insets: insets, child: child}
}

// Layout lays the child out in the deflated constraints and offsets it.
func (in Inset) Layout(c layout.Constraints) *layout.Layout {
	dw := in.insets.Left + in.insets.Right
	dh := in.insets.Top + in.insets.Bottom
	childLayout := layout.Compute(in.child, c.Deflate(dw, dh))
	size := layout.Size{
		Width:  childLayout.Size.Width + dw,
		Height: childLayout.Size.Height + dh,
	}
	return &layout.Layout{
		Node: in,
		Size: c.Constrain(size),
		Children: []layout.Child{{
			Position: layout.Point{X: in.insets.Left, Y: in.insets.Top},
			Layout:   childLayout,
		}},
	}
}

// Border draws a box around a child, inset by one cell.
type Border struct {
	Inset
}

// NewBorder wraps child with a one-cell box.
func NewBorder(child Component) Border {
	return Border{Inset: NewInset(Uniform(1), child)}
}

// Layout is the inset layout with the border as its node.
func (b Border) Layout(c layout.Constraints) *layout.Layout {
	l := b.Inset.Layout(c)
	l.Node = b
	return l
}

// Draw paints the box.
func (b Border) Draw(c render.Canvas, l *layout.Layout) {
	w, h := l.Size.Width, l.Size.Height
	if w < 2 || h < 2 {
		return
	}
	c.Set(0, 0, '┌')
	c.Set(w-1, 0, '┐')
	c.Set(0, h-1, '└')
	c.Set(w-1, h-1, '┘')
	for x := 1; x < w-1; x++ {
		c.Set(x, 0, '─')
		c.Set(x, h-1, '─')
	}
	for y := 1; y < h-1; y++ {
		c.Set(0, y, '│')
		c.Set(w-1, y, '│')
	}
}
