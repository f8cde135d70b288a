// Package component provides immutable component trees: declarative
// descriptions of a UI subtree derived from a model item. A component knows
// how to lay itself out against constraints and how to draw the layout it
// produced. Components are values; once built they are never mutated, so a
// tree can be shared freely between goroutines and between generations.
package component

import (
	"github.com/odvcencio/componentkit/pkg/layout"
	"github.com/odvcencio/componentkit/pkg/render"
)

// Component is the unit of a component tree.
type Component interface {
	layout.Node
}

// Drawer is implemented by components that paint something themselves.
// Draw receives a canvas clipped to the component's frame.
type Drawer interface {
	Draw(c render.Canvas, l *layout.Layout)
}

// Provider builds the component tree for one model item.
//
// Implementations are called concurrently from background build workers and
// must not share mutable state between calls. A returned error (or a panic)
// fails the build of the changeset that made the item dirty.
type Provider interface {
	Component(model any, selected bool, context any) (Component, error)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(model any, selected bool, context any) (Component, error)

// Component calls f.
func (f ProviderFunc) Component(model any, selected bool, context any) (Component, error) {
	return f(model, selected, context)
}

// Render draws a computed layout tree into buf at origin.
func Render(buf *render.Buffer, l *layout.Layout, origin layout.Point) {
	layout.Walk(l, origin, func(node *layout.Layout, at layout.Point) bool {
		if d, ok := node.Node.(Drawer); ok {
			frame := layout.Rect{X: at.X, Y: at.Y, Width: node.Size.Width, Height: node.Size.Height}
			d.Draw(buf.Sub(frame), node)
		}
		return true
	})
}

// Count returns the number of components in a layout tree.
func Count(l *layout.Layout) int {
	n := 0
	layout.Walk(l, layout.Point{}, func(*layout.Layout, layout.Point) bool {
		n++
		return true
	})
	return n
}
