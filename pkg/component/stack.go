package component

import "github.com/odvcencio/componentkit/pkg/layout"

// Direction specifies the main axis of a stack.
type Direction int

const (
	Vertical   Direction = iota // children top to bottom
	Horizontal                  // children left to right
)

// StackChild wraps a component with stack layout properties.
type StackChild struct {
	Component Component
	Grow      float64 // share of leftover main-axis space (0 = fixed)
	Basis     int     // fixed main-axis size (-1 = use measured size)
}

// Fixed creates a child that keeps its measured size.
func Fixed(c Component) StackChild {
	return StackChild{Component: c, Basis: -1}
}

// Flexible creates a child that grows with the given factor.
func Flexible(c Component, grow float64) StackChild {
	return StackChild{Component: c, Grow: grow, Basis: -1}
}

// Sized creates a child with a fixed main-axis size.
func Sized(c Component, basis int) StackChild {
	return StackChild{Component: c, Basis: basis}
}

// Stack lays out children along an axis.
type Stack struct {
	direction Direction
	children  []StackChild
	gap       int
}

// VStack creates a vertical stack.
func VStack(gap int, children ...StackChild) Stack {
	return Stack{direction: Vertical, children: append([]StackChild(nil), children...), gap: gap}
}

// HStack creates a horizontal stack.
func HStack(gap int, children ...StackChild) Stack {
	return Stack{direction: Horizontal, children: append([]StackChild(nil), children...), gap: gap}
}

// Children returns a copy of the stack's children.
func (s Stack) Children() []StackChild {
	return append([]StackChild(nil), s.children...)
}

// Layout measures every child against the cross-axis constraint, then
// distributes any leftover main-axis space to growing children.
func (s Stack) Layout(c layout.Constraints) *layout.Layout {
	n := len(s.children)
	if n == 0 {
		return &layout.Layout{Node: s, Size: c.MinSize()}
	}

	childLayouts := make([]*layout.Layout, n)
	totalMain := 0
	totalGrow := 0.0
	for i, child := range s.children {
		cc := s.childConstraints(c, child.Basis)
		childLayouts[i] = layout.Compute(child.Component, cc)
		totalMain += s.mainSize(childLayouts[i].Size)
		totalGrow += child.Grow
	}
	totalMain += s.gap * (n - 1)

	maxMain := s.mainSize(c.MaxSize())
	if totalGrow > 0 && maxMain != layout.Infinite && totalMain < maxMain {
		available := maxMain - totalMain
		for i, child := range s.children {
			if child.Grow <= 0 {
				continue
			}
			extra := int(float64(available) * child.Grow / totalGrow)
			if extra == 0 {
				continue
			}
			before := s.mainSize(childLayouts[i].Size)
			childLayouts[i] = layout.Compute(child.Component, s.tightMain(c, before+extra))
			totalMain += s.mainSize(childLayouts[i].Size) - before
		}
	}

	children := make([]layout.Child, n)
	offset := 0
	maxCross := 0
	for i, cl := range childLayouts {
		if s.direction == Vertical {
			children[i] = layout.Child{Position: layout.Point{X: 0, Y: offset}, Layout: cl}
		} else {
			children[i] = layout.Child{Position: layout.Point{X: offset, Y: 0}, Layout: cl}
		}
		offset += s.mainSize(cl.Size) + s.gap
		maxCross = max(maxCross, s.crossSize(cl.Size))
	}

	var size layout.Size
	if s.direction == Vertical {
		size = layout.Size{Width: maxCross, Height: totalMain}
	} else {
		size = layout.Size{Width: totalMain, Height: maxCross}
	}
	return &layout.Layout{Node: s, Size: c.Constrain(size), Children: children}
}

func (s Stack) childConstraints(c layout.Constraints, basis int) layout.Constraints {
	if s.direction == Vertical {
		cc := layout.Constraints{MinWidth: c.MinWidth, MaxWidth: c.MaxWidth, MinHeight: 0, MaxHeight: layout.Infinite}
		if basis >= 0 {
			cc.MinHeight, cc.MaxHeight = basis, basis
		}
		return cc
	}
	cc := layout.Constraints{MinWidth: 0, MaxWidth: layout.Infinite, MinHeight: c.MinHeight, MaxHeight: c.MaxHeight}
	if basis >= 0 {
		cc.MinWidth, cc.MaxWidth = basis, basis
	}
	return cc
}

func (s Stack) tightMain(c layout.Constraints, main int) layout.Constraints {
	cc := s.childConstraints(c, -1)
	if s.direction == Vertical {
		cc.MinHeight, cc.MaxHeight = main, main
	} else {
		cc.MinWidth, cc.MaxWidth = main, main
	}
	return cc
}

func (s Stack) mainSize(sz layout.Size) int {
	if s.direction == Vertical {
		return sz.Height
	}
	return sz.Width
}

func (s Stack) crossSize(sz layout.Size) int {
	if s.direction == Vertical {
		return sz.Width
	}
	return sz.Height
}

// Spacer is an empty component that takes up whatever space it is given.
type Spacer struct{}

// Layout sizes the spacer to the minimum the constraints allow.
func (Spacer) Layout(c layout.Constraints) *layout.Layout {
	return &layout.Layout{Node: Spacer{}, Size: c.MinSize()}
}
