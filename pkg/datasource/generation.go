package datasource

import (
	"github.com/oklog/ulid/v2"

	"github.com/odvcencio/componentkit/pkg/changeset"
	"github.com/odvcencio/componentkit/pkg/component"
	"github.com/odvcencio/componentkit/pkg/layout"
)

// Item is one built row: the model it came from, its component tree and the
// layout computed for it. Items are immutable once part of a Generation and
// are shared between generations when they did not change.
type Item struct {
	ID        string
	Model     any
	Component component.Component
	Layout    *layout.Layout
	Selected  bool
}

// Size returns the item's laid out size, or zero before it was built.
func (it *Item) Size() layout.Size {
	if it == nil || it.Layout == nil {
		return layout.Size{}
	}
	return it.Layout.Size
}

// Section is an ordered run of items.
type Section struct {
	ID    string
	Items []*Item
}

// Generation is an immutable snapshot of the data source: every model item
// with its component tree and layout, under a version number.
type Generation struct {
	version     uint64
	sections    []*Section
	context     any
	constraints layout.Constraints
}

// NewGeneration assembles a generation from sections that are already built.
// The sections are not copied and must not be modified afterwards.
func NewGeneration(version uint64, sections []*Section, context any, constraints layout.Constraints) *Generation {
	return &Generation{
		version:     version,
		sections:    sections,
		context:     context,
		constraints: constraints,
	}
}

func newID() string {
	return ulid.Make().String()
}

// Version returns the generation's version. Versions increase by one for
// every changeset a commit applied.
func (g *Generation) Version() uint64 {
	if g == nil {
		return 0
	}
	return g.version
}

// Context returns the context the generation's components were built with.
func (g *Generation) Context() any {
	if g == nil {
		return nil
	}
	return g.context
}

// Constraints returns the sizing constraints items were laid out against.
func (g *Generation) Constraints() layout.Constraints {
	if g == nil {
		return layout.Constraints{}
	}
	return g.constraints
}

// NumSections returns the number of sections.
func (g *Generation) NumSections() int {
	if g == nil {
		return 0
	}
	return len(g.sections)
}

// NumItems returns the number of items in section, or 0 if it does not exist.
func (g *Generation) NumItems(section int) int {
	if g == nil || section < 0 || section >= len(g.sections) {
		return 0
	}
	return len(g.sections[section].Items)
}

// Section returns the section at index.
func (g *Generation) Section(index int) (*Section, bool) {
	if g == nil || index < 0 || index >= len(g.sections) {
		return nil, false
	}
	return g.sections[index], true
}

// Sections returns the sections. The slice is a copy; sections and items
// must not be modified.
func (g *Generation) Sections() []*Section {
	if g == nil {
		return nil
	}
	return append([]*Section(nil), g.sections...)
}

// ItemAt returns the item at p.
func (g *Generation) ItemAt(p changeset.IndexPath) (*Item, bool) {
	if g == nil || p.Section < 0 || p.Section >= len(g.sections) {
		return nil, false
	}
	items := g.sections[p.Section].Items
	if p.Item < 0 || p.Item >= len(items) {
		return nil, false
	}
	return items[p.Item], true
}

// ModelAt returns the model at p.
func (g *Generation) ModelAt(p changeset.IndexPath) (any, bool) {
	it, ok := g.ItemAt(p)
	if !ok {
		return nil, false
	}
	return it.Model, true
}

// LayoutAt returns the layout computed for the item at p.
func (g *Generation) LayoutAt(p changeset.IndexPath) (*layout.Layout, bool) {
	it, ok := g.ItemAt(p)
	if !ok {
		return nil, false
	}
	return it.Layout, true
}

// Counts returns the number of items in each section.
func (g *Generation) Counts() []int {
	if g == nil {
		return nil
	}
	counts := make([]int, len(g.sections))
	for i, s := range g.sections {
		counts[i] = len(s.Items)
	}
	return counts
}

// Selection returns the paths of selected items in order.
func (g *Generation) Selection() []changeset.IndexPath {
	if g == nil {
		return nil
	}
	var out []changeset.IndexPath
	for s, sec := range g.sections {
		for i, it := range sec.Items {
			if it.Selected {
				out = append(out, changeset.Path(s, i))
			}
		}
	}
	return out
}

// Models returns every model, section by section.
func (g *Generation) Models() [][]any {
	if g == nil {
		return nil
	}
	out := make([][]any, len(g.sections))
	for s, sec := range g.sections {
		models := make([]any, len(sec.Items))
		for i, it := range sec.Items {
			models[i] = it.Model
		}
		out[s] = models
	}
	return out
}
