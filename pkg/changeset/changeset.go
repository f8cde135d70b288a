// Package changeset describes batches of model mutations against a sectioned
// list: item updates, removals, moves and insertions plus section removals and
// insertions. A Changeset is immutable once built and is consumed exactly once
// by the data source it is handed to.
package changeset

import (
	"cmp"
	"fmt"
	"slices"
	"sync/atomic"
)

// IndexPath addresses one item by section and position within the section.
type IndexPath struct {
	Section int
	Item    int
}

// Path is shorthand for IndexPath{Section: section, Item: item}.
func Path(section, item int) IndexPath {
	return IndexPath{Section: section, Item: item}
}

func (p IndexPath) String() string {
	return fmt.Sprintf("[%d,%d]", p.Section, p.Item)
}

// Compare orders index paths by section, then item.
func Compare(a, b IndexPath) int {
	if c := cmp.Compare(a.Section, b.Section); c != 0 {
		return c
	}
	return cmp.Compare(a.Item, b.Item)
}

// ItemChange pairs an index path with the model to place there.
type ItemChange struct {
	Path  IndexPath
	Model any
}

// Move relocates an item. From is an index path before the changeset is
// applied, To an index path after.
type Move struct {
	From IndexPath
	To   IndexPath
}

// Changeset is an immutable batch of mutations. Updated items, removals and
// move sources use index paths in the pre-change space; insertions and move
// destinations use the post-change space.
type Changeset struct {
	updated          []ItemChange
	removedItems     []IndexPath
	removedSections  []int
	moved            []Move
	insertedSections []int
	insertedItems    []ItemChange

	claimed atomic.Bool
}

// Empty returns a changeset with no mutations. Applying it still produces a
// new generation.
func Empty() *Changeset {
	return &Changeset{}
}

// UpdatedItems returns the updated items in ascending path order.
func (c *Changeset) UpdatedItems() []ItemChange { return slices.Clone(c.updated) }

// RemovedItems returns the removed item paths in ascending order.
func (c *Changeset) RemovedItems() []IndexPath { return slices.Clone(c.removedItems) }

// RemovedSections returns the removed section indexes in ascending order.
func (c *Changeset) RemovedSections() []int { return slices.Clone(c.removedSections) }

// MovedItems returns the moves ordered by source path.
func (c *Changeset) MovedItems() []Move { return slices.Clone(c.moved) }

// InsertedSections returns the inserted section indexes in ascending order.
func (c *Changeset) InsertedSections() []int { return slices.Clone(c.insertedSections) }

// InsertedItems returns the inserted items in ascending path order.
func (c *Changeset) InsertedItems() []ItemChange { return slices.Clone(c.insertedItems) }

// IsEmpty reports whether the changeset carries no mutations.
func (c *Changeset) IsEmpty() bool {
	return len(c.updated) == 0 && len(c.removedItems) == 0 && len(c.removedSections) == 0 &&
		len(c.moved) == 0 && len(c.insertedSections) == 0 && len(c.insertedItems) == 0
}

// HasSectionChanges reports whether sections are inserted or removed.
func (c *Changeset) HasSectionChanges() bool {
	return len(c.removedSections) > 0 || len(c.insertedSections) > 0
}

// Sections returns every section index any mutation refers to, ascending and
// deduplicated.
func (c *Changeset) Sections() []int {
	var out []int
	for _, u := range c.updated {
		out = append(out, u.Path.Section)
	}
	for _, p := range c.removedItems {
		out = append(out, p.Section)
	}
	out = append(out, c.removedSections...)
	for _, m := range c.moved {
		out = append(out, m.From.Section, m.To.Section)
	}
	out = append(out, c.insertedSections...)
	for _, ins := range c.insertedItems {
		out = append(out, ins.Path.Section)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// Claim marks the changeset consumed. It returns false if it already was.
func (c *Changeset) Claim() bool {
	return c.claimed.CompareAndSwap(false, true)
}

// Claimed reports whether the changeset has been consumed.
func (c *Changeset) Claimed() bool {
	return c.claimed.Load()
}

func (c *Changeset) String() string {
	return fmt.Sprintf("changeset{updated=%d removed=%d removedSections=%d moved=%d insertedSections=%d inserted=%d}",
		len(c.updated), len(c.removedItems), len(c.removedSections), len(c.moved), len(c.insertedSections), len(c.insertedItems))
}

// Builder accumulates mutations for a Changeset. It is not safe for
// concurrent use.
type Builder struct {
	cs Changeset
}

// NewBuilder creates an empty builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// WithUpdatedItems replaces the models at the given pre-change paths.
func (b *Builder) WithUpdatedItems(items map[IndexPath]any) *Builder {
	for p, m := range items {
		b.cs.updated = append(b.cs.updated, ItemChange{Path: p, Model: m})
	}
	return b
}

// WithUpdatedItem replaces one model.
func (b *Builder) WithUpdatedItem(p IndexPath, model any) *Builder {
	b.cs.updated = append(b.cs.updated, ItemChange{Path: p, Model: model})
	return b
}

// WithRemovedItems removes items at pre-change paths.
func (b *Builder) WithRemovedItems(paths ...IndexPath) *Builder {
	b.cs.removedItems = append(b.cs.removedItems, paths...)
	return b
}

// WithRemovedSections removes whole sections by pre-change index.
func (b *Builder) WithRemovedSections(sections ...int) *Builder {
	b.cs.removedSections = append(b.cs.removedSections, sections...)
	return b
}

// WithMovedItems moves items from pre-change to post-change paths.
func (b *Builder) WithMovedItems(moves map[IndexPath]IndexPath) *Builder {
	for from, to := range moves {
		b.cs.moved = append(b.cs.moved, Move{From: from, To: to})
	}
	return b
}

// WithMovedItem moves one item.
func (b *Builder) WithMovedItem(from, to IndexPath) *Builder {
	b.cs.moved = append(b.cs.moved, Move{From: from, To: to})
	return b
}

// WithInsertedSections inserts empty sections at post-change indexes.
func (b *Builder) WithInsertedSections(sections ...int) *Builder {
	b.cs.insertedSections = append(b.cs.insertedSections, sections...)
	return b
}

// WithInsertedItems inserts models at post-change paths.
func (b *Builder) WithInsertedItems(items map[IndexPath]any) *Builder {
	for p, m := range items {
		b.cs.insertedItems = append(b.cs.insertedItems, ItemChange{Path: p, Model: m})
	}
	return b
}

// WithInsertedItem inserts one model.
func (b *Builder) WithInsertedItem(p IndexPath, model any) *Builder {
	b.cs.insertedItems = append(b.cs.insertedItems, ItemChange{Path: p, Model: model})
	return b
}

// Build returns the immutable changeset. Duplicates are kept so that
// verification can reject them. The builder may be reused afterwards.
func (b *Builder) Build() *Changeset {
	cs := &Changeset{
		updated:          slices.Clone(b.cs.updated),
		removedItems:     slices.Clone(b.cs.removedItems),
		removedSections:  slices.Clone(b.cs.removedSections),
		moved:            slices.Clone(b.cs.moved),
		insertedSections: slices.Clone(b.cs.insertedSections),
		insertedItems:    slices.Clone(b.cs.insertedItems),
	}
	byPath := func(a, b ItemChange) int { return Compare(a.Path, b.Path) }
	slices.SortStableFunc(cs.updated, byPath)
	slices.SortStableFunc(cs.insertedItems, byPath)
	slices.SortFunc(cs.removedItems, Compare)
	slices.Sort(cs.removedSections)
	slices.SortStableFunc(cs.moved, func(a, b Move) int { return Compare(a.From, b.From) })
	slices.Sort(cs.insertedSections)
	return cs
}
