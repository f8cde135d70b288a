// Package reconcile turns a commit into the view operations that take a live
// view from the old generation to the new one, and applies them in a single
// batch on the main loop.
package reconcile

import (
	"slices"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/odvcencio/componentkit/pkg/changeset"
	"github.com/odvcencio/componentkit/pkg/datasource"
)

// Move relocates an unchanged item. From is an old path, To a new one.
type Move struct {
	From changeset.IndexPath
	To   changeset.IndexPath
}

// Update is an item kept across the commit whose component was rebuilt.
type Update struct {
	From changeset.IndexPath
	To   changeset.IndexPath
}

// Batch is the set of view operations between two generations. Deletions
// and update sources use old paths; insertions and move or update
// destinations use new paths. Items inside deleted or inserted sections are
// not listed individually.
type Batch struct {
	DeletedSections  []int
	InsertedSections []int
	DeletedItems     []changeset.IndexPath
	InsertedItems    []changeset.IndexPath
	Moves            []Move
	Updates          []Update
}

// Empty reports whether the batch changes nothing.
func (b Batch) Empty() bool {
	return len(b.DeletedSections) == 0 && len(b.InsertedSections) == 0 &&
		len(b.DeletedItems) == 0 && len(b.InsertedItems) == 0 &&
		len(b.Moves) == 0 && len(b.Updates) == 0
}

// Size returns the number of operations in the batch.
func (b Batch) Size() int {
	return len(b.DeletedSections) + len(b.InsertedSections) + len(b.DeletedItems) +
		len(b.InsertedItems) + len(b.Moves) + len(b.Updates)
}

type located struct {
	path changeset.IndexPath
	item *datasource.Item
}

// Diff computes the batch between two generations. Sections and items are
// matched by ID with a sequence matcher, so the edit script keeps the longest
// matching runs in place. An item removed from one place and inserted in
// another, unchanged, becomes a move; if its component was rebuilt it is
// deleted and inserted instead.
func Diff(prev, next *datasource.Generation) Batch {
	var b Batch
	oldSections := prev.Sections()
	newSections := next.Sections()

	sm := difflib.NewMatcher(sectionIDs(oldSections), sectionIDs(newSections))
	var deleted, inserted []located
	for _, op := range sm.GetOpCodes() {
		switch op.Tag {
		case 'e':
			for k := 0; k < op.I2-op.I1; k++ {
				os, ns := op.I1+k, op.J1+k
				d, i := diffItems(&b, os, ns, oldSections[os], newSections[ns])
				deleted = append(deleted, d...)
				inserted = append(inserted, i...)
			}
		case 'd':
			b.DeletedSections = appendRange(b.DeletedSections, op.I1, op.I2)
		case 'i':
			b.InsertedSections = appendRange(b.InsertedSections, op.J1, op.J2)
		case 'r':
			b.DeletedSections = appendRange(b.DeletedSections, op.I1, op.I2)
			b.InsertedSections = appendRange(b.InsertedSections, op.J1, op.J2)
		}
	}

	byID := make(map[string]located, len(deleted))
	for _, d := range deleted {
		byID[d.item.ID] = d
	}
	moved := make(map[string]bool)
	for _, ins := range inserted {
		d, ok := byID[ins.item.ID]
		if !ok || d.item != ins.item {
			continue
		}
		b.Moves = append(b.Moves, Move{From: d.path, To: ins.path})
		moved[ins.item.ID] = true
	}
	for _, d := range deleted {
		if !moved[d.item.ID] {
			b.DeletedItems = append(b.DeletedItems, d.path)
		}
	}
	for _, ins := range inserted {
		if !moved[ins.item.ID] {
			b.InsertedItems = append(b.InsertedItems, ins.path)
		}
	}

	slices.SortFunc(b.DeletedItems, changeset.Compare)
	slices.SortFunc(b.InsertedItems, changeset.Compare)
	slices.SortFunc(b.Moves, func(x, y Move) int { return changeset.Compare(x.From, y.From) })
	slices.SortFunc(b.Updates, func(x, y Update) int { return changeset.Compare(x.From, y.From) })
	return b
}

// diffItems matches the items of a section kept across the commit. Unmatched
// items are returned for move detection; matched items with a rebuilt
// component are recorded as updates.
func diffItems(b *Batch, oldIndex, newIndex int, prev, next *datasource.Section) (deleted, inserted []located) {
	if prev == next {
		return nil, nil
	}
	sm := difflib.NewMatcher(itemIDs(prev.Items), itemIDs(next.Items))
	for _, op := range sm.GetOpCodes() {
		switch op.Tag {
		case 'e':
			for k := 0; k < op.I2-op.I1; k++ {
				oi, ni := op.I1+k, op.J1+k
				if prev.Items[oi] != next.Items[ni] {
					b.Updates = append(b.Updates, Update{
						From: changeset.Path(oldIndex, oi),
						To:   changeset.Path(newIndex, ni),
					})
				}
			}
		case 'd', 'r', 'i':
			for oi := op.I1; oi < op.I2; oi++ {
				deleted = append(deleted, located{path: changeset.Path(oldIndex, oi), item: prev.Items[oi]})
			}
			for ni := op.J1; ni < op.J2; ni++ {
				inserted = append(inserted, located{path: changeset.Path(newIndex, ni), item: next.Items[ni]})
			}
		}
	}
	return deleted, inserted
}

func sectionIDs(sections []*datasource.Section) []string {
	ids := make([]string, len(sections))
	for i, s := range sections {
		ids[i] = s.ID
	}
	return ids
}

func itemIDs(items []*datasource.Item) []string {
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	return ids
}

func appendRange(dst []int, from, to int) []int {
	for i := from; i < to; i++ {
		dst = append(dst, i)
	}
	return dst
}
