package changeset

import (
	"slices"

	apperrors "github.com/odvcencio/componentkit/pkg/errors"
)

// Funcs tells ApplyFunc how to read and rebuild sections of type S holding
// items of type T, and how to produce inserted and updated items.
type Funcs[S, T any] struct {
	Items      func(S) []T
	WithItems  func(S, []T) S
	NewSection func() S
	Insert     func(ItemChange) T
	Update     func(old T, change ItemChange) T
}

// Apply applies cs to a plain sectioned list. The input is not modified.
func Apply[T any](sections [][]T, cs *Changeset, insert func(ItemChange) T, update func(T, ItemChange) T) ([][]T, error) {
	return ApplyFunc(sections, cs, Funcs[[]T, T]{
		Items:      func(s []T) []T { return s },
		WithItems:  func(_ []T, items []T) []T { return items },
		NewSection: func() []T { return nil },
		Insert:     insert,
		Update:     update,
	})
}

// Verify checks cs against a shape given as per-section item counts and
// returns the shape after application.
func Verify(counts []int, cs *Changeset) ([]int, error) {
	shape := make([][]struct{}, len(counts))
	for i, n := range counts {
		shape[i] = make([]struct{}, n)
	}
	out, err := Apply(shape, cs,
		func(ItemChange) struct{} { return struct{}{} },
		func(old struct{}, _ ItemChange) struct{} { return old },
	)
	if err != nil {
		return nil, err
	}
	return Counts(out), nil
}

// Counts returns the number of items in every section.
func Counts[T any](sections [][]T) []int {
	counts := make([]int, len(sections))
	for i, s := range sections {
		counts[i] = len(s)
	}
	return counts
}

type removal struct {
	path IndexPath
	move int // index into moves, or -1 for a plain removal
}

type insertion struct {
	path   IndexPath
	change ItemChange
	move   int // index into moves, or -1 for a plain insertion
}

// ApplyFunc applies cs to sections and returns the resulting sections. The
// input slices are never modified; untouched items are carried over as is.
//
// Mutations are applied in a fixed order: updates at pre-change paths, item
// removals and move sources at pre-change paths (descending), section
// removals (descending), section insertions (ascending), then item insertions
// and move destinations at post-change paths (ascending). Any path that is out
// of range at the step that uses it, or that appears twice within a step,
// rejects the whole changeset.
func ApplyFunc[S, T any](sections []S, cs *Changeset, fn Funcs[S, T]) ([]S, error) {
	if cs == nil {
		return nil, apperrors.New(apperrors.ErrCodeChangesetRejected, "nil changeset")
	}

	secs := slices.Clone(sections)
	items := make([][]T, len(sections))
	for i, s := range sections {
		items[i] = slices.Clone(fn.Items(s))
	}
	inRange := func(p IndexPath) bool {
		return p.Section >= 0 && p.Section < len(items) && p.Item >= 0 && p.Item < len(items[p.Section])
	}

	// Updates.
	for i, u := range cs.updated {
		if i > 0 && cs.updated[i-1].Path == u.Path {
			return nil, rejectPath("duplicate updated item", u.Path)
		}
		if !inRange(u.Path) {
			return nil, rejectPath("updated item out of range", u.Path)
		}
		items[u.Path.Section][u.Path.Item] = fn.Update(items[u.Path.Section][u.Path.Item], u)
	}

	// Item removals and move sources.
	removals := make([]removal, 0, len(cs.removedItems)+len(cs.moved))
	for _, p := range cs.removedItems {
		removals = append(removals, removal{path: p, move: -1})
	}
	for i, m := range cs.moved {
		removals = append(removals, removal{path: m.From, move: i})
	}
	slices.SortFunc(removals, func(a, b removal) int { return Compare(b.path, a.path) })
	for i, r := range removals {
		if i > 0 && removals[i-1].path == r.path {
			return nil, rejectPath("item removed or moved twice", r.path)
		}
		if !inRange(r.path) {
			return nil, rejectPath("removed item out of range", r.path)
		}
	}
	for _, u := range cs.updated {
		if _, found := slices.BinarySearchFunc(cs.removedItems, u.Path, Compare); found {
			return nil, rejectPath("item both updated and removed", u.Path)
		}
	}
	carried := make([]T, len(cs.moved))
	for _, r := range removals {
		s := r.path.Section
		if r.move >= 0 {
			carried[r.move] = items[s][r.path.Item]
		}
		items[s] = slices.Delete(items[s], r.path.Item, r.path.Item+1)
	}

	// Section removals.
	for i := len(cs.removedSections) - 1; i >= 0; i-- {
		s := cs.removedSections[i]
		if i > 0 && cs.removedSections[i-1] == s {
			return nil, rejectSection("section removed twice", s)
		}
		if s < 0 || s >= len(secs) {
			return nil, rejectSection("removed section out of range", s)
		}
		secs = slices.Delete(secs, s, s+1)
		items = slices.Delete(items, s, s+1)
	}

	// Section insertions.
	for i, s := range cs.insertedSections {
		if i > 0 && cs.insertedSections[i-1] == s {
			return nil, rejectSection("section inserted twice", s)
		}
		if s < 0 || s > len(secs) {
			return nil, rejectSection("inserted section out of range", s)
		}
		secs = slices.Insert(secs, s, fn.NewSection())
		items = slices.Insert(items, s, []T(nil))
	}

	// Item insertions and move destinations.
	insertions := make([]insertion, 0, len(cs.insertedItems)+len(cs.moved))
	for _, ins := range cs.insertedItems {
		insertions = append(insertions, insertion{path: ins.Path, change: ins, move: -1})
	}
	for i, m := range cs.moved {
		insertions = append(insertions, insertion{path: m.To, move: i})
	}
	slices.SortStableFunc(insertions, func(a, b insertion) int { return Compare(a.path, b.path) })
	for i, ins := range insertions {
		p := ins.path
		if i > 0 && insertions[i-1].path == p {
			return nil, rejectPath("item inserted or moved to the same path twice", p)
		}
		if p.Section < 0 || p.Section >= len(items) || p.Item < 0 || p.Item > len(items[p.Section]) {
			return nil, rejectPath("inserted item out of range", p)
		}
		var item T
		if ins.move >= 0 {
			item = carried[ins.move]
		} else {
			item = fn.Insert(ins.change)
		}
		items[p.Section] = slices.Insert(items[p.Section], p.Item, item)
	}

	for i := range secs {
		secs[i] = fn.WithItems(secs[i], items[i])
	}
	return secs, nil
}

func rejectPath(msg string, p IndexPath) *apperrors.Error {
	return apperrors.New(apperrors.ErrCodeChangesetRejected, msg+" at "+p.String()).
		WithContext("section", p.Section).
		WithContext("item", p.Item)
}

func rejectSection(msg string, section int) *apperrors.Error {
	return apperrors.Newf(apperrors.ErrCodeChangesetRejected, "%s at %d", msg, section).
		WithContext("section", section)
}
