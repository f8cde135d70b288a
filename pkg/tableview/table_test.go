package tableview

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odvcencio/componentkit/pkg/component"
	apperrors "github.com/odvcencio/componentkit/pkg/errors"
	"github.com/odvcencio/componentkit/pkg/layout"
	"github.com/odvcencio/componentkit/pkg/render"
	"github.com/odvcencio/componentkit/pkg/telemetry"
)

type listSource struct {
	rows  []string
	asked []int
}

func (s *listSource) NumberOfRows() int { return len(s.rows) }

func (s *listSource) ViewForRow(t *Table, row int) *Cell {
	s.asked = append(s.asked, row)
	c := t.MakeView("text")
	c.Model = s.rows[row]
	c.Layout = layout.Compute(component.NewText(s.rows[row], 0), layout.TightWidth(8))
	return c
}

func (s *listSource) HeightOfRow(int) int { return 1 }

func newTable(rows ...string) (*Table, *listSource) {
	src := &listSource{rows: rows}
	t := New(Config{})
	t.SetDataSource(src)
	t.ReloadData()
	return t, src
}

func models(t *Table) []any {
	out := make([]any, t.NumberOfRows())
	for i := range out {
		c, _ := t.CellAt(i)
		out[i] = c.Model
	}
	return out
}

func TestTable_ReloadData(t *testing.T) {
	tbl, _ := newTable("a", "b", "c")
	assert.Equal(t, 3, tbl.NumberOfRows())
	assert.Equal(t, []any{"a", "b", "c"}, models(tbl))
	assert.Equal(t, Stats{Created: 3, Reloads: 1}, tbl.Stats())

	tbl.ReloadData()
	assert.Equal(t, 3, tbl.Stats().Created)
	assert.Equal(t, 3, tbl.Stats().Reused)
}

func TestTable_BatchUsesOldAndNewIndices(t *testing.T) {
	tbl, src := newTable("a", "b", "c", "d")
	src.rows = []string{"b", "x", "d"}

	tbl.BeginUpdates()
	require.NoError(t, tbl.RemoveRows(0, 2))
	require.NoError(t, tbl.InsertRows(1))
	require.NoError(t, tbl.EndUpdates())

	assert.Equal(t, []any{"b", "x", "d"}, models(tbl))
	assert.Equal(t, 1, tbl.Stats().Batches)
}

func TestTable_DeleteInsertReusesCell(t *testing.T) {
	tbl, src := newTable("a", "b")
	removed, _ := tbl.CellAt(0)

	src.rows = []string{"b", "c"}
	tbl.BeginUpdates()
	require.NoError(t, tbl.RemoveRows(0))
	require.NoError(t, tbl.InsertRows(1))
	require.NoError(t, tbl.EndUpdates())

	inserted, ok := tbl.CellAt(1)
	require.True(t, ok)
	assert.Same(t, removed, inserted)
	assert.Equal(t, "c", inserted.Model)
	assert.Equal(t, 2, tbl.Stats().Created)
	assert.Equal(t, 1, tbl.Stats().Reused)
}

func TestTable_MoveKeepsCellAndSelection(t *testing.T) {
	tbl, src := newTable("a", "b", "c")
	require.NoError(t, tbl.SelectRows([]int{0}, false))
	moved, _ := tbl.CellAt(0)
	src.asked = nil

	src.rows = []string{"b", "c", "a"}
	require.NoError(t, tbl.MoveRow(0, 2))

	cell, _ := tbl.CellAt(2)
	assert.Same(t, moved, cell)
	assert.Equal(t, []int{2}, tbl.SelectedRows())
	assert.Empty(t, src.asked, "moves must not rebuild cells")
}

func TestTable_ReloadRows(t *testing.T) {
	tbl, src := newTable("a", "b")
	require.NoError(t, tbl.SelectRows([]int{1}, false))
	before, _ := tbl.CellAt(1)

	src.rows = []string{"a", "B"}
	require.NoError(t, tbl.ReloadRows(1, 1))

	after, _ := tbl.CellAt(1)
	assert.Same(t, before, after)
	assert.Equal(t, "B", after.Model)
	assert.Equal(t, []int{1}, tbl.SelectedRows())
}

func TestTable_InconsistentBatchFallsBack(t *testing.T) {
	hub := telemetry.NewHub()
	defer hub.Close()
	events, unsubscribe := hub.Subscribe()
	defer unsubscribe()

	src := &listSource{rows: []string{"a", "b"}}
	tbl := New(Config{Hub: hub})
	tbl.SetDataSource(src)
	tbl.ReloadData()

	src.rows = []string{"a", "b", "c", "d"}
	err := tbl.InsertRows(2)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeViewInconsistent))
	assert.Equal(t, []any{"a", "b", "c", "d"}, models(tbl))
	assert.Equal(t, 1, tbl.Stats().Fallback)

	select {
	case ev := <-events:
		assert.Equal(t, telemetry.EventViewReloadFallback, ev.Type)
	case <-time.After(time.Second):
		t.Fatal("no fallback event")
	}
}

func TestTable_MalformedBatch(t *testing.T) {
	tests := []struct {
		name  string
		apply func(tbl *Table) error
	}{
		{"remove out of range", func(tbl *Table) error { return tbl.RemoveRows(5) }},
		{"remove twice", func(tbl *Table) error { return tbl.RemoveRows(1, 1) }},
		{"insert out of range", func(tbl *Table) error { return tbl.InsertRows(7) }},
		{"insert twice", func(tbl *Table) error { return tbl.InsertRows(0, 0) }},
		{"reload out of range", func(tbl *Table) error { return tbl.ReloadRows(-1) }},
		{"move out of range", func(tbl *Table) error { return tbl.MoveRow(4, 0) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tbl, _ := newTable("a", "b")
			tbl.BeginUpdates()
			require.NoError(t, tt.apply(tbl), "recorded operations report nothing until EndUpdates")
			err := tbl.EndUpdates()
			assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeViewInconsistent), "got %v", err)
			assert.Equal(t, []any{"a", "b"}, models(tbl))
		})
	}
}

func TestTable_NestedBatches(t *testing.T) {
	tbl, src := newTable("a")
	src.rows = []string{"a", "b", "c"}

	tbl.BeginUpdates()
	require.NoError(t, tbl.InsertRows(1))
	tbl.BeginUpdates()
	require.NoError(t, tbl.InsertRows(2))
	require.NoError(t, tbl.EndUpdates())
	assert.Equal(t, 1, tbl.NumberOfRows(), "inner EndUpdates must not apply")
	require.NoError(t, tbl.EndUpdates())
	assert.Equal(t, []any{"a", "b", "c"}, models(tbl))

	err := tbl.EndUpdates()
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeInternal))
}

func TestTable_Selection(t *testing.T) {
	tbl, src := newTable("a", "b", "c")
	require.NoError(t, tbl.SelectRows([]int{0, 2}, false))
	assert.Equal(t, []int{0, 2}, tbl.SelectedRows())

	src.rows = []string{"x", "a", "c"}
	tbl.BeginUpdates()
	require.NoError(t, tbl.RemoveRows(1))
	require.NoError(t, tbl.InsertRows(0))
	require.NoError(t, tbl.EndUpdates())
	assert.Equal(t, []int{1, 2}, tbl.SelectedRows())

	require.NoError(t, tbl.SelectRows([]int{0}, true))
	assert.Equal(t, []int{0, 1, 2}, tbl.SelectedRows())

	err := tbl.SelectRows([]int{3}, false)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeInvalidInput))
	assert.Equal(t, []int{0, 1, 2}, tbl.SelectedRows())

	tbl.DeselectAll()
	assert.Empty(t, tbl.SelectedRows())
}

func TestTable_ReloadKeepsSelection(t *testing.T) {
	tbl, src := newTable("a", "b", "c")
	require.NoError(t, tbl.SelectRows([]int{0, 2}, false))
	src.rows = []string{"a", "b"}
	tbl.ReloadData()
	assert.Equal(t, []int{0}, tbl.SelectedRows())
}

func TestTable_Render(t *testing.T) {
	tbl, _ := newTable("one", "two", "three")
	require.NoError(t, tbl.SelectRows([]int{1}, false))
	assert.Equal(t, 3, tbl.ContentHeight())

	buf := render.NewBuffer(8, 2)
	tbl.Render(buf)
	assert.Equal(t, []string{" one", "▌two"}, buf.Lines())

	tbl.ScrollToRow(2)
	assert.Equal(t, 2, tbl.TopRow())
	tbl.Render(buf)
	assert.Equal(t, []string{" three", ""}, buf.Lines())

	tbl.ScrollToRow(10)
	assert.Equal(t, 2, tbl.TopRow())
}

func TestCell_SerialSurvivesReuse(t *testing.T) {
	tbl := New(Config{})
	a := tbl.MakeView("x")
	b := tbl.MakeView("x")
	assert.NotEqual(t, a.Serial(), b.Serial())

	tbl.recycle(a)
	again := tbl.MakeView("x")
	assert.Equal(t, a.Serial(), again.Serial())
	assert.Nil(t, again.Model)

	other := tbl.MakeView("y")
	assert.NotEqual(t, a.Serial(), other.Serial())
	assert.Zero(t, (*Cell)(nil).Serial())
}
