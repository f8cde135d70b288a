package tablesource

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odvcencio/componentkit/pkg/changeset"
	"github.com/odvcencio/componentkit/pkg/component"
	"github.com/odvcencio/componentkit/pkg/datasource"
	apperrors "github.com/odvcencio/componentkit/pkg/errors"
	"github.com/odvcencio/componentkit/pkg/layout"
	"github.com/odvcencio/componentkit/pkg/mainloop"
	"github.com/odvcencio/componentkit/pkg/render"
	"github.com/odvcencio/componentkit/pkg/tableview"
)

var textProvider = component.ProviderFunc(func(model any, selected bool, ctx any) (component.Component, error) {
	prefix, _ := ctx.(string)
	if selected {
		prefix = "*" + prefix
	}
	return component.NewText(prefix+fmt.Sprint(model), 0), nil
})

type fixture struct {
	t    *testing.T
	ctx  context.Context
	loop *mainloop.Loop
	src  *DataSource
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	loop := mainloop.New(mainloop.Config{})
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = loop.Run(ctx) }()

	src, err := New(ctx, loop, tableview.New(tableview.Config{}), Config{
		Provider:    textProvider,
		Constraints: layout.TightWidth(12),
		Workers:     2,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = src.Close()
		cancel()
		<-loop.Stopped()
	})
	return &fixture{t: t, ctx: context.Background(), loop: loop, src: src}
}

func (f *fixture) apply(cs *changeset.Changeset, userInfo map[string]any) error {
	return f.src.ApplyChangeset(f.ctx, cs, datasource.ModeSynchronous, userInfo)
}

// onLoop runs fn on the main loop, where the table may be read.
func (f *fixture) onLoop(fn func(tbl *tableview.Table)) {
	f.t.Helper()
	require.NoError(f.t, f.loop.Do(f.ctx, func(context.Context) error {
		fn(f.src.Table())
		return nil
	}))
}

func (f *fixture) rows() []any {
	var out []any
	f.onLoop(func(tbl *tableview.Table) {
		for i := 0; i < tbl.NumberOfRows(); i++ {
			c, _ := tbl.CellAt(i)
			out = append(out, c.Model)
		}
	})
	return out
}

func insertRows(models ...any) *changeset.Changeset {
	items := make(map[changeset.IndexPath]any, len(models))
	for i, m := range models {
		items[changeset.Path(0, i)] = m
	}
	return changeset.NewBuilder().WithInsertedItems(items).Build()
}

func TestNew_RequiresTable(t *testing.T) {
	_, err := New(context.Background(), mainloop.New(mainloop.Config{}), nil, Config{Provider: textProvider})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeInvalidInput))
}

func TestTableSource_InsertAndRead(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.apply(insertRows("alpha", "beta", "a much longer row"), nil))

	assert.Equal(t, []any{"alpha", "beta", "a much longer row"}, f.rows())
	assert.Equal(t, "beta", f.src.ModelForRow(1))
	assert.Equal(t, 1, f.src.HeightForRow(0))
	assert.Equal(t, 2, f.src.HeightForRow(2))
	assert.Nil(t, f.src.ModelForRow(3))
	assert.Zero(t, f.src.HeightForRow(-1))
	assert.Equal(t, uint64(2), f.src.Source().Version())
}

func TestTableSource_SingleSection(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		cs   *changeset.Changeset
	}{
		{"insert section", changeset.NewBuilder().WithInsertedSections(1).Build()},
		{"remove section", changeset.NewBuilder().WithRemovedSections(0).Build()},
		{"item in section 1", changeset.NewBuilder().WithInsertedItem(changeset.Path(1, 0), "x").Build()},
		{"nil", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.apply(tt.cs, nil)
			assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeChangesetRejected), "got %v", err)
		})
	}
}

func TestTableSource_UpdatesRemovesAndMoves(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.apply(insertRows("a", "b", "c", "d"), nil))
	var created int
	f.onLoop(func(tbl *tableview.Table) { created = tbl.Stats().Created })

	require.NoError(t, f.apply(changeset.NewBuilder().
		WithRemovedItems(changeset.Path(0, 0)).
		WithMovedItem(changeset.Path(0, 3), changeset.Path(0, 0)).
		WithUpdatedItem(changeset.Path(0, 1), "B").
		WithInsertedItem(changeset.Path(0, 3), "e").
		Build(), nil))

	assert.Equal(t, []any{"d", "B", "c", "e"}, f.rows())
	f.onLoop(func(tbl *tableview.Table) {
		assert.Equal(t, created, tbl.Stats().Created, "cells must be reused")
		assert.Zero(t, tbl.Stats().Fallback)
	})
}

func TestTableSource_Selection(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.apply(insertRows("a", "b", "c"), map[string]any{SelectionKey: []int{1}}))

	f.onLoop(func(tbl *tableview.Table) {
		assert.Equal(t, []int{1}, tbl.SelectedRows())
		buf := render.NewBuffer(12, 3)
		tbl.Render(buf)
		assert.Equal(t, []string{" a", "▌*b", " c"}, buf.Lines())
	})

	err := f.apply(changeset.Empty(), map[string]any{SelectionKey: []changeset.IndexPath{changeset.Path(0, 0)}})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeChangesetRejected))

	err = f.apply(changeset.Empty(), map[string]any{SelectionKey: []int{9}})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeChangesetRejected))
}

func TestTableSource_ContextReload(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.apply(insertRows("a", "b"), nil))

	f.src.UpdateContextAndEnqueueReload("~")
	require.NoError(t, f.apply(changeset.Empty(), nil))

	f.onLoop(func(tbl *tableview.Table) {
		buf := render.NewBuffer(12, 2)
		tbl.Render(buf)
		assert.Equal(t, []string{" ~a", " ~b"}, buf.Lines())
		assert.Zero(t, tbl.Stats().Fallback)
	})
	assert.Equal(t, "a", f.src.ModelForRow(0))
}

func TestTableSource_AsyncConverges(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 20; i++ {
		cs := changeset.NewBuilder().WithInsertedItem(changeset.Path(0, i), i).Build()
		require.NoError(t, f.src.ApplyChangeset(f.ctx, cs, datasource.ModeAsynchronous, nil))
	}
	require.NoError(t, f.apply(changeset.Empty(), nil))

	want := make([]any, 20)
	for i := range want {
		want[i] = i
	}
	assert.Equal(t, want, f.rows())
	for i := range want {
		assert.Equal(t, i, f.src.ModelForRow(i))
	}
}
