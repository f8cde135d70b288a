// Package tablesource drives a single section table view from a
// transactional data source. Changesets are built in the background and the
// committed result is applied to the table as batched row updates with cell
// reuse.
package tablesource

import (
	"context"
	"fmt"

	"github.com/odvcencio/componentkit/pkg/changeset"
	"github.com/odvcencio/componentkit/pkg/component"
	"github.com/odvcencio/componentkit/pkg/datasource"
	apperrors "github.com/odvcencio/componentkit/pkg/errors"
	"github.com/odvcencio/componentkit/pkg/layout"
	"github.com/odvcencio/componentkit/pkg/logging"
	"github.com/odvcencio/componentkit/pkg/mainloop"
	"github.com/odvcencio/componentkit/pkg/reconcile"
	"github.com/odvcencio/componentkit/pkg/tableview"
	"github.com/odvcencio/componentkit/pkg/telemetry"
)

// SelectionKey is the user info key for a row selection directive: a []int
// of rows after the changeset is applied.
const SelectionKey = "componentkit.table.selection"

// Config configures a table data source.
type Config struct {
	Provider component.Provider
	Context  any
	// Constraints every row is laid out against, typically
	// layout.TightWidth of the table width.
	Constraints layout.Constraints
	Delegate    datasource.Delegate

	Workers             int
	MaxSupersededBuilds int

	Logger *logging.Logger
	Hub    *telemetry.Hub
}

// DataSource is the table's data source. It holds the table and answers
// its questions from the committed generation only.
type DataSource struct {
	loop   *mainloop.Loop
	table  *tableview.Table
	source *datasource.DataSource
	logger *logging.Logger
}

var (
	_ tableview.DataSource = (*DataSource)(nil)
	_ reconcile.View       = (*DataSource)(nil)
)

// New creates the data source for table, starts its scheduler and queues
// the insertion of the table's only section. The table's data source is set
// on the loop.
func New(ctx context.Context, loop *mainloop.Loop, table *tableview.Table, cfg Config) (*DataSource, error) {
	if table == nil {
		return nil, apperrors.New(apperrors.ErrCodeInvalidInput, "table data source requires a table")
	}
	s := &DataSource{
		loop:   loop,
		table:  table,
		logger: cfg.Logger.WithSource("tablesource"),
	}
	r, err := reconcile.New(reconcile.Config{Loop: loop, View: s, Logger: cfg.Logger, Hub: cfg.Hub})
	if err != nil {
		return nil, err
	}
	source, err := datasource.New(datasource.Config{
		Provider:            cfg.Provider,
		Context:             cfg.Context,
		Constraints:         cfg.Constraints,
		Loop:                loop,
		Applier:             r,
		Delegate:            cfg.Delegate,
		Workers:             cfg.Workers,
		MaxSupersededBuilds: cfg.MaxSupersededBuilds,
		Logger:              cfg.Logger,
		Hub:                 cfg.Hub,
	})
	if err != nil {
		return nil, err
	}
	s.source = source

	if err := loop.Post(ctx, func(context.Context) {
		table.SetDataSource(s)
		table.ReloadData()
	}); err != nil {
		return nil, err
	}
	if err := source.Start(ctx); err != nil {
		return nil, err
	}
	section := changeset.NewBuilder().WithInsertedSections(0).Build()
	if err := source.ApplyChangeset(ctx, section, datasource.ModeAsynchronous, nil); err != nil {
		_ = source.Close()
		return nil, err
	}
	return s, nil
}

// Close stops the underlying data source.
func (s *DataSource) Close() error {
	return s.source.Close()
}

// Table returns the table view.
func (s *DataSource) Table() *tableview.Table {
	return s.table
}

// Source returns the underlying transactional data source.
func (s *DataSource) Source() *datasource.DataSource {
	return s.source
}

// ApplyChangeset queues cs. Only items of section 0 may be touched; adding
// or removing sections is rejected. userInfo may carry a row selection under
// SelectionKey.
func (s *DataSource) ApplyChangeset(ctx context.Context, cs *changeset.Changeset, mode datasource.Mode, userInfo map[string]any) error {
	if cs == nil {
		return apperrors.New(apperrors.ErrCodeChangesetRejected, "nil changeset")
	}
	if cs.HasSectionChanges() {
		return apperrors.New(apperrors.ErrCodeChangesetRejected, "table data source has a single section")
	}
	for _, section := range cs.Sections() {
		if section != 0 {
			return apperrors.Newf(apperrors.ErrCodeChangesetRejected, "section %d does not exist", section).
				WithContext("section", section)
		}
	}
	info, err := translateSelection(userInfo)
	if err != nil {
		return err
	}
	return s.source.ApplyChangeset(ctx, cs, mode, info)
}

func translateSelection(userInfo map[string]any) (map[string]any, error) {
	raw, ok := userInfo[SelectionKey]
	if !ok {
		return userInfo, nil
	}
	rows, ok := raw.([]int)
	if !ok {
		return nil, apperrors.Newf(apperrors.ErrCodeChangesetRejected, "row selection must be []int, got %T", raw)
	}
	paths := make([]changeset.IndexPath, len(rows))
	for i, r := range rows {
		paths[i] = changeset.Path(0, r)
	}
	out := make(map[string]any, len(userInfo))
	for k, v := range userInfo {
		if k != SelectionKey {
			out[k] = v
		}
	}
	out[datasource.SelectionKey] = paths
	return out, nil
}

// UpdateContextAndEnqueueReload swaps the context and rebuilds every row.
func (s *DataSource) UpdateContextAndEnqueueReload(newContext any) {
	s.source.UpdateContextAndEnqueueReload(newContext)
}

// ModelForRow returns the committed model at row, or nil.
func (s *DataSource) ModelForRow(row int) any {
	m, _ := s.source.ModelAt(changeset.Path(0, row))
	return m
}

// HeightForRow returns the committed layout height at row, or 0.
func (s *DataSource) HeightForRow(row int) int {
	l, ok := s.source.LayoutAt(changeset.Path(0, row))
	if !ok || l == nil {
		return 0
	}
	return l.Size.Height
}

// NumberOfRows implements tableview.DataSource.
func (s *DataSource) NumberOfRows() int {
	return s.source.Committed().NumItems(0)
}

// ViewForRow implements tableview.DataSource. Cells are reused per
// component type.
func (s *DataSource) ViewForRow(t *tableview.Table, row int) *tableview.Cell {
	it, ok := s.source.Committed().ItemAt(changeset.Path(0, row))
	if !ok {
		return nil
	}
	c := t.MakeView(fmt.Sprintf("%T", it.Component))
	c.Model = it.Model
	c.Layout = it.Layout
	return c
}

// HeightOfRow implements tableview.DataSource.
func (s *DataSource) HeightOfRow(row int) int {
	return s.HeightForRow(row)
}

// PerformBatch implements reconcile.View.
func (s *DataSource) PerformBatch(ctx context.Context, b reconcile.Batch) error {
	s.loop.MustBeOnLoop(ctx)
	if len(b.InsertedSections) > 0 || len(b.DeletedSections) > 0 {
		_ = s.logger.Debug(logging.CategoryView, "section_reload", "section replaced, reloading table", map[string]any{
			"rows": s.NumberOfRows(),
		})
		s.table.ReloadData()
		return nil
	}

	s.table.BeginUpdates()
	// Inside a batch these only record; errors surface from EndUpdates.
	_ = s.table.RemoveRows(rows(b.DeletedItems)...)
	for _, m := range b.Moves {
		_ = s.table.MoveRow(m.From.Item, m.To.Item)
	}
	_ = s.table.InsertRows(rows(b.InsertedItems)...)
	reloaded := make([]int, len(b.Updates))
	for i, u := range b.Updates {
		reloaded[i] = u.To.Item
	}
	_ = s.table.ReloadRows(reloaded...)
	return s.table.EndUpdates()
}

// SetSelection implements reconcile.View.
func (s *DataSource) SetSelection(ctx context.Context, paths []changeset.IndexPath) error {
	s.loop.MustBeOnLoop(ctx)
	return s.table.SelectRows(rows(paths), false)
}

func rows(paths []changeset.IndexPath) []int {
	out := make([]int, 0, len(paths))
	for _, p := range paths {
		if p.Section == 0 {
			out = append(out, p.Item)
		}
	}
	return out
}
