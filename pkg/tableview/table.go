// Package tableview is an in-memory single column table view. It owns one
// cell per row, recycles cells through a reuse pool, tracks selection and
// applies row updates in batches that are checked against its data source.
//
// A Table is not safe for concurrent use; it belongs to the main loop.
package tableview

import (
	"slices"

	"github.com/odvcencio/componentkit/pkg/component"
	apperrors "github.com/odvcencio/componentkit/pkg/errors"
	"github.com/odvcencio/componentkit/pkg/layout"
	"github.com/odvcencio/componentkit/pkg/logging"
	"github.com/odvcencio/componentkit/pkg/render"
	"github.com/odvcencio/componentkit/pkg/telemetry"
)

// DataSource answers the table's questions about its rows.
type DataSource interface {
	NumberOfRows() int
	// ViewForRow returns the configured cell for row, normally obtained
	// from t.MakeView.
	ViewForRow(t *Table, row int) *Cell
	HeightOfRow(row int) int
}

// Cell is the view displayed for one row. Cells are recycled: a cell
// handed out by MakeView may have shown another row before.
type Cell struct {
	Identifier string
	Model      any
	Layout     *layout.Layout

	serial uint64
}

// Serial identifies the cell instance for its lifetime, across reuse.
func (c *Cell) Serial() uint64 {
	if c == nil {
		return 0
	}
	return c.serial
}

// Stats counts cell allocations.
type Stats struct {
	Created  int
	Reused   int
	Reloads  int
	Batches  int
	Fallback int
}

type row struct {
	cell     *Cell
	selected bool
}

type rowMove struct {
	from int
	to   int
}

type pendingUpdate struct {
	removed  []int
	inserted []int
	reloaded []int
	moves    []rowMove
}

func (u pendingUpdate) empty() bool {
	return len(u.removed) == 0 && len(u.inserted) == 0 && len(u.reloaded) == 0 && len(u.moves) == 0
}

// Config configures a Table.
type Config struct {
	Logger *logging.Logger
	Hub    *telemetry.Hub
}

// Table is the view.
type Table struct {
	dataSource DataSource
	rows       []row
	pool       map[string][]*Cell
	topRow     int

	depth   int
	pending pendingUpdate

	serial uint64
	stats  Stats

	logger *logging.Logger
	hub    *telemetry.Hub
}

// New creates an empty table without a data source.
func New(cfg Config) *Table {
	return &Table{
		pool:   make(map[string][]*Cell),
		logger: cfg.Logger.WithSource("tableview"),
		hub:    cfg.Hub,
	}
}

// SetDataSource sets the data source. Call ReloadData to pick up its rows.
func (t *Table) SetDataSource(ds DataSource) {
	t.dataSource = ds
}

// DataSource returns the current data source.
func (t *Table) DataSource() DataSource {
	return t.dataSource
}

// NumberOfRows returns the number of rows the table displays.
func (t *Table) NumberOfRows() int {
	return len(t.rows)
}

// CellAt returns the cell displayed at row.
func (t *Table) CellAt(row int) (*Cell, bool) {
	if row < 0 || row >= len(t.rows) {
		return nil, false
	}
	return t.rows[row].cell, true
}

// Stats returns allocation and update counters.
func (t *Table) Stats() Stats {
	return t.stats
}

// MakeView dequeues a recycled cell with identifier, or creates one.
func (t *Table) MakeView(identifier string) *Cell {
	if cells := t.pool[identifier]; len(cells) > 0 {
		c := cells[len(cells)-1]
		t.pool[identifier] = cells[:len(cells)-1]
		c.Model = nil
		c.Layout = nil
		t.stats.Reused++
		return c
	}
	t.serial++
	t.stats.Created++
	return &Cell{Identifier: identifier, serial: t.serial}
}

func (t *Table) recycle(c *Cell) {
	if c == nil {
		return
	}
	t.pool[c.Identifier] = append(t.pool[c.Identifier], c)
}

func (t *Table) viewFor(r int) *Cell {
	if t.dataSource == nil {
		return nil
	}
	return t.dataSource.ViewForRow(t, r)
}

func (t *Table) expectedRows() int {
	if t.dataSource == nil {
		return 0
	}
	return t.dataSource.NumberOfRows()
}

// ReloadData discards every row and asks the data source again. Selected
// rows that still exist stay selected.
func (t *Table) ReloadData() {
	selected := t.SelectedRows()
	for _, r := range t.rows {
		t.recycle(r.cell)
	}
	n := t.expectedRows()
	t.rows = make([]row, n)
	for i := range t.rows {
		t.rows[i].cell = t.viewFor(i)
	}
	for _, s := range selected {
		if s < n {
			t.rows[s].selected = true
		}
	}
	t.topRow = min(t.topRow, max(n-1, 0))
	t.stats.Reloads++
}

// BeginUpdates starts a batch. Row operations are collected until the
// matching EndUpdates. Batches nest.
func (t *Table) BeginUpdates() {
	t.depth++
}

// EndUpdates applies the collected operations. Removals and move sources
// are old indices; insertions and move destinations are new indices;
// reloads are new indices. If the batch is malformed, or the resulting row
// count disagrees with the data source, the table reloads everything and
// returns a VIEW_INCONSISTENT error.
func (t *Table) EndUpdates() error {
	if t.depth == 0 {
		return apperrors.New(apperrors.ErrCodeInternal, "EndUpdates without BeginUpdates")
	}
	t.depth--
	if t.depth > 0 {
		return nil
	}
	u := t.pending
	t.pending = pendingUpdate{}
	if u.empty() {
		return nil
	}
	t.stats.Batches++

	err := t.apply(u)
	if err == nil {
		if want := t.expectedRows(); len(t.rows) != want {
			err = apperrors.Newf(apperrors.ErrCodeViewInconsistent,
				"table has %d rows after update, data source reports %d", len(t.rows), want)
		}
	}
	if err != nil {
		t.fallback(err)
		return err
	}
	return nil
}

// InsertRows inserts rows at the given new indices.
func (t *Table) InsertRows(rows ...int) error {
	return t.update(func(u *pendingUpdate) { u.inserted = append(u.inserted, rows...) })
}

// RemoveRows removes the rows at the given old indices.
func (t *Table) RemoveRows(rows ...int) error {
	return t.update(func(u *pendingUpdate) { u.removed = append(u.removed, rows...) })
}

// MoveRow moves the row at old index from to new index to, keeping its cell.
func (t *Table) MoveRow(from, to int) error {
	return t.update(func(u *pendingUpdate) { u.moves = append(u.moves, rowMove{from: from, to: to}) })
}

// ReloadRows asks the data source for fresh cells at the given new indices.
func (t *Table) ReloadRows(rows ...int) error {
	return t.update(func(u *pendingUpdate) { u.reloaded = append(u.reloaded, rows...) })
}

// update records an operation; outside a batch it is applied on its own.
func (t *Table) update(fn func(u *pendingUpdate)) error {
	t.BeginUpdates()
	fn(&t.pending)
	return t.EndUpdates()
}

type removal struct {
	row  int
	move int
}

type insertion struct {
	row  int
	move int
}

func (t *Table) apply(u pendingUpdate) error {
	removals := make([]removal, 0, len(u.removed)+len(u.moves))
	for _, r := range u.removed {
		removals = append(removals, removal{row: r, move: -1})
	}
	for i, m := range u.moves {
		removals = append(removals, removal{row: m.from, move: i})
	}
	slices.SortFunc(removals, func(a, b removal) int { return b.row - a.row })
	for i, r := range removals {
		if i > 0 && removals[i-1].row == r.row {
			return apperrors.Newf(apperrors.ErrCodeViewInconsistent, "row %d removed twice", r.row)
		}
		if r.row < 0 || r.row >= len(t.rows) {
			return apperrors.Newf(apperrors.ErrCodeViewInconsistent, "removed row %d out of range", r.row)
		}
	}
	carried := make([]row, len(u.moves))
	for _, r := range removals {
		if r.move >= 0 {
			carried[r.move] = t.rows[r.row]
		} else {
			t.recycle(t.rows[r.row].cell)
		}
		t.rows = slices.Delete(t.rows, r.row, r.row+1)
	}

	insertions := make([]insertion, 0, len(u.inserted)+len(u.moves))
	for _, r := range u.inserted {
		insertions = append(insertions, insertion{row: r, move: -1})
	}
	for i, m := range u.moves {
		insertions = append(insertions, insertion{row: m.to, move: i})
	}
	slices.SortStableFunc(insertions, func(a, b insertion) int { return a.row - b.row })
	for i, ins := range insertions {
		if i > 0 && insertions[i-1].row == ins.row {
			return apperrors.Newf(apperrors.ErrCodeViewInconsistent, "row %d inserted twice", ins.row)
		}
		if ins.row < 0 || ins.row > len(t.rows) {
			return apperrors.Newf(apperrors.ErrCodeViewInconsistent, "inserted row %d out of range", ins.row)
		}
		r := row{}
		if ins.move >= 0 {
			r = carried[ins.move]
		} else {
			r.cell = t.viewFor(ins.row)
		}
		t.rows = slices.Insert(t.rows, ins.row, r)
	}

	reloaded := slices.Clone(u.reloaded)
	slices.Sort(reloaded)
	for _, r := range slices.Compact(reloaded) {
		if r < 0 || r >= len(t.rows) {
			return apperrors.Newf(apperrors.ErrCodeViewInconsistent, "reloaded row %d out of range", r)
		}
		t.recycle(t.rows[r].cell)
		t.rows[r].cell = t.viewFor(r)
	}
	return nil
}

func (t *Table) fallback(err error) {
	t.stats.Fallback++
	_ = t.logger.Warn(logging.CategoryView, "reload_fallback", "row update rejected, reloading table", map[string]any{
		"error": err.Error(),
		"rows":  len(t.rows),
	})
	t.hub.Publish(telemetry.Event{
		Type:   telemetry.EventViewReloadFallback,
		Source: "tableview",
		Data:   map[string]any{"error": err.Error()},
	})
	t.ReloadData()
}

// SelectRows selects rows. Unless extend is set the previous selection is
// cleared first. Rows out of range are rejected without changing anything.
func (t *Table) SelectRows(rows []int, extend bool) error {
	for _, r := range rows {
		if r < 0 || r >= len(t.rows) {
			return apperrors.Newf(apperrors.ErrCodeInvalidInput, "row %d out of range", r).
				WithContext("rows", len(t.rows))
		}
	}
	if !extend {
		t.DeselectAll()
	}
	for _, r := range rows {
		t.rows[r].selected = true
	}
	return nil
}

// DeselectAll clears the selection.
func (t *Table) DeselectAll() {
	for i := range t.rows {
		t.rows[i].selected = false
	}
}

// SelectedRows returns the selected rows in ascending order.
func (t *Table) SelectedRows() []int {
	var out []int
	for i, r := range t.rows {
		if r.selected {
			out = append(out, i)
		}
	}
	return out
}

// ScrollToRow makes row the first visible row.
func (t *Table) ScrollToRow(row int) {
	t.topRow = max(0, min(row, len(t.rows)-1))
}

// TopRow returns the first visible row.
func (t *Table) TopRow() int {
	return t.topRow
}

func (t *Table) heightOf(r int) int {
	if t.dataSource != nil {
		return t.dataSource.HeightOfRow(r)
	}
	return t.rows[r].cell.height()
}

func (c *Cell) height() int {
	if c == nil || c.Layout == nil {
		return 0
	}
	return c.Layout.Size.Height
}

// ContentHeight returns the total height of every row.
func (t *Table) ContentHeight() int {
	total := 0
	for i := range t.rows {
		total += t.heightOf(i)
	}
	return total
}

// Render clears buf and draws the visible rows top to bottom, starting at
// the top row. Selected rows are marked in a one column gutter.
func (t *Table) Render(buf *render.Buffer) {
	buf.Clear()
	_, h := buf.Size()
	y := 0
	for i := t.topRow; i < len(t.rows) && y < h; i++ {
		r := t.rows[i]
		height := t.heightOf(i)
		if r.selected && height > 0 {
			buf.Set(0, y, '▌')
		}
		if r.cell != nil && r.cell.Layout != nil {
			component.Render(buf, r.cell.Layout, layout.Point{X: 1, Y: y})
		}
		y += height
	}
}
