// Package datasource is the transactional data source: it accepts
// changesets, builds component trees and layouts for affected items on
// background workers, and commits the results as immutable generations on
// the main loop, in the order the changesets were enqueued.
//
// Only the committed generation is ever visible to readers. A build whose
// result is superseded by newer changesets before it commits is discarded and
// redone from the same base with the whole queue, so the view never observes
// a partially applied or out of order state.
package datasource

import (
	"context"
	"maps"
	"runtime"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/odvcencio/componentkit/pkg/changeset"
	"github.com/odvcencio/componentkit/pkg/component"
	apperrors "github.com/odvcencio/componentkit/pkg/errors"
	"github.com/odvcencio/componentkit/pkg/layout"
	"github.com/odvcencio/componentkit/pkg/logging"
	"github.com/odvcencio/componentkit/pkg/mainloop"
	"github.com/odvcencio/componentkit/pkg/telemetry"
)

// DefaultMaxSupersededBuilds bounds consecutive discarded builds before a
// build commits even though newer changesets are queued.
const DefaultMaxSupersededBuilds = 3

// Config configures a DataSource.
type Config struct {
	// Provider builds the component for a model. Required. It is called
	// concurrently from build workers.
	Provider component.Provider
	// Context is the initial shared context handed to the provider.
	Context any
	// Constraints are the sizing constraints every item is laid out
	// against. The zero value means unbounded.
	Constraints layout.Constraints
	// Loop owns the view. Required.
	Loop *mainloop.Loop
	// Applier applies commits to the view; may be set later with
	// SetApplier before the first commit.
	Applier  Applier
	Delegate Delegate

	// Workers bounds concurrent provider calls. Defaults to GOMAXPROCS.
	Workers int
	// MaxSupersededBuilds bounds consecutive discards. Defaults to
	// DefaultMaxSupersededBuilds.
	MaxSupersededBuilds int

	Logger *logging.Logger
	Hub    *telemetry.Hub
}

type contextValue struct{ v any }

// entry is a queued modification: a changeset or a context reload.
type entry struct {
	seq          uint64
	cs           *changeset.Changeset
	reload       bool
	context      any
	mode         Mode
	userInfo     map[string]any
	selection    []changeset.IndexPath
	hasSelection bool

	done     chan struct{}
	err      error
	doneOnce sync.Once
}

func (e *entry) finish(err error) {
	e.doneOnce.Do(func() {
		e.err = err
		close(e.done)
	})
}

// DataSource is safe for concurrent use. Reads return the committed
// generation only.
type DataSource struct {
	provider    component.Provider
	constraints layout.Constraints
	loop        *mainloop.Loop
	delegate    Delegate
	workers     int
	maxDiscards int
	logger      *logging.Logger
	hub         *telemetry.Hub

	applier   atomic.Pointer[applierBox]
	context   atomic.Pointer[contextValue]
	committed atomic.Pointer[Generation]
	phase     atomic.Int32

	mu       sync.Mutex
	queue    []*entry
	tail     []int // shape after every queued changeset applies
	seq      uint64
	inflight int // commits posted to the loop and not yet applied
	started  bool
	closed   bool

	wake    chan struct{}
	closeCh chan struct{}
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	// base is the last generation handed to the loop. Scheduler only.
	base *Generation
}

type applierBox struct{ a Applier }

// New creates a data source with an empty, committed generation at version 0.
func New(cfg Config) (*DataSource, error) {
	if cfg.Provider == nil {
		return nil, apperrors.New(apperrors.ErrCodeInvalidInput, "datasource: provider is required")
	}
	if cfg.Loop == nil {
		return nil, apperrors.New(apperrors.ErrCodeInvalidInput, "datasource: loop is required")
	}
	constraints := cfg.Constraints
	if constraints == (layout.Constraints{}) {
		constraints = layout.Unbounded()
	}
	if !constraints.Valid() {
		return nil, apperrors.New(apperrors.ErrCodeInvalidInput, "datasource: invalid constraints").
			WithContext("constraints", constraints)
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	maxDiscards := cfg.MaxSupersededBuilds
	if maxDiscards <= 0 {
		maxDiscards = DefaultMaxSupersededBuilds
	}
	delegate := cfg.Delegate
	if delegate == nil {
		delegate = DelegateFuncs{}
	}

	initial := &Generation{context: cfg.Context, constraints: constraints}
	ds := &DataSource{
		provider:    cfg.Provider,
		constraints: constraints,
		loop:        cfg.Loop,
		delegate:    delegate,
		workers:     workers,
		maxDiscards: maxDiscards,
		logger:      cfg.Logger.WithSource("datasource"),
		hub:         cfg.Hub,
		wake:        make(chan struct{}, 1),
		closeCh:     make(chan struct{}),
		base:        initial,
	}
	ds.applier.Store(&applierBox{a: cfg.Applier})
	ds.context.Store(&contextValue{v: cfg.Context})
	ds.committed.Store(initial)
	return ds, nil
}

// SetApplier replaces the view applier.
func (ds *DataSource) SetApplier(a Applier) {
	ds.applier.Store(&applierBox{a: a})
}

// Start launches the build scheduler. Changesets queued earlier are picked
// up immediately.
func (ds *DataSource) Start(ctx context.Context) error {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	if ds.closed {
		return apperrors.New(apperrors.ErrCodeClosed, "datasource closed")
	}
	if ds.started {
		return apperrors.New(apperrors.ErrCodeInternal, "datasource already started")
	}
	ds.started = true

	runCtx, cancel := context.WithCancel(ctx)
	ds.cancel = cancel
	ds.wg.Add(1)
	go func() {
		defer ds.wg.Done()
		ds.run(runCtx)
	}()
	if len(ds.queue) > 0 {
		ds.signal()
	}
	return nil
}

// Close stops the scheduler. Changesets that have not been handed to the
// loop fail with CLOSED.
func (ds *DataSource) Close() error {
	ds.mu.Lock()
	if ds.closed {
		ds.mu.Unlock()
		return nil
	}
	ds.closed = true
	close(ds.closeCh)
	cancel := ds.cancel
	ds.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	ds.wg.Wait()

	ds.mu.Lock()
	pending := ds.queue
	ds.queue = nil
	ds.mu.Unlock()
	recordQueueDepth(0)

	for _, e := range pending {
		e.finish(apperrors.New(apperrors.ErrCodeClosed, "datasource closed before the changeset was applied"))
	}
	if len(pending) > 0 {
		_ = ds.logger.Info(logging.CategoryDataSource, "closed", "dropped pending modifications", map[string]any{
			"pending": len(pending),
		})
	}
	return nil
}

// ApplyChangeset verifies cs against the state every queued changeset will
// produce and enqueues it. A changeset that does not apply is rejected with
// CHANGESET_REJECTED before it is queued, and so is one that was already
// handed to a data source.
//
// In ModeSynchronous the call returns once the changeset is committed and
// applied to the view, or with its build error. Called from a task on the
// main loop it keeps running loop tasks while it waits.
//
// userInfo may carry a selection directive under SelectionKey.
func (ds *DataSource) ApplyChangeset(ctx context.Context, cs *changeset.Changeset, mode Mode, userInfo map[string]any) error {
	if cs == nil {
		recordReject()
		return apperrors.New(apperrors.ErrCodeChangesetRejected, "nil changeset")
	}
	selection, hasSelection, err := selectionFrom(userInfo)
	if err != nil {
		recordReject()
		return err
	}

	ds.mu.Lock()
	if ds.closed {
		ds.mu.Unlock()
		return apperrors.New(apperrors.ErrCodeClosed, "datasource closed")
	}
	counts, err := changeset.Verify(ds.tail, cs)
	if err == nil && hasSelection {
		err = verifySelection(counts, selection)
	}
	if err == nil && !cs.Claim() {
		err = apperrors.New(apperrors.ErrCodeChangesetRejected, "changeset already applied")
	}
	if err != nil {
		ds.mu.Unlock()
		recordReject()
		_ = ds.logger.Warn(logging.CategoryDataSource, "changeset_rejected", err.Error(), map[string]any{
			"changeset": cs.String(),
		})
		ds.hub.Publish(telemetry.Event{
			Type:   telemetry.EventChangesetRejected,
			Source: "datasource",
			Data:   map[string]any{"error": err.Error()},
		})
		return err
	}

	e := ds.enqueueLocked(&entry{
		cs:           cs,
		mode:         mode,
		userInfo:     maps.Clone(userInfo),
		selection:    selection,
		hasSelection: hasSelection,
	})
	ds.tail = counts
	ds.mu.Unlock()

	if mode != ModeSynchronous {
		return nil
	}
	if err := ds.loop.Await(ctx, e.done); err != nil {
		return err
	}
	return e.err
}

// UpdateContextAndEnqueueReload swaps the shared context and queues a reload
// that rebuilds every item against it. The reload goes through the same
// queue as changesets, so it observes all earlier ones.
func (ds *DataSource) UpdateContextAndEnqueueReload(newContext any) {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	// Stored under mu so Context() agrees with queue order.
	ds.context.Store(&contextValue{v: newContext})
	if ds.closed {
		return
	}
	ds.enqueueLocked(&entry{reload: true, context: newContext, mode: ModeAsynchronous})
	ds.hub.Publish(telemetry.Event{Type: telemetry.EventContextReloaded, Source: "datasource"})
}

func (ds *DataSource) enqueueLocked(e *entry) *entry {
	ds.seq++
	e.seq = ds.seq
	e.done = make(chan struct{})
	ds.queue = append(ds.queue, e)
	recordEnqueue(len(ds.queue))
	ds.signal()

	kind := "changeset"
	if e.reload {
		kind = "reload"
	}
	_ = ds.logger.Debug(logging.CategoryDataSource, "enqueued", "modification queued", map[string]any{
		"seq":   e.seq,
		"kind":  kind,
		"mode":  e.mode.String(),
		"depth": len(ds.queue),
	})
	ds.hub.Publish(telemetry.Event{
		Type:   telemetry.EventChangesetEnqueued,
		Source: "datasource",
		Data:   map[string]any{"seq": e.seq, "kind": kind},
	})
	return e
}

func (ds *DataSource) signal() {
	select {
	case ds.wake <- struct{}{}:
	default:
	}
}

// Committed returns the current generation. It never returns nil.
func (ds *DataSource) Committed() *Generation {
	return ds.committed.Load()
}

// Version returns the committed generation's version.
func (ds *DataSource) Version() uint64 {
	return ds.committed.Load().Version()
}

// ModelAt returns the committed model at p.
func (ds *DataSource) ModelAt(p changeset.IndexPath) (any, bool) {
	return ds.committed.Load().ModelAt(p)
}

// LayoutAt returns the committed layout at p. Layouts are never computed on
// read.
func (ds *DataSource) LayoutAt(p changeset.IndexPath) (*layout.Layout, bool) {
	return ds.committed.Load().LayoutAt(p)
}

// Context returns the most recently set context. Components in the committed
// generation may still be built with an older one until its reload commits.
// If that reload fails, Context reverts to the context builds go on using.
func (ds *DataSource) Context() any {
	return ds.context.Load().v
}

// Phase returns the pipeline's current state.
func (ds *DataSource) Phase() Phase {
	return Phase(ds.phase.Load())
}

// Pending returns the number of queued modifications not yet committed.
func (ds *DataSource) Pending() int {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	return len(ds.queue)
}

func (ds *DataSource) setPhase(p Phase) {
	if Phase(ds.phase.Swap(int32(p))) == p {
		return
	}
	ds.hub.Publish(telemetry.Event{
		Type:   telemetry.EventPhaseChanged,
		Source: "datasource",
		Data:   map[string]any{"phase": p.String()},
	})
}

func selectionFrom(userInfo map[string]any) ([]changeset.IndexPath, bool, error) {
	raw, ok := userInfo[SelectionKey]
	if !ok {
		return nil, false, nil
	}
	paths, ok := raw.([]changeset.IndexPath)
	if !ok {
		return nil, false, apperrors.Newf(apperrors.ErrCodeChangesetRejected,
			"selection directive must be []changeset.IndexPath, got %T", raw)
	}
	paths = slices.Clone(paths)
	slices.SortFunc(paths, changeset.Compare)
	return slices.Compact(paths), true, nil
}

func verifySelection(counts []int, selection []changeset.IndexPath) error {
	for _, p := range selection {
		if p.Section < 0 || p.Section >= len(counts) || p.Item < 0 || p.Item >= counts[p.Section] {
			return apperrors.New(apperrors.ErrCodeChangesetRejected, "selected item out of range at "+p.String()).
				WithContext("section", p.Section).
				WithContext("item", p.Item)
		}
	}
	return nil
}
