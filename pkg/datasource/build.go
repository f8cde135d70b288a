package datasource

import (
	"context"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/odvcencio/componentkit/pkg/changeset"
	"github.com/odvcencio/componentkit/pkg/component"
	apperrors "github.com/odvcencio/componentkit/pkg/errors"
	"github.com/odvcencio/componentkit/pkg/layout"
	"github.com/odvcencio/componentkit/pkg/logging"
	"github.com/odvcencio/componentkit/pkg/telemetry"
)

type failure struct {
	entry *entry
	err   error
}

// buildResult is a candidate generation and the batch that produced it.
type buildResult struct {
	gen          *Generation
	entries      []*entry
	changesets   []*changeset.Changeset
	reloaded     bool
	selection    []changeset.IndexPath
	hasSelection bool
	built        int
	duration     time.Duration
	failed       []failure
}

func (ds *DataSource) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-ds.wake:
		}
		ds.drain(ctx)
	}
}

// drain builds and commits until the queue is empty. Every build starts from
// ds.base with the whole queue, so a commit always contains a prefix of the
// queue in enqueue order.
func (ds *DataSource) drain(ctx context.Context) {
	discards := 0
	attempt := 0
	for ctx.Err() == nil {
		ds.mu.Lock()
		batch := slices.Clone(ds.queue)
		if len(batch) == 0 {
			ds.mu.Unlock()
			return
		}
		ds.setPhase(PhaseBuilding)
		ds.mu.Unlock()

		attempt++
		res, err := ds.build(ctx, ds.base, batch, attempt)
		if err != nil {
			// Only cancellation gets here; Close fails what is queued.
			return
		}
		if len(res.failed) > 0 {
			recordBuild(outcomeFailed, res.duration, res.built)
			ds.drop(ctx, res.failed)
			continue
		}

		ds.mu.Lock()
		if len(ds.queue) > len(batch) && discards < ds.maxDiscards {
			ds.mu.Unlock()
			discards++
			recordBuild(outcomeDiscarded, res.duration, res.built)
			ds.discard(res, discards)
			continue
		}
		ds.queue = slices.Clone(ds.queue[len(batch):])
		ds.inflight++
		ds.setPhase(PhaseReadyToApply)
		depth := len(ds.queue)
		ds.mu.Unlock()

		recordBuild(outcomeCommitted, res.duration, res.built)
		recordQueueDepth(depth)
		discards = 0
		attempt = 0
		ds.base = res.gen
		ds.post(ctx, res)
	}
}

// build applies batch to base and builds every item it made dirty. It only
// returns an error when ctx is cancelled; per-changeset failures are
// reported in the result.
func (ds *DataSource) build(ctx context.Context, base *Generation, batch []*entry, attempt int) (*buildResult, error) {
	start := time.Now()
	ctx, span := telemetry.StartSpan(ctx, "datasource.build", trace.WithAttributes(
		telemetry.AttrBaseVersion.Int64(int64(base.version)),
		telemetry.AttrModifications.Int(len(batch)),
		telemetry.AttrAttempt.Int(attempt),
	))
	defer span.End()

	ds.hub.Publish(telemetry.Event{
		Type:    telemetry.EventBuildStarted,
		Source:  "datasource",
		Version: base.version,
		Data:    map[string]any{"modifications": len(batch), "attempt": attempt},
	})

	res := &buildResult{entries: batch}
	origin := make(map[*Item]int) // unbuilt item -> batch index that dirtied it
	sections := base.sections
	genContext := base.context

	for i, e := range batch {
		if e.reload {
			sections = reloadSections(sections, origin, i)
			genContext = e.context
			res.reloaded = true
			continue
		}
		next, err := changeset.ApplyFunc(sections, e.cs, sectionFuncs(origin, i))
		if err != nil {
			res.failed = append(res.failed, failure{entry: e, err: err})
			continue
		}
		sections = next
		res.changesets = append(res.changesets, e.cs)
	}
	if len(res.failed) > 0 {
		res.duration = time.Since(start)
		span.SetAttributes(telemetry.AttrOutcome.String(outcomeFailed))
		return res, nil
	}

	selected, last := ds.resolveSelection(batch, sections, res)
	sections, dirty := markSelection(sections, origin, selected, last)
	span.SetAttributes(telemetry.AttrDirtyItems.Int(len(dirty)))

	failures, err := ds.buildItems(ctx, dirty, genContext)
	res.built = len(dirty) - len(failures)
	res.duration = time.Since(start)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return nil, err
	}
	if len(failures) > 0 {
		res.failed = attributeFailures(batch, origin, failures)
		for _, f := range res.failed {
			telemetry.RecordError(ctx, f.err)
		}
		span.SetAttributes(telemetry.AttrOutcome.String(outcomeFailed))
		return res, nil
	}

	res.gen = &Generation{
		version:     base.version + uint64(len(batch)),
		sections:    sections,
		context:     genContext,
		constraints: ds.constraints,
	}
	span.SetAttributes(
		telemetry.AttrVersion.Int64(int64(res.gen.version)),
		telemetry.AttrOutcome.String("built"),
	)
	ds.hub.Publish(telemetry.Event{
		Type:    telemetry.EventBuildCompleted,
		Source:  "datasource",
		Version: res.gen.version,
		Data:    map[string]any{"built": res.built, "duration_ms": res.duration.Milliseconds()},
	})
	return res, nil
}

// sectionFuncs creates unbuilt items for insertions and updates and records
// which batch entry they belong to. Moves carry the item as is.
func sectionFuncs(origin map[*Item]int, index int) changeset.Funcs[*Section, *Item] {
	return changeset.Funcs[*Section, *Item]{
		Items: func(s *Section) []*Item { return s.Items },
		WithItems: func(s *Section, items []*Item) *Section {
			return &Section{ID: s.ID, Items: items}
		},
		NewSection: func() *Section { return &Section{ID: newID()} },
		Insert: func(c changeset.ItemChange) *Item {
			it := &Item{ID: newID(), Model: c.Model}
			origin[it] = index
			return it
		},
		Update: func(old *Item, c changeset.ItemChange) *Item {
			it := &Item{ID: old.ID, Model: c.Model, Selected: old.Selected}
			origin[it] = index
			return it
		},
	}
}

func reloadSections(sections []*Section, origin map[*Item]int, index int) []*Section {
	out := make([]*Section, len(sections))
	for s, sec := range sections {
		items := make([]*Item, len(sec.Items))
		for i, it := range sec.Items {
			items[i] = &Item{ID: it.ID, Model: it.Model, Selected: it.Selected}
			origin[items[i]] = index
		}
		out[s] = &Section{ID: sec.ID, Items: items}
	}
	return out
}

// resolveSelection returns the item IDs to select when the last changeset
// of the batch carries a selection directive, and that changeset's index.
// Directives on earlier changesets are superseded and dropped.
func (ds *DataSource) resolveSelection(batch []*entry, sections []*Section, res *buildResult) (map[string]bool, int) {
	last := -1
	for i := len(batch) - 1; i >= 0; i-- {
		if !batch[i].reload {
			last = i
			break
		}
	}
	for i, e := range batch {
		if e.hasSelection && i != last {
			_ = ds.logger.Debug(logging.CategoryDataSource, "selection_superseded", "dropping selection of a superseded changeset", map[string]any{
				"seq": e.seq,
			})
		}
	}
	if last < 0 || !batch[last].hasSelection {
		return nil, last
	}

	e := batch[last]
	selected := make(map[string]bool, len(e.selection))
	for _, p := range e.selection {
		if p.Section < len(sections) && p.Item < len(sections[p.Section].Items) {
			selected[sections[p.Section].Items[p.Item].ID] = true
		}
	}
	res.selection = slices.Clone(e.selection)
	res.hasSelection = true
	return selected, last
}

// markSelection sets the selected flag on unbuilt items and replaces built
// items whose flag changes with unbuilt copies, since the provider sees the
// flag. It returns the final sections and every item that needs building.
func markSelection(sections []*Section, origin map[*Item]int, selected map[string]bool, last int) ([]*Section, []*Item) {
	sections = slices.Clone(sections)
	var dirty []*Item
	for s, sec := range sections {
		var items []*Item
		for i, it := range sec.Items {
			want := it.Selected
			if selected != nil {
				want = selected[it.ID]
			}
			if _, unbuilt := origin[it]; unbuilt {
				it.Selected = want
				dirty = append(dirty, it)
				continue
			}
			if want == it.Selected {
				continue
			}
			if items == nil {
				items = slices.Clone(sec.Items)
			}
			fresh := &Item{ID: it.ID, Model: it.Model, Selected: want}
			origin[fresh] = last
			items[i] = fresh
			dirty = append(dirty, fresh)
		}
		if items != nil {
			sections[s] = &Section{ID: sec.ID, Items: items}
		}
	}
	return sections, dirty
}

// buildItems runs the provider and layout for every dirty item on a bounded
// pool. Items are filled in place; they are not yet visible to anyone else.
func (ds *DataSource) buildItems(ctx context.Context, dirty []*Item, genContext any) (map[*Item]error, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ds.workers)

	var mu sync.Mutex
	failures := make(map[*Item]error)
	for _, it := range dirty {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := ds.buildItem(it, genContext); err != nil {
				mu.Lock()
				failures[it] = err
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return failures, nil
}

func (ds *DataSource) buildItem(it *Item, genContext any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = apperrors.Newf(apperrors.ErrCodeBuildFailed, "component provider panicked: %v", r).
				WithContext("item", it.ID)
		}
	}()

	var c component.Component
	c, err = ds.provider.Component(it.Model, it.Selected, genContext)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeBuildFailed, "component provider failed").
			WithContext("item", it.ID)
	}
	it.Component = c
	it.Layout = layout.Compute(c, ds.constraints)
	return nil
}

// attributeFailures maps item failures to the batch entries that dirtied the items,
// keeping the first error per entry, in batch order.
func attributeFailures(batch []*entry, origin map[*Item]int, failures map[*Item]error) []failure {
	byEntry := make(map[int]error)
	for it, err := range failures {
		i := origin[it]
		if _, seen := byEntry[i]; !seen {
			byEntry[i] = err
		}
	}
	out := make([]failure, 0, len(byEntry))
	for i, e := range batch {
		if err, ok := byEntry[i]; ok {
			out = append(out, failure{entry: e, err: err})
		}
	}
	return out
}

// drop removes failed entries from the queue and re-verifies what remains
// against the base. Changesets that only applied on top of a dropped one
// fail too.
func (ds *DataSource) drop(ctx context.Context, failed []failure) {
	ds.mu.Lock()
	dropped := make(map[*entry]error, len(failed))
	for _, f := range failed {
		dropped[f.entry] = f.err
	}
	counts := ds.base.Counts()
	effective := ds.base.context
	droppedReload := false
	kept := make([]*entry, 0, len(ds.queue))
	var all []failure
	for _, e := range ds.queue {
		if err, ok := dropped[e]; ok {
			all = append(all, failure{entry: e, err: err})
			droppedReload = droppedReload || e.reload
			continue
		}
		if e.reload {
			effective = e.context
		} else {
			next, err := changeset.Verify(counts, e.cs)
			if err == nil && e.hasSelection {
				err = verifySelection(next, e.selection)
			}
			if err != nil {
				all = append(all, failure{entry: e, err: apperrors.Wrap(err, apperrors.ErrCodeChangesetRejected,
					"changeset no longer applies after an earlier changeset was dropped")})
				continue
			}
			counts = next
		}
		kept = append(kept, e)
	}
	ds.queue = kept
	ds.tail = counts
	if droppedReload {
		ds.context.Store(&contextValue{v: effective})
	}
	ds.setPhase(PhaseFailed)
	depth := len(kept)
	ds.mu.Unlock()
	recordQueueDepth(depth)

	for _, f := range all {
		ds.fail(ctx, f)
	}
}

func (ds *DataSource) fail(ctx context.Context, f failure) {
	e := f.entry
	_ = ds.logger.Error(logging.CategoryBuild, "build_failed", f.err.Error(), map[string]any{
		"seq":    e.seq,
		"reload": e.reload,
		"code":   string(apperrors.GetCode(f.err)),
	})
	ds.hub.Publish(telemetry.Event{
		Type:   telemetry.EventBuildFailed,
		Source: "datasource",
		Data:   map[string]any{"seq": e.seq, "error": f.err.Error()},
	})

	err := ds.loop.Post(ctx, func(loopCtx context.Context) {
		ds.delegate.DidFailBuild(loopCtx, e.cs, e.userInfo, f.err)
		e.finish(f.err)
	})
	if err != nil {
		e.finish(f.err)
	}
}

func (ds *DataSource) discard(res *buildResult, discards int) {
	ds.setPhase(PhaseCancelled)
	stale := apperrors.New(apperrors.ErrCodeStaleResultDiscarded, "build superseded by newer changesets").
		WithContext("version", res.gen.version).
		WithContext("discards", discards)
	_ = ds.logger.Info(logging.CategoryBuild, "build_discarded", stale.Message, map[string]any{
		"version":  res.gen.version,
		"discards": discards,
		"code":     string(stale.Code),
	})
	ds.hub.Publish(telemetry.Event{
		Type:    telemetry.EventBuildDiscarded,
		Source:  "datasource",
		Version: res.gen.version,
		Data:    map[string]any{"discards": discards},
	})
}

func (ds *DataSource) post(ctx context.Context, res *buildResult) {
	err := ds.loop.Post(ctx, func(loopCtx context.Context) {
		ds.commit(loopCtx, res)
	})
	if err == nil {
		return
	}
	ds.mu.Lock()
	ds.inflight--
	ds.mu.Unlock()
	closed := apperrors.Wrap(err, apperrors.ErrCodeClosed, "commit could not reach the main loop")
	for _, e := range res.entries {
		e.finish(closed)
	}
}

// commit publishes the generation and applies it to the view. Runs on the
// main loop.
func (ds *DataSource) commit(ctx context.Context, res *buildResult) {
	ds.loop.MustBeOnLoop(ctx)

	old := ds.committed.Swap(res.gen)
	c := Commit{
		Old:          old,
		New:          res.gen,
		Changesets:   res.changesets,
		Reloaded:     res.reloaded,
		Selection:    res.selection,
		HasSelection: res.hasSelection,
	}

	if box := ds.applier.Load(); box != nil && box.a != nil {
		if err := box.a.ApplyCommit(ctx, c); err != nil {
			_ = ds.logger.Error(logging.CategoryReconcile, "apply_failed", err.Error(), map[string]any{
				"version": res.gen.version,
				"code":    string(apperrors.GetCode(err)),
			})
		}
	}
	ds.delegate.DidCommit(ctx, c)
	if c.HasSelection {
		ds.delegate.DidChangeSelection(ctx, slices.Clone(c.Selection))
		ds.hub.Publish(telemetry.Event{
			Type:    telemetry.EventSelectionChanged,
			Source:  "datasource",
			Version: res.gen.version,
			Data:    map[string]any{"selected": len(c.Selection)},
		})
	}

	_ = ds.logger.Info(logging.CategoryDataSource, "committed", "generation committed", map[string]any{
		"version":       res.gen.version,
		"from":          old.Version(),
		"modifications": len(res.entries),
		"built":         res.built,
	})
	ds.hub.Publish(telemetry.Event{
		Type:    telemetry.EventGenerationCommit,
		Source:  "datasource",
		Version: res.gen.version,
		Data:    map[string]any{"modifications": len(res.entries)},
	})

	for _, e := range res.entries {
		e.finish(nil)
	}

	ds.mu.Lock()
	ds.inflight--
	// The scheduler may already be building the next batch.
	if ds.inflight == 0 && ds.Phase() == PhaseReadyToApply {
		ds.setPhase(PhaseApplied)
		if len(ds.queue) == 0 {
			ds.setPhase(PhaseIdle)
		}
	}
	ds.mu.Unlock()
}
