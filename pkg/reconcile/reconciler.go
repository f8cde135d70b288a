package reconcile

import (
	"context"

	"github.com/odvcencio/componentkit/pkg/changeset"
	"github.com/odvcencio/componentkit/pkg/datasource"
	apperrors "github.com/odvcencio/componentkit/pkg/errors"
	"github.com/odvcencio/componentkit/pkg/logging"
	"github.com/odvcencio/componentkit/pkg/mainloop"
	"github.com/odvcencio/componentkit/pkg/telemetry"
)

//go:generate mockgen -package=reconcile -destination=mock_view_test.go github.com/odvcencio/componentkit/pkg/reconcile View

// View is the live view a Reconciler drives. Both methods are called on the
// main loop.
type View interface {
	// PerformBatch applies every operation of b as one animated update.
	// When it returns the view must read the new generation.
	PerformBatch(ctx context.Context, b Batch) error
	// SetSelection replaces the view's selection with paths, which are in
	// the new generation's index space.
	SetSelection(ctx context.Context, paths []changeset.IndexPath) error
}

// Config configures a Reconciler.
type Config struct {
	Loop   *mainloop.Loop
	View   View
	Logger *logging.Logger
	Hub    *telemetry.Hub
}

// Reconciler applies commits to a View. It implements datasource.Applier.
type Reconciler struct {
	loop   *mainloop.Loop
	view   View
	logger *logging.Logger
	hub    *telemetry.Hub
}

var _ datasource.Applier = (*Reconciler)(nil)

// New creates a reconciler for view.
func New(cfg Config) (*Reconciler, error) {
	if cfg.Loop == nil {
		return nil, apperrors.New(apperrors.ErrCodeInvalidInput, "reconciler requires a loop")
	}
	if cfg.View == nil {
		return nil, apperrors.New(apperrors.ErrCodeInvalidInput, "reconciler requires a view")
	}
	return &Reconciler{
		loop:   cfg.Loop,
		view:   cfg.View,
		logger: cfg.Logger.WithSource("reconcile"),
		hub:    cfg.Hub,
	}, nil
}

// ApplyCommit diffs the commit's generations and applies the result to the
// view in a single batch, followed by the commit's selection directive.
func (r *Reconciler) ApplyCommit(ctx context.Context, c datasource.Commit) error {
	r.loop.MustBeOnLoop(ctx)

	b := Diff(c.Old, c.New)
	if !b.Empty() {
		if err := r.view.PerformBatch(ctx, b); err != nil {
			return apperrors.Wrap(err, apperrors.ErrCodeViewInconsistent, "view rejected batch").
				WithContext("version", c.New.Version())
		}
	}
	if c.HasSelection {
		if err := r.view.SetSelection(ctx, c.Selection); err != nil {
			return apperrors.Wrap(err, apperrors.ErrCodeViewInconsistent, "view rejected selection").
				WithContext("version", c.New.Version())
		}
	}

	_ = r.logger.Debug(logging.CategoryReconcile, "batch_applied", "view batch applied", map[string]any{
		"version":           c.New.Version(),
		"deleted_sections":  len(b.DeletedSections),
		"inserted_sections": len(b.InsertedSections),
		"deleted":           len(b.DeletedItems),
		"inserted":          len(b.InsertedItems),
		"moved":             len(b.Moves),
		"updated":           len(b.Updates),
	})
	r.hub.Publish(telemetry.Event{
		Type:    telemetry.EventViewBatchApplied,
		Source:  "reconcile",
		Version: c.New.Version(),
		Data:    map[string]any{"operations": b.Size(), "selection": c.HasSelection},
	})
	return nil
}
