package datasource

import (
	"context"

	"github.com/odvcencio/componentkit/pkg/changeset"
)

// Mode selects whether ApplyChangeset waits for the commit.
type Mode int

const (
	// ModeAsynchronous returns as soon as the changeset is queued.
	ModeAsynchronous Mode = iota
	// ModeSynchronous blocks until the changeset is committed and applied
	// to the view, or has failed.
	ModeSynchronous
)

func (m Mode) String() string {
	if m == ModeSynchronous {
		return "synchronous"
	}
	return "asynchronous"
}

// SelectionKey is the user info key for a selection directive: a
// []changeset.IndexPath in the space after the changeset is applied.
const SelectionKey = "componentkit.selection"

// Phase is the state of the changeset pipeline.
type Phase int32

const (
	PhaseIdle Phase = iota
	PhaseBuilding
	PhaseReadyToApply
	PhaseApplied
	PhaseCancelled
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseBuilding:
		return "building"
	case PhaseReadyToApply:
		return "ready_to_apply"
	case PhaseApplied:
		return "applied"
	case PhaseCancelled:
		return "cancelled"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Commit describes one promotion of a generation to current.
type Commit struct {
	Old *Generation
	New *Generation
	// Changesets lists the changesets the commit applied, in order.
	Changesets []*changeset.Changeset
	// Reloaded is set when the commit includes a context reload.
	Reloaded bool
	// Selection is the selection directive to apply after the view batch.
	// It is only set when the directive came from the last changeset of
	// the commit.
	Selection    []changeset.IndexPath
	HasSelection bool
}

// Applier applies a committed generation to a view. It is called on the
// main loop right after the generation is published.
type Applier interface {
	ApplyCommit(ctx context.Context, c Commit) error
}

// ApplierFunc adapts a function to the Applier interface.
type ApplierFunc func(ctx context.Context, c Commit) error

// ApplyCommit calls f.
func (f ApplierFunc) ApplyCommit(ctx context.Context, c Commit) error {
	return f(ctx, c)
}

// Delegate receives pipeline notifications on the main loop.
type Delegate interface {
	// DidFailBuild reports a changeset that was dropped. cs is nil for a
	// context reload.
	DidFailBuild(ctx context.Context, cs *changeset.Changeset, userInfo map[string]any, err error)
	DidCommit(ctx context.Context, c Commit)
	DidChangeSelection(ctx context.Context, selection []changeset.IndexPath)
}

// DelegateFuncs implements Delegate with optional function fields.
type DelegateFuncs struct {
	FailBuild       func(ctx context.Context, cs *changeset.Changeset, userInfo map[string]any, err error)
	Commit          func(ctx context.Context, c Commit)
	ChangeSelection func(ctx context.Context, selection []changeset.IndexPath)
}

func (d DelegateFuncs) DidFailBuild(ctx context.Context, cs *changeset.Changeset, userInfo map[string]any, err error) {
	if d.FailBuild != nil {
		d.FailBuild(ctx, cs, userInfo, err)
	}
}

func (d DelegateFuncs) DidCommit(ctx context.Context, c Commit) {
	if d.Commit != nil {
		d.Commit(ctx, c)
	}
}

func (d DelegateFuncs) DidChangeSelection(ctx context.Context, selection []changeset.IndexPath) {
	if d.ChangeSelection != nil {
		d.ChangeSelection(ctx, selection)
	}
}
