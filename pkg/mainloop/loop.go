// Package mainloop provides the single goroutine that owns a view. Everything
// that mutates view state is posted to the loop as a task and runs there in
// FIFO order; code that must only run on the loop asserts it with
// MustBeOnLoop.
package mainloop

import (
	"context"
	"sync"
	"sync/atomic"

	apperrors "github.com/odvcencio/componentkit/pkg/errors"
	"github.com/odvcencio/componentkit/pkg/logging"
)

// Task is a unit of work run on the loop. The context it receives is marked
// as on-loop and is cancelled when the loop stops.
type Task func(ctx context.Context)

// Config configures a Loop.
type Config struct {
	// QueueSize bounds the number of posted tasks waiting to run.
	QueueSize int
	// Idle, if set, runs on the loop whenever the queue drains after at
	// least one task ran. Hosts use it to redraw.
	Idle   Task
	Logger *logging.Logger
}

// Loop runs posted tasks one at a time on the goroutine that called Run.
type Loop struct {
	tasks   chan Task
	idle    Task
	logger  *logging.Logger
	running atomic.Bool

	stopOnce sync.Once
	stopped  chan struct{}
}

type loopKey struct{}

// New creates a loop. It does nothing until Run is called.
func New(cfg Config) *Loop {
	size := cfg.QueueSize
	if size <= 0 {
		size = 128
	}
	return &Loop{
		tasks:   make(chan Task, size),
		idle:    cfg.Idle,
		logger:  cfg.Logger.WithSource("mainloop"),
		stopped: make(chan struct{}),
	}
}

// Run processes tasks until ctx is cancelled. A loop runs once; tasks still
// queued when it stops are dropped.
func (l *Loop) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if !l.running.CompareAndSwap(false, true) {
		return apperrors.New(apperrors.ErrCodeInternal, "loop already running")
	}
	defer l.stop()

	loopCtx := context.WithValue(ctx, loopKey{}, l)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case task := <-l.tasks:
			task(loopCtx)
			if l.idle != nil && len(l.tasks) == 0 {
				l.idle(loopCtx)
			}
		}
	}
}

func (l *Loop) stop() {
	l.stopOnce.Do(func() {
		close(l.stopped)
		if dropped := len(l.tasks); dropped > 0 {
			_ = l.logger.Warn(logging.CategoryView, "loop_stopped", "dropping queued tasks", map[string]any{
				"dropped": dropped,
			})
		}
	})
}

// Stopped is closed once Run has returned.
func (l *Loop) Stopped() <-chan struct{} {
	return l.stopped
}

// Post queues task. It blocks while the queue is full and fails if ctx is
// done or the loop has stopped.
func (l *Loop) Post(ctx context.Context, task Task) error {
	if task == nil {
		return apperrors.New(apperrors.ErrCodeInvalidInput, "nil task")
	}
	select {
	case <-l.stopped:
		return apperrors.New(apperrors.ErrCodeClosed, "loop stopped")
	default:
	}
	select {
	case l.tasks <- task:
		return nil
	case <-l.stopped:
		return apperrors.New(apperrors.ErrCodeClosed, "loop stopped")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryPost queues task without blocking. It reports whether the task was
// queued.
func (l *Loop) TryPost(task Task) bool {
	select {
	case <-l.stopped:
		return false
	default:
	}
	select {
	case l.tasks <- task:
		return true
	default:
		return false
	}
}

// Do runs fn on the loop and returns its error. Called from the loop it runs
// fn inline.
func (l *Loop) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if l.OnLoop(ctx) {
		return fn(ctx)
	}
	done := make(chan struct{})
	var err error
	if perr := l.Post(ctx, func(loopCtx context.Context) {
		defer close(done)
		err = fn(loopCtx)
	}); perr != nil {
		return perr
	}
	if werr := l.Await(ctx, done); werr != nil {
		return werr
	}
	return err
}

// Await blocks until done is closed. Called from the loop it keeps running
// queued tasks while it waits, so a task may wait for work that itself needs
// the loop.
func (l *Loop) Await(ctx context.Context, done <-chan struct{}) error {
	if !l.OnLoop(ctx) {
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-l.stopped:
			select {
			case <-done:
				return nil
			default:
			}
			return apperrors.New(apperrors.ErrCodeClosed, "loop stopped")
		}
	}
	for {
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case task := <-l.tasks:
			task(ctx)
		}
	}
}

// OnLoop reports whether ctx belongs to a task running on this loop.
func (l *Loop) OnLoop(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	owner, _ := ctx.Value(loopKey{}).(*Loop)
	return owner == l
}

// MustBeOnLoop panics unless ctx belongs to a task running on this loop.
func (l *Loop) MustBeOnLoop(ctx context.Context) {
	if !l.OnLoop(ctx) {
		panic("mainloop: view state touched off the main loop")
	}
}
