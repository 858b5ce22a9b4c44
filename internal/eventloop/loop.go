package eventloop

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/rickgao/subscription-dashboard/internal/buffer"
)

// ErrStopped is returned by Call when the loop no longer accepts tasks.
var ErrStopped = errors.New("event loop stopped")

// Loop executes posted tasks one at a time, in post order, on a single goroutine.
type Loop struct {
	logger *slog.Logger
	tasks  *buffer.Queue[func()]

	startOnce sync.Once
	stopOnce  sync.Once
	done      chan struct{}
}

// New creates a Loop. Tasks may be posted before Start; they run once it starts.
func New(logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		logger: logger.With("component", "eventloop"),
		tasks:  buffer.NewQueue[func()](64),
		done:   make(chan struct{}),
	}
}

// Start launches the loop goroutine. The loop stops accepting tasks when ctx
// is cancelled or Stop is called.
func (l *Loop) Start(ctx context.Context) error {
	l.startOnce.Do(func() {
		go l.run()
		go func() {
			select {
			case <-ctx.Done():
				l.tasks.Close()
			case <-l.done:
			}
		}()
	})
	return nil
}

// Stop closes the task queue and waits for queued tasks to finish.
func (l *Loop) Stop(ctx context.Context) error {
	l.stopOnce.Do(l.tasks.Close)

	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		l.logger.Warn("event loop stop timed out", "pending", l.tasks.Len())
		return ctx.Err()
	}
}

// Post queues fn. It never blocks; it returns false once the loop is stopped.
func (l *Loop) Post(fn func()) bool {
	return l.tasks.Send(fn)
}

// Call posts fn and waits until it has run. It must not be called from a
// task running on the loop.
func (l *Loop) Call(ctx context.Context, fn func()) error {
	ran := make(chan struct{})
	if !l.Post(func() {
		defer close(ran)
		fn()
	}) {
		return ErrStopped
	}

	select {
	case <-ran:
		return nil
	case <-l.done:
		// The task may have been queued ahead of the close and still run.
		select {
		case <-ran:
			return nil
		default:
			return ErrStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed when the loop goroutine has exited.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

func (l *Loop) run() {
	defer close(l.done)

	for {
		task, ok := l.tasks.Receive()
		if !ok {
			return
		}
		l.exec(task)
	}
}

// exec runs one task; a panicking task is logged and the loop carries on.
func (l *Loop) exec(task func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("task panicked", "panic", r)
		}
	}()
	task()
}

// Async runs work on its own goroutine and delivers the result to done on
// the loop. If the loop has stopped, the result is discarded.
func Async[T any](l *Loop, ctx context.Context, work func(context.Context) (T, error), done func(T, error)) {
	go func() {
		v, err := work(ctx)
		if !l.Post(func() { done(v, err) }) {
			l.logger.Debug("discarding async result after stop", "error", err)
		}
	}()
}
