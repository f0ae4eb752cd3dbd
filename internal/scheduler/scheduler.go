// Package scheduler provides the single-threaded main execution context.
//
// All mutation of worlds, levels and players happens on the goroutine
// running Scheduler.Run. Other goroutines hand work to it with Post (fire
// and forget) or Call (wait for completion). Deferred and periodic work is
// scheduled with After and Every; the returned Task can be cancelled, and a
// task cancelled from the main context is guaranteed never to run.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/worldkeeper/worldkeeper/internal/logging"
)

// TickDuration is the length of one game tick.
const TickDuration = 50 * time.Millisecond

// ErrStopped is returned by Call when the scheduler is not running.
var ErrStopped = errors.New("scheduler stopped")

// Ticks converts a number of game ticks into a duration.
func Ticks(n int64) time.Duration {
	return time.Duration(n) * TickDuration
}

// Scheduler is the main execution context.
type Scheduler struct {
	mu      sync.Mutex
	queue   []func()
	wake    chan struct{}
	done    chan struct{}
	running atomic.Bool
	stopped bool
}

// New creates a scheduler. Nothing runs until Run is called.
func New() *Scheduler {
	return &Scheduler{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// Run executes posted work on the calling goroutine until ctx is done.
// Work still queued when ctx ends is dropped.
func (s *Scheduler) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return errors.New("scheduler already running")
	}
	defer func() {
		s.mu.Lock()
		s.stopped = true
		s.queue = nil
		s.mu.Unlock()
		close(s.done)
	}()

	for {
		for _, fn := range s.drain() {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.runSafe(fn)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.wake:
		}
	}
}

// Done is closed once Run has returned.
func (s *Scheduler) Done() <-chan struct{} {
	return s.done
}

func (s *Scheduler) drain() []func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	batch := s.queue
	s.queue = nil
	return batch
}

func (s *Scheduler) runSafe(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error().
				Str("panic", fmt.Sprint(r)).
				Str("stack", string(debug.Stack())).
				Msg("scheduled task panicked")
		}
	}()
	fn()
}

// Post enqueues fn to run on the main context. It reports false when the
// scheduler has stopped and fn was dropped.
func (s *Scheduler) Post(fn func()) bool {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return false
	}
	s.queue = append(s.queue, fn)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return true
}

// Call runs fn on the main context and waits for it to return. It must
// not be called from the main context itself.
//
// When ctx ends first, Call returns ctx.Err() without waiting, but fn
// stays queued and still runs. Callers whose work must not be left
// half-done pass a context that cannot be cancelled.
func (s *Scheduler) Call(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if !s.Post(func() {
		defer close(finished)
		fn()
	}) {
		return ErrStopped
	}

	select {
	case <-finished:
		return nil
	case <-s.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Task is a handle on deferred or periodic work.
type Task struct {
	cancelled atomic.Bool
	timer     *time.Timer
	stop      chan struct{}
	once      sync.Once
}

// Cancel prevents any further execution of the task. When called on the
// main context the task is guaranteed not to run afterwards.
func (t *Task) Cancel() {
	if t == nil {
		return
	}
	t.once.Do(func() {
		t.cancelled.Store(true)
		if t.timer != nil {
			t.timer.Stop()
		}
		if t.stop != nil {
			close(t.stop)
		}
	})
}

// Cancelled reports whether Cancel has been called.
func (t *Task) Cancelled() bool {
	return t != nil && t.cancelled.Load()
}

// After runs fn on the main context once d has elapsed.
func (s *Scheduler) After(d time.Duration, fn func()) *Task {
	t := &Task{}
	t.timer = time.AfterFunc(d, func() {
		s.Post(func() {
			if t.cancelled.Load() {
				return
			}
			fn()
		})
	})
	return t
}

// Every runs fn on the main context every d, starting after the first
// interval. A run is skipped rather than queued twice when the main
// context falls behind.
func (s *Scheduler) Every(d time.Duration, fn func()) *Task {
	t := &Task{stop: make(chan struct{})}
	var pending atomic.Bool

	go func() {
		ticker := time.NewTicker(d)
		defer ticker.Stop()
		for {
			select {
			case <-t.stop:
				return
			case <-s.done:
				return
			case <-ticker.C:
				if !pending.CompareAndSwap(false, true) {
					continue
				}
				s.Post(func() {
					defer pending.Store(false)
					if t.cancelled.Load() {
						return
					}
					fn()
				})
			}
		}
	}()
	return t
}
