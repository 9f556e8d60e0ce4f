// Package loop provides the single-goroutine cooperative event loop that
// owns all game state. Registries, machines, and applications are mutated
// only from loop callbacks; transports hand work in via Post.
package loop

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Loop runs posted callbacks one at a time on a single goroutine.
type Loop struct {
	tasks chan func()

	closeCh   chan struct{}
	closeOnce sync.Once

	log *zap.Logger
}

func New(queueSize int, log *zap.Logger) *Loop {
	return &Loop{
		tasks:   make(chan func(), queueSize),
		closeCh: make(chan struct{}),
		log:     log,
	}
}

// Post enqueues fn for execution on the loop goroutine. It blocks while the
// queue is full; a blocked Post only stalls the calling connection
// goroutine, never the loop itself.
func (l *Loop) Post(fn func()) {
	select {
	case l.tasks <- fn:
	case <-l.closeCh:
	}
}

// Timer is a cancelable scheduled callback.
type Timer struct {
	t       *time.Timer
	stopped bool
}

// Stop cancels the timer best-effort. Stopping an already-fired timer is a
// no-op; the callback may still run if it was already posted.
func (t *Timer) Stop() {
	if t == nil || t.stopped {
		return
	}
	t.stopped = true
	if t.t != nil {
		t.t.Stop()
	}
}

// Schedule runs fn on the loop goroutine after d. Used for dialog auto-close
// and coalesced redraws.
func (l *Loop) Schedule(d time.Duration, fn func()) *Timer {
	t := time.AfterFunc(d, func() { l.Post(fn) })
	return &Timer{t: t}
}

// Run executes posted callbacks until ctx is cancelled. A panicking callback
// is logged and swallowed so one connection's failure cannot take down the
// rest of the process.
func (l *Loop) Run(ctx context.Context) error {
	defer l.closeOnce.Do(func() { close(l.closeCh) })
	for {
		select {
		case fn := <-l.tasks:
			l.runOne(fn)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (l *Loop) runOne(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error("panic in loop callback", zap.Any("panic", r))
		}
	}()
	fn()
}
