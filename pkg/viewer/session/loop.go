package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

var ErrClosed = errors.New("session is closed")

// Loop runs every callback of one session on a single goroutine, so views,
// the cursor and the state bridge need no locking. Do and Post must not be
// called from inside the loop; use Defer there.
type Loop struct {
	tasks    chan func()
	deferred []func()
	quit     chan struct{}
	done     chan struct{}
	final    func()
	once     sync.Once
	log      *zap.Logger
}

func NewLoop(buffer int, log *zap.Logger) *Loop {
	if log == nil {
		log = zap.NewNop()
	}
	if buffer <= 0 {
		buffer = 64
	}
	l := &Loop{
		tasks: make(chan func(), buffer),
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
		log:   log,
	}
	go l.run()
	return l
}

func (l *Loop) run() {
	defer close(l.done)
	for {
		select {
		case fn := <-l.tasks:
			l.safe(fn)
			l.runDeferred()
		case <-l.quit:
			if l.final != nil {
				l.safe(l.final)
				l.runDeferred()
			}
			return
		}
	}
}

func (l *Loop) runDeferred() {
	for len(l.deferred) > 0 {
		fn := l.deferred[0]
		l.deferred[0] = nil
		l.deferred = l.deferred[1:]
		l.safe(fn)
	}
	l.deferred = nil
}

func (l *Loop) safe(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error("panic in session loop", zap.Any("panic", r))
		}
	}()
	fn()
}

// Post queues fn. It reports false once the loop is closed.
func (l *Loop) Post(fn func()) bool {
	select {
	case <-l.quit:
		return false
	default:
	}
	select {
	case l.tasks <- fn:
		return true
	case <-l.quit:
		return false
	}
}

// Defer queues fn to run right after the current task. It never blocks and
// is only valid on the loop goroutine.
func (l *Loop) Defer(fn func()) {
	l.deferred = append(l.deferred, fn)
}

// Do runs fn on the loop and waits for its result.
func (l *Loop) Do(ctx context.Context, fn func() error) error {
	errc := make(chan error, 1)
	posted := l.Post(func() {
		defer func() {
			if r := recover(); r != nil {
				errc <- fmt.Errorf("panic in session loop: %v", r)
			}
		}()
		errc <- fn()
	})
	if !posted {
		return ErrClosed
	}
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		return ErrClosed
	}
}

func (l *Loop) Close() {
	l.CloseWith(nil)
}

// CloseWith stops accepting tasks and runs final as the last task. Queued
// tasks that did not start are dropped.
func (l *Loop) CloseWith(final func()) {
	l.once.Do(func() {
		l.final = final
		close(l.quit)
	})
}

// Done is closed when the loop goroutine has exited.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

func (l *Loop) Closed() bool {
	select {
	case <-l.quit:
		return true
	default:
		return false
	}
}
