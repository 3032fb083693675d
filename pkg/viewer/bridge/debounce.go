package bridge

import "time"

// Timer is a pending scheduled call.
type Timer interface {
	Stop() bool
}

// Scheduler runs fn once after d. Implementations must run fn on the
// goroutine that owns the debouncer.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) Timer
}

// LoopScheduler fires timers through post, which hands fn to the session loop.
type LoopScheduler struct {
	post func(func())
}

func NewLoopScheduler(post func(func())) *LoopScheduler {
	return &LoopScheduler{post: post}
}

func (s *LoopScheduler) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, func() { s.post(fn) })
}

// Debouncer collapses bursts of Trigger calls into one trailing call of fn.
// Each Trigger restarts the quiescence window. A timer that already fired
// but was queued behind a newer Trigger is recognised by its generation
// and ignored.
type Debouncer struct {
	sched   Scheduler
	wait    time.Duration
	fn      func()
	gen     uint64
	timer   Timer
	pending bool
}

func NewDebouncer(sched Scheduler, wait time.Duration, fn func()) *Debouncer {
	return &Debouncer{sched: sched, wait: wait, fn: fn}
}

func (d *Debouncer) Trigger() {
	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.pending = true
	d.timer = d.sched.AfterFunc(d.wait, func() {
		if gen != d.gen || !d.pending {
			return
		}
		d.pending = false
		d.timer = nil
		d.fn()
	})
}

// Cancel drops the pending call and reports whether there was one.
func (d *Debouncer) Cancel() bool {
	was := d.pending
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.gen++
	d.pending = false
	return was
}

func (d *Debouncer) Pending() bool {
	return d.pending
}

func (d *Debouncer) Wait() time.Duration {
	return d.wait
}
