// File: concurrency/timer.go
//
// Timer and ticker values over reactor timers. A Timer delivers the
// fire time exactly once on its channel; a Ticker delivers on an
// unbuffered channel and silently drops a tick when no receiver is
// waiting, so periodic timers are not a reliable queue.

package concurrency

import (
	"time"

	"github.com/momentics/coopio/api"
	"github.com/momentics/coopio/coro"
)

// Timer is a one-shot timer handle.
type Timer struct {
	// C receives the fire time exactly once.
	C *Channel

	sched   *coro.Scheduler
	id      api.WatchID
	fn      func()
	stopped bool
}

// NewTimer arms a timer that sends the current time on C after d.
func NewTimer(d time.Duration) *Timer { return NewTimerIn(coro.Default(), d) }

// NewTimerIn arms a timer on an explicit scheduler.
func NewTimerIn(s *coro.Scheduler, d time.Duration) *Timer {
	ch, _ := NewChannelIn(s, 1)
	t := &Timer{C: ch, sched: s}
	t.arm(d)
	return t
}

// AfterFunc arms a timer that invokes fn inside the reactor tick.
func AfterFunc(d time.Duration, fn func()) *Timer {
	return AfterFuncIn(coro.Default(), d, fn)
}

// AfterFuncIn is AfterFunc on an explicit scheduler.
func AfterFuncIn(s *coro.Scheduler, d time.Duration, fn func()) *Timer {
	t := &Timer{sched: s, fn: fn}
	t.arm(d)
	return t
}

func (t *Timer) arm(d time.Duration) {
	t.id = t.sched.Reactor().Timer(d, 0, func(api.WatchID) {
		t.stopped = true
		if t.fn != nil {
			t.fn()
			return
		}
		t.C.TrySend(time.Now())
	})
}

// Stop cancels the timer. Stopping a fired or stopped timer is a
// no-op; it reports whether the call prevented a fire.
func (t *Timer) Stop() bool {
	if t.stopped {
		return false
	}
	t.stopped = true
	t.sched.Reactor().Unwatch(t.id)
	return true
}

// Reset re-arms the timer for d, replacing the underlying watcher.
func (t *Timer) Reset(d time.Duration) {
	t.sched.Reactor().Unwatch(t.id)
	t.stopped = false
	t.arm(d)
}

// After returns a channel that receives the fire time once after d.
func After(d time.Duration) *Channel { return NewTimer(d).C }

// Ticker delivers timestamps at a fixed period.
type Ticker struct {
	// C is unbuffered: a tick with no waiting receiver is dropped.
	C *Channel

	sched   *coro.Scheduler
	id      api.WatchID
	stopped bool
}

// NewTicker arms a periodic timer firing immediately and then every
// period.
func NewTicker(period time.Duration) *Ticker { return NewTickerIn(coro.Default(), period) }

// NewTickerIn is NewTicker on an explicit scheduler.
func NewTickerIn(s *coro.Scheduler, period time.Duration) *Ticker {
	ch, _ := NewChannelIn(s, 0)
	t := &Ticker{C: ch, sched: s}
	t.id = s.Reactor().Timer(0, period, func(api.WatchID) {
		t.C.TrySend(time.Now())
	})
	return t
}

// Stop cancels the ticker; idempotent.
func (t *Ticker) Stop() {
	if t.stopped {
		return
	}
	t.stopped = true
	t.sched.Reactor().Unwatch(t.id)
}
