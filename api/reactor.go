// File: api/reactor.go
//
// Platform-neutral reactor contract: readiness watchers, signal
// watchers and timers behind monotonic watch ids.

package api

import (
	"os"
	"time"
)

// WatchID identifies a single reactor registration. Ids are opaque and
// monotonic; zero is never a valid id.
type WatchID uint64

// IOCallback is invoked when the watched descriptor becomes ready.
type IOCallback func(id WatchID, fd int)

// SignalCallback is invoked once per delivered signal.
type SignalCallback func(id WatchID, sig os.Signal)

// TimerCallback is invoked when a timer fires.
type TimerCallback func(id WatchID)

// Reactor is the single-threaded event loop driven by the scheduler.
// One Tick dispatches at most one batch of ready events in the fixed
// order: readers, writers, signals, due timers.
type Reactor interface {
	// Tick advances the reactor by one quantum. budget bounds the
	// blocking readiness wait; a negative budget means "until the next
	// timer is due", and zero means poll without blocking.
	Tick(budget time.Duration)

	// IsActive reports whether any watcher, signal handler or timer is
	// registered.
	IsActive() bool

	// WatchRead registers cb to run when fd is readable. Multiple
	// watchers per fd dispatch in insertion order.
	WatchRead(fd int, cb IOCallback) WatchID

	// WatchWrite registers cb to run when fd is writable.
	WatchWrite(fd int, cb IOCallback) WatchID

	// WatchSignal registers cb to run per delivered signal. Each
	// delivery runs inside its own task so a slow handler does not
	// delay signal draining.
	WatchSignal(sig os.Signal, cb SignalCallback) WatchID

	// Timer fires cb once after the given delay. If repeat > 0 the
	// timer re-arms with the period computed from the previous trigger
	// time, minimizing drift.
	Timer(after, repeat time.Duration, cb TimerCallback) WatchID

	// Unwatch removes a registration. Idempotent: removing an unknown
	// or already-removed id is a no-op.
	Unwatch(id WatchID)

	// OnFork reinitializes the reactor on the child side of a fork:
	// all watchers dropped, id counter reset, stopped flag cleared.
	OnFork()

	// Stop drops all registrations; further Ticks become no-ops.
	Stop()
}
