// File: coopio.go
//
// Façade over the coopio runtime: lazy wiring of the process-wide
// scheduler and reactor, plus the task entry points user code starts
// from.

package coopio

import (
	"sync"
	"time"

	"github.com/momentics/coopio/api"
	"github.com/momentics/coopio/coro"
	"github.com/momentics/coopio/reactor"
)

var (
	initOnce sync.Once
	initErr  error
)

// Init wires the default scheduler to a reactor built from the
// configured backend. It is called lazily by the entry points below;
// calling it explicitly surfaces backend construction errors early.
func Init() error {
	initOnce.Do(func() {
		s := coro.Default()
		r, err := reactor.New(func(fn func()) { s.Go(fn) })
		if err != nil {
			initErr = err
			return
		}
		s.SetReactor(r)
	})
	return initErr
}

// Scheduler returns the process-wide scheduler.
func Scheduler() *coro.Scheduler {
	_ = Init()
	return coro.Default()
}

// Reactor returns the process-wide reactor.
func Reactor() api.Reactor {
	_ = Init()
	return coro.Default().Reactor()
}

// Go spawns a task running fn.
func Go(fn func()) *coro.Task {
	return Scheduler().Go(fn)
}

// Current returns the task holding the execution pointer; in the outer
// context that is the main task.
func Current() *coro.Task {
	return Scheduler().Current()
}

// Sleep suspends the current task for d.
func Sleep(d time.Duration) error {
	return Scheduler().Sleep(d)
}

// Defer registers fn to run when the current task terminates.
func Defer(fn func()) {
	Scheduler().Current().Defer(fn)
}

// Suspend parks the current task until something wakes it and returns
// whatever the wakeup supplied.
func Suspend() (any, error) {
	return Scheduler().Suspend(nil)
}

// NextTick schedules fn at the top of the next scheduler tick, before
// any reactor work.
func NextTick(fn func()) {
	Scheduler().NextTick(fn)
}

// Wait drives the scheduler until no work remains.
func Wait() error {
	return Scheduler().Run()
}

// Terminate cancels a task cooperatively.
func Terminate(t *coro.Task) *coro.Outcome {
	return Scheduler().Terminate(t)
}
