// File: coro/task.go
//
// Suspendable task: entry function with bound arguments, defer list,
// state listeners and the goroutine handoff engine. Control always
// moves through an unbuffered channel rendezvous, so the scheduler
// blocks while a task runs and a task blocks while suspended.

package coro

import (
	"errors"

	"github.com/momentics/coopio/api"
	"github.com/momentics/coopio/control"
)

// TaskFunc is a task entry point. The bound arguments are passed on
// start; the return value becomes the task's last result.
type TaskFunc func(args ...any) any

// transfer is one control handoff between the scheduler and a task.
type transfer struct {
	value any
	err   error
	done  bool
}

// taskAbort carries an error thrown into a task. It travels as a panic
// so it unwinds the task's stack (running its function defers) and is
// recovered at the task body's top frame.
type taskAbort struct{ err error }

type listener struct {
	target State
	fn     func(*Task)
}

// Task is a suspendable unit of execution.
type Task struct {
	sched      *Scheduler
	state      State
	entry      TaskFunc
	args       []any
	result     any
	defers     []func()
	defersRun  bool
	hi, lo     []listener
	trace      *traceRing
	resumeCh   chan transfer
	yieldCh    chan transfer
	started    bool
	main       bool
	recyclable bool
	// pending holds the queued wakeup transfer for a runnable task, or
	// the pending message that releases a suspended main task.
	pending *transfer
}

// NewTask creates a task in state CREATED bound to fn and args.
func (s *Scheduler) NewTask(fn TaskFunc, args ...any) *Task {
	return &Task{
		sched: s,
		state: Created,
		entry: fn,
		args:  args,
		trace: newTraceRing(control.MaxTraces()),
	}
}

// State returns the current lifecycle state.
func (t *Task) State() State { return t.state }

// Result returns the task's last result: the entry's return value, or
// the error that ended it.
func (t *Task) Result() any { return t.result }

// Err returns the task's result when it is an error, nil otherwise.
func (t *Task) Err() error {
	if err, ok := t.result.(error); ok {
		return err
	}
	return nil
}

// Defer registers fn to run exactly once when the task terminates.
// Defers run in registration order on the tick that observes the
// transition to DEAD.
func (t *Task) Defer(fn func()) {
	t.defers = append(t.defers, fn)
}

// OnState registers a one-shot listener fired when the task enters
// target. High-priority listeners fire before low-priority ones; each
// listener runs inside a fresh task so a listener fault cannot corrupt
// the emitter.
func (t *Task) OnState(target State, fn func(*Task), highPriority bool) {
	l := listener{target: target, fn: fn}
	if highPriority {
		t.hi = append(t.hi, l)
	} else {
		t.lo = append(t.lo, l)
	}
}

// Trace returns the task's bounded debug ring, oldest entry first.
func (t *Task) Trace() []TraceEntry { return t.trace.Snapshot() }

// setState performs a transition. A redundant transition to the same
// state is a no-op. Matching one-shot listeners fire high priority
// first, each in a fresh task.
func (t *Task) setState(next State, event string) {
	if t.state == next {
		return
	}
	t.state = next
	t.trace.record(next, event)
	t.fire(next)
}

func (t *Task) fire(st State) {
	matched := takeListeners(&t.hi, st)
	matched = append(matched, takeListeners(&t.lo, st)...)
	for _, l := range matched {
		fn := l.fn
		t.sched.Go(func() { fn(t) })
	}
}

func takeListeners(list *[]listener, st State) []listener {
	var matched []listener
	kept := (*list)[:0]
	for _, l := range *list {
		if l.target == st {
			matched = append(matched, l)
		} else {
			kept = append(kept, l)
		}
	}
	*list = kept
	return matched
}

// launch spins up the task goroutine, parked until the first transfer.
func (t *Task) launch() {
	t.resumeCh = make(chan transfer)
	t.yieldCh = make(chan transfer)
	t.started = true
	go t.body()
}

// body is the task goroutine. It waits for the initial transfer, runs
// the entry and reports completion through the final transfer.
func (t *Task) body() {
	in := <-t.resumeCh
	var out transfer
	func() {
		defer func() {
			if r := recover(); r != nil {
				out.err = recoveredError(r)
			}
		}()
		if in.err != nil {
			// Thrown before the first instruction ran.
			panic(taskAbort{in.err})
		}
		out.value = t.entry(t.args...)
	}()
	out.done = true
	t.yieldCh <- out
}

// suspendErr parks the current task, yielding value to the party that
// last resumed it. The return values are whatever a later Resume or
// ThrowInto supplies.
func (t *Task) suspendErr(value any) (any, error) {
	s := t.sched
	if s.current != t || t.state != Running {
		return nil, api.StateError("suspend", Running.String(), t.state.String())
	}
	if t.main {
		return s.suspendMain(t)
	}
	t.setState(Waiting, "suspend")
	t.yieldCh <- transfer{value: value}
	in := <-t.resumeCh
	if in.err != nil {
		return nil, in.err
	}
	return in.value, nil
}

// Recycle rebinds a DEAD task to a new entry, clearing listeners,
// defers, arguments, result and trace, and returns it to CREATED.
func (t *Task) Recycle(fn TaskFunc, args ...any) error {
	if t.state != Dead {
		return api.StateError("recycle", Dead.String(), t.state.String())
	}
	t.entry = fn
	t.args = args
	t.result = nil
	t.defers = nil
	t.defersRun = false
	t.hi = nil
	t.lo = nil
	t.pending = nil
	t.started = false
	t.resumeCh = nil
	t.yieldCh = nil
	t.trace.reset()
	t.state = Created
	t.trace.record(Created, "recycle")
	return nil
}

// runDefers executes the defer list exactly once, in registration
// order. A faulting defer is reported to the error sink and the rest
// still run.
func (t *Task) runDefers() {
	if t.defersRun {
		return
	}
	t.defersRun = true
	defers := t.defers
	t.defers = nil
	for _, fn := range defers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log := control.Sink()
					log.Error().Err(recoveredError(r)).Msg("task defer failed")
				}
			}()
			fn()
		}()
	}
}

// recoveredError normalizes a recovered panic value to an error.
func recoveredError(r any) error {
	switch v := r.(type) {
	case taskAbort:
		return v.err
	case error:
		return v
	default:
		return api.Errorf(api.ErrCodeTaskState, "task panicked: %v", v)
	}
}

// propagate re-raises cooperative cancellation so it unwinds through
// the task's defers; any other thrown error is returned to the caller
// at the suspension site.
func propagate(err error) error {
	if err != nil && errors.Is(err, api.ErrTerminate) {
		panic(taskAbort{err})
	}
	return err
}

// Propagate applies the runtime's throw policy to an error received at
// a suspension site: cooperative cancellation re-raises and unwinds
// the task, anything else is returned. Blocking primitives outside
// this package call it before handing a thrown error to their caller.
func Propagate(err error) error { return propagate(err) }
