// File: coro/scheduler.go
//
// Process-wide cooperative scheduler: runnable queue, next-tick list,
// tick driver and the control operations that move tasks between
// states. Strictly single-threaded; no locking is required because at
// any moment exactly one task or the scheduler itself is running.

package coro

import (
	"time"

	"github.com/eapache/queue"

	"github.com/momentics/coopio/api"
	"github.com/momentics/coopio/control"
)

// Scheduler owns the runnable queue, the next-tick list and the live
// task set, and drives the reactor one quantum per tick.
type Scheduler struct {
	runnable *queue.Queue // of *Task, FIFO
	nextTick *queue.Queue // of func(), FIFO
	tasks    map[*Task]struct{}
	current  *Task
	main     *Task
	reactor  api.Reactor
	reports  []*Outcome
	pool     taskPool
}

// NewScheduler creates an empty scheduler with its main task.
func NewScheduler() *Scheduler {
	s := &Scheduler{
		runnable: queue.New(),
		nextTick: queue.New(),
		tasks:    make(map[*Task]struct{}),
	}
	s.initMain()
	return s
}

func (s *Scheduler) initMain() {
	main := s.NewTask(nil)
	main.main = true
	main.state = Running
	s.main = main
	s.current = main
}

var defaultScheduler = NewScheduler()

// Default returns the process-wide scheduler.
func Default() *Scheduler { return defaultScheduler }

// SetReactor injects the reactor driven by Tick.
func (s *Scheduler) SetReactor(r api.Reactor) { s.reactor = r }

// Reactor returns the injected reactor, nil before initialization.
func (s *Scheduler) Reactor() api.Reactor { return s.reactor }

// Main returns the distinguished task representing the outer context.
func (s *Scheduler) Main() *Task { return s.main }

// Current returns the task that currently holds the execution pointer.
func (s *Scheduler) Current() *Task { return s.current }

// RunnableLen reports the runnable queue depth.
func (s *Scheduler) RunnableLen() int { return s.runnable.Length() }

// TaskCount reports the number of live (started, not DEAD) tasks.
func (s *Scheduler) TaskCount() int { return len(s.tasks) }

// Go spawns a task running fn and enqueues it.
func (s *Scheduler) Go(fn func()) *Task {
	t := s.pool.get(s, func(...any) any {
		fn()
		return nil
	})
	s.Enqueue(t, false)
	return t
}

// Enqueue marks the task RUNNABLE. With immediate set it starts now,
// otherwise it is appended to the runnable queue.
func (s *Scheduler) Enqueue(t *Task, immediate bool) {
	t.setState(Runnable, "enqueue")
	if immediate {
		s.Start(t)
		return
	}
	s.runnable.Add(t)
}

// NextTick appends fn to the next-tick list. It is guaranteed to run
// at the top of the next tick, before any reactor work.
func (s *Scheduler) NextTick(fn func()) {
	s.nextTick.Add(fn)
}

// Wake schedules a suspended task to be resumed with value, preserving
// FIFO order with every other wakeup.
func (s *Scheduler) Wake(t *Task, value any) {
	s.wake(t, transfer{value: value})
}

// WakeErr schedules a suspended task to be resumed with err thrown at
// its suspension site.
func (s *Scheduler) WakeErr(t *Task, err error) {
	s.wake(t, transfer{err: err})
}

func (s *Scheduler) wake(t *Task, tr transfer) {
	if t.state == Dead {
		return
	}
	if t.main {
		t.pending = &tr
		return
	}
	t.pending = &tr
	if t.state == Runnable {
		// Already queued; the refreshed transfer rides the same entry.
		return
	}
	t.setState(Runnable, "wake")
	s.runnable.Add(t)
}

// Start runs a RUNNABLE task until it suspends or terminates.
func (s *Scheduler) Start(t *Task) *Outcome {
	o := s.newOutcome(ActionStart, t)
	if t.state != Runnable {
		o.Err = api.StateError(ActionStart, Runnable.String(), t.state.String())
		return s.report(o)
	}
	return s.startWith(t, transfer{}, o)
}

func (s *Scheduler) startWith(t *Task, in transfer, o *Outcome) *Outcome {
	s.tasks[t] = struct{}{}
	t.setState(Running, ActionStart)
	if !t.started {
		t.launch()
	}
	out := s.transferTo(t, in)
	return s.afterTransfer(t, out, o)
}

// Resume re-enters a WAITING task with value. On a CREATED task it
// routes through an implicit start.
func (s *Scheduler) Resume(t *Task, value any) *Outcome {
	o := s.newOutcome(ActionResume, t)
	if t.main {
		if t.state != Waiting {
			o.Err = api.StateError(ActionResume, Waiting.String(), t.state.String())
			return s.report(o)
		}
		t.pending = &transfer{value: value}
		return o
	}
	switch t.state {
	case Waiting:
		t.setState(Running, ActionResume)
		out := s.transferTo(t, transfer{value: value})
		return s.afterTransfer(t, out, o)
	case Created:
		t.setState(Runnable, "enqueue")
		return s.startWith(t, transfer{value: value}, o)
	default:
		o.Err = api.StateError(ActionResume, Waiting.String(), t.state.String())
		return s.report(o)
	}
}

// ThrowInto re-enters a task with err raised at its suspension site.
// A task that has not started yet dies immediately with err as its
// result; its defers still run.
func (s *Scheduler) ThrowInto(t *Task, err error) *Outcome {
	o := s.newOutcome(ActionThrow, t)
	if t.main {
		if t.state != Waiting {
			o.Err = api.StateError(ActionThrow, Waiting.String(), t.state.String())
			return s.report(o)
		}
		t.pending = &transfer{err: err}
		return o
	}
	switch t.state {
	case Waiting:
		t.setState(Running, ActionThrow)
		out := s.transferTo(t, transfer{err: err})
		return s.afterTransfer(t, out, o)
	case Created, Runnable:
		return s.startWith(t, transfer{err: err}, o)
	default:
		o.Err = api.StateError(ActionThrow, Waiting.String(), t.state.String())
		return s.report(o)
	}
}

// Terminate cancels a task cooperatively. A RUNNING task receives the
// terminate error at its next suspension point via a high-priority
// one-shot listener; any other live task is thrown into directly.
func (s *Scheduler) Terminate(t *Task) *Outcome {
	o := s.newOutcome(ActionTerminate, t)
	switch t.state {
	case Running:
		t.OnState(Waiting, func(t *Task) {
			s.ThrowInto(t, api.NewError(api.ErrCodeTerminate, "task terminated")).
				Resolve(api.ErrTerminate)
		}, true)
		return o
	case Dead:
		return o
	default:
		inner := s.ThrowInto(t, api.NewError(api.ErrCodeTerminate, "task terminated"))
		inner.Resolve(api.ErrTerminate)
		o.Value = inner.Value
		return o
	}
}

// transferTo hands control to the task and blocks until it yields or
// terminates.
func (s *Scheduler) transferTo(t *Task, in transfer) transfer {
	prev := s.current
	s.current = t
	t.resumeCh <- in
	out := <-t.yieldCh
	s.current = prev
	return out
}

// afterTransfer settles the outcome once control came back. A done
// transfer means the task terminated: it goes DEAD, its defers run
// exactly once, and its handle is dropped.
func (s *Scheduler) afterTransfer(t *Task, out transfer, o *Outcome) *Outcome {
	if !out.done {
		// Task suspended; its state is already WAITING.
		o.Value = out.value
		return o
	}
	if out.err != nil {
		t.result = out.err
		o.Err = out.err
	} else {
		t.result = out.value
		o.Value = out.value
	}
	t.setState(Dead, "finish")
	t.runDefers()
	delete(s.tasks, t)
	s.pool.put(t)
	return s.report(o)
}

func (s *Scheduler) newOutcome(action string, t *Task) *Outcome {
	return &Outcome{Action: action, Task: t, Trace: captureStack(2)}
}

// report queues an erroneous outcome for the end-of-tick surfacer.
func (s *Scheduler) report(o *Outcome) *Outcome {
	if o.Err != nil {
		s.reports = append(s.reports, o)
	}
	return o
}

// dispatch runs one entry popped from the runnable queue.
func (s *Scheduler) dispatch(t *Task) {
	if t.state != Runnable {
		// Terminated or resumed through another path meanwhile.
		return
	}
	var in transfer
	if t.pending != nil {
		in = *t.pending
		t.pending = nil
	}
	if !t.started {
		s.startWith(t, in, s.newOutcome(ActionStart, t))
		return
	}
	// A previously suspended task woken through the queue.
	t.setState(Running, ActionResume)
	out := s.transferTo(t, in)
	s.afterTransfer(t, out, s.newOutcome(ActionResume, t))
}

// Tick advances the runtime by one scheduler frame: drain next-tick
// callbacks (fault isolated, first failure returned after the drain),
// advance the reactor one quantum, drain the runnable queue, then
// surface unresolved outcome reports.
func (s *Scheduler) Tick() error {
	var firstErr error
	n := s.nextTick.Length()
	for i := 0; i < n; i++ {
		fn := s.nextTick.Remove().(func())
		func() {
			defer func() {
				if r := recover(); r != nil && firstErr == nil {
					firstErr = recoveredError(r)
				}
			}()
			fn()
		}()
	}
	if s.reactor != nil {
		budget := time.Duration(-1)
		if s.runnable.Length() > 0 || s.nextTick.Length() > 0 {
			budget = 0
		}
		s.reactor.Tick(budget)
	}
	for s.runnable.Length() > 0 {
		t := s.runnable.Remove().(*Task)
		s.dispatch(t)
	}
	s.flushReports()
	return firstErr
}

// HasWork reports whether another tick could make progress.
func (s *Scheduler) HasWork() bool {
	if s.runnable.Length() > 0 || s.nextTick.Length() > 0 {
		return true
	}
	return s.reactor != nil && s.reactor.IsActive()
}

// Run drives ticks until no work remains or the main task has a
// pending message. The first next-tick failure is returned.
func (s *Scheduler) Run() error {
	var firstErr error
	for s.HasWork() && s.main.pending == nil {
		if err := s.Tick(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// suspendMain parks the outer context: it drives the tick loop until
// some wakeup posts the main task's pending message.
func (s *Scheduler) suspendMain(t *Task) (any, error) {
	t.setState(Waiting, "suspend")
	if err := s.Run(); err != nil {
		t.setState(Running, ActionResume)
		return nil, err
	}
	if t.pending == nil {
		t.setState(Running, ActionResume)
		return nil, api.Errorf(api.ErrCodeReactor,
			"main task suspended but no pending work can wake it")
	}
	in := *t.pending
	t.pending = nil
	t.setState(Running, ActionResume)
	return in.value, in.err
}

// Suspend parks the current task until a peer or the reactor wakes it.
// The return values are whatever the wakeup supplied.
func (s *Scheduler) Suspend(value any) (any, error) {
	return s.current.suspendErr(value)
}

// Sleep suspends the current task for d using a reactor timer.
func (s *Scheduler) Sleep(d time.Duration) error {
	if s.reactor == nil {
		return api.NewError(api.ErrCodeReactor, "sleep: no reactor installed")
	}
	cur := s.current
	id := s.reactor.Timer(d, 0, func(api.WatchID) {
		s.Wake(cur, nil)
	})
	_, err := s.Suspend(nil)
	if err != nil {
		s.reactor.Unwatch(id)
	}
	return propagate(err)
}

// flushReports surfaces every still-unresolved erroneous outcome to
// the error sink, with the failing task's trace ring and the control
// operation's capture-site trace.
func (s *Scheduler) flushReports() {
	if len(s.reports) == 0 {
		return
	}
	reports := s.reports
	s.reports = nil
	log := control.Sink()
	for _, o := range reports {
		if o.Resolved() {
			continue
		}
		ev := log.Error().
			Err(o.Err).
			Str("action", o.Action)
		if o.Task != nil {
			ev = ev.Strs("task_trace", o.Task.trace.format())
		}
		ev.Strs("capture_trace", o.Trace).Msg("unresolved task error")
	}
}

// Reset clears all scheduler state; used on the child side of a fork.
func (s *Scheduler) Reset() {
	s.runnable = queue.New()
	s.nextTick = queue.New()
	s.tasks = make(map[*Task]struct{})
	s.reports = nil
	s.pool = taskPool{}
	s.initMain()
}

func init() {
	control.Probes().RegisterProbe("scheduler", func() any {
		s := defaultScheduler
		return map[string]any{
			"runnable":  s.runnable.Length(),
			"next_tick": s.nextTick.Length(),
			"tasks":     len(s.tasks),
		}
	})
}
