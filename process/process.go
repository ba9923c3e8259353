//go:build unix

// File: process/process.go
//
// Process supervisor: child spawning, SIGCHLD-driven wait with an
// exit-code cache, post-fork hooks and signal delivery. Subordinate to
// the scheduler; the SIGCHLD watcher is installed lazily on the first
// Wait and removed when no subscribers remain.

package process

import (
	"os"
	"os/exec"
	"syscall"

	"github.com/eapache/queue"
	"golang.org/x/sys/unix"

	"github.com/momentics/coopio/api"
	"github.com/momentics/coopio/coro"
)

// ForkedEnv marks a child process image spawned by Fork.
const ForkedEnv = "COOPIO_FORKED"

type waiter struct {
	task      *coro.Task
	cancelled bool
}

// Supervisor owns the pending-wait map and the exit-code cache.
type Supervisor struct {
	sched    *coro.Scheduler
	waiters  map[int]*queue.Queue // pid -> *waiter FIFO
	cache    map[int]int          // pid -> exit code, no subscriber yet
	hooks    []func()
	sigWatch api.WatchID
}

// NewSupervisor creates a supervisor bound to an explicit scheduler.
func NewSupervisor(s *coro.Scheduler) *Supervisor {
	return &Supervisor{
		sched:   s,
		waiters: make(map[int]*queue.Queue),
		cache:   make(map[int]int),
	}
}

var defaultSupervisor = NewSupervisor(coro.Default())

// Default returns the process-wide supervisor.
func Default() *Supervisor { return defaultSupervisor }

// Forked registers a child-side hook. RunChild runs the hooks of the
// default supervisor in registration order before the child entry;
// hooks registered on any other supervisor are not run by it.
func (s *Supervisor) Forked(hook func()) {
	s.hooks = append(s.hooks, hook)
}

// Fork spawns argv as a child process image carrying the fork marker
// in its environment. The spawn is deferred to the next tick so it
// happens at a safe point; the caller suspends and is resumed with the
// child pid.
func (s *Supervisor) Fork(argv ...string) (int, error) {
	if len(argv) == 0 {
		return 0, api.NewError(api.ErrCodeArgument, "fork: empty argv")
	}
	cur := s.sched.Current()
	s.sched.NextTick(func() {
		pid, err := s.spawn(argv)
		if err != nil {
			s.sched.WakeErr(cur, err)
			return
		}
		s.sched.Wake(cur, pid)
	})
	v, err := s.sched.Suspend(nil)
	if err != nil {
		return 0, coro.Propagate(err)
	}
	return v.(int), nil
}

func (s *Supervisor) spawn(argv []string) (int, error) {
	path, err := exec.LookPath(argv[0])
	if err != nil {
		return 0, api.Errorf(api.ErrCodeArgument, "fork: %s", argv[0]).WithCause(err)
	}
	proc, err := os.StartProcess(path, argv, &os.ProcAttr{
		Env:   append(os.Environ(), ForkedEnv+"=1"),
		Files: []*os.File{os.Stdin, os.Stdout, os.Stderr},
	})
	if err != nil {
		return 0, api.Errorf(api.ErrCodeArgument, "fork: spawn failed").WithCause(err)
	}
	pid := proc.Pid
	// The SIGCHLD reap loop owns the zombie; drop the handle.
	_ = proc.Release()
	return pid, nil
}

// Wait suspends the current task until the child exits and returns its
// exit code: positive (or zero) for a normal exit, the negated signal
// number for a signal death. An already-reaped child returns from the
// cache immediately.
func (s *Supervisor) Wait(pid int) (int, error) {
	if code, ok := s.cache[pid]; ok {
		delete(s.cache, pid)
		return code, nil
	}
	s.ensureSigchld()
	// Catch up on children that exited before the watcher existed: the
	// signal for them was delivered to nobody.
	s.reap()
	if code, ok := s.cache[pid]; ok {
		delete(s.cache, pid)
		s.maybeReleaseSigchld()
		return code, nil
	}
	s.ensureSigchld()
	q := s.waiters[pid]
	if q == nil {
		q = queue.New()
		s.waiters[pid] = q
	}
	w := &waiter{task: s.sched.Current()}
	q.Add(w)
	v, err := s.sched.Suspend(nil)
	if err != nil {
		w.cancelled = true
		s.collect(pid)
		return 0, coro.Propagate(err)
	}
	return v.(int), nil
}

// Signal delivers sig to pid.
func (s *Supervisor) Signal(pid int, sig os.Signal) error {
	ss, ok := sig.(syscall.Signal)
	if !ok {
		return api.Errorf(api.ErrCodeArgument, "signal: unsupported signal %v", sig)
	}
	if err := unix.Kill(pid, ss); err != nil {
		return api.Errorf(api.ErrCodeArgument, "signal: kill %d", pid).WithCause(err)
	}
	return nil
}

// ensureSigchld lazily installs the SIGCHLD watcher.
func (s *Supervisor) ensureSigchld() {
	if s.sigWatch != 0 {
		return
	}
	s.sigWatch = s.sched.Reactor().WatchSignal(unix.SIGCHLD, func(api.WatchID, os.Signal) {
		s.reap()
	})
}

// reap collects every ready child non-blocking and dispatches or
// caches its exit code.
func (s *Supervisor) reap() {
	for {
		var ws unix.WaitStatus
		pid, err := unix.Wait4(-1, &ws, unix.WNOHANG, nil)
		if err != nil || pid <= 0 {
			break
		}
		code := exitCode(ws)
		q := s.waiters[pid]
		delivered := false
		if q != nil {
			for {
				w := popWaiter(q)
				if w == nil {
					break
				}
				s.sched.Wake(w.task, code)
				delivered = true
			}
			delete(s.waiters, pid)
		}
		if !delivered {
			s.cache[pid] = code
		}
	}
	s.maybeReleaseSigchld()
}

// collect drops cancelled waiters for pid and tears the SIGCHLD
// watcher down when nobody is waiting anymore.
func (s *Supervisor) collect(pid int) {
	if q := s.waiters[pid]; q != nil && liveCount(q) == 0 {
		delete(s.waiters, pid)
	}
	s.maybeReleaseSigchld()
}

func (s *Supervisor) maybeReleaseSigchld() {
	if len(s.waiters) == 0 && s.sigWatch != 0 {
		s.sched.Reactor().Unwatch(s.sigWatch)
		s.sigWatch = 0
	}
}

func popWaiter(q *queue.Queue) *waiter {
	for q.Length() > 0 {
		w := q.Remove().(*waiter)
		if !w.cancelled {
			return w
		}
	}
	return nil
}

func liveCount(q *queue.Queue) int {
	n := 0
	for i := 0; i < q.Length(); i++ {
		if !q.Get(i).(*waiter).cancelled {
			n++
		}
	}
	return n
}

func exitCode(ws unix.WaitStatus) int {
	if ws.Signaled() {
		return -int(ws.Signal())
	}
	return ws.ExitStatus()
}

// IsForkChild reports whether this process image was spawned by Fork.
func IsForkChild() bool {
	return os.Getenv(ForkedEnv) != ""
}

// RunChild runs the child side of a fork: reset the scheduler,
// reinitialize the reactor, run the registered hooks in order, run
// entry, drain every task it spawned and exit 0.
func RunChild(entry func()) {
	s := defaultSupervisor.sched
	s.Reset()
	if r := s.Reactor(); r != nil {
		r.OnFork()
	}
	for _, hook := range defaultSupervisor.hooks {
		hook()
	}
	if entry != nil {
		s.Go(entry)
	}
	for s.HasWork() {
		_ = s.Tick()
	}
	os.Exit(0)
}

// Fork spawns argv through the default supervisor.
func Fork(argv ...string) (int, error) { return defaultSupervisor.Fork(argv...) }

// Wait waits for pid through the default supervisor.
func Wait(pid int) (int, error) { return defaultSupervisor.Wait(pid) }

// Forked registers a child-side hook on the default supervisor.
func Forked(hook func()) { defaultSupervisor.Forked(hook) }

// Signal delivers sig to pid through the default supervisor.
func Signal(pid int, sig os.Signal) error { return defaultSupervisor.Signal(pid, sig) }
