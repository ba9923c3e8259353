// File: concurrency/mutex.go
//
// Non-reentrant advisory lock with a FIFO waiter queue. Ownership is
// sticky, not counted: a second Lock by the owner is a no-op and one
// Unlock fully releases.

package concurrency

import (
	"github.com/eapache/queue"

	"github.com/momentics/coopio/api"
	"github.com/momentics/coopio/coro"
)

// Mutex serializes logical critical sections between tasks.
type Mutex struct {
	sched   *coro.Scheduler
	locked  bool
	owner   *coro.Task
	waiters *queue.Queue
}

// NewMutex creates an unlocked mutex.
func NewMutex() *Mutex { return NewMutexIn(coro.Default()) }

// NewMutexIn creates a mutex bound to an explicit scheduler.
func NewMutexIn(s *coro.Scheduler) *Mutex {
	return &Mutex{sched: s, waiters: queue.New()}
}

// Locked reports whether the mutex is held.
func (m *Mutex) Locked() bool { return m.locked }

// Owner returns the holding task, nil when unlocked.
func (m *Mutex) Owner() *coro.Task { return m.owner }

// WaitingCount returns the number of parked waiters.
func (m *Mutex) WaitingCount() int { return liveWaiters(m.waiters) }

// Lock acquires the mutex, suspending while it is contended. Waiters
// wake in FIFO order.
func (m *Mutex) Lock() error {
	cur := m.sched.Current()
	if m.owner == cur {
		return nil
	}
	if !m.locked {
		m.locked = true
		m.owner = cur
		return nil
	}
	w := &waiter{task: cur}
	m.waiters.Add(w)
	_, err := m.sched.Suspend(nil)
	if err != nil {
		w.cancelled = true
		return coro.Propagate(err)
	}
	// Head waiter takes ownership inside its own frame.
	m.locked = true
	m.owner = cur
	return nil
}

// TryLock reports true when the mutex was free or already owned by the
// current task.
func (m *Mutex) TryLock() bool {
	cur := m.sched.Current()
	if m.owner == cur {
		return true
	}
	if m.locked {
		return false
	}
	m.locked = true
	m.owner = cur
	return true
}

// Unlock releases the mutex and resumes the head waiter, if any. Only
// the owner may unlock.
func (m *Mutex) Unlock() error {
	if m.owner != m.sched.Current() {
		return api.NewError(api.ErrCodeSyncMisuse, "mutex: unlock by non-owner")
	}
	m.locked = false
	m.owner = nil
	if w := popWaiter(m.waiters); w != nil {
		m.sched.Wake(w.task, nil)
	}
	return nil
}
