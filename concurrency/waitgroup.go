// File: concurrency/waitgroup.go
//
// Counter that parks waiters until it reaches zero.

package concurrency

import (
	"github.com/eapache/queue"

	"github.com/momentics/coopio/api"
	"github.com/momentics/coopio/coro"
)

// WaitGroup tracks outstanding work items.
type WaitGroup struct {
	sched   *coro.Scheduler
	count   int
	waiters *queue.Queue
}

// NewWaitGroup creates a wait group with a zero counter.
func NewWaitGroup() *WaitGroup { return NewWaitGroupIn(coro.Default()) }

// NewWaitGroupIn creates a wait group bound to an explicit scheduler.
func NewWaitGroupIn(s *coro.Scheduler) *WaitGroup {
	return &WaitGroup{sched: s, waiters: queue.New()}
}

// Count returns the current counter.
func (wg *WaitGroup) Count() int { return wg.count }

// Add increases the counter by n. Negative n fails.
func (wg *WaitGroup) Add(n int) error {
	if n < 0 {
		return api.Errorf(api.ErrCodeArgument, "waitgroup: negative add %d", n)
	}
	wg.count += n
	return nil
}

// Done decrements the counter; a Done without a matching Add fails.
// Reaching zero wakes every current waiter.
func (wg *WaitGroup) Done() error {
	if wg.count == 0 {
		return api.NewError(api.ErrCodeSyncMisuse, "waitgroup: done without add")
	}
	wg.count--
	if wg.count == 0 {
		for {
			w := popWaiter(wg.waiters)
			if w == nil {
				break
			}
			wg.sched.Wake(w.task, nil)
		}
	}
	return nil
}

// Wait suspends until the counter reaches zero. A zero counter returns
// immediately without enqueueing.
func (wg *WaitGroup) Wait() error {
	if wg.count == 0 {
		return nil
	}
	w := &waiter{task: wg.sched.Current()}
	wg.waiters.Add(w)
	_, err := wg.sched.Suspend(nil)
	if err != nil {
		w.cancelled = true
		return coro.Propagate(err)
	}
	return nil
}
