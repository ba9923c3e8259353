// File: concurrency/waiter.go

package concurrency

import (
	"github.com/eapache/queue"

	"github.com/momentics/coopio/coro"
)

// waiter is one parked task in a primitive's FIFO queue. A waiter that
// was thrown into (timeout, terminate) while still queued marks itself
// cancelled; queue consumers skip such entries.
type waiter struct {
	task      *coro.Task
	value     any
	cancelled bool
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

func liveWaiters(q *queue.Queue) int {
	n := 0
	for i := 0; i < q.Length(); i++ {
		if !q.Get(i).(*waiter).cancelled {
			n++
		}
	}
	return n
}
