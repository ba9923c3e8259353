// File: concurrency/channel.go
//
// Bounded FIFO channel. Capacity zero gives rendezvous semantics:
// neither side completes without the other.

package concurrency

import (
	"github.com/eapache/queue"

	"github.com/momentics/coopio/api"
	"github.com/momentics/coopio/coro"
)

// Channel is a bounded FIFO value channel between tasks.
type Channel struct {
	sched     *coro.Scheduler
	capacity  int
	buf       *queue.Queue
	senders   *queue.Queue // of *waiter carrying the pending value
	receivers *queue.Queue // of *waiter
	closed    bool
}

// NewChannel creates a channel with the given capacity (zero for a
// rendezvous channel).
func NewChannel(capacity int) (*Channel, error) {
	return NewChannelIn(coro.Default(), capacity)
}

// NewChannelIn creates a channel bound to an explicit scheduler.
func NewChannelIn(s *coro.Scheduler, capacity int) (*Channel, error) {
	if capacity < 0 {
		return nil, api.Errorf(api.ErrCodeArgument, "channel: negative capacity %d", capacity)
	}
	return &Channel{
		sched:     s,
		capacity:  capacity,
		buf:       queue.New(),
		senders:   queue.New(),
		receivers: queue.New(),
	}, nil
}

// Cap returns the channel capacity.
func (c *Channel) Cap() int { return c.capacity }

// Len returns the number of buffered values.
func (c *Channel) Len() int { return c.buf.Length() }

// WaitingSenders returns the number of parked senders.
func (c *Channel) WaitingSenders() int { return liveWaiters(c.senders) }

// WaitingReceivers returns the number of parked receivers.
func (c *Channel) WaitingReceivers() int { return liveWaiters(c.receivers) }

// Closed reports whether Close has been called.
func (c *Channel) Closed() bool { return c.closed }

// Send delivers v, suspending while the channel is full. Sending on a
// closed channel fails.
func (c *Channel) Send(v any) error {
	if c.closed {
		return api.NewError(api.ErrCodeChannelClosed, "send on closed channel")
	}
	if w := popWaiter(c.receivers); w != nil {
		c.sched.Wake(w.task, v)
		return nil
	}
	if c.buf.Length() < c.capacity {
		c.buf.Add(v)
		return nil
	}
	w := &waiter{task: c.sched.Current(), value: v}
	c.senders.Add(w)
	_, err := c.sched.Suspend(nil)
	if err != nil {
		w.cancelled = true
		return coro.Propagate(err)
	}
	return nil
}

// Receive takes the next value in FIFO order, suspending while the
// channel is empty. On a closed, drained channel it returns the zero
// value immediately.
func (c *Channel) Receive() (any, error) {
	if c.buf.Length() > 0 {
		v := c.buf.Remove()
		if w := popWaiter(c.senders); w != nil {
			c.buf.Add(w.value)
			c.sched.Wake(w.task, nil)
		}
		return v, nil
	}
	if w := popWaiter(c.senders); w != nil {
		// Rendezvous: take the parked sender's value directly.
		c.sched.Wake(w.task, nil)
		return w.value, nil
	}
	if c.closed {
		return nil, nil
	}
	w := &waiter{task: c.sched.Current()}
	c.receivers.Add(w)
	v, err := c.sched.Suspend(nil)
	if err != nil {
		w.cancelled = true
		return nil, coro.Propagate(err)
	}
	return v, nil
}

// TrySend is the non-suspending Send; it reports false when the send
// would have suspended or the channel is closed.
func (c *Channel) TrySend(v any) bool {
	if c.closed {
		return false
	}
	if w := popWaiter(c.receivers); w != nil {
		c.sched.Wake(w.task, v)
		return true
	}
	if c.buf.Length() < c.capacity {
		c.buf.Add(v)
		return true
	}
	return false
}

// TryReceive is the non-suspending Receive; ok is false when the
// receive would have suspended or the channel is closed and drained.
func (c *Channel) TryReceive() (v any, ok bool) {
	if c.buf.Length() > 0 {
		v = c.buf.Remove()
		if w := popWaiter(c.senders); w != nil {
			c.buf.Add(w.value)
			c.sched.Wake(w.task, nil)
		}
		return v, true
	}
	if w := popWaiter(c.senders); w != nil {
		c.sched.Wake(w.task, nil)
		return w.value, true
	}
	return nil, false
}

// Close marks the channel closed, wakes every parked receiver with the
// zero value and fails every parked sender.
func (c *Channel) Close() {
	if c.closed {
		return
	}
	c.closed = true
	for {
		w := popWaiter(c.receivers)
		if w == nil {
			break
		}
		c.sched.Wake(w.task, nil)
	}
	for {
		w := popWaiter(c.senders)
		if w == nil {
			break
		}
		c.sched.WakeErr(w.task, api.NewError(api.ErrCodeChannelClosed, "send on closed channel"))
	}
}
