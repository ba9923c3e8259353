// Package coro implements the cooperative task core of coopio: the
// task state machine, the single-threaded scheduler with its runnable
// and next-tick queues, control-operation outcomes, and the task pool.
//
// Tasks execute on goroutines but never concurrently: every transfer
// of control is a rendezvous, so at any moment exactly one task (or
// the scheduler itself) is running. Blocking primitives suspend the
// current task and the scheduler resumes it when the reactor or a
// peer task wakes it.
package coro
