// Package concurrency provides the synchronization primitives of the
// coopio runtime: bounded channels with rendezvous semantics, a
// non-reentrant mutex, a wait group, timers and tickers, and a worker
// task pool.
//
// All primitives are cooperative: a blocking call suspends the current
// task and the scheduler resumes it in FIFO order when the condition
// clears. None of them are safe for use from foreign OS threads.
package concurrency
