// Package coopio is a single-threaded cooperative concurrency runtime:
// a user-space task scheduler, a reactor-style I/O event loop and the
// synchronization primitives built on top of them.
//
// Tasks are spawned with Go and share one thread; only explicit
// suspension points yield it (channel operations, mutex contention,
// wait groups, stream flushes, sleeps, timers, process waits). Each
// scheduler tick drains next-tick callbacks, advances the reactor by
// one quantum and then drains the runnable queue in FIFO order.
//
// Subpackages:
//
//   - api: shared contracts (errors, reactor, endpoint)
//   - coro: task state machine, scheduler, outcomes
//   - reactor: select(2) and epoll event loop back-ends
//   - concurrency: channels, mutex, wait group, timers, task pool
//   - ring: power-of-two byte ring buffer
//   - stream: buffered cooperative streams with TLS support
//   - process: child process supervision
//   - fileio: cooperative file helpers
//   - control: configuration, debug probes, error sink
package coopio
