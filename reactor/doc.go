// Package reactor implements the coopio event loop: readiness
// watchers, signal watchers and timers behind monotonic watch ids,
// dispatched one batch per tick in the fixed order readers, writers,
// signals, due timers.
//
// Two pollers back the loop: a portable select(2) poller and a Linux
// epoll poller, selected through the COOPIO_REACTOR configuration key.
// Both share the watch-id semantics; an id removed with Unwatch is
// never dispatched again and a duplicate Unwatch is a no-op.
package reactor
