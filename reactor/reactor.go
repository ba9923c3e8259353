// File: reactor/reactor.go
//
// Single-threaded reactor core: watcher tables, signal fan-in through
// a wakeup pipe, timer heap and the tick dispatcher.

package reactor

import (
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/momentics/coopio/api"
	"github.com/momentics/coopio/control"
)

// idleFloor keeps a watcher-less sleep from spinning.
const idleFloor = 700 * time.Microsecond

type watchKind int

const (
	watchRead watchKind = iota
	watchWrite
	watchSignal
	watchTimer
)

type watcher struct {
	id      api.WatchID
	kind    watchKind
	fd      int
	sig     os.Signal
	ioCB    api.IOCallback
	sigCB   api.SignalCallback
	timerCB api.TimerCallback
	timer   *timerEntry
}

// Reactor is the default api.Reactor implementation.
type Reactor struct {
	poller  poller
	nextID  api.WatchID
	stopped bool

	watchers map[api.WatchID]*watcher
	readers  map[int][]api.WatchID // per fd, insertion order
	writers  map[int][]api.WatchID
	signals  map[os.Signal][]api.WatchID
	timers   timerHeap

	// spawn runs signal callbacks each inside its own task.
	spawn func(fn func())

	sigCh      chan os.Signal
	sigMu      sync.Mutex
	sigPending []os.Signal

	wakeR, wakeW int
}

// New builds a reactor with the configured poller backend. spawn runs
// signal watcher callbacks; it must schedule a fresh task per call.
func New(spawn func(fn func())) (*Reactor, error) {
	return NewWithBackend(control.ReactorBackend(), spawn)
}

// NewWithBackend builds a reactor with an explicit poller backend.
func NewWithBackend(backend string, spawn func(fn func())) (*Reactor, error) {
	if spawn == nil {
		spawn = func(fn func()) { fn() }
	}
	r := &Reactor{
		watchers: make(map[api.WatchID]*watcher),
		readers:  make(map[int][]api.WatchID),
		writers:  make(map[int][]api.WatchID),
		signals:  make(map[os.Signal][]api.WatchID),
		spawn:    spawn,
		sigCh:    make(chan os.Signal, 16),
	}
	p, err := newPoller(backend)
	if err != nil {
		return nil, err
	}
	r.poller = p
	if err := r.initWakePipe(); err != nil {
		p.close()
		return nil, err
	}
	go r.forwardSignals(r.sigCh)
	return r, nil
}

// forwardSignals moves deliveries from the signal goroutine into the
// pending list and kicks the wakeup pipe so a blocked poll returns.
func (r *Reactor) forwardSignals(ch chan os.Signal) {
	for sig := range ch {
		r.sigMu.Lock()
		r.sigPending = append(r.sigPending, sig)
		r.sigMu.Unlock()
		r.kickWakePipe()
	}
}

// IsActive reports whether any watcher, signal handler or timer is
// registered.
func (r *Reactor) IsActive() bool {
	return !r.stopped && len(r.watchers) > 0
}

// WatchRead registers cb for readability of fd.
func (r *Reactor) WatchRead(fd int, cb api.IOCallback) api.WatchID {
	id := r.allocID()
	r.watchers[id] = &watcher{id: id, kind: watchRead, fd: fd, ioCB: cb}
	r.readers[fd] = append(r.readers[fd], id)
	r.syncInterest(fd)
	return id
}

// WatchWrite registers cb for writability of fd.
func (r *Reactor) WatchWrite(fd int, cb api.IOCallback) api.WatchID {
	id := r.allocID()
	r.watchers[id] = &watcher{id: id, kind: watchWrite, fd: fd, ioCB: cb}
	r.writers[fd] = append(r.writers[fd], id)
	r.syncInterest(fd)
	return id
}

// WatchSignal registers cb for deliveries of sig.
func (r *Reactor) WatchSignal(sig os.Signal, cb api.SignalCallback) api.WatchID {
	id := r.allocID()
	r.watchers[id] = &watcher{id: id, kind: watchSignal, sig: sig, sigCB: cb}
	if len(r.signals[sig]) == 0 {
		signal.Notify(r.sigCh, sig)
	}
	r.signals[sig] = append(r.signals[sig], id)
	return id
}

// Timer registers cb to fire after the given delay, re-arming every
// repeat when repeat > 0.
func (r *Reactor) Timer(after, repeat time.Duration, cb api.TimerCallback) api.WatchID {
	id := r.allocID()
	entry := &timerEntry{id: id, at: time.Now().Add(after), period: repeat}
	r.watchers[id] = &watcher{id: id, kind: watchTimer, timerCB: cb, timer: entry}
	r.timers.push(entry)
	return id
}

// Unwatch removes a registration. Removing an unknown id is a no-op.
func (r *Reactor) Unwatch(id api.WatchID) {
	w, ok := r.watchers[id]
	if !ok {
		return
	}
	delete(r.watchers, id)
	switch w.kind {
	case watchRead:
		r.readers[w.fd] = removeID(r.readers[w.fd], id)
		if len(r.readers[w.fd]) == 0 {
			delete(r.readers, w.fd)
		}
		r.syncInterest(w.fd)
	case watchWrite:
		r.writers[w.fd] = removeID(r.writers[w.fd], id)
		if len(r.writers[w.fd]) == 0 {
			delete(r.writers, w.fd)
		}
		r.syncInterest(w.fd)
	case watchSignal:
		r.signals[w.sig] = removeID(r.signals[w.sig], id)
		if len(r.signals[w.sig]) == 0 {
			delete(r.signals, w.sig)
			signal.Reset(w.sig)
		}
	case watchTimer:
		// Heap entry is skipped lazily.
	}
}

// Tick advances the reactor by one quantum. See api.Reactor.
func (r *Reactor) Tick(budget time.Duration) {
	if r.stopped || len(r.watchers) == 0 {
		return
	}
	wait := r.timerBudget()
	if budget >= 0 && (wait < 0 || budget < wait) {
		wait = budget
	}
	if len(r.readers)+len(r.writers) == 0 && wait >= 0 && wait < idleFloor && budget != 0 {
		wait = idleFloor
	}
	ready, err := r.poller.wait(wait)
	if err != nil {
		log := control.Sink()
		log.Error().Err(err).Msg("reactor poll failed")
	}
	r.dispatchIO(ready, true)
	r.dispatchIO(ready, false)
	r.dispatchSignals()
	r.fireTimers()
}

// timerBudget returns the wait until the earliest timer, or a negative
// duration when no timer is armed.
func (r *Reactor) timerBudget() time.Duration {
	for {
		e := r.timers.peek()
		if e == nil {
			return -1
		}
		if _, live := r.watchers[e.id]; !live {
			r.timers.pop()
			continue
		}
		d := time.Until(e.at)
		if d < 0 {
			return 0
		}
		return d
	}
}

// dispatchIO runs watcher callbacks for ready descriptors: all readers
// in a pass, then all writers.
func (r *Reactor) dispatchIO(ready []readiness, reads bool) {
	for _, ev := range ready {
		if r.wakeR != 0 && ev.fd == r.wakeR {
			if reads {
				r.drainWakePipe()
			}
			continue
		}
		var ids []api.WatchID
		if reads {
			if !ev.readable {
				continue
			}
			ids = append(ids, r.readers[ev.fd]...)
		} else {
			if !ev.writable {
				continue
			}
			ids = append(ids, r.writers[ev.fd]...)
		}
		for _, id := range ids {
			w, live := r.watchers[id]
			if !live {
				continue
			}
			r.invoke(func() { w.ioCB(id, ev.fd) })
		}
	}
}

// dispatchSignals drains pending deliveries; every watcher callback
// runs inside its own task so a slow handler cannot delay draining.
func (r *Reactor) dispatchSignals() {
	r.sigMu.Lock()
	pending := r.sigPending
	r.sigPending = nil
	r.sigMu.Unlock()
	for _, sig := range pending {
		for _, id := range append([]api.WatchID(nil), r.signals[sig]...) {
			w, live := r.watchers[id]
			if !live {
				continue
			}
			r.spawn(func() { w.sigCB(id, sig) })
		}
	}
}

// fireTimers pops due timers and re-inserts periodic ones with the
// trigger advanced from the previous fire time.
func (r *Reactor) fireTimers() {
	now := time.Now()
	for {
		e := r.timers.peek()
		if e == nil || e.at.After(now) {
			return
		}
		r.timers.pop()
		w, live := r.watchers[e.id]
		if !live {
			continue
		}
		if e.period > 0 {
			e.at = e.at.Add(e.period)
			r.timers.push(e)
		} else {
			delete(r.watchers, e.id)
		}
		r.invoke(func() { w.timerCB(e.id) })
	}
}

// invoke shields the loop from a faulting callback.
func (r *Reactor) invoke(fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			log := control.Sink()
			log.Error().Any("panic", rec).Msg("reactor callback failed")
		}
	}()
	fn()
}

// OnFork reinitializes the reactor on the child side of a fork.
func (r *Reactor) OnFork() {
	r.teardown()
	r.stopped = false
	r.nextID = 0
	p, err := newPoller(control.ReactorBackend())
	if err == nil {
		r.poller = p
		_ = r.initWakePipe()
	}
	ch := make(chan os.Signal, 16)
	r.sigCh = ch
	go r.forwardSignals(ch)
}

// Stop drops everything; further Ticks become no-ops. Idempotent.
func (r *Reactor) Stop() {
	if r.stopped {
		return
	}
	r.teardown()
	r.stopped = true
}

func (r *Reactor) teardown() {
	for sig := range r.signals {
		signal.Reset(sig)
	}
	signal.Stop(r.sigCh)
	close(r.sigCh)
	r.watchers = make(map[api.WatchID]*watcher)
	r.readers = make(map[int][]api.WatchID)
	r.writers = make(map[int][]api.WatchID)
	r.signals = make(map[os.Signal][]api.WatchID)
	r.timers = nil
	r.sigMu.Lock()
	r.sigPending = nil
	r.sigMu.Unlock()
	r.closeWakePipe()
	if r.poller != nil {
		r.poller.close()
	}
}

func (r *Reactor) allocID() api.WatchID {
	r.nextID++
	return r.nextID
}

// syncInterest pushes the union of read/write interest for fd into the
// poller.
func (r *Reactor) syncInterest(fd int) {
	r.poller.update(fd, len(r.readers[fd]) > 0, len(r.writers[fd]) > 0)
}

func removeID(ids []api.WatchID, id api.WatchID) []api.WatchID {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

// readiness is one ready descriptor reported by a poller.
type readiness struct {
	fd       int
	readable bool
	writable bool
}

// poller abstracts the platform readiness-wait backends.
type poller interface {
	// update sets the desired interest for fd; read=write=false drops it.
	update(fd int, read, write bool)

	// wait blocks for up to budget (negative blocks indefinitely, zero
	// polls) and returns the ready descriptors.
	wait(budget time.Duration) ([]readiness, error)

	close() error
}
