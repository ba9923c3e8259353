//go:build unix

// File: reactor/wakeup_unix.go
//
// Self-pipe wakeup: signal deliveries kick a byte into a non-blocking
// pipe whose read end is permanently registered with the poller, so a
// blocked readiness wait returns promptly.

package reactor

import "golang.org/x/sys/unix"

func (r *Reactor) initWakePipe() error {
	var fds [2]int
	if err := unix.Pipe(fds[:]); err != nil {
		return err
	}
	_ = unix.SetNonblock(fds[0], true)
	_ = unix.SetNonblock(fds[1], true)
	r.wakeR, r.wakeW = fds[0], fds[1]
	r.poller.update(r.wakeR, true, false)
	return nil
}

func (r *Reactor) kickWakePipe() {
	w := r.wakeW
	if w == 0 {
		return
	}
	var b [1]byte
	_, _ = unix.Write(w, b[:])
}

func (r *Reactor) drainWakePipe() {
	var buf [64]byte
	for {
		n, err := unix.Read(r.wakeR, buf[:])
		if n <= 0 || err != nil {
			return
		}
	}
}

func (r *Reactor) closeWakePipe() {
	if r.wakeR != 0 {
		_ = unix.Close(r.wakeR)
		_ = unix.Close(r.wakeW)
		r.wakeR, r.wakeW = 0, 0
	}
}
