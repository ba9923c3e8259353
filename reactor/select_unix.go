//go:build unix

// File: reactor/select_unix.go
//
// Portable select(2) poller. Interest is kept in a plain map and the
// descriptor sets are rebuilt per wait; select's 1024-fd ceiling is
// more than the single-threaded core ever holds.

package reactor

import (
	"time"

	"golang.org/x/sys/unix"

	"github.com/momentics/coopio/api"
)

type fdInterest struct {
	read  bool
	write bool
}

type selectPoller struct {
	interest map[int]fdInterest
}

func newSelectPoller() (*selectPoller, error) {
	return &selectPoller{interest: make(map[int]fdInterest)}, nil
}

func (p *selectPoller) update(fd int, read, write bool) {
	if !read && !write {
		delete(p.interest, fd)
		return
	}
	p.interest[fd] = fdInterest{read: read, write: write}
}

func (p *selectPoller) wait(budget time.Duration) ([]readiness, error) {
	var rset, wset unix.FdSet
	nfds := 0
	for fd, in := range p.interest {
		if in.read {
			rset.Set(fd)
		}
		if in.write {
			wset.Set(fd)
		}
		if fd >= nfds {
			nfds = fd + 1
		}
	}
	var tv *unix.Timeval
	if budget >= 0 {
		t := unix.NsecToTimeval(budget.Nanoseconds())
		tv = &t
	}
	n, err := unix.Select(nfds, &rset, &wset, nil, tv)
	if err == unix.EINTR {
		return nil, nil
	}
	if err != nil {
		return nil, api.Errorf(api.ErrCodeReactor, "select").WithCause(err)
	}
	if n == 0 {
		return nil, nil
	}
	out := make([]readiness, 0, n)
	for fd, in := range p.interest {
		ev := readiness{fd: fd}
		if in.read && rset.IsSet(fd) {
			ev.readable = true
		}
		if in.write && wset.IsSet(fd) {
			ev.writable = true
		}
		if ev.readable || ev.writable {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (p *selectPoller) close() error {
	p.interest = make(map[int]fdInterest)
	return nil
}
