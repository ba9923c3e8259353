//go:build linux

// File: reactor/epoll_linux.go
//
// Linux epoll poller.

package reactor

import (
	"time"

	"golang.org/x/sys/unix"

	"github.com/momentics/coopio/api"
)

type epollPoller struct {
	epfd       int
	registered map[int]uint32 // fd -> active event mask
}

func newEpollPoller() (*epollPoller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, api.Errorf(api.ErrCodeReactor, "epoll create").WithCause(err)
	}
	return &epollPoller{epfd: epfd, registered: make(map[int]uint32)}, nil
}

func (p *epollPoller) update(fd int, read, write bool) {
	var events uint32
	if read {
		events |= unix.EPOLLIN
	}
	if write {
		events |= unix.EPOLLOUT
	}
	prev, known := p.registered[fd]
	switch {
	case events == 0 && known:
		_ = unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
		delete(p.registered, fd)
	case events == 0:
		return
	case known && prev != events:
		ev := unix.EpollEvent{Events: events, Fd: int32(fd)}
		_ = unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &ev)
		p.registered[fd] = events
	case !known:
		ev := unix.EpollEvent{Events: events, Fd: int32(fd)}
		_ = unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
		p.registered[fd] = events
	}
}

func (p *epollPoller) wait(budget time.Duration) ([]readiness, error) {
	msec := -1
	if budget >= 0 {
		msec = int(budget / time.Millisecond)
		if budget > 0 && msec == 0 {
			msec = 1
		}
	}
	var events [128]unix.EpollEvent
	n, err := unix.EpollWait(p.epfd, events[:], msec)
	if err == unix.EINTR {
		return nil, nil
	}
	if err != nil {
		return nil, api.Errorf(api.ErrCodeReactor, "epoll wait").WithCause(err)
	}
	out := make([]readiness, 0, n)
	for i := 0; i < n; i++ {
		ev := events[i]
		rd := readiness{fd: int(ev.Fd)}
		if ev.Events&(unix.EPOLLIN|unix.EPOLLHUP|unix.EPOLLERR) != 0 {
			rd.readable = true
		}
		if ev.Events&(unix.EPOLLOUT|unix.EPOLLERR) != 0 {
			rd.writable = true
		}
		out = append(out, rd)
	}
	return out, nil
}

func (p *epollPoller) close() error {
	p.registered = make(map[int]uint32)
	return unix.Close(p.epfd)
}
