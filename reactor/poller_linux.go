//go:build linux

// File: reactor/poller_linux.go

package reactor

import "github.com/momentics/coopio/api"

func newPoller(backend string) (poller, error) {
	switch backend {
	case "", "select":
		return newSelectPoller()
	case "epoll":
		return newEpollPoller()
	}
	return nil, api.Errorf(api.ErrCodeArgument, "unknown reactor backend %q", backend)
}
