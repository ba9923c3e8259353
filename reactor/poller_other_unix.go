//go:build unix && !linux

// File: reactor/poller_other_unix.go

package reactor

import "github.com/momentics/coopio/api"

func newPoller(backend string) (poller, error) {
	switch backend {
	case "", "select":
		return newSelectPoller()
	}
	return nil, api.Errorf(api.ErrCodeArgument, "unknown reactor backend %q", backend)
}
