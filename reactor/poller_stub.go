//go:build !unix

// File: reactor/poller_stub.go
//
// Non-unix stub: timers and signal fan-in only, no fd readiness.

package reactor

import (
	"time"

	"github.com/momentics/coopio/api"
)

type stubPoller struct{}

func newPoller(backend string) (poller, error) {
	if backend != "" && backend != "select" {
		return nil, api.Errorf(api.ErrCodeArgument, "unknown reactor backend %q", backend)
	}
	return stubPoller{}, nil
}

func (stubPoller) update(int, bool, bool) {}

func (stubPoller) wait(budget time.Duration) ([]readiness, error) {
	if budget > 0 {
		time.Sleep(budget)
	}
	return nil, nil
}

func (stubPoller) close() error { return nil }

func (r *Reactor) initWakePipe() error { return nil }
func (r *Reactor) kickWakePipe()       {}
func (r *Reactor) drainWakePipe()      {}
func (r *Reactor) closeWakePipe()      {}
