// File: concurrency/taskpool.go
//
// Fixed-size cache of idle worker tasks blocking on a user-provided
// process function. Amortizes task allocation for request-per-task
// servers.

package concurrency

import (
	"github.com/momentics/coopio/api"
	"github.com/momentics/coopio/coro"
)

// TaskPool feeds submitted jobs to at most size worker tasks.
type TaskPool struct {
	sched   *coro.Scheduler
	size    int
	process func(job any)
	jobs    *Channel
	workers int
	idle    int
	closed  bool
}

// NewTaskPool creates a pool of up to size workers running process.
func NewTaskPool(size int, process func(job any)) (*TaskPool, error) {
	return NewTaskPoolIn(coro.Default(), size, process)
}

// NewTaskPoolIn is NewTaskPool on an explicit scheduler.
func NewTaskPoolIn(s *coro.Scheduler, size int, process func(job any)) (*TaskPool, error) {
	if size <= 0 {
		return nil, api.Errorf(api.ErrCodeArgument, "taskpool: invalid size %d", size)
	}
	if process == nil {
		return nil, api.NewError(api.ErrCodeArgument, "taskpool: nil process function")
	}
	jobs, _ := NewChannelIn(s, 0)
	return &TaskPool{sched: s, size: size, process: process, jobs: jobs}, nil
}

// Idle returns the number of workers parked on the job channel.
func (p *TaskPool) Idle() int { return p.idle }

// Workers returns the number of spawned workers.
func (p *TaskPool) Workers() int { return p.workers }

// Submit hands job to an idle worker, spawning one while the pool is
// below size. With all workers busy the caller suspends until one
// frees up.
func (p *TaskPool) Submit(job any) error {
	if p.closed {
		return api.NewError(api.ErrCodeArgument, "taskpool: closed")
	}
	if p.idle == 0 && p.workers < p.size {
		p.workers++
		p.sched.Go(p.worker)
	}
	if p.jobs.TrySend(job) {
		return nil
	}
	return p.jobs.Send(job)
}

// Close stops accepting jobs and releases idle workers.
func (p *TaskPool) Close() {
	if p.closed {
		return
	}
	p.closed = true
	p.jobs.Close()
}

func (p *TaskPool) worker() {
	for {
		p.idle++
		job, err := p.jobs.Receive()
		p.idle--
		if err != nil || p.closed {
			p.workers--
			return
		}
		p.process(job)
	}
}
