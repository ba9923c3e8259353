package coro_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/coopio/api"
	"github.com/momentics/coopio/coro"
)

func TestGoRunsTaskToCompletion(t *testing.T) {
	s := coro.NewScheduler()
	ran := false
	task := s.Go(func() { ran = true })
	require.NoError(t, s.Run())
	assert.True(t, ran)
	assert.Equal(t, coro.Dead, task.State())
}

func TestEnqueueStateInvariant(t *testing.T) {
	s := coro.NewScheduler()
	task := s.NewTask(func(...any) any { return nil })
	assert.Equal(t, coro.Created, task.State())
	s.Enqueue(task, false)
	assert.Equal(t, coro.Runnable, task.State())
	assert.Equal(t, 1, s.RunnableLen())
	require.NoError(t, s.Run())
	assert.Equal(t, coro.Dead, task.State())
	assert.Equal(t, 0, s.RunnableLen())
}

func TestEntryArgsAndResult(t *testing.T) {
	s := coro.NewScheduler()
	task := s.NewTask(func(args ...any) any {
		return args[0].(int) + args[1].(int)
	}, 40, 2)
	s.Enqueue(task, true)
	assert.Equal(t, 42, task.Result())
}

func TestSuspendResume(t *testing.T) {
	s := coro.NewScheduler()
	task := s.NewTask(func(...any) any {
		v, err := s.Suspend("yielded")
		if err != nil {
			return err
		}
		return v
	})
	s.Enqueue(task, true)
	require.Equal(t, coro.Waiting, task.State())

	o := s.Resume(task, "supplied")
	require.NoError(t, o.Err)
	assert.Equal(t, coro.Dead, task.State())
	assert.Equal(t, "supplied", task.Result())
}

func TestResumeInvalidState(t *testing.T) {
	s := coro.NewScheduler()
	task := s.Go(func() {})
	require.NoError(t, s.Run())

	o := s.Resume(task, nil)
	require.Error(t, o.Err)
	assert.True(t, errors.Is(o.Err, api.ErrTaskState))
	o.Resolve(api.ErrTaskState)
	assert.True(t, o.Resolved())
}

func TestThrowIntoSuspended(t *testing.T) {
	s := coro.NewScheduler()
	boom := errors.New("boom")
	task := s.NewTask(func(...any) any {
		_, err := s.Suspend(nil)
		return err
	})
	s.Enqueue(task, true)

	o := s.ThrowInto(task, boom)
	require.NoError(t, o.Err) // the task handled the thrown error
	assert.Equal(t, boom, task.Result())
}

func TestThrowIntoUnstartedKillsTask(t *testing.T) {
	s := coro.NewScheduler()
	boom := errors.New("boom")
	ran := false
	task := s.NewTask(func(...any) any {
		ran = true
		return nil
	})
	o := s.ThrowInto(task, boom)
	o.Resolve(boom)
	assert.False(t, ran)
	assert.Equal(t, coro.Dead, task.State())
	assert.ErrorIs(t, task.Err(), boom)
}

func TestDefersRunOnceInOrder(t *testing.T) {
	s := coro.NewScheduler()
	var order []int
	task := s.Go(func() {
		cur := s.Current()
		cur.Defer(func() { order = append(order, 1) })
		cur.Defer(func() { order = append(order, 2) })
		cur.Defer(func() { order = append(order, 3) })
	})
	require.NoError(t, s.Run())
	assert.Equal(t, coro.Dead, task.State())
	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestDefersRunOnTerminate(t *testing.T) {
	s := coro.NewScheduler()
	var order []string
	task := s.NewTask(func(...any) any {
		s.Current().Defer(func() { order = append(order, "defer") })
		for {
			_, err := s.Suspend(nil)
			if err != nil {
				return coro.Propagate(err)
			}
		}
	})
	s.Enqueue(task, true)
	require.Equal(t, coro.Waiting, task.State())

	s.Terminate(task)
	assert.Equal(t, coro.Dead, task.State())
	assert.Equal(t, []string{"defer"}, order)
	assert.True(t, errors.Is(task.Err(), api.ErrTerminate))
}

func TestTerminateRunningAtNextSuspension(t *testing.T) {
	s := coro.NewScheduler()
	var afterSuspend bool
	task := s.NewTask(func(...any) any {
		s.Terminate(s.Current())
		_, err := s.Suspend(nil)
		if err != nil {
			return coro.Propagate(err)
		}
		afterSuspend = true
		return nil
	})
	s.Enqueue(task, false)
	require.NoError(t, s.Run())
	assert.Equal(t, coro.Dead, task.State())
	assert.False(t, afterSuspend)
	assert.True(t, errors.Is(task.Err(), api.ErrTerminate))
}

func TestListenersFireByPriority(t *testing.T) {
	s := coro.NewScheduler()
	var order []string
	task := s.NewTask(func(...any) any { return nil })
	task.OnState(coro.Dead, func(*coro.Task) { order = append(order, "low") }, false)
	task.OnState(coro.Dead, func(*coro.Task) { order = append(order, "high") }, true)
	s.Enqueue(task, false)
	require.NoError(t, s.Run())
	assert.Equal(t, []string{"high", "low"}, order)
}

func TestListenersAreOneShot(t *testing.T) {
	s := coro.NewScheduler()
	fired := 0
	task := s.NewTask(func(...any) any {
		_, _ = s.Suspend(nil)
		return nil
	})
	task.OnState(coro.Waiting, func(*coro.Task) { fired++ }, false)
	s.Enqueue(task, true)
	require.NoError(t, s.Run())
	s.Resume(task, nil)
	require.NoError(t, s.Run())
	assert.Equal(t, 1, fired)
}

func TestRecycle(t *testing.T) {
	s := coro.NewScheduler()
	task := s.Go(func() {})
	require.Error(t, task.Recycle(func(...any) any { return nil }))
	require.NoError(t, s.Run())

	require.NoError(t, task.Recycle(func(...any) any { return "second life" }))
	assert.Equal(t, coro.Created, task.State())
	assert.Nil(t, task.Result())
	s.Enqueue(task, true)
	assert.Equal(t, "second life", task.Result())
}

func TestNextTickRunsBeforeRunnable(t *testing.T) {
	s := coro.NewScheduler()
	var order []string
	s.Go(func() { order = append(order, "task") })
	s.NextTick(func() { order = append(order, "tick") })
	require.NoError(t, s.Run())
	assert.Equal(t, []string{"tick", "task"}, order)
}

func TestNextTickFaultIsolation(t *testing.T) {
	s := coro.NewScheduler()
	ran := false
	s.NextTick(func() { panic("first") })
	s.NextTick(func() { ran = true })
	err := s.Tick()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "first")
	assert.True(t, ran)
}

func TestMainSuspendAndWake(t *testing.T) {
	s := coro.NewScheduler()
	s.Go(func() { s.Wake(s.Main(), 7) })
	v, err := s.Suspend(nil)
	require.NoError(t, err)
	assert.Equal(t, 7, v)
	assert.Equal(t, coro.Running, s.Main().State())
}

func TestMainSuspendDeadlockDetected(t *testing.T) {
	s := coro.NewScheduler()
	_, err := s.Suspend(nil)
	require.Error(t, err)
}

func TestCurrentInsideTask(t *testing.T) {
	s := coro.NewScheduler()
	var seen *coro.Task
	task := s.Go(func() { seen = s.Current() })
	require.NoError(t, s.Run())
	assert.Same(t, task, seen)
	assert.Same(t, s.Main(), s.Current())
}

func TestUnresolvedOutcomeSurfacedOnce(t *testing.T) {
	s := coro.NewScheduler()
	var buf bytes.Buffer
	captureSink(t, &buf)

	dead := s.Go(func() {})
	require.NoError(t, s.Run())
	s.Resume(dead, nil) // invalid; left unresolved
	require.NoError(t, s.Tick())
	assert.Equal(t, 1, strings.Count(buf.String(), "unresolved task error"))

	buf.Reset()
	require.NoError(t, s.Tick())
	assert.Empty(t, buf.String())
}

func TestResolvedOutcomeNotSurfaced(t *testing.T) {
	s := coro.NewScheduler()
	var buf bytes.Buffer
	captureSink(t, &buf)

	dead := s.Go(func() {})
	require.NoError(t, s.Run())
	s.Resume(dead, nil).Resolve(api.ErrTaskState)
	require.NoError(t, s.Tick())
	assert.Empty(t, buf.String())
}

func TestTaskTraceRecordsTransitions(t *testing.T) {
	s := coro.NewScheduler()
	task := s.Go(func() {})
	require.NoError(t, s.Run())
	trace := task.Trace()
	require.NotEmpty(t, trace)
	last := trace[len(trace)-1]
	assert.Equal(t, coro.Dead, last.State)
}

func TestPanicBecomesResult(t *testing.T) {
	s := coro.NewScheduler()
	var buf bytes.Buffer
	captureSink(t, &buf)
	task := s.Go(func() { panic("kaboom") })
	require.NoError(t, s.Run())
	require.Error(t, task.Err())
	assert.Contains(t, task.Err().Error(), "kaboom")
	assert.Contains(t, buf.String(), "unresolved task error")
}
