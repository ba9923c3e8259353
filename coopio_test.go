package coopio_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/coopio"
	"github.com/momentics/coopio/api"
	"github.com/momentics/coopio/concurrency"
	"github.com/momentics/coopio/coro"
)

func TestGoAndWait(t *testing.T) {
	require.NoError(t, coopio.Init())
	ran := false
	task := coopio.Go(func() { ran = true })
	require.NoError(t, coopio.Wait())
	assert.True(t, ran)
	assert.Equal(t, coro.Dead, task.State())
}

func TestSleepOrdering(t *testing.T) {
	var order []string
	coopio.Go(func() {
		require.NoError(t, coopio.Sleep(30*time.Millisecond))
		order = append(order, "slow")
	})
	coopio.Go(func() {
		require.NoError(t, coopio.Sleep(5*time.Millisecond))
		order = append(order, "fast")
	})
	require.NoError(t, coopio.Wait())
	assert.Equal(t, []string{"fast", "slow"}, order)
}

func TestDeferRunsOnTermination(t *testing.T) {
	cleaned := false
	coopio.Go(func() {
		coopio.Defer(func() { cleaned = true })
	})
	require.NoError(t, coopio.Wait())
	assert.True(t, cleaned)
}

func TestNextTickBeforeTasks(t *testing.T) {
	var order []string
	coopio.Go(func() { order = append(order, "task") })
	coopio.NextTick(func() { order = append(order, "tick") })
	require.NoError(t, coopio.Wait())
	assert.Equal(t, []string{"tick", "task"}, order)
}

func TestTerminateSleepingTask(t *testing.T) {
	var sawTerminate bool
	task := coopio.Go(func() {
		coopio.Defer(func() { sawTerminate = true })
		_ = coopio.Sleep(time.Hour)
	})
	coopio.Go(func() {
		_ = coopio.Sleep(10 * time.Millisecond)
		coopio.Terminate(task)
	})
	require.NoError(t, coopio.Wait())
	assert.Equal(t, coro.Dead, task.State())
	assert.True(t, sawTerminate)
	assert.True(t, errors.Is(task.Err(), api.ErrTerminate))
}

func TestMainBlocksOnChannel(t *testing.T) {
	ch, err := concurrency.NewChannel(0)
	require.NoError(t, err)
	coopio.Go(func() {
		_ = coopio.Sleep(5 * time.Millisecond)
		require.NoError(t, ch.Send("from-task"))
	})
	v, err := ch.Receive()
	require.NoError(t, err)
	assert.Equal(t, "from-task", v)
	require.NoError(t, coopio.Wait())
}

func TestCurrentIsMainOutsideTasks(t *testing.T) {
	assert.Same(t, coopio.Scheduler().Main(), coopio.Current())
}
