package concurrency_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/coopio/api"
	"github.com/momentics/coopio/concurrency"
	"github.com/momentics/coopio/coro"
)

func TestLockUnlockRoundTrip(t *testing.T) {
	s := coro.NewScheduler()
	m := concurrency.NewMutexIn(s)
	require.NoError(t, m.Lock())
	assert.True(t, m.Locked())
	assert.Same(t, s.Main(), m.Owner())
	require.NoError(t, m.Unlock())
	assert.False(t, m.Locked())
	assert.Nil(t, m.Owner())
}

func TestStickyReentry(t *testing.T) {
	s := coro.NewScheduler()
	m := concurrency.NewMutexIn(s)
	require.NoError(t, m.Lock())
	require.NoError(t, m.Lock()) // no-op for the owner, not counted
	assert.True(t, m.Locked())
	require.NoError(t, m.Unlock()) // single unlock fully releases
	assert.False(t, m.Locked())
}

func TestUnlockByNonOwner(t *testing.T) {
	s := coro.NewScheduler()
	m := concurrency.NewMutexIn(s)
	require.NoError(t, m.Lock())
	var taskErr error
	s.Go(func() { taskErr = m.Unlock() })
	require.NoError(t, s.Run())
	require.Error(t, taskErr)
	assert.True(t, errors.Is(taskErr, api.ErrSyncMisuse))
	assert.True(t, m.Locked())
}

func TestUnlockWhenUnlocked(t *testing.T) {
	s := coro.NewScheduler()
	m := concurrency.NewMutexIn(s)
	err := m.Unlock()
	require.Error(t, err)
	assert.True(t, errors.Is(err, api.ErrSyncMisuse))
}

func TestFairnessFIFO(t *testing.T) {
	s := coro.NewScheduler()
	m := concurrency.NewMutexIn(s)
	require.NoError(t, m.Lock()) // main holds the lock

	var order []string
	var counts []int
	for _, name := range []string{"A", "B", "C"} {
		name := name
		s.Go(func() {
			require.NoError(t, m.Lock())
			order = append(order, name)
			counts = append(counts, m.WaitingCount())
			require.NoError(t, m.Unlock())
		})
	}
	require.NoError(t, s.Run())
	require.Equal(t, 3, m.WaitingCount())

	require.NoError(t, m.Unlock())
	require.NoError(t, s.Run())

	assert.Equal(t, []string{"A", "B", "C"}, order)
	assert.Equal(t, []int{2, 1, 0}, counts)
	assert.False(t, m.Locked())
	assert.Equal(t, 0, m.WaitingCount())
}

func TestTryLock(t *testing.T) {
	s := coro.NewScheduler()
	m := concurrency.NewMutexIn(s)
	assert.True(t, m.TryLock())
	assert.True(t, m.TryLock()) // owner re-entry

	var fromTask bool
	s.Go(func() { fromTask = m.TryLock() })
	require.NoError(t, s.Run())
	assert.False(t, fromTask)

	require.NoError(t, m.Unlock())
}
