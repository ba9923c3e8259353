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

func TestNegativeCapacity(t *testing.T) {
	_, err := concurrency.NewChannel(-1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, api.ErrArgument))
}

func TestUnbufferedRendezvous(t *testing.T) {
	s := coro.NewScheduler()
	ch, err := concurrency.NewChannelIn(s, 0)
	require.NoError(t, err)

	var got any
	sender := s.Go(func() {
		require.NoError(t, ch.Send("H"))
	})
	receiver := s.Go(func() {
		v, rerr := ch.Receive()
		require.NoError(t, rerr)
		got = v
	})
	require.NoError(t, s.Run())

	assert.Equal(t, "H", got)
	assert.Equal(t, coro.Dead, sender.State())
	assert.Equal(t, coro.Dead, receiver.State())
	assert.Equal(t, 0, ch.Len())
	assert.Equal(t, 0, ch.WaitingSenders())
	assert.Equal(t, 0, ch.WaitingReceivers())
}

func TestRendezvousNeitherSideCompletesAlone(t *testing.T) {
	s := coro.NewScheduler()
	ch, _ := concurrency.NewChannelIn(s, 0)
	sender := s.Go(func() { _ = ch.Send("x") })
	require.NoError(t, s.Run())
	assert.Equal(t, coro.Waiting, sender.State())
	assert.Equal(t, 1, ch.WaitingSenders())
	assert.Equal(t, 0, ch.Len())
}

func TestBufferedFIFO(t *testing.T) {
	s := coro.NewScheduler()
	ch, _ := concurrency.NewChannelIn(s, 3)
	msgs := []string{"M1", "M2", "M3", "M4", "M5"}

	suspensions := 0
	var hook func(*coro.Task)
	hook = func(tk *coro.Task) {
		suspensions++
		tk.OnState(coro.Waiting, hook, false)
	}

	producer := s.NewTask(func(...any) any {
		for _, m := range msgs {
			if err := ch.Send(m); err != nil {
				return err
			}
		}
		return nil
	})
	producer.OnState(coro.Waiting, hook, false)

	var got []string
	maxDepth := 0
	s.Go(func() {
		for range msgs {
			if d := ch.Len(); d > maxDepth {
				maxDepth = d
			}
			v, err := ch.Receive()
			require.NoError(t, err)
			got = append(got, v.(string))
		}
	})
	s.Enqueue(producer, false)
	require.NoError(t, s.Run())

	assert.Equal(t, msgs, got)
	assert.Equal(t, 1, suspensions)
	assert.Equal(t, 3, maxDepth)
	assert.Equal(t, coro.Dead, producer.State())
}

func TestSendOnClosed(t *testing.T) {
	s := coro.NewScheduler()
	ch, _ := concurrency.NewChannelIn(s, 1)
	ch.Close()
	err := ch.Send("x")
	require.Error(t, err)
	assert.True(t, errors.Is(err, api.ErrChannelClosed))
}

func TestCloseWakesSendersWithError(t *testing.T) {
	s := coro.NewScheduler()
	ch, _ := concurrency.NewChannelIn(s, 0)
	var sendErr error
	s.Go(func() { sendErr = ch.Send("x") })
	require.NoError(t, s.Run())

	ch.Close()
	require.NoError(t, s.Run())
	require.Error(t, sendErr)
	assert.True(t, errors.Is(sendErr, api.ErrChannelClosed))
}

func TestCloseWakesReceiversWithZeroValue(t *testing.T) {
	s := coro.NewScheduler()
	ch, _ := concurrency.NewChannelIn(s, 0)
	var got any = "sentinel"
	var rerr error
	s.Go(func() { got, rerr = ch.Receive() })
	require.NoError(t, s.Run())

	ch.Close()
	require.NoError(t, s.Run())
	require.NoError(t, rerr)
	assert.Nil(t, got)
}

func TestReceiveOnClosedDrained(t *testing.T) {
	s := coro.NewScheduler()
	ch, _ := concurrency.NewChannelIn(s, 2)
	require.NoError(t, ch.Send("a"))
	ch.Close()
	v, err := ch.Receive()
	require.NoError(t, err)
	assert.Equal(t, "a", v)
	v, err = ch.Receive()
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestTryVariants(t *testing.T) {
	s := coro.NewScheduler()
	ch, _ := concurrency.NewChannelIn(s, 1)

	assert.True(t, ch.TrySend("a"))
	assert.False(t, ch.TrySend("b")) // full

	v, ok := ch.TryReceive()
	assert.True(t, ok)
	assert.Equal(t, "a", v)

	_, ok = ch.TryReceive() // empty
	assert.False(t, ok)
}

func TestBufferNeverExceedsCapacity(t *testing.T) {
	s := coro.NewScheduler()
	ch, _ := concurrency.NewChannelIn(s, 2)
	for i := 0; i < 5; i++ {
		s.Go(func() { _ = ch.Send(i) })
	}
	require.NoError(t, s.Run())
	assert.Equal(t, 2, ch.Len())
	assert.Equal(t, 3, ch.WaitingSenders())
	assert.Equal(t, 0, ch.WaitingReceivers())
}
