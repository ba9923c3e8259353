//go:build unix

package stream_test

import (
	"bytes"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/coopio/api"
	"github.com/momentics/coopio/coro"
	"github.com/momentics/coopio/reactor"
	"github.com/momentics/coopio/stream"
)

func newRuntime(t *testing.T) *coro.Scheduler {
	t.Helper()
	s := coro.NewScheduler()
	r, err := reactor.NewWithBackend("select", func(fn func()) { s.Go(fn) })
	require.NoError(t, err)
	s.SetReactor(r)
	t.Cleanup(r.Stop)
	return s
}

func pair(t *testing.T) (*stream.FDEndpoint, *stream.FDEndpoint) {
	t.Helper()
	a, b, err := stream.SocketPair()
	require.NoError(t, err)
	return a, b
}

// drain reads from ep until total bytes arrived, parking on the
// reactor between chunks.
func drain(s *coro.Scheduler, ep api.Endpoint, total int) ([]byte, error) {
	out := make([]byte, 0, total)
	buf := make([]byte, 64*1024)
	for len(out) < total {
		n, err := ep.Read(buf)
		if err != nil {
			if !errors.Is(err, api.ErrWouldBlock) {
				return out, err
			}
			r := s.Reactor()
			cur := s.Current()
			var id api.WatchID
			id = r.WatchRead(ep.Fd(), func(api.WatchID, int) {
				r.Unwatch(id)
				s.Wake(cur, nil)
			})
			if _, werr := s.Suspend(nil); werr != nil {
				r.Unwatch(id)
				return out, werr
			}
			continue
		}
		if n == 0 {
			return out, nil
		}
		out = append(out, buf[:n]...)
	}
	return out, nil
}

func TestSmallWriteGoesDirect(t *testing.T) {
	s := newRuntime(t)
	a, b := pair(t)
	st, err := stream.NewWithConfig(s, a, stream.Config{
		WriteBufferSize: 32 * 1024,
		WriteBufferMax:  1024 * 1024,
		WriteChunkSize:  60 * 1024,
	})
	require.NoError(t, err)
	defer st.Close()
	defer b.Close()

	n, err := st.WriteAll([]byte("hello"), 0)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, 0, st.Buffered())

	buf := make([]byte, 16)
	m, err := b.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf[:m]))
}

func TestWriteAllRoundTripUnderBackPressure(t *testing.T) {
	s := newRuntime(t)
	a, b := pair(t)
	st, err := stream.NewWithConfig(s, a, stream.Config{
		WriteBufferSize: 32 * 1024,
		WriteBufferMax:  8 * 1024 * 1024,
		WriteChunkSize:  60 * 1024,
	})
	require.NoError(t, err)
	defer b.Close()

	payload := make([]byte, 2*1024*1024)
	rand.New(rand.NewSource(7)).Read(payload)

	var got []byte
	var gotErr error
	s.Go(func() {
		got, gotErr = drain(s, b, len(payload))
	})

	n, err := st.WriteAll(payload, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, len(payload), n)

	require.NoError(t, s.Run())
	require.NoError(t, gotErr)
	require.True(t, bytes.Equal(payload, got), "payload corrupted in transit")
	require.NoError(t, st.Close())
}

func TestWriteTimeoutUnderBackPressure(t *testing.T) {
	s := newRuntime(t)
	a, b := pair(t)
	defer b.Close()
	st, err := stream.NewWithConfig(s, a, stream.Config{
		WriteBufferSize: 32 * 1024,
		WriteBufferMax:  64 * 1024 * 1024,
		WriteChunkSize:  60 * 1024,
	})
	require.NoError(t, err)
	defer st.Close()

	payload := make([]byte, 2*1024*1024)
	start := time.Now()
	// The peer never reads: the kernel buffer fills, the rest queues,
	// and the flush must time out.
	_, err = st.WriteAll(payload, 200*time.Millisecond)
	require.Error(t, err)
	assert.True(t, errors.Is(err, api.ErrTimeout), "got %v", err)
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestWriteAsyncAndFlushOnce(t *testing.T) {
	s := newRuntime(t)
	a, b := pair(t)
	defer b.Close()
	st, err := stream.NewWithConfig(s, a, stream.Config{
		WriteBufferSize: 1024,
		WriteBufferMax:  1024 * 1024,
		WriteChunkSize:  512,
	})
	require.NoError(t, err)
	defer st.Close()

	require.NoError(t, st.WriteAsync([]byte("queued")))
	assert.Equal(t, 6, st.Buffered())
	require.NoError(t, st.FlushOnce())
	assert.Equal(t, 0, st.Buffered())

	buf := make([]byte, 16)
	n, err := b.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "queued", string(buf[:n]))
}

func TestWriteBufferOverflow(t *testing.T) {
	s := newRuntime(t)
	a, b := pair(t)
	defer b.Close()
	st, err := stream.NewWithConfig(s, a, stream.Config{
		WriteBufferSize: 1024,
		WriteBufferMax:  4096,
		WriteChunkSize:  512,
	})
	require.NoError(t, err)
	defer st.Close()

	// Far beyond the kernel buffer plus the 4 KiB soft cap.
	payload := make([]byte, 8*1024*1024)
	_, err = st.WriteAll(payload, 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, api.ErrConnection))
	assert.Contains(t, err.Error(), "overflow")
}

func TestReadNonBlocking(t *testing.T) {
	a, b := pair(t)
	defer b.Close()
	st, err := stream.New(a)
	require.NoError(t, err)
	defer st.Close()

	data, err := st.Read(16)
	require.NoError(t, err)
	assert.Empty(t, data) // empty, non-EOF

	_, err = b.Write([]byte("ping"))
	require.NoError(t, err)
	data, err = st.Read(16)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(data))
}

func TestShutdownPerDirection(t *testing.T) {
	s := newRuntime(t)
	a, b := pair(t)
	defer b.Close()
	st, err := stream.NewWithConfig(s, a, stream.Config{
		WriteBufferSize: 1024,
		WriteBufferMax:  4096,
		WriteChunkSize:  512,
	})
	require.NoError(t, err)
	defer st.Close()

	require.NoError(t, st.Shutdown(stream.ShutWrite))
	require.NoError(t, st.Shutdown(stream.ShutWrite)) // idempotent
	_, err = st.WriteAll([]byte("x"), 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, api.ErrConnection))

	// Read side still open.
	_, err = b.Write([]byte("ok"))
	require.NoError(t, err)
	data, err := st.Read(4)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(data))

	require.NoError(t, st.Shutdown(stream.ShutRead))
	_, err = st.Read(4)
	require.Error(t, err)
}

func TestCloseIsIdempotent(t *testing.T) {
	a, b := pair(t)
	defer b.Close()
	st, err := stream.New(a)
	require.NoError(t, err)
	require.NoError(t, st.Close())
	require.NoError(t, st.Close())
	_, err = st.WriteAll([]byte("x"), 0)
	require.Error(t, err)
}
