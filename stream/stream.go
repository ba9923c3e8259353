// File: stream/stream.go
//
// Buffered stream over a non-blocking endpoint: direct writes while
// the peer keeps up, a ring-buffered outbound side drained through
// reactor write-readiness when it does not, and cooperative suspension
// for the flushing task.

package stream

import (
	"errors"
	"io"
	"time"

	"github.com/momentics/coopio/api"
	"github.com/momentics/coopio/control"
	"github.com/momentics/coopio/coro"
	"github.com/momentics/coopio/ring"
)

// How selects a shutdown direction.
type How int

const (
	ShutRead How = iota
	ShutWrite
	ShutBoth
)

// Config carries the stream knobs.
type Config struct {
	// WriteBufferSize is the initial outbound ring capacity.
	WriteBufferSize int
	// WriteBufferMax is the soft cap on buffered outbound bytes.
	WriteBufferMax int
	// WriteChunkSize caps a single endpoint write.
	WriteChunkSize int
}

// DefaultConfig reads the stream knobs from the runtime configuration.
func DefaultConfig() Config {
	cfg := control.Config()
	return Config{
		WriteBufferSize: cfg.Int(control.KeyWriteBufferSize, control.DefaultWriteBufferSize),
		WriteBufferMax:  cfg.Int(control.KeyWriteBufferMax, control.DefaultWriteBufferMax),
		WriteChunkSize:  cfg.Int(control.KeyWriteChunkSize, control.DefaultWriteChunkSize),
	}
}

// Stream is a buffered cooperative stream.
type Stream struct {
	sched *coro.Scheduler
	ep    api.Endpoint
	wbuf  *ring.Buffer
	cfg   Config

	closed bool
	rdShut bool
	wrShut bool

	flusher    *coro.Task
	writeWatch api.WatchID
	readWatch  api.WatchID

	tls *tlsLayer
}

// New wraps an endpoint with the default configuration.
func New(ep api.Endpoint) (*Stream, error) {
	return NewWithConfig(coro.Default(), ep, DefaultConfig())
}

// NewWithConfig wraps an endpoint with explicit knobs.
func NewWithConfig(s *coro.Scheduler, ep api.Endpoint, cfg Config) (*Stream, error) {
	if cfg.WriteBufferSize <= 0 || cfg.WriteBufferMax < cfg.WriteBufferSize || cfg.WriteChunkSize <= 0 {
		return nil, api.Errorf(api.ErrCodeArgument, "stream: invalid configuration %+v", cfg)
	}
	buf, err := ring.New(cfg.WriteBufferSize)
	if err != nil {
		return nil, err
	}
	return &Stream{sched: s, ep: ep, wbuf: buf, cfg: cfg}, nil
}

// Endpoint returns the wrapped endpoint.
func (st *Stream) Endpoint() api.Endpoint { return st.ep }

// Buffered returns the outbound bytes not yet written to the endpoint.
func (st *Stream) Buffered() int { return st.wbuf.Len() }

// WriteAll writes p in full. While the endpoint keeps up the write is
// direct; the remainder is ring-buffered and flushed through a
// write-ready watcher, suspending the caller. A positive timeout
// bounds the suspension with a write-timeout error. When the remainder
// would push the ring past the buffer soft cap the call fails without
// queueing it; bytes already written directly stay written.
func (st *Stream) WriteAll(p []byte, timeout time.Duration) (int, error) {
	if err := st.writable(); err != nil {
		return 0, err
	}
	if st.tls != nil {
		return st.tls.write(p, timeout)
	}
	written := 0
	if st.wbuf.Len() == 0 {
		// Fast path while nothing is queued ahead of p.
		var err error
		written, err = st.writeDirect(p)
		if err != nil {
			return 0, err
		}
	}
	if written == len(p) {
		return written, nil
	}
	rest := p[written:]
	if st.wbuf.Len()+len(rest) > st.cfg.WriteBufferMax {
		return 0, api.Errorf(api.ErrCodeConnection,
			"stream: write buffer overflow (%d queued, %d incoming, cap %d)",
			st.wbuf.Len(), len(rest), st.cfg.WriteBufferMax)
	}
	if _, err := st.wbuf.Write(rest); err != nil {
		return 0, err
	}
	if err := st.flush(timeout); err != nil {
		return 0, err
	}
	return len(p), nil
}

// WriteAsync queues p without suspending. The same overflow rules as
// WriteAll apply; use FlushOnce to drain opportunistically.
func (st *Stream) WriteAsync(p []byte) error {
	if err := st.writable(); err != nil {
		return err
	}
	if st.wbuf.Len()+len(p) > st.cfg.WriteBufferMax {
		return api.Errorf(api.ErrCodeConnection,
			"stream: write buffer overflow (%d queued, %d incoming, cap %d)",
			st.wbuf.Len(), len(p), st.cfg.WriteBufferMax)
	}
	_, err := st.wbuf.Write(p)
	return err
}

// FlushOnce drains the outbound ring while the endpoint accepts data.
// It never suspends; a short or would-block write stops the drain.
func (st *Stream) FlushOnce() error {
	for st.wbuf.Len() > 0 {
		chunk := st.wbuf.Peek(st.cfg.WriteChunkSize)
		n, err := st.ep.Write(chunk)
		if err != nil {
			if errors.Is(err, api.ErrWouldBlock) {
				return nil
			}
			return err
		}
		if n == 0 {
			return nil
		}
		st.wbuf.Consume(n)
		if n < len(chunk) {
			return nil
		}
	}
	return nil
}

// Read reads up to n bytes without suspending. An empty result with a
// nil error means no data is available yet; io.EOF reports a drained
// peer. A task that wants to block registers a read watcher itself.
// Once TLS is enabled, Read goes through the record layer and
// suspends until a record arrives.
func (st *Stream) Read(n int) ([]byte, error) {
	if st.closed || st.rdShut {
		return nil, api.NewError(api.ErrCodeConnection, "stream: read side closed")
	}
	if st.tls != nil {
		return st.tls.read(n)
	}
	buf := make([]byte, n)
	m, err := st.ep.Read(buf)
	if err != nil {
		if errors.Is(err, api.ErrWouldBlock) {
			return nil, nil
		}
		return nil, err
	}
	if m == 0 {
		return nil, io.EOF
	}
	return buf[:m], nil
}

// Shutdown half-closes the stream. The write side flushes best effort,
// cancels the write watcher (failing a suspended flusher) and
// half-closes the endpoint; the read side cancels the read watcher and
// half-closes. Idempotent per direction.
func (st *Stream) Shutdown(how How) error {
	if st.closed {
		return api.NewError(api.ErrCodeConnection, "stream: closed")
	}
	if (how == ShutWrite || how == ShutBoth) && !st.wrShut {
		st.wrShut = true
		_ = st.FlushOnce()
		st.cancelWriteWatch()
		st.failFlusher(api.NewError(api.ErrCodeConnection, "stream: write side shut down"))
		if err := st.ep.CloseWrite(); err != nil {
			return api.Errorf(api.ErrCodeConnection, "stream: write shutdown").WithCause(err)
		}
	}
	if (how == ShutRead || how == ShutBoth) && !st.rdShut {
		st.rdShut = true
		st.cancelReadWatch()
		if err := st.ep.CloseRead(); err != nil {
			return api.Errorf(api.ErrCodeConnection, "stream: read shutdown").WithCause(err)
		}
	}
	return nil
}

// Close releases the watchers and the endpoint. A suspended flusher is
// woken with a stream-closed error. Idempotent.
func (st *Stream) Close() error {
	if st.closed {
		return nil
	}
	st.closed = true
	st.cancelWriteWatch()
	st.cancelReadWatch()
	st.failFlusher(api.NewError(api.ErrCodeConnection, "stream: closed"))
	return st.ep.Close()
}

func (st *Stream) writable() error {
	if st.closed {
		return api.NewError(api.ErrCodeConnection, "stream: closed")
	}
	if st.wrShut {
		return api.NewError(api.ErrCodeConnection, "stream: write side shut down")
	}
	return nil
}

// writeDirect pushes p at the endpoint in chunk-capped slices until it
// would block.
func (st *Stream) writeDirect(p []byte) (int, error) {
	written := 0
	for written < len(p) {
		end := written + st.cfg.WriteChunkSize
		if end > len(p) {
			end = len(p)
		}
		chunk := p[written:end]
		n, err := st.ep.Write(chunk)
		if err != nil {
			if errors.Is(err, api.ErrWouldBlock) {
				return written, nil
			}
			return written, err
		}
		if n == 0 {
			return written, nil
		}
		written += n
		if n < len(chunk) {
			// Short write: endpoint is saturating.
			return written, nil
		}
	}
	return written, nil
}

// flush parks the caller until the ring drains, the timeout fires or
// the stream dies. Watcher and timer are always released on exit.
func (st *Stream) flush(timeout time.Duration) error {
	if st.wbuf.Len() == 0 {
		return nil
	}
	r := st.sched.Reactor()
	if r == nil {
		return api.NewError(api.ErrCodeReactor, "stream: no reactor installed")
	}
	cur := st.sched.Current()
	st.flusher = cur
	st.writeWatch = r.WatchWrite(st.ep.Fd(), func(api.WatchID, int) {
		if err := st.FlushOnce(); err != nil {
			st.failFlusher(err)
			return
		}
		if st.wbuf.Len() == 0 {
			st.wakeFlusher()
		}
	})
	var timerID api.WatchID
	if timeout > 0 {
		timerID = r.Timer(timeout, 0, func(api.WatchID) {
			st.failFlusher(api.Errorf(api.ErrCodeTimeout, "stream: write timeout after %v", timeout))
		})
	}
	_, err := st.sched.Suspend(nil)
	st.cancelWriteWatch()
	if timerID != 0 {
		r.Unwatch(timerID)
	}
	st.flusher = nil
	return coro.Propagate(err)
}

func (st *Stream) wakeFlusher() {
	if t := st.flusher; t != nil {
		st.flusher = nil
		st.sched.Wake(t, nil)
	}
}

func (st *Stream) failFlusher(err error) {
	if t := st.flusher; t != nil {
		st.flusher = nil
		st.sched.WakeErr(t, err)
	}
}

func (st *Stream) cancelWriteWatch() {
	if st.writeWatch != 0 {
		st.sched.Reactor().Unwatch(st.writeWatch)
		st.writeWatch = 0
	}
}

func (st *Stream) cancelReadWatch() {
	if st.readWatch != 0 {
		st.sched.Reactor().Unwatch(st.readWatch)
		st.readWatch = 0
	}
}
