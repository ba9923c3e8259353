// File: stream/tls.go
//
// Cooperative TLS over the stream's endpoint. The handshake runs
// inside the calling task: the net.Conn adapter suspends on a reactor
// read or write watcher whenever the record layer would block, so the
// whole exchange stays on the single runtime thread.

package stream

import (
	"crypto/tls"
	"errors"
	"io"
	"net"
	"time"

	"github.com/momentics/coopio/api"
	"github.com/momentics/coopio/coro"
)

type tlsLayer struct {
	st   *Stream
	conn *tls.Conn
}

// EnableTLS upgrades the stream. client selects the handshake role; a
// positive timeout bounds the handshake with a timeout error. After a
// successful upgrade Read and WriteAll move through the record layer.
func (st *Stream) EnableTLS(cfg *tls.Config, client bool, timeout time.Duration) error {
	if st.closed || st.rdShut || st.wrShut {
		return api.NewError(api.ErrCodeConnection, "stream: not duplex, cannot enable TLS")
	}
	if st.tls != nil {
		return api.NewError(api.ErrCodeConnection, "stream: TLS already enabled")
	}
	adapter := &cooperativeConn{st: st}
	var conn *tls.Conn
	if client {
		conn = tls.Client(adapter, cfg)
	} else {
		conn = tls.Server(adapter, cfg)
	}
	var timerID api.WatchID
	r := st.sched.Reactor()
	if timeout > 0 {
		cur := st.sched.Current()
		timerID = r.Timer(timeout, 0, func(api.WatchID) {
			st.sched.ThrowInto(cur,
				api.Errorf(api.ErrCodeTimeout, "stream: TLS handshake timeout after %v", timeout)).
				Resolve(api.ErrTimeout)
		})
	}
	err := conn.Handshake()
	if timerID != 0 {
		r.Unwatch(timerID)
	}
	if err != nil {
		return api.Errorf(api.ErrCodeConnection, "stream: TLS handshake failed").WithCause(err)
	}
	st.tls = &tlsLayer{st: st, conn: conn}
	return nil
}

func (l *tlsLayer) read(n int) ([]byte, error) {
	buf := make([]byte, n)
	m, err := l.conn.Read(buf)
	if err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, api.Errorf(api.ErrCodeConnection, "stream: TLS read failed").WithCause(err)
	}
	return buf[:m], nil
}

func (l *tlsLayer) write(p []byte, timeout time.Duration) (int, error) {
	st := l.st
	var timerID api.WatchID
	if timeout > 0 {
		cur := st.sched.Current()
		timerID = st.sched.Reactor().Timer(timeout, 0, func(api.WatchID) {
			st.sched.ThrowInto(cur,
				api.Errorf(api.ErrCodeTimeout, "stream: write timeout after %v", timeout)).
				Resolve(api.ErrTimeout)
		})
	}
	n, err := l.conn.Write(p)
	if timerID != 0 {
		st.sched.Reactor().Unwatch(timerID)
	}
	if err != nil {
		if errors.Is(err, api.ErrTimeout) {
			return n, err
		}
		return n, api.Errorf(api.ErrCodeConnection, "stream: TLS write failed").WithCause(err)
	}
	return n, nil
}

// cooperativeConn adapts the endpoint to net.Conn with suspending
// semantics: a would-block parks the calling task on the matching
// readiness watcher.
type cooperativeConn struct {
	st *Stream
}

func (c *cooperativeConn) Read(p []byte) (int, error) {
	st := c.st
	for {
		n, err := st.ep.Read(p)
		if err == nil {
			if n == 0 {
				return 0, io.EOF
			}
			return n, nil
		}
		if !errors.Is(err, api.ErrWouldBlock) {
			return 0, err
		}
		if werr := c.park(true); werr != nil {
			return 0, werr
		}
	}
}

func (c *cooperativeConn) Write(p []byte) (int, error) {
	st := c.st
	written := 0
	for written < len(p) {
		n, err := st.ep.Write(p[written:])
		if err != nil {
			if !errors.Is(err, api.ErrWouldBlock) {
				return written, err
			}
			if werr := c.park(false); werr != nil {
				return written, werr
			}
			continue
		}
		written += n
	}
	return written, nil
}

// park suspends the current task until the endpoint is ready in the
// requested direction.
func (c *cooperativeConn) park(read bool) error {
	st := c.st
	s := st.sched
	r := s.Reactor()
	cur := s.Current()
	var id api.WatchID
	cb := func(api.WatchID, int) {
		r.Unwatch(id)
		s.Wake(cur, nil)
	}
	if read {
		id = r.WatchRead(st.ep.Fd(), cb)
	} else {
		id = r.WatchWrite(st.ep.Fd(), cb)
	}
	_, err := s.Suspend(nil)
	r.Unwatch(id)
	return coro.Propagate(err)
}

func (c *cooperativeConn) Close() error                       { return c.st.ep.Close() }
func (c *cooperativeConn) LocalAddr() net.Addr                { return streamAddr{} }
func (c *cooperativeConn) RemoteAddr() net.Addr               { return streamAddr{} }
func (c *cooperativeConn) SetDeadline(t time.Time) error      { return nil }
func (c *cooperativeConn) SetReadDeadline(t time.Time) error  { return nil }
func (c *cooperativeConn) SetWriteDeadline(t time.Time) error { return nil }

type streamAddr struct{}

func (streamAddr) Network() string { return "coopio" }
func (streamAddr) String() string  { return "stream" }
