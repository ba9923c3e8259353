//go:build unix

// File: stream/endpoint_unix.go
//
// Non-blocking file-descriptor endpoint over raw unix I/O. EAGAIN is
// surfaced as api.ErrWouldBlock so the stream layer can park on the
// reactor instead of spinning.

package stream

import (
	"golang.org/x/sys/unix"

	"github.com/momentics/coopio/api"
)

// FDEndpoint is a duplex endpoint around a non-blocking descriptor.
type FDEndpoint struct {
	fd int
}

// NewFDEndpoint wraps fd, switching it to non-blocking mode.
func NewFDEndpoint(fd int) (*FDEndpoint, error) {
	if err := unix.SetNonblock(fd, true); err != nil {
		return nil, api.Errorf(api.ErrCodeConnection, "set nonblock").WithCause(err)
	}
	return &FDEndpoint{fd: fd}, nil
}

// SocketPair returns two connected stream endpoints.
func SocketPair() (*FDEndpoint, *FDEndpoint, error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, nil, api.Errorf(api.ErrCodeConnection, "socketpair").WithCause(err)
	}
	_ = unix.SetNonblock(fds[0], true)
	_ = unix.SetNonblock(fds[1], true)
	return &FDEndpoint{fd: fds[0]}, &FDEndpoint{fd: fds[1]}, nil
}

// Fd returns the descriptor for reactor registration.
func (e *FDEndpoint) Fd() int { return e.fd }

// Read reads up to len(p) bytes. (0, nil) means EOF.
func (e *FDEndpoint) Read(p []byte) (int, error) {
	n, err := unix.Read(e.fd, p)
	if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
		return 0, api.Errorf(api.ErrCodeConnection, "read would block").WithCause(api.ErrWouldBlock)
	}
	if err != nil {
		return 0, api.Errorf(api.ErrCodeConnection, "read failed").WithCause(err)
	}
	return n, nil
}

// Write writes up to len(p) bytes, possibly fewer.
func (e *FDEndpoint) Write(p []byte) (int, error) {
	n, err := unix.Write(e.fd, p)
	if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
		return 0, api.Errorf(api.ErrCodeConnection, "write would block").WithCause(api.ErrWouldBlock)
	}
	if err != nil {
		return 0, api.Errorf(api.ErrCodeConnection, "write failed").WithCause(err)
	}
	return n, nil
}

// CloseRead half-closes the read direction.
func (e *FDEndpoint) CloseRead() error {
	return unix.Shutdown(e.fd, unix.SHUT_RD)
}

// CloseWrite half-closes the write direction.
func (e *FDEndpoint) CloseWrite() error {
	return unix.Shutdown(e.fd, unix.SHUT_WR)
}

// Close releases the descriptor.
func (e *FDEndpoint) Close() error {
	return unix.Close(e.fd)
}
