//go:build unix

// File: fileio/fileio.go
//
// Cooperative file helpers. Whole-file reads either complete
// synchronously or run on a worker with completion delivered through a
// reactor-watched pipe, so the calling task suspends instead of
// blocking the loop. Sendfile pushes a file at a non-blocking endpoint
// with kernel copy where available.

package fileio

import (
	"errors"
	"io"
	"os"

	"golang.org/x/sys/unix"

	"github.com/momentics/coopio/api"
	"github.com/momentics/coopio/coro"
)

// GetContents reads the whole file synchronously.
func GetContents(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, api.Errorf(api.ErrCodeArgument, "fileio: read %s", path).WithCause(err)
	}
	return data, nil
}

type asyncResult struct {
	data []byte
	err  error
}

// GetContentsAsync reads the whole file off-loop and suspends the
// calling task until the read completes. Completion is signalled
// through a pipe watched by the reactor.
func GetContentsAsync(path string) ([]byte, error) {
	return GetContentsAsyncIn(coro.Default(), path)
}

// GetContentsAsyncIn is GetContentsAsync on an explicit scheduler.
func GetContentsAsyncIn(s *coro.Scheduler, path string) ([]byte, error) {
	r := s.Reactor()
	if r == nil {
		return GetContents(path)
	}
	var fds [2]int
	if err := unix.Pipe(fds[:]); err != nil {
		return nil, api.Errorf(api.ErrCodeReactor, "fileio: pipe").WithCause(err)
	}
	_ = unix.SetNonblock(fds[0], true)
	resCh := make(chan asyncResult, 1)
	cur := s.Current()
	var id api.WatchID
	id = r.WatchRead(fds[0], func(api.WatchID, int) {
		r.Unwatch(id)
		s.Wake(cur, nil)
	})
	go func() {
		data, err := os.ReadFile(path)
		resCh <- asyncResult{data: data, err: err}
		var b [1]byte
		_, _ = unix.Write(fds[1], b[:])
	}()
	_, werr := s.Suspend(nil)
	r.Unwatch(id)
	_ = unix.Close(fds[0])
	_ = unix.Close(fds[1])
	if werr != nil {
		return nil, coro.Propagate(werr)
	}
	res := <-resCh
	if res.err != nil {
		return nil, api.Errorf(api.ErrCodeArgument, "fileio: read %s", path).WithCause(res.err)
	}
	return res.data, nil
}

// Sendfile pushes the whole file at the endpoint, suspending on write
// back-pressure. Kernel copy is used where supported, with a
// read/write loop as the fallback.
func Sendfile(ep api.Endpoint, path string) (int64, error) {
	return SendfileIn(coro.Default(), ep, path)
}

// SendfileIn is Sendfile on an explicit scheduler.
func SendfileIn(s *coro.Scheduler, ep api.Endpoint, path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, api.Errorf(api.ErrCodeArgument, "fileio: open %s", path).WithCause(err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return 0, api.Errorf(api.ErrCodeArgument, "fileio: stat %s", path).WithCause(err)
	}
	n, err := rawSendfile(s, ep, f, info.Size())
	if err != nil && errors.Is(err, errNoSendfile) {
		return copyTo(s, ep, f)
	}
	return n, err
}

var errNoSendfile = errors.New("sendfile unsupported")

// copyTo is the userspace fallback: read a block, push it at the
// endpoint, park on write readiness under back-pressure.
func copyTo(s *coro.Scheduler, ep api.Endpoint, f *os.File) (int64, error) {
	var total int64
	buf := make([]byte, 64*1024)
	for {
		n, err := f.Read(buf)
		if n > 0 {
			written := 0
			for written < n {
				m, werr := ep.Write(buf[written:n])
				if werr != nil {
					if errors.Is(werr, api.ErrWouldBlock) {
						if perr := parkWrite(s, ep.Fd()); perr != nil {
							return total, perr
						}
						continue
					}
					return total, werr
				}
				written += m
				total += int64(m)
			}
		}
		if err == io.EOF {
			return total, nil
		}
		if err != nil {
			return total, api.NewError(api.ErrCodeConnection, "fileio: read failed").WithCause(err)
		}
	}
}

// parkWrite suspends the current task until fd is writable.
func parkWrite(s *coro.Scheduler, fd int) error {
	r := s.Reactor()
	cur := s.Current()
	var id api.WatchID
	id = r.WatchWrite(fd, func(api.WatchID, int) {
		r.Unwatch(id)
		s.Wake(cur, nil)
	})
	_, err := s.Suspend(nil)
	r.Unwatch(id)
	return coro.Propagate(err)
}
