//go:build linux

// File: fileio/sendfile_linux.go
//
// Kernel sendfile with EINTR retry and cooperative parking on EAGAIN.

package fileio

import (
	"os"

	"golang.org/x/sys/unix"

	"github.com/momentics/coopio/api"
	"github.com/momentics/coopio/coro"
)

func rawSendfile(s *coro.Scheduler, ep api.Endpoint, f *os.File, size int64) (int64, error) {
	var offset int64
	var total int64
	infd := int(f.Fd())
	for total < size {
		n, err := unix.Sendfile(ep.Fd(), infd, &offset, int(size-total))
		switch err {
		case nil:
			if n == 0 {
				return total, nil
			}
			total += int64(n)
		case unix.EINTR:
			continue
		case unix.EAGAIN:
			if perr := parkWrite(s, ep.Fd()); perr != nil {
				return total, perr
			}
		case unix.ENOSYS, unix.EINVAL, unix.EOPNOTSUPP:
			if total == 0 {
				return 0, errNoSendfile
			}
			return total, api.NewError(api.ErrCodeConnection, "fileio: sendfile failed").WithCause(err)
		default:
			return total, api.NewError(api.ErrCodeConnection, "fileio: sendfile failed").WithCause(err)
		}
	}
	return total, nil
}
