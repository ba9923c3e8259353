//go:build unix && !linux

// File: fileio/sendfile_other.go

package fileio

import (
	"os"

	"github.com/momentics/coopio/api"
	"github.com/momentics/coopio/coro"
)

func rawSendfile(*coro.Scheduler, api.Endpoint, *os.File, int64) (int64, error) {
	return 0, errNoSendfile
}
