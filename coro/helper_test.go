package coro_test

import (
	"io"
	"os"
	"testing"

	"github.com/momentics/coopio/control"
)

func captureSink(t *testing.T, w io.Writer) {
	t.Helper()
	control.SetErrorSink(w)
	t.Cleanup(func() { control.SetErrorSink(os.Stdout) })
}
