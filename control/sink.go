// control/sink.go
//
// Line-oriented error sink for unresolved-error reports.

package control

import (
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

var (
	sinkMu sync.RWMutex
	sink   = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, NoColor: true}).
		With().Timestamp().Logger()
)

// Sink returns the runtime's error sink logger.
func Sink() zerolog.Logger {
	sinkMu.RLock()
	defer sinkMu.RUnlock()
	return sink
}

// SetErrorSink redirects unresolved-error reports to w.
func SetErrorSink(w io.Writer) {
	sinkMu.Lock()
	defer sinkMu.Unlock()
	sink = zerolog.New(w).With().Timestamp().Logger()
}
