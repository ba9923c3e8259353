// File: coro/trace.go
//
// Per-task bounded debug trace ring. Each state transition records a
// timestamped entry with a frame-classified stack; the dump is used
// when an unresolved error is surfaced.

package coro

import (
	"fmt"
	"path"
	"runtime"
	"strings"
	"time"

	"github.com/momentics/coopio/control"
)

const modulePrefix = "github.com/momentics/coopio/"

// TraceEntry is one recorded transition.
type TraceEntry struct {
	Time  time.Time
	State State
	Event string
	Stack []string
}

type traceRing struct {
	entries []TraceEntry
	next    int
	count   int
}

func newTraceRing(capacity int) *traceRing {
	if capacity <= 0 {
		capacity = control.DefaultMaxTraces
	}
	return &traceRing{entries: make([]TraceEntry, capacity)}
}

func (r *traceRing) record(st State, event string) {
	r.entries[r.next] = TraceEntry{
		Time:  time.Now(),
		State: st,
		Event: event,
		Stack: captureStack(2),
	}
	r.next = (r.next + 1) % len(r.entries)
	if r.count < len(r.entries) {
		r.count++
	}
}

func (r *traceRing) reset() {
	r.next = 0
	r.count = 0
}

// Snapshot returns the recorded entries, oldest first.
func (r *traceRing) Snapshot() []TraceEntry {
	out := make([]TraceEntry, 0, r.count)
	start := r.next - r.count
	if start < 0 {
		start += len(r.entries)
	}
	for i := 0; i < r.count; i++ {
		out = append(out, r.entries[(start+i)%len(r.entries)])
	}
	return out
}

func (r *traceRing) format() []string {
	snap := r.Snapshot()
	out := make([]string, 0, len(snap))
	for _, e := range snap {
		top := ""
		if len(e.Stack) > 0 {
			top = " at " + e.Stack[0]
		}
		out = append(out, fmt.Sprintf("%s %s %s%s",
			e.Time.Format("15:04:05.000"), e.State, e.Event, top))
	}
	return out
}

type frameClass int

const (
	frameUser frameClass = iota
	frameRuntime
	frameVendor
)

// classifyFrame buckets a function symbol for noise suppression.
// Frames of this module are "runtime"; third-party frames and those of
// the Go runtime, testing and reflect packages are "vendor"; everything
// else, other stdlib packages included, is user code.
func classifyFrame(fn string) frameClass {
	switch {
	case strings.HasPrefix(fn, modulePrefix):
		return frameRuntime
	case strings.Contains(fn, ".com/") || strings.Contains(fn, ".org/") || strings.Contains(fn, ".in/"):
		return frameVendor
	case strings.HasPrefix(fn, "runtime.") || strings.HasPrefix(fn, "testing.") || strings.HasPrefix(fn, "reflect."):
		return frameVendor
	}
	return frameUser
}

// captureStack collects the calling stack. Runtime and vendor frames
// are suppressed unless the DEBUG flag is set.
func captureStack(skip int) []string {
	pcs := make([]uintptr, 48)
	n := runtime.Callers(skip+2, pcs)
	if n == 0 {
		return nil
	}
	frames := runtime.CallersFrames(pcs[:n])
	debug := control.DebugEnabled()
	var out []string
	for {
		frame, more := frames.Next()
		if frame.Function != "" {
			if debug || classifyFrame(frame.Function) == frameUser {
				out = append(out, fmt.Sprintf("%s (%s:%d)",
					frame.Function, path.Base(frame.File), frame.Line))
			}
		}
		if !more {
			break
		}
	}
	return out
}
