// File: coro/outcome.go
//
// Outcome of a scheduler control operation: a result that also tracks
// whether the caller acknowledged a specific failure kind. Unresolved
// erroneous outcomes surface once, at end of tick.

package coro

import "errors"

// Control-operation action names.
const (
	ActionStart     = "start"
	ActionResume    = "resume"
	ActionThrow     = "throw"
	ActionTerminate = "terminate"
)

// Outcome wraps the result of Start, Resume, ThrowInto or Terminate.
type Outcome struct {
	Action string
	Value  any
	Err    error
	Task   *Task
	// Trace is the capture-site stack of the control operation.
	Trace []string

	resolved error
}

// Resolve marks an error of the given kind as expected and handled.
// The scheduler's end-of-tick surfacer skips outcomes whose error
// matches a resolved kind.
func (o *Outcome) Resolve(kind error) *Outcome {
	o.resolved = kind
	return o
}

// Resolved reports whether the outcome needs no surfacing: it carries
// no error, or its error matches the acknowledged kind.
func (o *Outcome) Resolved() bool {
	if o.Err == nil {
		return true
	}
	return o.resolved != nil && errors.Is(o.Err, o.resolved)
}
