package vad

import "errors"

// ErrInference marks classifier invocation failures so callers can tell them
// apart from invalid-argument errors. The driver does not retry; retry
// policy, if any, belongs to the caller.
var ErrInference = errors.New("classifier inference failed")

// State is the opaque recurrent state a classifier threads between windows.
// The driver never inspects it; it only passes the value returned by one
// Score call into the next.
type State any

// Classifier scores fixed-size sample windows for speech probability.
//
// Implementations must behave as pure functions of their inputs: the same
// (window, context, state) triple always yields the same probability and
// next state. The driver relies on this to restart scoring from InitialState
// at shared reset points, which is what makes parallel and sequential runs
// produce identical results. Implementations must not retain or mutate the
// window and context slices.
type Classifier interface {
	// WindowSize returns the number of samples consumed per Score call.
	WindowSize() int

	// ContextSize returns the number of samples preceding the window that
	// are supplied for continuity. May be zero.
	ContextSize() int

	// SampleRate returns the native sample rate in Hz the classifier
	// expects its input at.
	SampleRate() uint32

	// InitialState returns the cold-start state for the first window of a
	// run. Every call must return an equivalent value.
	InitialState() State

	// Score returns the speech probability in [0, 1] for one window and
	// the state to thread into the next call.
	Score(window, context []float32, state State) (float32, State, error)
}
