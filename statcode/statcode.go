// Package statcode defines the numeric status-code taxonomy that every
// layer of the motion core returns instead of ad-hoc errors, and the
// wrapped error type that carries one up to the shell with enough
// context to diagnose it after the fact.
package statcode

import "github.com/pkg/errors"

// Code is a numeric status code. Non-error codes (OK, NOOP, EAGAIN,
// COMPLETE) are used for flow control between cooperating layers;
// everything else is surfaced to the operator as a failure.
type Code int

const (
	OK Code = iota
	NOOP
	EAGAIN
	COMPLETE

	// Input validation
	InputValueUnsupported
	ParameterNotFound
	BadNumberFormat
	ZeroLengthMove

	// Planner limits
	BufferFullNonFatal
	BufferFullFatal

	// Motion math
	ArcSpecificationError
	MaxFeedRateExceeded
	MaxTravelExceeded
	FloatingPointError
	FailedToConverge

	// Hardware / assertion
	StepperAssertionFailure
	InternalError
)

var names = map[Code]string{
	OK:                      "OK",
	NOOP:                    "NOOP",
	EAGAIN:                  "EAGAIN",
	COMPLETE:                "COMPLETE",
	InputValueUnsupported:   "INPUT_VALUE_UNSUPPORTED",
	ParameterNotFound:       "PARAMETER_NOT_FOUND",
	BadNumberFormat:         "BAD_NUMBER_FORMAT",
	ZeroLengthMove:          "ZERO_LENGTH_MOVE",
	BufferFullNonFatal:      "BUFFER_FULL_NON_FATAL",
	BufferFullFatal:         "BUFFER_FULL_FATAL",
	ArcSpecificationError:   "ARC_SPECIFICATION_ERROR",
	MaxFeedRateExceeded:     "MAX_FEED_RATE_EXCEEDED",
	MaxTravelExceeded:       "MAX_TRAVEL_EXCEEDED",
	FloatingPointError:      "FLOATING_POINT_ERROR",
	FailedToConverge:        "FAILED_TO_CONVERGE",
	StepperAssertionFailure: "STEPPER_ASSERTION_FAILURE",
	InternalError:           "INTERNAL_ERROR",
}

func (c Code) String() string {
	if name, ok := names[c]; ok {
		return name
	}
	return "UNKNOWN_STAT_CODE"
}

// Error satisfies the error interface so a bare Code can be returned
// and compared with errors.Is against a StatError wrapping it.
func (c Code) Error() string {
	return c.String()
}

// IsFlowControl reports whether c is a non-error flow-control code
// (OK, NOOP, EAGAIN, COMPLETE) rather than a fault.
func (c Code) IsFlowControl() bool {
	return c == OK || c == NOOP || c == EAGAIN || c == COMPLETE
}

// StatError wraps a Code with message context and a stack trace,
// captured at the point a fault is first detected so the exception
// report channel has something more useful than a bare code.
type StatError struct {
	Code Code
	err  error
}

func (e *StatError) Error() string {
	return e.err.Error()
}

func (e *StatError) Unwrap() error {
	return e.err
}

// Is allows errors.Is(err, statcode.SomeCode) to match a wrapped StatError.
func (e *StatError) Is(target error) bool {
	code, ok := target.(Code)
	return ok && code == e.Code
}

// Wrap creates a StatError for code with a stack trace and message.
func Wrap(code Code, message string) *StatError {
	return &StatError{Code: code, err: errors.WithStack(errors.New(code.String() + ": " + message))}
}

// Wrapf is Wrap with formatting.
func Wrapf(code Code, format string, args ...interface{}) *StatError {
	return &StatError{Code: code, err: errors.WithStack(errors.Errorf(code.String()+": "+format, args...))}
}

// WithContext attaches additional message context to an existing
// error without discarding its stack, e.g. when a lower layer's plain
// error needs to be promoted to a stat code at a layer boundary.
func WithContext(code Code, cause error, message string) *StatError {
	return &StatError{Code: code, err: errors.WithMessage(errors.WithStack(cause), message)}
}
