// Package errs defines the error taxonomy shared by the campaign components.
//
// Every failure surfaced by the pipeline, the orchestrators and the remote
// adapters is an *Error carrying a Kind. Callers branch on the kind with the
// Is* predicates, which use errors.As and therefore see through wrapping.
//
// Propagation rules:
//   - Configuration and InvalidName errors are fatal for the whole operation.
//   - UnresolvedVariable and Conflict errors are per file; the template
//     pipeline aggregates them into one overall failure.
//   - Remote errors are per run inside batch loops and fatal in the gating
//     checks (remote root existence, job document presence).
//   - TriggerResolution errors skip the affected run only.
package errs

import (
	"errors"
	"fmt"
)

// Kind categorizes an Error.
type Kind string

const (
	// Configuration indicates an invalid or incomplete campaign configuration.
	Configuration Kind = "CONFIGURATION"

	// InvalidName indicates a variable name without the mandated prefix.
	InvalidName Kind = "INVALID_NAME"

	// UnresolvedVariable indicates a template token with no stored variable.
	UnresolvedVariable Kind = "UNRESOLVED_VARIABLE"

	// Conflict indicates a destination file that exists while overwrite is off.
	Conflict Kind = "CONFLICT"

	// Remote indicates a failed call to the remote storage/grid service.
	Remote Kind = "REMOTE"

	// TriggerResolution indicates a reference trigger missing from the scalers.
	TriggerResolution Kind = "TRIGGER_RESOLUTION"
)

// Error is a categorized failure.
type Error struct {
	Kind    Kind
	Message string

	// Path is the file or remote path involved, if any.
	Path string

	// Run is the run number involved, 0 when not run-specific.
	Run int

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.Run != 0 {
		msg += fmt.Sprintf(" (run=%d)", e.Run)
	}
	if e.Path != "" {
		msg += fmt.Sprintf(" (path=%s)", e.Path)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an Error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error of the given kind around err.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// WithPath sets Path and returns the receiver.
func (e *Error) WithPath(path string) *Error {
	e.Path = path
	return e
}

// WithRun sets Run and returns the receiver.
func (e *Error) WithRun(run int) *Error {
	e.Run = run
	return e
}

// KindOf returns the kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is reports whether err carries an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	if e.Kind == kind {
		return true
	}
	// errors.As stops at the first match; joined errors need a full walk.
	return walk(err, kind)
}

func walk(err error, kind Kind) bool {
	switch x := err.(type) {
	case *Error:
		if x.Kind == kind {
			return true
		}
		if x.Err != nil {
			return walk(x.Err, kind)
		}
		return false
	case interface{ Unwrap() []error }:
		for _, e := range x.Unwrap() {
			if walk(e, kind) {
				return true
			}
		}
		return false
	case interface{ Unwrap() error }:
		if inner := x.Unwrap(); inner != nil {
			return walk(inner, kind)
		}
	}
	return false
}

// IsConfiguration reports whether err is a configuration error.
func IsConfiguration(err error) bool { return Is(err, Configuration) }

// IsConflict reports whether err is a conflict error.
func IsConflict(err error) bool { return Is(err, Conflict) }

// IsUnresolved reports whether err is an unresolved-variable error.
func IsUnresolved(err error) bool { return Is(err, UnresolvedVariable) }

// IsRemote reports whether err is a remote service error.
func IsRemote(err error) bool { return Is(err, Remote) }

// IsTriggerResolution reports whether err is a trigger lookup miss.
func IsTriggerResolution(err error) bool { return Is(err, TriggerResolution) }
