package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/accsubmit/internal/errs"
)

// Process exit codes.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // some runs or files failed
	ExitCommandError = 2 // the campaign could not be set up
)

// ExitError carries the exit code a command wants the process to end with.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

// NewExitError creates an ExitError without a cause.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError creates an ExitError around err.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode returns the code of the first ExitError in err's chain, and
// ExitFailure for any other error.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// CLIResponse is the envelope of every JSON output.
type CLIResponse struct {
	Status string    `json:"status"` // "ok" or "error"
	Data   any       `json:"data,omitempty"`
	Error  *CLIError `json:"error,omitempty"`
}

// CLIError is the error part of a CLIResponse.
type CLIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ErrorDetails is attached to JSON errors raised by campaign components.
type ErrorDetails struct {
	Kind errs.Kind `json:"kind"`
	Path string    `json:"path,omitempty"`
	Run  int       `json:"run,omitempty"`
}

// OutputFormatter writes command results as text or JSON.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // diagnostics; defaults to Writer
	Verbose   bool
}

// JSON reports whether results are written as JSON.
func (f *OutputFormatter) JSON() bool { return f.Format == "json" }

// Success writes data. Text output prints data with fmt.
func (f *OutputFormatter) Success(data any) error {
	if f.JSON() {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{Status: "ok", Data: data})
	}
	_, err := fmt.Fprintln(f.Writer, data)
	return err
}

// Result writes data as JSON, or calls text to render it.
func (f *OutputFormatter) Result(data any, text func(io.Writer)) error {
	if f.JSON() {
		return f.Success(data)
	}
	text(f.Writer)
	return nil
}

// Error writes an error response.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.JSON() {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error:  &CLIError{Code: code, Message: message, Details: details},
		})
	}
	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %+v\n", details)
	}
	return nil
}

// Fail writes err and returns the ExitError the command should return. The
// code and exit status follow the error's kind.
func (f *OutputFormatter) Fail(message string, err error) error {
	var details any
	var e *errs.Error
	if errors.As(err, &e) {
		details = ErrorDetails{Kind: e.Kind, Path: e.Path, Run: e.Run}
	}
	_ = f.Error(ErrorCode(err), fmt.Sprintf("%s: %v", message, err), details)
	return WrapExitError(ExitCode(err), message, err)
}

// VerboseLog writes a diagnostic line when verbose is on. Diagnostics go to
// ErrWriter so JSON output stays parseable.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	w := f.ErrWriter
	if w == nil {
		w = f.Writer
	}
	fmt.Fprintf(w, format+"\n", args...)
}
