package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/sandboxx/internal/isolator"
	"github.com/roach88/sandboxx/internal/schema"
	"github.com/roach88/sandboxx/internal/state"
	"github.com/roach88/sandboxx/internal/statelog"
	"github.com/roach88/sandboxx/internal/store"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Check failed (invalid log, failed scenario, non-deterministic replay)
	ExitCommandError = 2 // Command error (missing log, unreachable store, bad flags)
)

// Error codes reported in the JSON envelope.
const (
	CodeInvalidLog  = "E_INVALID_LOG"
	CodeDeterminism = "E_DETERMINISM"
	CodeTestFailed  = "E_TEST_FAILED"
	CodeReplay      = "E_REPLAY"
	CodeBlobMissing = "E_BLOB_MISSING"
	CodeBlobCorrupt = "E_BLOB_CORRUPT"
	CodeStore       = "E_STORE"
	CodeTimeout     = "E_TIMEOUT"
	CodeCommand     = "E_COMMAND"
)

// ExitError carries the process exit code for a failed command.
type ExitError struct {
	Code    int    // ExitFailure or ExitCommandError
	Message string // Error message
	Err     error  // Underlying error (optional)
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error. Errors that are not an
// ExitError exit with ExitCommandError, except malformed logs, which are a
// failed check.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	if errors.Is(err, statelog.ErrMalformed) {
		return ExitFailure
	}
	return ExitCommandError
}

// Classify maps an error from the state layer to its envelope code and
// exit code, with details naming where it happened.
func Classify(err error) (code string, exit int, details map[string]any) {
	details = make(map[string]any)
	var (
		verr   *schema.ValidationError
		rerr   *state.ReplayError
		ioErr  *store.IOError
		fsErr  *state.FileSystemError
		exitEr *ExitError
	)
	if errors.As(err, &rerr) {
		details["index"] = rerr.Index
		details["op"] = rerr.Op
	}
	if errors.As(err, &fsErr) {
		details["path"] = fsErr.Path
	}
	switch {
	case errors.As(err, &verr):
		if verr.Line > 0 {
			details["line"] = verr.Line
		}
		return CodeInvalidLog, ExitFailure, details
	case errors.Is(err, statelog.ErrMalformed):
		return CodeInvalidLog, ExitFailure, details
	case errors.Is(err, state.ErrBlobMissing):
		return CodeBlobMissing, ExitCommandError, details
	case errors.Is(err, isolator.ErrTimeout):
		return CodeTimeout, ExitCommandError, details
	case errors.As(err, &ioErr):
		details["op"] = ioErr.Op
		details["key"] = ioErr.Key
		return CodeStore, ExitCommandError, details
	case rerr != nil:
		return CodeReplay, ExitCommandError, details
	case errors.As(err, &exitEr):
		return CodeCommand, exitEr.Code, details
	}
	return CodeCommand, ExitCommandError, details
}

// OutputFormatter writes command results as JSON or text.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // verbose/diagnostic output (defaults to Writer)
	Verbose   bool
}

// CLIResponse is the JSON envelope of every command in --format json.
type CLIResponse struct {
	Status string    `json:"status"`          // "ok" or "error"
	Data   any       `json:"data,omitempty"`  // success payload
	Error  *CLIError `json:"error,omitempty"` // error details
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Success outputs a successful result in the configured format.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}

	fmt.Fprintln(f.Writer, data)
	return nil
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
		})
	}

	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// Fail reports err under message with the code Classify assigns, merging
// extra into the details, and returns the ExitError the command should
// return.
func (f *OutputFormatter) Fail(message string, err error, extra map[string]any) error {
	code, exit, details := Classify(err)
	for k, v := range extra {
		details[k] = v
	}
	if ferr := f.Error(code, err.Error(), details); ferr != nil {
		return ferr
	}
	return WrapExitError(exit, message, err)
}

// VerboseLog writes a diagnostic line when verbose mode is enabled.
// It goes to ErrWriter so JSON output stays parseable.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}
