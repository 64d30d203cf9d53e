package output

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/klytics/gsdkit/cmd/version"
)

// Exit codes for consistent error reporting.
const (
	ExitOK          = 0 // success
	ExitUserError   = 1 // bad flags, missing file, invalid layout
	ExitSystemError = 2 // no data extracted, IO error, database error
)

// ExitError carries a process exit code out of a command.
type ExitError struct {
	Code int
	Err  error
	// Silent means the error was already reported, as a --json envelope.
	Silent bool
}

func (e *ExitError) Error() string { return e.Err.Error() }

func (e *ExitError) Unwrap() error { return e.Err }

// WithCode wraps err so the CLI exits with code.
func WithCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &ExitError{Code: code, Err: err}
}

// Reported wraps err like WithCode but marks it as already shown to the
// user, so Execute does not print it again.
func Reported(code int, err error) error {
	if err == nil {
		return nil
	}
	return &ExitError{Code: code, Err: err, Silent: true}
}

// IsReported reports whether err was already shown to the user.
func IsReported(err error) bool {
	var exitErr *ExitError
	return errors.As(err, &exitErr) && exitErr.Silent
}

// ExitCode returns the exit code err carries, or ExitUserError.
func ExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitUserError
}

// JSONResult is the standard JSON output envelope for all commands.
type JSONResult struct {
	OK      bool        `json:"ok"`
	Command string      `json:"command"`
	Version string      `json:"version"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Code    int         `json:"code,omitempty"`
}

// PrintJSON writes a standard success JSON result to stdout.
func PrintJSON(cmd string, data interface{}) error {
	return WriteJSON(os.Stdout, JSONResult{
		OK:      true,
		Command: cmd,
		Version: version.Version,
		Data:    data,
	})
}

// PrintJSONError writes a standard error JSON result to stdout. Data may
// carry a partial result, such as the report of a run that extracted
// nothing.
func PrintJSONError(cmd string, err error, code int, data interface{}) error {
	result := JSONResult{
		OK:      false,
		Command: cmd,
		Version: version.Version,
		Data:    data,
		Error:   err.Error(),
		Code:    code,
	}
	if encErr := WriteJSON(os.Stdout, result); encErr != nil {
		return fmt.Errorf("could not encode JSON error: %w", encErr)
	}
	return nil
}

// WriteJSON encodes v as indented JSON.
func WriteJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
