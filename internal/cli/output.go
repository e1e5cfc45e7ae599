package cli

import (
	"errors"
	"fmt"
	"io"

	jsoniter "github.com/json-iterator/go"

	"github.com/SouthernStars/book-manage-system/lending"
)

// Exit codes for lendingctl.
const (
	ExitSuccess      = 0 // Command succeeded
	ExitFailure      = 1 // The lending core rejected the request (no copy available, already returned, ...)
	ExitCommandError = 2 // Bad arguments, bad configuration, unreachable database
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// ExitError carries the process exit code for err.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

func commandError(format string, args ...any) *ExitError {
	return &ExitError{Code: ExitCommandError, Err: fmt.Errorf(format, args...)}
}

// GetExitCode extracts the exit code from err. Domain failures map to ExitFailure,
// anything else not carrying a code to ExitCommandError.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}

	if _, ok := lending.AsError(err); ok {
		return ExitFailure
	}

	return ExitCommandError
}

// printJSON writes v as indented JSON followed by a newline.
func printJSON(w io.Writer, v any) error {
	data, err := jsonAPI.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}

	_, err = fmt.Fprintln(w, string(data))

	return err
}
