package model

import "fmt"

// ExitCode defines the process exit codes of the dynaport CLI.
// Scripts can rely on them to tell "no port" apart from "cannot bind at all".
type ExitCode int

const (
	// ExitSuccess indicates the command completed successfully.
	ExitSuccess ExitCode = 0

	// ExitGeneralError indicates an unspecified error occurred.
	ExitGeneralError ExitCode = 1

	// ExitInvalidConfig indicates a bad configuration file or flag value.
	ExitInvalidConfig ExitCode = 2

	// ExitDockerNotRunning indicates the Docker daemon is not accessible.
	// Only reachable with --exclude-docker.
	ExitDockerNotRunning ExitCode = 3

	// ExitNoPortAvailable indicates the search finished without finding a
	// free port (retry bound exhausted or not enough free ports).
	ExitNoPortAvailable ExitCode = 4

	// ExitBindFailed indicates a bind probe failed for a reason other than
	// the port being in use (permission denied, resource exhaustion, bad
	// address).
	ExitBindFailed ExitCode = 5
)

// CLIError is a custom error type that carries an exit code.
// This allows the CLI layer to translate domain errors into
// appropriate process exit codes.
type CLIError struct {
	// Code is the exit code to return to the OS.
	Code ExitCode

	// Message is the human-readable error description.
	Message string

	// Err is the underlying error, if any.
	Err error
}

// Error satisfies the error interface. It returns the human-readable
// error message, optionally including the underlying error.
func (e *CLIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *CLIError) Unwrap() error {
	return e.Err
}

// NewCLIError creates a new CLIError with the given exit code and message.
func NewCLIError(code ExitCode, message string) *CLIError {
	return &CLIError{Code: code, Message: message}
}

// WrapCLIError creates a new CLIError that wraps an existing error.
func WrapCLIError(code ExitCode, message string, err error) *CLIError {
	return &CLIError{Code: code, Message: message, Err: err}
}
