package model

import (
	"errors"
	"fmt"
)

// Sentinel errors for the failure taxonomy of the core. Call sites wrap
// them with fmt.Errorf("%w: ...") so callers can match with errors.Is while
// still getting the container and path in the message.
var (
	// ErrContainerOpen means an archive could not be opened or parsed.
	// It aborts loading of that archive only.
	ErrContainerOpen = errors.New("cannot open container")

	// ErrDuplicateContainer means a container with the same name is
	// already registered. The second registration is a no-op.
	ErrDuplicateContainer = errors.New("container already registered")

	// ErrContainerNotFound means no container with the requested name is
	// registered.
	ErrContainerNotFound = errors.New("container not found")

	// ErrEntryNotFound means an archive has no entry at the requested path.
	ErrEntryNotFound = errors.New("entry not found")

	// ErrClassNotFound means the requested path is not a class of the
	// container.
	ErrClassNotFound = errors.New("class not found")

	// ErrDecompile means the decompiler failed for a class. Matched by
	// every *DecompileError.
	ErrDecompile = errors.New("decompilation failed")

	// ErrInvalidClassFile means the bytes handed to a decompiler do not
	// start with the class-file magic number.
	ErrInvalidClassFile = errors.New("invalid class file")
)

// DecompileError describes a failed decompilation. It is cached by the
// decompilation cache as a stable negative result, so the same value is
// returned for every later request of the same class.
type DecompileError struct {
	// Container and Path identify the class that failed.
	Container string
	Path      string

	// Output holds whatever diagnostic text the decompiler produced
	// (stderr of an external tool, for example). May be empty.
	Output string

	// Err is the underlying cause.
	Err error
}

// Error satisfies the error interface.
func (e *DecompileError) Error() string {
	msg := fmt.Sprintf("decompile %s in %s", e.Path, e.Container)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *DecompileError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrDecompile) true for every DecompileError.
func (e *DecompileError) Is(target error) bool {
	return target == ErrDecompile
}

// ExitCode defines the process exit codes of the CLI. Scripts can rely on
// them to tell a missing archive from a failed decompilation.
type ExitCode int

const (
	// ExitSuccess indicates the command completed successfully.
	ExitSuccess ExitCode = 0

	// ExitGeneralError indicates an unspecified error occurred.
	ExitGeneralError ExitCode = 1

	// ExitContainerOpenFailed indicates an archive could not be opened.
	ExitContainerOpenFailed ExitCode = 2

	// ExitDuplicateContainer indicates the same archive name was given twice.
	ExitDuplicateContainer ExitCode = 3

	// ExitNotFound indicates a container or class does not exist.
	ExitNotFound ExitCode = 4

	// ExitDecompileFailed indicates the decompiler could not process a class.
	ExitDecompileFailed ExitCode = 5

	// ExitDockerNotRunning indicates the Docker daemon is not accessible
	// while the docker decompiler backend is selected.
	ExitDockerNotRunning ExitCode = 6

	// ExitInvalidConfig indicates the configuration file or flags are invalid.
	ExitInvalidConfig ExitCode = 7
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

// ExitCodeFor maps a core error to the exit code the CLI reports for it.
// Errors that already are CLIErrors keep their own code.
func ExitCodeFor(err error) ExitCode {
	var cliErr *CLIError
	switch {
	case err == nil:
		return ExitSuccess
	case errors.As(err, &cliErr):
		return cliErr.Code
	case errors.Is(err, ErrContainerOpen):
		return ExitContainerOpenFailed
	case errors.Is(err, ErrDuplicateContainer):
		return ExitDuplicateContainer
	case errors.Is(err, ErrContainerNotFound),
		errors.Is(err, ErrClassNotFound),
		errors.Is(err, ErrEntryNotFound):
		return ExitNotFound
	case errors.Is(err, ErrDecompile), errors.Is(err, ErrInvalidClassFile):
		return ExitDecompileFailed
	default:
		return ExitGeneralError
	}
}
