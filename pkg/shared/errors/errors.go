package errors

import "fmt"

// Exit codes of the buildfix CLI.
const (
	ExitOK          = 0
	ExitToolError   = 1
	ExitPolicyBlock = 2
)

// CommandError carries an exit code alongside the error. The root command
// maps it onto the process exit status.
type CommandError struct {
	ExitCode    int
	CommonError string
}

// Error implements the error interface, returning the underlying message.
func (e *CommandError) Error() string {
	return e.CommonError
}

// NewCommandError creates a new CommandError wrapping err with an exit code.
func NewCommandError(err error, code int) *CommandError {
	return &CommandError{
		ExitCode:    code,
		CommonError: err.Error(),
	}
}

// NewPolicyBlockError marks a run that completed but was gated by policy.
func NewPolicyBlockError(what string) *CommandError {
	return &CommandError{
		ExitCode:    ExitPolicyBlock,
		CommonError: fmt.Sprintf("policy block: %s", what),
	}
}
