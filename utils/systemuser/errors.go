package systemuser

import (
	"fmt"
)

// RunnerError indicates EnsureUser was invoked without an executor or file store.
type RunnerError struct{}

func (RunnerError) Error() string {
	return "executor and file store are required"
}

// ValidationError captures bad input values passed to EnsureUser.
type ValidationError struct {
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("user validation failed: %s", e.Reason)
}

// OptionError represents invalid option values.
type OptionError struct {
	Reason string
}

func (e OptionError) Error() string {
	return fmt.Sprintf("option error: %s", e.Reason)
}

// CommandError wraps a failed provisioning step.
type CommandError struct {
	Step string
	Err  error
}

func (e CommandError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Step, e.Err)
}

func (e CommandError) Unwrap() error {
	return e.Err
}
