package privilege

import (
	"fmt"
	"strings"
)

// RunnerError indicates the resolver was built without a process runner.
type RunnerError struct{}

func (RunnerError) Error() string {
	return "runner is required"
}

// SudoPermissionError indicates the current user is not allowed to use the elevation tool.
type SudoPermissionError struct {
	Tool   string
	Stderr string
}

func (e SudoPermissionError) Error() string {
	return fmt.Sprintf("%s permission denied: %s", e.Tool, strings.TrimSpace(e.Stderr))
}

// SudoNotInstalledError indicates the elevation tool is missing from PATH.
type SudoNotInstalledError struct {
	Tool string
	Err  error
}

func (e SudoNotInstalledError) Error() string {
	return fmt.Sprintf("%s not installed: %v", e.Tool, e.Err)
}

func (e SudoNotInstalledError) Unwrap() error {
	return e.Err
}

// SudoAuthenticationError reports a failed credential validation probe.
type SudoAuthenticationError struct {
	Tool     string
	ExitCode int
	Stderr   string
}

func (e SudoAuthenticationError) Error() string {
	if msg := strings.TrimSpace(e.Stderr); msg != "" {
		return fmt.Sprintf("%s authentication failed (exit %d): %s", e.Tool, e.ExitCode, msg)
	}
	return fmt.Sprintf("%s authentication failed (exit %d)", e.Tool, e.ExitCode)
}

// SudoUnknownError surfaces probe failures that are not exit statuses.
type SudoUnknownError struct {
	Tool string
	Err  error
}

func (e SudoUnknownError) Error() string {
	return fmt.Sprintf("%s probe failed: %v", e.Tool, e.Err)
}

func (e SudoUnknownError) Unwrap() error {
	return e.Err
}
