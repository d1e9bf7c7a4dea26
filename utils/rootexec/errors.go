package rootexec

import (
	"fmt"
	"strings"
)

// ArgvError indicates an empty command vector.
type ArgvError struct{}

func (ArgvError) Error() string {
	return "command vector must not be empty"
}

// StartError wraps failures to launch a process at all (missing binary, cancelled context).
type StartError struct {
	Argv []string
	Err  error
}

func (e StartError) Error() string {
	return fmt.Sprintf("start %s: %v", quoteArgv(e.Argv), e.Err)
}

func (e StartError) Unwrap() error {
	return e.Err
}

// ExecutionError reports a command that exited non-zero.
type ExecutionError struct {
	Argv     []string
	ExitCode int
	Message  string
}

func (e ExecutionError) Error() string {
	return fmt.Sprintf("%s exited %d: %s", quoteArgv(e.Argv), e.ExitCode, e.Message)
}

func quoteArgv(argv []string) string {
	parts := make([]string, len(argv))
	for i, arg := range argv {
		if arg == "" || strings.ContainsAny(arg, " \t\n'\"\\;&|$`<>()*?") {
			parts[i] = fmt.Sprintf("%q", arg)
			continue
		}
		parts[i] = arg
	}
	return "[" + strings.Join(parts, " ") + "]"
}
