package ufw

import "fmt"

// CommandError wraps a failed ufw invocation.
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

// LevelError reports a logging level ufw does not accept.
type LevelError struct {
	Level string
}

func (e LevelError) Error() string {
	return fmt.Sprintf("unsupported ufw logging level %q", e.Level)
}
