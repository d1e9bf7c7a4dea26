package rootfile

import "fmt"

// ExecutorError indicates an elevated operation without an executor.
type ExecutorError struct{}

func (ExecutorError) Error() string {
	return "executor is required for elevated file operations"
}

// PathError captures invalid destination paths.
type PathError struct {
	Path   string
	Reason string
}

func (e PathError) Error() string {
	return fmt.Sprintf("invalid path %q: %s", e.Path, e.Reason)
}

// StageError wraps failures writing the local staging copy.
type StageError struct {
	Path string
	Err  error
}

func (e StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Path, e.Err)
}

func (e StageError) Unwrap() error {
	return e.Err
}

// ScratchDirError rejects a staging directory that is not private to this user.
type ScratchDirError struct {
	Dir    string
	Reason string
}

func (e ScratchDirError) Error() string {
	return fmt.Sprintf("scratch directory %s %s", e.Dir, e.Reason)
}

// WriteError wraps failures installing, removing or copying a protected file.
type WriteError struct {
	Path string
	Err  error
}

func (e WriteError) Error() string {
	return fmt.Sprintf("write %s: %v", e.Path, e.Err)
}

func (e WriteError) Unwrap() error {
	return e.Err
}

// ReadError wraps failures reading a protected file.
type ReadError struct {
	Path string
	Err  error
}

func (e ReadError) Error() string {
	return fmt.Sprintf("read %s: %v", e.Path, e.Err)
}

func (e ReadError) Unwrap() error {
	return e.Err
}
