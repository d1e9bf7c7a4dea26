package phases

import (
	"errors"
	"fmt"
)

// ErrDeclined is returned by an InputSource when the operator skips a prompt.
var ErrDeclined = errors.New("declined by operator")

// DuplicatePhaseError occurs when a phase with an existing key is registered.
type DuplicatePhaseError struct {
	Key Key
}

func (e DuplicatePhaseError) Error() string {
	return fmt.Sprintf("phase with key %q already registered", e.Key)
}

// UnknownPhaseError reports a key outside the known set or missing from a registry.
type UnknownPhaseError struct {
	Key string
}

func (e UnknownPhaseError) Error() string {
	return fmt.Sprintf("unknown phase %q", e.Key)
}

// ValidationError reports input that failed a presence or format check.
// Nothing has touched the host when one is returned.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("phase validation failed: %s", e.Reason)
	}
	if e.Value == "" {
		return fmt.Sprintf("invalid --%s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid --%s %q: %s", e.Field, e.Value, e.Reason)
}

// ConfigurationError means the environment cannot support the operation at all.
type ConfigurationError struct {
	Reason string
	Err    error
}

func (e ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("configuration error: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("configuration error: %s", e.Reason)
}

func (e ConfigurationError) Unwrap() error {
	return e.Err
}

// PhaseExecutionError wraps failures emitted by a specific phase.
type PhaseExecutionError struct {
	Phase PhaseMetadata
	Err   error
}

func (e PhaseExecutionError) Error() string {
	return fmt.Sprintf("phase %s failed: %v", e.Phase.Key, e.Err)
}

func (e PhaseExecutionError) Unwrap() error {
	return e.Err
}
