package pkginstaller

import (
	"fmt"
	"strings"

	"github.com/BrianJOC/host-harden/utils/distro"
)

// RunnerError indicates the installer was built without an executor.
type RunnerError struct{}

func (RunnerError) Error() string {
	return "executor is required"
}

// ValidationError captures invalid package inputs.
type ValidationError struct {
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("package validation failed: %s", e.Reason)
}

// NoPackageManagerError reports a host where no supported package manager was detected.
type NoPackageManagerError struct {
	Packages []string
}

func (e NoPackageManagerError) Error() string {
	return fmt.Sprintf("cannot install %s: no supported package manager detected", strings.Join(e.Packages, ", "))
}

// UnsupportedManagerError reports a manager value outside the known set.
type UnsupportedManagerError struct {
	Manager distro.PackageManager
}

func (e UnsupportedManagerError) Error() string {
	return fmt.Sprintf("unsupported package manager %q", e.Manager)
}

// CommandError wraps package manager failures.
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
