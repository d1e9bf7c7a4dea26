package pkginstaller

import (
	"context"
	"strings"

	"github.com/BrianJOC/host-harden/utils/distro"
	"github.com/BrianJOC/host-harden/utils/rootexec"
)

// Executor runs privileged argv commands.
type Executor interface {
	Run(ctx context.Context, argv []string, opts ...rootexec.RunOption) (*rootexec.Result, error)
}

// Result reports actions taken for one package.
type Result struct {
	PackageName string
	Installed   bool
	Removed     bool
	Skipped     bool
}

// Option configures Ensure behavior.
type Option func(*options) error

type options struct {
	force bool
}

// WithForce installs even when the package is already present.
func WithForce() Option {
	return func(opts *options) error {
		opts.force = true
		return nil
	}
}

// Installer drives the host's native package manager.
type Installer struct {
	exec    Executor
	manager distro.PackageManager
	indexed bool
}

// New returns an Installer for manager.
func New(exec Executor, manager distro.PackageManager) *Installer {
	return &Installer{exec: exec, manager: manager}
}

// Manager returns the package manager in use.
func (i *Installer) Manager() distro.PackageManager {
	return i.manager
}

// Installed reports whether pkg is installed. It only queries.
func (i *Installer) Installed(ctx context.Context, pkg string) (bool, error) {
	if err := i.ready([]string{pkg}); err != nil {
		return false, err
	}
	argv, err := checkCommand(i.manager, pkg)
	if err != nil {
		return false, err
	}
	res, err := i.exec.Run(ctx, argv, rootexec.Capture(), rootexec.AllowFail())
	if err != nil {
		return false, CommandError{Step: "check " + pkg, Err: err}
	}
	if !res.Success() {
		return false, nil
	}
	if i.manager == distro.Apt {
		return strings.Contains(res.Stdout, "install ok installed"), nil
	}
	return true, nil
}

// Ensure installs every missing package in a single transaction.
func (i *Installer) Ensure(ctx context.Context, packages []string, opts ...Option) ([]Result, error) {
	if err := i.ready(packages); err != nil {
		return nil, err
	}

	config := options{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&config); err != nil {
			return nil, err
		}
	}

	results := make([]Result, 0, len(packages))
	var missing []string
	for _, pkg := range packages {
		result := Result{PackageName: pkg}
		if !config.force {
			ok, err := i.Installed(ctx, pkg)
			if err != nil {
				return nil, err
			}
			if ok {
				result.Skipped = true
				results = append(results, result)
				continue
			}
		}
		missing = append(missing, pkg)
		results = append(results, result)
	}
	if len(missing) == 0 {
		return results, nil
	}

	if err := i.refreshIndex(ctx); err != nil {
		return nil, err
	}
	argv, err := installCommand(i.manager, missing)
	if err != nil {
		return nil, err
	}
	if _, err := i.exec.Run(ctx, argv); err != nil {
		return nil, CommandError{Step: "install " + strings.Join(missing, " "), Err: err}
	}

	for idx := range results {
		if !results[idx].Skipped {
			results[idx].Installed = true
		}
	}
	return results, nil
}

// Remove uninstalls packages that are present.
func (i *Installer) Remove(ctx context.Context, packages []string) ([]Result, error) {
	if err := i.ready(packages); err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(packages))
	var present []string
	for _, pkg := range packages {
		ok, err := i.Installed(ctx, pkg)
		if err != nil {
			return nil, err
		}
		results = append(results, Result{PackageName: pkg, Skipped: !ok, Removed: ok})
		if ok {
			present = append(present, pkg)
		}
	}
	if len(present) == 0 {
		return results, nil
	}

	argv, err := removeCommand(i.manager, present)
	if err != nil {
		return nil, err
	}
	if _, err := i.exec.Run(ctx, argv); err != nil {
		return nil, CommandError{Step: "remove " + strings.Join(present, " "), Err: err}
	}
	return results, nil
}

func (i *Installer) ready(packages []string) error {
	if i == nil || i.exec == nil {
		return RunnerError{}
	}
	if len(packages) == 0 {
		return ValidationError{Reason: "at least one package is required"}
	}
	for _, pkg := range packages {
		if strings.TrimSpace(pkg) == "" || strings.HasPrefix(pkg, "-") {
			return ValidationError{Reason: "invalid package name " + `"` + pkg + `"`}
		}
	}
	if i.manager == distro.None || i.manager == "" {
		return NoPackageManagerError{Packages: packages}
	}
	return nil
}

func (i *Installer) refreshIndex(ctx context.Context) error {
	if i.indexed || i.manager != distro.Apt {
		return nil
	}
	if _, err := i.exec.Run(ctx, []string{"apt-get", "update"}); err != nil {
		return CommandError{Step: "apt-get update", Err: err}
	}
	i.indexed = true
	return nil
}

func checkCommand(pm distro.PackageManager, pkg string) ([]string, error) {
	switch pm {
	case distro.Apt:
		return []string{"dpkg-query", "-W", "-f=${Status}", pkg}, nil
	case distro.Dnf, distro.Yum, distro.Zypper:
		return []string{"rpm", "-q", pkg}, nil
	case distro.Pacman:
		return []string{"pacman", "-Q", pkg}, nil
	default:
		return nil, UnsupportedManagerError{Manager: pm}
	}
}

func installCommand(pm distro.PackageManager, packages []string) ([]string, error) {
	var argv []string
	switch pm {
	case distro.Apt:
		argv = []string{"env", "DEBIAN_FRONTEND=noninteractive", "apt-get", "install", "-y"}
	case distro.Dnf:
		argv = []string{"dnf", "install", "-y"}
	case distro.Yum:
		argv = []string{"yum", "install", "-y"}
	case distro.Pacman:
		argv = []string{"pacman", "-S", "--noconfirm", "--needed"}
	case distro.Zypper:
		argv = []string{"zypper", "--non-interactive", "install"}
	default:
		return nil, UnsupportedManagerError{Manager: pm}
	}
	return append(argv, packages...), nil
}

func removeCommand(pm distro.PackageManager, packages []string) ([]string, error) {
	var argv []string
	switch pm {
	case distro.Apt:
		argv = []string{"env", "DEBIAN_FRONTEND=noninteractive", "apt-get", "remove", "-y"}
	case distro.Dnf:
		argv = []string{"dnf", "remove", "-y"}
	case distro.Yum:
		argv = []string{"yum", "remove", "-y"}
	case distro.Pacman:
		argv = []string{"pacman", "-R", "--noconfirm"}
	case distro.Zypper:
		argv = []string{"zypper", "--non-interactive", "remove"}
	default:
		return nil, UnsupportedManagerError{Manager: pm}
	}
	return append(argv, packages...), nil
}
