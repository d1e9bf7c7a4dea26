package phases

import (
	"context"

	"go.uber.org/zap"

	"github.com/BrianJOC/host-harden/utils/distro"
	"github.com/BrianJOC/host-harden/utils/pkginstaller"
	"github.com/BrianJOC/host-harden/utils/privilege"
	"github.com/BrianJOC/host-harden/utils/rootexec"
	"github.com/BrianJOC/host-harden/utils/rootfile"
)

// ExecutionContext is computed once before any phase runs and never changes.
type ExecutionContext struct {
	IsRoot         bool
	UseElevation   bool
	ElevationTool  string
	PackageManager distro.PackageManager
	AdminGroup     string
	Distro         distro.Info
}

// PrivilegeResolver decides how privileged commands run.
type PrivilegeResolver interface {
	Ensure(ctx context.Context) (*privilege.Resolution, error)
}

// DistroDetector identifies the host distribution.
type DistroDetector interface {
	Detect() (*distro.Info, error)
}

// BuildExecutionContext resolves privilege and distro once. Any failure is a
// ConfigurationError: no phase can run safely without both.
func BuildExecutionContext(ctx context.Context, resolver PrivilegeResolver, detector DistroDetector) (ExecutionContext, error) {
	if resolver == nil || detector == nil {
		return ExecutionContext{}, ConfigurationError{Reason: "privilege resolver and distro detector are required"}
	}

	res, err := resolver.Ensure(ctx)
	if err != nil {
		return ExecutionContext{}, ConfigurationError{Reason: "cannot obtain root privileges", Err: err}
	}
	info, err := detector.Detect()
	if err != nil {
		return ExecutionContext{}, ConfigurationError{Reason: "cannot identify distribution", Err: err}
	}

	return ExecutionContext{
		IsRoot:         res.IsRoot,
		UseElevation:   res.UseElevation,
		ElevationTool:  res.Tool,
		PackageManager: info.PackageManager,
		AdminGroup:     info.AdminGroup,
		Distro:         *info,
	}, nil
}

// Executor runs argv commands, elevated when required.
type Executor interface {
	Run(ctx context.Context, argv []string, opts ...rootexec.RunOption) (*rootexec.Result, error)
}

// FileStore reads and writes root-owned files.
type FileStore interface {
	Read(ctx context.Context, path string) (string, bool, error)
	Exists(ctx context.Context, path string) (bool, error)
	Write(ctx context.Context, path string, content []byte, opts ...rootfile.WriteOption) error
	Remove(ctx context.Context, path string) error
	Backup(ctx context.Context, path string) (string, error)
}

// PackageInstaller drives the native package manager.
type PackageInstaller interface {
	Installed(ctx context.Context, pkg string) (bool, error)
	Ensure(ctx context.Context, packages []string, opts ...pkginstaller.Option) ([]pkginstaller.Result, error)
	Remove(ctx context.Context, packages []string) ([]pkginstaller.Result, error)
}

// Env is everything a phase body may use to observe or change the host.
type Env struct {
	Context  ExecutionContext
	Exec     Executor
	Files    FileStore
	Packages PackageInstaller
	Logger   *zap.Logger
}

// NewEnv wires the standard executor, file writer and installer for ec.
// execOpts are applied after the defaults.
func NewEnv(ec ExecutionContext, runner rootexec.Runner, scratchDir string, logger *zap.Logger, execOpts ...rootexec.Option) *Env {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := []rootexec.Option{rootexec.WithLogger(logger)}
	fileOpts := []rootfile.Option{rootfile.WithScratchDir(scratchDir)}
	if ec.UseElevation {
		tool := ec.ElevationTool
		if tool == "" {
			tool = privilege.DefaultTool
		}
		opts = append(opts, rootexec.WithElevation(tool))
		fileOpts = append(fileOpts, rootfile.WithElevation())
	}
	exec := rootexec.New(runner, append(opts, execOpts...)...)
	return &Env{
		Context:  ec,
		Exec:     exec,
		Files:    rootfile.New(exec, fileOpts...),
		Packages: pkginstaller.New(exec, ec.PackageManager),
		Logger:   logger,
	}
}

// Query runs a read-only probe; a non-zero exit is reported in the result.
func (e *Env) Query(ctx context.Context, argv ...string) (*rootexec.Result, error) {
	return e.Exec.Run(ctx, argv, rootexec.Capture(), rootexec.AllowFail())
}

// Log returns the env logger or a no-op logger.
func (e *Env) Log() *zap.Logger {
	if e == nil || e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}
