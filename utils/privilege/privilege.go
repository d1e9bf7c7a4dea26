package privilege

import (
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"
	"strings"

	"go.uber.org/zap"

	"github.com/BrianJOC/host-harden/utils/rootexec"
)

// DefaultTool is the elevation tool used when the process is not root.
const DefaultTool = "sudo"

// Resolution records how privileged commands must be run for the rest of the process.
type Resolution struct {
	IsRoot       bool
	UseElevation bool
	Tool         string
}

// Resolver decides whether elevation is needed and validates it up front.
type Resolver struct {
	runner   rootexec.Runner
	geteuid  func() int
	lookPath func(string) (string, error)
	tool     string
	stdin    io.Reader
	stdout   io.Writer
	stderr   io.Writer
	logger   *zap.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithTool overrides the elevation tool.
func WithTool(tool string) Option {
	return func(r *Resolver) {
		if tool = strings.TrimSpace(tool); tool != "" {
			r.tool = tool
		}
	}
}

// WithEUID injects the effective uid lookup.
func WithEUID(fn func() int) Option {
	return func(r *Resolver) {
		if fn != nil {
			r.geteuid = fn
		}
	}
}

// WithLookPath injects the executable probe.
func WithLookPath(fn func(string) (string, error)) Option {
	return func(r *Resolver) {
		if fn != nil {
			r.lookPath = fn
		}
	}
}

// WithTerminal overrides the streams handed to the credential prompt.
func WithTerminal(stdin io.Reader, stdout, stderr io.Writer) Option {
	return func(r *Resolver) {
		r.stdin = stdin
		r.stdout = stdout
		r.stderr = stderr
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewResolver builds a Resolver around runner.
func NewResolver(runner rootexec.Runner, opts ...Option) *Resolver {
	r := &Resolver{
		runner:   runner,
		geteuid:  os.Geteuid,
		lookPath: exec.LookPath,
		tool:     DefaultTool,
		stdin:    os.Stdin,
		stdout:   os.Stdout,
		stderr:   os.Stderr,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(r)
	}
	return r
}

// Ensure returns immediately for root. Otherwise it requires the elevation tool
// and validates cached credentials, prompting on the operator's terminal once.
func (r *Resolver) Ensure(ctx context.Context) (*Resolution, error) {
	if r.geteuid() == 0 {
		r.logger.Debug("running as root; elevation disabled")
		return &Resolution{IsRoot: true}, nil
	}
	if r.runner == nil {
		return nil, RunnerError{}
	}

	if _, err := r.lookPath(r.tool); err != nil {
		return nil, SudoNotInstalledError{Tool: r.tool, Err: err}
	}

	// Cached or passwordless credentials need no prompt.
	code, err := r.runner.Run(ctx, rootexec.Command{Argv: []string{r.tool, "-n", "true"}})
	if err == nil && code == 0 {
		r.logger.Debug("elevation credentials already cached", zap.String("tool", r.tool))
		return &Resolution{UseElevation: true, Tool: r.tool}, nil
	}

	if err := r.validate(ctx); err != nil {
		return nil, err
	}
	return &Resolution{UseElevation: true, Tool: r.tool}, nil
}

func (r *Resolver) validate(ctx context.Context) error {
	var captured bytes.Buffer
	stderr := io.Writer(&captured)
	if r.stderr != nil {
		stderr = io.MultiWriter(r.stderr, &captured)
	}

	code, err := r.runner.Run(ctx, rootexec.Command{
		Argv:   []string{r.tool, "-v"},
		Stdin:  r.stdin,
		Stdout: r.stdout,
		Stderr: stderr,
	})
	if err != nil {
		return SudoUnknownError{Tool: r.tool, Err: err}
	}
	if code == 0 {
		return nil
	}

	msg := captured.String()
	if strings.Contains(msg, "is not in the sudoers file") || strings.Contains(msg, "may not run sudo") {
		return SudoPermissionError{Tool: r.tool, Stderr: msg}
	}
	return SudoAuthenticationError{Tool: r.tool, ExitCode: code, Stderr: msg}
}
