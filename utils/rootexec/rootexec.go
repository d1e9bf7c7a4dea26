package rootexec

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"strings"

	"go.uber.org/zap"
)

// Command is a single process invocation. Argv is passed to the OS as discrete
// tokens; no shell ever sees it.
type Command struct {
	Argv   []string
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// Runner starts processes and reports their exit status. A non-nil error means
// the process could not be run at all.
type Runner interface {
	Run(ctx context.Context, cmd Command) (exitCode int, err error)
}

// OSRunner runs commands with os/exec.
type OSRunner struct{}

// Run implements Runner.
func (OSRunner) Run(ctx context.Context, cmd Command) (int, error) {
	if len(cmd.Argv) == 0 {
		return -1, ArgvError{}
	}
	c := exec.CommandContext(ctx, cmd.Argv[0], cmd.Argv[1:]...)
	c.Stdin = cmd.Stdin
	c.Stdout = cmd.Stdout
	c.Stderr = cmd.Stderr
	err := c.Run()
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return -1, err
}

// Result is what a finished command produced. Stdout/Stderr are only
// populated when the output was captured.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Success reports a zero exit status.
func (r *Result) Success() bool {
	return r != nil && r.ExitCode == 0
}

// RunOption tunes a single Run call.
type RunOption func(*runOptions)

type runOptions struct {
	stdin     string
	hasStdin  bool
	capture   bool
	allowFail bool
}

// WithStdin pipes content into the command.
func WithStdin(content string) RunOption {
	return func(o *runOptions) {
		o.stdin = content
		o.hasStdin = true
	}
}

// Capture collects stdout/stderr instead of streaming them to the terminal.
func Capture() RunOption {
	return func(o *runOptions) {
		o.capture = true
	}
}

// AllowFail returns the exit status instead of an ExecutionError.
func AllowFail() RunOption {
	return func(o *runOptions) {
		o.allowFail = true
	}
}

// Executor runs commands, elevating them when the process is not root.
type Executor struct {
	runner  Runner
	elevate bool
	tool    string
	stdout  io.Writer
	stderr  io.Writer
	logger  *zap.Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithElevation prefixes every command with tool (for example "sudo").
func WithElevation(tool string) Option {
	return func(e *Executor) {
		tool = strings.TrimSpace(tool)
		if tool == "" {
			return
		}
		e.elevate = true
		e.tool = tool
	}
}

// WithOutput overrides where uncaptured output is streamed.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(e *Executor) {
		if stdout != nil {
			e.stdout = stdout
		}
		if stderr != nil {
			e.stderr = stderr
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// New creates an Executor backed by runner (OSRunner when nil).
func New(runner Runner, opts ...Option) *Executor {
	if runner == nil {
		runner = OSRunner{}
	}
	e := &Executor{
		runner: runner,
		stdout: os.Stdout,
		stderr: os.Stderr,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(e)
	}
	return e
}

// Elevated reports whether commands are prefixed with an elevation tool.
func (e *Executor) Elevated() bool {
	return e.elevate
}

// Run executes argv. Without AllowFail a non-zero exit becomes an ExecutionError.
func (e *Executor) Run(ctx context.Context, argv []string, opts ...RunOption) (*Result, error) {
	if len(argv) == 0 || strings.TrimSpace(argv[0]) == "" {
		return nil, ArgvError{}
	}

	var o runOptions
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&o)
	}

	full := e.command(argv)
	cmd := Command{Argv: full}
	var stdout, stderr bytes.Buffer
	if o.capture {
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
	} else {
		cmd.Stdout = e.stdout
		cmd.Stderr = e.stderr
	}
	if o.hasStdin {
		cmd.Stdin = strings.NewReader(o.stdin)
	}

	e.logger.Debug("running command", zap.Strings("argv", full), zap.Bool("capture", o.capture))
	code, err := e.runner.Run(ctx, cmd)
	if err != nil {
		return nil, StartError{Argv: full, Err: err}
	}

	res := &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: code,
	}
	if code != 0 && !o.allowFail {
		e.logger.Debug("command failed", zap.Strings("argv", full), zap.Int("exit_code", code))
		return res, ExecutionError{Argv: full, ExitCode: code, Message: failureMessage(res)}
	}
	return res, nil
}

// Query runs a read-only probe: output is captured and failure is tolerated.
func (e *Executor) Query(ctx context.Context, argv ...string) (*Result, error) {
	return e.Run(ctx, argv, Capture(), AllowFail())
}

func (e *Executor) command(argv []string) []string {
	if !e.elevate {
		return append([]string(nil), argv...)
	}
	full := make([]string, 0, len(argv)+1)
	full = append(full, e.tool)
	return append(full, argv...)
}

func failureMessage(res *Result) string {
	if msg := strings.TrimSpace(res.Stderr); msg != "" {
		return msg
	}
	if msg := strings.TrimSpace(res.Stdout); msg != "" {
		return msg
	}
	return "command failed"
}
