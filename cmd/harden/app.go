package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"

	"github.com/BrianJOC/host-harden/phases"
	"github.com/BrianJOC/host-harden/pkg/phasedapp/bundles/hardening"
	"github.com/BrianJOC/host-harden/pkg/prompt"
	"github.com/BrianJOC/host-harden/utils/distro"
	"github.com/BrianJOC/host-harden/utils/privilege"
	"github.com/BrianJOC/host-harden/utils/rootexec"
	"github.com/BrianJOC/host-harden/utils/settings"
)

// prompter answers phase inputs and picks phases from the menu.
type prompter interface {
	phases.InputHandler
	Menu(metas []phases.PhaseMetadata, status map[phases.Key]string) (phases.Key, bool, error)
}

// app carries everything the commands share. Env is built lazily so that
// input validation never waits on privilege acquisition.
type app struct {
	v        *viper.Viper
	settings settings.Settings
	setErr   error
	registry *phases.Registry
	logger   *zap.Logger

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	// execOutput receives streamed command output; nil means the terminal.
	execOutput io.Writer

	bootstrap   func(ctx context.Context) (*phases.Env, error)
	newPrompter func() prompter
	terminal    func() bool
	env         *phases.Env
}

func newApp(stdin io.Reader, stdout, stderr io.Writer) *app {
	s, err := settings.Load()
	if err != nil {
		s, _ = settings.LoadFrom(map[string]string{})
	}
	registry, regErr := hardening.Registry(hardening.WithSudoersDir(s.SudoersDir))
	if regErr != nil {
		err = errors.Join(err, regErr)
	}

	v := viper.New()
	v.SetEnvPrefix("HARDEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	a := &app{
		v:        v,
		settings: s,
		setErr:   err,
		registry: registry,
		logger:   zap.NewNop(),
		stdin:    stdin,
		stdout:   stdout,
		stderr:   stderr,
	}
	a.bootstrap = a.buildEnv
	a.terminal = func() bool { return isTerminal(a.stdin) }
	a.newPrompter = func() prompter {
		return prompt.New(prompt.WithIO(a.stdin, a.stdout), prompt.WithAccessible(a.v.GetBool("accessible")))
	}
	return a
}

func execute(ctx context.Context, a *app, args []string) int {
	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetIn(a.stdin)
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		printFailure(a.stderr, err)
		return 1
	}
	return 0
}

// setup runs before every command: config file, logger, settings errors.
func (a *app) setup(cmd *cobra.Command) error {
	if a.setErr != nil {
		return phases.ConfigurationError{Reason: "invalid settings", Err: a.setErr}
	}
	if err := a.v.BindPFlags(cmd.Root().PersistentFlags()); err != nil {
		return err
	}
	if err := a.readConfig(); err != nil {
		return err
	}
	logger, err := newLogger(a.v.GetString("log-level"), a.stderr)
	if err != nil {
		return err
	}
	a.logger = logger
	if a.v.GetBool("no-color") {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
	return nil
}

func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// requireTerminal rejects interactive commands when stdin is not a terminal.
func (a *app) requireTerminal() error {
	if a.terminal() {
		return nil
	}
	return phases.ConfigurationError{Reason: `interactive mode needs a terminal; use "harden run" or "harden apply"`}
}

func (a *app) readConfig() error {
	if file := a.v.GetString("config"); file != "" {
		a.v.SetConfigFile(file)
	} else {
		a.v.SetConfigName("harden")
		a.v.SetConfigType("yaml")
		a.v.AddConfigPath("/etc/harden")
		if home, err := os.UserHomeDir(); err == nil {
			a.v.AddConfigPath(filepath.Join(home, ".config", "harden"))
		}
	}
	err := a.v.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	if err != nil && !errors.As(err, &notFound) {
		return phases.ConfigurationError{Reason: "cannot read config file", Err: err}
	}
	return nil
}

func newLogger(level string, w io.Writer) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, phases.ValidationError{Field: "log-level", Value: level, Reason: "expected debug, info, warn or error"}
	}
	encCfg := zap.NewProductionEncoderConfig()
	if lvl == zapcore.DebugLevel {
		encCfg = zap.NewDevelopmentEncoderConfig()
	}
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.Lock(zapcore.AddSync(w)), lvl)
	return zap.New(core), nil
}

// environment builds the Env once per process.
func (a *app) environment(ctx context.Context) (*phases.Env, error) {
	if a.env != nil {
		return a.env, nil
	}
	env, err := a.bootstrap(ctx)
	if err != nil {
		return nil, err
	}
	a.env = env
	return env, nil
}

func (a *app) buildEnv(ctx context.Context) (*phases.Env, error) {
	runner := rootexec.OSRunner{}
	resolver := privilege.NewResolver(runner,
		privilege.WithTool(a.settings.ElevationTool),
		privilege.WithTerminal(a.stdin, a.stdout, a.stderr),
		privilege.WithLogger(a.logger),
	)
	detector := distro.NewDetector(distro.WithOSReleasePath(a.settings.OSReleasePath))

	ec, err := phases.BuildExecutionContext(ctx, resolver, detector)
	if err != nil {
		return nil, err
	}
	a.logger.Debug("execution context ready",
		zap.Bool("root", ec.IsRoot),
		zap.String("elevation", ec.ElevationTool),
		zap.String("package_manager", string(ec.PackageManager)),
		zap.String("distro", ec.Distro.ID),
	)
	var execOpts []rootexec.Option
	if a.execOutput != nil {
		execOpts = append(execOpts, rootexec.WithOutput(a.execOutput, a.execOutput))
	}
	return phases.NewEnv(ec, runner, a.settings.ScratchDir, a.logger, execOpts...), nil
}

func (a *app) runner(env *phases.Env, opts ...phases.RunnerOption) *phases.Runner {
	return phases.NewRunner(a.registry, env, append([]phases.RunnerOption{phases.WithLogger(a.logger)}, opts...)...)
}

// runRequests validates every request before touching the host, then runs
// them in order and stops at the first failure.
func (a *app) runRequests(ctx context.Context, requests []phases.Request) error {
	validator := phases.NewRunner(a.registry, nil)
	for _, req := range requests {
		if err := validator.Validate(ctx, req.Key, req.Source); err != nil {
			if len(requests) > 1 {
				return fmt.Errorf("%s: %w", req.Key, err)
			}
			return err
		}
	}

	env, err := a.environment(ctx)
	if err != nil {
		return err
	}
	for _, outcome := range a.runner(env).RunAll(ctx, requests) {
		if outcome.Failed() {
			return outcomeError{outcome}
		}
		printOutcome(a.stdout, outcome)
	}
	return nil
}

// configValue looks up phases.<key>.<input> in the config file or environment.
func (a *app) configValue(key phases.Key, id string) (string, bool) {
	path := "phases." + string(key) + "." + id
	if !a.v.IsSet(path) {
		return "", false
	}
	switch val := a.v.Get(path).(type) {
	case nil:
		return "", true
	case []any:
		items := make([]string, 0, len(val))
		for _, item := range val {
			items = append(items, fmt.Sprint(item))
		}
		return strings.Join(items, ","), true
	default:
		return fmt.Sprint(val), true
	}
}

type outcomeError struct {
	phases.Outcome
}

func (e outcomeError) Error() string {
	return e.Message
}

func (e outcomeError) Unwrap() error {
	return e.Err
}
