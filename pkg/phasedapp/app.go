// Package phasedapp is a Bubble Tea dashboard that runs hardening phases in
// interactive mode. Prompts raised by the runner are answered inside the
// dashboard, and every phase outcome stays visible until the operator quits.
package phasedapp

import (
	"context"
	"errors"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/BrianJOC/host-harden/phases"
)

var (
	// ErrNoPhases indicates the dashboard was given nothing to run.
	ErrNoPhases = errors.New("phasedapp: at least one phase must be selected")
	// ErrNoEnv indicates the dashboard was built without an execution environment.
	ErrNoEnv = errors.New("phasedapp: execution environment is required")
	// ErrProgramRunning reports that Start was invoked while the program is already running.
	ErrProgramRunning = errors.New("phasedapp: program already running")
)

// PhaseFailedError reports a phase that was still failed when the dashboard closed.
type PhaseFailedError struct {
	Outcome phases.Outcome
}

func (e PhaseFailedError) Error() string {
	return e.Outcome.Message
}

func (e PhaseFailedError) Unwrap() error {
	return e.Outcome.Err
}

// Config controls how an App should be assembled.
type Config struct {
	Registry       *phases.Registry
	Env            *phases.Env
	Keys           []phases.Key
	Force          bool
	RunnerOptions  []phases.RunnerOption
	ProgramOptions []tea.ProgramOption
}

// Option mutates Config during construction.
type Option func(*Config)

// WithRegistry sets the catalog phases are looked up in.
func WithRegistry(registry *phases.Registry) Option {
	return func(cfg *Config) {
		if cfg != nil {
			cfg.Registry = registry
		}
	}
}

// WithEnv sets the environment every phase runs against.
func WithEnv(env *phases.Env) Option {
	return func(cfg *Config) {
		if cfg != nil {
			cfg.Env = env
		}
	}
}

// WithKeys limits the dashboard to keys, in the given order. Without it every
// registered phase is shown.
func WithKeys(keys ...phases.Key) Option {
	return func(cfg *Config) {
		if cfg != nil {
			cfg.Keys = append(cfg.Keys, keys...)
		}
	}
}

// WithForce bypasses satisfaction checks for every phase.
func WithForce(force bool) Option {
	return func(cfg *Config) {
		if cfg != nil {
			cfg.Force = force
		}
	}
}

// WithRunnerOptions appends runner options such as extra observers or a logger.
func WithRunnerOptions(opts ...phases.RunnerOption) Option {
	return func(cfg *Config) {
		if cfg != nil {
			cfg.RunnerOptions = append(cfg.RunnerOptions, opts...)
		}
	}
}

// WithProgramOptions appends tea.Program options.
func WithProgramOptions(opts ...tea.ProgramOption) Option {
	return func(cfg *Config) {
		if cfg != nil {
			cfg.ProgramOptions = append(cfg.ProgramOptions, opts...)
		}
	}
}

// App hosts the dashboard program.
type App struct {
	cfg      Config
	metas    []phases.PhaseMetadata
	mu       sync.Mutex
	program  *tea.Program
	inFlight bool
}

// New validates the configuration and resolves the phases to show.
func New(opts ...Option) (*App, error) {
	cfg := Config{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.Env == nil {
		return nil, ErrNoEnv
	}
	if cfg.Registry == nil {
		return nil, ErrNoPhases
	}

	keys := cfg.Keys
	if len(keys) == 0 {
		for _, meta := range cfg.Registry.Metadata() {
			keys = append(keys, meta.Key)
		}
	}
	if len(keys) == 0 {
		return nil, ErrNoPhases
	}

	metas := make([]phases.PhaseMetadata, 0, len(keys))
	seen := make(map[phases.Key]struct{}, len(keys))
	for _, key := range keys {
		if _, dup := seen[key]; dup {
			return nil, phases.DuplicatePhaseError{Key: key}
		}
		seen[key] = struct{}{}
		phase, err := cfg.Registry.Lookup(key)
		if err != nil {
			return nil, err
		}
		metas = append(metas, phase.Metadata())
	}
	return &App{cfg: cfg, metas: metas}, nil
}

// Start runs every selected phase from the first one.
func (a *App) Start(ctx context.Context) error {
	return a.start(ctx, 0)
}

// StartFrom runs selected phases beginning at index start. An index past the
// end opens the dashboard idle. A phase whose latest run failed is returned as
// PhaseFailedError once the operator quits.
func (a *App) StartFrom(ctx context.Context, start int) error {
	if start < 0 {
		start = 0
	}
	return a.start(ctx, start)
}

// Stop signals the running program (if any) to exit.
func (a *App) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.program == nil {
		return nil
	}
	a.program.Quit()
	return nil
}

func (a *App) start(ctx context.Context, start int) error {
	if ctx == nil {
		ctx = context.Background()
	}

	a.mu.Lock()
	if a.inFlight {
		a.mu.Unlock()
		return ErrProgramRunning
	}
	a.inFlight = true
	a.mu.Unlock()

	bridge := newBridge()
	m := newModel(a.cfg, a.metas, bridge, ctx, start)
	programOpts := append([]tea.ProgramOption{tea.WithContext(ctx)}, a.cfg.ProgramOptions...)
	program := tea.NewProgram(m, programOpts...)

	a.mu.Lock()
	a.program = program
	a.mu.Unlock()

	defer func() {
		bridge.close()
		a.mu.Lock()
		a.program = nil
		a.inFlight = false
		a.mu.Unlock()
	}()

	final, runErr := program.Run()
	if errors.Is(runErr, tea.ErrProgramKilled) && ctx.Err() != nil {
		return ctx.Err()
	}
	if runErr != nil {
		return runErr
	}
	if fm, ok := final.(*model); ok {
		if outcome, failed := fm.failure(); failed {
			return PhaseFailedError{Outcome: outcome}
		}
	}
	return nil
}
