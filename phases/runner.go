package phases

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/BrianJOC/host-harden/utils/pkginstaller"
)

const maxPromptAttempts = 3

// Status is the terminal state of a phase run.
type Status string

const (
	StatusSkipped Status = "skipped"
	StatusApplied Status = "applied"
	StatusFailed  Status = "failed"
)

// ErrorClass classifies a failed outcome.
type ErrorClass string

const (
	ClassNone          ErrorClass = ""
	ClassConfiguration ErrorClass = "configuration"
	ClassValidation    ErrorClass = "validation"
	ClassExecution     ErrorClass = "execution"
)

// Outcome is the result of one phase run.
type Outcome struct {
	Key     Key
	Status  Status
	Class   ErrorClass
	Message string
	Err     error
}

// Failed reports whether the phase failed.
func (o Outcome) Failed() bool {
	return o.Status == StatusFailed
}

// Request asks the runner to run one phase.
type Request struct {
	Key    Key
	Source InputSource
	Force  bool
}

// Runner drives a phase through check, input, apply.
type Runner struct {
	registry  *Registry
	env       *Env
	observers []Observer
	logger    *zap.Logger
}

// RunnerOption mutates runner configuration.
type RunnerOption func(*Runner)

// WithObserver registers an observer to receive lifecycle events.
func WithObserver(obs Observer) RunnerOption {
	return func(r *Runner) {
		if obs == nil {
			return
		}
		r.observers = append(r.observers, obs)
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *zap.Logger) RunnerOption {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRunner constructs a Runner over registry using env for every phase.
func NewRunner(registry *Registry, env *Env, opts ...RunnerOption) *Runner {
	r := &Runner{
		registry: registry,
		env:      env,
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

// Run executes one phase. It never panics on phase errors; failures are
// reported in the Outcome.
func (r *Runner) Run(ctx context.Context, key Key, src InputSource, force bool) Outcome {
	if r.registry == nil {
		return failed(key, ConfigurationError{Reason: "no phases registered"})
	}
	phase, err := r.registry.Lookup(key)
	if err != nil {
		return failed(key, err)
	}

	meta := phase.Metadata()
	r.notifyStart(meta)
	outcome := r.execute(ctx, phase, meta, src, force)
	r.log(outcome)
	r.notifyComplete(meta, outcome)
	return outcome
}

// RunAll executes requests in order and stops at the first failure.
func (r *Runner) RunAll(ctx context.Context, requests []Request) []Outcome {
	outcomes := make([]Outcome, 0, len(requests))
	for _, req := range requests {
		outcome := r.Run(ctx, req.Key, req.Source, req.Force)
		outcomes = append(outcomes, outcome)
		if outcome.Failed() {
			break
		}
	}
	return outcomes
}

// Check runs the satisfaction check with default options. It never mutates the host.
func (r *Runner) Check(ctx context.Context, key Key) (bool, error) {
	if r.registry == nil {
		return false, ConfigurationError{Reason: "no phases registered"}
	}
	phase, err := r.registry.Lookup(key)
	if err != nil {
		return false, err
	}
	opts := DefaultOptions(phase.Metadata())
	if !defaultsComplete(phase.Metadata()) {
		return false, nil
	}
	return phase.Satisfied(ctx, r.env, opts)
}

// Validate resolves src against the phase schema without touching the host.
// It needs no Env, so callers can reject bad input before acquiring privilege.
func (r *Runner) Validate(ctx context.Context, key Key, src InputSource) error {
	if r.registry == nil {
		return ConfigurationError{Reason: "no phases registered"}
	}
	phase, err := r.registry.Lookup(key)
	if err != nil {
		return err
	}
	if src == nil {
		return ConfigurationError{Reason: "no input source"}
	}
	_, err = r.resolve(ctx, phase, phase.Metadata(), src)
	return err
}

func (r *Runner) execute(ctx context.Context, phase Phase, meta PhaseMetadata, src InputSource, force bool) Outcome {
	if src == nil {
		return failed(meta.Key, ConfigurationError{Reason: "no input source"})
	}
	if r.env == nil {
		return failed(meta.Key, ConfigurationError{Reason: "no execution environment"})
	}

	var (
		opts *Options
		err  error
	)
	switch src.Mode() {
	case ModeAgent:
		opts, err = r.resolve(ctx, phase, meta, src)
		if err != nil {
			return failed(meta.Key, err)
		}
		opts.Force = force
		if !force {
			if outcome, done := r.checkSatisfied(ctx, phase, meta, opts); done {
				return outcome
			}
		}

	case ModeInteractive:
		var checked *Options
		if !force && defaultsComplete(meta) {
			checked = DefaultOptions(meta)
			if outcome, done := r.checkSatisfied(ctx, phase, meta, checked); done {
				return outcome
			}
		}
		opts, err = r.resolve(ctx, phase, meta, src)
		if errors.Is(err, ErrDeclined) {
			return declined(meta.Key)
		}
		if err != nil {
			return failed(meta.Key, err)
		}
		opts.Force = force
		if !force && (checked == nil || !opts.Equal(checked)) {
			if outcome, done := r.checkSatisfied(ctx, phase, meta, opts); done {
				return outcome
			}
		}
		ok, err := src.Confirm(ctx, meta, fmt.Sprintf("Apply %q now?", meta.Title))
		if errors.Is(err, ErrDeclined) || (err == nil && !ok) {
			return declined(meta.Key)
		}
		if err != nil {
			return failed(meta.Key, err)
		}

	default:
		return failed(meta.Key, ConfigurationError{Reason: fmt.Sprintf("unknown mode %q", src.Mode())})
	}

	r.logger.Info("applying phase", zap.String("phase", string(meta.Key)), zap.Bool("force", force))
	if err := phase.Apply(ctx, r.env, opts); err != nil {
		return failed(meta.Key, PhaseExecutionError{Phase: meta, Err: err})
	}
	return Outcome{Key: meta.Key, Status: StatusApplied, Message: meta.Title + " applied"}
}

func (r *Runner) checkSatisfied(ctx context.Context, phase Phase, meta PhaseMetadata, opts *Options) (Outcome, bool) {
	ok, err := phase.Satisfied(ctx, r.env, opts)
	if err != nil {
		return failed(meta.Key, PhaseExecutionError{Phase: meta, Err: err}), true
	}
	if ok {
		return Outcome{Key: meta.Key, Status: StatusSkipped, Message: meta.Title + " already configured"}, true
	}
	return Outcome{}, false
}

// resolve gathers and validates every input. It must not touch the host.
func (r *Runner) resolve(ctx context.Context, phase Phase, meta PhaseMetadata, src InputSource) (*Options, error) {
	if agent, ok := src.(*AgentSource); ok {
		if unknown := agent.Unknown(meta); len(unknown) > 0 {
			return nil, ValidationError{Field: unknown[0], Reason: fmt.Sprintf("not an option of phase %s", meta.Key)}
		}
	}

	opts := NewOptions(nil)
	for _, def := range meta.Inputs {
		reason := ""
		for attempt := 1; ; attempt++ {
			raw, provided, err := src.Value(ctx, meta, def, reason)
			if err != nil {
				return nil, err
			}
			raw = strings.TrimSpace(raw)
			if !provided || (raw == "" && src.Mode() == ModeInteractive) {
				raw = def.Default
			}
			verr := checkInput(def, raw)
			if verr == nil {
				opts.Set(def.ID, raw)
				break
			}
			if src.Mode() != ModeInteractive || attempt >= maxPromptAttempts {
				return nil, verr
			}
			reason = verr.Error()
		}
	}

	if v, ok := phase.(OptionsValidator); ok {
		if err := v.ValidateOptions(opts); err != nil {
			var ve ValidationError
			if !errors.As(err, &ve) {
				err = ValidationError{Reason: err.Error()}
			}
			return nil, err
		}
	}
	return opts, nil
}

func defaultsComplete(meta PhaseMetadata) bool {
	for _, def := range meta.Inputs {
		if def.Required && def.Default == "" {
			return false
		}
	}
	return true
}

func failed(key Key, err error) Outcome {
	return Outcome{
		Key:     key,
		Status:  StatusFailed,
		Class:   Classify(err),
		Message: err.Error(),
		Err:     err,
	}
}

func declined(key Key) Outcome {
	return Outcome{Key: key, Status: StatusSkipped, Message: "skipped at operator request; nothing changed"}
}

// Classify maps an error onto the configuration / validation / execution taxonomy.
func Classify(err error) ErrorClass {
	if err == nil {
		return ClassNone
	}
	var (
		ve        ValidationError
		ce        ConfigurationError
		unknown   UnknownPhaseError
		noManager pkginstaller.NoPackageManagerError
	)
	switch {
	case errors.As(err, &ve), errors.As(err, &unknown):
		return ClassValidation
	case errors.As(err, &ce), errors.As(err, &noManager):
		return ClassConfiguration
	default:
		return ClassExecution
	}
}

func (r *Runner) log(o Outcome) {
	fields := []zap.Field{zap.String("phase", string(o.Key)), zap.String("status", string(o.Status))}
	// Callers print failures themselves; the record stays below warn.
	switch o.Status {
	case StatusFailed:
		r.logger.Info("phase failed", append(fields, zap.String("class", string(o.Class)), zap.Error(o.Err))...)
	default:
		r.logger.Info("phase finished", append(fields, zap.String("message", o.Message))...)
	}
}

func (r *Runner) notifyStart(meta PhaseMetadata) {
	for _, obs := range r.observers {
		obs.PhaseStarted(meta)
	}
}

func (r *Runner) notifyComplete(meta PhaseMetadata, outcome Outcome) {
	for _, obs := range r.observers {
		obs.PhaseCompleted(meta, outcome)
	}
}
