package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/BrianJOC/host-harden/phases"
	"github.com/BrianJOC/host-harden/pkg/phasedapp"
	"github.com/BrianJOC/host-harden/pkg/plan"
)

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "harden",
		Short: "Idempotent Linux server hardening",
		Long: `harden converges a Linux server towards a hardened baseline, one phase at a time.

Every phase checks the live host first and changes nothing when it already
matches. Run without arguments for the interactive menu, or use "harden run"
with flags for unattended use. Running two instances on one host at the same
time is not supported.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.menu(cmd.Context())
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true

	flags := root.PersistentFlags()
	flags.String("config", "", "config file (default /etc/harden/harden.yaml or ~/.config/harden/harden.yaml)")
	flags.String("log-level", "warn", "log level: debug, info, warn or error")
	flags.Bool("accessible", false, "plain line prompts instead of the form UI")
	flags.Bool("no-color", false, "disable colored output")

	root.AddCommand(
		newMenuCmd(a),
		newRunCmd(a),
		newApplyCmd(a),
		newStatusCmd(a),
		newPhasesCmd(a),
		newDashboardCmd(a),
	)
	return root
}

func newMenuCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "menu",
		Short: "Pick phases interactively until you quit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.menu(cmd.Context())
		},
	}
}

func (a *app) menu(ctx context.Context) error {
	if err := a.requireTerminal(); err != nil {
		return err
	}
	env, err := a.environment(ctx)
	if err != nil {
		return err
	}
	handler := a.newPrompter()
	runner := a.runner(env)
	src := phases.NewInteractiveSource(handler)
	metas := a.registry.Metadata()
	status := make(map[phases.Key]string, len(metas))

	for {
		key, ok, err := handler.Menu(metas, status)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		outcome := runner.Run(ctx, key, src, false)
		if outcome.Failed() {
			// The host cannot support the run at all; stop the menu.
			if outcome.Class == phases.ClassConfiguration {
				return outcomeError{outcome}
			}
			printFailure(a.stderr, outcomeError{outcome})
		} else {
			printOutcome(a.stdout, outcome)
		}
		status[key] = string(outcome.Status)
	}
}

func newRunCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <phase>",
		Short: "Run one phase non-interactively",
		Long:  "Run one phase with flags instead of prompts. Options missing from the flags fall back to phases.<phase>.<option> in the config file, then to the phase default.",
	}
	for _, meta := range a.registry.Metadata() {
		cmd.AddCommand(newPhaseCmd(a, meta))
	}
	return cmd
}

func newPhaseCmd(a *app, meta phases.PhaseMetadata) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   string(meta.Key),
		Short: meta.Title,
		Long:  meta.Title + ": " + meta.Description,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			values, err := a.flagValues(cmd.Flags(), meta)
			if err != nil {
				return err
			}
			return a.runRequests(cmd.Context(), []phases.Request{{
				Key:    meta.Key,
				Source: phases.NewAgentSource(values),
				Force:  force,
			}})
		},
	}
	bindInputFlags(cmd.Flags(), meta)
	cmd.Flags().BoolVar(&force, "force", false, "apply even when the host already matches")
	return cmd
}

func bindInputFlags(flags *pflag.FlagSet, meta phases.PhaseMetadata) {
	for _, def := range meta.Inputs {
		usage := def.Description
		if usage == "" {
			usage = def.Label
		}
		if def.Required {
			usage += " (required)"
		}
		switch def.Kind {
		case phases.InputKindConfirm:
			value, _ := phases.ParseBool(def.Default)
			flags.Bool(def.ID, value, usage)
		case phases.InputKindList:
			if def.Default != "" {
				usage += fmt.Sprintf(" (default %q)", def.Default)
			}
			flags.StringSlice(def.ID, nil, usage)
		default:
			flags.String(def.ID, def.Default, usage)
		}
	}
}

// flagValues collects explicitly set flags, then config values for the rest.
// Unset inputs are left out so the runner applies defaults.
func (a *app) flagValues(flags *pflag.FlagSet, meta phases.PhaseMetadata) (map[string]string, error) {
	values := make(map[string]string, len(meta.Inputs))
	for _, def := range meta.Inputs {
		flag := flags.Lookup(def.ID)
		if flag != nil && flag.Changed {
			if def.Kind == phases.InputKindList {
				items, err := flags.GetStringSlice(def.ID)
				if err != nil {
					return nil, err
				}
				values[def.ID] = strings.Join(items, ",")
			} else {
				values[def.ID] = flag.Value.String()
			}
			continue
		}
		if v, ok := a.configValue(meta.Key, def.ID); ok {
			values[def.ID] = v
		}
	}
	return values, nil
}

func newApplyCmd(a *app) *cobra.Command {
	var (
		file  string
		force bool
	)
	cmd := &cobra.Command{
		Use:   "apply -f plan.yaml",
		Short: "Run the phases listed in a plan file, in order",
		Long:  "Run every phase of a YAML plan non-interactively. All steps are validated before the host is touched, and the run stops at the first failure.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := plan.Load(file)
			if err != nil {
				return phases.ValidationError{Reason: err.Error()}
			}
			requests := p.Requests()
			if force {
				for i := range requests {
					requests[i].Force = true
				}
			}
			return a.runRequests(cmd.Context(), requests)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "plan file")
	cmd.Flags().BoolVar(&force, "force", false, "force every step")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newStatusCmd(a *app) *cobra.Command {
	var tag string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show which phases already match the host, using default options",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := a.environment(cmd.Context())
			if err != nil {
				return err
			}
			runner := a.runner(env)
			var rows []statusRow
			for _, key := range a.selectKeys(tag) {
				phase, err := a.registry.Lookup(key)
				if err != nil {
					return err
				}
				rows = append(rows, checkRow(cmd.Context(), runner, phase.Metadata()))
			}
			printStatus(a.stdout, rows)
			return nil
		},
	}
	cmd.Flags().StringVar(&tag, "tag", "", "only phases carrying this tag")
	return cmd
}

func checkRow(ctx context.Context, runner *phases.Runner, meta phases.PhaseMetadata) statusRow {
	row := statusRow{meta: meta}
	for _, def := range meta.Inputs {
		if def.Required && def.Default == "" {
			row.state = stateNeedsInput
			return row
		}
	}
	ok, err := runner.Check(ctx, meta.Key)
	switch {
	case err != nil:
		row.state = stateError
		row.detail = err.Error()
	case ok:
		row.state = stateConfigured
	default:
		row.state = statePending
	}
	return row
}

func newPhasesCmd(a *app) *cobra.Command {
	var tag string
	cmd := &cobra.Command{
		Use:   "phases",
		Short: "List phase keys",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			for i, key := range a.selectKeys(tag) {
				phase, err := a.registry.Lookup(key)
				if err != nil {
					return err
				}
				printPhase(a.stdout, i+1, phase.Metadata())
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&tag, "tag", "", "only phases carrying this tag")
	return cmd
}

func newDashboardCmd(a *app) *cobra.Command {
	var (
		tag   string
		force bool
		from  int
	)
	cmd := &cobra.Command{
		Use:   "dashboard [phase...]",
		Short: "Run phases in a full-screen dashboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			keys := make([]phases.Key, 0, len(args))
			for _, arg := range args {
				key, err := phases.ParseKey(arg)
				if err != nil {
					return err
				}
				keys = append(keys, key)
			}
			if len(keys) == 0 {
				keys = a.selectKeys(tag)
			}
			if len(keys) == 0 {
				return phases.ValidationError{Field: "tag", Value: tag, Reason: "matches no phase"}
			}

			if err := a.requireTerminal(); err != nil {
				return err
			}
			// Package manager output would draw over the alt screen.
			a.execOutput = io.Discard
			env, err := a.environment(cmd.Context())
			if err != nil {
				return err
			}
			dash, err := phasedapp.New(
				phasedapp.WithRegistry(a.registry),
				phasedapp.WithEnv(env),
				phasedapp.WithKeys(keys...),
				phasedapp.WithForce(force),
				phasedapp.WithProgramOptions(tea.WithAltScreen(), tea.WithInput(a.stdin), tea.WithOutput(a.stdout)),
			)
			if err != nil {
				return err
			}
			return dash.StartFrom(cmd.Context(), from-1)
		},
	}
	cmd.Flags().StringVar(&tag, "tag", "", "only phases carrying this tag")
	cmd.Flags().BoolVar(&force, "force", false, "apply even when the host already matches")
	cmd.Flags().IntVar(&from, "from", 1, "start at the n-th selected phase")
	return cmd
}

func (a *app) selectKeys(tag string) []phases.Key {
	if tag == "" {
		return phasedapp.SelectKeys(a.registry)
	}
	return phasedapp.SelectKeys(a.registry, phasedapp.WithTag(tag))
}
