package ufwlogging

import (
	"context"
	"errors"
	"strings"

	"github.com/BrianJOC/host-harden/phases"
	"github.com/BrianJOC/host-harden/utils/distro"
	"github.com/BrianJOC/host-harden/utils/ufw"
)

const (
	// Input identifiers
	InputLevel = "level"

	// ConfigPath holds LOGLEVEL, which ufw keeps even while inactive.
	ConfigPath = "/etc/ufw/ufw.conf"
)

var errNoUFW = errors.New("ufw is not installed; run the firewall phase first")

// Phase sets the ufw logging level.
type Phase struct{}

// New creates the ufw-logging phase.
func New() *Phase {
	return &Phase{}
}

func (p *Phase) Metadata() phases.PhaseMetadata {
	options := make([]phases.InputOption, 0, len(ufw.Levels))
	for _, level := range ufw.Levels {
		options = append(options, phases.InputOption{Value: level, Label: level})
	}
	return phases.PhaseMetadata{
		Key:         phases.KeyUFWLogging,
		Title:       "Firewall Logging",
		Description: "Set how much blocked and allowed traffic ufw logs.",
		Inputs: []phases.InputDefinition{
			{
				ID:          InputLevel,
				Label:       "Logging level",
				Description: "off, low, medium, high or full.",
				Kind:        phases.InputKindSelect,
				Default:     "low",
				Options:     options,
			},
		},
		Tags: []string{"network", "logging"},
	}
}

func (p *Phase) Satisfied(ctx context.Context, env *phases.Env, opts *phases.Options) (bool, error) {
	level, installed, err := currentLevel(ctx, env)
	if err != nil || !installed {
		return false, err
	}
	return level == opts.String(InputLevel), nil
}

func (p *Phase) Apply(ctx context.Context, env *phases.Env, opts *phases.Options) error {
	_, installed, err := currentLevel(ctx, env)
	if err != nil {
		return err
	}
	if !installed {
		return errNoUFW
	}
	return ufw.New(env.Exec).Logging(ctx, opts.String(InputLevel))
}

// currentLevel prefers the live status and falls back to ufw.conf while inactive.
func currentLevel(ctx context.Context, env *phases.Env) (string, bool, error) {
	status, err := ufw.New(env.Exec).Status(ctx)
	if err != nil || !status.Installed {
		return "", false, err
	}
	if status.Logging != "" {
		return status.Logging, true, nil
	}
	content, ok, err := env.Files.Read(ctx, ConfigPath)
	if err != nil || !ok {
		return "", true, err
	}
	values, err := distro.Parse(strings.NewReader(content))
	if err != nil {
		return "", true, err
	}
	return values["LOGLEVEL"], true, nil
}
