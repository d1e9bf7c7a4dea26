package mosh

import (
	"context"

	"github.com/BrianJOC/host-harden/phases"
	"github.com/BrianJOC/host-harden/utils/ufw"
)

const (
	// Input identifiers
	InputEnable = "enable"

	// PortRange is the UDP range mosh-server binds in.
	PortRange = "60000:61000/udp"
)

// Phase installs mosh and opens its UDP range when ufw is active.
type Phase struct{}

// New creates the mosh phase.
func New() *Phase {
	return &Phase{}
}

func (p *Phase) Metadata() phases.PhaseMetadata {
	return phases.PhaseMetadata{
		Key:         phases.KeyMosh,
		Title:       "Mosh",
		Description: "Install mosh and allow UDP " + PortRange + " through ufw.",
		Inputs: []phases.InputDefinition{
			{
				ID:          InputEnable,
				Label:       "Enable mosh",
				Description: "false removes mosh and closes the UDP range.",
				Kind:        phases.InputKindConfirm,
				Default:     "true",
			},
		},
		Tags: []string{"ssh", "network"},
	}
}

func (p *Phase) Satisfied(ctx context.Context, env *phases.Env, opts *phases.Options) (bool, error) {
	enable := opts.Bool(InputEnable)
	installed, err := env.Packages.Installed(ctx, "mosh")
	if err != nil || installed != enable {
		return false, err
	}
	status, err := ufw.New(env.Exec).Status(ctx)
	if err != nil {
		return false, err
	}
	if !status.Active {
		return true, nil
	}
	return status.Has("allow", PortRange) == enable, nil
}

func (p *Phase) Apply(ctx context.Context, env *phases.Env, opts *phases.Options) error {
	client := ufw.New(env.Exec)
	status, err := client.Status(ctx)
	if err != nil {
		return err
	}

	if !opts.Bool(InputEnable) {
		if status.Active && status.Has("allow", PortRange) {
			if err := client.Delete(ctx, "allow", PortRange); err != nil {
				return err
			}
		}
		_, err := env.Packages.Remove(ctx, []string{"mosh"})
		return err
	}

	if _, err := env.Packages.Ensure(ctx, []string{"mosh"}); err != nil {
		return err
	}
	if status.Active && (!status.Has("allow", PortRange) || opts.Force) {
		return client.Allow(ctx, PortRange)
	}
	return nil
}
