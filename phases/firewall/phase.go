package firewall

import (
	"context"

	"go.uber.org/zap"

	"github.com/BrianJOC/host-harden/phases"
	"github.com/BrianJOC/host-harden/utils/ufw"
)

const (
	// Input identifiers
	InputAllow  = "allow"
	InputDeny   = "deny"
	InputEnable = "enable"
)

// Phase configures ufw with a default-deny inbound policy.
type Phase struct{}

// New creates the firewall phase.
func New() *Phase {
	return &Phase{}
}

func (p *Phase) Metadata() phases.PhaseMetadata {
	return phases.PhaseMetadata{
		Key:         phases.KeyFirewall,
		Title:       "Firewall",
		Description: "Install ufw, deny inbound traffic by default and open the listed ports.",
		Inputs: []phases.InputDefinition{
			{
				ID:          InputAllow,
				Label:       "Allowed ports",
				Description: "Comma separated ports to allow, e.g. 22,80,443 or 60000:61000/udp.",
				Kind:        phases.InputKindList,
				Default:     "22",
				Validate:    phases.Each(phases.ValidPort),
			},
			{
				ID:          InputDeny,
				Label:       "Denied ports",
				Description: "Comma separated ports to deny explicitly.",
				Kind:        phases.InputKindList,
				Validate:    phases.Each(phases.ValidPort),
			},
			{
				ID:          InputEnable,
				Label:       "Enable firewall",
				Description: "Activate ufw; false disables it and keeps the rules.",
				Kind:        phases.InputKindConfirm,
				Default:     "true",
			},
		},
		Tags: []string{"network"},
	}
}

// ValidateOptions rejects a port that is both allowed and denied.
func (p *Phase) ValidateOptions(opts *phases.Options) error {
	allowed := make(map[string]bool)
	for _, port := range opts.List(InputAllow) {
		allowed[port] = true
	}
	for _, port := range opts.List(InputDeny) {
		if allowed[port] {
			return phases.ValidationError{Field: InputDeny, Value: port, Reason: "port is also in --allow"}
		}
	}
	return nil
}

func (p *Phase) Satisfied(ctx context.Context, env *phases.Env, opts *phases.Options) (bool, error) {
	status, err := ufw.New(env.Exec).Status(ctx)
	if err != nil {
		return false, err
	}
	if !opts.Bool(InputEnable) {
		return !status.Active, nil
	}
	if !status.Active {
		return false, nil
	}
	return len(missing(status, "allow", opts.List(InputAllow))) == 0 &&
		len(missing(status, "deny", opts.List(InputDeny))) == 0, nil
}

// Apply adds missing rules. Rules added by other tools are left in place.
func (p *Phase) Apply(ctx context.Context, env *phases.Env, opts *phases.Options) error {
	client := ufw.New(env.Exec)
	if !opts.Bool(InputEnable) {
		status, err := client.Status(ctx)
		if err != nil {
			return err
		}
		if !status.Installed || !status.Active {
			return nil
		}
		return client.Disable(ctx)
	}

	if _, err := env.Packages.Ensure(ctx, []string{"ufw"}); err != nil {
		return err
	}
	status, err := client.Status(ctx)
	if err != nil {
		return err
	}
	if err := client.Default(ctx, "deny", "incoming"); err != nil {
		return err
	}
	if err := client.Default(ctx, "allow", "outgoing"); err != nil {
		return err
	}

	allow, deny := opts.List(InputAllow), opts.List(InputDeny)
	if opts.Force {
		allow, deny = dedupe(allow), dedupe(deny)
	} else {
		allow, deny = missing(status, "allow", allow), missing(status, "deny", deny)
	}
	for _, port := range allow {
		if err := client.Allow(ctx, port); err != nil {
			return err
		}
	}
	for _, port := range deny {
		if err := client.Deny(ctx, port); err != nil {
			return err
		}
	}
	if err := client.Enable(ctx); err != nil {
		return err
	}
	env.Log().Info("firewall enabled", zap.Strings("allowed", allow), zap.Strings("denied", deny))
	return nil
}

func missing(status ufw.Status, action string, ports []string) []string {
	var out []string
	for _, port := range dedupe(ports) {
		if !status.Has(action, port) {
			out = append(out, port)
		}
	}
	return out
}

func dedupe(items []string) []string {
	seen := make(map[string]bool, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		if seen[item] {
			continue
		}
		seen[item] = true
		out = append(out, item)
	}
	return out
}
