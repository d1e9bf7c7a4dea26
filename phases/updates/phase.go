package updates

import (
	"context"
	"fmt"
	"regexp"

	"github.com/BrianJOC/host-harden/phases"
	"github.com/BrianJOC/host-harden/utils/distro"
	"github.com/BrianJOC/host-harden/utils/rootfile"
	"github.com/BrianJOC/host-harden/utils/service"
)

const (
	// Input identifiers
	InputEnable = "enable"

	// AptPeriodicPath is the apt periodic configuration file.
	AptPeriodicPath = "/etc/apt/apt.conf.d/20auto-upgrades"
)

var periodicPattern = regexp.MustCompile(`(?m)^\s*APT::Periodic::(Update-Package-Lists|Unattended-Upgrade)\s+"(\d+)"\s*;`)

// backend describes how one package manager runs unattended updates.
type backend struct {
	pkg  string
	unit string
}

var backends = map[distro.PackageManager]backend{
	distro.Apt: {pkg: "unattended-upgrades"},
	distro.Dnf: {pkg: "dnf-automatic", unit: "dnf-automatic-install.timer"},
	distro.Yum: {pkg: "yum-cron", unit: "yum-cron"},
}

// Phase turns unattended security updates on or off.
type Phase struct{}

// New creates the updates phase.
func New() *Phase {
	return &Phase{}
}

func (p *Phase) Metadata() phases.PhaseMetadata {
	return phases.PhaseMetadata{
		Key:         phases.KeyUpdates,
		Title:       "Automatic Updates",
		Description: "Install and enable unattended package upgrades.",
		Inputs: []phases.InputDefinition{
			{
				ID:          InputEnable,
				Label:       "Enable automatic updates",
				Description: "false turns unattended upgrades off without uninstalling them.",
				Kind:        phases.InputKindConfirm,
				Default:     "true",
			},
		},
		Tags: []string{"packages"},
	}
}

func (p *Phase) Satisfied(ctx context.Context, env *phases.Env, opts *phases.Options) (bool, error) {
	b, err := lookup(env)
	if err != nil {
		return false, err
	}
	enable := opts.Bool(InputEnable)
	if enable {
		installed, err := env.Packages.Installed(ctx, b.pkg)
		if err != nil || !installed {
			return false, err
		}
	}

	if b.unit == "" {
		content, _, err := env.Files.Read(ctx, AptPeriodicPath)
		if err != nil {
			return false, err
		}
		return periodicMatches(content, enable), nil
	}
	enabled, err := service.New(env.Exec).Enabled(ctx, b.unit)
	if err != nil {
		return false, err
	}
	return enabled == enable, nil
}

func (p *Phase) Apply(ctx context.Context, env *phases.Env, opts *phases.Options) error {
	b, err := lookup(env)
	if err != nil {
		return err
	}
	enable := opts.Bool(InputEnable)
	if enable {
		if _, err := env.Packages.Ensure(ctx, []string{b.pkg}); err != nil {
			return err
		}
	}

	if b.unit == "" {
		return env.Files.Write(ctx, AptPeriodicPath, []byte(RenderPeriodic(enable)), rootfile.WithMode(0o644))
	}
	systemd := service.New(env.Exec)
	if enable {
		return systemd.EnableNow(ctx, b.unit)
	}
	enabled, err := systemd.Enabled(ctx, b.unit)
	if err != nil || !enabled {
		return err
	}
	return systemd.DisableNow(ctx, b.unit)
}

// RenderPeriodic returns the apt periodic configuration.
func RenderPeriodic(enable bool) string {
	flag := "0"
	if enable {
		flag = "1"
	}
	return fmt.Sprintf("APT::Periodic::Update-Package-Lists %q;\nAPT::Periodic::Unattended-Upgrade %q;\n", flag, flag)
}

func periodicMatches(content string, enable bool) bool {
	want := "0"
	if enable {
		want = "1"
	}
	found := map[string]string{}
	for _, m := range periodicPattern.FindAllStringSubmatch(content, -1) {
		found[m[1]] = m[2]
	}
	if !enable {
		return found["Unattended-Upgrade"] != "1"
	}
	return found["Update-Package-Lists"] == want && found["Unattended-Upgrade"] == want
}

func lookup(env *phases.Env) (backend, error) {
	pm := env.Context.PackageManager
	if pm == distro.None || pm == "" {
		return backend{}, phases.ConfigurationError{Reason: "automatic updates need a supported package manager"}
	}
	b, ok := backends[pm]
	if !ok {
		return backend{}, phases.ConfigurationError{Reason: fmt.Sprintf("automatic updates are not supported with %s", pm)}
	}
	return b, nil
}
