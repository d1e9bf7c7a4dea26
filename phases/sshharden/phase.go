package sshharden

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/BrianJOC/host-harden/phases"
	"github.com/BrianJOC/host-harden/utils/distro"
	"github.com/BrianJOC/host-harden/utils/rootexec"
	"github.com/BrianJOC/host-harden/utils/rootfile"
	"github.com/BrianJOC/host-harden/utils/service"
)

const (
	// Input identifiers
	InputLevel      = "level"
	InputAllowUsers = "allow-users"
	InputRestart    = "restart"

	LevelMatch  = "match"
	LevelHarden = "harden"

	MainConfigPath = "/etc/ssh/sshd_config"
	DropInDir      = "/etc/ssh/sshd_config.d"
	DropInPath     = DropInDir + "/60-harden.conf"

	header = "# Managed by harden. Local changes are overwritten.\n"
)

var (
	includeLine    = "Include " + DropInDir + "/*.conf"
	includePattern = regexp.MustCompile(`(?m)^\s*Include\s+` + regexp.QuoteMeta(DropInDir) + `/\*\.conf\s*$`)
)

// Phase writes an sshd drop-in with a baseline or hardened policy.
type Phase struct{}

// New creates the ssh phase.
func New() *Phase {
	return &Phase{}
}

func (p *Phase) Metadata() phases.PhaseMetadata {
	return phases.PhaseMetadata{
		Key:         phases.KeySSH,
		Title:       "SSH Hardening",
		Description: "Write an sshd drop-in that disables risky defaults; harden also turns off passwords and root login.",
		Inputs: []phases.InputDefinition{
			{
				ID:          InputLevel,
				Label:       "Hardening level",
				Description: "match keeps current logins working; harden allows keys only for the listed users.",
				Kind:        phases.InputKindSelect,
				Default:     LevelMatch,
				Options: []phases.InputOption{
					{Value: LevelMatch, Label: "Match", Description: "Baseline settings, password logins unchanged"},
					{Value: LevelHarden, Label: "Harden", Description: "Keys only, no root login, AllowUsers"},
				},
			},
			{
				ID:          InputAllowUsers,
				Label:       "Allowed users",
				Description: "Comma separated login names permitted over SSH (required for harden).",
				Kind:        phases.InputKindList,
				Validate:    phases.Each(phases.ValidUsername),
			},
			{
				ID:          InputRestart,
				Label:       "Reload sshd",
				Description: "Reload the daemon so the new settings take effect.",
				Kind:        phases.InputKindConfirm,
				Default:     "true",
			},
		},
		Tags: []string{"ssh"},
	}
}

// ValidateOptions requires allow-users when hardening.
func (p *Phase) ValidateOptions(opts *phases.Options) error {
	if opts.String(InputLevel) == LevelHarden && len(opts.List(InputAllowUsers)) == 0 {
		return phases.ValidationError{
			Field:  InputAllowUsers,
			Reason: "is required when --level=harden, otherwise every login would be refused",
		}
	}
	return nil
}

func (p *Phase) Satisfied(ctx context.Context, env *phases.Env, opts *phases.Options) (bool, error) {
	current, ok, err := env.Files.Read(ctx, DropInPath)
	if err != nil || !ok || current != Render(opts) {
		return false, err
	}
	main, _, err := env.Files.Read(ctx, MainConfigPath)
	if err != nil {
		return false, err
	}
	return includePattern.MatchString(main), nil
}

func (p *Phase) Apply(ctx context.Context, env *phases.Env, opts *phases.Options) error {
	main, exists, err := env.Files.Read(ctx, MainConfigPath)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%s not found; is openssh-server installed?", MainConfigPath)
	}
	if !includePattern.MatchString(main) {
		backup, err := env.Files.Backup(ctx, MainConfigPath)
		if err != nil {
			return err
		}
		env.Log().Info("backed up sshd_config", zap.String("path", backup))
		// sshd keeps the first value it reads, so the Include goes on top.
		if err := env.Files.Write(ctx, MainConfigPath, []byte(includeLine+"\n"+main), rootfile.WithMode(0o644)); err != nil {
			return err
		}
	}

	previous, hadPrevious, err := env.Files.Read(ctx, DropInPath)
	if err != nil {
		return err
	}
	if err := env.Files.Write(ctx, DropInPath, []byte(Render(opts)), rootfile.WithMode(0o644)); err != nil {
		return err
	}
	if _, err := env.Exec.Run(ctx, []string{"sshd", "-t"}, rootexec.Capture()); err != nil {
		// A drop-in that fails sshd -t would stop sshd from starting after a reboot.
		if restoreErr := restoreDropIn(ctx, env, previous, hadPrevious); restoreErr != nil {
			return fmt.Errorf("sshd rejected the new configuration: %w (restoring %s: %v)", err, DropInPath, restoreErr)
		}
		return fmt.Errorf("sshd rejected the new configuration: %w", err)
	}

	if !opts.Bool(InputRestart) {
		env.Log().Info("sshd reload skipped; new settings apply on next restart")
		return nil
	}
	return service.New(env.Exec).ReloadOrRestart(ctx, unitName(env))
}

// restoreDropIn puts back the drop-in that was in place before Apply, or
// removes the new one when there was none.
func restoreDropIn(ctx context.Context, env *phases.Env, previous string, existed bool) error {
	if !existed {
		return env.Files.Remove(ctx, DropInPath)
	}
	return env.Files.Write(ctx, DropInPath, []byte(previous), rootfile.WithMode(0o644))
}

// Render returns the drop-in content for opts.
func Render(opts *phases.Options) string {
	var b strings.Builder
	b.WriteString(header)
	b.WriteString("PubkeyAuthentication yes\n")
	b.WriteString("X11Forwarding no\n")
	b.WriteString("MaxAuthTries 3\n")
	b.WriteString("LoginGraceTime 30\n")
	b.WriteString("ClientAliveInterval 300\n")
	b.WriteString("ClientAliveCountMax 2\n")
	if opts.String(InputLevel) != LevelHarden {
		b.WriteString("PermitRootLogin prohibit-password\n")
		return b.String()
	}
	b.WriteString("PermitRootLogin no\n")
	b.WriteString("PasswordAuthentication no\n")
	b.WriteString("KbdInteractiveAuthentication no\n")
	b.WriteString("PermitEmptyPasswords no\n")
	fmt.Fprintf(&b, "AllowUsers %s\n", strings.Join(opts.List(InputAllowUsers), " "))
	return b.String()
}

// Debian names the unit ssh, everything else sshd.
func unitName(env *phases.Env) string {
	if env.Context.PackageManager == distro.Apt {
		return "ssh"
	}
	return "sshd"
}
