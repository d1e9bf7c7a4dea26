package fail2ban

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/BrianJOC/host-harden/phases"
	"github.com/BrianJOC/host-harden/utils/rootfile"
	"github.com/BrianJOC/host-harden/utils/service"
)

const (
	// Input identifiers
	InputEnable   = "enable"
	InputBantime  = "bantime"
	InputMaxRetry = "maxretry"

	JailPath = "/etc/fail2ban/jail.d/harden-sshd.local"
	unit     = "fail2ban"
)

var durationPattern = regexp.MustCompile(`^[0-9]+[smhdw]?$`)

// Phase runs fail2ban with an sshd jail.
type Phase struct{}

// New creates the fail2ban phase.
func New() *Phase {
	return &Phase{}
}

func (p *Phase) Metadata() phases.PhaseMetadata {
	return phases.PhaseMetadata{
		Key:         phases.KeyFail2ban,
		Title:       "Intrusion Banning",
		Description: "Install fail2ban and ban addresses that keep failing SSH logins.",
		Inputs: []phases.InputDefinition{
			{
				ID:          InputEnable,
				Label:       "Enable fail2ban",
				Description: "false stops and disables the service.",
				Kind:        phases.InputKindConfirm,
				Default:     "true",
			},
			{
				ID:          InputBantime,
				Label:       "Ban time",
				Description: "How long an address stays banned, e.g. 600, 10m or 1h.",
				Kind:        phases.InputKindText,
				Default:     "1h",
				Validate:    validDuration,
			},
			{
				ID:          InputMaxRetry,
				Label:       "Max retries",
				Description: "Failures within 10 minutes before a ban.",
				Kind:        phases.InputKindText,
				Default:     "5",
				Validate:    validRetries,
			},
		},
		Tags: []string{"ssh", "network"},
	}
}

func (p *Phase) Satisfied(ctx context.Context, env *phases.Env, opts *phases.Options) (bool, error) {
	systemd := service.New(env.Exec)
	if !opts.Bool(InputEnable) {
		active, err := systemd.Active(ctx, unit)
		return !active, err
	}

	installed, err := env.Packages.Installed(ctx, "fail2ban")
	if err != nil || !installed {
		return false, err
	}
	jail, ok, err := env.Files.Read(ctx, JailPath)
	if err != nil || !ok || jail != RenderJail(opts) {
		return false, err
	}
	return systemd.Active(ctx, unit)
}

func (p *Phase) Apply(ctx context.Context, env *phases.Env, opts *phases.Options) error {
	systemd := service.New(env.Exec)
	if !opts.Bool(InputEnable) {
		enabled, err := systemd.Enabled(ctx, unit)
		if err != nil {
			return err
		}
		active, err := systemd.Active(ctx, unit)
		if err != nil || (!enabled && !active) {
			return err
		}
		return systemd.DisableNow(ctx, unit)
	}

	if _, err := env.Packages.Ensure(ctx, []string{"fail2ban"}); err != nil {
		return err
	}
	if err := env.Files.Write(ctx, JailPath, []byte(RenderJail(opts)), rootfile.WithMode(0o644)); err != nil {
		return err
	}
	if err := systemd.EnableNow(ctx, unit); err != nil {
		return err
	}
	if err := systemd.Restart(ctx, unit); err != nil {
		return err
	}

	// Display only; the jail may need a moment after restart.
	res, err := env.Query(ctx, "fail2ban-client", "status", "sshd")
	if err == nil && res.Success() {
		env.Log().Info("sshd jail", zap.String("status", strings.TrimSpace(res.Stdout)))
	} else {
		env.Log().Debug("sshd jail status unavailable", zap.Error(err))
	}
	return nil
}

// RenderJail returns the sshd jail for opts.
func RenderJail(opts *phases.Options) string {
	return fmt.Sprintf(`# Managed by harden. Local changes are overwritten.
[sshd]
enabled = true
port = ssh
backend = systemd
findtime = 10m
bantime = %s
maxretry = %s
`, opts.String(InputBantime), opts.String(InputMaxRetry))
}

func validDuration(v string) error {
	if !durationPattern.MatchString(v) {
		return errors.New("expected seconds or a number with s, m, h, d or w, e.g. 1h")
	}
	return nil
}

func validRetries(v string) error {
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 || n > 100 {
		return errors.New("expected a whole number between 1 and 100")
	}
	return nil
}
