// Package phasetest builds phase environments over scripted hosts.
package phasetest

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/BrianJOC/host-harden/phases"
	"github.com/BrianJOC/host-harden/utils/distro"
	"github.com/BrianJOC/host-harden/utils/hosttest"
	"github.com/BrianJOC/host-harden/utils/pkginstaller"
	"github.com/BrianJOC/host-harden/utils/rootexec"
)

// Harness is a fake host: commands hit Runner, protected files live in Files.
type Harness struct {
	Runner *hosttest.Runner
	Files  *hosttest.Files
	Env    *phases.Env
}

type config struct {
	root    bool
	manager distro.PackageManager
	group   string
	files   map[string]string
}

// Option tunes the harness.
type Option func(*config)

// WithRoot runs without an elevation prefix.
func WithRoot() Option {
	return func(c *config) {
		c.root = true
	}
}

// WithManager selects the package manager (default apt).
func WithManager(pm distro.PackageManager) Option {
	return func(c *config) {
		c.manager = pm
		if pm != distro.Apt {
			c.group = distro.AdminGroupWheel
		}
	}
}

// WithFiles seeds protected files.
func WithFiles(files map[string]string) Option {
	return func(c *config) {
		c.files = files
	}
}

// New returns a harness for an unprivileged operator on a Debian host.
func New(opts ...Option) *Harness {
	c := config{manager: distro.Apt, group: distro.AdminGroupSudo}
	for _, opt := range opts {
		opt(&c)
	}

	runner := hosttest.NewRunner()
	files := hosttest.NewFiles(c.files)
	ec := phases.ExecutionContext{
		IsRoot:         c.root,
		UseElevation:   !c.root,
		PackageManager: c.manager,
		AdminGroup:     c.group,
	}
	var execOpts []rootexec.Option
	if !c.root {
		ec.ElevationTool = "sudo"
		execOpts = append(execOpts, rootexec.WithElevation("sudo"))
	}
	exec := rootexec.New(runner, execOpts...)

	return &Harness{
		Runner: runner,
		Files:  files,
		Env: &phases.Env{
			Context:  ec,
			Exec:     exec,
			Files:    files,
			Packages: pkginstaller.New(exec, c.manager),
		},
	}
}

// Run drives phase through the runner in agent mode.
func (h *Harness) Run(t *testing.T, phase phases.Phase, values map[string]string, force bool) phases.Outcome {
	t.Helper()
	registry, err := phases.NewRegistry(phase)
	require.NoError(t, err)
	runner := phases.NewRunner(registry, h.Env)
	return runner.Run(context.Background(), phase.Metadata().Key, phases.NewAgentSource(values), force)
}

// Untouched reports that nothing reached the host.
func (h *Harness) Untouched(t *testing.T) {
	t.Helper()
	require.Empty(t, h.Runner.Calls())
	require.Zero(t, h.Files.Mutations())
}

// Reset forgets recorded commands so a follow-up run can be counted.
func (h *Harness) Reset() {
	h.Runner.Reset()
}

// Mutating returns the recorded commands that are not read-only probes.
func (h *Harness) Mutating() []string {
	var out []string
	for _, cmd := range h.Runner.Commands() {
		if !readOnly(cmd) {
			out = append(out, cmd)
		}
	}
	return out
}

var probes = []string{
	"dpkg-query ", "rpm -q ", "pacman -Q ", "getent ", "id ", "test -f ", "cat ",
	"ufw status", "systemctl is-active ", "systemctl is-enabled ", "grep ",
	"fail2ban-client status", "sshd -T", "stat ",
}

func readOnly(cmd string) bool {
	for _, p := range probes {
		if strings.HasPrefix(cmd, p) {
			return true
		}
	}
	return false
}
