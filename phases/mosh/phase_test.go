package mosh

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/BrianJOC/host-harden/phases"
	"github.com/BrianJOC/host-harden/phases/phasetest"
	"github.com/BrianJOC/host-harden/utils/distro"
	"github.com/BrianJOC/host-harden/utils/hosttest"
)

const (
	activeSSHOnly = "Status: active\n\nTo Action From\n-- ------ ----\n22 ALLOW IN Anywhere\n"
	activeWithUDP = activeSSHOnly + "60000:61000/udp ALLOW IN Anywhere\n"
)

func TestApplyThenSkip(t *testing.T) {
	t.Parallel()

	h := phasetest.New()
	h.Runner.
		On("dpkg-query -W -f=${Status} mosh",
			hosttest.Response{Stdout: "unknown ok not-installed"},
			hosttest.Response{Stdout: "unknown ok not-installed"},
			hosttest.Response{Stdout: "install ok installed"}).
		On("ufw status verbose",
			hosttest.Response{Stdout: activeSSHOnly},
			hosttest.Response{Stdout: activeWithUDP})

	outcome := h.Run(t, New(), nil, false)
	require.Equal(t, phases.StatusApplied, outcome.Status, outcome.Message)
	require.Equal(t, []string{
		"apt-get update",
		"env DEBIAN_FRONTEND=noninteractive apt-get install -y mosh",
		"ufw allow 60000:61000/udp",
	}, h.Mutating())

	h.Reset()
	outcome = h.Run(t, New(), nil, false)
	require.Equal(t, phases.StatusSkipped, outcome.Status)
	require.Empty(t, h.Mutating())
}

func TestInactiveFirewallOnlyInstalls(t *testing.T) {
	t.Parallel()

	h := phasetest.New(phasetest.WithManager(distro.Dnf))
	h.Runner.
		On("rpm -q mosh", hosttest.Response{ExitCode: 1}).
		On("ufw status verbose", hosttest.Response{Stdout: "Status: inactive\n"})

	outcome := h.Run(t, New(), nil, false)
	require.Equal(t, phases.StatusApplied, outcome.Status)
	require.Equal(t, []string{"dnf install -y mosh"}, h.Mutating())
}

func TestDisableClosesRangeAndRemoves(t *testing.T) {
	t.Parallel()

	h := phasetest.New()
	h.Runner.
		On("dpkg-query -W -f=${Status} mosh", hosttest.Response{Stdout: "install ok installed"}).
		On("ufw status verbose", hosttest.Response{Stdout: activeWithUDP})

	outcome := h.Run(t, New(), map[string]string{InputEnable: "false"}, false)
	require.Equal(t, phases.StatusApplied, outcome.Status, outcome.Message)
	require.Equal(t, []string{
		"ufw delete allow 60000:61000/udp",
		"env DEBIAN_FRONTEND=noninteractive apt-get remove -y mosh",
	}, h.Mutating())
}

func TestForceWhenSatisfied(t *testing.T) {
	t.Parallel()

	h := phasetest.New()
	h.Runner.
		On("dpkg-query -W -f=${Status} mosh", hosttest.Response{Stdout: "install ok installed"}).
		On("ufw status verbose", hosttest.Response{Stdout: activeWithUDP})

	outcome := h.Run(t, New(), nil, false)
	require.Equal(t, phases.StatusSkipped, outcome.Status)

	outcome = h.Run(t, New(), nil, true)
	require.Equal(t, phases.StatusApplied, outcome.Status)
	require.Equal(t, []string{"ufw allow 60000:61000/udp"}, h.Mutating())
}
