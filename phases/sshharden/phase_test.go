package sshharden

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/BrianJOC/host-harden/phases"
	"github.com/BrianJOC/host-harden/phases/phasetest"
	"github.com/BrianJOC/host-harden/utils/distro"
	"github.com/BrianJOC/host-harden/utils/hosttest"
)

const stockConfig = "Port 22\nPasswordAuthentication yes\nUsePAM yes\n"

func TestHardenWithoutAllowUsersFailsValidation(t *testing.T) {
	t.Parallel()

	h := phasetest.New(phasetest.WithFiles(map[string]string{MainConfigPath: stockConfig}))
	outcome := h.Run(t, New(), map[string]string{InputLevel: LevelHarden}, false)

	require.Equal(t, phases.StatusFailed, outcome.Status)
	require.Equal(t, phases.ClassValidation, outcome.Class)
	require.Contains(t, outcome.Message, "--allow-users")
	h.Untouched(t)
	_, ok := h.Files.Content(DropInPath)
	require.False(t, ok)
}

func TestApplyThenSkip(t *testing.T) {
	t.Parallel()

	h := phasetest.New(phasetest.WithFiles(map[string]string{MainConfigPath: stockConfig}))
	values := map[string]string{InputLevel: LevelHarden, InputAllowUsers: "deploy,ops"}

	outcome := h.Run(t, New(), values, false)
	require.Equal(t, phases.StatusApplied, outcome.Status, outcome.Message)

	main, _ := h.Files.Content(MainConfigPath)
	require.True(t, strings.HasPrefix(main, "Include /etc/ssh/sshd_config.d/*.conf\n"))
	require.True(t, strings.HasSuffix(main, stockConfig))
	dropIn, _ := h.Files.Content(DropInPath)
	require.Contains(t, dropIn, "PasswordAuthentication no\n")
	require.Contains(t, dropIn, "PermitRootLogin no\n")
	require.Contains(t, dropIn, "AllowUsers deploy ops\n")
	require.Contains(t, h.Files.Paths(), MainConfigPath+".bak.0")
	require.Equal(t, []string{"sshd -t", "systemctl reload-or-restart ssh"}, h.Runner.Commands())

	h.Reset()
	mutations := h.Files.Mutations()
	outcome = h.Run(t, New(), values, false)
	require.Equal(t, phases.StatusSkipped, outcome.Status)
	require.Empty(t, h.Runner.Calls())
	require.Equal(t, mutations, h.Files.Mutations())
}

func TestLevelChangeIsNotSatisfied(t *testing.T) {
	t.Parallel()

	matchOpts := phases.NewOptions(map[string]string{InputLevel: LevelMatch})
	h := phasetest.New(
		phasetest.WithManager(distro.Dnf),
		phasetest.WithFiles(map[string]string{
			MainConfigPath: "Include /etc/ssh/sshd_config.d/*.conf\n" + stockConfig,
			DropInPath:     Render(matchOpts),
		}),
	)

	outcome := h.Run(t, New(), map[string]string{InputLevel: LevelMatch}, false)
	require.Equal(t, phases.StatusSkipped, outcome.Status)

	outcome = h.Run(t, New(), map[string]string{InputLevel: LevelHarden, InputAllowUsers: "deploy"}, false)
	require.Equal(t, phases.StatusApplied, outcome.Status)
	require.Equal(t, []string{"sshd -t", "systemctl reload-or-restart sshd"}, h.Runner.Commands())
	require.Empty(t, h.Files.Removed())
}

func TestRejectedConfigIsRemoved(t *testing.T) {
	t.Parallel()

	h := phasetest.New(phasetest.WithFiles(map[string]string{MainConfigPath: stockConfig}))
	h.Runner.On("sshd -t", hosttest.Response{ExitCode: 255, Stderr: "/etc/ssh/sshd_config.d/60-harden.conf: bad configuration option"})

	outcome := h.Run(t, New(), map[string]string{InputRestart: "false"}, false)
	require.Equal(t, phases.StatusFailed, outcome.Status)
	require.Equal(t, phases.ClassExecution, outcome.Class)
	require.Contains(t, outcome.Message, "bad configuration option")
	require.Equal(t, []string{DropInPath}, h.Files.Removed())
	require.Equal(t, []string{"sshd -t"}, h.Runner.Commands())
}

func TestRejectedConfigRestoresPreviousDropIn(t *testing.T) {
	t.Parallel()

	const previous = "# managed by harden\nPermitRootLogin no\nPasswordAuthentication no\n"
	h := phasetest.New(phasetest.WithFiles(map[string]string{
		MainConfigPath: "Include /etc/ssh/sshd_config.d/*.conf\n" + stockConfig,
		DropInPath:     previous,
	}))
	h.Runner.On("sshd -t", hosttest.Response{ExitCode: 255, Stderr: "bad configuration option"})

	outcome := h.Run(t, New(), map[string]string{InputRestart: "false"}, false)
	require.Equal(t, phases.StatusFailed, outcome.Status)
	require.Empty(t, h.Files.Removed())
	content, ok := h.Files.Content(DropInPath)
	require.True(t, ok)
	require.Equal(t, previous, content)
}

func TestNoRestart(t *testing.T) {
	t.Parallel()

	h := phasetest.New(phasetest.WithFiles(map[string]string{MainConfigPath: "Include /etc/ssh/sshd_config.d/*.conf\n"}))
	outcome := h.Run(t, New(), map[string]string{InputRestart: "no"}, false)
	require.Equal(t, phases.StatusApplied, outcome.Status)
	require.Equal(t, []string{"sshd -t"}, h.Runner.Commands())
	require.NotContains(t, h.Files.Paths(), MainConfigPath+".bak.0")
}

func TestInvalidInputTouchesNothing(t *testing.T) {
	t.Parallel()

	cases := []map[string]string{
		{InputLevel: "paranoid"},
		{InputLevel: LevelHarden, InputAllowUsers: "deploy,$(reboot)"},
		{InputRestart: "sometimes"},
	}
	for _, values := range cases {
		h := phasetest.New(phasetest.WithFiles(map[string]string{MainConfigPath: stockConfig}))
		outcome := h.Run(t, New(), values, false)
		require.Equal(t, phases.ClassValidation, outcome.Class, values)
		h.Untouched(t)
	}
}
