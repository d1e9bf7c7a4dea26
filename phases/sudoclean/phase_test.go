package sudoclean

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/BrianJOC/host-harden/phases"
	"github.com/BrianJOC/host-harden/phases/phasetest"
	"github.com/BrianJOC/host-harden/utils/hosttest"
)

func TestStrip(t *testing.T) {
	t.Parallel()

	in := "# NOPASSWD: kept in comments\ndeploy ALL=(ALL) NOPASSWD:ALL\n%wheel ALL=(ALL) NOPASSWD: ALL\nops ALL=(ALL) ALL\n"
	want := "# NOPASSWD: kept in comments\ndeploy ALL=(ALL) ALL\n%wheel ALL=(ALL) ALL\nops ALL=(ALL) ALL\n"
	require.Equal(t, want, Strip(in))
	require.True(t, HasNoPasswd(in))
	require.False(t, HasNoPasswd(want))
}

func TestApplyThenSkip(t *testing.T) {
	t.Parallel()

	h := phasetest.New(phasetest.WithFiles(map[string]string{
		"/etc/sudoers.d/90-cloud-init-users": "# Created by cloud-init\nubuntu ALL=(ALL) NOPASSWD:ALL\n",
		"/etc/sudoers.d/deploy":              "deploy ALL=(ALL) NOPASSWD: /usr/bin/systemctl\n",
	}))
	h.Runner.On("grep -rlE ^[^#]*NOPASSWD /etc/sudoers.d",
		hosttest.Response{Stdout: "/etc/sudoers.d/90-cloud-init-users\n/etc/sudoers.d/deploy\n/etc/sudoers.d/deploy.bak.1\n"},
		hosttest.Response{Stdout: "/etc/sudoers.d/90-cloud-init-users\n/etc/sudoers.d/deploy\n"},
		hosttest.Response{ExitCode: 1})

	outcome := h.Run(t, New(), nil, false)
	require.Equal(t, phases.StatusApplied, outcome.Status, outcome.Message)

	content, _ := h.Files.Content("/etc/sudoers.d/90-cloud-init-users")
	require.Equal(t, "# Created by cloud-init\nubuntu ALL=(ALL) ALL\n", content)
	content, _ = h.Files.Content("/etc/sudoers.d/deploy")
	require.Equal(t, "deploy ALL=(ALL) /usr/bin/systemctl\n", content)
	require.Equal(t, []string{
		"# Created by cloud-init\nubuntu ALL=(ALL) ALL\n",
		"deploy ALL=(ALL) /usr/bin/systemctl\n",
	}, h.Runner.Stdin())
	require.Equal(t, []string{"visudo -c -f -", "visudo -c -f -"}, h.Mutating())

	h.Reset()
	outcome = h.Run(t, New(), nil, false)
	require.Equal(t, phases.StatusSkipped, outcome.Status)
	require.Empty(t, h.Mutating())
}

func TestInvalidResultIsNotWritten(t *testing.T) {
	t.Parallel()

	h := phasetest.New(phasetest.WithFiles(map[string]string{"/etc/sudoers.d/deploy": "deploy ALL=(ALL) NOPASSWD:ALL\n"}))
	h.Runner.
		On("grep -rlE", hosttest.Response{Stdout: "/etc/sudoers.d/deploy\n"}).
		On("visudo", hosttest.Response{ExitCode: 1, Stderr: "syntax error near line 1"})

	outcome := h.Run(t, New(), nil, false)
	require.Equal(t, phases.StatusFailed, outcome.Status)
	require.Equal(t, phases.ClassExecution, outcome.Class)
	require.Contains(t, outcome.Message, "syntax error")
	require.Empty(t, h.Files.Writes())
}

func TestMissingDirectoryIsSatisfied(t *testing.T) {
	t.Parallel()

	h := phasetest.New()
	h.Runner.On("grep -rlE", hosttest.Response{ExitCode: 2, Stderr: "grep: /etc/sudoers.d: No such file or directory"})

	outcome := h.Run(t, New(), nil, false)
	require.Equal(t, phases.StatusSkipped, outcome.Status)
}

func TestGrepErrorFails(t *testing.T) {
	t.Parallel()

	h := phasetest.New()
	h.Runner.On("grep -rlE", hosttest.Response{ExitCode: 2, Stderr: "grep: /etc/sudoers.d/x: Permission denied"})

	outcome := h.Run(t, New(), nil, false)
	require.Equal(t, phases.StatusFailed, outcome.Status)
	require.Equal(t, phases.ClassExecution, outcome.Class)
}

func TestDisabledIsAlwaysSatisfied(t *testing.T) {
	t.Parallel()

	h := phasetest.New()
	outcome := h.Run(t, New(), map[string]string{InputRemoveNoPasswd: "false"}, false)
	require.Equal(t, phases.StatusSkipped, outcome.Status)
	h.Untouched(t)

	outcome = h.Run(t, New(), map[string]string{InputRemoveNoPasswd: "false"}, true)
	require.Equal(t, phases.StatusApplied, outcome.Status)
	h.Untouched(t)
}
