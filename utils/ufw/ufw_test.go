package ufw

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/BrianJOC/host-harden/utils/hosttest"
	"github.com/BrianJOC/host-harden/utils/rootexec"
)

const verboseActive = `Status: active
Logging: on (medium)
Default: deny (incoming), allow (outgoing), disabled (routed)
New profiles: skip

To                         Action      From
--                         ------      ----
22                         ALLOW IN    Anywhere
80/tcp                     ALLOW IN    Anywhere
60000:61000/udp            ALLOW IN    Anywhere
23                         DENY IN     Anywhere
22 (v6)                    ALLOW IN    Anywhere (v6)
80/tcp (v6)                ALLOW IN    Anywhere (v6)
`

func TestParseStatusVerbose(t *testing.T) {
	t.Parallel()

	status := ParseStatus(verboseActive)
	require.True(t, status.Installed)
	require.True(t, status.Active)
	require.Equal(t, "medium", status.Logging)
	require.Equal(t, []string{"22", "80/tcp", "60000:61000/udp"}, status.Allowed())
	require.Equal(t, []string{"23"}, status.Denied())
	require.True(t, status.Has("allow", "60000:61000/udp"))
	require.False(t, status.Has("deny", "22"))
	require.Len(t, status.Rules, 6)
	require.True(t, status.Rules[4].V6)
}

func TestParseStatusInactive(t *testing.T) {
	t.Parallel()

	status := ParseStatus("Status: inactive\n")
	require.True(t, status.Installed)
	require.False(t, status.Active)
	require.Empty(t, status.Logging)
	require.Empty(t, status.Rules)
}

func TestParseLogging(t *testing.T) {
	t.Parallel()

	require.Equal(t, "off", parseLogging("off"))
	require.Equal(t, "low", parseLogging("on"))
	require.Equal(t, "full", parseLogging("on (full)"))
}

func TestStatusReportsMissingBinary(t *testing.T) {
	t.Parallel()

	runner := hosttest.NewRunner().On("ufw status", hosttest.Response{ExitCode: 1, Stderr: "sudo: ufw: command not found"})
	client := New(rootexec.New(runner, rootexec.WithElevation("sudo")))

	status, err := client.Status(context.Background())
	require.NoError(t, err)
	require.False(t, status.Installed)
	require.Equal(t, [][]string{{"sudo", "ufw", "status", "verbose"}}, runner.Calls())
}

func TestStatusFailure(t *testing.T) {
	t.Parallel()

	runner := hosttest.NewRunner().On("ufw status", hosttest.Response{ExitCode: 1, Stderr: "ERROR: problem running iptables"})
	client := New(rootexec.New(runner))

	_, err := client.Status(context.Background())
	var cmdErr CommandError
	require.ErrorAs(t, err, &cmdErr)
	var execErr rootexec.ExecutionError
	require.ErrorAs(t, err, &execErr)
	require.Contains(t, execErr.Message, "iptables")
}

func TestClientCommands(t *testing.T) {
	t.Parallel()

	runner := hosttest.NewRunner()
	client := New(rootexec.New(runner))
	ctx := context.Background()

	require.NoError(t, client.Default(ctx, "deny", "incoming"))
	require.NoError(t, client.Allow(ctx, "22/tcp"))
	require.NoError(t, client.Deny(ctx, "23"))
	require.NoError(t, client.Delete(ctx, "allow", "60000:61000/udp"))
	require.NoError(t, client.Enable(ctx))
	require.NoError(t, client.Logging(ctx, "high"))

	require.Equal(t, []string{
		"ufw default deny incoming",
		"ufw allow 22/tcp",
		"ufw deny 23",
		"ufw delete allow 60000:61000/udp",
		"ufw --force enable",
		"ufw logging high",
	}, runner.Commands())
}

func TestLoggingRejectsUnknownLevel(t *testing.T) {
	t.Parallel()

	runner := hosttest.NewRunner()
	err := New(rootexec.New(runner)).Logging(context.Background(), "verbose")
	require.IsType(t, LevelError{}, err)
	require.Empty(t, runner.Calls())
}
