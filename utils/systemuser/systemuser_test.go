package systemuser

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"

	"github.com/BrianJOC/host-harden/utils/hosttest"
	"github.com/BrianJOC/host-harden/utils/rootexec"
	"github.com/BrianJOC/host-harden/utils/sshkey"
)

func TestEnsureUserCreatesAndConfigures(t *testing.T) {
	t.Parallel()

	key := newKey(t)
	runner := hosttest.NewRunner().
		On("getent passwd deploy", hosttest.Response{ExitCode: 2}, hosttest.Response{Stdout: "deploy:x:1001:1001::/home/deploy:/bin/bash\n"})
	files := hosttest.NewFiles(nil)
	exec := rootexec.New(runner, rootexec.WithElevation("sudo"))

	res, err := EnsureUser(context.Background(), exec, files, "deploy",
		WithAdminGroup("wheel"),
		WithAuthorizedKey(key),
		WithPasswordlessSudo(true),
	)
	require.NoError(t, err)
	require.True(t, res.UserCreated)
	require.True(t, res.AuthorizedKeyUpdated)
	require.True(t, res.AddedToAdminGroup)
	require.True(t, res.PasswordlessConfigured)
	require.Equal(t, "/home/deploy", res.HomeDir)

	require.Equal(t, []string{
		"getent passwd deploy",
		"useradd -m -s /bin/bash deploy",
		"getent passwd deploy",
		"usermod -aG wheel deploy",
		"install -d -m 700 -o deploy -g deploy /home/deploy/.ssh",
		"chown deploy:deploy /home/deploy/.ssh/authorized_keys",
		"visudo -c -f /etc/sudoers.d/90-harden-deploy",
	}, runner.Commands())

	for _, call := range runner.Calls() {
		require.Equal(t, "sudo", call[0])
	}

	content, ok := files.Content("/home/deploy/.ssh/authorized_keys")
	require.True(t, ok)
	require.Equal(t, key.Line+"\n", content)
	rule, ok := files.Content("/etc/sudoers.d/90-harden-deploy")
	require.True(t, ok)
	require.Equal(t, "deploy ALL=(ALL) NOPASSWD:ALL\n", rule)
}

func TestEnsureUserKeepsExistingKeysAndUser(t *testing.T) {
	t.Parallel()

	key := newKey(t)
	runner := hosttest.NewRunner().
		On("getent passwd ops", hosttest.Response{Stdout: "ops:x:1000:1000::/srv/ops:/bin/zsh\n"})
	files := hosttest.NewFiles(map[string]string{
		"/srv/ops/.ssh/authorized_keys": "ssh-ed25519 AAAAC3NzaC1lZDI1NTE5AAAAIOld old",
	})
	exec := rootexec.New(runner)

	res, err := EnsureUser(context.Background(), exec, files, "ops", WithAuthorizedKey(key))
	require.NoError(t, err)
	require.False(t, res.UserCreated)
	require.True(t, res.AuthorizedKeyUpdated)
	require.Equal(t, "/srv/ops", res.HomeDir)

	content, _ := files.Content("/srv/ops/.ssh/authorized_keys")
	require.True(t, strings.HasPrefix(content, "ssh-ed25519 AAAAC3NzaC1lZDI1NTE5AAAAIOld old\n"))
	require.True(t, strings.HasSuffix(content, key.Line+"\n"))
}

func TestEnsureUserRemovesManagedDropInWhenDisabled(t *testing.T) {
	t.Parallel()

	runner := hosttest.NewRunner().
		On("getent passwd deploy", hosttest.Response{Stdout: "deploy:x:1001:1001::/home/deploy:/bin/bash\n"})
	files := hosttest.NewFiles(map[string]string{
		"/etc/sudoers.d/90-harden-deploy": "deploy ALL=(ALL) NOPASSWD:ALL\n",
	})

	res, err := EnsureUser(context.Background(), rootexec.New(runner), files, "deploy")
	require.NoError(t, err)
	require.True(t, res.PasswordlessRemoved)
	require.Equal(t, []string{"/etc/sudoers.d/90-harden-deploy"}, files.Removed())
}

func TestEnsureUserRemovesInvalidDropIn(t *testing.T) {
	t.Parallel()

	runner := hosttest.NewRunner().
		On("getent passwd deploy", hosttest.Response{Stdout: "deploy:x:1001:1001::/home/deploy:/bin/bash\n"}).
		On("visudo", hosttest.Response{ExitCode: 1, Stderr: "parse error"})
	files := hosttest.NewFiles(nil)

	_, err := EnsureUser(context.Background(), rootexec.New(runner), files, "deploy", WithPasswordlessSudo(true))
	var cmdErr CommandError
	require.ErrorAs(t, err, &cmdErr)
	require.Equal(t, "visudo", cmdErr.Step)
	_, ok := files.Content("/etc/sudoers.d/90-harden-deploy")
	require.False(t, ok)
}

func TestEnsureUserKeepsPreviousDropInWhenInvalid(t *testing.T) {
	t.Parallel()

	const previous = "deploy ALL=(ALL) ALL\n"
	runner := hosttest.NewRunner().
		On("getent passwd deploy", hosttest.Response{Stdout: "deploy:x:1001:1001::/home/deploy:/bin/bash\n"}).
		On("visudo", hosttest.Response{ExitCode: 1, Stderr: "parse error"})
	files := hosttest.NewFiles(map[string]string{"/etc/sudoers.d/90-harden-deploy": previous})

	_, err := EnsureUser(context.Background(), rootexec.New(runner), files, "deploy", WithPasswordlessSudo(true))
	require.Error(t, err)
	require.Empty(t, files.Removed())
	content, ok := files.Content("/etc/sudoers.d/90-harden-deploy")
	require.True(t, ok)
	require.Equal(t, previous, content)
}

func TestInspectAndSatisfied(t *testing.T) {
	t.Parallel()

	key := newKey(t)
	runner := hosttest.NewRunner().
		On("getent passwd deploy", hosttest.Response{Stdout: "deploy:x:1001:1001::/home/deploy:/bin/bash\n"}).
		On("id -nG deploy", hosttest.Response{Stdout: "deploy sudo\n"})
	files := hosttest.NewFiles(map[string]string{
		"/home/deploy/.ssh/authorized_keys": key.Line + "\n",
	})
	exec := rootexec.New(runner)

	state, err := Inspect(context.Background(), exec, files, "deploy", WithAuthorizedKey(key))
	require.NoError(t, err)
	require.True(t, state.Exists)
	require.True(t, state.InAdminGroup)
	require.True(t, state.KeyPresent)
	require.False(t, state.Passwordless)

	require.True(t, Satisfied(state, WithAuthorizedKey(key)))
	require.False(t, Satisfied(state, WithPasswordlessSudo(true)))
	require.Zero(t, files.Mutations())
}

func TestInspectMissingUser(t *testing.T) {
	t.Parallel()

	runner := hosttest.NewRunner().On("getent passwd", hosttest.Response{ExitCode: 2})
	state, err := Inspect(context.Background(), rootexec.New(runner), hosttest.NewFiles(nil), "ghost")
	require.NoError(t, err)
	require.False(t, state.Exists)
	require.False(t, Satisfied(state))
}

func TestEnsureUserValidation(t *testing.T) {
	t.Parallel()

	runner := hosttest.NewRunner()
	exec := rootexec.New(runner)
	files := hosttest.NewFiles(nil)

	_, err := EnsureUser(context.Background(), nil, files, "deploy")
	require.IsType(t, RunnerError{}, err)

	for _, name := range []string{"", "deploy user", "root;rm -rf /", "Deploy", "-x"} {
		_, err = EnsureUser(context.Background(), exec, files, name)
		require.IsType(t, ValidationError{}, err, name)
	}

	_, err = EnsureUser(context.Background(), exec, files, "deploy", WithShell(""))
	require.IsType(t, OptionError{}, err)
	require.Empty(t, runner.Calls())
}

func TestEnsureUserPropagatesCommandErrors(t *testing.T) {
	t.Parallel()

	runner := hosttest.NewRunner().
		On("getent passwd", hosttest.Response{ExitCode: 2}).
		On("useradd", hosttest.Response{ExitCode: 9, Stderr: "useradd: user 'deploy' already exists"})

	_, err := EnsureUser(context.Background(), rootexec.New(runner), hosttest.NewFiles(nil), "deploy")
	var cmdErr CommandError
	require.ErrorAs(t, err, &cmdErr)
	require.Equal(t, "useradd", cmdErr.Step)
	var execErr rootexec.ExecutionError
	require.ErrorAs(t, err, &execErr)
	require.Equal(t, 9, execErr.ExitCode)
}

func newKey(t *testing.T) *sshkey.PublicKey {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	sshPub, err := ssh.NewPublicKey(pub)
	require.NoError(t, err)
	key, err := sshkey.Parse(string(ssh.MarshalAuthorizedKey(sshPub)), "test")
	require.NoError(t, err)
	return key
}
