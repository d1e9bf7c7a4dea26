package pkginstaller

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/BrianJOC/host-harden/utils/distro"
	"github.com/BrianJOC/host-harden/utils/rootexec"
)

func TestEnsureSkipsWhenPackageExists(t *testing.T) {
	t.Parallel()

	r := &fakeExecutor{responses: []fakeResponse{
		{match: "dpkg-query -W -f=${Status} ufw", stdout: "install ok installed"},
	}}

	results, err := New(r, distro.Apt).Ensure(context.Background(), []string{"ufw"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.True(t, results[0].Skipped)
	require.False(t, results[0].Installed)
	require.Len(t, r.calls, 1)
}

func TestEnsureInstallsWhenMissing(t *testing.T) {
	t.Parallel()

	r := &fakeExecutor{responses: []fakeResponse{
		{match: "dpkg-query", code: 1},
		{match: "dpkg-query", stdout: "deinstall ok config-files"},
		{match: "apt-get update"},
		{match: "apt-get install -y nginx certbot"},
	}}

	inst := New(r, distro.Apt)
	results, err := inst.Ensure(context.Background(), []string{"nginx", "certbot"})
	require.NoError(t, err)
	require.True(t, results[0].Installed)
	require.True(t, results[1].Installed)
	require.Equal(t, []string{"env", "DEBIAN_FRONTEND=noninteractive", "apt-get", "install", "-y", "nginx", "certbot"}, r.calls[3])
}

func TestEnsureRefreshesAptIndexOnce(t *testing.T) {
	t.Parallel()

	r := &fakeExecutor{responses: []fakeResponse{
		{match: "dpkg-query", code: 1},
		{match: "apt-get update"},
		{match: "apt-get install -y ufw"},
		{match: "dpkg-query", code: 1},
		{match: "apt-get install -y mosh"},
	}}

	inst := New(r, distro.Apt)
	_, err := inst.Ensure(context.Background(), []string{"ufw"})
	require.NoError(t, err)
	_, err = inst.Ensure(context.Background(), []string{"mosh"})
	require.NoError(t, err)
	require.Empty(t, r.responses)
}

func TestEnsureUsesManagerSpecificCommands(t *testing.T) {
	t.Parallel()

	cases := []struct {
		manager distro.PackageManager
		check   string
		install string
	}{
		{distro.Dnf, "rpm -q fail2ban", "dnf install -y fail2ban"},
		{distro.Yum, "rpm -q fail2ban", "yum install -y fail2ban"},
		{distro.Pacman, "pacman -Q fail2ban", "pacman -S --noconfirm --needed fail2ban"},
		{distro.Zypper, "rpm -q fail2ban", "zypper --non-interactive install fail2ban"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(string(tc.manager), func(t *testing.T) {
			t.Parallel()
			r := &fakeExecutor{responses: []fakeResponse{
				{match: tc.check, code: 1},
				{match: tc.install},
			}}
			_, err := New(r, tc.manager).Ensure(context.Background(), []string{"fail2ban"})
			require.NoError(t, err)
		})
	}
}

func TestEnsureForceReinstalls(t *testing.T) {
	t.Parallel()

	r := &fakeExecutor{responses: []fakeResponse{{match: "dnf install -y sudo"}}}
	results, err := New(r, distro.Dnf).Ensure(context.Background(), []string{"sudo"}, WithForce())
	require.NoError(t, err)
	require.True(t, results[0].Installed)
}

func TestEnsureValidatesInputs(t *testing.T) {
	t.Parallel()

	_, err := New(nil, distro.Apt).Ensure(context.Background(), []string{"ufw"})
	require.IsType(t, RunnerError{}, err)

	r := &fakeExecutor{}
	_, err = New(r, distro.Apt).Ensure(context.Background(), nil)
	require.IsType(t, ValidationError{}, err)

	_, err = New(r, distro.Apt).Ensure(context.Background(), []string{"--allow-unauthenticated"})
	require.IsType(t, ValidationError{}, err)

	_, err = New(r, distro.None).Ensure(context.Background(), []string{"ufw"})
	require.IsType(t, NoPackageManagerError{}, err)
	require.Empty(t, r.calls)
}

func TestEnsurePropagatesInstallErrors(t *testing.T) {
	t.Parallel()

	r := &fakeExecutor{responses: []fakeResponse{
		{match: "rpm -q", code: 1},
		{match: "dnf install", err: rootexec.ExecutionError{ExitCode: 1, Message: "No match for argument"}},
	}}

	_, err := New(r, distro.Dnf).Ensure(context.Background(), []string{"mosh"})
	var cmdErr CommandError
	require.ErrorAs(t, err, &cmdErr)
	var execErr rootexec.ExecutionError
	require.ErrorAs(t, err, &execErr)
}

func TestRemoveOnlyPresentPackages(t *testing.T) {
	t.Parallel()

	r := &fakeExecutor{responses: []fakeResponse{
		{match: "pacman -Q mosh"},
		{match: "pacman -Q tmux", code: 1},
		{match: "pacman -R --noconfirm mosh"},
	}}

	results, err := New(r, distro.Pacman).Remove(context.Background(), []string{"mosh", "tmux"})
	require.NoError(t, err)
	require.True(t, results[0].Removed)
	require.True(t, results[1].Skipped)
}

type fakeExecutor struct {
	responses []fakeResponse
	calls     [][]string
}

type fakeResponse struct {
	match  string
	stdout string
	code   int
	err    error
}

func (f *fakeExecutor) Run(_ context.Context, argv []string, _ ...rootexec.RunOption) (*rootexec.Result, error) {
	f.calls = append(f.calls, argv)
	joined := strings.Join(argv, " ")
	if len(f.responses) == 0 {
		return nil, errors.New("unexpected command: " + joined)
	}

	resp := f.responses[0]
	f.responses = f.responses[1:]

	if resp.match != "" && !strings.Contains(joined, resp.match) {
		return nil, errors.New("unexpected command " + joined + "; expected substring " + resp.match)
	}
	return &rootexec.Result{Stdout: resp.stdout, ExitCode: resp.code}, resp.err
}
