package rootexec

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunPrefixesElevationTool(t *testing.T) {
	t.Parallel()

	r := &fakeRunner{responses: []fakeResponse{{match: "sudo ufw status"}}}
	e := New(r, WithElevation("sudo"))

	_, err := e.Run(context.Background(), []string{"ufw", "status"}, Capture())
	require.NoError(t, err)
	require.Equal(t, [][]string{{"sudo", "ufw", "status"}}, r.calls)
}

func TestRunWithoutElevationLeavesArgvUntouched(t *testing.T) {
	t.Parallel()

	r := &fakeRunner{responses: []fakeResponse{{match: "ufw status"}}}
	e := New(r)

	_, err := e.Run(context.Background(), []string{"ufw", "status"})
	require.NoError(t, err)
	require.Equal(t, [][]string{{"ufw", "status"}}, r.calls)
	require.False(t, e.Elevated())
}

func TestRunReturnsExecutionErrorWithStderr(t *testing.T) {
	t.Parallel()

	r := &fakeRunner{responses: []fakeResponse{{match: "sshd -t", stderr: "bad option\n", code: 255}}}
	e := New(r)

	res, err := e.Run(context.Background(), []string{"sshd", "-t"}, Capture())
	require.Error(t, err)
	var execErr ExecutionError
	require.ErrorAs(t, err, &execErr)
	require.Equal(t, 255, execErr.ExitCode)
	require.Equal(t, "bad option", execErr.Message)
	require.Equal(t, []string{"sshd", "-t"}, execErr.Argv)
	require.Equal(t, 255, res.ExitCode)
}

func TestRunFallsBackToStdoutThenGenericMessage(t *testing.T) {
	t.Parallel()

	r := &fakeRunner{responses: []fakeResponse{
		{match: "nginx -t", stdout: "syntax error", code: 1},
		{match: "false", code: 1},
	}}
	e := New(r)

	_, err := e.Run(context.Background(), []string{"nginx", "-t"}, Capture())
	var execErr ExecutionError
	require.ErrorAs(t, err, &execErr)
	require.Equal(t, "syntax error", execErr.Message)

	_, err = e.Run(context.Background(), []string{"false"})
	require.ErrorAs(t, err, &execErr)
	require.Equal(t, "command failed", execErr.Message)
}

func TestRunAllowFailReturnsStatus(t *testing.T) {
	t.Parallel()

	r := &fakeRunner{responses: []fakeResponse{{match: "id -u", code: 1}}}
	e := New(r)

	res, err := e.Query(context.Background(), "id", "-u", "deploy")
	require.NoError(t, err)
	require.Equal(t, 1, res.ExitCode)
	require.False(t, res.Success())
}

func TestRunPipesStdin(t *testing.T) {
	t.Parallel()

	r := &fakeRunner{responses: []fakeResponse{{match: "tee"}}}
	e := New(r)

	_, err := e.Run(context.Background(), []string{"tee", "-a", "/etc/motd"}, WithStdin("hello\n"))
	require.NoError(t, err)
	require.Equal(t, []string{"hello\n"}, r.stdin)
}

func TestRunStreamsWhenNotCapturing(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	r := &fakeRunner{responses: []fakeResponse{{match: "apt-get", stdout: "Reading package lists..."}}}
	e := New(r, WithOutput(&out, io.Discard))

	res, err := e.Run(context.Background(), []string{"apt-get", "update"})
	require.NoError(t, err)
	require.Empty(t, res.Stdout)
	require.Equal(t, "Reading package lists...", out.String())
}

func TestRunRejectsEmptyArgv(t *testing.T) {
	t.Parallel()

	e := New(&fakeRunner{})
	_, err := e.Run(context.Background(), nil)
	require.IsType(t, ArgvError{}, err)
}

func TestRunWrapsStartFailures(t *testing.T) {
	t.Parallel()

	r := &fakeRunner{responses: []fakeResponse{{match: "certbot", err: errors.New("executable file not found")}}}
	e := New(r)

	_, err := e.Run(context.Background(), []string{"certbot"})
	var startErr StartError
	require.ErrorAs(t, err, &startErr)
}

func TestOSRunnerPassesMetacharactersAsSingleToken(t *testing.T) {
	t.Parallel()

	e := New(OSRunner{})
	payload := "deploy; rm -rf / && echo $HOME"
	res, err := e.Run(context.Background(), []string{"printf", "%s", payload}, Capture())
	require.NoError(t, err)
	require.Equal(t, payload, res.Stdout)
}

func TestOSRunnerReportsExitCode(t *testing.T) {
	t.Parallel()

	e := New(OSRunner{})
	res, err := e.Query(context.Background(), "false")
	require.NoError(t, err)
	require.Equal(t, 1, res.ExitCode)
}

type fakeRunner struct {
	responses []fakeResponse
	calls     [][]string
	stdin     []string
}

type fakeResponse struct {
	match  string
	stdout string
	stderr string
	code   int
	err    error
}

func (f *fakeRunner) Run(_ context.Context, cmd Command) (int, error) {
	f.calls = append(f.calls, cmd.Argv)
	if cmd.Stdin != nil {
		data, _ := io.ReadAll(cmd.Stdin)
		f.stdin = append(f.stdin, string(data))
	}
	joined := strings.Join(cmd.Argv, " ")
	if len(f.responses) == 0 {
		return -1, errors.New("unexpected command: " + joined)
	}

	resp := f.responses[0]
	f.responses = f.responses[1:]

	if resp.match != "" && !strings.Contains(joined, resp.match) {
		return -1, errors.New("unexpected command " + joined + "; expected substring " + resp.match)
	}
	if cmd.Stdout != nil {
		_, _ = io.WriteString(cmd.Stdout, resp.stdout)
	}
	if cmd.Stderr != nil {
		_, _ = io.WriteString(cmd.Stderr, resp.stderr)
	}
	return resp.code, resp.err
}
