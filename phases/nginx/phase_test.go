package nginx

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/BrianJOC/host-harden/phases"
	"github.com/BrianJOC/host-harden/phases/phasetest"
	"github.com/BrianJOC/host-harden/utils/hosttest"
)

const certPath = "/etc/letsencrypt/live/example.com/fullchain.pem"

func TestBadDomainTouchesNothing(t *testing.T) {
	t.Parallel()

	cases := []map[string]string{
		{InputDomain: "bad domain with spaces"},
		{InputDomain: "example.com; rm -rf /"},
		{InputDomain: "localhost"},
		{InputDomain: "example.com", InputExtraDomains: "www.example.com,-bad-.example.com"},
		{InputDomain: "example.com", InputExtraDomains: "EXAMPLE.com"},
		{InputDomain: "example.com", InputBackends: "127.0.0.1:99999"},
		{InputDomain: "example.com", InputEmail: "Ops <ops@example.com>"},
		{},
	}
	for _, values := range cases {
		h := phasetest.New()
		outcome := h.Run(t, New(), values, false)
		require.Equal(t, phases.StatusFailed, outcome.Status, values)
		require.Equal(t, phases.ClassValidation, outcome.Class, outcome.Message)
		h.Untouched(t)
	}
}

func TestApplyThenSkip(t *testing.T) {
	t.Parallel()

	h := phasetest.New()
	h.Runner.On("dpkg-query -W -f=${Status} nginx",
		hosttest.Response{Stdout: "unknown ok not-installed"},
		hosttest.Response{Stdout: "unknown ok not-installed"},
		hosttest.Response{Stdout: "install ok installed"})

	values := map[string]string{
		InputDomain:       "example.com",
		InputExtraDomains: "www.example.com",
		InputBackends:     "127.0.0.1:8080,127.0.0.1:8081",
		InputEmail:        "ops@example.com",
	}
	outcome := h.Run(t, New(), values, false)
	require.Equal(t, phases.StatusApplied, outcome.Status, outcome.Message)

	site, ok := h.Files.Content(SitePath("example.com"))
	require.True(t, ok)
	require.Contains(t, site, "server_name example.com www.example.com;")
	require.Contains(t, site, "server 127.0.0.1:8081;")
	require.Contains(t, site, "proxy_pass http://harden_example_com;")
	require.Equal(t, []string{
		"apt-get update",
		"env DEBIAN_FRONTEND=noninteractive apt-get install -y nginx certbot python3-certbot-nginx",
		"nginx -t",
		"systemctl enable --now nginx",
		"systemctl reload nginx",
		"certbot --nginx --non-interactive --agree-tos --redirect --email ops@example.com -d example.com -d www.example.com",
	}, h.Mutating())

	// certbot is scripted, so place the chain it would have written.
	require.NoError(t, h.Files.Write(context.Background(), certPath, []byte("chain")))
	h.Reset()
	outcome = h.Run(t, New(), values, false)
	require.Equal(t, phases.StatusSkipped, outcome.Status)
	require.Empty(t, h.Mutating())
}

func TestCertbotEditsDoNotCauseRewrite(t *testing.T) {
	t.Parallel()

	opts := phases.NewOptions(map[string]string{InputDomain: "example.com", InputBackends: "127.0.0.1:8080"})
	edited := RenderSite(opts) + "    listen 443 ssl; # managed by Certbot\n"
	h := phasetest.New(phasetest.WithFiles(map[string]string{SitePath("example.com"): edited}))
	h.Runner.On("dpkg-query", hosttest.Response{Stdout: "install ok installed"})

	outcome := h.Run(t, New(), map[string]string{InputDomain: "example.com"}, false)
	require.Equal(t, phases.StatusApplied, outcome.Status)
	require.Empty(t, h.Files.Writes())
	require.Contains(t, strings.Join(h.Mutating(), "\n"), "--register-unsafely-without-email -d example.com")
}

func TestWithoutCertbot(t *testing.T) {
	t.Parallel()

	h := phasetest.New()
	h.Runner.On("dpkg-query", hosttest.Response{Stdout: "install ok installed"})

	values := map[string]string{InputDomain: "example.com", InputCertbot: "false"}
	opts := phases.NewOptions(map[string]string{InputDomain: "example.com", InputBackends: "127.0.0.1:8080"})

	outcome := h.Run(t, New(), values, false)
	require.Equal(t, phases.StatusApplied, outcome.Status)
	site, _ := h.Files.Content(SitePath("example.com"))
	require.Equal(t, RenderSite(opts), site)
	for _, cmd := range h.Runner.Commands() {
		require.False(t, strings.HasPrefix(cmd, "certbot"), cmd)
	}
}

func TestNginxConfigTestFailureStops(t *testing.T) {
	t.Parallel()

	h := phasetest.New()
	h.Runner.
		On("dpkg-query", hosttest.Response{Stdout: "install ok installed"}).
		On("nginx -t", hosttest.Response{ExitCode: 1, Stderr: "nginx: [emerg] duplicate upstream"})

	outcome := h.Run(t, New(), map[string]string{InputDomain: "example.com"}, false)
	require.Equal(t, phases.StatusFailed, outcome.Status)
	require.Equal(t, phases.ClassExecution, outcome.Class)
	require.Contains(t, outcome.Message, "duplicate upstream")
	require.Equal(t, []string{"nginx -t"}, h.Mutating())
}
