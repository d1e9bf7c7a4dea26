package plan

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/BrianJOC/host-harden/phases"
)

func TestParseTOML(t *testing.T) {
	t.Parallel()

	p, err := ParseTOML([]byte(`
force = true

[[phases]]
phase = "firewall"
[phases.options]
allow = [22, 80, 443]
enable = true

[[phases]]
phase = "ssh"
force = false
[phases.options]
level = "harden"
allow-users = ["deploy", "ops"]
`))
	require.NoError(t, err)
	require.Equal(t, []Step{
		{Key: phases.KeyFirewall, Force: true, Options: map[string]string{"allow": "22,80,443", "enable": "true"}},
		{Key: phases.KeySSH, Force: false, Options: map[string]string{"level": "harden", "allow-users": "deploy,ops"}},
	}, p.Steps)
}

func TestParseTOMLRejectsMalformedDocuments(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"empty":         "  \n",
		"no phases":     "force = true\n",
		"unknown field": "[[phases]]\nphase = \"mosh\"\nopts = 1\n",
		"unknown phase": "[[phases]]\nphase = \"kernel\"\n",
		"nested option": "[[phases]]\nphase = \"nginx\"\n[phases.options.domain]\nname = \"example.com\"\n",
		"syntax":        "[[phases]\n",
	}
	for name, doc := range cases {
		_, err := ParseTOML([]byte(doc))
		require.Error(t, err, name)
	}
}

func TestLoadPicksFormatByExtension(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "plan.TOML")
	require.NoError(t, os.WriteFile(path, []byte("[[phases]]\nphase = \"mosh\"\n[phases.options]\nenable = false\n"), 0o600))

	p, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, phases.KeyMosh, p.Steps[0].Key)
	require.Equal(t, "false", p.Steps[0].Options["enable"])
}
