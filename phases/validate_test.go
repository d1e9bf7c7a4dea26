package phases

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidators(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		fn    func(string) error
		good  []string
		bad   []string
	}{
		{
			name: "username",
			fn:   ValidUsername,
			good: []string{"deploy", "_svc", "ops-1"},
			bad:  []string{"", "Deploy", "1ops", "a b", "x;id", "$(id)", "ops`id`", "a\nb"},
		},
		{
			name: "port",
			fn:   ValidPort,
			good: []string{"22", "443/tcp", "53/udp", "60000:61000/udp"},
			bad:  []string{"0", "65536", "22/icmp", "60000:61000", "61000:60000/udp", "ssh", "22;reboot"},
		},
		{
			name: "domain",
			fn:   ValidDomain,
			good: []string{"example.com", "a.b.example.org", "example.com."},
			bad:  []string{"localhost", "-bad.com", "exa mple.com", "example.123", "example.com;rm"},
		},
		{
			name: "hostport",
			fn:   ValidHostPort,
			good: []string{"127.0.0.1:8080", "[::1]:3000", "app.internal:80", "localhost:9000"},
			bad:  []string{"127.0.0.1", ":8080", "host:0", "host:http", "bad_host:80"},
		},
		{
			name: "email",
			fn:   ValidEmail,
			good: []string{"ops@example.com"},
			bad:  []string{"ops", "Ops <ops@example.com>", "ops@localhost", "ops@example.com -d evil.com"},
		},
		{
			name: "bool",
			fn:   ValidBool,
			good: []string{"true", "false", "yes", "no", "on", "off", "1"},
			bad:  []string{"maybe"},
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			for _, v := range tc.good {
				require.NoError(t, tc.fn(v), v)
			}
			for _, v := range tc.bad {
				require.Error(t, tc.fn(v), v)
			}
		})
	}
}

func TestEachReportsItem(t *testing.T) {
	t.Parallel()

	err := Each(ValidPort)("22, 80 99999")
	require.EqualError(t, err, `item "99999": expected a port 1-65535, optionally suffixed /tcp or /udp, or a range N:M/tcp|udp`)
	require.NoError(t, Each(ValidPort)(""))
}

func TestCheckInput(t *testing.T) {
	t.Parallel()

	required := InputDefinition{ID: "domain", Required: true, Validate: ValidDomain}
	require.EqualError(t, checkInput(required, ""), "invalid --domain: is required")
	require.EqualError(t, checkInput(required, "nope"), `invalid --domain "nope": expected a fully qualified domain name such as example.com`)
	require.NoError(t, checkInput(required, "example.com"))

	optional := InputDefinition{ID: "email", Validate: ValidEmail}
	require.NoError(t, checkInput(optional, ""))

	level := InputDefinition{ID: "level", Kind: InputKindSelect, Options: []InputOption{{Value: "match"}, {Value: "harden"}}}
	require.NoError(t, checkInput(level, "harden"))
	require.EqualError(t, checkInput(level, "paranoid"), `invalid --level "paranoid": expected one of match, harden`)

	confirm := InputDefinition{ID: "enable", Kind: InputKindConfirm}
	require.Error(t, checkInput(confirm, "sometimes"))
}
