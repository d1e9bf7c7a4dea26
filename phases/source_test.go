package phases

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAgentSource(t *testing.T) {
	t.Parallel()

	values := map[string]string{"user": "deploy", "color": "blue"}
	src := NewAgentSource(values)
	values["user"] = "mutated"

	meta := PhaseMetadata{Key: KeyPrerequisites, Inputs: []InputDefinition{{ID: "user"}, {ID: "ssh-key"}}}
	v, ok, err := src.Value(context.Background(), meta, meta.Inputs[0], "")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "deploy", v)

	_, ok, err = src.Value(context.Background(), meta, meta.Inputs[1], "")
	require.NoError(t, err)
	require.False(t, ok)

	require.Equal(t, []string{"color"}, src.Unknown(meta))

	confirmed, err := src.Confirm(context.Background(), meta, "go?")
	require.NoError(t, err)
	require.True(t, confirmed)
	require.Equal(t, ModeAgent, src.Mode())
}

func TestInteractiveSourceStringifiesAnswers(t *testing.T) {
	t.Parallel()

	answers := map[string]any{"enable": true, "allow": []string{"22", "80"}, "count": 5, "bad": 1.5}
	src := NewInteractiveSource(InputHandlerFunc(func(_ PhaseMetadata, def InputDefinition, _ string) (any, error) {
		return answers[def.ID], nil
	}))
	meta := PhaseMetadata{Key: KeyFirewall}

	cases := map[string]string{"enable": "true", "allow": "22,80", "count": "5", "missing": ""}
	for id, want := range cases {
		got, provided, err := src.Value(context.Background(), meta, InputDefinition{ID: id}, "")
		require.NoError(t, err)
		require.True(t, provided)
		require.Equal(t, want, got, id)
	}

	_, _, err := src.Value(context.Background(), meta, InputDefinition{ID: "bad"}, "")
	require.ErrorAs(t, err, &ValidationError{})
	require.Equal(t, ModeInteractive, src.Mode())
}

func TestInteractiveConfirmDecline(t *testing.T) {
	t.Parallel()

	src := NewInteractiveSource(InputHandlerFunc(func(PhaseMetadata, InputDefinition, string) (any, error) {
		return nil, ErrDeclined
	}))
	_, err := src.Confirm(context.Background(), PhaseMetadata{}, "Apply?")
	require.ErrorIs(t, err, ErrDeclined)
}

func TestOptionsHelpers(t *testing.T) {
	t.Parallel()

	opts := NewOptions(map[string]string{"allow": "22, 80\n443", "enable": " yes ", "name": " deploy "})
	require.Equal(t, []string{"22", "80", "443"}, opts.List("allow"))
	require.True(t, opts.Bool("enable"))
	require.False(t, opts.Bool("missing"))
	require.Equal(t, "deploy", opts.String("name"))
	_, ok := opts.Get("missing")
	require.False(t, ok)

	other := NewOptions(opts.Values())
	other.Force = true
	require.True(t, opts.Equal(other))
	other.Set("name", "ops")
	require.False(t, opts.Equal(other))
}
