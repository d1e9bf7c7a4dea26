package phases

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// Mode selects how a phase gathers its inputs.
type Mode string

const (
	ModeInteractive Mode = "interactive"
	ModeAgent       Mode = "agent"
)

// InputSource supplies option values to the runner. Phase bodies never see it,
// so the same Apply serves both modes.
type InputSource interface {
	Mode() Mode
	// Value returns the raw value for def. provided=false means "use the default".
	// reason is non-empty when a previous answer was rejected.
	Value(ctx context.Context, meta PhaseMetadata, def InputDefinition, reason string) (value string, provided bool, err error)
	// Confirm asks a yes/no question before anything is changed.
	Confirm(ctx context.Context, meta PhaseMetadata, question string) (bool, error)
}

// AgentSource serves pre-supplied flag values and never prompts.
type AgentSource struct {
	values map[string]string
}

// NewAgentSource wraps flag values keyed by input id.
func NewAgentSource(values map[string]string) *AgentSource {
	copied := make(map[string]string, len(values))
	for k, v := range values {
		copied[k] = v
	}
	return &AgentSource{values: copied}
}

// Mode implements InputSource.
func (s *AgentSource) Mode() Mode {
	return ModeAgent
}

// Value implements InputSource.
func (s *AgentSource) Value(_ context.Context, _ PhaseMetadata, def InputDefinition, _ string) (string, bool, error) {
	v, ok := s.values[def.ID]
	return v, ok, nil
}

// Confirm implements InputSource; agents have already decided.
func (s *AgentSource) Confirm(context.Context, PhaseMetadata, string) (bool, error) {
	return true, nil
}

// Unknown returns supplied keys that meta does not define.
func (s *AgentSource) Unknown(meta PhaseMetadata) []string {
	var unknown []string
	for k := range s.values {
		if _, ok := meta.Input(k); !ok {
			unknown = append(unknown, k)
		}
	}
	return unknown
}

// InteractiveSource asks an InputHandler for every value.
type InteractiveSource struct {
	handler InputHandler
}

// NewInteractiveSource wraps handler.
func NewInteractiveSource(handler InputHandler) *InteractiveSource {
	return &InteractiveSource{handler: handler}
}

// Mode implements InputSource.
func (s *InteractiveSource) Mode() Mode {
	return ModeInteractive
}

// Value implements InputSource.
func (s *InteractiveSource) Value(_ context.Context, meta PhaseMetadata, def InputDefinition, reason string) (string, bool, error) {
	if s.handler == nil {
		return "", false, ConfigurationError{Reason: "interactive mode requires an input handler"}
	}
	raw, err := s.handler.RequestInput(meta, def, reason)
	if err != nil {
		return "", false, err
	}
	value, err := stringify(raw)
	if err != nil {
		return "", false, ValidationError{Field: def.ID, Reason: err.Error()}
	}
	return value, true, nil
}

// Confirm implements InputSource.
func (s *InteractiveSource) Confirm(ctx context.Context, meta PhaseMetadata, question string) (bool, error) {
	def := InputDefinition{
		ID:      "confirm",
		Label:   question,
		Kind:    InputKindConfirm,
		Default: "true",
	}
	value, _, err := s.Value(ctx, meta, def, "")
	if err != nil {
		return false, err
	}
	return ParseBool(value)
}

func stringify(raw any) (string, error) {
	switch v := raw.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case bool:
		return strconv.FormatBool(v), nil
	case int:
		return strconv.Itoa(v), nil
	case []string:
		return strings.Join(v, ","), nil
	case fmt.Stringer:
		return v.String(), nil
	default:
		return "", fmt.Errorf("unsupported answer type %T", raw)
	}
}
