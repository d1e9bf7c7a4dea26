package phases

import "context"

// Key identifies a phase. The set is closed; see AllKeys.
type Key string

const (
	KeyPrerequisites Key = "prerequisites"
	KeyFirewall      Key = "firewall"
	KeyUpdates       Key = "updates"
	KeySSH           Key = "ssh"
	KeySudo          Key = "sudo"
	KeyNginx         Key = "nginx"
	KeyFail2ban      Key = "fail2ban"
	KeyUFWLogging    Key = "ufw-logging"
	KeyMosh          Key = "mosh"
)

var allKeys = []Key{
	KeyPrerequisites,
	KeyFirewall,
	KeyUpdates,
	KeySSH,
	KeySudo,
	KeyNginx,
	KeyFail2ban,
	KeyUFWLogging,
	KeyMosh,
}

// AllKeys returns every phase key in menu order.
func AllKeys() []Key {
	return append([]Key(nil), allKeys...)
}

// Valid reports whether k is a known phase key.
func (k Key) Valid() bool {
	for _, known := range allKeys {
		if k == known {
			return true
		}
	}
	return false
}

// ParseKey converts user input into a Key.
func ParseKey(s string) (Key, error) {
	k := Key(s)
	if !k.Valid() {
		return "", UnknownPhaseError{Key: s}
	}
	return k, nil
}

// Phase is one independently idempotent unit of host configuration.
// Satisfied must only read state. Apply must converge to a state where
// Satisfied returns true for the same options.
type Phase interface {
	Metadata() PhaseMetadata
	Satisfied(ctx context.Context, env *Env, opts *Options) (bool, error)
	Apply(ctx context.Context, env *Env, opts *Options) error
}

// OptionsValidator is implemented by phases with cross-field rules. It runs
// after every input passed its own checks and must not touch the host.
type OptionsValidator interface {
	ValidateOptions(opts *Options) error
}

// PhaseMetadata contains descriptive information used by presentation layers.
type PhaseMetadata struct {
	Key         Key
	Title       string
	Description string
	Inputs      []InputDefinition
	Tags        []string
}

// Input returns the definition with the given id.
func (m PhaseMetadata) Input(id string) (InputDefinition, bool) {
	for _, def := range m.Inputs {
		if def.ID == id {
			return def, true
		}
	}
	return InputDefinition{}, false
}

// Observer receives lifecycle callbacks for each phase.
type Observer interface {
	PhaseStarted(meta PhaseMetadata)
	PhaseCompleted(meta PhaseMetadata, outcome Outcome)
}

// InputDefinition describes one option a phase accepts. ID doubles as the
// agent-mode flag name.
type InputDefinition struct {
	ID          string
	Label       string
	Description string
	Kind        InputKind
	Required    bool
	Secret      bool
	Options     []InputOption
	Default     string
	Validate    func(string) error
}

// InputKind identifies how an input should be rendered and parsed.
type InputKind string

const (
	InputKindText    InputKind = "text"
	InputKindSecret  InputKind = "secret"
	InputKindSelect  InputKind = "select"
	InputKindConfirm InputKind = "confirm"
	InputKindList    InputKind = "list"
)

// InputOption represents a selectable value.
type InputOption struct {
	Value       string
	Label       string
	Description string
}
