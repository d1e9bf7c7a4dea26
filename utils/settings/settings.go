package settings

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
)

// Settings holds process-level overrides read from the environment.
type Settings struct {
	OSReleasePath string `env:"HARDEN_OS_RELEASE" envDefault:"/etc/os-release"`
	ScratchDir    string `env:"HARDEN_SCRATCH_DIR"`
	ElevationTool string `env:"HARDEN_ELEVATION_TOOL" envDefault:"sudo"`
	SudoersDir    string `env:"HARDEN_SUDOERS_DIR" envDefault:"/etc/sudoers.d"`
}

// ParseError wraps failures decoding environment overrides.
type ParseError struct {
	Err error
}

func (e ParseError) Error() string {
	return fmt.Sprintf("invalid environment settings: %v", e.Err)
}

func (e ParseError) Unwrap() error {
	return e.Err
}

// Load reads Settings from the process environment.
func Load() (Settings, error) {
	return LoadFrom(nil)
}

// LoadFrom reads Settings from the given environment map; nil means the process environment.
func LoadFrom(environ map[string]string) (Settings, error) {
	var s Settings
	opts := env.Options{}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(&s, opts); err != nil {
		return Settings{}, ParseError{Err: err}
	}
	if s.ScratchDir == "" {
		s.ScratchDir = filepath.Join(os.TempDir(), "harden")
	}
	return s, nil
}
