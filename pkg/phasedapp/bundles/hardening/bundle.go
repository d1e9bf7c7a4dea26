package hardening

import (
	"github.com/BrianJOC/host-harden/phases"
	"github.com/BrianJOC/host-harden/phases/fail2ban"
	"github.com/BrianJOC/host-harden/phases/firewall"
	"github.com/BrianJOC/host-harden/phases/mosh"
	"github.com/BrianJOC/host-harden/phases/nginx"
	"github.com/BrianJOC/host-harden/phases/prerequisites"
	"github.com/BrianJOC/host-harden/phases/sshharden"
	"github.com/BrianJOC/host-harden/phases/sudoclean"
	"github.com/BrianJOC/host-harden/phases/ufwlogging"
	"github.com/BrianJOC/host-harden/phases/updates"
	"github.com/BrianJOC/host-harden/utils/systemuser"
)

// Option customizes the bundled phases.
type Option func(*config)

type config struct {
	sudoersDir string
}

// WithSudoersDir points the phases that manage sudoers drop-ins at dir.
func WithSudoersDir(dir string) Option {
	return func(c *config) {
		if dir != "" {
			c.sudoersDir = dir
		}
	}
}

// Bundle returns every hardening phase in menu order.
func Bundle(opts ...Option) []phases.Phase {
	cfg := config{sudoersDir: systemuser.DefaultSudoersDir}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return []phases.Phase{
		prerequisites.New().WithSudoersDir(cfg.sudoersDir),
		firewall.New(),
		updates.New(),
		sshharden.New(),
		sudoclean.New().WithSudoersDir(cfg.sudoersDir),
		nginx.New(),
		fail2ban.New(),
		ufwlogging.New(),
		mosh.New(),
	}
}

// Registry returns a registry holding Bundle.
func Registry(opts ...Option) (*phases.Registry, error) {
	return phases.NewRegistry(Bundle(opts...)...)
}
