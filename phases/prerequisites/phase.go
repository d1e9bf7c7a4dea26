package prerequisites

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/BrianJOC/host-harden/phases"
	"github.com/BrianJOC/host-harden/utils/sshkey"
	"github.com/BrianJOC/host-harden/utils/systemuser"
)

const (
	// Input identifiers
	InputUser         = "user"
	InputSSHKey       = "ssh-key"
	InputSudoNoPasswd = "sudo-nopasswd"
)

// Phase provisions the admin user that every later phase assumes.
type Phase struct {
	sudoersDir string
}

// New creates the prerequisites phase.
func New() *Phase {
	return &Phase{sudoersDir: systemuser.DefaultSudoersDir}
}

// WithSudoersDir overrides where the NOPASSWD drop-in lives.
func (p *Phase) WithSudoersDir(dir string) *Phase {
	if strings.TrimSpace(dir) != "" {
		p.sudoersDir = dir
	}
	return p
}

func (p *Phase) Metadata() phases.PhaseMetadata {
	return phases.PhaseMetadata{
		Key:         phases.KeyPrerequisites,
		Title:       "Admin User",
		Description: "Install sudo and create a non-root admin user with an SSH key.",
		Inputs: []phases.InputDefinition{
			{
				ID:          InputUser,
				Label:       "Username",
				Description: "Login name of the admin user to create or update.",
				Kind:        phases.InputKindText,
				Required:    true,
				Validate:    phases.ValidUsername,
			},
			{
				ID:          InputSSHKey,
				Label:       "SSH Public Key",
				Description: "An authorized_keys line or the path to a .pub file.",
				Kind:        phases.InputKindText,
				Validate:    validKey,
			},
			{
				ID:          InputSudoNoPasswd,
				Label:       "Passwordless sudo",
				Description: "Let the user run sudo without a password.",
				Kind:        phases.InputKindConfirm,
				Default:     "false",
			},
		},
		Tags: []string{"users", "sudo"},
	}
}

func (p *Phase) Satisfied(ctx context.Context, env *phases.Env, opts *phases.Options) (bool, error) {
	userOpts, err := p.userOptions(env, opts)
	if err != nil {
		return false, err
	}
	installed, err := env.Packages.Installed(ctx, "sudo")
	if err != nil || !installed {
		return false, err
	}
	state, err := systemuser.Inspect(ctx, env.Exec, env.Files, opts.String(InputUser), userOpts...)
	if err != nil {
		return false, err
	}
	return systemuser.Satisfied(state, userOpts...), nil
}

func (p *Phase) Apply(ctx context.Context, env *phases.Env, opts *phases.Options) error {
	userOpts, err := p.userOptions(env, opts)
	if err != nil {
		return err
	}
	if _, err := env.Packages.Ensure(ctx, []string{"sudo"}); err != nil {
		return err
	}
	result, err := systemuser.EnsureUser(ctx, env.Exec, env.Files, opts.String(InputUser), userOpts...)
	if err != nil {
		return err
	}
	env.Log().Info("admin user ready",
		zap.String("user", result.Username),
		zap.Bool("created", result.UserCreated),
		zap.Bool("key_added", result.AuthorizedKeyUpdated),
		zap.Bool("nopasswd", result.PasswordlessConfigured),
	)
	return nil
}

func (p *Phase) userOptions(env *phases.Env, opts *phases.Options) ([]systemuser.Option, error) {
	userOpts := []systemuser.Option{
		systemuser.WithSudoersDir(p.sudoersDir),
		systemuser.WithPasswordlessSudo(opts.Bool(InputSudoNoPasswd)),
	}
	if group := env.Context.AdminGroup; group != "" {
		userOpts = append(userOpts, systemuser.WithAdminGroup(group))
	}
	if value := opts.String(InputSSHKey); value != "" {
		key, err := sshkey.Resolve(value)
		if err != nil {
			return nil, err
		}
		userOpts = append(userOpts, systemuser.WithAuthorizedKey(key))
	}
	return userOpts, nil
}

func validKey(value string) error {
	_, err := sshkey.Resolve(value)
	return err
}
