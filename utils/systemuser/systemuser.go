package systemuser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/BrianJOC/host-harden/utils/rootexec"
	"github.com/BrianJOC/host-harden/utils/rootfile"
	"github.com/BrianJOC/host-harden/utils/sshkey"
)

// DefaultSudoersDir is where managed sudoers drop-ins live.
const DefaultSudoersDir = "/etc/sudoers.d"

var usernamePattern = regexp.MustCompile(`^[a-z_][a-z0-9_-]{0,31}$`)

// Executor runs privileged argv commands.
type Executor interface {
	Run(ctx context.Context, argv []string, opts ...rootexec.RunOption) (*rootexec.Result, error)
}

// Files reads and writes root-owned files.
type Files interface {
	Read(ctx context.Context, path string) (string, bool, error)
	Write(ctx context.Context, path string, content []byte, opts ...rootfile.WriteOption) error
	Remove(ctx context.Context, path string) error
}

// Result reports what EnsureUser performed.
type Result struct {
	Username               string
	HomeDir                string
	UserCreated            bool
	AuthorizedKeyUpdated   bool
	AddedToAdminGroup      bool
	PasswordlessConfigured bool
	PasswordlessRemoved    bool
}

// State is the observed configuration of a user.
type State struct {
	Exists        bool
	HomeDir       string
	InAdminGroup  bool
	KeyPresent    bool
	Passwordless  bool
	SudoersDropIn string
}

// Option configures EnsureUser and Inspect.
type Option func(*ensureUserOptions) error

type ensureUserOptions struct {
	shell        string
	adminGroup   string
	sudoersDir   string
	key          *sshkey.PublicKey
	passwordless bool
}

// WithShell overrides the login shell assigned to new users.
func WithShell(shell string) Option {
	return func(opts *ensureUserOptions) error {
		shell = strings.TrimSpace(shell)
		if shell == "" {
			return OptionError{Reason: "shell must not be empty"}
		}
		opts.shell = shell
		return nil
	}
}

// WithAdminGroup overrides the sudo-capable group (default "sudo").
func WithAdminGroup(group string) Option {
	return func(opts *ensureUserOptions) error {
		group = strings.TrimSpace(group)
		if group == "" {
			return OptionError{Reason: "admin group must not be empty"}
		}
		opts.adminGroup = group
		return nil
	}
}

// WithAuthorizedKey makes sure key is present in the user's authorized_keys.
func WithAuthorizedKey(key *sshkey.PublicKey) Option {
	return func(opts *ensureUserOptions) error {
		if key == nil || key.Line == "" {
			return OptionError{Reason: "authorized key must not be empty"}
		}
		opts.key = key
		return nil
	}
}

// WithPasswordlessSudo sets whether the managed NOPASSWD drop-in should exist.
func WithPasswordlessSudo(enabled bool) Option {
	return func(opts *ensureUserOptions) error {
		opts.passwordless = enabled
		return nil
	}
}

// WithSudoersDir overrides the location used for sudoers drop-ins.
func WithSudoersDir(dir string) Option {
	return func(opts *ensureUserOptions) error {
		dir = strings.TrimSpace(dir)
		if dir == "" {
			return OptionError{Reason: "sudoers dir must not be empty"}
		}
		opts.sudoersDir = dir
		return nil
	}
}

// ValidUsername reports whether name is a portable POSIX login name.
func ValidUsername(name string) bool {
	return usernamePattern.MatchString(name)
}

// DropInPath is the managed sudoers drop-in for username.
func DropInPath(sudoersDir, username string) string {
	return filepath.Join(sudoersDir, "90-harden-"+username)
}

// Inspect reads the current state of username without changing anything.
func Inspect(ctx context.Context, exec Executor, files Files, username string, opts ...Option) (*State, error) {
	config, err := buildOptions(exec, files, username, opts)
	if err != nil {
		return nil, err
	}

	state := &State{SudoersDropIn: DropInPath(config.sudoersDir, username)}
	home, exists, err := lookupHome(ctx, exec, username)
	if err != nil {
		return nil, err
	}
	if !exists {
		return state, nil
	}
	state.Exists = true
	state.HomeDir = home

	groups, err := exec.Run(ctx, []string{"id", "-nG", username}, rootexec.Capture())
	if err != nil {
		return nil, CommandError{Step: "id -nG", Err: err}
	}
	for _, g := range strings.Fields(groups.Stdout) {
		if g == config.adminGroup {
			state.InAdminGroup = true
			break
		}
	}

	if config.key != nil {
		content, _, err := files.Read(ctx, authorizedKeysPath(home))
		if err != nil {
			return nil, CommandError{Step: "read authorized_keys", Err: err}
		}
		state.KeyPresent = sshkey.Contains(content, config.key)
	}

	dropIn, ok, err := files.Read(ctx, state.SudoersDropIn)
	if err != nil {
		return nil, CommandError{Step: "read sudoers drop-in", Err: err}
	}
	state.Passwordless = ok && dropIn == passwordlessRule(username)
	return state, nil
}

// Satisfied reports whether state matches what EnsureUser would produce.
func Satisfied(state *State, opts ...Option) bool {
	if state == nil || !state.Exists || !state.InAdminGroup {
		return false
	}
	config := defaultOptions()
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&config); err != nil {
			return false
		}
	}
	if config.key != nil && !state.KeyPresent {
		return false
	}
	return state.Passwordless == config.passwordless
}

// EnsureUser provisions a local admin user with optional SSH key and sudo drop-in.
func EnsureUser(ctx context.Context, exec Executor, files Files, username string, opts ...Option) (*Result, error) {
	config, err := buildOptions(exec, files, username, opts)
	if err != nil {
		return nil, err
	}

	result := &Result{Username: username}
	home, exists, err := lookupHome(ctx, exec, username)
	if err != nil {
		return nil, err
	}
	if !exists {
		if err := runStep(ctx, exec, "useradd", "useradd", "-m", "-s", config.shell, username); err != nil {
			return nil, err
		}
		result.UserCreated = true
		if home, _, err = lookupHome(ctx, exec, username); err != nil {
			return nil, err
		}
		if home == "" {
			home = filepath.Join("/home", username)
		}
	}
	result.HomeDir = home

	if err := runStep(ctx, exec, "add-to-admin-group", "usermod", "-aG", config.adminGroup, username); err != nil {
		return nil, err
	}
	result.AddedToAdminGroup = true

	if config.key != nil {
		updated, err := ensureAuthorizedKey(ctx, exec, files, username, home, config.key)
		if err != nil {
			return nil, err
		}
		result.AuthorizedKeyUpdated = updated
	}

	dropIn := DropInPath(config.sudoersDir, username)
	if config.passwordless {
		if err := configurePasswordlessSudo(ctx, exec, files, username, dropIn); err != nil {
			return nil, err
		}
		result.PasswordlessConfigured = true
	} else {
		_, ok, err := files.Read(ctx, dropIn)
		if err != nil {
			return nil, CommandError{Step: "read sudoers drop-in", Err: err}
		}
		if ok {
			if err := files.Remove(ctx, dropIn); err != nil {
				return nil, CommandError{Step: "remove sudoers drop-in", Err: err}
			}
			result.PasswordlessRemoved = true
		}
	}

	return result, nil
}

func defaultOptions() ensureUserOptions {
	return ensureUserOptions{
		shell:      "/bin/bash",
		adminGroup: "sudo",
		sudoersDir: DefaultSudoersDir,
	}
}

func buildOptions(exec Executor, files Files, username string, opts []Option) (ensureUserOptions, error) {
	if exec == nil || files == nil {
		return ensureUserOptions{}, RunnerError{}
	}
	if !ValidUsername(username) {
		return ensureUserOptions{}, ValidationError{Reason: fmt.Sprintf("invalid username %q", username)}
	}
	config := defaultOptions()
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&config); err != nil {
			return ensureUserOptions{}, err
		}
	}
	return config, nil
}

// lookupHome returns the passwd home directory and whether the user exists.
func lookupHome(ctx context.Context, exec Executor, username string) (string, bool, error) {
	res, err := exec.Run(ctx, []string{"getent", "passwd", username}, rootexec.Capture(), rootexec.AllowFail())
	if err != nil {
		return "", false, CommandError{Step: "getent passwd", Err: err}
	}
	if !res.Success() {
		return "", false, nil
	}
	fields := strings.Split(strings.TrimSpace(res.Stdout), ":")
	if len(fields) < 6 {
		return "", true, nil
	}
	return fields[5], true, nil
}

func ensureAuthorizedKey(ctx context.Context, exec Executor, files Files, username, home string, key *sshkey.PublicKey) (bool, error) {
	sshDir := filepath.Join(home, ".ssh")
	authPath := authorizedKeysPath(home)

	current, _, err := files.Read(ctx, authPath)
	if err != nil {
		return false, CommandError{Step: "read authorized_keys", Err: err}
	}
	if sshkey.Contains(current, key) {
		return false, nil
	}

	if err := runStep(ctx, exec, "create .ssh", "install", "-d", "-m", "700", "-o", username, "-g", username, sshDir); err != nil {
		return false, err
	}
	if current != "" && !strings.HasSuffix(current, "\n") {
		current += "\n"
	}
	if err := files.Write(ctx, authPath, []byte(current+key.Line+"\n"), rootfile.WithMode(0o600)); err != nil {
		return false, CommandError{Step: "write authorized_keys", Err: err}
	}
	if err := runStep(ctx, exec, "chown authorized_keys", "chown", username+":"+username, authPath); err != nil {
		return false, err
	}
	return true, nil
}

func configurePasswordlessSudo(ctx context.Context, exec Executor, files Files, username, dropIn string) error {
	previous, existed, err := files.Read(ctx, dropIn)
	if err != nil {
		return CommandError{Step: "read sudoers drop-in", Err: err}
	}
	if err := files.Write(ctx, dropIn, []byte(passwordlessRule(username)), rootfile.WithMode(os.FileMode(0o440))); err != nil {
		return CommandError{Step: "write sudoers drop-in", Err: err}
	}
	if err := runStep(ctx, exec, "visudo", "visudo", "-c", "-f", dropIn); err != nil {
		// sudo refuses to run at all while a drop-in fails to parse.
		if existed {
			_ = files.Write(ctx, dropIn, []byte(previous), rootfile.WithMode(os.FileMode(0o440)))
		} else {
			_ = files.Remove(ctx, dropIn)
		}
		return err
	}
	return nil
}

func passwordlessRule(username string) string {
	return fmt.Sprintf("%s ALL=(ALL) NOPASSWD:ALL\n", username)
}

func authorizedKeysPath(home string) string {
	return filepath.Join(home, ".ssh", "authorized_keys")
}

func runStep(ctx context.Context, exec Executor, step string, argv ...string) error {
	if _, err := exec.Run(ctx, argv, rootexec.Capture()); err != nil {
		return CommandError{Step: step, Err: err}
	}
	return nil
}
