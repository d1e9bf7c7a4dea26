package sudoclean

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/BrianJOC/host-harden/phases"
	"github.com/BrianJOC/host-harden/utils/rootexec"
	"github.com/BrianJOC/host-harden/utils/rootfile"
)

const (
	// Input identifiers
	InputRemoveNoPasswd = "remove-nopasswd"

	defaultSudoersDir = "/etc/sudoers.d"
)

var (
	activeNoPasswd = regexp.MustCompile(`(?m)^[^#\n]*NOPASSWD`)
	noPasswdTag    = regexp.MustCompile(`NOPASSWD:\s*`)
)

// Phase strips NOPASSWD grants from sudoers drop-ins.
type Phase struct {
	dir string
}

// New creates the sudo phase.
func New() *Phase {
	return &Phase{dir: defaultSudoersDir}
}

// WithSudoersDir overrides the drop-in directory.
func (p *Phase) WithSudoersDir(dir string) *Phase {
	if strings.TrimSpace(dir) != "" {
		p.dir = dir
	}
	return p
}

func (p *Phase) Metadata() phases.PhaseMetadata {
	return phases.PhaseMetadata{
		Key:         phases.KeySudo,
		Title:       "Sudo Cleanup",
		Description: "Require a password for sudo by removing NOPASSWD rules from " + p.dir + ".",
		Inputs: []phases.InputDefinition{
			{
				ID:          InputRemoveNoPasswd,
				Label:       "Remove NOPASSWD rules",
				Description: "Rewrite drop-ins so every sudo rule asks for a password.",
				Kind:        phases.InputKindConfirm,
				Default:     "true",
			},
		},
		Tags: []string{"sudo"},
	}
}

func (p *Phase) Satisfied(ctx context.Context, env *phases.Env, opts *phases.Options) (bool, error) {
	if !opts.Bool(InputRemoveNoPasswd) {
		return true, nil
	}
	files, err := p.offenders(ctx, env)
	if err != nil {
		return false, err
	}
	return len(files) == 0, nil
}

func (p *Phase) Apply(ctx context.Context, env *phases.Env, opts *phases.Options) error {
	if !opts.Bool(InputRemoveNoPasswd) {
		return nil
	}
	files, err := p.offenders(ctx, env)
	if err != nil {
		return err
	}
	for _, path := range files {
		content, ok, err := env.Files.Read(ctx, path)
		if err != nil {
			return err
		}
		if !ok || !HasNoPasswd(content) {
			continue
		}
		cleaned := Strip(content)
		// visudo reads the candidate from stdin so nothing invalid is ever installed.
		if _, err := env.Exec.Run(ctx, []string{"visudo", "-c", "-f", "-"}, rootexec.WithStdin(cleaned), rootexec.Capture()); err != nil {
			return fmt.Errorf("%s would not parse without NOPASSWD: %w", path, err)
		}
		if err := env.Files.Write(ctx, path, []byte(cleaned), rootfile.WithMode(0o440)); err != nil {
			return err
		}
		env.Log().Info("removed NOPASSWD", zap.String("path", path))
	}
	return nil
}

// Strip removes NOPASSWD tags from every non-comment line.
func Strip(content string) string {
	lines := strings.SplitAfter(content, "\n")
	for i, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "#") {
			continue
		}
		lines[i] = noPasswdTag.ReplaceAllString(line, "")
	}
	return strings.Join(lines, "")
}

// offenders lists drop-ins sudo would read that grant NOPASSWD.
func (p *Phase) offenders(ctx context.Context, env *phases.Env) ([]string, error) {
	res, err := env.Query(ctx, "grep", "-rlE", "^[^#]*NOPASSWD", p.dir)
	if err != nil {
		return nil, err
	}
	switch res.ExitCode {
	case 0:
	case 1:
		return nil, nil
	default:
		if strings.Contains(res.Stderr, "No such file") {
			return nil, nil
		}
		return nil, rootexec.ExecutionError{Argv: []string{"grep", "-rlE", "^[^#]*NOPASSWD", p.dir}, ExitCode: res.ExitCode, Message: strings.TrimSpace(res.Stderr)}
	}

	var out []string
	for _, line := range strings.Split(strings.TrimSpace(res.Stdout), "\n") {
		path := strings.TrimSpace(line)
		if path == "" || ignoredBySudo(filepath.Base(path)) {
			continue
		}
		out = append(out, path)
	}
	return out, nil
}

// sudo skips drop-ins whose names contain a dot or end in '~'.
func ignoredBySudo(name string) bool {
	return strings.Contains(name, ".") || strings.HasSuffix(name, "~")
}

// HasNoPasswd reports whether content grants NOPASSWD on an active line.
func HasNoPasswd(content string) bool {
	return activeNoPasswd.MatchString(content)
}
