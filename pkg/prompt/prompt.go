// Package prompt asks the operator for phase inputs with huh forms.
package prompt

import (
	"errors"
	"io"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/BrianJOC/host-harden/phases"
)

// Handler implements phases.InputHandler. Aborting a form (Esc or Ctrl+C)
// declines the phase.
type Handler struct {
	theme      *huh.Theme
	input      io.Reader
	output     io.Writer
	accessible bool
	program    []tea.ProgramOption
}

// Option configures a Handler.
type Option func(*Handler)

// WithIO redirects form input and output, e.g. to a TTY other than stdio.
func WithIO(in io.Reader, out io.Writer) Option {
	return func(h *Handler) {
		h.input = in
		h.output = out
	}
}

// WithAccessible renders plain line prompts for screen readers and dumb terminals.
func WithAccessible(enabled bool) Option {
	return func(h *Handler) {
		h.accessible = enabled
	}
}

// WithProgramOptions passes options to the underlying Bubble Tea program.
func WithProgramOptions(opts ...tea.ProgramOption) Option {
	return func(h *Handler) {
		h.program = append(h.program, opts...)
	}
}

// New creates a Handler using Theme.
func New(opts ...Option) *Handler {
	h := &Handler{theme: Theme()}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// RequestInput implements phases.InputHandler.
func (h *Handler) RequestInput(meta phases.PhaseMetadata, def phases.InputDefinition, reason string) (any, error) {
	q := newQuestion(meta, def, reason)
	if err := h.run(q.field); err != nil {
		return nil, err
	}
	return q.answer(), nil
}

func (h *Handler) run(fields ...huh.Field) error {
	form := huh.NewForm(huh.NewGroup(fields...)).
		WithTheme(h.theme).
		WithAccessible(h.accessible).
		WithShowHelp(true)
	if h.input != nil {
		form = form.WithInput(h.input)
	}
	if h.output != nil {
		form = form.WithOutput(h.output)
	}
	if len(h.program) > 0 {
		form = form.WithProgramOptions(h.program...)
	}
	err := form.Run()
	if errors.Is(err, huh.ErrUserAborted) {
		return phases.ErrDeclined
	}
	return err
}

// question binds one input definition to a huh field and its answer.
type question struct {
	field  huh.Field
	text   string
	choice bool
	kind   phases.InputKind
}

func newQuestion(meta phases.PhaseMetadata, def phases.InputDefinition, reason string) *question {
	q := &question{kind: def.Kind}
	title := meta.Title + ": " + label(def)
	desc := describe(def, reason)

	switch def.Kind {
	case phases.InputKindConfirm:
		q.choice, _ = phases.ParseBool(def.Default)
		q.field = huh.NewConfirm().
			Title(title).
			Description(desc).
			Affirmative("Yes").
			Negative("No").
			Value(&q.choice)

	case phases.InputKindSelect:
		q.text = def.Default
		options := make([]huh.Option[string], 0, len(def.Options))
		for _, opt := range def.Options {
			text := opt.Label
			if text == "" {
				text = opt.Value
			}
			if opt.Description != "" {
				text += " - " + opt.Description
			}
			options = append(options, huh.NewOption(text, opt.Value))
		}
		q.field = huh.NewSelect[string]().
			Title(title).
			Description(desc).
			Options(options...).
			Value(&q.text)

	default:
		input := huh.NewInput().
			Title(title).
			Description(desc).
			Placeholder(placeholder(def)).
			Value(&q.text)
		if def.Kind == phases.InputKindSecret || def.Secret {
			input = input.EchoMode(huh.EchoModePassword)
		}
		q.field = input
	}
	return q
}

func (q *question) answer() any {
	if q.kind == phases.InputKindConfirm {
		return q.choice
	}
	return strings.TrimSpace(q.text)
}

func label(def phases.InputDefinition) string {
	if def.Label != "" {
		return def.Label
	}
	return def.ID
}

func describe(def phases.InputDefinition, reason string) string {
	var parts []string
	if reason != "" {
		parts = append(parts, errorStyle.Render(reason))
	}
	if def.Description != "" {
		parts = append(parts, def.Description)
	}
	switch {
	case def.Required && def.Default == "":
		parts = append(parts, "Required.")
	case def.Default != "" && def.Kind != phases.InputKindConfirm && def.Kind != phases.InputKindSelect:
		parts = append(parts, "Leave empty for "+def.Default+".")
	}
	return strings.Join(parts, "\n")
}

func placeholder(def phases.InputDefinition) string {
	if def.Kind == phases.InputKindSecret || def.Secret {
		return ""
	}
	if def.Default != "" {
		return def.Default
	}
	if def.Kind == phases.InputKindList {
		return "comma separated"
	}
	return ""
}

var errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))

// Theme is the form theme shared by the menu and phase prompts.
func Theme() *huh.Theme {
	t := huh.ThemeCharm()
	t.Focused.Base = lipgloss.NewStyle().PaddingLeft(2)
	t.Blurred.Base = lipgloss.NewStyle().PaddingLeft(2)
	t.Focused.Title = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.AdaptiveColor{Light: "#1a1a2e", Dark: "#f8f8f2"})
	t.Focused.Description = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	return t
}
