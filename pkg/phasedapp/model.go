package phasedapp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/BrianJOC/host-harden/phases"
)

const maxLogLines = 20

type rowStatus int

const (
	rowPending rowStatus = iota
	rowRunning
	rowApplied
	rowSkipped
	rowFailed
)

func (s rowStatus) String() string {
	switch s {
	case rowPending:
		return "pending"
	case rowRunning:
		return "running"
	case rowApplied:
		return "applied"
	case rowSkipped:
		return "skipped"
	case rowFailed:
		return "failed"
	default:
		return "unknown"
	}
}

func statusFromOutcome(o phases.Outcome) rowStatus {
	switch o.Status {
	case phases.StatusApplied:
		return rowApplied
	case phases.StatusSkipped:
		return rowSkipped
	default:
		return rowFailed
	}
}

type focusArea int

const (
	focusPhases focusArea = iota
	focusPrompt
)

type phaseRow struct {
	meta    phases.PhaseMetadata
	status  rowStatus
	message string
	err     error
	outcome phases.Outcome
	logs    []string
}

type model struct {
	runner *phases.Runner
	source phases.InputSource
	bridge *bridge
	runCtx context.Context
	force  bool

	rows  map[phases.Key]*phaseRow
	order []phases.Key

	spinner spinner.Model
	prompt  textinput.Model

	activePrompt *inputRequestMsg
	choices      []phases.InputOption
	choiceIndex  int

	selected       int
	focus          focusArea
	helpVisible    bool
	actionsVisible bool
	pipelineActive bool

	secrets   map[string]struct{}
	statusMsg string

	width  int
	height int

	startIndex int
}

func newModel(cfg Config, metas []phases.PhaseMetadata, b *bridge, runCtx context.Context, start int) *model {
	runnerOpts := append([]phases.RunnerOption{phases.WithObserver(b)}, cfg.RunnerOptions...)

	rows := make(map[phases.Key]*phaseRow, len(metas))
	order := make([]phases.Key, 0, len(metas))
	for _, meta := range metas {
		rows[meta.Key] = &phaseRow{meta: meta}
		order = append(order, meta.Key)
	}

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = spinnerStyle

	ti := textinput.New()
	ti.Placeholder = "enter value"
	ti.Blur()

	if runCtx == nil {
		runCtx = context.Background()
	}

	return &model{
		runner:     phases.NewRunner(cfg.Registry, cfg.Env, runnerOpts...),
		source:     phases.NewInteractiveSource(b),
		bridge:     b,
		runCtx:     runCtx,
		force:      cfg.Force,
		rows:       rows,
		order:      order,
		spinner:    sp,
		prompt:     ti,
		secrets:    make(map[string]struct{}),
		statusMsg:  "Waiting for the first phase…",
		startIndex: start,
	}
}

func (m *model) Init() tea.Cmd {
	return tea.Batch(
		waitEventCmd(m.bridge),
		waitInputCmd(m.bridge),
		m.startFrom(m.startIndex),
	)
}

// startFrom resets rows from start onward and runs them in order.
func (m *model) startFrom(start int) tea.Cmd {
	if start < 0 {
		start = 0
	}
	if start >= len(m.order) {
		m.setStatus("Nothing to run")
		return nil
	}

	requests := make([]phases.Request, 0, len(m.order)-start)
	for _, key := range m.order[start:] {
		row := m.rows[key]
		row.status = rowPending
		row.message = ""
		row.err = nil
		row.outcome = phases.Outcome{}
		row.logs = nil
		requests = append(requests, phases.Request{Key: key, Source: m.source, Force: m.force})
	}
	m.pipelineActive = true
	m.actionsVisible = false
	return tea.Batch(runPipelineCmd(m.runCtx, m.runner, requests), m.spinner.Tick)
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		shrunk := (m.width > 0 && msg.Width < m.width) || (m.height > 0 && msg.Height < m.height)
		m.width, m.height = msg.Width, msg.Height
		if shrunk {
			return m, tea.ClearScreen
		}
		return m, nil

	case tea.KeyMsg:
		return m, m.handleKey(msg)

	case spinner.TickMsg:
		if !m.pipelineActive {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case phaseStartedMsg:
		m.onStarted(msg.meta)
		return m, waitEventCmd(m.bridge)

	case phaseCompletedMsg:
		m.onCompleted(msg.meta, msg.outcome)
		return m, waitEventCmd(m.bridge)

	case inputRequestMsg:
		m.openPrompt(msg)
		return m, waitInputCmd(m.bridge)

	case pipelineFinishedMsg:
		m.pipelineActive = false
		m.setStatus(summarize(msg.outcomes))
		return m, nil
	}
	return m, nil
}

func (m *model) handleKey(msg tea.KeyMsg) tea.Cmd {
	if msg.Type == tea.KeyCtrlC {
		return tea.Quit
	}
	if m.actionsVisible {
		return m.handleActionKey(msg)
	}

	prompting := m.activePrompt != nil
	if prompting && m.focus == focusPrompt {
		switch msg.Type {
		case tea.KeyEnter:
			m.submitPrompt()
			return nil
		case tea.KeyEsc:
			m.declinePrompt()
			return nil
		case tea.KeyTab, tea.KeyShiftTab:
			m.focus = focusPhases
			return nil
		}
		if m.choices != nil {
			m.moveChoice(msg)
			return nil
		}
		var cmd tea.Cmd
		m.prompt, cmd = m.prompt.Update(msg)
		return cmd
	}

	switch msg.Type {
	case tea.KeyUp:
		m.moveSelection(-1)
	case tea.KeyDown:
		m.moveSelection(1)
	case tea.KeyTab, tea.KeyShiftTab:
		if prompting {
			m.focus = focusPrompt
		}
	case tea.KeyEnter:
		m.actionsVisible = true
		m.helpVisible = false
	case tea.KeyEsc:
		m.helpVisible = false
	case tea.KeyRunes:
		if len(msg.Runes) != 1 {
			return nil
		}
		switch msg.Runes[0] {
		case 'k':
			m.moveSelection(-1)
		case 'j':
			m.moveSelection(1)
		case 'r', 'R':
			return m.restart(0)
		case '?':
			m.helpVisible = !m.helpVisible
		case 'q':
			if !m.pipelineActive {
				return tea.Quit
			}
		}
	}
	return nil
}

func (m *model) handleActionKey(msg tea.KeyMsg) tea.Cmd {
	m.actionsVisible = false
	if msg.Type != tea.KeyRunes || len(msg.Runes) != 1 {
		return nil
	}
	switch msg.Runes[0] {
	case '2', 'r', 'R':
		return m.restart(m.selected)
	case '3', 'c', 'C':
		m.copySelectedError()
	}
	return nil
}

func (m *model) restart(from int) tea.Cmd {
	if m.pipelineActive {
		m.setStatus("Phases are still running")
		return nil
	}
	if from < len(m.order) {
		m.setStatusf("Running from %s", m.rows[m.order[from]].meta.Title)
	}
	return m.startFrom(from)
}

func (m *model) onStarted(meta phases.PhaseMetadata) {
	row, ok := m.rows[meta.Key]
	if !ok {
		return
	}
	row.status = rowRunning
	row.err = nil
	m.appendLog(row, meta.Title+" started")
	m.setStatusf("Running %s", meta.Title)
}

func (m *model) onCompleted(meta phases.PhaseMetadata, outcome phases.Outcome) {
	row, ok := m.rows[meta.Key]
	if !ok {
		return
	}
	row.status = statusFromOutcome(outcome)
	row.message = outcome.Message
	row.err = outcome.Err
	row.outcome = outcome
	m.appendLog(row, outcome.Message)
	m.setStatus(outcome.Message)
}

func (m *model) openPrompt(req inputRequestMsg) {
	if req.reason != "" && req.input.Kind == phases.InputKindSecret {
		req.reason = "Previous entry was rejected; enter a new value."
	}
	m.activePrompt = &req
	m.focus = focusPrompt
	m.actionsVisible = false
	m.helpVisible = false
	m.choices = promptChoices(req.input)
	m.choiceIndex = 0

	if m.choices != nil {
		for i, opt := range m.choices {
			if opt.Value == req.input.Default {
				m.choiceIndex = i
			}
		}
		m.prompt.Blur()
		m.setStatusf("%s: choose %s", req.meta.Title, req.input.Label)
		return
	}

	m.prompt.EchoMode = textinput.EchoNormal
	if req.input.Kind == phases.InputKindSecret || req.input.Secret {
		m.prompt.EchoMode = textinput.EchoPassword
		m.prompt.EchoCharacter = '•'
	}
	m.prompt.Placeholder = placeholder(req.input)
	m.prompt.SetValue("")
	m.prompt.Focus()
	m.setStatusf("%s needs %s", req.meta.Title, req.input.Label)
}

// promptChoices returns the options of select and confirm inputs, nil for free text.
func promptChoices(def phases.InputDefinition) []phases.InputOption {
	switch def.Kind {
	case phases.InputKindSelect:
		return append([]phases.InputOption{}, def.Options...)
	case phases.InputKindConfirm:
		return []phases.InputOption{
			{Value: "true", Label: "Yes"},
			{Value: "false", Label: "No"},
		}
	default:
		return nil
	}
}

func (m *model) submitPrompt() {
	req := m.activePrompt
	if req == nil {
		return
	}
	var value string
	if m.choices != nil {
		if len(m.choices) == 0 {
			m.setStatus("No options available")
			return
		}
		value = m.choices[m.choiceIndex].Value
	} else {
		value = strings.TrimSpace(m.prompt.Value())
		if req.input.Kind == phases.InputKindSecret || req.input.Secret {
			m.trackSecret(value)
		}
	}
	m.closePrompt()
	m.bridge.respond(value, nil)
	m.setStatus("Input submitted")
}

func (m *model) declinePrompt() {
	if m.activePrompt == nil {
		return
	}
	title := m.activePrompt.meta.Title
	m.closePrompt()
	m.bridge.respond(nil, phases.ErrDeclined)
	m.setStatusf("Skipping %s", title)
}

func (m *model) closePrompt() {
	m.activePrompt = nil
	m.choices = nil
	m.prompt.SetValue("")
	m.prompt.EchoMode = textinput.EchoNormal
	m.prompt.Blur()
	m.focus = focusPhases
}

func (m *model) moveChoice(msg tea.KeyMsg) {
	count := len(m.choices)
	if count == 0 {
		return
	}
	delta := 0
	switch msg.Type {
	case tea.KeyUp:
		delta = -1
	case tea.KeyDown:
		delta = 1
	case tea.KeyRunes:
		if len(msg.Runes) != 1 {
			return
		}
		r := msg.Runes[0]
		switch {
		case r == 'k':
			delta = -1
		case r == 'j':
			delta = 1
		case r >= '1' && r <= '9' && int(r-'1') < count:
			m.choiceIndex = int(r - '1')
			return
		}
	}
	m.choiceIndex = ((m.choiceIndex+delta)%count + count) % count
}

func (m *model) moveSelection(delta int) {
	count := len(m.order)
	if count == 0 {
		return
	}
	m.selected = ((m.selected+delta)%count + count) % count
}

func (m *model) selectedRow() *phaseRow {
	if m.selected < 0 || m.selected >= len(m.order) {
		return nil
	}
	return m.rows[m.order[m.selected]]
}

func (m *model) copySelectedError() {
	row := m.selectedRow()
	if row == nil || row.err == nil {
		m.setStatus("No error to copy")
		return
	}
	if err := clipboard.WriteAll(m.redact(row.err.Error())); err != nil {
		m.setStatus("Failed to copy error")
		return
	}
	m.setStatus("Error copied to clipboard")
}

func (m *model) appendLog(row *phaseRow, line string) {
	stamp := time.Now().Format("15:04:05")
	row.logs = append(row.logs, fmt.Sprintf("[%s] %s", stamp, m.redact(line)))
	if len(row.logs) > maxLogLines {
		row.logs = row.logs[len(row.logs)-maxLogLines:]
	}
}

func (m *model) trackSecret(value string) {
	if value != "" {
		m.secrets[value] = struct{}{}
	}
}

func (m *model) redact(text string) string {
	for secret := range m.secrets {
		text = strings.ReplaceAll(text, secret, "[secret]")
	}
	return text
}

func (m *model) setStatus(msg string) {
	m.statusMsg = m.redact(msg)
}

func (m *model) setStatusf(format string, args ...any) {
	m.setStatus(fmt.Sprintf(format, args...))
}

// failure returns the first phase, in display order, whose latest run failed.
func (m *model) failure() (phases.Outcome, bool) {
	for _, key := range m.order {
		if row := m.rows[key]; row.status == rowFailed {
			return row.outcome, true
		}
	}
	return phases.Outcome{}, false
}

func (m *model) counts() (done, total int) {
	for _, key := range m.order {
		switch m.rows[key].status {
		case rowApplied, rowSkipped:
			done++
		}
	}
	return done, len(m.order)
}

func summarize(outcomes []phases.Outcome) string {
	var applied, skipped int
	for _, o := range outcomes {
		switch o.Status {
		case phases.StatusFailed:
			return fmt.Sprintf("Stopped: %s", o.Message)
		case phases.StatusApplied:
			applied++
		case phases.StatusSkipped:
			skipped++
		}
	}
	return fmt.Sprintf("Finished: %d applied, %d skipped", applied, skipped)
}

func placeholder(def phases.InputDefinition) string {
	if def.Kind == phases.InputKindSecret || def.Secret {
		return "enter value"
	}
	if def.Default != "" {
		return def.Default
	}
	if def.Kind == phases.InputKindList {
		return "comma separated"
	}
	return def.Label
}
