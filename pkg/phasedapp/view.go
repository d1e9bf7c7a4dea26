package phasedapp

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var titleCase = cases.Title(language.English)

func (m *model) View() string {
	done, total := m.counts()
	sections := []string{renderHeader(done, total), m.renderBody()}
	if m.actionsVisible {
		sections = append(sections, m.renderActions())
	}
	sections = append(sections, m.renderPrompt(), statusBarStyle.Render(m.statusMsg))
	if m.helpVisible {
		sections = append(sections, renderHelp())
	} else {
		sections = append(sections, footerStyle.Render("↑/↓ or j/k move • Enter actions • Tab focus • r rerun • ? help • q quit"))
	}

	view := lipgloss.JoinVertical(lipgloss.Left, sections...)
	width := m.width
	if width <= 0 {
		width = lipgloss.Width(view)
	}
	height := lipgloss.Height(view)
	if m.height > height {
		height = m.height
	}
	return lipgloss.Place(width, height, lipgloss.Left, lipgloss.Top, view)
}

func renderHeader(done, total int) string {
	title := titleStyle.Render("Host Hardening")
	progress := subtitleStyle.Render(fmt.Sprintf("%d/%d converged", done, total))
	return lipgloss.JoinHorizontal(lipgloss.Top, title, "  ", progress)
}

func (m *model) viewportWidth() int {
	switch {
	case m.width <= 0:
		return 100
	case m.width < 40:
		return 40
	default:
		return m.width
	}
}

func (m *model) renderBody() string {
	width := m.viewportWidth()
	if width < 80 {
		return lipgloss.JoinVertical(lipgloss.Left, m.renderList(width), m.renderDetail(width))
	}
	left := max(width/2-1, 30)
	right := max(width-left-2, 30)
	gap := lipgloss.NewStyle().Width(2).Render(" ")
	return lipgloss.JoinHorizontal(lipgloss.Top, m.renderList(left), gap, m.renderDetail(right))
}

func (m *model) renderList(width int) string {
	focused := m.focus == focusPhases
	lines := make([]string, 0, len(m.order))
	for idx, key := range m.order {
		lines = append(lines, m.rowView(m.rows[key], idx == m.selected, focused))
	}
	style := fitWidth(panelStyle, width)
	if focused {
		style = style.BorderForeground(activeBorderColor)
	}
	return style.Render(strings.Join(lines, "\n"))
}

func (m *model) rowView(row *phaseRow, selected, focused bool) string {
	icon := statusIcons[row.status]
	if row.status == rowRunning {
		icon = m.spinner.View()
	}
	label := fmt.Sprintf("%s %s", icon, row.meta.Title)

	style := statusStyles[row.status]
	if selected {
		style = style.Bold(true)
		if focused {
			style = style.Underline(true).Foreground(activeBorderColor)
		}
	}
	return style.Render(label)
}

func (m *model) renderDetail(width int) string {
	row := m.selectedRow()
	style := fitWidth(panelStyle, width)
	if row == nil {
		return style.Render("No phases selected")
	}

	body := []string{
		detailTitleStyle.Render(row.meta.Title),
		infoTextStyle.Render(row.meta.Description),
		infoTextStyle.Render("Status: " + titleCase.String(row.status.String())),
	}
	if len(row.meta.Tags) > 0 {
		body = append(body, subtitleStyle.Render("Tags: "+strings.Join(row.meta.Tags, ", ")))
	}
	if row.err != nil {
		body = append(body, errorTextStyle.Render("Error: "+m.redact(row.err.Error())))
	}
	if len(row.logs) > 0 {
		entries := row.logs
		if len(entries) > 5 {
			entries = entries[len(entries)-5:]
		}
		body = append(body, logHeaderStyle.Render("Recent events:"))
		for _, line := range entries {
			body = append(body, logTextStyle.Render("• "+line))
		}
	}
	return style.Render(strings.Join(body, "\n"))
}

func (m *model) renderPrompt() string {
	style := fitWidth(panelStyle, m.viewportWidth()).MarginTop(1)
	req := m.activePrompt
	if req == nil {
		idle := "No input requested"
		if m.pipelineActive {
			idle = "Running…"
		}
		return style.Render("Prompt\n" + idle)
	}
	if m.focus == focusPrompt {
		style = style.BorderForeground(activeBorderColor)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s • %s\n", req.meta.Title, req.input.Label)
	if req.input.Description != "" {
		b.WriteString(subtitleStyle.Render(req.input.Description) + "\n")
	}
	if req.reason != "" {
		b.WriteString(errorTextStyle.Render(req.reason) + "\n")
	}
	if m.choices != nil {
		b.WriteString("↑/↓, j/k or number keys, Enter to confirm, Esc to skip the phase\n\n")
		for idx, opt := range m.choices {
			cursor := " "
			if idx == m.choiceIndex {
				cursor = ">"
			}
			line := fmt.Sprintf("%s %d. %s", cursor, idx+1, opt.Label)
			if opt.Description != "" {
				line += " - " + opt.Description
			}
			b.WriteString(line + "\n")
		}
	} else {
		b.WriteString("Enter to submit, empty keeps the default, Esc skips the phase\n> ")
		b.WriteString(m.prompt.View())
	}
	return style.Render(strings.TrimRight(b.String(), "\n"))
}

func (m *model) renderActions() string {
	row := m.selectedRow()
	if row == nil {
		return ""
	}
	lines := []string{
		"Actions: " + row.meta.Title,
		actionLine("1", "Close", true),
		actionLine("2", "Run again from this phase", !m.pipelineActive),
		actionLine("3", "Copy error message", row.err != nil),
	}
	return fitWidth(actionsPanelStyle, m.viewportWidth()).Render(strings.Join(lines, "\n"))
}

func renderHelp() string {
	return helpStyle.Render(strings.Join([]string{
		"Key Bindings:",
		"  ↑/↓ or j/k  Move selection",
		"  Enter        Submit input / open phase actions",
		"  Esc          Skip the prompted phase or close help",
		"  Tab          Switch focus between phases and prompt",
		"  r            Run every phase again",
		"  ?            Toggle this help",
		"  q / Ctrl+C   Quit",
	}, "\n"))
}

func actionLine(key, label string, enabled bool) string {
	line := fmt.Sprintf("[%s] %s", key, label)
	if enabled {
		return infoTextStyle.Render(line)
	}
	return disabledTextStyle.Render(line + " (unavailable)")
}

func fitWidth(base lipgloss.Style, total int) lipgloss.Style {
	frame, _ := base.GetFrameSize()
	return base.Width(max(total-frame, 0))
}

var (
	titleStyle        = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#E0AAFF"))
	subtitleStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#94A3B8"))
	panelStyle        = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("#4C566A")).Padding(0, 1)
	actionsPanelStyle = panelStyle.BorderForeground(lipgloss.Color("#7C3AED")).MarginTop(1)
	statusBarStyle    = lipgloss.NewStyle().Bold(true).Padding(0, 1).Background(lipgloss.Color("#312E81")).Foreground(lipgloss.Color("#E0E7FF"))
	footerStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("#94A3B8")).Padding(0, 1).MarginTop(1)
	helpStyle         = lipgloss.NewStyle().Border(lipgloss.DoubleBorder()).BorderForeground(lipgloss.Color("#7C3AED")).Padding(1, 2).MarginTop(1)
	detailTitleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FDE047"))
	infoTextStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#CBD5F5"))
	errorTextStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#F87171"))
	disabledTextStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#475569"))
	logHeaderStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#A5B4FC")).Bold(true)
	logTextStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#E0E7FF"))
	spinnerStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#FBBF24"))
	activeBorderColor = lipgloss.Color("#A78BFA")
)

var statusStyles = map[rowStatus]lipgloss.Style{
	rowPending: lipgloss.NewStyle().Foreground(lipgloss.Color("#94A3B8")),
	rowRunning: lipgloss.NewStyle().Foreground(lipgloss.Color("#F97316")).Bold(true),
	rowApplied: lipgloss.NewStyle().Foreground(lipgloss.Color("#34D399")),
	rowSkipped: lipgloss.NewStyle().Foreground(lipgloss.Color("#60A5FA")),
	rowFailed:  lipgloss.NewStyle().Foreground(lipgloss.Color("#F87171")),
}

var statusIcons = map[rowStatus]string{
	rowPending: "•",
	rowRunning: "⟳",
	rowApplied: "✔",
	rowSkipped: "↷",
	rowFailed:  "✖",
}
