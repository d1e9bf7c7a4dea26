package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/BrianJOC/host-harden/phases"
)

var (
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	skipStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	failStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	titleStyle = lipgloss.NewStyle().Bold(true)
)

var titleCase = cases.Title(language.English)

func printOutcome(w io.Writer, o phases.Outcome) {
	switch o.Status {
	case phases.StatusApplied:
		fmt.Fprintln(w, okStyle.Render("✓ "+o.Message))
	case phases.StatusSkipped:
		fmt.Fprintln(w, skipStyle.Render("↷ "+o.Message))
	default:
		fmt.Fprintln(w, failStyle.Render("✗ "+o.Message))
	}
}

// printFailure writes the single error line every failing command ends with.
func printFailure(w io.Writer, err error) {
	msg := strings.ReplaceAll(strings.TrimSpace(err.Error()), "\n", " ")
	fmt.Fprintln(w, failStyle.Render("✗ "+msg))
}

type rowState string

const (
	stateConfigured rowState = "configured"
	statePending    rowState = "not configured"
	stateNeedsInput rowState = "needs input"
	stateError      rowState = "error"
)

type statusRow struct {
	meta   phases.PhaseMetadata
	state  rowState
	detail string
}

func printStatus(w io.Writer, rows []statusRow) {
	keyWidth := 0
	for _, row := range rows {
		keyWidth = max(keyWidth, len(row.meta.Key))
	}
	for _, row := range rows {
		label := titleCase.String(string(row.state))
		switch row.state {
		case stateConfigured:
			label = okStyle.Render(label)
		case statePending:
			label = warnStyle.Render(label)
		case stateNeedsInput:
			label = dimStyle.Render(label)
		case stateError:
			label = failStyle.Render(label + ": " + row.detail)
		}
		fmt.Fprintf(w, "%-*s  %s\n", keyWidth, row.meta.Key, label)
	}
}

func printPhase(w io.Writer, n int, meta phases.PhaseMetadata) {
	line := fmt.Sprintf("%d. %-13s %s", n, meta.Key, titleStyle.Render(meta.Title))
	if len(meta.Tags) > 0 {
		line += " " + dimStyle.Render("["+strings.Join(meta.Tags, ", ")+"]")
	}
	fmt.Fprintln(w, line)
}
