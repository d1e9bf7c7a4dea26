package prompt

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/huh"

	"github.com/BrianJOC/host-harden/phases"
)

// quitChoice never collides with a phase key.
const quitChoice = "\x00quit"

// Menu asks which phase to run next. ok is false when the operator quits.
func (h *Handler) Menu(metas []phases.PhaseMetadata, status map[phases.Key]string) (phases.Key, bool, error) {
	choice := ""
	field := huh.NewSelect[string]().
		Title("Which phase should run?").
		Description("Each phase checks the host first and changes nothing when already configured.").
		Options(menuOptions(metas, status)...).
		Value(&choice)

	err := h.run(field)
	if errors.Is(err, phases.ErrDeclined) || (err == nil && choice == quitChoice) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	key, err := phases.ParseKey(choice)
	if err != nil {
		return "", false, err
	}
	return key, true, nil
}

func menuOptions(metas []phases.PhaseMetadata, status map[phases.Key]string) []huh.Option[string] {
	options := make([]huh.Option[string], 0, len(metas)+1)
	for i, meta := range metas {
		text := fmt.Sprintf("%d. %s", i+1, meta.Title)
		if s := status[meta.Key]; s != "" {
			text += " [" + s + "]"
		}
		if meta.Description != "" {
			text += " - " + meta.Description
		}
		options = append(options, huh.NewOption(text, string(meta.Key)))
	}
	return append(options, huh.NewOption("Quit", quitChoice))
}
