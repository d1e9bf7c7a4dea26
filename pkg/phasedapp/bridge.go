package phasedapp

import (
	"context"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/BrianJOC/host-harden/phases"
)

type phaseStartedMsg struct {
	meta phases.PhaseMetadata
}

type phaseCompletedMsg struct {
	meta    phases.PhaseMetadata
	outcome phases.Outcome
}

type pipelineFinishedMsg struct {
	outcomes []phases.Outcome
}

type inputRequestMsg struct {
	meta   phases.PhaseMetadata
	input  phases.InputDefinition
	reason string
}

type inputResponse struct {
	value any
	err   error
}

// bridge carries runner callbacks into the Bubble Tea loop and answers back.
// Once closed, pending and future requests resolve as declined so the runner
// goroutine never outlives the program.
type bridge struct {
	events    chan tea.Msg
	requests  chan inputRequestMsg
	responses chan inputResponse
	done      chan struct{}
	once      sync.Once
}

func newBridge() *bridge {
	return &bridge{
		events:    make(chan tea.Msg),
		requests:  make(chan inputRequestMsg),
		responses: make(chan inputResponse, 1),
		done:      make(chan struct{}),
	}
}

func (b *bridge) close() {
	b.once.Do(func() { close(b.done) })
}

// PhaseStarted implements phases.Observer.
func (b *bridge) PhaseStarted(meta phases.PhaseMetadata) {
	b.send(phaseStartedMsg{meta: meta})
}

// PhaseCompleted implements phases.Observer.
func (b *bridge) PhaseCompleted(meta phases.PhaseMetadata, outcome phases.Outcome) {
	b.send(phaseCompletedMsg{meta: meta, outcome: outcome})
}

func (b *bridge) send(msg tea.Msg) {
	select {
	case b.events <- msg:
	case <-b.done:
	}
}

// RequestInput implements phases.InputHandler.
func (b *bridge) RequestInput(meta phases.PhaseMetadata, input phases.InputDefinition, reason string) (any, error) {
	select {
	case b.requests <- inputRequestMsg{meta: meta, input: input, reason: reason}:
	case <-b.done:
		return nil, phases.ErrDeclined
	}
	select {
	case resp := <-b.responses:
		return resp.value, resp.err
	case <-b.done:
		return nil, phases.ErrDeclined
	}
}

func (b *bridge) respond(value any, err error) {
	select {
	case b.responses <- inputResponse{value: value, err: err}:
	case <-b.done:
	}
}

func waitEventCmd(b *bridge) tea.Cmd {
	return func() tea.Msg {
		select {
		case msg := <-b.events:
			return msg
		case <-b.done:
			return nil
		}
	}
}

func waitInputCmd(b *bridge) tea.Cmd {
	return func() tea.Msg {
		select {
		case req := <-b.requests:
			return req
		case <-b.done:
			return nil
		}
	}
}

func runPipelineCmd(ctx context.Context, runner *phases.Runner, requests []phases.Request) tea.Cmd {
	return func() tea.Msg {
		return pipelineFinishedMsg{outcomes: runner.RunAll(ctx, requests)}
	}
}
