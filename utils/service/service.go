// Package service wraps systemctl for unit state queries and toggles.
package service

import (
	"context"
	"fmt"

	"github.com/BrianJOC/host-harden/utils/rootexec"
)

// Executor runs privileged argv commands.
type Executor interface {
	Run(ctx context.Context, argv []string, opts ...rootexec.RunOption) (*rootexec.Result, error)
}

// Manager issues systemctl commands.
type Manager struct {
	exec Executor
}

// New returns a Manager using exec.
func New(exec Executor) *Manager {
	return &Manager{exec: exec}
}

// Active reports whether unit is running.
func (m *Manager) Active(ctx context.Context, unit string) (bool, error) {
	return m.probe(ctx, "is-active", unit)
}

// Enabled reports whether unit starts at boot.
func (m *Manager) Enabled(ctx context.Context, unit string) (bool, error) {
	return m.probe(ctx, "is-enabled", unit)
}

// EnableNow enables unit and starts it.
func (m *Manager) EnableNow(ctx context.Context, unit string) error {
	return m.run(ctx, "enable", "--now", unit)
}

// DisableNow disables unit and stops it.
func (m *Manager) DisableNow(ctx context.Context, unit string) error {
	return m.run(ctx, "disable", "--now", unit)
}

// Restart restarts unit.
func (m *Manager) Restart(ctx context.Context, unit string) error {
	return m.run(ctx, "restart", unit)
}

// Reload asks unit to re-read its configuration.
func (m *Manager) Reload(ctx context.Context, unit string) error {
	return m.run(ctx, "reload", unit)
}

// ReloadOrRestart reloads unit when supported, otherwise restarts it.
func (m *Manager) ReloadOrRestart(ctx context.Context, unit string) error {
	return m.run(ctx, "reload-or-restart", unit)
}

func (m *Manager) probe(ctx context.Context, verb, unit string) (bool, error) {
	res, err := m.exec.Run(ctx, []string{"systemctl", verb, "--quiet", unit}, rootexec.Capture(), rootexec.AllowFail())
	if err != nil {
		return false, CommandError{Verb: verb, Unit: unit, Err: err}
	}
	return res.Success(), nil
}

func (m *Manager) run(ctx context.Context, args ...string) error {
	argv := append([]string{"systemctl"}, args...)
	if _, err := m.exec.Run(ctx, argv, rootexec.Capture()); err != nil {
		return CommandError{Verb: args[0], Unit: args[len(args)-1], Err: err}
	}
	return nil
}

// CommandError wraps a failed systemctl call.
type CommandError struct {
	Verb string
	Unit string
	Err  error
}

func (e CommandError) Error() string {
	return fmt.Sprintf("systemctl %s %s: %v", e.Verb, e.Unit, e.Err)
}

func (e CommandError) Unwrap() error {
	return e.Err
}
