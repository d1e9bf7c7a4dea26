// Package ufw reads and changes Uncomplicated Firewall state through argv commands.
package ufw

import (
	"bufio"
	"context"
	"errors"
	osexec "os/exec"
	"strings"

	"github.com/BrianJOC/host-harden/utils/rootexec"
)

var statusArgv = []string{"ufw", "status", "verbose"}

// Levels lists the accepted logging levels in increasing verbosity.
var Levels = []string{"off", "low", "medium", "high", "full"}

// Executor runs privileged argv commands.
type Executor interface {
	Run(ctx context.Context, argv []string, opts ...rootexec.RunOption) (*rootexec.Result, error)
}

// Rule is one line of the status table.
type Rule struct {
	To     string
	Action string
	From   string
	V6     bool
}

// Status is the parsed output of `ufw status verbose`.
type Status struct {
	Installed bool
	Active    bool
	Logging   string
	Rules     []Rule
}

// Allowed returns the IPv4 targets with an ALLOW action, in table order.
func (s Status) Allowed() []string {
	return s.targets("ALLOW")
}

// Denied returns the IPv4 targets with a DENY action, in table order.
func (s Status) Denied() []string {
	return s.targets("DENY")
}

// Has reports whether an IPv4 rule for to with action exists.
func (s Status) Has(action, to string) bool {
	for _, t := range s.targets(strings.ToUpper(action)) {
		if t == to {
			return true
		}
	}
	return false
}

func (s Status) targets(action string) []string {
	var out []string
	for _, r := range s.Rules {
		if r.V6 || !strings.HasPrefix(r.Action, action) {
			continue
		}
		out = append(out, r.To)
	}
	return out
}

// ParseStatus parses `ufw status` or `ufw status verbose` output.
func ParseStatus(out string) Status {
	status := Status{Installed: true}
	inTable := false
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case strings.HasPrefix(line, "Status:"):
			status.Active = strings.TrimSpace(strings.TrimPrefix(line, "Status:")) == "active"
		case strings.HasPrefix(line, "Logging:"):
			status.Logging = parseLogging(strings.TrimSpace(strings.TrimPrefix(line, "Logging:")))
		case strings.HasPrefix(line, "--"):
			inTable = true
		case inTable:
			if rule, ok := parseRule(line); ok {
				status.Rules = append(status.Rules, rule)
			}
		}
	}
	return status
}

// "on (low)" -> low, "off" -> off, bare "on" is ufw's low.
func parseLogging(value string) string {
	if value == "off" {
		return "off"
	}
	if open := strings.Index(value, "("); open >= 0 {
		if end := strings.Index(value[open:], ")"); end > 0 {
			return value[open+1 : open+end]
		}
	}
	if value == "on" {
		return "low"
	}
	return value
}

func parseRule(line string) (Rule, bool) {
	fields := strings.Fields(line)
	if len(fields) < 3 {
		return Rule{}, false
	}
	var rule Rule
	idx := 0
	rule.To = fields[idx]
	idx++
	if idx < len(fields) && fields[idx] == "(v6)" {
		rule.V6 = true
		idx++
	}
	var action []string
	for idx < len(fields) && isActionWord(fields[idx]) {
		action = append(action, fields[idx])
		idx++
	}
	if len(action) == 0 {
		return Rule{}, false
	}
	rule.Action = strings.Join(action, " ")
	rule.From = strings.Join(fields[idx:], " ")
	if strings.HasSuffix(rule.From, "(v6)") {
		rule.V6 = true
	}
	return rule, true
}

func isActionWord(s string) bool {
	switch s {
	case "ALLOW", "DENY", "REJECT", "LIMIT", "IN", "OUT", "FWD":
		return true
	}
	return false
}

// Client issues ufw commands.
type Client struct {
	exec Executor
}

// New returns a Client using exec.
func New(exec Executor) *Client {
	return &Client{exec: exec}
}

// Status queries the firewall. A missing ufw binary reports Installed=false.
func (c *Client) Status(ctx context.Context) (Status, error) {
	res, err := c.exec.Run(ctx, statusArgv, rootexec.Capture(), rootexec.AllowFail())
	if err != nil {
		if errors.Is(err, osexec.ErrNotFound) {
			return Status{}, nil
		}
		return Status{}, CommandError{Step: "ufw status", Err: err}
	}
	if !res.Success() {
		if notInstalled(res) {
			return Status{}, nil
		}
		return Status{}, CommandError{Step: "ufw status", Err: rootexec.ExecutionError{Argv: statusArgv, ExitCode: res.ExitCode, Message: strings.TrimSpace(res.Stderr)}}
	}
	return ParseStatus(res.Stdout), nil
}

// Allow adds an allow rule for port.
func (c *Client) Allow(ctx context.Context, port string) error {
	return c.run(ctx, "allow "+port, "allow", port)
}

// Deny adds a deny rule for port.
func (c *Client) Deny(ctx context.Context, port string) error {
	return c.run(ctx, "deny "+port, "deny", port)
}

// Delete removes the rule created by `ufw <action> <port>`.
func (c *Client) Delete(ctx context.Context, action, port string) error {
	return c.run(ctx, "delete "+action+" "+port, "delete", action, port)
}

// Default sets the default policy for direction (incoming, outgoing, routed).
func (c *Client) Default(ctx context.Context, policy, direction string) error {
	return c.run(ctx, "default "+policy+" "+direction, "default", policy, direction)
}

// Enable activates the firewall without the interactive ssh warning.
func (c *Client) Enable(ctx context.Context) error {
	return c.run(ctx, "enable", "--force", "enable")
}

// Disable deactivates the firewall; rules are kept.
func (c *Client) Disable(ctx context.Context) error {
	return c.run(ctx, "disable", "disable")
}

// Logging sets the logging level.
func (c *Client) Logging(ctx context.Context, level string) error {
	if !ValidLevel(level) {
		return LevelError{Level: level}
	}
	return c.run(ctx, "logging "+level, "logging", level)
}

// ValidLevel reports whether level is one of Levels.
func ValidLevel(level string) bool {
	for _, l := range Levels {
		if l == level {
			return true
		}
	}
	return false
}

func (c *Client) run(ctx context.Context, step string, args ...string) error {
	argv := append([]string{"ufw"}, args...)
	if _, err := c.exec.Run(ctx, argv, rootexec.Capture()); err != nil {
		return CommandError{Step: "ufw " + step, Err: err}
	}
	return nil
}

func notInstalled(res *rootexec.Result) bool {
	msg := res.Stderr + res.Stdout
	return res.ExitCode == 127 || strings.Contains(msg, "command not found") || strings.Contains(msg, "No such file")
}
