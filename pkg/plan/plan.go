// Package plan reads YAML or TOML files that list phases to run in agent mode.
//
//	force: false
//	phases:
//	  - phase: firewall
//	    options:
//	      allow: [22, 80, 443]
//	  - phase: ssh
//	    force: true
//	    options:
//	      level: harden
//	      allow-users: deploy
//
// Files ending in .toml use the same layout with [[phases]] tables.
package plan

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/BrianJOC/host-harden/phases"
)

// Plan is an ordered list of phase invocations.
type Plan struct {
	Steps []Step
}

// Step runs one phase with flag-equivalent options.
type Step struct {
	Key     phases.Key
	Force   bool
	Options map[string]string
}

type document struct {
	Force  bool           `yaml:"force"`
	Phases []stepDocument `yaml:"phases"`
}

type stepDocument struct {
	Phase   string               `yaml:"phase"`
	Force   *bool                `yaml:"force"`
	Options map[string]yaml.Node `yaml:"options"`
}

// Load reads and parses the plan at path, choosing the format by extension.
func Load(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan %s: %w", path, err)
	}
	parse := Parse
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		parse = ParseTOML
	}
	p, err := parse(data)
	if err != nil {
		return nil, fmt.Errorf("plan %s: %w", path, err)
	}
	return p, nil
}

// Parse decodes a YAML plan document. Unknown fields and phases are rejected.
func Parse(data []byte) (*Plan, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var doc document
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("plan is empty")
		}
		return nil, fmt.Errorf("decode plan: %w", err)
	}

	raw := make([]rawStep, 0, len(doc.Phases))
	for _, sd := range doc.Phases {
		rs := rawStep{phase: sd.Phase, force: sd.Force, options: make(map[string]string, len(sd.Options))}
		for name, node := range sd.Options {
			value, err := scalarString(&node)
			if err != nil {
				rs.err = fmt.Errorf("option %s: %w", name, err)
				break
			}
			rs.options[name] = value
		}
		raw = append(raw, rs)
	}
	return assemble(doc.Force, raw)
}

// rawStep is a decoded step whose options are already flattened to strings.
type rawStep struct {
	phase   string
	force   *bool
	options map[string]string
	err     error
}

func assemble(defaultForce bool, raw []rawStep) (*Plan, error) {
	if len(raw) == 0 {
		return nil, errors.New("plan lists no phases")
	}
	p := &Plan{Steps: make([]Step, 0, len(raw))}
	for i, rs := range raw {
		step, err := rs.step(defaultForce)
		if err != nil {
			return nil, StepError{Index: i + 1, Phase: rs.phase, Err: err}
		}
		p.Steps = append(p.Steps, step)
	}
	return p, nil
}

func (rs rawStep) step(defaultForce bool) (Step, error) {
	key, err := phases.ParseKey(strings.TrimSpace(rs.phase))
	if err != nil {
		return Step{}, err
	}
	if rs.err != nil {
		return Step{}, rs.err
	}
	step := Step{Key: key, Force: defaultForce, Options: rs.options}
	if rs.force != nil {
		step.Force = *rs.force
	}
	return step, nil
}

// scalarString flattens a scalar or a sequence of scalars into the string a
// flag would carry. Sequences become comma separated lists.
func scalarString(node *yaml.Node) (string, error) {
	switch node.Kind {
	case yaml.ScalarNode:
		if node.Tag == "!!null" {
			return "", nil
		}
		return node.Value, nil
	case yaml.SequenceNode:
		items := make([]string, 0, len(node.Content))
		for _, child := range node.Content {
			if child.Kind != yaml.ScalarNode {
				return "", fmt.Errorf("line %d: list items must be scalars", child.Line)
			}
			items = append(items, child.Value)
		}
		return strings.Join(items, ","), nil
	default:
		return "", fmt.Errorf("line %d: expected a scalar or a list", node.Line)
	}
}

// Requests converts the plan into runner requests that never prompt.
func (p *Plan) Requests() []phases.Request {
	out := make([]phases.Request, 0, len(p.Steps))
	for _, step := range p.Steps {
		out = append(out, phases.Request{
			Key:    step.Key,
			Source: phases.NewAgentSource(step.Options),
			Force:  step.Force,
		})
	}
	return out
}

// StepError locates a problem in the phases list.
type StepError struct {
	Index int
	Phase string
	Err   error
}

func (e StepError) Error() string {
	return fmt.Sprintf("step %d (%s): %v", e.Index, e.Phase, e.Err)
}

func (e StepError) Unwrap() error {
	return e.Err
}
