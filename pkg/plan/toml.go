package plan

import (
	"errors"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
)

type tomlDocument struct {
	Force  bool       `toml:"force"`
	Phases []tomlStep `toml:"phases"`
}

type tomlStep struct {
	Phase   string         `toml:"phase"`
	Force   *bool          `toml:"force"`
	Options map[string]any `toml:"options"`
}

// ParseTOML decodes a TOML plan document:
//
//	[[phases]]
//	phase = "firewall"
//	[phases.options]
//	allow = [22, 80, 443]
func ParseTOML(data []byte) (*Plan, error) {
	if strings.TrimSpace(string(data)) == "" {
		return nil, errors.New("plan is empty")
	}
	var doc tomlDocument
	md, err := toml.Decode(string(data), &doc)
	if err != nil {
		return nil, fmt.Errorf("decode plan: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("decode plan: unknown field %q", undecoded[0].String())
	}

	raw := make([]rawStep, 0, len(doc.Phases))
	for _, ts := range doc.Phases {
		rs := rawStep{phase: ts.Phase, force: ts.Force, options: make(map[string]string, len(ts.Options))}
		for name, value := range ts.Options {
			flat, err := tomlString(value)
			if err != nil {
				rs.err = fmt.Errorf("option %s: %w", name, err)
				break
			}
			rs.options[name] = flat
		}
		raw = append(raw, rs)
	}
	return assemble(doc.Force, raw)
}

func tomlString(value any) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case bool, int64, float64:
		return fmt.Sprint(v), nil
	case []any:
		items := make([]string, 0, len(v))
		for _, item := range v {
			switch item.(type) {
			case []any, map[string]any:
				return "", errors.New("list items must be scalars")
			}
			items = append(items, fmt.Sprint(item))
		}
		return strings.Join(items, ","), nil
	default:
		return "", errors.New("expected a scalar or a list")
	}
}
