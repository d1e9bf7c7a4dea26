package phases

import (
	"strconv"
	"strings"
)

// Options holds the resolved inputs for one phase invocation.
type Options struct {
	Force bool

	values map[string]string
}

// NewOptions creates Options seeded with values.
func NewOptions(values map[string]string) *Options {
	o := &Options{values: make(map[string]string, len(values))}
	for k, v := range values {
		o.values[k] = v
	}
	return o
}

// DefaultOptions returns Options holding every input's default.
func DefaultOptions(meta PhaseMetadata) *Options {
	o := NewOptions(nil)
	for _, def := range meta.Inputs {
		o.Set(def.ID, def.Default)
	}
	return o
}

// Set assigns a value under the provided key.
func (o *Options) Set(key, value string) {
	if o == nil {
		return
	}
	if o.values == nil {
		o.values = make(map[string]string)
	}
	o.values[key] = value
}

// Get retrieves a value, returning false when the key is not present.
func (o *Options) Get(key string) (string, bool) {
	if o == nil {
		return "", false
	}
	val, ok := o.values[key]
	return val, ok
}

// String returns the value or "".
func (o *Options) String(key string) string {
	val, _ := o.Get(key)
	return strings.TrimSpace(val)
}

// Bool parses the value as a boolean; unset or unparsable values are false.
func (o *Options) Bool(key string) bool {
	b, err := ParseBool(o.String(key))
	return err == nil && b
}

// List splits the value on commas and whitespace.
func (o *Options) List(key string) []string {
	return SplitList(o.String(key))
}

// Equal reports whether both hold the same values, ignoring Force.
func (o *Options) Equal(other *Options) bool {
	a, b := o.Values(), other.Values()
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}

// Values returns a copy of every value.
func (o *Options) Values() map[string]string {
	out := make(map[string]string)
	if o == nil {
		return out
	}
	for k, v := range o.values {
		out[k] = v
	}
	return out
}

// ParseBool accepts strconv booleans plus yes/no and on/off.
func ParseBool(value string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "yes", "y", "on":
		return true, nil
	case "no", "n", "off", "":
		return false, nil
	}
	return strconv.ParseBool(value)
}

// SplitList splits on commas and whitespace, dropping empty items.
func SplitList(value string) []string {
	fields := strings.FieldsFunc(value, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}
