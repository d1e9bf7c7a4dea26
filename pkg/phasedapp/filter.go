package phasedapp

import (
	"strings"

	"github.com/BrianJOC/host-harden/phases"
)

// Filter matches phases by metadata.
type Filter func(phases.PhaseMetadata) bool

// WithTag matches phases carrying tag, case-insensitively.
func WithTag(tag string) Filter {
	return func(meta phases.PhaseMetadata) bool {
		for _, t := range meta.Tags {
			if strings.EqualFold(t, tag) {
				return true
			}
		}
		return false
	}
}

// SelectKeys returns the keys of registered phases matching every filter, in
// registry order.
func SelectKeys(registry *phases.Registry, filters ...Filter) []phases.Key {
	if registry == nil {
		return nil
	}
	var keys []phases.Key
outer:
	for _, meta := range registry.Metadata() {
		for _, filter := range filters {
			if filter != nil && !filter(meta) {
				continue outer
			}
		}
		keys = append(keys, meta.Key)
	}
	return keys
}
