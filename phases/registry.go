package phases

// Registry is the ordered catalog of phases.
type Registry struct {
	phases []Phase
	index  map[Key]Phase
}

// NewRegistry creates a Registry holding phases.
func NewRegistry(phases ...Phase) (*Registry, error) {
	r := &Registry{index: make(map[Key]Phase)}
	if err := r.Register(phases...); err != nil {
		return nil, err
	}
	return r, nil
}

// Register appends phases, returning an error on empty, unknown or duplicate keys.
func (r *Registry) Register(phases ...Phase) error {
	if r.index == nil {
		r.index = make(map[Key]Phase)
	}
	for _, p := range phases {
		if p == nil {
			continue
		}
		meta := p.Metadata()
		if meta.Key == "" {
			return ValidationError{Reason: "phase key must not be empty"}
		}
		if !meta.Key.Valid() {
			return UnknownPhaseError{Key: string(meta.Key)}
		}
		if _, exists := r.index[meta.Key]; exists {
			return DuplicatePhaseError{Key: meta.Key}
		}
		r.index[meta.Key] = p
		r.phases = append(r.phases, p)
	}
	return nil
}

// Lookup returns the phase registered under key.
func (r *Registry) Lookup(key Key) (Phase, error) {
	p, ok := r.index[key]
	if !ok {
		return nil, UnknownPhaseError{Key: string(key)}
	}
	return p, nil
}

// Phases returns registered phases in registration order.
func (r *Registry) Phases() []Phase {
	return append([]Phase(nil), r.phases...)
}

// Metadata returns the metadata of every phase in order.
func (r *Registry) Metadata() []PhaseMetadata {
	out := make([]PhaseMetadata, 0, len(r.phases))
	for _, p := range r.phases {
		out = append(out, p.Metadata())
	}
	return out
}
