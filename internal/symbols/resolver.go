package symbols

// Resolver answers read-only queries against an Index. Each query runs under
// a single read lock so it sees one consistent state of the index.
type Resolver struct {
	index *Index
}

// NewResolver creates a resolver over idx.
func NewResolver(idx *Index) *Resolver {
	return &Resolver{index: idx}
}

// Autocomplete returns every function or type name that starts with prefix.
// Matching is case-sensitive on bytes. The result is sorted and has no
// duplicates even when a name is both a function and a type.
func (r *Resolver) Autocomplete(prefix string) []string {
	return r.index.Names(prefix)
}

// Declaration returns where name is declared. For functions the
// implementation is used when no separate declaration is known. Types are
// only consulted when name is not a known function.
func (r *Resolver) Declaration(name string) (Location, bool) {
	r.index.mu.RLock()
	defer r.index.mu.RUnlock()

	if fn, ok := r.index.functions[name]; ok {
		switch {
		case fn.Declaration != nil:
			return *fn.Declaration, true
		case fn.Implementation != nil:
			return *fn.Implementation, true
		}
		return Location{}, false
	}
	if t, ok := r.index.types[name]; ok && t.Declaration != nil {
		return *t.Declaration, true
	}
	return Location{}, false
}

// Implementation returns where the function name is defined.
func (r *Resolver) Implementation(name string) (Location, bool) {
	r.index.mu.RLock()
	defer r.index.mu.RUnlock()

	if fn, ok := r.index.functions[name]; ok && fn.Implementation != nil {
		return *fn.Implementation, true
	}
	return Location{}, false
}

// Calls returns the call-sites of a defined function or the references of a
// declared type. A defined function without calls yields an empty, non-nil
// slice and true; an unknown name, or a function that was never defined,
// yields nil and false.
func (r *Resolver) Calls(name string) ([]Occurrence, bool) {
	r.index.mu.RLock()
	defer r.index.mu.RUnlock()

	if fn, ok := r.index.functions[name]; ok {
		if fn.Implementation == nil {
			return nil, false
		}
		return append([]Occurrence{}, fn.Calls...), true
	}
	if t, ok := r.index.types[name]; ok && t.Declaration != nil {
		return append([]Occurrence{}, t.References...), true
	}
	return nil, false
}
