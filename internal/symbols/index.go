package symbols

import (
	"sort"
	"strings"
	"sync"
)

// Index is the mutable store of every known function and type.
//
// All access goes through the index's lock; the underlying maps never leave
// this package. Entries are created lazily the first time a name is seen and
// are kept even when every field becomes empty again.
type Index struct {
	mu        sync.RWMutex
	functions map[string]*FunctionEntry
	types     map[string]*TypeEntry
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{
		functions: make(map[string]*FunctionEntry),
		types:     make(map[string]*TypeEntry),
	}
}

// Reset drops every entry.
func (idx *Index) Reset() {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.functions = make(map[string]*FunctionEntry)
	idx.types = make(map[string]*TypeEntry)
}

// DeclareFunction sets the declaration location of a function.
func (idx *Index) DeclareFunction(name string, loc Location) {
	idx.Apply(Event{Kind: FunctionDeclared, Name: name, Location: loc})
}

// DefineFunction sets the implementation location of a function.
func (idx *Index) DefineFunction(name string, loc Location) {
	idx.Apply(Event{Kind: FunctionDefined, Name: name, Location: loc})
}

// AddCall appends a call-site to a function.
func (idx *Index) AddCall(name string, occ Occurrence) {
	idx.Apply(Event{Kind: CallSite, Name: name, Location: occ.Location, Content: occ.Content})
}

// DeclareType sets the declaration location of a type.
func (idx *Index) DeclareType(name string, loc Location) {
	idx.Apply(Event{Kind: TypeDeclared, Name: name, Location: loc})
}

// AddReference appends a type reference.
func (idx *Index) AddReference(name string, occ Occurrence) {
	idx.Apply(Event{Kind: TypeReference, Name: name, Location: occ.Location, Content: occ.Content})
}

// Apply records a single event.
func (idx *Index) Apply(ev Event) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.apply(ev)
}

// PurgeFile strips every location in file from every entry and returns how
// many locations were removed. Entries themselves are kept.
func (idx *Index) PurgeFile(file string) int {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.purge(file)
}

// ReplaceFile purges file and applies events as one step. Readers see either
// the state before the purge or the state after every event is applied.
func (idx *Index) ReplaceFile(file string, events []Event) (purged int) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	purged = idx.purge(file)
	for _, ev := range events {
		idx.apply(ev)
	}
	return purged
}

// Restore replaces the index contents with a copy of d.
func (idx *Index) Restore(d Dump) {
	functions := make(map[string]*FunctionEntry, len(d.Functions))
	for name, fn := range d.Functions {
		c := fn.clone()
		functions[name] = &c
	}
	types := make(map[string]*TypeEntry, len(d.Types))
	for name, t := range d.Types {
		c := t.clone()
		types[name] = &c
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.functions = functions
	idx.types = types
}

// Function returns a copy of the entry for name.
func (idx *Index) Function(name string) (FunctionEntry, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	fn, ok := idx.functions[name]
	if !ok {
		return FunctionEntry{}, false
	}
	return fn.clone(), true
}

// Type returns a copy of the entry for name.
func (idx *Index) Type(name string) (TypeEntry, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	t, ok := idx.types[name]
	if !ok {
		return TypeEntry{}, false
	}
	return t.clone(), true
}

// Names returns the sorted set of function and type names starting with prefix.
func (idx *Index) Names(prefix string) []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.names(prefix)
}

// Dump returns a deep copy of the whole index.
func (idx *Index) Dump() Dump {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	d := Dump{
		Functions: make(map[string]FunctionEntry, len(idx.functions)),
		Types:     make(map[string]TypeEntry, len(idx.types)),
	}
	for name, fn := range idx.functions {
		d.Functions[name] = fn.clone()
	}
	for name, t := range idx.types {
		d.Types[name] = t.clone()
	}
	return d
}

// Files returns the sorted list of files that currently contribute at least
// one location.
func (idx *Index) Files() []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.files()
}

// Stats reports entry and file counts.
func (idx *Index) Stats() Stats {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return Stats{
		Functions: len(idx.functions),
		Types:     len(idx.types),
		Files:     len(idx.files()),
	}
}

func (idx *Index) apply(ev Event) {
	switch ev.Kind {
	case FunctionDeclared:
		loc := ev.Location
		idx.function(ev.Name).Declaration = &loc
	case FunctionDefined:
		loc := ev.Location
		idx.function(ev.Name).Implementation = &loc
	case CallSite:
		fn := idx.function(ev.Name)
		fn.Calls = append(fn.Calls, Occurrence{Location: ev.Location, Content: ev.Content})
	case TypeDeclared:
		loc := ev.Location
		idx.typ(ev.Name).Declaration = &loc
	case TypeReference:
		t := idx.typ(ev.Name)
		t.References = append(t.References, Occurrence{Location: ev.Location, Content: ev.Content})
	}
}

func (idx *Index) function(name string) *FunctionEntry {
	fn, ok := idx.functions[name]
	if !ok {
		fn = &FunctionEntry{}
		idx.functions[name] = fn
	}
	return fn
}

func (idx *Index) typ(name string) *TypeEntry {
	t, ok := idx.types[name]
	if !ok {
		t = &TypeEntry{}
		idx.types[name] = t
	}
	return t
}

func (idx *Index) purge(file string) int {
	removed := 0
	for _, fn := range idx.functions {
		if fn.Declaration != nil && fn.Declaration.File == file {
			fn.Declaration = nil
			removed++
		}
		if fn.Implementation != nil && fn.Implementation.File == file {
			fn.Implementation = nil
			removed++
		}
		var n int
		fn.Calls, n = filterOccurrences(fn.Calls, file)
		removed += n
	}
	for _, t := range idx.types {
		if t.Declaration != nil && t.Declaration.File == file {
			t.Declaration = nil
			removed++
		}
		var n int
		t.References, n = filterOccurrences(t.References, file)
		removed += n
	}
	return removed
}

// filterOccurrences drops every occurrence in file, preserving order.
func filterOccurrences(occs []Occurrence, file string) ([]Occurrence, int) {
	kept := occs[:0]
	for _, o := range occs {
		if o.File != file {
			kept = append(kept, o)
		}
	}
	removed := len(occs) - len(kept)
	// Zero the dropped tail.
	for i := len(kept); i < len(occs); i++ {
		occs[i] = Occurrence{}
	}
	return kept, removed
}

func (idx *Index) names(prefix string) []string {
	seen := make(map[string]struct{})
	for name := range idx.functions {
		if strings.HasPrefix(name, prefix) {
			seen[name] = struct{}{}
		}
	}
	for name := range idx.types {
		if strings.HasPrefix(name, prefix) {
			seen[name] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (idx *Index) files() []string {
	seen := make(map[string]struct{})
	add := func(l *Location) {
		if l != nil {
			seen[l.File] = struct{}{}
		}
	}
	for _, fn := range idx.functions {
		add(fn.Declaration)
		add(fn.Implementation)
		for i := range fn.Calls {
			add(&fn.Calls[i].Location)
		}
	}
	for _, t := range idx.types {
		add(t.Declaration)
		for i := range t.References {
			add(&t.References[i].Location)
		}
	}
	out := make([]string, 0, len(seen))
	for f := range seen {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}
