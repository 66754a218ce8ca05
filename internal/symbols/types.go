// Package symbols holds the in-memory symbol index for a C/C++ source tree
// and the read-only resolver that answers declaration, implementation,
// call-site and completion queries against it.
package symbols

import "fmt"

// Location is a position in a source file. Line and Column are 1-based.
type Location struct {
	File   string `json:"file"`
	Line   int    `json:"line"`
	Column int    `json:"column"`
}

// String formats the location as file:line:column.
func (l Location) String() string {
	return fmt.Sprintf("%s:%d:%d", l.File, l.Line, l.Column)
}

// Occurrence is a call-site or type-reference location along with the
// trimmed source line it appears on. Content may be empty.
type Occurrence struct {
	Location
	Content string `json:"content,omitempty"`
}

// FunctionEntry records what is known about one function name.
// A nil Declaration or Implementation means no location is known.
type FunctionEntry struct {
	Declaration    *Location    `json:"declaration,omitempty"`
	Implementation *Location    `json:"implementation,omitempty"`
	Calls          []Occurrence `json:"calls"`
}

// TypeEntry records what is known about one type name.
type TypeEntry struct {
	Declaration *Location    `json:"declaration,omitempty"`
	References  []Occurrence `json:"references"`
}

func (e *FunctionEntry) clone() FunctionEntry {
	out := FunctionEntry{
		Declaration:    cloneLocation(e.Declaration),
		Implementation: cloneLocation(e.Implementation),
	}
	if len(e.Calls) > 0 {
		out.Calls = append([]Occurrence(nil), e.Calls...)
	}
	return out
}

func (e *TypeEntry) clone() TypeEntry {
	out := TypeEntry{Declaration: cloneLocation(e.Declaration)}
	if len(e.References) > 0 {
		out.References = append([]Occurrence(nil), e.References...)
	}
	return out
}

func cloneLocation(l *Location) *Location {
	if l == nil {
		return nil
	}
	c := *l
	return &c
}

// EventKind identifies what an analyzer observed about a name.
type EventKind int

const (
	FunctionDeclared EventKind = iota + 1
	FunctionDefined
	TypeDeclared
	CallSite
	TypeReference
)

func (k EventKind) String() string {
	switch k {
	case FunctionDeclared:
		return "function-declared"
	case FunctionDefined:
		return "function-defined"
	case TypeDeclared:
		return "type-declared"
	case CallSite:
		return "call-site"
	case TypeReference:
		return "type-reference"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is a single fact produced by a source analyzer for one file.
type Event struct {
	Kind     EventKind
	Name     string
	Location Location
	Content  string
}

// Dump is a detached copy of the whole index, used by snapshot writers and
// for warm starts.
type Dump struct {
	Functions map[string]FunctionEntry
	Types     map[string]TypeEntry
}

// Stats summarizes index size.
type Stats struct {
	Functions int `json:"functions"`
	Types     int `json:"types"`
	Files     int `json:"files"`
}
