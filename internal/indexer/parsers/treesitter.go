package parsers

import (
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/mvp-joe/cindex/internal/symbols"
)

// sourceFile carries the per-file state shared by the extraction helpers.
type sourceFile struct {
	path   string
	source []byte
	lines  []string
}

func newSourceFile(path string, source []byte) *sourceFile {
	return &sourceFile{
		path:   path,
		source: source,
		lines:  strings.Split(string(source), "\n"),
	}
}

// text extracts the text content of a tree-sitter node.
func (f *sourceFile) text(node *sitter.Node) string {
	if node == nil {
		return ""
	}
	return string(f.source[node.StartByte():node.EndByte()])
}

// location converts a node's start position to a 1-based location.
func (f *sourceFile) location(node *sitter.Node) symbols.Location {
	pos := node.StartPosition()
	return symbols.Location{
		File:   f.path,
		Line:   int(pos.Row) + 1,
		Column: int(pos.Column) + 1,
	}
}

// lineContent returns the trimmed source line a node starts on.
func (f *sourceFile) lineContent(node *sitter.Node) string {
	row := int(node.StartPosition().Row)
	if row < 0 || row >= len(f.lines) {
		return ""
	}
	return strings.TrimSpace(f.lines[row])
}

// walkTree recursively walks a tree-sitter tree and calls the visitor for each node.
func walkTree(node *sitter.Node, visitor func(*sitter.Node) bool) {
	if node == nil {
		return
	}

	if !visitor(node) {
		return
	}

	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(uint(i))
		walkTree(child, visitor)
	}
}

// findFirstByType does a depth-first search for the first node of kind.
func findFirstByType(node *sitter.Node, kind string) *sitter.Node {
	var found *sitter.Node
	walkTree(node, func(n *sitter.Node) bool {
		if found != nil {
			return false
		}
		if n.Kind() == kind {
			found = n
			return false
		}
		return true
	})
	return found
}

func sameNode(a, b *sitter.Node) bool {
	if a == nil || b == nil {
		return false
	}
	return a.StartByte() == b.StartByte() && a.EndByte() == b.EndByte() && a.Kind() == b.Kind()
}
