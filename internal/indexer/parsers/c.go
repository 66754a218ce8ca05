package parsers

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"
	c "github.com/tree-sitter/tree-sitter-c/bindings/go"
	cpp "github.com/tree-sitter/tree-sitter-cpp/bindings/go"

	"github.com/mvp-joe/cindex/internal/symbols"
)

// cExtensions are parsed with the C grammar; everything else uses C++.
var cExtensions = map[string]bool{
	".c": true,
	".h": true,
}

// Analyzer turns one C or C++ file into symbol events.
//
// Function bodies and prototypes are reported as definitions in source files
// and as declarations in header files; the class comes from the file
// extension only.
type Analyzer struct {
	classes map[string]FileClass
	c       *sitter.Language
	cpp     *sitter.Language
}

// NewAnalyzer creates an analyzer for the given extension classes.
// Extensions include the leading dot (".c", ".hpp").
func NewAnalyzer(sourceExtensions, headerExtensions []string) *Analyzer {
	classes := make(map[string]FileClass, len(sourceExtensions)+len(headerExtensions))
	for _, ext := range sourceExtensions {
		classes[strings.ToLower(ext)] = ClassSource
	}
	for _, ext := range headerExtensions {
		classes[strings.ToLower(ext)] = ClassHeader
	}

	return &Analyzer{
		classes: classes,
		c:       sitter.NewLanguage(c.Language()),
		cpp:     sitter.NewLanguage(cpp.Language()),
	}
}

// Class reports how a file's function bodies are classified.
func (a *Analyzer) Class(filePath string) FileClass {
	return a.classes[strings.ToLower(filepath.Ext(filePath))]
}

// Extensions returns every extension the analyzer accepts.
func (a *Analyzer) Extensions() []string {
	exts := make([]string, 0, len(a.classes))
	for ext := range a.classes {
		exts = append(exts, ext)
	}
	return exts
}

// Analyze parses filePath and returns the symbol events found in it.
func (a *Analyzer) Analyze(ctx context.Context, filePath string) ([]symbols.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	class := a.Class(filePath)
	if class == ClassUnknown {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedExtension, filepath.Ext(filePath))
	}

	source, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	return a.AnalyzeSource(filePath, source)
}

// AnalyzeSource is Analyze for content that is already in memory.
func (a *Analyzer) AnalyzeSource(filePath string, source []byte) ([]symbols.Event, error) {
	class := a.Class(filePath)
	if class == ClassUnknown {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedExtension, filepath.Ext(filePath))
	}

	lang := a.cpp
	if cExtensions[strings.ToLower(filepath.Ext(filePath))] {
		lang = a.c
	}

	parser := sitter.NewParser()
	defer parser.Close()

	if err := parser.SetLanguage(lang); err != nil {
		return nil, fmt.Errorf("failed to set language: %w", err)
	}

	tree := parser.Parse(source, nil)
	if tree == nil {
		return nil, fmt.Errorf("parser returned no tree for %s", filePath)
	}
	defer tree.Close()

	x := &extractor{
		file:     newSourceFile(filePath, source),
		class:    class,
		declared: make(map[uint]bool),
	}
	x.extract(tree.RootNode())
	return x.events, nil
}

// extractor walks one syntax tree and collects events.
type extractor struct {
	file   *sourceFile
	class  FileClass
	events []symbols.Event

	// declared holds the start bytes of type_identifier nodes that name a
	// type being declared, so they are not also reported as references.
	declared map[uint]bool
}

func (x *extractor) extract(root *sitter.Node) {
	walkTree(root, func(n *sitter.Node) bool {
		switch n.Kind() {
		case "function_definition":
			x.extractFunctionDefinition(n)
		case "declaration", "field_declaration":
			x.extractPrototypes(n)
		case "type_definition":
			x.extractTypedef(n)
		case "struct_specifier", "union_specifier", "enum_specifier", "class_specifier":
			x.extractSpecifier(n)
		case "alias_declaration":
			x.extractAlias(n)
		case "call_expression":
			x.extractCall(n)
		case "type_identifier":
			x.extractTypeReference(n)
		}
		return true
	})
}

func (x *extractor) functionKind() symbols.EventKind {
	if x.class == ClassSource {
		return symbols.FunctionDefined
	}
	return symbols.FunctionDeclared
}

func (x *extractor) emit(kind symbols.EventKind, name string, node *sitter.Node, withContent bool) {
	if name == "" {
		return
	}
	ev := symbols.Event{
		Kind:     kind,
		Name:     name,
		Location: x.file.location(node),
	}
	if withContent {
		ev.Content = x.file.lineContent(node)
	}
	x.events = append(x.events, ev)
}

// extractFunctionDefinition handles a function with a body.
func (x *extractor) extractFunctionDefinition(node *sitter.Node) {
	fd := functionDeclarator(node.ChildByFieldName("declarator"))
	if fd == nil {
		return
	}
	if nameNode := functionNameNode(fd.ChildByFieldName("declarator")); nameNode != nil {
		x.emit(x.functionKind(), x.nameOf(nameNode), nameNode, false)
	}
}

// extractPrototypes handles function prototypes, which appear as
// declarations whose declarator is a function_declarator.
func (x *extractor) extractPrototypes(node *sitter.Node) {
	for i := 0; i < int(node.ChildCount()); i++ {
		fd := functionDeclarator(node.Child(uint(i)))
		if fd == nil {
			continue
		}
		if nameNode := functionNameNode(fd.ChildByFieldName("declarator")); nameNode != nil {
			x.emit(x.functionKind(), x.nameOf(nameNode), nameNode, false)
		}
	}
}

// extractTypedef records every name a typedef introduces.
func (x *extractor) extractTypedef(node *sitter.Node) {
	typeNode := node.ChildByFieldName("type")
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(uint(i))
		if child == nil || !child.IsNamed() || sameNode(child, typeNode) {
			continue
		}
		switch child.Kind() {
		case "type_qualifier", "attribute_specifier", "comment":
			continue
		}
		nameNode := child
		if child.Kind() != "type_identifier" {
			nameNode = findFirstByType(child, "type_identifier")
		}
		if nameNode == nil {
			continue
		}
		x.declared[nameNode.StartByte()] = true
		x.emit(symbols.TypeDeclared, x.file.text(nameNode), nameNode, false)
	}
}

// extractSpecifier records struct, union, enum and class definitions. A
// specifier without a body is a use of the type, not a declaration.
func (x *extractor) extractSpecifier(node *sitter.Node) {
	if node.ChildByFieldName("body") == nil {
		return
	}
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil || nameNode.Kind() != "type_identifier" {
		return
	}
	x.declared[nameNode.StartByte()] = true
	x.emit(symbols.TypeDeclared, x.file.text(nameNode), nameNode, false)
}

// extractAlias handles C++ `using Name = ...;`.
func (x *extractor) extractAlias(node *sitter.Node) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	x.declared[nameNode.StartByte()] = true
	x.emit(symbols.TypeDeclared, x.file.text(nameNode), nameNode, false)
}

// extractCall records a call-site at the callee's name.
func (x *extractor) extractCall(node *sitter.Node) {
	nameNode := calleeNameNode(node.ChildByFieldName("function"))
	if nameNode == nil {
		return
	}
	x.emit(symbols.CallSite, x.file.text(nameNode), nameNode, true)
}

func (x *extractor) extractTypeReference(node *sitter.Node) {
	if x.declared[node.StartByte()] {
		return
	}
	x.emit(symbols.TypeReference, x.file.text(node), node, true)
}

// nameOf returns the unqualified name of an identifier-like node.
func (x *extractor) nameOf(node *sitter.Node) string {
	if node.Kind() == "qualified_identifier" {
		if inner := node.ChildByFieldName("name"); inner != nil {
			return x.nameOf(inner)
		}
	}
	return x.file.text(node)
}

// functionDeclarator unwraps pointer and reference declarators down to a
// function_declarator, or returns nil.
func functionDeclarator(node *sitter.Node) *sitter.Node {
	for node != nil {
		switch node.Kind() {
		case "function_declarator":
			return node
		case "pointer_declarator", "reference_declarator":
			next := node.ChildByFieldName("declarator")
			if next == nil {
				// reference_declarator has no declarator field in the C++ grammar.
				next = lastNamedChild(node)
			}
			node = next
		default:
			return nil
		}
	}
	return nil
}

// functionNameNode returns the identifier naming a function_declarator's
// function, or nil for function pointers (parenthesized declarators).
func functionNameNode(node *sitter.Node) *sitter.Node {
	if node == nil {
		return nil
	}
	switch node.Kind() {
	case "identifier", "field_identifier", "destructor_name", "operator_name":
		return node
	case "qualified_identifier":
		if inner := node.ChildByFieldName("name"); inner != nil {
			if named := functionNameNode(inner); named != nil {
				return named
			}
		}
		return node
	case "template_function":
		return functionNameNode(node.ChildByFieldName("name"))
	}
	return nil
}

// calleeNameNode resolves the node that names the function being called.
func calleeNameNode(node *sitter.Node) *sitter.Node {
	if node == nil {
		return nil
	}
	switch node.Kind() {
	case "identifier", "field_identifier":
		return node
	case "field_expression":
		return calleeNameNode(node.ChildByFieldName("field"))
	case "qualified_identifier", "template_function", "template_method":
		return calleeNameNode(node.ChildByFieldName("name"))
	}
	return nil
}

func lastNamedChild(node *sitter.Node) *sitter.Node {
	for i := int(node.ChildCount()) - 1; i >= 0; i-- {
		child := node.Child(uint(i))
		if child != nil && child.IsNamed() {
			return child
		}
	}
	return nil
}
