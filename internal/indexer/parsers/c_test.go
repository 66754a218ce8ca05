package parsers

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvp-joe/cindex/internal/symbols"
)

// Test Plan for Analyzer:
// - Header prototypes are reported as declarations
// - Source function bodies are reported as definitions
// - Function bodies in headers are declarations (class comes from the extension)
// - typedef names and struct/union/enum bodies are type declarations
// - Function pointer typedefs declare a type, not a function
// - Call-sites carry the callee's name, position and source line
// - Member calls report the member name
// - Type uses are references, the declaring name is not
// - C++ classes, methods and qualified definitions are recognized
// - Unsupported extensions and unreadable files fail

const headerSource = `#ifndef A_H
#define A_H
void foo(void);
typedef struct { int x; } point_t;
typedef int (*callback_t)(int);
#endif
`

const sourceSource = `#include "a.h"

struct node {
    int value;
};

void foo(void)
{
    point_t p;
    bar();
    s.ops->run(p);
}
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func newTestAnalyzer() *Analyzer {
	return NewAnalyzer([]string{".c", ".cpp"}, []string{".h", ".hpp"})
}

func findEvent(events []symbols.Event, kind symbols.EventKind, name string) (symbols.Event, bool) {
	for _, ev := range events {
		if ev.Kind == kind && ev.Name == name {
			return ev, true
		}
	}
	return symbols.Event{}, false
}

func countEvents(events []symbols.Event, kind symbols.EventKind, name string) int {
	n := 0
	for _, ev := range events {
		if ev.Kind == kind && ev.Name == name {
			n++
		}
	}
	return n
}

func TestAnalyzer_HeaderPrototypes(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeFile(t, dir, "a.h", headerSource)

	events, err := newTestAnalyzer().Analyze(context.Background(), path)
	require.NoError(t, err)

	foo, ok := findEvent(events, symbols.FunctionDeclared, "foo")
	require.True(t, ok, "foo prototype should be declared")
	assert.Equal(t, symbols.Location{File: path, Line: 3, Column: 6}, foo.Location)

	_, ok = findEvent(events, symbols.FunctionDefined, "foo")
	assert.False(t, ok, "header prototypes are not implementations")

	pt, ok := findEvent(events, symbols.TypeDeclared, "point_t")
	require.True(t, ok)
	assert.Equal(t, 4, pt.Location.Line)

	_, ok = findEvent(events, symbols.TypeDeclared, "callback_t")
	assert.True(t, ok, "function pointer typedef declares a type")
	_, ok = findEvent(events, symbols.FunctionDeclared, "callback_t")
	assert.False(t, ok)

	assert.Zero(t, countEvents(events, symbols.TypeReference, "point_t"), "declaring name is not a reference")
}

func TestAnalyzer_SourceDefinitionsAndCalls(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeFile(t, dir, "a.c", sourceSource)

	events, err := newTestAnalyzer().Analyze(context.Background(), path)
	require.NoError(t, err)

	foo, ok := findEvent(events, symbols.FunctionDefined, "foo")
	require.True(t, ok)
	assert.Equal(t, symbols.Location{File: path, Line: 7, Column: 6}, foo.Location)

	node, ok := findEvent(events, symbols.TypeDeclared, "node")
	require.True(t, ok)
	assert.Equal(t, 3, node.Location.Line)

	bar, ok := findEvent(events, symbols.CallSite, "bar")
	require.True(t, ok)
	assert.Equal(t, symbols.Location{File: path, Line: 10, Column: 5}, bar.Location)
	assert.Equal(t, "bar();", bar.Content)

	run, ok := findEvent(events, symbols.CallSite, "run")
	require.True(t, ok, "member call reports the member name")
	assert.Equal(t, 11, run.Location.Line)
	assert.Equal(t, 12, run.Location.Column)

	ref, ok := findEvent(events, symbols.TypeReference, "point_t")
	require.True(t, ok)
	assert.Equal(t, 9, ref.Location.Line)
	assert.Equal(t, "point_t p;", ref.Content)
}

func TestAnalyzer_HeaderBodiesAreDeclarations(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeFile(t, dir, "inline.h", "static inline int twice(int x) { return x * 2; }\n")

	events, err := newTestAnalyzer().Analyze(context.Background(), path)
	require.NoError(t, err)

	_, ok := findEvent(events, symbols.FunctionDeclared, "twice")
	assert.True(t, ok)
	_, ok = findEvent(events, symbols.FunctionDefined, "twice")
	assert.False(t, ok)
}

func TestAnalyzer_Cpp(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	header := writeFile(t, dir, "widget.hpp", `class Widget {
public:
    void draw();
};
`)
	source := writeFile(t, dir, "widget.cpp", `#include "widget.hpp"

void Widget::draw() {
    helper();
}
`)

	a := newTestAnalyzer()

	events, err := a.Analyze(context.Background(), header)
	require.NoError(t, err)
	_, ok := findEvent(events, symbols.TypeDeclared, "Widget")
	assert.True(t, ok)
	draw, ok := findEvent(events, symbols.FunctionDeclared, "draw")
	require.True(t, ok)
	assert.Equal(t, 3, draw.Location.Line)

	events, err = a.Analyze(context.Background(), source)
	require.NoError(t, err)
	draw, ok = findEvent(events, symbols.FunctionDefined, "draw")
	require.True(t, ok)
	assert.Equal(t, 3, draw.Location.Line)
	_, ok = findEvent(events, symbols.CallSite, "helper")
	assert.True(t, ok)
}

func TestAnalyzer_Class(t *testing.T) {
	t.Parallel()

	a := newTestAnalyzer()
	assert.Equal(t, ClassSource, a.Class("x/a.c"))
	assert.Equal(t, ClassSource, a.Class("x/a.CPP"))
	assert.Equal(t, ClassHeader, a.Class("a.hpp"))
	assert.Equal(t, ClassUnknown, a.Class("main.go"))
	assert.ElementsMatch(t, []string{".c", ".cpp", ".h", ".hpp"}, a.Extensions())
}

func TestAnalyzer_Errors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	a := newTestAnalyzer()

	_, err := a.Analyze(context.Background(), writeFile(t, dir, "main.go", "package main\n"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnsupportedExtension))

	_, err = a.Analyze(context.Background(), filepath.Join(dir, "missing.c"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = a.Analyze(ctx, writeFile(t, dir, "ok.c", "int x;\n"))
	assert.ErrorIs(t, err, context.Canceled)
}
