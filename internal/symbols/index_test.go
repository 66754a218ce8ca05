package symbols

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test Plan for Index:
// - Entries are created lazily by any event, including calls to undeclared functions
// - Declarations and implementations are last-write-wins
// - Calls and references are appended without deduplication
// - PurgeFile removes declarations, implementations, calls and references by file
// - PurgeFile keeps the entry itself
// - ReplaceFile is idempotent for identical events
// - Readers never observe a half-replaced file
// - Dump/Restore round trip produces independent copies
// - Files lists contributing files

func loc(file string, line, col int) Location {
	return Location{File: file, Line: line, Column: col}
}

func TestIndex_CallCreatesEntry(t *testing.T) {
	t.Parallel()

	idx := NewIndex()
	idx.AddCall("bar", Occurrence{Location: loc("a.c", 10, 5)})

	fn, ok := idx.Function("bar")
	require.True(t, ok)
	assert.Nil(t, fn.Declaration)
	assert.Nil(t, fn.Implementation)
	require.Len(t, fn.Calls, 1)
	assert.Equal(t, loc("a.c", 10, 5), fn.Calls[0].Location)
}

func TestIndex_LastWriteWins(t *testing.T) {
	t.Parallel()

	idx := NewIndex()
	idx.DeclareFunction("foo", loc("a.h", 1, 6))
	idx.DeclareFunction("foo", loc("b.h", 3, 6))
	idx.DefineFunction("foo", loc("a.c", 2, 6))

	fn, ok := idx.Function("foo")
	require.True(t, ok)
	require.NotNil(t, fn.Declaration)
	assert.Equal(t, loc("b.h", 3, 6), *fn.Declaration)
	require.NotNil(t, fn.Implementation)
	assert.Equal(t, loc("a.c", 2, 6), *fn.Implementation)
}

func TestIndex_CallsNotDeduplicated(t *testing.T) {
	t.Parallel()

	idx := NewIndex()
	idx.AddCall("bar", Occurrence{Location: loc("a.c", 10, 5)})
	idx.AddCall("bar", Occurrence{Location: loc("a.c", 10, 5)})

	fn, _ := idx.Function("bar")
	assert.Len(t, fn.Calls, 2)
}

func TestIndex_PurgeFile(t *testing.T) {
	t.Parallel()

	idx := NewIndex()
	idx.DeclareFunction("foo", loc("a.h", 1, 6))
	idx.DefineFunction("foo", loc("a.c", 3, 6))
	idx.AddCall("bar", Occurrence{Location: loc("a.c", 10, 5)})
	idx.AddCall("bar", Occurrence{Location: loc("b.c", 4, 2)})
	idx.AddCall("bar", Occurrence{Location: loc("a.c", 12, 5)})
	idx.DeclareType("point_t", loc("a.c", 1, 1))
	idx.AddReference("point_t", Occurrence{Location: loc("a.c", 5, 3)})
	idx.AddReference("point_t", Occurrence{Location: loc("b.c", 2, 3)})

	removed := idx.PurgeFile("a.c")
	assert.Equal(t, 5, removed)

	foo, ok := idx.Function("foo")
	require.True(t, ok)
	require.NotNil(t, foo.Declaration)
	assert.Equal(t, "a.h", foo.Declaration.File)
	assert.Nil(t, foo.Implementation)

	bar, ok := idx.Function("bar")
	require.True(t, ok)
	require.Len(t, bar.Calls, 1)
	assert.Equal(t, "b.c", bar.Calls[0].File)

	pt, ok := idx.Type("point_t")
	require.True(t, ok, "purge must keep the entry")
	assert.Nil(t, pt.Declaration)
	require.Len(t, pt.References, 1)
	assert.Equal(t, "b.c", pt.References[0].File)
}

func TestIndex_PurgeKeepsEmptyEntries(t *testing.T) {
	t.Parallel()

	idx := NewIndex()
	idx.DefineFunction("only", loc("a.c", 1, 1))
	idx.PurgeFile("a.c")

	fn, ok := idx.Function("only")
	require.True(t, ok)
	assert.Nil(t, fn.Implementation)
	assert.Equal(t, []string{"only"}, idx.Names("on"))
}

func TestIndex_ReplaceFileIsIdempotent(t *testing.T) {
	t.Parallel()

	events := []Event{
		{Kind: FunctionDefined, Name: "foo", Location: loc("a.c", 3, 6)},
		{Kind: CallSite, Name: "bar", Location: loc("a.c", 10, 5), Content: "bar();"},
		{Kind: TypeReference, Name: "point_t", Location: loc("a.c", 4, 3)},
	}

	once := NewIndex()
	once.ReplaceFile("a.c", events)

	twice := NewIndex()
	twice.ReplaceFile("a.c", events)
	twice.ReplaceFile("a.c", events)

	assert.Equal(t, once.Dump(), twice.Dump())
}

func TestIndex_ReplaceFileMovesDeclaration(t *testing.T) {
	t.Parallel()

	idx := NewIndex()
	idx.ReplaceFile("a.h", []Event{{Kind: FunctionDeclared, Name: "foo", Location: loc("a.h", 1, 6)}})
	idx.ReplaceFile("a.h", []Event{{Kind: FunctionDeclared, Name: "foo", Location: loc("a.h", 7, 6)}})

	fn, ok := idx.Function("foo")
	require.True(t, ok)
	require.NotNil(t, fn.Declaration)
	assert.Equal(t, 7, fn.Declaration.Line)
}

func TestIndex_ConcurrentReadersSeeWholeFiles(t *testing.T) {
	t.Parallel()

	idx := NewIndex()
	build := func(line int) []Event {
		return []Event{
			{Kind: FunctionDeclared, Name: "foo", Location: loc("a.h", line, 6)},
			{Kind: CallSite, Name: "bar", Location: loc("a.h", line, 10)},
		}
	}
	idx.ReplaceFile("a.h", build(1))

	var wg sync.WaitGroup
	done := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(done)
		for i := 2; i < 500; i++ {
			idx.ReplaceFile("a.h", build(i))
		}
	}()

	resolver := NewResolver(idx)
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				decl, ok := resolver.Declaration("foo")
				if !ok {
					t.Error("declaration disappeared during replace")
					return
				}
				bar, ok := idx.Function("bar")
				if !ok || len(bar.Calls) != 1 {
					t.Errorf("expected exactly one call, got %d", len(bar.Calls))
					return
				}
				if decl.Line < 1 {
					t.Errorf("invalid line %d", decl.Line)
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestIndex_DumpIsDetached(t *testing.T) {
	t.Parallel()

	idx := NewIndex()
	idx.DeclareFunction("foo", loc("a.h", 1, 6))
	d := idx.Dump()

	idx.PurgeFile("a.h")
	require.NotNil(t, d.Functions["foo"].Declaration)

	restored := NewIndex()
	restored.Restore(d)
	fn, ok := restored.Function("foo")
	require.True(t, ok)
	assert.Equal(t, loc("a.h", 1, 6), *fn.Declaration)
}

func TestIndex_FilesAndStats(t *testing.T) {
	t.Parallel()

	idx := NewIndex()
	for i := 0; i < 3; i++ {
		idx.DefineFunction(fmt.Sprintf("f%d", i), loc(fmt.Sprintf("f%d.c", i), 1, 1))
	}
	idx.DeclareType("t", loc("t.h", 1, 1))

	assert.Equal(t, []string{"f0.c", "f1.c", "f2.c", "t.h"}, idx.Files())
	assert.Equal(t, Stats{Functions: 3, Types: 1, Files: 4}, idx.Stats())

	idx.Reset()
	assert.Equal(t, Stats{}, idx.Stats())
}
