package indexer

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mvp-joe/cindex/internal/symbols"
)

// fakeAnalyzer returns canned events per file. Files listed in failures
// fail to parse. When gate is non-nil every call blocks until it is closed.
type fakeAnalyzer struct {
	mu       sync.Mutex
	events   map[string][]symbols.Event
	failures map[string]error
	calls    []string
	gate     chan struct{}
}

func newFakeAnalyzer() *fakeAnalyzer {
	return &fakeAnalyzer{
		events:   make(map[string][]symbols.Event),
		failures: make(map[string]error),
	}
}

func (f *fakeAnalyzer) set(file string, events ...symbols.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events[file] = events
	delete(f.failures, file)
}

func (f *fakeAnalyzer) fail(file string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[file] = err
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, filePath string) ([]symbols.Event, error) {
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, filePath)
	if err, ok := f.failures[filePath]; ok {
		return nil, err
	}
	return f.events[filePath], nil
}

func (f *fakeAnalyzer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func loc(file string, line, col int) symbols.Location {
	return symbols.Location{File: file, Line: line, Column: col}
}

// writeTree creates files (relative path -> content) under dir.
func writeTree(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
}
