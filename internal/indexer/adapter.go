package indexer

import (
	"context"
	"fmt"
	"log"

	"github.com/mvp-joe/cindex/internal/symbols"
)

// Analyzer turns one source file into symbol events.
// parsers.Analyzer is the production implementation.
type Analyzer interface {
	Analyze(ctx context.Context, filePath string) ([]symbols.Event, error)
}

// ParseFailedError reports that a single file could not be analyzed.
// It never aborts the surrounding job.
type ParseFailedError struct {
	File string
	Err  error
}

func (e *ParseFailedError) Error() string {
	return fmt.Sprintf("failed to parse %s: %v", e.File, e.Err)
}

func (e *ParseFailedError) Unwrap() error {
	return e.Err
}

// Adapter applies analyzer output for one file to the symbol index, purging
// the file's previous contributions first.
type Adapter struct {
	analyzer Analyzer
	index    *symbols.Index
	verbose  bool
}

// NewAdapter creates an adapter writing into index.
func NewAdapter(analyzer Analyzer, index *symbols.Index, verbose bool) *Adapter {
	return &Adapter{
		analyzer: analyzer,
		index:    index,
		verbose:  verbose,
	}
}

// IndexFile analyzes path and replaces its contributions in the index.
// It returns the number of events applied.
//
// When analysis fails the file's old contributions are still purged, so the
// file contributes nothing until it parses again, and a *ParseFailedError is
// returned.
func (a *Adapter) IndexFile(ctx context.Context, path string) (int, error) {
	events, err := a.analyzer.Analyze(ctx, path)
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		a.index.PurgeFile(path)
		return 0, &ParseFailedError{File: path, Err: err}
	}

	purged := a.index.ReplaceFile(path, events)
	if a.verbose {
		log.Printf("[indexer] %s: purged %d, applied %d events", path, purged, len(events))
	}
	return len(events), nil
}

// RemoveFile purges every location attributed to path.
func (a *Adapter) RemoveFile(path string) int {
	purged := a.index.PurgeFile(path)
	if a.verbose {
		log.Printf("[indexer] %s: removed, purged %d locations", path, purged)
	}
	return purged
}
