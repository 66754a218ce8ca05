package watcher

import (
	"context"

	"github.com/mvp-joe/cindex/internal/indexer"
)

// Op is the kind of change observed for a path.
type Op int

const (
	Created Op = iota + 1
	Modified
	Deleted
)

func (o Op) String() string {
	switch o {
	case Created:
		return "created"
	case Modified:
		return "modified"
	case Deleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// Event is one debounced change. IsDir is only reliable for Created events;
// a deleted path can no longer be inspected.
type Event struct {
	Path  string
	Op    Op
	IsDir bool
}

// FileWatcher monitors source trees and delivers debounced, coalesced events.
type FileWatcher interface {
	// Start begins watching, calling callback with each debounced batch. The
	// callback runs on the watcher goroutine; its context ends on Stop.
	Start(ctx context.Context, callback func(ctx context.Context, events []Event)) error

	// Add watches another directory tree.
	Add(dir string) error

	// Stop stops the file watcher and cleans up resources.
	Stop() error
}

// JobStarter is the part of the indexing coordinator the bridge drives.
type JobStarter interface {
	Start(ctx context.Context, req indexer.Request) (*indexer.Job, error)
	Current() *indexer.Job
}
