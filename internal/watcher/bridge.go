package watcher

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mvp-joe/cindex/internal/indexer"
)

// busyRetryDelay is used when the coordinator is busy but has no job to wait on.
const busyRetryDelay = 10 * time.Millisecond

// Bridge turns watcher events into incremental indexing jobs.
//
// Modified and created files are re-indexed alone, created directories are
// discovered and indexed, and deleted paths are purged. When the coordinator
// is busy the batch is retried after the running job finishes, so no event
// is lost.
type Bridge struct {
	ctx        context.Context
	coord      JobStarter
	extensions []string
	debounce   time.Duration
	verbose    bool

	// newWatcher is swapped in tests.
	newWatcher func(dirs, extensions []string, debounce time.Duration) (FileWatcher, error)

	mu      sync.Mutex
	watcher FileWatcher
	roots   map[string]bool
	closed  bool
}

// NewBridge creates a bridge that submits jobs to coord. No watch exists
// until WatchRoot is called.
func NewBridge(ctx context.Context, coord JobStarter, extensions []string, debounce time.Duration, verbose bool) *Bridge {
	return &Bridge{
		ctx:        ctx,
		coord:      coord,
		extensions: extensions,
		debounce:   debounce,
		verbose:    verbose,
		newWatcher: NewFileWatcher,
		roots:      make(map[string]bool),
	}
}

// WatchRoot starts watching root, creating the underlying watcher on first
// use. Roots already watched are ignored. A failure means live updates are
// unavailable for root; indexing itself is unaffected.
func (b *Bridge) WatchRoot(root string) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", root, err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return fmt.Errorf("failed to watch %s: %w", abs, err)
	}
	if !info.IsDir() {
		abs = filepath.Dir(abs)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("bridge is closed")
	}
	if b.roots[abs] {
		return nil
	}

	if b.watcher == nil {
		w, err := b.newWatcher([]string{abs}, b.extensions, b.debounce)
		if err != nil {
			return fmt.Errorf("failed to create watcher: %w", err)
		}
		if err := w.Start(b.ctx, b.Handle); err != nil {
			w.Stop()
			return fmt.Errorf("failed to start watcher: %w", err)
		}
		b.watcher = w
	} else if err := b.watcher.Add(abs); err != nil {
		return fmt.Errorf("failed to watch %s: %w", abs, err)
	}

	b.roots[abs] = true
	log.Printf("[watcher] Watching %s for changes", abs)
	return nil
}

// Roots returns the watched roots.
func (b *Bridge) Roots() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	roots := make([]string, 0, len(b.roots))
	for root := range b.roots {
		roots = append(roots, root)
	}
	return roots
}

// Handle submits one batch of events and waits for the resulting job.
// It returns early, leaving the job running, when ctx ends.
func (b *Bridge) Handle(ctx context.Context, events []Event) {
	req, ok := buildRequest(events)
	if !ok {
		return
	}

	if b.verbose {
		log.Printf("[watcher] %d changed, %d new directories, %d removed",
			len(req.Files), len(req.Dirs), len(req.Removed))
	}

	for {
		job, err := b.coord.Start(ctx, req)
		if err == nil {
			select {
			case <-job.Done():
			case <-ctx.Done():
			}
			return
		}
		if !errors.Is(err, indexer.ErrBusy) {
			log.Printf("[watcher] Failed to start indexing: %v", err)
			return
		}

		// Wait for the running job, then try again.
		var wait <-chan struct{}
		var retry <-chan time.Time
		if current := b.coord.Current(); current != nil {
			wait = current.Done()
		} else {
			retry = time.After(busyRetryDelay)
		}
		select {
		case <-wait:
		case <-retry:
		case <-ctx.Done():
			log.Printf("[watcher] Dropped %d pending changes on shutdown", len(events))
			return
		}
	}
}

// Close stops the watcher. Safe to call multiple times.
func (b *Bridge) Close() error {
	b.mu.Lock()
	w := b.watcher
	b.watcher = nil
	b.closed = true
	b.mu.Unlock()

	if w == nil {
		return nil
	}
	return w.Stop()
}

// buildRequest maps events to a job. Files that vanished before the batch
// was delivered are purged instead of indexed.
func buildRequest(events []Event) (indexer.Request, bool) {
	var req indexer.Request
	for _, ev := range events {
		switch ev.Op {
		case Deleted:
			req.Removed = append(req.Removed, ev.Path)
		case Created, Modified:
			info, err := os.Stat(ev.Path)
			switch {
			case err != nil:
				req.Removed = append(req.Removed, ev.Path)
			case info.IsDir():
				if ev.Op == Created {
					req.Dirs = append(req.Dirs, ev.Path)
				}
			default:
				req.Files = append(req.Files, ev.Path)
			}
		}
	}

	ok := len(req.Files) > 0 || len(req.Dirs) > 0 || len(req.Removed) > 0
	return req, ok
}
