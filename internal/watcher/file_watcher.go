package watcher

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period used when none is configured.
const DefaultDebounce = 200 * time.Millisecond

// fileWatcher implements FileWatcher interface.
type fileWatcher struct {
	watcher       *fsnotify.Watcher
	extensions    map[string]bool                           // Extensions to monitor (.c, .h, ...)
	debounceTime  time.Duration                             // Quiet period before firing callback
	callback      func(ctx context.Context, events []Event) // Callback to invoke with changes
	ctx           context.Context                           // Context for lifecycle management
	cancel        context.CancelFunc                        // Cancel function for internal context
	accumulated   map[string]Event                          // Pending changes by path
	accumulatedMu sync.Mutex                                // Protects accumulated map
	debounceTimer *time.Timer                               // Current debounce timer
	timerMu       sync.Mutex                                // Protects debounce timer
	stopOnce      sync.Once                                 // Ensures Stop() is idempotent
	doneCh        chan struct{}                             // Signals watch goroutine has finished
}

// NewFileWatcher creates a new file watcher for the given directories.
// dirs: Source directories to watch recursively
// extensions: File extensions to monitor (e.g., []string{".c", ".h"})
// debounce: Quiet period before a batch is delivered (0 uses DefaultDebounce)
func NewFileWatcher(dirs []string, extensions []string, debounce time.Duration) (FileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	// Convert extensions slice to map for O(1) lookup
	extMap := make(map[string]bool)
	for _, ext := range extensions {
		extMap[ext] = true
	}

	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	fw := &fileWatcher{
		watcher:      watcher,
		extensions:   extMap,
		debounceTime: debounce,
		accumulated:  make(map[string]Event),
		doneCh:       make(chan struct{}),
	}

	// Add all directories recursively
	for _, dir := range dirs {
		if err := fw.addDirectoriesRecursively(dir); err != nil {
			watcher.Close()
			return nil, err
		}
	}

	return fw, nil
}

// Start begins watching for file changes.
func (fw *fileWatcher) Start(ctx context.Context, callback func(ctx context.Context, events []Event)) error {
	if callback == nil {
		return nil
	}

	fw.callback = callback
	fw.ctx, fw.cancel = context.WithCancel(ctx)

	go fw.watch()
	return nil
}

// Add watches another directory tree.
func (fw *fileWatcher) Add(dir string) error {
	return fw.addDirectoriesRecursively(dir)
}

// Stop stops the file watcher.
func (fw *fileWatcher) Stop() error {
	var err error
	fw.stopOnce.Do(func() {
		// Cancel context to signal goroutine
		if fw.cancel != nil {
			fw.cancel()

			// Wait for goroutine to finish (only if Start() was called)
			<-fw.doneCh
		} else {
			// Never started, close doneCh manually
			close(fw.doneCh)
		}

		// Close watcher
		err = fw.watcher.Close()
	})
	return err
}

// watch is the main event loop.
func (fw *fileWatcher) watch() {
	defer close(fw.doneCh)

	reindexCh := make(chan struct{}, 1)

	for {
		select {
		case <-fw.ctx.Done():
			// Context cancelled - clean shutdown
			fw.stopDebounceTimer()
			return

		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}

			ev, ok := fw.translate(event)
			if !ok {
				continue
			}

			// Watch new directories before anything is created inside them
			if ev.Op == Created && ev.IsDir {
				if err := fw.addDirectoriesRecursively(ev.Path); err != nil {
					log.Printf("[watcher] Warning: failed to watch new directory %s: %v", ev.Path, err)
				}
			}

			fw.accumulatedMu.Lock()
			fw.accumulated[ev.Path] = mergeEvents(fw.accumulated[ev.Path], ev)
			fw.accumulatedMu.Unlock()

			// Reset debounce timer
			fw.resetDebounceTimer(reindexCh)

		case <-reindexCh:
			fw.handleDebounceExpired()

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("[watcher] File watcher error: %v", err)
		}
	}
}

// translate converts an fsnotify event, dropping the ones nobody indexes.
func (fw *fileWatcher) translate(event fsnotify.Event) (Event, bool) {
	ev := Event{Path: event.Name}

	switch {
	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		ev.Op = Deleted
	case event.Op&fsnotify.Create != 0:
		ev.Op = Created
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			ev.IsDir = true
		}
	case event.Op&fsnotify.Write != 0:
		ev.Op = Modified
	default:
		return Event{}, false
	}

	ext := filepath.Ext(event.Name)
	switch {
	case fw.extensions[ext]:
		return ev, true
	case ev.IsDir:
		return ev, true
	case ev.Op == Deleted && ext == "":
		// Possibly a directory; the bridge purges anything indexed below it.
		return ev, true
	}
	return Event{}, false
}

// mergeEvents coalesces two events for one path. The latest event wins,
// except that a modification does not hide a creation.
func mergeEvents(prev, next Event) Event {
	if prev.Op == Created && next.Op == Modified {
		return prev
	}
	return next
}

// handleDebounceExpired is called when the debounce timer expires.
func (fw *fileWatcher) handleDebounceExpired() {
	fw.accumulatedMu.Lock()
	if len(fw.accumulated) == 0 {
		fw.accumulatedMu.Unlock()
		return
	}

	events := make([]Event, 0, len(fw.accumulated))
	for _, ev := range fw.accumulated {
		events = append(events, ev)
	}
	// Clear accumulated
	fw.accumulated = make(map[string]Event)
	fw.accumulatedMu.Unlock()

	sort.Slice(events, func(i, j int) bool {
		return events[i].Path < events[j].Path
	})

	// Fire callback
	if fw.callback != nil {
		fw.callback(fw.ctx, events)
	}
}

// resetDebounceTimer resets the debounce timer, properly stopping the old one.
func (fw *fileWatcher) resetDebounceTimer(reindexCh chan struct{}) {
	fw.timerMu.Lock()
	defer fw.timerMu.Unlock()

	if fw.debounceTimer != nil {
		fw.debounceTimer.Stop()
	}

	fw.debounceTimer = time.AfterFunc(fw.debounceTime, func() {
		// Send reindex signal (non-blocking)
		select {
		case reindexCh <- struct{}{}:
		default:
		}
	})
}

// stopDebounceTimer stops the debounce timer if it exists.
func (fw *fileWatcher) stopDebounceTimer() {
	fw.timerMu.Lock()
	defer fw.timerMu.Unlock()

	if fw.debounceTimer != nil {
		fw.debounceTimer.Stop()
		fw.debounceTimer = nil
	}
}

// addDirectoriesRecursively adds all directories in the tree to the watcher.
func (fw *fileWatcher) addDirectoriesRecursively(rootPath string) error {
	return filepath.WalkDir(rootPath, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			// If it's the root path, fail immediately
			if path == rootPath {
				return err
			}
			// For subdirectories, log but continue
			log.Printf("[watcher] Warning: error accessing %s: %v", path, err)
			return nil
		}

		// Only add directories
		if !d.IsDir() {
			return nil
		}

		if err := fw.watcher.Add(path); err != nil {
			log.Printf("[watcher] Warning: failed to watch directory %s: %v", path, err)
			return nil // Continue anyway
		}

		return nil
	})
}
