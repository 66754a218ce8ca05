package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/mvp-joe/cindex/internal/symbols"
)

// Snapshot backends.
const (
	BackendText   = "text"
	BackendSQLite = "sqlite"
)

// ErrUnknownBackend is returned by Open for an unrecognized backend name.
var ErrUnknownBackend = errors.New("unknown snapshot backend")

// lockRetryDelay is how often a blocked writer retries the snapshot lock.
const lockRetryDelay = 50 * time.Millisecond

// Store persists a symbol index dump and reads it back.
type Store interface {
	// Save replaces the stored snapshot with dump.
	Save(ctx context.Context, dump symbols.Dump) error

	// Load reads the stored snapshot. A missing snapshot returns an empty
	// dump and os.ErrNotExist.
	Load(ctx context.Context) (symbols.Dump, error)

	// Path returns the snapshot location.
	Path() string

	Close() error
}

// Open returns the store for backend at path.
func Open(backend, path string) (Store, error) {
	if path == "" {
		return nil, fmt.Errorf("snapshot path is required")
	}

	switch backend {
	case "", BackendText:
		return NewTextStore(path), nil
	case BackendSQLite:
		return OpenSQLiteStore(path)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
}

// LockPath returns the lock file guarding writes to path.
func LockPath(path string) string {
	return path + ".lock"
}

// withFileLock runs fn while holding an exclusive lock next to path, so two
// processes never write the same snapshot at once.
func withFileLock(ctx context.Context, path string, fn func() error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	lock := flock.New(LockPath(path))
	locked, err := lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("failed to acquire snapshot lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("failed to acquire snapshot lock: %s", LockPath(path))
	}
	defer lock.Unlock()

	return fn()
}

func emptyDump() symbols.Dump {
	return symbols.Dump{
		Functions: make(map[string]symbols.FunctionEntry),
		Types:     make(map[string]symbols.TypeEntry),
	}
}
