package config

import (
	"errors"
	"fmt"
	"strings"
)

// Snapshot backends accepted by snapshot.backend.
const (
	BackendText   = "text"
	BackendSQLite = "sqlite"
)

var (
	// ErrInvalidPort indicates a port outside 0..65535
	ErrInvalidPort = errors.New("invalid server port")

	// ErrInvalidWorkers indicates a non-positive worker count
	ErrInvalidWorkers = errors.New("invalid worker count")

	// ErrInvalidBackend indicates an unsupported snapshot backend
	ErrInvalidBackend = errors.New("invalid snapshot backend")

	// ErrInvalidDebounce indicates a negative debounce window
	ErrInvalidDebounce = errors.New("invalid debounce")

	// ErrInvalidExtensions indicates a bad analyzer extension list
	ErrInvalidExtensions = errors.New("invalid analyzer extensions")
)

// Validate checks that the configuration is valid and complete.
func Validate(cfg *Config) error {
	var errs []error

	if err := validateServer(&cfg.Server); err != nil {
		errs = append(errs, err)
	}

	if err := validatePaths(&cfg.Paths); err != nil {
		errs = append(errs, err)
	}

	if err := validateAnalyzer(&cfg.Analyzer); err != nil {
		errs = append(errs, err)
	}

	if cfg.Indexer.Workers < 1 {
		errs = append(errs, fmt.Errorf("%w: workers must be at least 1, got %d", ErrInvalidWorkers, cfg.Indexer.Workers))
	}

	if cfg.Watcher.DebounceMs < 0 {
		errs = append(errs, fmt.Errorf("%w: debounce_ms cannot be negative, got %d", ErrInvalidDebounce, cfg.Watcher.DebounceMs))
	}

	if err := validateSnapshot(&cfg.Snapshot); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return joinErrors(errs)
	}

	return nil
}

func validateServer(cfg *ServerConfig) error {
	if cfg.Port < 0 || cfg.Port > 65535 {
		return fmt.Errorf("%w: port must be between 0 and 65535, got %d", ErrInvalidPort, cfg.Port)
	}
	return nil
}

func validatePaths(cfg *PathsConfig) error {
	// Paths can be empty - discovery falls back to the default C/C++ patterns
	return nil
}

func validateAnalyzer(cfg *AnalyzerConfig) error {
	var errs []error

	if len(cfg.SourceExtensions) == 0 {
		errs = append(errs, fmt.Errorf("%w: source_extensions cannot be empty", ErrInvalidExtensions))
	}
	if len(cfg.HeaderExtensions) == 0 {
		errs = append(errs, fmt.Errorf("%w: header_extensions cannot be empty", ErrInvalidExtensions))
	}

	sources := make(map[string]bool)
	for _, ext := range cfg.SourceExtensions {
		if !strings.HasPrefix(ext, ".") {
			errs = append(errs, fmt.Errorf("%w: %q must start with a dot", ErrInvalidExtensions, ext))
		}
		sources[ext] = true
	}
	for _, ext := range cfg.HeaderExtensions {
		if !strings.HasPrefix(ext, ".") {
			errs = append(errs, fmt.Errorf("%w: %q must start with a dot", ErrInvalidExtensions, ext))
		}
		if sources[ext] {
			errs = append(errs, fmt.Errorf("%w: %q is both a source and a header extension", ErrInvalidExtensions, ext))
		}
	}

	if len(errs) > 0 {
		return joinErrors(errs)
	}

	return nil
}

func validateSnapshot(cfg *SnapshotConfig) error {
	switch cfg.Backend {
	case BackendText, BackendSQLite:
		return nil
	default:
		return fmt.Errorf("%w: must be '%s' or '%s', got '%s'", ErrInvalidBackend, BackendText, BackendSQLite, cfg.Backend)
	}
}

// joinErrors combines multiple errors into a single error with clear formatting.
func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}

	if len(errs) == 1 {
		return errs[0]
	}

	var msgs []string
	for _, err := range errs {
		msgs = append(msgs, err.Error())
	}

	return fmt.Errorf("validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
}
