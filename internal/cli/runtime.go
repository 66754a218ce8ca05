package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/mvp-joe/cindex/internal/config"
	"github.com/mvp-joe/cindex/internal/indexer"
	"github.com/mvp-joe/cindex/internal/indexer/parsers"
	"github.com/mvp-joe/cindex/internal/storage"
	"github.com/mvp-joe/cindex/internal/symbols"
	"github.com/mvp-joe/cindex/internal/watcher"
)

// runtime holds the components shared by serve, index and mcp: the symbol
// index, the coordinator that fills it, the watcher bridge that keeps it
// current and the optional snapshot store.
type runtime struct {
	cfg      *config.Config
	index    *symbols.Index
	resolver *symbols.Resolver
	coord    *indexer.Coordinator
	bridge   *watcher.Bridge
	store    storage.Store
}

type runtimeOptions struct {
	// snapshotPath overrides cfg.Snapshot.Path when set.
	snapshotPath string
	progress     indexer.ProgressReporter
	// watch enables the watcher bridge; jobs asking for a watch get one.
	watch bool
}

func newRuntime(ctx context.Context, cfg *config.Config, opts runtimeOptions) (*runtime, error) {
	discovery, err := indexer.NewFileDiscovery(cfg.Paths.Code, cfg.Paths.Ignore)
	if err != nil {
		return nil, fmt.Errorf("failed to create file discovery: %w", err)
	}

	rt := &runtime{
		cfg:   cfg,
		index: symbols.NewIndex(),
	}
	rt.resolver = symbols.NewResolver(rt.index)

	snapshotPath := cfg.Snapshot.Path
	if opts.snapshotPath != "" {
		snapshotPath = opts.snapshotPath
	}
	if snapshotPath != "" {
		store, err := storage.Open(cfg.Snapshot.Backend, snapshotPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open snapshot: %w", err)
		}
		rt.store = store
	}

	coordOpts := []indexer.Option{
		indexer.WithWorkers(cfg.Indexer.Workers),
		indexer.WithProgress(opts.progress),
		indexer.WithVerbose(cfg.Verbose),
		indexer.WithOnComplete(rt.onJobComplete),
	}
	if rt.store != nil {
		coordOpts = append(coordOpts, indexer.WithSnapshot(rt.store))
	}

	analyzer := parsers.NewAnalyzer(cfg.Analyzer.SourceExtensions, cfg.Analyzer.HeaderExtensions)
	rt.coord = indexer.NewCoordinator(rt.index, analyzer, discovery, coordOpts...)

	if opts.watch {
		rt.bridge = watcher.NewBridge(ctx, rt.coord, cfg.Analyzer.Extensions(), cfg.Watcher.Debounce(), cfg.Verbose)
	}

	return rt, nil
}

// onJobComplete installs a watch on the job root when the job asked for one.
func (rt *runtime) onJobComplete(job *indexer.Job, stats *indexer.JobStats) {
	if rt.bridge == nil || !job.Request.Watch || job.Request.Root == "" {
		return
	}
	if _, err := os.Stat(job.Request.Root); err != nil {
		return
	}
	if err := rt.bridge.WatchRoot(job.Request.Root); err != nil {
		log.Printf("[watcher] Warning: live updates unavailable for %s: %v", job.Request.Root, err)
	}
}

// warmStart restores the index from the snapshot store, if there is one.
// A missing snapshot is not an error.
func (rt *runtime) warmStart(ctx context.Context) error {
	if rt.store == nil {
		return nil
	}
	dump, err := rt.store.Load(ctx)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load snapshot: %w", err)
	}
	rt.index.Restore(dump)

	stats := rt.index.Stats()
	log.Printf("[snapshot] Restored %d functions and %d types from %s", stats.Functions, stats.Types, rt.store.Path())
	return nil
}

// indexRoot runs a full re-index of root and waits for it.
func (rt *runtime) indexRoot(ctx context.Context, root string, watch bool) (*indexer.JobStats, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", root, err)
	}

	job, err := rt.coord.Start(ctx, indexer.Request{Root: abs, Reset: true, Watch: watch})
	if err != nil {
		return nil, err
	}

	select {
	case <-job.Done():
	case <-ctx.Done():
		job.Cancel()
		<-job.Done()
	}
	return job.Wait()
}

// Close waits for the running job, stops watching and closes the snapshot.
func (rt *runtime) Close() error {
	var errs []error
	if rt.bridge != nil {
		if err := rt.bridge.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if _, err := rt.coord.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("[indexer] Last job failed: %v", err)
	}
	if rt.store != nil {
		if err := rt.store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// loadConfig reads the config for root, honoring --config and --verbose.
func loadConfig(root string) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if cfgFile != "" {
		cfg, err = config.NewFileLoader(cfgFile).Load()
	} else {
		cfg, err = config.LoadConfigFromDir(projectDir(root))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if verbose {
		cfg.Verbose = true
	}
	if cfg.Snapshot.Path != "" && !filepath.IsAbs(cfg.Snapshot.Path) {
		cfg.Snapshot.Path = filepath.Join(projectDir(root), cfg.Snapshot.Path)
	}
	return cfg, nil
}

// rootArg returns args[0], or the working directory when no root was given.
func rootArg(args []string) (string, error) {
	if len(args) > 0 && args[0] != "" {
		return filepath.Abs(args[0])
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working directory: %w", err)
	}
	return wd, nil
}

// projectDir is root itself, or its directory when root is a file.
func projectDir(root string) string {
	if info, err := os.Stat(root); err == nil && !info.IsDir() {
		return filepath.Dir(root)
	}
	return root
}

// snapshotBackend picks the backend for an explicitly named snapshot file
// from its extension, falling back to the configured backend.
func snapshotBackend(path, configured string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".db", ".sqlite", ".sqlite3":
		return config.BackendSQLite
	case ".txt":
		return config.BackendText
	default:
		return configured
	}
}
