package indexer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/mvp-joe/cindex/internal/symbols"
)

// ErrBusy is returned by Start while another job is running.
var ErrBusy = errors.New("indexing already in progress")

// DefaultWorkers is the number of files analyzed concurrently by default.
const DefaultWorkers = 4

// SnapshotWriter persists the index after a job completes.
type SnapshotWriter interface {
	Save(ctx context.Context, dump symbols.Dump) error
}

// Request describes one indexing job.
type Request struct {
	// Root is walked with file discovery when set.
	Root string

	// Dirs are walked with discovery like Root, without affecting watches.
	Dirs []string

	// Files are indexed individually, without discovery.
	Files []string

	// Removed paths are purged from the index. A directory purges every
	// indexed file below it.
	Removed []string

	// Reset empties the index before anything else happens.
	Reset bool

	// Watch asks the completion hook to watch Root for changes.
	Watch bool
}

// JobStats summarizes a finished job.
type JobStats struct {
	JobID           string        `json:"job_id"`
	Root            string        `json:"root,omitempty"`
	FilesDiscovered int           `json:"files_discovered"`
	FilesIndexed    int           `json:"files_indexed"`
	FilesFailed     int           `json:"files_failed"`
	FilesRemoved    int           `json:"files_removed"`
	Events          int           `json:"events"`
	SnapshotSaved   bool          `json:"snapshot_saved"`
	Duration        time.Duration `json:"duration_ns"`
}

// Job is the handle for a running or finished indexing job.
type Job struct {
	ID      string
	Request Request

	cancel context.CancelFunc
	done   chan struct{}
	stats  *JobStats
	err    error
}

// Done is closed once the job has finished.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Wait blocks until the job finishes and returns its stats.
func (j *Job) Wait() (*JobStats, error) {
	<-j.done
	return j.stats, j.err
}

// Cancel stops the job at the next file boundary.
func (j *Job) Cancel() {
	j.cancel()
}

func (j *Job) finish(stats *JobStats, err error) {
	j.stats = stats
	j.err = err
	j.cancel()
	close(j.done)
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithWorkers bounds how many files are analyzed at once.
func WithWorkers(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithSnapshot saves the index through w after every successful job.
func WithSnapshot(w SnapshotWriter) Option {
	return func(c *Coordinator) {
		c.snapshot = w
	}
}

// WithProgress reports job progress to r.
func WithProgress(r ProgressReporter) Option {
	return func(c *Coordinator) {
		if r != nil {
			c.progress = r
		}
	}
}

// WithOnComplete registers a hook run after every successful job, before the
// coordinator accepts the next one.
func WithOnComplete(fn func(*Job, *JobStats)) Option {
	return func(c *Coordinator) {
		c.onComplete = fn
	}
}

// WithVerbose enables per-file logging.
func WithVerbose(verbose bool) Option {
	return func(c *Coordinator) {
		c.verbose = verbose
	}
}

// Coordinator runs indexing jobs one at a time. A request made while a job is
// running is rejected with ErrBusy; it is never queued or merged.
type Coordinator struct {
	index      *symbols.Index
	adapter    *Adapter
	discovery  *FileDiscovery
	workers    int
	snapshot   SnapshotWriter
	progress   ProgressReporter
	onComplete func(*Job, *JobStats)
	verbose    bool

	running     atomic.Bool
	jobsStarted atomic.Int64

	mu      sync.Mutex
	current *Job
}

// NewCoordinator creates a coordinator that writes into index. A nil
// discovery falls back to DefaultCodePatterns with no ignore rules.
func NewCoordinator(index *symbols.Index, analyzer Analyzer, discovery *FileDiscovery, opts ...Option) *Coordinator {
	if discovery == nil {
		discovery, _ = NewFileDiscovery(DefaultCodePatterns, nil)
	}

	c := &Coordinator{
		index:     index,
		discovery: discovery,
		workers:   DefaultWorkers,
		progress:  &NoOpProgressReporter{},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.adapter = NewAdapter(analyzer, index, c.verbose)

	return c
}

// Start launches a job in the background and returns its handle, or ErrBusy
// when a job is already running.
//
// The job does not inherit ctx's cancellation: stopping the caller (for
// example a server shutting down) never aborts an in-flight job. Use
// Job.Cancel to stop it.
func (c *Coordinator) Start(ctx context.Context, req Request) (*Job, error) {
	if !c.running.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	c.jobsStarted.Add(1)

	jobCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	job := &Job{
		ID:      uuid.NewString(),
		Request: req,
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	c.mu.Lock()
	c.current = job
	c.mu.Unlock()

	go c.run(jobCtx, job)

	return job, nil
}

// Running reports whether a job is in flight.
func (c *Coordinator) Running() bool {
	return c.running.Load()
}

// JobsStarted returns how many jobs have been started since creation.
func (c *Coordinator) JobsStarted() int64 {
	return c.jobsStarted.Load()
}

// Current returns the most recently started job, or nil.
func (c *Coordinator) Current() *Job {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Wait blocks until the most recently started job finishes.
func (c *Coordinator) Wait() (*JobStats, error) {
	job := c.Current()
	if job == nil {
		return nil, nil
	}
	return job.Wait()
}

// Index returns the index the coordinator writes into.
func (c *Coordinator) Index() *symbols.Index {
	return c.index
}

func (c *Coordinator) run(ctx context.Context, job *Job) {
	stats, err := c.execute(ctx, job)
	if err != nil {
		log.Printf("[indexer] job %s failed: %v", job.ID, err)
	} else {
		log.Printf("[indexer] job %s: indexed %d files (%d failed, %d removed) in %s",
			job.ID, stats.FilesIndexed, stats.FilesFailed, stats.FilesRemoved, stats.Duration.Round(time.Millisecond))
		c.progress.OnComplete(stats)
		if c.onComplete != nil {
			c.onComplete(job, stats)
		}
	}

	// Release the slot before signalling waiters so a waiter can start the
	// next job immediately.
	c.running.Store(false)
	job.finish(stats, err)
}

func (c *Coordinator) execute(ctx context.Context, job *Job) (*JobStats, error) {
	start := time.Now()
	req := job.Request
	stats := &JobStats{JobID: job.ID, Root: req.Root}

	if req.Reset {
		c.index.Reset()
	}

	for _, path := range req.Removed {
		stats.FilesRemoved += c.removePath(absPath(path))
	}

	files := make([]string, 0, len(req.Files))
	for _, f := range req.Files {
		files = append(files, absPath(f))
	}

	roots := req.Dirs
	if req.Root != "" {
		roots = append([]string{req.Root}, roots...)
	}
	for _, root := range roots {
		root = absPath(root)
		c.progress.OnDiscoveryStart(root)
		found, err := c.discovery.Discover(root)
		if err != nil {
			// A bad root indexes nothing; the job itself still completes.
			log.Printf("[indexer] Warning: discovery of %s failed: %v", root, err)
		}
		c.progress.OnDiscoveryComplete(len(found))
		files = append(files, found...)
	}
	stats.FilesDiscovered = len(files)

	c.progress.OnFileProcessingStart(len(files))

	var indexed, failed, events atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)
	for _, file := range files {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			n, err := c.adapter.IndexFile(gctx, file)
			c.progress.OnFileProcessed(file)
			if err != nil {
				var parseErr *ParseFailedError
				if errors.As(err, &parseErr) {
					failed.Add(1)
					log.Printf("[indexer] %v", parseErr)
					return nil
				}
				return err
			}
			indexed.Add(1)
			events.Add(int64(n))
			return nil
		})
	}
	err := g.Wait()

	stats.FilesIndexed = int(indexed.Load())
	stats.FilesFailed = int(failed.Load())
	stats.Events = int(events.Load())
	stats.Duration = time.Since(start)

	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		return stats, fmt.Errorf("indexing interrupted: %w", err)
	}

	if c.snapshot != nil {
		if err := c.snapshot.Save(ctx, c.index.Dump()); err != nil {
			log.Printf("[indexer] Warning: failed to save snapshot: %v", err)
		} else {
			stats.SnapshotSaved = true
		}
	}

	return stats, nil
}

// removePath purges path and, if it was a directory, every indexed file
// below it. It returns the number of files purged.
func (c *Coordinator) removePath(path string) int {
	prefix := path + string(filepath.Separator)
	removed := 0
	for _, file := range c.index.Files() {
		if file == path || strings.HasPrefix(file, prefix) {
			c.adapter.RemoveFile(file)
			removed++
		}
	}
	return removed
}

func absPath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	return abs
}
