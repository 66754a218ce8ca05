package cli

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mvp-joe/cindex/internal/server"
)

var (
	servePort     int
	serveHost     string
	serveSnapshot string
	serveNoServer bool
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve [root]",
	Short: "Index a source tree and answer symbol queries over TCP",
	Long: `Serve optionally indexes root, then listens for line-protocol commands:

  INDEX <path>   re-index path from scratch (replies INDEXING or BUSY)
  AUTO <prefix>  names starting with prefix
  IMPL <name>    definition location
  DECL <name>    declaration location (falls back to the definition)
  CALLS <name>   call-sites of a function or references of a type
  QUIT           stop the server

Every reply ends with a line containing DONE. Indexed roots are watched and
changed files are re-indexed automatically.

Examples:
  # Index the current directory and serve on localhost:10000
  cindex serve .

  # Serve on another port, restoring from and saving to a snapshot
  cindex serve ~/src/project --port 12000 --index symbols.db

  # Index once and exit
  cindex serve ~/src/project --no-server --index symbols.txt`,
	Args: cobra.MaximumNArgs(1),
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 10000, "TCP port to listen on (0 picks a free port)")
	serveCmd.Flags().StringVar(&serveHost, "host", "localhost", "Interface to listen on")
	serveCmd.Flags().StringVar(&serveSnapshot, "index", "", "Snapshot file to restore from and save to (.db uses sqlite)")
	serveCmd.Flags().BoolVar(&serveNoServer, "no-server", false, "Index root and exit without serving")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root, err := rootArg(args)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = servePort
	}
	if cmd.Flags().Changed("host") {
		cfg.Server.Host = serveHost
	}

	if serveSnapshot != "" {
		cfg.Snapshot.Backend = snapshotBackend(serveSnapshot, cfg.Snapshot.Backend)
	}

	watch := cfg.Indexer.Watch && !serveNoServer
	rt, err := newRuntime(ctx, cfg, runtimeOptions{snapshotPath: serveSnapshot, watch: watch})
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			log.Printf("[serve] Warning: shutdown: %v", err)
		}
	}()

	if err := rt.warmStart(ctx); err != nil {
		log.Printf("[serve] Warning: %v", err)
	}

	if len(args) > 0 {
		stats, err := rt.indexRoot(ctx, root, watch)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("failed to index %s: %w", root, err)
		}
		log.Printf("[serve] Indexed %d files (%d failed) in %s", stats.FilesIndexed, stats.FilesFailed, stats.Duration)
	}

	if serveNoServer {
		return nil
	}

	srv := server.New(rt.coord, rt.resolver, server.Options{
		Addr:        cfg.Addr(),
		CallContent: cfg.Server.CallContent,
		Watch:       watch,
		Verbose:     cfg.Verbose,
	})
	if err := srv.ListenAndServe(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}
