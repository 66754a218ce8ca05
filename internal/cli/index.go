package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mvp-joe/cindex/internal/config"
)

var (
	quietFlag   bool
	outputFlag  string
	backendFlag string
)

// indexCmd represents the index command
var indexCmd = &cobra.Command{
	Use:   "index <root>",
	Short: "Index a source tree once and write a snapshot",
	Long: `Index walks root, analyzes every C/C++ file and writes the resulting symbol
table to a snapshot. The text backend writes DECL/IMPL/CALL/TYPE/REF lines;
the sqlite backend keeps full locations and call-site content and can be
used by serve --index for a warm start.

Examples:
  # Write .cindex/symbols.txt under the project
  cindex index ~/src/project

  # Write a SQLite snapshot without progress bars
  cindex index ~/src/project --backend sqlite --output symbols.db --quiet`,
	Args: cobra.ExactArgs(1),
	RunE: runIndex,
}

func init() {
	rootCmd.AddCommand(indexCmd)
	indexCmd.Flags().BoolVarP(&quietFlag, "quiet", "q", false, "Disable progress bars and non-error output")
	indexCmd.Flags().StringVarP(&outputFlag, "output", "o", "", "Snapshot path (default: snapshot.path or <root>/.cindex/symbols.<ext>)")
	indexCmd.Flags().StringVar(&backendFlag, "backend", "", "Snapshot backend: text or sqlite (default: from --output extension, else snapshot.backend)")
}

func runIndex(cmd *cobra.Command, args []string) error {
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
	switch {
	case backendFlag != "":
		cfg.Snapshot.Backend = backendFlag
		if err := config.Validate(cfg); err != nil {
			return err
		}
	case outputFlag != "":
		cfg.Snapshot.Backend = snapshotBackend(outputFlag, cfg.Snapshot.Backend)
	}

	output := outputFlag
	if output == "" {
		output = defaultSnapshotPath(root, cfg)
	}

	rt, err := newRuntime(ctx, cfg, runtimeOptions{
		snapshotPath: output,
		progress:     NewCLIProgressReporter(quietFlag),
	})
	if err != nil {
		return err
	}

	stats, err := rt.indexRoot(ctx, root, false)
	closeErr := rt.Close()
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return fmt.Errorf("indexing cancelled")
		}
		return fmt.Errorf("failed to index %s: %w", root, err)
	}
	if closeErr != nil {
		return closeErr
	}

	if !quietFlag {
		fmt.Printf("Snapshot: %s (%d files)\n", output, stats.FilesIndexed)
	}
	return nil
}

// defaultSnapshotPath is snapshot.path when configured, else a file under
// the project's .cindex directory named for the backend.
func defaultSnapshotPath(root string, cfg *config.Config) string {
	if cfg.Snapshot.Path != "" {
		return cfg.Snapshot.Path
	}
	name := "symbols.txt"
	if cfg.Snapshot.Backend == config.BackendSQLite {
		name = "symbols.db"
	}
	return filepath.Join(projectDir(root), config.DirName, name)
}
