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

	"github.com/mvp-joe/cindex/internal/mcp"
)

// mcpCmd represents the mcp command
var mcpCmd = &cobra.Command{
	Use:   "mcp [root]",
	Short: "Serve the symbol index as MCP tools over stdio",
	Long: `Start a Model Context Protocol (MCP) server that lets coding assistants
query the C/C++ symbol index.

The MCP server:
- Indexes root (default: the current directory) and watches it for changes
- Provides cindex_declaration, cindex_implementation, cindex_calls,
  cindex_autocomplete, cindex_stats and cindex_index tools
- Communicates via stdio (standard MCP transport)

Example:
  cindex mcp ~/src/project`,
	Args: cobra.MaximumNArgs(1),
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, args []string) error {
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

	rt, err := newRuntime(ctx, cfg, runtimeOptions{watch: cfg.Indexer.Watch})
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			log.Printf("[mcp] Warning: shutdown: %v", err)
		}
	}()

	if err := rt.warmStart(ctx); err != nil {
		log.Printf("[mcp] Warning: %v", err)
	}

	fmt.Fprintf(os.Stderr, "cindex MCP Server\n")
	fmt.Fprintf(os.Stderr, "Root: %s\n\n", root)

	stats, err := rt.indexRoot(ctx, root, cfg.Indexer.Watch)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return fmt.Errorf("failed to index %s: %w", root, err)
	}
	log.Printf("[mcp] Indexed %d files in %s", stats.FilesIndexed, stats.Duration)

	server := mcp.NewMCPServer(rt.resolver, rt.index, rt.coord, Version)
	if err := server.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("MCP server error: %w", err)
	}
	return nil
}
