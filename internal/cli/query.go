package cli

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mvp-joe/cindex/internal/client"
)

var (
	queryAddr    string
	queryTimeout time.Duration
)

// queryCmd represents the query command
var queryCmd = &cobra.Command{
	Use:   "query <COMMAND> [argument]",
	Short: "Send one command to a running cindex server",
	Long: `Query connects to a running server, sends one protocol line and prints the
reply without the DONE sentinel.

Examples:
  cindex query DECL foo
  cindex query CALLS bar --addr localhost:12000
  cindex query AUTO str
  cindex query INDEX ~/src/project`,
	Args: cobra.MinimumNArgs(1),
	RunE: runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.Flags().StringVar(&queryAddr, "addr", "localhost:10000", "Server address (host:port)")
	queryCmd.Flags().DurationVar(&queryTimeout, "timeout", client.DefaultTimeout, "Round-trip timeout")
}

func runQuery(cmd *cobra.Command, args []string) error {
	line, err := queryLine(args)
	if err != nil {
		return err
	}

	searcher := client.NewSearcher(queryAddr, queryTimeout, verbose)
	lines, err := searcher.Command(cmd.Context(), line)
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}

	out := cmd.OutOrStdout()
	for _, l := range lines {
		fmt.Fprintln(out, l)
	}
	return nil
}

// queryLine builds the protocol line for args. INDEX paths are made absolute
// so the server resolves them the way the caller sees them.
func queryLine(args []string) (string, error) {
	keyword := strings.ToUpper(args[0])
	rest := args[1:]
	if keyword == "INDEX" && len(rest) > 0 {
		abs, err := filepath.Abs(strings.Join(rest, " "))
		if err != nil {
			return "", fmt.Errorf("failed to resolve %s: %w", rest[0], err)
		}
		rest = []string{abs}
	}
	return strings.Join(append([]string{keyword}, rest...), " "), nil
}
