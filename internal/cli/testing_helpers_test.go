package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// fixtureDir holds the a.h/a.c/b.c sample tree.
var fixtureDir = filepath.Join("..", "..", "testdata", "code", "c")

// copyFixture copies the sample tree into a fresh temp dir so tests can
// write snapshots and config next to it.
func copyFixture(t *testing.T) string {
	t.Helper()

	dst := t.TempDir()
	entries, err := os.ReadDir(fixtureDir)
	require.NoError(t, err)
	for _, entry := range entries {
		data, err := os.ReadFile(filepath.Join(fixtureDir, entry.Name()))
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(dst, entry.Name()), data, 0644))
	}
	return dst
}
