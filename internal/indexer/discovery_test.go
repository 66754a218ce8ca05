package indexer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test Plan for FileDiscovery:
// - Root-level and nested files match "**/" patterns
// - Non-matching extensions are skipped
// - Ignored directories and the .cindex directory are not descended into
// - A file root returns itself when it matches
// - A missing root returns ErrNoFiles
// - An unreadable subdirectory is skipped and its siblings are still found
// - Invalid patterns fail construction

func TestFileDiscovery_Discover(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeTree(t, dir, map[string]string{
		"main.c":             "int main(void) { return 0; }\n",
		"include/a.h":        "void foo(void);\n",
		"src/widget.cpp":     "void draw() {}\n",
		"src/widget.hpp":     "void draw();\n",
		"README.md":          "# readme\n",
		"build/generated.c":  "int x;\n",
		".cindex/cache.c":    "int y;\n",
		"vendor/lib/dep.c":   "int z;\n",
		"src/notes/todo.txt": "later\n",
	})

	fd, err := NewFileDiscovery(DefaultCodePatterns, []string{"build/**", "vendor/**"})
	require.NoError(t, err)

	files, err := fd.Discover(dir)
	require.NoError(t, err)

	want := []string{
		filepath.Join(dir, "main.c"),
		filepath.Join(dir, "include", "a.h"),
		filepath.Join(dir, "src", "widget.cpp"),
		filepath.Join(dir, "src", "widget.hpp"),
	}
	assert.ElementsMatch(t, want, files)
}

func TestFileDiscovery_FileRoot(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeTree(t, dir, map[string]string{
		"a.c":   "int x;\n",
		"a.txt": "text\n",
	})

	fd, err := NewFileDiscovery(DefaultCodePatterns, nil)
	require.NoError(t, err)

	files, err := fd.Discover(filepath.Join(dir, "a.c"))
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.c")}, files)

	files, err = fd.Discover(filepath.Join(dir, "a.txt"))
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestFileDiscovery_MissingRoot(t *testing.T) {
	t.Parallel()

	fd, err := NewFileDiscovery(DefaultCodePatterns, nil)
	require.NoError(t, err)

	_, err = fd.Discover(filepath.Join(t.TempDir(), "does-not-exist"))
	assert.ErrorIs(t, err, ErrNoFiles)
}

func TestNewFileDiscovery_InvalidPattern(t *testing.T) {
	t.Parallel()

	_, err := NewFileDiscovery([]string{"[unclosed"}, nil)
	assert.Error(t, err)
}

func TestFileDiscovery_UnreadableDirectorySkipped(t *testing.T) {
	t.Parallel()
	if os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced for root")
	}

	dir := t.TempDir()
	writeTree(t, dir, map[string]string{
		"aaa/hidden.c": "int hidden;\n",
		"zzz/z.c":      "int z;\n",
		"main.c":       "int main(void) { return 0; }\n",
	})
	locked := filepath.Join(dir, "aaa")
	require.NoError(t, os.Chmod(locked, 0))
	t.Cleanup(func() { os.Chmod(locked, 0755) })

	fd, err := NewFileDiscovery(DefaultCodePatterns, nil)
	require.NoError(t, err)

	files, err := fd.Discover(dir)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		filepath.Join(dir, "main.c"),
		filepath.Join(dir, "zzz", "z.c"),
	}, files)
}
