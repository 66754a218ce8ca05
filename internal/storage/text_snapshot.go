package storage

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/mvp-joe/cindex/internal/symbols"
)

// TextStore writes the line-oriented snapshot format:
//
//	DECL <name> (<file>:<line>)
//	IMPL <name> (<file>:<line>)
//	CALL <name> (<file>:<line>)
//	TYPE <name> (<file>:<line>)
//	REF <name> (<file>:<line>)
//
// CALL lines are only written for functions with a declaration or an
// implementation, and REF lines only for declared types. Names are written
// in sorted order. Columns and line content are not stored, so a loaded
// text snapshot has every column set to 1.
type TextStore struct {
	path string
}

// NewTextStore creates a text snapshot store at path.
func NewTextStore(path string) *TextStore {
	return &TextStore{path: path}
}

func (s *TextStore) Path() string {
	return s.path
}

func (s *TextStore) Close() error {
	return nil
}

// Save writes dump to a temporary file and renames it over the snapshot.
func (s *TextStore) Save(ctx context.Context, dump symbols.Dump) error {
	return withFileLock(ctx, s.path, func() error {
		tmp, err := os.CreateTemp(filepath.Dir(s.path), ".snapshot-*")
		if err != nil {
			return fmt.Errorf("failed to create temp snapshot: %w", err)
		}
		defer os.Remove(tmp.Name())

		w := bufio.NewWriter(tmp)
		if err := WriteText(w, dump); err != nil {
			tmp.Close()
			return err
		}
		if err := w.Flush(); err != nil {
			tmp.Close()
			return fmt.Errorf("failed to write snapshot: %w", err)
		}
		if err := tmp.Close(); err != nil {
			return fmt.Errorf("failed to close snapshot: %w", err)
		}

		if err := os.Rename(tmp.Name(), s.path); err != nil {
			return fmt.Errorf("failed to replace snapshot: %w", err)
		}
		return nil
	})
}

// Load parses the snapshot file.
func (s *TextStore) Load(ctx context.Context) (symbols.Dump, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return emptyDump(), err
		}
		return emptyDump(), fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer f.Close()

	return ReadText(f)
}

// WriteText writes dump in the text snapshot format.
func WriteText(w io.Writer, dump symbols.Dump) error {
	bw := &errWriter{w: w}

	for _, name := range sortedKeys(dump.Functions) {
		fn := dump.Functions[name]
		if fn.Declaration != nil {
			bw.line("DECL", name, *fn.Declaration)
		}
		if fn.Implementation != nil {
			bw.line("IMPL", name, *fn.Implementation)
		}
		if fn.Declaration == nil && fn.Implementation == nil {
			continue
		}
		for _, call := range fn.Calls {
			bw.line("CALL", name, call.Location)
		}
	}

	for _, name := range sortedKeys(dump.Types) {
		t := dump.Types[name]
		if t.Declaration == nil {
			continue
		}
		bw.line("TYPE", name, *t.Declaration)
		for _, ref := range t.References {
			bw.line("REF", name, ref.Location)
		}
	}

	if bw.err != nil {
		return fmt.Errorf("failed to write snapshot: %w", bw.err)
	}
	return nil
}

// ReadText parses the text snapshot format.
func ReadText(r io.Reader) (symbols.Dump, error) {
	dump := emptyDump()

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		kind, name, loc, err := parseTextLine(line)
		if err != nil {
			return dump, fmt.Errorf("snapshot line %d: %w", lineNo, err)
		}

		switch kind {
		case "DECL", "IMPL", "CALL":
			fn := dump.Functions[name]
			switch kind {
			case "DECL":
				fn.Declaration = &loc
			case "IMPL":
				fn.Implementation = &loc
			case "CALL":
				fn.Calls = append(fn.Calls, symbols.Occurrence{Location: loc})
			}
			dump.Functions[name] = fn
		case "TYPE", "REF":
			t := dump.Types[name]
			if kind == "TYPE" {
				t.Declaration = &loc
			} else {
				t.References = append(t.References, symbols.Occurrence{Location: loc})
			}
			dump.Types[name] = t
		default:
			return dump, fmt.Errorf("snapshot line %d: unknown record %q", lineNo, kind)
		}
	}
	if err := scanner.Err(); err != nil {
		return dump, fmt.Errorf("failed to read snapshot: %w", err)
	}

	return dump, nil
}

// parseTextLine splits "KIND name (file:line)".
func parseTextLine(line string) (string, string, symbols.Location, error) {
	kind, rest, ok := strings.Cut(line, " ")
	if !ok {
		return "", "", symbols.Location{}, fmt.Errorf("malformed record %q", line)
	}
	name, locPart, ok := strings.Cut(rest, " ")
	if !ok || !strings.HasPrefix(locPart, "(") || !strings.HasSuffix(locPart, ")") {
		return "", "", symbols.Location{}, fmt.Errorf("malformed record %q", line)
	}
	locPart = locPart[1 : len(locPart)-1]

	sep := strings.LastIndex(locPart, ":")
	if sep <= 0 {
		return "", "", symbols.Location{}, fmt.Errorf("malformed location %q", locPart)
	}
	lineNum, err := strconv.Atoi(locPart[sep+1:])
	if err != nil {
		return "", "", symbols.Location{}, fmt.Errorf("malformed line number in %q: %w", locPart, err)
	}

	return kind, name, symbols.Location{File: locPart[:sep], Line: lineNum, Column: 1}, nil
}

type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) line(kind, name string, loc symbols.Location) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, "%s %s (%s:%d)\n", kind, name, loc.File, loc.Line)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
