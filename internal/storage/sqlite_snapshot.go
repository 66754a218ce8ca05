package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/mattn/go-sqlite3"

	"github.com/mvp-joe/cindex/internal/symbols"
)

// Occurrence kinds stored in the occurrences table.
const (
	occurrenceCall      = "call"
	occurrenceReference = "ref"
)

const snapshotSchemaVersion = "1"

const createSnapshotFunctionsTable = `
CREATE TABLE IF NOT EXISTS functions (
	name TEXT PRIMARY KEY,
	decl_file TEXT,
	decl_line INTEGER,
	decl_col INTEGER,
	impl_file TEXT,
	impl_line INTEGER,
	impl_col INTEGER
)`

const createSnapshotTypesTable = `
CREATE TABLE IF NOT EXISTS types (
	name TEXT PRIMARY KEY,
	decl_file TEXT,
	decl_line INTEGER,
	decl_col INTEGER
)`

const createSnapshotOccurrencesTable = `
CREATE TABLE IF NOT EXISTS occurrences (
	kind TEXT NOT NULL,
	name TEXT NOT NULL,
	seq INTEGER NOT NULL,
	file TEXT NOT NULL,
	line INTEGER NOT NULL,
	col INTEGER NOT NULL,
	content TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (kind, name, seq)
)`

const createSnapshotMetadataTable = `
CREATE TABLE IF NOT EXISTS snapshot_metadata (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updated_at TEXT NOT NULL
)`

// SQLiteStore keeps the full index, including columns and call-site
// content, in a SQLite database. It is the backend used for warm starts.
type SQLiteStore struct {
	path string
	db   *sql.DB
}

// OpenSQLiteStore opens (creating if needed) the snapshot database at path.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot database: %w", err)
	}
	// A single connection serializes writers inside this process.
	db.SetMaxOpenConns(1)

	if err := createSnapshotSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteStore{path: path, db: db}, nil
}

func createSnapshotSchema(db *sql.DB) error {
	tables := []struct {
		name string
		ddl  string
	}{
		{"functions", createSnapshotFunctionsTable},
		{"types", createSnapshotTypesTable},
		{"occurrences", createSnapshotOccurrencesTable},
		{"snapshot_metadata", createSnapshotMetadataTable},
	}

	for _, table := range tables {
		if _, err := db.Exec(table.ddl); err != nil {
			return fmt.Errorf("failed to create %s table: %w", table.name, err)
		}
	}
	return nil
}

func (s *SQLiteStore) Path() string {
	return s.path
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Save replaces the database contents with dump in one transaction.
func (s *SQLiteStore) Save(ctx context.Context, dump symbols.Dump) error {
	return withFileLock(ctx, s.path, func() error {
		return s.save(ctx, dump)
	})
}

func (s *SQLiteStore) save(ctx context.Context, dump symbols.Dump) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // Safe to call even after commit

	for _, table := range []string{"functions", "types", "occurrences"} {
		if _, err := sq.Delete(table).RunWith(tx).ExecContext(ctx); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	fnStmt, err := prepareInsert(ctx, tx, sq.Insert("functions").
		Columns("name", "decl_file", "decl_line", "decl_col", "impl_file", "impl_line", "impl_col").
		Values("", nil, nil, nil, nil, nil, nil))
	if err != nil {
		return err
	}
	defer fnStmt.Close()

	typeStmt, err := prepareInsert(ctx, tx, sq.Insert("types").
		Columns("name", "decl_file", "decl_line", "decl_col").
		Values("", nil, nil, nil))
	if err != nil {
		return err
	}
	defer typeStmt.Close()

	occStmt, err := prepareInsert(ctx, tx, sq.Insert("occurrences").
		Columns("kind", "name", "seq", "file", "line", "col", "content").
		Values("", "", 0, "", 0, 0, ""))
	if err != nil {
		return err
	}
	defer occStmt.Close()

	for name, fn := range dump.Functions {
		declFile, declLine, declCol := locationColumns(fn.Declaration)
		implFile, implLine, implCol := locationColumns(fn.Implementation)
		if _, err := fnStmt.ExecContext(ctx, name, declFile, declLine, declCol, implFile, implLine, implCol); err != nil {
			return fmt.Errorf("failed to write function %s: %w", name, err)
		}
		if err := insertOccurrences(ctx, occStmt, occurrenceCall, name, fn.Calls); err != nil {
			return err
		}
	}

	for name, t := range dump.Types {
		declFile, declLine, declCol := locationColumns(t.Declaration)
		if _, err := typeStmt.ExecContext(ctx, name, declFile, declLine, declCol); err != nil {
			return fmt.Errorf("failed to write type %s: %w", name, err)
		}
		if err := insertOccurrences(ctx, occStmt, occurrenceReference, name, t.References); err != nil {
			return err
		}
	}

	now := time.Now().UTC().Format(time.RFC3339)
	metadata := map[string]string{
		"schema_version": snapshotSchemaVersion,
		"saved_at":       now,
		"functions":      strconv.Itoa(len(dump.Functions)),
		"types":          strconv.Itoa(len(dump.Types)),
	}
	for key, value := range metadata {
		_, err := sq.Insert("snapshot_metadata").
			Columns("key", "value", "updated_at").
			Values(key, value, now).
			Options("OR REPLACE").
			RunWith(tx).
			ExecContext(ctx)
		if err != nil {
			return fmt.Errorf("failed to write metadata %s: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}
	return nil
}

// Load reads the database back into a dump.
func (s *SQLiteStore) Load(ctx context.Context) (symbols.Dump, error) {
	dump := emptyDump()

	saved, err := s.Metadata(ctx, "saved_at")
	if err != nil {
		return dump, err
	}
	if saved == "" {
		return dump, fs.ErrNotExist
	}

	rows, err := sq.Select("name", "decl_file", "decl_line", "decl_col", "impl_file", "impl_line", "impl_col").
		From("functions").
		RunWith(s.db).
		QueryContext(ctx)
	if err != nil {
		return dump, fmt.Errorf("failed to query functions: %w", err)
	}
	for rows.Next() {
		var name string
		var decl, impl nullLocation
		if err := rows.Scan(&name, &decl.file, &decl.line, &decl.col, &impl.file, &impl.line, &impl.col); err != nil {
			rows.Close()
			return dump, fmt.Errorf("failed to scan function: %w", err)
		}
		dump.Functions[name] = symbols.FunctionEntry{
			Declaration:    decl.location(),
			Implementation: impl.location(),
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return dump, fmt.Errorf("failed to read functions: %w", err)
	}

	rows, err = sq.Select("name", "decl_file", "decl_line", "decl_col").
		From("types").
		RunWith(s.db).
		QueryContext(ctx)
	if err != nil {
		return dump, fmt.Errorf("failed to query types: %w", err)
	}
	for rows.Next() {
		var name string
		var decl nullLocation
		if err := rows.Scan(&name, &decl.file, &decl.line, &decl.col); err != nil {
			rows.Close()
			return dump, fmt.Errorf("failed to scan type: %w", err)
		}
		dump.Types[name] = symbols.TypeEntry{Declaration: decl.location()}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return dump, fmt.Errorf("failed to read types: %w", err)
	}

	rows, err = sq.Select("kind", "name", "file", "line", "col", "content").
		From("occurrences").
		OrderBy("kind", "name", "seq").
		RunWith(s.db).
		QueryContext(ctx)
	if err != nil {
		return dump, fmt.Errorf("failed to query occurrences: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var kind, name string
		var occ symbols.Occurrence
		if err := rows.Scan(&kind, &name, &occ.File, &occ.Line, &occ.Column, &occ.Content); err != nil {
			return dump, fmt.Errorf("failed to scan occurrence: %w", err)
		}
		switch kind {
		case occurrenceCall:
			fn := dump.Functions[name]
			fn.Calls = append(fn.Calls, occ)
			dump.Functions[name] = fn
		case occurrenceReference:
			t := dump.Types[name]
			t.References = append(t.References, occ)
			dump.Types[name] = t
		}
	}
	if err := rows.Err(); err != nil {
		return dump, fmt.Errorf("failed to read occurrences: %w", err)
	}

	return dump, nil
}

// Metadata returns a snapshot_metadata value, or "" when the key is unset.
func (s *SQLiteStore) Metadata(ctx context.Context, key string) (string, error) {
	var value string
	err := sq.Select("value").
		From("snapshot_metadata").
		Where(sq.Eq{"key": key}).
		RunWith(s.db).
		QueryRowContext(ctx).
		Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read metadata %s: %w", key, err)
	}
	return value, nil
}

func prepareInsert(ctx context.Context, tx *sql.Tx, builder sq.InsertBuilder) (*sql.Stmt, error) {
	// Build the query once with Squirrel, then prepare it for the batch
	sqlStr, _, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build SQL: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, sqlStr)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare statement: %w", err)
	}
	return stmt, nil
}

func insertOccurrences(ctx context.Context, stmt *sql.Stmt, kind, name string, occs []symbols.Occurrence) error {
	for i, occ := range occs {
		if _, err := stmt.ExecContext(ctx, kind, name, i, occ.File, occ.Line, occ.Column, occ.Content); err != nil {
			return fmt.Errorf("failed to write %s for %s: %w", kind, name, err)
		}
	}
	return nil
}

func locationColumns(loc *symbols.Location) (any, any, any) {
	if loc == nil {
		return nil, nil, nil
	}
	return loc.File, loc.Line, loc.Column
}

type nullLocation struct {
	file sql.NullString
	line sql.NullInt64
	col  sql.NullInt64
}

func (n nullLocation) location() *symbols.Location {
	if !n.file.Valid {
		return nil
	}
	return &symbols.Location{File: n.file.String, Line: int(n.line.Int64), Column: int(n.col.Int64)}
}
