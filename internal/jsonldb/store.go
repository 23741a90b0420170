// Groups named tables under one data directory.

package jsonldb

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"slices"
	"sync"
)

var validTableName = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// Store is a handle over a set of named tables.
//
// Tables only exist once EnsureTable created or loaded them; every other
// operation on an unknown name fails with ErrTableNotFound.
type Store struct {
	dir string

	mu     sync.RWMutex
	tables map[string]*Table
	order  []string
}

// Open returns a Store rooted at dir. Each table is kept in dir/<name>.jsonl.
// An empty dir gives a memory-only store.
func Open(dir string) *Store {
	return &Store{dir: dir, tables: make(map[string]*Table)}
}

// Dir returns the directory holding the table files, or "" when memory-only.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the file backing the named table, or "" when memory-only.
func (s *Store) Path(name string) string {
	if s.dir == "" {
		return ""
	}
	return filepath.Join(s.dir, name+".jsonl")
}

// EnsureTable returns the named table, creating it with schema if absent.
//
// When the table file already exists its stored schema is kept; the schema
// argument only applies to brand new tables.
func (s *Store) EnsureTable(name string, schema Schema) (*Table, error) {
	if !validTableName.MatchString(name) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTableName, name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tables[name]; ok {
		return t, nil
	}
	if err := schema.Validate(); err != nil {
		return nil, fmt.Errorf("table %q: %w", name, err)
	}
	schema.Columns = slices.Clone(schema.Columns)
	t, err := newTable(name, s.Path(name), schema)
	if err != nil {
		return nil, err
	}
	if !t.schema.Equal(&schema) {
		slog.Warn("Table file schema differs from the requested one; keeping the stored schema",
			"table", name, "stored", t.schema.Names(), "requested", schema.Names())
	}
	s.tables[name] = t
	s.order = append(s.order, name)
	return t, nil
}

// Table returns the named table.
func (s *Store) Table(name string) (*Table, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tables[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrTableNotFound, name)
	}
	return t, nil
}

// Tables returns the table names in creation order.
func (s *Store) Tables() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.order)
}

// ReadAll returns the rows of the named table. See Table.ReadAll.
func (s *Store) ReadAll(name string) ([]Row, error) {
	t, err := s.Table(name)
	if err != nil {
		return nil, err
	}
	return t.ReadAll(), nil
}

// Upsert inserts or updates rec in the named table. See Table.Upsert.
func (s *Store) Upsert(name string, rec Record, keyField string) error {
	t, err := s.Table(name)
	if err != nil {
		return err
	}
	return t.Upsert(rec, keyField)
}

// Append adds rec to the named table. See Table.Append.
func (s *Store) Append(name string, rec Record) error {
	t, err := s.Table(name)
	if err != nil {
		return err
	}
	return t.Append(rec)
}

// BulkUpsert upserts recs into the named table. See Table.BulkUpsert.
func (s *Store) BulkUpsert(name string, recs []Record, keyField string) (int, error) {
	t, err := s.Table(name)
	if err != nil {
		return 0, err
	}
	return t.BulkUpsert(recs, keyField)
}

// DeleteByField removes matching rows from the named table. See Table.DeleteByField.
func (s *Store) DeleteByField(name, field string, value Value) (int, error) {
	t, err := s.Table(name)
	if err != nil {
		return 0, err
	}
	return t.DeleteByField(field, value)
}

// ReplaceAll swaps the contents of the named table. See Table.ReplaceAll.
func (s *Store) ReplaceAll(name string, recs []Record) (bool, error) {
	t, err := s.Table(name)
	if err != nil {
		return false, err
	}
	return t.ReplaceAll(recs)
}

// DeleteEverywhere runs DeleteByField on every table in creation order and
// returns the number of rows removed per table. It stops at the first
// failure; tables before it stay modified.
func (s *Store) DeleteEverywhere(field string, value Value) (map[string]int, error) {
	removed := make(map[string]int)
	for _, name := range s.Tables() {
		n, err := s.DeleteByField(name, field, value)
		if err != nil {
			return removed, fmt.Errorf("table %q: %w", name, err)
		}
		removed[name] = n
	}
	return removed, nil
}

// Files returns the paths of every table file, relative to Dir.
func (s *Store) Files() []string {
	if s.dir == "" {
		return nil
	}
	names := s.Tables()
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = n + ".jsonl"
	}
	return out
}
