package jsonldb

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"
)

// Table holds the rows of one named collection with a fixed schema.
//
// Rows are cached in memory and flushed to a JSONL file on every write when
// the table has a path. Mutations hold the write lock for the whole
// read-modify-write so concurrent callers are serialized.
type Table struct {
	name   string
	path   string
	schema Schema

	mu   sync.RWMutex
	rows [][]Value
	// stamp of the file as last written by this table; used to tell our own
	// writes apart from external edits.
	stamp fileStamp
}

type fileStamp struct {
	size    int64
	modTime time.Time
}

func newTable(name, path string, schema Schema) (*Table, error) {
	t := &Table{name: name, path: path, schema: schema}
	if path == "" {
		return t, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil { //nolint:gosec // G301: data directory
		return nil, fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		if err := t.writeAll(nil); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// Name returns the table name.
func (t *Table) Name() string {
	return t.name
}

// Schema returns a copy of the table schema.
func (t *Table) Schema() Schema {
	return Schema{Key: t.schema.Key, Columns: slices.Clone(t.schema.Columns)}
}

// Len returns the number of stored rows, stray blank rows included.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.rows)
}

// ReadAll returns all rows in insertion order, skipping rows whose required
// columns are empty.
func (t *Table) ReadAll() []Row {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Row, 0, len(t.rows))
	for _, cells := range t.rows {
		if !t.complete(cells) {
			continue
		}
		out = append(out, t.schema.toRow(cells))
	}
	return out
}

func (t *Table) complete(cells []Value) bool {
	for i := range t.schema.Columns {
		if t.schema.required(i) && (i >= len(cells) || cells[i].IsEmpty()) {
			return false
		}
	}
	return true
}

// Upsert replaces the first row whose keyField equals the record's value, or
// appends a new row. An empty keyField means the table's key.
func (t *Table) Upsert(rec Record, keyField string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.upsertLocked(rec, keyField)
}

func (t *Table) upsertLocked(rec Record, keyField string) error {
	if keyField == "" {
		keyField = t.schema.Key
	}
	if keyField == "" {
		return fmt.Errorf("%w: table %q has no key field", ErrInvalidKey, t.name)
	}
	ki := t.schema.Index(keyField)
	if ki < 0 {
		return fmt.Errorf("%w: %q is not a column of %q", ErrInvalidKey, keyField, t.name)
	}
	cells, err := t.schema.project(rec)
	if err != nil {
		return err
	}
	key := cells[ki]
	if key.IsEmpty() {
		return fmt.Errorf("%w: %q is empty", ErrInvalidKey, keyField)
	}

	i := slices.IndexFunc(t.rows, func(row []Value) bool {
		return ki < len(row) && row[ki].Equal(key)
	})
	if i < 0 {
		return t.appendLocked(cells)
	}
	rows := slices.Clone(t.rows)
	rows[i] = cells
	if err := t.writeAll(rows); err != nil {
		return err
	}
	t.rows = rows
	return nil
}

// Append adds the record at the end of the table, regardless of duplicates.
func (t *Table) Append(rec Record) error {
	cells, err := t.schema.project(rec)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.appendLocked(cells)
}

func (t *Table) appendLocked(cells []Value) error {
	if t.path != "" {
		if err := t.appendLine(cells); err != nil {
			return err
		}
	}
	t.rows = append(t.rows, cells)
	return nil
}

// BulkUpsert upserts every record in order. It stops at the first failure;
// records before it stay applied. It returns how many records were applied.
func (t *Table) BulkUpsert(recs []Record, keyField string) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, rec := range recs {
		if err := t.upsertLocked(rec, keyField); err != nil {
			return i, fmt.Errorf("entry %d: %w", i, err)
		}
	}
	return len(recs), nil
}

// DeleteByField removes every row whose field equals value and returns how
// many were removed. A field outside the schema matches nothing.
func (t *Table) DeleteByField(field string, value Value) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fi := t.schema.Index(field)
	if fi < 0 {
		return 0, nil
	}
	kept := make([][]Value, 0, len(t.rows))
	for _, row := range t.rows {
		if fi < len(row) && row[fi].Equal(value) {
			continue
		}
		kept = append(kept, row)
	}
	removed := len(t.rows) - len(kept)
	if removed == 0 {
		return 0, nil
	}
	if err := t.writeAll(kept); err != nil {
		return 0, err
	}
	t.rows = kept
	return removed, nil
}

// ReplaceAll swaps the table contents for recs, in order. An empty recs is a
// no-op so that an empty sync payload never wipes a table; it returns false
// in that case. Every record is projected before anything changes.
//
// On a keyed table, records repeating a key collapse into one row at the
// position of the first and with the contents of the last, as upserting them
// in order would.
func (t *Table) ReplaceAll(recs []Record) (bool, error) {
	if len(recs) == 0 {
		return false, nil
	}
	rows := make([][]Value, 0, len(recs))
	for i, rec := range recs {
		cells, err := t.schema.project(rec)
		if err != nil {
			return false, fmt.Errorf("entry %d: %w", i, err)
		}
		rows = append(rows, cells)
	}
	rows, _ = t.schema.dedupe(rows)
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.writeAll(rows); err != nil {
		return false, err
	}
	t.rows = rows
	return true, nil
}

// load reads the file. The caller must hold the write lock.
//
// The header of an existing file wins over the schema the table was created
// with, since a table's columns are fixed once initialized.
func (t *Table) load() error {
	data, err := os.ReadFile(t.path)
	if err != nil {
		return err
	}
	header, rows, err := decodeTable(data)
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", t.path, err)
	}
	if header == nil {
		// Empty file: keep our schema, rewrite the header.
		return t.writeAll(nil)
	}
	t.schema = header.schema()
	t.rows = t.dedupeLoaded(rows)
	t.stamp, _ = statFile(t.path)
	return nil
}

// reload re-reads the file when it was changed by someone else. It reports
// whether the in-memory rows were replaced.
func (t *Table) reload() (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, err := statFile(t.path)
	if err != nil {
		return false, err
	}
	if st.same(t.stamp) {
		return false, nil
	}
	data, err := os.ReadFile(t.path)
	if err != nil {
		return false, err
	}
	header, rows, err := decodeTable(data)
	if err != nil {
		return false, fmt.Errorf("failed to reload %s: %w", t.path, err)
	}
	if header == nil {
		return false, nil
	}
	if s := header.schema(); !s.Equal(&t.schema) {
		return false, fmt.Errorf("refusing to reload %s: schema changed", t.path)
	}
	t.rows = t.dedupeLoaded(rows)
	t.stamp = st
	return true, nil
}

// dedupeLoaded collapses repeated keys of rows read from a file, which may
// have been edited by hand.
func (t *Table) dedupeLoaded(rows [][]Value) [][]Value {
	rows, dropped := t.schema.dedupe(rows)
	if dropped > 0 {
		slog.Warn("Collapsed rows with a repeated key", "table", t.name, "key", t.schema.Key, "dropped", dropped)
	}
	return rows
}

func decodeTable(data []byte) (*schemaHeader, [][]Value, error) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	var header *schemaHeader
	var rows [][]Value
	line := 0
	for scanner.Scan() {
		line++
		b := bytes.TrimSpace(scanner.Bytes())
		if len(b) == 0 {
			continue
		}
		if header == nil {
			h := &schemaHeader{}
			if err := json.Unmarshal(b, h); err != nil {
				return nil, nil, fmt.Errorf("line %d: invalid schema header: %w", line, err)
			}
			if err := h.Validate(); err != nil {
				return nil, nil, fmt.Errorf("line %d: %w", line, err)
			}
			header = h
			continue
		}
		var cells []Value
		if err := json.Unmarshal(b, &cells); err != nil {
			return nil, nil, fmt.Errorf("line %d: %w", line, err)
		}
		rows = append(rows, fitCells(cells, len(header.Columns)))
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, err
	}
	return header, rows, nil
}

// writeAll rewrites the whole file atomically. The caller must hold the
// write lock.
func (t *Table) writeAll(rows [][]Value) error {
	if t.path == "" {
		return nil
	}
	var buf bytes.Buffer
	header := schemaHeader{Version: currentVersion, Key: t.schema.Key, Columns: t.schema.Columns}
	if err := writeLine(&buf, header); err != nil {
		return err
	}
	for _, row := range rows {
		if err := writeLine(&buf, row); err != nil {
			return err
		}
	}
	tmp := t.path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil { //nolint:gosec // G306: table files are not secret
		return fmt.Errorf("failed to write table file: %w", err)
	}
	if err := os.Rename(tmp, t.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace table file: %w", err)
	}
	t.stamp, _ = statFile(t.path)
	return nil
}

// appendLine appends one row to the file. The caller must hold the write lock.
func (t *Table) appendLine(cells []Value) error {
	var buf bytes.Buffer
	if err := writeLine(&buf, cells); err != nil {
		return err
	}
	f, err := os.OpenFile(t.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644) //nolint:gosec // G302: table files are not secret
	if err != nil {
		return fmt.Errorf("failed to open table file for append: %w", err)
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write row: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close table file: %w", err)
	}
	t.stamp, _ = statFile(t.path)
	return nil
}

// fitCells pads or truncates a stored row to n columns; hand-edited files
// are not always rectangular.
func fitCells(cells []Value, n int) []Value {
	if len(cells) >= n {
		return cells[:n:n]
	}
	out := make([]Value, n)
	copy(out, cells)
	return out
}

// dedupe keeps one row per non-empty key value: the first row's position
// with the last row's contents. It returns the number of rows dropped.
func (s *Schema) dedupe(rows [][]Value) ([][]Value, int) {
	ki := s.Index(s.Key)
	if s.Key == "" || ki < 0 {
		return rows, 0
	}
	first := make(map[Value]int, len(rows))
	out := make([][]Value, 0, len(rows))
	for _, row := range rows {
		if ki >= len(row) || row[ki].IsEmpty() {
			out = append(out, row)
			continue
		}
		if i, ok := first[row[ki]]; ok {
			out[i] = row
			continue
		}
		first[row[ki]] = len(out)
		out = append(out, row)
	}
	return out, len(rows) - len(out)
}

func writeLine(buf *bytes.Buffer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal row: %w", err)
	}
	buf.Write(data)
	buf.WriteByte('\n')
	return nil
}

func (s fileStamp) same(o fileStamp) bool {
	return s.size == o.size && s.modTime.Equal(o.modTime)
}

func statFile(path string) (fileStamp, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return fileStamp{}, err
	}
	return fileStamp{size: fi.Size(), modTime: fi.ModTime()}, nil
}
