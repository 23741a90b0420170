// Handles schema definition, column types, and reflection-based schema generation.

package jsonldb

import (
	"fmt"
	"reflect"
	"slices"
	"time"

	"github.com/invopop/jsonschema"
)

// currentVersion is the current version of the JSONL table format.
const currentVersion = "1.0"

// ColumnType describes what a column is expected to hold. It is metadata:
// cells are not coerced to it.
type ColumnType string

const (
	// ColumnTypeText holds free text.
	ColumnTypeText ColumnType = "text"
	// ColumnTypeNumber holds integers or floats.
	ColumnTypeNumber ColumnType = "number"
	// ColumnTypeDate holds ISO8601 date strings.
	ColumnTypeDate ColumnType = "date"
	// ColumnTypeBool holds booleans stored as text.
	ColumnTypeBool ColumnType = "bool"
)

// Column is a table column in storage.
type Column struct {
	Name        string     `json:"name" yaml:"name"`
	Type        ColumnType `json:"type" yaml:"type"`
	Required    bool       `json:"required,omitempty" yaml:"required,omitempty"`
	Description string     `json:"description,omitempty" yaml:"description,omitempty"`
}

// Schema is the fixed column layout of a table.
//
// Key names the identity column used by upserts; it is empty for append-only
// tables. The key column is always required.
type Schema struct {
	Key     string   `json:"key,omitempty" yaml:"key,omitempty"`
	Columns []Column `json:"columns" yaml:"columns"`
}

// Names returns the column names in order.
func (s *Schema) Names() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

// Index returns the position of the named column, or -1.
func (s *Schema) Index(name string) int {
	return slices.IndexFunc(s.Columns, func(c Column) bool { return c.Name == name })
}

// Validate checks that the schema is well-formed.
func (s *Schema) Validate() error {
	if len(s.Columns) == 0 {
		return fmt.Errorf("schema has no columns")
	}
	seen := make(map[string]bool, len(s.Columns))
	for i, col := range s.Columns {
		if col.Name == "" {
			return fmt.Errorf("column %d: name is required", i)
		}
		if col.Type == "" {
			return fmt.Errorf("column %d: type is required", i)
		}
		if seen[col.Name] {
			return fmt.Errorf("column %d: duplicate name %q", i, col.Name)
		}
		seen[col.Name] = true
	}
	if s.Key != "" && !seen[s.Key] {
		return fmt.Errorf("key %q is not a column", s.Key)
	}
	return nil
}

// Equal reports whether two schemas have the same key and column names.
func (s *Schema) Equal(o *Schema) bool {
	return s.Key == o.Key && slices.Equal(s.Names(), o.Names())
}

// required reports whether the column at i must be non-empty for a row to be
// returned by ReadAll.
func (s *Schema) required(i int) bool {
	return s.Columns[i].Required || s.Columns[i].Name == s.Key
}

// project builds a schema-conformant row from rec. Fields outside the schema
// are dropped, missing ones are empty.
func (s *Schema) project(rec Record) ([]Value, error) {
	if rec == nil {
		return nil, fmt.Errorf("%w: expected an object", ErrInvalidRecord)
	}
	cells := make([]Value, len(s.Columns))
	for i, col := range s.Columns {
		raw, ok := rec[col.Name]
		if !ok {
			continue
		}
		v, err := ParseValue(raw)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", col.Name, err)
		}
		cells[i] = v
	}
	return cells, nil
}

// toRow converts positional cells to a Row.
func (s *Schema) toRow(cells []Value) Row {
	r := make(Row, len(s.Columns))
	for i, col := range s.Columns {
		if i < len(cells) {
			r[col.Name] = cells[i]
		} else {
			r[col.Name] = Value{}
		}
	}
	return r
}

// schemaHeader is the first line of a JSONL table file.
type schemaHeader struct {
	Version string   `json:"version"`
	Key     string   `json:"key,omitempty"`
	Columns []Column `json:"columns"`
}

// Validate checks that the schema header is well-formed.
func (h *schemaHeader) Validate() error {
	if h.Version == "" {
		return errSchemaVersionRequired
	}
	s := h.schema()
	return s.Validate()
}

func (h *schemaHeader) schema() Schema {
	return Schema{Key: h.Key, Columns: h.Columns}
}

// SchemaOf derives a Schema from a struct type using JSON Schema reflection.
//
// Struct field order is column order. Fields without omitempty are required,
// and `jsonschema:"description=..."` tags become column descriptions. key
// must name one of the resulting columns, or be empty.
func SchemaOf[T any](key string) (Schema, error) {
	t := reflect.TypeFor[T]()
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return Schema{}, fmt.Errorf("type must be a struct or pointer to struct, got %s", t.Kind())
	}

	r := jsonschema.Reflector{Anonymous: true, DoNotReference: true}
	js := r.ReflectFromType(t)

	required := make(map[string]bool, len(js.Required))
	for _, name := range js.Required {
		required[name] = true
	}

	var columns []Column
	for pair := js.Properties.Oldest(); pair != nil; pair = pair.Next() {
		name := pair.Key
		colType := ColumnTypeText
		for i := range t.NumField() {
			field := t.Field(i)
			if jsonFieldName(&field) == name {
				colType = goTypeToColumnType(field.Type)
				break
			}
		}
		if pair.Value.Format == "date" {
			colType = ColumnTypeDate
		}
		columns = append(columns, Column{
			Name:        name,
			Type:        colType,
			Required:    required[name],
			Description: pair.Value.Description,
		})
	}

	s := Schema{Key: key, Columns: columns}
	if err := s.Validate(); err != nil {
		return Schema{}, fmt.Errorf("%s: %w", t.Name(), err)
	}
	return s, nil
}

// MustSchemaOf is like SchemaOf but panics on error. Use it for package-level
// layouts.
func MustSchemaOf[T any](key string) Schema {
	s, err := SchemaOf[T](key)
	if err != nil {
		panic(err)
	}
	return s
}

// jsonFieldName returns the JSON field name for a struct field.
func jsonFieldName(field *reflect.StructField) string {
	tag := field.Tag.Get("json")
	if tag == "" || tag == "-" {
		return field.Name
	}
	for i, c := range tag {
		if c == ',' {
			if i == 0 {
				return field.Name
			}
			return tag[:i]
		}
	}
	return tag
}

// goTypeToColumnType maps Go types to column types.
func goTypeToColumnType(t reflect.Type) ColumnType {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == reflect.TypeFor[time.Time]() {
		return ColumnTypeDate
	}
	switch t.Kind() { //nolint:exhaustive // Other kinds default to text
	case reflect.Bool:
		return ColumnTypeBool
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return ColumnTypeNumber
	default:
		return ColumnTypeText
	}
}
